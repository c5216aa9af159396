// Package bot — шлюз Telegram: получает апдейты long polling, раскладывает их
// по воркерам (апдейты одного участника обрабатываются по порядку), превращает
// сообщения и смены статуса в события движка и выполняет команды чата.
package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/reputation-bot/internal/bot/filters"
	"serotonyl.ru/reputation-bot/internal/bot/middleware"
	"serotonyl.ru/reputation-bot/internal/common"
	"serotonyl.ru/reputation-bot/internal/config"
	"serotonyl.ru/reputation-bot/internal/engine"
	"serotonyl.ru/reputation-bot/internal/events"
	"serotonyl.ru/reputation-bot/internal/features/admin"
	"serotonyl.ru/reputation-bot/internal/features/members"
	"serotonyl.ru/reputation-bot/internal/features/progression"
	"serotonyl.ru/reputation-bot/internal/features/reputation"
	"serotonyl.ru/reputation-bot/internal/notify"
)

// messageDeleter удаляет сообщения (реализует *telego.Bot).
type messageDeleter interface {
	DeleteMessage(ctx context.Context, params *telego.DeleteMessageParams) error
}

// updatesSource выдаёт апдейты long polling (реализует *telego.Bot).
type updatesSource interface {
	UpdatesViaLongPolling(ctx context.Context, params *telego.GetUpdatesParams, options ...telego.LongPollingOption) (<-chan telego.Update, error)
}

// Services — сервисы, которые вызывает шлюз.
type Services struct {
	Engine      *engine.Engine
	Directory   *members.Service
	Reputation  *reputation.Service
	Progression *progression.Service
	Admin       *admin.Handler
	Sender      *notify.Sender
}

// Bot — главная структура шлюза.
type Bot struct {
	updates updatesSource
	deleter messageDeleter
	cfg     *config.Config

	chatFilter  *filters.ChatFilter
	rateLimiter *middleware.RateLimiter
	parser      *CommandParser
	dispatcher  *Dispatcher[telego.Update]

	svc Services
}

// New создаёт шлюз. botUsername — имя бота без @ (из GetMe).
func New(api *telego.Bot, botUsername string, cfg *config.Config, chatFilter *filters.ChatFilter, svc Services) *Bot {
	b := &Bot{
		cfg:         cfg,
		chatFilter:  chatFilter,
		rateLimiter: middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		parser:      NewCommandParser(botUsername),
		svc:         svc,
	}
	if api != nil {
		b.updates = api
		b.deleter = api
	}
	b.dispatcher = NewDispatcher(cfg.BotWorkers, cfg.BotQueueSize, b.handleUpdate)
	return b
}

// Start запускает long polling и блокируется до отмены ctx.
// Перед возвратом дожидается обработки уже принятых апдейтов.
func (b *Bot) Start(ctx context.Context) error {
	defer b.rateLimiter.Close()

	updates, err := b.updates.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout:        b.cfg.BotUpdateTimeoutSeconds,
		AllowedUpdates: []string{"message", "chat_member"},
	})
	if err != nil {
		return fmt.Errorf("ошибка запуска long polling: %w", err)
	}

	// Принятые апдейты дорабатываются и после отмены ctx
	b.dispatcher.Start(context.WithoutCancel(ctx))
	defer b.dispatcher.Stop()

	log.WithFields(log.Fields{
		"workers":     b.cfg.BotWorkers,
		"queue":       b.cfg.BotQueueSize,
		"timeout_sec": b.cfg.BotUpdateTimeoutSeconds,
	}).Info("Бот запущен и ожидает сообщения...")

	for {
		select {
		case <-ctx.Done():
			log.Info("Бот останавливается (ctx done)...")
			return nil

		case update, ok := <-updates:
			if !ok {
				log.Info("Канал updates закрыт, бот остановлен")
				return nil
			}
			if !b.dispatcher.Dispatch(ctx, updateMemberID(update), update) {
				return nil
			}
		}
	}
}

// handleUpdate обрабатывает один апдейт внутри воркера.
func (b *Bot) handleUpdate(ctx context.Context, update telego.Update) {
	defer middleware.RecoverFromPanic(log.Fields{"update_id": update.UpdateID})

	switch {
	case update.ChatMember != nil:
		b.handleChatMember(ctx, update.ChatMember)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

// handleChatMember обрабатывает смену статуса участника: вступление и тайм-аут.
func (b *Bot) handleChatMember(ctx context.Context, u *telego.ChatMemberUpdated) {
	if u.NewChatMember == nil || !b.chatFilter.AllowGroup(u.Chat) {
		return
	}
	user := u.NewChatMember.MemberUser()
	b.remember(ctx, &user)
	for _, ev := range chatMemberEvents(u) {
		_ = b.svc.Engine.Handle(ctx, ev)
	}
}

// handleMessage обрабатывает входящее сообщение.
func (b *Bot) handleMessage(ctx context.Context, message *telego.Message) {
	middleware.LogMessage(message)

	if !b.chatFilter.CheckAccess(message) {
		return
	}
	from := message.From
	b.remember(ctx, from)

	private := message.Chat.Type == telego.ChatTypePrivate

	// Вступление новых участников
	if len(message.NewChatMembers) > 0 {
		for i := range message.NewChatMembers {
			u := &message.NewChatMembers[i]
			b.remember(ctx, u)
			if !u.IsBot {
				_ = b.svc.Engine.Handle(ctx, events.MemberJoined{MemberID: u.ID})
			}
		}
		return
	}
	if message.LeftChatMember != nil {
		return
	}

	if private {
		// В DM проверяем админ-панель
		if b.svc.Admin != nil && b.svc.Admin.HandleAdminMessage(ctx, from.ID, message.Text) {
			return
		}
	} else {
		_ = b.svc.Engine.Handle(ctx, events.MessageReceived{AuthorID: from.ID, IsBot: from.IsBot})
	}

	if from.IsBot {
		return
	}
	cmd, isCommand := b.parser.Parse(message.Text)
	if !isCommand {
		return
	}
	log.WithFields(log.Fields{
		"kind": cmd.Kind,
		"args": cmd.Args,
	}).Debug("parsed command")

	if !b.rateLimiter.Allow(from.ID) {
		log.WithField("user_id", from.ID).Debug("rate limited")
		return
	}
	b.routeCommand(ctx, message, cmd)
}

// routeCommand маршрутизирует команду к нужному обработчику.
func (b *Bot) routeCommand(ctx context.Context, message *telego.Message, cmd Command) {
	userID := message.From.ID

	switch cmd.Kind {
	case CommandRepPlus, CommandRepMinus:
		b.handleRep(ctx, message, cmd.Delta())

	case CommandProfile:
		text, err := b.svc.Progression.Profile(ctx, userID, displayName(message.From))
		switch {
		case errors.Is(err, common.ErrUserNotFound):
			text = "❌ Профиль не найден"
		case err != nil:
			log.WithError(err).WithField("user_id", userID).Error("Profile failed")
			text = b.svc.Reputation.FailureText(err)
		}
		b.svc.Sender.Direct(ctx, userID, text)

	case CommandHelp:
		b.svc.Sender.Direct(ctx, userID, b.svc.Reputation.HelpText())
	}
}

// handleRep выполняет +rep/-rep. Результат приходит автору в личные сообщения,
// сама команда удаляется из чата, чтобы изменение оставалось анонимным.
func (b *Bot) handleRep(ctx context.Context, message *telego.Message, delta int) {
	actorID := message.From.ID

	targetID, err := resolveTarget(ctx, message, b.svc.Directory)
	if err == nil {
		_, err = b.svc.Reputation.Apply(ctx, actorID, targetID, delta)
	}
	if err != nil {
		if !common.IsRejection(err) {
			log.WithError(err).WithFields(log.Fields{
				"actor":  actorID,
				"target": targetID,
				"delta":  delta,
			}).Error("Ошибка изменения репутации")
		}
		b.svc.Sender.Direct(ctx, actorID, b.svc.Reputation.FailureText(err))
	}

	if message.Chat.Type != telego.ChatTypePrivate {
		b.deleteMessage(ctx, message)
	}
}

// deleteMessage удаляет сообщение (best-effort: у бота может не быть прав).
func (b *Bot) deleteMessage(ctx context.Context, message *telego.Message) {
	if b.deleter == nil {
		return
	}
	err := b.deleter.DeleteMessage(ctx, &telego.DeleteMessageParams{
		ChatID:    tu.ID(message.Chat.ID),
		MessageID: message.MessageID,
	})
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"chat_id":    message.Chat.ID,
			"message_id": message.MessageID,
		}).Debug("Не удалось удалить команду")
	}
}

// remember обновляет справочник имён.
func (b *Bot) remember(ctx context.Context, u *telego.User) {
	if u == nil {
		return
	}
	if err := b.svc.Directory.Remember(ctx, profileFromUser(u)); err != nil {
		log.WithError(err).WithField("user_id", u.ID).Warn("Remember failed")
	}
}
