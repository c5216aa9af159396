package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/reputation-bot/internal/bot/filters"
	"serotonyl.ru/reputation-bot/internal/bot/middleware"
	"serotonyl.ru/reputation-bot/internal/config"
	"serotonyl.ru/reputation-bot/internal/db/memory"
	"serotonyl.ru/reputation-bot/internal/engine"
	"serotonyl.ru/reputation-bot/internal/features/admin"
	"serotonyl.ru/reputation-bot/internal/features/experience"
	"serotonyl.ru/reputation-bot/internal/features/members"
	"serotonyl.ru/reputation-bot/internal/features/presence"
	"serotonyl.ru/reputation-bot/internal/features/progression"
	"serotonyl.ru/reputation-bot/internal/features/reputation"
	"serotonyl.ru/reputation-bot/internal/notify"
)

const testChatID = -1001

type fakeDeleter struct {
	mu      sync.Mutex
	deleted []int
}

func (d *fakeDeleter) DeleteMessage(ctx context.Context, params *telego.DeleteMessageParams) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deleted = append(d.deleted, params.MessageID)
	return nil
}

type failingUpdates struct{}

func (failingUpdates) UpdatesViaLongPolling(ctx context.Context, params *telego.GetUpdatesParams, options ...telego.LongPollingOption) (<-chan telego.Update, error) {
	return nil, errors.New("unauthorized")
}

type gateway struct {
	bot     *Bot
	store   *memory.Store
	rec     *notify.Recorder
	deleter *fakeDeleter
}

func newGateway(t *testing.T) *gateway {
	t.Helper()
	cfg := &config.Config{
		ChatID:             testChatID,
		AppTimezone:        "UTC",
		BotWorkers:         2,
		BotQueueSize:       4,
		RateLimitRequests:  100,
		RateLimitWindow:    time.Minute,
		RepMinLevel:        2,
		RepDailyLimit:      7,
		RepCooldown:        72 * time.Hour,
		RepReportWindow:    20 * time.Minute,
		RepReportThreshold: 5,
		RepImmunity:        5 * time.Hour,
		XPPerMessage:       2,
		XPNewcomerBonus:    10,
		XPNewcomerWindow:   time.Minute,
		VoiceShortSession:  time.Minute,
		VoiceLongSession:   2 * time.Hour,
	}
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	store := memory.NewStore(clock)
	rec := &notify.Recorder{}
	sender := notify.NewSender(rec)
	directory := members.NewService(store)

	adminService := admin.NewService(memory.NewAdminStore(), store, cfg, clock)
	svc := Services{
		Engine: engine.New(
			experience.NewService(store, cfg, clock, sender),
			presence.NewService(store, cfg, clock, sender),
		),
		Directory:   directory,
		Reputation:  reputation.NewService(store, directory, cfg, clock, sender),
		Progression: progression.NewService(store, cfg, clock),
		Admin:       admin.NewHandler(adminService, directory, sender),
		Sender:      sender,
	}

	b := New(nil, "rep_bot", cfg, filters.NewChatFilter(testChatID), svc)
	t.Cleanup(b.rateLimiter.Close)
	d := &fakeDeleter{}
	b.deleter = d
	return &gateway{bot: b, store: store, rec: rec, deleter: d}
}

func (g *gateway) setLevel(t *testing.T, userID int64, level int) {
	t.Helper()
	require.NoError(t, g.store.Update(context.Background(), []int64{userID}, func(tx members.Tx) error {
		r := tx.Record(userID)
		r.Level = level
		r.Experience = progression.Requirement(level)
		return nil
	}))
}

func (g *gateway) record(t *testing.T, userID int64) *members.Record {
	t.Helper()
	r, err := g.store.Get(context.Background(), userID)
	require.NoError(t, err)
	return r
}

func groupMessage(id int, from int64, text string) *telego.Message {
	return &telego.Message{
		MessageID: id,
		From:      &telego.User{ID: from, FirstName: "user"},
		Chat:      telego.Chat{ID: testChatID, Type: telego.ChatTypeSupergroup},
		Text:      text,
	}
}

func TestBot_GroupMessageAwardsExperience(t *testing.T) {
	g := newGateway(t)

	g.bot.handleUpdate(context.Background(), telego.Update{Message: groupMessage(1, 10, "привет")})

	r := g.record(t, 10)
	assert.Equal(t, 12, r.Experience) // 2 за сообщение + 10 бонус новичка
}

func TestBot_IgnoresOtherChats(t *testing.T) {
	g := newGateway(t)
	msg := groupMessage(1, 10, "привет")
	msg.Chat.ID = -2002

	g.bot.handleUpdate(context.Background(), telego.Update{Message: msg})

	_, err := g.store.Get(context.Background(), 10)
	assert.Error(t, err)
}

func TestBot_RepByReply(t *testing.T) {
	g := newGateway(t)
	const a, b = 1, 2
	g.setLevel(t, a, 5)
	g.setLevel(t, b, 3)

	msg := groupMessage(55, a, "+реп")
	msg.ReplyToMessage = &telego.Message{From: &telego.User{ID: b, FirstName: "b"}}
	g.bot.handleUpdate(context.Background(), telego.Update{Message: msg})

	assert.Equal(t, 1, g.record(t, b).Reputation)
	assert.Equal(t, 1, g.record(t, a).RepActionsToday)
	assert.Equal(t, []int{55}, g.deleter.deleted)

	dms := g.rec.To(a)
	require.NotEmpty(t, dms)
	assert.True(t, strings.HasPrefix(dms[len(dms)-1], "✅ Жалоба/похвала отправлена #"))
}

func TestBot_RepByUsername(t *testing.T) {
	g := newGateway(t)
	const a, b = 1, 2
	g.setLevel(t, a, 5)

	// Бот знает @vasya, потому что тот писал в чат
	hello := groupMessage(1, b, "всем привет")
	hello.From.Username = "Vasya"
	g.bot.handleUpdate(context.Background(), telego.Update{Message: hello})

	msg := groupMessage(2, a, "-реп @vasya")
	msg.Entities = []telego.MessageEntity{{Type: telego.EntityTypeMention, Offset: 5, Length: 6}}
	g.bot.handleUpdate(context.Background(), telego.Update{Message: msg})

	assert.Equal(t, -1, g.record(t, b).Reputation)
}

func TestBot_RepWithoutTarget(t *testing.T) {
	g := newGateway(t)
	g.setLevel(t, 1, 5)

	g.bot.handleUpdate(context.Background(), telego.Update{Message: groupMessage(7, 1, "+rep")})

	assert.Contains(t, g.rec.To(1), "❌ Не удалось определить целевого пользователя")
	assert.Equal(t, []int{7}, g.deleter.deleted)
}

func TestBot_RepRejectedForLowLevel(t *testing.T) {
	g := newGateway(t)

	msg := groupMessage(3, 1, "+rep")
	msg.ReplyToMessage = &telego.Message{From: &telego.User{ID: 2}}
	g.bot.handleUpdate(context.Background(), telego.Update{Message: msg})

	assert.Contains(t, g.rec.To(1), "❌ Необходим 2+ уровень для изменения репутации")
	_, err := g.store.Get(context.Background(), 2)
	assert.Error(t, err)
}

func TestBot_ProfileAndHelp(t *testing.T) {
	g := newGateway(t)

	g.bot.handleUpdate(context.Background(), telego.Update{Message: groupMessage(1, 10, "!профиль")})
	g.bot.handleUpdate(context.Background(), telego.Update{Message: groupMessage(2, 10, "/help")})

	dms := g.rec.To(10)
	require.Len(t, dms, 4) // бонус новичка, профиль, бонус новичка, справка
	assert.Contains(t, dms[1], "⭐ Уровень: 0")
	assert.Equal(t, g.bot.svc.Reputation.HelpText(), dms[3])
	assert.Empty(t, g.deleter.deleted)
}

func TestBot_ProfileNotFoundInPrivate(t *testing.T) {
	g := newGateway(t)
	msg := &telego.Message{
		MessageID: 1,
		From:      &telego.User{ID: 10},
		Chat:      telego.Chat{ID: 10, Type: telego.ChatTypePrivate},
		Text:      "/profile",
	}

	g.bot.handleUpdate(context.Background(), telego.Update{Message: msg})

	assert.Equal(t, []string{"❌ Профиль не найден"}, g.rec.To(10))
}

func TestBot_TimeoutTransition(t *testing.T) {
	g := newGateway(t)
	upd := telego.Update{ChatMember: &telego.ChatMemberUpdated{
		Chat:          telego.Chat{ID: testChatID, Type: telego.ChatTypeSupergroup},
		OldChatMember: member(5),
		NewChatMember: restricted(5, false),
	}}

	g.bot.handleUpdate(context.Background(), upd)
	// повторный апдейт того же ограничения не штрафует
	upd.ChatMember.OldChatMember = restricted(5, false)
	g.bot.handleUpdate(context.Background(), upd)

	assert.Equal(t, -1, g.record(t, 5).Reputation)
}

func TestBot_NewChatMembers(t *testing.T) {
	g := newGateway(t)
	msg := groupMessage(1, 10, "")
	msg.NewChatMembers = []telego.User{{ID: 11, FirstName: "new"}, {ID: 12, IsBot: true}}

	g.bot.handleUpdate(context.Background(), telego.Update{Message: msg})

	r := g.record(t, 11)
	assert.Equal(t, 0, r.Experience)
	_, err := g.store.Get(context.Background(), 12)
	assert.Error(t, err)
}

func TestBot_RateLimit(t *testing.T) {
	g := newGateway(t)
	g.bot.rateLimiter.Close()
	g.bot.rateLimiter = middleware.NewRateLimiter(1, time.Hour)
	t.Cleanup(g.bot.rateLimiter.Close)

	g.bot.handleUpdate(context.Background(), telego.Update{Message: groupMessage(1, 10, "/help")})
	g.bot.handleUpdate(context.Background(), telego.Update{Message: groupMessage(2, 10, "/help")})

	var help int
	for _, text := range g.rec.To(10) {
		if text == g.bot.svc.Reputation.HelpText() {
			help++
		}
	}
	assert.Equal(t, 1, help)
}

func TestBot_StartFailureStopsRateLimiter(t *testing.T) {
	g := newGateway(t)
	g.bot.updates = failingUpdates{}

	err := g.bot.Start(context.Background())
	require.Error(t, err)

	select {
	case <-g.bot.rateLimiter.Done():
	default:
		t.Fatal("rate limiter cleanup still running")
	}
}
