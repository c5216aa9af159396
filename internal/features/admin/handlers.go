// Package admin — handlers.go обрабатывает команды админ-панели в личных сообщениях.
// Поток: /login → пароль → команды /audit, /journal, /member, /logout.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/reputation-bot/internal/common"
	"serotonyl.ru/reputation-bot/internal/features/members"
	"serotonyl.ru/reputation-bot/internal/notify"
)

const menuText = `🛠 Админ-панель
/audit <КОД> — найти изменение репутации по коду
/journal — последние изменения репутации
/member <user_id> — запись участника
/logout — выйти`

// Handler обрабатывает админ-команды.
type Handler struct {
	service   *Service
	directory *members.Service
	sender    *notify.Sender
	loc       *time.Location
}

// NewHandler создаёт обработчик админ-панели.
func NewHandler(service *Service, directory *members.Service, sender *notify.Sender) *Handler {
	return &Handler{
		service:   service,
		directory: directory,
		sender:    sender,
		loc:       common.LoadLocation(service.cfg.AppTimezone),
	}
}

// HandleAdminMessage обрабатывает сообщение администратора в DM.
// Возвращает false, если сообщение не относится к панели (или автор не админ).
func (h *Handler) HandleAdminMessage(ctx context.Context, userID int64, text string) bool {
	if !h.service.IsAdmin(userID) {
		return false
	}
	text = strings.TrimSpace(text)

	if state := h.service.GetState(userID); state != nil && state.State == StateAwaitingPassword {
		h.service.ClearState(userID)
		h.login(ctx, userID, text)
		return true
	}

	cmd, arg, _ := strings.Cut(text, " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(cmd) {
	case "/login":
		if arg == "" {
			h.service.SetState(userID, StateAwaitingPassword)
			h.reply(ctx, userID, "🔐 Введите пароль для доступа к админ-панели:")
			return true
		}
		h.login(ctx, userID, arg)
		return true
	case "/logout":
		if err := h.service.Logout(ctx, userID); err != nil {
			log.WithError(err).Error("Ошибка выхода из админ-панели")
		}
		h.reply(ctx, userID, "👋 Сессия закрыта")
		return true
	case "/admin", "/audit", "/journal", "/member":
	default:
		return false
	}

	if !h.service.HasActiveSession(ctx, userID) {
		h.reply(ctx, userID, "🔐 Сначала войдите: /login")
		return true
	}

	switch strings.ToLower(cmd) {
	case "/admin":
		h.reply(ctx, userID, menuText)
	case "/audit":
		h.audit(ctx, userID, arg)
	case "/journal":
		h.journal(ctx, userID)
	case "/member":
		h.member(ctx, userID, arg)
	}
	return true
}

func (h *Handler) login(ctx context.Context, userID int64, password string) {
	if err := h.service.VerifyPassword(ctx, userID, password); err != nil {
		if !isAuthError(err) {
			log.WithError(err).Error("Ошибка проверки пароля")
			err = errors.New("внутренняя ошибка, попробуйте позже")
		}
		h.reply(ctx, userID, fmt.Sprintf("❌ %s", err.Error()))
		return
	}
	h.reply(ctx, userID, "✅ Аутентификация успешна!\n\n"+menuText)
}

func isAuthError(err error) bool {
	for _, target := range []error{
		common.ErrNotAdmin, common.ErrWrongPassword, common.ErrTooManyAttempts, common.ErrAdminDisabled,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (h *Handler) audit(ctx context.Context, userID int64, code string) {
	entries, err := h.service.FindAudit(ctx, code)
	if err != nil {
		h.reply(ctx, userID, fmt.Sprintf("❌ %s", err.Error()))
		return
	}
	if len(entries) == 0 {
		h.reply(ctx, userID, "Записей с таким кодом нет")
		return
	}
	h.reply(ctx, userID, h.formatEntries(ctx, entries))
}

func (h *Handler) journal(ctx context.Context, userID int64) {
	entries, err := h.service.Journal(ctx)
	if err != nil {
		log.WithError(err).Error("Ошибка чтения журнала")
		h.reply(ctx, userID, "❌ Не удалось прочитать журнал")
		return
	}
	if len(entries) == 0 {
		h.reply(ctx, userID, "Журнал пуст")
		return
	}
	h.reply(ctx, userID, h.formatEntries(ctx, entries))
}

func (h *Handler) member(ctx context.Context, userID int64, arg string) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		h.reply(ctx, userID, "❌ Использование: /member <user_id>")
		return
	}
	rec, err := h.service.Member(ctx, id)
	if errors.Is(err, common.ErrUserNotFound) {
		h.reply(ctx, userID, "❌ Участник не найден")
		return
	}
	if err != nil {
		log.WithError(err).Error("Ошибка чтения записи участника")
		h.reply(ctx, userID, "❌ Не удалось прочитать запись")
		return
	}
	h.reply(ctx, userID, h.formatRecord(ctx, rec))
}

func (h *Handler) formatEntries(ctx context.Context, entries []*members.AuditEntry) string {
	var sb strings.Builder
	for i, e := range entries {
		if i > 0 {
			sb.WriteString("\n")
		}
		action := "+rep"
		if e.Action == members.ActionMinus {
			action = "-rep"
		}
		fmt.Fprintf(&sb, "%s `%s` %s | %s → %s",
			common.FormatDateTime(e.Timestamp, h.loc), e.Code, action,
			h.directory.DisplayName(ctx, e.FromUser), h.directory.DisplayName(ctx, e.ToUser))
	}
	return sb.String()
}

func (h *Handler) formatRecord(ctx context.Context, r *members.Record) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "👤 %s (id %d)\n", h.directory.DisplayName(ctx, r.UserID), r.UserID)
	fmt.Fprintf(&sb, "XP: %d, уровень: %d, репутация: %d\n", r.Experience, r.Level, r.Reputation)
	fmt.Fprintf(&sb, "Изменений сегодня: %d", r.RepActionsToday)
	if r.LastReset != nil {
		fmt.Fprintf(&sb, " (сброс %s)", common.DateString(*r.LastReset))
	}
	if r.LastRepGiven != nil {
		fmt.Fprintf(&sb, "\nПоследнее изменение чужой репутации: %s", common.FormatDateTime(*r.LastRepGiven, h.loc))
	}
	if r.ImmuneUntil != nil {
		fmt.Fprintf(&sb, "\nИммунитет до: %s", common.FormatDateTime(*r.ImmuneUntil, h.loc))
	}
	fmt.Fprintf(&sb, "\nНегативных оценок в окне: %d", len(r.RecentNegativeReports))
	for _, target := range r.CooldownTargets() {
		fmt.Fprintf(&sb, "\nКулдаун → %s с %s",
			h.directory.DisplayName(ctx, target), common.FormatDateTime(r.RepCooldowns[target], h.loc))
	}
	fmt.Fprintf(&sb, "\nВ чате с: %s", common.FormatDateTime(r.JoinTime, h.loc))
	return sb.String()
}

func (h *Handler) reply(ctx context.Context, userID int64, text string) {
	h.sender.Direct(ctx, userID, text)
}
