// Package progression — service.go формирует тексты о прогрессе участника:
// уведомление о смене уровня и профиль.
package progression

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"serotonyl.ru/reputation-bot/internal/common"
	"serotonyl.ru/reputation-bot/internal/config"
	"serotonyl.ru/reputation-bot/internal/features/members"
)

// LevelChangeText — личное сообщение о смене уровня.
func LevelChangeText(ch Change) string {
	if ch.Up() {
		return fmt.Sprintf("🎉 Ваш уровень повышен до %d! Тренд-фактор: %s\n📈 Репутация изменена на %s",
			ch.To, TrendFactor(ch.To).Label(), common.FormatSigned(LevelChangeReputation))
	}
	return fmt.Sprintf("🎉 Ваш уровень понижен до %d! Тренд-фактор: %s\n📉 Репутация изменена на %s",
		ch.To, TrendFactor(ch.To).Label(), common.FormatSigned(-LevelChangeReputation))
}

// Service отдаёт профиль участника.
type Service struct {
	store members.Store
	cfg   *config.Config
	clock clockwork.Clock
	loc   *time.Location
}

// NewService создаёт сервис профиля.
func NewService(store members.Store, cfg *config.Config, clock clockwork.Clock) *Service {
	return &Service{store: store, cfg: cfg, clock: clock, loc: common.LoadLocation(cfg.AppTimezone)}
}

// Profile возвращает текст профиля участника.
// Участник без записи получает common.ErrUserNotFound.
func (s *Service) Profile(ctx context.Context, userID int64, displayName string) (string, error) {
	rec, err := s.store.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	return s.render(rec, displayName), nil
}

func (s *Service) render(rec *members.Record, displayName string) string {
	now := s.clock.Now()

	// Дневной счётчик мог устареть, если сброс ещё не прошёл
	used := rec.RepActionsToday
	if rec.LastReset == nil || common.DateBefore(*rec.LastReset, common.DateIn(now, s.loc)) {
		used = 0
	}
	left := s.cfg.RepDailyLimit - used
	if left < 0 {
		left = 0
	}

	var b strings.Builder
	fmt.Fprintf(&b, "👤 Профиль %s\n", displayName)
	fmt.Fprintf(&b, "⭐ Уровень: %d\n", rec.Level)
	fmt.Fprintf(&b, "📊 XP: %d/%d\n", rec.Experience, Requirement(rec.Level+1))
	fmt.Fprintf(&b, "💚 Репутация: %d\n", rec.Reputation)
	fmt.Fprintf(&b, "🎭 Тренд-фактор: %s\n", TrendFactor(rec.Level).Label())
	fmt.Fprintf(&b, "🗳 Осталось сегодня: %d %s", left, common.PluralizeActions(left))
	if rec.IsImmune(now) {
		fmt.Fprintf(&b, "\n🛡 Иммунитет до %s", common.FormatDateTime(*rec.ImmuneUntil, s.loc))
	}
	return b.String()
}
