// Package experience начисляет опыт за активность в чате и пересчитывает уровень.
package experience

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/reputation-bot/internal/config"
	"serotonyl.ru/reputation-bot/internal/features/members"
	"serotonyl.ru/reputation-bot/internal/features/progression"
	"serotonyl.ru/reputation-bot/internal/metrics"
	"serotonyl.ru/reputation-bot/internal/notify"
)

// Award — итог начисления за одно сообщение.
type Award struct {
	XP            int                // Всего начислено
	NewcomerBonus bool               // Был ли бонус новичка
	Level         progression.Change // Смена уровня (From == To — без смены)
}

// Service начисляет опыт.
type Service struct {
	store  members.Store
	cfg    *config.Config
	clock  clockwork.Clock
	sender *notify.Sender
}

// NewService создаёт сервис опыта.
func NewService(store members.Store, cfg *config.Config, clock clockwork.Clock, sender *notify.Sender) *Service {
	return &Service{store: store, cfg: cfg, clock: clock, sender: sender}
}

// OnMessage начисляет опыт автору сообщения (сообщения ботов отфильтрованы раньше).
// Бонус новичка начисляется за КАЖДОЕ сообщение в первые XP_NEWCOMER_WINDOW
// после появления участника.
func (s *Service) OnMessage(ctx context.Context, authorID int64) (*Award, error) {
	now := s.clock.Now()
	var award Award

	err := s.store.Update(ctx, []int64{authorID}, func(tx members.Tx) error {
		rec := tx.Record(authorID)
		award = Award{}
		if now.Sub(rec.JoinTime) < s.cfg.XPNewcomerWindow {
			rec.Experience += s.cfg.XPNewcomerBonus
			award.XP += s.cfg.XPNewcomerBonus
			award.NewcomerBonus = true
		}
		rec.Experience += s.cfg.XPPerMessage
		award.XP += s.cfg.XPPerMessage
		award.Level = progression.Recompute(rec)
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ExperienceAwarded.Add(float64(award.XP))
	if award.NewcomerBonus {
		s.sender.Direct(ctx, authorID, fmt.Sprintf("🎁 Бонус %d XP за активность сразу после входа!", s.cfg.XPNewcomerBonus))
	}
	if award.Level.Changed() {
		direction := "down"
		if award.Level.Up() {
			direction = "up"
		}
		metrics.LevelChanges.WithLabelValues(direction).Inc()
		log.WithFields(log.Fields{
			"user_id": authorID,
			"from":    award.Level.From,
			"to":      award.Level.To,
		}).Info("Уровень участника изменён")
		s.sender.Direct(ctx, authorID, progression.LevelChangeText(award.Level))
	}
	return &award, nil
}

// OnJoin создаёт запись для вступившего участника. С этого момента
// отсчитывается окно бонуса новичка.
func (s *Service) OnJoin(ctx context.Context, memberID int64) error {
	created, err := s.store.Ensure(ctx, memberID, s.clock.Now())
	if err != nil {
		return err
	}
	if created {
		log.WithField("user_id", memberID).Debug("Создана запись нового участника")
	}
	return nil
}
