// Package reputation реализует ручное изменение репутации (+rep / -rep):
// проверки уровня, иммунитета, кулдауна и дневного лимита, автоматический
// иммунитет при волне негатива и журнал изменений.
package reputation

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/reputation-bot/internal/common"
	"serotonyl.ru/reputation-bot/internal/config"
	"serotonyl.ru/reputation-bot/internal/features/members"
	"serotonyl.ru/reputation-bot/internal/metrics"
	"serotonyl.ru/reputation-bot/internal/notify"
)

// Result — итог успешного изменения репутации.
type Result struct {
	Entry            *members.AuditEntry
	TargetReputation int
	ImmunityGranted  bool
	ImmuneUntil      time.Time
}

// Service управляет изменениями репутации.
type Service struct {
	store   members.Store
	members *members.Service
	cfg     *config.Config
	clock   clockwork.Clock
	sender  *notify.Sender
	loc     *time.Location
}

// NewService создаёт сервис репутации.
func NewService(store members.Store, directory *members.Service, cfg *config.Config, clock clockwork.Clock, sender *notify.Sender) *Service {
	return &Service{
		store:   store,
		members: directory,
		cfg:     cfg,
		clock:   clock,
		sender:  sender,
		loc:     common.LoadLocation(cfg.AppTimezone),
	}
}

// Today возвращает текущую дату в часовом поясе чата.
func (s *Service) Today() time.Time {
	return common.DateIn(s.clock.Now(), s.loc)
}

// Apply изменяет репутацию target на delta (+1 или -1) от имени actor.
//
// Проверки по порядку: самому себе, уровень автора, иммунитет цели (только для -1),
// кулдаун пары автор→цель, дневной лимит автора. Любой отказ не меняет состояние.
// Изменение записей обоих участников и запись в журнал выполняются атомарно.
func (s *Service) Apply(ctx context.Context, actorID, targetID int64, delta int) (*Result, error) {
	if delta != 1 && delta != -1 {
		return nil, common.ErrInvalidDelta
	}
	if actorID == targetID {
		metrics.RepChanges.WithLabelValues(metrics.ResultRejected).Inc()
		return nil, common.ErrSelfTarget
	}

	now := s.clock.Now()
	today := common.DateIn(now, s.loc)
	var res Result

	err := s.store.Update(ctx, []int64{actorID, targetID}, func(tx members.Tx) error {
		actor := tx.Record(actorID)
		target := tx.Record(targetID)
		res = Result{}

		if actor.Level < s.cfg.RepMinLevel {
			return common.ErrInsufficientLevel
		}
		if delta < 0 && target.IsImmune(now) {
			return common.ErrTargetImmune
		}
		actor.RollDaily(today)
		if left := actor.CooldownRemaining(targetID, now, s.cfg.RepCooldown); left > 0 {
			return &common.CooldownError{Remaining: left}
		}
		if actor.RepActionsToday >= s.cfg.RepDailyLimit {
			return common.ErrDailyLimitExceeded
		}

		target.Reputation += delta
		if delta < 0 {
			if target.AddNegativeReport(now, s.cfg.RepReportWindow) >= s.cfg.RepReportThreshold {
				until := now.Add(s.cfg.RepImmunity)
				target.ImmuneUntil = &until
				res.ImmunityGranted = true
				res.ImmuneUntil = until
			}
		}

		actor.PruneCooldowns(now, s.cfg.RepCooldown)
		actor.RepCooldowns[targetID] = now
		actor.RepActionsToday++
		given := now
		actor.LastRepGiven = &given

		entry := &members.AuditEntry{
			Code:      common.NewSessionCode(),
			Action:    members.ActionFor(delta),
			FromUser:  actorID,
			ToUser:    targetID,
			Timestamp: now,
		}
		if err := tx.AppendAudit(ctx, entry); err != nil {
			return err
		}
		res.Entry = entry
		res.TargetReputation = target.Reputation
		return nil
	})
	if err != nil {
		if common.IsRejection(err) {
			metrics.RepChanges.WithLabelValues(metrics.ResultRejected).Inc()
			log.WithFields(log.Fields{
				"actor":  actorID,
				"target": targetID,
				"delta":  delta,
			}).WithError(err).Debug("Изменение репутации отклонено")
		} else {
			metrics.RepChanges.WithLabelValues(metrics.ResultFailed).Inc()
		}
		return nil, err
	}

	metrics.RepChanges.WithLabelValues(metrics.ResultApplied).Inc()
	log.WithFields(log.Fields{
		"code":   res.Entry.Code,
		"actor":  actorID,
		"target": targetID,
		"delta":  delta,
	}).Info("Репутация изменена")

	s.notifyApplied(ctx, &res)
	return &res, nil
}

// notifyApplied рассылает уведомления после фиксации изменения.
func (s *Service) notifyApplied(ctx context.Context, res *Result) {
	e := res.Entry
	s.sender.Direct(ctx, e.FromUser, fmt.Sprintf("✅ Жалоба/похвала отправлена #%s", e.Code))

	if e.Action == members.ActionPlus {
		s.sender.Direct(ctx, e.ToUser, "💚 Ваша репутация анонимно повышена")
	} else {
		s.sender.Direct(ctx, e.ToUser, "📉 Ваша репутация анонимно понижена")
	}

	if res.ImmunityGranted {
		metrics.ImmunityGranted.Inc()
		log.WithFields(log.Fields{
			"user_id": e.ToUser,
			"until":   res.ImmuneUntil,
		}).Info("Выдан иммунитет к негативной репутации")
		s.sender.Direct(ctx, e.ToUser, fmt.Sprintf(
			"🛡 Слишком много негативных оценок за короткое время. Иммунитет к -rep до %s",
			common.FormatDateTime(res.ImmuneUntil, s.loc)))
	}

	if s.cfg.LogChannelID != 0 {
		s.sender.LogChannel(ctx, LogLine(e, s.members.DisplayName(ctx, e.FromUser), s.members.DisplayName(ctx, e.ToUser)))
	}
}

// LogLine — строка для канала журнала: "`K3ZQ9A` +rep | actor → target".
func LogLine(e *members.AuditEntry, actor, target string) string {
	action := "+rep"
	if e.Action == members.ActionMinus {
		action = "-rep"
	}
	return fmt.Sprintf("`%s` %s | %s → %s", e.Code, action, actor, target)
}

// ResetDaily обнуляет дневные счётчики всех участников, у кого наступила новая дата.
// Вызывается планировщиком каждый час; повторный вызов в ту же дату ничего не меняет.
func (s *Service) ResetDaily(ctx context.Context) (int64, error) {
	n, err := s.store.ResetDailyCounters(ctx, s.Today())
	if err != nil {
		return 0, err
	}
	metrics.DailyResets.Add(float64(n))
	return n, nil
}
