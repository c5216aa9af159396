// Package presence меняет репутацию по событиям присутствия:
// короткие и длинные сессии в голосовых каналах и тайм-ауты модерации.
package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/reputation-bot/internal/common"
	"serotonyl.ru/reputation-bot/internal/config"
	"serotonyl.ru/reputation-bot/internal/events"
	"serotonyl.ru/reputation-bot/internal/features/members"
	"serotonyl.ru/reputation-bot/internal/metrics"
	"serotonyl.ru/reputation-bot/internal/notify"
)

// Outcome — итог закрытия голосовой сессии.
type Outcome string

const (
	OutcomeNone    Outcome = ""        // Событие не закрыло сессию
	OutcomeShort   Outcome = "short"   // Меньше VOICE_SHORT_SESSION: -1
	OutcomeLong    Outcome = "long"    // Не меньше VOICE_LONG_SESSION: +1
	OutcomeNeutral Outcome = "neutral" // Между порогами: без изменений
)

const (
	shortSessionText = "📉 Репутация уменьшена за выход из голосового канала"
	timeoutText      = "📉 Репутация уменьшена за тайм-аут"
)

// errNoOpenSession откатывает Update, если закрывать нечего.
var errNoOpenSession = errors.New("нет открытой голосовой сессии")

// Service обрабатывает события присутствия.
type Service struct {
	store  members.Store
	cfg    *config.Config
	clock  clockwork.Clock
	sender *notify.Sender
}

// NewService создаёт сервис присутствия.
func NewService(store members.Store, cfg *config.Config, clock clockwork.Clock, sender *notify.Sender) *Service {
	return &Service{store: store, cfg: cfg, clock: clock, sender: sender}
}

// OnVoiceState обрабатывает смену голосового канала.
// Вход открывает сессию, выход закрывает её и оценивает длительность,
// переход между каналами игнорируется.
func (s *Service) OnVoiceState(ctx context.Context, ev events.VoiceStateChanged) (Outcome, error) {
	switch {
	case ev.Joined():
		return OutcomeNone, s.open(ctx, ev.MemberID, ev.AfterChannel)
	case ev.Left():
		return s.close(ctx, ev.MemberID)
	default:
		return OutcomeNone, nil
	}
}

func (s *Service) open(ctx context.Context, memberID, channelID int64) error {
	now := s.clock.Now()
	var stale []*members.VoiceSession

	err := s.store.Update(ctx, []int64{memberID}, func(tx members.Tx) error {
		var err error
		stale, err = tx.OpenVoiceSession(ctx, &members.VoiceSession{
			UserID:    memberID,
			ChannelID: channelID,
			JoinTime:  now,
		})
		return err
	})
	if err != nil {
		return err
	}
	if len(stale) > 0 {
		log.WithFields(log.Fields{
			"user_id":  memberID,
			"sessions": len(stale),
		}).Warn("Вход в голосовой канал при незакрытой сессии, старые сессии закрыты")
	}
	return nil
}

func (s *Service) close(ctx context.Context, memberID int64) (Outcome, error) {
	now := s.clock.Now()
	var (
		outcome Outcome
		length  time.Duration
	)

	err := s.store.Update(ctx, []int64{memberID}, func(tx members.Tx) error {
		session, err := tx.CloseVoiceSession(ctx, memberID, now)
		if err != nil {
			return err
		}
		if session == nil {
			return errNoOpenSession
		}
		length = session.Duration()
		rec := tx.Record(memberID)
		switch {
		case length < s.cfg.VoiceShortSession:
			rec.Reputation--
			outcome = OutcomeShort
		case length >= s.cfg.VoiceLongSession:
			rec.Reputation++
			outcome = OutcomeLong
		default:
			outcome = OutcomeNeutral
		}
		return nil
	})
	if errors.Is(err, errNoOpenSession) {
		log.WithField("user_id", memberID).Warn("Выход из голосового канала без открытой сессии")
		return OutcomeNone, nil
	}
	if err != nil {
		return OutcomeNone, err
	}

	switch outcome {
	case OutcomeShort:
		s.sender.Direct(ctx, memberID, shortSessionText)
	case OutcomeLong:
		s.sender.Direct(ctx, memberID, fmt.Sprintf("💚 +1 репутация за активность в голосовом канале (%s и больше)",
			common.FormatDuration(s.cfg.VoiceLongSession)))
	}
	metrics.VoiceSessionsClosed.WithLabelValues(string(outcome)).Inc()
	log.WithFields(log.Fields{
		"user_id":  memberID,
		"duration": length,
		"outcome":  outcome,
	}).Debug("Голосовая сессия закрыта")
	return outcome, nil
}

// OnTimedOut снимает 1 репутацию за тайм-аут.
// Шлюз вызывает его только при переходе «без тайм-аута» → «в тайм-ауте».
func (s *Service) OnTimedOut(ctx context.Context, memberID int64) error {
	err := s.store.Update(ctx, []int64{memberID}, func(tx members.Tx) error {
		tx.Record(memberID).Reputation--
		return nil
	})
	if err != nil {
		return err
	}
	metrics.TimeoutsPenalized.Inc()
	log.WithField("user_id", memberID).Info("Репутация уменьшена за тайм-аут")
	s.sender.Direct(ctx, memberID, timeoutText)
	return nil
}
