// Package engine связывает события платформы с сервисами опыта и присутствия.
// Engine — явная структура с зависимостями, без глобального состояния.
package engine

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/reputation-bot/internal/events"
	"serotonyl.ru/reputation-bot/internal/features/experience"
	"serotonyl.ru/reputation-bot/internal/features/presence"
	"serotonyl.ru/reputation-bot/internal/metrics"
)

// Engine маршрутизирует события.
type Engine struct {
	experience *experience.Service
	presence   *presence.Service
}

// New создаёт движок.
func New(exp *experience.Service, pres *presence.Service) *Engine {
	return &Engine{experience: exp, presence: pres}
}

// Handle обрабатывает одно событие. События одного участника должны
// подаваться последовательно (это обеспечивает диспетчер шлюза).
func (e *Engine) Handle(ctx context.Context, ev events.Event) error {
	var err error
	switch ev := ev.(type) {
	case events.MessageReceived:
		if ev.IsBot {
			return nil
		}
		_, err = e.experience.OnMessage(ctx, ev.AuthorID)
	case events.MemberJoined:
		err = e.experience.OnJoin(ctx, ev.MemberID)
	case events.VoiceStateChanged:
		_, err = e.presence.OnVoiceState(ctx, ev)
	case events.MemberTimedOut:
		err = e.presence.OnTimedOut(ctx, ev.MemberID)
	default:
		return fmt.Errorf("неизвестное событие %T", ev)
	}
	metrics.EventsProcessed.WithLabelValues(ev.Type()).Inc()
	if err != nil {
		log.WithFields(log.Fields{
			"event":   ev.Type(),
			"user_id": ev.Member(),
		}).WithError(err).Error("Ошибка обработки события")
	}
	return err
}
