// Package notify доставляет уведомления участникам (личные сообщения)
// и в канал журнала. Доставка best-effort: ошибка не отменяет уже
// применённое изменение, она только логируется.
package notify

import (
	"context"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/reputation-bot/internal/metrics"
)

// Notifier — транспорт уведомлений. Реализация для Telegram — bot.Notifier.
type Notifier interface {
	SendDirect(ctx context.Context, memberID int64, text string) error
	SendToLogChannel(ctx context.Context, text string) error
}

// Sender оборачивает Notifier и проглатывает ошибки доставки.
type Sender struct {
	n Notifier
}

// NewSender создаёт отправителя уведомлений.
func NewSender(n Notifier) *Sender {
	return &Sender{n: n}
}

// Direct отправляет личное сообщение участнику.
func (s *Sender) Direct(ctx context.Context, memberID int64, text string) {
	if s == nil || s.n == nil {
		return
	}
	if err := s.n.SendDirect(ctx, memberID, text); err != nil {
		metrics.NotificationsFailed.WithLabelValues("direct").Inc()
		log.WithError(err).WithField("user_id", memberID).Debug("DM не доставлено")
	}
}

// LogChannel публикует строку в канал журнала.
func (s *Sender) LogChannel(ctx context.Context, text string) {
	if s == nil || s.n == nil {
		return
	}
	if err := s.n.SendToLogChannel(ctx, text); err != nil {
		metrics.NotificationsFailed.WithLabelValues("log_channel").Inc()
		log.WithError(err).Debug("Сообщение в канал журнала не доставлено")
	}
}
