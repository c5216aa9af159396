package bot

import (
	"context"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// Notifier доставляет уведомления через Telegram: личные сообщения и канал журнала.
// Ошибки возвращаются как есть, их проглатывает notify.Sender.
type Notifier struct {
	api          *telego.Bot
	logChannelID int64
}

// NewNotifier создаёт Notifier. logChannelID == 0 — канал журнала выключен.
func NewNotifier(api *telego.Bot, logChannelID int64) *Notifier {
	return &Notifier{api: api, logChannelID: logChannelID}
}

// SendDirect отправляет личное сообщение. Если участник не писал боту,
// Telegram вернёт 403 — это обычная ситуация.
func (n *Notifier) SendDirect(ctx context.Context, memberID int64, text string) error {
	_, err := n.api.SendMessage(ctx, tu.Message(tu.ID(memberID), text))
	return err
}

// SendToLogChannel публикует строку в канал журнала.
func (n *Notifier) SendToLogChannel(ctx context.Context, text string) error {
	if n.logChannelID == 0 {
		return nil
	}
	_, err := n.api.SendMessage(ctx, tu.Message(tu.ID(n.logChannelID), text))
	return err
}
