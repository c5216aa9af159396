// Package filters решает, какие апдейты бот обрабатывает.
package filters

import (
	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"
)

// ChatFilter пропускает сообщения из рабочего группового чата и личные сообщения.
type ChatFilter struct {
	chatID int64 // 0 — любой групповой чат
}

func NewChatFilter(chatID int64) *ChatFilter {
	return &ChatFilter{chatID: chatID}
}

// CheckAccess проверяет сообщение: есть автор и чат разрешён.
func (f *ChatFilter) CheckAccess(message *telego.Message) bool {
	if message == nil {
		return false
	}
	if message.From == nil {
		log.WithFields(log.Fields{
			"component": "ChatFilter",
			"chat_id":   message.Chat.ID,
			"chat_type": message.Chat.Type,
		}).Debug("nil message.From (service/channel message?)")
		return false
	}
	if message.Chat.Type == telego.ChatTypePrivate {
		return true
	}
	return f.AllowGroup(message.Chat)
}

// AllowGroup проверяет групповой чат (для апдейтов chat_member).
func (f *ChatFilter) AllowGroup(chat telego.Chat) bool {
	if chat.Type != telego.ChatTypeGroup && chat.Type != telego.ChatTypeSupergroup {
		return false
	}
	if f.chatID != 0 && chat.ID != f.chatID {
		log.WithFields(log.Fields{
			"component": "ChatFilter",
			"chat_id":   chat.ID,
			"allowed":   f.chatID,
		}).Debug("deny: not the configured chat")
		return false
	}
	return true
}
