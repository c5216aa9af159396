package filters

import (
	"testing"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
)

func message(chatID int64, chatType string) *telego.Message {
	return &telego.Message{
		From: &telego.User{ID: 1},
		Chat: telego.Chat{ID: chatID, Type: chatType},
	}
}

func TestChatFilter_ConfiguredChat(t *testing.T) {
	f := NewChatFilter(-100)

	assert.True(t, f.CheckAccess(message(-100, telego.ChatTypeSupergroup)))
	assert.False(t, f.CheckAccess(message(-200, telego.ChatTypeSupergroup)))
	assert.True(t, f.CheckAccess(message(1, telego.ChatTypePrivate)))
	assert.False(t, f.CheckAccess(message(-300, telego.ChatTypeChannel)))
}

func TestChatFilter_AnyGroup(t *testing.T) {
	f := NewChatFilter(0)

	assert.True(t, f.CheckAccess(message(-200, telego.ChatTypeGroup)))
	assert.True(t, f.CheckAccess(message(-300, telego.ChatTypeSupergroup)))
	assert.False(t, f.CheckAccess(message(-300, telego.ChatTypeChannel)))
}

func TestChatFilter_NoAuthor(t *testing.T) {
	f := NewChatFilter(0)
	msg := message(-100, telego.ChatTypeSupergroup)
	msg.From = nil

	assert.False(t, f.CheckAccess(msg))
	assert.False(t, f.CheckAccess(nil))
}
