// Package events описывает события платформы, которые обрабатывает движок.
// Шлюз (internal/bot) переводит апдейты Telegram в эти структуры.
package events

// Event — событие платформы. Member возвращает участника, к которому относится
// событие: по нему шлюз выбирает воркер, чтобы события одного участника
// обрабатывались по порядку.
type Event interface {
	Member() int64
	Type() string
}

// MessageReceived — сообщение в чате.
type MessageReceived struct {
	AuthorID int64
	IsBot    bool
}

func (e MessageReceived) Member() int64 { return e.AuthorID }
func (e MessageReceived) Type() string  { return "message" }

// VoiceStateChanged — смена голосового канала участника.
// 0 означает «не в канале»: 0→X вход, X→0 выход, X→Y переход.
type VoiceStateChanged struct {
	MemberID      int64
	BeforeChannel int64
	AfterChannel  int64
}

func (e VoiceStateChanged) Member() int64 { return e.MemberID }
func (e VoiceStateChanged) Type() string  { return "voice_state" }

// Joined — участник вошёл в канал.
func (e VoiceStateChanged) Joined() bool { return e.BeforeChannel == 0 && e.AfterChannel != 0 }

// Left — участник покинул канал.
func (e VoiceStateChanged) Left() bool { return e.BeforeChannel != 0 && e.AfterChannel == 0 }

// MemberTimedOut — участник только что получил тайм-аут.
type MemberTimedOut struct {
	MemberID int64
}

func (e MemberTimedOut) Member() int64 { return e.MemberID }
func (e MemberTimedOut) Type() string  { return "timeout" }

// MemberJoined — участник вступил в сообщество.
type MemberJoined struct {
	MemberID int64
}

func (e MemberJoined) Member() int64 { return e.MemberID }
func (e MemberJoined) Type() string  { return "member_join" }
