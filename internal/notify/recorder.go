package notify

import (
	"context"
	"sync"
)

// Message — записанное уведомление. MemberID == 0 — канал журнала.
type Message struct {
	MemberID int64
	Text     string
}

// Recorder запоминает уведомления вместо отправки (для тестов).
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	Err      error // если задана — каждая отправка возвращает её
}

func (r *Recorder) SendDirect(ctx context.Context, memberID int64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.messages = append(r.messages, Message{MemberID: memberID, Text: text})
	return nil
}

func (r *Recorder) SendToLogChannel(ctx context.Context, text string) error {
	return r.SendDirect(ctx, 0, text)
}

// Messages возвращает копию записанных уведомлений.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// To возвращает тексты, отправленные участнику memberID (0 — канал журнала).
func (r *Recorder) To(memberID int64) []string {
	var out []string
	for _, m := range r.Messages() {
		if m.MemberID == memberID {
			out = append(out, m.Text)
		}
	}
	return out
}
