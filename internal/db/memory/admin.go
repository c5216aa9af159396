package memory

import (
	"context"
	"sync"
	"time"

	"serotonyl.ru/reputation-bot/internal/common"
	"serotonyl.ru/reputation-bot/internal/features/admin"
)

// AdminStore хранит админ-сессии и попытки входа в памяти.
type AdminStore struct {
	mu       sync.Mutex
	sessions []*admin.Session
	attempts []*admin.LoginAttempt
	seq      int64
}

var _ admin.Store = (*AdminStore)(nil)

// NewAdminStore создаёт пустое хранилище.
func NewAdminStore() *AdminStore {
	return &AdminStore{}
}

func (s *AdminStore) CreateSession(ctx context.Context, session *admin.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	session.ID = s.seq
	c := *session
	c.IsActive = true
	s.sessions = append(s.sessions, &c)
	return nil
}

func (s *AdminStore) ActiveSession(ctx context.Context, userID int64, now time.Time) (*admin.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.sessions) - 1; i >= 0; i-- {
		sess := s.sessions[i]
		if sess.UserID == userID && sess.IsActive && sess.ExpiresAt.After(now) {
			c := *sess
			return &c, nil
		}
	}
	return nil, common.ErrSessionExpired
}

func (s *AdminStore) DeactivateSessions(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			sess.IsActive = false
		}
	}
	return nil
}

func (s *AdminStore) TouchSession(ctx context.Context, userID int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.IsActive {
			sess.LastActivity = now
		}
	}
	return nil
}

func (s *AdminStore) LogAttempt(ctx context.Context, userID int64, success bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.attempts = append(s.attempts, &admin.LoginAttempt{ID: s.seq, UserID: userID, AttemptTime: at, Success: success})
	return nil
}

func (s *AdminStore) FailedAttemptsSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.attempts {
		if a.UserID == userID && !a.Success && !a.AttemptTime.Before(since) {
			n++
		}
	}
	return n, nil
}
