// Package admin — store.go описывает хранилище сессий и попыток входа.
// Реализации: internal/db/postgres (таблицы admin_sessions, admin_login_attempts)
// и internal/db/memory.
package admin

import (
	"context"
	"time"
)

// Store — хранилище админ-сессий.
type Store interface {
	// CreateSession создаёт новую сессию.
	CreateSession(ctx context.Context, session *Session) error
	// ActiveSession возвращает действующую на момент now сессию;
	// common.ErrSessionExpired, если её нет.
	ActiveSession(ctx context.Context, userID int64, now time.Time) (*Session, error)
	// DeactivateSessions закрывает все сессии пользователя.
	DeactivateSessions(ctx context.Context, userID int64) error
	// TouchSession обновляет время последней активности.
	TouchSession(ctx context.Context, userID int64, now time.Time) error
	// LogAttempt записывает попытку входа.
	LogAttempt(ctx context.Context, userID int64, success bool, at time.Time) error
	// FailedAttemptsSince возвращает число неудачных попыток начиная с since.
	FailedAttemptsSince(ctx context.Context, userID int64, since time.Time) (int, error)
}
