// Package postgres — admin.go работает с таблицами admin_sessions и admin_login_attempts.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/reputation-bot/internal/common"
	"serotonyl.ru/reputation-bot/internal/features/admin"
)

// AdminStore работает с админ-таблицами.
type AdminStore struct {
	db *pgxpool.Pool
}

var _ admin.Store = (*AdminStore)(nil)

// NewAdminStore создаёт хранилище админ-сессий.
func NewAdminStore(db *pgxpool.Pool) *AdminStore {
	return &AdminStore{db: db}
}

// CreateSession создаёт новую сессию администратора.
func (r *AdminStore) CreateSession(ctx context.Context, session *admin.Session) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO admin_sessions (user_id, session_token, authenticated_at, expires_at, last_activity, is_active)
		VALUES ($1, $2, $3, $4, $3, TRUE)
		RETURNING id
	`, session.UserID, session.SessionToken, session.AuthenticatedAt, session.ExpiresAt).Scan(&session.ID)
	if err != nil {
		return common.Persistence("create admin session", err)
	}
	return nil
}

// ActiveSession возвращает активную сессию пользователя.
func (r *AdminStore) ActiveSession(ctx context.Context, userID int64, now time.Time) (*admin.Session, error) {
	var s admin.Session
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, session_token, authenticated_at, expires_at, last_activity, is_active
		FROM admin_sessions
		WHERE user_id = $1 AND is_active = TRUE AND expires_at > $2
		ORDER BY authenticated_at DESC
		LIMIT 1
	`, userID, now).Scan(
		&s.ID, &s.UserID, &s.SessionToken, &s.AuthenticatedAt,
		&s.ExpiresAt, &s.LastActivity, &s.IsActive,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrSessionExpired
	}
	if err != nil {
		return nil, common.Persistence("active admin session", err)
	}
	return &s, nil
}

// DeactivateSessions деактивирует сессии пользователя.
func (r *AdminStore) DeactivateSessions(ctx context.Context, userID int64) error {
	_, err := r.db.Exec(ctx, `UPDATE admin_sessions SET is_active = FALSE WHERE user_id = $1`, userID)
	if err != nil {
		return common.Persistence("deactivate admin sessions", err)
	}
	return nil
}

// TouchSession обновляет время последней активности.
func (r *AdminStore) TouchSession(ctx context.Context, userID int64, now time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE admin_sessions SET last_activity = $2 WHERE user_id = $1 AND is_active = TRUE`, userID, now)
	if err != nil {
		return common.Persistence("touch admin session", err)
	}
	return nil
}

// LogAttempt записывает попытку входа.
func (r *AdminStore) LogAttempt(ctx context.Context, userID int64, success bool, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO admin_login_attempts (user_id, attempt_time, success) VALUES ($1, $2, $3)`,
		userID, at, success)
	if err != nil {
		return common.Persistence("log admin attempt", err)
	}
	return nil
}

// FailedAttemptsSince возвращает количество неудачных попыток начиная с since.
func (r *AdminStore) FailedAttemptsSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM admin_login_attempts
		WHERE user_id = $1 AND success = FALSE AND attempt_time >= $2
	`, userID, since).Scan(&count)
	if err != nil {
		return 0, common.Persistence("count admin attempts", err)
	}
	return count, nil
}
