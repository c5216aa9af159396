// Package postgres — store.go реализует members.Store на таблицах users, rep_logs,
// voice_sessions и members.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"serotonyl.ru/reputation-bot/internal/common"
	"serotonyl.ru/reputation-bot/internal/features/members"
)

// Store работает с записями участников в PostgreSQL.
type Store struct {
	db    *pgxpool.Pool
	clock clockwork.Clock
}

var _ members.Store = (*Store)(nil)

// NewStore создаёт хранилище участников.
func NewStore(db *pgxpool.Pool, clock clockwork.Clock) *Store {
	return &Store{db: db, clock: clock}
}

const userColumns = `user_id, xp, level, reputation, last_rep_given, rep_count_today,
	last_rep_reset, immune_until, rep_cooldowns, recent_reports, join_time`

func scanRecord(row pgx.Row) (*members.Record, error) {
	var (
		r         members.Record
		cooldowns string
		reports   string
	)
	err := row.Scan(
		&r.UserID, &r.Experience, &r.Level, &r.Reputation, &r.LastRepGiven, &r.RepActionsToday,
		&r.LastReset, &r.ImmuneUntil, &cooldowns, &reports, &r.JoinTime,
	)
	if err != nil {
		return nil, err
	}
	if r.RepCooldowns, err = decodeCooldowns(cooldowns); err != nil {
		return nil, err
	}
	if r.RecentNegativeReports, err = decodeReports(reports); err != nil {
		return nil, err
	}
	return &r, nil
}

// dateParam передаёт дату в колонку DATE строкой, чтобы часовой пояс соединения
// не сдвинул календарный день.
func dateParam(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := common.DateString(*t)
	return &s
}

// Ensure создаёт запись, если её нет.
func (s *Store) Ensure(ctx context.Context, userID int64, joinTime time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO users (user_id, join_time) VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, joinTime)
	if err != nil {
		return false, common.Persistence("ensure", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Get возвращает запись участника.
func (s *Store) Get(ctx context.Context, userID int64) (*members.Record, error) {
	rec, err := scanRecord(s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE user_id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrUserNotFound
	}
	if err != nil {
		return nil, common.Persistence("get", err)
	}
	return rec, nil
}

// Update выполняет fn в одной транзакции.
// Строки создаются при необходимости и блокируются FOR UPDATE по возрастанию user_id,
// поэтому встречные изменения A→B и B→A не взаимоблокируются.
func (s *Store) Update(ctx context.Context, userIDs []int64, fn func(tx members.Tx) error) error {
	ids := append([]int64(nil), userIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return common.Persistence("begin", err)
	}
	defer tx.Rollback(ctx)

	now := s.clock.Now()
	t := &pgTx{tx: tx, records: make(map[int64]*members.Record, len(ids))}
	for _, id := range ids {
		if _, ok := t.records[id]; ok {
			continue
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO users (user_id, join_time) VALUES ($1, $2)
			ON CONFLICT (user_id) DO NOTHING
		`, id, now); err != nil {
			return common.Persistence("insert user", err)
		}
		rec, err := scanRecord(tx.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE user_id = $1 FOR UPDATE`, id))
		if err != nil {
			return common.Persistence("lock user", err)
		}
		t.records[id] = rec
	}

	if err := fn(t); err != nil {
		return err
	}

	for _, id := range ids {
		if err := saveRecord(ctx, tx, t.records[id]); err != nil {
			return common.Persistence("save user", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return common.Persistence("commit", err)
	}
	return nil
}

func saveRecord(ctx context.Context, tx pgx.Tx, r *members.Record) error {
	cooldowns, err := encodeCooldowns(r.RepCooldowns)
	if err != nil {
		return err
	}
	reports, err := encodeReports(r.RecentNegativeReports)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		UPDATE users SET
			xp = $2, level = $3, reputation = $4, last_rep_given = $5, rep_count_today = $6,
			last_rep_reset = $7::date, immune_until = $8, rep_cooldowns = $9, recent_reports = $10
		WHERE user_id = $1
	`, r.UserID, r.Experience, r.Level, r.Reputation, r.LastRepGiven, r.RepActionsToday,
		dateParam(r.LastReset), r.ImmuneUntil, cooldowns, reports)
	return err
}

// ResetDailyCounters обнуляет дневные счётчики тех, у кого дата сброса раньше today.
func (s *Store) ResetDailyCounters(ctx context.Context, today time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE users SET rep_count_today = 0, last_rep_reset = $1::date
		WHERE last_rep_reset IS NULL OR last_rep_reset < $1::date
	`, common.DateString(today))
	if err != nil {
		return 0, common.Persistence("reset daily", err)
	}
	return tag.RowsAffected(), nil
}

const auditColumns = `id, session_code, action, from_user, to_user, timestamp`

func (s *Store) queryAudit(ctx context.Context, op, query string, args ...any) ([]*members.AuditEntry, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, common.Persistence(op, err)
	}
	defer rows.Close()

	var out []*members.AuditEntry
	for rows.Next() {
		var e members.AuditEntry
		if err := rows.Scan(&e.ID, &e.Code, &e.Action, &e.FromUser, &e.ToUser, &e.Timestamp); err != nil {
			return nil, common.Persistence(op, err)
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, common.Persistence(op, err)
	}
	return out, nil
}

// FindAuditByCode ищет записи журнала по коду сессии.
func (s *Store) FindAuditByCode(ctx context.Context, code string) ([]*members.AuditEntry, error) {
	return s.queryAudit(ctx, "find audit",
		`SELECT `+auditColumns+` FROM rep_logs WHERE UPPER(session_code) = UPPER($1) ORDER BY id`, code)
}

// RecentAudit возвращает последние записи журнала.
func (s *Store) RecentAudit(ctx context.Context, limit int) ([]*members.AuditEntry, error) {
	return s.queryAudit(ctx, "recent audit",
		`SELECT `+auditColumns+` FROM rep_logs ORDER BY id DESC LIMIT $1`, limit)
}

const voiceColumns = `id, user_id, channel_id, join_time, leave_time`

func scanVoiceSessions(rows pgx.Rows) ([]*members.VoiceSession, error) {
	defer rows.Close()
	var out []*members.VoiceSession
	for rows.Next() {
		var vs members.VoiceSession
		if err := rows.Scan(&vs.ID, &vs.UserID, &vs.ChannelID, &vs.JoinTime, &vs.LeaveTime); err != nil {
			return nil, err
		}
		out = append(out, &vs)
	}
	return out, rows.Err()
}

// OpenVoiceSessions возвращает открытые сессии участника.
func (s *Store) OpenVoiceSessions(ctx context.Context, userID int64) ([]*members.VoiceSession, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+voiceColumns+` FROM voice_sessions
		WHERE user_id = $1 AND leave_time IS NULL
		ORDER BY join_time, id
	`, userID)
	if err != nil {
		return nil, common.Persistence("open voice sessions", err)
	}
	out, err := scanVoiceSessions(rows)
	if err != nil {
		return nil, common.Persistence("open voice sessions", err)
	}
	return out, nil
}

// SaveProfile добавляет/обновляет участника в справочнике.
func (s *Store) SaveProfile(ctx context.Context, p *members.Profile) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO members (user_id, username, first_name, last_name, is_bot)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			username = EXCLUDED.username,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			is_bot = EXCLUDED.is_bot,
			updated_at = NOW()
	`, p.UserID, p.Username, p.FirstName, p.LastName, p.IsBot)
	if err != nil {
		return common.Persistence("save profile", err)
	}
	return nil
}

func (s *Store) queryProfile(ctx context.Context, query string, arg any) (*members.Profile, error) {
	var p members.Profile
	err := s.db.QueryRow(ctx, query, arg).Scan(&p.UserID, &p.Username, &p.FirstName, &p.LastName, &p.IsBot)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrUserNotFound
	}
	if err != nil {
		return nil, common.Persistence("profile", err)
	}
	return &p, nil
}

// ProfileByID возвращает участника из справочника.
func (s *Store) ProfileByID(ctx context.Context, userID int64) (*members.Profile, error) {
	return s.queryProfile(ctx, `
		SELECT user_id, username, first_name, last_name, is_bot
		FROM members WHERE user_id = $1
	`, userID)
}

// ProfileByUsername ищет участника по @username без учёта регистра.
// Если имя когда-то принадлежало нескольким — берётся последний обновлённый.
func (s *Store) ProfileByUsername(ctx context.Context, username string) (*members.Profile, error) {
	return s.queryProfile(ctx, `
		SELECT user_id, username, first_name, last_name, is_bot
		FROM members WHERE username <> '' AND LOWER(username) = LOWER($1)
		ORDER BY updated_at DESC LIMIT 1
	`, username)
}

// pgTx — members.Tx поверх транзакции pgx.
type pgTx struct {
	tx      pgx.Tx
	records map[int64]*members.Record
}

func (t *pgTx) Record(userID int64) *members.Record {
	return t.records[userID]
}

func (t *pgTx) AppendAudit(ctx context.Context, e *members.AuditEntry) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO rep_logs (session_code, action, from_user, to_user, timestamp)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, e.Code, e.Action, e.FromUser, e.ToUser, e.Timestamp).Scan(&e.ID)
	if err != nil {
		return common.Persistence("append audit", err)
	}
	return nil
}

func (t *pgTx) OpenVoiceSession(ctx context.Context, vs *members.VoiceSession) ([]*members.VoiceSession, error) {
	if _, ok := t.records[vs.UserID]; !ok {
		return nil, common.Persistence("open voice session",
			fmt.Errorf("участник %d не заблокирован в этой транзакции", vs.UserID))
	}
	rows, err := t.tx.Query(ctx, `
		UPDATE voice_sessions SET leave_time = $2
		WHERE user_id = $1 AND leave_time IS NULL
		RETURNING `+voiceColumns, vs.UserID, vs.JoinTime)
	if err != nil {
		return nil, common.Persistence("close stale voice sessions", err)
	}
	stale, err := scanVoiceSessions(rows)
	if err != nil {
		return nil, common.Persistence("close stale voice sessions", err)
	}

	err = t.tx.QueryRow(ctx, `
		INSERT INTO voice_sessions (user_id, channel_id, join_time)
		VALUES ($1, $2, $3)
		RETURNING id
	`, vs.UserID, vs.ChannelID, vs.JoinTime).Scan(&vs.ID)
	if err != nil {
		return nil, common.Persistence("open voice session", err)
	}
	return stale, nil
}

func (t *pgTx) CloseVoiceSession(ctx context.Context, userID int64, leave time.Time) (*members.VoiceSession, error) {
	if _, ok := t.records[userID]; !ok {
		return nil, common.Persistence("close voice session",
			fmt.Errorf("участник %d не заблокирован в этой транзакции", userID))
	}
	rows, err := t.tx.Query(ctx, `
		UPDATE voice_sessions SET leave_time = $2
		WHERE user_id = $1 AND leave_time IS NULL
		RETURNING `+voiceColumns, userID, leave)
	if err != nil {
		return nil, common.Persistence("close voice session", err)
	}
	closed, err := scanVoiceSessions(rows)
	if err != nil {
		return nil, common.Persistence("close voice session", err)
	}
	var latest *members.VoiceSession
	for _, vs := range closed {
		if latest == nil || vs.ID > latest.ID {
			latest = vs
		}
	}
	return latest, nil
}
