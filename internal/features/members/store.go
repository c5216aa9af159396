// Package members — store.go описывает хранилище записей участников.
// Реализации: internal/db/postgres (продакшен) и internal/db/memory (DB_ENABLED=false и тесты).
package members

import (
	"context"
	"time"
)

// Tx — атомарная операция над записями заблокированных участников.
// Все изменения применяются только если функция, переданная в Store.Update, вернула nil.
type Tx interface {
	// Record возвращает запись заблокированного участника (создаётся, если её не было).
	// Для id, не переданных в Update, возвращает nil.
	Record(userID int64) *Record

	// AppendAudit добавляет запись в журнал репутации и заполняет entry.ID.
	AppendAudit(ctx context.Context, entry *AuditEntry) error

	// OpenVoiceSession открывает сессию. Уже открытые сессии участника закрываются
	// в момент session.JoinTime и возвращаются (ненулевой список — аномалия данных).
	OpenVoiceSession(ctx context.Context, session *VoiceSession) ([]*VoiceSession, error)

	// CloseVoiceSession закрывает все открытые сессии участника в момент leave и возвращает
	// самую последнюю из них. nil — открытых сессий не было.
	CloseVoiceSession(ctx context.Context, userID int64, leave time.Time) (*VoiceSession, error)
}

// Store — хранилище записей участников.
// Все ошибки реализации оборачиваются в *common.PersistenceError.
type Store interface {
	// Ensure создаёт запись, если её нет (идемпотентно). Возвращает true, если запись создана.
	Ensure(ctx context.Context, userID int64, joinTime time.Time) (bool, error)

	// Get возвращает копию записи; common.ErrUserNotFound, если записи нет.
	Get(ctx context.Context, userID int64) (*Record, error)

	// Update блокирует записи userIDs в порядке возрастания id (недостающие создаются
	// с JoinTime = now), вызывает fn и атомарно сохраняет изменения.
	// Ошибка fn откатывает всё, включая созданные записи.
	Update(ctx context.Context, userIDs []int64, fn func(tx Tx) error) error

	// ResetDailyCounters обнуляет rep_count_today у всех, чья дата сброса раньше today
	// (или не задана). Возвращает число изменённых записей.
	ResetDailyCounters(ctx context.Context, today time.Time) (int64, error)

	// FindAuditByCode ищет записи журнала по коду сессии.
	FindAuditByCode(ctx context.Context, code string) ([]*AuditEntry, error)

	// RecentAudit возвращает последние limit записей журнала (новые первыми).
	RecentAudit(ctx context.Context, limit int) ([]*AuditEntry, error)

	// OpenVoiceSessions возвращает открытые сессии участника (старые первыми).
	OpenVoiceSessions(ctx context.Context, userID int64) ([]*VoiceSession, error)

	// SaveProfile добавляет/обновляет участника в справочнике имён.
	SaveProfile(ctx context.Context, p *Profile) error

	// ProfileByID возвращает участника из справочника; common.ErrUserNotFound, если нет.
	ProfileByID(ctx context.Context, userID int64) (*Profile, error)

	// ProfileByUsername ищет участника по @username (без @, регистр не важен).
	ProfileByUsername(ctx context.Context, username string) (*Profile, error)
}
