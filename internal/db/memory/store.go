// Package memory — хранилище участников в памяти процесса.
// Используется, когда БД выключена (DB_ENABLED=false), и как тестовый дублёр
// для сервисов. Read-modify-write по участнику сериализуется отдельным мьютексом
// на каждый id; несколько id блокируются строго по возрастанию.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/puzpuzpuz/xsync/v3"

	"serotonyl.ru/reputation-bot/internal/common"
	"serotonyl.ru/reputation-bot/internal/features/members"
)

// Store — хранилище в памяти. Реализует members.Store.
type Store struct {
	clock clockwork.Clock
	locks *xsync.MapOf[int64, *sync.Mutex] // мьютекс на каждого участника

	mu       sync.RWMutex
	records  map[int64]*members.Record
	sessions map[int64][]*members.VoiceSession
	profiles map[int64]*members.Profile
	touched  map[int64]int64 // порядковый номер последнего SaveProfile
	audit    []*members.AuditEntry

	auditSeq   atomic.Int64
	sessionSeq atomic.Int64
	profileSeq int64
}

var _ members.Store = (*Store)(nil)

// NewStore создаёт пустое хранилище.
func NewStore(clock clockwork.Clock) *Store {
	return &Store{
		clock:    clock,
		locks:    xsync.NewMapOf[int64, *sync.Mutex](),
		records:  make(map[int64]*members.Record),
		sessions: make(map[int64][]*members.VoiceSession),
		profiles: make(map[int64]*members.Profile),
		touched:  make(map[int64]int64),
	}
}

func (s *Store) lockFor(userID int64) *sync.Mutex {
	m, _ := s.locks.LoadOrCompute(userID, func() *sync.Mutex { return &sync.Mutex{} })
	return m
}

// lockAll блокирует участников по возрастанию id и возвращает функцию разблокировки.
func (s *Store) lockAll(ids []int64) func() {
	locked := make([]*sync.Mutex, 0, len(ids))
	for _, id := range ids {
		m := s.lockFor(id)
		m.Lock()
		locked = append(locked, m)
	}
	return func() {
		for i := len(locked) - 1; i >= 0; i-- {
			locked[i].Unlock()
		}
	}
}

// Ensure создаёт запись, если её нет.
func (s *Store) Ensure(ctx context.Context, userID int64, joinTime time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, common.Persistence("ensure", err)
	}
	unlock := s.lockAll([]int64{userID})
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[userID]; ok {
		return false, nil
	}
	s.records[userID] = members.NewRecord(userID, joinTime)
	return true, nil
}

// Get возвращает копию записи.
func (s *Store) Get(ctx context.Context, userID int64) (*members.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Persistence("get", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[userID]
	if !ok {
		return nil, common.ErrUserNotFound
	}
	return rec.Clone(), nil
}

// Update выполняет fn над копиями заблокированных записей и записывает их при успехе.
func (s *Store) Update(ctx context.Context, userIDs []int64, fn func(tx members.Tx) error) error {
	ids := sortedUnique(userIDs)
	if err := ctx.Err(); err != nil {
		return common.Persistence("update", err)
	}
	unlock := s.lockAll(ids)
	defer unlock()

	now := s.clock.Now()
	tx := &memTx{
		store:    s,
		records:  make(map[int64]*members.Record, len(ids)),
		sessions: make(map[int64][]*members.VoiceSession),
	}

	s.mu.RLock()
	for _, id := range ids {
		if rec, ok := s.records[id]; ok {
			tx.records[id] = rec.Clone()
		} else {
			tx.records[id] = members.NewRecord(id, now)
		}
	}
	s.mu.RUnlock()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return common.Persistence("update", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range tx.records {
		s.records[id] = rec
	}
	for id, list := range tx.sessions {
		s.sessions[id] = list
	}
	s.audit = append(s.audit, tx.audit...)
	return nil
}

// ResetDailyCounters обнуляет дневные счётчики с устаревшей датой сброса.
func (s *Store) ResetDailyCounters(ctx context.Context, today time.Time) (int64, error) {
	s.mu.RLock()
	ids := make([]int64, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var changed int64
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return changed, common.Persistence("reset daily", err)
		}
		unlock := s.lockAll([]int64{id})
		s.mu.Lock()
		if rec, ok := s.records[id]; ok && rec.RollDaily(today) {
			changed++
		}
		s.mu.Unlock()
		unlock()
	}
	return changed, nil
}

// FindAuditByCode ищет записи журнала по коду.
func (s *Store) FindAuditByCode(ctx context.Context, code string) ([]*members.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*members.AuditEntry
	for _, e := range s.audit {
		if strings.EqualFold(e.Code, code) {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

// RecentAudit возвращает последние записи журнала.
func (s *Store) RecentAudit(ctx context.Context, limit int) ([]*members.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*members.AuditEntry, 0, limit)
	for i := len(s.audit) - 1; i >= 0 && len(out) < limit; i-- {
		c := *s.audit[i]
		out = append(out, &c)
	}
	return out, nil
}

// OpenVoiceSessions возвращает открытые сессии участника.
func (s *Store) OpenVoiceSessions(ctx context.Context, userID int64) ([]*members.VoiceSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*members.VoiceSession
	for _, vs := range s.sessions[userID] {
		if vs.LeaveTime == nil {
			c := *vs
			out = append(out, &c)
		}
	}
	return out, nil
}

// SaveProfile добавляет/обновляет участника в справочнике.
func (s *Store) SaveProfile(ctx context.Context, p *members.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *p
	s.profiles[p.UserID] = &c
	s.profileSeq++
	s.touched[p.UserID] = s.profileSeq
	return nil
}

// ProfileByID возвращает участника из справочника.
func (s *Store) ProfileByID(ctx context.Context, userID int64) (*members.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, common.ErrUserNotFound
	}
	c := *p
	return &c, nil
}

// ProfileByUsername ищет участника по @username без учёта регистра.
// Если имя когда-то принадлежало нескольким — берётся последний обновлённый.
func (s *Store) ProfileByUsername(ctx context.Context, username string) (*members.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *members.Profile
	for id, p := range s.profiles {
		if p.Username == "" || !strings.EqualFold(p.Username, username) {
			continue
		}
		if found == nil || s.touched[id] > s.touched[found.UserID] {
			found = p
		}
	}
	if found == nil {
		return nil, common.ErrUserNotFound
	}
	c := *found
	return &c, nil
}

// memTx — изменения одной операции Update, видимые только ей до фиксации.
type memTx struct {
	store    *Store
	records  map[int64]*members.Record
	sessions map[int64][]*members.VoiceSession
	audit    []*members.AuditEntry
}

func (tx *memTx) Record(userID int64) *members.Record {
	return tx.records[userID]
}

func (tx *memTx) AppendAudit(ctx context.Context, entry *members.AuditEntry) error {
	entry.ID = tx.store.auditSeq.Add(1)
	c := *entry
	tx.audit = append(tx.audit, &c)
	return nil
}

// sessionsFor возвращает рабочую копию сессий заблокированного участника.
func (tx *memTx) sessionsFor(userID int64) ([]*members.VoiceSession, error) {
	if _, ok := tx.records[userID]; !ok {
		return nil, fmt.Errorf("участник %d не заблокирован в этой операции", userID)
	}
	if list, ok := tx.sessions[userID]; ok {
		return list, nil
	}
	tx.store.mu.RLock()
	src := tx.store.sessions[userID]
	list := make([]*members.VoiceSession, 0, len(src)+1)
	for _, vs := range src {
		c := *vs
		list = append(list, &c)
	}
	tx.store.mu.RUnlock()
	tx.sessions[userID] = list
	return list, nil
}

func (tx *memTx) OpenVoiceSession(ctx context.Context, session *members.VoiceSession) ([]*members.VoiceSession, error) {
	list, err := tx.sessionsFor(session.UserID)
	if err != nil {
		return nil, common.Persistence("open voice session", err)
	}
	var stale []*members.VoiceSession
	for _, vs := range list {
		if vs.LeaveTime == nil {
			leave := session.JoinTime
			vs.LeaveTime = &leave
			c := *vs
			stale = append(stale, &c)
		}
	}
	session.ID = tx.store.sessionSeq.Add(1)
	c := *session
	tx.sessions[session.UserID] = append(list, &c)
	return stale, nil
}

func (tx *memTx) CloseVoiceSession(ctx context.Context, userID int64, leave time.Time) (*members.VoiceSession, error) {
	list, err := tx.sessionsFor(userID)
	if err != nil {
		return nil, common.Persistence("close voice session", err)
	}
	var latest *members.VoiceSession
	for _, vs := range list {
		if vs.LeaveTime != nil {
			continue
		}
		l := leave
		vs.LeaveTime = &l
		if latest == nil || vs.ID > latest.ID {
			latest = vs
		}
	}
	if latest == nil {
		return nil, nil
	}
	c := *latest
	return &c, nil
}

func sortedUnique(ids []int64) []int64 {
	out := append([]int64(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	n := 0
	for i, id := range out {
		if i == 0 || id != out[n-1] {
			out[n] = id
			n++
		}
	}
	return out[:n]
}
