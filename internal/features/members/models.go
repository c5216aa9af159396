// Package members управляет участниками чата: записями прогресса (опыт, уровень,
// репутация, кулдауны), справочником имён и журналом репутации.
// models.go описывает структуры данных для таблиц users, rep_logs, voice_sessions и members.
package members

import (
	"sort"
	"time"

	"serotonyl.ru/reputation-bot/internal/common"
)

// Record — запись прогресса участника (таблица users).
// Создаётся лениво при первой активности, никогда не удаляется.
type Record struct {
	UserID     int64 `db:"user_id"`
	Experience int   `db:"xp"`
	Level      int   `db:"level"`
	Reputation int   `db:"reputation"`

	LastRepGiven    *time.Time `db:"last_rep_given"`  // Когда участник последний раз менял чужую репутацию
	RepActionsToday int        `db:"rep_count_today"` // Изменений репутации за текущую дату
	LastReset       *time.Time `db:"last_rep_reset"`  // Дата последнего сброса дневного счётчика
	ImmuneUntil     *time.Time `db:"immune_until"`    // Иммунитет к негативной репутации до

	// Кулдауны хранятся на записи АВТОРА: id цели → время последнего изменения
	RepCooldowns map[int64]time.Time `db:"rep_cooldowns"`
	// Негативные изменения, полученные участником (скользящее окно)
	RecentNegativeReports []time.Time `db:"recent_reports"`

	JoinTime time.Time `db:"join_time"`
}

// NewRecord создаёт пустую запись участника.
func NewRecord(userID int64, joinTime time.Time) *Record {
	return &Record{
		UserID:       userID,
		RepCooldowns: make(map[int64]time.Time),
		JoinTime:     joinTime,
	}
}

// Clone возвращает глубокую копию записи.
// Хранилище в памяти меняет копии и записывает их обратно только при успехе.
func (r *Record) Clone() *Record {
	c := *r
	c.LastRepGiven = cloneTime(r.LastRepGiven)
	c.LastReset = cloneTime(r.LastReset)
	c.ImmuneUntil = cloneTime(r.ImmuneUntil)
	c.RepCooldowns = make(map[int64]time.Time, len(r.RepCooldowns))
	for k, v := range r.RepCooldowns {
		c.RepCooldowns[k] = v
	}
	if r.RecentNegativeReports != nil {
		c.RecentNegativeReports = append([]time.Time(nil), r.RecentNegativeReports...)
	}
	return &c
}

// IsImmune сообщает, действует ли иммунитет к негативной репутации в момент now.
func (r *Record) IsImmune(now time.Time) bool {
	return r.ImmuneUntil != nil && now.Before(*r.ImmuneUntil)
}

// RollDaily сбрасывает дневной счётчик, если дата последнего сброса раньше today.
// Возвращает true, если сброс произошёл. Повторный вызов в ту же дату ничего не меняет.
func (r *Record) RollDaily(today time.Time) bool {
	if r.LastReset != nil && !common.DateBefore(*r.LastReset, today) {
		return false
	}
	r.RepActionsToday = 0
	t := today
	r.LastReset = &t
	return true
}

// CooldownRemaining возвращает, сколько ещё ждать до следующего изменения репутации цели.
// 0 — кулдаун не активен.
func (r *Record) CooldownRemaining(targetID int64, now time.Time, cooldown time.Duration) time.Duration {
	last, ok := r.RepCooldowns[targetID]
	if !ok {
		return 0
	}
	elapsed := now.Sub(last)
	if elapsed >= cooldown {
		return 0
	}
	return cooldown - elapsed
}

// PruneCooldowns удаляет истёкшие кулдауны и возвращает число удалённых.
func (r *Record) PruneCooldowns(now time.Time, cooldown time.Duration) int {
	removed := 0
	for id, last := range r.RepCooldowns {
		if now.Sub(last) >= cooldown {
			delete(r.RepCooldowns, id)
			removed++
		}
	}
	return removed
}

// AddNegativeReport отбрасывает отметки старше окна (от now), добавляет now
// и возвращает число отметок в окне.
func (r *Record) AddNegativeReport(now time.Time, window time.Duration) int {
	cutoff := now.Add(-window)
	kept := r.RecentNegativeReports[:0:0]
	for _, t := range r.RecentNegativeReports {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	r.RecentNegativeReports = kept
	return len(kept)
}

// CooldownTargets возвращает id целей из карты кулдаунов по возрастанию.
func (r *Record) CooldownTargets() []int64 {
	ids := make([]int64, 0, len(r.RepCooldowns))
	for id := range r.RepCooldowns {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// Действия в журнале репутации
const (
	ActionPlus  = "plus"
	ActionMinus = "minus"
)

// AuditEntry — запись журнала репутации (таблица rep_logs). Неизменяема.
type AuditEntry struct {
	ID        int64     `db:"id"`
	Code      string    `db:"session_code"` // 6 символов A-Z0-9, метка для отображения
	Action    string    `db:"action"`       // "plus" / "minus"
	FromUser  int64     `db:"from_user"`
	ToUser    int64     `db:"to_user"`
	Timestamp time.Time `db:"timestamp"`
}

// ActionFor возвращает действие журнала для изменения delta.
func ActionFor(delta int) string {
	if delta > 0 {
		return ActionPlus
	}
	return ActionMinus
}

// VoiceSession — нахождение участника в голосовом канале (таблица voice_sessions).
// Открытая сессия имеет LeaveTime == nil.
type VoiceSession struct {
	ID        int64      `db:"id"`
	UserID    int64      `db:"user_id"`
	ChannelID int64      `db:"channel_id"`
	JoinTime  time.Time  `db:"join_time"`
	LeaveTime *time.Time `db:"leave_time"`
}

// Duration возвращает длительность закрытой сессии.
func (s *VoiceSession) Duration() time.Duration {
	if s.LeaveTime == nil {
		return 0
	}
	return s.LeaveTime.Sub(s.JoinTime)
}

// Profile — участник в справочнике имён (таблица members).
// Нужен, чтобы находить цель по @username и показывать имена в журнале.
type Profile struct {
	UserID    int64  `db:"user_id"`
	Username  string `db:"username"`   // @username (может быть пустым)
	FirstName string `db:"first_name"` // Имя пользователя
	LastName  string `db:"last_name"`  // Фамилия (может быть пустой)
	IsBot     bool   `db:"is_bot"`
}

// DisplayName возвращает отображаемое имя пользователя.
// Если есть @username — возвращает его, иначе — имя + фамилию.
func (p *Profile) DisplayName() string {
	if p.Username != "" {
		return "@" + p.Username
	}
	name := p.FirstName
	if p.LastName != "" {
		name += " " + p.LastName
	}
	return name
}
