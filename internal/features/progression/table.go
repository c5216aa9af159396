// Package progression — таблица уровней: сколько опыта нужно для уровня,
// фактор тренда и пересчёт уровня записи участника.
package progression

import (
	"serotonyl.ru/reputation-bot/internal/features/members"
)

// requirements — опыт, необходимый для уровней 1..11.
// С 12-го уровня: 5000 + (уровень-12)*500.
var requirements = map[int]int{
	1: 200, 2: 300, 3: 500, 4: 800, 5: 1100, 6: 1600,
	7: 2200, 8: 3000, 9: 3000, 10: 4000, 11: 4500,
}

// LevelChangeReputation — изменение репутации при смене уровня (+ вверх, - вниз).
const LevelChangeReputation = 2

// Requirement возвращает опыт, необходимый для уровня level.
func Requirement(level int) int {
	if level <= 0 {
		return 0
	}
	if xp, ok := requirements[level]; ok {
		return xp
	}
	return 5000 + (level-12)*500
}

// Trend — фактор тренда уровня.
type Trend string

const (
	TrendNegativeStrong Trend = "Negative-strong"
	TrendNegative       Trend = "Negative"
	TrendNeutral        Trend = "Neutral"
	TrendPositive       Trend = "Positive"
	TrendExcellent      Trend = "Excellent"
)

// Label возвращает подпись тренда для сообщений.
func (t Trend) Label() string {
	switch t {
	case TrendNegativeStrong:
		return "Отрицательный"
	case TrendNegative:
		return "Негативный"
	case TrendNeutral:
		return "Нейтральный"
	case TrendPositive:
		return "Положительный"
	default:
		return "Отлично"
	}
}

// TrendFactor возвращает фактор тренда для уровня.
func TrendFactor(level int) Trend {
	switch {
	case level <= 4:
		return TrendNegativeStrong
	case level <= 8:
		return TrendNegative
	case level <= 13:
		return TrendNeutral
	case level <= 17:
		return TrendPositive
	default:
		return TrendExcellent
	}
}

// Change — результат пересчёта уровня.
type Change struct {
	From int
	To   int
}

// Changed сообщает, изменился ли уровень.
func (c Change) Changed() bool { return c.From != c.To }

// Up — уровень вырос.
func (c Change) Up() bool { return c.To > c.From }

// Recompute приводит уровень записи в соответствие с опытом.
// Поднимает уровень, пока опыта хватает на следующий, и опускает, пока опыта
// не хватает на текущий (при монотонном опыте спуск не случается).
// При смене уровня репутация меняется на ±LevelChangeReputation.
// Повторный вызов без изменения опыта ничего не меняет.
func Recompute(r *members.Record) Change {
	ch := Change{From: r.Level}
	for r.Experience >= Requirement(r.Level+1) {
		r.Level++
	}
	for r.Level > 0 && r.Experience < Requirement(r.Level) {
		r.Level--
	}
	ch.To = r.Level

	switch {
	case ch.To > ch.From:
		r.Reputation += LevelChangeReputation
	case ch.To < ch.From:
		r.Reputation -= LevelChangeReputation
	}
	return ch
}
