// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: работа с датами в часовом поясе чата, форматирование длительностей
// и генерация кодов сессий для журнала репутации.
package common

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// LoadLocation загружает часовой пояс по имени.
// Если не удалось (нет tzdata в контейнере) — для Europe/Moscow используем UTC+3 вручную,
// для остальных — UTC.
func LoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err == nil {
		return loc
	}
	if name == "Europe/Moscow" {
		return time.FixedZone("MSK", 3*60*60)
	}
	return time.UTC
}

// DateIn возвращает только дату (полночь) момента t в часовом поясе loc.
// По этой дате считается дневной лимит изменений репутации.
func DateIn(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// DateBefore сравнивает календарные даты a и b, каждую в её собственном часовом поясе.
// Дата из колонки DATE приходит в UTC, а "сегодня" считается в поясе чата —
// сравнение по году/месяцу/дню не зависит от этого.
func DateBefore(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	if ay != by {
		return ay < by
	}
	if am != bm {
		return am < bm
	}
	return ad < bd
}

// DateString форматирует календарную дату t для колонки DATE ("2006-01-02").
func DateString(t time.Time) string {
	return t.Format("2006-01-02")
}

// FormatDateTime форматирует время в формат "02.01.2006 15:04" (день.месяц.год часы:минуты).
func FormatDateTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("02.01.2006 15:04")
}

// FormatDuration форматирует длительность для сообщений пользователю.
//
// Примеры:
//
//	FormatDuration(50*time.Hour)    → "2 дня 2 часа"
//	FormatDuration(90*time.Minute)  → "1 час 30 минут"
//	FormatDuration(20*time.Second)  → "1 минута"
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		d = time.Minute
	}
	days := int(d / (24 * time.Hour))
	hours := int(d % (24 * time.Hour) / time.Hour)
	minutes := int(d % time.Hour / time.Minute)

	switch {
	case days > 0 && hours > 0:
		return fmt.Sprintf("%d %s %d %s", days, PluralizeDays(days), hours, PluralizeHours(hours))
	case days > 0:
		return fmt.Sprintf("%d %s", days, PluralizeDays(days))
	case hours > 0 && minutes > 0:
		return fmt.Sprintf("%d %s %d %s", hours, PluralizeHours(hours), minutes, PluralizeMinutes(minutes))
	case hours > 0:
		return fmt.Sprintf("%d %s", hours, PluralizeHours(hours))
	default:
		return fmt.Sprintf("%d %s", minutes, PluralizeMinutes(minutes))
	}
}

const sessionCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// SessionCodeLength — длина кода сессии в журнале репутации.
const SessionCodeLength = 6

// NewSessionCode генерирует код вида "K3ZQ9A" для журнала репутации.
// Уникальность не проверяется: код — метка для отображения, а не ключ.
func NewSessionCode() string {
	b := make([]byte, SessionCodeLength)
	for i := range b {
		b[i] = sessionCodeAlphabet[rand.IntN(len(sessionCodeAlphabet))]
	}
	return string(b)
}

// IsSessionCode проверяет формат кода (6 символов A-Z0-9).
func IsSessionCode(s string) bool {
	if len(s) != SessionCodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
