// Package common — pluralize.go содержит функции для правильного склонения
// русских числительных в сообщениях бота.
package common

import "strconv"

// pluralize выбирает форму слова для числа n.
//
// Правила русского языка:
//   - n%10==1 И n%100!=11 → one (1, 21, 31, 101, ...)
//   - n%10 в [2,3,4] И n%100 НЕ в [12,13,14] → few (2, 3, 4, 22, 23, ...)
//   - Остальные случаи → many (0, 5-20, 25-30, 100, ...)
func pluralize(n int, one, few, many string) string {
	if n < 0 {
		n = -n
	}
	lastDigit := n % 10
	lastTwoDigits := n % 100

	if lastDigit == 1 && lastTwoDigits != 11 {
		return one
	}
	if lastDigit >= 2 && lastDigit <= 4 && (lastTwoDigits < 12 || lastTwoDigits > 14) {
		return few
	}
	return many
}

// PluralizeDays возвращает правильную форму слова «день» для числа n.
//
// Правила:
//   - 1, 21, 31 → "день"
//   - 2-4, 22-24 → "дня"
//   - 5-20, 25-30 → "дней"
func PluralizeDays(n int) string {
	return pluralize(n, "день", "дня", "дней")
}

// PluralizeHours возвращает правильную форму слова «час».
func PluralizeHours(n int) string {
	return pluralize(n, "час", "часа", "часов")
}

// PluralizeMinutes возвращает правильную форму слова «минута».
func PluralizeMinutes(n int) string {
	return pluralize(n, "минута", "минуты", "минут")
}

// PluralizeActions возвращает правильную форму слова «изменение».
func PluralizeActions(n int) string {
	return pluralize(n, "изменение", "изменения", "изменений")
}

// PluralizeMinuses возвращает правильную форму слова «минус».
func PluralizeMinuses(n int) string {
	return pluralize(n, "минус", "минуса", "минусов")
}

// FormatSigned создаёт строку вида "+2" или "-1".
func FormatSigned(n int) string {
	if n > 0 {
		return "+" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
