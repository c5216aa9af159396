// Package common — errors.go определяет ошибки, которые используются во всех модулях бота.
// Бизнес-отказы (самому себе, низкий уровень, кулдаун и т.д.) — это sentinel-ошибки:
// обработчики различают их через errors.Is и отправляют пользователю понятный текст.
// Ошибки хранилища оборачиваются в PersistenceError.
package common

import (
	"errors"
	"fmt"
	"time"
)

// Ошибки репутации
var (
	// ErrSelfTarget — попытка изменить репутацию самому себе
	ErrSelfTarget = errors.New("нельзя изменить репутацию себе")
	// ErrInsufficientLevel — уровень автора ниже REP_MIN_LEVEL
	ErrInsufficientLevel = errors.New("недостаточный уровень для изменения репутации")
	// ErrTargetImmune — у цели иммунитет к негативной репутации
	ErrTargetImmune = errors.New("цель имеет иммунитет к негативной репутации")
	// ErrCooldownActive — не прошёл REP_COOLDOWN с прошлого изменения для этой цели
	ErrCooldownActive = errors.New("нельзя так часто изменять репутацию одному пользователю")
	// ErrDailyLimitExceeded — исчерпан REP_DAILY_LIMIT
	ErrDailyLimitExceeded = errors.New("дневной лимит изменений репутации исчерпан")
	// ErrTargetUnresolvable — команда не смогла определить цель
	ErrTargetUnresolvable = errors.New("не удалось определить целевого пользователя")
	// ErrInvalidDelta — изменение может быть только +1 или -1
	ErrInvalidDelta = errors.New("изменение репутации должно быть +1 или -1")
)

// Ошибки участников
var (
	// ErrUserNotFound — пользователь не найден в базе
	ErrUserNotFound = errors.New("пользователь не найден")
)

// Ошибки админки
var (
	// ErrNotAdmin — пользователь не является администратором
	ErrNotAdmin = errors.New("у вас нет прав администратора")
	// ErrWrongPassword — неверный пароль
	ErrWrongPassword = errors.New("неверный пароль")
	// ErrTooManyAttempts — слишком много неудачных попыток входа
	ErrTooManyAttempts = errors.New("слишком много попыток, подождите 1 час")
	// ErrSessionExpired — сессия истекла
	ErrSessionExpired = errors.New("сессия истекла, авторизуйтесь заново")
	// ErrAdminDisabled — хеш пароля не задан, панель выключена
	ErrAdminDisabled = errors.New("админ-панель отключена")
)

// CooldownError — кулдаун для пары автор→цель ещё активен.
// errors.Is(err, ErrCooldownActive) == true.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s (осталось %s)", ErrCooldownActive.Error(), FormatDuration(e.Remaining))
}

// Is позволяет сравнивать с ErrCooldownActive.
func (e *CooldownError) Is(target error) bool {
	return target == ErrCooldownActive
}

// PersistenceError — хранилище недоступно или запрос упал.
// Операция при этом не применяет частичных изменений.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ошибка хранилища (%s): %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Persistence оборачивает err в PersistenceError.
// nil и уже обёрнутые ошибки возвращаются как есть.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// IsRejection сообщает, является ли err бизнес-отказом (а не системной ошибкой).
// Такие ошибки показываются пользователю и не логируются как ошибки.
func IsRejection(err error) bool {
	for _, target := range []error{
		ErrSelfTarget, ErrInsufficientLevel, ErrTargetImmune,
		ErrCooldownActive, ErrDailyLimitExceeded, ErrTargetUnresolvable, ErrInvalidDelta,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
