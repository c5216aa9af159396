// Package reputation — messages.go содержит тексты ответов на команды репутации.
// Числа в текстах берутся из конфигурации, чтобы справка и отказы совпадали с правилами.
package reputation

import (
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"

	"serotonyl.ru/reputation-bot/internal/common"
)

const failureGeneric = "⚠️ Не удалось выполнить команду, попробуйте позже"

// FailureText — текст для автора команды, если изменение не применено.
// Бизнес-отказы показываются с текущими лимитами, системные ошибки — общим текстом.
func (s *Service) FailureText(err error) string {
	var cd *common.CooldownError
	switch {
	case errors.Is(err, common.ErrInsufficientLevel):
		return fmt.Sprintf("❌ Необходим %d+ уровень для изменения репутации", s.cfg.RepMinLevel)
	case errors.As(err, &cd):
		return fmt.Sprintf("❌ Нельзя так часто изменять репутацию одному пользователю: кулдаун %s, осталось %s",
			common.FormatDuration(s.cfg.RepCooldown), common.FormatDuration(cd.Remaining))
	case errors.Is(err, common.ErrCooldownActive):
		return fmt.Sprintf("❌ Нельзя так часто изменять репутацию одному пользователю: кулдаун %s",
			common.FormatDuration(s.cfg.RepCooldown))
	case errors.Is(err, common.ErrDailyLimitExceeded):
		n := s.cfg.RepDailyLimit
		return fmt.Sprintf("❌ Дневной лимит исчерпан: %d %s репутации в день", n, common.PluralizeActions(n))
	case common.IsRejection(err):
		return "❌ " + capitalize(err.Error())
	}
	return failureGeneric
}

// HelpText — справка по командам бота.
func (s *Service) HelpText() string {
	c := s.cfg
	return fmt.Sprintf(`🤖 Команды бота:

📊 Система уровней:
- +%d XP за каждое сообщение
- Бонус новичкам: +%d XP (окно после входа: %s)
- Уровни повышаются автоматически

💚 Репутация:
- +реп @user или ответ +реп — повысить репутацию
- -реп @user или ответ -реп — понизить репутацию
- Требуется: %d+ уровень
- Дневной лимит: %d %s
- Кулдаун на одного человека: %s
- Иммунитет: %d %s в окне %s защищают цель от минусов (длительность: %s)

👤 Профиль:
- !профиль — посмотреть свой профиль

⚙️ Автоматические действия:
- -1 реп за тайм-аут
- -1 реп за короткую голосовую сессию (порог: %s)
- +1 реп за долгую голосовую сессию (порог: %s)`,
		c.XPPerMessage,
		c.XPNewcomerBonus, common.FormatDuration(c.XPNewcomerWindow),
		c.RepMinLevel,
		c.RepDailyLimit, common.PluralizeActions(c.RepDailyLimit),
		common.FormatDuration(c.RepCooldown),
		c.RepReportThreshold, common.PluralizeMinuses(c.RepReportThreshold),
		common.FormatDuration(c.RepReportWindow), common.FormatDuration(c.RepImmunity),
		common.FormatDuration(c.VoiceShortSession),
		common.FormatDuration(c.VoiceLongSession),
	)
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
