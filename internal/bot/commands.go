// Package bot — commands.go разбирает команды чата и определяет цель команды репутации.
//
// Поддерживаемые формы:
//
//	!rep @user, .реп, /rep, /plusrep       → +1
//	+rep, +реп, rep+, реп+, !реп +, +реп + → +1
//	-rep, -реп, rep-, реп-, !реп -, /minusrep → -1
//	!профиль, /profile, +profile           → профиль
//	!помощь, /help, /start, +help_bot      → справка
package bot

import (
	"context"
	"errors"
	"strings"
	"unicode/utf16"

	"github.com/mymmrac/telego"

	"serotonyl.ru/reputation-bot/internal/common"
	"serotonyl.ru/reputation-bot/internal/features/members"
)

// CommandKind — тип распознанной команды.
type CommandKind int

const (
	CommandNone CommandKind = iota
	CommandRepPlus
	CommandRepMinus
	CommandProfile
	CommandHelp
)

// Command — результат разбора текста сообщения.
type Command struct {
	Kind CommandKind
	Args []string // Аргументы в исходном регистре (например, @username)
}

// Delta возвращает изменение репутации для команд +rep/-rep (0 для остальных).
func (c Command) Delta() int {
	switch c.Kind {
	case CommandRepPlus:
		return 1
	case CommandRepMinus:
		return -1
	}
	return 0
}

var commandAliases = map[string]CommandKind{
	"rep":      CommandRepPlus,
	"реп":      CommandRepPlus,
	"+rep":     CommandRepPlus,
	"+реп":     CommandRepPlus,
	"rep+":     CommandRepPlus,
	"реп+":     CommandRepPlus,
	"plusrep":  CommandRepPlus,
	"rep_plus": CommandRepPlus,

	"-rep":      CommandRepMinus,
	"-реп":      CommandRepMinus,
	"rep-":      CommandRepMinus,
	"реп-":      CommandRepMinus,
	"minusrep":  CommandRepMinus,
	"rep_minus": CommandRepMinus,

	"profile": CommandProfile,
	"профиль": CommandProfile,

	"help":     CommandHelp,
	"help_bot": CommandHelp,
	"помощь":   CommandHelp,
	"start":    CommandHelp,
}

// Формы со знаком, которые работают без префикса
var bareForms = map[string]CommandKind{
	"+rep": CommandRepPlus,
	"+реп": CommandRepPlus,
	"rep+": CommandRepPlus,
	"реп+": CommandRepPlus,
	"-rep": CommandRepMinus,
	"-реп": CommandRepMinus,
	"rep-": CommandRepMinus,
	"реп-": CommandRepMinus,
}

// CommandParser парсит команды с префиксами ! . / и +.
type CommandParser struct {
	validPrefixes []string
	botUsername   string // без @, в нижнем регистре
}

// NewCommandParser создаёт парсер команд.
// botUsername нужен, чтобы понимать команды вида /rep@my_bot.
func NewCommandParser(botUsername string) *CommandParser {
	return &CommandParser{
		validPrefixes: []string{"!", ".", "/", "+"},
		botUsername:   strings.ToLower(strings.TrimPrefix(botUsername, "@")),
	}
}

// Parse разбирает текст на команду и аргументы.
// Второе значение false — текст не является командой бота.
func (p *CommandParser) Parse(text string) (Command, bool) {
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return Command{}, false
	}

	head := strings.ToLower(parts[0])
	args := parts[1:]

	if kind, ok := bareForms[head]; ok {
		return p.withSign(kind, args), true
	}

	prefixed := false
	for _, prefix := range p.validPrefixes {
		if strings.HasPrefix(head, prefix) {
			head = strings.TrimPrefix(head, prefix)
			prefixed = true
			break
		}
	}
	if !prefixed || head == "" {
		return Command{}, false
	}

	if name, bot, ok := strings.Cut(head, "@"); ok {
		if p.botUsername != "" && bot != p.botUsername {
			return Command{}, false
		}
		head = name
	}

	kind, ok := commandAliases[head]
	if !ok {
		return Command{}, false
	}
	return p.withSign(kind, args), true
}

// withSign обрабатывает раздельные формы "реп +" и "реп -".
func (p *CommandParser) withSign(kind CommandKind, args []string) Command {
	if kind == CommandRepPlus || kind == CommandRepMinus {
		if len(args) > 0 {
			switch args[0] {
			case "+":
				return Command{Kind: CommandRepPlus, Args: args[1:]}
			case "-":
				return Command{Kind: CommandRepMinus, Args: args[1:]}
			}
		}
	}
	return Command{Kind: kind, Args: args}
}

// usernameResolver находит участника по @username (реализует members.Service).
type usernameResolver interface {
	ResolveUsername(ctx context.Context, username string) (*members.Profile, error)
}

// resolveTarget определяет цель команды репутации.
// Порядок: text_mention (пользователь без @username) → @username из справочника →
// автор сообщения, на которое ответили. Боты целью быть не могут.
func resolveTarget(ctx context.Context, msg *telego.Message, directory usernameResolver) (int64, error) {
	for _, e := range msg.Entities {
		if e.Type == telego.EntityTypeTextMention && e.User != nil {
			if e.User.IsBot {
				return 0, common.ErrTargetUnresolvable
			}
			return e.User.ID, nil
		}
	}

	for _, e := range msg.Entities {
		if e.Type != telego.EntityTypeMention {
			continue
		}
		username := entityText(msg.Text, e.Offset, e.Length)
		p, err := directory.ResolveUsername(ctx, username)
		if err != nil {
			if errors.Is(err, common.ErrTargetUnresolvable) {
				continue
			}
			return 0, err
		}
		return p.UserID, nil
	}

	if reply := msg.ReplyToMessage; reply != nil && reply.From != nil && !reply.From.IsBot {
		return reply.From.ID, nil
	}
	return 0, common.ErrTargetUnresolvable
}

// entityText вырезает текст сущности. Смещения Telegram считаются в UTF-16.
func entityText(text string, offset, length int) string {
	units := utf16.Encode([]rune(text))
	if offset < 0 || length <= 0 || offset+length > len(units) {
		return ""
	}
	return string(utf16.Decode(units[offset : offset+length]))
}
