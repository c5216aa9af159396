package bot

import (
	"github.com/mymmrac/telego"

	"serotonyl.ru/reputation-bot/internal/events"
	"serotonyl.ru/reputation-bot/internal/features/members"
)

// updateMemberID возвращает id участника, к которому относится апдейт (ключ шардирования).
func updateMemberID(upd telego.Update) int64 {
	switch {
	case upd.Message != nil && upd.Message.From != nil:
		return upd.Message.From.ID
	case upd.ChatMember != nil && upd.ChatMember.NewChatMember != nil:
		return upd.ChatMember.NewChatMember.MemberUser().ID
	}
	return 0
}

// isMuted — участник ограничен и не может писать (тайм-аут в Telegram).
func isMuted(cm telego.ChatMember) bool {
	if cm == nil || cm.MemberStatus() != telego.MemberStatusRestricted {
		return false
	}
	r, ok := cm.(*telego.ChatMemberRestricted)
	return ok && !r.CanSendMessages
}

// isPresent — участник состоит в чате.
func isPresent(cm telego.ChatMember) bool {
	if cm == nil {
		return false
	}
	switch cm.MemberStatus() {
	case telego.MemberStatusLeft, telego.MemberStatusBanned:
		return false
	case telego.MemberStatusRestricted:
		r, ok := cm.(*telego.ChatMemberRestricted)
		return ok && r.IsMember
	}
	return true
}

// chatMemberEvents переводит изменение статуса участника в события движка.
// Тайм-аут засчитывается только при переходе в состояние "не может писать",
// повторные апдейты того же ограничения игнорируются.
func chatMemberEvents(u *telego.ChatMemberUpdated) []events.Event {
	if u == nil || u.NewChatMember == nil {
		return nil
	}
	user := u.NewChatMember.MemberUser()
	if user.IsBot {
		return nil
	}

	var out []events.Event
	if !isPresent(u.OldChatMember) && isPresent(u.NewChatMember) {
		out = append(out, events.MemberJoined{MemberID: user.ID})
	}
	if !isMuted(u.OldChatMember) && isMuted(u.NewChatMember) {
		out = append(out, events.MemberTimedOut{MemberID: user.ID})
	}
	return out
}

// profileFromUser строит запись справочника из пользователя Telegram.
func profileFromUser(u *telego.User) *members.Profile {
	if u == nil {
		return nil
	}
	return &members.Profile{
		UserID:    u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		IsBot:     u.IsBot,
	}
}

// displayName — имя автора команды для профиля.
func displayName(u *telego.User) string {
	if p := profileFromUser(u); p != nil {
		return p.DisplayName()
	}
	return ""
}
