// Package members — service.go содержит логику справочника участников.
// Сервис запоминает имена пользователей, находит цель команды по @username
// и отдаёт отображаемые имена для журнала репутации.
package members

import (
	"context"
	"errors"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/reputation-bot/internal/common"
)

// Service управляет справочником участников.
type Service struct {
	store Store
}

// NewService создаёт новый сервис участников.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Remember сохраняет (или обновляет) имя пользователя в справочнике.
// Вызывается на каждое сообщение и на вступление в чат.
func (s *Service) Remember(ctx context.Context, p *Profile) error {
	if p == nil || p.UserID == 0 {
		return nil
	}
	p.Username = strings.TrimPrefix(strings.TrimSpace(p.Username), "@")
	return s.store.SaveProfile(ctx, p)
}

// ResolveUsername находит участника по @username.
// Возвращает common.ErrTargetUnresolvable, если такого имени нет в справочнике
// или это бот.
func (s *Service) ResolveUsername(ctx context.Context, username string) (*Profile, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return nil, common.ErrTargetUnresolvable
	}
	p, err := s.store.ProfileByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrUserNotFound) {
			return nil, common.ErrTargetUnresolvable
		}
		return nil, err
	}
	if p.IsBot {
		return nil, common.ErrTargetUnresolvable
	}
	return p, nil
}

// DisplayName возвращает имя участника для сообщений.
// Если участника нет в справочнике — его числовой id.
func (s *Service) DisplayName(ctx context.Context, userID int64) string {
	p, err := s.store.ProfileByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, common.ErrUserNotFound) {
			log.WithError(err).WithField("user_id", userID).Warn("ProfileByID failed")
		}
		return "id" + strconv.FormatInt(userID, 10)
	}
	if name := p.DisplayName(); name != "" {
		return name
	}
	return "id" + strconv.FormatInt(userID, 10)
}
