package members_test

import (
	"context"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/reputation-bot/internal/common"
	"serotonyl.ru/reputation-bot/internal/db/memory"
	"serotonyl.ru/reputation-bot/internal/features/members"
)

func TestService_ResolveUsername(t *testing.T) {
	store := memory.NewStore(clockwork.NewFakeClock())
	svc := members.NewService(store)
	ctx := context.Background()

	require.NoError(t, svc.Remember(ctx, &members.Profile{UserID: 5, Username: "@Alice", FirstName: "Alice"}))
	require.NoError(t, svc.Remember(ctx, &members.Profile{UserID: 6, Username: "helper_bot", IsBot: true}))

	p, err := svc.ResolveUsername(ctx, "@alice")
	require.NoError(t, err)
	assert.Equal(t, int64(5), p.UserID)

	_, err = svc.ResolveUsername(ctx, "helper_bot")
	assert.ErrorIs(t, err, common.ErrTargetUnresolvable)

	_, err = svc.ResolveUsername(ctx, "@nobody")
	assert.ErrorIs(t, err, common.ErrTargetUnresolvable)

	_, err = svc.ResolveUsername(ctx, "@")
	assert.ErrorIs(t, err, common.ErrTargetUnresolvable)
}

func TestService_RememberUpdatesUsername(t *testing.T) {
	store := memory.NewStore(clockwork.NewFakeClock())
	svc := members.NewService(store)
	ctx := context.Background()

	require.NoError(t, svc.Remember(ctx, &members.Profile{UserID: 5, Username: "old"}))
	require.NoError(t, svc.Remember(ctx, &members.Profile{UserID: 5, Username: "new"}))

	_, err := svc.ResolveUsername(ctx, "old")
	assert.ErrorIs(t, err, common.ErrTargetUnresolvable)
	assert.Equal(t, "@new", svc.DisplayName(ctx, 5))
}

func TestService_DisplayNameFallback(t *testing.T) {
	store := memory.NewStore(clockwork.NewFakeClock())
	svc := members.NewService(store)
	ctx := context.Background()

	assert.Equal(t, "id42", svc.DisplayName(ctx, 42))

	require.NoError(t, svc.Remember(ctx, &members.Profile{UserID: 43}))
	assert.Equal(t, "id43", svc.DisplayName(ctx, 43))

	require.NoError(t, svc.Remember(ctx, &members.Profile{UserID: 44, FirstName: "Ann"}))
	assert.Equal(t, "Ann", svc.DisplayName(ctx, 44))
}
