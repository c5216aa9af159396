package experience

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/reputation-bot/internal/config"
	"serotonyl.ru/reputation-bot/internal/db/memory"
	"serotonyl.ru/reputation-bot/internal/features/members"
	"serotonyl.ru/reputation-bot/internal/notify"
)

func testConfig() *config.Config {
	return &config.Config{
		XPPerMessage:     2,
		XPNewcomerBonus:  10,
		XPNewcomerWindow: time.Minute,
	}
}

func newTestService(t *testing.T) (*Service, *memory.Store, clockwork.FakeClock, *notify.Recorder) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	store := memory.NewStore(clock)
	rec := &notify.Recorder{}
	return NewService(store, testConfig(), clock, notify.NewSender(rec)), store, clock, rec
}

func TestOnMessage_NewcomerBonusOnEveryMessageInWindow(t *testing.T) {
	svc, store, clock, rec := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.OnJoin(ctx, 42))

	a, err := svc.OnMessage(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 12, a.XP)
	assert.True(t, a.NewcomerBonus)

	clock.Advance(30 * time.Second)
	a, err = svc.OnMessage(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 12, a.XP)

	clock.Advance(30 * time.Second)
	a, err = svc.OnMessage(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 2, a.XP, "window is [join, join+1m)")
	assert.False(t, a.NewcomerBonus)

	got, err := store.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 26, got.Experience)
	assert.Len(t, rec.To(42), 2)
}

func TestOnMessage_CreatesRecordLazily(t *testing.T) {
	svc, store, clock, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.OnMessage(ctx, 7)
	require.NoError(t, err)

	got, err := store.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, clock.Now(), got.JoinTime)
	assert.Equal(t, 12, got.Experience)
}

func TestOnMessage_LevelUpNotifies(t *testing.T) {
	svc, store, clock, rec := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.OnJoin(ctx, 5))
	clock.Advance(time.Hour)
	require.NoError(t, store.Update(ctx, []int64{5}, func(tx members.Tx) error {
		tx.Record(5).Experience = 198
		return nil
	}))

	a, err := svc.OnMessage(ctx, 5)
	require.NoError(t, err)
	assert.True(t, a.Level.Up())
	assert.Equal(t, 1, a.Level.To)

	got, err := store.Get(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Level)
	assert.Equal(t, 2, got.Reputation)

	msgs := rec.To(5)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "повышен до 1")
}

func TestOnJoin_Idempotent(t *testing.T) {
	svc, store, clock, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.OnJoin(ctx, 9))
	joined := clock.Now()
	clock.Advance(time.Hour)
	require.NoError(t, svc.OnJoin(ctx, 9))

	got, err := store.Get(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, joined, got.JoinTime)
}

func TestOnMessage_NotificationFailureDoesNotUndoAward(t *testing.T) {
	svc, store, _, rec := newTestService(t)
	rec.Err = assert.AnError
	ctx := context.Background()

	_, err := svc.OnMessage(ctx, 3)
	require.NoError(t, err)

	got, err := store.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 12, got.Experience)
}
