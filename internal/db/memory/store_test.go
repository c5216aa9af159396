package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/reputation-bot/internal/common"
	"serotonyl.ru/reputation-bot/internal/features/members"
)

func newStore() (*Store, clockwork.FakeClock) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	return NewStore(clock), clock
}

func TestEnsure(t *testing.T) {
	s, clock := newStore()
	ctx := context.Background()

	created, err := s.Ensure(ctx, 1, clock.Now())
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.Ensure(ctx, 1, clock.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, created)

	rec, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, clock.Now(), rec.JoinTime)
}

func TestGet_ReturnsCopy(t *testing.T) {
	s, clock := newStore()
	ctx := context.Background()
	_, err := s.Ensure(ctx, 1, clock.Now())
	require.NoError(t, err)

	rec, err := s.Get(ctx, 1)
	require.NoError(t, err)
	rec.Reputation = 100
	rec.RepCooldowns[2] = clock.Now()

	again, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, again.Reputation)
	assert.Empty(t, again.RepCooldowns)
}

func TestUpdate_RollbackOnError(t *testing.T) {
	s, _ := newStore()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Update(ctx, []int64{1, 2}, func(tx members.Tx) error {
		tx.Record(1).Reputation = 5
		_, err := tx.OpenVoiceSession(ctx, &members.VoiceSession{UserID: 2, ChannelID: 9, JoinTime: time.Now()})
		require.NoError(t, err)
		require.NoError(t, tx.AppendAudit(ctx, &members.AuditEntry{Code: "AAAAAA"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.Get(ctx, 1)
	assert.ErrorIs(t, err, common.ErrUserNotFound)
	open, err := s.OpenVoiceSessions(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, open)
	entries, err := s.RecentAudit(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUpdate_DuplicateIDs(t *testing.T) {
	s, _ := newStore()
	ctx := context.Background()

	err := s.Update(ctx, []int64{3, 3, 1}, func(tx members.Tx) error {
		tx.Record(3).Experience = 10
		assert.Nil(t, tx.Record(4))
		return nil
	})
	require.NoError(t, err)

	rec, err := s.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 10, rec.Experience)
}

func TestUpdate_VoiceSessionOfUnlockedMember(t *testing.T) {
	s, _ := newStore()
	ctx := context.Background()

	err := s.Update(ctx, []int64{1}, func(tx members.Tx) error {
		_, err := tx.CloseVoiceSession(ctx, 2, time.Now())
		return err
	})
	var pe *common.PersistenceError
	assert.ErrorAs(t, err, &pe)
}

func TestUpdate_SerializesPerMember(t *testing.T) {
	s, _ := newStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(other int64) {
			defer wg.Done()
			err := s.Update(ctx, []int64{other, 1}, func(tx members.Tx) error {
				tx.Record(1).Experience++
				tx.Record(other).Experience++
				return nil
			})
			assert.NoError(t, err)
		}(int64(i%5 + 2))
	}
	wg.Wait()

	rec, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 100, rec.Experience)
	for id := int64(2); id <= 6; id++ {
		rec, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 20, rec.Experience)
	}
}

func TestUpdate_CanceledContext(t *testing.T) {
	s, _ := newStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.Update(ctx, []int64{1}, func(tx members.Tx) error {
		called = true
		return nil
	})
	var pe *common.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestVoiceSessions(t *testing.T) {
	s, clock := newStore()
	ctx := context.Background()
	join := clock.Now()

	require.NoError(t, s.Update(ctx, []int64{1}, func(tx members.Tx) error {
		stale, err := tx.OpenVoiceSession(ctx, &members.VoiceSession{UserID: 1, ChannelID: 5, JoinTime: join})
		assert.Empty(t, stale)
		return err
	}))

	open, err := s.OpenVoiceSessions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, int64(5), open[0].ChannelID)

	leave := join.Add(30 * time.Minute)
	var closed *members.VoiceSession
	require.NoError(t, s.Update(ctx, []int64{1}, func(tx members.Tx) error {
		var err error
		closed, err = tx.CloseVoiceSession(ctx, 1, leave)
		return err
	}))
	require.NotNil(t, closed)
	assert.Equal(t, 30*time.Minute, closed.Duration())

	open, err = s.OpenVoiceSessions(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, open)

	require.NoError(t, s.Update(ctx, []int64{1}, func(tx members.Tx) error {
		var err error
		closed, err = tx.CloseVoiceSession(ctx, 1, leave)
		return err
	}))
	assert.Nil(t, closed)
}

func TestResetDailyCounters(t *testing.T) {
	s, clock := newStore()
	ctx := context.Background()
	today := common.DateIn(clock.Now(), time.UTC)
	yesterday := today.AddDate(0, 0, -1)

	require.NoError(t, s.Update(ctx, []int64{1, 2, 3}, func(tx members.Tx) error {
		tx.Record(1).RepActionsToday = 7
		tx.Record(1).LastReset = &yesterday
		tx.Record(2).RepActionsToday = 3
		tx.Record(2).LastReset = &today
		tx.Record(3).RepActionsToday = 1
		return nil
	}))

	n, err := s.ResetDailyCounters(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	for id, want := range map[int64]int{1: 0, 2: 3, 3: 0} {
		rec, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, rec.RepActionsToday, "user %d", id)
		require.NotNil(t, rec.LastReset)
		assert.Equal(t, today, *rec.LastReset)
	}

	n, err = s.ResetDailyCounters(ctx, today)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAudit(t *testing.T) {
	s, clock := newStore()
	ctx := context.Background()

	for i, code := range []string{"AAAAAA", "BBBBBB", "AAAAAA"} {
		e := &members.AuditEntry{Code: code, Action: members.ActionPlus, FromUser: 1, ToUser: int64(i + 2), Timestamp: clock.Now()}
		require.NoError(t, s.Update(ctx, []int64{1, e.ToUser}, func(tx members.Tx) error {
			return tx.AppendAudit(ctx, e)
		}))
		assert.Equal(t, int64(i+1), e.ID)
	}

	found, err := s.FindAuditByCode(ctx, "aaaaaa")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, int64(2), found[0].ToUser)
	assert.Equal(t, int64(4), found[1].ToUser)

	recent, err := s.RecentAudit(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, int64(3), recent[0].ID)
	assert.Equal(t, int64(2), recent[1].ID)
}

func TestProfiles(t *testing.T) {
	s, _ := newStore()
	ctx := context.Background()

	require.NoError(t, s.SaveProfile(ctx, &members.Profile{UserID: 1, Username: "Alice"}))
	p, err := s.ProfileByUsername(ctx, "ALICE")
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.UserID)

	_, err = s.ProfileByID(ctx, 2)
	assert.ErrorIs(t, err, common.ErrUserNotFound)
	_, err = s.ProfileByUsername(ctx, "")
	assert.ErrorIs(t, err, common.ErrUserNotFound)
}

func TestProfileByUsername_LatestOwnerWins(t *testing.T) {
	s, _ := newStore()
	ctx := context.Background()

	// Перебор map случайный, поэтому повторяем несколько раз
	for i := 0; i < 20; i++ {
		require.NoError(t, s.SaveProfile(ctx, &members.Profile{UserID: 1, Username: "nick"}))
		require.NoError(t, s.SaveProfile(ctx, &members.Profile{UserID: 2, Username: "Nick"}))
		p, err := s.ProfileByUsername(ctx, "nick")
		require.NoError(t, err)
		assert.Equal(t, int64(2), p.UserID)

		require.NoError(t, s.SaveProfile(ctx, &members.Profile{UserID: 1, Username: "nick"}))
		p, err = s.ProfileByUsername(ctx, "NICK")
		require.NoError(t, err)
		assert.Equal(t, int64(1), p.UserID)
	}
}

func TestSortedUnique(t *testing.T) {
	assert.Equal(t, []int64{1, 2, 5}, sortedUnique([]int64{5, 1, 2, 5, 1}))
	assert.Empty(t, sortedUnique(nil))
}
