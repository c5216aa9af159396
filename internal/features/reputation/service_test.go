package reputation

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
	"serotonyl.ru/reputation-bot/internal/config"
	"serotonyl.ru/reputation-bot/internal/db/memory"
	"serotonyl.ru/reputation-bot/internal/features/members"
	"serotonyl.ru/reputation-bot/internal/notify"
)

type fixture struct {
	svc   *Service
	store *memory.Store
	clock clockwork.FakeClock
	rec   *notify.Recorder
	cfg   *config.Config
}

func testConfig() *config.Config {
	return &config.Config{
		AppTimezone:        "UTC",
		LogChannelID:       -100,
		RepMinLevel:        2,
		RepDailyLimit:      7,
		RepCooldown:        72 * time.Hour,
		RepReportWindow:    20 * time.Minute,
		RepReportThreshold: 5,
		RepImmunity:        5 * time.Hour,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	store := memory.NewStore(clock)
	rec := &notify.Recorder{}
	cfg := testConfig()
	svc := NewService(store, members.NewService(store), cfg, clock, notify.NewSender(rec))
	return &fixture{svc: svc, store: store, clock: clock, rec: rec, cfg: cfg}
}

func (f *fixture) setLevel(t *testing.T, userID int64, level int) {
	t.Helper()
	require.NoError(t, f.store.Update(context.Background(), []int64{userID}, func(tx members.Tx) error {
		tx.Record(userID).Level = level
		return nil
	}))
}

func (f *fixture) get(t *testing.T, userID int64) *members.Record {
	t.Helper()
	rec, err := f.store.Get(context.Background(), userID)
	require.NoError(t, err)
	return rec
}

func TestApply_PlusScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const a, b = 1, 2
	f.setLevel(t, a, 5)
	f.setLevel(t, b, 3)

	res, err := f.svc.Apply(ctx, a, b, +1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.TargetReputation)
	assert.False(t, res.ImmunityGranted)

	target := f.get(t, b)
	assert.Equal(t, 1, target.Reputation)

	actor := f.get(t, a)
	assert.Equal(t, f.clock.Now(), actor.RepCooldowns[b])
	assert.Equal(t, 1, actor.RepActionsToday)
	require.NotNil(t, actor.LastRepGiven)
	assert.Equal(t, f.clock.Now(), *actor.LastRepGiven)

	entries, err := f.store.RecentAudit(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, members.ActionPlus, entries[0].Action)
	assert.Equal(t, int64(a), entries[0].FromUser)
	assert.Equal(t, int64(b), entries[0].ToUser)
	assert.True(t, common.IsSessionCode(entries[0].Code))
	assert.Equal(t, res.Entry.Code, entries[0].Code)

	assert.Contains(t, f.rec.To(a)[0], res.Entry.Code)
	assert.Equal(t, []string{"💚 Ваша репутация анонимно повышена"}, f.rec.To(b))
	logLines := f.rec.To(0)
	require.Len(t, logLines, 1)
	assert.Equal(t, "`"+res.Entry.Code+"` +rep | id1 → id2", logLines[0])
}

func TestApply_ImmediateMinusHitsCooldown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setLevel(t, 1, 5)

	_, err := f.svc.Apply(ctx, 1, 2, +1)
	require.NoError(t, err)
	before1, before2 := f.get(t, 1), f.get(t, 2)

	_, err = f.svc.Apply(ctx, 1, 2, -1)
	require.ErrorIs(t, err, common.ErrCooldownActive)
	var cd *common.CooldownError
	require.True(t, errors.As(err, &cd))
	assert.Equal(t, 72*time.Hour, cd.Remaining)

	assert.Equal(t, before1, f.get(t, 1))
	assert.Equal(t, before2, f.get(t, 2))

	entries, err := f.store.RecentAudit(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestApply_SelfTarget(t *testing.T) {
	f := newFixture(t)
	f.setLevel(t, 1, 10)

	_, err := f.svc.Apply(context.Background(), 1, 1, +1)
	assert.ErrorIs(t, err, common.ErrSelfTarget)
	assert.Equal(t, 0, f.get(t, 1).Reputation)
}

func TestApply_InvalidDelta(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Apply(context.Background(), 1, 2, 3)
	assert.ErrorIs(t, err, common.ErrInvalidDelta)
}

func TestApply_LowLevelNeverSucceeds(t *testing.T) {
	for _, level := range []int{0, 1} {
		for _, delta := range []int{+1, -1} {
			f := newFixture(t)
			f.setLevel(t, 1, level)
			f.setLevel(t, 2, 0)

			_, err := f.svc.Apply(context.Background(), 1, 2, delta)
			assert.ErrorIs(t, err, common.ErrInsufficientLevel, "level %d delta %d", level, delta)
			assert.Equal(t, 0, f.get(t, 2).Reputation)
		}
	}
}

func TestApply_UnknownActorHasLevelZero(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Apply(ctx, 100, 200, +1)
	require.ErrorIs(t, err, common.ErrInsufficientLevel)

	// Отказ не оставляет созданных записей
	_, err = f.store.Get(ctx, 100)
	assert.ErrorIs(t, err, common.ErrUserNotFound)
	_, err = f.store.Get(ctx, 200)
	assert.ErrorIs(t, err, common.ErrUserNotFound)
}

func TestApply_CooldownExpiresAfterThreeDays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setLevel(t, 1, 5)

	_, err := f.svc.Apply(ctx, 1, 2, +1)
	require.NoError(t, err)

	f.clock.Advance(72*time.Hour - time.Second)
	_, err = f.svc.Apply(ctx, 1, 2, +1)
	var cd *common.CooldownError
	require.ErrorAs(t, err, &cd)
	assert.Equal(t, time.Second, cd.Remaining)

	f.clock.Advance(time.Second)
	_, err = f.svc.Apply(ctx, 1, 2, +1)
	require.NoError(t, err)
	assert.Equal(t, 2, f.get(t, 2).Reputation)
}

func TestApply_CooldownIsPerPair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setLevel(t, 1, 5)
	f.setLevel(t, 2, 5)

	_, err := f.svc.Apply(ctx, 1, 3, +1)
	require.NoError(t, err)
	_, err = f.svc.Apply(ctx, 1, 4, +1)
	require.NoError(t, err, "other target")
	_, err = f.svc.Apply(ctx, 2, 3, +1)
	require.NoError(t, err, "other actor")
}

func TestApply_PrunesExpiredCooldowns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setLevel(t, 1, 5)

	_, err := f.svc.Apply(ctx, 1, 2, +1)
	require.NoError(t, err)
	_, err = f.svc.Apply(ctx, 1, 3, +1)
	require.NoError(t, err)

	f.clock.Advance(72 * time.Hour)
	_, err = f.svc.Apply(ctx, 1, 4, +1)
	require.NoError(t, err)

	actor := f.get(t, 1)
	assert.Equal(t, []int64{4}, actor.CooldownTargets())
}

func TestApply_DailyLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setLevel(t, 1, 5)

	for target := int64(10); target < 17; target++ {
		_, err := f.svc.Apply(ctx, 1, target, +1)
		require.NoError(t, err)
	}
	_, err := f.svc.Apply(ctx, 1, 17, +1)
	require.ErrorIs(t, err, common.ErrDailyLimitExceeded)
	assert.Equal(t, 7, f.get(t, 1).RepActionsToday)

	// Новая дата: счётчик сбрасывается лениво, без планировщика
	f.clock.Advance(12 * time.Hour)
	_, err = f.svc.Apply(ctx, 1, 17, +1)
	require.NoError(t, err)
	assert.Equal(t, 1, f.get(t, 1).RepActionsToday)
}

func TestApply_ConcurrentDailyLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setLevel(t, 1, 5)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		limited   int
	)
	for target := int64(100); target < 130; target++ {
		wg.Add(1)
		go func(target int64) {
			defer wg.Done()
			_, err := f.svc.Apply(ctx, 1, target, +1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, common.ErrDailyLimitExceeded):
				limited++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(target)
	}
	wg.Wait()

	assert.Equal(t, 7, successes)
	assert.Equal(t, 23, limited)
	assert.Equal(t, 7, f.get(t, 1).RepActionsToday)

	entries, err := f.store.RecentAudit(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, entries, 7)
}

func TestApply_ConcurrentOppositeDirectionsDoNotDeadlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setLevel(t, 1, 5)
	f.setLevel(t, 2, 5)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() { defer wg.Done(); _, errs[0] = f.svc.Apply(ctx, 1, 2, +1) }()
	go func() { defer wg.Done(); _, errs[1] = f.svc.Apply(ctx, 2, 1, +1) }()
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, 1, f.get(t, 1).Reputation)
	assert.Equal(t, 1, f.get(t, 2).Reputation)
}

func TestApply_ImmunityAfterFiveNegatives(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const target = 50
	for actor := int64(1); actor <= 6; actor++ {
		f.setLevel(t, actor, 3)
	}

	var last *Result
	for actor := int64(1); actor <= 5; actor++ {
		res, err := f.svc.Apply(ctx, actor, target, -1)
		require.NoError(t, err)
		last = res
		f.clock.Advance(time.Minute)
	}
	require.True(t, last.ImmunityGranted)
	grantedAt := f.clock.Now().Add(-time.Minute)
	assert.Equal(t, grantedAt.Add(5*time.Hour), last.ImmuneUntil)

	rec := f.get(t, target)
	require.NotNil(t, rec.ImmuneUntil)
	assert.Equal(t, grantedAt.Add(5*time.Hour), *rec.ImmuneUntil)
	assert.Equal(t, -5, rec.Reputation)

	_, err := f.svc.Apply(ctx, 6, target, -1)
	assert.ErrorIs(t, err, common.ErrTargetImmune)
	assert.Equal(t, -5, f.get(t, target).Reputation)

	// Плюс иммунитет не блокирует
	_, err = f.svc.Apply(ctx, 6, target, +1)
	require.NoError(t, err)

	msgs := f.rec.To(target)
	assert.Contains(t, msgs[len(msgs)-2], "Иммунитет")
}

func TestApply_ImmunityExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const target = 50
	for actor := int64(1); actor <= 6; actor++ {
		f.setLevel(t, actor, 3)
	}
	for actor := int64(1); actor <= 5; actor++ {
		_, err := f.svc.Apply(ctx, actor, target, -1)
		require.NoError(t, err)
	}

	f.clock.Advance(5 * time.Hour)
	_, err := f.svc.Apply(ctx, 6, target, -1)
	require.NoError(t, err)
}

func TestApply_OldReportsLeaveWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const target = 50
	for actor := int64(1); actor <= 5; actor++ {
		f.setLevel(t, actor, 3)
	}
	for actor := int64(1); actor <= 4; actor++ {
		_, err := f.svc.Apply(ctx, actor, target, -1)
		require.NoError(t, err)
	}

	f.clock.Advance(21 * time.Minute)
	res, err := f.svc.Apply(ctx, 5, target, -1)
	require.NoError(t, err)
	assert.False(t, res.ImmunityGranted)

	rec := f.get(t, target)
	assert.Nil(t, rec.ImmuneUntil)
	assert.Len(t, rec.RecentNegativeReports, 1)
}

func TestApply_PersistenceErrorLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	f.setLevel(t, 1, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.svc.Apply(ctx, 1, 2, +1)

	var pe *common.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.False(t, common.IsRejection(err))
	assert.Equal(t, 0, f.get(t, 1).RepActionsToday)
	assert.Empty(t, f.rec.Messages())
}

func TestApply_NoLogChannel(t *testing.T) {
	f := newFixture(t)
	f.cfg.LogChannelID = 0
	f.setLevel(t, 1, 5)

	_, err := f.svc.Apply(context.Background(), 1, 2, -1)
	require.NoError(t, err)
	assert.Empty(t, f.rec.To(0))
	assert.Equal(t, []string{"📉 Ваша репутация анонимно понижена"}, f.rec.To(2))
}

func TestResetDaily(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setLevel(t, 1, 5)

	_, err := f.svc.Apply(ctx, 1, 2, +1)
	require.NoError(t, err)

	// Та же дата — сбрасывать нечего у автора (у цели дата сброса не задана)
	n, err := f.svc.ResetDaily(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, f.get(t, 1).RepActionsToday)

	f.clock.Advance(24 * time.Hour)
	n, err = f.svc.ResetDaily(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 0, f.get(t, 1).RepActionsToday)

	n, err = f.svc.ResetDaily(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFailureText(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, "❌ Нельзя изменить репутацию себе", f.svc.FailureText(common.ErrSelfTarget))
	assert.Equal(t, "❌ Необходим 2+ уровень для изменения репутации", f.svc.FailureText(common.ErrInsufficientLevel))
	assert.Equal(t, "❌ Нельзя так часто изменять репутацию одному пользователю: кулдаун 3 дня, осталось 2 дня 2 часа",
		f.svc.FailureText(&common.CooldownError{Remaining: 50 * time.Hour}))
	assert.Equal(t, "❌ Дневной лимит исчерпан: 7 изменений репутации в день", f.svc.FailureText(common.ErrDailyLimitExceeded))
	assert.Equal(t, "⚠️ Не удалось выполнить команду, попробуйте позже",
		f.svc.FailureText(common.Persistence("update", errors.New("boom"))))
}

func TestTextsFollowConfig(t *testing.T) {
	f := newFixture(t)
	f.cfg.RepMinLevel = 4
	f.cfg.RepDailyLimit = 3
	f.cfg.RepCooldown = 24 * time.Hour
	f.cfg.RepReportThreshold = 2
	f.cfg.RepReportWindow = 10 * time.Minute
	f.cfg.RepImmunity = time.Hour

	assert.Equal(t, "❌ Необходим 4+ уровень для изменения репутации", f.svc.FailureText(common.ErrInsufficientLevel))
	assert.Equal(t, "❌ Дневной лимит исчерпан: 3 изменения репутации в день", f.svc.FailureText(common.ErrDailyLimitExceeded))
	assert.Contains(t, f.svc.FailureText(&common.CooldownError{Remaining: time.Hour}), "кулдаун 1 день")

	help := f.svc.HelpText()
	assert.Contains(t, help, "Требуется: 4+ уровень")
	assert.Contains(t, help, "Дневной лимит: 3 изменения")
	assert.Contains(t, help, "Кулдаун на одного человека: 1 день")
	assert.Contains(t, help, "Иммунитет: 2 минуса в окне 10 минут")
	assert.Contains(t, help, "(длительность: 1 час)")
	assert.NotContains(t, help, "%!")
}
