package streak_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/performance-engine/generic"
	"github.com/warp/performance-engine/streak"
)

const tenant = generic.TenantID("biz-1")

func day(d int) generic.TimePoint { return generic.NewTimePoint(2025, time.March, d) }

func newTracker(t *testing.T, today int) (*streak.Tracker, *streak.MemoryStore, *generic.FixedClock) {
	t.Helper()
	clock := &generic.FixedClock{At: time.Date(2025, time.March, today, 12, 0, 0, 0, time.UTC)}
	store := streak.NewMemoryStore()
	return streak.NewTracker(store, streak.DefaultTables(), clock, nil, nil), store, clock
}

type milestoneRecorder struct{ days []int }

func (m *milestoneRecorder) StreakMilestone(_ context.Context, _ streak.State, days int) error {
	m.days = append(m.days, days)
	return nil
}

// =============================================================================
// PURE TRANSITIONS
// =============================================================================

func TestRecordActivity_SameDayIsIdempotent(t *testing.T) {
	tables := streak.DefaultTables()
	s := streak.NewState(tenant, "u1", "calls")

	first := streak.RecordActivity(s, day(5), tables)
	require.True(t, first.Changed)
	second := streak.RecordActivity(first.State, day(5), tables)

	assert.False(t, second.Changed)
	assert.Empty(t, second.Events)
	assert.Equal(t, 1, second.State.Current)
	assert.Equal(t, 1, second.State.TotalDays)
}

func TestRecordActivity_ConsecutiveDaysIncrement(t *testing.T) {
	tables := streak.DefaultTables()
	s := streak.NewState(tenant, "u1", "calls")

	var tr streak.Transition
	for d := 1; d <= 7; d++ {
		tr = streak.RecordActivity(s, day(d), tables)
		s = tr.State
	}

	assert.Equal(t, 7, s.Current)
	assert.Equal(t, 7, s.Best)
	assert.Equal(t, 1.10, s.Multiplier)
	assert.Equal(t, 7, tr.Milestone)
	assert.Equal(t, 1, s.TotalStreaks)
	assert.True(t, s.BestStart.Equal(day(1)))
	assert.True(t, s.BestEnd.Equal(day(7)))
}

func TestRecordActivity_GapBreaksAndRestartsAtOne(t *testing.T) {
	// GIVEN: A 4 day streak whose last activity was 3 days ago
	tables := streak.DefaultTables()
	s := streak.NewState(tenant, "u1", "calls")
	for d := 1; d <= 4; d++ {
		s = streak.RecordActivity(s, day(d), tables).State
	}

	// WHEN: Activity resumes on the 7th
	tr := streak.RecordActivity(s, day(7), tables)

	// THEN: A break with the pre-reset value is logged and a fresh streak starts
	require.Len(t, tr.Events, 2)
	assert.Equal(t, streak.EventBreak, tr.Events[0].Event)
	assert.Equal(t, 4, tr.Events[0].Value)
	assert.Equal(t, streak.EventIncrement, tr.Events[1].Event)
	assert.Equal(t, 4, tr.BrokeFrom)
	assert.Equal(t, 1, tr.State.Current)
	assert.Equal(t, 4, tr.State.Best)
	assert.Equal(t, 2, tr.State.TotalStreaks)
	assert.Equal(t, 1.0, tr.State.Multiplier)
	assert.True(t, tr.State.StartDate.Equal(day(7)))
}

func TestRecordActivity_FrozenNeitherAdvancesNorBreaks(t *testing.T) {
	tables := streak.DefaultTables()
	s := streak.NewState(tenant, "u1", "calls")
	s = streak.RecordActivity(s, day(1), tables).State
	s = streak.RecordActivity(s, day(2), tables).State

	frozen, err := streak.Freeze(s, day(2), 5)
	require.NoError(t, err)
	tr := streak.RecordActivity(frozen.State, day(6), tables)

	assert.False(t, tr.Changed)
	assert.Equal(t, 2, tr.State.Current)
	assert.True(t, tr.State.IsActive(day(6)))
	assert.False(t, tr.State.IsAtRisk(day(6)))
}

func TestUnfreeze_ContinuesStreakToday(t *testing.T) {
	tables := streak.DefaultTables()
	s := streak.NewState(tenant, "u1", "calls")
	s = streak.RecordActivity(s, day(1), tables).State
	fr, _ := streak.Freeze(s, day(1), 3)

	uf, err := streak.Unfreeze(fr.State, day(10))
	require.NoError(t, err)
	assert.True(t, uf.State.LastActivity.Equal(day(9)))

	tr := streak.RecordActivity(uf.State, day(10), tables)
	assert.Equal(t, 2, tr.State.Current)
	assert.Zero(t, tr.BrokeFrom)

	_, err = streak.Unfreeze(tr.State, day(10))
	assert.ErrorIs(t, err, generic.ErrPrecondition)
}

func TestState_AtRiskAndMilestones(t *testing.T) {
	tables := streak.DefaultTables()
	typ, _ := tables.Type("leads")
	s := streak.NewState(tenant, "u1", "leads")
	for d := 1; d <= 10; d++ {
		s = streak.RecordActivity(s, day(d), tables).State
	}

	assert.True(t, s.IsAtRisk(day(11)))
	assert.False(t, s.IsAtRisk(day(10)))
	assert.False(t, s.IsActive(day(12)))
	assert.Equal(t, 14, s.NextMilestone(typ))
	assert.Equal(t, 4, s.DaysToMilestone(typ))
}

func TestTables_MultiplierFor(t *testing.T) {
	tables := streak.DefaultTables()
	assert.Equal(t, 1.0, tables.MultiplierFor(6))
	assert.Equal(t, 1.15, tables.MultiplierFor(20))
	assert.Equal(t, 1.30, tables.MultiplierFor(365))
	require.NoError(t, tables.Validate())
}

// =============================================================================
// TRACKER
// =============================================================================

func TestTracker_PersistsHistoryAndFiresMilestone(t *testing.T) {
	ctx := context.Background()
	tracker, store, _ := newTracker(t, 20)
	rec := &milestoneRecorder{}
	tracker.OnMilestone(rec)

	var s streak.State
	var err error
	for d := 1; d <= 7; d++ {
		s, err = tracker.RecordActivity(ctx, tenant, "u1", "calls", day(d))
		require.NoError(t, err)
	}
	// A repeat of the milestone day records nothing but notifies again
	_, err = tracker.RecordActivity(ctx, tenant, "u1", "calls", day(7))
	require.NoError(t, err)

	assert.Equal(t, []int{7, 7}, rec.days)
	history, err := store.History(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, history, 7)
}

type flakyListener struct {
	fail int
	days []int
}

func (f *flakyListener) StreakMilestone(_ context.Context, _ streak.State, days int) error {
	if f.fail > 0 {
		f.fail--
		return errors.New("achievement store unavailable")
	}
	f.days = append(f.days, days)
	return nil
}

func TestTracker_MilestoneRetriedAfterListenerFailure(t *testing.T) {
	// GIVEN: a listener that fails once
	ctx := context.Background()
	tracker, _, _ := newTracker(t, 20)
	l := &flakyListener{fail: 1}
	tracker.OnMilestone(l)
	for d := 1; d <= 6; d++ {
		_, err := tracker.RecordActivity(ctx, tenant, "u1", "calls", day(d))
		require.NoError(t, err)
	}

	// WHEN: the seventh day fails to notify and is recorded again
	s, err := tracker.RecordActivity(ctx, tenant, "u1", "calls", day(7))
	require.Error(t, err)
	assert.Equal(t, 7, s.Current)
	s, err = tracker.RecordActivity(ctx, tenant, "u1", "calls", day(7))

	// THEN: the retry delivers the milestone without advancing the streak
	require.NoError(t, err)
	assert.Equal(t, 7, s.Current)
	assert.Equal(t, []int{7}, l.days)
}

func TestTracker_ConcurrentSameDayActivityCountsOnce(t *testing.T) {
	// GIVEN: a three day streak
	ctx := context.Background()
	tracker, _, _ := newTracker(t, 20)
	for d := 1; d <= 3; d++ {
		_, err := tracker.RecordActivity(ctx, tenant, "u1", "calls", day(d))
		require.NoError(t, err)
	}

	// WHEN: day four is recorded by many callers at once
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tracker.RecordActivity(ctx, tenant, "u1", "calls", day(4))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// THEN: the streak advanced by exactly one day
	s, err := tracker.State(ctx, tenant, "u1", "calls")
	require.NoError(t, err)
	assert.Equal(t, 4, s.Current)
	assert.Equal(t, 4, s.TotalDays)
}

func TestTracker_UnknownType(t *testing.T) {
	tracker, _, _ := newTracker(t, 1)
	_, err := tracker.RecordActivity(context.Background(), tenant, "u1", "push_ups", day(1))
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestTracker_ExpiredFreezeLiftsOnActivity(t *testing.T) {
	ctx := context.Background()
	tracker, _, clock := newTracker(t, 2)
	_, err := tracker.RecordActivity(ctx, tenant, "u1", "login", day(1))
	require.NoError(t, err)
	_, err = tracker.RecordActivity(ctx, tenant, "u1", "login", day(2))
	require.NoError(t, err)

	_, err = tracker.Freeze(ctx, tenant, "u1", "login", 3) // until the 5th
	require.NoError(t, err)

	clock.At = time.Date(2025, time.March, 8, 9, 0, 0, 0, time.UTC)
	s, err := tracker.RecordActivity(ctx, tenant, "u1", "login", day(8))
	require.NoError(t, err)

	assert.False(t, s.Frozen)
	assert.Equal(t, 3, s.Current)
}

func TestTracker_ExpireFreezes(t *testing.T) {
	ctx := context.Background()
	tracker, _, clock := newTracker(t, 1)
	_, err := tracker.RecordActivity(ctx, tenant, "u1", "tasks", day(1))
	require.NoError(t, err)
	_, err = tracker.Freeze(ctx, tenant, "u1", "tasks", 2)
	require.NoError(t, err)

	clock.At = time.Date(2025, time.March, 4, 0, 0, 0, 0, time.UTC)
	n, err := tracker.ExpireFreezes(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	st, err := tracker.State(ctx, tenant, "u1", "tasks")
	require.NoError(t, err)
	assert.False(t, st.Frozen)
	assert.True(t, st.LastActivity.Equal(day(3)))
}

func TestTracker_UserStreaksListsAllTypes(t *testing.T) {
	ctx := context.Background()
	tracker, _, _ := newTracker(t, 2)
	_, err := tracker.RecordActivity(ctx, tenant, "u1", "calls", day(1))
	require.NoError(t, err)

	summaries, err := tracker.UserStreaks(ctx, tenant, "u1")
	require.NoError(t, err)
	require.Len(t, summaries, 5)

	for _, s := range summaries {
		if s.Type.Code == "calls" {
			assert.Equal(t, 1, s.Current)
			assert.True(t, s.IsAtRisk)
			assert.Equal(t, 7, s.NextMilestone)
		} else {
			assert.Zero(t, s.Current)
			assert.False(t, s.IsActive)
		}
	}
}
