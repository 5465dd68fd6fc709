package leaderboard_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/performance-engine/generic"
	"github.com/warp/performance-engine/kpi"
	"github.com/warp/performance-engine/leaderboard"
	"github.com/warp/performance-engine/points"
)

const tenant = generic.TenantID("biz-1")

var march = generic.PeriodFor(generic.PeriodMonthly, generic.NewTimePoint(2025, time.March, 1))

type fixture struct {
	board   *leaderboard.Board
	tracker *kpi.Tracker
	points  *points.Service
	clock   *generic.FixedClock
	kpiID   string
}

func newFixture(t *testing.T, opts leaderboard.Options) fixture {
	t.Helper()
	clock := &generic.FixedClock{At: time.Date(2025, time.March, 20, 9, 0, 0, 0, time.UTC)}
	tracker := kpi.NewTracker(kpi.NewMemoryStore(), clock, nil, nil)
	def, err := tracker.DefineKPI(context.Background(), kpi.Definition{
		TenantID: tenant, Metric: "calls_made", Name: "Calls", Weight: 50,
		TargetMin: 100, Direction: kpi.HigherIsBetter, PeriodType: generic.PeriodMonthly, IsActive: true,
	})
	require.NoError(t, err)
	svc := points.NewService(points.NewMemoryStore(), points.DefaultTables(), clock, nil, nil)
	board := leaderboard.NewBoard(leaderboard.NewMemoryStore(), tracker, svc, opts, clock, nil, nil)
	return fixture{board: board, tracker: tracker, points: svc, clock: clock, kpiID: def.ID}
}

func (f fixture) score(t *testing.T, user generic.UserID, period generic.Period, actual float64) {
	t.Helper()
	ctx := context.Background()
	tg, err := f.tracker.CreateTarget(ctx, kpi.CreateTargetInput{
		TenantID: tenant, KpiID: f.kpiID, UserID: user, PeriodType: period.Type, PeriodStart: period.Start, TargetValue: 100,
	})
	require.NoError(t, err)
	_, err = f.tracker.RecordActual(ctx, tenant, tg.ID, actual)
	require.NoError(t, err)
}

// =============================================================================
// PURE HELPERS
// =============================================================================

func TestWeightedScore_EqualWeights(t *testing.T) {
	score := leaderboard.WeightedScore([]leaderboard.KPIScore{
		{KpiID: "a", Weight: 0.5, Score: 80},
		{KpiID: "b", Weight: 0.5, Score: 60},
	})

	assert.Equal(t, 70.0, score)
	assert.Equal(t, leaderboard.TierGood, leaderboard.DefaultTiers().Classify(score))
}

func TestWeightedScore_NoKPIsIsZero(t *testing.T) {
	assert.Zero(t, leaderboard.WeightedScore(nil))
	assert.Equal(t, leaderboard.TierNeedsImprovement, leaderboard.DefaultTiers().Classify(0))
}

func TestClassify_FirstMatchingThreshold(t *testing.T) {
	tiers := leaderboard.DefaultTiers()
	cases := map[float64]leaderboard.Tier{
		100:   leaderboard.TierExceptional,
		90:    leaderboard.TierExceptional,
		89.99: leaderboard.TierExcellent,
		75:    leaderboard.TierExcellent,
		60:    leaderboard.TierGood,
		45:    leaderboard.TierMeets,
		30:    leaderboard.TierDeveloping,
		29.9:  leaderboard.TierNeedsImprovement,
	}
	for score, want := range cases {
		assert.Equal(t, want, tiers.Classify(score), "score %v", score)
	}
}

func TestRank_IsPermutationWithStableTieBreak(t *testing.T) {
	var rows []leaderboard.Summary
	for i := 0; i < 25; i++ {
		rows = append(rows, leaderboard.Summary{
			UserID:        generic.UserID(fmt.Sprintf("u%02d", 24-i)),
			WeightedScore: float64((i * 7) % 5 * 10),
		})
	}

	leaderboard.Rank(rows)

	seen := make(map[int]bool)
	for i, s := range rows {
		assert.Equal(t, i+1, s.Rank)
		assert.False(t, seen[s.Rank])
		seen[s.Rank] = true
		if i > 0 {
			prev := rows[i-1]
			require.True(t, prev.WeightedScore > s.WeightedScore ||
				(prev.WeightedScore == s.WeightedScore && prev.UserID < s.UserID))
		}
	}
}

func TestTiers_ValidateRequiresDescending(t *testing.T) {
	assert.NoError(t, leaderboard.DefaultTiers().Validate())
	bad := leaderboard.Tiers{{Tier: leaderboard.TierGood, Min: 60}, {Tier: leaderboard.TierExcellent, Min: 75}}
	assert.ErrorIs(t, bad.Validate(), generic.ErrValidation)
}

// =============================================================================
// RECOMPUTE
// =============================================================================

func TestRecompute_RanksUsersByScoreThenUser(t *testing.T) {
	// GIVEN: three users, two tied
	f := newFixture(t, leaderboard.Options{})
	f.score(t, "carol", march, 120) // 85
	f.score(t, "bob", march, 100)   // 70
	f.score(t, "alice", march, 100) // 70

	// WHEN
	rows, err := f.board.Recompute(context.Background(), tenant, march)

	// THEN
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, generic.UserID("carol"), rows[0].UserID)
	assert.Equal(t, 85.0, rows[0].WeightedScore)
	assert.Equal(t, leaderboard.TierExcellent, rows[0].Tier)
	assert.Equal(t, generic.UserID("alice"), rows[1].UserID)
	assert.Equal(t, generic.UserID("bob"), rows[2].UserID)
	assert.Equal(t, 3, rows[2].Rank)
	assert.Equal(t, 1, rows[0].KpisCount)
}

func TestRecompute_FullReplaceIsIdempotent(t *testing.T) {
	f := newFixture(t, leaderboard.Options{})
	f.score(t, "alice", march, 90)
	ctx := context.Background()

	_, err := f.board.Recompute(ctx, tenant, march)
	require.NoError(t, err)
	_, err = f.board.Recompute(ctx, tenant, march)
	require.NoError(t, err)

	rows, err := f.board.Leaderboard(ctx, tenant, march, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestRecompute_RankChangeAgainstPreviousPeriod(t *testing.T) {
	// GIVEN: bob led February, alice leads March
	f := newFixture(t, leaderboard.Options{})
	ctx := context.Background()
	feb := march.Previous()
	f.score(t, "alice", feb, 80)
	f.score(t, "bob", feb, 120)
	_, err := f.board.Recompute(ctx, tenant, feb)
	require.NoError(t, err)

	f.score(t, "alice", march, 130)
	f.score(t, "bob", march, 90)
	f.score(t, "dave", march, 50)

	// WHEN
	rows, err := f.board.Recompute(ctx, tenant, march)
	require.NoError(t, err)

	// THEN
	byUser := map[generic.UserID]leaderboard.Summary{}
	for _, r := range rows {
		byUser[r.UserID] = r
	}
	assert.Equal(t, 2, byUser["alice"].PreviousRank)
	assert.Equal(t, 1, byUser["alice"].RankChange)
	assert.Equal(t, -1, byUser["bob"].RankChange)
	assert.Zero(t, byUser["dave"].PreviousRank)
	assert.Zero(t, byUser["dave"].RankChange)
}

func TestRecompute_ConcurrentRunsLeaveAClean1ToN(t *testing.T) {
	// GIVEN: eight scored users
	f := newFixture(t, leaderboard.Options{})
	ctx := context.Background()
	for i := 0; i < 8; i++ {
		f.score(t, generic.UserID(fmt.Sprintf("u%d", i)), march, float64(60+i*10))
	}

	// WHEN: the same period is recomputed from many goroutines
	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.board.Recompute(ctx, tenant, march)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// THEN: one row per user with ranks 1..8
	rows, err := f.board.Leaderboard(ctx, tenant, march, 0)
	require.NoError(t, err)
	require.Len(t, rows, 8)
	ranks := make([]int, len(rows))
	for i, r := range rows {
		ranks[i] = r.Rank
	}
	assert.ElementsMatch(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, ranks)
	assert.Equal(t, generic.UserID("u7"), rows[0].UserID)
}

type staticRoster []generic.UserID

func (r staticRoster) Users(context.Context, generic.TenantID) ([]generic.UserID, error) {
	return r, nil
}

func TestRecompute_UsersWithoutTargetsPolicy(t *testing.T) {
	ctx := context.Background()
	roster := staticRoster{"alice", "zed"}

	t.Run("excluded", func(t *testing.T) {
		f := newFixture(t, leaderboard.Options{})
		f.board.WithRoster(roster)
		f.score(t, "alice", march, 100)

		rows, err := f.board.Recompute(ctx, tenant, march)

		require.NoError(t, err)
		assert.Len(t, rows, 1)
	})

	t.Run("included at zero", func(t *testing.T) {
		f := newFixture(t, leaderboard.Options{IncludeUsersWithoutTargets: true})
		f.board.WithRoster(roster)
		f.score(t, "alice", march, 100)

		rows, err := f.board.Recompute(ctx, tenant, march)

		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, generic.UserID("zed"), rows[1].UserID)
		assert.Zero(t, rows[1].WeightedScore)
		assert.Equal(t, leaderboard.TierNeedsImprovement, rows[1].Tier)
		assert.Zero(t, rows[1].KpisCount)
	})
}

func TestRecompute_CancelledTargetsIgnored(t *testing.T) {
	f := newFixture(t, leaderboard.Options{})
	ctx := context.Background()
	f.score(t, "alice", march, 100)
	tg, err := f.tracker.FindTarget(ctx, tenant, f.kpiID, "alice", march)
	require.NoError(t, err)
	_, err = f.tracker.Cancel(ctx, tenant, tg.ID)
	require.NoError(t, err)

	rows, err := f.board.Recompute(ctx, tenant, march)

	require.NoError(t, err)
	assert.Empty(t, rows)
}

// =============================================================================
// PUBLISH
// =============================================================================

func TestPublish_TopThreeGetMedalsOnce(t *testing.T) {
	// GIVEN: four ranked users
	f := newFixture(t, leaderboard.Options{})
	ctx := context.Background()
	f.score(t, "a", march, 130)
	f.score(t, "b", march, 110)
	f.score(t, "c", march, 90)
	f.score(t, "d", march, 60)
	_, err := f.board.Recompute(ctx, tenant, march)
	require.NoError(t, err)

	// WHEN: published twice
	entries, err := f.board.Publish(ctx, tenant, march, false)
	require.NoError(t, err)
	again, err := f.board.Publish(ctx, tenant, march, false)
	require.NoError(t, err)

	// THEN: three entries, medal points granted once
	require.Len(t, entries, 3)
	assert.Equal(t, points.MedalGold, entries[0].Medal)
	assert.Equal(t, points.MedalSilver, entries[1].Medal)
	assert.Equal(t, points.MedalBronze, entries[2].Medal)
	assert.Equal(t, entries, again)

	gold, err := f.points.Account(ctx, tenant, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, gold.GoldMedals)
	assert.Equal(t, int64(100), gold.Total)
	assert.Equal(t, 1, gold.BestRank)

	table, err := f.board.MedalTable(ctx, tenant)
	require.NoError(t, err)
	require.Len(t, table, 3)
	assert.Equal(t, generic.UserID("a"), table[0].UserID)
}

func TestPublish_ClosedPeriodIsImmutable(t *testing.T) {
	// GIVEN: a published March, later corrected
	f := newFixture(t, leaderboard.Options{})
	ctx := context.Background()
	f.score(t, "a", march, 130)
	f.score(t, "b", march, 110)
	_, err := f.board.Recompute(ctx, tenant, march)
	require.NoError(t, err)
	first, err := f.board.Publish(ctx, tenant, march, false)
	require.NoError(t, err)

	f.clock.AdvanceDays(30)
	f.score(t, "z", march, 200)
	_, err = f.board.Recompute(ctx, tenant, march)
	require.NoError(t, err)

	// WHEN: forced republish after the period closed
	second, err := f.board.Publish(ctx, tenant, march, true)

	// THEN: the original snapshot stands
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func (f fixture) rescore(t *testing.T, user generic.UserID, actual float64) {
	t.Helper()
	ctx := context.Background()
	tg, err := f.tracker.FindTarget(ctx, tenant, f.kpiID, user, march)
	require.NoError(t, err)
	_, err = f.tracker.RecordActual(ctx, tenant, tg.ID, actual)
	require.NoError(t, err)
	_, err = f.board.Recompute(ctx, tenant, march)
	require.NoError(t, err)
}

func TestPublish_ForcedRepublishMovesMedals(t *testing.T) {
	// GIVEN: a gold, b silver published for the open March
	f := newFixture(t, leaderboard.Options{})
	ctx := context.Background()
	f.score(t, "a", march, 130)
	f.score(t, "b", march, 110)
	_, err := f.board.Recompute(ctx, tenant, march)
	require.NoError(t, err)
	_, err = f.board.Publish(ctx, tenant, march, false)
	require.NoError(t, err)

	// WHEN: b overtakes and the period is force republished
	f.rescore(t, "b", 150)
	entries, err := f.board.Publish(ctx, tenant, march, true)
	require.NoError(t, err)

	// THEN: each user holds only the new medal and its points
	require.Len(t, entries, 2)
	assert.Equal(t, generic.UserID("b"), entries[0].UserID)
	assert.Equal(t, 1, entries[0].Revision)

	a, err := f.points.Account(ctx, tenant, "a")
	require.NoError(t, err)
	assert.Equal(t, 0, a.GoldMedals)
	assert.Equal(t, 1, a.SilverMedals)
	assert.Equal(t, 2, a.BestRank)
	assert.Equal(t, int64(50), a.Total)

	b, err := f.points.Account(ctx, tenant, "b")
	require.NoError(t, err)
	assert.Equal(t, 1, b.GoldMedals)
	assert.Equal(t, 0, b.SilverMedals)
	assert.Equal(t, int64(100), b.Total)

	// WHEN: a takes the lead back
	f.rescore(t, "a", 200)
	_, err = f.board.Publish(ctx, tenant, march, true)
	require.NoError(t, err)

	// THEN: the regained gold is granted again and the ledger still replays
	a, err = f.points.Account(ctx, tenant, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, a.GoldMedals)
	assert.Equal(t, 0, a.SilverMedals)
	assert.Equal(t, int64(100), a.Total)
	for _, u := range []generic.UserID{"a", "b"} {
		v, err := f.points.Verify(ctx, tenant, u)
		require.NoError(t, err)
		assert.True(t, v.OK, string(u))
	}
}

func TestPublish_ForcedRepublishWithSamePlacingsGrantsNothing(t *testing.T) {
	f := newFixture(t, leaderboard.Options{})
	ctx := context.Background()
	f.score(t, "a", march, 130)
	f.score(t, "b", march, 110)
	_, err := f.board.Recompute(ctx, tenant, march)
	require.NoError(t, err)
	_, err = f.board.Publish(ctx, tenant, march, false)
	require.NoError(t, err)

	_, err = f.board.Publish(ctx, tenant, march, true)
	require.NoError(t, err)

	a, err := f.points.Account(ctx, tenant, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, a.GoldMedals)
	assert.Equal(t, int64(100), a.Total)
}

func TestPublish_WithoutSummariesFails(t *testing.T) {
	f := newFixture(t, leaderboard.Options{})

	_, err := f.board.Publish(context.Background(), tenant, march, false)

	assert.ErrorIs(t, err, generic.ErrPrecondition)
}

func TestUserRankHistory_NewestFirst(t *testing.T) {
	f := newFixture(t, leaderboard.Options{})
	ctx := context.Background()
	feb := march.Previous()
	f.score(t, "alice", feb, 100)
	f.score(t, "alice", march, 100)
	_, err := f.board.Recompute(ctx, tenant, feb)
	require.NoError(t, err)
	_, err = f.board.Recompute(ctx, tenant, march)
	require.NoError(t, err)

	hist, err := f.board.UserRankHistory(ctx, tenant, "alice", generic.PeriodMonthly, 0)

	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.True(t, hist[0].Period.Start.Equal(march.Start))
}

// =============================================================================
// CACHE
// =============================================================================

type mapCache struct {
	mu   sync.Mutex
	rows map[string][]leaderboard.Summary
}

func (c *mapCache) Get(_ context.Context, tenantID generic.TenantID, period generic.Period) ([]leaderboard.Summary, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rows, ok := c.rows[string(tenantID)+period.Key()]
	return rows, ok, nil
}

func (c *mapCache) Set(_ context.Context, tenantID generic.TenantID, period generic.Period, rows []leaderboard.Summary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows[string(tenantID)+period.Key()] = rows
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, tenantID generic.TenantID, period generic.Period) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rows, string(tenantID)+period.Key())
	return nil
}

// slowReadStore runs after once, right after the first summaries read.
type slowReadStore struct {
	leaderboard.Store
	armed atomic.Bool
	after func()
}

func (s *slowReadStore) ListSummaries(ctx context.Context, tenantID generic.TenantID, period generic.Period) ([]leaderboard.Summary, error) {
	rows, err := s.Store.ListSummaries(ctx, tenantID, period)
	if s.armed.CompareAndSwap(true, false) {
		s.after()
	}
	return rows, err
}

func TestLeaderboard_RecomputeDuringCacheFillIsNotOverwritten(t *testing.T) {
	// GIVEN: a cached board where alice leads and bob then improves
	f := newFixture(t, leaderboard.Options{})
	ctx := context.Background()
	store := &slowReadStore{Store: leaderboard.NewMemoryStore()}
	board := leaderboard.NewBoard(store, f.tracker, f.points, leaderboard.Options{}, f.clock, nil, nil).
		WithCache(&mapCache{rows: map[string][]leaderboard.Summary{}})
	f.score(t, "alice", march, 120)
	f.score(t, "bob", march, 100)
	_, err := board.Recompute(ctx, tenant, march)
	require.NoError(t, err)
	tg, err := f.tracker.FindTarget(ctx, tenant, f.kpiID, "bob", march)
	require.NoError(t, err)
	_, err = f.tracker.RecordActual(ctx, tenant, tg.ID, 150)
	require.NoError(t, err)

	// WHEN: a recompute starts while a cache miss is being filled
	done := make(chan struct{})
	store.after = func() {
		go func() {
			defer close(done)
			_, err := board.Recompute(ctx, tenant, march)
			assert.NoError(t, err)
		}()
		select {
		case <-done:
		case <-time.After(100 * time.Millisecond):
		}
	}
	store.armed.Store(true)
	_, err = board.Leaderboard(ctx, tenant, march, 0)
	require.NoError(t, err)
	<-done

	// THEN: the next read sees the recomputed ranks
	rows, err := board.Leaderboard(ctx, tenant, march, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, generic.UserID("bob"), rows[0].UserID)
}
