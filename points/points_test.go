package points_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/performance-engine/generic"
	"github.com/warp/performance-engine/points"
)

const tenant = generic.TenantID("biz-1")

func newService(t *testing.T) *points.Service {
	t.Helper()
	clock := &generic.FixedClock{At: time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)}
	return points.NewService(points.NewMemoryStore(), points.DefaultTables(), clock, nil, nil)
}

func earn(user generic.UserID, n int64, key string) points.EarnInput {
	return points.EarnInput{TenantID: tenant, UserID: user, Points: n, Source: "manual", IdempotencyKey: key}
}

func TestAddPoints_MultiLevelJump(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	// WHEN: 650 points land in one call
	res, err := svc.AddPoints(ctx, earn("u1", 650, ""))
	require.NoError(t, err)

	// THEN: Level 1 -> 4 (100, 300, 600 crossed)
	assert.True(t, res.Applied)
	assert.Equal(t, 4, res.Account.Level)
	assert.Equal(t, 3, res.LevelsGained)
	assert.Equal(t, int64(1000), res.Account.NextLevelXP)
	assert.Equal(t, int64(650), res.Transaction.BalanceAfter.IntPart())
	assert.Equal(t, 12.5, res.Account.LevelProgress(svc.Tables().Levels))
}

func TestAddPoints_TopLevelStops(t *testing.T) {
	svc := newService(t)
	res, err := svc.AddPoints(context.Background(), earn("u1", 50000, ""))
	require.NoError(t, err)
	assert.Equal(t, 10, res.Account.Level)
	assert.Zero(t, res.Account.NextLevelXP)
	assert.Equal(t, 100.0, res.Account.LevelProgress(svc.Tables().Levels))
}

func TestAddPoints_IdempotencyKey(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	_, err := svc.AddPoints(ctx, earn("u1", 50, "ach:first_sale:u1"))
	require.NoError(t, err)
	res, err := svc.AddPoints(ctx, earn("u1", 50, "ach:first_sale:u1"))
	require.NoError(t, err)

	assert.False(t, res.Applied)
	assert.Equal(t, int64(50), res.Account.Total)
}

func TestSpendPoints_InsufficientBalanceNoPartialSpend(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	_, err := svc.AddPoints(ctx, earn("u1", 40, ""))
	require.NoError(t, err)

	_, err = svc.SpendPoints(ctx, points.SpendInput{TenantID: tenant, UserID: "u1", Points: 41, Source: "reward"})
	require.Error(t, err)
	assert.ErrorIs(t, err, generic.ErrInsufficientBalance)

	a, _ := svc.Account(ctx, tenant, "u1")
	assert.Equal(t, int64(40), a.Available)
	assert.Zero(t, a.Spent)

	a, err = svc.SpendPoints(ctx, points.SpendInput{TenantID: tenant, UserID: "u1", Points: 15, Source: "reward"})
	require.NoError(t, err)
	assert.Equal(t, int64(25), a.Available)
	assert.Equal(t, int64(40), a.Total)
	assert.Equal(t, int64(15), a.Spent)
}

func TestSpendPoints_RetriedKeyReturnsAccount(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	_, err := svc.AddPoints(ctx, earn("u1", 100, ""))
	require.NoError(t, err)
	spend := points.SpendInput{TenantID: tenant, UserID: "u1", Points: 30, Source: "reward", IdempotencyKey: "mug-1"}

	_, err = svc.SpendPoints(ctx, spend)
	require.NoError(t, err)
	a, err := svc.SpendPoints(ctx, spend)

	require.NoError(t, err)
	assert.Equal(t, int64(70), a.Available)
	assert.Equal(t, int64(30), a.Spent)
}

func TestAddPoints_SameKeyInAnotherTenant(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	_, err := svc.AddPoints(ctx, earn("u1", 50, "ach:first_sale:u1"))
	require.NoError(t, err)

	in := earn("u1", 50, "ach:first_sale:u1")
	in.TenantID = "biz-2"
	res, err := svc.AddPoints(ctx, in)

	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, int64(50), res.Account.Total)
}

func TestAddMedal_CountsAndBestRank(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	_, err := svc.AddMedal(ctx, tenant, "u1", points.MedalBronze, "lb-1", "medal:lb-1:u1")
	require.NoError(t, err)
	res, err := svc.AddMedal(ctx, tenant, "u1", points.MedalGold, "lb-2", "medal:lb-2:u1")
	require.NoError(t, err)

	assert.Equal(t, 1, res.Account.GoldMedals)
	assert.Equal(t, 1, res.Account.BronzeMedals)
	assert.Equal(t, 1, res.Account.BestRank)
	assert.Equal(t, int64(125), res.Account.Total)

	// Re-publishing the same leaderboard does not grant twice
	res, err = svc.AddMedal(ctx, tenant, "u1", points.MedalGold, "lb-2", "medal:lb-2:u1")
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, 1, res.Account.GoldMedals)
}

func TestRevokeMedal_ReversesPointsAndBestRank(t *testing.T) {
	// GIVEN: Gold and silver held
	ctx := context.Background()
	svc := newService(t)
	_, err := svc.AddMedal(ctx, tenant, "u1", points.MedalGold, "2025-03", "medal:2025-03:u1:gold")
	require.NoError(t, err)
	_, err = svc.AddMedal(ctx, tenant, "u1", points.MedalSilver, "2025-02", "medal:2025-02:u1:silver")
	require.NoError(t, err)

	// WHEN: The gold is revoked, twice with the same key
	res, err := svc.RevokeMedal(ctx, tenant, "u1", points.MedalGold, "2025-03", "medal-revoke:2025-03:u1:gold")
	require.NoError(t, err)
	again, err := svc.RevokeMedal(ctx, tenant, "u1", points.MedalGold, "2025-03", "medal-revoke:2025-03:u1:gold")
	require.NoError(t, err)

	// THEN: Only the silver and its points remain, level kept
	assert.True(t, res.Applied)
	assert.False(t, again.Applied)
	assert.Equal(t, 0, res.Account.GoldMedals)
	assert.Equal(t, 1, res.Account.SilverMedals)
	assert.Equal(t, 2, res.Account.BestRank)
	assert.Equal(t, int64(50), res.Account.Total)
	assert.Equal(t, int64(50), res.Account.Available)
	assert.Equal(t, int64(150), res.Account.Experience)
	assert.Equal(t, generic.TxReversal, res.Transaction.Type)

	v, err := svc.Verify(ctx, tenant, "u1")
	require.NoError(t, err)
	assert.True(t, v.OK)
}

func TestRevokeMedal_NotHeld(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	_, err := svc.AddMedal(ctx, tenant, "u1", points.MedalBronze, "2025-03", "")
	require.NoError(t, err)

	_, err = svc.RevokeMedal(ctx, tenant, "u1", points.MedalGold, "2025-03", "")
	assert.ErrorIs(t, err, generic.ErrPrecondition)
}

func TestVerify_ReplayReproducesAccount(t *testing.T) {
	// GIVEN: A mixed sequence of earns, medals and spends
	ctx := context.Background()
	svc := newService(t)
	for i := 0; i < 20; i++ {
		_, err := svc.AddPoints(ctx, earn("u1", int64(10+i*7), fmt.Sprintf("k%d", i)))
		require.NoError(t, err)
		if i%3 == 0 {
			_, err := svc.SpendPoints(ctx, points.SpendInput{TenantID: tenant, UserID: "u1", Points: 5, Source: "reward"})
			require.NoError(t, err)
		}
	}
	_, err := svc.AddMedal(ctx, tenant, "u1", points.MedalSilver, "lb", "")
	require.NoError(t, err)

	// THEN: Replaying the ledger matches the account
	v, err := svc.Verify(ctx, tenant, "u1")
	require.NoError(t, err)
	assert.True(t, v.OK)
	assert.Equal(t, v.Account.Available, v.Replay.Available.IntPart())
	assert.Equal(t, v.Account.Total, v.Replay.Earned.IntPart())
}

func TestVerify_WithoutSpendsDeltaSumEqualsTotal(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	for i := 1; i <= 5; i++ {
		_, err := svc.AddPoints(ctx, earn("u1", int64(i*10), ""))
		require.NoError(t, err)
	}
	v, err := svc.Verify(ctx, tenant, "u1")
	require.NoError(t, err)
	assert.Equal(t, v.Account.Total, v.Replay.Available.IntPart())
}

func TestAddPoints_ConcurrentSameUser(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.AddPoints(ctx, earn("u1", 5, ""))
		}()
	}
	wg.Wait()

	v, err := svc.Verify(ctx, tenant, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(200), v.Account.Total)
	assert.True(t, v.OK)
}

func TestLeaderboard_TieBreakByUser(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	_, _ = svc.AddPoints(ctx, earn("u2", 100, ""))
	_, _ = svc.AddPoints(ctx, earn("u1", 100, ""))
	_, _ = svc.AddPoints(ctx, earn("u3", 300, ""))

	rows, err := svc.Leaderboard(ctx, tenant, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, generic.UserID("u3"), rows[0].Account.UserID)
	assert.Equal(t, generic.UserID("u1"), rows[1].Account.UserID)
	assert.Equal(t, 2, rows[1].Rank)
}

func TestLevelTable_Validate(t *testing.T) {
	require.NoError(t, points.DefaultLevels().Validate())
	bad := points.LevelTable{{Level: 1, XPRequired: 0}, {Level: 2, XPRequired: 0}}
	assert.ErrorIs(t, bad.Validate(), generic.ErrValidation)
}
