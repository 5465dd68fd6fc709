package bonus_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/performance-engine/bonus"
	"github.com/warp/performance-engine/generic"
	"github.com/warp/performance-engine/leaderboard"
	"github.com/warp/performance-engine/penalty"
)

const tenant = generic.TenantID("biz-1")

var march = generic.PeriodFor(generic.PeriodMonthly, generic.NewTimePoint(2025, time.March, 1))

type scores map[generic.UserID]float64

func (s scores) UserSummary(_ context.Context, _ generic.TenantID, user generic.UserID, period generic.Period) (leaderboard.Summary, error) {
	v, ok := s[user]
	if !ok {
		return leaderboard.Summary{}, generic.NotFound("period summary", string(user))
	}
	return leaderboard.Summary{UserID: user, Period: period, WeightedScore: v, WorkingDays: 21}, nil
}

type fixture struct {
	calc      *bonus.Calculator
	penalties *penalty.Engine
	clock     *generic.FixedClock
	setting   bonus.Setting
}

func newFixture(t *testing.T, s scores) fixture {
	t.Helper()
	clock := &generic.FixedClock{At: time.Date(2025, time.March, 15, 9, 0, 0, 0, time.UTC)}
	pen := penalty.NewEngine(penalty.NewMemoryStore(), clock, nil, nil)
	calc := bonus.NewCalculator(bonus.NewMemoryStore(), s, pen, clock, nil, nil)
	setting, err := calc.DefineSetting(context.Background(), bonus.Setting{
		TenantID:       tenant,
		Name:           "Sales monthly",
		BaseAmount:     decimal.NewFromInt(1000000),
		MinKpiScore:    40,
		MinWorkingDays: 15,
		IsActive:       true,
	})
	require.NoError(t, err)
	return fixture{calc: calc, penalties: pen, clock: clock, setting: setting}
}

func (f fixture) calculate(t *testing.T, user generic.UserID) bonus.Calculation {
	t.Helper()
	c, err := f.calc.Calculate(context.Background(), bonus.CalculateInput{TenantID: tenant, UserID: user, Period: march})
	require.NoError(t, err)
	return c
}

func TestCalculate_TierMultiplier(t *testing.T) {
	f := newFixture(t, scores{"u1": 85})

	c := f.calculate(t, "u1")

	assert.True(t, c.IsQualified)
	assert.Equal(t, "standard", c.AppliedTier)
	assert.True(t, c.FinalAmount.Equal(decimal.NewFromInt(1000000)))
	assert.Equal(t, bonus.StatusCalculated, c.Status)
	assert.Equal(t, 21, c.WorkingDays)
}

func TestCalculate_DisqualifiedPersistsWithZero(t *testing.T) {
	// GIVEN: a score under the setting's minimum
	f := newFixture(t, scores{"u1": 35})

	// WHEN
	c := f.calculate(t, "u1")

	// THEN: stored for audit, nothing payable, cannot be approved
	assert.False(t, c.IsQualified)
	assert.Contains(t, c.DisqualificationReason, "below minimum")
	assert.True(t, c.FinalAmount.IsZero())
	stored, err := f.calc.Get(context.Background(), tenant, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, stored.ID)

	_, err = f.calc.Approve(context.Background(), tenant, c.ID, "boss", "")
	assert.ErrorIs(t, err, generic.ErrPrecondition)
}

func TestCalculate_MissingSummaryScoresZero(t *testing.T) {
	f := newFixture(t, scores{})

	c := f.calculate(t, "ghost")

	assert.Zero(t, c.KpiScore)
	assert.False(t, c.IsQualified)
}

func TestCalculate_RefreshKeepsRowUntilApproved(t *testing.T) {
	s := scores{"u1": 62}
	f := newFixture(t, s)
	ctx := context.Background()

	first := f.calculate(t, "u1")
	s["u1"] = 81
	second := f.calculate(t, "u1")
	require.Equal(t, first.ID, second.ID)
	assert.Equal(t, "standard", second.AppliedTier)

	_, err := f.calc.Approve(ctx, tenant, second.ID, "boss", "ok")
	require.NoError(t, err)
	_, err = f.calc.Calculate(ctx, bonus.CalculateInput{TenantID: tenant, UserID: "u1", Period: march})
	assert.ErrorIs(t, err, generic.ErrPrecondition)
}

func TestStateMachine(t *testing.T) {
	f := newFixture(t, scores{"u1": 90})
	ctx := context.Background()
	c := f.calculate(t, "u1")

	// paying before approval fails
	_, err := f.calc.MarkPaid(ctx, tenant, c.ID, "tx-1")
	assert.ErrorIs(t, err, generic.ErrPrecondition)

	c, err = f.calc.Approve(ctx, tenant, c.ID, "boss", "")
	require.NoError(t, err)
	c, err = f.calc.MarkPaid(ctx, tenant, c.ID, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, bonus.StatusPaid, c.Status)
	assert.Equal(t, "tx-1", c.PaymentReference)

	// paid is terminal
	_, err = f.calc.Reject(ctx, tenant, c.ID, "boss", "oops")
	assert.ErrorIs(t, err, generic.ErrPrecondition)
	_, err = f.calc.Cancel(ctx, tenant, c.ID)
	assert.ErrorIs(t, err, generic.ErrPrecondition)
}

func TestReject_RequiresReason(t *testing.T) {
	f := newFixture(t, scores{"u1": 90})
	c := f.calculate(t, "u1")

	_, err := f.calc.Reject(context.Background(), tenant, c.ID, "boss", "")

	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestNetAmountAndDeductPenalties(t *testing.T) {
	// GIVEN: a 1,000,000 bonus and two confirmed penalties in March
	f := newFixture(t, scores{"u1": 85})
	ctx := context.Background()
	for _, amt := range []int64{50000, 25000} {
		p, err := f.penalties.IssueManual(ctx, penalty.ManualInput{TenantID: tenant, UserID: "u1", Reason: "late", Amount: decimal.NewFromInt(amt)})
		require.NoError(t, err)
		_, err = f.penalties.Confirm(ctx, tenant, p.ID, "boss")
		require.NoError(t, err)
	}
	// a pending penalty is not payable yet
	_, err := f.penalties.IssueManual(ctx, penalty.ManualInput{TenantID: tenant, UserID: "u1", Reason: "late", Amount: decimal.NewFromInt(99999)})
	require.NoError(t, err)
	c := f.calculate(t, "u1")

	// WHEN
	before, err := f.calc.NetAmount(ctx, c)
	require.NoError(t, err)
	deducted, err := f.calc.DeductPenalties(ctx, tenant, c.ID)
	require.NoError(t, err)
	after, err := f.calc.NetAmount(ctx, c)
	require.NoError(t, err)

	// THEN: the net is the same before and after linking
	assert.True(t, before.Equal(decimal.NewFromInt(925000)), before.String())
	assert.Len(t, deducted, 2)
	assert.True(t, after.Equal(before))

	again, err := f.calc.DeductPenalties(ctx, tenant, c.ID)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestSetting_Validate(t *testing.T) {
	s := bonus.Setting{Name: "x", Tiers: bonus.DefaultTiers()}
	assert.NoError(t, s.Validate())

	s.Tiers = []bonus.Tier{{Name: "a", MinScore: 10}, {Name: "b", MinScore: 20}}
	assert.ErrorIs(t, s.Validate(), generic.ErrValidation)
}

func TestUserSummaryAndAwaitingApproval(t *testing.T) {
	f := newFixture(t, scores{"u1": 90, "u2": 20})
	ctx := context.Background()
	c := f.calculate(t, "u1")
	f.calculate(t, "u2")

	waiting, err := f.calc.AwaitingApproval(ctx, tenant)
	require.NoError(t, err)
	require.Len(t, waiting, 1)
	assert.Equal(t, generic.UserID("u1"), waiting[0].UserID)

	_, err = f.calc.Approve(ctx, tenant, c.ID, "boss", "")
	require.NoError(t, err)
	_, err = f.calc.MarkPaid(ctx, tenant, c.ID, "")
	require.NoError(t, err)

	s, err := f.calc.UserSummary(ctx, tenant, "u1", 6)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Count)
	assert.True(t, s.TotalEarned.Equal(decimal.NewFromInt(1000000)))
	assert.True(t, s.AverageBonus.Equal(decimal.NewFromInt(1000000)))
}
