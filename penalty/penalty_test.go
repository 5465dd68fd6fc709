package penalty_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/performance-engine/generic"
	"github.com/warp/performance-engine/penalty"
)

const tenant = generic.TenantID("biz-1")

func newEngine(t *testing.T) (*penalty.Engine, *generic.FixedClock) {
	t.Helper()
	clock := &generic.FixedClock{At: time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)}
	return penalty.NewEngine(penalty.NewMemoryStore(), clock, nil, nil), clock
}

func overdueRule() penalty.Rule {
	return penalty.Rule{
		TenantID:           tenant,
		Code:               "task_overdue",
		Name:               "Task overdue",
		Category:           penalty.CategoryTask,
		TriggerEvent:       "task_overdue",
		Conditions:         []generic.Condition{{Field: "days_overdue", Operator: generic.OpGreaterOrEqual, Value: 1}},
		Type:               penalty.TypeFixed,
		Amount:             decimal.NewFromInt(50000),
		AllowAppeal:        true,
		AppealDeadlineDays: 3,
		IsActive:           true,
	}
}

func trigger(data map[string]any) penalty.Trigger {
	return penalty.Trigger{TenantID: tenant, UserID: "u1", Event: "task_overdue", Data: data}
}

func issue(t *testing.T, eng *penalty.Engine, r penalty.Rule) penalty.Penalty {
	t.Helper()
	ctx := context.Background()
	_, err := eng.DefineRule(ctx, r)
	require.NoError(t, err)
	out, err := eng.EvaluateTrigger(ctx, trigger(map[string]any{"days_overdue": 2}))
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, penalty.OutcomePenalty, out[0].Kind)
	return *out[0].Penalty
}

// =============================================================================
// RULES AND CAPS
// =============================================================================

func TestEvaluateTrigger_ConditionMismatchDoesNothing(t *testing.T) {
	eng, _ := newEngine(t)
	ctx := context.Background()
	_, err := eng.DefineRule(ctx, overdueRule())
	require.NoError(t, err)

	out, err := eng.EvaluateTrigger(ctx, trigger(map[string]any{"days_overdue": 0}))

	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestEvaluateTrigger_DailyCapSuppresses(t *testing.T) {
	// GIVEN: a rule capped at one penalty per day
	eng, clock := newEngine(t)
	ctx := context.Background()
	r := overdueRule()
	r.MaxPerDay = 1
	_, err := eng.DefineRule(ctx, r)
	require.NoError(t, err)
	data := map[string]any{"days_overdue": 3}

	// WHEN: it fires twice the same day and once the next day
	first, err := eng.EvaluateTrigger(ctx, trigger(data))
	require.NoError(t, err)
	second, err := eng.EvaluateTrigger(ctx, trigger(data))
	require.NoError(t, err)
	clock.AdvanceDays(1)
	third, err := eng.EvaluateTrigger(ctx, trigger(data))
	require.NoError(t, err)

	// THEN: exactly one penalty per day, the cap reported as suppression
	assert.Equal(t, penalty.OutcomePenalty, first[0].Kind)
	assert.Equal(t, penalty.OutcomeSuppressed, second[0].Kind)
	assert.ErrorIs(t, second[0].Reason, generic.ErrCapExceeded)
	assert.Equal(t, penalty.OutcomePenalty, third[0].Kind)

	all, err := eng.UserPenalties(ctx, tenant, "u1")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestEvaluateTrigger_MonthlyCap(t *testing.T) {
	eng, clock := newEngine(t)
	ctx := context.Background()
	r := overdueRule()
	r.MaxPerMonth = 2
	_, err := eng.DefineRule(ctx, r)
	require.NoError(t, err)

	var kinds []penalty.OutcomeKind
	for i := 0; i < 3; i++ {
		out, err := eng.EvaluateTrigger(ctx, trigger(map[string]any{"days_overdue": 1}))
		require.NoError(t, err)
		kinds = append(kinds, out[0].Kind)
		clock.AdvanceDays(1)
	}

	assert.Equal(t, []penalty.OutcomeKind{penalty.OutcomePenalty, penalty.OutcomePenalty, penalty.OutcomeSuppressed}, kinds)
}

func TestEvaluateTrigger_ConcurrentTriggersRespectDailyCap(t *testing.T) {
	// GIVEN: a rule capped at two penalties per day
	eng, _ := newEngine(t)
	ctx := context.Background()
	r := overdueRule()
	r.MaxPerDay = 2
	_, err := eng.DefineRule(ctx, r)
	require.NoError(t, err)

	// WHEN: twenty triggers race for the same user
	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := eng.EvaluateTrigger(ctx, trigger(map[string]any{"days_overdue": 1}))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// THEN: the cap holds
	all, err := eng.UserPenalties(ctx, tenant, "u1")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestEvaluateTrigger_SameRecordOncePerDay(t *testing.T) {
	eng, _ := newEngine(t)
	ctx := context.Background()
	_, err := eng.DefineRule(ctx, overdueRule())
	require.NoError(t, err)
	tr := trigger(map[string]any{"days_overdue": 1})
	tr.Related = generic.RelatedRef{Kind: generic.RelatedTask, ID: "t-9"}

	_, err = eng.EvaluateTrigger(ctx, tr)
	require.NoError(t, err)
	out, err := eng.EvaluateTrigger(ctx, tr)
	require.NoError(t, err)

	assert.Equal(t, penalty.OutcomeSuppressed, out[0].Kind)
}

func TestEvaluateTrigger_WarningsBeforePenalty(t *testing.T) {
	// GIVEN: two warnings precede a penalty
	eng, clock := newEngine(t)
	ctx := context.Background()
	r := overdueRule()
	r.WarningBeforePenalty = true
	r.WarningsBeforePenalty = 2
	r.WarningValidityDays = 10
	_, err := eng.DefineRule(ctx, r)
	require.NoError(t, err)
	data := map[string]any{"days_overdue": 1}

	// WHEN / THEN
	var kinds []penalty.OutcomeKind
	for i := 0; i < 3; i++ {
		out, err := eng.EvaluateTrigger(ctx, trigger(data))
		require.NoError(t, err)
		kinds = append(kinds, out[0].Kind)
		if out[0].Warning != nil {
			assert.Equal(t, i+1, out[0].Warning.Number)
		}
	}
	assert.Equal(t, []penalty.OutcomeKind{penalty.OutcomeWarning, penalty.OutcomeWarning, penalty.OutcomePenalty}, kinds)

	// AND: once the warnings expire the cycle starts over
	clock.AdvanceDays(11)
	out, err := eng.EvaluateTrigger(ctx, trigger(data))
	require.NoError(t, err)
	assert.Equal(t, penalty.OutcomeWarning, out[0].Kind)
}

func TestRule_PenaltyAmount(t *testing.T) {
	bonus := decimal.NewFromInt(2000000)

	fixed := penalty.Rule{Type: penalty.TypeFixed, Amount: decimal.NewFromInt(50000)}
	amt, ok := fixed.PenaltyAmount(&bonus)
	assert.True(t, ok)
	assert.True(t, amt.Equal(decimal.NewFromInt(50000)))

	pct := penalty.Rule{Type: penalty.TypePercentageOfBonus, Percentage: decimal.NewFromInt(5)}
	amt, ok = pct.PenaltyAmount(&bonus)
	assert.True(t, ok)
	assert.True(t, amt.Equal(decimal.NewFromInt(100000)))
	_, ok = pct.PenaltyAmount(nil)
	assert.False(t, ok)

	warn := penalty.Rule{Type: penalty.TypeWarningOnly, Amount: decimal.NewFromInt(7)}
	amt, _ = warn.PenaltyAmount(&bonus)
	assert.True(t, amt.IsZero())
}

func TestRule_Validate(t *testing.T) {
	r := overdueRule()
	r.Type = "fine"
	assert.ErrorIs(t, r.Validate(), generic.ErrValidation)

	r = overdueRule()
	r.WarningBeforePenalty = true
	assert.ErrorIs(t, r.Validate(), generic.ErrValidation)
}

// =============================================================================
// STATE MACHINE
// =============================================================================

func TestAppeal_RejectedIsDeductible(t *testing.T) {
	eng, _ := newEngine(t)
	ctx := context.Background()
	p := issue(t, eng, overdueRule())

	_, err := eng.SubmitAppeal(ctx, tenant, p.ID, "task was reassigned")
	require.NoError(t, err)
	p, err = eng.ReviewAppeal(ctx, tenant, p.ID, "manager", false, "not reassigned")
	require.NoError(t, err)
	assert.Equal(t, penalty.StatusAppealRejected, p.Status)

	p, err = eng.DeductFromBonus(ctx, tenant, p.ID, "bonus-1", decimal.NewFromInt(1000000))

	require.NoError(t, err)
	assert.Equal(t, penalty.StatusDeducted, p.Status)
	assert.Equal(t, "bonus-1", p.DeductedFromBonusID)
}

func TestAppeal_ApprovedCannotBeDeducted(t *testing.T) {
	eng, _ := newEngine(t)
	ctx := context.Background()
	p := issue(t, eng, overdueRule())
	_, err := eng.SubmitAppeal(ctx, tenant, p.ID, "sick leave")
	require.NoError(t, err)
	_, err = eng.ReviewAppeal(ctx, tenant, p.ID, "manager", true, "")
	require.NoError(t, err)

	_, err = eng.DeductFromBonus(ctx, tenant, p.ID, "bonus-1", decimal.NewFromInt(1000000))

	assert.ErrorIs(t, err, generic.ErrPrecondition)
	got, _ := eng.Get(ctx, tenant, p.ID)
	assert.Equal(t, penalty.StatusAppealApproved, got.Status)
}

func TestAppeal_PastDeadlineReportsDeadline(t *testing.T) {
	// GIVEN: a confirmed penalty with a three day appeal window
	eng, clock := newEngine(t)
	ctx := context.Background()
	p := issue(t, eng, overdueRule())
	_, err := eng.Confirm(ctx, tenant, p.ID, "manager")
	require.NoError(t, err)

	// WHEN: the user appeals on day three
	clock.AdvanceDays(3)
	_, err = eng.SubmitAppeal(ctx, tenant, p.ID, "late")

	// THEN: rejected with the computed deadline
	require.ErrorIs(t, err, generic.ErrPrecondition)
	var pe *generic.PreconditionError
	require.ErrorAs(t, err, &pe)
	require.NotNil(t, pe.Deadline)
	assert.Equal(t, time.Date(2025, time.March, 13, 9, 0, 0, 0, time.UTC), *pe.Deadline)
	assert.Contains(t, err.Error(), "2025-03-13T09:00:00Z")
}

func TestCanBeAppealed(t *testing.T) {
	now := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	deadline := now.Add(time.Hour)
	p := penalty.Penalty{Status: penalty.StatusConfirmed, AllowAppeal: true, AppealDeadline: &deadline}

	assert.True(t, penalty.CanBeAppealed(p, now))
	assert.False(t, penalty.CanBeAppealed(p, deadline))
	p.AllowAppeal = false
	assert.False(t, penalty.CanBeAppealed(p, now))
}

func TestConfirm_OnlyFromPending(t *testing.T) {
	eng, _ := newEngine(t)
	ctx := context.Background()
	p := issue(t, eng, overdueRule())
	_, err := eng.Confirm(ctx, tenant, p.ID, "manager")
	require.NoError(t, err)

	_, err = eng.Confirm(ctx, tenant, p.ID, "manager")

	assert.ErrorIs(t, err, generic.ErrPrecondition)
}

func TestCancel_TerminalAfterDeduction(t *testing.T) {
	eng, _ := newEngine(t)
	ctx := context.Background()
	p := issue(t, eng, overdueRule())
	_, err := eng.Confirm(ctx, tenant, p.ID, "manager")
	require.NoError(t, err)
	_, err = eng.DeductFromBonus(ctx, tenant, p.ID, "bonus-1", decimal.Zero)
	require.NoError(t, err)

	_, err = eng.Cancel(ctx, tenant, p.ID, "admin", "mistake")

	assert.ErrorIs(t, err, generic.ErrPrecondition)
}

func TestDeductPayable_ResolvesPercentageAgainstBonus(t *testing.T) {
	// GIVEN: a 10% penalty issued before the bonus existed
	eng, _ := newEngine(t)
	ctx := context.Background()
	r := overdueRule()
	r.Type = penalty.TypePercentageOfBonus
	r.Percentage = decimal.NewFromInt(10)
	p := issue(t, eng, r)
	assert.False(t, p.AmountResolved)
	_, err := eng.Confirm(ctx, tenant, p.ID, "manager")
	require.NoError(t, err)

	// WHEN
	from := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	got, err := eng.DeductPayable(ctx, tenant, "u1", from, from.AddDate(0, 1, 0), "bonus-1", decimal.NewFromInt(1500000))

	// THEN
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Amount.Equal(decimal.NewFromInt(150000)))
	left, err := eng.Payable(ctx, tenant, "u1", from, from.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestUserSummary(t *testing.T) {
	eng, _ := newEngine(t)
	ctx := context.Background()
	p := issue(t, eng, overdueRule())
	_, err := eng.Confirm(ctx, tenant, p.ID, "manager")
	require.NoError(t, err)
	_, err = eng.IssueManual(ctx, penalty.ManualInput{
		TenantID: tenant, UserID: "u1", Category: penalty.CategoryDiscipline, Reason: "Late", Amount: decimal.NewFromInt(10000),
	})
	require.NoError(t, err)

	s, err := eng.UserSummary(ctx, tenant, "u1", 3)

	require.NoError(t, err)
	assert.Equal(t, 2, s.TotalPenalties)
	assert.Equal(t, 1, s.ConfirmedCount)
	assert.Equal(t, 1, s.PendingCount)
	assert.True(t, s.TotalAmount.Equal(decimal.NewFromInt(50000)))
	assert.True(t, s.PendingAmount.Equal(decimal.NewFromInt(10000)))
	assert.Equal(t, 1, s.ByCategory[penalty.CategoryTask])
	assert.Len(t, s.Recent, 2)
}
