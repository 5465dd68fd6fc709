/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Rules install and the period lifecycle (targets, recompute, publish)
- Penalty triggers and transitions
- Bonus calculation and netting
- Error mapping to status codes
- Holidays and the period scheduler
*/
package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/performance-engine/api"
	"github.com/warp/performance-engine/engine"
	"github.com/warp/performance-engine/generic"
	"github.com/warp/performance-engine/store/sqlite"
)

const base = "/api/tenants/biz-1"

const rulesDoc = `{
	"kpis": [
		{"metric": "calls_made", "name": "Calls", "weight": 50, "target_min": 100,
		 "direction": "higher_is_better", "period_type": "monthly"}
	],
	"penalty_rules": [
		{"code": "late_followup", "name": "Late follow-up", "category": "lead_handling",
		 "trigger_event": "lead.followup_missed", "type": "fixed", "amount": "50000",
		 "allow_appeal": true, "appeal_deadline_days": 3}
	],
	"bonus_settings": [
		{"name": "Monthly sales", "base_amount": "1000000", "min_kpi_score": 10, "period_type": "monthly"}
	]
}`

type testAPI struct {
	t      *testing.T
	router *chi.Mux
	eng    *engine.Engine
	store  *sqlite.Store
	clock  *generic.FixedClock
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := &generic.FixedClock{At: time.Date(2025, time.March, 20, 9, 0, 0, 0, time.UTC)}
	dir := engine.StaticDirectory{"biz-1": {{UserID: "alice", Role: "sales"}, {UserID: "bob", Role: "sales"}}}
	eng, err := engine.Build(store.Stores(), engine.Collaborators{Directory: dir, Calendar: store}, engine.Options{Clock: clock})
	require.NoError(t, err)

	h := api.NewHandler(eng, store, nil)
	return &testAPI{t: t, router: api.NewRouter(h, nil), eng: eng, store: store, clock: clock}
}

func (a *testAPI) do(method, path string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(a.t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeAs[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// setupMarch installs the rules and gives alice 150 and bob 80 calls
// against a target of 100.
func (a *testAPI) setupMarch() {
	t := a.t
	t.Helper()
	rec := a.do(http.MethodPost, base+"/rules", rulesDoc)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	kpis := decodeAs[[]api.KPIDTO](t, a.do(http.MethodGet, base+"/kpis", nil))
	require.Len(t, kpis, 1)

	for user, actual := range map[string]float64{"alice": 150, "bob": 80} {
		rec := a.do(http.MethodPost, base+"/targets", api.CreateTargetRequest{
			KpiID: kpis[0].ID, UserID: user, PeriodType: "monthly", PeriodStart: "2025-03-01", TargetValue: 100,
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		target := decodeAs[api.TargetDTO](t, rec)

		rec = a.do(http.MethodPost, base+"/targets/"+target.ID+"/actual", api.RecordActualRequest{Value: actual})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
}

var march = api.PeriodRequest{PeriodType: "monthly", PeriodStart: "2025-03-01"}

// =============================================================================
// PERIOD LIFECYCLE
// =============================================================================

func TestPeriodLifecycle_RecomputePublishAndQuery(t *testing.T) {
	// GIVEN: Rules, targets and actuals for March
	a := newTestAPI(t)
	a.setupMarch()

	// WHEN: The period is recomputed
	rec := a.do(http.MethodPost, base+"/periods/recompute", march)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rows := decodeAs[[]api.LeaderboardRowDTO](t, rec)

	// THEN: Alice leads
	require.Len(t, rows, 2)
	assert.Equal(t, "alice", rows[0].UserID)
	assert.Equal(t, 1, rows[0].Rank)
	assert.Equal(t, "2025-03", rows[0].Period.Key)
	assert.Greater(t, rows[0].WeightedScore, rows[1].WeightedScore)

	// WHEN: The period is published
	rec = a.do(http.MethodPost, base+"/periods/publish", api.PublishRequest{PeriodRequest: march})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	entries := decodeAs[[]api.EntryDTO](t, rec)

	// THEN: Gold for alice, silver for bob, and the medal lands on her account
	require.Len(t, entries, 2)
	assert.Equal(t, "gold", entries[0].Medal)
	assert.Equal(t, "silver", entries[1].Medal)

	acc := decodeAs[api.AccountDTO](t, a.do(http.MethodGet, base+"/users/alice/points", nil))
	assert.Equal(t, 1, acc.GoldMedals)
	assert.GreaterOrEqual(t, acc.Total, int64(100))

	top := decodeAs[[]api.LeaderboardRowDTO](t, a.do(http.MethodGet, base+"/leaderboard?period_type=monthly&period_start=2025-03-01&limit=1", nil))
	require.Len(t, top, 1)
	assert.Equal(t, "alice", top[0].UserID)

	summary := decodeAs[api.UserSummaryDTO](t, a.do(http.MethodGet, base+"/users/bob/summary?period_type=monthly&period_start=2025-03-01", nil))
	require.NotNil(t, summary.Summary)
	assert.Equal(t, 2, summary.Summary.Rank)
	require.Len(t, summary.Targets, 1)
	assert.Equal(t, float64(80), summary.Targets[0].AchievedValue)

	medals := decodeAs[[]map[string]any](t, a.do(http.MethodGet, base+"/medals", nil))
	assert.Len(t, medals, 2)
}

func TestPeriodLifecycle_TenantsAreIsolated(t *testing.T) {
	// GIVEN: Data for biz-1 only
	a := newTestAPI(t)
	a.setupMarch()
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, base+"/periods/recompute", march).Code)

	// WHEN: Another tenant reads the same period
	rec := a.do(http.MethodGet, "/api/tenants/biz-2/leaderboard?period_type=monthly&period_start=2025-03-01", nil)

	// THEN: It sees nothing
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeAs[[]api.LeaderboardRowDTO](t, rec))
}

// =============================================================================
// STREAKS AND POINTS
// =============================================================================

func TestStreaks_RecordActivityAndFreeze(t *testing.T) {
	// GIVEN: A fresh tenant
	a := newTestAPI(t)

	// WHEN: Alice is active on two consecutive days
	for _, d := range []string{"2025-03-19", "2025-03-20"} {
		rec := a.do(http.MethodPost, base+"/users/alice/activity", api.ActivityRequest{StreakType: "login", Date: d})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	// THEN: The streak counts two days
	streaks := decodeAs[[]api.StreakDTO](t, a.do(http.MethodGet, base+"/users/alice/streaks", nil))
	var login api.StreakDTO
	for _, s := range streaks {
		if s.Type == "login" {
			login = s
		}
	}
	assert.Equal(t, 2, login.Current)
	assert.True(t, login.IsActive)

	// WHEN: It is frozen
	rec := a.do(http.MethodPost, base+"/users/alice/streaks/login/freeze", api.FreezeRequest{Days: 3})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: The summary shows it frozen
	for _, s := range decodeAs[[]api.StreakDTO](t, rec) {
		if s.Type == "login" {
			assert.True(t, s.Frozen)
		}
	}
}

func TestStreaks_UnknownTypeIsNotFound(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(http.MethodPost, base+"/users/alice/activity", api.ActivityRequest{StreakType: "nope"})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPoints_AwardSpendAndIdempotency(t *testing.T) {
	// GIVEN: Alice is awarded 100 points
	a := newTestAPI(t)
	award := api.AwardPointsRequest{Points: 100, Reason: "onboarding", IdempotencyKey: "onboard-alice"}
	rec := a.do(http.MethodPost, base+"/users/alice/points", award)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// WHEN: The same award is retried
	rec = a.do(http.MethodPost, base+"/users/alice/points", award)

	// THEN: Nothing changes
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(100), decodeAs[api.AccountDTO](t, rec).Available)

	// WHEN: She spends more than she has
	rec = a.do(http.MethodPost, base+"/users/alice/points/spend", api.SpendPointsRequest{Points: 500, Reason: "mug"})

	// THEN: The spend is rejected as a client error
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodPost, base+"/users/alice/points/spend", api.SpendPointsRequest{Points: 40, Reason: "mug"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	acc := decodeAs[api.AccountDTO](t, rec)
	assert.Equal(t, int64(60), acc.Available)
	assert.Equal(t, int64(40), acc.Spent)

	txs := decodeAs[[]api.TransactionDTO](t, a.do(http.MethodGet, base+"/users/alice/transactions", nil))
	assert.Len(t, txs, 2)
}

func TestPoints_ClientKeyIsScopedToUserAndTenant(t *testing.T) {
	// GIVEN: Alice in biz-1 used the key "welcome"
	a := newTestAPI(t)
	award := api.AwardPointsRequest{Points: 25, Reason: "welcome", IdempotencyKey: "welcome"}
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, base+"/users/alice/points", award).Code)

	// WHEN: Bob, and alice in another tenant, send the same key
	bob := a.do(http.MethodPost, base+"/users/bob/points", award)
	other := a.do(http.MethodPost, "/api/tenants/biz-2/users/alice/points", award)

	// THEN: Both are applied
	require.Equal(t, http.StatusCreated, bob.Code, bob.Body.String())
	require.Equal(t, http.StatusCreated, other.Code, other.Body.String())
	assert.Equal(t, int64(25), decodeAs[api.AccountDTO](t, bob).Available)
	assert.Equal(t, int64(25), decodeAs[api.AccountDTO](t, other).Available)
}

// =============================================================================
// PENALTIES AND BONUSES
// =============================================================================

func TestPenalties_TriggerConfirmAppealReview(t *testing.T) {
	// GIVEN: The late follow-up rule
	a := newTestAPI(t)
	a.setupMarch()

	// WHEN: The event fires for bob
	rec := a.do(http.MethodPost, base+"/penalties/trigger", api.TriggerRequest{
		UserID: "bob", Event: "lead.followup_missed", RelatedKind: "lead", RelatedID: "lead-7",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	outcomes := decodeAs[[]api.OutcomeDTO](t, rec)

	// THEN: One pending penalty of 50000
	require.Len(t, outcomes, 1)
	require.NotNil(t, outcomes[0].Penalty)
	p := outcomes[0].Penalty
	assert.Equal(t, "pending", p.Status)
	assert.Equal(t, "50000.00", p.Amount)

	pending := decodeAs[[]api.PenaltyDTO](t, a.do(http.MethodGet, base+"/penalties/pending", nil))
	assert.Len(t, pending, 1)

	// WHEN: It is confirmed, then confirmed again
	rec = a.do(http.MethodPost, base+"/penalties/"+p.ID+"/confirm", api.ActorRequest{By: "manager"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = a.do(http.MethodPost, base+"/penalties/"+p.ID+"/confirm", api.ActorRequest{By: "manager"})

	// THEN: The second confirm is an illegal transition
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "precondition_failed", decodeAs[api.ErrorResponse](t, rec).Code)

	// WHEN: Bob appeals and the appeal is rejected
	rec = a.do(http.MethodPost, base+"/penalties/"+p.ID+"/appeal", api.AppealRequest{Reason: "customer rescheduled"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	appeals := decodeAs[[]api.PenaltyDTO](t, a.do(http.MethodGet, base+"/penalties/appeals", nil))
	assert.Len(t, appeals, 1)

	rec = a.do(http.MethodPost, base+"/penalties/"+p.ID+"/review", api.ReviewRequest{By: "hr", Approve: false, Resolution: "no evidence"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "appeal_rejected", decodeAs[api.PenaltyDTO](t, rec).Status)

	summary := decodeAs[api.PenaltySummaryDTO](t, a.do(http.MethodGet, base+"/users/bob/penalties", nil))
	assert.Equal(t, 1, summary.TotalPenalties)
	assert.Equal(t, 1, summary.AppealedCount)
}

func TestBonuses_CalculateNetApprovePay(t *testing.T) {
	// GIVEN: A recomputed March and a confirmed manual penalty for alice
	a := newTestAPI(t)
	a.setupMarch()
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, base+"/periods/recompute", march).Code)

	rec := a.do(http.MethodPost, base+"/penalties", api.ManualPenaltyRequest{
		UserID: "alice", Category: "discipline", Reason: "late", Amount: "75000", IssuedBy: "manager",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decodeAs[api.PenaltyDTO](t, rec)
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, base+"/penalties/"+p.ID+"/confirm", api.ActorRequest{By: "manager"}).Code)

	// WHEN: Her bonus is calculated
	rec = a.do(http.MethodPost, base+"/bonuses/calculate", api.CalculateBonusRequest{UserID: "alice", PeriodRequest: march})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	calc := decodeAs[api.BonusDTO](t, rec)
	require.True(t, calc.IsQualified, calc.DisqualificationReason)

	// THEN: The net amount subtracts the penalty
	net := decodeAs[api.NetAmountDTO](t, a.do(http.MethodGet, base+"/bonuses/"+calc.ID+"/net", nil))
	final := decimal.RequireFromString(calc.FinalAmount)
	expected := final.Sub(decimal.NewFromInt(75000))
	if expected.IsNegative() {
		expected = decimal.Zero
	}
	assert.Equal(t, expected.StringFixed(2), net.NetAmount)

	// WHEN: It is approved and paid
	rec = a.do(http.MethodPost, base+"/bonuses/"+calc.ID+"/approve", api.ApproveBonusRequest{By: "finance"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = a.do(http.MethodPost, base+"/bonuses/"+calc.ID+"/pay", api.PayBonusRequest{Reference: "PAY-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: It is paid and a late rejection conflicts
	assert.Equal(t, "paid", decodeAs[api.BonusDTO](t, rec).Status)
	rec = a.do(http.MethodPost, base+"/bonuses/"+calc.ID+"/reject", api.RejectBonusRequest{By: "finance", Reason: "oops"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestBonuses_CalculateAllCoversDirectory(t *testing.T) {
	a := newTestAPI(t)
	a.setupMarch()
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, base+"/periods/recompute", march).Code)

	rec := a.do(http.MethodPost, base+"/bonuses/calculate-all", march)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decodeAs[[]api.BonusDTO](t, rec), 2)
	assert.Len(t, decodeAs[[]api.BonusDTO](t, a.do(http.MethodGet, base+"/bonuses/pending", nil)), 2)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestErrors_StatusCodes(t *testing.T) {
	a := newTestAPI(t)

	tests := map[string]struct {
		method string
		path   string
		body   any
		want   int
	}{
		"malformed body":       {http.MethodPost, base + "/targets", `{"kpi_id":`, http.StatusBadRequest},
		"missing field":        {http.MethodPost, base + "/targets", api.CreateTargetRequest{UserID: "alice", PeriodType: "monthly", PeriodStart: "2025-03-01"}, http.StatusBadRequest},
		"bad period type":      {http.MethodPost, base + "/periods/recompute", api.PeriodRequest{PeriodType: "fortnightly", PeriodStart: "2025-03-01"}, http.StatusBadRequest},
		"misaligned start":     {http.MethodPost, base + "/periods/recompute", api.PeriodRequest{PeriodType: "monthly", PeriodStart: "2025-03-05"}, http.StatusBadRequest},
		"missing query":        {http.MethodGet, base + "/leaderboard", nil, http.StatusBadRequest},
		"unknown target":       {http.MethodPost, base + "/targets/nope/actual", api.RecordActualRequest{Value: 1}, http.StatusNotFound},
		"unknown penalty":      {http.MethodPost, base + "/penalties/nope/confirm", api.ActorRequest{By: "x"}, http.StatusNotFound},
		"publish empty period": {http.MethodPost, base + "/periods/publish", api.PublishRequest{PeriodRequest: march}, http.StatusConflict},
		"bad rules document":   {http.MethodPost, base + "/rules", `{"kpi": []}`, http.StatusBadRequest},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			rec := a.do(tc.method, tc.path, tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

// =============================================================================
// HOLIDAYS
// =============================================================================

func TestHolidays_CreateListDelete(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(http.MethodPost, base+"/holidays", api.CreateHolidayRequest{Date: "2025-03-31", Name: "Eid"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	hol := decodeAs[api.HolidayDTO](t, rec)

	list := decodeAs[[]api.HolidayDTO](t, a.do(http.MethodGet, base+"/holidays", nil))
	require.Len(t, list, 1)
	assert.Equal(t, "2025-03-31", list[0].Date)
	assert.True(t, a.store.IsHoliday("biz-1", generic.NewTimePoint(2025, time.March, 31)))

	rec = a.do(http.MethodDelete, base+"/holidays/"+hol.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, decodeAs[[]api.HolidayDTO](t, a.do(http.MethodGet, base+"/holidays", nil)))
}

// =============================================================================
// SCHEDULER
// =============================================================================

func TestScheduler_PublishesClosedPeriod(t *testing.T) {
	// GIVEN: A recomputed March, and a clock in April
	a := newTestAPI(t)
	a.setupMarch()
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, base+"/periods/recompute", march).Code)
	a.clock.At = time.Date(2025, time.April, 2, 1, 0, 0, 0, time.UTC)

	s := api.NewPeriodScheduler(a.eng, a.store, nil)
	s.Clock = a.clock

	// WHEN: One pass runs
	rep := s.RunOnce(context.Background())

	// THEN: March gets a final recompute and is published, April is recomputed
	assert.Equal(t, 1, rep.Tenants)
	assert.Equal(t, 2, rep.Recomputed)
	assert.Equal(t, 1, rep.Published)
	assert.Zero(t, rep.Failures)

	entries := decodeAs[[]api.EntryDTO](t, a.do(http.MethodGet, base+"/leaderboard/entries?period_type=monthly&period_start=2025-03-01", nil))
	require.Len(t, entries, 2)
	assert.Equal(t, "alice", entries[0].UserID)

	// WHEN: The pass runs again
	rep = s.RunOnce(context.Background())

	// THEN: Publishing is idempotent
	assert.Zero(t, rep.Failures)
	acc := decodeAs[api.AccountDTO](t, a.do(http.MethodGet, base+"/users/alice/points", nil))
	assert.Equal(t, 1, acc.GoldMedals)
}

func TestScheduler_LateCorrectionReachesTheSnapshot(t *testing.T) {
	// GIVEN: March recomputed with alice ahead, then alice's actual corrected down
	a := newTestAPI(t)
	a.setupMarch()
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, base+"/periods/recompute", march).Code)
	summary := decodeAs[api.UserSummaryDTO](t, a.do(http.MethodGet, base+"/users/alice/summary?period_type=monthly&period_start=2025-03-01", nil))
	require.Len(t, summary.Targets, 1)
	rec := a.do(http.MethodPost, base+"/targets/"+summary.Targets[0].ID+"/actual", api.RecordActualRequest{Value: 50})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	a.clock.At = time.Date(2025, time.April, 1, 1, 0, 0, 0, time.UTC)

	// WHEN: The first April pass runs
	s := api.NewPeriodScheduler(a.eng, a.store, nil)
	s.Clock = a.clock
	rep := s.RunOnce(context.Background())

	// THEN: The published snapshot reflects the correction
	assert.Zero(t, rep.Failures)
	entries := decodeAs[[]api.EntryDTO](t, a.do(http.MethodGet, base+"/leaderboard/entries?period_type=monthly&period_start=2025-03-01", nil))
	require.Len(t, entries, 2)
	assert.Equal(t, "bob", entries[0].UserID)
}

func TestScheduler_StartStop(t *testing.T) {
	a := newTestAPI(t)
	s := api.NewPeriodScheduler(a.eng, a.store, nil)
	s.CheckInterval = time.Hour

	s.Start()
	s.Stop()
	s.Stop()
}

// =============================================================================
// LOCAL COLLABORATORS
// =============================================================================

func TestMembersAndFacts_FeedRecompute(t *testing.T) {
	// GIVEN: Rules, a member roster and reported facts, but no recorded actuals
	a := newTestAPI(t)
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, base+"/rules", rulesDoc).Code)
	kpis := decodeAs[[]api.KPIDTO](t, a.do(http.MethodGet, base+"/kpis", nil))
	require.Len(t, kpis, 1)

	rec := a.do(http.MethodPut, base+"/members/carol", api.SaveMemberRequest{Role: "sales"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	members := decodeAs[[]api.MemberDTO](t, a.do(http.MethodGet, base+"/members", nil))
	assert.Equal(t, []api.MemberDTO{{UserID: "carol", Role: "sales"}}, members)

	rec = a.do(http.MethodPost, base+"/targets", api.CreateTargetRequest{
		KpiID: kpis[0].ID, UserID: "carol", PeriodType: "monthly", PeriodStart: "2025-03-01", TargetValue: 100,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(http.MethodPost, base+"/facts", api.RecordFactsRequest{Facts: []api.FactRequest{
		{UserID: "carol", Metric: "calls_made", Date: "2025-03-03", Value: 70},
		{UserID: "carol", Metric: "calls_made", Date: "2025-03-04", Value: 50},
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// WHEN: The engine reads the facts through the store
	facts := engine.Collaborators{Directory: a.store, Facts: a.store, Calendar: a.store}
	eng, err := engine.Build(a.store.Stores(), facts, engine.Options{Clock: a.clock})
	require.NoError(t, err)
	rows, err := eng.RecomputePeriod(context.Background(), "biz-1", generic.PeriodMonthly, generic.NewTimePoint(2025, time.March, 1))

	// THEN: Carol is ranked on 120 calls
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, generic.UserID("carol"), rows[0].UserID)
	assert.Equal(t, float64(120), rows[0].KPIs[0].AchievementPercent)
}

func TestActivity_TenantLevelRouteNamesUserInBody(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(http.MethodPost, base+"/activity", api.ActivityRequest{UserID: "bob", StreakType: "calls"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(http.MethodPost, base+"/activity", api.ActivityRequest{StreakType: "calls"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
