/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate one tenant with realistic
	data for demos and manual testing. Each scenario installs rules,
	registers members and feeds activity so the dashboards have
	something to show right away.

AVAILABLE SCENARIOS:

	sales-team:  Calls and deals KPIs, a month of daily facts, a bonus
	             plan and one missed follow-up penalty
	streak-week: Login streaks of different lengths ending today

HOW SCENARIOS WORK:
 1. Install the scenario's rules document via the rules factory
 2. Register members (when a local store is configured)
 3. Record facts, targets and actuals for the current month
 4. Recompute the current month so the leaderboard is populated

USAGE VIA API:

	GET  /api/scenarios
	POST /api/tenants/{tenantID}/scenarios/load
	{"scenario_id": "sales-team"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, tenantID)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios write into the tenant as it is. Loading one twice defines
	its rules twice, so use a fresh tenant id per load.

SEE ALSO:
  - handlers.go: InstallRules, RecordFacts
  - factory/rules.go: Rules JSON definitions
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/warp/performance-engine/engine"
	"github.com/warp/performance-engine/generic"
	"github.com/warp/performance-engine/kpi"
	"github.com/warp/performance-engine/penalty"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

var scenarios = []ScenarioDTO{
	{
		ID:          "sales-team",
		Name:        "Sales Team",
		Description: "Three reps with calls and deals targets, daily facts, a bonus plan and a pending penalty",
		Category:    "performance",
	},
	{
		ID:          "streak-week",
		Name:        "Streak Week",
		Description: "Login streaks of seven and three days ending today",
		Category:    "engagement",
	},
}

const salesTeamRules = `{
	"kpis": [
		{"metric": "calls_made", "name": "Calls made", "unit": "count", "weight": 60,
		 "target_min": 200, "direction": "higher_is_better", "period_type": "monthly"},
		{"metric": "deals_closed", "name": "Deals closed", "unit": "count", "weight": 40,
		 "target_min": 10, "direction": "higher_is_better", "period_type": "monthly"}
	],
	"penalty_rules": [
		{"code": "late_followup", "name": "Late follow-up", "category": "lead_handling",
		 "trigger_event": "lead.followup_missed", "type": "fixed", "amount": "50000",
		 "allow_appeal": true, "appeal_deadline_days": 3}
	],
	"achievements": [
		{"code": "hundred_calls", "name": "Hundred calls", "category": "activity", "tier": "bronze",
		 "points": 50, "trigger": "cumulative", "metric": "calls_made", "target_value": 100}
	],
	"bonus_settings": [
		{"name": "Monthly sales", "base_amount": "1000000", "min_kpi_score": 40, "period_type": "monthly"}
	]
}`

type demoRep struct {
	user  generic.UserID
	daily map[string]float64
}

var salesTeam = []demoRep{
	{user: "alice", daily: map[string]float64{"calls_made": 12, "deals_closed": 0.5}},
	{user: "bob", daily: map[string]float64{"calls_made": 8, "deals_closed": 0.25}},
	{user: "carol", daily: map[string]float64{"calls_made": 10, "deals_closed": 0.75}},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario loads a predefined scenario into the tenant.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx := r.Context()
	tenantID := tenantOf(r)

	var err error
	switch req.ScenarioID {
	case "sales-team":
		err = h.loadSalesTeamScenario(ctx, tenantID)
	case "streak-week":
		err = h.loadStreakWeekScenario(ctx, tenantID)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err != nil {
		writeDomainError(w, fmt.Sprintf("Failed to load scenario %s", req.ScenarioID), err)
		return
	}

	h.log.Info("scenario loaded", "tenant_id", tenantID, "scenario", req.ScenarioID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadSalesTeamScenario(ctx context.Context, tenantID generic.TenantID) error {
	rules, err := h.Rules.ParseRules(salesTeamRules)
	if err != nil {
		return err
	}
	if _, err := rules.Install(ctx, tenantID, h.Engine); err != nil {
		return err
	}
	defs, err := h.Engine.KPI.ActiveDefinitions(ctx, tenantID)
	if err != nil {
		return err
	}

	today := h.Engine.Today()
	period := generic.PeriodFor(generic.PeriodMonthly, today)

	for _, rep := range salesTeam {
		if h.Store != nil {
			if err := h.Store.SaveMember(ctx, tenantID, engine.Member{UserID: rep.user, Role: "sales"}); err != nil {
				return err
			}
		}
		for _, d := range defs {
			target, err := h.Engine.KPI.CreateTarget(ctx, kpi.CreateTargetInput{
				TenantID:    tenantID,
				KpiID:       d.ID,
				UserID:      rep.user,
				PeriodType:  generic.PeriodMonthly,
				PeriodStart: period.Start,
				TargetValue: d.TargetMin,
			})
			if err != nil {
				return err
			}

			// Facts feed recomputes when the store is the engine's collaborator;
			// the actual keeps the board right when it is not.
			var total float64
			for day := period.Start; day.BeforeOrEqual(today); day = day.AddDays(1) {
				v := rep.daily[d.Metric]
				if h.Store != nil {
					if err := h.Store.RecordFact(ctx, tenantID, rep.user, d.Metric, day, v); err != nil {
						return err
					}
				}
				total += v
			}
			if _, err := h.Engine.KPI.RecordActual(ctx, tenantID, target.ID, total); err != nil {
				return err
			}
		}
	}

	if _, err := h.Engine.EvaluatePenaltyTrigger(ctx, penalty.Trigger{
		TenantID:    tenantID,
		UserID:      "bob",
		Event:       "lead.followup_missed",
		Related:     generic.RelatedRef{Kind: generic.RelatedLead, ID: "lead-demo-1"},
		Description: "Follow-up for lead-demo-1 missed by two days",
	}); err != nil {
		return err
	}

	_, err = h.Engine.RecomputePeriod(ctx, tenantID, generic.PeriodMonthly, period.Start)
	return err
}

func (h *Handler) loadStreakWeekScenario(ctx context.Context, tenantID generic.TenantID) error {
	today := h.Engine.Today()
	for user, days := range map[generic.UserID]int{"alice": 7, "bob": 3} {
		if h.Store != nil {
			if err := h.Store.SaveMember(ctx, tenantID, engine.Member{UserID: user, Role: "sales"}); err != nil {
				return err
			}
		}
		for i := days - 1; i >= 0; i-- {
			if _, err := h.Engine.RecordDailyActivity(ctx, tenantID, user, "login", today.AddDays(-i)); err != nil {
				return err
			}
		}
	}
	return nil
}
