/*
Package engine is the service boundary other systems call.

PURPOSE:
  Engine wires the components together and exposes the batch entry points
  (recompute a period, record daily activity, evaluate a penalty trigger,
  calculate a bonus) plus the read-only query surfaces.

COLLABORATORS:
  The surrounding platform supplies the tenant roster (Directory), the
  raw activity counts (ActivityFacts) and holidays (generic.HolidayCalendar).
  All three are optional; without them the engine works from what has
  been recorded through its own API.

SEE ALSO:
  - build.go: Build wires stores, tables and collaborators
*/
package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/warp/performance-engine/achievement"
	"github.com/warp/performance-engine/bonus"
	"github.com/warp/performance-engine/generic"
	"github.com/warp/performance-engine/kpi"
	"github.com/warp/performance-engine/leaderboard"
	"github.com/warp/performance-engine/logger"
	"github.com/warp/performance-engine/penalty"
	"github.com/warp/performance-engine/points"
	"github.com/warp/performance-engine/streak"
)

// Member is one user of a tenant with the role used for KPI and bonus
// applicability.
type Member struct {
	UserID generic.UserID
	Role   string
}

// Directory lists tenant members.
type Directory interface {
	Members(ctx context.Context, tenantID generic.TenantID) ([]Member, error)
}

// ActivityFacts reports the value of a metric for a user over [from, to].
// A zero from means since the beginning.
type ActivityFacts interface {
	Value(ctx context.Context, tenantID generic.TenantID, userID generic.UserID, metric string, from, to generic.TimePoint) (float64, error)
}

type Engine struct {
	KPI          *kpi.Tracker
	Streaks      *streak.Tracker
	Points       *points.Service
	Achievements *achievement.Engine
	Board        *leaderboard.Board
	Penalties    *penalty.Engine
	Bonuses      *bonus.Calculator

	directory   Directory
	facts       ActivityFacts
	concurrency int
	clock       generic.Clock
	tracer      trace.Tracer
	log         *logger.Logger
}

func (e *Engine) span(ctx context.Context, name string, tenantID generic.TenantID, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("tenant.id", string(tenantID)))
	return e.tracer.Start(ctx, "engine."+name, trace.WithAttributes(attrs...))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func newTracer() trace.Tracer {
	return otel.Tracer("github.com/warp/performance-engine/engine")
}

// =============================================================================
// BATCH ENTRY POINTS
// =============================================================================

// RecomputePeriod refreshes target actuals from the activity facts, rebuilds
// the period's summaries and evaluates score and metric achievements.
// Safe to re-run.
func (e *Engine) RecomputePeriod(ctx context.Context, tenantID generic.TenantID, periodType generic.PeriodType, periodStart generic.TimePoint) (summaries []leaderboard.Summary, err error) {
	ctx, span := e.span(ctx, "RecomputePeriod", tenantID,
		attribute.String("period.type", string(periodType)), attribute.String("period.start", periodStart.String()))
	defer func() { finish(span, err) }()

	period, err := generic.PeriodStarting(periodType, periodStart)
	if err != nil {
		return nil, err
	}

	if e.facts != nil {
		if err := e.refreshActuals(ctx, tenantID, period); err != nil {
			return nil, err
		}
	}

	summaries, err = e.Board.Recompute(ctx, tenantID, period)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("summaries", len(summaries)))

	if err := e.evaluatePeriodAchievements(ctx, tenantID, period, summaries); err != nil {
		return summaries, err
	}
	return summaries, nil
}

// refreshActuals sets every active target's achieved value from the facts,
// counted up to today for an open period.
func (e *Engine) refreshActuals(ctx context.Context, tenantID generic.TenantID, period generic.Period) error {
	targets, err := e.KPI.ActiveTargets(ctx, tenantID, period)
	if err != nil {
		return err
	}
	to := period.End
	if today := generic.Today(e.clock); today.Before(to) {
		to = today
	}
	metrics := make(map[string]string)
	for _, t := range targets {
		metric, ok := metrics[t.KpiID]
		if !ok {
			def, err := e.KPI.Definition(ctx, tenantID, t.KpiID)
			if err != nil {
				return err
			}
			metric = def.Metric
			metrics[t.KpiID] = metric
		}
		v, err := e.facts.Value(ctx, tenantID, t.UserID, metric, period.Start, to)
		if err != nil {
			return fmt.Errorf("activity facts %s/%s: %w", t.UserID, metric, err)
		}
		if _, err := e.KPI.RecordActual(ctx, tenantID, t.ID, v); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) evaluatePeriodAchievements(ctx context.Context, tenantID generic.TenantID, period generic.Period, summaries []leaderboard.Summary) error {
	for _, s := range summaries {
		for _, k := range s.KPIs {
			if e.facts == nil {
				continue
			}
			// Thresholds judge this period alone; cumulative counts everything so far.
			inPeriod, err := e.facts.Value(ctx, tenantID, s.UserID, k.Metric, period.Start, period.End)
			if err != nil {
				return err
			}
			lifetime, err := e.facts.Value(ctx, tenantID, s.UserID, k.Metric, generic.TimePoint{}, period.End)
			if err != nil {
				return err
			}
			inputs := []achievement.Input{
				{TenantID: tenantID, UserID: s.UserID, Trigger: achievement.TriggerThreshold, Metric: k.Metric, Value: inPeriod, Cycle: period.Key()},
				{TenantID: tenantID, UserID: s.UserID, Trigger: achievement.TriggerCumulative, Metric: k.Metric, Value: lifetime, Cycle: period.Key()},
			}
			for _, in := range inputs {
				if _, err := e.Achievements.Evaluate(ctx, in); err != nil {
					return err
				}
			}
		}
		if len(s.KPIs) == 0 {
			continue
		}
		if _, err := e.Achievements.Evaluate(ctx, achievement.Input{
			TenantID: tenantID, UserID: s.UserID, Trigger: achievement.TriggerThreshold, Metric: "kpi_score", Value: s.WeightedScore, Cycle: period.Key(),
		}); err != nil {
			return err
		}
	}
	return nil
}

// PublishPeriod snapshots the period's top three with medals and evaluates
// medal achievements for the winners.
func (e *Engine) PublishPeriod(ctx context.Context, tenantID generic.TenantID, periodType generic.PeriodType, periodStart generic.TimePoint, force bool) (entries []leaderboard.Entry, err error) {
	ctx, span := e.span(ctx, "PublishPeriod", tenantID, attribute.String("period.start", periodStart.String()))
	defer func() { finish(span, err) }()

	period, err := generic.PeriodStarting(periodType, periodStart)
	if err != nil {
		return nil, err
	}
	entries, err = e.Board.Publish(ctx, tenantID, period, force)
	if err != nil {
		return nil, err
	}
	for _, en := range entries {
		a, err := e.Points.Account(ctx, tenantID, en.UserID)
		if err != nil {
			return entries, err
		}
		inputs := []achievement.Input{
			{TenantID: tenantID, UserID: en.UserID, Trigger: achievement.TriggerThreshold, Metric: "gold_medals", Value: float64(a.GoldMedals), Cycle: period.Key()},
			{TenantID: tenantID, UserID: en.UserID, Trigger: achievement.TriggerCumulative, Metric: "first_place_count", Value: float64(a.GoldMedals), Cycle: period.Key()},
		}
		for _, in := range inputs {
			if _, err := e.Achievements.Evaluate(ctx, in); err != nil {
				return entries, err
			}
		}
	}
	return entries, nil
}

// RecomputeTenants recomputes one period for many tenants in parallel.
// The first failure cancels the remaining work.
func (e *Engine) RecomputeTenants(ctx context.Context, tenants []generic.TenantID, periodType generic.PeriodType, periodStart generic.TimePoint) error {
	ctx, span := e.tracer.Start(ctx, "engine.RecomputeTenants", trace.WithAttributes(attribute.Int("tenants", len(tenants))))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, t := range tenants {
		t := t
		g.Go(func() error {
			if _, err := e.RecomputePeriod(gctx, t, periodType, periodStart); err != nil {
				return fmt.Errorf("tenant %s: %w", t, err)
			}
			return nil
		})
	}
	err := g.Wait()
	finish(span, err)
	return err
}

// RecordDailyActivity advances the user's streak. A zero date means today.
func (e *Engine) RecordDailyActivity(ctx context.Context, tenantID generic.TenantID, userID generic.UserID, streakType string, date generic.TimePoint) (st streak.State, err error) {
	ctx, span := e.span(ctx, "RecordDailyActivity", tenantID, attribute.String("streak.type", streakType))
	defer func() { finish(span, err) }()
	return e.Streaks.RecordActivity(ctx, tenantID, userID, streakType, date)
}

func (e *Engine) EvaluatePenaltyTrigger(ctx context.Context, t penalty.Trigger) (out []penalty.Outcome, err error) {
	ctx, span := e.span(ctx, "EvaluatePenaltyTrigger", t.TenantID, attribute.String("event", t.Event))
	defer func() { finish(span, err) }()
	return e.Penalties.EvaluateTrigger(ctx, t)
}

// CalculateBonus calculates one user's bonus. The role comes from the
// directory when one is configured.
func (e *Engine) CalculateBonus(ctx context.Context, tenantID generic.TenantID, userID generic.UserID, periodType generic.PeriodType, periodStart generic.TimePoint) (calc bonus.Calculation, err error) {
	ctx, span := e.span(ctx, "CalculateBonus", tenantID, attribute.String("period.start", periodStart.String()))
	defer func() { finish(span, err) }()

	period, err := generic.PeriodStarting(periodType, periodStart)
	if err != nil {
		return bonus.Calculation{}, err
	}
	role := ""
	if e.directory != nil {
		members, err := e.directory.Members(ctx, tenantID)
		if err != nil {
			return bonus.Calculation{}, err
		}
		for _, m := range members {
			if m.UserID == userID {
				role = m.Role
				break
			}
		}
	}
	return e.Bonuses.Calculate(ctx, bonus.CalculateInput{TenantID: tenantID, UserID: userID, Role: role, Period: period})
}

// CalculateBonuses runs CalculateBonus for every directory member. A
// member without a matching setting is skipped; other failures are
// logged and the batch continues.
func (e *Engine) CalculateBonuses(ctx context.Context, tenantID generic.TenantID, periodType generic.PeriodType, periodStart generic.TimePoint) ([]bonus.Calculation, error) {
	if e.directory == nil {
		return nil, &generic.PreconditionError{Entity: "engine", ID: string(tenantID), State: "no directory", Action: "calculate bonuses for"}
	}
	period, err := generic.PeriodStarting(periodType, periodStart)
	if err != nil {
		return nil, err
	}
	members, err := e.directory.Members(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	var out []bonus.Calculation
	for _, m := range members {
		calc, err := e.Bonuses.Calculate(ctx, bonus.CalculateInput{TenantID: tenantID, UserID: m.UserID, Role: m.Role, Period: period})
		switch {
		case err == nil:
			out = append(out, calc)
		case generic.IsNotFound(err):
		default:
			e.log.Error("bonus calculation failed", "tenant_id", tenantID, "user_id", m.UserID, "error", err)
		}
	}
	e.log.Info("period bonuses calculated", "tenant_id", tenantID, "period", period.Key(), "count", len(out))
	return out, nil
}

// =============================================================================
// QUERIES
// =============================================================================

func (e *Engine) Leaderboard(ctx context.Context, tenantID generic.TenantID, periodType generic.PeriodType, periodStart generic.TimePoint, limit int) ([]leaderboard.Summary, error) {
	period, err := generic.PeriodStarting(periodType, periodStart)
	if err != nil {
		return nil, err
	}
	return e.Board.Leaderboard(ctx, tenantID, period, limit)
}

// UserOverview is everything known about a user for one period.
type UserOverview struct {
	Summary *leaderboard.Summary
	Targets []kpi.Target
	Account points.Account
	Streaks []streak.Summary
}

func (e *Engine) UserSummary(ctx context.Context, tenantID generic.TenantID, userID generic.UserID, periodType generic.PeriodType, periodStart generic.TimePoint) (UserOverview, error) {
	period, err := generic.PeriodStarting(periodType, periodStart)
	if err != nil {
		return UserOverview{}, err
	}
	var out UserOverview
	s, err := e.Board.UserSummary(ctx, tenantID, userID, period)
	switch {
	case err == nil:
		out.Summary = &s
	case !generic.IsNotFound(err):
		return UserOverview{}, err
	}
	if out.Targets, err = e.KPI.UserTargets(ctx, tenantID, userID, period); err != nil {
		return UserOverview{}, err
	}
	if out.Account, err = e.Points.Account(ctx, tenantID, userID); err != nil {
		return UserOverview{}, err
	}
	if out.Streaks, err = e.Streaks.UserStreaks(ctx, tenantID, userID); err != nil {
		return UserOverview{}, err
	}
	return out, nil
}

func (e *Engine) UserStreaks(ctx context.Context, tenantID generic.TenantID, userID generic.UserID) ([]streak.Summary, error) {
	return e.Streaks.UserStreaks(ctx, tenantID, userID)
}

func (e *Engine) UserAchievements(ctx context.Context, tenantID generic.TenantID, userID generic.UserID) ([]achievement.View, error) {
	return e.Achievements.UserAchievements(ctx, tenantID, userID)
}

func (e *Engine) PendingPenalties(ctx context.Context, tenantID generic.TenantID) ([]penalty.Penalty, error) {
	return e.Penalties.Pending(ctx, tenantID)
}

func (e *Engine) PendingBonuses(ctx context.Context, tenantID generic.TenantID) ([]bonus.Calculation, error) {
	return e.Bonuses.AwaitingApproval(ctx, tenantID)
}

// Today is the current date on the engine's clock.
func (e *Engine) Today() generic.TimePoint {
	return generic.Today(e.clock)
}
