package kpi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/warp/performance-engine/generic"
	"github.com/warp/performance-engine/logger"
)

// =============================================================================
// TRACKER - Target lifecycle
// =============================================================================

// Tracker owns target state: active -> completed | cancelled.
// Achieved values are last-write, never additive.
type Tracker struct {
	store          Store
	clock          generic.Clock
	locks          generic.Locker
	log            *logger.Logger
	AlertThreshold float64
}

func NewTracker(store Store, clock generic.Clock, locks generic.Locker, log *logger.Logger) *Tracker {
	if clock == nil {
		clock = generic.SystemClock{}
	}
	if locks == nil {
		locks = generic.NewKeyedMutex()
	}
	return &Tracker{
		store:          store,
		clock:          clock,
		locks:          locks,
		log:            logger.OrNop(log).With("component", "kpi"),
		AlertThreshold: DefaultAlertThreshold,
	}
}

// DefineKPI validates and stores a definition. An existing ID is replaced;
// scores already captured in period summaries are not touched.
func (tr *Tracker) DefineKPI(ctx context.Context, d Definition) (Definition, error) {
	if err := d.Validate(); err != nil {
		return Definition{}, err
	}
	if d.ID == "" {
		d.ID = generic.NewID()
	}
	if d.PeriodType == "" {
		d.PeriodType = generic.PeriodMonthly
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = tr.clock.Now()
	}
	if err := tr.store.SaveDefinition(ctx, d); err != nil {
		return Definition{}, fmt.Errorf("save kpi definition: %w", err)
	}
	return d, nil
}

func (tr *Tracker) Definition(ctx context.Context, tenantID generic.TenantID, id string) (Definition, error) {
	return tr.store.GetDefinition(ctx, tenantID, id)
}

// ActiveDefinitions lists the tenant's active KPI definitions.
func (tr *Tracker) ActiveDefinitions(ctx context.Context, tenantID generic.TenantID) ([]Definition, error) {
	all, err := tr.store.ListDefinitions(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, d := range all {
		if d.IsActive {
			out = append(out, d)
		}
	}
	return out, nil
}

type CreateTargetInput struct {
	TenantID    generic.TenantID
	KpiID       string
	UserID      generic.UserID
	PeriodType  generic.PeriodType
	PeriodStart generic.TimePoint
	TargetValue float64
}

// CreateTarget opens a target. Creating the same (kpi, user, period) again
// returns the existing active target unchanged.
func (tr *Tracker) CreateTarget(ctx context.Context, in CreateTargetInput) (Target, error) {
	if in.UserID == "" {
		return Target{}, generic.Invalid("user_id", "required")
	}
	if in.TargetValue <= 0 {
		return Target{}, generic.Invalid("target_value", "must be greater than zero")
	}
	def, err := tr.store.GetDefinition(ctx, in.TenantID, in.KpiID)
	if err != nil {
		return Target{}, err
	}
	pt := in.PeriodType
	if pt == "" {
		pt = def.PeriodType
	}
	period, err := generic.PeriodStarting(pt, in.PeriodStart)
	if err != nil {
		return Target{}, err
	}

	unlock, err := tr.locks.Lock(ctx, "kpi-target:"+in.KpiID+"/"+string(in.UserID)+"/"+period.Key())
	if err != nil {
		return Target{}, err
	}
	defer unlock()

	existing, err := tr.findTarget(ctx, in.TenantID, in.KpiID, in.UserID, period)
	if err != nil && !errors.Is(err, generic.ErrNotFound) {
		return Target{}, err
	}
	if err == nil && existing.Status != TargetCancelled {
		return existing, nil
	}

	now := tr.clock.Now()
	t := Target{
		ID:          generic.NewID(),
		TenantID:    in.TenantID,
		KpiID:       in.KpiID,
		UserID:      in.UserID,
		Period:      period,
		TargetValue: in.TargetValue,
		Status:      TargetActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	t.rescore()
	if err := tr.store.SaveTarget(ctx, t); err != nil {
		return Target{}, fmt.Errorf("save target: %w", err)
	}
	return t, nil
}

// FindTarget returns the non-cancelled target for (kpi, user, period).
func (tr *Tracker) FindTarget(ctx context.Context, tenantID generic.TenantID, kpiID string, userID generic.UserID, period generic.Period) (Target, error) {
	return tr.findTarget(ctx, tenantID, kpiID, userID, period)
}

func (tr *Tracker) findTarget(ctx context.Context, tenantID generic.TenantID, kpiID string, userID generic.UserID, period generic.Period) (Target, error) {
	start := period.Start
	ts, err := tr.store.ListTargets(ctx, TargetFilter{
		TenantID:    tenantID,
		UserID:      userID,
		KpiID:       kpiID,
		PeriodType:  period.Type,
		PeriodStart: &start,
		Statuses:    []TargetStatus{TargetActive, TargetCompleted},
	})
	if err != nil {
		return Target{}, err
	}
	if len(ts) == 0 {
		return Target{}, generic.NotFound("target", kpiID+"/"+string(userID)+"/"+period.Key())
	}
	return ts[0], nil
}

// AdjustTarget overrides the target value. The original value is kept
// for audit and scoring switches to the adjusted value.
func (tr *Tracker) AdjustTarget(ctx context.Context, tenantID generic.TenantID, targetID string, newValue float64, reason, by string) (Target, error) {
	if newValue <= 0 {
		return Target{}, generic.Invalid("adjusted_value", "must be greater than zero")
	}
	if reason == "" {
		return Target{}, generic.Invalid("reason", "required")
	}
	return tr.mutate(ctx, tenantID, targetID, "adjust", func(t *Target, now time.Time) {
		v := newValue
		t.AdjustedValue = &v
		t.AdjustmentReason = reason
		t.AdjustedBy = by
		t.AdjustedAt = &now
	})
}

// RecordActual overwrites the achieved value and re-scores.
func (tr *Tracker) RecordActual(ctx context.Context, tenantID generic.TenantID, targetID string, value float64) (Target, error) {
	if value < 0 {
		return Target{}, generic.Invalid("achieved_value", "must not be negative")
	}
	return tr.mutate(ctx, tenantID, targetID, "record actual for", func(t *Target, _ time.Time) {
		t.AchievedValue = value
	})
}

// Close completes an active target at period end.
func (tr *Tracker) Close(ctx context.Context, tenantID generic.TenantID, targetID string) (Target, error) {
	return tr.mutate(ctx, tenantID, targetID, "close", func(t *Target, now time.Time) {
		t.Status = TargetCompleted
		t.ClosedAt = &now
	})
}

// Cancel withdraws an active target; it no longer counts toward summaries.
func (tr *Tracker) Cancel(ctx context.Context, tenantID generic.TenantID, targetID string) (Target, error) {
	return tr.mutate(ctx, tenantID, targetID, "cancel", func(t *Target, now time.Time) {
		t.Status = TargetCancelled
		t.ClosedAt = &now
	})
}

func (tr *Tracker) mutate(ctx context.Context, tenantID generic.TenantID, targetID, action string, apply func(*Target, time.Time)) (Target, error) {
	unlock, err := tr.locks.Lock(ctx, "kpi-target-id:"+targetID)
	if err != nil {
		return Target{}, err
	}
	defer unlock()

	t, err := tr.store.GetTarget(ctx, tenantID, targetID)
	if err != nil {
		return Target{}, err
	}
	if !t.IsActive() {
		return Target{}, &generic.PreconditionError{Entity: "target", ID: t.ID, State: string(t.Status), Action: action}
	}
	now := tr.clock.Now()
	apply(&t, now)
	t.UpdatedAt = now
	t.rescore()
	if err := tr.store.SaveTarget(ctx, t); err != nil {
		return Target{}, fmt.Errorf("save target: %w", err)
	}
	return t, nil
}

// =============================================================================
// QUERIES
// =============================================================================

// PeriodTargets returns every active or completed target in the tenant period.
// Cancelled targets are excluded.
func (tr *Tracker) PeriodTargets(ctx context.Context, tenantID generic.TenantID, period generic.Period) ([]Target, error) {
	start := period.Start
	return tr.store.ListTargets(ctx, TargetFilter{
		TenantID:    tenantID,
		PeriodType:  period.Type,
		PeriodStart: &start,
		Statuses:    []TargetStatus{TargetActive, TargetCompleted},
	})
}

// ActiveTargets returns only targets still open in the period.
func (tr *Tracker) ActiveTargets(ctx context.Context, tenantID generic.TenantID, period generic.Period) ([]Target, error) {
	start := period.Start
	return tr.store.ListTargets(ctx, TargetFilter{
		TenantID:    tenantID,
		PeriodType:  period.Type,
		PeriodStart: &start,
		Statuses:    []TargetStatus{TargetActive},
	})
}

// UserTargets lists a user's targets in a period, any status.
func (tr *Tracker) UserTargets(ctx context.Context, tenantID generic.TenantID, userID generic.UserID, period generic.Period) ([]Target, error) {
	start := period.Start
	return tr.store.ListTargets(ctx, TargetFilter{
		TenantID:    tenantID,
		UserID:      userID,
		PeriodType:  period.Type,
		PeriodStart: &start,
	})
}
