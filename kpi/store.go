package kpi

import (
	"context"

	"github.com/warp/performance-engine/generic"
)

// Store persists definitions and targets. Targets are updated in place;
// historical scores live in period summaries, not here.
type Store interface {
	SaveDefinition(ctx context.Context, d Definition) error
	GetDefinition(ctx context.Context, tenantID generic.TenantID, id string) (Definition, error)
	ListDefinitions(ctx context.Context, tenantID generic.TenantID) ([]Definition, error)

	SaveTarget(ctx context.Context, t Target) error
	GetTarget(ctx context.Context, tenantID generic.TenantID, id string) (Target, error)
	ListTargets(ctx context.Context, f TargetFilter) ([]Target, error)
}

// TargetFilter selects targets. Zero-valued fields match everything.
type TargetFilter struct {
	TenantID    generic.TenantID
	UserID      generic.UserID
	KpiID       string
	PeriodType  generic.PeriodType
	PeriodStart *generic.TimePoint
	Statuses    []TargetStatus
}

func (f TargetFilter) Matches(t Target) bool {
	if t.TenantID != f.TenantID {
		return false
	}
	if f.UserID != "" && t.UserID != f.UserID {
		return false
	}
	if f.KpiID != "" && t.KpiID != f.KpiID {
		return false
	}
	if f.PeriodType != "" && t.Period.Type != f.PeriodType {
		return false
	}
	if f.PeriodStart != nil && !t.Period.Start.Equal(f.PeriodStart.Date()) {
		return false
	}
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if t.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}
