/*
Package kpi implements KPI definitions, the scoring curve, and per-user targets.

PURPOSE:
  A KPI definition says what is measured (calls_made, revenue, ...) and
  what "good" looks like (target_min / good / excellent). A target assigns
  a value to one user for one period. As activity facts arrive the
  achieved value is overwritten and the target re-scored.

KEY CONCEPTS IN THIS FILE (types.go):
  - Definition: tenant-level KPI policy (immutable once scored; edits apply prospectively)
  - Target: per-user, per-period assignment with adjustment audit fields
  - Direction: higher-is-better or lower-is-better

SEE ALSO:
  - scoring.go: The 0-100 curve and status classifiers
  - tracker.go: Target lifecycle (create, adjust, record, close, cancel)
*/
package kpi

import (
	"fmt"
	"time"

	"github.com/warp/performance-engine/generic"
)

// =============================================================================
// DIRECTION
// =============================================================================

type Direction string

const (
	HigherIsBetter Direction = "higher_is_better"
	LowerIsBetter  Direction = "lower_is_better"
)

func (d Direction) Valid() bool { return d == HigherIsBetter || d == LowerIsBetter }

// =============================================================================
// METRIC CATALOG
// =============================================================================

type Category string

const (
	CategoryResult   Category = "result"
	CategoryActivity Category = "activity"
	CategoryQuality  Category = "quality"
)

// Metrics known to the engine and the category each belongs to.
var Metrics = map[string]Category{
	"leads_converted": CategoryResult,
	"revenue":         CategoryResult,
	"deals_count":     CategoryResult,
	"conversion_rate": CategoryResult,
	"avg_deal_size":   CategoryResult,
	"calls_made":      CategoryActivity,
	"calls_answered":  CategoryActivity,
	"call_duration":   CategoryActivity,
	"tasks_completed": CategoryActivity,
	"meetings_held":   CategoryActivity,
	"proposals_sent":  CategoryActivity,
	"response_time":   CategoryQuality,
	"crm_compliance":  CategoryQuality,
	"lead_touch_rate": CategoryQuality,
	"lost_rate":       CategoryQuality,
}

type Unit string

const (
	UnitCount    Unit = "count"
	UnitCurrency Unit = "currency"
	UnitPercent  Unit = "percentage"
	UnitMinutes  Unit = "minutes"
	UnitHours    Unit = "hours"
)

// =============================================================================
// DEFINITION
// =============================================================================

type Definition struct {
	ID              string
	TenantID        generic.TenantID
	Metric          string
	Name            string
	Unit            Unit
	Weight          float64 // 0..100, scored independently of other KPIs
	TargetMin       float64
	TargetGood      float64
	TargetExcellent float64
	Direction       Direction
	PeriodType      generic.PeriodType
	AppliesToRoles  []string
	IsActive        bool
	CreatedAt       time.Time
}

// Category returns the metric family, or "" for tenant-defined metrics.
func (d Definition) Category() Category {
	return Metrics[d.Metric]
}

// Validate rejects malformed definitions before they are stored.
func (d Definition) Validate() error {
	if d.Metric == "" {
		return generic.Invalid("metric", "required")
	}
	if d.Weight < 0 || d.Weight > 100 {
		return generic.Invalid("weight", fmt.Sprintf("must be within 0..100, got %v", d.Weight))
	}
	if d.TargetMin <= 0 {
		return generic.Invalid("target_min", "must be greater than zero")
	}
	if d.TargetGood != 0 && d.TargetGood < d.TargetMin {
		return generic.Invalid("target_good", "must not be below target_min")
	}
	if d.TargetExcellent != 0 && d.TargetExcellent < d.TargetGood {
		return generic.Invalid("target_excellent", "must not be below target_good")
	}
	if !d.Direction.Valid() {
		return generic.Invalid("direction", fmt.Sprintf("unknown direction %q", d.Direction))
	}
	if d.PeriodType != "" {
		if _, err := generic.ParsePeriodType(string(d.PeriodType)); err != nil {
			return err
		}
	}
	return nil
}

// AppliesTo reports whether users with role are measured by this KPI.
// An empty role list applies to everyone.
func (d Definition) AppliesTo(role string) bool {
	if len(d.AppliesToRoles) == 0 {
		return true
	}
	for _, r := range d.AppliesToRoles {
		if r == role {
			return true
		}
	}
	return false
}

// =============================================================================
// TARGET
// =============================================================================

type TargetStatus string

const (
	TargetActive    TargetStatus = "active"
	TargetCompleted TargetStatus = "completed"
	TargetCancelled TargetStatus = "cancelled"
)

// Target is unique per (KpiID, UserID, Period.Type, Period.Start).
type Target struct {
	ID       string
	TenantID generic.TenantID
	KpiID    string
	UserID   generic.UserID
	Period   generic.Period

	TargetValue      float64  // as originally assigned, kept for audit
	AdjustedValue    *float64 // admin override; scoring uses it when set
	AdjustmentReason string
	AdjustedBy       string
	AdjustedAt       *time.Time

	AchievedValue      float64
	AchievementPercent float64 // display value, clamped
	Score              int
	Status             TargetStatus

	CreatedAt time.Time
	UpdatedAt time.Time
	ClosedAt  *time.Time
}

// EffectiveTarget is the adjusted value when present, else the original.
func (t Target) EffectiveTarget() float64 {
	if t.AdjustedValue != nil {
		return *t.AdjustedValue
	}
	return t.TargetValue
}

func (t Target) IsActive() bool { return t.Status == TargetActive }

// Key is the natural unique key of a target.
func (t Target) Key() string {
	return t.KpiID + "/" + string(t.UserID) + "/" + t.Period.Key()
}
