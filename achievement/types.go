/*
Package achievement defines achievement rules and awards them to users.

PURPOSE:
  An achievement fires when a metric value reaches the definition's
  target (first sale, 100 calls, a 30 day streak). Awarding creates or
  bumps the user's achievement row and grants tier-weighted points.

IDEMPOTENCY:
  An award is keyed by (user, achievement, cycle). Evaluating the same
  cycle twice never awards twice. Non-repeatable achievements are earned
  once; repeatable ones at most max_times (0 = unlimited), once per cycle.

SEE ALSO:
  - engine.go: Evaluate and the streak milestone hook
  - catalog.go: System achievements seeded per tenant
*/
package achievement

import (
	"math"
	"time"

	"github.com/warp/performance-engine/generic"
)

type Trigger string

const (
	TriggerThreshold  Trigger = "threshold"
	TriggerCumulative Trigger = "cumulative"
	TriggerStreak     Trigger = "streak"
	TriggerMilestone  Trigger = "milestone"
	TriggerSpecial    Trigger = "special"
)

func (t Trigger) Valid() bool {
	switch t {
	case TriggerThreshold, TriggerCumulative, TriggerStreak, TriggerMilestone, TriggerSpecial:
		return true
	}
	return false
}

type Category string

const (
	CategorySales     Category = "sales"
	CategoryActivity  Category = "activity"
	CategoryQuality   Category = "quality"
	CategoryStreak    Category = "streak"
	CategoryMilestone Category = "milestone"
	CategorySpecial   Category = "special"
)

// =============================================================================
// TIERS
// =============================================================================

type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
	TierDiamond  Tier = "diamond"
)

// TierMultipliers scale an achievement's base points.
type TierMultipliers map[Tier]float64

func DefaultTierMultipliers() TierMultipliers {
	return TierMultipliers{
		TierBronze:   1.0,
		TierSilver:   1.5,
		TierGold:     2.0,
		TierPlatinum: 3.0,
		TierDiamond:  5.0,
	}
}

// For returns the tier's multiplier; unknown tiers count as bronze.
func (tm TierMultipliers) For(t Tier) float64 {
	if m, ok := tm[t]; ok {
		return m
	}
	return 1.0
}

// =============================================================================
// DEFINITION
// =============================================================================

type Definition struct {
	ID           string
	TenantID     generic.TenantID
	Code         string
	Name         string
	Description  string
	Category     Category
	Tier         Tier
	Points       int64 // base points before the tier multiplier
	Trigger      Trigger
	Metric       string
	TargetValue  float64
	IsRepeatable bool
	MaxTimes     int // 0 = unlimited when repeatable
	IsActive     bool
	IsSystem     bool
	IsSecret     bool
	SortOrder    int
	CreatedAt    time.Time
}

func (d Definition) Validate() error {
	if d.Code == "" {
		return generic.Invalid("code", "required")
	}
	if !d.Trigger.Valid() {
		return generic.Invalid("trigger_type", "unknown trigger "+string(d.Trigger))
	}
	if d.Metric == "" {
		return generic.Invalid("metric", "required")
	}
	if d.TargetValue <= 0 {
		return generic.Invalid("target_value", "must be greater than zero")
	}
	if d.Points < 0 {
		return generic.Invalid("points", "must not be negative")
	}
	if d.MaxTimes < 0 {
		return generic.Invalid("max_times", "must not be negative")
	}
	return nil
}

// AwardPoints applies the tier multiplier, rounded to whole points.
func (d Definition) AwardPoints(tm TierMultipliers) int64 {
	return int64(math.Round(float64(d.Points) * tm.For(d.Tier)))
}

// Progress describes how close a value is to the target.
type Progress struct {
	Current   float64
	Target    float64
	Percent   float64 // capped at 100, one decimal
	Remaining float64
}

func (d Definition) Progress(current float64) Progress {
	p := 0.0
	if d.TargetValue > 0 {
		p = math.Min(100, current/d.TargetValue*100)
	}
	return Progress{
		Current:   current,
		Target:    d.TargetValue,
		Percent:   math.Round(p*10) / 10,
		Remaining: math.Max(0, d.TargetValue-current),
	}
}

// =============================================================================
// USER ACHIEVEMENT
// =============================================================================

// UserAchievement is unique per (user, achievement).
type UserAchievement struct {
	ID            string
	TenantID      generic.TenantID
	UserID        generic.UserID
	AchievementID string
	Code          string
	TimesEarned   int
	AchievedValue float64
	PointsAwarded int64 // cumulative over all awards
	LastCycle     string
	Data          map[string]any
	FirstEarnedAt time.Time
	LastEarnedAt  time.Time
}

// Award is what one evaluation granted.
type Award struct {
	Definition      Definition
	UserAchievement UserAchievement
	Points          int64
}
