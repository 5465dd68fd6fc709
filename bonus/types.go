/*
Package bonus computes period bonuses from KPI scores and nets penalties.

PURPOSE:
  A tenant's Setting maps the user's weighted KPI score onto a tier
  multiplier. Qualification (minimum score, minimum working days) runs
  first: an unqualified user still gets a stored calculation, with a zero
  final amount, so the decision is auditable.

STATE MACHINE:
  pending ─► calculated ─► approved ─► paid
                │             │
                └─────────────┴─► rejected | cancelled

  approve requires a qualified calculation. paid, rejected and cancelled
  are terminal.

NET AMOUNT:
  final_amount − deducted penalties − payable penalties not yet deducted.
  Never stored; see Calculator.NetAmount.
*/
package bonus

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/performance-engine/generic"
)

// =============================================================================
// SETTING
// =============================================================================

type Tier struct {
	Name       string          `json:"name" yaml:"name"`
	MinScore   float64         `json:"min_score" yaml:"min_score"`
	Multiplier decimal.Decimal `json:"multiplier" yaml:"multiplier"`
}

// DefaultTiers is the standard multiplier table, highest first. Scores
// above 100 only occur with tenant-defined score scales.
func DefaultTiers() []Tier {
	return []Tier{
		{Name: "super_performer", MinScore: 150, Multiplier: decimal.NewFromFloat(2.0)},
		{Name: "high_performer", MinScore: 120, Multiplier: decimal.NewFromFloat(1.5)},
		{Name: "target_achieved", MinScore: 100, Multiplier: decimal.NewFromFloat(1.2)},
		{Name: "standard", MinScore: 80, Multiplier: decimal.NewFromFloat(1.0)},
		{Name: "below_target", MinScore: 60, Multiplier: decimal.NewFromFloat(0.75)},
		{Name: "minimum", MinScore: 0, Multiplier: decimal.NewFromFloat(0.5)},
	}
}

type Setting struct {
	ID             string
	TenantID       generic.TenantID
	Name           string
	BaseAmount     decimal.Decimal
	Tiers          []Tier // highest MinScore first
	MinKpiScore    float64
	MinWorkingDays int
	AppliesToRoles []string
	PeriodType     generic.PeriodType
	IsActive       bool
	CreatedAt      time.Time
}

func (s Setting) Validate() error {
	if s.Name == "" {
		return generic.Invalid("name", "required")
	}
	if s.BaseAmount.IsNegative() {
		return generic.Invalid("base_amount", "must not be negative")
	}
	if len(s.Tiers) == 0 {
		return generic.Invalid("tiers", "at least one tier is required")
	}
	for i, t := range s.Tiers {
		if t.Multiplier.IsNegative() {
			return generic.Invalid("tiers.multiplier", t.Name+" must not be negative")
		}
		if i > 0 && t.MinScore >= s.Tiers[i-1].MinScore {
			return generic.Invalid("tiers", fmt.Sprintf("%s must have a lower min_score than %s", t.Name, s.Tiers[i-1].Name))
		}
	}
	if s.MinWorkingDays < 0 {
		return generic.Invalid("min_working_days", "must not be negative")
	}
	if s.PeriodType != "" {
		if _, err := generic.ParsePeriodType(string(s.PeriodType)); err != nil {
			return err
		}
	}
	return nil
}

func (s Setting) AppliesTo(role string) bool {
	if len(s.AppliesToRoles) == 0 {
		return true
	}
	for _, r := range s.AppliesToRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Qualify returns an empty reason when the user qualifies.
func (s Setting) Qualify(score float64, workingDays int) (bool, string) {
	if score < s.MinKpiScore {
		return false, fmt.Sprintf("kpi score %.2f below minimum %.2f", score, s.MinKpiScore)
	}
	if workingDays < s.MinWorkingDays {
		return false, fmt.Sprintf("%d working days below minimum %d", workingDays, s.MinWorkingDays)
	}
	return true, ""
}

// TierFor returns the first tier the score reaches. A score below every
// tier gets a zero multiplier.
func (s Setting) TierFor(score float64) (Tier, bool) {
	for _, t := range s.Tiers {
		if score >= t.MinScore {
			return t, true
		}
	}
	return Tier{}, false
}

// =============================================================================
// CALCULATION
// =============================================================================

type Status string

const (
	StatusPending    Status = "pending"
	StatusCalculated Status = "calculated"
	StatusApproved   Status = "approved"
	StatusRejected   Status = "rejected"
	StatusPaid       Status = "paid"
	StatusCancelled  Status = "cancelled"
)

// Open reports whether the calculation can still be recalculated.
func (s Status) Open() bool { return s == StatusPending || s == StatusCalculated }

// Calculation is unique per (tenant, user, period).
type Calculation struct {
	ID        string
	TenantID  generic.TenantID
	SettingID string
	UserID    generic.UserID
	Period    generic.Period

	KpiScore               float64
	WorkingDays            int
	IsQualified            bool
	DisqualificationReason string
	BaseAmount             decimal.Decimal
	TierMultiplier         decimal.Decimal
	AppliedTier            string
	FinalAmount            decimal.Decimal

	Status       Status
	CalculatedBy string
	CalculatedAt time.Time

	ApprovedBy    string
	ApprovedAt    *time.Time
	ApprovalNotes string

	RejectedBy      string
	RejectedAt      *time.Time
	RejectionReason string

	PaymentReference string
	PaidAt           *time.Time
	CancelledAt      *time.Time
}

// Compute fills the amounts from the setting. Unqualified users get zero.
func (c *Calculation) Compute(s Setting) {
	c.SettingID = s.ID
	c.IsQualified, c.DisqualificationReason = s.Qualify(c.KpiScore, c.WorkingDays)
	c.BaseAmount = decimal.Zero
	c.TierMultiplier = decimal.NewFromInt(1)
	c.AppliedTier = ""
	c.FinalAmount = decimal.Zero
	if !c.IsQualified {
		return
	}
	c.BaseAmount = s.BaseAmount
	if t, ok := s.TierFor(c.KpiScore); ok {
		c.TierMultiplier = t.Multiplier
		c.AppliedTier = t.Name
	} else {
		c.TierMultiplier = decimal.Zero
	}
	c.FinalAmount = c.BaseAmount.Mul(c.TierMultiplier).Round(2)
}
