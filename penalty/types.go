/*
Package penalty turns rule-matched trigger events into warnings and penalties.

PURPOSE:
  A rule listens for one trigger event (lead_not_contacted_24h, task_overdue,
  ...). When the event's data matches every rule condition the engine
  checks the rule's caps, escalates through warnings if the rule asks for
  them, and finally issues a chargeable penalty.

STATE MACHINE:
  pending ──confirm──► confirmed ──deduct──► deducted
     │                    │
     └──────appeal────────┴──► appealed ──review──► appeal_approved (void)
                                                 └► appeal_rejected ──deduct──► deducted

  cancel is allowed from every state before deducted.

  Transitions are pure functions (transitions.go) returning the new
  penalty; the Engine loads, applies and saves under a per-user lock.

SEE ALSO:
  - engine.go: trigger evaluation, caps, warnings, queries
  - ../bonus: nets payable penalties against the bonus
*/
package penalty

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/performance-engine/generic"
)

var hundred = decimal.NewFromInt(100)

// DefaultAppealDeadlineDays applies to manual penalties.
const DefaultAppealDeadlineDays = 3

// DefaultWarningValidityDays applies when a rule leaves it unset.
const DefaultWarningValidityDays = 30

type Type string

const (
	TypeFixed             Type = "fixed"
	TypePercentageOfBonus Type = "percentage_of_bonus"
	TypeWarningOnly       Type = "warning_only"
)

func (t Type) Valid() bool {
	return t == TypeFixed || t == TypePercentageOfBonus || t == TypeWarningOnly
}

type Category string

const (
	CategoryCRM        Category = "crm"
	CategoryLead       Category = "lead_handling"
	CategoryTask       Category = "task"
	CategoryActivity   Category = "activity"
	CategoryDiscipline Category = "discipline"
	CategoryOther      Category = "other"
)

// =============================================================================
// RULE
// =============================================================================

type Rule struct {
	ID           string
	TenantID     generic.TenantID
	Code         string
	Name         string
	Description  string
	Category     Category
	TriggerEvent string
	Conditions   []generic.Condition // all must match

	Type       Type
	Amount     decimal.Decimal // fixed
	Percentage decimal.Decimal // percentage_of_bonus

	WarningBeforePenalty  bool
	WarningsBeforePenalty int
	WarningValidityDays   int

	MaxPerDay   int // 0 = unlimited
	MaxPerMonth int // 0 = unlimited

	AllowAppeal        bool
	AppealDeadlineDays int // 0 = no deadline

	IsActive  bool
	CreatedAt time.Time
}

func (r Rule) Validate() error {
	if r.Name == "" {
		return generic.Invalid("name", "required")
	}
	if r.TriggerEvent == "" {
		return generic.Invalid("trigger_event", "required")
	}
	if !r.Type.Valid() {
		return generic.Invalid("penalty_type", fmt.Sprintf("unknown penalty type %q", r.Type))
	}
	if r.Amount.IsNegative() {
		return generic.Invalid("amount", "must not be negative")
	}
	if r.Percentage.IsNegative() || r.Percentage.GreaterThan(hundred) {
		return generic.Invalid("percentage", "must be within 0..100")
	}
	if r.WarningBeforePenalty && r.WarningsBeforePenalty <= 0 {
		return generic.Invalid("warnings_before_penalty", "must be positive when warnings are enabled")
	}
	if r.MaxPerDay < 0 || r.MaxPerMonth < 0 {
		return generic.Invalid("max_per_day", "caps must not be negative")
	}
	if r.AppealDeadlineDays < 0 || r.WarningValidityDays < 0 {
		return generic.Invalid("appeal_deadline_days", "day counts must not be negative")
	}
	for _, c := range r.Conditions {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Matches reports whether the event data satisfies every condition.
func (r Rule) Matches(data map[string]any) bool {
	return generic.MatchAll(r.Conditions, data)
}

// PenaltyAmount applies the rule's formula. For percentage rules without
// a known bonus the amount is unresolved.
func (r Rule) PenaltyAmount(bonusBase *decimal.Decimal) (amount decimal.Decimal, resolved bool) {
	switch r.Type {
	case TypeFixed:
		return r.Amount, true
	case TypePercentageOfBonus:
		if bonusBase == nil {
			return decimal.Zero, false
		}
		return bonusBase.Mul(r.Percentage).Div(hundred).Round(2), true
	default:
		return decimal.Zero, true
	}
}

// =============================================================================
// PENALTY
// =============================================================================

type Status string

const (
	StatusPending        Status = "pending"
	StatusConfirmed      Status = "confirmed"
	StatusAppealed       Status = "appealed"
	StatusAppealApproved Status = "appeal_approved"
	StatusAppealRejected Status = "appeal_rejected"
	StatusDeducted       Status = "deducted"
	StatusCancelled      Status = "cancelled"
)

type Penalty struct {
	ID          string
	TenantID    generic.TenantID
	RuleID      string // empty for manual penalties
	UserID      generic.UserID
	Category    Category
	Reason      string
	Description string
	Related     generic.RelatedRef

	TriggerEvent string
	TriggerData  map[string]any

	Amount         decimal.Decimal
	Percentage     decimal.Decimal // set for percentage_of_bonus rules
	AmountResolved bool
	Status         Status

	AllowAppeal    bool
	AppealDeadline *time.Time

	IssuedBy    string
	TriggeredAt time.Time
	ConfirmedBy string
	ConfirmedAt *time.Time

	AppealReason string
	AppealedAt   *time.Time
	ReviewedBy   string
	ReviewedAt   *time.Time
	Resolution   string

	DeductedFromBonusID string
	DeductedAt          *time.Time

	CancelledBy  string
	CancelReason string
	CancelledAt  *time.Time
}

// Payable reports whether the penalty still counts against a bonus.
func (p Penalty) Payable() bool {
	return p.Status == StatusConfirmed || p.Status == StatusAppealRejected
}

// AmountAgainst resolves the amount against a bonus when the penalty was
// issued before the bonus was known.
func (p Penalty) AmountAgainst(bonus decimal.Decimal) decimal.Decimal {
	if p.AmountResolved {
		return p.Amount
	}
	return bonus.Mul(p.Percentage).Div(hundred).Round(2)
}

// =============================================================================
// WARNING
// =============================================================================

type Warning struct {
	ID          string
	TenantID    generic.TenantID
	RuleID      string
	UserID      generic.UserID
	Reason      string
	Description string
	Related     generic.RelatedRef
	Number      int // 1-based among the user's active warnings for the rule
	IssuedBy    string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

func (w Warning) IsActive(now time.Time) bool { return now.Before(w.ExpiresAt) }
