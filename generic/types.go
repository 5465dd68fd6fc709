/*
Package generic provides the shared primitives of the performance engine.

PURPOSE:
  This package contains domain-agnostic types used by every component:
  scoring, streaks, points, achievements, leaderboards, penalties and
  bonuses all speak in terms of tenants, users, amounts, periods and
  append-only transactions defined here.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A quantity with a unit (e.g., 100 points, 250000 currency)
  - Transaction: An immutable ledger entry recording a points mutation
  - TenantID / UserID: Type-safe identifiers
  - RelatedRef: Tagged reference to an external CRM record

DESIGN PRINCIPLES:
  1. Immutability: Transactions are never modified, only reversed
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Type Safety: Strong typing for IDs prevents mixing tenant/user IDs
  4. Auditability: Every transaction has source, reference, and idempotency key

USAGE:
  amount := generic.NewAmount(50, generic.UnitPoints)
  tx := generic.Transaction{
      TenantID: "biz-1",
      UserID:   "user-7",
      Delta:    amount,
      Type:     generic.TxEarned,
      Source:   "achievement",
  }

SEE ALSO:
  - ledger.go: Transaction persistence interface
  - period.go: Period arithmetic used by targets, summaries and bonuses
  - errors.go: Error taxonomy shared by all components
*/
package generic

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const (
	UnitPoints   Unit = "points"
	UnitCurrency Unit = "currency"
	UnitPercent  Unit = "percent"
)

func NewAmount(value float64, unit Unit) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Unit: unit}
}

func NewAmountFromInt(value int64, unit Unit) Amount {
	return Amount{Value: decimal.NewFromInt(value), Unit: unit}
}

func Points(n int64) Amount           { return NewAmountFromInt(n, UnitPoints) }
func Money(d decimal.Decimal) Amount  { return Amount{Value: d, Unit: UnitCurrency} }
func ZeroAmount(unit Unit) Amount     { return Amount{Value: decimal.Zero, Unit: unit} }

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (a Amount) Zero() Amount                 { return Amount{Value: decimal.Zero, Unit: a.Unit} }
func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value), Unit: a.Unit} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value), Unit: a.Unit} }
func (a Amount) Mul(s decimal.Decimal) Amount { return Amount{Value: a.Value.Mul(s), Unit: a.Unit} }
func (a Amount) Neg() Amount                  { return Amount{Value: a.Value.Neg(), Unit: a.Unit} }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }
func (a Amount) GreaterThan(b Amount) bool    { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool       { return a.Value.LessThan(b.Value) }
func (a Amount) Equal(b Amount) bool          { return a.Value.Equal(b.Value) }
func (a Amount) IntPart() int64               { return a.Value.IntPart() }

func (a Amount) Max(b Amount) Amount {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TenantID string
type UserID string
type TransactionID string

// NewID returns a random identifier for persisted entities.
func NewID() string {
	return uuid.NewString()
}

// =============================================================================
// RELATED REFERENCE - What an external fact points at
// =============================================================================

// RelatedKind names the kind of external CRM record a penalty refers to.
type RelatedKind string

const (
	RelatedNone RelatedKind = ""
	RelatedLead RelatedKind = "lead"
	RelatedTask RelatedKind = "task"
	RelatedCall RelatedKind = "call"
	RelatedDeal RelatedKind = "deal"
)

// RelatedRef is a tagged reference {kind, id}. The zero value means "no record".
type RelatedRef struct {
	Kind RelatedKind
	ID   string
}

func (r RelatedRef) IsZero() bool { return r.Kind == RelatedNone || r.ID == "" }

func (r RelatedRef) String() string {
	if r.IsZero() {
		return ""
	}
	return string(r.Kind) + ":" + r.ID
}

// ParseRelatedKind accepts the known kinds and reports false otherwise.
func ParseRelatedKind(s string) (RelatedKind, bool) {
	switch RelatedKind(s) {
	case RelatedLead, RelatedTask, RelatedCall, RelatedDeal:
		return RelatedKind(s), true
	case RelatedNone:
		return RelatedNone, true
	}
	return RelatedNone, false
}

// =============================================================================
// TRANSACTION - Atomic change to a points balance
// =============================================================================

type TransactionType string

const (
	TxEarned     TransactionType = "earned"     // Points granted (achievement, medal, manual)
	TxSpent      TransactionType = "spent"      // Points redeemed
	TxAdjustment TransactionType = "adjustment" // Manual admin correction
	TxReversal   TransactionType = "reversal"   // Undo a previous transaction
)

type Transaction struct {
	ID             TransactionID
	TenantID       TenantID
	UserID         UserID
	EffectiveAt    TimePoint
	Delta          Amount
	Type           TransactionType
	Source         string // achievement, medal, streak, manual, redemption
	SourceID       string
	Reason         string
	BalanceAfter   Amount // available balance after applying Delta
	IdempotencyKey string
	Metadata       map[string]string

	CreatedBy string
	CreatedAt TimePoint
}

// IsEarning reports whether the transaction adds to the lifetime total.
func (t Transaction) IsEarning() bool {
	return t.Type == TxEarned || (t.Type == TxAdjustment && t.Delta.IsPositive())
}
