/*
errors.go - Centralized error types for the performance engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Component packages return these (or wrap them with fmt.Errorf %w) so
  callers and the HTTP layer can classify failures with errors.Is/As.

ERROR CATEGORIES:
  1. Validation - malformed input, rejected before any mutation
  2. Precondition - illegal state transition, entity left unchanged
  3. CapExceeded - penalty rule limit reached, suppressed and logged
  4. NotFound - missing rule, definition, target or record
  5. Ledger - insufficient balance, duplicate idempotency key

USAGE:
  if errors.Is(err, generic.ErrPrecondition) {
      var pe *generic.PreconditionError
      errors.As(err, &pe) // pe.Deadline carries the appeal deadline
  }

SEE ALSO:
  - api/errors.go: Maps these errors to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed input (negative weight, target_min <= 0).
	ErrValidation = errors.New("validation failed")

	// ErrPrecondition is returned when a state transition is not legal from the current state.
	ErrPrecondition = errors.New("precondition failed")

	// ErrCapExceeded is returned when a penalty rule's daily or monthly cap is reached.
	// Trigger sources never see it; the penalty engine logs and suppresses.
	ErrCapExceeded = errors.New("cap exceeded")

	// ErrNotFound is returned when a referenced record doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientBalance is returned when a spend exceeds available points.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrDuplicateIdempotencyKey is returned when a transaction with the same
	// idempotency key already exists. This is expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrInvalidPeriod is returned when a period is malformed (end before start, misaligned start).
	ErrInvalidPeriod = errors.New("invalid period")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// PreconditionError describes a rejected transition. Deadline is set when
// the transition was refused because a time window has closed.
type PreconditionError struct {
	Entity   string
	ID       string
	State    string
	Action   string
	Deadline *time.Time
	Reason   string
}

func (e *PreconditionError) Error() string {
	msg := fmt.Sprintf("cannot %s %s %s in state %s", e.Action, e.Entity, e.ID, e.State)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Deadline != nil {
		msg += fmt.Sprintf(" (deadline was %s)", e.Deadline.UTC().Format(time.RFC3339))
	}
	return msg
}

func (e *PreconditionError) Unwrap() error { return ErrPrecondition }

// NotFoundError names the missing kind and key.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Key)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// CapExceededError records which limit suppressed a trigger.
type CapExceededError struct {
	RuleID string
	UserID UserID
	Window string // "day" or "month"
	Limit  int
}

func (e *CapExceededError) Error() string {
	return fmt.Sprintf("rule %s reached max %d per %s for user %s", e.RuleID, e.Limit, e.Window, e.UserID)
}

func (e *CapExceededError) Unwrap() error { return ErrCapExceeded }

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	UserID    UserID
	Available Amount
	Requested Amount
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s: available %v, requested %v",
		e.UserID, e.Available.Value, e.Requested.Value)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// NotFound is shorthand for building a NotFoundError.
func NotFound(kind, key string) error {
	return &NotFoundError{Kind: kind, Key: key}
}

// Invalid is shorthand for building a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrDuplicateIdempotencyKey) ||
		errors.Is(err, ErrInvalidPeriod)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsPrecondition returns true if the error is an illegal transition.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrPrecondition)
}
