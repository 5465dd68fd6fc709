package penalty

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/performance-engine/generic"
)

func illegal(p Penalty, action, reason string) error {
	return &generic.PreconditionError{Entity: "penalty", ID: p.ID, State: string(p.Status), Action: action, Reason: reason}
}

// Confirm moves a pending penalty to confirmed.
func Confirm(p Penalty, by string, now time.Time) (Penalty, error) {
	if p.Status != StatusPending {
		return p, illegal(p, "confirm", "")
	}
	p.Status = StatusConfirmed
	p.ConfirmedBy = by
	p.ConfirmedAt = &now
	return p, nil
}

// CanBeAppealed reports whether SubmitAppeal would succeed at now.
func CanBeAppealed(p Penalty, now time.Time) bool {
	if !p.AllowAppeal {
		return false
	}
	if p.Status != StatusPending && p.Status != StatusConfirmed {
		return false
	}
	return p.AppealDeadline == nil || now.Before(*p.AppealDeadline)
}

// SubmitAppeal disputes a pending or confirmed penalty before its deadline.
// A late appeal fails with the deadline in the error.
func SubmitAppeal(p Penalty, reason string, now time.Time) (Penalty, error) {
	if reason == "" {
		return p, generic.Invalid("reason", "required")
	}
	if p.Status != StatusPending && p.Status != StatusConfirmed {
		return p, illegal(p, "appeal", "")
	}
	if !p.AllowAppeal {
		return p, illegal(p, "appeal", "the rule does not allow appeals")
	}
	if p.AppealDeadline != nil && !now.Before(*p.AppealDeadline) {
		return p, &generic.PreconditionError{
			Entity: "penalty", ID: p.ID, State: string(p.Status), Action: "appeal",
			Reason: "appeal deadline passed", Deadline: p.AppealDeadline,
		}
	}
	p.Status = StatusAppealed
	p.AppealReason = reason
	p.AppealedAt = &now
	return p, nil
}

// ReviewAppeal approves (voids) or rejects (makes payable) an appeal.
func ReviewAppeal(p Penalty, by string, approve bool, resolution string, now time.Time) (Penalty, error) {
	if p.Status != StatusAppealed {
		return p, illegal(p, "review appeal of", "")
	}
	if approve {
		p.Status = StatusAppealApproved
	} else {
		p.Status = StatusAppealRejected
	}
	p.ReviewedBy = by
	p.ReviewedAt = &now
	p.Resolution = resolution
	return p, nil
}

// Deduct links a payable penalty to a bonus. Terminal.
func Deduct(p Penalty, bonusID string, bonus decimal.Decimal, now time.Time) (Penalty, error) {
	if !p.Payable() {
		return p, illegal(p, "deduct", "only confirmed or appeal-rejected penalties are payable")
	}
	if bonusID == "" {
		return p, generic.Invalid("bonus_id", "required")
	}
	p.Amount = p.AmountAgainst(bonus)
	p.AmountResolved = true
	p.Status = StatusDeducted
	p.DeductedFromBonusID = bonusID
	p.DeductedAt = &now
	return p, nil
}

// Cancel is the administrative override. Terminal.
func Cancel(p Penalty, by, reason string, now time.Time) (Penalty, error) {
	if p.Status == StatusDeducted || p.Status == StatusCancelled {
		return p, illegal(p, "cancel", "")
	}
	p.Status = StatusCancelled
	p.CancelledBy = by
	p.CancelReason = reason
	p.CancelledAt = &now
	return p, nil
}
