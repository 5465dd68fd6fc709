package bonus

import (
	"time"

	"github.com/warp/performance-engine/generic"
)

func illegal(c Calculation, action, reason string) error {
	return &generic.PreconditionError{Entity: "bonus", ID: c.ID, State: string(c.Status), Action: action, Reason: reason}
}

func Approve(c Calculation, by, notes string, now time.Time) (Calculation, error) {
	if !c.Status.Open() {
		return c, illegal(c, "approve", "")
	}
	if !c.IsQualified {
		return c, illegal(c, "approve", "user is not qualified: "+c.DisqualificationReason)
	}
	c.Status = StatusApproved
	c.ApprovedBy = by
	c.ApprovalNotes = notes
	c.ApprovedAt = &now
	return c, nil
}

func Reject(c Calculation, by, reason string, now time.Time) (Calculation, error) {
	if reason == "" {
		return c, generic.Invalid("reason", "required")
	}
	if !c.Status.Open() && c.Status != StatusApproved {
		return c, illegal(c, "reject", "")
	}
	c.Status = StatusRejected
	c.RejectedBy = by
	c.RejectionReason = reason
	c.RejectedAt = &now
	return c, nil
}

func Cancel(c Calculation, now time.Time) (Calculation, error) {
	if !c.Status.Open() && c.Status != StatusApproved {
		return c, illegal(c, "cancel", "")
	}
	c.Status = StatusCancelled
	c.CancelledAt = &now
	return c, nil
}

func MarkPaid(c Calculation, reference string, now time.Time) (Calculation, error) {
	if c.Status != StatusApproved {
		return c, illegal(c, "pay", "")
	}
	c.Status = StatusPaid
	c.PaymentReference = reference
	c.PaidAt = &now
	return c, nil
}
