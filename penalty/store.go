package penalty

import (
	"context"
	"time"

	"github.com/warp/performance-engine/generic"
)

// Filter selects penalties. Zero fields match everything.
type Filter struct {
	TenantID generic.TenantID
	UserID   generic.UserID
	RuleID   string
	BonusID  string
	Statuses []Status
	From     *time.Time // TriggeredAt >= From
	To       *time.Time // TriggeredAt < To
}

func (f Filter) Matches(p Penalty) bool {
	if p.TenantID != f.TenantID {
		return false
	}
	if f.UserID != "" && p.UserID != f.UserID {
		return false
	}
	if f.RuleID != "" && p.RuleID != f.RuleID {
		return false
	}
	if f.BonusID != "" && p.DeductedFromBonusID != f.BonusID {
		return false
	}
	if f.From != nil && p.TriggeredAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !p.TriggeredAt.Before(*f.To) {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if p.Status == s {
			return true
		}
	}
	return false
}

type Store interface {
	SaveRule(ctx context.Context, r Rule) error
	GetRule(ctx context.Context, tenantID generic.TenantID, id string) (Rule, error)
	ListRules(ctx context.Context, tenantID generic.TenantID) ([]Rule, error)

	GetPenalty(ctx context.Context, tenantID generic.TenantID, id string) (Penalty, error)
	// SavePenalties writes all penalties or none.
	SavePenalties(ctx context.Context, ps ...Penalty) error
	ListPenalties(ctx context.Context, f Filter) ([]Penalty, error)

	SaveWarning(ctx context.Context, w Warning) error
	ListWarnings(ctx context.Context, tenantID generic.TenantID, userID generic.UserID, ruleID string) ([]Warning, error)
}
