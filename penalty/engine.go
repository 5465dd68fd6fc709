package penalty

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/performance-engine/generic"
	"github.com/warp/performance-engine/logger"
)

// Engine evaluates trigger events and drives penalties through their
// lifecycle.
type Engine struct {
	store       Store
	warningDays int
	clock       generic.Clock
	locks       generic.Locker
	log         *logger.Logger
}

func NewEngine(store Store, clock generic.Clock, locks generic.Locker, log *logger.Logger) *Engine {
	if clock == nil {
		clock = generic.SystemClock{}
	}
	if locks == nil {
		locks = generic.NewKeyedMutex()
	}
	return &Engine{
		store:       store,
		warningDays: DefaultWarningValidityDays,
		clock:       clock,
		locks:       locks,
		log:         logger.OrNop(log).With("component", "penalty"),
	}
}

// WithWarningValidity sets how long warnings last for rules that do not
// set their own validity.
func (e *Engine) WithWarningValidity(days int) *Engine {
	if days > 0 {
		e.warningDays = days
	}
	return e
}

// =============================================================================
// RULES
// =============================================================================

func (e *Engine) DefineRule(ctx context.Context, r Rule) (Rule, error) {
	if err := r.Validate(); err != nil {
		return Rule{}, err
	}
	if r.ID == "" {
		r.ID = generic.NewID()
	}
	if r.Category == "" {
		r.Category = CategoryOther
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = e.clock.Now()
	}
	if err := e.store.SaveRule(ctx, r); err != nil {
		return Rule{}, fmt.Errorf("save penalty rule: %w", err)
	}
	return r, nil
}

func (e *Engine) Rules(ctx context.Context, tenantID generic.TenantID) ([]Rule, error) {
	return e.store.ListRules(ctx, tenantID)
}

// =============================================================================
// TRIGGER EVALUATION
// =============================================================================

// Trigger is one external event reported for a user.
type Trigger struct {
	TenantID    generic.TenantID
	UserID      generic.UserID
	Event       string
	Data        map[string]any
	Related     generic.RelatedRef
	Description string
	// BonusBase resolves percentage_of_bonus amounts at issue time when known.
	BonusBase *decimal.Decimal
}

type OutcomeKind string

const (
	OutcomePenalty    OutcomeKind = "penalty"
	OutcomeWarning    OutcomeKind = "warning"
	OutcomeSuppressed OutcomeKind = "suppressed"
)

// Outcome reports what one matching rule did with the trigger.
type Outcome struct {
	RuleID  string
	Kind    OutcomeKind
	Penalty *Penalty
	Warning *Warning
	// Reason explains a suppression. Caps carry a *generic.CapExceededError.
	Reason error
}

// EvaluateTrigger runs every active rule for the event whose conditions
// match. Cap suppression is reported in the outcome, never as an error.
func (e *Engine) EvaluateTrigger(ctx context.Context, t Trigger) ([]Outcome, error) {
	if t.UserID == "" {
		return nil, generic.Invalid("user_id", "required")
	}
	if t.Event == "" {
		return nil, generic.Invalid("event", "required")
	}
	rules, err := e.store.ListRules(ctx, t.TenantID)
	if err != nil {
		return nil, err
	}

	var outcomes []Outcome
	for _, r := range rules {
		if !r.IsActive || r.TriggerEvent != t.Event || !r.Matches(t.Data) {
			continue
		}
		o, err := e.apply(ctx, r, t)
		if err != nil {
			return outcomes, fmt.Errorf("rule %s: %w", r.Code, err)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, nil
}

func (e *Engine) apply(ctx context.Context, r Rule, t Trigger) (Outcome, error) {
	// Cap check and insert must not interleave for the same rule and user.
	unlock, err := e.locks.Lock(ctx, "penalty:"+string(t.TenantID)+":"+r.ID+":"+string(t.UserID))
	if err != nil {
		return Outcome{}, err
	}
	defer unlock()

	now := e.clock.Now()
	if reason, err := e.suppression(ctx, r, t, now); err != nil {
		return Outcome{}, err
	} else if reason != nil {
		e.log.Info("penalty suppressed", "rule_id", r.ID, "user_id", t.UserID, "reason", reason.Error())
		return Outcome{RuleID: r.ID, Kind: OutcomeSuppressed, Reason: reason}, nil
	}

	if r.WarningBeforePenalty {
		active, err := e.activeWarnings(ctx, t.TenantID, t.UserID, r.ID, now)
		if err != nil {
			return Outcome{}, err
		}
		if len(active) < r.WarningsBeforePenalty {
			days := r.WarningValidityDays
			if days <= 0 {
				days = e.warningDays
			}
			w := Warning{
				ID:          generic.NewID(),
				TenantID:    t.TenantID,
				RuleID:      r.ID,
				UserID:      t.UserID,
				Reason:      r.Name,
				Description: t.Description,
				Related:     t.Related,
				Number:      len(active) + 1,
				CreatedAt:   now,
				ExpiresAt:   now.AddDate(0, 0, days),
			}
			if err := e.store.SaveWarning(ctx, w); err != nil {
				return Outcome{}, fmt.Errorf("save warning: %w", err)
			}
			e.log.Info("warning issued", "rule_id", r.ID, "user_id", t.UserID, "warning_number", w.Number)
			return Outcome{RuleID: r.ID, Kind: OutcomeWarning, Warning: &w}, nil
		}
	}

	amount, resolved := r.PenaltyAmount(t.BonusBase)
	p := Penalty{
		ID:             generic.NewID(),
		TenantID:       t.TenantID,
		RuleID:         r.ID,
		UserID:         t.UserID,
		Category:       r.Category,
		Reason:         r.Name,
		Description:    t.Description,
		Related:        t.Related,
		TriggerEvent:   t.Event,
		TriggerData:    t.Data,
		Amount:         amount,
		AmountResolved: resolved,
		Status:         StatusPending,
		AllowAppeal:    r.AllowAppeal,
		TriggeredAt:    now,
	}
	if r.Type == TypePercentageOfBonus {
		p.Percentage = r.Percentage
	}
	if r.AllowAppeal && r.AppealDeadlineDays > 0 {
		d := now.AddDate(0, 0, r.AppealDeadlineDays)
		p.AppealDeadline = &d
	}
	if err := e.store.SavePenalties(ctx, p); err != nil {
		return Outcome{}, fmt.Errorf("save penalty: %w", err)
	}
	e.log.Info("penalty issued", "penalty_id", p.ID, "rule_id", r.ID, "user_id", t.UserID, "amount", p.Amount.String())
	return Outcome{RuleID: r.ID, Kind: OutcomePenalty, Penalty: &p}, nil
}

// suppression returns why a trigger must not produce anything, or nil.
// Cancelled penalties do not count toward caps.
func (e *Engine) suppression(ctx context.Context, r Rule, t Trigger, now time.Time) (reason error, err error) {
	dayStart := generic.DateOf(now).Time
	dayEnd := dayStart.AddDate(0, 0, 1)
	monthStart := time.Date(dayStart.Year(), dayStart.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)

	counted := []Status{StatusPending, StatusConfirmed, StatusAppealed, StatusAppealApproved, StatusAppealRejected, StatusDeducted}
	month, err := e.store.ListPenalties(ctx, Filter{
		TenantID: t.TenantID, UserID: t.UserID, RuleID: r.ID, Statuses: counted,
		From: &monthStart, To: &monthEnd,
	})
	if err != nil {
		return nil, err
	}

	today := 0
	for _, p := range month {
		if p.TriggeredAt.Before(dayStart) || !p.TriggeredAt.Before(dayEnd) {
			continue
		}
		today++
		if !t.Related.IsZero() && p.Related == t.Related {
			return fmt.Errorf("%s already penalized today under rule %s", t.Related, r.Code), nil
		}
	}
	if r.MaxPerDay > 0 && today >= r.MaxPerDay {
		return &generic.CapExceededError{RuleID: r.ID, UserID: t.UserID, Window: "day", Limit: r.MaxPerDay}, nil
	}
	if r.MaxPerMonth > 0 && len(month) >= r.MaxPerMonth {
		return &generic.CapExceededError{RuleID: r.ID, UserID: t.UserID, Window: "month", Limit: r.MaxPerMonth}, nil
	}
	return nil, nil
}

func (e *Engine) activeWarnings(ctx context.Context, tenantID generic.TenantID, userID generic.UserID, ruleID string, now time.Time) ([]Warning, error) {
	all, err := e.store.ListWarnings(ctx, tenantID, userID, ruleID)
	if err != nil {
		return nil, err
	}
	var out []Warning
	for _, w := range all {
		if w.IsActive(now) {
			out = append(out, w)
		}
	}
	return out, nil
}

// ManualInput issues a penalty without a rule.
type ManualInput struct {
	TenantID           generic.TenantID
	UserID             generic.UserID
	Category           Category
	Reason             string
	Description        string
	Amount             decimal.Decimal
	Related            generic.RelatedRef
	IssuedBy           string
	AppealDeadlineDays int // 0 = DefaultAppealDeadlineDays
}

func (e *Engine) IssueManual(ctx context.Context, in ManualInput) (Penalty, error) {
	if in.UserID == "" {
		return Penalty{}, generic.Invalid("user_id", "required")
	}
	if in.Reason == "" {
		return Penalty{}, generic.Invalid("reason", "required")
	}
	if in.Amount.IsNegative() {
		return Penalty{}, generic.Invalid("amount", "must not be negative")
	}
	if in.Category == "" {
		in.Category = CategoryOther
	}
	days := in.AppealDeadlineDays
	if days <= 0 {
		days = DefaultAppealDeadlineDays
	}
	now := e.clock.Now()
	deadline := now.AddDate(0, 0, days)
	p := Penalty{
		ID:             generic.NewID(),
		TenantID:       in.TenantID,
		UserID:         in.UserID,
		Category:       in.Category,
		Reason:         in.Reason,
		Description:    in.Description,
		Related:        in.Related,
		Amount:         in.Amount,
		AmountResolved: true,
		Status:         StatusPending,
		AllowAppeal:    true,
		AppealDeadline: &deadline,
		IssuedBy:       in.IssuedBy,
		TriggeredAt:    now,
	}
	if err := e.store.SavePenalties(ctx, p); err != nil {
		return Penalty{}, fmt.Errorf("save penalty: %w", err)
	}
	e.log.Info("manual penalty issued", "penalty_id", p.ID, "user_id", p.UserID, "amount", p.Amount.String(), "issued_by", in.IssuedBy)
	return p, nil
}

// =============================================================================
// TRANSITIONS
// =============================================================================

func userLock(tenantID generic.TenantID, userID generic.UserID) string {
	return "penalty-user:" + string(tenantID) + ":" + string(userID)
}

// transition loads the penalty, applies fn under the owner's lock and saves.
func (e *Engine) transition(ctx context.Context, tenantID generic.TenantID, id string, fn func(Penalty, time.Time) (Penalty, error)) (Penalty, error) {
	p, err := e.store.GetPenalty(ctx, tenantID, id)
	if err != nil {
		return Penalty{}, err
	}
	unlock, err := e.locks.Lock(ctx, userLock(tenantID, p.UserID))
	if err != nil {
		return Penalty{}, err
	}
	defer unlock()

	if p, err = e.store.GetPenalty(ctx, tenantID, id); err != nil {
		return Penalty{}, err
	}
	next, err := fn(p, e.clock.Now())
	if err != nil {
		return p, err
	}
	if err := e.store.SavePenalties(ctx, next); err != nil {
		return Penalty{}, fmt.Errorf("save penalty: %w", err)
	}
	return next, nil
}

func (e *Engine) Confirm(ctx context.Context, tenantID generic.TenantID, id, by string) (Penalty, error) {
	return e.transition(ctx, tenantID, id, func(p Penalty, now time.Time) (Penalty, error) {
		return Confirm(p, by, now)
	})
}

func (e *Engine) SubmitAppeal(ctx context.Context, tenantID generic.TenantID, id, reason string) (Penalty, error) {
	p, err := e.transition(ctx, tenantID, id, func(p Penalty, now time.Time) (Penalty, error) {
		return SubmitAppeal(p, reason, now)
	})
	if err == nil {
		e.log.Info("penalty appeal submitted", "penalty_id", id, "user_id", p.UserID)
	}
	return p, err
}

func (e *Engine) ReviewAppeal(ctx context.Context, tenantID generic.TenantID, id, by string, approve bool, resolution string) (Penalty, error) {
	p, err := e.transition(ctx, tenantID, id, func(p Penalty, now time.Time) (Penalty, error) {
		return ReviewAppeal(p, by, approve, resolution, now)
	})
	if err == nil {
		e.log.Info("penalty appeal reviewed", "penalty_id", id, "status", p.Status, "reviewed_by", by)
	}
	return p, err
}

func (e *Engine) Cancel(ctx context.Context, tenantID generic.TenantID, id, by, reason string) (Penalty, error) {
	return e.transition(ctx, tenantID, id, func(p Penalty, now time.Time) (Penalty, error) {
		return Cancel(p, by, reason, now)
	})
}

// DeductFromBonus deducts a single penalty against a bonus.
func (e *Engine) DeductFromBonus(ctx context.Context, tenantID generic.TenantID, id, bonusID string, bonus decimal.Decimal) (Penalty, error) {
	return e.transition(ctx, tenantID, id, func(p Penalty, now time.Time) (Penalty, error) {
		return Deduct(p, bonusID, bonus, now)
	})
}

// DeductPayable deducts every payable penalty of the user triggered in
// [from, to) against the bonus, all in one store write.
func (e *Engine) DeductPayable(ctx context.Context, tenantID generic.TenantID, userID generic.UserID, from, to time.Time, bonusID string, bonus decimal.Decimal) ([]Penalty, error) {
	unlock, err := e.locks.Lock(ctx, userLock(tenantID, userID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	payable, err := e.Payable(ctx, tenantID, userID, from, to)
	if err != nil {
		return nil, err
	}
	now := e.clock.Now()
	deducted := make([]Penalty, 0, len(payable))
	total := decimal.Zero
	for _, p := range payable {
		d, err := Deduct(p, bonusID, bonus, now)
		if err != nil {
			return nil, err
		}
		deducted = append(deducted, d)
		total = total.Add(d.Amount)
	}
	if len(deducted) > 0 {
		if err := e.store.SavePenalties(ctx, deducted...); err != nil {
			return nil, fmt.Errorf("save deductions: %w", err)
		}
	}
	e.log.Info("penalties deducted from bonus", "bonus_id", bonusID, "user_id", userID, "count", len(deducted), "total", total.String())
	return deducted, nil
}

// =============================================================================
// QUERIES
// =============================================================================

func (e *Engine) Get(ctx context.Context, tenantID generic.TenantID, id string) (Penalty, error) {
	return e.store.GetPenalty(ctx, tenantID, id)
}

// Payable lists confirmed or appeal-rejected penalties triggered in [from, to).
func (e *Engine) Payable(ctx context.Context, tenantID generic.TenantID, userID generic.UserID, from, to time.Time) ([]Penalty, error) {
	return e.store.ListPenalties(ctx, Filter{
		TenantID: tenantID, UserID: userID,
		Statuses: []Status{StatusConfirmed, StatusAppealRejected},
		From:     &from, To: &to,
	})
}

// DeductedFor lists the user's penalties already deducted from the bonus.
func (e *Engine) DeductedFor(ctx context.Context, tenantID generic.TenantID, userID generic.UserID, bonusID string) ([]Penalty, error) {
	return e.store.ListPenalties(ctx, Filter{TenantID: tenantID, UserID: userID, BonusID: bonusID, Statuses: []Status{StatusDeducted}})
}

func (e *Engine) Pending(ctx context.Context, tenantID generic.TenantID) ([]Penalty, error) {
	return e.store.ListPenalties(ctx, Filter{TenantID: tenantID, Statuses: []Status{StatusPending}})
}

// AwaitingAppealReview lists appealed penalties, oldest appeal first.
func (e *Engine) AwaitingAppealReview(ctx context.Context, tenantID generic.TenantID) ([]Penalty, error) {
	out, err := e.store.ListPenalties(ctx, Filter{TenantID: tenantID, Statuses: []Status{StatusAppealed}})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AppealedAt.Before(*out[j].AppealedAt) })
	return out, nil
}

func (e *Engine) UserPenalties(ctx context.Context, tenantID generic.TenantID, userID generic.UserID) ([]Penalty, error) {
	return e.store.ListPenalties(ctx, Filter{TenantID: tenantID, UserID: userID})
}

// Summary aggregates a user's penalties and warnings since a date.
type Summary struct {
	TotalPenalties int
	TotalWarnings  int
	ActiveWarnings int
	PendingCount   int
	ConfirmedCount int
	AppealedCount  int             // appealed, approved or rejected
	TotalAmount    decimal.Decimal // confirmed
	PendingAmount  decimal.Decimal
	ByCategory     map[Category]int
	Recent         []Penalty // newest five
}

// UserSummary covers the last monthsBack months, counting from the start
// of the earliest month.
func (e *Engine) UserSummary(ctx context.Context, tenantID generic.TenantID, userID generic.UserID, monthsBack int) (Summary, error) {
	now := e.clock.Now()
	today := generic.DateOf(now)
	since := generic.StartOfMonth(today.Year(), today.Month()).AddMonths(-monthsBack).Time

	ps, err := e.store.ListPenalties(ctx, Filter{TenantID: tenantID, UserID: userID, From: &since})
	if err != nil {
		return Summary{}, err
	}
	ws, err := e.store.ListWarnings(ctx, tenantID, userID, "")
	if err != nil {
		return Summary{}, err
	}

	s := Summary{TotalAmount: decimal.Zero, PendingAmount: decimal.Zero, ByCategory: make(map[Category]int)}
	for _, w := range ws {
		if w.CreatedAt.Before(since) {
			continue
		}
		s.TotalWarnings++
		if w.IsActive(now) {
			s.ActiveWarnings++
		}
	}
	for _, p := range ps {
		s.TotalPenalties++
		s.ByCategory[p.Category]++
		switch p.Status {
		case StatusPending:
			s.PendingCount++
			s.PendingAmount = s.PendingAmount.Add(p.Amount)
		case StatusConfirmed:
			s.ConfirmedCount++
			s.TotalAmount = s.TotalAmount.Add(p.Amount)
		case StatusAppealed, StatusAppealApproved, StatusAppealRejected:
			s.AppealedCount++
		}
	}
	for i := len(ps) - 1; i >= 0 && len(s.Recent) < 5; i-- {
		s.Recent = append(s.Recent, ps[i])
	}
	return s, nil
}
