package bonus

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/performance-engine/generic"
	"github.com/warp/performance-engine/leaderboard"
	"github.com/warp/performance-engine/logger"
	"github.com/warp/performance-engine/penalty"
)

// ScoreSource supplies the user's period summary. *leaderboard.Board satisfies it.
type ScoreSource interface {
	UserSummary(ctx context.Context, tenantID generic.TenantID, userID generic.UserID, period generic.Period) (leaderboard.Summary, error)
}

// PenaltyLedger nets penalties against bonuses. *penalty.Engine satisfies it.
type PenaltyLedger interface {
	Payable(ctx context.Context, tenantID generic.TenantID, userID generic.UserID, from, to time.Time) ([]penalty.Penalty, error)
	DeductPayable(ctx context.Context, tenantID generic.TenantID, userID generic.UserID, from, to time.Time, bonusID string, bonus decimal.Decimal) ([]penalty.Penalty, error)
	DeductedFor(ctx context.Context, tenantID generic.TenantID, userID generic.UserID, bonusID string) ([]penalty.Penalty, error)
}

type Calculator struct {
	store     Store
	scores    ScoreSource
	penalties PenaltyLedger
	calendar  generic.HolidayCalendar
	tiers     []Tier
	clock     generic.Clock
	locks     generic.Locker
	log       *logger.Logger
}

func NewCalculator(store Store, scores ScoreSource, penalties PenaltyLedger, clock generic.Clock, locks generic.Locker, log *logger.Logger) *Calculator {
	if clock == nil {
		clock = generic.SystemClock{}
	}
	if locks == nil {
		locks = generic.NewKeyedMutex()
	}
	return &Calculator{
		store:     store,
		scores:    scores,
		penalties: penalties,
		tiers:     DefaultTiers(),
		clock:     clock,
		locks:     locks,
		log:       logger.OrNop(log).With("component", "bonus"),
	}
}

func (c *Calculator) WithCalendar(cal generic.HolidayCalendar) *Calculator {
	c.calendar = cal
	return c
}

// WithDefaultTiers sets the tiers given to settings defined without any.
func (c *Calculator) WithDefaultTiers(tiers []Tier) *Calculator {
	if len(tiers) > 0 {
		c.tiers = tiers
	}
	return c
}

// =============================================================================
// SETTINGS
// =============================================================================

func (c *Calculator) DefineSetting(ctx context.Context, s Setting) (Setting, error) {
	if len(s.Tiers) == 0 {
		s.Tiers = c.tiers
	}
	if s.PeriodType == "" {
		s.PeriodType = generic.PeriodMonthly
	}
	if err := s.Validate(); err != nil {
		return Setting{}, err
	}
	if s.ID == "" {
		s.ID = generic.NewID()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = c.clock.Now()
	}
	if err := c.store.SaveSetting(ctx, s); err != nil {
		return Setting{}, fmt.Errorf("save bonus setting: %w", err)
	}
	return s, nil
}

func (c *Calculator) Settings(ctx context.Context, tenantID generic.TenantID) ([]Setting, error) {
	return c.store.ListSettings(ctx, tenantID)
}

// settingFor picks the named setting, or the oldest active one matching
// the period type and role.
func (c *Calculator) settingFor(ctx context.Context, in CalculateInput) (Setting, error) {
	if in.SettingID != "" {
		return c.store.GetSetting(ctx, in.TenantID, in.SettingID)
	}
	all, err := c.store.ListSettings(ctx, in.TenantID)
	if err != nil {
		return Setting{}, err
	}
	for _, s := range all {
		if s.IsActive && s.PeriodType == in.Period.Type && s.AppliesTo(in.Role) {
			return s, nil
		}
	}
	return Setting{}, generic.NotFound("bonus setting", string(in.Period.Type)+"/"+in.Role)
}

// =============================================================================
// CALCULATE
// =============================================================================

type CalculateInput struct {
	TenantID     generic.TenantID
	UserID       generic.UserID
	Role         string
	Period       generic.Period
	SettingID    string // empty picks the first matching active setting
	CalculatedBy string
}

func lockKey(tenantID generic.TenantID, userID generic.UserID) string {
	return "bonus:" + string(tenantID) + ":" + string(userID)
}

// Calculate creates or refreshes the user's calculation for the period.
// Only pending or calculated rows can be refreshed.
func (c *Calculator) Calculate(ctx context.Context, in CalculateInput) (Calculation, error) {
	if in.UserID == "" {
		return Calculation{}, generic.Invalid("user_id", "required")
	}
	if err := in.Period.Validate(); err != nil {
		return Calculation{}, err
	}
	setting, err := c.settingFor(ctx, in)
	if err != nil {
		return Calculation{}, err
	}

	unlock, err := c.locks.Lock(ctx, lockKey(in.TenantID, in.UserID))
	if err != nil {
		return Calculation{}, err
	}
	defer unlock()

	calc, exists, err := c.store.FindCalculation(ctx, in.TenantID, in.UserID, in.Period)
	if err != nil {
		return Calculation{}, err
	}
	if exists && !calc.Status.Open() {
		return calc, illegal(calc, "recalculate", "")
	}
	if !exists {
		calc = Calculation{ID: generic.NewID(), TenantID: in.TenantID, UserID: in.UserID, Period: in.Period}
	}

	calc.KpiScore = 0
	calc.WorkingDays = in.Period.WorkingDays(c.calendar, in.TenantID)
	summary, err := c.scores.UserSummary(ctx, in.TenantID, in.UserID, in.Period)
	switch {
	case err == nil:
		calc.KpiScore = summary.WeightedScore
		if summary.WorkingDays > 0 {
			calc.WorkingDays = summary.WorkingDays
		}
	case !generic.IsNotFound(err):
		return Calculation{}, fmt.Errorf("load period summary: %w", err)
	}

	calc.Compute(setting)
	calc.Status = StatusCalculated
	calc.CalculatedBy = in.CalculatedBy
	calc.CalculatedAt = c.clock.Now()
	if err := c.store.SaveCalculation(ctx, calc); err != nil {
		return Calculation{}, fmt.Errorf("save bonus: %w", err)
	}

	c.log.Info("bonus calculated", "bonus_id", calc.ID, "user_id", calc.UserID, "period", in.Period.Key(),
		"score", calc.KpiScore, "qualified", calc.IsQualified, "final_amount", calc.FinalAmount.String())
	return calc, nil
}

// =============================================================================
// TRANSITIONS
// =============================================================================

func (c *Calculator) transition(ctx context.Context, tenantID generic.TenantID, id string, fn func(Calculation, time.Time) (Calculation, error)) (Calculation, error) {
	calc, err := c.store.GetCalculation(ctx, tenantID, id)
	if err != nil {
		return Calculation{}, err
	}
	unlock, err := c.locks.Lock(ctx, lockKey(tenantID, calc.UserID))
	if err != nil {
		return Calculation{}, err
	}
	defer unlock()

	if calc, err = c.store.GetCalculation(ctx, tenantID, id); err != nil {
		return Calculation{}, err
	}
	next, err := fn(calc, c.clock.Now())
	if err != nil {
		return calc, err
	}
	if err := c.store.SaveCalculation(ctx, next); err != nil {
		return Calculation{}, fmt.Errorf("save bonus: %w", err)
	}
	c.log.Info("bonus "+string(next.Status), "bonus_id", id, "user_id", next.UserID, "final_amount", next.FinalAmount.String())
	return next, nil
}

func (c *Calculator) Approve(ctx context.Context, tenantID generic.TenantID, id, by, notes string) (Calculation, error) {
	return c.transition(ctx, tenantID, id, func(calc Calculation, now time.Time) (Calculation, error) {
		return Approve(calc, by, notes, now)
	})
}

func (c *Calculator) Reject(ctx context.Context, tenantID generic.TenantID, id, by, reason string) (Calculation, error) {
	return c.transition(ctx, tenantID, id, func(calc Calculation, now time.Time) (Calculation, error) {
		return Reject(calc, by, reason, now)
	})
}

func (c *Calculator) Cancel(ctx context.Context, tenantID generic.TenantID, id string) (Calculation, error) {
	return c.transition(ctx, tenantID, id, Cancel)
}

func (c *Calculator) MarkPaid(ctx context.Context, tenantID generic.TenantID, id, reference string) (Calculation, error) {
	return c.transition(ctx, tenantID, id, func(calc Calculation, now time.Time) (Calculation, error) {
		return MarkPaid(calc, reference, now)
	})
}

// periodBounds is the half-open instant range covering the period's days.
func periodBounds(p generic.Period) (time.Time, time.Time) {
	return p.Start.Time, p.End.AddDays(1).Time
}

// DeductPenalties links every payable penalty triggered inside the bonus
// period to the bonus and marks them deducted in one write.
func (c *Calculator) DeductPenalties(ctx context.Context, tenantID generic.TenantID, id string) ([]penalty.Penalty, error) {
	calc, err := c.store.GetCalculation(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if calc.Status == StatusRejected || calc.Status == StatusCancelled || calc.Status == StatusPaid {
		return nil, illegal(calc, "deduct penalties from", "")
	}
	unlock, err := c.locks.Lock(ctx, lockKey(tenantID, calc.UserID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	from, to := periodBounds(calc.Period)
	return c.penalties.DeductPayable(ctx, tenantID, calc.UserID, from, to, calc.ID, calc.FinalAmount)
}

// =============================================================================
// QUERIES
// =============================================================================

func (c *Calculator) Get(ctx context.Context, tenantID generic.TenantID, id string) (Calculation, error) {
	return c.store.GetCalculation(ctx, tenantID, id)
}

// NetAmount is final − deducted − payable-not-yet-deducted, floored at zero.
func (c *Calculator) NetAmount(ctx context.Context, calc Calculation) (decimal.Decimal, error) {
	deducted, err := c.penalties.DeductedFor(ctx, calc.TenantID, calc.UserID, calc.ID)
	if err != nil {
		return decimal.Zero, err
	}
	from, to := periodBounds(calc.Period)
	payable, err := c.penalties.Payable(ctx, calc.TenantID, calc.UserID, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	net := calc.FinalAmount
	for _, p := range deducted {
		net = net.Sub(p.Amount)
	}
	for _, p := range payable {
		net = net.Sub(p.AmountAgainst(calc.FinalAmount))
	}
	if net.IsNegative() {
		return decimal.Zero, nil
	}
	return net, nil
}

// AwaitingApproval lists qualified calculations waiting for a decision.
func (c *Calculator) AwaitingApproval(ctx context.Context, tenantID generic.TenantID) ([]Calculation, error) {
	all, err := c.store.ListCalculations(ctx, Filter{TenantID: tenantID, Statuses: []Status{StatusPending, StatusCalculated}})
	if err != nil {
		return nil, err
	}
	var out []Calculation
	for _, calc := range all {
		if calc.IsQualified {
			out = append(out, calc)
		}
	}
	return out, nil
}

type UserSummary struct {
	TotalEarned   decimal.Decimal // paid
	TotalPending  decimal.Decimal // pending, calculated or approved
	TotalRejected decimal.Decimal
	Count         int
	AverageBonus  decimal.Decimal // over paid bonuses
	History       []Calculation   // newest first
}

func (c *Calculator) UserSummary(ctx context.Context, tenantID generic.TenantID, userID generic.UserID, monthsBack int) (UserSummary, error) {
	today := generic.Today(c.clock)
	since := generic.StartOfMonth(today.Year(), today.Month()).AddMonths(-monthsBack)
	calcs, err := c.store.ListCalculations(ctx, Filter{TenantID: tenantID, UserID: userID, Since: &since})
	if err != nil {
		return UserSummary{}, err
	}

	s := UserSummary{TotalEarned: decimal.Zero, TotalPending: decimal.Zero, TotalRejected: decimal.Zero, AverageBonus: decimal.Zero, History: calcs}
	paid := 0
	for _, calc := range calcs {
		s.Count++
		switch calc.Status {
		case StatusPaid:
			s.TotalEarned = s.TotalEarned.Add(calc.FinalAmount)
			paid++
		case StatusPending, StatusCalculated, StatusApproved:
			s.TotalPending = s.TotalPending.Add(calc.FinalAmount)
		case StatusRejected:
			s.TotalRejected = s.TotalRejected.Add(calc.FinalAmount)
		}
	}
	if paid > 0 {
		s.AverageBonus = s.TotalEarned.Div(decimal.NewFromInt(int64(paid))).Round(2)
	}
	return s, nil
}
