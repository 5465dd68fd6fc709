package achievement

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/performance-engine/generic"
	"github.com/warp/performance-engine/logger"
	"github.com/warp/performance-engine/points"
	"github.com/warp/performance-engine/streak"
)

// PointsGranter credits award points. *points.Service satisfies it.
type PointsGranter interface {
	AddPoints(ctx context.Context, in points.EarnInput) (points.Result, error)
}

// Engine evaluates definitions and awards achievements.
type Engine struct {
	store       Store
	points      PointsGranter
	multipliers TierMultipliers
	clock       generic.Clock
	locks       generic.Locker
	log         *logger.Logger
}

func NewEngine(store Store, granter PointsGranter, multipliers TierMultipliers, clock generic.Clock, locks generic.Locker, log *logger.Logger) *Engine {
	if multipliers == nil {
		multipliers = DefaultTierMultipliers()
	}
	if clock == nil {
		clock = generic.SystemClock{}
	}
	if locks == nil {
		locks = generic.NewKeyedMutex()
	}
	return &Engine{
		store:       store,
		points:      granter,
		multipliers: multipliers,
		clock:       clock,
		locks:       locks,
		log:         logger.OrNop(log).With("component", "achievement"),
	}
}

// =============================================================================
// DEFINITIONS
// =============================================================================

func (e *Engine) Define(ctx context.Context, d Definition) (Definition, error) {
	if err := d.Validate(); err != nil {
		return Definition{}, err
	}
	if d.ID == "" {
		d.ID = generic.NewID()
	}
	if d.Tier == "" {
		d.Tier = TierBronze
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = e.clock.Now()
	}
	if err := e.store.SaveDefinition(ctx, d); err != nil {
		return Definition{}, fmt.Errorf("save achievement: %w", err)
	}
	return d, nil
}

// SeedSystem adds the system catalog to a tenant, skipping codes it already has.
func (e *Engine) SeedSystem(ctx context.Context, tenantID generic.TenantID) (int, error) {
	existing, err := e.store.ListDefinitions(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	have := make(map[string]bool, len(existing))
	for _, d := range existing {
		have[d.Code] = true
	}
	n := 0
	for i, d := range SystemCatalog() {
		if have[d.Code] {
			continue
		}
		d.TenantID = tenantID
		d.IsSystem = true
		d.IsActive = true
		d.SortOrder = i
		if _, err := e.Define(ctx, d); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (e *Engine) Definitions(ctx context.Context, tenantID generic.TenantID) ([]Definition, error) {
	return e.store.ListDefinitions(ctx, tenantID)
}

// =============================================================================
// EVALUATION
// =============================================================================

// Input is one observation of a metric for a user.
type Input struct {
	TenantID generic.TenantID
	UserID   generic.UserID
	Trigger  Trigger
	Metric   string
	Value    float64
	// Cycle scopes repeatable awards, e.g. "2025-03" or a streak run id.
	// Empty means today's date.
	Cycle string
	Data  map[string]any
}

// Evaluate awards every active definition for (trigger, metric) that the
// value reaches and the user is still eligible for.
func (e *Engine) Evaluate(ctx context.Context, in Input) ([]Award, error) {
	if in.UserID == "" {
		return nil, generic.Invalid("user_id", "required")
	}
	if in.Cycle == "" {
		in.Cycle = generic.Today(e.clock).String()
	}
	defs, err := e.store.ListDefinitions(ctx, in.TenantID)
	if err != nil {
		return nil, err
	}

	var awards []Award
	for _, d := range defs {
		if !d.IsActive || d.Trigger != in.Trigger || d.Metric != in.Metric {
			continue
		}
		if in.Value < d.TargetValue {
			continue
		}
		a, ok, err := e.award(ctx, d, in)
		if err != nil {
			return awards, err
		}
		if ok {
			awards = append(awards, a)
		}
	}
	return awards, nil
}

func (e *Engine) award(ctx context.Context, d Definition, in Input) (Award, bool, error) {
	unlock, err := e.locks.Lock(ctx, "achievement:"+string(in.TenantID)+":"+string(in.UserID)+":"+d.ID)
	if err != nil {
		return Award{}, false, err
	}
	defer unlock()

	ua, exists, err := e.store.GetUserAchievement(ctx, in.TenantID, in.UserID, d.ID)
	if err != nil {
		return Award{}, false, err
	}
	if exists {
		if !d.IsRepeatable {
			return Award{}, false, nil
		}
		if d.MaxTimes > 0 && ua.TimesEarned >= d.MaxTimes {
			return Award{}, false, nil
		}
		if ua.LastCycle == in.Cycle {
			return Award{}, false, nil
		}
	} else {
		ua = UserAchievement{
			ID:            generic.NewID(),
			TenantID:      in.TenantID,
			UserID:        in.UserID,
			AchievementID: d.ID,
			Code:          d.Code,
		}
	}

	now := e.clock.Now()
	pts := d.AwardPoints(e.multipliers)
	times := ua.TimesEarned + 1

	// Points first: the key is derived from the award number, so a retry
	// after a failed row write finds the key used and does not pay twice.
	if e.points != nil {
		_, err := e.points.AddPoints(ctx, points.EarnInput{
			TenantID:         in.TenantID,
			UserID:           in.UserID,
			Points:           pts,
			Source:           "achievement",
			SourceID:         d.ID,
			Reason:           "Achievement: " + d.Name,
			IdempotencyKey:   fmt.Sprintf("achievement:%s:%s:%d", d.ID, in.UserID, times),
			CountAchievement: true,
		})
		if err != nil {
			return Award{}, false, fmt.Errorf("grant achievement points: %w", err)
		}
	}

	ua.TimesEarned = times
	ua.AchievedValue = in.Value
	ua.PointsAwarded += pts
	ua.LastCycle = in.Cycle
	ua.Data = in.Data
	if ua.FirstEarnedAt.IsZero() {
		ua.FirstEarnedAt = now
	}
	ua.LastEarnedAt = now
	if err := e.store.SaveUserAchievement(ctx, ua); err != nil {
		return Award{}, false, fmt.Errorf("save user achievement: %w", err)
	}

	e.log.Info("achievement awarded", "tenant_id", in.TenantID, "user_id", in.UserID, "code", d.Code, "times", times, "points", pts)
	return Award{Definition: d, UserAchievement: ua, Points: pts}, true, nil
}

// StreakMilestone evaluates streak achievements when a daily target streak
// reaches a milestone. Other streak types do not count. Each streak run is
// its own cycle.
func (e *Engine) StreakMilestone(ctx context.Context, s streak.State, days int) error {
	if s.Type != streak.TypeDailyTarget {
		return nil
	}
	_, err := e.Evaluate(ctx, Input{
		TenantID: s.TenantID,
		UserID:   s.UserID,
		Trigger:  TriggerStreak,
		Metric:   "streak_days",
		Value:    float64(days),
		Cycle:    s.Type + ":" + s.StartDate.String(),
		Data:     map[string]any{"streak_type": s.Type},
	})
	return err
}

// =============================================================================
// QUERIES
// =============================================================================

// View joins a definition with the user's progress on it.
type View struct {
	Definition  Definition
	Earned      bool
	TimesEarned int
	EarnedAt    *time.Time
}

// UserAchievements lists the user's earned achievements with their definitions.
func (e *Engine) UserAchievements(ctx context.Context, tenantID generic.TenantID, userID generic.UserID) ([]View, error) {
	defs, err := e.store.ListDefinitions(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	earned, err := e.store.ListUserAchievements(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	byDef := make(map[string]UserAchievement, len(earned))
	for _, ua := range earned {
		byDef[ua.AchievementID] = ua
	}

	var out []View
	for _, d := range defs {
		ua, ok := byDef[d.ID]
		if !ok && (d.IsSecret || !d.IsActive) {
			continue
		}
		v := View{Definition: d, Earned: ok}
		if ok {
			v.TimesEarned = ua.TimesEarned
			at := ua.FirstEarnedAt
			v.EarnedAt = &at
		}
		out = append(out, v)
	}
	return out, nil
}
