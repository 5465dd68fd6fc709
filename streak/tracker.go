package streak

import (
	"context"
	"fmt"

	"github.com/warp/performance-engine/generic"
	"github.com/warp/performance-engine/logger"
)

// MilestoneListener is notified after a streak reaches a milestone day.
type MilestoneListener interface {
	StreakMilestone(ctx context.Context, s State, days int) error
}

// Tracker applies transitions under a per-(user, type) lock and persists
// state with its history.
type Tracker struct {
	store    Store
	tables   Tables
	clock    generic.Clock
	locks    generic.Locker
	log      *logger.Logger
	listener MilestoneListener
}

func NewTracker(store Store, tables Tables, clock generic.Clock, locks generic.Locker, log *logger.Logger) *Tracker {
	if clock == nil {
		clock = generic.SystemClock{}
	}
	if locks == nil {
		locks = generic.NewKeyedMutex()
	}
	return &Tracker{
		store:  store,
		tables: tables,
		clock:  clock,
		locks:  locks,
		log:    logger.OrNop(log).With("component", "streak"),
	}
}

// OnMilestone registers the listener called when a milestone is reached.
func (t *Tracker) OnMilestone(l MilestoneListener) { t.listener = l }

func (t *Tracker) Tables() Tables { return t.tables }

func lockKey(tenantID generic.TenantID, userID generic.UserID, streakType string) string {
	return "streak:" + string(tenantID) + ":" + string(userID) + ":" + streakType
}

func (t *Tracker) load(ctx context.Context, tenantID generic.TenantID, userID generic.UserID, streakType string) (State, error) {
	s, ok, err := t.store.GetState(ctx, tenantID, userID, streakType)
	if err != nil {
		return State{}, err
	}
	if !ok {
		s = NewState(tenantID, userID, streakType)
	}
	return s, nil
}

func (t *Tracker) persist(ctx context.Context, tr Transition) error {
	now := t.clock.Now()
	tr.State.UpdatedAt = now
	for i := range tr.Events {
		tr.Events[i].CreatedAt = now
	}
	if err := t.store.SaveState(ctx, tr.State, tr.Events); err != nil {
		return fmt.Errorf("save streak: %w", err)
	}
	return nil
}

// RecordActivity records qualifying activity for day. Calling it twice for
// the same day changes state once. A freeze whose window has passed is
// lifted first. The milestone listener runs on every call that lands on a
// milestone day and must be idempotent.
func (t *Tracker) RecordActivity(ctx context.Context, tenantID generic.TenantID, userID generic.UserID, streakType string, day generic.TimePoint) (State, error) {
	if _, ok := t.tables.Type(streakType); !ok {
		return State{}, generic.NotFound("streak type", streakType)
	}
	if day.IsZero() {
		day = generic.Today(t.clock)
	}

	unlock, err := t.locks.Lock(ctx, lockKey(tenantID, userID, streakType))
	if err != nil {
		return State{}, err
	}
	s, tr, err := t.recordLocked(ctx, tenantID, userID, streakType, day)
	unlock()
	if err != nil {
		return State{}, err
	}

	if tr.Milestone > 0 && t.listener != nil {
		if err := t.listener.StreakMilestone(ctx, s, tr.Milestone); err != nil {
			t.log.Error("streak milestone hook failed", "user_id", userID, "type", streakType, "days", tr.Milestone, "error", err)
			return s, fmt.Errorf("streak milestone: %w", err)
		}
	}
	return s, nil
}

func (t *Tracker) recordLocked(ctx context.Context, tenantID generic.TenantID, userID generic.UserID, streakType string, day generic.TimePoint) (State, Transition, error) {
	s, err := t.load(ctx, tenantID, userID, streakType)
	if err != nil {
		return State{}, Transition{}, err
	}

	var events []Event
	if s.FreezeExpired(day) {
		uf, err := Unfreeze(s, day)
		if err != nil {
			return State{}, Transition{}, err
		}
		s = uf.State
		events = append(events, uf.Events...)
	}

	tr := RecordActivity(s, day, t.tables)
	tr.Events = append(events, tr.Events...)
	if !tr.Changed && len(events) == 0 {
		// A repeat on a milestone day notifies again, so a listener that
		// failed the first time gets another chance.
		if typ, ok := t.tables.Type(streakType); ok && s.LastActivity.SameDay(day) && typ.IsMilestone(s.Current) {
			tr.Milestone = s.Current
		}
		return tr.State, tr, nil
	}
	if err := t.persist(ctx, tr); err != nil {
		return State{}, Transition{}, err
	}

	if tr.BrokeFrom > 0 {
		t.log.Info("streak broken", "user_id", userID, "type", streakType, "length", tr.BrokeFrom)
	}
	return tr.State, tr, nil
}

// Freeze pauses a user's streak for days days.
func (t *Tracker) Freeze(ctx context.Context, tenantID generic.TenantID, userID generic.UserID, streakType string, days int) (State, error) {
	return t.apply(ctx, tenantID, userID, streakType, func(s State) (Transition, error) {
		return Freeze(s, generic.Today(t.clock), days)
	})
}

// Unfreeze resumes a frozen streak.
func (t *Tracker) Unfreeze(ctx context.Context, tenantID generic.TenantID, userID generic.UserID, streakType string) (State, error) {
	return t.apply(ctx, tenantID, userID, streakType, func(s State) (Transition, error) {
		return Unfreeze(s, generic.Today(t.clock))
	})
}

func (t *Tracker) apply(ctx context.Context, tenantID generic.TenantID, userID generic.UserID, streakType string, fn func(State) (Transition, error)) (State, error) {
	if _, ok := t.tables.Type(streakType); !ok {
		return State{}, generic.NotFound("streak type", streakType)
	}
	unlock, err := t.locks.Lock(ctx, lockKey(tenantID, userID, streakType))
	if err != nil {
		return State{}, err
	}
	defer unlock()

	s, err := t.load(ctx, tenantID, userID, streakType)
	if err != nil {
		return State{}, err
	}
	tr, err := fn(s)
	if err != nil {
		return State{}, err
	}
	if err := t.persist(ctx, tr); err != nil {
		return State{}, err
	}
	return tr.State, nil
}

// ExpireFreezes unfreezes every streak in the tenant whose window has passed.
func (t *Tracker) ExpireFreezes(ctx context.Context, tenantID generic.TenantID) (int, error) {
	today := generic.Today(t.clock)
	frozen, err := t.store.ListFrozen(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, s := range frozen {
		if !s.FreezeExpired(today) {
			continue
		}
		_, err := t.apply(ctx, tenantID, s.UserID, s.Type, func(cur State) (Transition, error) {
			if !cur.FreezeExpired(today) {
				return Transition{State: cur}, nil
			}
			return Unfreeze(cur, today)
		})
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// =============================================================================
// QUERIES
// =============================================================================

// Summary is the read view of one streak type for a user.
type Summary struct {
	Type            Type
	Current         int
	Best            int
	Multiplier      float64
	IsActive        bool
	IsAtRisk        bool
	Frozen          bool
	NextMilestone   int
	DaysToMilestone int
}

// UserStreaks lists every configured type for the user, including types
// with no activity yet.
func (t *Tracker) UserStreaks(ctx context.Context, tenantID generic.TenantID, userID generic.UserID) ([]Summary, error) {
	states, err := t.store.ListUserStates(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	byType := make(map[string]State, len(states))
	for _, s := range states {
		byType[s.Type] = s
	}

	today := generic.Today(t.clock)
	out := make([]Summary, 0, len(t.tables.Types))
	for _, typ := range t.tables.Types {
		s, ok := byType[typ.Code]
		if !ok {
			s = NewState(tenantID, userID, typ.Code)
		}
		out = append(out, Summary{
			Type:            typ,
			Current:         s.Current,
			Best:            s.Best,
			Multiplier:      s.Multiplier,
			IsActive:        s.IsActive(today),
			IsAtRisk:        s.IsAtRisk(today),
			Frozen:          s.Frozen,
			NextMilestone:   s.NextMilestone(typ),
			DaysToMilestone: s.DaysToMilestone(typ),
		})
	}
	return out, nil
}

func (t *Tracker) State(ctx context.Context, tenantID generic.TenantID, userID generic.UserID, streakType string) (State, error) {
	s, ok, err := t.store.GetState(ctx, tenantID, userID, streakType)
	if err != nil {
		return State{}, err
	}
	if !ok {
		return State{}, generic.NotFound("streak", string(userID)+"/"+streakType)
	}
	return s, nil
}

func (t *Tracker) History(ctx context.Context, streakID string) ([]Event, error) {
	return t.store.History(ctx, streakID)
}
