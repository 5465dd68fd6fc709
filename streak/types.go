/*
Package streak tracks consecutive days of qualifying activity per user and type.

PURPOSE:
  A streak counts calendar days in a row on which a user did something
  (hit the daily target, made a call, logged in). Longer streaks earn a
  points multiplier and unlock milestone achievements.

STATE MACHINE:
  inactive (current = 0) --activity--> active (current = n > 0)
  active --activity next day--> active (n + 1)
  active --activity after a gap--> break logged, fresh streak of 1
  any --freeze(days)--> frozen (activity neither advances nor breaks)
  frozen --unfreeze--> last activity set to yesterday, so today continues

  Every transition is a pure function returning the new state and the
  events it produced. The Tracker persists both together.

SEE ALSO:
  - transitions.go: RecordActivity, Freeze, Unfreeze
  - tracker.go: Persistence, per-user serialization, milestone hook
*/
package streak

import (
	"time"

	"github.com/warp/performance-engine/generic"
)

// =============================================================================
// TABLES - Streak types and multipliers
// =============================================================================

type Type struct {
	Code        string `yaml:"code" json:"code"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Milestones  []int  `yaml:"milestones" json:"milestones"`
}

func (t Type) IsMilestone(days int) bool {
	for _, m := range t.Milestones {
		if m == days {
			return true
		}
	}
	return false
}

// Multiplier applies once a streak reaches Days.
type Multiplier struct {
	Days  int     `yaml:"days" json:"days"`
	Value float64 `yaml:"value" json:"value"`
}

// Tables is the immutable configuration a Tracker runs with.
type Tables struct {
	Types       []Type       `yaml:"types"`
	Multipliers []Multiplier `yaml:"multipliers"` // ascending by Days
}

// TypeDailyTarget is the streak of days on which the KPI target was met.
const TypeDailyTarget = "daily_target"

func DefaultTables() Tables {
	return Tables{
		Types: []Type{
			{Code: TypeDailyTarget, Name: "Daily target", Description: "Reach the KPI target every day", Milestones: []int{7, 14, 30, 60, 100}},
			{Code: "calls", Name: "Call streak", Description: "At least one call every day", Milestones: []int{7, 14, 30}},
			{Code: "tasks", Name: "Task streak", Description: "Complete at least one task every day", Milestones: []int{7, 14, 30}},
			{Code: "leads", Name: "Lead streak", Description: "Work at least one lead every day", Milestones: []int{7, 14, 30, 60}},
			{Code: "login", Name: "Login streak", Description: "Sign in every day", Milestones: []int{7, 30, 100, 365}},
		},
		Multipliers: []Multiplier{
			{Days: 7, Value: 1.10},
			{Days: 14, Value: 1.15},
			{Days: 30, Value: 1.20},
			{Days: 60, Value: 1.25},
			{Days: 100, Value: 1.30},
		},
	}
}

// Validate checks that type codes are unique and both lists ascend.
func (t Tables) Validate() error {
	seen := make(map[string]bool, len(t.Types))
	for _, typ := range t.Types {
		if typ.Code == "" {
			return generic.Invalid("streak.types.code", "required")
		}
		if seen[typ.Code] {
			return generic.Invalid("streak.types.code", "duplicate "+typ.Code)
		}
		seen[typ.Code] = true
		for i := 1; i < len(typ.Milestones); i++ {
			if typ.Milestones[i] <= typ.Milestones[i-1] {
				return generic.Invalid("streak.types.milestones", typ.Code+" must ascend")
			}
		}
	}
	for i := 1; i < len(t.Multipliers); i++ {
		if t.Multipliers[i].Days <= t.Multipliers[i-1].Days || t.Multipliers[i].Value < t.Multipliers[i-1].Value {
			return generic.Invalid("streak.multipliers", "days and values must ascend")
		}
	}
	return nil
}

func (t Tables) Type(code string) (Type, bool) {
	for _, typ := range t.Types {
		if typ.Code == code {
			return typ, true
		}
	}
	return Type{}, false
}

// MultiplierFor returns the highest multiplier whose day threshold n has reached.
func (t Tables) MultiplierFor(n int) float64 {
	m := 1.0
	for _, row := range t.Multipliers {
		if n >= row.Days {
			m = row.Value
		}
	}
	return m
}

// =============================================================================
// STATE
// =============================================================================

// State is the singleton per (tenant, user, type).
type State struct {
	ID           string
	TenantID     generic.TenantID
	UserID       generic.UserID
	Type         string
	Current      int
	StartDate    generic.TimePoint // zero when inactive
	LastActivity generic.TimePoint // zero when never active
	Best         int
	BestStart    generic.TimePoint
	BestEnd      generic.TimePoint
	TotalStreaks int
	TotalDays    int
	Multiplier   float64
	Frozen       bool
	FrozenUntil  generic.TimePoint
	UpdatedAt    time.Time
}

func NewState(tenantID generic.TenantID, userID generic.UserID, streakType string) State {
	return State{
		ID:         generic.NewID(),
		TenantID:   tenantID,
		UserID:     userID,
		Type:       streakType,
		Multiplier: 1.0,
	}
}

// IsActive is true when frozen, or when the last activity was today or yesterday.
func (s State) IsActive(today generic.TimePoint) bool {
	if s.Frozen {
		return true
	}
	if s.LastActivity.IsZero() {
		return false
	}
	return s.LastActivity.SameDay(today) || s.LastActivity.SameDay(today.AddDays(-1))
}

// IsAtRisk is true when one more missed day would break the streak.
func (s State) IsAtRisk(today generic.TimePoint) bool {
	if s.Frozen || s.Current == 0 || s.LastActivity.IsZero() {
		return false
	}
	return s.LastActivity.SameDay(today.AddDays(-1))
}

// NextMilestone returns the first milestone above Current, or 0 when none is left.
func (s State) NextMilestone(typ Type) int {
	for _, m := range typ.Milestones {
		if s.Current < m {
			return m
		}
	}
	return 0
}

// DaysToMilestone returns days remaining to NextMilestone, or 0 when none is left.
func (s State) DaysToMilestone(typ Type) int {
	next := s.NextMilestone(typ)
	if next == 0 {
		return 0
	}
	return next - s.Current
}

// =============================================================================
// EVENTS - Streak history
// =============================================================================

type EventType string

const (
	EventIncrement EventType = "increment"
	EventBreak     EventType = "break"
	EventFreeze    EventType = "freeze"
	EventUnfreeze  EventType = "unfreeze"
)

// Event is one history row. Value is the streak length the event refers to;
// for a break it is the length before the reset.
type Event struct {
	ID        string
	StreakID  string
	TenantID  generic.TenantID
	UserID    generic.UserID
	Type      string
	Event     EventType
	Value     int
	Date      generic.TimePoint
	Data      map[string]any
	CreatedAt time.Time
}
