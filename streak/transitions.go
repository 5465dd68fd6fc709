package streak

import (
	"fmt"

	"github.com/warp/performance-engine/generic"
)

// Transition is the result of applying one operation to a State.
type Transition struct {
	State     State
	Events    []Event
	Changed   bool
	Milestone int // milestone day reached by this transition, 0 if none
	BrokeFrom int // streak length before a break, 0 if no break
}

func (tr *Transition) emit(ev EventType, value int, day generic.TimePoint, data map[string]any) {
	tr.Events = append(tr.Events, Event{
		ID:       generic.NewID(),
		StreakID: tr.State.ID,
		TenantID: tr.State.TenantID,
		UserID:   tr.State.UserID,
		Type:     tr.State.Type,
		Event:    ev,
		Value:    value,
		Date:     day,
		Data:     data,
	})
}

// RecordActivity applies one day of activity.
//
//   - same day as last activity: no-op
//   - frozen: no-op (neither advances nor breaks)
//   - activity on or before last activity: no-op
//   - last activity yesterday, or streak inactive: increment
//   - older gap: break (logged with the old length), then a fresh streak of 1
func RecordActivity(s State, day generic.TimePoint, tables Tables) Transition {
	day = day.Date()
	tr := Transition{State: s}

	if s.Frozen {
		return tr
	}
	if !s.LastActivity.IsZero() && !day.After(s.LastActivity) {
		return tr
	}

	if !s.LastActivity.IsZero() && !s.LastActivity.SameDay(day.AddDays(-1)) && s.Current > 0 {
		tr.BrokeFrom = s.Current
		tr.emit(EventBreak, s.Current, day, map[string]any{"last_activity": s.LastActivity.String()})
		tr.State.Current = 0
		tr.State.StartDate = generic.TimePoint{}
		tr.State.Multiplier = 1.0
	}

	st := &tr.State
	if st.Current == 0 {
		st.StartDate = day
		st.TotalStreaks++
	}
	st.Current++
	st.TotalDays++
	st.LastActivity = day
	st.Multiplier = tables.MultiplierFor(st.Current)

	if st.Current > st.Best {
		st.Best = st.Current
		st.BestStart = st.StartDate
		st.BestEnd = day
	}

	tr.emit(EventIncrement, st.Current, day, nil)
	tr.Changed = true

	if typ, ok := tables.Type(st.Type); ok && typ.IsMilestone(st.Current) {
		tr.Milestone = st.Current
	}
	return tr
}

// Freeze pauses the streak for days days starting today.
func Freeze(s State, today generic.TimePoint, days int) (Transition, error) {
	if days <= 0 {
		return Transition{}, generic.Invalid("days", "must be greater than zero")
	}
	tr := Transition{State: s}
	tr.State.Frozen = true
	tr.State.FrozenUntil = today.Date().AddDays(days)
	tr.Changed = true
	tr.emit(EventFreeze, s.Current, today.Date(), map[string]any{"days": days})
	return tr, nil
}

// Unfreeze resumes a frozen streak. Last activity becomes yesterday so that
// activity today continues the streak instead of restarting it.
func Unfreeze(s State, today generic.TimePoint) (Transition, error) {
	if !s.Frozen {
		return Transition{}, &generic.PreconditionError{
			Entity: "streak", ID: s.ID, State: "active", Action: "unfreeze",
			Reason: fmt.Sprintf("%s streak is not frozen", s.Type),
		}
	}
	tr := Transition{State: s}
	tr.State.Frozen = false
	tr.State.FrozenUntil = generic.TimePoint{}
	tr.State.LastActivity = today.Date().AddDays(-1)
	tr.Changed = true
	tr.emit(EventUnfreeze, s.Current, today.Date(), nil)
	return tr, nil
}

// FreezeExpired reports whether the freeze window has passed.
func (s State) FreezeExpired(today generic.TimePoint) bool {
	return s.Frozen && !s.FrozenUntil.IsZero() && today.Date().After(s.FrozenUntil)
}
