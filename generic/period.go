package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - The time boundary every target, summary and bonus belongs to
// =============================================================================

// Period is an inclusive calendar range [Start, End] of a given type.
//
// Examples:
//   - Monthly 2025-03: Mar 1 - Mar 31
//   - Weekly (ISO): Monday - Sunday
//   - Quarterly Q2 2025: Apr 1 - Jun 30
type Period struct {
	Type  PeriodType
	Start TimePoint
	End   TimePoint
}

// PeriodType defines how periods are calculated
type PeriodType string

const (
	PeriodDaily     PeriodType = "daily"
	PeriodWeekly    PeriodType = "weekly" // ISO week, Monday start
	PeriodMonthly   PeriodType = "monthly"
	PeriodQuarterly PeriodType = "quarterly"
	PeriodYearly    PeriodType = "yearly"
)

// ParsePeriodType validates a period type string.
func ParsePeriodType(s string) (PeriodType, error) {
	switch PeriodType(s) {
	case PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodQuarterly, PeriodYearly:
		return PeriodType(s), nil
	}
	return "", &ValidationError{Field: "period_type", Reason: fmt.Sprintf("unknown period type %q", s)}
}

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	d := t.Date()
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

// Days returns all days in the period as a slice of TimePoints.
func (p Period) Days() []TimePoint {
	var days []TimePoint
	current := p.Start
	for current.BeforeOrEqual(p.End) {
		days = append(days, current)
		current = current.AddDays(1)
	}
	return days
}

// WorkingDays counts weekdays in the period that are not holidays.
func (p Period) WorkingDays(calendar HolidayCalendar, tenantID TenantID) int {
	n := 0
	for _, d := range p.Days() {
		if d.IsWorkday(calendar, tenantID) {
			n++
		}
	}
	return n
}

// Validate rejects periods whose end precedes their start.
func (p Period) Validate() error {
	if p.End.Before(p.Start) {
		return ErrInvalidPeriod
	}
	return nil
}

// Key identifies the period within a tenant, e.g. "monthly:2025-03-01".
func (p Period) Key() string {
	return string(p.Type) + ":" + p.Start.String()
}

// String returns a string representation of the period.
func (p Period) String() string {
	return string(p.Type) + "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// =============================================================================
// PERIOD CALCULATOR - Determines which period a date falls into
// =============================================================================

// PeriodFor returns the period of the given type that contains date.
func PeriodFor(pt PeriodType, date TimePoint) Period {
	d := date.Date()
	switch pt {
	case PeriodDaily:
		return Period{Type: pt, Start: d, End: d}

	case PeriodWeekly:
		offset := (int(d.Weekday()) + 6) % 7 // Monday = 0
		start := d.AddDays(-offset)
		return Period{Type: pt, Start: start, End: start.AddDays(6)}

	case PeriodQuarterly:
		firstMonth := time.Month((int(d.Month())-1)/3*3 + 1)
		start := StartOfMonth(d.Year(), firstMonth)
		return Period{Type: pt, Start: start, End: start.AddMonths(3).AddDays(-1)}

	case PeriodYearly:
		return Period{Type: pt, Start: StartOfYear(d.Year()), End: EndOfYear(d.Year())}

	default:
		return Period{Type: PeriodMonthly, Start: StartOfMonth(d.Year(), d.Month()), End: EndOfMonth(d.Year(), d.Month())}
	}
}

// PeriodStarting returns the period of type pt that starts exactly on start.
// Any other start date is rejected so callers cannot address half periods.
func PeriodStarting(pt PeriodType, start TimePoint) (Period, error) {
	p := PeriodFor(pt, start)
	if !p.Start.Equal(start.Date()) {
		return Period{}, fmt.Errorf("%w: %s does not start a %s period (expected %s)",
			ErrInvalidPeriod, start.Date(), pt, p.Start)
	}
	return p, nil
}

// Next returns the period following this one
func (p Period) Next() Period {
	return PeriodFor(p.Type, p.End.AddDays(1))
}

// Previous returns the period before this one
func (p Period) Previous() Period {
	return PeriodFor(p.Type, p.Start.AddDays(-1))
}
