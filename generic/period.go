package generic

// =============================================================================
// PERIOD - A closed, finite range of calendar days
// =============================================================================

// Period is a closed date range [Start, End].
//
// Examples:
//   - A timesheet week: Mon 2025-01-06 .. Sun 2025-01-12
//   - The finite part of an assignment for roster lookups
type Period struct {
	Start Date
	End   Date
}

// WeekOf returns the 7-day period starting at start.
func WeekOf(start Date) Period {
	return Period{Start: start, End: start.AddDays(6)}
}

// Contains returns true if the date is within the period [Start, End]
func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

// Days returns all days in the period.
func (p Period) Days() []Date {
	var days []Date
	for current := p.Start; current.BeforeOrEqual(p.End); current = current.AddDays(1) {
		days = append(days, current)
	}
	return days
}

// Len is the inclusive day count; 0 for an inverted period.
func (p Period) Len() int {
	if p.End.Before(p.Start) {
		return 0
	}
	return DaysBetween(p.Start, p.End) + 1
}

// Interval converts to an open-capable interval.
func (p Period) Interval() Interval {
	end := p.End
	return Interval{Start: p.Start, End: &end}
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// =============================================================================
// INTERVAL - Closed date range whose end may be unbounded
// =============================================================================

// Interval is [Start, End] with End == nil meaning open-ended (+inf).
// Assignments use this shape: an ongoing assignment has no end date.
type Interval struct {
	Start Date
	End   *Date
}

// IsOpen reports whether the interval extends indefinitely.
func (iv Interval) IsOpen() bool { return iv.End == nil }

// Valid reports whether Start <= End (always true when open).
func (iv Interval) Valid() bool {
	return iv.End == nil || !iv.End.Before(iv.Start)
}

// Contains reports whether d falls inside the interval.
func (iv Interval) Contains(d Date) bool {
	if d.Before(iv.Start) {
		return false
	}
	return iv.End == nil || d.BeforeOrEqual(*iv.End)
}

// Overlaps reports whether the two intervals share at least one day.
func (iv Interval) Overlaps(other Interval) bool {
	return Overlaps(iv.Start, iv.End, other.Start, other.End)
}

// Intersect returns the shared window. The result is open only when both
// inputs are open.
func (iv Interval) Intersect(other Interval) (Interval, bool) {
	if !iv.Overlaps(other) {
		return Interval{}, false
	}
	out := Interval{Start: MaxDate(iv.Start, other.Start)}
	switch {
	case iv.End == nil && other.End == nil:
	case iv.End == nil:
		end := *other.End
		out.End = &end
	case other.End == nil:
		end := *iv.End
		out.End = &end
	default:
		end := MinDate(*iv.End, *other.End)
		out.End = &end
	}
	return out, true
}

func (iv Interval) String() string {
	if iv.End == nil {
		return "[" + iv.Start.String() + ", ...)"
	}
	return "[" + iv.Start.String() + ", " + iv.End.String() + "]"
}

// Overlaps tests two closed intervals for a shared day. A nil end is treated
// as unbounded. The test is symmetric in its two arguments.
func Overlaps(aStart Date, aEnd *Date, bStart Date, bEnd *Date) bool {
	if aEnd != nil && aEnd.Before(bStart) {
		return false
	}
	if bEnd != nil && bEnd.Before(aStart) {
		return false
	}
	return true
}
