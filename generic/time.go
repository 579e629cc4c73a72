package generic

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// DATE - Calendar date without time-of-day (this IS a calendar system)
// =============================================================================

const dateLayout = "2006-01-02"

// Date is a calendar date normalized to midnight UTC.
// The zero value means "no date" and is what a nil end date decodes from.
type Date struct {
	Time time.Time
}

// Constructors
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf drops the time-of-day of t, keeping t's calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func Today() Date { return DateOf(time.Now()) }

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return DateOf(t), nil
}

// MustParseDate is for tests and fixtures.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Comparison
func (d Date) Before(other Date) bool        { return d.Time.Before(other.Time) }
func (d Date) Equal(other Date) bool         { return d.Time.Equal(other.Time) }
func (d Date) After(other Date) bool         { return d.Time.After(other.Time) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{Time: d.Time.AddDate(0, 0, n)} }

// Properties
func (d Date) Weekday() time.Weekday { return d.Time.Weekday() }
func (d Date) IsZero() bool          { return d.Time.IsZero() }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Time.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s *string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == nil || *s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(*s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MinDate and MaxDate return the earlier/later of two dates.
func MinDate(a, b Date) Date {
	if a.Before(b) {
		return a
	}
	return b
}

func MaxDate(a, b Date) Date {
	if a.After(b) {
		return a
	}
	return b
}

// =============================================================================
// TIME OF DAY - Check-in / check-out clock readings
// =============================================================================

// TimeOfDay is a wall-clock reading in whole minutes since midnight.
type TimeOfDay struct {
	Minutes int
}

func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay{Minutes: hour*60 + minute}
}

// ParseTimeOfDay accepts HH:MM and HH:MM:SS. Seconds are truncated.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return NewTimeOfDay(t.Hour(), t.Minute()), nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("invalid time of day %q (use HH:MM)", s)
}

func MustParseTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

// Sub returns the minutes from other to t. Negative when t is earlier.
func (t TimeOfDay) Sub(other TimeOfDay) int { return t.Minutes - other.Minutes }

func (t TimeOfDay) Before(other TimeOfDay) bool { return t.Minutes < other.Minutes }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Minutes/60, t.Minutes%60)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) { return json.Marshal(t.String()) }

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// =============================================================================
// TIME UTILITIES
// =============================================================================

// DaysBetween returns the number of calendar days from start to end.
// Same day is 0; end before start is negative. Dates are UTC midnights, so
// the Unix difference is a whole number of days at any distance.
func DaysBetween(start, end Date) int {
	return int((end.Time.Unix() - start.Time.Unix()) / secondsPerDay)
}

const secondsPerDay = 24 * 60 * 60

// SplitIntoDays lists every date in [start, end]. Empty when end < start.
func SplitIntoDays(start, end Date) []Date {
	return Period{Start: start, End: end}.Days()
}

// StartOfWeek returns the most recent date on or before d that falls on weekStart.
func StartOfWeek(d Date, weekStart time.Weekday) Date {
	offset := (int(d.Weekday()) - int(weekStart) + 7) % 7
	return d.AddDays(-offset)
}
