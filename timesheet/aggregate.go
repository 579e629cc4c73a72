/*
aggregate.go - Attendance to weekly hours

PURPOSE:
  Turns raw check-in/check-out records into the daily breakdown and weekly
  totals of a timesheet. Pure computation: no store, no clock.

RULES:
  - Only records dated inside [weekStart, weekStart+6] count
  - A record is payable when it has both times and checkOut >= checkIn
  - Missing checkOut = shift in progress, excluded
  - checkOut < checkIn = overnight or bad data, excluded (not wrapped)
  - Payable records on the same day merge into one entry: earliest check-in,
    latest check-out, worked minutes summed
  - Per day: hours = minutes - unpaid break, rounded to 2 places, then
    regular = min(hours, threshold), overtime = max(0, hours - threshold)
  - Weekly totals are sums of the per-day splits

EXAMPLE (threshold 8h, no break):
  Mon 08:00-19:00 -> 11h = 8 regular + 3 overtime

SEE ALSO:
  - generic/policy.go: SplitDay, PayableMinutes
  - lifecycle.go: Generate
*/
package timesheet

import (
	"sort"

	"github.com/warp/workforce-engine/generic"
)

// Aggregation is the computed part of a timesheet.
type Aggregation struct {
	Daily    []generic.DailyEntry
	Regular  generic.Amount
	Overtime generic.Amount
	Total    generic.Amount
}

// Aggregator applies the policy's overtime rules to attendance.
type Aggregator struct {
	policy generic.Policy
}

func NewAggregator(policy generic.Policy) *Aggregator {
	return &Aggregator{policy: policy}
}

type workedDay struct {
	date     generic.Date
	checkIn  generic.TimeOfDay
	checkOut generic.TimeOfDay
	minutes  int
}

// Aggregate builds the breakdown for the week starting at weekStart.
func (a *Aggregator) Aggregate(records []generic.AttendanceRecord, weekStart generic.Date) Aggregation {
	week := generic.WeekOf(weekStart)

	days := make(map[string]*workedDay)
	for _, r := range records {
		if !week.Contains(r.Date) || !payable(r) {
			continue
		}
		in, out := *r.CheckIn, *r.CheckOut
		d, ok := days[r.Date.String()]
		if !ok {
			days[r.Date.String()] = &workedDay{date: r.Date, checkIn: in, checkOut: out, minutes: out.Sub(in)}
			continue
		}
		if in.Before(d.checkIn) {
			d.checkIn = in
		}
		if d.checkOut.Before(out) {
			d.checkOut = out
		}
		d.minutes += out.Sub(in)
	}

	result := Aggregation{
		Regular:  generic.ZeroHours(),
		Overtime: generic.ZeroHours(),
		Total:    generic.ZeroHours(),
	}
	for _, d := range days {
		total := generic.HoursFromMinutes(a.policy.PayableMinutes(d.minutes))
		regular, overtime := a.policy.SplitDay(total)
		result.Daily = append(result.Daily, generic.DailyEntry{
			Date:          d.date,
			CheckIn:       d.checkIn,
			CheckOut:      d.checkOut,
			TotalHours:    total,
			RegularHours:  regular,
			OvertimeHours: overtime,
		})
		result.Regular = result.Regular.Add(regular)
		result.Overtime = result.Overtime.Add(overtime)
		result.Total = result.Total.Add(total)
	}
	sort.Slice(result.Daily, func(i, j int) bool {
		return result.Daily[i].Date.Before(result.Daily[j].Date)
	})
	return result
}

func payable(r generic.AttendanceRecord) bool {
	if r.CheckIn == nil || r.CheckOut == nil {
		return false
	}
	return !r.CheckOut.Before(*r.CheckIn)
}
