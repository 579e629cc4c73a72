/*
policy.go - Tunable business rules

PURPOSE:
  Collects every tunable rule into one Policy value: overtime threshold and
  multiplier, week-start weekday, assignment lock horizon, and the
  strictness switches. Services
  receive a Policy at construction; nothing reads global state.

DEFAULTS:
  OvertimeThreshold:   8 hours per day
  OvertimeMultiplier:  1.5
  WeekStart:           Monday
  UnpaidBreakMinutes:  0
  LockHorizonDays:     nil (no lock)
  StrictConflicts:     false (conflicts are advisory data)
  RejectEmptySubmit:   true
  RegenerateRejected:  true

SEE ALSO:
  - factory/policy.go: JSON/YAML representation
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

type PolicyID string

// Policy defines the rules the scheduling and timesheet services apply.
type Policy struct {
	ID   PolicyID
	Name string

	// Hours per day paid at the regular rate; the rest is overtime.
	OvertimeThreshold Amount

	// Overtime rate = hourly rate * OvertimeMultiplier.
	OvertimeMultiplier decimal.Decimal

	// Timesheets must start on this weekday.
	WeekStart time.Weekday

	// UnpaidBreakMinutes is deducted once from each worked day, floored at 0.
	UnpaidBreakMinutes int

	// LockHorizonDays rejects assignments starting more than N days before
	// today. nil disables the lock; 0 forbids any past start date.
	LockHorizonDays *int

	// StrictConflicts turns conflict detection into a hard gate on create
	// and reassign.
	StrictConflicts bool

	// RejectEmptySubmit refuses to submit a timesheet with zero hours.
	RejectEmptySubmit bool

	// RegenerateRejected lets Generate overwrite a rejected timesheet,
	// returning it to draft.
	RegenerateRejected bool
}

// DefaultPolicy returns the stock rules.
func DefaultPolicy() Policy {
	return Policy{
		ID:                 "default",
		Name:               "Default site policy",
		OvertimeThreshold:  Hours(8),
		OvertimeMultiplier: decimal.NewFromFloat(1.5),
		WeekStart:          time.Monday,
		RejectEmptySubmit:  true,
		RegenerateRejected: true,
	}
}

// EarliestStart returns the first start date the lock horizon allows.
// ok is false when no lock is configured.
func (p Policy) EarliestStart(today Date) (Date, bool) {
	if p.LockHorizonDays == nil {
		return Date{}, false
	}
	return today.AddDays(-*p.LockHorizonDays), true
}

// PayableMinutes applies the unpaid break to a day's worked minutes.
func (p Policy) PayableMinutes(worked int) int {
	if worked <= p.UnpaidBreakMinutes {
		return 0
	}
	return worked - p.UnpaidBreakMinutes
}

// SplitDay divides a day's hours into regular and overtime.
func (p Policy) SplitDay(total Amount) (regular, overtime Amount) {
	regular = total.Min(p.OvertimeThreshold)
	overtime = total.Sub(p.OvertimeThreshold).Max(ZeroHours())
	return regular, overtime
}

// Pay computes regular*rate + overtime*rate*multiplier, rounded to cents.
func (p Policy) Pay(regular, overtime Amount, rate decimal.Decimal) decimal.Decimal {
	regularPay := regular.Value.Mul(rate)
	overtimePay := overtime.Value.Mul(rate).Mul(p.OvertimeMultiplier)
	return regularPay.Add(overtimePay).Round(2)
}
