/*
Package generic provides the core types of the workforce scheduling engine.

PURPOSE:
  This package contains the records and algorithms shared by the scheduling
  and timesheet domains: calendar math, assignments and their history,
  attendance input, timesheets, error kinds, policy constants and the
  persistence interfaces. Domain packages (scheduling, timesheet) build the
  lifecycle services on top of it.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A quantity of hours (decimal, never float)
  - Assignee / Entity: Tagged unions {type, id}, never per-type structs
  - Assignment: Who is booked where, for which dates
  - HistoryEntry: Append-only trail of assignment transitions
  - AttendanceRecord: Raw check-in/check-out input (read-only)
  - Timesheet: Weekly payroll record with its approval status

DESIGN PRINCIPLES:
  1. Immutability: History entries are never modified, only appended
  2. Precision: Uses decimal.Decimal for hours, rates and pay
  3. Type Safety: Tagged unions keep assignee and entity kinds explicit
  4. Auditability: Every assignment transition leaves one history entry

SEE ALSO:
  - period.go: Interval overlap math
  - store.go: Persistence interfaces
  - errors.go: Error kinds
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit (hours in this system)
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const (
	UnitHours   Unit = "hours"
	UnitMinutes Unit = "minutes"
)

func NewAmount(value float64, unit Unit) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Unit: unit}
}

func Hours(value float64) Amount { return NewAmount(value, UnitHours) }

// HoursFromMinutes converts a minute count to hours rounded to 2 places.
func HoursFromMinutes(minutes int) Amount {
	v := decimal.NewFromInt(int64(minutes)).Div(decimal.NewFromInt(60)).Round(2)
	return Amount{Value: v, Unit: UnitHours}
}

func ZeroHours() Amount { return Amount{Value: decimal.Zero, Unit: UnitHours} }

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value), Unit: a.Unit} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value), Unit: a.Unit} }
func (a Amount) Mul(s decimal.Decimal) Amount { return Amount{Value: a.Value.Mul(s), Unit: a.Unit} }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }
func (a Amount) GreaterThan(b Amount) bool    { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool       { return a.Value.LessThan(b.Value) }
func (a Amount) Equal(b Amount) bool          { return a.Value.Equal(b.Value) }

func (a Amount) Min(b Amount) Amount {
	if a.LessThan(b) {
		return a
	}
	return b
}

func (a Amount) Max(b Amount) Amount {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// =============================================================================
// TAGGED UNIONS - Assignee and Entity
// =============================================================================

type AssigneeType string

const (
	AssigneeWorker   AssigneeType = "worker"
	AssigneeMaterial AssigneeType = "material"
)

func (t AssigneeType) Valid() bool { return t == AssigneeWorker || t == AssigneeMaterial }

type EntityType string

const (
	EntitySite EntityType = "site"
	EntityTask EntityType = "task"
)

func (t EntityType) Valid() bool { return t == EntitySite || t == EntityTask }

// Assignee is the worker or material being scheduled.
// The engine only ever looks at the tag and the opaque id.
type Assignee struct {
	Type AssigneeType `json:"type"`
	ID   string       `json:"id"`
}

// Key identifies the assignee for locking and indexing.
func (a Assignee) Key() string { return string(a.Type) + ":" + a.ID }

func (a Assignee) String() string { return a.Key() }

// Entity is the site or task an assignee is scheduled against.
type Entity struct {
	Type EntityType `json:"type"`
	ID   string     `json:"id"`
}

func (e Entity) String() string { return string(e.Type) + ":" + e.ID }

// =============================================================================
// ASSIGNMENT
// =============================================================================

type AssignmentStatus string

const (
	AssignmentActive     AssignmentStatus = "active"
	AssignmentCompleted  AssignmentStatus = "completed"
	AssignmentCancelled  AssignmentStatus = "cancelled"
	AssignmentReassigned AssignmentStatus = "reassigned"
)

// Assignment holds the current state of a booking. How it got there lives
// in its history entries.
type Assignment struct {
	ID          string
	Assignee    Assignee
	Entity      Entity
	StartDate   Date
	EndDate     *Date // nil = ongoing
	HoursPerDay decimal.Decimal
	Status      AssignmentStatus
	Notes       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Interval returns the booked date range.
func (a Assignment) Interval() Interval {
	return Interval{Start: a.StartDate, End: a.EndDate}
}

func (a Assignment) IsActive() bool { return a.Status == AssignmentActive }

// =============================================================================
// ASSIGNMENT HISTORY - Append-only
// =============================================================================

type HistoryAction string

const (
	HistoryCreated    HistoryAction = "created"
	HistoryReassigned HistoryAction = "reassigned"
	HistoryCompleted  HistoryAction = "completed"
	HistoryCancelled  HistoryAction = "cancelled"
)

// HistoryEntry records one lifecycle transition of an assignment.
type HistoryEntry struct {
	ID                 string
	AssignmentID       string
	Action             HistoryAction
	PreviousAssigneeID *string
	NewAssigneeID      *string
	Reason             *string
	CreatedAt          time.Time
}

// =============================================================================
// CONFLICTS
// =============================================================================

// ConflictCandidate is a proposed booking to test against existing ones.
// ExcludeID skips the candidate's own record for edit-in-place checks.
type ConflictCandidate struct {
	Assignee  Assignee
	StartDate Date
	EndDate   *Date
	ExcludeID string
}

// ConflictDescriptor describes one overlap with an existing active assignment.
// OverlapEnd is nil when both intervals are open-ended.
type ConflictDescriptor struct {
	ConflictingAssignmentID string
	Entity                  Entity
	OverlapStart            Date
	OverlapEnd              *Date
	Message                 string
}

// =============================================================================
// ATTENDANCE - External input
// =============================================================================

// AttendanceRecord is one day of check-in/check-out for a worker at a site.
// CheckIn and CheckOut stay nil until the worker clocks in/out.
type AttendanceRecord struct {
	WorkerID string
	SiteID   string
	Date     Date
	CheckIn  *TimeOfDay
	CheckOut *TimeOfDay
}

// =============================================================================
// TIMESHEET
// =============================================================================

type TimesheetStatus string

const (
	TimesheetDraft     TimesheetStatus = "draft"
	TimesheetSubmitted TimesheetStatus = "submitted"
	TimesheetApproved  TimesheetStatus = "approved"
	TimesheetRejected  TimesheetStatus = "rejected"
)

// DailyEntry is one worked day of a timesheet.
type DailyEntry struct {
	Date          Date
	CheckIn       TimeOfDay
	CheckOut      TimeOfDay
	TotalHours    Amount
	RegularHours  Amount
	OvertimeHours Amount
}

// TimesheetKey is the uniqueness key: one timesheet per worker, site and week.
type TimesheetKey struct {
	WorkerID  string
	SiteID    string
	WeekStart Date
}

func (k TimesheetKey) String() string {
	return k.WorkerID + "/" + k.SiteID + "/" + k.WeekStart.String()
}

// Timesheet is the weekly payroll record. Hour and pay fields are derived
// from attendance and are never edited by hand.
type Timesheet struct {
	ID              string
	WorkerID        string
	SiteID          string
	WeekStartDate   Date
	WeekEndDate     Date
	DailyBreakdown  []DailyEntry
	RegularHours    Amount
	OvertimeHours   Amount
	TotalHours      Amount
	HourlyRate      decimal.Decimal
	TotalPay        decimal.Decimal
	Status          TimesheetStatus
	RejectionReason *string

	// Approval tracking
	SubmittedAt *time.Time
	ApprovedBy  *string
	ApprovedAt  *time.Time
	RejectedBy  *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (t Timesheet) Key() TimesheetKey {
	return TimesheetKey{WorkerID: t.WorkerID, SiteID: t.SiteID, WeekStart: t.WeekStartDate}
}

// Week returns [WeekStartDate, WeekEndDate].
func (t Timesheet) Week() Period {
	return Period{Start: t.WeekStartDate, End: t.WeekEndDate}
}
