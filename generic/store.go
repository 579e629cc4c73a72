/*
store.go - Persistence interfaces for assignments, history and timesheets

PURPOSE:
  Defines the interface between the lifecycle services and the database.
  Different implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  Store:            Assignments, history and timesheets
  TxStore:          Transactional operations (atomic multi-record writes)
  WorkerDirectory:  Hourly rate lookup (external collaborator)
  AttendanceSource: Attendance reads (external collaborator)
  RosterSource:     Workers currently booked on a site
  Notifier:         Fire-and-forget events

APPEND-ONLY HISTORY:
  AppendHistory is the ONLY write for history entries. No update or delete
  method exists for them. Assignments are never deleted either; a superseded
  booking keeps its row with status "reassigned".

UNIQUE TIMESHEETS:
  SaveTimesheet enforces one row per (worker, site, week start). Saving a
  timesheet whose key already exists updates that row in place and returns
  the stored id, so a lost insert race degrades into an update.

ATOMIC WRITES:
  WithTx ensures all-or-nothing semantics. Reassigning writes three records
  (old assignment update, new assignment insert, history entry); either all
  land or none do.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - generic/store/memory.go: In-memory for testing

SEE ALSO:
  - scheduling/lifecycle.go, timesheet/lifecycle.go: Callers
*/
package generic

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE
// =============================================================================

// AssignmentStore persists assignments.
type AssignmentStore interface {
	// InsertAssignment writes a new assignment. Fails with ErrDuplicateKey
	// if the id exists.
	InsertAssignment(ctx context.Context, a Assignment) error

	// UpdateAssignment overwrites the mutable fields (status, notes,
	// updated_at) of an existing assignment.
	UpdateAssignment(ctx context.Context, a Assignment) error

	// GetAssignment returns nil, nil when the id is unknown.
	GetAssignment(ctx context.Context, id string) (*Assignment, error)

	// ListAssignmentsByAssignee returns all assignments, any status,
	// ordered by start date.
	ListAssignmentsByAssignee(ctx context.Context, assignee Assignee) ([]Assignment, error)

	// ListActiveAssignmentsByAssignee returns only status=active rows.
	ListActiveAssignmentsByAssignee(ctx context.Context, assignee Assignee) ([]Assignment, error)

	// ListActiveAssignmentsByEntity returns active rows booked on an entity.
	ListActiveAssignmentsByEntity(ctx context.Context, entity Entity) ([]Assignment, error)
}

// HistoryLog is the append-only assignment trail.
type HistoryLog interface {
	AppendHistory(ctx context.Context, entry HistoryEntry) error

	// History returns entries for an assignment, oldest first.
	History(ctx context.Context, assignmentID string) ([]HistoryEntry, error)
}

// TimesheetStore persists timesheets.
type TimesheetStore interface {
	// SaveTimesheet inserts or updates by id; when the (worker, site, week)
	// key already belongs to another id, the existing row is updated and
	// its id is returned.
	SaveTimesheet(ctx context.Context, t Timesheet) (string, error)

	// GetTimesheet returns nil, nil when the id is unknown.
	GetTimesheet(ctx context.Context, id string) (*Timesheet, error)

	// GetTimesheetByKey returns nil, nil when no timesheet has the key.
	GetTimesheetByKey(ctx context.Context, key TimesheetKey) (*Timesheet, error)

	ListTimesheetsByWorker(ctx context.Context, workerID string) ([]Timesheet, error)
}

// Store is everything the lifecycle services persist.
type Store interface {
	AssignmentStore
	HistoryLog
	TimesheetStore
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// COLLABORATORS - Owned by other parts of the application
// =============================================================================

// WorkerDirectory resolves a worker's hourly rate.
type WorkerDirectory interface {
	// HourlyRate returns a *NotFoundError for unknown workers.
	HourlyRate(ctx context.Context, workerID string) (decimal.Decimal, error)
}

// AttendanceSource reads recorded attendance.
type AttendanceSource interface {
	AttendanceInRange(ctx context.Context, workerID, siteID string, from, to Date) ([]AttendanceRecord, error)
}

// RosterSource lists the workers booked on a site during a window.
type RosterSource interface {
	ActiveWorkers(ctx context.Context, siteID string, window Period) ([]string, error)
}
