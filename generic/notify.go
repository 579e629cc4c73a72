package generic

import (
	"context"
	"time"
)

// =============================================================================
// NOTIFICATIONS - Fire-and-forget hook
// =============================================================================

type EventType string

const (
	EventConflictDetected  EventType = "conflict_detected"
	EventTimesheetApproved EventType = "timesheet_approved"
	EventTimesheetRejected EventType = "timesheet_rejected"
)

// Event is what the engine tells the outside world. Payload values are
// plain strings so sinks can forward them without knowing engine types.
type Event struct {
	Type       EventType
	OccurredAt time.Time
	SubjectID  string // assignee key or timesheet id
	Payload    map[string]string
}

// Notifier receives events. Implementations must not block the caller;
// the engine never waits for delivery and ignores delivery failures.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// NopNotifier discards every event.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) {}
