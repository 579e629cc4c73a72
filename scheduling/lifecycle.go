/*
lifecycle.go - Assignment lifecycle service

PURPOSE:
  Owns every write to assignments and their history. Each transition
  updates the assignment and appends exactly one history entry inside a
  single store transaction, under the per-assignee lock.

STATE MACHINE:
  active --complete--> completed
  active --cancel----> cancelled   (reason required)
  active --reassign--> reassigned  (+ new active assignment for the new assignee)

  completed, cancelled and reassigned are terminal. Assignments are never
  deleted.

CONFLICTS:
  Advisory by default: callers preview with Detector.FindConflicts and decide.
  In strict mode (policy StrictConflicts, CreateInput.Strict, or the strict
  argument of Reassign) the detector runs inside the lock and the
  transaction, and overlaps fail the write with *generic.ConflictError. Holding the per-assignee lock across check and
  commit is what stops two concurrent creates from both passing the check.

SEE ALSO:
  - conflicts.go: Detector
  - generic/lock.go: KeyedMutex
*/
package scheduling

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/workforce-engine/generic"
)

var (
	minHoursPerDay = decimal.NewFromInt(1)
	maxHoursPerDay = decimal.NewFromInt(24)
)

// CreateInput describes a new booking.
type CreateInput struct {
	Assignee    generic.Assignee
	Entity      generic.Entity
	StartDate   generic.Date
	EndDate     *generic.Date
	HoursPerDay decimal.Decimal
	Notes       string

	// Strict rejects the create when it overlaps an active assignment,
	// regardless of the policy default.
	Strict bool
}

// Service manages assignment state transitions.
type Service struct {
	store    generic.TxStore
	detector *Detector
	policy   generic.Policy
	locks    *generic.KeyedMutex
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock replaces time.Now, for the lock horizon and timestamps.
// Readings are converted to UTC, the zone the stores persist.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = func() time.Time { return now().UTC() }
		s.detector.now = s.now
	}
}

// WithIDGenerator replaces the UUID generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

func NewService(store generic.TxStore, policy generic.Policy, notifier generic.Notifier, opts ...Option) *Service {
	s := &Service{
		store:    store,
		detector: NewDetector(store, notifier),
		policy:   policy,
		locks:    generic.NewKeyedMutex(),
		logger:   zap.NewNop(),
		now:      utcNow,
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Detector exposes the conflict preview used by the check endpoint.
func (s *Service) Detector() *Detector { return s.detector }

// =============================================================================
// CREATE
// =============================================================================

func (s *Service) Create(ctx context.Context, in CreateInput) (*generic.Assignment, error) {
	if err := s.validateCreate(in); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(in.Assignee.Key())
	defer unlock()

	now := s.now()
	a := generic.Assignment{
		ID:          s.newID(),
		Assignee:    in.Assignee,
		Entity:      in.Entity,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		HoursPerDay: in.HoursPerDay,
		Status:      generic.AssignmentActive,
		Notes:       in.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.store.WithTx(ctx, func(tx generic.Store) error {
		if s.policy.StrictConflicts || in.Strict {
			if err := s.requireNoConflicts(ctx, tx, a.Assignee, a.StartDate, a.EndDate); err != nil {
				return err
			}
		}
		if err := tx.InsertAssignment(ctx, a); err != nil {
			return fmt.Errorf("insert assignment: %w", err)
		}
		return tx.AppendHistory(ctx, s.historyEntry(a.ID, generic.HistoryCreated, nil, nil, nil))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("assignment created",
		zap.String("assignment_id", a.ID),
		zap.String("assignee", a.Assignee.Key()),
		zap.String("entity", a.Entity.String()),
		zap.String("start", a.StartDate.String()),
	)
	return &a, nil
}

func (s *Service) validateCreate(in CreateInput) error {
	if !in.Entity.Type.Valid() {
		return generic.Invalid("entity.type", "must be site or task, got %q", in.Entity.Type)
	}
	if in.Entity.ID == "" {
		return generic.Invalid("entity.id", "is required")
	}
	if err := validateCandidate(generic.ConflictCandidate{
		Assignee:  in.Assignee,
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
	}); err != nil {
		return err
	}
	if in.HoursPerDay.LessThan(minHoursPerDay) || in.HoursPerDay.GreaterThan(maxHoursPerDay) {
		return generic.Invalid("hoursPerDay", "must be between 1 and 24, got %s", in.HoursPerDay)
	}
	if earliest, ok := s.policy.EarliestStart(generic.DateOf(s.now())); ok && in.StartDate.Before(earliest) {
		return generic.Invalid("startDate", "%s is before the lock horizon %s", in.StartDate, earliest)
	}
	return nil
}

// =============================================================================
// COMPLETE / CANCEL
// =============================================================================

func (s *Service) Complete(ctx context.Context, id string) (*generic.Assignment, error) {
	return s.finish(ctx, id, "complete", generic.AssignmentCompleted, generic.HistoryCompleted, nil)
}

func (s *Service) Cancel(ctx context.Context, id, reason string) (*generic.Assignment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, generic.Invalid("reason", "is required to cancel an assignment")
	}
	return s.finish(ctx, id, "cancel", generic.AssignmentCancelled, generic.HistoryCancelled, &reason)
}

// finish moves an active assignment to a terminal status.
func (s *Service) finish(ctx context.Context, id, op string, to generic.AssignmentStatus, action generic.HistoryAction, reason *string) (*generic.Assignment, error) {
	current, err := s.mustGet(ctx, s.store, id)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(current.Assignee.Key())
	defer unlock()

	var updated generic.Assignment
	err = s.store.WithTx(ctx, func(tx generic.Store) error {
		a, err := s.mustGet(ctx, tx, id)
		if err != nil {
			return err
		}
		if !a.IsActive() {
			return &generic.InvalidStateError{Record: "assignment", ID: id, Current: string(a.Status), Operation: op}
		}

		a.Status = to
		a.UpdatedAt = s.now()
		if err := tx.UpdateAssignment(ctx, *a); err != nil {
			return fmt.Errorf("update assignment: %w", err)
		}
		updated = *a
		return tx.AppendHistory(ctx, s.historyEntry(id, action, nil, nil, reason))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("assignment "+string(to), zap.String("assignment_id", id))
	return &updated, nil
}

// =============================================================================
// REASSIGN
// =============================================================================

// Reassign hands an active booking to another assignee of the same type.
// The old assignment becomes reassigned, a clone is created for the new
// assignee, and one history entry on the old id links them. Returns the
// new assignment. strict applies the conflict gate for the new assignee even
// when the policy leaves conflicts advisory, as CreateInput.Strict does.
func (s *Service) Reassign(ctx context.Context, id, newAssigneeID, reason string, strict bool) (*generic.Assignment, error) {
	newAssigneeID = strings.TrimSpace(newAssigneeID)
	if newAssigneeID == "" {
		return nil, generic.Invalid("newAssigneeId", "is required")
	}

	current, err := s.mustGet(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	if current.Assignee.ID == newAssigneeID {
		return nil, generic.Invalid("newAssigneeId", "assignment %s already belongs to %s", id, newAssigneeID)
	}

	next := generic.Assignee{Type: current.Assignee.Type, ID: newAssigneeID}
	unlock := s.locks.Lock(current.Assignee.Key(), next.Key())
	defer unlock()

	var reasonPtr *string
	if r := strings.TrimSpace(reason); r != "" {
		reasonPtr = &r
	}

	var created generic.Assignment
	err = s.store.WithTx(ctx, func(tx generic.Store) error {
		old, err := s.mustGet(ctx, tx, id)
		if err != nil {
			return err
		}
		if !old.IsActive() {
			return &generic.InvalidStateError{Record: "assignment", ID: id, Current: string(old.Status), Operation: "reassign"}
		}
		if s.policy.StrictConflicts || strict {
			if err := s.requireNoConflicts(ctx, tx, next, old.StartDate, old.EndDate); err != nil {
				return err
			}
		}

		now := s.now()
		old.Status = generic.AssignmentReassigned
		old.UpdatedAt = now
		if err := tx.UpdateAssignment(ctx, *old); err != nil {
			return fmt.Errorf("update assignment: %w", err)
		}

		created = generic.Assignment{
			ID:          s.newID(),
			Assignee:    next,
			Entity:      old.Entity,
			StartDate:   old.StartDate,
			EndDate:     old.EndDate,
			HoursPerDay: old.HoursPerDay,
			Status:      generic.AssignmentActive,
			Notes:       old.Notes,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.InsertAssignment(ctx, created); err != nil {
			return fmt.Errorf("insert assignment: %w", err)
		}

		prev := old.Assignee.ID
		return tx.AppendHistory(ctx, s.historyEntry(id, generic.HistoryReassigned, &prev, &newAssigneeID, reasonPtr))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("assignment reassigned",
		zap.String("assignment_id", id),
		zap.String("new_assignment_id", created.ID),
		zap.String("from", current.Assignee.ID),
		zap.String("to", newAssigneeID),
	)
	return &created, nil
}

// =============================================================================
// READS
// =============================================================================

// History returns the assignment's trail, oldest first.
func (s *Service) History(ctx context.Context, id string) ([]generic.HistoryEntry, error) {
	if _, err := s.mustGet(ctx, s.store, id); err != nil {
		return nil, err
	}
	entries, err := s.store.History(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return entries, nil
}

func (s *Service) Get(ctx context.Context, id string) (*generic.Assignment, error) {
	return s.mustGet(ctx, s.store, id)
}

func (s *Service) ListByAssignee(ctx context.Context, assignee generic.Assignee) ([]generic.Assignment, error) {
	if !assignee.Type.Valid() {
		return nil, generic.Invalid("assignee.type", "must be worker or material, got %q", assignee.Type)
	}
	if assignee.ID == "" {
		return nil, generic.Invalid("assignee.id", "is required")
	}
	list, err := s.store.ListAssignmentsByAssignee(ctx, assignee)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return list, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Service) mustGet(ctx context.Context, store generic.AssignmentStore, id string) (*generic.Assignment, error) {
	a, err := store.GetAssignment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load assignment %s: %w", id, err)
	}
	if a == nil {
		return nil, &generic.NotFoundError{Record: "assignment", ID: id}
	}
	return a, nil
}

func (s *Service) requireNoConflicts(ctx context.Context, tx generic.Store, assignee generic.Assignee, start generic.Date, end *generic.Date) error {
	conflicts, err := s.detector.findConflicts(ctx, tx, generic.ConflictCandidate{
		Assignee:  assignee,
		StartDate: start,
		EndDate:   end,
	})
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		return &generic.ConflictError{Assignee: assignee, Conflicts: conflicts}
	}
	return nil
}

func (s *Service) historyEntry(assignmentID string, action generic.HistoryAction, prev, next, reason *string) generic.HistoryEntry {
	return generic.HistoryEntry{
		ID:                 s.newID(),
		AssignmentID:       assignmentID,
		Action:             action,
		PreviousAssigneeID: prev,
		NewAssigneeID:      next,
		Reason:             reason,
		CreatedAt:          s.now(),
	}
}
