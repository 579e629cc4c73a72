/*
lifecycle.go - Timesheet generation and approval workflow

PURPOSE:
  Builds weekly timesheets from attendance and moves them through review.

STATE MACHINE:
  draft --submit--> submitted --approve--> approved (terminal)
                    submitted --reject---> rejected --(generate|reopen)--> draft

GENERATION:
  Generate is idempotent per (worker, site, week). A draft is recomputed in
  place under the same id; regenerating from unchanged attendance leaves the
  row untouched. A rejected timesheet is recomputed back to draft when the
  policy allows it. Submitted and approved timesheets are never touched.

  Concurrent Generate calls for one key are serialized by a keyed lock; the
  store's unique key turns any insert race that slips past it (another
  process) into an update of the same row.

NOTIFICATIONS:
  Approve and Reject fire events after the transaction commits. Delivery is
  fire-and-forget.

SEE ALSO:
  - aggregate.go: Hour computation
  - scheduling/roster.go: Workers for GenerateForSite
*/
package timesheet

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/workforce-engine/generic"
)

// Service manages timesheets.
type Service struct {
	store      generic.TxStore
	workers    generic.WorkerDirectory
	attendance generic.AttendanceSource
	roster     generic.RosterSource
	notifier   generic.Notifier
	aggregator *Aggregator
	policy     generic.Policy
	locks      *generic.KeyedMutex
	logger     *zap.Logger
	now        func() time.Time
	newID      func() string
}

// Option configures a Service.
type Option func(*Service)

func WithNotifier(n generic.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock replaces time.Now. Readings are converted to UTC.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = func() time.Time { return now().UTC() } }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

func NewService(
	store generic.TxStore,
	workers generic.WorkerDirectory,
	attendance generic.AttendanceSource,
	roster generic.RosterSource,
	policy generic.Policy,
	opts ...Option,
) *Service {
	s := &Service{
		store:      store,
		workers:    workers,
		attendance: attendance,
		roster:     roster,
		notifier:   generic.NopNotifier{},
		aggregator: NewAggregator(policy),
		policy:     policy,
		locks:      generic.NewKeyedMutex(),
		logger:     zap.NewNop(),
		now:        func() time.Time { return time.Now().UTC() },
		newID:      func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// GENERATE
// =============================================================================

// Generate computes the timesheet for one worker, site and week.
func (s *Service) Generate(ctx context.Context, workerID, siteID string, weekStart generic.Date) (*generic.Timesheet, error) {
	if workerID == "" {
		return nil, generic.Invalid("workerId", "is required")
	}
	if siteID == "" {
		return nil, generic.Invalid("siteId", "is required")
	}
	if err := s.validateWeekStart(weekStart); err != nil {
		return nil, err
	}

	rate, err := s.workers.HourlyRate(ctx, workerID)
	if err != nil {
		return nil, fmt.Errorf("hourly rate for worker %s: %w", workerID, err)
	}

	week := generic.WeekOf(weekStart)
	records, err := s.attendance.AttendanceInRange(ctx, workerID, siteID, week.Start, week.End)
	if err != nil {
		return nil, fmt.Errorf("load attendance: %w", err)
	}
	agg := s.aggregator.Aggregate(records, weekStart)

	key := generic.TimesheetKey{WorkerID: workerID, SiteID: siteID, WeekStart: weekStart}
	unlock := s.locks.Lock(key.String())
	defer unlock()

	var result generic.Timesheet
	err = s.store.WithTx(ctx, func(tx generic.Store) error {
		existing, err := tx.GetTimesheetByKey(ctx, key)
		if err != nil {
			return fmt.Errorf("load timesheet %s: %w", key, err)
		}

		now := s.now()
		next := generic.Timesheet{
			ID:             s.newID(),
			WorkerID:       workerID,
			SiteID:         siteID,
			WeekStartDate:  week.Start,
			WeekEndDate:    week.End,
			DailyBreakdown: agg.Daily,
			RegularHours:   agg.Regular,
			OvertimeHours:  agg.Overtime,
			TotalHours:     agg.Total,
			HourlyRate:     rate,
			TotalPay:       s.policy.Pay(agg.Regular, agg.Overtime, rate),
			Status:         generic.TimesheetDraft,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		if existing != nil {
			switch {
			case existing.Status == generic.TimesheetDraft:
				if sameFigures(*existing, next) {
					result = *existing
					return nil
				}
			case existing.Status == generic.TimesheetRejected && s.policy.RegenerateRejected:
			default:
				return &generic.InvalidStateError{Record: "timesheet", ID: existing.ID, Current: string(existing.Status), Operation: "generate"}
			}
			next.ID = existing.ID
			next.CreatedAt = existing.CreatedAt
		}

		id, err := tx.SaveTimesheet(ctx, next)
		if err != nil {
			return fmt.Errorf("save timesheet: %w", err)
		}
		next.ID = id
		result = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("timesheet generated",
		zap.String("timesheet_id", result.ID),
		zap.String("key", key.String()),
		zap.String("total_hours", result.TotalHours.Value.String()),
	)
	return &result, nil
}

// BatchFailure is one worker GenerateForSite could not process.
type BatchFailure struct {
	WorkerID string
	Error    string
	Kind     generic.ErrorKind
}

// BatchResult reports a site-wide generation.
type BatchResult struct {
	Succeeded []generic.Timesheet
	Failed    []BatchFailure
}

// GenerateForSite runs Generate for every worker on the site's roster for
// the week. One worker's failure never stops the others.
func (s *Service) GenerateForSite(ctx context.Context, siteID string, weekStart generic.Date) (*BatchResult, error) {
	if siteID == "" {
		return nil, generic.Invalid("siteId", "is required")
	}
	if err := s.validateWeekStart(weekStart); err != nil {
		return nil, err
	}

	workers, err := s.roster.ActiveWorkers(ctx, siteID, generic.WeekOf(weekStart))
	if err != nil {
		return nil, fmt.Errorf("roster for site %s: %w", siteID, err)
	}

	result := &BatchResult{
		Succeeded: []generic.Timesheet{},
		Failed:    []BatchFailure{},
	}
	for _, workerID := range workers {
		t, err := s.Generate(ctx, workerID, siteID, weekStart)
		if err != nil {
			s.logger.Warn("timesheet generation failed",
				zap.String("worker_id", workerID),
				zap.String("site_id", siteID),
				zap.String("week_start", weekStart.String()),
				zap.Error(err),
			)
			result.Failed = append(result.Failed, BatchFailure{
				WorkerID: workerID,
				Error:    err.Error(),
				Kind:     generic.KindOf(err),
			})
			continue
		}
		result.Succeeded = append(result.Succeeded, *t)
	}

	s.logger.Info("site timesheets generated",
		zap.String("site_id", siteID),
		zap.String("week_start", weekStart.String()),
		zap.Int("succeeded", len(result.Succeeded)),
		zap.Int("failed", len(result.Failed)),
	)
	return result, nil
}

// =============================================================================
// REVIEW WORKFLOW
// =============================================================================

func (s *Service) Submit(ctx context.Context, id string) (*generic.Timesheet, error) {
	return s.transition(ctx, id, "submit", generic.TimesheetSubmitted, func(t *generic.Timesheet, now time.Time) error {
		if s.policy.RejectEmptySubmit && t.TotalHours.IsZero() {
			return generic.Invalid("totalHours", "timesheet %s has no hours to submit", t.ID)
		}
		t.SubmittedAt = &now
		return nil
	})
}

func (s *Service) Approve(ctx context.Context, id, approverID string) (*generic.Timesheet, error) {
	t, err := s.transition(ctx, id, "approve", generic.TimesheetApproved, func(t *generic.Timesheet, now time.Time) error {
		t.ApprovedAt = &now
		if approverID != "" {
			t.ApprovedBy = &approverID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, generic.EventTimesheetApproved, t, map[string]string{"approved_by": approverID})
	return t, nil
}

func (s *Service) Reject(ctx context.Context, id, reason, rejecterID string) (*generic.Timesheet, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, generic.Invalid("reason", "is required to reject a timesheet")
	}
	t, err := s.transition(ctx, id, "reject", generic.TimesheetRejected, func(t *generic.Timesheet, _ time.Time) error {
		t.RejectionReason = &reason
		if rejecterID != "" {
			t.RejectedBy = &rejecterID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, generic.EventTimesheetRejected, t, map[string]string{"reason": reason, "rejected_by": rejecterID})
	return t, nil
}

// Reopen returns a rejected timesheet to draft for correction, keeping its
// figures.
func (s *Service) Reopen(ctx context.Context, id string) (*generic.Timesheet, error) {
	return s.transition(ctx, id, "reopen", generic.TimesheetDraft, func(t *generic.Timesheet, _ time.Time) error {
		t.RejectionReason = nil
		t.RejectedBy = nil
		t.SubmittedAt = nil
		return nil
	})
}

// from lists the only status each target may be entered from.
var from = map[generic.TimesheetStatus]generic.TimesheetStatus{
	generic.TimesheetSubmitted: generic.TimesheetDraft,
	generic.TimesheetApproved:  generic.TimesheetSubmitted,
	generic.TimesheetRejected:  generic.TimesheetSubmitted,
	generic.TimesheetDraft:     generic.TimesheetRejected,
}

func (s *Service) transition(ctx context.Context, id, op string, to generic.TimesheetStatus, apply func(*generic.Timesheet, time.Time) error) (*generic.Timesheet, error) {
	current, err := s.mustGet(ctx, s.store, id)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(current.Key().String())
	defer unlock()

	var result generic.Timesheet
	err = s.store.WithTx(ctx, func(tx generic.Store) error {
		t, err := s.mustGet(ctx, tx, id)
		if err != nil {
			return err
		}
		if t.Status != from[to] {
			return &generic.InvalidStateError{Record: "timesheet", ID: id, Current: string(t.Status), Operation: op}
		}

		now := s.now()
		if err := apply(t, now); err != nil {
			return err
		}
		t.Status = to
		t.UpdatedAt = now
		if _, err := tx.SaveTimesheet(ctx, *t); err != nil {
			return fmt.Errorf("save timesheet: %w", err)
		}
		result = *t
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("timesheet "+op, zap.String("timesheet_id", id), zap.String("status", string(to)))
	return &result, nil
}

// =============================================================================
// READS
// =============================================================================

func (s *Service) Get(ctx context.Context, id string) (*generic.Timesheet, error) {
	return s.mustGet(ctx, s.store, id)
}

func (s *Service) ListByWorker(ctx context.Context, workerID string) ([]generic.Timesheet, error) {
	if workerID == "" {
		return nil, generic.Invalid("workerId", "is required")
	}
	list, err := s.store.ListTimesheetsByWorker(ctx, workerID)
	if err != nil {
		return nil, fmt.Errorf("list timesheets: %w", err)
	}
	return list, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Service) validateWeekStart(weekStart generic.Date) error {
	if weekStart.IsZero() {
		return generic.Invalid("weekStartDate", "is required")
	}
	if weekStart.Weekday() != s.policy.WeekStart {
		return generic.Invalid("weekStartDate", "%s is a %s, weeks start on %s",
			weekStart, weekStart.Weekday(), s.policy.WeekStart)
	}
	return nil
}

func (s *Service) mustGet(ctx context.Context, store generic.TimesheetStore, id string) (*generic.Timesheet, error) {
	t, err := store.GetTimesheet(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load timesheet %s: %w", id, err)
	}
	if t == nil {
		return nil, &generic.NotFoundError{Record: "timesheet", ID: id}
	}
	return t, nil
}

func (s *Service) notify(ctx context.Context, typ generic.EventType, t *generic.Timesheet, extra map[string]string) {
	payload := map[string]string{
		"worker_id":  t.WorkerID,
		"site_id":    t.SiteID,
		"week_start": t.WeekStartDate.String(),
	}
	for k, v := range extra {
		if v != "" {
			payload[k] = v
		}
	}
	s.notifier.Notify(ctx, generic.Event{
		Type:       typ,
		OccurredAt: s.now(),
		SubjectID:  t.ID,
		Payload:    payload,
	})
}

// sameFigures reports whether a recomputation would change nothing.
func sameFigures(a, b generic.Timesheet) bool {
	if !a.TotalHours.Equal(b.TotalHours) ||
		!a.RegularHours.Equal(b.RegularHours) ||
		!a.OvertimeHours.Equal(b.OvertimeHours) ||
		!a.HourlyRate.Equal(b.HourlyRate) ||
		!a.TotalPay.Equal(b.TotalPay) ||
		len(a.DailyBreakdown) != len(b.DailyBreakdown) {
		return false
	}
	for i := range a.DailyBreakdown {
		x, y := a.DailyBreakdown[i], b.DailyBreakdown[i]
		if !x.Date.Equal(y.Date) || x.CheckIn != y.CheckIn || x.CheckOut != y.CheckOut ||
			!x.TotalHours.Equal(y.TotalHours) || !x.RegularHours.Equal(y.RegularHours) || !x.OvertimeHours.Equal(y.OvertimeHours) {
			return false
		}
	}
	return true
}
