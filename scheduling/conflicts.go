/*
conflicts.go - Double-booking detection

PURPOSE:
  Answers "would this booking overlap an existing active one for the same
  worker or material?" The detector never blocks a write by itself; the
  lifecycle service decides whether conflicts are advisory or a hard gate.

ALGORITHM:
  1. Validate the candidate (assignee tag, start <= end)
  2. Load active assignments for the assignee
  3. Skip the excluded id (edit-in-place checks)
  4. Intersect each remaining interval with the candidate
  5. Sort descriptors by overlap start, then id

  The scan is linear in the assignee's active bookings, which stay small.

SEE ALSO:
  - generic/period.go: Overlaps, Interval.Intersect
  - lifecycle.go: Strict-mode gate on create/reassign
*/
package scheduling

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/warp/workforce-engine/generic"
)

// Detector finds overlapping active assignments.
type Detector struct {
	store    generic.AssignmentStore
	notifier generic.Notifier
	now      func() time.Time
}

func NewDetector(store generic.AssignmentStore, notifier generic.Notifier) *Detector {
	if notifier == nil {
		notifier = generic.NopNotifier{}
	}
	return &Detector{store: store, notifier: notifier, now: utcNow}
}

// utcNow is the default clock. Stores persist timestamps in UTC.
func utcNow() time.Time { return time.Now().UTC() }

// FindConflicts returns one descriptor per overlapping active assignment.
// An empty result means the booking is safe to create.
func (d *Detector) FindConflicts(ctx context.Context, c generic.ConflictCandidate) ([]generic.ConflictDescriptor, error) {
	return d.findConflicts(ctx, d.store, c)
}

// findConflicts runs against an explicit store so the lifecycle service can
// call it with its transactional view.
func (d *Detector) findConflicts(ctx context.Context, store generic.AssignmentStore, c generic.ConflictCandidate) ([]generic.ConflictDescriptor, error) {
	if err := validateCandidate(c); err != nil {
		return nil, err
	}

	existing, err := store.ListActiveAssignmentsByAssignee(ctx, c.Assignee)
	if err != nil {
		return nil, fmt.Errorf("list active assignments for %s: %w", c.Assignee, err)
	}

	candidate := generic.Interval{Start: c.StartDate, End: c.EndDate}
	var conflicts []generic.ConflictDescriptor
	for _, a := range existing {
		if a.ID == c.ExcludeID || !a.IsActive() {
			continue
		}
		overlap, ok := a.Interval().Intersect(candidate)
		if !ok {
			continue
		}
		conflicts = append(conflicts, generic.ConflictDescriptor{
			ConflictingAssignmentID: a.ID,
			Entity:                  a.Entity,
			OverlapStart:            overlap.Start,
			OverlapEnd:              overlap.End,
			Message:                 conflictMessage(c.Assignee, a, overlap),
		})
	}

	sort.Slice(conflicts, func(i, j int) bool {
		if !conflicts[i].OverlapStart.Equal(conflicts[j].OverlapStart) {
			return conflicts[i].OverlapStart.Before(conflicts[j].OverlapStart)
		}
		return conflicts[i].ConflictingAssignmentID < conflicts[j].ConflictingAssignmentID
	})

	if len(conflicts) > 0 {
		d.notify(ctx, c.Assignee, conflicts)
	}
	return conflicts, nil
}

func (d *Detector) notify(ctx context.Context, assignee generic.Assignee, conflicts []generic.ConflictDescriptor) {
	ids := make([]string, len(conflicts))
	for i, c := range conflicts {
		ids[i] = c.ConflictingAssignmentID
	}
	d.notifier.Notify(ctx, generic.Event{
		Type:       generic.EventConflictDetected,
		OccurredAt: d.now(),
		SubjectID:  assignee.Key(),
		Payload: map[string]string{
			"assignee_type": string(assignee.Type),
			"assignee_id":   assignee.ID,
			"count":         fmt.Sprint(len(conflicts)),
			"conflicts":     strings.Join(ids, ","),
		},
	})
}

func validateCandidate(c generic.ConflictCandidate) error {
	if !c.Assignee.Type.Valid() {
		return generic.Invalid("assignee.type", "must be worker or material, got %q", c.Assignee.Type)
	}
	if c.Assignee.ID == "" {
		return generic.Invalid("assignee.id", "is required")
	}
	if c.StartDate.IsZero() {
		return generic.Invalid("startDate", "is required")
	}
	if c.EndDate != nil && c.EndDate.Before(c.StartDate) {
		return generic.Invalid("endDate", "%s is before startDate %s", c.EndDate, c.StartDate)
	}
	return nil
}

func conflictMessage(assignee generic.Assignee, existing generic.Assignment, overlap generic.Interval) string {
	if overlap.End == nil {
		return fmt.Sprintf("%s is already assigned to %s from %s onward",
			assignee, existing.Entity, overlap.Start)
	}
	return fmt.Sprintf("%s is already assigned to %s from %s to %s",
		assignee, existing.Entity, overlap.Start, overlap.End)
}
