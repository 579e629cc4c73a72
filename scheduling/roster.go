package scheduling

import (
	"context"
	"fmt"
	"sort"

	"github.com/warp/workforce-engine/generic"
)

// Roster answers "which workers are booked on this site?" from assignments.
// It is the default generic.RosterSource.
type Roster struct {
	store generic.AssignmentStore
}

func NewRoster(store generic.AssignmentStore) *Roster {
	return &Roster{store: store}
}

// ActiveWorkers returns the distinct ids of workers holding an active site
// assignment that overlaps window, sorted. Materials are ignored.
func (r *Roster) ActiveWorkers(ctx context.Context, siteID string, window generic.Period) ([]string, error) {
	assignments, err := r.store.ListActiveAssignmentsByEntity(ctx, generic.Entity{Type: generic.EntitySite, ID: siteID})
	if err != nil {
		return nil, fmt.Errorf("list assignments for site %s: %w", siteID, err)
	}

	seen := make(map[string]bool)
	var workers []string
	for _, a := range assignments {
		if a.Assignee.Type != generic.AssigneeWorker || seen[a.Assignee.ID] {
			continue
		}
		if !a.Interval().Overlaps(window.Interval()) {
			continue
		}
		seen[a.Assignee.ID] = true
		workers = append(workers, a.Assignee.ID)
	}
	sort.Strings(workers)
	return workers, nil
}
