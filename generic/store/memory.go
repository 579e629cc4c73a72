// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/workforce-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	assignments map[string]generic.Assignment
	history     map[string][]generic.HistoryEntry
	timesheets  map[string]generic.Timesheet
	byKey       map[generic.TimesheetKey]string
}

func NewMemory() *Memory {
	return &Memory{
		assignments: make(map[string]generic.Assignment),
		history:     make(map[string][]generic.HistoryEntry),
		timesheets:  make(map[string]generic.Timesheet),
		byKey:       make(map[generic.TimesheetKey]string),
	}
}

// -----------------------------------------------------------------------------
// Assignments
// -----------------------------------------------------------------------------

func (m *Memory) InsertAssignment(_ context.Context, a generic.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertAssignmentLocked(a)
}

func (m *Memory) insertAssignmentLocked(a generic.Assignment) error {
	if _, ok := m.assignments[a.ID]; ok {
		return generic.ErrDuplicateKey
	}
	m.assignments[a.ID] = cloneAssignment(a)
	return nil
}

func (m *Memory) UpdateAssignment(_ context.Context, a generic.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateAssignmentLocked(a)
}

func (m *Memory) updateAssignmentLocked(a generic.Assignment) error {
	cur, ok := m.assignments[a.ID]
	if !ok {
		return &generic.NotFoundError{Record: "assignment", ID: a.ID}
	}
	cur.Status = a.Status
	cur.Notes = a.Notes
	cur.UpdatedAt = a.UpdatedAt
	m.assignments[a.ID] = cur
	return nil
}

func (m *Memory) GetAssignment(_ context.Context, id string) (*generic.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAssignmentLocked(id), nil
}

func (m *Memory) getAssignmentLocked(id string) *generic.Assignment {
	a, ok := m.assignments[id]
	if !ok {
		return nil
	}
	out := cloneAssignment(a)
	return &out
}

func (m *Memory) ListAssignmentsByAssignee(_ context.Context, assignee generic.Assignee) ([]generic.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterAssignmentsLocked(func(a generic.Assignment) bool {
		return a.Assignee == assignee
	}), nil
}

func (m *Memory) ListActiveAssignmentsByAssignee(_ context.Context, assignee generic.Assignee) ([]generic.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterAssignmentsLocked(func(a generic.Assignment) bool {
		return a.Assignee == assignee && a.IsActive()
	}), nil
}

func (m *Memory) ListActiveAssignmentsByEntity(_ context.Context, entity generic.Entity) ([]generic.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterAssignmentsLocked(func(a generic.Assignment) bool {
		return a.Entity == entity && a.IsActive()
	}), nil
}

// filterAssignmentsLocked returns matches ordered by start date, then id.
func (m *Memory) filterAssignmentsLocked(keep func(generic.Assignment) bool) []generic.Assignment {
	var result []generic.Assignment
	for _, a := range m.assignments {
		if keep(a) {
			result = append(result, cloneAssignment(a))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartDate.Equal(result[j].StartDate) {
			return result[i].StartDate.Before(result[j].StartDate)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// -----------------------------------------------------------------------------
// History (append-only)
// -----------------------------------------------------------------------------

func (m *Memory) AppendHistory(_ context.Context, entry generic.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendHistoryLocked(entry)
	return nil
}

func (m *Memory) appendHistoryLocked(entry generic.HistoryEntry) {
	m.history[entry.AssignmentID] = append(m.history[entry.AssignmentID], entry)
}

func (m *Memory) History(_ context.Context, assignmentID string) ([]generic.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.historyLocked(assignmentID), nil
}

func (m *Memory) historyLocked(assignmentID string) []generic.HistoryEntry {
	result := make([]generic.HistoryEntry, len(m.history[assignmentID]))
	copy(result, m.history[assignmentID])
	return result
}

// -----------------------------------------------------------------------------
// Timesheets
// -----------------------------------------------------------------------------

func (m *Memory) SaveTimesheet(_ context.Context, t generic.Timesheet) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveTimesheetLocked(t), nil
}

// saveTimesheetLocked mirrors the SQLite upsert: the (worker, site, week)
// key wins over the id, so a second insert for a key updates the first row.
func (m *Memory) saveTimesheetLocked(t generic.Timesheet) string {
	if existingID, ok := m.byKey[t.Key()]; ok && existingID != t.ID {
		existing := m.timesheets[existingID]
		t.ID = existingID
		t.CreatedAt = existing.CreatedAt
	}
	if prev, ok := m.timesheets[t.ID]; ok && prev.Key() != t.Key() {
		delete(m.byKey, prev.Key())
	}
	m.timesheets[t.ID] = cloneTimesheet(t)
	m.byKey[t.Key()] = t.ID
	return t.ID
}

func (m *Memory) GetTimesheet(_ context.Context, id string) (*generic.Timesheet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getTimesheetLocked(id), nil
}

func (m *Memory) getTimesheetLocked(id string) *generic.Timesheet {
	t, ok := m.timesheets[id]
	if !ok {
		return nil
	}
	out := cloneTimesheet(t)
	return &out
}

func (m *Memory) GetTimesheetByKey(_ context.Context, key generic.TimesheetKey) (*generic.Timesheet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getTimesheetByKeyLocked(key), nil
}

func (m *Memory) getTimesheetByKeyLocked(key generic.TimesheetKey) *generic.Timesheet {
	id, ok := m.byKey[key]
	if !ok {
		return nil
	}
	return m.getTimesheetLocked(id)
}

func (m *Memory) ListTimesheetsByWorker(_ context.Context, workerID string) ([]generic.Timesheet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listTimesheetsByWorkerLocked(workerID), nil
}

func (m *Memory) listTimesheetsByWorkerLocked(workerID string) []generic.Timesheet {
	var result []generic.Timesheet
	for _, t := range m.timesheets {
		if t.WorkerID == workerID {
			result = append(result, cloneTimesheet(t))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].WeekStartDate.Equal(result[j].WeekStartDate) {
			return result[i].WeekStartDate.Before(result[j].WeekStartDate)
		}
		return result[i].SiteID < result[j].SiteID
	})
	return result
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// The write lock is held for the whole of fn, so transactions are serial.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(generic.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := tm.snapshot()
	txStore := &txMemoryView{parent: tm}

	if err := fn(txStore); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

func (tm *TxMemory) snapshot() memorySnapshot {
	s := memorySnapshot{
		assignments: make(map[string]generic.Assignment, len(tm.assignments)),
		history:     make(map[string][]generic.HistoryEntry, len(tm.history)),
		timesheets:  make(map[string]generic.Timesheet, len(tm.timesheets)),
		byKey:       make(map[generic.TimesheetKey]string, len(tm.byKey)),
	}
	for k, v := range tm.assignments {
		s.assignments[k] = v
	}
	for k, v := range tm.history {
		s.history[k] = append([]generic.HistoryEntry{}, v...)
	}
	for k, v := range tm.timesheets {
		s.timesheets[k] = v
	}
	for k, v := range tm.byKey {
		s.byKey[k] = v
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.assignments = s.assignments
	tm.history = s.history
	tm.timesheets = s.timesheets
	tm.byKey = s.byKey
}

type memorySnapshot struct {
	assignments map[string]generic.Assignment
	history     map[string][]generic.HistoryEntry
	timesheets  map[string]generic.Timesheet
	byKey       map[generic.TimesheetKey]string
}

// txMemoryView runs against the parent while WithTx holds its lock.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) InsertAssignment(_ context.Context, a generic.Assignment) error {
	return tv.parent.insertAssignmentLocked(a)
}

func (tv *txMemoryView) UpdateAssignment(_ context.Context, a generic.Assignment) error {
	return tv.parent.updateAssignmentLocked(a)
}

func (tv *txMemoryView) GetAssignment(_ context.Context, id string) (*generic.Assignment, error) {
	return tv.parent.getAssignmentLocked(id), nil
}

func (tv *txMemoryView) ListAssignmentsByAssignee(_ context.Context, assignee generic.Assignee) ([]generic.Assignment, error) {
	return tv.parent.filterAssignmentsLocked(func(a generic.Assignment) bool {
		return a.Assignee == assignee
	}), nil
}

func (tv *txMemoryView) ListActiveAssignmentsByAssignee(_ context.Context, assignee generic.Assignee) ([]generic.Assignment, error) {
	return tv.parent.filterAssignmentsLocked(func(a generic.Assignment) bool {
		return a.Assignee == assignee && a.IsActive()
	}), nil
}

func (tv *txMemoryView) ListActiveAssignmentsByEntity(_ context.Context, entity generic.Entity) ([]generic.Assignment, error) {
	return tv.parent.filterAssignmentsLocked(func(a generic.Assignment) bool {
		return a.Entity == entity && a.IsActive()
	}), nil
}

func (tv *txMemoryView) AppendHistory(_ context.Context, entry generic.HistoryEntry) error {
	tv.parent.appendHistoryLocked(entry)
	return nil
}

func (tv *txMemoryView) History(_ context.Context, assignmentID string) ([]generic.HistoryEntry, error) {
	return tv.parent.historyLocked(assignmentID), nil
}

func (tv *txMemoryView) SaveTimesheet(_ context.Context, t generic.Timesheet) (string, error) {
	return tv.parent.saveTimesheetLocked(t), nil
}

func (tv *txMemoryView) GetTimesheet(_ context.Context, id string) (*generic.Timesheet, error) {
	return tv.parent.getTimesheetLocked(id), nil
}

func (tv *txMemoryView) GetTimesheetByKey(_ context.Context, key generic.TimesheetKey) (*generic.Timesheet, error) {
	return tv.parent.getTimesheetByKeyLocked(key), nil
}

func (tv *txMemoryView) ListTimesheetsByWorker(_ context.Context, workerID string) ([]generic.Timesheet, error) {
	return tv.parent.listTimesheetsByWorkerLocked(workerID), nil
}

// =============================================================================
// COPY HELPERS - Callers never share pointers with the store
// =============================================================================

func cloneAssignment(a generic.Assignment) generic.Assignment {
	if a.EndDate != nil {
		end := *a.EndDate
		a.EndDate = &end
	}
	return a
}

func cloneTimesheet(t generic.Timesheet) generic.Timesheet {
	t.DailyBreakdown = append([]generic.DailyEntry(nil), t.DailyBreakdown...)
	t.RejectionReason = cloneString(t.RejectionReason)
	t.ApprovedBy = cloneString(t.ApprovedBy)
	t.RejectedBy = cloneString(t.RejectedBy)
	t.SubmittedAt = cloneTime(t.SubmittedAt)
	t.ApprovedAt = cloneTime(t.ApprovedAt)
	return t
}
