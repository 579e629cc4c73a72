package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/workforce-engine/generic"
)

// =============================================================================
// IN-MEMORY COLLABORATORS - Worker rates and attendance (for testing/dev)
// =============================================================================

// Workers is an in-memory WorkerDirectory.
type Workers struct {
	mu    sync.RWMutex
	rates map[string]decimal.Decimal
}

func NewWorkers() *Workers {
	return &Workers{rates: make(map[string]decimal.Decimal)}
}

func (w *Workers) SetRate(workerID string, rate decimal.Decimal) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rates[workerID] = rate
}

func (w *Workers) HourlyRate(_ context.Context, workerID string) (decimal.Decimal, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	rate, ok := w.rates[workerID]
	if !ok {
		return decimal.Zero, &generic.NotFoundError{Record: "worker", ID: workerID}
	}
	return rate, nil
}

// Attendance is an in-memory AttendanceSource.
type Attendance struct {
	mu      sync.RWMutex
	records []generic.AttendanceRecord
}

func NewAttendance() *Attendance {
	return &Attendance{}
}

func (a *Attendance) Record(records ...generic.AttendanceRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, records...)
}

func (a *Attendance) AttendanceInRange(_ context.Context, workerID, siteID string, from, to generic.Date) ([]generic.AttendanceRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	window := generic.Period{Start: from, End: to}
	var result []generic.AttendanceRecord
	for _, r := range a.records {
		if r.WorkerID == workerID && r.SiteID == siteID && window.Contains(r.Date) {
			result = append(result, r)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
