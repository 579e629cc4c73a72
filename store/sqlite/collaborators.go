package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/workforce-engine/generic"
)

// =============================================================================
// WORKER DIRECTORY (generic.WorkerDirectory)
// =============================================================================

// Worker is a row of the workers table.
type Worker struct {
	ID         string
	Name       string
	HourlyRate decimal.Decimal
	CreatedAt  time.Time
}

// SaveWorker upserts a worker.
func (s *Store) SaveWorker(ctx context.Context, w Worker) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workers (id, name, hourly_rate, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			hourly_rate = excluded.hourly_rate`,
		w.ID, w.Name, w.HourlyRate.String(), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to save worker: %w", err)
	}
	return nil
}

// GetWorker returns nil, nil for an unknown id.
func (s *Store) GetWorker(ctx context.Context, id string) (*Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		w               Worker
		rate, createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, hourly_rate, created_at FROM workers WHERE id = ?", id,
	).Scan(&w.ID, &w.Name, &rate, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	w.HourlyRate = generic.MustParseDecimal(rate)
	w.CreatedAt = parseTime(createdAt)
	return &w, nil
}

// ListWorkers returns all workers ordered by name.
func (s *Store) ListWorkers(ctx context.Context) ([]Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name, hourly_rate, created_at FROM workers ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query workers: %w", err)
	}
	defer rows.Close()

	var workers []Worker
	for rows.Next() {
		var (
			w               Worker
			rate, createdAt string
		)
		if err := rows.Scan(&w.ID, &w.Name, &rate, &createdAt); err != nil {
			return nil, err
		}
		w.HourlyRate = generic.MustParseDecimal(rate)
		w.CreatedAt = parseTime(createdAt)
		workers = append(workers, w)
	}
	return workers, rows.Err()
}

// HourlyRate implements generic.WorkerDirectory.
func (s *Store) HourlyRate(ctx context.Context, workerID string) (decimal.Decimal, error) {
	w, err := s.GetWorker(ctx, workerID)
	if err != nil {
		return decimal.Zero, err
	}
	if w == nil {
		return decimal.Zero, &generic.NotFoundError{Record: "worker", ID: workerID}
	}
	return w.HourlyRate, nil
}

// =============================================================================
// ATTENDANCE (generic.AttendanceSource)
// =============================================================================

// RecordAttendance appends attendance rows.
func (s *Store) RecordAttendance(ctx context.Context, records ...generic.AttendanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO attendance (worker_id, site_id, date, check_in, check_out)
			VALUES (?, ?, ?, ?, ?)`,
			r.WorkerID, r.SiteID, formatDate(r.Date),
			nullTimeOfDay(r.CheckIn), nullTimeOfDay(r.CheckOut),
		)
		if err != nil {
			return fmt.Errorf("failed to record attendance: %w", err)
		}
	}
	return nil
}

// AttendanceInRange implements generic.AttendanceSource.
func (s *Store) AttendanceInRange(ctx context.Context, workerID, siteID string, from, to generic.Date) ([]generic.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT worker_id, site_id, date, check_in, check_out
		FROM attendance
		WHERE worker_id = ? AND site_id = ? AND date >= ? AND date <= ?
		ORDER BY date, id`,
		workerID, siteID, formatDate(from), formatDate(to),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance: %w", err)
	}
	defer rows.Close()

	var result []generic.AttendanceRecord
	for rows.Next() {
		var (
			r            generic.AttendanceRecord
			date         string
			checkIn, out sql.NullString
		)
		if err := rows.Scan(&r.WorkerID, &r.SiteID, &date, &checkIn, &out); err != nil {
			return nil, err
		}
		if r.Date, err = generic.ParseDate(date); err != nil {
			return nil, err
		}
		if r.CheckIn, err = timeOfDayPtr(checkIn); err != nil {
			return nil, err
		}
		if r.CheckOut, err = timeOfDayPtr(out); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func nullTimeOfDay(t *generic.TimeOfDay) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.String(), Valid: true}
}

func timeOfDayPtr(ns sql.NullString) (*generic.TimeOfDay, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := generic.ParseTimeOfDay(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
