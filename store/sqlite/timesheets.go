package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/workforce-engine/generic"
)

// =============================================================================
// TIMESHEETS
// =============================================================================

const timesheetColumns = `id, worker_id, site_id, week_start, week_end, daily_breakdown,
	regular_hours, overtime_hours, total_hours, hourly_rate, total_pay, status,
	rejection_reason, submitted_at, approved_by, approved_at, rejected_by,
	created_at, updated_at`

// dailyRow is the JSON shape of one daily_breakdown element.
type dailyRow struct {
	Date          generic.Date      `json:"date"`
	CheckIn       generic.TimeOfDay `json:"check_in"`
	CheckOut      generic.TimeOfDay `json:"check_out"`
	TotalHours    decimal.Decimal   `json:"total_hours"`
	RegularHours  decimal.Decimal   `json:"regular_hours"`
	OvertimeHours decimal.Decimal   `json:"overtime_hours"`
}

func encodeBreakdown(entries []generic.DailyEntry) (string, error) {
	rows := make([]dailyRow, len(entries))
	for i, e := range entries {
		rows[i] = dailyRow{
			Date:          e.Date,
			CheckIn:       e.CheckIn,
			CheckOut:      e.CheckOut,
			TotalHours:    e.TotalHours.Value,
			RegularHours:  e.RegularHours.Value,
			OvertimeHours: e.OvertimeHours.Value,
		}
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("encode daily breakdown: %w", err)
	}
	return string(b), nil
}

func decodeBreakdown(raw string) ([]generic.DailyEntry, error) {
	var rows []dailyRow
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return nil, fmt.Errorf("decode daily breakdown: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	entries := make([]generic.DailyEntry, len(rows))
	for i, r := range rows {
		entries[i] = generic.DailyEntry{
			Date:          r.Date,
			CheckIn:       r.CheckIn,
			CheckOut:      r.CheckOut,
			TotalHours:    generic.Amount{Value: r.TotalHours, Unit: generic.UnitHours},
			RegularHours:  generic.Amount{Value: r.RegularHours, Unit: generic.UnitHours},
			OvertimeHours: generic.Amount{Value: r.OvertimeHours, Unit: generic.UnitHours},
		}
	}
	return entries, nil
}

// saveTimesheet upserts by (worker, site, week). The row already holding
// the key keeps its id and created_at; an insert that loses a race for the
// key is retried as an update.
func saveTimesheet(ctx context.Context, q querier, t generic.Timesheet) (string, error) {
	breakdown, err := encodeBreakdown(t.DailyBreakdown)
	if err != nil {
		return "", err
	}

	existing, err := getTimesheetByKey(ctx, q, t.Key())
	if err != nil {
		return "", err
	}
	if existing != nil {
		return existing.ID, updateTimesheet(ctx, q, existing.ID, t, breakdown)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO timesheets (`+timesheetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.WorkerID, t.SiteID,
		formatDate(t.WeekStartDate), formatDate(t.WeekEndDate),
		breakdown,
		t.RegularHours.Value.String(), t.OvertimeHours.Value.String(), t.TotalHours.Value.String(),
		t.HourlyRate.String(), t.TotalPay.String(),
		t.Status,
		nullString(t.RejectionReason), nullTime(t.SubmittedAt),
		nullString(t.ApprovedBy), nullTime(t.ApprovedAt), nullString(t.RejectedBy),
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
	)
	if err == nil {
		return t.ID, nil
	}
	if !isUniqueConstraintError(err) {
		return "", fmt.Errorf("failed to insert timesheet: %w", err)
	}

	// Another writer inserted the key between our read and insert.
	winner, err := getTimesheetByKey(ctx, q, t.Key())
	if err != nil {
		return "", err
	}
	if winner == nil {
		return "", generic.ErrDuplicateKey
	}
	if winner.Status != generic.TimesheetDraft {
		return "", &generic.InvalidStateError{Record: "timesheet", ID: winner.ID, Current: string(winner.Status), Operation: "generate"}
	}
	return winner.ID, updateTimesheet(ctx, q, winner.ID, t, breakdown)
}

func updateTimesheet(ctx context.Context, q querier, id string, t generic.Timesheet, breakdown string) error {
	_, err := q.ExecContext(ctx, `
		UPDATE timesheets SET
			daily_breakdown = ?,
			regular_hours = ?, overtime_hours = ?, total_hours = ?,
			hourly_rate = ?, total_pay = ?,
			status = ?, rejection_reason = ?,
			submitted_at = ?, approved_by = ?, approved_at = ?, rejected_by = ?,
			updated_at = ?
		WHERE id = ?`,
		breakdown,
		t.RegularHours.Value.String(), t.OvertimeHours.Value.String(), t.TotalHours.Value.String(),
		t.HourlyRate.String(), t.TotalPay.String(),
		t.Status, nullString(t.RejectionReason),
		nullTime(t.SubmittedAt), nullString(t.ApprovedBy), nullTime(t.ApprovedAt), nullString(t.RejectedBy),
		formatTime(t.UpdatedAt),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update timesheet: %w", err)
	}
	return nil
}

func getTimesheet(ctx context.Context, q querier, id string) (*generic.Timesheet, error) {
	row := q.QueryRowContext(ctx, `SELECT `+timesheetColumns+` FROM timesheets WHERE id = ?`, id)
	return scanTimesheetRow(row)
}

func getTimesheetByKey(ctx context.Context, q querier, key generic.TimesheetKey) (*generic.Timesheet, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+timesheetColumns+` FROM timesheets
		WHERE worker_id = ? AND site_id = ? AND week_start = ?`,
		key.WorkerID, key.SiteID, formatDate(key.WeekStart),
	)
	return scanTimesheetRow(row)
}

func scanTimesheetRow(row *sql.Row) (*generic.Timesheet, error) {
	t, err := scanTimesheet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func listTimesheetsByWorker(ctx context.Context, q querier, workerID string) ([]generic.Timesheet, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+timesheetColumns+` FROM timesheets
		WHERE worker_id = ?
		ORDER BY week_start, site_id`,
		workerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query timesheets: %w", err)
	}
	defer rows.Close()

	var result []generic.Timesheet
	for rows.Next() {
		t, err := scanTimesheet(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func scanTimesheet(row rowScanner) (generic.Timesheet, error) {
	var (
		t                              generic.Timesheet
		weekStart, weekEnd, breakdown  string
		regular, overtime, total       string
		rate, pay, status              string
		reason, approvedBy, rejectedBy sql.NullString
		submittedAt, approvedAt        sql.NullString
		createdAt, updatedAt           string
	)
	err := row.Scan(
		&t.ID, &t.WorkerID, &t.SiteID,
		&weekStart, &weekEnd, &breakdown,
		&regular, &overtime, &total,
		&rate, &pay, &status,
		&reason, &submittedAt, &approvedBy, &approvedAt, &rejectedBy,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return t, err
	}

	if t.WeekStartDate, err = generic.ParseDate(weekStart); err != nil {
		return t, fmt.Errorf("timesheet %s: %w", t.ID, err)
	}
	if t.WeekEndDate, err = generic.ParseDate(weekEnd); err != nil {
		return t, fmt.Errorf("timesheet %s: %w", t.ID, err)
	}
	if t.DailyBreakdown, err = decodeBreakdown(breakdown); err != nil {
		return t, fmt.Errorf("timesheet %s: %w", t.ID, err)
	}

	t.RegularHours = parseHours(regular)
	t.OvertimeHours = parseHours(overtime)
	t.TotalHours = parseHours(total)
	t.HourlyRate = generic.MustParseDecimal(rate)
	t.TotalPay = generic.MustParseDecimal(pay)
	t.Status = generic.TimesheetStatus(status)
	t.RejectionReason = stringPtr(reason)
	t.SubmittedAt = timePtr(submittedAt)
	t.ApprovedBy = stringPtr(approvedBy)
	t.ApprovedAt = timePtr(approvedAt)
	t.RejectedBy = stringPtr(rejectedBy)
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return t, nil
}
