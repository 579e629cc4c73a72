package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/warp/workforce-engine/generic"
)

// =============================================================================
// ASSIGNMENTS
// =============================================================================

const assignmentColumns = `id, assignee_type, assignee_id, entity_type, entity_id,
	start_date, end_date, hours_per_day, status, notes, created_at, updated_at`

func insertAssignment(ctx context.Context, q querier, a generic.Assignment) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO assignments (`+assignmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.Assignee.Type, a.Assignee.ID,
		a.Entity.Type, a.Entity.ID,
		formatDate(a.StartDate), nullDate(a.EndDate),
		a.HoursPerDay.String(),
		a.Status, a.Notes,
		formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.ErrDuplicateKey
		}
		return fmt.Errorf("failed to insert assignment: %w", err)
	}
	return nil
}

// updateAssignment writes the mutable fields only. Assignee, entity and
// dates are fixed at creation.
func updateAssignment(ctx context.Context, q querier, a generic.Assignment) error {
	res, err := q.ExecContext(ctx, `
		UPDATE assignments SET status = ?, notes = ?, updated_at = ?
		WHERE id = ?`,
		a.Status, a.Notes, formatTime(a.UpdatedAt), a.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update assignment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update assignment: %w", err)
	}
	if n == 0 {
		return &generic.NotFoundError{Record: "assignment", ID: a.ID}
	}
	return nil
}

func getAssignment(ctx context.Context, q querier, id string) (*generic.Assignment, error) {
	row := q.QueryRowContext(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id = ?`, id)
	a, err := scanAssignment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func listAssignmentsByAssignee(ctx context.Context, q querier, assignee generic.Assignee, activeOnly bool) ([]generic.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments
		WHERE assignee_type = ? AND assignee_id = ?`
	args := []any{assignee.Type, assignee.ID}
	if activeOnly {
		query += ` AND status = ?`
		args = append(args, generic.AssignmentActive)
	}
	query += ` ORDER BY start_date, id`
	return queryAssignments(ctx, q, query, args...)
}

func listActiveAssignmentsByEntity(ctx context.Context, q querier, entity generic.Entity) ([]generic.Assignment, error) {
	return queryAssignments(ctx, q, `
		SELECT `+assignmentColumns+` FROM assignments
		WHERE entity_type = ? AND entity_id = ? AND status = ?
		ORDER BY start_date, id`,
		entity.Type, entity.ID, generic.AssignmentActive,
	)
}

func queryAssignments(ctx context.Context, q querier, query string, args ...any) ([]generic.Assignment, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	var result []generic.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssignment(row rowScanner) (generic.Assignment, error) {
	var (
		a                                generic.Assignment
		assigneeType, entityType, status string
		startDate, hours                 string
		endDate                          sql.NullString
		createdAt, updatedAt             string
	)
	err := row.Scan(
		&a.ID,
		&assigneeType, &a.Assignee.ID,
		&entityType, &a.Entity.ID,
		&startDate, &endDate, &hours,
		&status, &a.Notes,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return a, err
	}

	a.Assignee.Type = generic.AssigneeType(assigneeType)
	a.Entity.Type = generic.EntityType(entityType)
	a.Status = generic.AssignmentStatus(status)
	a.HoursPerDay = generic.MustParseDecimal(hours)
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)

	if a.StartDate, err = generic.ParseDate(startDate); err != nil {
		return a, fmt.Errorf("assignment %s: %w", a.ID, err)
	}
	if endDate.Valid {
		end, err := generic.ParseDate(endDate.String)
		if err != nil {
			return a, fmt.Errorf("assignment %s: %w", a.ID, err)
		}
		a.EndDate = &end
	}
	return a, nil
}

// =============================================================================
// HISTORY (append-only)
// =============================================================================

func appendHistory(ctx context.Context, q querier, e generic.HistoryEntry) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO assignment_history
		(id, assignment_id, action, previous_assignee_id, new_assignee_id, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.AssignmentID, e.Action,
		nullString(e.PreviousAssigneeID), nullString(e.NewAssigneeID), nullString(e.Reason),
		formatTime(e.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.ErrDuplicateKey
		}
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// history returns entries in insertion order.
func history(ctx context.Context, q querier, assignmentID string) ([]generic.HistoryEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, assignment_id, action, previous_assignee_id, new_assignee_id, reason, created_at
		FROM assignment_history
		WHERE assignment_id = ?
		ORDER BY seq`,
		assignmentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	result := []generic.HistoryEntry{}
	for rows.Next() {
		var (
			e                  generic.HistoryEntry
			action, createdAt  string
			prev, next, reason sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.AssignmentID, &action, &prev, &next, &reason, &createdAt); err != nil {
			return nil, err
		}
		e.Action = generic.HistoryAction(action)
		e.PreviousAssigneeID = stringPtr(prev)
		e.NewAssigneeID = stringPtr(next)
		e.Reason = stringPtr(reason)
		e.CreatedAt = parseTime(createdAt)
		result = append(result, e)
	}
	return result, rows.Err()
}
