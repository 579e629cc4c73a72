/*
sqlite_test.go - Tests for the SQLite store

Tests for:
- Schema migration and Reset
- Assignment round trip and active filtering
- Append-only history (ordering and trigger enforcement)
- Timesheet upsert by (worker, site, week)
- Transaction rollback
- Worker directory and attendance collaborators
*/
package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/workforce-engine/generic"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

var testNow = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

func testAssignment(id, workerID, start string, end *generic.Date) generic.Assignment {
	return generic.Assignment{
		ID:          id,
		Assignee:    generic.Assignee{Type: generic.AssigneeWorker, ID: workerID},
		Entity:      generic.Entity{Type: generic.EntitySite, ID: "site-1"},
		StartDate:   generic.MustParseDate(start),
		EndDate:     end,
		HoursPerDay: decimal.NewFromInt(8),
		Status:      generic.AssignmentActive,
		CreatedAt:   testNow,
		UpdatedAt:   testNow,
	}
}

func testTimesheet(id string, status generic.TimesheetStatus) generic.Timesheet {
	week := generic.WeekOf(generic.MustParseDate("2025-01-06"))
	return generic.Timesheet{
		ID:            id,
		WorkerID:      "w-1",
		SiteID:        "site-1",
		WeekStartDate: week.Start,
		WeekEndDate:   week.End,
		DailyBreakdown: []generic.DailyEntry{{
			Date:          week.Start,
			CheckIn:       generic.MustParseTimeOfDay("07:00"),
			CheckOut:      generic.MustParseTimeOfDay("18:00"),
			TotalHours:    generic.Hours(11),
			RegularHours:  generic.Hours(8),
			OvertimeHours: generic.Hours(3),
		}},
		RegularHours:  generic.Hours(8),
		OvertimeHours: generic.Hours(3),
		TotalHours:    generic.Hours(11),
		HourlyRate:    decimal.NewFromInt(20),
		TotalPay:      decimal.NewFromInt(250),
		Status:        status,
		CreatedAt:     testNow,
		UpdatedAt:     testNow,
	}
}

// =============================================================================
// MIGRATIONS
// =============================================================================

func TestNew_AppliesMigrations(t *testing.T) {
	store := newTestStore(t)

	version, err := store.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
}

func TestReset_ClearsData(t *testing.T) {
	// GIVEN: A store with one assignment
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.InsertAssignment(ctx, testAssignment("a-1", "w-1", "2025-01-15", nil)))

	// WHEN: The store is reset
	require.NoError(t, store.Reset(ctx))

	// THEN: The schema is back and empty
	got, err := store.GetAssignment(ctx, "a-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	version, err := store.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

func TestAssignment_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	end := generic.MustParseDate("2025-01-20")
	in := testAssignment("a-1", "w-1", "2025-01-15", &end)
	in.Notes = "morning shift"
	require.NoError(t, store.InsertAssignment(ctx, in))

	got, err := store.GetAssignment(ctx, "a-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, in.Assignee, got.Assignee)
	assert.Equal(t, in.Entity, got.Entity)
	assert.Equal(t, "2025-01-15", got.StartDate.String())
	require.NotNil(t, got.EndDate)
	assert.Equal(t, "2025-01-20", got.EndDate.String())
	assert.True(t, got.HoursPerDay.Equal(decimal.NewFromInt(8)))
	assert.Equal(t, "morning shift", got.Notes)
	assert.True(t, got.CreatedAt.Equal(testNow))
}

func TestAssignment_DuplicateID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := testAssignment("a-1", "w-1", "2025-01-15", nil)
	require.NoError(t, store.InsertAssignment(ctx, a))

	err := store.InsertAssignment(ctx, a)
	assert.ErrorIs(t, err, generic.ErrDuplicateKey)
}

func TestAssignment_UpdateUnknown(t *testing.T) {
	store := newTestStore(t)

	err := store.UpdateAssignment(context.Background(), testAssignment("missing", "w-1", "2025-01-15", nil))
	assert.True(t, generic.IsNotFound(err))
}

func TestAssignment_ActiveFilter(t *testing.T) {
	// GIVEN: Two assignments for w-1, one of them completed
	store := newTestStore(t)
	ctx := context.Background()
	worker := generic.Assignee{Type: generic.AssigneeWorker, ID: "w-1"}

	require.NoError(t, store.InsertAssignment(ctx, testAssignment("a-2", "w-1", "2025-02-01", nil)))
	done := testAssignment("a-1", "w-1", "2025-01-01", nil)
	require.NoError(t, store.InsertAssignment(ctx, done))
	done.Status = generic.AssignmentCompleted
	require.NoError(t, store.UpdateAssignment(ctx, done))

	// THEN: The full list is ordered by start date, the active list skips a-1
	all, err := store.ListAssignmentsByAssignee(ctx, worker)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a-1", all[0].ID)
	assert.Equal(t, generic.AssignmentCompleted, all[0].Status)

	active, err := store.ListActiveAssignmentsByAssignee(ctx, worker)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "a-2", active[0].ID)

	onSite, err := store.ListActiveAssignmentsByEntity(ctx, generic.Entity{Type: generic.EntitySite, ID: "site-1"})
	require.NoError(t, err)
	assert.Len(t, onSite, 1)
}

// =============================================================================
// HISTORY
// =============================================================================

func TestHistory_OrderedAndAppendOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.InsertAssignment(ctx, testAssignment("a-1", "w-1", "2025-01-15", nil)))

	prev, next, reason := "w-1", "w-2", "sick"
	entries := []generic.HistoryEntry{
		{ID: "h-2", AssignmentID: "a-1", Action: generic.HistoryCreated, CreatedAt: testNow},
		{ID: "h-1", AssignmentID: "a-1", Action: generic.HistoryReassigned,
			PreviousAssigneeID: &prev, NewAssigneeID: &next, Reason: &reason, CreatedAt: testNow},
	}
	for _, e := range entries {
		require.NoError(t, store.AppendHistory(ctx, e))
	}

	// THEN: Entries come back in insertion order, not id order
	got, err := store.History(ctx, "a-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "h-2", got[0].ID)
	assert.Equal(t, generic.HistoryReassigned, got[1].Action)
	require.NotNil(t, got[1].PreviousAssigneeID)
	assert.Equal(t, "w-1", *got[1].PreviousAssigneeID)
	assert.Nil(t, got[0].Reason)

	// AND: The schema refuses to rewrite or drop entries
	_, err = store.db.ExecContext(ctx, "UPDATE assignment_history SET reason = 'edited'")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")

	_, err = store.db.ExecContext(ctx, "DELETE FROM assignment_history")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")
}

func TestHistory_EmptyIsNotNil(t *testing.T) {
	store := newTestStore(t)

	got, err := store.History(context.Background(), "nothing")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

// =============================================================================
// TIMESHEETS
// =============================================================================

func TestTimesheet_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	in := testTimesheet("ts-1", generic.TimesheetDraft)
	id, err := store.SaveTimesheet(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "ts-1", id)

	got, err := store.GetTimesheet(ctx, "ts-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "2025-01-12", got.WeekEndDate.String())
	assert.True(t, got.TotalHours.Value.Equal(decimal.NewFromInt(11)))
	assert.True(t, got.TotalPay.Equal(decimal.NewFromInt(250)))
	require.Len(t, got.DailyBreakdown, 1)
	assert.Equal(t, "07:00", got.DailyBreakdown[0].CheckIn.String())
	assert.True(t, got.DailyBreakdown[0].OvertimeHours.Value.Equal(decimal.NewFromInt(3)))
	assert.Nil(t, got.RejectionReason)
}

func TestTimesheet_SaveByKeyKeepsExistingID(t *testing.T) {
	// GIVEN: A draft stored under ts-1
	store := newTestStore(t)
	ctx := context.Background()
	_, err := store.SaveTimesheet(ctx, testTimesheet("ts-1", generic.TimesheetDraft))
	require.NoError(t, err)

	// WHEN: Another id is saved for the same worker, site and week
	second := testTimesheet("ts-2", generic.TimesheetDraft)
	second.TotalPay = decimal.NewFromInt(300)
	id, err := store.SaveTimesheet(ctx, second)
	require.NoError(t, err)

	// THEN: The existing row is updated in place
	assert.Equal(t, "ts-1", id)
	list, err := store.ListTimesheetsByWorker(ctx, "w-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].TotalPay.Equal(decimal.NewFromInt(300)))

	byKey, err := store.GetTimesheetByKey(ctx, second.Key())
	require.NoError(t, err)
	require.NotNil(t, byKey)
	assert.Equal(t, "ts-1", byKey.ID)
}

func TestTimesheet_RejectedNeedsReason(t *testing.T) {
	store := newTestStore(t)

	_, err := store.SaveTimesheet(context.Background(), testTimesheet("ts-1", generic.TimesheetRejected))
	assert.Error(t, err)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(tx generic.Store) error {
		if err := tx.InsertAssignment(ctx, testAssignment("a-1", "w-1", "2025-01-15", nil)); err != nil {
			return err
		}
		if _, err := tx.SaveTimesheet(ctx, testTimesheet("ts-1", generic.TimesheetDraft)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	a, err := store.GetAssignment(ctx, "a-1")
	require.NoError(t, err)
	assert.Nil(t, a)

	ts, err := store.GetTimesheet(ctx, "ts-1")
	require.NoError(t, err)
	assert.Nil(t, ts)
}

func TestWithTx_ReadsOwnWrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(tx generic.Store) error {
		if err := tx.InsertAssignment(ctx, testAssignment("a-1", "w-1", "2025-01-15", nil)); err != nil {
			return err
		}
		got, err := tx.GetAssignment(ctx, "a-1")
		if err != nil {
			return err
		}
		if got == nil {
			return errors.New("insert not visible inside transaction")
		}
		return tx.AppendHistory(ctx, generic.HistoryEntry{
			ID: "h-1", AssignmentID: "a-1", Action: generic.HistoryCreated, CreatedAt: testNow,
		})
	})
	require.NoError(t, err)

	h, err := store.History(ctx, "a-1")
	require.NoError(t, err)
	assert.Len(t, h, 1)
}

// =============================================================================
// COLLABORATORS
// =============================================================================

func TestWorkers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveWorker(ctx, Worker{ID: "w-1", Name: "Ana", HourlyRate: decimal.NewFromInt(20)}))
	require.NoError(t, store.SaveWorker(ctx, Worker{ID: "w-1", Name: "Ana", HourlyRate: decimal.RequireFromString("22.50")}))

	rate, err := store.HourlyRate(ctx, "w-1")
	require.NoError(t, err)
	assert.Equal(t, "22.5", rate.String())

	workers, err := store.ListWorkers(ctx)
	require.NoError(t, err)
	assert.Len(t, workers, 1)

	_, err = store.HourlyRate(ctx, "w-unknown")
	assert.Equal(t, generic.KindNotFound, generic.KindOf(err))
}

func TestAttendanceInRange(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	in := generic.MustParseTimeOfDay("07:00")
	out := generic.MustParseTimeOfDay("16:00")
	require.NoError(t, store.RecordAttendance(ctx,
		generic.AttendanceRecord{WorkerID: "w-1", SiteID: "site-1", Date: generic.MustParseDate("2025-01-07"), CheckIn: &in},
		generic.AttendanceRecord{WorkerID: "w-1", SiteID: "site-1", Date: generic.MustParseDate("2025-01-06"), CheckIn: &in, CheckOut: &out},
		generic.AttendanceRecord{WorkerID: "w-1", SiteID: "site-1", Date: generic.MustParseDate("2025-01-13"), CheckIn: &in, CheckOut: &out},
		generic.AttendanceRecord{WorkerID: "w-1", SiteID: "site-2", Date: generic.MustParseDate("2025-01-06"), CheckIn: &in, CheckOut: &out},
	))

	got, err := store.AttendanceInRange(ctx, "w-1", "site-1",
		generic.MustParseDate("2025-01-06"), generic.MustParseDate("2025-01-12"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2025-01-06", got[0].Date.String())
	require.NotNil(t, got[0].CheckOut)
	assert.Equal(t, "16:00", got[0].CheckOut.String())
	assert.Nil(t, got[1].CheckOut)
}
