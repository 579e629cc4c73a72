package timesheet_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/workforce-engine/generic"
	"github.com/warp/workforce-engine/generic/store"
	"github.com/warp/workforce-engine/scheduling"
	"github.com/warp/workforce-engine/timesheet"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	monday  = generic.MustParseDate("2025-01-06")
	tuesday = generic.MustParseDate("2025-01-07")
	now     = time.Date(2025, time.January, 13, 12, 0, 0, 0, time.UTC)
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []generic.Event
}

func (r *recordingNotifier) Notify(_ context.Context, e generic.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingNotifier) Events() []generic.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]generic.Event(nil), r.events...)
}

type fixture struct {
	svc        *timesheet.Service
	mem        *store.TxMemory
	workers    *store.Workers
	attendance *store.Attendance
	notifier   *recordingNotifier
	scheduling *scheduling.Service
}

func newFixture(t *testing.T, policy generic.Policy) *fixture {
	t.Helper()
	f := &fixture{
		mem:        store.NewTxMemory(),
		workers:    store.NewWorkers(),
		attendance: store.NewAttendance(),
		notifier:   &recordingNotifier{},
	}
	f.scheduling = scheduling.NewService(f.mem, policy, nil)
	f.svc = timesheet.NewService(f.mem, f.workers, f.attendance, scheduling.NewRoster(f.mem), policy,
		timesheet.WithNotifier(f.notifier),
		timesheet.WithClock(func() time.Time { return now }),
	)
	return f
}

func shift(workerID, siteID string, day generic.Date, in, out string) generic.AttendanceRecord {
	r := generic.AttendanceRecord{WorkerID: workerID, SiteID: siteID, Date: day}
	if in != "" {
		v := generic.MustParseTimeOfDay(in)
		r.CheckIn = &v
	}
	if out != "" {
		v := generic.MustParseTimeOfDay(out)
		r.CheckOut = &v
	}
	return r
}

func hours(v float64) generic.Amount { return generic.Hours(v) }

// =============================================================================
// AGGREGATION
// =============================================================================

func TestAggregate_ElevenHourDay_EightPlusThree(t *testing.T) {
	agg := timesheet.NewAggregator(generic.DefaultPolicy()).Aggregate(
		[]generic.AttendanceRecord{shift("w", "s", monday, "08:00", "19:00")}, monday)

	require.Len(t, agg.Daily, 1)
	assert.True(t, agg.Daily[0].TotalHours.Equal(hours(11)))
	assert.True(t, agg.Daily[0].RegularHours.Equal(hours(8)))
	assert.True(t, agg.Daily[0].OvertimeHours.Equal(hours(3)))
	assert.True(t, agg.Total.Equal(hours(11)))
}

func TestAggregate_ExcludesOpenOvernightAndOutOfWeek(t *testing.T) {
	records := []generic.AttendanceRecord{
		shift("w", "s", monday, "08:00", ""),                  // still on site
		shift("w", "s", tuesday, "22:00", "06:00"),            // overnight, not wrapped
		shift("w", "s", monday.AddDays(7), "08:00", "16:00"),  // next week
		shift("w", "s", monday.AddDays(-1), "08:00", "16:00"), // previous Sunday
		shift("w", "s", monday.AddDays(2), "", ""),            // no-show
		shift("w", "s", monday.AddDays(3), "07:30", "12:00"),
	}
	agg := timesheet.NewAggregator(generic.DefaultPolicy()).Aggregate(records, monday)

	require.Len(t, agg.Daily, 1)
	assert.Equal(t, "2025-01-09", agg.Daily[0].Date.String())
	assert.True(t, agg.Total.Equal(hours(4.5)))
	assert.True(t, agg.Overtime.IsZero())
}

func TestAggregate_SameDayRecordsMerge(t *testing.T) {
	// Split shift: 06:00-10:00 and 12:00-19:00 is 11 worked hours
	records := []generic.AttendanceRecord{
		shift("w", "s", monday, "12:00", "19:00"),
		shift("w", "s", monday, "06:00", "10:00"),
	}
	agg := timesheet.NewAggregator(generic.DefaultPolicy()).Aggregate(records, monday)

	require.Len(t, agg.Daily, 1)
	d := agg.Daily[0]
	assert.Equal(t, "06:00", d.CheckIn.String())
	assert.Equal(t, "19:00", d.CheckOut.String())
	assert.True(t, d.TotalHours.Equal(hours(11)))
	assert.True(t, d.OvertimeHours.Equal(hours(3)))
}

func TestAggregate_SortedAndRounded(t *testing.T) {
	records := []generic.AttendanceRecord{
		shift("w", "s", tuesday, "08:00", "08:20"),
		shift("w", "s", monday, "08:00", "09:00"),
	}
	agg := timesheet.NewAggregator(generic.DefaultPolicy()).Aggregate(records, monday)

	require.Len(t, agg.Daily, 2)
	assert.Equal(t, monday, agg.Daily[0].Date)
	assert.Equal(t, "0.33", agg.Daily[1].TotalHours.Value.String())
	assert.Equal(t, "1.33", agg.Total.Value.String())
}

// =============================================================================
// GENERATE
// =============================================================================

func TestGenerate_Week20250106_WithLunchBreak(t *testing.T) {
	// GIVEN: Mon 08:00-17:00, Tue 08:00-20:00, one unpaid hour per day
	// WHEN: Generating week 2025-01-06
	// THEN: 16 regular + 3 overtime = 19 total

	p := generic.DefaultPolicy()
	p.UnpaidBreakMinutes = 60
	f := newFixture(t, p)
	f.workers.SetRate("W", generic.MustParseDecimal("20"))
	f.attendance.Record(
		shift("W", "A", monday, "08:00", "17:00"),
		shift("W", "A", tuesday, "08:00", "20:00"),
	)

	ts, err := f.svc.Generate(context.Background(), "W", "A", monday)
	require.NoError(t, err)

	assert.True(t, ts.RegularHours.Equal(hours(16)), "regular = %s", ts.RegularHours.Value)
	assert.True(t, ts.OvertimeHours.Equal(hours(3)), "overtime = %s", ts.OvertimeHours.Value)
	assert.True(t, ts.TotalHours.Equal(hours(19)), "total = %s", ts.TotalHours.Value)
	assert.Equal(t, "2025-01-12", ts.WeekEndDate.String())
	assert.Equal(t, generic.TimesheetDraft, ts.Status)
	require.Len(t, ts.DailyBreakdown, 2)
	assert.True(t, ts.DailyBreakdown[0].OvertimeHours.IsZero())
	assert.True(t, ts.DailyBreakdown[1].OvertimeHours.Equal(hours(3)))

	// 16*20 + 3*20*1.5
	assert.Equal(t, "410", ts.TotalPay.String())
	assert.Equal(t, "20", ts.HourlyRate.String())
}

func TestGenerate_Idempotent(t *testing.T) {
	f := newFixture(t, generic.DefaultPolicy())
	f.workers.SetRate("W", generic.MustParseDecimal("20"))
	f.attendance.Record(shift("W", "A", monday, "08:00", "19:00"))
	ctx := context.Background()

	first, err := f.svc.Generate(ctx, "W", "A", monday)
	require.NoError(t, err)
	second, err := f.svc.Generate(ctx, "W", "A", monday)
	require.NoError(t, err)

	assert.Equal(t, first, second, "unchanged input yields identical fields")

	list, err := f.svc.ListByWorker(ctx, "W")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestGenerate_TimestampsStoredInUTC(t *testing.T) {
	// GIVEN: A clock reading in a non-UTC zone
	eastern := time.FixedZone("EST", -5*60*60)
	local := time.Date(2025, time.January, 13, 21, 30, 0, 0, eastern)
	mem := store.NewTxMemory()
	workers := store.NewWorkers()
	workers.SetRate("W", generic.MustParseDecimal("20"))
	attendance := store.NewAttendance()
	attendance.Record(shift("W", "A", monday, "08:00", "16:00"))
	svc := timesheet.NewService(mem, workers, attendance, scheduling.NewRoster(mem), generic.DefaultPolicy(),
		timesheet.WithClock(func() time.Time { return local }),
	)

	// WHEN: The week is generated
	ts, err := svc.Generate(context.Background(), "W", "A", monday)
	require.NoError(t, err)

	// THEN: Timestamps are the same instant, in UTC
	assert.Equal(t, time.UTC, ts.CreatedAt.Location())
	assert.Equal(t, time.UTC, ts.UpdatedAt.Location())
	assert.True(t, ts.CreatedAt.Equal(local))
}

func TestGenerate_DraftRecomputedInPlace(t *testing.T) {
	f := newFixture(t, generic.DefaultPolicy())
	f.workers.SetRate("W", generic.MustParseDecimal("20"))
	f.attendance.Record(shift("W", "A", monday, "08:00", "16:00"))
	ctx := context.Background()

	first, err := f.svc.Generate(ctx, "W", "A", monday)
	require.NoError(t, err)

	f.attendance.Record(shift("W", "A", tuesday, "08:00", "12:00"))
	second, err := f.svc.Generate(ctx, "W", "A", monday)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.TotalHours.Equal(hours(12)))
}

func TestGenerate_ConcurrentSameKey_SingleRow(t *testing.T) {
	f := newFixture(t, generic.DefaultPolicy())
	f.workers.SetRate("W", generic.MustParseDecimal("20"))
	f.attendance.Record(shift("W", "A", monday, "08:00", "16:00"))
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 10)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ts, err := f.svc.Generate(ctx, "W", "A", monday)
			if err == nil {
				ids[i] = ts.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	list, err := f.svc.ListByWorker(ctx, "W")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestGenerate_Validation(t *testing.T) {
	f := newFixture(t, generic.DefaultPolicy())
	f.workers.SetRate("W", generic.MustParseDecimal("20"))
	ctx := context.Background()

	_, err := f.svc.Generate(ctx, "W", "A", tuesday)
	var ve *generic.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "weekStartDate", ve.Field)

	_, err = f.svc.Generate(ctx, "nobody", "A", monday)
	assert.True(t, generic.IsNotFound(err))
}

func TestGenerate_SundayWeekPolicy(t *testing.T) {
	p := generic.DefaultPolicy()
	p.WeekStart = time.Sunday
	f := newFixture(t, p)
	f.workers.SetRate("W", generic.MustParseDecimal("20"))

	_, err := f.svc.Generate(context.Background(), "W", "A", monday)
	assert.Equal(t, generic.KindValidation, generic.KindOf(err))

	ts, err := f.svc.Generate(context.Background(), "W", "A", monday.AddDays(-1))
	require.NoError(t, err)
	assert.Equal(t, "2025-01-11", ts.WeekEndDate.String())
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func generated(t *testing.T, f *fixture) *generic.Timesheet {
	t.Helper()
	f.workers.SetRate("W", generic.MustParseDecimal("20"))
	f.attendance.Record(shift("W", "A", monday, "08:00", "16:00"))
	ts, err := f.svc.Generate(context.Background(), "W", "A", monday)
	require.NoError(t, err)
	return ts
}

func TestLifecycle_SubmitApprove(t *testing.T) {
	f := newFixture(t, generic.DefaultPolicy())
	ctx := context.Background()
	ts := generated(t, f)

	// approve before submit
	_, err := f.svc.Approve(ctx, ts.ID, "mgr")
	var se *generic.InvalidStateError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "draft", se.Current)

	submitted, err := f.svc.Submit(ctx, ts.ID)
	require.NoError(t, err)
	assert.Equal(t, generic.TimesheetSubmitted, submitted.Status)
	require.NotNil(t, submitted.SubmittedAt)

	_, err = f.svc.Submit(ctx, ts.ID)
	assert.ErrorIs(t, err, generic.ErrInvalidState, "submit requires draft")

	approved, err := f.svc.Approve(ctx, ts.ID, "mgr")
	require.NoError(t, err)
	assert.Equal(t, generic.TimesheetApproved, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, "mgr", *approved.ApprovedBy)
	assert.Equal(t, now, *approved.ApprovedAt)

	// approved is terminal
	for name, op := range map[string]func() error{
		"approve":  func() error { _, err := f.svc.Approve(ctx, ts.ID, "mgr"); return err },
		"reject":   func() error { _, err := f.svc.Reject(ctx, ts.ID, "late", "mgr"); return err },
		"reopen":   func() error { _, err := f.svc.Reopen(ctx, ts.ID); return err },
		"generate": func() error { _, err := f.svc.Generate(ctx, "W", "A", monday); return err },
	} {
		assert.ErrorIs(t, op(), generic.ErrInvalidState, name)
	}

	events := f.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, generic.EventTimesheetApproved, events[0].Type)
	assert.Equal(t, ts.ID, events[0].SubjectID)
}

func TestLifecycle_RejectThenRegenerate(t *testing.T) {
	f := newFixture(t, generic.DefaultPolicy())
	ctx := context.Background()
	ts := generated(t, f)

	_, err := f.svc.Submit(ctx, ts.ID)
	require.NoError(t, err)

	_, err = f.svc.Reject(ctx, ts.ID, "", "mgr")
	assert.Equal(t, generic.KindValidation, generic.KindOf(err))

	rejected, err := f.svc.Reject(ctx, ts.ID, "missing Tuesday", "mgr")
	require.NoError(t, err)
	assert.Equal(t, generic.TimesheetRejected, rejected.Status)
	assert.Equal(t, "missing Tuesday", *rejected.RejectionReason)

	// Corrected attendance, then regenerate
	f.attendance.Record(shift("W", "A", tuesday, "08:00", "16:00"))
	regenerated, err := f.svc.Generate(ctx, "W", "A", monday)
	require.NoError(t, err)
	assert.Equal(t, ts.ID, regenerated.ID)
	assert.Equal(t, generic.TimesheetDraft, regenerated.Status)
	assert.Nil(t, regenerated.RejectionReason)
	assert.True(t, regenerated.TotalHours.Equal(hours(16)))

	events := f.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, generic.EventTimesheetRejected, events[0].Type)
	assert.Equal(t, "missing Tuesday", events[0].Payload["reason"])
}

func TestLifecycle_RejectedRegenerationDisabled(t *testing.T) {
	p := generic.DefaultPolicy()
	p.RegenerateRejected = false
	f := newFixture(t, p)
	ctx := context.Background()
	ts := generated(t, f)

	_, err := f.svc.Submit(ctx, ts.ID)
	require.NoError(t, err)
	_, err = f.svc.Reject(ctx, ts.ID, "wrong site", "mgr")
	require.NoError(t, err)

	_, err = f.svc.Generate(ctx, "W", "A", monday)
	assert.ErrorIs(t, err, generic.ErrInvalidState)

	reopened, err := f.svc.Reopen(ctx, ts.ID)
	require.NoError(t, err)
	assert.Equal(t, generic.TimesheetDraft, reopened.Status)
	assert.Nil(t, reopened.RejectionReason)
	assert.True(t, reopened.TotalHours.Equal(hours(8)), "figures kept")
}

func TestSubmit_EmptyTimesheet(t *testing.T) {
	f := newFixture(t, generic.DefaultPolicy())
	f.workers.SetRate("W", generic.MustParseDecimal("20"))
	ctx := context.Background()

	ts, err := f.svc.Generate(ctx, "W", "A", monday)
	require.NoError(t, err)
	assert.Empty(t, ts.DailyBreakdown)

	_, err = f.svc.Submit(ctx, ts.ID)
	assert.Equal(t, generic.KindValidation, generic.KindOf(err))

	// Allowed when the policy says so
	p := generic.DefaultPolicy()
	p.RejectEmptySubmit = false
	lenient := newFixture(t, p)
	lenient.workers.SetRate("W", generic.MustParseDecimal("20"))
	ts, err = lenient.svc.Generate(ctx, "W", "A", monday)
	require.NoError(t, err)
	_, err = lenient.svc.Submit(ctx, ts.ID)
	assert.NoError(t, err)
}

func TestTimesheet_UnknownID(t *testing.T) {
	f := newFixture(t, generic.DefaultPolicy())
	_, err := f.svc.Submit(context.Background(), "missing")
	assert.True(t, generic.IsNotFound(err))
	_, err = f.svc.Get(context.Background(), "missing")
	assert.True(t, generic.IsNotFound(err))
}

// =============================================================================
// BATCH
// =============================================================================

func TestGenerateForSite_PartialFailure(t *testing.T) {
	// GIVEN: Three workers on Site A, one without a rate on file
	// WHEN: Generating the site's week
	// THEN: Two succeed, the third is reported with kind not_found

	f := newFixture(t, generic.DefaultPolicy())
	ctx := context.Background()

	for _, w := range []string{"w-1", "w-2", "w-3"} {
		_, err := f.scheduling.Create(ctx, scheduling.CreateInput{
			Assignee:    generic.Assignee{Type: generic.AssigneeWorker, ID: w},
			Entity:      generic.Entity{Type: generic.EntitySite, ID: "A"},
			StartDate:   generic.MustParseDate("2025-01-01"),
			HoursPerDay: generic.MustParseDecimal("8"),
		})
		require.NoError(t, err)
		f.attendance.Record(shift(w, "A", monday, "08:00", "16:00"))
	}
	f.workers.SetRate("w-1", generic.MustParseDecimal("20"))
	f.workers.SetRate("w-3", generic.MustParseDecimal("25"))

	result, err := f.svc.GenerateForSite(ctx, "A", monday)
	require.NoError(t, err)

	require.Len(t, result.Succeeded, 2)
	assert.Equal(t, "w-1", result.Succeeded[0].WorkerID)
	assert.Equal(t, "w-3", result.Succeeded[1].WorkerID)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "w-2", result.Failed[0].WorkerID)
	assert.Equal(t, generic.KindNotFound, result.Failed[0].Kind)
	assert.NotEmpty(t, result.Failed[0].Error)
}

func TestGenerateForSite_BadWeekFailsUpFront(t *testing.T) {
	f := newFixture(t, generic.DefaultPolicy())
	_, err := f.svc.GenerateForSite(context.Background(), "A", tuesday)
	assert.Equal(t, generic.KindValidation, generic.KindOf(err))
}

type failingRoster struct{}

func (failingRoster) ActiveWorkers(context.Context, string, generic.Period) ([]string, error) {
	return nil, errors.New("roster unavailable")
}

func TestGenerateForSite_RosterError(t *testing.T) {
	mem := store.NewTxMemory()
	svc := timesheet.NewService(mem, store.NewWorkers(), store.NewAttendance(), failingRoster{}, generic.DefaultPolicy())

	_, err := svc.GenerateForSite(context.Background(), "A", monday)
	require.Error(t, err)
	assert.Equal(t, generic.KindInternal, generic.KindOf(err))
	assert.Contains(t, err.Error(), fmt.Sprintf("site %s", "A"))
}
