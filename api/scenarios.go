/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for demos. Each scenario creates workers, site bookings and
	attendance that demonstrate one feature of the engine.

AVAILABLE SCENARIOS:

	double-booking:   Worker on Site A all January, also booked on Site B
	                  Jan 15-20 (advisory conflict)
	weekly-timesheet: One worker, week of 2025-01-06, with an overtime day
	site-payroll:     Three workers on one site, one without a rate
	                  (partial batch failure)

HOW SCENARIOS WORK:
 1. Reset database (drop and re-migrate)
 2. Create workers with hourly rates
 3. Book them through the scheduling service (history is recorded)
 4. Record attendance

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "weekly-timesheet"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add it to the loaders map

NOTE:

	Scenarios reset the database and use fixed January 2025 dates, so a
	configured lock horizon will refuse the bookings, and double-booking
	needs advisory conflicts. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler wiring
  - store/sqlite/collaborators.go: Workers and attendance tables
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/workforce-engine/generic"
	"github.com/warp/workforce-engine/scheduling"
	"github.com/warp/workforce-engine/store/sqlite"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "double-booking",
		Name:        "Double Booking",
		Description: "Worker on Site A for January, also booked on Site B Jan 15-20",
	},
	{
		ID:          "weekly-timesheet",
		Name:        "Weekly Timesheet",
		Description: "One worker, week of 2025-01-06, with an overtime day",
	},
	{
		ID:          "site-payroll",
		Name:        "Site Payroll",
		Description: "Three workers on one site; one has no hourly rate",
	},
}

func (h *Handler) loaders() map[string]func(context.Context) error {
	return map[string]func(context.Context) error{
		"double-booking":   h.loadDoubleBookingScenario,
		"weekly-timesheet": h.loadWeeklyTimesheetScenario,
		"site-payroll":     h.loadSitePayrollScenario,
	}
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	load, ok := h.loaders()[req.ScenarioID]
	if !ok {
		h.writeDomainError(w, r, generic.Invalid("scenario_id", "unknown scenario %q", req.ScenarioID))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	h.currentScenario = ""
	if err := h.Store.Reset(ctx); err != nil {
		h.writeDomainError(w, r, fmt.Errorf("reset database: %w", err))
		return
	}
	if err := load(ctx); err != nil {
		h.writeDomainError(w, r, fmt.Errorf("load scenario %s: %w", req.ScenarioID, err))
		return
	}
	h.currentScenario = req.ScenarioID

	h.logger.Info("scenario loaded", zap.String("scenario", req.ScenarioID))
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadDoubleBookingScenario(ctx context.Context) error {
	if err := h.saveWorkers(ctx, sqlite.Worker{ID: "w-ana", Name: "Ana Reyes", HourlyRate: decimal.NewFromInt(20)}); err != nil {
		return err
	}

	janEnd := generic.MustParseDate("2025-01-31")
	if err := h.book(ctx, "w-ana", "site-a", "2025-01-01", &janEnd, "January fit-out"); err != nil {
		return err
	}

	// Advisory mode: the overlapping booking is stored and the overlap is
	// reported by /api/conflicts/check.
	siteBEnd := generic.MustParseDate("2025-01-20")
	return h.book(ctx, "w-ana", "site-b", "2025-01-15", &siteBEnd, "Emergency cover")
}

func (h *Handler) loadWeeklyTimesheetScenario(ctx context.Context) error {
	if err := h.saveWorkers(ctx, sqlite.Worker{ID: "w-ana", Name: "Ana Reyes", HourlyRate: decimal.NewFromInt(20)}); err != nil {
		return err
	}

	janEnd := generic.MustParseDate("2025-01-31")
	if err := h.book(ctx, "w-ana", "site-a", "2025-01-01", &janEnd, ""); err != nil {
		return err
	}

	return h.Store.RecordAttendance(ctx,
		shift("w-ana", "site-a", "2025-01-06", "08:00", "17:00"),
		shift("w-ana", "site-a", "2025-01-07", "08:00", "20:00"),
		shift("w-ana", "site-a", "2025-01-08", "07:30", "16:00"),
		// Forgot to clock out: excluded from the timesheet.
		openShift("w-ana", "site-a", "2025-01-09", "08:00"),
	)
}

func (h *Handler) loadSitePayrollScenario(ctx context.Context) error {
	err := h.saveWorkers(ctx,
		sqlite.Worker{ID: "w-ana", Name: "Ana Reyes", HourlyRate: decimal.NewFromInt(20)},
		sqlite.Worker{ID: "w-ben", Name: "Ben Okafor", HourlyRate: decimal.RequireFromString("24.50")},
	)
	if err != nil {
		return err
	}

	janEnd := generic.MustParseDate("2025-01-31")
	for _, workerID := range []string{"w-ana", "w-ben", "w-cho"} {
		if err := h.book(ctx, workerID, "site-a", "2025-01-01", &janEnd, ""); err != nil {
			return err
		}
	}

	var records []generic.AttendanceRecord
	for _, day := range []string{"2025-01-06", "2025-01-07", "2025-01-08", "2025-01-09", "2025-01-10"} {
		records = append(records,
			shift("w-ana", "site-a", day, "08:00", "16:00"),
			shift("w-ben", "site-a", day, "07:00", "18:00"),
			shift("w-cho", "site-a", day, "09:00", "17:00"),
		)
	}
	return h.Store.RecordAttendance(ctx, records...)
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) saveWorkers(ctx context.Context, workers ...sqlite.Worker) error {
	for _, w := range workers {
		if err := h.Store.SaveWorker(ctx, w); err != nil {
			return fmt.Errorf("save worker %s: %w", w.ID, err)
		}
	}
	return nil
}

func (h *Handler) book(ctx context.Context, workerID, siteID, start string, end *generic.Date, notes string) error {
	_, err := h.Scheduling.Create(ctx, scheduling.CreateInput{
		Assignee:    generic.Assignee{Type: generic.AssigneeWorker, ID: workerID},
		Entity:      generic.Entity{Type: generic.EntitySite, ID: siteID},
		StartDate:   generic.MustParseDate(start),
		EndDate:     end,
		HoursPerDay: decimal.NewFromInt(8),
		Notes:       notes,
	})
	if err != nil {
		return fmt.Errorf("book %s on %s: %w", workerID, siteID, err)
	}
	return nil
}

func shift(workerID, siteID, date, in, out string) generic.AttendanceRecord {
	checkIn := generic.MustParseTimeOfDay(in)
	checkOut := generic.MustParseTimeOfDay(out)
	return generic.AttendanceRecord{
		WorkerID: workerID,
		SiteID:   siteID,
		Date:     generic.MustParseDate(date),
		CheckIn:  &checkIn,
		CheckOut: &checkOut,
	}
}

func openShift(workerID, siteID, date, in string) generic.AttendanceRecord {
	r := shift(workerID, siteID, date, in, in)
	r.CheckOut = nil
	return r
}
