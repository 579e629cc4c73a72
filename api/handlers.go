/*
handlers.go - HTTP API handlers for the workforce engine

PURPOSE:
  Exposes the scheduling and timesheet services via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Conflicts:
    POST   /api/conflicts/check                 Preview overlaps for a booking

  Assignments:
    POST   /api/assignments                     Create (strict via body)
    GET    /api/assignments?assignee_type=&assignee_id=
    GET    /api/assignments/{id}                Get one
    PUT    /api/assignments/{id}/complete       active -> completed
    PUT    /api/assignments/{id}/cancel         active -> cancelled
    POST   /api/assignments/{id}/reassign       active -> reassigned + new
    GET    /api/assignments/{id}/history        Append-only trail

  Timesheets:
    POST   /api/timesheets/generate             One worker, site, week
    POST   /api/timesheets/site/{siteId}/generate  Whole site roster
    GET    /api/timesheets?worker_id=
    GET    /api/timesheets/{id}
    PUT    /api/timesheets/{id}/submit|approve|reject|reopen

  Scenarios:
    GET    /api/scenarios                       List demo scenarios
    POST   /api/scenarios/load                  Load a demo scenario

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: SQLite (assignments, timesheets, workers, attendance)
  - Scheduling / Timesheets: domain services built over the store

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate shape (validator/v10 tags on request DTOs)
  3. Call the domain service
  4. Serialize response
  5. Map errors by kind

ERROR HANDLING:
  Errors are returned as {error, kind, details} with status:
  - 400: validation_error
  - 404: not_found
  - 409: invalid_state, conflict_detected
  - 500: internal

SECURITY NOTE:
  No authentication. Approver and rejecter ids are taken from the body as-is.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/workforce-engine/generic"
	"github.com/warp/workforce-engine/scheduling"
	"github.com/warp/workforce-engine/store/sqlite"
	"github.com/warp/workforce-engine/timesheet"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      *sqlite.Store
	Scheduling *scheduling.Service
	Timesheets *timesheet.Service

	validate *validator.Validate
	logger   *zap.Logger

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires both services over the SQLite store. notifier may be nil.
func NewHandler(store *sqlite.Store, policy generic.Policy, notifier generic.Notifier, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = generic.NopNotifier{}
	}
	return &Handler{
		Store: store,
		Scheduling: scheduling.NewService(store, policy, notifier,
			scheduling.WithLogger(logger.Named("scheduling")),
		),
		Timesheets: timesheet.NewService(store, store, store, scheduling.NewRoster(store), policy,
			timesheet.WithNotifier(notifier),
			timesheet.WithLogger(logger.Named("timesheet")),
		),
		validate: newValidator(),
		logger:   logger,
	}
}

// =============================================================================
// CONFLICT HANDLERS
// =============================================================================

// CheckConflicts previews overlaps without writing anything.
func (h *Handler) CheckConflicts(w http.ResponseWriter, r *http.Request) {
	var req ConflictCheckRequest
	if !h.decode(w, r, &req) {
		return
	}

	start, end, err := parseRange(req.StartDate, req.EndDate)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	conflicts, err := h.Scheduling.Detector().FindConflicts(r.Context(), generic.ConflictCandidate{
		Assignee:  generic.Assignee{Type: generic.AssigneeType(req.Assignee.Type), ID: req.Assignee.ID},
		StartDate: start,
		EndDate:   end,
		ExcludeID: req.ExcludeAssignmentID,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ConflictCheckResponse{
		HasConflicts: len(conflicts) > 0,
		Conflicts:    toConflictDTOs(conflicts),
	})
}

// =============================================================================
// ASSIGNMENT HANDLERS
// =============================================================================

// CreateAssignment books an assignee on a site or task.
func (h *Handler) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	var req CreateAssignmentRequest
	if !h.decode(w, r, &req) {
		return
	}

	start, end, err := parseRange(req.StartDate, req.EndDate)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	a, err := h.Scheduling.Create(r.Context(), scheduling.CreateInput{
		Assignee:    generic.Assignee{Type: generic.AssigneeType(req.Assignee.Type), ID: req.Assignee.ID},
		Entity:      generic.Entity{Type: generic.EntityType(req.Entity.Type), ID: req.Entity.ID},
		StartDate:   start,
		EndDate:     end,
		HoursPerDay: req.HoursPerDay,
		Notes:       req.Notes,
		Strict:      req.Strict,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAssignmentDTO(*a))
}

// ListAssignments returns every assignment of one assignee, any status.
func (h *Handler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.Scheduling.ListByAssignee(r.Context(), generic.Assignee{
		Type: generic.AssigneeType(q.Get("assignee_type")),
		ID:   q.Get("assignee_id"),
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAssignmentDTOs(list))
}

func (h *Handler) GetAssignment(w http.ResponseWriter, r *http.Request) {
	a, err := h.Scheduling.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAssignmentDTO(*a))
}

func (h *Handler) CompleteAssignment(w http.ResponseWriter, r *http.Request) {
	a, err := h.Scheduling.Complete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAssignmentDTO(*a))
}

func (h *Handler) CancelAssignment(w http.ResponseWriter, r *http.Request) {
	var req CancelAssignmentRequest
	if !h.decode(w, r, &req) {
		return
	}

	a, err := h.Scheduling.Cancel(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAssignmentDTO(*a))
}

// ReassignAssignment moves an active booking to another assignee and
// returns the new assignment.
func (h *Handler) ReassignAssignment(w http.ResponseWriter, r *http.Request) {
	var req ReassignRequest
	if !h.decode(w, r, &req) {
		return
	}

	a, err := h.Scheduling.Reassign(r.Context(), chi.URLParam(r, "id"), req.NewAssigneeID, req.Reason, req.Strict)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAssignmentDTO(*a))
}

func (h *Handler) GetAssignmentHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Scheduling.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toHistoryDTOs(entries))
}

// =============================================================================
// TIMESHEET HANDLERS
// =============================================================================

// GenerateTimesheet builds or refreshes the draft for one worker-week.
func (h *Handler) GenerateTimesheet(w http.ResponseWriter, r *http.Request) {
	var req GenerateTimesheetRequest
	if !h.decode(w, r, &req) {
		return
	}

	weekStart, err := parseDate("week_start_date", req.WeekStartDate)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	t, err := h.Timesheets.Generate(r.Context(), req.WorkerID, req.SiteID, weekStart)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTimesheetDTO(*t))
}

// GenerateSiteTimesheets runs generation for every worker on the roster.
// Per-worker failures are reported in the body; the status stays 200.
func (h *Handler) GenerateSiteTimesheets(w http.ResponseWriter, r *http.Request) {
	var req GenerateSiteRequest
	if !h.decode(w, r, &req) {
		return
	}

	weekStart, err := parseDate("week_start_date", req.WeekStartDate)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	result, err := h.Timesheets.GenerateForSite(r.Context(), chi.URLParam(r, "siteId"), weekStart)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchResultDTO(result))
}

func (h *Handler) ListTimesheets(w http.ResponseWriter, r *http.Request) {
	list, err := h.Timesheets.ListByWorker(r.Context(), r.URL.Query().Get("worker_id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTimesheetDTOs(list))
}

func (h *Handler) GetTimesheet(w http.ResponseWriter, r *http.Request) {
	t, err := h.Timesheets.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTimesheetDTO(*t))
}

func (h *Handler) SubmitTimesheet(w http.ResponseWriter, r *http.Request) {
	t, err := h.Timesheets.Submit(r.Context(), chi.URLParam(r, "id"))
	h.writeTimesheet(w, r, t, err)
}

func (h *Handler) ApproveTimesheet(w http.ResponseWriter, r *http.Request) {
	var req ApproveTimesheetRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	t, err := h.Timesheets.Approve(r.Context(), chi.URLParam(r, "id"), req.ApproverID)
	h.writeTimesheet(w, r, t, err)
}

func (h *Handler) RejectTimesheet(w http.ResponseWriter, r *http.Request) {
	var req RejectTimesheetRequest
	if !h.decode(w, r, &req) {
		return
	}
	t, err := h.Timesheets.Reject(r.Context(), chi.URLParam(r, "id"), req.Reason, req.RejecterID)
	h.writeTimesheet(w, r, t, err)
}

func (h *Handler) ReopenTimesheet(w http.ResponseWriter, r *http.Request) {
	t, err := h.Timesheets.Reopen(r.Context(), chi.URLParam(r, "id"))
	h.writeTimesheet(w, r, t, err)
}

func (h *Handler) writeTimesheet(w http.ResponseWriter, r *http.Request, t *generic.Timesheet, err error) {
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTimesheetDTO(*t))
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads a required JSON body and validates it. It writes the error
// response itself and reports whether the handler may continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", generic.KindValidation, err.Error())
		return false
	}
	return h.check(w, r, dst)
}

// decodeOptional accepts an empty body.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", generic.KindValidation, err.Error())
		return false
	}
	return h.check(w, r, dst)
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := h.validate.Struct(dst); err != nil {
		h.writeDomainError(w, r, fromValidator(err))
		return false
	}
	return true
}

// fromValidator turns the first validator failure into a ValidationError
// named after the JSON path of the field.
func fromValidator(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &generic.ValidationError{Message: err.Error()}
	}
	fe := verrs[0]
	field := jsonPath(fe.Namespace())
	switch fe.Tag() {
	case "required":
		return generic.Invalid(field, "is required")
	case "oneof":
		return generic.Invalid(field, "must be one of [%s]", fe.Param())
	case "datetime":
		return generic.Invalid(field, "must be a date (YYYY-MM-DD)")
	default:
		return generic.Invalid(field, "failed %s validation", fe.Tag())
	}
}

// jsonPath drops the struct name: "CreateAssignmentRequest.assignee.id"
// becomes "assignee.id".
func jsonPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func parseDate(field, s string) (generic.Date, error) {
	d, err := generic.ParseDate(s)
	if err != nil {
		return generic.Date{}, generic.Invalid(field, "must be a date (YYYY-MM-DD)")
	}
	return d, nil
}

func parseRange(start string, end *string) (generic.Date, *generic.Date, error) {
	s, err := parseDate("start_date", start)
	if err != nil {
		return generic.Date{}, nil, err
	}
	if end == nil {
		return s, nil, nil
	}
	e, err := parseDate("end_date", *end)
	if err != nil {
		return generic.Date{}, nil, err
	}
	return s, &e, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, kind generic.ErrorKind, details any) {
	writeJSON(w, status, ErrorResponse{Error: message, Kind: string(kind), Details: details})
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind generic.ErrorKind) int {
	switch kind {
	case generic.KindValidation:
		return http.StatusBadRequest
	case generic.KindNotFound:
		return http.StatusNotFound
	case generic.KindInvalidState, generic.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError renders any engine error. Internal errors are logged
// and their message hidden from the client.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	kind := generic.KindOf(err)
	status := statusFor(kind)

	var details any
	var ve *generic.ValidationError
	var ce *generic.ConflictError
	switch {
	case errors.As(err, &ve):
		details = map[string]string{"field": ve.Field}
	case errors.As(err, &ce):
		details = map[string]any{"conflicts": toConflictDTOs(ce.Conflicts)}
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		message = fmt.Sprintf("internal error (%s)", http.StatusText(status))
	}
	writeError(w, status, message, kind, details)
}
