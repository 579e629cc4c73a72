/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Scheduling:
    AssigneeDTO, EntityDTO, ConflictCheckRequest, ConflictCheckResponse,
    CreateAssignmentRequest, AssignmentDTO, HistoryEntryDTO

  Timesheets:
    GenerateTimesheetRequest, GenerateSiteRequest, TimesheetDTO,
    BatchResultDTO

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Request types carry validator/v10 tags for shape (required fields, enum
  values, date layout). Business rules (hours range, lock horizon, state
  machine) stay in the domain services.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/workforce-engine/generic"
	"github.com/warp/workforce-engine/timesheet"
)

// =============================================================================
// SCHEDULING
// =============================================================================

type AssigneeDTO struct {
	Type string `json:"type" validate:"required,oneof=worker material"`
	ID   string `json:"id" validate:"required"`
}

type EntityDTO struct {
	Type string `json:"type" validate:"required,oneof=site task"`
	ID   string `json:"id" validate:"required"`
}

// ConflictCheckRequest previews conflicts for a proposed booking.
type ConflictCheckRequest struct {
	Assignee            AssigneeDTO `json:"assignee"`
	StartDate           string      `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate             *string     `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	ExcludeAssignmentID string      `json:"exclude_assignment_id,omitempty"`
}

type ConflictDTO struct {
	ConflictingAssignmentID string    `json:"conflicting_assignment_id"`
	Entity                  EntityDTO `json:"entity"`
	OverlapStart            string    `json:"overlap_start"`
	OverlapEnd              *string   `json:"overlap_end"`
	Message                 string    `json:"message"`
}

type ConflictCheckResponse struct {
	HasConflicts bool          `json:"has_conflicts"`
	Conflicts    []ConflictDTO `json:"conflicts"`
}

// CreateAssignmentRequest books an assignee. Strict turns conflicts into a
// 409 instead of advisory data.
type CreateAssignmentRequest struct {
	Assignee    AssigneeDTO     `json:"assignee"`
	Entity      EntityDTO       `json:"entity"`
	StartDate   string          `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate     *string         `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	HoursPerDay decimal.Decimal `json:"hours_per_day"`
	Notes       string          `json:"notes,omitempty"`
	Strict      bool            `json:"strict,omitempty"`
}

type CancelAssignmentRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// ReassignRequest moves a booking. Strict refuses the move when the new
// assignee is already booked over the same dates.
type ReassignRequest struct {
	NewAssigneeID string `json:"new_assignee_id" validate:"required"`
	Reason        string `json:"reason,omitempty"`
	Strict        bool   `json:"strict,omitempty"`
}

type AssignmentDTO struct {
	ID          string          `json:"id"`
	Assignee    AssigneeDTO     `json:"assignee"`
	Entity      EntityDTO       `json:"entity"`
	StartDate   string          `json:"start_date"`
	EndDate     *string         `json:"end_date"`
	HoursPerDay decimal.Decimal `json:"hours_per_day"`
	Status      string          `json:"status"`
	Notes       string          `json:"notes"`
	CreatedAt   string          `json:"created_at"`
	UpdatedAt   string          `json:"updated_at"`
}

type HistoryEntryDTO struct {
	ID                 string  `json:"id"`
	AssignmentID       string  `json:"assignment_id"`
	Action             string  `json:"action"`
	PreviousAssigneeID *string `json:"previous_assignee_id"`
	NewAssigneeID      *string `json:"new_assignee_id"`
	Reason             *string `json:"reason"`
	CreatedAt          string  `json:"created_at"`
}

// =============================================================================
// TIMESHEETS
// =============================================================================

type GenerateTimesheetRequest struct {
	WorkerID      string `json:"worker_id" validate:"required"`
	SiteID        string `json:"site_id" validate:"required"`
	WeekStartDate string `json:"week_start_date" validate:"required,datetime=2006-01-02"`
}

type GenerateSiteRequest struct {
	WeekStartDate string `json:"week_start_date" validate:"required,datetime=2006-01-02"`
}

type ApproveTimesheetRequest struct {
	ApproverID string `json:"approver_id,omitempty"`
}

type RejectTimesheetRequest struct {
	Reason     string `json:"reason" validate:"required"`
	RejecterID string `json:"rejecter_id,omitempty"`
}

type DailyEntryDTO struct {
	Date          string          `json:"date"`
	CheckIn       string          `json:"check_in"`
	CheckOut      string          `json:"check_out"`
	TotalHours    decimal.Decimal `json:"total_hours"`
	RegularHours  decimal.Decimal `json:"regular_hours"`
	OvertimeHours decimal.Decimal `json:"overtime_hours"`
}

type TimesheetDTO struct {
	ID              string          `json:"id"`
	WorkerID        string          `json:"worker_id"`
	SiteID          string          `json:"site_id"`
	WeekStartDate   string          `json:"week_start_date"`
	WeekEndDate     string          `json:"week_end_date"`
	DailyBreakdown  []DailyEntryDTO `json:"daily_breakdown"`
	RegularHours    decimal.Decimal `json:"regular_hours"`
	OvertimeHours   decimal.Decimal `json:"overtime_hours"`
	TotalHours      decimal.Decimal `json:"total_hours"`
	HourlyRate      decimal.Decimal `json:"hourly_rate"`
	TotalPay        decimal.Decimal `json:"total_pay"`
	Status          string          `json:"status"`
	RejectionReason *string         `json:"rejection_reason"`
	SubmittedAt     *string         `json:"submitted_at"`
	ApprovedBy      *string         `json:"approved_by"`
	ApprovedAt      *string         `json:"approved_at"`
	RejectedBy      *string         `json:"rejected_by"`
	CreatedAt       string          `json:"created_at"`
	UpdatedAt       string          `json:"updated_at"`
}

type BatchFailureDTO struct {
	WorkerID string `json:"worker_id"`
	Error    string `json:"error"`
	Kind     string `json:"kind"`
}

type BatchResultDTO struct {
	Succeeded []TimesheetDTO    `json:"succeeded"`
	Failed    []BatchFailureDTO `json:"failed"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toAssignmentDTO(a generic.Assignment) AssignmentDTO {
	return AssignmentDTO{
		ID:          a.ID,
		Assignee:    AssigneeDTO{Type: string(a.Assignee.Type), ID: a.Assignee.ID},
		Entity:      EntityDTO{Type: string(a.Entity.Type), ID: a.Entity.ID},
		StartDate:   a.StartDate.String(),
		EndDate:     dateString(a.EndDate),
		HoursPerDay: a.HoursPerDay,
		Status:      string(a.Status),
		Notes:       a.Notes,
		CreatedAt:   a.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   a.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toAssignmentDTOs(list []generic.Assignment) []AssignmentDTO {
	dtos := make([]AssignmentDTO, len(list))
	for i, a := range list {
		dtos[i] = toAssignmentDTO(a)
	}
	return dtos
}

func toHistoryDTOs(entries []generic.HistoryEntry) []HistoryEntryDTO {
	dtos := make([]HistoryEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = HistoryEntryDTO{
			ID:                 e.ID,
			AssignmentID:       e.AssignmentID,
			Action:             string(e.Action),
			PreviousAssigneeID: e.PreviousAssigneeID,
			NewAssigneeID:      e.NewAssigneeID,
			Reason:             e.Reason,
			CreatedAt:          e.CreatedAt.UTC().Format(time.RFC3339),
		}
	}
	return dtos
}

func toConflictDTOs(conflicts []generic.ConflictDescriptor) []ConflictDTO {
	dtos := make([]ConflictDTO, len(conflicts))
	for i, c := range conflicts {
		dtos[i] = ConflictDTO{
			ConflictingAssignmentID: c.ConflictingAssignmentID,
			Entity:                  EntityDTO{Type: string(c.Entity.Type), ID: c.Entity.ID},
			OverlapStart:            c.OverlapStart.String(),
			OverlapEnd:              dateString(c.OverlapEnd),
			Message:                 c.Message,
		}
	}
	return dtos
}

func toTimesheetDTO(t generic.Timesheet) TimesheetDTO {
	daily := make([]DailyEntryDTO, len(t.DailyBreakdown))
	for i, d := range t.DailyBreakdown {
		daily[i] = DailyEntryDTO{
			Date:          d.Date.String(),
			CheckIn:       d.CheckIn.String(),
			CheckOut:      d.CheckOut.String(),
			TotalHours:    d.TotalHours.Value,
			RegularHours:  d.RegularHours.Value,
			OvertimeHours: d.OvertimeHours.Value,
		}
	}
	return TimesheetDTO{
		ID:              t.ID,
		WorkerID:        t.WorkerID,
		SiteID:          t.SiteID,
		WeekStartDate:   t.WeekStartDate.String(),
		WeekEndDate:     t.WeekEndDate.String(),
		DailyBreakdown:  daily,
		RegularHours:    t.RegularHours.Value,
		OvertimeHours:   t.OvertimeHours.Value,
		TotalHours:      t.TotalHours.Value,
		HourlyRate:      t.HourlyRate,
		TotalPay:        t.TotalPay,
		Status:          string(t.Status),
		RejectionReason: t.RejectionReason,
		SubmittedAt:     timeString(t.SubmittedAt),
		ApprovedBy:      t.ApprovedBy,
		ApprovedAt:      timeString(t.ApprovedAt),
		RejectedBy:      t.RejectedBy,
		CreatedAt:       t.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       t.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toTimesheetDTOs(list []generic.Timesheet) []TimesheetDTO {
	dtos := make([]TimesheetDTO, len(list))
	for i, t := range list {
		dtos[i] = toTimesheetDTO(t)
	}
	return dtos
}

func toBatchResultDTO(r *timesheet.BatchResult) BatchResultDTO {
	failed := make([]BatchFailureDTO, len(r.Failed))
	for i, f := range r.Failed {
		failed[i] = BatchFailureDTO{WorkerID: f.WorkerID, Error: f.Error, Kind: string(f.Kind)}
	}
	return BatchResultDTO{Succeeded: toTimesheetDTOs(r.Succeeded), Failed: failed}
}

func dateString(d *generic.Date) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func timeString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
