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

VALIDATION:
  Request bodies carry go-playground/validator struct tags; handlers run
  them through the shared validator before touching the services. Date
  strings are YYYY-MM-DD and parsed in the handlers.

SEE ALSO:
  - handlers.go: Uses these types
  - absence/: The domain types these map from
*/
package api

import (
	"time"

	"github.com/staffo/absence-engine/absence"
	"github.com/staffo/absence-engine/engine"
)

// =============================================================================
// EMPLOYEES
// =============================================================================

// EmployeeDTO represents an employee in API responses.
type EmployeeDTO struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	BalanceHours int    `json:"balance_hours"`
	CreatedAt    string `json:"created_at"`
}

// CreateEmployeeRequest creates a new employee.
type CreateEmployeeRequest struct {
	ID           string `json:"id"`
	Name         string `json:"name" validate:"required"`
	Email        string `json:"email" validate:"required,email"`
	Role         string `json:"role" validate:"required"`
	BalanceHours int    `json:"balance_hours" validate:"gte=0"`
}

func toEmployeeDTO(e absence.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:           e.ID,
		Name:         e.Name,
		Email:        e.Email,
		Role:         e.Role,
		BalanceHours: int(e.BalanceHours),
		CreatedAt:    e.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// ABSENCE REQUESTS
// =============================================================================

// SubmitRequestRequest submits a new absence request for an employee.
type SubmitRequestRequest struct {
	Kind    string   `json:"kind" validate:"required,oneof=vacation sick_leave permission"`
	Dates   []string `json:"dates" validate:"dive,datetime=2006-01-02"`
	Hours   int      `json:"hours" validate:"gte=0"`
	IsSale  bool     `json:"is_sale"`
	Comment string   `json:"comment"`

	// Admin path: create the request already approved.
	PreApproved bool   `json:"pre_approved"`
	Actor       string `json:"actor"`
}

// DecisionRequest approves or denies a pending request.
type DecisionRequest struct {
	Actor   string `json:"actor" validate:"required"`
	Comment string `json:"comment"`
}

// CancelRequestRequest cancels an approved request, fully or for a subset
// of its days.
type CancelRequestRequest struct {
	Reason string   `json:"reason"`
	Dates  []string `json:"dates" validate:"dive,datetime=2006-01-02"`
}

// CancellationDTO is one cancellation event on a request.
type CancellationDTO struct {
	Dates  []string `json:"dates,omitempty"`
	At     string   `json:"at"`
	Reason string   `json:"reason,omitempty"`
}

// RequestDTO represents an absence request in API responses.
type RequestDTO struct {
	ID         string `json:"id"`
	EmployeeID string `json:"employee_id"`
	Kind       string `json:"kind"`
	Status     string `json:"status"`

	RequestedDates []string `json:"requested_dates"`
	EffectiveDates []string `json:"effective_dates"`
	RequestedHours int      `json:"requested_hours,omitempty"`
	IsSale         bool     `json:"is_sale,omitempty"`

	Cancellations []CancellationDTO `json:"cancellations,omitempty"`

	RequesterComment string `json:"requester_comment,omitempty"`
	AdminComment     string `json:"admin_comment,omitempty"`

	CreatedAt string `json:"created_at"`
	DecidedAt string `json:"decided_at,omitempty"`
	DecidedBy string `json:"decided_by,omitempty"`
}

func toRequestDTO(req *engine.AbsenceRequest) RequestDTO {
	dto := RequestDTO{
		ID:               req.ID,
		EmployeeID:       req.EmployeeID,
		Kind:             string(req.Kind),
		Status:           string(req.Status),
		RequestedDates:   formatDates(req.RequestedDates),
		EffectiveDates:   formatDates(req.EffectiveDates()),
		RequestedHours:   int(req.RequestedHours),
		IsSale:           req.IsSale,
		RequesterComment: req.RequesterComment,
		AdminComment:     req.AdminComment,
		CreatedAt:        req.CreatedAt.Format(time.RFC3339),
		DecidedBy:        req.DecidedBy,
	}
	if req.DecidedAt != nil {
		dto.DecidedAt = req.DecidedAt.Format(time.RFC3339)
	}
	for _, c := range req.Cancellations {
		dto.Cancellations = append(dto.Cancellations, CancellationDTO{
			Dates:  formatDates(c.Dates),
			At:     c.At.Format(time.RFC3339),
			Reason: c.Reason,
		})
	}
	return dto
}

// =============================================================================
// LEDGER
// =============================================================================

// BalanceEventDTO is one reconstructed ledger entry.
type BalanceEventDTO struct {
	Date          string `json:"date"`
	Kind          string `json:"kind"`
	DeltaHours    int    `json:"delta_hours"`
	BalanceBefore int    `json:"balance_before"`
	BalanceAfter  int    `json:"balance_after"`
	RefKind       string `json:"ref_kind"`
	RefID         string `json:"ref_id"`
	Note          string `json:"note,omitempty"`
}

// LedgerDTO is the full reconstructed ledger for one employee and window.
type LedgerDTO struct {
	EmployeeID     string            `json:"employee_id"`
	From           string            `json:"from"`
	To             string            `json:"to"`
	OpeningBalance int               `json:"opening_balance"`
	ClosingBalance int               `json:"closing_balance"`
	Events         []BalanceEventDTO `json:"events"`
}

func toLedgerDTO(l *engine.Ledger) LedgerDTO {
	dto := LedgerDTO{
		EmployeeID:     l.EmployeeID,
		From:           l.Period.Start.String(),
		To:             l.Period.End.String(),
		OpeningBalance: int(l.OpeningBalance),
		ClosingBalance: int(l.ClosingBalance),
		Events:         make([]BalanceEventDTO, 0, len(l.Events)),
	}
	for _, e := range l.Events {
		dto.Events = append(dto.Events, BalanceEventDTO{
			Date:          e.Date.String(),
			Kind:          string(e.Kind),
			DeltaHours:    int(e.DeltaHours),
			BalanceBefore: int(e.BalanceBefore),
			BalanceAfter:  int(e.BalanceAfter),
			RefKind:       string(e.RefKind),
			RefID:         e.RefID,
			Note:          e.Note,
		})
	}
	return dto
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

// CreateAdjustmentRequest applies a manual balance correction.
type CreateAdjustmentRequest struct {
	EmployeeID  string `json:"employee_id" validate:"required"`
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	Mode        string `json:"mode" validate:"required,oneof=add subtract set"`
	AmountHours int    `json:"amount_hours"`
	Reason      string `json:"reason" validate:"required"`
}

// AdjustmentDTO represents a stored adjustment.
type AdjustmentDTO struct {
	ID          string `json:"id"`
	EmployeeID  string `json:"employee_id"`
	Date        string `json:"date"`
	Mode        string `json:"mode"`
	AmountHours int    `json:"amount_hours"`
	Reason      string `json:"reason"`
	CreatedAt   string `json:"created_at"`
}

func toAdjustmentDTO(adj engine.BalanceAdjustment) AdjustmentDTO {
	return AdjustmentDTO{
		ID:          adj.ID,
		EmployeeID:  adj.EmployeeID,
		Date:        adj.Date.String(),
		Mode:        string(adj.Mode),
		AmountHours: int(adj.AmountHours),
		Reason:      adj.Reason,
		CreatedAt:   adj.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// PENALTIES
// =============================================================================

// PenaltyAssessmentDTO is the computed penalty for one employee and year.
type PenaltyAssessmentDTO struct {
	EmployeeID        string `json:"employee_id"`
	Year              int    `json:"year"`
	SickDays          int    `json:"sick_days"`
	TierPct           string `json:"tier_pct"`
	GrossPenaltyHours int    `json:"gross_penalty_hours"`
	IncrementalHours  int    `json:"incremental_hours"`
	Applicable        bool   `json:"applicable"`
	Reason            string `json:"reason,omitempty"`
}

func toPenaltyDTO(a engine.PenaltyAssessment) PenaltyAssessmentDTO {
	return PenaltyAssessmentDTO{
		EmployeeID:        a.EmployeeID,
		Year:              a.Year,
		SickDays:          a.SickDays,
		TierPct:           a.TierPct.String(),
		GrossPenaltyHours: int(a.GrossPenaltyHours),
		IncrementalHours:  int(a.IncrementalHours),
		Applicable:        a.Applicable(),
		Reason:            string(a.Reason),
	}
}

// LiableEmployeeDTO pairs an employee with their assessment in the
// penalty worklist.
type LiableEmployeeDTO struct {
	Employee   EmployeeDTO          `json:"employee"`
	Assessment PenaltyAssessmentDTO `json:"assessment"`
}

// SetExcessHoursRequest configures the annual excess-hours figure the
// penalty calculator multiplies against.
type SetExcessHoursRequest struct {
	Hours int `json:"hours" validate:"gte=0"`
}

// =============================================================================
// COVERAGE
// =============================================================================

// ConflictDTO is one staffing conflict on a single day.
type ConflictDTO struct {
	Role      string `json:"role"`
	Count     int    `json:"count"`
	Threshold int    `json:"threshold"`
	Severity  string `json:"severity"`
}

// CoverageReportDTO maps each day to its conflicts and heat bucket.
// Days without conflicts are absent from the conflicts map; every day of
// the period appears in heat.
type CoverageReportDTO struct {
	From      string                   `json:"from"`
	To        string                   `json:"to"`
	Conflicts map[string][]ConflictDTO `json:"conflicts"`
	Heat      map[string]string        `json:"heat"`
}

func toCoverageDTO(rep *absence.CoverageReport) CoverageReportDTO {
	dto := CoverageReportDTO{
		From:      rep.Period.Start.String(),
		To:        rep.Period.End.String(),
		Conflicts: make(map[string][]ConflictDTO),
		Heat:      make(map[string]string, len(rep.Heat)),
	}
	for date, conflicts := range rep.Conflicts {
		list := make([]ConflictDTO, len(conflicts))
		for i, c := range conflicts {
			list[i] = ConflictDTO{
				Role:      c.Role,
				Count:     c.Count,
				Threshold: c.Threshold,
				Severity:  string(c.Severity),
			}
		}
		dto.Conflicts[date.String()] = list
	}
	for date, level := range rep.Heat {
		dto.Heat[date.String()] = string(level)
	}
	return dto
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// SetThresholdRequest sets the conflict threshold for a role.
type SetThresholdRequest struct {
	Role     string `json:"role" validate:"required"`
	MinCount int    `json:"min_count" validate:"gt=0"`
}

// CreateHolidayRequest registers an organization-wide holiday.
type CreateHolidayRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
	Name string `json:"name" validate:"required"`
}

// HolidayDTO represents a stored holiday.
type HolidayDTO struct {
	ID   string `json:"id"`
	Date string `json:"date"`
	Name string `json:"name"`
}

// =============================================================================
// HELPERS
// =============================================================================

func formatDates(dates []engine.Date) []string {
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.String()
	}
	return out
}

func parseDates(strs []string) ([]engine.Date, error) {
	out := make([]engine.Date, len(strs))
	for i, s := range strs {
		d, err := engine.ParseDate(s)
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}
