/*
handlers.go - HTTP API handlers for the absence engine

PURPOSE:
  Exposes the absence engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the service layer.

ENDPOINTS:
  Employees:
    GET    /api/employees                    List all employees
    POST   /api/employees                    Create employee
    GET    /api/employees/{id}               Get employee details
    GET    /api/employees/{id}/ledger        Reconstructed balance ledger
    GET    /api/employees/{id}/requests      Request history
    GET    /api/employees/{id}/adjustments   Adjustment history
    POST   /api/employees/{id}/requests      Submit absence request

  Requests:
    GET    /api/requests/{id}                Get request
    POST   /api/requests/{id}/approve        Approve pending request
    POST   /api/requests/{id}/deny           Deny pending request
    POST   /api/requests/{id}/cancel         Cancel (full or partial)

  Penalties:
    GET    /api/penalties/{year}             Employees above the floor
    GET    /api/penalties/{year}/{id}        Assess one employee
    POST   /api/penalties/{year}/{id}/apply  Apply the penalty

  Coverage:
    GET    /api/coverage                     Conflict + heat report

  Admin:
    POST   /api/admin/adjustments            Manual balance adjustment
    GET    /api/admin/thresholds             Coverage thresholds
    PUT    /api/admin/thresholds             Set role threshold
    DELETE /api/admin/thresholds/{role}      Remove role threshold
    GET    /api/admin/excess-hours/{year}    Annual excess-hours figure
    PUT    /api/admin/excess-hours/{year}    Configure it
    GET    /api/holidays                     List holidays for a year
    POST   /api/holidays                     Create holiday

ERROR HANDLING:
  Domain errors map to HTTP statuses:
  - 400: Validation errors, malformed input
  - 404: Employee or request not found
  - 409: Concurrency conflict, nothing to apply, insufficient balance
  - 422: Data integrity violations in stored history
  - 500: Everything else

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - absence/: Service layer the handlers delegate to
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/staffo/absence-engine/absence"
	"github.com/staffo/absence-engine/engine"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

var validate = validator.New()

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       absence.TxStore
	Employees   *absence.EmployeeService
	Requests    *absence.RequestService
	Ledgers     *absence.LedgerService
	Penalties   *absence.PenaltyService
	Coverage    *absence.CoverageService
	Adjustments *absence.AdjustmentService
}

// NewHandler wires a handler and its services around the given store.
func NewHandler(store absence.TxStore) *Handler {
	return &Handler{
		Store:       store,
		Employees:   absence.NewEmployeeService(store),
		Requests:    absence.NewRequestService(store),
		Ledgers:     absence.NewLedgerService(store),
		Penalties:   absence.NewPenaltyService(store),
		Coverage:    absence.NewCoverageService(store),
		Adjustments: absence.NewAdjustmentService(store),
	}
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns all employees.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Store.ListEmployees(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetEmployee returns a single employee.
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := h.Store.GetEmployee(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(*emp))
}

// CreateEmployee creates a new employee. The starting balance is seeded
// through a recorded adjustment so the ledger can always account for it.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	emp, err := h.Employees.Create(r.Context(), absence.CreateEmployeeInput{
		ID:             req.ID,
		Name:           req.Name,
		Email:          req.Email,
		Role:           req.Role,
		InitialBalance: engine.Hours(req.BalanceHours),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(*emp))
}

// =============================================================================
// REQUEST HANDLERS
// =============================================================================

// SubmitRequest creates a new absence request for an employee.
func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequestRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	dates, err := parseDates(req.Dates)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	created, err := h.Requests.Submit(r.Context(), absence.SubmitInput{
		EmployeeID:  chi.URLParam(r, "id"),
		Kind:        engine.RequestKind(req.Kind),
		Dates:       dates,
		Hours:       engine.Hours(req.Hours),
		IsSale:      req.IsSale,
		Comment:     req.Comment,
		PreApproved: req.PreApproved,
		Actor:       req.Actor,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestDTO(created))
}

// GetRequest returns a single request.
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.Store.GetRequest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// ListEmployeeRequests returns an employee's request history.
func (h *Handler) ListEmployeeRequests(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.Store.GetEmployee(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}

	requests, err := h.Store.ListRequestsByEmployee(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]RequestDTO, len(requests))
	for i := range requests {
		dtos[i] = toRequestDTO(&requests[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ApproveRequest approves a pending request and deducts the balance.
func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	var body DecisionRequest
	if !decodeAndValidate(w, r, &body) {
		return
	}

	req, err := h.Requests.Approve(r.Context(), chi.URLParam(r, "id"), body.Actor, body.Comment)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// DenyRequest denies a pending request. No balance movement.
func (h *Handler) DenyRequest(w http.ResponseWriter, r *http.Request) {
	var body DecisionRequest
	if !decodeAndValidate(w, r, &body) {
		return
	}

	req, err := h.Requests.Deny(r.Context(), chi.URLParam(r, "id"), body.Actor, body.Comment)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// CancelRequest cancels an approved request. With a dates list only that
// subset is cancelled; without one the whole remaining request is.
func (h *Handler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	var body CancelRequestRequest
	if !decodeAndValidate(w, r, &body) {
		return
	}

	var req *engine.AbsenceRequest
	var err error
	if len(body.Dates) > 0 {
		var dates []engine.Date
		dates, err = parseDates(body.Dates)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
			return
		}
		req, err = h.Requests.CancelPartial(r.Context(), chi.URLParam(r, "id"), dates, body.Reason)
	} else {
		req, err = h.Requests.Cancel(r.Context(), chi.URLParam(r, "id"), body.Reason)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// =============================================================================
// LEDGER HANDLER
// =============================================================================

// GetLedger reconstructs the balance ledger for an employee over a window.
// Query params: from, to (YYYY-MM-DD); defaults to the current year.
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	period, err := periodFromQuery(r, engine.YearPeriod(time.Now().UTC().Year()))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period (use from/to as YYYY-MM-DD)", err)
		return
	}

	ledger, err := h.Ledgers.Reconstruct(r.Context(), chi.URLParam(r, "id"), period)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLedgerDTO(ledger))
}

// =============================================================================
// ADJUSTMENT HANDLERS
// =============================================================================

// CreateAdjustment applies a manual balance correction.
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req CreateAdjustmentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	date, err := engine.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	adj, err := h.Adjustments.Create(r.Context(), absence.AdjustInput{
		EmployeeID:  req.EmployeeID,
		Date:        date,
		Mode:        engine.AdjustmentMode(req.Mode),
		AmountHours: engine.Hours(req.AmountHours),
		Reason:      req.Reason,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAdjustmentDTO(*adj))
}

// ListEmployeeAdjustments returns an employee's adjustment history.
func (h *Handler) ListEmployeeAdjustments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.Store.GetEmployee(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}

	adjustments, err := h.Store.ListAdjustmentsByEmployee(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]AdjustmentDTO, len(adjustments))
	for i, a := range adjustments {
		dtos[i] = toAdjustmentDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// PENALTY HANDLERS
// =============================================================================

// ListLiableEmployees returns employees above the penalty floor for a year.
func (h *Handler) ListLiableEmployees(w http.ResponseWriter, r *http.Request) {
	year, ok := yearParam(w, r)
	if !ok {
		return
	}

	liable, err := h.Penalties.ListLiable(r.Context(), year)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]LiableEmployeeDTO, len(liable))
	for i, l := range liable {
		dtos[i] = LiableEmployeeDTO{
			Employee:   toEmployeeDTO(l.Employee),
			Assessment: toPenaltyDTO(l.Assessment),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AssessPenalty computes the penalty for one employee without applying it.
func (h *Handler) AssessPenalty(w http.ResponseWriter, r *http.Request) {
	year, ok := yearParam(w, r)
	if !ok {
		return
	}

	assessment, err := h.Penalties.Assess(r.Context(), chi.URLParam(r, "id"), year)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPenaltyDTO(assessment))
}

// ApplyPenalty deducts the incremental penalty and records it.
func (h *Handler) ApplyPenalty(w http.ResponseWriter, r *http.Request) {
	year, ok := yearParam(w, r)
	if !ok {
		return
	}

	assessment, err := h.Penalties.Apply(r.Context(), chi.URLParam(r, "id"), year)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPenaltyDTO(assessment))
}

// =============================================================================
// COVERAGE HANDLER
// =============================================================================

// GetCoverage builds the conflict and heat report.
// Query params: from, to (YYYY-MM-DD; defaults to the current month),
// plus optional repeated kind, employee_id, and role filters.
func (h *Handler) GetCoverage(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	period, err := periodFromQuery(r, engine.MonthPeriod(now.Year(), now.Month()))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period (use from/to as YYYY-MM-DD)", err)
		return
	}

	filter := engine.EntryFilter{
		EmployeeIDs: r.URL.Query()["employee_id"],
		Roles:       r.URL.Query()["role"],
	}
	for _, k := range r.URL.Query()["kind"] {
		filter.Kinds = append(filter.Kinds, engine.RequestKind(k))
	}

	report, err := h.Coverage.Report(r.Context(), period, filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCoverageDTO(report))
}

// =============================================================================
// CONFIGURATION HANDLERS
// =============================================================================

// GetThresholds lists all role thresholds.
func (h *Handler) GetThresholds(w http.ResponseWriter, r *http.Request) {
	thresholds, err := h.Store.GetThresholds(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]SetThresholdRequest, 0, len(thresholds))
	for role, minCount := range thresholds {
		dtos = append(dtos, SetThresholdRequest{Role: role, MinCount: minCount})
	}
	sort.Slice(dtos, func(i, j int) bool { return dtos[i].Role < dtos[j].Role })
	writeJSON(w, http.StatusOK, dtos)
}

// SetThreshold sets the conflict threshold for one role.
func (h *Handler) SetThreshold(w http.ResponseWriter, r *http.Request) {
	var req SetThresholdRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.Store.SetThreshold(r.Context(), req.Role, req.MinCount); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// DeleteThreshold removes a role's threshold. That role stops producing
// conflicts.
func (h *Handler) DeleteThreshold(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteThreshold(r.Context(), chi.URLParam(r, "role")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetExcessHours returns the configured annual excess-hours figure.
func (h *Handler) GetExcessHours(w http.ResponseWriter, r *http.Request) {
	year, ok := yearParam(w, r)
	if !ok {
		return
	}

	hours, err := h.Store.GetAnnualExcessHours(r.Context(), year)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if hours == nil {
		writeError(w, http.StatusNotFound, "No excess-hours figure configured for year", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"year": year, "hours": int(*hours)})
}

// SetExcessHours configures the annual excess-hours figure.
func (h *Handler) SetExcessHours(w http.ResponseWriter, r *http.Request) {
	year, ok := yearParam(w, r)
	if !ok {
		return
	}

	var req SetExcessHoursRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.Store.SetAnnualExcessHours(r.Context(), year, engine.Hours(req.Hours)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"year": year, "hours": req.Hours})
}

// ListHolidays lists holidays for a year (query param year, default now).
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	year := time.Now().UTC().Year()
	if s := r.URL.Query().Get("year"); s != "" {
		y, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return
		}
		year = y
	}

	holidays, err := h.Store.ListHolidays(r.Context(), year)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]HolidayDTO, len(holidays))
	for i, hol := range holidays {
		dtos[i] = HolidayDTO{ID: hol.ID, Date: hol.Date.String(), Name: hol.Name}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateHoliday registers an organization-wide holiday.
func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req CreateHolidayRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	date, err := engine.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	hol := engine.Holiday{ID: uuid.NewString(), Date: date, Name: req.Name}
	if err := h.Store.SaveHoliday(r.Context(), hol); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, HolidayDTO{ID: hol.ID, Date: hol.Date.String(), Name: hol.Name})
}

// =============================================================================
// HELPERS
// =============================================================================

// decodeAndValidate parses the JSON body into dst and runs struct
// validation. Writes the error response itself; callers bail on false.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// periodFromQuery reads from/to, falling back to def when both are absent.
func periodFromQuery(r *http.Request, def engine.Period) (engine.Period, error) {
	fromStr := r.URL.Query().Get("from")
	toStr := r.URL.Query().Get("to")
	if fromStr == "" && toStr == "" {
		return def, nil
	}

	period := def
	if fromStr != "" {
		from, err := engine.ParseDate(fromStr)
		if err != nil {
			return engine.Period{}, err
		}
		period.Start = from
	}
	if toStr != "" {
		to, err := engine.ParseDate(toStr)
		if err != nil {
			return engine.Period{}, err
		}
		period.End = to
	}
	if !period.Valid() {
		return engine.Period{}, &engine.ValidationError{Field: "period", Message: "end before start"}
	}
	return period, nil
}

func yearParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return 0, false
	}
	return year, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps service-layer errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrValidation):
		writeError(w, http.StatusBadRequest, "Validation failed", err)
	case errors.Is(err, engine.ErrEmployeeNotFound),
		errors.Is(err, engine.ErrRequestNotFound):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, engine.ErrConcurrencyConflict),
		errors.Is(err, engine.ErrNothingToApply),
		errors.Is(err, engine.ErrInsufficientBalance),
		errors.Is(err, engine.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "Conflict", err)
	case errors.Is(err, engine.ErrDataIntegrity):
		writeError(w, http.StatusUnprocessableEntity, "Data integrity violation", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
