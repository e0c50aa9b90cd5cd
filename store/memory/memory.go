// Package memory provides an in-memory Store implementation for tests/dev.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/staffo/absence-engine/absence"
	"github.com/staffo/absence-engine/engine"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Store struct {
	mu sync.RWMutex

	employees   map[string]absence.Employee
	requests    map[string]engine.AbsenceRequest
	adjustments map[string][]engine.BalanceAdjustment // by employee
	penalties   map[string]engine.PenalizationRecord  // employeeID|year
	thresholds  engine.CoverageThresholdConfig
	excessHours map[int]engine.Hours
	holidays    map[string]engine.Holiday
}

var _ absence.TxStore = (*Store)(nil)

func New() *Store {
	return &Store{
		employees:   make(map[string]absence.Employee),
		requests:    make(map[string]engine.AbsenceRequest),
		adjustments: make(map[string][]engine.BalanceAdjustment),
		penalties:   make(map[string]engine.PenalizationRecord),
		thresholds:  make(engine.CoverageThresholdConfig),
		excessHours: make(map[int]engine.Hours),
		holidays:    make(map[string]engine.Holiday),
	}
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (s *Store) SaveEmployee(_ context.Context, emp absence.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.employees[emp.ID] = emp
	return nil
}

func (s *Store) GetEmployee(_ context.Context, id string) (*absence.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	emp, ok := s.employees[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrEmployeeNotFound, id)
	}
	return &emp, nil
}

func (s *Store) ListEmployees(_ context.Context) ([]absence.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]absence.Employee, 0, len(s.employees))
	for _, emp := range s.employees {
		out = append(out, emp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ApplyBalanceDelta(_ context.Context, employeeID string, delta engine.Hours, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	emp, ok := s.employees[employeeID]
	if !ok {
		return fmt.Errorf("%w: %s", engine.ErrEmployeeNotFound, employeeID)
	}
	if emp.Version != expectedVersion {
		return fmt.Errorf("%w: employee %s version %d, expected %d",
			engine.ErrConcurrencyConflict, employeeID, emp.Version, expectedVersion)
	}
	emp.BalanceHours += delta
	emp.Version++
	s.employees[employeeID] = emp
	return nil
}

// =============================================================================
// REQUESTS
// =============================================================================

func (s *Store) SaveRequest(_ context.Context, req engine.AbsenceRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.ID] = cloneRequest(req)
	return nil
}

func (s *Store) GetRequest(_ context.Context, id string) (*engine.AbsenceRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrRequestNotFound, id)
	}
	out := cloneRequest(req)
	return &out, nil
}

func (s *Store) ListRequestsByEmployee(_ context.Context, employeeID string) ([]engine.AbsenceRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []engine.AbsenceRequest
	for _, req := range s.requests {
		if req.EmployeeID == employeeID {
			out = append(out, cloneRequest(req))
		}
	}
	sortRequests(out)
	return out, nil
}

func (s *Store) ListRequestsOverlapping(_ context.Context, period engine.Period) ([]engine.AbsenceRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []engine.AbsenceRequest
	for _, req := range s.requests {
		for _, d := range req.RequestedDates {
			if period.Contains(d) {
				out = append(out, cloneRequest(req))
				break
			}
		}
	}
	sortRequests(out)
	return out, nil
}

func sortRequests(reqs []engine.AbsenceRequest) {
	sort.Slice(reqs, func(i, j int) bool {
		if !reqs[i].CreatedAt.Equal(reqs[j].CreatedAt) {
			return reqs[i].CreatedAt.Before(reqs[j].CreatedAt)
		}
		return reqs[i].ID < reqs[j].ID
	})
}

func cloneRequest(req engine.AbsenceRequest) engine.AbsenceRequest {
	out := req
	out.RequestedDates = append([]engine.Date(nil), req.RequestedDates...)
	out.Cancellations = make([]engine.Cancellation, len(req.Cancellations))
	for i, c := range req.Cancellations {
		out.Cancellations[i] = c
		out.Cancellations[i].Dates = append([]engine.Date(nil), c.Dates...)
	}
	if req.DecidedAt != nil {
		at := *req.DecidedAt
		out.DecidedAt = &at
	}
	return out
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

func (s *Store) SaveAdjustment(_ context.Context, adj engine.BalanceAdjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adjustments[adj.EmployeeID] = append(s.adjustments[adj.EmployeeID], adj)
	return nil
}

func (s *Store) ListAdjustmentsByEmployee(_ context.Context, employeeID string) ([]engine.BalanceAdjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]engine.BalanceAdjustment(nil), s.adjustments[employeeID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// =============================================================================
// PENALIZATION RECORDS
// =============================================================================

func penaltyKey(employeeID string, year int) string {
	return fmt.Sprintf("%s|%d", employeeID, year)
}

func (s *Store) GetPenalization(_ context.Context, employeeID string, year int) (*engine.PenalizationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.penalties[penaltyKey(employeeID, year)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *Store) UpsertPenalization(_ context.Context, rec engine.PenalizationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.penalties[penaltyKey(rec.EmployeeID, rec.Year)] = rec
	return nil
}

// =============================================================================
// CONFIGURATION
// =============================================================================

func (s *Store) GetThresholds(_ context.Context) (engine.CoverageThresholdConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(engine.CoverageThresholdConfig, len(s.thresholds))
	for role, min := range s.thresholds {
		out[role] = min
	}
	return out, nil
}

func (s *Store) SetThreshold(_ context.Context, role string, minCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thresholds[role] = minCount
	return nil
}

func (s *Store) DeleteThreshold(_ context.Context, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.thresholds, role)
	return nil
}

func (s *Store) GetAnnualExcessHours(_ context.Context, year int) (*engine.Hours, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.excessHours[year]
	if !ok {
		return nil, nil
	}
	return &h, nil
}

func (s *Store) SetAnnualExcessHours(_ context.Context, year int, hours engine.Hours) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.excessHours[year] = hours
	return nil
}

// =============================================================================
// HOLIDAYS
// =============================================================================

func (s *Store) SaveHoliday(_ context.Context, h engine.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holidays[h.ID] = h
	return nil
}

func (s *Store) ListHolidays(_ context.Context, year int) ([]engine.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []engine.Holiday
	for _, h := range s.holidays {
		if h.Date.Year() == year {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// =============================================================================
// TRANSACTIONS - Snapshot + rollback on error
// =============================================================================

// WithTx executes fn against the store, restoring the pre-call snapshot if
// fn returns an error. Writes inside fn are visible to subsequent reads in
// the same fn, matching real transaction semantics.
func (s *Store) WithTx(_ context.Context, fn func(absence.Store) error) error {
	s.mu.Lock()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if err := fn(&txView{parent: s}); err != nil {
		s.mu.Lock()
		s.restoreLocked(snapshot)
		s.mu.Unlock()
		return err
	}
	return nil
}

type storeSnapshot struct {
	employees   map[string]absence.Employee
	requests    map[string]engine.AbsenceRequest
	adjustments map[string][]engine.BalanceAdjustment
	penalties   map[string]engine.PenalizationRecord
	thresholds  engine.CoverageThresholdConfig
	excessHours map[int]engine.Hours
	holidays    map[string]engine.Holiday
}

func (s *Store) snapshotLocked() storeSnapshot {
	snap := storeSnapshot{
		employees:   make(map[string]absence.Employee, len(s.employees)),
		requests:    make(map[string]engine.AbsenceRequest, len(s.requests)),
		adjustments: make(map[string][]engine.BalanceAdjustment, len(s.adjustments)),
		penalties:   make(map[string]engine.PenalizationRecord, len(s.penalties)),
		thresholds:  make(engine.CoverageThresholdConfig, len(s.thresholds)),
		excessHours: make(map[int]engine.Hours, len(s.excessHours)),
		holidays:    make(map[string]engine.Holiday, len(s.holidays)),
	}
	for k, v := range s.employees {
		snap.employees[k] = v
	}
	for k, v := range s.requests {
		snap.requests[k] = cloneRequest(v)
	}
	for k, v := range s.adjustments {
		snap.adjustments[k] = append([]engine.BalanceAdjustment(nil), v...)
	}
	for k, v := range s.penalties {
		snap.penalties[k] = v
	}
	for k, v := range s.thresholds {
		snap.thresholds[k] = v
	}
	for k, v := range s.excessHours {
		snap.excessHours[k] = v
	}
	for k, v := range s.holidays {
		snap.holidays[k] = v
	}
	return snap
}

func (s *Store) restoreLocked(snap storeSnapshot) {
	s.employees = snap.employees
	s.requests = snap.requests
	s.adjustments = snap.adjustments
	s.penalties = snap.penalties
	s.thresholds = snap.thresholds
	s.excessHours = snap.excessHours
	s.holidays = snap.holidays
}

// txView forwards to the parent store. Nested WithTx is not supported.
type txView struct {
	parent *Store
}

var _ absence.Store = (*txView)(nil)

func (tv *txView) SaveEmployee(ctx context.Context, emp absence.Employee) error {
	return tv.parent.SaveEmployee(ctx, emp)
}
func (tv *txView) GetEmployee(ctx context.Context, id string) (*absence.Employee, error) {
	return tv.parent.GetEmployee(ctx, id)
}
func (tv *txView) ListEmployees(ctx context.Context) ([]absence.Employee, error) {
	return tv.parent.ListEmployees(ctx)
}
func (tv *txView) ApplyBalanceDelta(ctx context.Context, employeeID string, delta engine.Hours, expectedVersion int64) error {
	return tv.parent.ApplyBalanceDelta(ctx, employeeID, delta, expectedVersion)
}
func (tv *txView) SaveRequest(ctx context.Context, req engine.AbsenceRequest) error {
	return tv.parent.SaveRequest(ctx, req)
}
func (tv *txView) GetRequest(ctx context.Context, id string) (*engine.AbsenceRequest, error) {
	return tv.parent.GetRequest(ctx, id)
}
func (tv *txView) ListRequestsByEmployee(ctx context.Context, employeeID string) ([]engine.AbsenceRequest, error) {
	return tv.parent.ListRequestsByEmployee(ctx, employeeID)
}
func (tv *txView) ListRequestsOverlapping(ctx context.Context, period engine.Period) ([]engine.AbsenceRequest, error) {
	return tv.parent.ListRequestsOverlapping(ctx, period)
}
func (tv *txView) SaveAdjustment(ctx context.Context, adj engine.BalanceAdjustment) error {
	return tv.parent.SaveAdjustment(ctx, adj)
}
func (tv *txView) ListAdjustmentsByEmployee(ctx context.Context, employeeID string) ([]engine.BalanceAdjustment, error) {
	return tv.parent.ListAdjustmentsByEmployee(ctx, employeeID)
}
func (tv *txView) GetPenalization(ctx context.Context, employeeID string, year int) (*engine.PenalizationRecord, error) {
	return tv.parent.GetPenalization(ctx, employeeID, year)
}
func (tv *txView) UpsertPenalization(ctx context.Context, rec engine.PenalizationRecord) error {
	return tv.parent.UpsertPenalization(ctx, rec)
}
func (tv *txView) GetThresholds(ctx context.Context) (engine.CoverageThresholdConfig, error) {
	return tv.parent.GetThresholds(ctx)
}
func (tv *txView) SetThreshold(ctx context.Context, role string, minCount int) error {
	return tv.parent.SetThreshold(ctx, role, minCount)
}
func (tv *txView) DeleteThreshold(ctx context.Context, role string) error {
	return tv.parent.DeleteThreshold(ctx, role)
}
func (tv *txView) GetAnnualExcessHours(ctx context.Context, year int) (*engine.Hours, error) {
	return tv.parent.GetAnnualExcessHours(ctx, year)
}
func (tv *txView) SetAnnualExcessHours(ctx context.Context, year int, hours engine.Hours) error {
	return tv.parent.SetAnnualExcessHours(ctx, year, hours)
}
func (tv *txView) SaveHoliday(ctx context.Context, h engine.Holiday) error {
	return tv.parent.SaveHoliday(ctx, h)
}
func (tv *txView) ListHolidays(ctx context.Context, year int) ([]engine.Holiday, error) {
	return tv.parent.ListHolidays(ctx, year)
}
