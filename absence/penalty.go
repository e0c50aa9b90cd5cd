/*
penalty.go - Penalty assessment and the compound apply action

PURPOSE:
  Wires the pure penalty calculator to stored data and owns the one
  compound, transactionally coupled operation in the system: applying a
  penalty subtracts the incremental hours from the employee's balance AND
  upserts the PenalizationRecord to the gross figure. If either write
  fails, neither commits.

CONCURRENCY:
  At most one application may run per (employee, year). A second concurrent
  attempt for the same key is rejected with ErrConcurrencyConflict rather
  than queued - retrying after the first commit yields "nothing to apply"
  anyway. A stale balance read (version mismatch) aborts the transaction
  the same way.
*/
package absence

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/staffo/absence-engine/engine"
)

// =============================================================================
// PENALTY SERVICE
// =============================================================================

type PenaltyService struct {
	Store TxStore
	Now   func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewPenaltyService(store TxStore) *PenaltyService {
	return &PenaltyService{
		Store:    store,
		Now:      time.Now,
		inFlight: make(map[string]struct{}),
	}
}

func penaltyKey(employeeID string, year int) string {
	return fmt.Sprintf("%s|%d", employeeID, year)
}

// =============================================================================
// ASSESS - Read-only recommendation
// =============================================================================

// Assess computes the current penalty recommendation for one employee/year
// from stored sick-leave requests, the year's excess-hours figure, and the
// prior penalization record. Configuration gaps yield a not-applicable
// assessment, never an error.
func (s *PenaltyService) Assess(ctx context.Context, employeeID string, year int) (engine.PenaltyAssessment, error) {
	if _, err := s.Store.GetEmployee(ctx, employeeID); err != nil {
		return engine.PenaltyAssessment{}, err
	}

	requests, err := s.Store.ListRequestsByEmployee(ctx, employeeID)
	if err != nil {
		return engine.PenaltyAssessment{}, err
	}
	excess, err := s.Store.GetAnnualExcessHours(ctx, year)
	if err != nil {
		return engine.PenaltyAssessment{}, err
	}
	prior, err := s.Store.GetPenalization(ctx, employeeID, year)
	if err != nil {
		return engine.PenaltyAssessment{}, err
	}

	return engine.ComputePenalty(engine.PenaltyInput{
		EmployeeID:        employeeID,
		Year:              year,
		SickDates:         engine.SickLeaveDates(requests, year),
		AnnualExcessHours: excess,
		Prior:             prior,
	}), nil
}

// =============================================================================
// APPLY - The compound action
// =============================================================================

// Apply assesses and, when actionable, commits the penalty: balance minus
// incremental hours plus the record upserted to the gross figure, in one
// transaction. Non-actionable assessments are rejected with
// ErrNothingToApply so callers can distinguish a no-op from success.
func (s *PenaltyService) Apply(ctx context.Context, employeeID string, year int) (engine.PenaltyAssessment, error) {
	key := penaltyKey(employeeID, year)
	s.mu.Lock()
	if _, busy := s.inFlight[key]; busy {
		s.mu.Unlock()
		return engine.PenaltyAssessment{}, fmt.Errorf("%w: penalty application in progress for %s/%d",
			engine.ErrConcurrencyConflict, employeeID, year)
	}
	s.inFlight[key] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.inFlight, key)
		s.mu.Unlock()
	}()

	var assessment engine.PenaltyAssessment
	err := s.Store.WithTx(ctx, func(tx Store) error {
		emp, err := tx.GetEmployee(ctx, employeeID)
		if err != nil {
			return err
		}

		requests, err := tx.ListRequestsByEmployee(ctx, employeeID)
		if err != nil {
			return err
		}
		excess, err := tx.GetAnnualExcessHours(ctx, year)
		if err != nil {
			return err
		}
		prior, err := tx.GetPenalization(ctx, employeeID, year)
		if err != nil {
			return err
		}

		assessment = engine.ComputePenalty(engine.PenaltyInput{
			EmployeeID:        employeeID,
			Year:              year,
			SickDates:         engine.SickLeaveDates(requests, year),
			AnnualExcessHours: excess,
			Prior:             prior,
		})
		if !assessment.Applicable() {
			return fmt.Errorf("%w: %s", engine.ErrNothingToApply, assessment.Reason)
		}

		if err := tx.ApplyBalanceDelta(ctx, emp.ID, assessment.IncrementalHours.Neg(), emp.Version); err != nil {
			return err
		}

		now := s.Now()
		rec := engine.PenalizationRecord{
			EmployeeID:   employeeID,
			Year:         year,
			HoursApplied: assessment.GrossPenaltyHours,
			UpdatedAt:    now,
		}
		if prior != nil {
			rec.CreatedAt = prior.CreatedAt
		} else {
			rec.CreatedAt = now
		}
		return tx.UpsertPenalization(ctx, rec)
	})
	if err != nil {
		return assessment, err
	}
	return assessment, nil
}

// =============================================================================
// LISTING
// =============================================================================

// LiableEmployee pairs an employee with their current assessment.
type LiableEmployee struct {
	Employee   Employee
	Assessment engine.PenaltyAssessment
}

// ListLiable returns employees above the 7-day penalty floor for the year,
// ordered by sick days descending. Employees at or below the floor never
// appear regardless of configuration.
func (s *PenaltyService) ListLiable(ctx context.Context, year int) ([]LiableEmployee, error) {
	employees, err := s.Store.ListEmployees(ctx)
	if err != nil {
		return nil, err
	}

	var liable []LiableEmployee
	for _, emp := range employees {
		a, err := s.Assess(ctx, emp.ID, year)
		if err != nil {
			return nil, err
		}
		if a.SickDays <= engine.PenaltyFloorDays {
			continue
		}
		liable = append(liable, LiableEmployee{Employee: emp, Assessment: a})
	}

	sort.Slice(liable, func(i, j int) bool {
		if liable[i].Assessment.SickDays != liable[j].Assessment.SickDays {
			return liable[i].Assessment.SickDays > liable[j].Assessment.SickDays
		}
		return liable[i].Employee.ID < liable[j].Employee.ID
	})
	return liable, nil
}
