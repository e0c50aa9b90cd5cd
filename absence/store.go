// Package absence implements the service layer around the pure engine:
// request lifecycle, manual adjustments, ledger reconstruction, penalty
// application, and coverage reporting. It owns the transactional guarantees
// the engine assumes but does not itself enforce.
package absence

import (
	"context"
	"time"

	"github.com/staffo/absence-engine/engine"
)

// =============================================================================
// EMPLOYEE - Roster record with the live balance
// =============================================================================

// Employee is one roster entry. BalanceHours is the live running balance;
// historical balances are always answered by ledger replay, never by this
// field. Version supports optimistic locking on balance mutations.
type Employee struct {
	ID    string
	Name  string
	Email string
	Role  string

	BalanceHours engine.Hours
	Version      int64

	CreatedAt time.Time
}

// =============================================================================
// STORE - Persistence interface
// =============================================================================

// Store is the persistence boundary for the service layer. Implementations:
// store/sqlite (production) and store/memory (tests/dev).
//
// GetRequest and GetEmployee return engine.ErrRequestNotFound /
// engine.ErrEmployeeNotFound for missing records. GetPenalization and
// GetAnnualExcessHours return (nil, nil) when absent: a missing penalty
// record means zero applied, and a missing excess-hours figure is a
// configuration gap, not a failure.
type Store interface {
	// Employees
	SaveEmployee(ctx context.Context, emp Employee) error
	GetEmployee(ctx context.Context, id string) (*Employee, error)
	ListEmployees(ctx context.Context) ([]Employee, error)

	// ApplyBalanceDelta atomically shifts an employee's stored balance.
	// Returns engine.ErrConcurrencyConflict when expectedVersion no longer
	// matches the stored record.
	ApplyBalanceDelta(ctx context.Context, employeeID string, delta engine.Hours, expectedVersion int64) error

	// Requests
	SaveRequest(ctx context.Context, req engine.AbsenceRequest) error
	GetRequest(ctx context.Context, id string) (*engine.AbsenceRequest, error)
	ListRequestsByEmployee(ctx context.Context, employeeID string) ([]engine.AbsenceRequest, error)
	ListRequestsOverlapping(ctx context.Context, period engine.Period) ([]engine.AbsenceRequest, error)

	// Adjustments
	SaveAdjustment(ctx context.Context, adj engine.BalanceAdjustment) error
	ListAdjustmentsByEmployee(ctx context.Context, employeeID string) ([]engine.BalanceAdjustment, error)

	// Penalization records
	GetPenalization(ctx context.Context, employeeID string, year int) (*engine.PenalizationRecord, error)
	UpsertPenalization(ctx context.Context, rec engine.PenalizationRecord) error

	// Coverage thresholds
	GetThresholds(ctx context.Context) (engine.CoverageThresholdConfig, error)
	SetThreshold(ctx context.Context, role string, minCount int) error
	DeleteThreshold(ctx context.Context, role string) error

	// Annual excess-hours figures for the penalty calculator
	GetAnnualExcessHours(ctx context.Context, year int) (*engine.Hours, error)
	SetAnnualExcessHours(ctx context.Context, year int, hours engine.Hours) error

	// Holidays
	SaveHoliday(ctx context.Context, h engine.Holiday) error
	ListHolidays(ctx context.Context, year int) ([]engine.Holiday, error)
}

// TxStore wraps Store with transaction support. Compound operations
// (approval, cancellation, adjustment, penalty application) run inside
// WithTx so either every write commits or none do.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}
