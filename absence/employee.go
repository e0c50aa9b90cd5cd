package absence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/staffo/absence-engine/engine"
)

// =============================================================================
// EMPLOYEE SERVICE - Roster writes
// =============================================================================

// EmployeeService owns employee creation. A non-zero starting balance is
// recorded as a regular adjustment in the same transaction, so the
// reconstructed ledger accounts for every hour the stored balance holds.
type EmployeeService struct {
	Store TxStore

	// Now and NewID are swappable for tests.
	Now   func() time.Time
	NewID func() string
}

func NewEmployeeService(store TxStore) *EmployeeService {
	return &EmployeeService{
		Store: store,
		Now:   time.Now,
		NewID: uuid.NewString,
	}
}

// CreateEmployeeInput describes a new roster entry.
type CreateEmployeeInput struct {
	ID    string // generated when empty
	Name  string
	Email string
	Role  string

	InitialBalance engine.Hours
}

// Create stores the employee and seeds the starting balance. The employee
// row starts at zero; the seed arrives through an adjustment so the balance
// is always the sum of recorded events.
func (s *EmployeeService) Create(ctx context.Context, in CreateEmployeeInput) (*Employee, error) {
	if err := validateCreateEmployee(in); err != nil {
		return nil, err
	}

	emp := Employee{
		ID:        in.ID,
		Name:      in.Name,
		Email:     in.Email,
		Role:      in.Role,
		CreatedAt: s.Now(),
	}
	if emp.ID == "" {
		emp.ID = s.NewID()
	}

	err := s.Store.WithTx(ctx, func(tx Store) error {
		if err := tx.SaveEmployee(ctx, emp); err != nil {
			return err
		}
		if in.InitialBalance == 0 {
			return nil
		}

		adj := engine.BalanceAdjustment{
			ID:          s.NewID(),
			EmployeeID:  emp.ID,
			Date:        engine.DateOf(emp.CreatedAt),
			Mode:        engine.AdjustAdd,
			AmountHours: in.InitialBalance,
			Reason:      "initial balance",
			CreatedAt:   emp.CreatedAt,
		}
		if err := tx.SaveAdjustment(ctx, adj); err != nil {
			return err
		}
		return tx.ApplyBalanceDelta(ctx, emp.ID, in.InitialBalance, emp.Version)
	})
	if err != nil {
		return nil, err
	}

	if in.InitialBalance > 0 {
		emp.BalanceHours = in.InitialBalance
		emp.Version++
	}
	return &emp, nil
}

func validateCreateEmployee(in CreateEmployeeInput) error {
	if in.Name == "" {
		return &engine.ValidationError{Field: "name", Message: "a name is required"}
	}
	if in.Email == "" {
		return &engine.ValidationError{Field: "email", Message: "an email is required"}
	}
	if in.InitialBalance < 0 {
		return &engine.ValidationError{Field: "initial_balance", Message: "starting balance cannot be negative"}
	}
	return nil
}
