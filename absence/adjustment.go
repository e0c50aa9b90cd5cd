package absence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/staffo/absence-engine/engine"
)

// =============================================================================
// ADJUSTMENT SERVICE - Manual balance corrections
// =============================================================================

// AdjustmentService records manual corrections and applies their delta to
// the stored balance in one transaction. Adjustments are immutable once
// created; ordering is by creation timestamp, not the editable Date field.
type AdjustmentService struct {
	Store TxStore
	Now   func() time.Time
	NewID func() string
}

func NewAdjustmentService(store TxStore) *AdjustmentService {
	return &AdjustmentService{
		Store: store,
		Now:   time.Now,
		NewID: uuid.NewString,
	}
}

// AdjustInput describes one correction.
type AdjustInput struct {
	EmployeeID  string
	Date        engine.Date
	Mode        engine.AdjustmentMode
	AmountHours engine.Hours
	Reason      string
}

// Create validates, stores, and applies the adjustment.
// For mode "set" the delta is computed against the live stored balance.
func (s *AdjustmentService) Create(ctx context.Context, in AdjustInput) (*engine.BalanceAdjustment, error) {
	if err := validateAdjust(in); err != nil {
		return nil, err
	}

	adj := engine.BalanceAdjustment{
		ID:          s.NewID(),
		EmployeeID:  in.EmployeeID,
		Date:        in.Date,
		Mode:        in.Mode,
		AmountHours: in.AmountHours,
		Reason:      in.Reason,
		CreatedAt:   s.Now(),
	}

	err := s.Store.WithTx(ctx, func(tx Store) error {
		emp, err := tx.GetEmployee(ctx, in.EmployeeID)
		if err != nil {
			return err
		}

		var delta engine.Hours
		switch in.Mode {
		case engine.AdjustAdd:
			delta = in.AmountHours
		case engine.AdjustSubtract:
			delta = in.AmountHours.Neg()
		case engine.AdjustSet:
			delta = in.AmountHours - emp.BalanceHours
		}

		if err := tx.SaveAdjustment(ctx, adj); err != nil {
			return err
		}
		if delta == 0 {
			return nil
		}
		return tx.ApplyBalanceDelta(ctx, emp.ID, delta, emp.Version)
	})
	if err != nil {
		return nil, err
	}
	return &adj, nil
}

func validateAdjust(in AdjustInput) error {
	switch in.Mode {
	case engine.AdjustAdd, engine.AdjustSubtract:
		if in.AmountHours <= 0 {
			return &engine.ValidationError{Field: "amount_hours", Message: "amount must be positive"}
		}
	case engine.AdjustSet:
		if in.AmountHours < 0 {
			return &engine.ValidationError{Field: "amount_hours", Message: "target balance cannot be negative"}
		}
	default:
		return &engine.ValidationError{Field: "mode", Message: fmt.Sprintf("unknown mode %q", in.Mode)}
	}
	if in.Reason == "" {
		return &engine.ValidationError{Field: "reason", Message: "a reason is required"}
	}
	if in.Date.IsZero() {
		return &engine.ValidationError{Field: "date", Message: "a date is required"}
	}
	return nil
}
