package absence

import (
	"context"

	"github.com/staffo/absence-engine/engine"
)

// =============================================================================
// LEDGER SERVICE - Snapshot + replay
// =============================================================================

// LedgerService feeds the pure ledger builder with one consistent snapshot
// per call. The builder always recomputes from scratch; there is no
// incremental mode, so callers that stream live updates must re-invoke.
type LedgerService struct {
	Store Store
}

func NewLedgerService(store Store) *LedgerService {
	return &LedgerService{Store: store}
}

// Reconstruct rebuilds the employee's balance ledger over the period.
// Only balance-backed requests (vacation, permission) feed balance deltas;
// sick leave reaches the balance exclusively through the penalty path.
// Denied balance-backed requests are included for audit visibility.
func (s *LedgerService) Reconstruct(ctx context.Context, employeeID string, period engine.Period) (*engine.Ledger, error) {
	if _, err := s.Store.GetEmployee(ctx, employeeID); err != nil {
		return nil, err
	}

	all, err := s.Store.ListRequestsByEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	var requests []engine.AbsenceRequest
	for i := range all {
		if balanceBacked(all[i].Kind) {
			requests = append(requests, all[i])
		}
	}

	adjustments, err := s.Store.ListAdjustmentsByEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}

	return engine.ReconstructLedger(engine.LedgerInput{
		EmployeeID:  employeeID,
		Requests:    requests,
		Adjustments: adjustments,
		Period:      period,
	})
}
