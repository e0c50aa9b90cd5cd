package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staffo/absence-engine/engine"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func date(year int, month time.Month, day int) engine.Date {
	return engine.NewDate(year, month, day)
}

func at(year int, month time.Month, day, hour int) time.Time {
	return time.Date(year, month, day, hour, 0, 0, 0, time.UTC)
}

func year2025() engine.Period {
	return engine.YearPeriod(2025)
}

func approvedVacation(id string, decidedAt time.Time, days ...engine.Date) engine.AbsenceRequest {
	return engine.AbsenceRequest{
		ID:             id,
		EmployeeID:     "emp-1",
		Kind:           engine.KindVacation,
		Status:         engine.StatusApproved,
		RequestedDates: days,
		CreatedAt:      decidedAt.Add(-24 * time.Hour),
		DecidedAt:      &decidedAt,
		DecidedBy:      "admin",
	}
}

func addAdjustment(id string, d engine.Date, createdAt time.Time, hours engine.Hours) engine.BalanceAdjustment {
	return engine.BalanceAdjustment{
		ID:          id,
		EmployeeID:  "emp-1",
		Date:        d,
		Mode:        engine.AdjustAdd,
		AmountHours: hours,
		Reason:      "grant",
		CreatedAt:   createdAt,
	}
}

// =============================================================================
// DELTA RULES
// =============================================================================

func TestReconstructLedger_ApprovalDeductsEightHoursPerDay(t *testing.T) {
	// GIVEN: An opening grant of 80h and an approved 3-day vacation
	// WHEN: Reconstructing the year
	// THEN: The approval event deducts 24h and balances chain correctly

	req := approvedVacation("req-1", at(2025, time.March, 1, 10),
		date(2025, time.March, 10), date(2025, time.March, 11), date(2025, time.March, 12))

	ledger, err := engine.ReconstructLedger(engine.LedgerInput{
		EmployeeID:  "emp-1",
		Requests:    []engine.AbsenceRequest{req},
		Adjustments: []engine.BalanceAdjustment{addAdjustment("adj-1", date(2025, time.January, 1), at(2025, time.January, 1, 0), 80)},
		Period:      year2025(),
	})
	require.NoError(t, err)

	require.Len(t, ledger.Events, 2)
	approval := ledger.Events[1]
	assert.Equal(t, engine.EventApproval, approval.Kind)
	assert.Equal(t, engine.Hours(-24), approval.DeltaHours)
	assert.Equal(t, engine.Hours(80), approval.BalanceBefore)
	assert.Equal(t, engine.Hours(56), approval.BalanceAfter)
	assert.Equal(t, engine.Hours(56), ledger.ClosingBalance)
}

func TestReconstructLedger_HourBasedRequestDeductsRequestedHours(t *testing.T) {
	// GIVEN: An approved 3-hour permission on a single day
	// WHEN: Reconstructing
	// THEN: Exactly 3 hours are deducted, not a full day

	decidedAt := at(2025, time.April, 1, 9)
	req := engine.AbsenceRequest{
		ID:             "req-hour",
		EmployeeID:     "emp-1",
		Kind:           engine.KindPermission,
		Status:         engine.StatusApproved,
		RequestedDates: []engine.Date{date(2025, time.April, 2)},
		RequestedHours: 3,
		CreatedAt:      decidedAt.Add(-time.Hour),
		DecidedAt:      &decidedAt,
	}

	ledger, err := engine.ReconstructLedger(engine.LedgerInput{
		EmployeeID: "emp-1",
		Requests:   []engine.AbsenceRequest{req},
		Period:     year2025(),
	})
	require.NoError(t, err)

	require.Len(t, ledger.Events, 1)
	assert.Equal(t, engine.Hours(-3), ledger.Events[0].DeltaHours)
}

func TestReconstructLedger_SaleDeductsSoldHours(t *testing.T) {
	// GIVEN: An approved sale of 16 vacation hours, no calendar days
	// WHEN: Reconstructing
	// THEN: The sold hours are deducted on the decision date

	decidedAt := at(2025, time.June, 15, 14)
	req := engine.AbsenceRequest{
		ID:             "req-sale",
		EmployeeID:     "emp-1",
		Kind:           engine.KindVacation,
		Status:         engine.StatusApproved,
		RequestedHours: 16,
		IsSale:         true,
		CreatedAt:      decidedAt.Add(-time.Hour),
		DecidedAt:      &decidedAt,
	}

	ledger, err := engine.ReconstructLedger(engine.LedgerInput{
		EmployeeID: "emp-1",
		Requests:   []engine.AbsenceRequest{req},
		Period:     year2025(),
	})
	require.NoError(t, err)

	require.Len(t, ledger.Events, 1)
	assert.Equal(t, engine.Hours(-16), ledger.Events[0].DeltaHours)
	assert.True(t, ledger.Events[0].Date.Equal(date(2025, time.June, 15)))
}

func TestReconstructLedger_DenialIsZeroDeltaAuditEvent(t *testing.T) {
	// GIVEN: A denied request
	// WHEN: Reconstructing
	// THEN: A denial event appears with delta 0 and an unchanged balance

	decidedAt := at(2025, time.May, 5, 12)
	req := engine.AbsenceRequest{
		ID:             "req-denied",
		EmployeeID:     "emp-1",
		Kind:           engine.KindVacation,
		Status:         engine.StatusDenied,
		RequestedDates: []engine.Date{date(2025, time.May, 20)},
		CreatedAt:      decidedAt.Add(-time.Hour),
		DecidedAt:      &decidedAt,
	}

	ledger, err := engine.ReconstructLedger(engine.LedgerInput{
		EmployeeID: "emp-1",
		Requests:   []engine.AbsenceRequest{req},
		Period:     year2025(),
	})
	require.NoError(t, err)

	require.Len(t, ledger.Events, 1)
	assert.Equal(t, engine.EventDenial, ledger.Events[0].Kind)
	assert.Equal(t, engine.Hours(0), ledger.Events[0].DeltaHours)
	assert.Equal(t, ledger.Events[0].BalanceBefore, ledger.Events[0].BalanceAfter)
}

func TestReconstructLedger_PendingRequestsAreInvisible(t *testing.T) {
	// Pending requests reserve nothing in the ledger until decided.

	req := engine.AbsenceRequest{
		ID:             "req-pending",
		EmployeeID:     "emp-1",
		Kind:           engine.KindVacation,
		Status:         engine.StatusPending,
		RequestedDates: []engine.Date{date(2025, time.July, 1)},
		CreatedAt:      at(2025, time.June, 1, 9),
	}

	ledger, err := engine.ReconstructLedger(engine.LedgerInput{
		EmployeeID: "emp-1",
		Requests:   []engine.AbsenceRequest{req},
		Period:     year2025(),
	})
	require.NoError(t, err)
	assert.Empty(t, ledger.Events)
}

// =============================================================================
// CANCELLATIONS
// =============================================================================

func TestReconstructLedger_FullCancellationRestoresOutstanding(t *testing.T) {
	// GIVEN: A 2-day approved vacation later fully cancelled
	// WHEN: Reconstructing
	// THEN: The cancellation restores the full 16h and the net effect is zero

	req := approvedVacation("req-1", at(2025, time.March, 1, 10),
		date(2025, time.March, 10), date(2025, time.March, 11))
	req.Status = engine.StatusCancelled
	req.Cancellations = []engine.Cancellation{
		{At: at(2025, time.March, 5, 16), Reason: "plans changed"},
	}

	ledger, err := engine.ReconstructLedger(engine.LedgerInput{
		EmployeeID: "emp-1",
		Requests:   []engine.AbsenceRequest{req},
		Period:     year2025(),
	})
	require.NoError(t, err)

	require.Len(t, ledger.Events, 2)
	assert.Equal(t, engine.EventFullCancellation, ledger.Events[1].Kind)
	assert.Equal(t, engine.Hours(16), ledger.Events[1].DeltaHours)
	assert.Equal(t, engine.Hours(0), ledger.ClosingBalance)
}

func TestReconstructLedger_PartialThenFullCancellation(t *testing.T) {
	// GIVEN: A 3-day vacation, one day partially cancelled, then the rest
	// WHEN: Reconstructing
	// THEN: Partial restores 8h, final full cancellation restores only the
	//       remaining 16h, never the already-restored day again

	req := approvedVacation("req-1", at(2025, time.March, 1, 10),
		date(2025, time.March, 10), date(2025, time.March, 11), date(2025, time.March, 12))
	req.Status = engine.StatusCancelled
	req.Cancellations = []engine.Cancellation{
		{Dates: []engine.Date{date(2025, time.March, 12)}, At: at(2025, time.March, 3, 9)},
		{At: at(2025, time.March, 6, 9)},
	}

	ledger, err := engine.ReconstructLedger(engine.LedgerInput{
		EmployeeID: "emp-1",
		Requests:   []engine.AbsenceRequest{req},
		Period:     year2025(),
	})
	require.NoError(t, err)

	require.Len(t, ledger.Events, 3)
	assert.Equal(t, engine.Hours(-24), ledger.Events[0].DeltaHours)
	assert.Equal(t, engine.EventPartialCancellation, ledger.Events[1].Kind)
	assert.Equal(t, engine.Hours(8), ledger.Events[1].DeltaHours)
	assert.Equal(t, engine.EventFullCancellation, ledger.Events[2].Kind)
	assert.Equal(t, engine.Hours(16), ledger.Events[2].DeltaHours)
	assert.Equal(t, engine.Hours(0), ledger.ClosingBalance)
}

func TestReconstructLedger_CancellationBeforeApprovalRejected(t *testing.T) {
	// A cancellation timestamped before the approval cannot be ordered
	// without guessing; the builder must refuse.

	req := approvedVacation("req-1", at(2025, time.March, 10, 10), date(2025, time.March, 20))
	req.Status = engine.StatusCancelled
	req.Cancellations = []engine.Cancellation{
		{At: at(2025, time.March, 1, 8)},
	}

	_, err := engine.ReconstructLedger(engine.LedgerInput{
		EmployeeID: "emp-1",
		Requests:   []engine.AbsenceRequest{req},
		Period:     year2025(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrDataIntegrity)
}

func TestReconstructLedger_CancelledDatesOutsideRemainingRejected(t *testing.T) {
	// Cancelling a date the request never covered is corrupt history.

	req := approvedVacation("req-1", at(2025, time.March, 1, 10), date(2025, time.March, 10))
	req.Status = engine.StatusPartiallyCancelled
	req.Cancellations = []engine.Cancellation{
		{Dates: []engine.Date{date(2025, time.April, 1)}, At: at(2025, time.March, 5, 9)},
	}

	_, err := engine.ReconstructLedger(engine.LedgerInput{
		EmployeeID: "emp-1",
		Requests:   []engine.AbsenceRequest{req},
		Period:     year2025(),
	})
	assert.ErrorIs(t, err, engine.ErrDataIntegrity)
}

func TestReconstructLedger_ApprovedWithoutDecisionTimestampRejected(t *testing.T) {
	req := engine.AbsenceRequest{
		ID:             "req-bad",
		EmployeeID:     "emp-1",
		Kind:           engine.KindVacation,
		Status:         engine.StatusApproved,
		RequestedDates: []engine.Date{date(2025, time.March, 10)},
		CreatedAt:      at(2025, time.March, 1, 9),
	}

	_, err := engine.ReconstructLedger(engine.LedgerInput{
		EmployeeID: "emp-1",
		Requests:   []engine.AbsenceRequest{req},
		Period:     year2025(),
	})
	assert.ErrorIs(t, err, engine.ErrDataIntegrity)
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

func TestReconstructLedger_SetModeAdjustmentUsesRunningBalance(t *testing.T) {
	// GIVEN: +80h grant, then a set-to-100 adjustment
	// WHEN: Reconstructing
	// THEN: The set event's delta is the difference against the running
	//       balance at its position, +20h

	adjustments := []engine.BalanceAdjustment{
		addAdjustment("adj-1", date(2025, time.January, 1), at(2025, time.January, 1, 8), 80),
		{
			ID:          "adj-2",
			EmployeeID:  "emp-1",
			Date:        date(2025, time.February, 1),
			Mode:        engine.AdjustSet,
			AmountHours: 100,
			Reason:      "audit correction",
			CreatedAt:   at(2025, time.February, 1, 8),
		},
	}

	ledger, err := engine.ReconstructLedger(engine.LedgerInput{
		EmployeeID:  "emp-1",
		Adjustments: adjustments,
		Period:      year2025(),
	})
	require.NoError(t, err)

	require.Len(t, ledger.Events, 2)
	assert.Equal(t, engine.Hours(20), ledger.Events[1].DeltaHours)
	assert.Equal(t, engine.Hours(100), ledger.ClosingBalance)
}

func TestReconstructLedger_SubtractAdjustment(t *testing.T) {
	ledger, err := engine.ReconstructLedger(engine.LedgerInput{
		EmployeeID: "emp-1",
		Adjustments: []engine.BalanceAdjustment{{
			ID:          "adj-1",
			EmployeeID:  "emp-1",
			Date:        date(2025, time.March, 1),
			Mode:        engine.AdjustSubtract,
			AmountHours: 12,
			Reason:      "clawback",
			CreatedAt:   at(2025, time.March, 1, 8),
		}},
		Period: year2025(),
	})
	require.NoError(t, err)
	assert.Equal(t, engine.Hours(-12), ledger.ClosingBalance)
}

// =============================================================================
// WINDOWING AND OPENING BALANCE
// =============================================================================

func TestReconstructLedger_OpeningBalanceBackComputedFromPriorHistory(t *testing.T) {
	// GIVEN: A 2024 grant of 80h and a 2024 vacation of 2 days
	// WHEN: Reconstructing only 2025
	// THEN: The opening balance is 64h and no 2024 events appear

	req := approvedVacation("req-2024", at(2024, time.August, 1, 10),
		date(2024, time.August, 10), date(2024, time.August, 11))

	ledger, err := engine.ReconstructLedger(engine.LedgerInput{
		EmployeeID: "emp-1",
		Requests:   []engine.AbsenceRequest{req},
		Adjustments: []engine.BalanceAdjustment{
			addAdjustment("adj-1", date(2024, time.January, 1), at(2024, time.January, 1, 8), 80),
		},
		Period: year2025(),
	})
	require.NoError(t, err)

	assert.Equal(t, engine.Hours(64), ledger.OpeningBalance)
	assert.Equal(t, engine.Hours(64), ledger.ClosingBalance)
	assert.Empty(t, ledger.Events)
}

func TestReconstructLedger_EventsAfterWindowIgnored(t *testing.T) {
	// A 2026 request must not leak into a 2025 window.

	req := approvedVacation("req-2026", at(2026, time.February, 1, 10), date(2026, time.February, 10))

	ledger, err := engine.ReconstructLedger(engine.LedgerInput{
		EmployeeID: "emp-1",
		Requests:   []engine.AbsenceRequest{req},
		Period:     year2025(),
	})
	require.NoError(t, err)
	assert.Empty(t, ledger.Events)
	assert.Equal(t, engine.Hours(0), ledger.ClosingBalance)
}

func TestReconstructLedger_InvalidPeriodRejected(t *testing.T) {
	_, err := engine.ReconstructLedger(engine.LedgerInput{
		EmployeeID: "emp-1",
		Period:     engine.Period{Start: date(2025, time.June, 1), End: date(2025, time.January, 1)},
	})
	assert.ErrorIs(t, err, engine.ErrValidation)
}

// =============================================================================
// DETERMINISM
// =============================================================================

func TestReconstructLedger_DeterministicAcrossInputOrder(t *testing.T) {
	// GIVEN: Several events sharing dates, presented in two different orders
	// WHEN: Reconstructing both
	// THEN: The event sequences are identical

	reqA := approvedVacation("req-a", at(2025, time.March, 1, 9), date(2025, time.March, 10))
	reqB := approvedVacation("req-b", at(2025, time.March, 1, 11), date(2025, time.March, 11))
	adj := addAdjustment("adj-1", date(2025, time.March, 1), at(2025, time.March, 1, 10), 40)

	first, err := engine.ReconstructLedger(engine.LedgerInput{
		EmployeeID:  "emp-1",
		Requests:    []engine.AbsenceRequest{reqA, reqB},
		Adjustments: []engine.BalanceAdjustment{adj},
		Period:      year2025(),
	})
	require.NoError(t, err)

	second, err := engine.ReconstructLedger(engine.LedgerInput{
		EmployeeID:  "emp-1",
		Requests:    []engine.AbsenceRequest{reqB, reqA},
		Adjustments: []engine.BalanceAdjustment{adj},
		Period:      year2025(),
	})
	require.NoError(t, err)

	require.Equal(t, len(first.Events), len(second.Events))
	for i := range first.Events {
		assert.Equal(t, first.Events[i], second.Events[i], "event %d differs", i)
	}
	assert.Equal(t, first.ClosingBalance, second.ClosingBalance)
}

func TestReconstructLedger_EventsOrderedByDateThenTimestamp(t *testing.T) {
	// Same-date events resolve by originating record timestamp.

	reqLater := approvedVacation("req-later", at(2025, time.March, 1, 15), date(2025, time.March, 20))
	reqEarlier := approvedVacation("req-earlier", at(2025, time.March, 1, 8), date(2025, time.March, 21))

	ledger, err := engine.ReconstructLedger(engine.LedgerInput{
		EmployeeID: "emp-1",
		Requests:   []engine.AbsenceRequest{reqLater, reqEarlier},
		Period:     year2025(),
	})
	require.NoError(t, err)

	require.Len(t, ledger.Events, 2)
	assert.Equal(t, "req-earlier", ledger.Events[0].RefID)
	assert.Equal(t, "req-later", ledger.Events[1].RefID)
}
