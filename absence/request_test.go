package absence_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staffo/absence-engine/absence"
	"github.com/staffo/absence-engine/engine"
	"github.com/staffo/absence-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *memory.Store {
	t.Helper()
	return memory.New()
}

func newRequestService(store absence.TxStore) *absence.RequestService {
	svc := absence.NewRequestService(store)
	svc.Now = func() time.Time { return time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC) }
	n := 0
	svc.NewID = func() string { n++; return fmt.Sprintf("req-%d", n) }
	return svc
}

func seedEmployee(t *testing.T, store absence.TxStore, id string, balance engine.Hours) {
	t.Helper()
	err := store.SaveEmployee(context.Background(), absence.Employee{
		ID:           id,
		Name:         "Test Employee",
		Email:        id + "@example.com",
		Role:         "engineer",
		BalanceHours: balance,
		CreatedAt:    time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
}

func vacationDates(startDay, n int) []engine.Date {
	dates := make([]engine.Date, n)
	for i := range dates {
		dates[i] = engine.NewDate(2025, time.July, startDay+i)
	}
	return dates
}

// =============================================================================
// SUBMISSION
// =============================================================================

func TestSubmit_PendingVacation(t *testing.T) {
	store := newTestStore(t)
	svc := newRequestService(store)
	seedEmployee(t, store, "emp-1", 80)

	req, err := svc.Submit(context.Background(), absence.SubmitInput{
		EmployeeID: "emp-1",
		Kind:       engine.KindVacation,
		Dates:      vacationDates(7, 3),
	})
	require.NoError(t, err)

	assert.Equal(t, engine.StatusPending, req.Status)
	assert.Len(t, req.RequestedDates, 3)

	// Pending requests never move the balance.
	emp, err := store.GetEmployee(context.Background(), "emp-1")
	require.NoError(t, err)
	assert.Equal(t, engine.Hours(80), emp.BalanceHours)
}

func TestSubmit_InsufficientBalanceRejected(t *testing.T) {
	// GIVEN: 16h of balance
	// WHEN: Requesting 3 vacation days (24h)
	// THEN: Rejected even though nothing would be deducted until approval

	store := newTestStore(t)
	svc := newRequestService(store)
	seedEmployee(t, store, "emp-1", 16)

	_, err := svc.Submit(context.Background(), absence.SubmitInput{
		EmployeeID: "emp-1",
		Kind:       engine.KindVacation,
		Dates:      vacationDates(7, 3),
	})
	assert.ErrorIs(t, err, engine.ErrInsufficientBalance)
}

func TestSubmit_PendingRequestsReserveBalance(t *testing.T) {
	// GIVEN: 24h balance, a pending 2-day vacation (16h reserved)
	// WHEN: Submitting another 2-day vacation
	// THEN: Rejected; only 8h remain unreserved

	store := newTestStore(t)
	svc := newRequestService(store)
	seedEmployee(t, store, "emp-1", 24)

	_, err := svc.Submit(context.Background(), absence.SubmitInput{
		EmployeeID: "emp-1",
		Kind:       engine.KindVacation,
		Dates:      vacationDates(7, 2),
	})
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), absence.SubmitInput{
		EmployeeID: "emp-1",
		Kind:       engine.KindVacation,
		Dates:      vacationDates(14, 2),
	})
	assert.ErrorIs(t, err, engine.ErrInsufficientBalance)
}

func TestSubmit_SickLeaveIgnoresBalance(t *testing.T) {
	// Sick leave is not balance-backed; zero balance is no obstacle.

	store := newTestStore(t)
	svc := newRequestService(store)
	seedEmployee(t, store, "emp-1", 0)

	req, err := svc.Submit(context.Background(), absence.SubmitInput{
		EmployeeID: "emp-1",
		Kind:       engine.KindSickLeave,
		Dates:      vacationDates(7, 5),
	})
	require.NoError(t, err)
	assert.Equal(t, engine.StatusPending, req.Status)
}

func TestSubmit_PreApprovedDeductsImmediately(t *testing.T) {
	store := newTestStore(t)
	svc := newRequestService(store)
	seedEmployee(t, store, "emp-1", 80)

	req, err := svc.Submit(context.Background(), absence.SubmitInput{
		EmployeeID:  "emp-1",
		Kind:        engine.KindVacation,
		Dates:       vacationDates(7, 2),
		PreApproved: true,
		Actor:       "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, engine.StatusApproved, req.Status)
	assert.Equal(t, "admin", req.DecidedBy)

	emp, err := store.GetEmployee(context.Background(), "emp-1")
	require.NoError(t, err)
	assert.Equal(t, engine.Hours(64), emp.BalanceHours)
}

func TestSubmit_ValidationRules(t *testing.T) {
	store := newTestStore(t)
	svc := newRequestService(store)
	seedEmployee(t, store, "emp-1", 80)
	ctx := context.Background()

	cases := []struct {
		name string
		in   absence.SubmitInput
	}{
		{"unknown kind", absence.SubmitInput{EmployeeID: "emp-1", Kind: "holiday", Dates: vacationDates(7, 1)}},
		{"no dates", absence.SubmitInput{EmployeeID: "emp-1", Kind: engine.KindVacation}},
		{"sale with dates", absence.SubmitInput{EmployeeID: "emp-1", Kind: engine.KindVacation, IsSale: true, Hours: 8, Dates: vacationDates(7, 1)}},
		{"sale of sick leave", absence.SubmitInput{EmployeeID: "emp-1", Kind: engine.KindSickLeave, IsSale: true, Hours: 8}},
		{"sale without hours", absence.SubmitInput{EmployeeID: "emp-1", Kind: engine.KindVacation, IsSale: true}},
		{"hour-based full day", absence.SubmitInput{EmployeeID: "emp-1", Kind: engine.KindPermission, Hours: 8, Dates: vacationDates(7, 1)}},
		{"hour-based two dates", absence.SubmitInput{EmployeeID: "emp-1", Kind: engine.KindPermission, Hours: 3, Dates: vacationDates(7, 2)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Submit(ctx, tc.in)
			assert.ErrorIs(t, err, engine.ErrValidation)
		})
	}
}

func TestSubmit_UnknownEmployee(t *testing.T) {
	store := newTestStore(t)
	svc := newRequestService(store)

	_, err := svc.Submit(context.Background(), absence.SubmitInput{
		EmployeeID: "ghost",
		Kind:       engine.KindVacation,
		Dates:      vacationDates(7, 1),
	})
	assert.ErrorIs(t, err, engine.ErrEmployeeNotFound)
}

// =============================================================================
// APPROVAL / DENIAL
// =============================================================================

func TestApprove_DeductsBalanceAtomically(t *testing.T) {
	store := newTestStore(t)
	svc := newRequestService(store)
	seedEmployee(t, store, "emp-1", 80)
	ctx := context.Background()

	req, err := svc.Submit(ctx, absence.SubmitInput{
		EmployeeID: "emp-1",
		Kind:       engine.KindVacation,
		Dates:      vacationDates(7, 3),
	})
	require.NoError(t, err)

	approved, err := svc.Approve(ctx, req.ID, "admin", "enjoy")
	require.NoError(t, err)
	assert.Equal(t, engine.StatusApproved, approved.Status)
	assert.Equal(t, "enjoy", approved.AdminComment)

	emp, err := store.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, engine.Hours(56), emp.BalanceHours)
}

func TestApprove_NonPendingRejected(t *testing.T) {
	store := newTestStore(t)
	svc := newRequestService(store)
	seedEmployee(t, store, "emp-1", 80)
	ctx := context.Background()

	req, err := svc.Submit(ctx, absence.SubmitInput{
		EmployeeID: "emp-1",
		Kind:       engine.KindVacation,
		Dates:      vacationDates(7, 1),
	})
	require.NoError(t, err)

	_, err = svc.Deny(ctx, req.ID, "admin", "no")
	require.NoError(t, err)

	_, err = svc.Approve(ctx, req.ID, "admin", "")
	assert.ErrorIs(t, err, engine.ErrInvalidTransition)
}

func TestDeny_NoBalanceEffect(t *testing.T) {
	store := newTestStore(t)
	svc := newRequestService(store)
	seedEmployee(t, store, "emp-1", 80)
	ctx := context.Background()

	req, err := svc.Submit(ctx, absence.SubmitInput{
		EmployeeID: "emp-1",
		Kind:       engine.KindVacation,
		Dates:      vacationDates(7, 3),
	})
	require.NoError(t, err)

	denied, err := svc.Deny(ctx, req.ID, "admin", "blackout week")
	require.NoError(t, err)
	assert.Equal(t, engine.StatusDenied, denied.Status)

	emp, err := store.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, engine.Hours(80), emp.BalanceHours)
}

// =============================================================================
// CANCELLATION
// =============================================================================

func TestCancel_RestoresFullDeduction(t *testing.T) {
	store := newTestStore(t)
	svc := newRequestService(store)
	seedEmployee(t, store, "emp-1", 80)
	ctx := context.Background()

	req, err := svc.Submit(ctx, absence.SubmitInput{
		EmployeeID:  "emp-1",
		Kind:        engine.KindVacation,
		Dates:       vacationDates(7, 3),
		PreApproved: true,
		Actor:       "admin",
	})
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, req.ID, "plans changed")
	require.NoError(t, err)
	assert.Equal(t, engine.StatusCancelled, cancelled.Status)
	require.Len(t, cancelled.Cancellations, 1)
	assert.True(t, cancelled.Cancellations[0].IsFull())

	emp, err := store.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, engine.Hours(80), emp.BalanceHours)
}

func TestCancelPartial_RestoresOnlyCancelledDays(t *testing.T) {
	// GIVEN: An approved 3-day vacation (24h deducted)
	// WHEN: Cancelling one day
	// THEN: 8h restored, status partially_cancelled, original dates intact

	store := newTestStore(t)
	svc := newRequestService(store)
	seedEmployee(t, store, "emp-1", 80)
	ctx := context.Background()

	dates := vacationDates(7, 3)
	req, err := svc.Submit(ctx, absence.SubmitInput{
		EmployeeID:  "emp-1",
		Kind:        engine.KindVacation,
		Dates:       dates,
		PreApproved: true,
		Actor:       "admin",
	})
	require.NoError(t, err)

	result, err := svc.CancelPartial(ctx, req.ID, dates[:1], "half trip")
	require.NoError(t, err)
	assert.Equal(t, engine.StatusPartiallyCancelled, result.Status)
	assert.Len(t, result.RequestedDates, 3)
	assert.Len(t, result.EffectiveDates(), 2)

	emp, err := store.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, engine.Hours(64), emp.BalanceHours)
}

func TestCancelPartial_AllRemainingDaysFullyCancels(t *testing.T) {
	store := newTestStore(t)
	svc := newRequestService(store)
	seedEmployee(t, store, "emp-1", 80)
	ctx := context.Background()

	dates := vacationDates(7, 2)
	req, err := svc.Submit(ctx, absence.SubmitInput{
		EmployeeID:  "emp-1",
		Kind:        engine.KindVacation,
		Dates:       dates,
		PreApproved: true,
		Actor:       "admin",
	})
	require.NoError(t, err)

	result, err := svc.CancelPartial(ctx, req.ID, dates, "whole trip off")
	require.NoError(t, err)
	assert.Equal(t, engine.StatusCancelled, result.Status)

	emp, err := store.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, engine.Hours(80), emp.BalanceHours)
}

func TestCancelPartial_AlreadyCancelledDatesRejected(t *testing.T) {
	store := newTestStore(t)
	svc := newRequestService(store)
	seedEmployee(t, store, "emp-1", 80)
	ctx := context.Background()

	dates := vacationDates(7, 3)
	req, err := svc.Submit(ctx, absence.SubmitInput{
		EmployeeID:  "emp-1",
		Kind:        engine.KindVacation,
		Dates:       dates,
		PreApproved: true,
		Actor:       "admin",
	})
	require.NoError(t, err)

	_, err = svc.CancelPartial(ctx, req.ID, dates[:1], "first")
	require.NoError(t, err)

	_, err = svc.CancelPartial(ctx, req.ID, dates[:1], "again")
	assert.ErrorIs(t, err, engine.ErrValidation)
}

func TestCancelPartial_HourBasedRejected(t *testing.T) {
	store := newTestStore(t)
	svc := newRequestService(store)
	seedEmployee(t, store, "emp-1", 80)
	ctx := context.Background()

	req, err := svc.Submit(ctx, absence.SubmitInput{
		EmployeeID:  "emp-1",
		Kind:        engine.KindPermission,
		Dates:       vacationDates(7, 1),
		Hours:       3,
		PreApproved: true,
		Actor:       "admin",
	})
	require.NoError(t, err)

	_, err = svc.CancelPartial(ctx, req.ID, vacationDates(7, 1), "half")
	assert.ErrorIs(t, err, engine.ErrValidation)
}

func TestCancel_SaleRestoresSoldHours(t *testing.T) {
	store := newTestStore(t)
	svc := newRequestService(store)
	seedEmployee(t, store, "emp-1", 40)
	ctx := context.Background()

	req, err := svc.Submit(ctx, absence.SubmitInput{
		EmployeeID:  "emp-1",
		Kind:        engine.KindVacation,
		Hours:       16,
		IsSale:      true,
		PreApproved: true,
		Actor:       "admin",
	})
	require.NoError(t, err)

	emp, err := store.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	require.Equal(t, engine.Hours(24), emp.BalanceHours)

	_, err = svc.Cancel(ctx, req.ID, "payroll error")
	require.NoError(t, err)

	emp, err = store.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, engine.Hours(40), emp.BalanceHours)
}

// =============================================================================
// LEDGER SERVICE INTEGRATION
// =============================================================================

func TestLedgerService_EndToEnd(t *testing.T) {
	// GIVEN: A grant, an approved vacation, and a partial cancellation
	// WHEN: Reconstructing the year through the service
	// THEN: Events chain and the closing balance matches the stored one

	store := newTestStore(t)
	svc := newRequestService(store)
	adjustments := absence.NewAdjustmentService(store)
	ledgers := absence.NewLedgerService(store)
	seedEmployee(t, store, "emp-1", 0)
	ctx := context.Background()

	_, err := adjustments.Create(ctx, absence.AdjustInput{
		EmployeeID:  "emp-1",
		Date:        engine.NewDate(2025, time.January, 1),
		Mode:        engine.AdjustAdd,
		AmountHours: 80,
		Reason:      "annual grant",
	})
	require.NoError(t, err)

	dates := vacationDates(7, 3)
	req, err := svc.Submit(ctx, absence.SubmitInput{
		EmployeeID:  "emp-1",
		Kind:        engine.KindVacation,
		Dates:       dates,
		PreApproved: true,
		Actor:       "admin",
	})
	require.NoError(t, err)

	_, err = svc.CancelPartial(ctx, req.ID, dates[2:], "back early")
	require.NoError(t, err)

	ledger, err := ledgers.Reconstruct(ctx, "emp-1", engine.YearPeriod(2025))
	require.NoError(t, err)

	require.Len(t, ledger.Events, 3)
	assert.Equal(t, engine.EventAdjustment, ledger.Events[0].Kind)
	assert.Equal(t, engine.EventApproval, ledger.Events[1].Kind)
	assert.Equal(t, engine.EventPartialCancellation, ledger.Events[2].Kind)
	assert.Equal(t, engine.Hours(64), ledger.ClosingBalance)

	emp, err := store.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.ClosingBalance, emp.BalanceHours)

	// Balance chaining holds across every event.
	for i := 1; i < len(ledger.Events); i++ {
		assert.Equal(t, ledger.Events[i-1].BalanceAfter, ledger.Events[i].BalanceBefore)
	}
}
