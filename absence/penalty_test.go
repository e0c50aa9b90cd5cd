package absence_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staffo/absence-engine/absence"
	"github.com/staffo/absence-engine/engine"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func seedSickLeave(t *testing.T, store absence.TxStore, svc *absence.RequestService, employeeID string, days int) {
	t.Helper()
	dates := make([]engine.Date, days)
	for i := range dates {
		dates[i] = engine.NewDate(2025, time.February, 1+i)
	}
	_, err := svc.Submit(context.Background(), absence.SubmitInput{
		EmployeeID:  employeeID,
		Kind:        engine.KindSickLeave,
		Dates:       dates,
		PreApproved: true,
		Actor:       "admin",
	})
	require.NoError(t, err)
}

// =============================================================================
// ASSESS
// =============================================================================

func TestAssess_BelowFloorNotApplicable(t *testing.T) {
	store := newTestStore(t)
	requests := newRequestService(store)
	penalties := absence.NewPenaltyService(store)
	seedEmployee(t, store, "emp-1", 80)
	ctx := context.Background()

	require.NoError(t, store.SetAnnualExcessHours(ctx, 2025, 100))
	seedSickLeave(t, store, requests, "emp-1", 7)

	a, err := penalties.Assess(ctx, "emp-1", 2025)
	require.NoError(t, err)
	assert.False(t, a.Applicable())
	assert.Equal(t, engine.ReasonBelowFloor, a.Reason)
}

func TestAssess_MissingExcessHoursIsResultNotError(t *testing.T) {
	store := newTestStore(t)
	requests := newRequestService(store)
	penalties := absence.NewPenaltyService(store)
	seedEmployee(t, store, "emp-1", 80)
	ctx := context.Background()

	seedSickLeave(t, store, requests, "emp-1", 10)

	a, err := penalties.Assess(ctx, "emp-1", 2025)
	require.NoError(t, err)
	assert.Equal(t, engine.ReasonMissingExcessHours, a.Reason)
	assert.Equal(t, 10, a.SickDays)
}

func TestAssess_UnknownEmployee(t *testing.T) {
	store := newTestStore(t)
	penalties := absence.NewPenaltyService(store)

	_, err := penalties.Assess(context.Background(), "ghost", 2025)
	assert.ErrorIs(t, err, engine.ErrEmployeeNotFound)
}

// =============================================================================
// APPLY
// =============================================================================

func TestApply_DeductsAndRecordsAtomically(t *testing.T) {
	// GIVEN: 10 sick days against 80 excess hours (25% tier, 20h gross)
	// WHEN: Applying
	// THEN: Balance down 20h and the record holds the gross figure

	store := newTestStore(t)
	requests := newRequestService(store)
	penalties := absence.NewPenaltyService(store)
	seedEmployee(t, store, "emp-1", 80)
	ctx := context.Background()

	require.NoError(t, store.SetAnnualExcessHours(ctx, 2025, 80))
	seedSickLeave(t, store, requests, "emp-1", 10)

	a, err := penalties.Apply(ctx, "emp-1", 2025)
	require.NoError(t, err)
	assert.Equal(t, engine.Hours(20), a.GrossPenaltyHours)
	assert.Equal(t, engine.Hours(20), a.IncrementalHours)

	emp, err := store.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, engine.Hours(60), emp.BalanceHours)

	rec, err := store.GetPenalization(ctx, "emp-1", 2025)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, engine.Hours(20), rec.HoursApplied)
}

func TestApply_SecondRunNothingToApply(t *testing.T) {
	store := newTestStore(t)
	requests := newRequestService(store)
	penalties := absence.NewPenaltyService(store)
	seedEmployee(t, store, "emp-1", 80)
	ctx := context.Background()

	require.NoError(t, store.SetAnnualExcessHours(ctx, 2025, 80))
	seedSickLeave(t, store, requests, "emp-1", 10)

	_, err := penalties.Apply(ctx, "emp-1", 2025)
	require.NoError(t, err)

	_, err = penalties.Apply(ctx, "emp-1", 2025)
	assert.ErrorIs(t, err, engine.ErrNothingToApply)

	// The failed second run must not touch the balance.
	emp, err := store.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, engine.Hours(60), emp.BalanceHours)
}

func TestApply_TierEscalationAppliesOnlyIncrement(t *testing.T) {
	// GIVEN: 20h already applied at the 25% tier, then more sick days push
	//        the employee into the 50% tier
	// WHEN: Re-applying
	// THEN: Only the 20h difference is deducted; the record shows 40h gross

	store := newTestStore(t)
	requests := newRequestService(store)
	penalties := absence.NewPenaltyService(store)
	seedEmployee(t, store, "emp-1", 100)
	ctx := context.Background()

	require.NoError(t, store.SetAnnualExcessHours(ctx, 2025, 80))
	seedSickLeave(t, store, requests, "emp-1", 10)

	_, err := penalties.Apply(ctx, "emp-1", 2025)
	require.NoError(t, err)

	// Another sick stretch in March moves the count to 16.
	dates := make([]engine.Date, 6)
	for i := range dates {
		dates[i] = engine.NewDate(2025, time.March, 1+i)
	}
	_, err = requests.Submit(ctx, absence.SubmitInput{
		EmployeeID:  "emp-1",
		Kind:        engine.KindSickLeave,
		Dates:       dates,
		PreApproved: true,
		Actor:       "admin",
	})
	require.NoError(t, err)

	a, err := penalties.Apply(ctx, "emp-1", 2025)
	require.NoError(t, err)
	assert.Equal(t, engine.Hours(40), a.GrossPenaltyHours)
	assert.Equal(t, engine.Hours(20), a.IncrementalHours)

	emp, err := store.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, engine.Hours(60), emp.BalanceHours)

	rec, err := store.GetPenalization(ctx, "emp-1", 2025)
	require.NoError(t, err)
	assert.Equal(t, engine.Hours(40), rec.HoursApplied)
}

func TestApply_PenaltyMayDriveBalanceNegative(t *testing.T) {
	// Penalties deduct unconditionally; a low balance goes negative rather
	// than blocking the penalty.

	store := newTestStore(t)
	requests := newRequestService(store)
	penalties := absence.NewPenaltyService(store)
	seedEmployee(t, store, "emp-1", 8)
	ctx := context.Background()

	require.NoError(t, store.SetAnnualExcessHours(ctx, 2025, 80))
	seedSickLeave(t, store, requests, "emp-1", 10)

	_, err := penalties.Apply(ctx, "emp-1", 2025)
	require.NoError(t, err)

	emp, err := store.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, engine.Hours(-12), emp.BalanceHours)
}

func TestApply_ConcurrentSameKeyRejected(t *testing.T) {
	// Two goroutines racing the same (employee, year): exactly one commits,
	// the other fails with a conflict or finds nothing left to apply.

	store := newTestStore(t)
	requests := newRequestService(store)
	penalties := absence.NewPenaltyService(store)
	seedEmployee(t, store, "emp-1", 80)
	ctx := context.Background()

	require.NoError(t, store.SetAnnualExcessHours(ctx, 2025, 80))
	seedSickLeave(t, store, requests, "emp-1", 10)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = penalties.Apply(ctx, "emp-1", 2025)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		if !errors.Is(err, engine.ErrConcurrencyConflict) && !errors.Is(err, engine.ErrNothingToApply) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)

	emp, err := store.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, engine.Hours(60), emp.BalanceHours)
}

// =============================================================================
// LISTING
// =============================================================================

func TestListLiable_ExcludesAtOrBelowFloor(t *testing.T) {
	store := newTestStore(t)
	requests := newRequestService(store)
	penalties := absence.NewPenaltyService(store)
	ctx := context.Background()

	seedEmployee(t, store, "emp-low", 80)
	seedEmployee(t, store, "emp-high", 80)
	require.NoError(t, store.SetAnnualExcessHours(ctx, 2025, 80))

	seedSickLeave(t, store, requests, "emp-low", 7)
	seedSickLeave(t, store, requests, "emp-high", 12)

	liable, err := penalties.ListLiable(ctx, 2025)
	require.NoError(t, err)

	require.Len(t, liable, 1)
	assert.Equal(t, "emp-high", liable[0].Employee.ID)
	assert.Equal(t, 12, liable[0].Assessment.SickDays)
}

func TestListLiable_OrderedBySickDaysDescending(t *testing.T) {
	store := newTestStore(t)
	requests := newRequestService(store)
	penalties := absence.NewPenaltyService(store)
	ctx := context.Background()

	seedEmployee(t, store, "emp-a", 80)
	seedEmployee(t, store, "emp-b", 80)

	seedSickLeave(t, store, requests, "emp-a", 9)
	seedSickLeave(t, store, requests, "emp-b", 15)

	liable, err := penalties.ListLiable(ctx, 2025)
	require.NoError(t, err)

	require.Len(t, liable, 2)
	assert.Equal(t, "emp-b", liable[0].Employee.ID)
	assert.Equal(t, "emp-a", liable[1].Employee.ID)
}

