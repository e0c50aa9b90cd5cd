/*
ledger.go - Balance ledger reconstruction

PURPOSE:
  Rebuilds an employee's running vacation-hour balance over a date window
  from the complete history of requests and manual adjustments. The stored
  "current balance" only reflects the present moment; answering "what was
  the balance on date X" requires replaying every balance-affecting event
  from the beginning of time. That replay also yields the opening balance
  for an arbitrary window start.

EVENT ORDERING:
  Events are ordered by their effective date, with the originating record's
  timestamp (and finally assembly order) as a stable tie-break. A history
  that cannot be ordered without guessing - a cancellation dated before its
  request's decision, a cancelled subset that is not within the remaining
  effective dates - is rejected with a DataIntegrityError. The builder never
  infers an ordering that could change financial outcomes.

DELTA RULES:
  approval             -8h x requested days (day-based)
                       -requested hours (hour-based, sale)
  denial               0 (audit visibility only)
  full cancellation    +hours still deducted for the request
  partial cancellation +8h x cancelled dates
  adjustment           +amount (add), -amount (subtract),
                       amount - running balance (set)

GUARANTEE:
  Pure and deterministic. Re-running with identical inputs yields identical
  output.
*/
package engine

import (
	"fmt"
	"sort"
	"time"
)

// =============================================================================
// INPUT / OUTPUT
// =============================================================================

// LedgerInput carries one consistent snapshot of an employee's history.
// Requests and adjustments must be the complete history, not pre-filtered to
// the period: the opening balance is back-computed from everything that came
// before Period.Start.
type LedgerInput struct {
	EmployeeID  string
	Requests    []AbsenceRequest
	Adjustments []BalanceAdjustment
	Period      Period
}

// Ledger is the reconstructed view over the requested window.
type Ledger struct {
	EmployeeID     string
	Period         Period
	OpeningBalance Hours
	ClosingBalance Hours
	Events         []BalanceEvent
}

// =============================================================================
// RECONSTRUCTION
// =============================================================================

// rawEvent is an unstamped candidate event. Deltas for set-mode adjustments
// depend on the running balance and are resolved during the walk.
type rawEvent struct {
	date Date
	at   time.Time // originating record timestamp, ordering tie-break
	seq  int       // assembly order, final tie-break
	kind EventKind

	delta   Hours // fixed delta; ignored for set-mode adjustments
	setTo   Hours // target balance for set-mode adjustments
	isSetTo bool

	refKind RefKind
	refID   string
	note    string
}

// ReconstructLedger replays the full event history and returns the window
// view with before/after balances stamped on every in-window event.
func ReconstructLedger(in LedgerInput) (*Ledger, error) {
	if !in.Period.Valid() {
		return nil, &ValidationError{Field: "period", Message: "end before start"}
	}

	events, err := collectEvents(in)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].date.Equal(events[j].date) {
			return events[i].date.Before(events[j].date)
		}
		if !events[i].at.Equal(events[j].at) {
			return events[i].at.Before(events[j].at)
		}
		return events[i].seq < events[j].seq
	})

	ledger := &Ledger{
		EmployeeID: in.EmployeeID,
		Period:     in.Period,
	}

	var balance Hours
	openingSet := false
	for _, e := range events {
		if e.date.After(in.Period.End) {
			break
		}

		delta := e.delta
		if e.isSetTo {
			delta = e.setTo - balance
		}

		if e.date.Before(in.Period.Start) {
			balance += delta
			continue
		}

		if !openingSet {
			ledger.OpeningBalance = balance
			openingSet = true
		}

		before := balance
		balance += delta
		ledger.Events = append(ledger.Events, BalanceEvent{
			Date:          e.date,
			Kind:          e.kind,
			DeltaHours:    delta,
			BalanceBefore: before,
			BalanceAfter:  balance,
			RefKind:       e.refKind,
			RefID:         e.refID,
			Note:          e.note,
		})
	}

	if !openingSet {
		// No events inside the window: the opening balance is simply the
		// accumulated balance before Period.Start.
		ledger.OpeningBalance = balance
	}
	ledger.ClosingBalance = balance

	return ledger, nil
}

// collectEvents expands requests and adjustments into raw candidate events.
func collectEvents(in LedgerInput) ([]rawEvent, error) {
	var events []rawEvent
	seq := 0
	next := func() int { seq++; return seq }

	for i := range in.Requests {
		req := &in.Requests[i]
		reqEvents, err := requestEvents(req, next)
		if err != nil {
			return nil, err
		}
		events = append(events, reqEvents...)
	}

	for _, adj := range in.Adjustments {
		e := rawEvent{
			date:    adj.Date,
			at:      adj.CreatedAt,
			seq:     next(),
			kind:    EventAdjustment,
			refKind: RefAdjustment,
			refID:   adj.ID,
			note:    adj.Reason,
		}
		switch adj.Mode {
		case AdjustAdd:
			e.delta = adj.AmountHours
		case AdjustSubtract:
			e.delta = adj.AmountHours.Neg()
		case AdjustSet:
			e.isSetTo = true
			e.setTo = adj.AmountHours
		default:
			return nil, &ValidationError{
				Field:   "mode",
				Message: fmt.Sprintf("unknown adjustment mode %q", adj.Mode),
			}
		}
		events = append(events, e)
	}

	return events, nil
}

// requestEvents expands one request into its approval/denial/cancellation
// events, verifying the history can be ordered safely.
func requestEvents(req *AbsenceRequest, next func() int) ([]rawEvent, error) {
	switch req.Status {
	case StatusPending:
		// Not yet balance-affecting.
		return nil, nil
	case StatusDenied:
		if !req.Decided() {
			return nil, &DataIntegrityError{
				RequestID: req.ID,
				Message:   "denied request without decision timestamp",
			}
		}
		return []rawEvent{{
			date:    DateOf(*req.DecidedAt),
			at:      *req.DecidedAt,
			seq:     next(),
			kind:    EventDenial,
			delta:   0,
			refKind: RefRequest,
			refID:   req.ID,
			note:    req.AdminComment,
		}}, nil
	case StatusApproved, StatusPartiallyCancelled, StatusCancelled:
		// Handled below.
	default:
		return nil, &ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("unknown request status %q", req.Status),
		}
	}

	if !req.Decided() {
		return nil, &DataIntegrityError{
			RequestID: req.ID,
			Message:   "approved request without decision timestamp",
		}
	}

	approvedAt := *req.DecidedAt
	deducted := req.DeductionOnApproval()

	events := []rawEvent{{
		date:    DateOf(approvedAt),
		at:      approvedAt,
		seq:     next(),
		kind:    EventApproval,
		delta:   deducted.Neg(),
		refKind: RefRequest,
		refID:   req.ID,
		note:    req.RequesterComment,
	}}

	// Fold cancellation events in order, tracking what remains deducted so
	// a full cancellation restores exactly the outstanding amount.
	remaining := SortDates(req.RequestedDates)
	outstanding := deducted
	for _, c := range req.Cancellations {
		if c.At.Before(approvedAt) {
			return nil, &DataIntegrityError{
				RequestID: req.ID,
				Date:      DateOf(c.At),
				Message:   "cancellation dated before approval",
			}
		}
		if outstanding.IsZero() {
			return nil, &DataIntegrityError{
				RequestID: req.ID,
				Date:      DateOf(c.At),
				Message:   "cancellation after request fully cancelled",
			}
		}

		var e rawEvent
		if c.IsFull() {
			e = rawEvent{
				date:    DateOf(c.At),
				at:      c.At,
				seq:     next(),
				kind:    EventFullCancellation,
				delta:   outstanding,
				refKind: RefRequest,
				refID:   req.ID,
				note:    c.Reason,
			}
			outstanding = 0
			remaining = nil
		} else {
			if req.IsSale || req.HourBased() {
				return nil, &DataIntegrityError{
					RequestID: req.ID,
					Date:      DateOf(c.At),
					Message:   "partial cancellation on a non day-based request",
				}
			}
			if !IsSubset(c.Dates, remaining) {
				return nil, &DataIntegrityError{
					RequestID: req.ID,
					Date:      DateOf(c.At),
					Message:   "cancelled dates not within remaining effective dates",
				}
			}
			restored := DaysToHours(len(UniqueDates(c.Dates)))
			e = rawEvent{
				date:    DateOf(c.At),
				at:      c.At,
				seq:     next(),
				kind:    EventPartialCancellation,
				delta:   restored,
				refKind: RefRequest,
				refID:   req.ID,
				note:    c.Reason,
			}
			remaining = SubtractDates(remaining, c.Dates)
			outstanding -= restored
		}
		events = append(events, e)
	}

	return events, nil
}
