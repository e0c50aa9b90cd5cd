/*
Package engine implements the absence balance & coverage engine.

PURPOSE:
  This package contains the pure, side-effect-free core of the system:
  reconstructing an employee's vacation-hour ledger from discrete events,
  computing tiered sick-leave penalties, and detecting per-day staffing
  coverage conflicts. It consumes immutable snapshots of plain records and
  produces plain result structures; persistence, transport, and rendering
  are the caller's concern.

KEY CONCEPTS IN THIS FILE (types.go):
  - AbsenceRequest: One leave request with its lifecycle and layered
    cancellation events
  - BalanceAdjustment: A manual correction to an employee's balance
  - BalanceEvent: One derived ledger entry with before/after snapshots
  - PenalizationRecord: Applied sick-leave penalty for one employee/year
  - CoverageThresholdConfig: Role -> staffing conflict threshold

DESIGN PRINCIPLES:
  1. Immutability: Requests are never mutated by the engine; partial
     cancellations are layered events folded into EffectiveDates()
  2. Determinism: Identical inputs always produce identical output
  3. Integer hours: All arithmetic is whole hours at 8 hours per day;
     decimals appear only inside tier percentage math

SEE ALSO:
  - ledger.go: Ledger reconstruction and per-event delta rules
  - penalty.go: Sick-leave penalty tiers
  - coverage.go: Coverage conflict detection and heat classification
  - errors.go: Error taxonomy
*/
package engine

import "time"

// =============================================================================
// ABSENCE REQUEST
// =============================================================================

// RequestKind classifies what a request is for.
type RequestKind string

const (
	KindVacation   RequestKind = "vacation"
	KindSickLeave  RequestKind = "sick_leave"
	KindPermission RequestKind = "permission"
)

// RequestStatus tracks the request lifecycle.
// Pending transitions to approved or denied exactly once; approved may later
// become partially or fully cancelled. Denied and cancelled are terminal.
type RequestStatus string

const (
	StatusPending            RequestStatus = "pending"
	StatusApproved           RequestStatus = "approved"
	StatusDenied             RequestStatus = "denied"
	StatusCancelled          RequestStatus = "cancelled"
	StatusPartiallyCancelled RequestStatus = "partially_cancelled"
)

// Cancellation is one immutable cancellation event layered over an approved
// request. An empty Dates slice means the whole remaining request was
// cancelled. The original RequestedDates are never edited; the current
// effective set is always derived by folding these events.
type Cancellation struct {
	Dates  []Date // cancelled subset; empty = full cancellation
	At     time.Time
	Reason string
}

// IsFull reports whether this event cancelled the whole remaining request.
func (c Cancellation) IsFull() bool { return len(c.Dates) == 0 }

// AbsenceRequest is one leave request.
//
// Exactly one of three shapes:
//   - day-based:  len(RequestedDates) > 0, RequestedHours == 0
//   - hour-based: len(RequestedDates) == 1, 0 < RequestedHours < HoursPerDay
//   - sale:       IsSale, RequestedHours > 0, no calendar days
type AbsenceRequest struct {
	ID         string
	EmployeeID string
	Kind       RequestKind
	Status     RequestStatus

	RequestedDates []Date // unique, kept sorted
	RequestedHours Hours  // sub-day requests and sales
	IsSale         bool   // vacation-hours sale/payout, no calendar days

	Cancellations []Cancellation

	RequesterComment string
	AdminComment     string

	CreatedAt time.Time
	DecidedAt *time.Time // set when approved or denied
	DecidedBy string
}

// EffectiveDates returns the requested dates still counted after folding all
// cancellation events. Always a subset of RequestedDates.
func (r *AbsenceRequest) EffectiveDates() []Date {
	effective := SortDates(r.RequestedDates)
	for _, c := range r.Cancellations {
		if c.IsFull() {
			return nil
		}
		effective = SubtractDates(effective, c.Dates)
	}
	return effective
}

// HourBased reports whether the request consumes RequestedHours instead of
// whole days.
func (r *AbsenceRequest) HourBased() bool {
	return !r.IsSale && r.RequestedHours > 0
}

// DeductionOnApproval is the balance cost charged when the request is
// approved: RequestedHours for hour-based and sale requests, 8h per
// requested day otherwise.
func (r *AbsenceRequest) DeductionOnApproval() Hours {
	if r.IsSale || r.HourBased() {
		return r.RequestedHours
	}
	return DaysToHours(len(r.RequestedDates))
}

// Decided reports whether the request left the pending state.
func (r *AbsenceRequest) Decided() bool { return r.DecidedAt != nil }

// =============================================================================
// BALANCE ADJUSTMENT
// =============================================================================

// AdjustmentMode selects how a manual correction changes the balance.
type AdjustmentMode string

const (
	AdjustAdd      AdjustmentMode = "add"
	AdjustSubtract AdjustmentMode = "subtract"
	AdjustSet      AdjustmentMode = "set"
)

// BalanceAdjustment is one immutable manual correction. Ordering is by
// CreatedAt, not by the (editable) effective Date.
type BalanceAdjustment struct {
	ID          string
	EmployeeID  string
	Date        Date
	Mode        AdjustmentMode
	AmountHours Hours
	Reason      string
	CreatedAt   time.Time
}

// =============================================================================
// BALANCE EVENT - Derived ledger entry
// =============================================================================

// EventKind classifies a ledger event.
type EventKind string

const (
	EventApproval            EventKind = "approval"
	EventFullCancellation    EventKind = "full_cancellation"
	EventPartialCancellation EventKind = "partial_cancellation"
	EventDenial              EventKind = "denial"
	EventAdjustment          EventKind = "adjustment"
)

// RefKind identifies what a ledger event points back to.
type RefKind string

const (
	RefRequest    RefKind = "request"
	RefAdjustment RefKind = "adjustment"
)

// BalanceEvent is one derived entry of a reconstructed ledger.
// Invariant: BalanceAfter == BalanceBefore + DeltaHours.
type BalanceEvent struct {
	Date       Date
	Kind       EventKind
	DeltaHours Hours

	BalanceBefore Hours
	BalanceAfter  Hours

	// Reference to the originating record, for audit display.
	RefKind RefKind
	RefID   string
	Note    string
}

// =============================================================================
// PENALIZATION RECORD
// =============================================================================

// PenalizationRecord tracks the sick-leave penalty already applied for one
// (employee, year). HoursApplied is monotonically non-decreasing across
// recalculations within the same year.
type PenalizationRecord struct {
	EmployeeID   string
	Year         int
	HoursApplied Hours
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// =============================================================================
// COVERAGE THRESHOLDS
// =============================================================================

// CoverageThresholdConfig maps a job role to the minimum simultaneous-absence
// count that constitutes a staffing conflict. Roles without an entry never
// produce conflicts.
type CoverageThresholdConfig map[string]int
