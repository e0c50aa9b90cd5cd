/*
penalty.go - Tiered sick-leave penalty calculator

PURPOSE:
  Converts accumulated sick-leave days in a calendar year into an
  hours-denominated deduction against accrued vacation time. The calculator
  only recommends a value; applying it (balance mutation + record upsert)
  is a separate compound action in the service layer.

TIERS (inclusive upper bounds on distinct sick days):
  <=7 -> 0%, <=14 -> 25%, <=21 -> 50%, <=28 -> 75%, >28 -> 100%

IDEMPOTENT RE-APPLICATION:
  Only the incremental difference versus the previously applied hours is
  ever recommended. Recomputing with unchanged inputs yields incremental 0,
  which the service layer rejects as "nothing to apply".
*/
package engine

import "github.com/shopspring/decimal"

// =============================================================================
// TIER TABLE
// =============================================================================

// penaltyTier is one bracket of the penalty table.
type penaltyTier struct {
	maxDays int // inclusive upper bound; -1 = unbounded
	pct     decimal.Decimal
}

var penaltyTiers = []penaltyTier{
	{maxDays: 7, pct: decimal.Zero},
	{maxDays: 14, pct: decimal.NewFromFloat(0.25)},
	{maxDays: 21, pct: decimal.NewFromFloat(0.50)},
	{maxDays: 28, pct: decimal.NewFromFloat(0.75)},
	{maxDays: -1, pct: decimal.NewFromInt(1)},
}

// PenaltyFloorDays is the largest sick-day count that carries no penalty.
// Employees at or below the floor are excluded from penalty listings.
const PenaltyFloorDays = 7

// TierFor returns the penalty percentage for a distinct sick-day count.
func TierFor(sickDays int) decimal.Decimal {
	for _, t := range penaltyTiers {
		if t.maxDays < 0 || sickDays <= t.maxDays {
			return t.pct
		}
	}
	return decimal.NewFromInt(1)
}

// =============================================================================
// ASSESSMENT
// =============================================================================

// NotApplicableReason explains why an assessment carries no actionable
// penalty. Configuration gaps are distinguishable results, not errors.
type NotApplicableReason string

const (
	ReasonApplicable         NotApplicableReason = ""
	ReasonBelowFloor         NotApplicableReason = "below_penalty_floor"
	ReasonMissingExcessHours NotApplicableReason = "missing_annual_excess_hours"
	ReasonNothingToApply     NotApplicableReason = "nothing_to_apply"
)

// PenaltyInput is one snapshot of everything the calculator needs.
type PenaltyInput struct {
	EmployeeID string
	Year       int

	// Distinct dates within Year belonging to approved or cancelled
	// sick-leave requests. Cancellation does not erase liability once the
	// days occurred; see SickLeaveDates.
	SickDates []Date

	// AnnualExcessHours is the year's configured excess-hours figure.
	// nil marks a configuration gap and yields a not-applicable result.
	AnnualExcessHours *Hours

	// Prior is the penalty already applied this year, nil if none.
	Prior *PenalizationRecord
}

// PenaltyAssessment is the calculator's recommendation.
type PenaltyAssessment struct {
	EmployeeID string
	Year       int

	SickDays          int
	TierPct           decimal.Decimal
	GrossPenaltyHours Hours
	IncrementalHours  Hours

	Reason NotApplicableReason
}

// Applicable reports whether applying this assessment would change anything.
func (a PenaltyAssessment) Applicable() bool {
	return a.Reason == ReasonApplicable
}

// ComputePenalty computes the tier, the gross penalty, and the incremental
// delta versus what was previously applied. Pure; never errors.
func ComputePenalty(in PenaltyInput) PenaltyAssessment {
	a := PenaltyAssessment{
		EmployeeID: in.EmployeeID,
		Year:       in.Year,
		SickDays:   countDistinctInYear(in.SickDates, in.Year),
	}
	a.TierPct = TierFor(a.SickDays)

	if a.SickDays <= PenaltyFloorDays {
		a.Reason = ReasonBelowFloor
		return a
	}
	if in.AnnualExcessHours == nil {
		a.Reason = ReasonMissingExcessHours
		return a
	}

	// Truncation, never rounding, to avoid over-penalizing.
	a.GrossPenaltyHours = FloorHours(in.AnnualExcessHours.Decimal().Mul(a.TierPct))

	var prior Hours
	if in.Prior != nil {
		prior = in.Prior.HoursApplied
	}
	a.IncrementalHours = a.GrossPenaltyHours - prior

	if a.IncrementalHours <= 0 {
		a.Reason = ReasonNothingToApply
	}
	return a
}

func countDistinctInYear(dates []Date, year int) int {
	n := 0
	for _, d := range UniqueDates(dates) {
		if d.Year() == year {
			n++
		}
	}
	return n
}

// =============================================================================
// SICK DATE COLLECTION
// =============================================================================

// SickLeaveDates extracts the distinct dates within a year that belong to
// sick-leave requests which were at some point approved. Cancelled and
// partially cancelled requests still count in full: only the request status
// is irrelevant to liability once the days occurred.
func SickLeaveDates(requests []AbsenceRequest, year int) []Date {
	var dates []Date
	for i := range requests {
		req := &requests[i]
		if req.Kind != KindSickLeave {
			continue
		}
		switch req.Status {
		case StatusApproved, StatusCancelled, StatusPartiallyCancelled:
		default:
			continue
		}
		for _, d := range req.RequestedDates {
			if d.Year() == year {
				dates = append(dates, d)
			}
		}
	}
	return UniqueDates(dates)
}
