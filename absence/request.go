/*
request.go - Absence request lifecycle

PURPOSE:
  Owns the request state machine: submission (with validation), approval,
  denial, and full/partial cancellation. Every transition that touches the
  stored balance runs inside one store transaction so the status change and
  the balance delta commit together or not at all.

BALANCE SEMANTICS:
  Vacation (including sales) and permission requests are balance-backed:
  approval deducts hours, cancellation restores them. Sick leave never
  touches the balance directly - it reaches it only through the yearly
  penalty path (see penalty.go).

PARTIAL CANCELLATION:
  Recorded as an immutable Cancellation event layered over the request;
  RequestedDates are never edited. The current effective set is always
  derived by folding the events.
*/
package absence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/staffo/absence-engine/engine"
)

// =============================================================================
// REQUEST SERVICE
// =============================================================================

type RequestService struct {
	Store TxStore

	// Now and NewID are swappable for tests.
	Now   func() time.Time
	NewID func() string
}

func NewRequestService(store TxStore) *RequestService {
	return &RequestService{
		Store: store,
		Now:   time.Now,
		NewID: uuid.NewString,
	}
}

// balanceBacked reports whether a request kind consumes vacation hours on
// approval.
func balanceBacked(kind engine.RequestKind) bool {
	return kind == engine.KindVacation || kind == engine.KindPermission
}

// =============================================================================
// SUBMIT
// =============================================================================

// SubmitInput describes a new request.
type SubmitInput struct {
	EmployeeID string
	Kind       engine.RequestKind
	Dates      []engine.Date
	Hours      engine.Hours
	IsSale     bool
	Comment    string

	// PreApproved creates the request already approved (admin path).
	PreApproved bool
	Actor       string
}

// Submit validates and stores a new request. With PreApproved the request
// is approved in the same transaction.
func (s *RequestService) Submit(ctx context.Context, in SubmitInput) (*engine.AbsenceRequest, error) {
	if err := validateSubmit(in); err != nil {
		return nil, err
	}

	req := engine.AbsenceRequest{
		ID:               s.NewID(),
		EmployeeID:       in.EmployeeID,
		Kind:             in.Kind,
		Status:           engine.StatusPending,
		RequestedDates:   engine.UniqueDates(in.Dates),
		RequestedHours:   in.Hours,
		IsSale:           in.IsSale,
		RequesterComment: in.Comment,
		CreatedAt:        s.Now(),
	}

	err := s.Store.WithTx(ctx, func(tx Store) error {
		emp, err := tx.GetEmployee(ctx, in.EmployeeID)
		if err != nil {
			return err
		}
		if balanceBacked(req.Kind) {
			if err := s.checkAvailable(ctx, tx, emp, req.DeductionOnApproval()); err != nil {
				return err
			}
		}
		if in.PreApproved {
			now := s.Now()
			req.Status = engine.StatusApproved
			req.DecidedAt = &now
			req.DecidedBy = in.Actor
		}
		if err := tx.SaveRequest(ctx, req); err != nil {
			return err
		}
		if in.PreApproved && balanceBacked(req.Kind) {
			return tx.ApplyBalanceDelta(ctx, emp.ID, req.DeductionOnApproval().Neg(), emp.Version)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func validateSubmit(in SubmitInput) error {
	switch in.Kind {
	case engine.KindVacation, engine.KindSickLeave, engine.KindPermission:
	default:
		return &engine.ValidationError{Field: "kind", Message: fmt.Sprintf("unknown kind %q", in.Kind)}
	}

	if in.IsSale {
		if in.Kind != engine.KindVacation {
			return &engine.ValidationError{Field: "is_sale", Message: "sales apply to vacation hours only"}
		}
		if len(in.Dates) > 0 {
			return &engine.ValidationError{Field: "dates", Message: "a sale has no calendar days"}
		}
		if in.Hours <= 0 {
			return &engine.ValidationError{Field: "hours", Message: "sale hours must be positive"}
		}
		return nil
	}

	if in.Hours > 0 {
		// Hour-based (sub-day) path.
		if in.Hours >= engine.HoursPerDay {
			return &engine.ValidationError{Field: "hours", Message: "hour-based requests must stay below a full day; use dates instead"}
		}
		if len(in.Dates) != 1 {
			return &engine.ValidationError{Field: "dates", Message: "hour-based requests cover exactly one date"}
		}
		return nil
	}

	if len(in.Dates) == 0 {
		return &engine.ValidationError{Field: "dates", Message: "at least one date is required"}
	}
	return nil
}

// checkAvailable verifies the deduction fits in the live balance minus what
// pending balance-backed requests already reserve.
func (s *RequestService) checkAvailable(ctx context.Context, tx Store, emp *Employee, deduction engine.Hours) error {
	pending, err := s.pendingReserved(ctx, tx, emp.ID)
	if err != nil {
		return err
	}
	available := emp.BalanceHours - pending
	if deduction > available {
		return &engine.InsufficientBalanceError{
			EmployeeID: emp.ID,
			Available:  available,
			Requested:  deduction,
		}
	}
	return nil
}

func (s *RequestService) pendingReserved(ctx context.Context, tx Store, employeeID string) (engine.Hours, error) {
	requests, err := tx.ListRequestsByEmployee(ctx, employeeID)
	if err != nil {
		return 0, err
	}
	var reserved engine.Hours
	for i := range requests {
		req := &requests[i]
		if req.Status == engine.StatusPending && balanceBacked(req.Kind) {
			reserved += req.DeductionOnApproval()
		}
	}
	return reserved, nil
}

// =============================================================================
// APPROVE / DENY
// =============================================================================

// Approve transitions a pending request to approved and deducts the balance
// in the same transaction.
func (s *RequestService) Approve(ctx context.Context, requestID, actor, comment string) (*engine.AbsenceRequest, error) {
	var approved *engine.AbsenceRequest
	err := s.Store.WithTx(ctx, func(tx Store) error {
		req, err := tx.GetRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != engine.StatusPending {
			return fmt.Errorf("%w: cannot approve %s request", engine.ErrInvalidTransition, req.Status)
		}
		emp, err := tx.GetEmployee(ctx, req.EmployeeID)
		if err != nil {
			return err
		}

		deduction := req.DeductionOnApproval()
		if balanceBacked(req.Kind) {
			if req.DeductionOnApproval() > emp.BalanceHours {
				return &engine.InsufficientBalanceError{
					EmployeeID: emp.ID,
					Available:  emp.BalanceHours,
					Requested:  deduction,
				}
			}
		}

		now := s.Now()
		req.Status = engine.StatusApproved
		req.DecidedAt = &now
		req.DecidedBy = actor
		if comment != "" {
			req.AdminComment = comment
		}
		if err := tx.SaveRequest(ctx, *req); err != nil {
			return err
		}
		if balanceBacked(req.Kind) {
			if err := tx.ApplyBalanceDelta(ctx, emp.ID, deduction.Neg(), emp.Version); err != nil {
				return err
			}
		}
		approved = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return approved, nil
}

// Deny transitions a pending request to denied. No balance effect; the
// denial still shows up in reconstructed ledgers for audit.
func (s *RequestService) Deny(ctx context.Context, requestID, actor, comment string) (*engine.AbsenceRequest, error) {
	var denied *engine.AbsenceRequest
	err := s.Store.WithTx(ctx, func(tx Store) error {
		req, err := tx.GetRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != engine.StatusPending {
			return fmt.Errorf("%w: cannot deny %s request", engine.ErrInvalidTransition, req.Status)
		}
		now := s.Now()
		req.Status = engine.StatusDenied
		req.DecidedAt = &now
		req.DecidedBy = actor
		if comment != "" {
			req.AdminComment = comment
		}
		if err := tx.SaveRequest(ctx, *req); err != nil {
			return err
		}
		denied = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return denied, nil
}

// =============================================================================
// CANCELLATION
// =============================================================================

// Cancel fully cancels an approved (or partially cancelled) request,
// restoring whatever is still deducted.
func (s *RequestService) Cancel(ctx context.Context, requestID, reason string) (*engine.AbsenceRequest, error) {
	var cancelled *engine.AbsenceRequest
	err := s.Store.WithTx(ctx, func(tx Store) error {
		req, err := tx.GetRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != engine.StatusApproved && req.Status != engine.StatusPartiallyCancelled {
			return fmt.Errorf("%w: cannot cancel %s request", engine.ErrInvalidTransition, req.Status)
		}
		emp, err := tx.GetEmployee(ctx, req.EmployeeID)
		if err != nil {
			return err
		}

		outstanding := outstandingDeduction(req)
		req.Cancellations = append(req.Cancellations, engine.Cancellation{
			At:     s.Now(),
			Reason: reason,
		})
		req.Status = engine.StatusCancelled
		if err := tx.SaveRequest(ctx, *req); err != nil {
			return err
		}
		if balanceBacked(req.Kind) && outstanding > 0 {
			if err := tx.ApplyBalanceDelta(ctx, emp.ID, outstanding, emp.Version); err != nil {
				return err
			}
		}
		cancelled = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

// CancelPartial cancels a subset of an approved day-based request's
// remaining dates, restoring 8h per cancelled date. Cancelling every
// remaining date leaves the request fully cancelled.
func (s *RequestService) CancelPartial(ctx context.Context, requestID string, dates []engine.Date, reason string) (*engine.AbsenceRequest, error) {
	if len(dates) == 0 {
		return nil, &engine.ValidationError{Field: "dates", Message: "at least one date is required"}
	}

	var result *engine.AbsenceRequest
	err := s.Store.WithTx(ctx, func(tx Store) error {
		req, err := tx.GetRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != engine.StatusApproved && req.Status != engine.StatusPartiallyCancelled {
			return fmt.Errorf("%w: cannot partially cancel %s request", engine.ErrInvalidTransition, req.Status)
		}
		if req.IsSale || req.HourBased() {
			return &engine.ValidationError{Field: "dates", Message: "only day-based requests support partial cancellation"}
		}

		subset := engine.UniqueDates(dates)
		effective := req.EffectiveDates()
		if !engine.IsSubset(subset, effective) {
			return &engine.ValidationError{Field: "dates", Message: "dates are not within the request's effective dates"}
		}

		emp, err := tx.GetEmployee(ctx, req.EmployeeID)
		if err != nil {
			return err
		}

		req.Cancellations = append(req.Cancellations, engine.Cancellation{
			Dates:  subset,
			At:     s.Now(),
			Reason: reason,
		})
		if len(req.EffectiveDates()) == 0 {
			req.Status = engine.StatusCancelled
		} else {
			req.Status = engine.StatusPartiallyCancelled
		}
		if err := tx.SaveRequest(ctx, *req); err != nil {
			return err
		}

		restored := engine.DaysToHours(len(subset))
		if balanceBacked(req.Kind) {
			if err := tx.ApplyBalanceDelta(ctx, emp.ID, restored, emp.Version); err != nil {
				return err
			}
		}
		result = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// outstandingDeduction is the portion of the approval deduction not yet
// restored by cancellation events.
func outstandingDeduction(req *engine.AbsenceRequest) engine.Hours {
	if req.IsSale || req.HourBased() {
		for _, c := range req.Cancellations {
			if c.IsFull() {
				return 0
			}
		}
		return req.RequestedHours
	}
	return engine.DaysToHours(len(req.EffectiveDates()))
}
