package review

import (
	"fmt"
	"time"

	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
)

// Transition is the result of applying one ReviewAction to a suspended session.
type Transition struct {
	From       domain.Status
	To         domain.Status
	Resolution domain.Resolution

	// Decision is set for approve and edit; reject writes nothing.
	Decision *domain.FinalDecision
}

// Suspend moves a running session to the review checkpoint with its proposal.
// It is valid exactly once per session.
func Suspend(s *domain.Session, proposal domain.DecisionProposal) error {
	if s.Status != domain.StatusRunning {
		return fmt.Errorf("cannot suspend session %s in status %s: %w", s.ID, s.Status, domain.ErrNotAwaitingReview)
	}
	p := proposal
	s.Proposal = &p
	s.Status = domain.StatusAwaitingReview
	return nil
}

// Apply validates action against s and computes the next state. It does not
// modify s: an invalid action leaves the session awaiting review.
func Apply(s *domain.Session, action domain.ReviewAction, now time.Time) (Transition, error) {
	tr := Transition{From: s.Status}

	switch s.Status {
	case domain.StatusAwaitingReview:
	case domain.StatusRunning:
		return tr, fmt.Errorf("session %s: %w", s.ID, domain.ErrNotAwaitingReview)
	default:
		return tr, fmt.Errorf("session %s is %s: %w", s.ID, s.Status, domain.ErrSessionTerminated)
	}
	if s.Proposal == nil {
		return tr, fmt.Errorf("session %s has no pending proposal: %w", s.ID, domain.ErrNotAwaitingReview)
	}
	if action == nil {
		return tr, fmt.Errorf("%w: no action", domain.ErrInvalidAction)
	}
	if err := action.Validate(); err != nil {
		return tr, err
	}

	meta := action.Meta()
	final := func(p domain.DecisionProposal, res domain.Resolution) *domain.FinalDecision {
		return &domain.FinalDecision{
			ClaimID:     s.ClaimID,
			SessionID:   s.ID,
			ProcessedAt: now.UTC(),
			Decision:    p,
			Resolution:  res,
			Reviewer:    meta.Reviewer,
			Comment:     meta.Comment,
		}
	}

	switch a := action.(type) {
	case domain.Approve:
		tr.To = domain.StatusResumingApproved
		tr.Resolution = domain.ResolutionApproved
		tr.Decision = final(*s.Proposal, tr.Resolution)
	case domain.Edit:
		tr.To = domain.StatusResumingEdited
		tr.Resolution = domain.ResolutionEdited
		tr.Decision = final(a.Apply(*s.Proposal), tr.Resolution)
	case domain.Reject:
		tr.To = domain.StatusRejected
		tr.Resolution = domain.ResolutionRejected
	default:
		return Transition{From: s.Status}, fmt.Errorf("%w: unsupported action %T", domain.ErrInvalidAction, action)
	}
	return tr, nil
}
