package ports

import (
	"context"

	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
)

// DecisionSink receives final decisions. Writes are once-only per claim:
// a second Write for the same claim returns domain.ErrDecisionExists and
// leaves the first decision in place.
type DecisionSink interface {
	Write(ctx context.Context, decision domain.FinalDecision) error

	// Exists reports whether a final decision was written for the claim.
	Exists(ctx context.Context, claimID string) (bool, error)

	// Load returns the decision for a claim, or domain.ErrClaimNotFound.
	Load(ctx context.Context, claimID string) (domain.FinalDecision, error)
}
