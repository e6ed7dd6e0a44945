package ports

import (
	"context"

	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
)

// ClaimSource provides read-only access to incoming claims.
type ClaimSource interface {
	// List returns every claim currently available, in no particular order.
	// Documents that cannot be read as claims are reported through a
	// *domain.SkippedClaimsError returned alongside the claims that could.
	List(ctx context.Context) ([]domain.Claim, error)

	// Get returns a single claim, or domain.ErrClaimNotFound.
	Get(ctx context.Context, claimID string) (domain.Claim, error)
}

// Watchable defines an interface for sources that can notify about backend changes.
// The intake loop uses it to wake up before its next poll tick.
type Watchable interface {
	// Watch returns a channel that is signaled when the underlying source changes.
	// It abstracts away the specific event details, signaling only that a rescan is useful.
	Watch(ctx context.Context) (<-chan struct{}, error)
}
