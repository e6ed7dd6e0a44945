package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Sink implements ports.DecisionSink. SETNX gives the once-per-claim guarantee
// across every process sharing the Redis instance.
type Sink struct {
	client *backend.Client
	prefix string
}

// NewSink creates a sink sharing client; an empty prefix means DefaultPrefix.
func NewSink(client *backend.Client, prefix string) *Sink {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Sink{client: client, prefix: prefix}
}

func (s *Sink) key(claimID string) string {
	return s.prefix + "decision:" + claimID
}

// Write publishes the decision unless the claim already has one.
func (s *Sink) Write(ctx context.Context, d domain.FinalDecision) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal decision: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.key(d.ClaimID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to write decision for %s: %w", d.ClaimID, err)
	}
	if !ok {
		return fmt.Errorf("claim %s: %w", d.ClaimID, domain.ErrDecisionExists)
	}
	return nil
}

// Exists reports whether a decision key is present for claimID.
func (s *Sink) Exists(ctx context.Context, claimID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(claimID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check decision for %s: %w", claimID, err)
	}
	return n > 0, nil
}

// Load returns the decision written for claimID.
func (s *Sink) Load(ctx context.Context, claimID string) (domain.FinalDecision, error) {
	var d domain.FinalDecision
	val, err := s.client.Get(ctx, s.key(claimID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return d, domain.ErrClaimNotFound
		}
		return d, fmt.Errorf("failed to read decision for %s: %w", claimID, err)
	}
	if err := json.Unmarshal(val, &d); err != nil {
		return d, fmt.Errorf("failed to unmarshal decision: %w", err)
	}
	return d, nil
}
