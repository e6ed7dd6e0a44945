package memory

import (
	"context"
	"sync"

	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
)

// Sink implements ports.DecisionSink in memory.
type Sink struct {
	mu        sync.RWMutex
	decisions map[string]domain.FinalDecision
}

// NewSink creates an empty sink.
func NewSink() *Sink {
	return &Sink{decisions: make(map[string]domain.FinalDecision)}
}

// Write stores the decision once per claim.
func (s *Sink) Write(ctx context.Context, d domain.FinalDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.decisions[d.ClaimID]; ok {
		return domain.ErrDecisionExists
	}
	s.decisions[d.ClaimID] = d
	return nil
}

// Exists reports whether a decision was written for claimID.
func (s *Sink) Exists(ctx context.Context, claimID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.decisions[claimID]
	return ok, nil
}

// Load returns the decision written for claimID.
func (s *Sink) Load(ctx context.Context, claimID string) (domain.FinalDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.decisions[claimID]
	if !ok {
		return domain.FinalDecision{}, domain.ErrClaimNotFound
	}
	return d, nil
}

// Len returns the number of decisions written.
func (s *Sink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.decisions)
}
