package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
)

// Source implements ports.ClaimSource and ports.Watchable over a fixed set of claims.
type Source struct {
	mu       sync.RWMutex
	claims   map[string]domain.Claim
	watchers []chan struct{}
}

// NewSource creates a source holding the given claims.
func NewSource(claims ...domain.Claim) *Source {
	s := &Source{claims: make(map[string]domain.Claim)}
	for _, c := range claims {
		s.claims[c.ClaimID] = c
	}
	return s
}

// Add inserts or replaces a claim and notifies watchers.
func (s *Source) Add(c domain.Claim) {
	s.mu.Lock()
	s.claims[c.ClaimID] = c
	watchers := append([]chan struct{}(nil), s.watchers...)
	s.mu.Unlock()

	for _, w := range watchers {
		select {
		case w <- struct{}{}:
		default:
		}
	}
}

// List returns the claims ordered by ID.
func (s *Source) List(ctx context.Context) ([]domain.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Claim, 0, len(s.claims))
	for _, c := range s.claims {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClaimID < out[j].ClaimID })
	return out, nil
}

// Get returns a single claim.
func (s *Source) Get(ctx context.Context, claimID string) (domain.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.claims[claimID]
	if !ok {
		return domain.Claim{}, domain.ErrClaimNotFound
	}
	return c, nil
}

// Watch signals on every Add until ctx is done.
func (s *Source) Watch(ctx context.Context) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.watchers = append(s.watchers, ch)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, w := range s.watchers {
			if w == ch {
				s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
				break
			}
		}
	}()
	return ch, nil
}
