package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
)

// nopStore accepts every write and finds nothing.
type nopStore struct{}

func (nopStore) Save(ctx context.Context, s *domain.Session) error { return nil }
func (nopStore) Load(ctx context.Context, sessionID string) (*domain.Session, error) {
	return nil, domain.ErrSessionNotFound
}
func (nopStore) Delete(ctx context.Context, sessionID string) error { return nil }
func (nopStore) List(ctx context.Context) ([]string, error)         { return nil, nil }

func TestManager_LockLifecycle(t *testing.T) {
	mgr := NewManager(nopStore{})
	ctx := context.Background()
	count := 10000

	for i := 0; i < count; i++ {
		sid := fmt.Sprintf("session-%d", i)
		_ = mgr.Save(ctx, &domain.Session{ID: sid})
		_ = mgr.Delete(ctx, sid)
		_, _ = mgr.Create(ctx, domain.Claim{ClaimID: sid})
	}

	lockCount := len(mgr.locks)
	if lockCount != 0 {
		t.Errorf("Memory Leak Detected: %d locks remaining in memory after Delete", lockCount)
	}
}
