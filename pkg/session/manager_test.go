package session_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stephen-chu/insurance-claims-triage/pkg/adapters/file"
	"github.com/stephen-chu/insurance-claims-triage/pkg/adapters/memory"
	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
	"github.com/stephen-chu/insurance-claims-triage/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SlowStore simulates latency to provoke race conditions if locking is missing.
type SlowStore struct {
	*memory.Store
}

func (s SlowStore) Save(ctx context.Context, sess *domain.Session) error {
	time.Sleep(5 * time.Millisecond) // Simulate IO
	return s.Store.Save(ctx, sess)
}

func (s SlowStore) Load(ctx context.Context, id string) (*domain.Session, error) {
	time.Sleep(5 * time.Millisecond) // Simulate IO
	return s.Store.Load(ctx, id)
}

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("s-%d", n.Add(1))
	}
}

func TestManager_Create(t *testing.T) {
	mgr := session.NewManager(memory.NewStore(), session.WithIDGenerator(sequentialIDs()))
	ctx := context.Background()

	s, err := mgr.Create(ctx, domain.Claim{ClaimID: "CLM-1"})
	require.NoError(t, err)
	assert.Equal(t, "s-1", s.ID)
	assert.Equal(t, domain.StatusRunning, s.Status)
	assert.Equal(t, int64(1), s.Version)

	_, err = mgr.Create(ctx, domain.Claim{ClaimID: "CLM-1"})
	assert.ErrorIs(t, err, domain.ErrSessionConflict)

	// Other claims are independent
	_, err = mgr.Create(ctx, domain.Claim{ClaimID: "CLM-2"})
	require.NoError(t, err)

	active, err := mgr.ActiveClaims(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"CLM-1": "s-1", "CLM-2": "s-2"}, active)
}

func TestManager_CreateConcurrentSameClaim(t *testing.T) {
	mgr := session.NewManager(SlowStore{memory.NewStore()})
	ctx := context.Background()

	var wg sync.WaitGroup
	var wins atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := mgr.Create(ctx, domain.Claim{ClaimID: "CLM-RACE"})
			if err == nil {
				wins.Add(1)
				return
			}
			assert.ErrorIs(t, err, domain.ErrSessionConflict)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load(), "exactly one live session per claim")
}

func TestManager_UpdateSerializes(t *testing.T) {
	store := SlowStore{memory.NewStore()}
	mgr := session.NewManager(store)
	ctx := context.Background()

	s, err := mgr.Create(ctx, domain.Claim{ClaimID: "CLM-1"})
	require.NoError(t, err)

	const writers = 10
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := mgr.Update(ctx, s.ID, func(ctx context.Context, tx *session.Tx) error {
				return tx.Save(ctx)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Read-modify-write without the lock would lose version bumps
	final, err := mgr.Load(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1+writers), final.Version)
}

func TestManager_CloseArchives(t *testing.T) {
	mgr := session.NewManager(memory.NewStore(), session.WithArchive(memory.NewArchive()))
	ctx := context.Background()

	s, err := mgr.Create(ctx, domain.Claim{ClaimID: "CLM-1"})
	require.NoError(t, err)

	err = mgr.Update(ctx, s.ID, func(ctx context.Context, tx *session.Tx) error {
		return tx.Close(ctx, domain.ResolutionRejected)
	})
	require.NoError(t, err)

	_, err = mgr.Load(ctx, s.ID)
	assert.ErrorIs(t, err, domain.ErrSessionTerminated)

	err = mgr.Update(ctx, s.ID, func(ctx context.Context, tx *session.Tx) error {
		t.Fatal("closed session must not be handed out")
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrSessionTerminated)

	// The claim is free again
	_, err = mgr.Create(ctx, domain.Claim{ClaimID: "CLM-1"})
	assert.NoError(t, err)

	_, err = mgr.Load(ctx, "never-existed")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestManager_Pending(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	mgr := session.NewManager(memory.NewStore(), session.WithClock(clock), session.WithIDGenerator(sequentialIDs()))
	ctx := context.Background()

	var ids []string
	for _, claimID := range []string{"CLM-B", "CLM-A", "CLM-C"} {
		s, err := mgr.Create(ctx, domain.Claim{ClaimID: claimID})
		require.NoError(t, err)
		ids = append(ids, s.ID)
		now = now.Add(time.Minute)
	}

	// Suspend the first and last, leave the second running
	for _, id := range []string{ids[2], ids[0]} {
		err := mgr.Update(ctx, id, func(ctx context.Context, tx *session.Tx) error {
			tx.Session.Status = domain.StatusAwaitingReview
			return tx.Save(ctx)
		})
		require.NoError(t, err)
	}

	pending, err := mgr.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, ids[0], pending[0].ID, "oldest first")
	assert.Equal(t, ids[2], pending[1].ID)
}

func TestManager_RecoverStale(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	mgr := session.NewManager(memory.NewStore(), session.WithClock(clock))
	ctx := context.Background()

	stale, err := mgr.Create(ctx, domain.Claim{ClaimID: "CLM-STALE"})
	require.NoError(t, err)

	suspended, err := mgr.Create(ctx, domain.Claim{ClaimID: "CLM-WAITING"})
	require.NoError(t, err)
	suspended.Status = domain.StatusAwaitingReview
	require.NoError(t, mgr.Save(ctx, suspended))

	now = now.Add(time.Hour)
	fresh, err := mgr.Create(ctx, domain.Claim{ClaimID: "CLM-FRESH"})
	require.NoError(t, err)

	removed, err := mgr.RecoverStale(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []string{stale.ID}, removed)

	active, err := mgr.ActiveClaims(ctx)
	require.NoError(t, err)
	assert.NotContains(t, active, "CLM-STALE")
	assert.Equal(t, suspended.ID, active["CLM-WAITING"], "suspended sessions are never recovered")
	assert.Equal(t, fresh.ID, active["CLM-FRESH"])
}

func TestManager_CreateGuards(t *testing.T) {
	mgr := session.NewManager(memory.NewStore(), session.WithIDGenerator(sequentialIDs()))
	ctx := context.Background()

	veto := func(_ context.Context, claimID string) error {
		return fmt.Errorf("claim %s: %w", claimID, domain.ErrDecisionExists)
	}
	_, err := mgr.Create(ctx, domain.Claim{ClaimID: "CLM-1"}, veto)
	assert.ErrorIs(t, err, domain.ErrDecisionExists)

	active, err := mgr.ActiveClaims(ctx)
	require.NoError(t, err)
	assert.Empty(t, active, "a vetoed claim gets no session")

	// Guards are skipped when the claim is already owned
	_, err = mgr.Create(ctx, domain.Claim{ClaimID: "CLM-2"})
	require.NoError(t, err)
	called := false
	_, err = mgr.Create(ctx, domain.Claim{ClaimID: "CLM-2"}, func(context.Context, string) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrSessionConflict)
	assert.False(t, called)
}

func TestManager_CreateGuardHoldsClaimLock(t *testing.T) {
	mgr := session.NewManager(memory.NewStore())
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	first := make(chan error, 1)
	go func() {
		_, err := mgr.Create(ctx, domain.Claim{ClaimID: "CLM-1"}, func(context.Context, string) error {
			close(entered)
			<-release
			return nil
		})
		first <- err
	}()
	<-entered

	second := make(chan error, 1)
	go func() {
		_, err := mgr.Create(ctx, domain.Claim{ClaimID: "CLM-1"})
		second <- err
	}()

	select {
	case err := <-second:
		t.Fatalf("second create finished while the first guard was running: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-first)
	assert.ErrorIs(t, <-second, domain.ErrSessionConflict)
}

func TestManager_SkipsUnreadableSessions(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	mgr := session.NewManager(file.New(dir), session.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte(`{"session_id":"broken",`), 0644))

	a, err := mgr.Create(ctx, domain.Claim{ClaimID: "CLM-A"})
	require.NoError(t, err)
	a.Status = domain.StatusAwaitingReview
	require.NoError(t, mgr.Save(ctx, a))

	b, err := mgr.Create(ctx, domain.Claim{ClaimID: "CLM-B"})
	require.NoError(t, err)

	active, err := mgr.ActiveClaims(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"CLM-A": a.ID, "CLM-B": b.ID}, active)

	pending, err := mgr.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, a.ID, pending[0].ID)

	now = now.Add(time.Hour)
	removed, err := mgr.RecoverStale(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, removed)

	// Left in place for an operator
	assert.FileExists(t, broken)
	_, err = mgr.Load(ctx, "broken")
	assert.ErrorIs(t, err, domain.ErrSessionCorrupt)
}

// unavailableStore fails every Load, as a backend outage would.
type unavailableStore struct {
	*memory.Store
}

func (s unavailableStore) Load(context.Context, string) (*domain.Session, error) {
	return nil, errors.New("connection refused")
}

func TestManager_ListFailsWhenStoreUnavailable(t *testing.T) {
	inner := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, inner.Save(ctx, domain.NewSession("s-1", domain.Claim{ClaimID: "CLM-1"}, time.Now())))

	mgr := session.NewManager(unavailableStore{inner})

	// Ownership cannot be known, so no new session may be created
	_, err := mgr.Create(ctx, domain.Claim{ClaimID: "CLM-1"})
	assert.ErrorContains(t, err, "connection refused")
}
