package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stephen-chu/insurance-claims-triage/internal/logging"
	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
	"github.com/stephen-chu/insurance-claims-triage/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed lock survives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates session access, ensuring safe concurrent operations.
// Every mutation of one session happens under that session's lock, so two
// review actions racing on the same session are applied one after the other.
// It uses Reference Counting to garbage collect unused locks.
type Manager struct {
	store   ports.SessionStore
	archive ports.Archive

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	locker  ports.DistributedLocker // Optional distributed locker
	lockTTL time.Duration
	logger  *slog.Logger

	corrupt sync.Map // session IDs already reported as unreadable

	now   func() time.Time
	newID func() string
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL overrides DefaultLockTTL for distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithArchive records tombstones of closed sessions so that late actions
// are answered with domain.ErrSessionTerminated.
func WithArchive(archive ports.Archive) Option {
	return func(m *Manager) {
		m.archive = archive
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithIDGenerator replaces the UUID session ID generator.
func WithIDGenerator(gen func() string) Option {
	return func(m *Manager) {
		m.newID = gen
	}
}

// NewManager creates a new Session Manager with the given persistence store.
func NewManager(store ports.SessionStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(), // Default to no-op
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(key) after unlocking.
func (m *Manager) acquire(key string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		entry = &lockEntry{}
		m.locks[key] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, key)
	}
}

// WithLock executes a function while holding the lock for key.
func (m *Manager) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	entry := m.acquire(key)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(key)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, key, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			// Release even if ctx was cancelled meanwhile
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"key", key,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

func claimLockKey(claimID string) string {
	return "claim:" + claimID
}

// Guard vetoes session creation for a claim by returning an error.
type Guard func(ctx context.Context, claimID string) error

// Create persists a new running session for claim.
// It fails with domain.ErrSessionConflict if the claim already owns a live
// session. Guards run under the claim lock after the live-session check.
func (m *Manager) Create(ctx context.Context, claim domain.Claim, guards ...Guard) (*domain.Session, error) {
	var created *domain.Session
	err := m.WithLock(ctx, claimLockKey(claim.ClaimID), func(ctx context.Context) error {
		active, err := m.ActiveClaims(ctx)
		if err != nil {
			return err
		}
		if owner, ok := active[claim.ClaimID]; ok {
			return fmt.Errorf("claim %s owned by session %s: %w", claim.ClaimID, owner, domain.ErrSessionConflict)
		}
		// A closing session is deleted only after its decision is written,
		// so a claim with no live session here already shows its decision.
		for _, guard := range guards {
			if err := guard(ctx, claim.ClaimID); err != nil {
				return err
			}
		}

		s := domain.NewSession(m.newID(), claim, m.now().UTC())
		s.Version = 1
		if err := m.store.Save(ctx, s); err != nil {
			return fmt.Errorf("failed to initialize session: %w", err)
		}
		created = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.logger.Debug("session created", "session_id", created.ID, "claim_id", created.ClaimID)
	return created, nil
}

// load reads a session, mapping archived sessions to domain.ErrSessionTerminated.
// Callers hold the session lock or accept a racy read.
func (m *Manager) load(ctx context.Context, sessionID string) (*domain.Session, error) {
	s, err := m.store.Load(ctx, sessionID)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, domain.ErrSessionNotFound) || m.archive == nil {
		return nil, err
	}
	if _, aerr := m.archive.Lookup(ctx, sessionID); aerr == nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrSessionTerminated)
	} else if !errors.Is(aerr, domain.ErrSessionNotFound) {
		return nil, fmt.Errorf("failed to check archive: %w", aerr)
	}
	return nil, err
}

// Load retrieves an existing session from the store.
func (m *Manager) Load(ctx context.Context, sessionID string) (*domain.Session, error) {
	var s *domain.Session
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		s, err = m.load(ctx, sessionID)
		return err
	})
	return s, err
}

func (m *Manager) save(ctx context.Context, s *domain.Session) error {
	s.Version++
	s.UpdatedAt = m.now().UTC()
	return m.store.Save(ctx, s)
}

// Save persists the session, bumping its version.
func (m *Manager) Save(ctx context.Context, s *domain.Session) error {
	return m.WithLock(ctx, s.ID, func(ctx context.Context) error {
		return m.save(ctx, s)
	})
}

// Delete removes the session from the store without archiving it.
// It is used to discard a session that never reached the review checkpoint.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		return m.store.Delete(ctx, sessionID)
	})
}

// Tx is a session loaded under its lock. It is only valid inside Update.
type Tx struct {
	m       *Manager
	Session *domain.Session
}

// Save persists the current session, bumping its version.
func (tx *Tx) Save(ctx context.Context) error {
	return tx.m.save(ctx, tx.Session)
}

// Close discards the live session and records its tombstone.
// The tombstone is written first so a crash in between leaves an archived
// session, never a session that can be acted upon twice.
func (tx *Tx) Close(ctx context.Context, resolution domain.Resolution) error {
	if tx.m.archive != nil {
		err := tx.m.archive.Record(ctx, domain.ArchiveEntry{
			SessionID:  tx.Session.ID,
			ClaimID:    tx.Session.ClaimID,
			Resolution: resolution,
			ClosedAt:   tx.m.now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("failed to archive session: %w", err)
		}
	}
	if err := tx.m.store.Delete(ctx, tx.Session.ID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	tx.Session.Status = domain.StatusTerminated
	return nil
}

// Update loads a session under its lock and runs fn with it.
// Returns domain.ErrSessionTerminated for archived sessions.
func (m *Manager) Update(ctx context.Context, sessionID string, fn func(context.Context, *Tx) error) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		s, err := m.load(ctx, sessionID)
		if err != nil {
			return err
		}
		return fn(ctx, &Tx{m: m, Session: s})
	})
}

// List loads every stored session. Sessions removed while listing are skipped,
// and so are sessions that cannot be decoded or decrypted: they stay in the
// store for an operator and are logged once per Manager.
func (m *Manager) List(ctx context.Context) ([]*domain.Session, error) {
	ids, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	sessions := make([]*domain.Session, 0, len(ids))
	for _, id := range ids {
		s, err := m.store.Load(ctx, id)
		if errors.Is(err, domain.ErrSessionNotFound) {
			continue
		}
		if errors.Is(err, domain.ErrSessionCorrupt) {
			m.reportCorrupt(id, err)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load session %s: %w", id, err)
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func (m *Manager) reportCorrupt(sessionID string, err error) {
	if _, seen := m.corrupt.LoadOrStore(sessionID, struct{}{}); seen {
		m.logger.Debug("skipping unreadable session", "session_id", sessionID)
		return
	}
	m.logger.Warn("skipping unreadable session", "session_id", sessionID, "err", err)
}

// ActiveClaims maps each claim owning a live session to that session's ID.
func (m *Manager) ActiveClaims(ctx context.Context) (map[string]string, error) {
	sessions, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	active := make(map[string]string, len(sessions))
	for _, s := range sessions {
		if s.Status.Live() {
			active[s.ClaimID] = s.ID
		}
	}
	return active, nil
}

// Pending returns the sessions awaiting review, oldest first.
func (m *Manager) Pending(ctx context.Context) ([]*domain.Session, error) {
	sessions, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	pending := sessions[:0]
	for _, s := range sessions {
		if s.Status == domain.StatusAwaitingReview {
			pending = append(pending, s)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].CreatedAt.Before(pending[j].CreatedAt)
		}
		return pending[i].ID < pending[j].ID
	})
	return pending, nil
}

// RecoverStale deletes running sessions not updated for longer than olderThan.
// Such sessions belong to a process that died between intake and suspension;
// removing them makes their claims eligible for intake again.
func (m *Manager) RecoverStale(ctx context.Context, olderThan time.Duration) ([]string, error) {
	sessions, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := m.now().Add(-olderThan)

	var removed []string
	for _, s := range sessions {
		if s.Status != domain.StatusRunning || !s.UpdatedAt.Before(cutoff) {
			continue
		}
		err := m.WithLock(ctx, s.ID, func(ctx context.Context) error {
			// Re-check under the lock
			cur, err := m.store.Load(ctx, s.ID)
			if err != nil {
				return err
			}
			if cur.Status != domain.StatusRunning || !cur.UpdatedAt.Before(cutoff) {
				return nil
			}
			if err := m.store.Delete(ctx, s.ID); err != nil {
				return err
			}
			removed = append(removed, s.ID)
			return nil
		})
		if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			return removed, fmt.Errorf("failed to recover session %s: %w", s.ID, err)
		}
	}
	if len(removed) > 0 {
		m.logger.Warn("recovered stale sessions", "count", len(removed))
	}
	return removed, nil
}
