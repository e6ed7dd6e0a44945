package memory

import (
	"context"
	"sync"

	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
)

// Archive implements ports.Archive in memory.
type Archive struct {
	mu      sync.RWMutex
	entries map[string]domain.ArchiveEntry
}

// NewArchive creates an empty archive.
func NewArchive() *Archive {
	return &Archive{entries: make(map[string]domain.ArchiveEntry)}
}

// Record stores the tombstone unless one already exists.
func (a *Archive) Record(ctx context.Context, entry domain.ArchiveEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.entries[entry.SessionID]; !ok {
		a.entries[entry.SessionID] = entry
	}
	return nil
}

// Lookup returns the tombstone for sessionID.
func (a *Archive) Lookup(ctx context.Context, sessionID string) (domain.ArchiveEntry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e, ok := a.entries[sessionID]
	if !ok {
		return domain.ArchiveEntry{}, domain.ErrSessionNotFound
	}
	return e, nil
}
