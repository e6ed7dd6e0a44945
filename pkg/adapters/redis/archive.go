package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Archive implements ports.Archive with one SETNX key per terminated session.
type Archive struct {
	client *backend.Client
	prefix string
}

// NewArchive creates an archive sharing client; an empty prefix means DefaultPrefix.
func NewArchive(client *backend.Client, prefix string) *Archive {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Archive{client: client, prefix: prefix}
}

func (a *Archive) key(sessionID string) string {
	return a.prefix + "archive:" + sessionID
}

// Record stores the tombstone unless one already exists.
func (a *Archive) Record(ctx context.Context, entry domain.ArchiveEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal archive entry: %w", err)
	}
	if err := a.client.SetNX(ctx, a.key(entry.SessionID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to archive session %s: %w", entry.SessionID, err)
	}
	return nil
}

// Lookup returns the tombstone of sessionID.
func (a *Archive) Lookup(ctx context.Context, sessionID string) (domain.ArchiveEntry, error) {
	var entry domain.ArchiveEntry
	val, err := a.client.Get(ctx, a.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return entry, domain.ErrSessionNotFound
		}
		return entry, fmt.Errorf("failed to read archive entry: %w", err)
	}
	if err := json.Unmarshal(val, &entry); err != nil {
		return entry, fmt.Errorf("failed to unmarshal archive entry: %w", err)
	}
	return entry, nil
}
