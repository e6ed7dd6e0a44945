package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
)

// Archive implements ports.Archive as one JSON tombstone per session.
type Archive struct {
	BasePath string
}

// NewArchive creates an archive rooted at basePath ("<sessions>/archive" by convention).
func NewArchive(basePath string) *Archive {
	if basePath == "" {
		basePath = filepath.Join(".triage", "sessions", "archive")
	}
	return &Archive{BasePath: basePath}
}

// Record writes the tombstone. An existing tombstone is kept.
func (a *Archive) Record(ctx context.Context, entry domain.ArchiveEntry) error {
	if err := checkID("session ID", entry.SessionID); err != nil {
		return err
	}
	err := createOnce(filepath.Join(a.BasePath, entry.SessionID+".json"), entry.SessionID, entry)
	if err != nil && !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("failed to archive session %s: %w", entry.SessionID, err)
	}
	return nil
}

// Lookup reads the tombstone of sessionID.
func (a *Archive) Lookup(ctx context.Context, sessionID string) (domain.ArchiveEntry, error) {
	var entry domain.ArchiveEntry
	if err := checkID("session ID", sessionID); err != nil {
		return entry, err
	}
	if err := readJSON(filepath.Join(a.BasePath, sessionID+".json"), &entry); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return entry, domain.ErrSessionNotFound
		}
		return entry, fmt.Errorf("failed to read archive entry %s: %w", sessionID, err)
	}
	return entry, nil
}
