package ports

import (
	"context"

	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
)

// SessionStore defines the interface for persisting workflow sessions.
// This is what makes the review checkpoint durable: a session saved in
// awaiting_review can be resumed by a different process after a restart.
type SessionStore interface {
	// Save persists the session under its ID.
	Save(ctx context.Context, session *domain.Session) error

	// Load retrieves the session for a given session ID.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Load(ctx context.Context, sessionID string) (*domain.Session, error)

	// Delete removes the session for a given session ID. Deleting a missing session is not an error.
	Delete(ctx context.Context, sessionID string) error

	// List returns the IDs of all stored sessions.
	List(ctx context.Context) ([]string, error)
}

// Archive keeps tombstones of sessions that reached a terminal state.
// It lets the Review Gate answer a late or duplicate resume with
// domain.ErrSessionTerminated instead of domain.ErrSessionNotFound.
type Archive interface {
	// Record stores the tombstone. Recording the same session twice keeps the first entry.
	Record(ctx context.Context, entry domain.ArchiveEntry) error

	// Lookup returns the tombstone for a session ID.
	// Returns domain.ErrSessionNotFound if the session was never archived.
	Lookup(ctx context.Context, sessionID string) (domain.ArchiveEntry, error)
}
