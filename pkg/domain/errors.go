package domain

import "errors"

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionConflict is returned when a claim already owns a live session.
var ErrSessionConflict = errors.New("claim already has a live session")

// ErrSessionTerminated is returned when an action targets a session that already reached a terminal state.
var ErrSessionTerminated = errors.New("session already terminated")

// ErrNotAwaitingReview is returned when a review action targets a session that is not suspended for review.
var ErrNotAwaitingReview = errors.New("session is not awaiting review")

// ErrInvalidAction is returned for unrecognized review actions or edits with missing/empty fields.
// The session stays suspended.
var ErrInvalidAction = errors.New("invalid review action")

// ErrDecisionExists is returned when a final decision was already written for a claim.
var ErrDecisionExists = errors.New("final decision already exists")

// ErrClaimNotFound is returned when a claim ID cannot be found in the claim source.
var ErrClaimNotFound = errors.New("claim not found")

// ErrTaskTimeout is recorded when a task does not answer within its bounded wait.
var ErrTaskTimeout = errors.New("task timed out")

// ErrTaskPanic is recorded when a task executor panics.
var ErrTaskPanic = errors.New("task panicked")

// ErrMissingInput is recorded when a claim lacks a field a task requires.
var ErrMissingInput = errors.New("missing task input")

// ErrUninterpretable is returned when synthesis cannot interpret a successful task output.
var ErrUninterpretable = errors.New("uninterpretable task output")

// ErrInvalidID is returned when a session or claim ID cannot name a stored record.
var ErrInvalidID = errors.New("invalid identifier")

// ErrSessionCorrupt is returned when a stored session exists but cannot be decoded or decrypted.
var ErrSessionCorrupt = errors.New("session data unreadable")

// ErrInvalidClaim is returned for a claim document that cannot be decoded.
var ErrInvalidClaim = errors.New("invalid claim document")

// ErrDuplicateClaim is returned when two claim documents share a claim_id.
var ErrDuplicateClaim = errors.New("duplicate claim id")
