package domain

import "time"

// Status is the position of a workflow instance in the review state machine.
type Status string

const (
	StatusRunning          Status = "running"           // delegation and synthesis in progress
	StatusAwaitingReview   Status = "awaiting_review"   // suspended at the review checkpoint
	StatusResumingApproved Status = "resuming_approved" // approve consumed, final decision pending
	StatusResumingEdited   Status = "resuming_edited"   // edit consumed, final decision pending
	StatusRejected         Status = "rejected"          // reject consumed, session to be discarded
	StatusTerminated       Status = "terminated"        // sink state
)

// Live reports whether a session in this status still owns its claim.
func (s Status) Live() bool {
	return s == StatusRunning || s == StatusAwaitingReview
}

// Session is the durable, resumable state of one in-flight workflow instance.
// It holds the minimum needed to resume at the review checkpoint without
// re-running delegation or synthesis.
type Session struct {
	ID      string `json:"session_id"`
	ClaimID string `json:"claim_id"`
	Status  Status `json:"status"`

	// Claim is a snapshot of the claim taken at intake, for reviewer display.
	Claim Claim `json:"claim"`

	// Results holds the fan-in of task results, keyed by task name.
	Results map[string]TaskResult `json:"results,omitempty"`

	// Proposal is the pending decision, set when the session suspends for review.
	Proposal *DecisionProposal `json:"proposal,omitempty"`

	// Version increases on every persisted transition.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Sealed carries an opaque payload when a persistence middleware encrypts the session.
	Sealed string `json:"sealed,omitempty"`
}

// NewSession creates a running session for a claim.
func NewSession(id string, claim Claim, now time.Time) *Session {
	return &Session{
		ID:        id,
		ClaimID:   claim.ClaimID,
		Status:    StatusRunning,
		Claim:     claim,
		Results:   make(map[string]TaskResult),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy so stores can isolate persisted state from callers.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Claim.Photos = append([]string(nil), s.Claim.Photos...)
	if s.Results != nil {
		out.Results = make(map[string]TaskResult, len(s.Results))
		for k, v := range s.Results {
			v.Output = cloneOutput(v.Output)
			out.Results[k] = v
		}
	}
	if s.Proposal != nil {
		p := *s.Proposal
		out.Proposal = &p
	}
	return &out
}

// cloneOutput copies the maps and slices of a decoded task output.
// Scalars are immutable and returned as is.
func cloneOutput(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneOutput(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneOutput(e)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, e := range t {
			out[k] = e
		}
		return out
	case []string:
		return append([]string(nil), t...)
	}
	return v
}

// ArchiveEntry is the tombstone left behind when a session reaches a terminal state.
type ArchiveEntry struct {
	SessionID  string     `json:"session_id"`
	ClaimID    string     `json:"claim_id"`
	Resolution Resolution `json:"resolution"`
	ClosedAt   time.Time  `json:"closed_at"`
}
