package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
	"github.com/stephen-chu/insurance-claims-triage/pkg/review"
)

// JSONReviewer implements Reviewer over JSON Lines, for wrappers driving the
// review checkpoint programmatically.
//
// Each pending session is emitted as
//
//	{"type":"review","session":{...}}
//
// and answered with one line
//
//	{"action":"approve|reject|edit","fields":{...},"reviewer":"...","comment":"..."}
type JSONReviewer struct {
	mu      sync.Mutex
	encoder *json.Encoder
	input   *linePump
}

// Event types written by JSONReviewer.
const (
	EventReview  = "review"
	EventOutcome = "outcome"
	EventSystem  = "system"
)

type reviewEvent struct {
	Type    string          `json:"type"`
	Session *domain.Session `json:"session"`
}

type outcomeEvent struct {
	Type       string                `json:"type"`
	SessionID  string                `json:"session_id"`
	ClaimID    string                `json:"claim_id"`
	Action     domain.ActionKind     `json:"action"`
	Resolution domain.Resolution     `json:"resolution"`
	Decision   *domain.FinalDecision `json:"decision,omitempty"`
}

type systemEvent struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ReviewResponse is the answer line read by JSONReviewer.
type ReviewResponse struct {
	Action   string         `json:"action"`
	Fields   map[string]any `json:"fields,omitempty"`
	Reviewer string         `json:"reviewer,omitempty"`
	Comment  string         `json:"comment,omitempty"`
}

// NewJSONReviewer creates a reviewer for JSON IO.
func NewJSONReviewer(r io.Reader, w io.Writer) *JSONReviewer {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &JSONReviewer{
		encoder: json.NewEncoder(w),
		input:   newLinePump(r),
	}
}

func (j *JSONReviewer) emit(v any) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.encoder.Encode(v)
}

func (j *JSONReviewer) Review(ctx context.Context, s *domain.Session) (domain.ReviewAction, error) {
	if err := j.emit(reviewEvent{Type: EventReview, Session: s}); err != nil {
		return nil, err
	}

	var line string
	for line == "" {
		var err error
		if line, err = j.input.next(ctx); err != nil {
			return nil, err
		}
	}
	clean, err := SanitizeInput(line)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidAction, err)
	}

	var resp ReviewResponse
	if err := json.Unmarshal([]byte(clean), &resp); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", domain.ErrInvalidAction, err)
	}
	return domain.ParseReviewAction(resp.Action, resp.Fields, domain.ReviewMeta{
		Reviewer: resp.Reviewer,
		Comment:  resp.Comment,
	})
}

func (j *JSONReviewer) Report(ctx context.Context, out review.Outcome) error {
	return j.emit(outcomeEvent{
		Type:       EventOutcome,
		SessionID:  out.SessionID,
		ClaimID:    out.ClaimID,
		Action:     out.Action,
		Resolution: out.Resolution,
		Decision:   out.Decision,
	})
}

func (j *JSONReviewer) SystemOutput(ctx context.Context, msg string) error {
	return j.emit(systemEvent{Type: EventSystem, Message: msg, Timestamp: time.Now()})
}
