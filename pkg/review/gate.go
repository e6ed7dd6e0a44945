// Package review implements the Review Gate: the single human checkpoint of a
// workflow instance.
//
// A session is suspended exactly once, in awaiting_review, with its proposal
// persisted. Exactly one ReviewAction moves it out again:
//
//	running -> awaiting_review -> resuming_approved | resuming_edited | rejected -> terminated
//
// Approve and Edit write the FinalDecision to the sink; Reject writes nothing.
// In every case the live session is discarded and a tombstone is archived, so
// a duplicate action fails with domain.ErrSessionTerminated.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stephen-chu/insurance-claims-triage/internal/logging"
	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
	"github.com/stephen-chu/insurance-claims-triage/pkg/ports"
	"github.com/stephen-chu/insurance-claims-triage/pkg/session"
)

// Outcome reports what a resume did.
type Outcome struct {
	SessionID  string
	ClaimID    string
	Action     domain.ActionKind
	Resolution domain.Resolution

	// Decision is the FinalDecision written, nil on reject.
	Decision *domain.FinalDecision
}

// Gate drives sessions through the review checkpoint.
type Gate struct {
	sessions *session.Manager
	sink     ports.DecisionSink
	hooks    domain.LifecycleHooks
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures the Gate.
type Option func(*Gate)

// WithHooks registers lifecycle callbacks.
func WithHooks(h domain.LifecycleHooks) Option {
	return func(g *Gate) {
		g.hooks = h
	}
}

// WithLogger configures a logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = l
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		g.now = now
	}
}

// NewGate creates a Gate over a session manager and a result sink.
func NewGate(sessions *session.Manager, sink ports.DecisionSink, opts ...Option) *Gate {
	g := &Gate{
		sessions: sessions,
		sink:     sink,
		logger:   logging.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Suspend records the task results and proposal carried by s and durably
// parks the session at the checkpoint.
func (g *Gate) Suspend(ctx context.Context, s *domain.Session, proposal domain.DecisionProposal) error {
	err := g.sessions.Update(ctx, s.ID, func(ctx context.Context, tx *session.Tx) error {
		if s.Results != nil {
			tx.Session.Results = s.Results
		}
		if err := Suspend(tx.Session, proposal); err != nil {
			return err
		}
		if err := tx.Save(ctx); err != nil {
			return err
		}
		// Keep the caller's copy in step with what was persisted
		*s = *tx.Session.Clone()
		return nil
	})
	if err != nil {
		return err
	}

	g.logger.Info("awaiting review",
		"session_id", s.ID,
		"claim_id", s.ClaimID,
		"outcome", proposal.Outcome,
	)
	if g.hooks.OnSuspend != nil {
		g.hooks.OnSuspend(ctx, &domain.SessionEvent{
			EventBase: domain.EventBase{Timestamp: g.now(), Type: domain.EventSuspend, SessionID: s.ID, ClaimID: s.ClaimID},
			Outcome:   proposal.Outcome,
			Rule:      proposal.Rule,
		})
	}
	return nil
}

// Resume applies one review action to a suspended session.
//
// Invalid actions return domain.ErrInvalidAction and leave the session
// suspended. Actions on closed sessions return domain.ErrSessionTerminated.
// Actions on the same session are serialized; only the first one to run
// against awaiting_review takes effect.
func (g *Gate) Resume(ctx context.Context, sessionID string, action domain.ReviewAction) (Outcome, error) {
	var out Outcome
	err := g.sessions.Update(ctx, sessionID, func(ctx context.Context, tx *session.Tx) error {
		s := tx.Session
		tr, err := Apply(s, action, g.now())
		if err != nil {
			return err
		}
		out = Outcome{
			SessionID:  s.ID,
			ClaimID:    s.ClaimID,
			Action:     action.Kind(),
			Resolution: tr.Resolution,
			Decision:   tr.Decision,
		}
		s.Status = tr.To

		if tr.Decision != nil {
			if err := g.sink.Write(ctx, *tr.Decision); err != nil {
				if !errors.Is(err, domain.ErrDecisionExists) {
					// Nothing consumed; the session is still awaiting review in the store
					return fmt.Errorf("failed to write final decision: %w", err)
				}
				// Decided elsewhere (e.g. a crash between sink write and close): just close
				g.logger.Warn("final decision already exists, closing session",
					"session_id", s.ID,
					"claim_id", s.ClaimID,
				)
				if cerr := tx.Close(ctx, tr.Resolution); cerr != nil {
					return cerr
				}
				return err
			}
		}
		return tx.Close(ctx, tr.Resolution)
	})
	if err != nil {
		return Outcome{}, err
	}

	g.logger.Info("review applied",
		"session_id", out.SessionID,
		"claim_id", out.ClaimID,
		"action", out.Action,
	)
	if g.hooks.OnResume != nil {
		ev := &domain.SessionEvent{
			EventBase:  domain.EventBase{Timestamp: g.now(), Type: domain.EventResume, SessionID: out.SessionID, ClaimID: out.ClaimID},
			Action:     out.Action,
			Resolution: out.Resolution,
		}
		if out.Decision != nil {
			ev.Outcome = out.Decision.Decision.Outcome
		}
		g.hooks.OnResume(ctx, ev)
	}
	return out, nil
}
