package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/stephen-chu/insurance-claims-triage/internal/logging"
	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
	"github.com/stephen-chu/insurance-claims-triage/pkg/review"
)

// DefaultPollInterval is how often Run looks for newly suspended sessions.
const DefaultPollInterval = 3 * time.Second

// Engine is the part of the triage engine the review loop needs.
type Engine interface {
	Pending(ctx context.Context) ([]*domain.Session, error)
	Resume(ctx context.Context, sessionID string, action domain.ReviewAction) (review.Outcome, error)
}

// Runner handles the review loop of the triage engine using a Reviewer.
// This keeps the loop testable and independent of the frontend (terminal, NDJSON).
type Runner struct {
	engine   Engine
	reviewer Reviewer
	logger   *slog.Logger
	interval time.Duration
}

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithReviewer configures the reviewer strategy. Defaults to a TextReviewer on stdio.
func WithReviewer(rv Reviewer) Option {
	return func(r *Runner) {
		r.reviewer = rv
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithPollInterval sets how often Run checks for pending sessions.
func WithPollInterval(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.interval = d
		}
	}
}

// NewRunner creates a Runner over an engine.
func NewRunner(engine Engine, opts ...Option) *Runner {
	r := &Runner{
		engine:   engine,
		logger:   logging.NewNop(),
		interval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.reviewer == nil {
		r.reviewer = NewTextReviewer(os.Stdin, os.Stdout)
	}
	return r
}

// ReviewPending offers every session awaiting review to the reviewer, oldest
// first, and returns how many were resolved. It stops early when the reviewer
// goes away (io.EOF) or ctx is cancelled.
func (r *Runner) ReviewPending(ctx context.Context) (int, error) {
	pending, err := r.engine.Pending(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending: %w", err)
	}

	resolved := 0
	for _, s := range pending {
		done, err := r.reviewOne(ctx, s)
		if err != nil {
			return resolved, err
		}
		if done {
			resolved++
		}
	}
	return resolved, nil
}

// reviewOne loops until the reviewer produces an action the engine accepts,
// or the session turns out to be resolved elsewhere.
func (r *Runner) reviewOne(ctx context.Context, s *domain.Session) (bool, error) {
	log := r.logger.With("claim_id", s.ClaimID, "session_id", s.ID)

	for {
		action, err := r.reviewer.Review(ctx, s)
		if errors.Is(err, domain.ErrInvalidAction) {
			log.Debug("invalid review answer", "err", err)
			_ = r.reviewer.SystemOutput(ctx, fmt.Sprintf("Invalid action: %v", err))
			continue
		}
		if err != nil {
			return false, err
		}

		out, err := r.engine.Resume(ctx, s.ID, action)
		switch {
		case err == nil:
			log.Info("review applied", "action", out.Action, "resolution", out.Resolution)
			return true, r.reviewer.Report(ctx, out)
		case errors.Is(err, domain.ErrInvalidAction):
			_ = r.reviewer.SystemOutput(ctx, fmt.Sprintf("Invalid action: %v", err))
		case errors.Is(err, domain.ErrSessionTerminated),
			errors.Is(err, domain.ErrSessionNotFound),
			errors.Is(err, domain.ErrNotAwaitingReview),
			errors.Is(err, domain.ErrDecisionExists):
			log.Warn("session resolved elsewhere", "err", err)
			return false, r.reviewer.SystemOutput(ctx, fmt.Sprintf("Claim %s was already resolved: %v", s.ClaimID, err))
		default:
			return false, fmt.Errorf("resume %s: %w", s.ID, err)
		}
	}
}

// Run reviews pending sessions until ctx is cancelled or the reviewer goes away.
// Both end the loop without error.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		n, err := r.ReviewPending(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if n > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
