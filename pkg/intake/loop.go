// Package intake implements the Claim Intake Loop: it repeatedly scans the
// claim source for claims that have neither a final decision nor a live
// session and starts one workflow instance for each.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/stephen-chu/insurance-claims-triage/internal/logging"
	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
	"github.com/stephen-chu/insurance-claims-triage/pkg/ports"
	"golang.org/x/sync/semaphore"
)

// Loop defaults.
const (
	DefaultInterval    = 3 * time.Second
	DefaultConcurrency = 4
	DefaultStaleAfter  = 10 * time.Minute
)

// Workflow is what the loop drives; the triage Engine implements it.
type Workflow interface {
	// Start runs delegation and synthesis and suspends the claim for review.
	Start(ctx context.Context, claim domain.Claim) (*domain.Session, error)
	// ActiveClaims maps claims owning a live session to that session.
	ActiveClaims(ctx context.Context) (map[string]string, error)
	// Decided reports whether a final decision exists for the claim.
	Decided(ctx context.Context, claimID string) (bool, error)
	// RecoverStale removes sessions abandoned before reaching review.
	RecoverStale(ctx context.Context, olderThan time.Duration) ([]string, error)
	// ClaimRejected records a claim whose document the source could not read.
	ClaimRejected(ctx context.Context, claimErr *domain.ClaimError)
}

// Report summarizes one pass.
type Report struct {
	Scanned int
	// Started maps claim ID to the suspended session ID.
	Started map[string]string
	// Skipped lists claims another worker got to first.
	Skipped []string
	// Failed maps claim ID to the error that stopped its workflow, or to the
	// *domain.ClaimError of a claim document that could not be read.
	Failed map[string]error
}

// Loop is the Claim Intake Loop.
type Loop struct {
	workflow    Workflow
	source      ports.ClaimSource
	interval    time.Duration
	concurrency int64
	staleAfter  time.Duration
	onSuspended func(context.Context, *domain.Session)
	logger      *slog.Logger

	mu       sync.Mutex
	rejected map[string]string // claim ID -> last reported error
}

// Option configures the Loop.
type Option func(*Loop)

// WithInterval sets the poll interval.
func WithInterval(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithConcurrency bounds how many workflows start at once.
func WithConcurrency(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.concurrency = int64(n)
		}
	}
}

// WithStaleAfter sets the age after which running sessions are considered abandoned.
func WithStaleAfter(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.staleAfter = d
		}
	}
}

// WithOnSuspended registers a callback invoked for every session that reaches review.
func WithOnSuspended(fn func(context.Context, *domain.Session)) Option {
	return func(l *Loop) {
		l.onSuspended = fn
	}
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// New creates an intake loop.
func New(workflow Workflow, source ports.ClaimSource, opts ...Option) *Loop {
	l := &Loop{
		workflow:    workflow,
		source:      source,
		interval:    DefaultInterval,
		concurrency: DefaultConcurrency,
		staleAfter:  DefaultStaleAfter,
		logger:      logging.NewNop(),
		rejected:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Scan returns, sorted by ID, the claims with no final decision and no live session.
// Claims whose decision check fails are logged and left for the next pass, and
// so are claim documents the source could not read.
func (l *Loop) Scan(ctx context.Context) ([]domain.Claim, error) {
	eligible, _, err := l.scan(ctx)
	return eligible, err
}

func (l *Loop) scan(ctx context.Context) ([]domain.Claim, []*domain.ClaimError, error) {
	claims, err := l.source.List(ctx)
	var skipped *domain.SkippedClaimsError
	if err != nil && !errors.As(err, &skipped) {
		return nil, nil, fmt.Errorf("failed to list claims: %w", err)
	}
	active, err := l.workflow.ActiveClaims(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list live sessions: %w", err)
	}

	open := func(claimID string) bool {
		if _, busy := active[claimID]; busy {
			return false
		}
		decided, err := l.workflow.Decided(ctx, claimID)
		if err != nil {
			l.logger.Warn("decision check failed", "claim_id", claimID, "err", err)
			return false
		}
		return !decided
	}

	eligible := make([]domain.Claim, 0, len(claims))
	for _, c := range claims {
		if c.ClaimID != "" && open(c.ClaimID) {
			eligible = append(eligible, c)
		}
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].ClaimID < eligible[j].ClaimID })

	var invalid []*domain.ClaimError
	if skipped != nil {
		for _, ce := range skipped.Skipped {
			if open(ce.ClaimID) {
				invalid = append(invalid, ce)
			}
		}
	}
	return eligible, invalid, nil
}

// reportInvalid logs and forwards each unreadable claim once per distinct error.
func (l *Loop) reportInvalid(ctx context.Context, invalid []*domain.ClaimError, report *Report) {
	l.mu.Lock()
	defer l.mu.Unlock()

	current := make(map[string]string, len(invalid))
	for _, ce := range invalid {
		if _, ok := report.Failed[ce.ClaimID]; !ok {
			report.Failed[ce.ClaimID] = ce
		}
		msg := ce.Error()
		if prev, ok := current[ce.ClaimID]; ok {
			msg = prev + "; " + msg
		}
		current[ce.ClaimID] = msg
	}
	for id, msg := range current {
		if l.rejected[id] == msg {
			continue
		}
		l.logger.Warn("claim document unreadable", "claim_id", id, "err", msg)
		l.workflow.ClaimRejected(ctx, report.Failed[id].(*domain.ClaimError))
	}
	l.rejected = current
}

// RunOnce scans and starts a workflow for each eligible claim, then waits for
// all of them to suspend or fail. A failure affects only its own claim.
//
// Cancelling ctx stops new workflows from starting; those already started
// run to their suspension point on a context detached from cancellation.
func (l *Loop) RunOnce(ctx context.Context) (Report, error) {
	report := Report{Started: map[string]string{}, Failed: map[string]error{}}

	claims, invalid, err := l.scan(ctx)
	if err != nil {
		return report, err
	}
	report.Scanned = len(claims)
	if len(invalid) > 0 {
		l.reportInvalid(ctx, invalid, &report)
		report.Scanned += len(report.Failed)
	} else {
		l.mu.Lock()
		clear(l.rejected)
		l.mu.Unlock()
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = semaphore.NewWeighted(l.concurrency)
	)
	detached := context.WithoutCancel(ctx)

	for _, c := range claims {
		if err := sem.Acquire(ctx, 1); err != nil {
			break // stopping; leave the rest for a future pass
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			s, err := l.start(detached, c)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				report.Started[c.ClaimID] = s.ID
			case errors.Is(err, domain.ErrSessionConflict), errors.Is(err, domain.ErrDecisionExists):
				report.Skipped = append(report.Skipped, c.ClaimID)
			default:
				report.Failed[c.ClaimID] = err
			}
		}()
	}
	wg.Wait()

	sort.Strings(report.Skipped)
	return report, nil
}

func (l *Loop) start(ctx context.Context, c domain.Claim) (s *domain.Session, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("workflow panicked: %v", r)
		}
		if err != nil && !errors.Is(err, domain.ErrSessionConflict) && !errors.Is(err, domain.ErrDecisionExists) {
			l.logger.Warn("claim failed", "claim_id", c.ClaimID, "err", err)
		}
	}()

	s, err = l.workflow.Start(ctx, c)
	if err != nil {
		return nil, err
	}
	l.logger.Info("claim suspended for review",
		"claim_id", c.ClaimID,
		"session_id", s.ID,
		"outcome", s.Proposal.Outcome,
	)
	if l.onSuspended != nil {
		l.onSuspended(ctx, s)
	}
	return s, nil
}

// recoverStale frees claims held by running sessions older than the stale age.
func (l *Loop) recoverStale(ctx context.Context) {
	if removed, err := l.workflow.RecoverStale(ctx, l.staleAfter); err != nil {
		l.logger.Warn("stale session recovery failed", "err", err)
	} else if len(removed) > 0 {
		l.logger.Info("recovered stale sessions", "sessions", removed)
	}
}

// Run polls until ctx is cancelled. It wakes on the poll interval and, when
// the source is Watchable, as soon as the source changes. Every pass first
// recovers sessions abandoned by a crashed worker, this process or another.
func (l *Loop) Run(ctx context.Context) error {
	var changes <-chan struct{}
	if w, ok := l.source.(ports.Watchable); ok {
		ch, err := w.Watch(ctx)
		if err != nil {
			l.logger.Warn("claim source watch unavailable, polling only", "err", err)
		} else {
			changes = ch
		}
	}

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		l.recoverStale(ctx)
		report, err := l.RunOnce(ctx)
		if err != nil {
			l.logger.Warn("intake pass failed", "err", err)
		} else if report.Scanned > 0 {
			l.logger.Debug("intake pass",
				"scanned", report.Scanned,
				"started", len(report.Started),
				"failed", len(report.Failed),
			)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case _, ok := <-changes:
			if !ok {
				changes = nil
			}
		}
	}
}
