package triage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stephen-chu/insurance-claims-triage/internal/logging"
	"github.com/stephen-chu/insurance-claims-triage/pkg/adapters/memory"
	"github.com/stephen-chu/insurance-claims-triage/pkg/delegation"
	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
	"github.com/stephen-chu/insurance-claims-triage/pkg/intake"
	"github.com/stephen-chu/insurance-claims-triage/pkg/ports"
	"github.com/stephen-chu/insurance-claims-triage/pkg/review"
	"github.com/stephen-chu/insurance-claims-triage/pkg/session"
	"github.com/stephen-chu/insurance-claims-triage/pkg/synthesis"
	"golang.org/x/time/rate"
)

// Engine is the high-level entry point of the triage library.
// It wires delegation, synthesis, the session manager and the review gate
// into the claim workflow: Start runs a claim up to the review checkpoint and
// Resume consumes the human decision.
type Engine struct {
	registry    *delegation.Registry
	coordinator *delegation.Coordinator
	synthesizer *synthesis.Synthesizer
	sessions    *session.Manager
	gate        *review.Gate

	store   ports.SessionStore
	archive ports.Archive
	locker  ports.DistributedLocker
	sink    ports.DecisionSink

	specs       []delegation.TaskSpec
	taskTimeout time.Duration
	limiter     *rate.Limiter
	limit       *float64
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
	now         func() time.Time
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithTasks registers the delegated analyses. At least one is required.
func WithTasks(specs ...delegation.TaskSpec) Option {
	return func(e *Engine) {
		e.specs = append(e.specs, specs...)
	}
}

// WithStore sets the session store. Defaults to an in-memory store, which is
// NOT durable: suspended sessions are lost on restart.
func WithStore(s ports.SessionStore) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithArchive sets where tombstones of closed sessions are kept.
func WithArchive(a ports.Archive) Option {
	return func(e *Engine) {
		e.archive = a
	}
}

// WithLocker enables distributed locking of sessions and claims.
func WithLocker(l ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithSink sets the result sink for final decisions.
func WithSink(s ports.DecisionSink) Option {
	return func(e *Engine) {
		e.sink = s
	}
}

// WithTaskTimeout sets the default per-task timeout.
func WithTaskTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.taskTimeout = d
	}
}

// WithRateLimiter paces calls to task executors.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(e *Engine) {
		e.limiter = l
	}
}

// WithAutoApproveLimit sets the largest damage estimate eligible for auto-approval.
func WithAutoApproveLimit(usd float64) Option {
	return func(e *Engine) {
		e.limit = &usd
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New initializes a new triage Engine.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		logger: logging.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	if len(e.specs) == 0 {
		return nil, fmt.Errorf("at least one task is required")
	}
	e.registry = delegation.NewRegistry()
	for _, spec := range e.specs {
		if err := e.registry.Register(spec); err != nil {
			return nil, err
		}
	}

	if e.store == nil {
		e.logger.Warn("using in-memory session store; suspended sessions will not survive a restart")
		e.store = memory.NewStore()
	}
	if e.archive == nil {
		e.archive = memory.NewArchive()
	}
	if e.sink == nil {
		e.sink = memory.NewSink()
	}

	coordOpts := []delegation.Option{
		delegation.WithHooks(e.hooks),
		delegation.WithLogger(e.logger),
		delegation.WithTimeout(e.taskTimeout),
	}
	if e.limiter != nil {
		coordOpts = append(coordOpts, delegation.WithLimiter(e.limiter))
	}
	e.coordinator = delegation.NewCoordinator(e.registry, coordOpts...)

	var synthOpts []synthesis.Option
	if e.limit != nil {
		synthOpts = append(synthOpts, synthesis.WithAutoApproveLimit(*e.limit))
	}
	e.synthesizer = synthesis.New(synthOpts...)

	sessOpts := []session.Option{
		session.WithArchive(e.archive),
		session.WithLogger(e.logger),
		session.WithClock(e.now),
	}
	if e.locker != nil {
		sessOpts = append(sessOpts, session.WithLocker(e.locker))
	}
	e.sessions = session.NewManager(e.store, sessOpts...)

	e.gate = review.NewGate(e.sessions, e.sink,
		review.WithHooks(e.hooks),
		review.WithLogger(e.logger),
		review.WithClock(e.now),
	)
	return e, nil
}

func (e *Engine) claimEvent(typ domain.EventType, claimID, sessionID string) domain.ClaimEvent {
	return domain.ClaimEvent{EventBase: domain.EventBase{
		Timestamp: e.now(),
		Type:      typ,
		SessionID: sessionID,
		ClaimID:   claimID,
	}}
}

func (e *Engine) fail(ctx context.Context, claimID, sessionID, stage string, err error) error {
	if e.hooks.OnClaimFailed != nil {
		ev := e.claimEvent(domain.EventClaimFailed, claimID, sessionID)
		ev.Stage = stage
		ev.Error = err.Error()
		e.hooks.OnClaimFailed(ctx, &ev)
	}
	return err
}

// discard removes a session that never reached the checkpoint.
func (e *Engine) discard(ctx context.Context, sessionID string) {
	if err := e.sessions.Delete(context.WithoutCancel(ctx), sessionID); err != nil {
		e.logger.Error("failed to discard session", "session_id", sessionID, "err", err)
	}
}

// undecided refuses a new session for a claim that already has a final decision.
func (e *Engine) undecided(ctx context.Context, claimID string) error {
	decided, err := e.sink.Exists(ctx, claimID)
	if err != nil {
		return fmt.Errorf("failed to check result sink: %w", err)
	}
	if decided {
		return fmt.Errorf("claim %s: %w", claimID, domain.ErrDecisionExists)
	}
	return nil
}

// Start runs one workflow instance up to the review checkpoint: it creates the
// session, fans the claim out to every task, synthesizes the proposal and
// suspends. On success the returned session is awaiting review. On failure no
// session is left behind and the claim stays eligible for intake.
func (e *Engine) Start(ctx context.Context, claim domain.Claim) (*domain.Session, error) {
	if claim.ClaimID == "" {
		return nil, fmt.Errorf("claim has no claim_id")
	}

	s, err := e.sessions.Create(ctx, claim, e.undecided)
	if err != nil {
		if errors.Is(err, domain.ErrSessionConflict) || errors.Is(err, domain.ErrDecisionExists) {
			return nil, err
		}
		return nil, e.fail(ctx, claim.ClaimID, "", "create", err)
	}

	if e.hooks.OnClaimStart != nil {
		ev := e.claimEvent(domain.EventClaimStart, claim.ClaimID, s.ID)
		e.hooks.OnClaimStart(ctx, &ev)
	}
	e.logger.Info("claim started", "claim_id", claim.ClaimID, "session_id", s.ID)

	s.Results = e.coordinator.Dispatch(ctx, s.ID, claim)

	proposal, err := e.synthesizer.Synthesize(claim, s.Results)
	if err != nil {
		e.discard(ctx, s.ID)
		return nil, e.fail(ctx, claim.ClaimID, s.ID, "synthesis", err)
	}

	if err := e.gate.Suspend(ctx, s, proposal); err != nil {
		e.discard(ctx, s.ID)
		return nil, e.fail(ctx, claim.ClaimID, s.ID, "suspend", err)
	}
	return s, nil
}

// Resume applies a review action to a suspended session.
func (e *Engine) Resume(ctx context.Context, sessionID string, action domain.ReviewAction) (review.Outcome, error) {
	return e.gate.Resume(ctx, sessionID, action)
}

// Pending returns the sessions awaiting review, oldest first.
func (e *Engine) Pending(ctx context.Context) ([]*domain.Session, error) {
	return e.sessions.Pending(ctx)
}

// Inspect returns a live session.
func (e *Engine) Inspect(ctx context.Context, sessionID string) (*domain.Session, error) {
	return e.sessions.Load(ctx, sessionID)
}

// Decision returns the final decision written for a claim.
func (e *Engine) Decision(ctx context.Context, claimID string) (domain.FinalDecision, error) {
	return e.sink.Load(ctx, claimID)
}

// Decided reports whether a final decision exists for the claim.
func (e *Engine) Decided(ctx context.Context, claimID string) (bool, error) {
	return e.sink.Exists(ctx, claimID)
}

// ActiveClaims maps claims owning a live session to that session's ID.
func (e *Engine) ActiveClaims(ctx context.Context) (map[string]string, error) {
	return e.sessions.ActiveClaims(ctx)
}

// RecoverStale removes running sessions abandoned by a crashed process.
func (e *Engine) RecoverStale(ctx context.Context, olderThan time.Duration) ([]string, error) {
	return e.sessions.RecoverStale(ctx, olderThan)
}

// ClaimRejected reports a claim document the intake source could not read.
// No session exists for it; the claim is retried once its document changes.
func (e *Engine) ClaimRejected(ctx context.Context, claimErr *domain.ClaimError) {
	_ = e.fail(ctx, claimErr.ClaimID, "", "intake", claimErr)
}

// Intake returns a Claim Intake Loop feeding this engine from source.
func (e *Engine) Intake(source ports.ClaimSource, opts ...intake.Option) *intake.Loop {
	opts = append([]intake.Option{intake.WithLogger(e.logger)}, opts...)
	return intake.New(e, source, opts...)
}

// Tasks returns the registered task specs.
func (e *Engine) Tasks() []delegation.TaskSpec {
	return e.registry.Specs()
}
