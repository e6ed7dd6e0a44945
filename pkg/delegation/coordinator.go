package delegation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stephen-chu/insurance-claims-triage/internal/logging"
	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// DefaultTaskTimeout bounds the wait for a single task.
const DefaultTaskTimeout = 30 * time.Second

// Coordinator fans a claim out to every registered task and gathers exactly
// one result per task. It never fails as a whole: timeouts, panics and
// executor errors become error results for the affected task only.
type Coordinator struct {
	registry *Registry
	timeout  time.Duration
	limiter  *rate.Limiter
	hooks    domain.LifecycleHooks
	logger   *slog.Logger
}

// Option configures the Coordinator.
type Option func(*Coordinator)

// WithTimeout sets the default per-task timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLimiter paces calls to executors, e.g. when they hit a metered external service.
// Time spent waiting for the limiter counts against the task timeout.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Coordinator) {
		c.limiter = l
	}
}

// WithHooks registers lifecycle callbacks.
func WithHooks(h domain.LifecycleHooks) Option {
	return func(c *Coordinator) {
		c.hooks = h
	}
}

// WithLogger configures a logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// NewCoordinator creates a coordinator over registry.
func NewCoordinator(registry *Registry, opts ...Option) *Coordinator {
	c := &Coordinator{
		registry: registry,
		timeout:  DefaultTaskTimeout,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dispatch runs every registered task concurrently and blocks until each one
// has produced a result or timed out. The returned map is keyed by task name.
func (c *Coordinator) Dispatch(ctx context.Context, sessionID string, claim domain.Claim) map[string]domain.TaskResult {
	specs := c.registry.Specs()
	results := make([]domain.TaskResult, len(specs))

	// Tasks never return errors to the group, so one failure does not cancel its siblings
	var g errgroup.Group
	for i, spec := range specs {
		g.Go(func() error {
			results[i] = c.run(ctx, sessionID, spec, claim)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]domain.TaskResult, len(results))
	for _, r := range results {
		out[r.TaskName] = r
	}
	return out
}

type outcome struct {
	output any
	err    error
}

func (c *Coordinator) run(ctx context.Context, sessionID string, spec TaskSpec, claim domain.Claim) domain.TaskResult {
	start := time.Now()
	result := domain.TaskResult{TaskName: spec.Name, Kind: spec.Kind}

	event := &domain.TaskEvent{
		EventBase: domain.EventBase{
			Timestamp: start,
			Type:      domain.EventTaskStart,
			SessionID: sessionID,
			ClaimID:   claim.ClaimID,
		},
		TaskName: spec.Name,
		Kind:     spec.Kind,
	}
	if c.hooks.OnTaskStart != nil {
		c.hooks.OnTaskStart(ctx, event)
	}

	output, err := c.execute(ctx, spec, claim)
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = err.Error()
		c.logger.Warn("task failed",
			"claim_id", claim.ClaimID,
			"session_id", sessionID,
			"task", spec.Name,
			"err", err,
		)
	} else {
		result.Output = output
	}

	finish := *event
	finish.Timestamp = time.Now()
	finish.Type = domain.EventTaskFinish
	finish.Duration = result.Duration
	finish.Error = result.Error
	if c.hooks.OnTaskFinish != nil {
		c.hooks.OnTaskFinish(ctx, &finish)
	}
	return result
}

func (c *Coordinator) execute(ctx context.Context, spec TaskSpec, claim domain.Claim) (any, error) {
	req, err := spec.BuildRequest(claim)
	if err != nil {
		return nil, err
	}

	timeout := c.timeout
	if spec.Timeout > 0 {
		timeout = spec.Timeout
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(tctx); err != nil {
			return nil, c.deadlineError(ctx, tctx, timeout, err)
		}
	}

	// Buffered so an abandoned executor can still deliver and exit; its late result is dropped
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: %v", domain.ErrTaskPanic, r)}
			}
		}()
		out, err := spec.Executor.Execute(tctx, req)
		done <- outcome{output: out, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			if tctx.Err() != nil {
				return nil, c.deadlineError(ctx, tctx, timeout, o.err)
			}
			return nil, o.err
		}
		return normalizeOutput(o.output)
	case <-tctx.Done():
		return nil, c.deadlineError(ctx, tctx, timeout, tctx.Err())
	}
}

// deadlineError distinguishes our own timeout from cancellation by the caller.
func (c *Coordinator) deadlineError(parent, tctx context.Context, timeout time.Duration, cause error) error {
	if parent.Err() != nil {
		return fmt.Errorf("dispatch cancelled: %w", parent.Err())
	}
	if errors.Is(tctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", domain.ErrTaskTimeout, timeout)
	}
	return cause
}

// normalizeOutput converts executor output to the shapes that survive a
// session round trip: a string, or JSON-compatible structured data.
func normalizeOutput(v any) (any, error) {
	switch out := v.(type) {
	case nil:
		return nil, nil
	case string:
		return out, nil
	case []byte:
		return string(out), nil
	case fmt.Stringer:
		return out.String(), nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("task output is not serializable: %w", err)
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("task output is not serializable: %w", err)
	}
	return generic, nil
}
