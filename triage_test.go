package triage_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	triage "github.com/stephen-chu/insurance-claims-triage"
	"github.com/stephen-chu/insurance-claims-triage/pkg/adapters/file"
	"github.com/stephen-chu/insurance-claims-triage/pkg/adapters/memory"
	"github.com/stephen-chu/insurance-claims-triage/pkg/delegation"
	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
	"github.com/stephen-chu/insurance-claims-triage/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func answer(out any) ports.TaskExecutor {
	return ports.TaskExecutorFunc(func(ctx context.Context, req domain.TaskRequest) (any, error) {
		return out, nil
	})
}

func hang() ports.TaskExecutor {
	return ports.TaskExecutorFunc(func(ctx context.Context, req domain.TaskRequest) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
}

var claimA = domain.Claim{
	ClaimID:      "CLM-A",
	ClaimantName: "Dana Reyes",
	PolicyID:     "POL-1",
	ClaimType:    "collision",
	Photos:       []string{"front.jpg"},
}

func lowRiskTasks() []delegation.TaskSpec {
	return delegation.DefaultSpecs(
		answer(map[string]any{"estimate": 500.0}),
		answer("Fraud risk: low"),
		answer(map[string]any{"covered": true}),
	)
}

func newEngine(t *testing.T, opts ...triage.Option) *triage.Engine {
	t.Helper()
	eng, err := triage.New(append([]triage.Option{triage.WithTasks(lowRiskTasks()...)}, opts...)...)
	require.NoError(t, err)
	return eng
}

func TestNew_RequiresTasks(t *testing.T) {
	_, err := triage.New()
	assert.Error(t, err)
}

func TestNew_RejectsDuplicateTasks(t *testing.T) {
	spec := delegation.TaskSpec{Name: "x", Kind: domain.TaskFraud, Executor: answer("low")}
	_, err := triage.New(triage.WithTasks(spec, spec))
	assert.Error(t, err)
}

func TestEngine_LowRiskApproved(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()

	s, err := eng.Start(ctx, claimA)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAwaitingReview, s.Status)
	require.NotNil(t, s.Proposal)
	assert.Equal(t, domain.OutcomeAutoApprove, s.Proposal.Outcome)
	assert.Equal(t, "500.00", s.Proposal.DamageEstimate)
	assert.Len(t, s.Results, 3)

	pending, err := eng.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, s.ID, pending[0].ID)

	out, err := eng.Resume(ctx, s.ID, domain.Approve{})
	require.NoError(t, err)
	require.NotNil(t, out.Decision)
	assert.Equal(t, *s.Proposal, out.Decision.Decision)

	d, err := eng.Decision(ctx, "CLM-A")
	require.NoError(t, err)
	assert.Equal(t, s.ID, d.SessionID)

	_, err = eng.Inspect(ctx, s.ID)
	assert.ErrorIs(t, err, domain.ErrSessionTerminated)

	_, err = eng.Start(ctx, claimA)
	assert.ErrorIs(t, err, domain.ErrDecisionExists)
}

func TestEngine_TimeoutForcesManualReview(t *testing.T) {
	eng, err := triage.New(
		triage.WithTasks(delegation.DefaultSpecs(
			answer(map[string]any{"estimate": 500.0}),
			hang(),
			answer(map[string]any{"covered": true}),
		)...),
		triage.WithTaskTimeout(20*time.Millisecond),
	)
	require.NoError(t, err)

	s, err := eng.Start(context.Background(), claimA)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeManualReview, s.Proposal.Outcome)
	assert.Equal(t, domain.VerdictUnknown, s.Proposal.FraudRisk)
	assert.True(t, s.Results[domain.TaskNameFraud].Failed())
}

func TestEngine_SecondStartConflicts(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()

	_, err := eng.Start(ctx, claimA)
	require.NoError(t, err)
	_, err = eng.Start(ctx, claimA)
	assert.ErrorIs(t, err, domain.ErrSessionConflict)
}

func TestEngine_RejectAllowsRestart(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()

	s, err := eng.Start(ctx, claimA)
	require.NoError(t, err)
	out, err := eng.Resume(ctx, s.ID, domain.Reject{})
	require.NoError(t, err)
	assert.Nil(t, out.Decision)

	decided, err := eng.Decided(ctx, "CLM-A")
	require.NoError(t, err)
	assert.False(t, decided)

	active, err := eng.ActiveClaims(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	again, err := eng.Start(ctx, claimA)
	require.NoError(t, err)
	assert.NotEqual(t, s.ID, again.ID)
}

func TestEngine_SynthesisFailureLeavesNoSession(t *testing.T) {
	var (
		mu     sync.Mutex
		stages []string
	)
	hooks := domain.LifecycleHooks{
		OnClaimFailed: func(_ context.Context, e *domain.ClaimEvent) {
			mu.Lock()
			defer mu.Unlock()
			stages = append(stages, e.Stage)
		},
	}
	eng, err := triage.New(
		triage.WithTasks(delegation.DefaultSpecs(
			answer(map[string]any{"estimate": 500.0}),
			answer("no idea"),
			answer(map[string]any{"covered": true}),
		)...),
		triage.WithLifecycleHooks(hooks),
	)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = eng.Start(ctx, claimA)
	require.ErrorIs(t, err, domain.ErrUninterpretable)

	active, err := eng.ActiveClaims(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
	assert.Equal(t, []string{"synthesis"}, stages)
}

func TestEngine_StartRequiresClaimID(t *testing.T) {
	eng := newEngine(t)
	_, err := eng.Start(context.Background(), domain.Claim{})
	assert.Error(t, err)
}

func TestEngine_HooksFireInOrder(t *testing.T) {
	var (
		mu     sync.Mutex
		events []string
	)
	record := func(name string) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, name)
	}
	hooks := domain.LifecycleHooks{
		OnClaimStart: func(context.Context, *domain.ClaimEvent) { record("start") },
		OnSuspend:    func(context.Context, *domain.SessionEvent) { record("suspend") },
		OnResume:     func(context.Context, *domain.SessionEvent) { record("resume") },
	}
	eng := newEngine(t, triage.WithLifecycleHooks(hooks))
	ctx := context.Background()

	s, err := eng.Start(ctx, claimA)
	require.NoError(t, err)
	_, err = eng.Resume(ctx, s.ID, domain.Approve{})
	require.NoError(t, err)

	assert.Equal(t, []string{"start", "suspend", "resume"}, events)
}

// A suspended claim is decided by a second engine sharing the same files.
func TestEngine_ResumeAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	durable := func() []triage.Option {
		return []triage.Option{
			triage.WithStore(file.New(filepath.Join(dir, "sessions"))),
			triage.WithArchive(file.NewArchive(filepath.Join(dir, "archive"))),
			triage.WithSink(file.NewSink(filepath.Join(dir, "results"))),
		}
	}
	ctx := context.Background()

	first := newEngine(t, durable()...)
	s, err := first.Start(ctx, claimA)
	require.NoError(t, err)

	second := newEngine(t, durable()...)
	pending, err := second.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, s.Results, pending[0].Results)

	edit := domain.Edit{Fields: domain.EditFields{Outcome: domain.StringPtr("deny"), Reason: domain.StringPtr("photos show prior damage")}}
	out, err := second.Resume(ctx, s.ID, edit)
	require.NoError(t, err)
	assert.Equal(t, domain.ResolutionEdited, out.Resolution)
	assert.Equal(t, domain.OutcomeDeny, out.Decision.Decision.Outcome)

	_, err = first.Resume(ctx, s.ID, domain.Approve{})
	assert.True(t, errors.Is(err, domain.ErrSessionTerminated), "got %v", err)
}

// A decision written by another process while the session is still live:
// the claim stays owned until the session closes, then stays decided.
func TestEngine_StartChecksDecisionAfterOwnership(t *testing.T) {
	sink := memory.NewSink()
	eng := newEngine(t, triage.WithSink(sink))
	ctx := context.Background()

	s, err := eng.Start(ctx, claimA)
	require.NoError(t, err)
	require.NoError(t, sink.Write(ctx, domain.FinalDecision{
		ClaimID:    claimA.ClaimID,
		SessionID:  s.ID,
		Decision:   *s.Proposal,
		Resolution: domain.ResolutionApproved,
	}))

	_, err = eng.Start(ctx, claimA)
	assert.ErrorIs(t, err, domain.ErrSessionConflict)

	// The late review closes the session without writing twice
	_, err = eng.Resume(ctx, s.ID, domain.Approve{})
	assert.ErrorIs(t, err, domain.ErrDecisionExists)

	_, err = eng.Start(ctx, claimA)
	assert.ErrorIs(t, err, domain.ErrDecisionExists)
	pending, err := eng.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestEngine_UnreadableSessionDoesNotBlockOtherClaims(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sessions")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{"session_id":"broken",`), 0644))

	eng := newEngine(t, triage.WithStore(file.New(dir)))
	ctx := context.Background()

	for _, id := range []string{"CLM-A", "CLM-B"} {
		c := claimA
		c.ClaimID = id
		s, err := eng.Start(ctx, c)
		require.NoError(t, err, id)
		assert.Equal(t, domain.StatusAwaitingReview, s.Status)
	}

	pending, err := eng.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}
