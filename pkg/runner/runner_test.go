package runner_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	triage "github.com/stephen-chu/insurance-claims-triage"
	"github.com/stephen-chu/insurance-claims-triage/pkg/adapters/lookup"
	"github.com/stephen-chu/insurance-claims-triage/pkg/delegation"
	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
	"github.com/stephen-chu/insurance-claims-triage/pkg/review"
	"github.com/stephen-chu/insurance-claims-triage/pkg/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) *triage.Engine {
	t.Helper()
	damage, fraud, policy := lookup.Demo().Executors()

	var mu sync.Mutex
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}

	eng, err := triage.New(
		triage.WithTasks(delegation.DefaultSpecs(damage, fraud, policy)...),
		triage.WithClock(clock),
	)
	require.NoError(t, err)
	return eng
}

func start(t *testing.T, eng *triage.Engine, id, claimant string) *domain.Session {
	t.Helper()
	s, err := eng.Start(context.Background(), domain.Claim{
		ClaimID:      id,
		ClaimantName: claimant,
		PolicyID:     "POL-1001",
		ClaimType:    "collision",
		Photos:       []string{"front.jpg"},
	})
	require.NoError(t, err)
	return s
}

func TestRunner_ReviewPending_Text(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()
	start(t, eng, "CLM-1", "Dana Reyes")
	start(t, eng, "CLM-2", "John Smith")

	out := &bytes.Buffer{}
	rv := runner.NewTextReviewer(strings.NewReader("approve\nedit\nDENY\nknown fraud ring\n"), out)
	r := runner.NewRunner(eng, runner.WithReviewer(rv))

	n, err := r.ReviewPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	d1, err := eng.Decision(ctx, "CLM-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ResolutionApproved, d1.Resolution)
	assert.Equal(t, domain.OutcomeAutoApprove, d1.Decision.Outcome)

	d2, err := eng.Decision(ctx, "CLM-2")
	require.NoError(t, err)
	assert.Equal(t, domain.ResolutionEdited, d2.Resolution)
	assert.Equal(t, domain.OutcomeDeny, d2.Decision.Outcome)
	assert.Equal(t, "known fraud ring", d2.Decision.Reason)

	pending, err := eng.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Contains(t, out.String(), "APPROVED:")
	assert.Contains(t, out.String(), "APPROVED (edited):")
}

func TestRunner_ReviewPending_RejectFreesClaim(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()
	start(t, eng, "CLM-1", "Dana Reyes")

	out := &bytes.Buffer{}
	r := runner.NewRunner(eng, runner.WithReviewer(runner.NewTextReviewer(strings.NewReader("reject\n"), out)))

	n, err := r.ReviewPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, out.String(), "Rejected - claim sent back")

	decided, err := eng.Decided(ctx, "CLM-1")
	require.NoError(t, err)
	assert.False(t, decided)

	active, err := eng.ActiveClaims(ctx)
	require.NoError(t, err)
	assert.NotContains(t, active, "CLM-1")
}

func TestRunner_ReviewPending_JSONRepromptsInvalid(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()
	start(t, eng, "CLM-1", "Dana Reyes")

	in := strings.Join([]string{
		`{"action":"edit","fields":{"outcome":"maybe"}}`,
		`{"action":"approve"}`,
	}, "\n") + "\n"
	out := &bytes.Buffer{}
	r := runner.NewRunner(eng, runner.WithReviewer(runner.NewJSONReviewer(strings.NewReader(in), out)))

	n, err := r.ReviewPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	text := out.String()
	assert.Equal(t, 2, strings.Count(text, `"type":"review"`))
	assert.Contains(t, text, `"type":"system"`)
	assert.Contains(t, text, `"type":"outcome"`)
}

func TestRunner_ReviewPending_EOFStops(t *testing.T) {
	eng := newEngine(t)
	start(t, eng, "CLM-1", "Dana Reyes")

	r := runner.NewRunner(eng, runner.WithReviewer(runner.NewTextReviewer(strings.NewReader(""), io.Discard)))

	n, err := r.ReviewPending(context.Background())
	assert.ErrorIs(t, err, io.EOF)
	assert.Zero(t, n)
}

// racingEngine resolves the session elsewhere before the reviewer's action lands.
type racingEngine struct {
	*triage.Engine
	once sync.Once
}

func (e *racingEngine) Resume(ctx context.Context, id string, action domain.ReviewAction) (review.Outcome, error) {
	e.once.Do(func() {
		_, _ = e.Engine.Resume(ctx, id, domain.Reject{})
	})
	return e.Engine.Resume(ctx, id, action)
}

func TestRunner_ReviewPending_ResolvedElsewhere(t *testing.T) {
	eng := newEngine(t)
	start(t, eng, "CLM-1", "Dana Reyes")

	out := &bytes.Buffer{}
	r := runner.NewRunner(&racingEngine{Engine: eng}, runner.WithReviewer(runner.NewTextReviewer(strings.NewReader("approve\n"), out)))

	n, err := r.ReviewPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Contains(t, out.String(), "Claim CLM-1 was already resolved")
}

func TestRunner_Run_PicksUpNewSessions(t *testing.T) {
	eng := newEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pr, pw := io.Pipe()
	r := runner.NewRunner(eng,
		runner.WithReviewer(runner.NewTextReviewer(pr, io.Discard)),
		runner.WithPollInterval(10*time.Millisecond),
	)

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	start(t, eng, "CLM-1", "Dana Reyes")
	_, err := pw.Write([]byte("approve\n"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		decided, _ := eng.Decided(context.Background(), "CLM-1")
		return decided
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
	pw.Close()
}

func TestRunner_Run_StopsOnEOF(t *testing.T) {
	eng := newEngine(t)
	start(t, eng, "CLM-1", "Dana Reyes")

	r := runner.NewRunner(eng, runner.WithReviewer(runner.NewTextReviewer(strings.NewReader(""), io.Discard)))
	assert.NoError(t, r.Run(context.Background()))
}
