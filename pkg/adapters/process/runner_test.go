package process

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

var fraudRequest = domain.TaskRequest{
	TaskName: domain.TaskNameFraud,
	Kind:     domain.TaskFraud,
	ClaimID:  "CLM-1",
	Payload:  map[string]any{"claimant_name": "Ana Lima", "photos": []string{"a.jpg", "b.jpg"}},
}

func TestRunner_Execute(t *testing.T) {
	skipOnWindows(t)

	runner := NewRunner()
	runner.Register("echo_text", "echo", "Fraud risk: low")
	runner.Register("echo_json", "sh", "-c", `echo '{"risk":"medium","score":0.4}'`)
	runner.Register("echo_env", "sh", "-c", `echo "$TRIAGE_TASK $TRIAGE_CLAIM_ID $TRIAGE_ARG_CLAIMANT_NAME $TRIAGE_ARG_PHOTOS"`)
	runner.Register("cat_stdin", "cat")
	runner.Register("crashy", "sh", "-c", "echo 'Something went terribly wrong' >&2; exit 123")

	ctx := context.Background()

	t.Run("Returns Text Output", func(t *testing.T) {
		out, err := runner.Run(ctx, "echo_text", fraudRequest)
		require.NoError(t, err)
		assert.Equal(t, "Fraud risk: low", out)
	})

	t.Run("Detects JSON Output", func(t *testing.T) {
		out, err := runner.Run(ctx, "echo_json", fraudRequest)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"risk": "medium", "score": 0.4}, out)
	})

	t.Run("Passes Payload via Env Vars", func(t *testing.T) {
		out, err := runner.Run(ctx, "echo_env", fraudRequest)
		require.NoError(t, err)
		assert.Equal(t, `fraud-detector CLM-1 Ana Lima ["a.jpg","b.jpg"]`, out)
	})

	t.Run("Passes Payload on Stdin", func(t *testing.T) {
		out, err := runner.Run(ctx, "cat_stdin", fraudRequest)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{
			"claimant_name": "Ana Lima",
			"photos":        []any{"a.jpg", "b.jpg"},
		}, out)
	})

	t.Run("Fails For Unregistered Command", func(t *testing.T) {
		_, err := runner.Run(ctx, "hacker_script", fraudRequest)
		assert.ErrorIs(t, err, ErrNotRegistered)

		_, err = runner.Executor("hacker_script")
		assert.ErrorIs(t, err, ErrNotRegistered)
	})

	t.Run("Reports Exit Status and Stderr", func(t *testing.T) {
		_, err := runner.Run(ctx, "crashy", fraudRequest)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exit status 123")
		assert.Contains(t, err.Error(), "Something went terribly wrong")
	})
}

func TestRunner_Executor(t *testing.T) {
	skipOnWindows(t)

	runner := NewRunner(WithRegistry(ProcessConfig{
		Name:        "policy",
		Command:     "sh",
		Args:        []string{"-c", `echo "$POLICY_DB covered"`},
		Environment: map[string]string{"POLICY_DB": "demo"},
	}))
	assert.Equal(t, []string{"policy"}, runner.Registered())

	exec, err := runner.Executor("policy")
	require.NoError(t, err)

	out, err := exec.Execute(context.Background(), domain.TaskRequest{TaskName: domain.TaskNamePolicy})
	require.NoError(t, err)
	assert.Equal(t, "demo covered", out)
}

func TestRunner_GracefulCancel(t *testing.T) {
	skipOnWindows(t)

	runner := NewRunner(WithGracePeriod(2 * time.Second))
	// Exits promptly on interrupt
	runner.Register("good_citizen", "sh", "-c", `trap 'echo cleanup >&2; exit 0' INT; sleep 10 >/dev/null 2>&1 & wait`)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := runner.Run(ctx, "good_citizen", fraudRequest)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, elapsed, 2*time.Second, "should exit on interrupt, before the grace period")
}

func TestRunner_KillsAfterGracePeriod(t *testing.T) {
	skipOnWindows(t)
	if testing.Short() {
		t.Skip("skipping slow test in short mode")
	}

	runner := NewRunner(WithGracePeriod(500 * time.Millisecond))
	runner.Register("bad_citizen", "sh", "-c", `trap '' INT; sleep 10`)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := runner.Run(ctx, "bad_citizen", fraudRequest)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Less(t, elapsed, 5*time.Second, "should be killed once the grace period ends")
}
