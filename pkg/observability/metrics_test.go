package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stephen-chu/insurance-claims-triage/internal/logging"
	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
	"github.com/stephen-chu/insurance-claims-triage/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Hooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)
	h := m.Hooks()
	ctx := context.Background()

	h.OnClaimStart(ctx, &domain.ClaimEvent{})
	h.OnClaimStart(ctx, &domain.ClaimEvent{})
	h.OnClaimFailed(ctx, &domain.ClaimEvent{Stage: "synthesis"})
	h.OnTaskFinish(ctx, &domain.TaskEvent{TaskName: domain.TaskNameFraud, Duration: 200 * time.Millisecond})
	h.OnTaskFinish(ctx, &domain.TaskEvent{TaskName: domain.TaskNameFraud, Error: "task timed out"})
	h.OnSuspend(ctx, &domain.SessionEvent{Outcome: domain.OutcomeManualReview, Rule: "large-loss"})
	h.OnResume(ctx, &domain.SessionEvent{Action: domain.ActionEdit})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ClaimsStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ClaimsFailed.WithLabelValues("synthesis")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Proposals.WithLabelValues("MANUAL REVIEW", "large-loss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reviews.WithLabelValues("edit")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.TaskDuration))

	expected := `
# HELP triage_reviews_total Review actions applied, by action
# TYPE triage_reviews_total counter
triage_reviews_total{action="edit"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "triage_reviews_total"))
}

func TestMetrics_DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	observability.NewMetrics(reg)
	assert.Panics(t, func() { observability.NewMetrics(reg) })
}

func TestAuditHooks(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(&buf, slog.LevelDebug, logging.FormatText)
	h := domain.ComposeHooks(observability.AuditHooks(logger))
	ctx := context.Background()

	h.OnSuspend(ctx, &domain.SessionEvent{
		EventBase: domain.EventBase{ClaimID: "CLM-1", SessionID: "s-1"},
		Outcome:   domain.OutcomeAutoApprove,
		Rule:      "low-risk-covered",
	})
	h.OnTaskFinish(ctx, &domain.TaskEvent{TaskName: domain.TaskNameDamage, Error: "boom"})

	out := buf.String()
	assert.Contains(t, out, "msg=suspend")
	assert.Contains(t, out, "rule=low-risk-covered")
	assert.Contains(t, out, "level=WARN msg=task_finish")
	assert.Contains(t, out, "err=boom")
}
