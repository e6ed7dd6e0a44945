package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
)

// Namespace prefixes every metric name.
const Namespace = "triage"

// Metrics holds the triage collectors.
type Metrics struct {
	ClaimsStarted prometheus.Counter
	ClaimsFailed  *prometheus.CounterVec
	TaskDuration  *prometheus.HistogramVec
	Proposals     *prometheus.CounterVec
	Reviews       *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		ClaimsStarted: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "claims_started_total",
				Help:      "Workflow instances started",
			},
		),
		ClaimsFailed: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "claims_failed_total",
				Help:      "Workflow instances that failed before reaching review, by stage",
			},
			[]string{"stage"},
		),
		TaskDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "task_duration_seconds",
				Help:      "Delegated task duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"task", "status"},
		),
		Proposals: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "proposals_total",
				Help:      "Decision proposals suspended for review, by outcome and rule",
			},
			[]string{"outcome", "rule"},
		),
		Reviews: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "reviews_total",
				Help:      "Review actions applied, by action",
			},
			[]string{"action"},
		),
	}
}

// Hooks returns lifecycle hooks feeding the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnClaimStart: func(context.Context, *domain.ClaimEvent) {
			m.ClaimsStarted.Inc()
		},
		OnClaimFailed: func(_ context.Context, e *domain.ClaimEvent) {
			m.ClaimsFailed.WithLabelValues(e.Stage).Inc()
		},
		OnTaskFinish: func(_ context.Context, e *domain.TaskEvent) {
			status := "ok"
			if e.Error != "" {
				status = "error"
			}
			m.TaskDuration.WithLabelValues(e.TaskName, status).Observe(e.Duration.Seconds())
		},
		OnSuspend: func(_ context.Context, e *domain.SessionEvent) {
			m.Proposals.WithLabelValues(string(e.Outcome), e.Rule).Inc()
		},
		OnResume: func(_ context.Context, e *domain.SessionEvent) {
			m.Reviews.WithLabelValues(string(e.Action)).Inc()
		},
	}
}
