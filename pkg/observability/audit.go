package observability

import (
	"context"
	"log/slog"

	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
)

// AuditHooks logs every lifecycle event at Info (task starts at Debug).
func AuditHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnClaimStart: func(ctx context.Context, e *domain.ClaimEvent) {
			logger.InfoContext(ctx, "claim_start",
				"claim_id", e.ClaimID,
				"session_id", e.SessionID,
			)
		},
		OnTaskStart: func(ctx context.Context, e *domain.TaskEvent) {
			logger.DebugContext(ctx, "task_start",
				"session_id", e.SessionID,
				"task", e.TaskName,
			)
		},
		OnTaskFinish: func(ctx context.Context, e *domain.TaskEvent) {
			attrs := []any{
				"session_id", e.SessionID,
				"task", e.TaskName,
				"duration", e.Duration,
			}
			if e.Error != "" {
				logger.WarnContext(ctx, "task_finish", append(attrs, "err", e.Error)...)
				return
			}
			logger.InfoContext(ctx, "task_finish", attrs...)
		},
		OnSuspend: func(ctx context.Context, e *domain.SessionEvent) {
			logger.InfoContext(ctx, "suspend",
				"claim_id", e.ClaimID,
				"session_id", e.SessionID,
				"outcome", e.Outcome,
				"rule", e.Rule,
			)
		},
		OnResume: func(ctx context.Context, e *domain.SessionEvent) {
			logger.InfoContext(ctx, "resume",
				"claim_id", e.ClaimID,
				"session_id", e.SessionID,
				"action", e.Action,
				"resolution", e.Resolution,
			)
		},
		OnClaimFailed: func(ctx context.Context, e *domain.ClaimEvent) {
			logger.WarnContext(ctx, "claim_failed",
				"claim_id", e.ClaimID,
				"stage", e.Stage,
				"err", e.Error,
			)
		},
	}
}
