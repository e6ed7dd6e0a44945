package ports

import (
	"context"

	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
)

// TaskExecutor performs one delegated analysis.
// The returned output is either free text (string) or structured (map[string]any).
// Implementations should honor ctx cancellation; the coordinator abandons
// executors that outlive their timeout.
type TaskExecutor interface {
	Execute(ctx context.Context, req domain.TaskRequest) (any, error)
}

// TaskExecutorFunc adapts a function to TaskExecutor.
type TaskExecutorFunc func(ctx context.Context, req domain.TaskRequest) (any, error)

func (f TaskExecutorFunc) Execute(ctx context.Context, req domain.TaskRequest) (any, error) {
	return f(ctx, req)
}
