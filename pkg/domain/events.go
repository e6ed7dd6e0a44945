package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventTaskStart   EventType = "task_start"
	EventTaskFinish  EventType = "task_finish"
	EventSuspend     EventType = "suspend"
	EventResume      EventType = "resume"
	EventClaimStart  EventType = "claim_start"
	EventClaimFailed EventType = "claim_failed"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	ClaimID   string    `json:"claim_id"`
}

// TaskEvent represents the dispatch or completion of one delegated task.
type TaskEvent struct {
	EventBase
	TaskName string        `json:"task_name"`
	Kind     TaskKind      `json:"kind"`
	Duration time.Duration `json:"duration,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// SessionEvent represents a suspension at, or a resume from, the review checkpoint.
type SessionEvent struct {
	EventBase
	Outcome    Outcome    `json:"outcome,omitempty"`
	Rule       string     `json:"rule,omitempty"`
	Action     ActionKind `json:"action,omitempty"`
	Resolution Resolution `json:"resolution,omitempty"`
}

// ClaimEvent represents the start of a workflow instance or a per-claim failure.
type ClaimEvent struct {
	EventBase
	Stage string `json:"stage,omitempty"`
	Error string `json:"error,omitempty"`
}

// LifecycleHooks defines callbacks for workflow observability.
// Nil callbacks are skipped.
type LifecycleHooks struct {
	OnClaimStart  func(context.Context, *ClaimEvent)
	OnTaskStart   func(context.Context, *TaskEvent)
	OnTaskFinish  func(context.Context, *TaskEvent)
	OnSuspend     func(context.Context, *SessionEvent)
	OnResume      func(context.Context, *SessionEvent)
	OnClaimFailed func(context.Context, *ClaimEvent)
}

// ComposeHooks fans every callback out to all given hook sets, in order.
func ComposeHooks(sets ...LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnClaimStart: func(ctx context.Context, e *ClaimEvent) {
			for _, h := range sets {
				if h.OnClaimStart != nil {
					h.OnClaimStart(ctx, e)
				}
			}
		},
		OnTaskStart: func(ctx context.Context, e *TaskEvent) {
			for _, h := range sets {
				if h.OnTaskStart != nil {
					h.OnTaskStart(ctx, e)
				}
			}
		},
		OnTaskFinish: func(ctx context.Context, e *TaskEvent) {
			for _, h := range sets {
				if h.OnTaskFinish != nil {
					h.OnTaskFinish(ctx, e)
				}
			}
		},
		OnSuspend: func(ctx context.Context, e *SessionEvent) {
			for _, h := range sets {
				if h.OnSuspend != nil {
					h.OnSuspend(ctx, e)
				}
			}
		},
		OnResume: func(ctx context.Context, e *SessionEvent) {
			for _, h := range sets {
				if h.OnResume != nil {
					h.OnResume(ctx, e)
				}
			}
		},
		OnClaimFailed: func(ctx context.Context, e *ClaimEvent) {
			for _, h := range sets {
				if h.OnClaimFailed != nil {
					h.OnClaimFailed(ctx, e)
				}
			}
		},
	}
}
