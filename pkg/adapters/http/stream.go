package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/stephen-chu/insurance-claims-triage/internal/logging"
	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
)

// allClaims is the subscription key receiving every event.
const allClaims = ""

// StreamManager fans review checkpoint events out to SSE subscribers.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{} // claim ID -> set of channels
	logger      *slog.Logger
}

// NewStreamManager creates an empty StreamManager.
func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a channel for one claim, or for every claim when claimID is empty.
// The returned func unsubscribes and closes the channel.
func (sm *StreamManager) Subscribe(claimID string) (<-chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	if _, ok := sm.subscribers[claimID]; !ok {
		sm.subscribers[claimID] = make(map[chan<- string]struct{})
	}
	sm.subscribers[claimID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[claimID]; ok {
			if _, ok := subs[ch]; !ok {
				return
			}
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, claimID)
			}
		}
	}
}

// Broadcast delivers msg to the claim's subscribers and to catch-all subscribers.
// Slow clients drop messages rather than block the workflow.
func (sm *StreamManager) Broadcast(claimID, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	deliver := func(key string) {
		for ch := range sm.subscribers[key] {
			select {
			case ch <- msg:
			default:
				sm.logger.Warn("sse client buffer full, dropping message", "claim_id", claimID)
			}
		}
	}
	deliver(claimID)
	if claimID != allClaims {
		deliver(allClaims)
	}
}

// Hooks publishes suspend and resume events to subscribers.
func (sm *StreamManager) Hooks() domain.LifecycleHooks {
	publish := func(e *domain.SessionEvent) {
		data, err := json.Marshal(e)
		if err != nil {
			sm.logger.Error("encode stream event", "err", err)
			return
		}
		sm.Broadcast(e.ClaimID, string(data))
	}
	return domain.LifecycleHooks{
		OnSuspend: func(_ context.Context, e *domain.SessionEvent) { publish(e) },
		OnResume:  func(_ context.Context, e *domain.SessionEvent) { publish(e) },
	}
}

// SubscribeEvents handles GET /events (SSE). The optional claim_id query
// parameter narrows the stream to one claim.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	claimID := r.URL.Query().Get("claim_id")
	ch, cancel := s.Streams.Subscribe(claimID)
	defer cancel()

	s.logger.Info("sse client connected", "claim_id", claimID)
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("sse client disconnected", "claim_id", claimID)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}
