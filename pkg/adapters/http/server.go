// Package http exposes the review checkpoint over HTTP: listing sessions that
// await review, inspecting one, and submitting a review action. Requests are
// validated against the embedded OpenAPI document.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stephen-chu/insurance-claims-triage/internal/logging"
	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
	"github.com/stephen-chu/insurance-claims-triage/pkg/review"
	"github.com/stephen-chu/insurance-claims-triage/pkg/runner"
)

// Engine is the part of the triage engine served over HTTP.
type Engine interface {
	Pending(ctx context.Context) ([]*domain.Session, error)
	Inspect(ctx context.Context, sessionID string) (*domain.Session, error)
	Resume(ctx context.Context, sessionID string, action domain.ReviewAction) (review.Outcome, error)
}

// Server holds the handlers of the review API.
type Server struct {
	Engine  Engine
	Streams *StreamManager

	metrics http.Handler
	version string
	logger  *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures a logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithMetricsHandler serves h on /metrics. Defaults to the global Prometheus registry.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithStreams shares a StreamManager whose Hooks are registered on the engine.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// WithVersion sets the version reported by /info.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = strings.TrimSpace(v)
	}
}

// SessionSummary is the list view of a pending session.
type SessionSummary struct {
	SessionID string                   `json:"session_id"`
	ClaimID   string                   `json:"claim_id"`
	Status    domain.Status            `json:"status"`
	Proposal  *domain.DecisionProposal `json:"proposal,omitempty"`
	CreatedAt time.Time                `json:"created_at"`
}

// ReviewRequest is the body of POST /sessions/{id}/review.
type ReviewRequest struct {
	Action   string         `json:"action"`
	Fields   map[string]any `json:"fields,omitempty"`
	Reviewer string         `json:"reviewer,omitempty"`
	Comment  string         `json:"comment,omitempty"`
}

// ReviewResponse reports a consumed review action.
type ReviewResponse struct {
	SessionID  string                `json:"session_id"`
	ClaimID    string                `json:"claim_id"`
	Action     domain.ActionKind     `json:"action"`
	Resolution domain.Resolution     `json:"resolution"`
	Decision   *domain.FinalDecision `json:"decision,omitempty"`
}

// NewHandler creates the HTTP handler for the engine.
// It fails only if the embedded OpenAPI document is invalid.
func NewHandler(engine Engine, opts ...Option) (http.Handler, error) {
	server := &Server{
		Engine:  engine,
		metrics: promhttp.Handler(),
		version: "unknown",
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(server)
	}
	if server.Streams == nil {
		server.Streams = NewStreamManager(server.logger)
	}

	doc, err := GetSwagger()
	if err != nil {
		return nil, err
	}
	validate, err := requestValidator(doc)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		_, _ = w.Write(rawSpec)
	})
	r.Handle("/metrics", server.metrics)
	r.Get("/health", server.GetHealth)
	r.Get("/info", server.GetInfo)
	r.Get("/events", server.SubscribeEvents)

	r.Group(func(r chi.Router) {
		r.Use(validate)
		r.Get("/sessions", server.ListPendingSessions)
		r.Get("/sessions/{id}", server.GetSession)
		r.Post("/sessions/{id}/review", server.SubmitReview)
	})

	return r, nil
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if doc, err := GetSwagger(); err == nil && doc.Info != nil {
		apiVersion = doc.Info.Version
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"app":         "triage-http",
		"version":     s.version,
		"api_version": apiVersion,
	})
}

// ListPendingSessions handles GET /sessions.
func (s *Server) ListPendingSessions(w http.ResponseWriter, r *http.Request) {
	pending, err := s.Engine.Pending(r.Context())
	if err != nil {
		s.fail(w, "list pending", err)
		return
	}
	out := make([]SessionSummary, 0, len(pending))
	for _, p := range pending {
		out = append(out, SessionSummary{
			SessionID: p.ID,
			ClaimID:   p.ClaimID,
			Status:    p.Status,
			Proposal:  p.Proposal,
			CreatedAt: p.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// GetSession handles GET /sessions/{id}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Engine.Inspect(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "inspect", err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// SubmitReview handles POST /sessions/{id}/review.
func (s *Server) SubmitReview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	reviewer, err := runner.SanitizeInput(body.Reviewer)
	if err == nil {
		body.Comment, err = runner.SanitizeInput(body.Comment)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid input: %w", err))
		s.logger.Warn("review input rejected", "session_id", id, "err", err)
		return
	}
	meta := domain.ReviewMeta{Reviewer: reviewer, Comment: body.Comment}

	action, err := domain.ParseReviewAction(body.Action, body.Fields, meta)
	if err != nil {
		s.fail(w, "parse review", err)
		return
	}

	out, err := s.Engine.Resume(r.Context(), id, action)
	if err != nil {
		s.fail(w, "resume", err)
		return
	}
	s.logger.Info("review applied", "session_id", id, "claim_id", out.ClaimID, "action", out.Action)
	writeJSON(w, http.StatusOK, ReviewResponse{
		SessionID:  out.SessionID,
		ClaimID:    out.ClaimID,
		Action:     out.Action,
		Resolution: out.Resolution,
		Decision:   out.Decision,
	})
}

// StatusFor maps domain errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrInvalidID):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSessionTerminated),
		errors.Is(err, domain.ErrNotAwaitingReview),
		errors.Is(err, domain.ErrDecisionExists),
		errors.Is(err, domain.ErrSessionConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidAction):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(op+" failed", "err", err)
	} else {
		s.logger.Debug(op+" rejected", "err", err, "status", status)
	}
	writeError(w, status, err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
