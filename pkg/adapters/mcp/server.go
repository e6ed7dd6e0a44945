// Package mcp exposes the review checkpoint as MCP tools so that agents can
// list pending reviews, inspect a session and submit a review action.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stephen-chu/insurance-claims-triage/internal/logging"
	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
	"github.com/stephen-chu/insurance-claims-triage/pkg/review"
	"github.com/stephen-chu/insurance-claims-triage/pkg/runner"
)

// PendingURI is the resource listing sessions awaiting review.
const PendingURI = "triage://sessions/pending"

// Engine is the part of the triage engine exposed to agents.
type Engine interface {
	Pending(ctx context.Context) ([]*domain.Session, error)
	Inspect(ctx context.Context, sessionID string) (*domain.Session, error)
	Resume(ctx context.Context, sessionID string, action domain.ReviewAction) (review.Outcome, error)
}

// Server wraps the engine and exposes it as an MCP server.
type Server struct {
	engine    Engine
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures the Server.
type Option func(*serverConfig)

type serverConfig struct {
	version string
	logger  *slog.Logger
}

// WithVersion sets the version announced to clients.
func WithVersion(v string) Option {
	return func(c *serverConfig) {
		c.version = strings.TrimSpace(v)
	}
}

// WithLogger configures a logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *serverConfig) {
		c.logger = l
	}
}

// NewServer creates an MCP server over the engine.
func NewServer(engine Engine, opts ...Option) *Server {
	cfg := serverConfig{version: "dev", logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Server{
		engine:    engine,
		logger:    cfg.logger,
		mcpServer: server.NewMCPServer("triage-mcp", cfg.version, server.WithToolCapabilities(false)),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server, for embedding and tests.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio serves on stdin/stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves over SSE on the given port until ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(fmt.Sprintf("http://localhost:%d", port)))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("mcp server listening (sse)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		server.ServerTool{
			Tool: mcp.NewTool("list_pending_reviews",
				mcp.WithDescription("List claims suspended at the review checkpoint, oldest first, with their proposed decision."),
			),
			Handler: s.handleListPending,
		},
		server.ServerTool{
			Tool: mcp.NewTool("inspect_session",
				mcp.WithDescription("Show a session in full: the claim snapshot, every task result and the proposal."),
				mcp.WithString("session_id", mcp.Required(), mcp.Description("The session to inspect")),
			),
			Handler: s.handleInspect,
		},
		server.ServerTool{
			Tool: mcp.NewTool("submit_review",
				mcp.WithDescription("Resolve a pending session. approve finalizes the proposal, reject sends the claim back for re-evaluation, edit overwrites proposal fields (outcome required) and finalizes the result."),
				mcp.WithString("session_id", mcp.Required(), mcp.Description("The session to resolve")),
				mcp.WithString("action", mcp.Required(), mcp.Enum("approve", "reject", "edit"), mcp.Description("Review action")),
				mcp.WithObject("fields", mcp.Description("Edit fields: outcome (AUTO-APPROVE, DENY, MANUAL REVIEW), coverage, fraud_risk, damage_estimate, reason")),
				mcp.WithString("reviewer", mcp.Description("Reviewer identity recorded on the decision")),
				mcp.WithString("comment", mcp.Description("Free-text comment recorded on the decision")),
			),
			Handler: s.handleSubmitReview,
		},
	)
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(PendingURI, "Sessions awaiting review",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		pending, err := s.engine.Pending(ctx)
		if err != nil {
			return nil, fmt.Errorf("list pending: %w", err)
		}
		data, err := json.Marshal(summarize(pending))
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: PendingURI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}

// PendingReview is the list view of a suspended session.
type PendingReview struct {
	SessionID string                   `json:"session_id"`
	ClaimID   string                   `json:"claim_id"`
	Proposal  *domain.DecisionProposal `json:"proposal,omitempty"`
	CreatedAt time.Time                `json:"created_at"`
}

func summarize(sessions []*domain.Session) []PendingReview {
	out := make([]PendingReview, 0, len(sessions))
	for _, p := range sessions {
		out = append(out, PendingReview{SessionID: p.ID, ClaimID: p.ClaimID, Proposal: p.Proposal, CreatedAt: p.CreatedAt})
	}
	return out
}

func (s *Server) handleListPending(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pending, err := s.engine.Pending(ctx)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("failed to list pending reviews", err), nil
	}
	return jsonResult(summarize(pending))
}

func (s *Server) handleInspect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil || id == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	sess, err := s.engine.Inspect(ctx, id)
	if err != nil {
		return toolError(fmt.Sprintf("failed to inspect session %s", id), err), nil
	}
	return jsonResult(sess)
}

func (s *Server) handleSubmitReview(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil || id == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	kind, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action is required"), nil
	}

	args := req.GetArguments()
	var fields map[string]any
	if raw, ok := args["fields"]; ok && raw != nil {
		if fields, ok = raw.(map[string]any); !ok {
			return mcp.NewToolResultError("fields must be an object"), nil
		}
	}

	reviewer, err := runner.SanitizeInput(req.GetString("reviewer", ""))
	if err != nil {
		return toolError("reviewer rejected", err), nil
	}
	comment, err := runner.SanitizeInput(req.GetString("comment", ""))
	if err != nil {
		return toolError("comment rejected", err), nil
	}

	action, err := domain.ParseReviewAction(kind, fields, domain.ReviewMeta{Reviewer: reviewer, Comment: comment})
	if err != nil {
		return toolError("invalid review action", err), nil
	}

	out, err := s.engine.Resume(ctx, id, action)
	if err != nil {
		return toolError(fmt.Sprintf("failed to resolve session %s", id), err), nil
	}
	s.logger.Info("review applied", "session_id", id, "claim_id", out.ClaimID, "action", out.Action, "reviewer", reviewer)
	return jsonResult(map[string]any{
		"session_id": out.SessionID,
		"claim_id":   out.ClaimID,
		"action":     out.Action,
		"resolution": out.Resolution,
		"decision":   out.Decision,
	})
}

// ErrorCode classifies a domain error for agents, which cannot read HTTP statuses.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrInvalidID):
		return "not_found"
	case errors.Is(err, domain.ErrSessionTerminated),
		errors.Is(err, domain.ErrNotAwaitingReview),
		errors.Is(err, domain.ErrDecisionExists):
		return "conflict"
	case errors.Is(err, domain.ErrInvalidAction),
		errors.Is(err, runner.ErrInputTooLarge),
		errors.Is(err, runner.ErrInvalidUTF8):
		return "invalid"
	}
	return "internal"
}

func toolError(msg string, err error) *mcp.CallToolResult {
	return mcp.NewToolResultErrorFromErr(fmt.Sprintf("[%s] %s", ErrorCode(err), msg), err)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("failed to marshal result", err), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
