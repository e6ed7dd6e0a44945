package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	triage "github.com/stephen-chu/insurance-claims-triage"
	httpadapter "github.com/stephen-chu/insurance-claims-triage/pkg/adapters/http"
	"github.com/stephen-chu/insurance-claims-triage/pkg/adapters/mcp"
)

// ShutdownTimeout bounds how long outstanding requests get on shutdown.
const ShutdownTimeout = 5 * time.Second

// MCP transports.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

// NewHTTPHandler builds the review API handler for app.
func NewHTTPHandler(app *App) (http.Handler, error) {
	return httpadapter.NewHandler(app.Engine,
		httpadapter.WithLogger(app.Logger),
		httpadapter.WithStreams(app.Streams),
		httpadapter.WithVersion(strings.TrimSpace(triage.Version)),
		httpadapter.WithMetricsHandler(promhttp.HandlerFor(app.Metrics, promhttp.HandlerOpts{})),
	)
}

// Serve runs the review API on port until ctx is cancelled. With withIntake
// set, the intake loop runs alongside so new claims keep arriving.
func Serve(ctx context.Context, app *App, port int, withIntake bool) error {
	handler, err := NewHTTPHandler(app)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	intakeDone := make(chan error, 1)
	if withIntake {
		source, err := app.OpenSource()
		if err != nil {
			return err
		}
		loop := app.newIntake(source)
		go func() { intakeDone <- loop.Run(ctx) }()
	} else {
		close(intakeDone)
	}

	serverErrors := make(chan error, 1)
	go func() {
		app.Logger.Info("starting review API", "addr", srv.Addr)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		cancel()
		<-intakeDone
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Warn("graceful shutdown did not complete", "timeout", ShutdownTimeout, "err", err)
		_ = srv.Close()
	}
	<-intakeDone
	app.Logger.Info("review API stopped")
	return nil
}

// ServeMCP exposes the review tools over the given transport.
func ServeMCP(ctx context.Context, app *App, transport string, port int) error {
	srv := mcp.NewServer(app.Engine,
		mcp.WithVersion(strings.TrimSpace(triage.Version)),
		mcp.WithLogger(app.Logger),
	)

	switch transport {
	case TransportStdio:
		app.Logger.Info("starting MCP server", "transport", transport)
		return srv.ServeStdio()
	case TransportSSE:
		app.Logger.Info("starting MCP server", "transport", transport, "port", port)
		if err := srv.ServeSSE(ctx, port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		app.Logger.Info("MCP server stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport %q (supported: %s, %s)", transport, TransportStdio, TransportSSE)
	}
}
