package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/stephen-chu/insurance-claims-triage/internal/config"
	"github.com/stephen-chu/insurance-claims-triage/internal/logging"
	"github.com/stephen-chu/insurance-claims-triage/internal/presentation/tui"
)

// createLogger configures the application logger. It writes to stderr so
// stdout stays free for the reviewer UI and NDJSON.
func createLogger(lc config.LogConfig) *slog.Logger {
	level, err := logging.ParseLevel(lc.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	return logging.New(level, lc.Format)
}

// NewLogger is createLogger for callers outside the package.
func NewLogger(lc config.LogConfig) *slog.Logger {
	return createLogger(lc)
}

// printSystemMessage prints a standardized system message.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}

// isInterrupted reports whether err only signals that the user went away.
func isInterrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, io.EOF)
}

// handleExecutionError turns interruptions into a clean exit.
func handleExecutionError(err error) error {
	if err == nil || isInterrupted(err) {
		return nil
	}
	return err
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && tui.IsTerminal(f)
}
