package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	triage "github.com/stephen-chu/insurance-claims-triage"
	"github.com/stephen-chu/insurance-claims-triage/internal/presentation/tui"
	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
	"github.com/stephen-chu/insurance-claims-triage/pkg/intake"
	"github.com/stephen-chu/insurance-claims-triage/pkg/ports"
	"github.com/stephen-chu/insurance-claims-triage/pkg/runner"
)

// RunOptions contains the configuration for the run command.
type RunOptions struct {
	// Headless runs intake only and leaves sessions suspended for another surface.
	Headless bool
	// JSON switches the reviewer to NDJSON on stdin/stdout.
	JSON bool
	// Reviewer is recorded on decisions made from this terminal.
	Reviewer string
}

// newIntake binds the configured intake loop to source.
func (a *App) newIntake(source ports.ClaimSource) *intake.Loop {
	ic := a.Config.Intake
	return a.Engine.Intake(source,
		intake.WithInterval(ic.Interval),
		intake.WithConcurrency(ic.Concurrency),
		intake.WithStaleAfter(ic.StaleAfter),
		intake.WithLogger(a.Logger),
		intake.WithOnSuspended(func(ctx context.Context, s *domain.Session) {
			outcome := ""
			if s.Proposal != nil {
				outcome = string(s.Proposal.Outcome)
			}
			a.Logger.InfoContext(ctx, "claim awaiting review",
				"claim_id", s.ClaimID,
				"session_id", s.ID,
				"outcome", outcome,
			)
		}),
	)
}

// newReviewer picks the reviewer driver for the given streams.
func newReviewer(opts RunOptions, in io.Reader, out io.Writer) runner.Reviewer {
	if opts.JSON {
		return runner.NewJSONReviewer(in, out)
	}
	rvOpts := []runner.TextReviewerOption{runner.WithReviewerName(opts.Reviewer)}
	if isTerminal(out) {
		rvOpts = append(rvOpts, runner.WithTextRenderer(tui.NewRenderer()))
	}
	return runner.NewTextReviewer(in, out, rvOpts...)
}

// Run scans the claims directory and, unless headless, reviews suspended
// claims from in/out as they arrive. It returns when ctx is cancelled or the
// reviewer input closes.
func Run(ctx context.Context, app *App, opts RunOptions, in io.Reader, out io.Writer) error {
	source, err := app.OpenSource()
	if err != nil {
		return err
	}
	loop := app.newIntake(source)

	interactive := !opts.JSON && !opts.Headless
	if interactive && isTerminal(out) {
		tui.PrintBanner(out, strings.TrimSpace(triage.Version))
	}

	if opts.Headless {
		app.Logger.Info("intake running headless", "claims_dir", app.Config.ClaimsDir)
		return handleExecutionError(loop.Run(ctx))
	}
	if interactive {
		printSystemMessage(out, "Watching '%s' for claims.", app.Config.ClaimsDir)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return loop.Run(gctx)
	})
	g.Go(func() error {
		// The reviewer going away ends the run.
		defer cancel()
		r := runner.NewRunner(app.Engine,
			runner.WithReviewer(newReviewer(opts, in, out)),
			runner.WithLogger(app.Logger),
			runner.WithPollInterval(app.Config.Intake.Interval),
		)
		return r.Run(gctx)
	})

	return handleExecutionError(g.Wait())
}

// Intake runs the intake loop without a reviewer. With once set it performs a
// single pass and prints its report to out.
func Intake(ctx context.Context, app *App, once bool, out io.Writer) error {
	source, err := app.OpenSource()
	if err != nil {
		return err
	}
	loop := app.newIntake(source)

	if !once {
		return handleExecutionError(loop.Run(ctx))
	}

	report, err := loop.RunOnce(ctx)
	if err != nil {
		return err
	}
	printReport(out, report)
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d claim(s) failed", len(report.Failed))
	}
	return nil
}

func printReport(out io.Writer, report intake.Report) {
	printSystemMessage(out, "Scanned %d claim(s): %d started, %d skipped, %d failed.",
		report.Scanned, len(report.Started), len(report.Skipped), len(report.Failed))

	for _, id := range sortedKeys(report.Started) {
		fmt.Fprintf(out, "  started  %s -> session %s\n", id, report.Started[id])
	}
	for _, id := range report.Skipped {
		fmt.Fprintf(out, "  skipped  %s\n", id)
	}
	for _, id := range sortedKeys(report.Failed) {
		fmt.Fprintf(out, "  failed   %s: %v\n", id, report.Failed[id])
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
