package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/stephen-chu/insurance-claims-triage/internal/presentation/graph"
	"github.com/stephen-chu/insurance-claims-triage/internal/presentation/tui"
	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
	"github.com/stephen-chu/insurance-claims-triage/pkg/runner"
)

// Inspect output formats.
const (
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
	FormatGraph    = "graph"
)

// ListPending prints the sessions awaiting review, oldest first.
func ListPending(ctx context.Context, app *App, out io.Writer, asJSON bool) error {
	sessions, err := app.Engine.Pending(ctx)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if sessions == nil {
			sessions = []*domain.Session{}
		}
		return enc.Encode(sessions)
	}

	if len(sessions) == 0 {
		fmt.Fprintln(out, "No claims awaiting review.")
		return nil
	}

	color := isTerminal(out)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tCLAIM\tWAITING\tRULE\tDECISION")
	now := time.Now()
	for _, s := range sessions {
		rule, outcome := "-", "-"
		if s.Proposal != nil {
			rule = s.Proposal.Rule
			outcome = string(s.Proposal.Outcome)
			if color {
				outcome = tui.OutcomeLabel(s.Proposal.Outcome)
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			s.ID, s.ClaimID, now.Sub(s.UpdatedAt).Truncate(time.Second), rule, outcome)
	}
	return tw.Flush()
}

// InspectSession prints one session in the requested format.
func InspectSession(ctx context.Context, app *App, sessionID, format string, out io.Writer) error {
	s, err := app.Engine.Inspect(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("error loading session '%s': %w", sessionID, err)
	}

	switch format {
	case FormatMarkdown:
		md := runner.ProposalMarkdown(s)
		if isTerminal(out) {
			if rendered, err := tui.NewRenderer()(md); err == nil {
				md = rendered
			}
		}
		_, err = io.WriteString(out, md)
		return err
	case FormatGraph:
		return writeGraph(app, s, out)
	case FormatJSON, "":
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return fmt.Errorf("error marshaling session: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	default:
		return fmt.Errorf("unknown format %q (want %s)", format, strings.Join([]string{FormatJSON, FormatMarkdown, FormatGraph}, ", "))
	}
}

// SubmitReview resumes a suspended session with the given action and prints
// the result the way the interactive reviewer does.
func SubmitReview(ctx context.Context, app *App, sessionID, kind string, fields map[string]any, meta domain.ReviewMeta, out io.Writer) error {
	action, err := domain.ParseReviewAction(kind, fields, meta)
	if err != nil {
		return err
	}
	outcome, err := app.Engine.Resume(ctx, sessionID, action)
	if err != nil {
		return fmt.Errorf("review %s: %w", sessionID, err)
	}
	return runner.NewTextReviewer(strings.NewReader(""), out).Report(ctx, outcome)
}

// PrintGraph writes the workflow diagram, overlaid with a session when one is given.
func PrintGraph(ctx context.Context, app *App, sessionID string, out io.Writer) error {
	var s *domain.Session
	if sessionID != "" {
		var err error
		if s, err = app.Engine.Inspect(ctx, sessionID); err != nil {
			return fmt.Errorf("error loading session '%s': %w", sessionID, err)
		}
	}
	return writeGraph(app, s, out)
}

func writeGraph(app *App, s *domain.Session, out io.Writer) error {
	_, err := io.WriteString(out, graph.GenerateMermaid(app.Engine.Tasks(), app.Config.Delegation.TaskTimeout, s))
	return err
}
