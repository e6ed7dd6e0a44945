package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
	"github.com/stephen-chu/insurance-claims-triage/pkg/review"
)

// TextReviewer implements Reviewer with plain prompts on a terminal.
type TextReviewer struct {
	Writer   io.Writer
	Renderer ContentRenderer

	// Name is recorded as the reviewer identity on every action.
	Name string

	input *linePump
}

// TextReviewerOption configures a TextReviewer.
type TextReviewerOption func(*TextReviewer)

// WithTextRenderer renders the pending proposal as markdown instead of the plain block.
func WithTextRenderer(renderer ContentRenderer) TextReviewerOption {
	return func(t *TextReviewer) {
		t.Renderer = renderer
	}
}

// WithReviewerName sets the reviewer identity.
func WithReviewerName(name string) TextReviewerOption {
	return func(t *TextReviewer) {
		t.Name = name
	}
}

// NewTextReviewer creates a reviewer reading answers from r and writing to w.
func NewTextReviewer(r io.Reader, w io.Writer, opts ...TextReviewerOption) *TextReviewer {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	t := &TextReviewer{
		Writer: w,
		input:  newLinePump(r),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *TextReviewer) Review(ctx context.Context, s *domain.Session) (domain.ReviewAction, error) {
	t.present(s)
	meta := domain.ReviewMeta{Reviewer: t.Name}

	for {
		answer, err := t.ask(ctx, "\n  Action [approve/reject/edit] (approve): ")
		if err != nil {
			return nil, err
		}
		switch strings.ToLower(answer) {
		case "", "a", "approve":
			return domain.Approve{ReviewMeta: meta}, nil
		case "r", "reject":
			return domain.Reject{ReviewMeta: meta}, nil
		case "e", "edit":
			return t.edit(ctx, meta)
		default:
			fmt.Fprintf(t.Writer, "  Unknown action %q. Please choose approve, reject or edit.\n", answer)
		}
	}
}

func (t *TextReviewer) edit(ctx context.Context, meta domain.ReviewMeta) (domain.ReviewAction, error) {
	choices := make([]string, len(domain.Outcomes))
	for i, o := range domain.Outcomes {
		choices[i] = string(o)
	}
	prompt := fmt.Sprintf("  New decision [%s]: ", strings.Join(choices, "/"))

	var outcome domain.Outcome
	for {
		answer, err := t.ask(ctx, prompt)
		if err != nil {
			return nil, err
		}
		if outcome, err = domain.ParseOutcome(answer); err == nil {
			break
		}
		fmt.Fprintf(t.Writer, "  Error: %v. Please try again.\n", err)
	}

	fields := domain.EditFields{Outcome: domain.StringPtr(string(outcome))}
	reason, err := t.ask(ctx, "  Reason (enter to keep): ")
	if err != nil {
		return nil, err
	}
	if reason != "" {
		fields.Reason = &reason
	}
	return domain.Edit{ReviewMeta: meta, Fields: fields}, nil
}

// ask prompts and reads one sanitized line, re-prompting on rejected input.
func (t *TextReviewer) ask(ctx context.Context, prompt string) (string, error) {
	for {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		fmt.Fprint(t.Writer, prompt)

		text, err := t.input.next(ctx)
		if err != nil {
			return "", err
		}
		clean, err := SanitizeInput(text)
		if err != nil {
			fmt.Fprintf(t.Writer, "Error: %v. Please try again.\n", err)
			continue
		}
		return clean, nil
	}
}

func (t *TextReviewer) present(s *domain.Session) {
	if t.Renderer != nil {
		if out, err := t.Renderer(ProposalMarkdown(s)); err == nil {
			fmt.Fprintln(t.Writer, strings.TrimRight(out, "\n"))
			return
		}
	}

	fmt.Fprintf(t.Writer, "\nProcessing: %s\n", s.ClaimID)
	fmt.Fprintln(t.Writer, "\n  PENDING REVIEW:")
	if s.Proposal == nil {
		fmt.Fprintln(t.Writer, "    (no proposal recorded)")
		return
	}
	p := s.Proposal
	fmt.Fprintf(t.Writer, "    Decision: %s\n", p.Outcome)
	fmt.Fprintf(t.Writer, "    Coverage: %s\n", p.Coverage)
	fmt.Fprintf(t.Writer, "    Fraud: %s\n", p.FraudRisk)
	fmt.Fprintf(t.Writer, "    Damage: $%s\n", p.DamageEstimate)
	fmt.Fprintf(t.Writer, "    Reason: %s\n", p.Reason)
}

func (t *TextReviewer) Report(ctx context.Context, out review.Outcome) error {
	if out.Decision == nil {
		fmt.Fprintln(t.Writer, "  Rejected - claim sent back for re-evaluation")
		return nil
	}
	d := out.Decision.Decision
	label := "APPROVED"
	if out.Resolution == domain.ResolutionEdited {
		label = "APPROVED (edited)"
	}
	fmt.Fprintf(t.Writer, "\n  %s:\n", label)
	fmt.Fprintf(t.Writer, "    **Outcome**: %s\n", d.Outcome)
	fmt.Fprintf(t.Writer, "    Coverage: %s | Fraud: %s | Damage: $%s\n", d.Coverage, d.FraudRisk, d.DamageEstimate)
	fmt.Fprintf(t.Writer, "    Reason: %s\n", d.Reason)
	return nil
}

func (t *TextReviewer) SystemOutput(ctx context.Context, msg string) error {
	fmt.Fprintf(t.Writer, "\n[System] %s\n", msg)
	return nil
}
