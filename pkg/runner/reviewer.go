package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
	"github.com/stephen-chu/insurance-claims-triage/pkg/review"
)

// Reviewer is the strategy for obtaining a review decision from a human.
// This allows switching between interactive (terminal) and structured (NDJSON) modes.
type Reviewer interface {
	// Review presents a suspended session and returns the chosen action.
	// io.EOF means the reviewer has gone away.
	Review(ctx context.Context, s *domain.Session) (domain.ReviewAction, error)

	// Report presents the result of a consumed action.
	Report(ctx context.Context, out review.Outcome) error

	// SystemOutput presents a meta-message (e.g. a rejected action or a status update).
	SystemOutput(ctx context.Context, msg string) error
}

// ContentRenderer transforms markdown before it is written, e.g. into ANSI for terminals.
type ContentRenderer func(string) (string, error)

// ProposalMarkdown formats the pending proposal of a session for reviewers.
func ProposalMarkdown(s *domain.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Pending review: %s\n\n", s.ClaimID)
	if s.Claim.ClaimantName != "" || s.Claim.ClaimType != "" {
		fmt.Fprintf(&b, "*%s* claim by **%s** (policy `%s`)\n\n", s.Claim.ClaimType, s.Claim.ClaimantName, s.Claim.PolicyID)
	}
	if s.Proposal == nil {
		b.WriteString("_No proposal recorded._\n")
		return b.String()
	}
	p := s.Proposal
	fmt.Fprintf(&b, "| Field | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Decision | **%s** |\n", p.Outcome)
	fmt.Fprintf(&b, "| Coverage | %s |\n", p.Coverage)
	fmt.Fprintf(&b, "| Fraud | %s |\n", p.FraudRisk)
	fmt.Fprintf(&b, "| Damage | $%s |\n", p.DamageEstimate)
	if p.Rule != "" {
		fmt.Fprintf(&b, "| Rule | `%s` |\n", p.Rule)
	}
	fmt.Fprintf(&b, "\n> %s\n", p.Reason)
	return b.String()
}

type inputResult struct {
	text string
	err  error
}

// linePump reads lines on a background goroutine so that a blocked read never
// holds up context cancellation. The pump is started on first use.
type linePump struct {
	reader    *bufio.Reader
	inputChan chan inputResult
	startOnce sync.Once
}

func newLinePump(r io.Reader) *linePump {
	return &linePump{reader: bufio.NewReader(r)}
}

func (p *linePump) run() {
	for {
		text, err := p.reader.ReadString('\n')
		if text != "" {
			p.inputChan <- inputResult{text: text}
		}
		if err != nil {
			if err != io.EOF {
				p.inputChan <- inputResult{err: err}
			}
			close(p.inputChan)
			return
		}
	}
}

// next returns the next line, trimmed. A closed source yields io.EOF.
func (p *linePump) next(ctx context.Context) (string, error) {
	p.startOnce.Do(func() {
		p.inputChan = make(chan inputResult)
		go p.run()
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res, ok := <-p.inputChan:
		if !ok {
			return "", io.EOF
		}
		if res.err != nil {
			return "", res.err
		}
		return strings.TrimSpace(res.text), nil
	}
}
