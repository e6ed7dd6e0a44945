// Package synthesis turns the fan-in of task results into a single DecisionProposal.
//
// Synthesis is a pure function: given identical task results it always produces
// the identical proposal. Named rules are evaluated in order and the first match
// wins; when no rule matches, the outcome is MANUAL REVIEW, so uncertainty never
// auto-approves.
package synthesis

import (
	"fmt"
	"strings"

	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
)

// DefaultAutoApproveLimit is the largest damage estimate (USD) eligible for auto-approval.
const DefaultAutoApproveLimit = 5000.0

// Rule names, recorded on the proposal.
const (
	RuleIncompleteEvidence = "incomplete-evidence"
	RuleNotCovered         = "not-covered"
	RuleHighFraudRisk      = "high-fraud-risk"
	RuleElevatedFraudRisk  = "elevated-fraud-risk"
	RuleLargeLoss          = "large-loss"
	RuleLowRiskCovered     = "low-risk-covered"
	RuleNoRuleMatched      = "no-rule-matched"
)

// Rule maps a combination of signals to an outcome.
type Rule struct {
	Name    string
	Outcome domain.Outcome
	Match   func(sig Signals, limit float64) bool
	Reason  func(sig Signals, limit float64) string
}

// Rules is the ordered rule table.
var Rules = []Rule{
	{
		Name:    RuleIncompleteEvidence,
		Outcome: domain.OutcomeManualReview,
		Match:   func(s Signals, _ float64) bool { return !s.Complete() },
		Reason: func(s Signals, _ float64) string {
			var missing []string
			if s.Coverage == domain.VerdictUnknown {
				missing = append(missing, "coverage")
			}
			if s.FraudRisk == domain.VerdictUnknown {
				missing = append(missing, "fraud risk")
			}
			if !s.DamageKnown {
				missing = append(missing, "damage estimate")
			}
			reason := "Incomplete evidence: " + strings.Join(missing, ", ") + " unknown"
			if len(s.Unknown) > 0 {
				reason += " (failed: " + strings.Join(s.Unknown, ", ") + ")"
			}
			return reason
		},
	},
	{
		Name:    RuleNotCovered,
		Outcome: domain.OutcomeDeny,
		Match:   func(s Signals, _ float64) bool { return s.Coverage == domain.CoverageNo },
		Reason:  func(Signals, float64) string { return "Policy does not cover this claim" },
	},
	{
		Name:    RuleHighFraudRisk,
		Outcome: domain.OutcomeManualReview,
		Match:   func(s Signals, _ float64) bool { return s.FraudRisk == domain.FraudRiskHigh },
		Reason:  func(Signals, float64) string { return "High fraud risk requires investigation" },
	},
	{
		Name:    RuleElevatedFraudRisk,
		Outcome: domain.OutcomeManualReview,
		Match:   func(s Signals, _ float64) bool { return s.FraudRisk == domain.FraudRiskMedium },
		Reason:  func(Signals, float64) string { return "Elevated fraud risk" },
	},
	{
		Name:    RuleLargeLoss,
		Outcome: domain.OutcomeManualReview,
		Match: func(s Signals, limit float64) bool {
			return s.Coverage == domain.CoverageYes && s.FraudRisk == domain.FraudRiskLow && s.Damage > limit
		},
		Reason: func(s Signals, limit float64) string {
			return fmt.Sprintf("Covered, low fraud risk, but damage $%.2f exceeds the $%.2f auto-approve limit", s.Damage, limit)
		},
	},
	{
		Name:    RuleLowRiskCovered,
		Outcome: domain.OutcomeAutoApprove,
		Match: func(s Signals, limit float64) bool {
			return s.Coverage == domain.CoverageYes && s.FraudRisk == domain.FraudRiskLow && s.Damage <= limit
		},
		Reason: func(s Signals, _ float64) string {
			return fmt.Sprintf("Covered, low fraud risk, damage $%.2f within limit", s.Damage)
		},
	},
}

// Synthesizer applies the rule table.
type Synthesizer struct {
	limit float64
}

// Option configures the Synthesizer.
type Option func(*Synthesizer)

// WithAutoApproveLimit sets the damage ceiling for auto-approval.
func WithAutoApproveLimit(limit float64) Option {
	return func(s *Synthesizer) {
		if limit >= 0 {
			s.limit = limit
		}
	}
}

// New creates a Synthesizer.
func New(opts ...Option) *Synthesizer {
	s := &Synthesizer{limit: DefaultAutoApproveLimit}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Limit returns the configured auto-approve limit.
func (s *Synthesizer) Limit() float64 {
	return s.limit
}

// Synthesize produces the proposal for a claim from its task results.
// It fails only with domain.ErrUninterpretable.
func (s *Synthesizer) Synthesize(claim domain.Claim, results map[string]domain.TaskResult) (domain.DecisionProposal, error) {
	sig, err := Extract(results)
	if err != nil {
		return domain.DecisionProposal{}, fmt.Errorf("claim %s: %w", claim.ClaimID, err)
	}

	proposal := domain.DecisionProposal{
		Outcome:        domain.OutcomeManualReview,
		Coverage:       sig.Coverage,
		FraudRisk:      sig.FraudRisk,
		DamageEstimate: domain.VerdictUnknown,
		Reason:         "No rule matched; defaulting to manual review",
		Rule:           RuleNoRuleMatched,
	}
	if sig.DamageKnown {
		proposal.DamageEstimate = fmt.Sprintf("%.2f", sig.Damage)
	}

	for _, r := range Rules {
		if r.Match(sig, s.limit) {
			proposal.Outcome = r.Outcome
			proposal.Reason = r.Reason(sig, s.limit)
			proposal.Rule = r.Name
			break
		}
	}
	return proposal, nil
}
