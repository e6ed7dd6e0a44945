package domain

import (
	"fmt"
	"strings"
	"time"
)

// Outcome is the triage verdict carried by a decision.
type Outcome string

const (
	OutcomeAutoApprove  Outcome = "AUTO-APPROVE"
	OutcomeDeny         Outcome = "DENY"
	OutcomeManualReview Outcome = "MANUAL REVIEW"
)

// Outcomes lists the valid outcomes in presentation order.
var Outcomes = []Outcome{OutcomeAutoApprove, OutcomeDeny, OutcomeManualReview}

// ParseOutcome normalizes reviewer input ("deny", "manual_review", "Auto Approve")
// into one of the three valid outcomes.
func ParseOutcome(s string) (Outcome, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.NewReplacer("_", " ", "-", " ").Replace(norm)
	norm = strings.Join(strings.Fields(norm), " ")
	switch norm {
	case "AUTO APPROVE":
		return OutcomeAutoApprove, nil
	case "DENY":
		return OutcomeDeny, nil
	case "MANUAL REVIEW":
		return OutcomeManualReview, nil
	}
	return "", fmt.Errorf("%w: unknown outcome %q", ErrInvalidAction, s)
}

// Signal verdicts shared by proposals and synthesis.
const (
	CoverageYes     = "yes"
	CoverageNo      = "no"
	VerdictUnknown  = "unknown"
	FraudRiskLow    = "low"
	FraudRiskMedium = "medium"
	FraudRiskHigh   = "high"
)

// DecisionProposal is the provisional decision produced once per workflow instance.
// It is only mutable through an explicit Edit review action.
type DecisionProposal struct {
	Outcome        Outcome `json:"outcome" mapstructure:"outcome"`
	Coverage       string  `json:"coverage" mapstructure:"coverage"`
	FraudRisk      string  `json:"fraud_risk" mapstructure:"fraud_risk"`
	DamageEstimate string  `json:"damage_estimate" mapstructure:"damage_estimate"`
	Reason         string  `json:"reason" mapstructure:"reason"`

	// Rule names the synthesis rule that produced the outcome. Empty after an edit.
	Rule string `json:"rule,omitempty" mapstructure:"-"`
}

// Resolution describes how a workflow instance left the review checkpoint.
type Resolution string

const (
	ResolutionApproved Resolution = "approved"
	ResolutionEdited   Resolution = "approved-edited"
	ResolutionRejected Resolution = "rejected"
)

// FinalDecision is the terminal artifact written exactly once per claim.
// Its existence excludes the claim from further intake.
type FinalDecision struct {
	ClaimID     string           `json:"claim_id"`
	SessionID   string           `json:"session_id"`
	ProcessedAt time.Time        `json:"processed_at"`
	Decision    DecisionProposal `json:"decision"`
	Resolution  Resolution       `json:"resolution"`
	Reviewer    string           `json:"reviewer,omitempty"`
	Comment     string           `json:"comment,omitempty"`
}
