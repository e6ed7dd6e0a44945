package domain

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// ActionKind tags the variant of a ReviewAction.
type ActionKind string

const (
	ActionApprove ActionKind = "approve"
	ActionReject  ActionKind = "reject"
	ActionEdit    ActionKind = "edit"
)

// ReviewMeta carries who took an action and why. Both fields are optional.
type ReviewMeta struct {
	Reviewer string `json:"reviewer,omitempty"`
	Comment  string `json:"comment,omitempty"`
}

// ReviewAction is the tagged variant consumed at the review checkpoint:
// exactly one of Approve, Reject or Edit.
type ReviewAction interface {
	Kind() ActionKind
	Meta() ReviewMeta
	Validate() error
}

// Approve finalizes the pending proposal unmodified.
type Approve struct {
	ReviewMeta
}

func (Approve) Kind() ActionKind   { return ActionApprove }
func (a Approve) Meta() ReviewMeta { return a.ReviewMeta }
func (Approve) Validate() error    { return nil }

// Reject abandons the workflow instance without writing a final decision.
type Reject struct {
	ReviewMeta
}

func (Reject) Kind() ActionKind   { return ActionReject }
func (r Reject) Meta() ReviewMeta { return r.ReviewMeta }
func (Reject) Validate() error    { return nil }

// EditFields holds the proposal fields a reviewer overwrites.
// Outcome is required; the others are optional but must not be empty when present.
type EditFields struct {
	Outcome        *string `json:"outcome,omitempty" mapstructure:"outcome"`
	Coverage       *string `json:"coverage,omitempty" mapstructure:"coverage"`
	FraudRisk      *string `json:"fraud_risk,omitempty" mapstructure:"fraud_risk"`
	DamageEstimate *string `json:"damage_estimate,omitempty" mapstructure:"damage_estimate"`
	Reason         *string `json:"reason,omitempty" mapstructure:"reason"`
}

// Edit overwrites proposal fields and finalizes the edited record.
type Edit struct {
	ReviewMeta
	Fields EditFields
}

func (Edit) Kind() ActionKind   { return ActionEdit }
func (e Edit) Meta() ReviewMeta { return e.ReviewMeta }

// Validate checks the edit without touching any session.
func (e Edit) Validate() error {
	if e.Fields.Outcome == nil {
		return fmt.Errorf("%w: edit requires an outcome", ErrInvalidAction)
	}
	if _, err := ParseOutcome(*e.Fields.Outcome); err != nil {
		return err
	}
	optional := map[string]*string{
		"coverage":        e.Fields.Coverage,
		"fraud_risk":      e.Fields.FraudRisk,
		"damage_estimate": e.Fields.DamageEstimate,
		"reason":          e.Fields.Reason,
	}
	for name, v := range optional {
		if v != nil && strings.TrimSpace(*v) == "" {
			return fmt.Errorf("%w: field %q must not be empty", ErrInvalidAction, name)
		}
	}
	return nil
}

// Apply returns a copy of p with the edited fields overwritten.
// Callers must Validate first.
func (e Edit) Apply(p DecisionProposal) DecisionProposal {
	out := p
	if e.Fields.Outcome != nil {
		if o, err := ParseOutcome(*e.Fields.Outcome); err == nil {
			out.Outcome = o
		}
	}
	if e.Fields.Coverage != nil {
		out.Coverage = *e.Fields.Coverage
	}
	if e.Fields.FraudRisk != nil {
		out.FraudRisk = *e.Fields.FraudRisk
	}
	if e.Fields.DamageEstimate != nil {
		out.DamageEstimate = *e.Fields.DamageEstimate
	}
	if e.Fields.Reason != nil {
		out.Reason = *e.Fields.Reason
	}
	out.Rule = ""
	return out
}

// ParseReviewAction builds a ReviewAction from its wire form, as received from the
// HTTP API, MCP tools or the NDJSON reviewer. Unknown kinds, unknown edit fields and
// invalid edits return ErrInvalidAction.
func ParseReviewAction(kind string, fields map[string]any, meta ReviewMeta) (ReviewAction, error) {
	var action ReviewAction
	switch ActionKind(strings.ToLower(strings.TrimSpace(kind))) {
	case ActionApprove:
		action = Approve{ReviewMeta: meta}
	case ActionReject:
		action = Reject{ReviewMeta: meta}
	case ActionEdit:
		var ef EditFields
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &ef,
			ErrorUnused:      true,
			WeaklyTypedInput: true,
		})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(fields); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAction, err)
		}
		action = Edit{ReviewMeta: meta, Fields: ef}
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidAction, kind)
	}
	if err := action.Validate(); err != nil {
		return nil, err
	}
	return action, nil
}

// StringPtr is a small helper for building EditFields literals.
func StringPtr(s string) *string {
	return &s
}
