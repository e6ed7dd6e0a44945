package domain

import (
	"fmt"
	"strings"
)

// Claim is the immutable input record of a workflow instance.
// It is created externally and is read-only to the triage core.
type Claim struct {
	ClaimID      string   `json:"claim_id" yaml:"claim_id" mapstructure:"claim_id"`
	ClaimantName string   `json:"claimant_name" yaml:"claimant_name" mapstructure:"claimant_name"`
	PolicyID     string   `json:"policy_id" yaml:"policy_id" mapstructure:"policy_id"`
	ClaimType    string   `json:"claim_type" yaml:"claim_type" mapstructure:"claim_type"`
	Photos       []string `json:"photos,omitempty" yaml:"photos,omitempty" mapstructure:"photos"`
	Description  string   `json:"description,omitempty" yaml:"description,omitempty" mapstructure:"description"`
	IncidentDate string   `json:"incident_date,omitempty" yaml:"incident_date,omitempty" mapstructure:"incident_date"`

	// Dir is the location of the claim's attachments (photos), if the source has one.
	Dir string `json:"dir,omitempty" yaml:"-" mapstructure:"-"`
}

// Field returns the value of a claim field by its wire name.
// Multi-valued fields are joined with commas; unknown fields return "".
func (c Claim) Field(name string) string {
	switch name {
	case "claim_id":
		return c.ClaimID
	case "claimant_name":
		return c.ClaimantName
	case "policy_id":
		return c.PolicyID
	case "claim_type":
		return c.ClaimType
	case "photos":
		return strings.Join(c.Photos, ",")
	case "description":
		return c.Description
	case "incident_date":
		return c.IncidentDate
	case "claim_dir":
		return c.Dir
	}
	return ""
}

// ClaimError describes one claim document a source could not accept.
type ClaimError struct {
	ClaimID  string
	Document string
	Err      error
}

func (e *ClaimError) Error() string {
	return fmt.Sprintf("claim %s (%s): %v", e.ClaimID, e.Document, e.Err)
}

func (e *ClaimError) Unwrap() error {
	return e.Err
}

// SkippedClaimsError is returned by a claim source together with the claims
// it could read. Each skipped document fails on its own.
type SkippedClaimsError struct {
	Skipped []*ClaimError
}

func (e *SkippedClaimsError) Error() string {
	if len(e.Skipped) == 1 {
		return e.Skipped[0].Error()
	}
	return fmt.Sprintf("%d claim documents skipped, first: %v", len(e.Skipped), e.Skipped[0])
}

func (e *SkippedClaimsError) Unwrap() []error {
	errs := make([]error, len(e.Skipped))
	for i, ce := range e.Skipped {
		errs[i] = ce
	}
	return errs
}
