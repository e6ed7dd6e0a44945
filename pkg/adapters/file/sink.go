package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
)

// Sink implements ports.DecisionSink as "<dir>/<claim_id>.json" files.
// The presence of a result file is what excludes a claim from further intake.
type Sink struct {
	Dir string
}

// NewSink creates a sink writing into dir (default "results").
func NewSink(dir string) *Sink {
	if dir == "" {
		dir = "results"
	}
	return &Sink{Dir: dir}
}

func (s *Sink) path(claimID string) string {
	return filepath.Join(s.Dir, claimID+".json")
}

// Write publishes the decision unless the claim already has one.
func (s *Sink) Write(ctx context.Context, d domain.FinalDecision) error {
	if err := checkID("claim ID", d.ClaimID); err != nil {
		return err
	}
	if err := createOnce(s.path(d.ClaimID), d.ClaimID, d); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("claim %s: %w", d.ClaimID, domain.ErrDecisionExists)
		}
		return fmt.Errorf("failed to write decision for %s: %w", d.ClaimID, err)
	}
	return nil
}

// Exists reports whether a result file is present for claimID.
func (s *Sink) Exists(ctx context.Context, claimID string) (bool, error) {
	if err := checkID("claim ID", claimID); err != nil {
		return false, err
	}
	_, err := os.Stat(s.path(claimID))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Load reads the decision written for claimID.
func (s *Sink) Load(ctx context.Context, claimID string) (domain.FinalDecision, error) {
	var d domain.FinalDecision
	if err := checkID("claim ID", claimID); err != nil {
		return d, err
	}
	if err := readJSON(s.path(claimID), &d); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return d, domain.ErrClaimNotFound
		}
		return d, fmt.Errorf("failed to read decision for %s: %w", claimID, err)
	}
	return d, nil
}
