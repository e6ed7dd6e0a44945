package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSession_CloneIsolation(t *testing.T) {
	claim := Claim{ClaimID: "CLM-1", Photos: []string{"front.jpg"}}
	s := NewSession("s-1", claim, time.Now())
	s.Results["fraud-detector"] = TaskResult{TaskName: "fraud-detector", Output: "low"}
	s.Proposal = &DecisionProposal{Outcome: OutcomeDeny}

	c := s.Clone()
	c.Results["policy-verifier"] = TaskResult{TaskName: "policy-verifier"}
	c.Proposal.Outcome = OutcomeAutoApprove
	c.Claim.Photos[0] = "rear.jpg"

	assert.Len(t, s.Results, 1)
	assert.Equal(t, OutcomeDeny, s.Proposal.Outcome)
	assert.Equal(t, "front.jpg", s.Claim.Photos[0])
}

func TestStatus_Live(t *testing.T) {
	assert.True(t, StatusRunning.Live())
	assert.True(t, StatusAwaitingReview.Live())
	assert.False(t, StatusRejected.Live())
	assert.False(t, StatusTerminated.Live())
}

func TestSession_CloneCopiesTaskOutput(t *testing.T) {
	s := NewSession("s-1", Claim{ClaimID: "CLM-1"}, time.Now())
	s.Results["damage-assessor"] = TaskResult{
		TaskName: "damage-assessor",
		Output: map[string]any{
			"estimate": 1200.0,
			"items":    []any{map[string]any{"part": "bumper"}},
		},
	}

	c := s.Clone()
	out := c.Results["damage-assessor"].Output.(map[string]any)
	out["estimate"] = 0.0
	out["items"].([]any)[0].(map[string]any)["part"] = "door"

	orig := s.Results["damage-assessor"].Output.(map[string]any)
	assert.Equal(t, 1200.0, orig["estimate"])
	assert.Equal(t, "bumper", orig["items"].([]any)[0].(map[string]any)["part"])
}
