package synthesis_test

import (
	"fmt"
	"testing"

	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
	"github.com/stephen-chu/insurance-claims-triage/pkg/synthesis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func drawResult(rt *rapid.T, name string, kind domain.TaskKind) domain.TaskResult {
	r := domain.TaskResult{TaskName: name, Kind: kind}
	if rapid.IntRange(0, 4).Draw(rt, name+"_fails") == 0 {
		r.Error = "task timed out after 30s"
		return r
	}
	switch kind {
	case domain.TaskDamage:
		amount := rapid.Float64Range(0, 20000).Draw(rt, "amount")
		if rapid.Bool().Draw(rt, "damage_text") {
			r.Output = fmt.Sprintf("Estimated cost $%.2f", amount)
		} else {
			r.Output = map[string]any{"estimate": amount}
		}
	case domain.TaskFraud:
		r.Output = "Risk: " + rapid.SampledFrom([]string{"low", "medium", "high"}).Draw(rt, "risk")
	case domain.TaskPolicy:
		r.Output = map[string]any{"covered": rapid.Bool().Draw(rt, "covered")}
	}
	return r
}

func drawResults(rt *rapid.T) map[string]domain.TaskResult {
	return map[string]domain.TaskResult{
		domain.TaskNameDamage: drawResult(rt, domain.TaskNameDamage, domain.TaskDamage),
		domain.TaskNameFraud:  drawResult(rt, domain.TaskNameFraud, domain.TaskFraud),
		domain.TaskNamePolicy: drawResult(rt, domain.TaskNamePolicy, domain.TaskPolicy),
	}
}

// Identical inputs always yield the identical proposal.
func TestProperty_Synthesize_Deterministic(t *testing.T) {
	s := synthesis.New()
	rapid.Check(t, func(rt *rapid.T) {
		in := drawResults(rt)

		first, err := s.Synthesize(claim, in)
		require.NoError(rt, err)
		for i := 0; i < 3; i++ {
			again, err := s.Synthesize(claim, in)
			require.NoError(rt, err)
			assert.Equal(rt, first, again)
		}
	})
}

// Any failed task forces MANUAL REVIEW; AUTO-APPROVE requires complete, favorable evidence.
func TestProperty_Synthesize_FailSafe(t *testing.T) {
	s := synthesis.New()
	rapid.Check(t, func(rt *rapid.T) {
		in := drawResults(rt)

		p, err := s.Synthesize(claim, in)
		require.NoError(rt, err)
		assert.Contains(rt, domain.Outcomes, p.Outcome)

		for _, r := range in {
			if r.Failed() {
				assert.Equal(rt, domain.OutcomeManualReview, p.Outcome)
			}
		}
		if p.Outcome == domain.OutcomeAutoApprove {
			assert.Equal(rt, domain.CoverageYes, p.Coverage)
			assert.Equal(rt, domain.FraudRiskLow, p.FraudRisk)
		}
	})
}
