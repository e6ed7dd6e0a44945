// Package lookup provides table-driven task executors: a policy table, a
// fraud watch list and a damage rate card. They stand in for the external
// assessment services in demo mode and in tests.
package lookup

import (
	"context"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
	"github.com/stephen-chu/insurance-claims-triage/pkg/ports"
)

// Policy is one row of the policy table.
type Policy struct {
	Active bool     `yaml:"active" json:"active"`
	Covers []string `yaml:"covers" json:"covers"`
}

// Tables holds the lookup data.
type Tables struct {
	// Policies maps policy ID to its row.
	Policies map[string]Policy `yaml:"policies" json:"policies"`
	// WatchList maps claimant names to a fraud risk level (low, medium, high).
	WatchList map[string]string `yaml:"watch_list" json:"watch_list"`
	// RateCard maps claim types to the estimated cost per photo, in USD.
	RateCard map[string]float64 `yaml:"rate_card" json:"rate_card"`
}

// Demo returns a small data set matching the sample claims.
func Demo() Tables {
	return Tables{
		Policies: map[string]Policy{
			"POL-1001": {Active: true, Covers: []string{"collision", "theft", "water"}},
			"POL-2002": {Active: true, Covers: []string{"collision"}},
			"POL-3003": {Active: false, Covers: []string{"collision", "theft"}},
		},
		WatchList: map[string]string{
			"john smith": domain.FraudRiskHigh,
			"sam carter": domain.FraudRiskMedium,
		},
		RateCard: map[string]float64{
			"collision": 1200,
			"theft":     2500,
			"water":     3100,
		},
	}
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

type damagePayload struct {
	ClaimID    string   `mapstructure:"claim_id"`
	Photos     []string `mapstructure:"photos"`
	DamageType string   `mapstructure:"damage_type"`
}

type fraudPayload struct {
	ClaimantName string `mapstructure:"claimant_name"`
}

type policyPayload struct {
	PolicyID  string `mapstructure:"policy_id"`
	ClaimType string `mapstructure:"claim_type"`
}

func decode(payload map[string]any, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           target,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(payload); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

// PolicyExecutor verifies coverage against the policy table.
func (t Tables) PolicyExecutor() ports.TaskExecutor {
	return ports.TaskExecutorFunc(func(ctx context.Context, req domain.TaskRequest) (any, error) {
		var p policyPayload
		if err := decode(req.Payload, &p); err != nil {
			return nil, err
		}

		row, ok := t.Policies[p.PolicyID]
		switch {
		case !ok:
			return map[string]any{"covered": false, "reason": fmt.Sprintf("policy %s not found", p.PolicyID)}, nil
		case !row.Active:
			return map[string]any{"covered": false, "reason": fmt.Sprintf("policy %s is lapsed", p.PolicyID)}, nil
		}
		for _, c := range row.Covers {
			if normalize(c) == normalize(p.ClaimType) {
				return map[string]any{"covered": true, "reason": fmt.Sprintf("policy %s covers %s", p.PolicyID, p.ClaimType)}, nil
			}
		}
		return map[string]any{"covered": false, "reason": fmt.Sprintf("policy %s excludes %s", p.PolicyID, p.ClaimType)}, nil
	})
}

// FraudExecutor rates claimants found on the watch list; everyone else is low risk.
func (t Tables) FraudExecutor() ports.TaskExecutor {
	watch := make(map[string]string, len(t.WatchList))
	for name, risk := range t.WatchList {
		watch[normalize(name)] = risk
	}
	return ports.TaskExecutorFunc(func(ctx context.Context, req domain.TaskRequest) (any, error) {
		var p fraudPayload
		if err := decode(req.Payload, &p); err != nil {
			return nil, err
		}
		risk, ok := watch[normalize(p.ClaimantName)]
		if !ok {
			risk = domain.FraudRiskLow
		}
		return map[string]any{"risk": risk}, nil
	})
}

// DamageExecutor estimates cost as the rate for the damage type times the number of photos.
// Unknown damage types fail the task.
func (t Tables) DamageExecutor() ports.TaskExecutor {
	rates := make(map[string]float64, len(t.RateCard))
	for typ, rate := range t.RateCard {
		rates[normalize(typ)] = rate
	}
	return ports.TaskExecutorFunc(func(ctx context.Context, req domain.TaskRequest) (any, error) {
		var p damagePayload
		if err := decode(req.Payload, &p); err != nil {
			return nil, err
		}
		rate, ok := rates[normalize(p.DamageType)]
		if !ok {
			return nil, fmt.Errorf("no rate for damage type %q", p.DamageType)
		}
		return map[string]any{
			"estimate": rate * float64(len(p.Photos)),
			"photos":   len(p.Photos),
		}, nil
	})
}

// Executors returns the damage, fraud and policy executors, in that order.
func (t Tables) Executors() (damage, fraud, policy ports.TaskExecutor) {
	return t.DamageExecutor(), t.FraudExecutor(), t.PolicyExecutor()
}
