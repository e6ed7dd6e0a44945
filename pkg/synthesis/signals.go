package synthesis

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
)

// Signals are the verdicts extracted from task results.
// Unknown verdicts use domain.VerdictUnknown; Damage is only meaningful when DamageKnown.
type Signals struct {
	Coverage    string
	FraudRisk   string
	Damage      float64
	DamageKnown bool

	// Unknown lists, sorted, the tasks whose result could not contribute a verdict.
	Unknown []string
}

// Complete reports whether every signal has a verdict.
func (s Signals) Complete() bool {
	return s.Coverage != domain.VerdictUnknown && s.FraudRisk != domain.VerdictUnknown && s.DamageKnown
}

type policyOutput struct {
	Covered  *bool  `mapstructure:"covered"`
	Coverage string `mapstructure:"coverage"`
	Status   string `mapstructure:"status"`
}

type fraudOutput struct {
	Risk      string   `mapstructure:"risk"`
	FraudRisk string   `mapstructure:"fraud_risk"`
	Score     *float64 `mapstructure:"score"`
}

type damageOutput struct {
	Estimate       *float64 `mapstructure:"estimate"`
	DamageEstimate *float64 `mapstructure:"damage_estimate"`
	Total          *float64 `mapstructure:"total"`
	Cost           *float64 `mapstructure:"cost"`
	Amount         *float64 `mapstructure:"amount"`
}

var (
	riskWord     = regexp.MustCompile(`\b(high|medium|moderate|elevated|low)\b`)
	dollarAmount = regexp.MustCompile(`\$\s?([0-9][0-9,]*(?:\.[0-9]+)?)`)
	usdAmount    = regexp.MustCompile(`(?i)\b([0-9][0-9,]*(?:\.[0-9]+)?)\s?(?:usd|dollars)\b`)
)

var riskRank = map[string]int{
	domain.FraudRiskLow:    1,
	domain.FraudRiskMedium: 2,
	domain.FraudRiskHigh:   3,
}

// Extract derives signals from the fan-in. Error results and missing kinds
// are unknown. A successful output that matches no known shape returns
// domain.ErrUninterpretable.
func Extract(results map[string]domain.TaskResult) (Signals, error) {
	sig := Signals{Coverage: domain.VerdictUnknown, FraudRisk: domain.VerdictUnknown}

	// Deterministic order regardless of map iteration
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		coverages []string
		risks     []string
		damages   []float64
		failed    = map[domain.TaskKind]bool{}
	)
	for _, name := range names {
		r := results[name]
		if r.Failed() {
			failed[r.Kind] = true
			sig.Unknown = append(sig.Unknown, name)
			continue
		}
		switch r.Kind {
		case domain.TaskPolicy:
			v, err := parseCoverage(r.Output)
			if err != nil {
				return sig, uninterpretable(name, r.Output, err)
			}
			coverages = append(coverages, v)
		case domain.TaskFraud:
			v, err := parseFraudRisk(r.Output)
			if err != nil {
				return sig, uninterpretable(name, r.Output, err)
			}
			risks = append(risks, v)
		case domain.TaskDamage:
			v, err := parseDamage(r.Output)
			if err != nil {
				return sig, uninterpretable(name, r.Output, err)
			}
			damages = append(damages, v)
		default:
			return sig, uninterpretable(name, r.Output, fmt.Errorf("unknown task kind %q", r.Kind))
		}
	}

	// Several tasks of one kind combine conservatively; any failure of a kind makes it unknown
	if !failed[domain.TaskPolicy] && len(coverages) > 0 {
		sig.Coverage = domain.CoverageYes
		for _, c := range coverages {
			if c == domain.CoverageNo {
				sig.Coverage = domain.CoverageNo
			}
		}
	}
	if !failed[domain.TaskFraud] && len(risks) > 0 {
		worst := risks[0]
		for _, r := range risks[1:] {
			if riskRank[r] > riskRank[worst] {
				worst = r
			}
		}
		sig.FraudRisk = worst
	}
	if !failed[domain.TaskDamage] && len(damages) > 0 {
		sig.DamageKnown = true
		for _, d := range damages {
			sig.Damage = math.Max(sig.Damage, d)
		}
	}
	return sig, nil
}

func uninterpretable(task string, output any, cause error) error {
	snippet := fmt.Sprintf("%v", output)
	if len(snippet) > 80 {
		snippet = snippet[:80] + "..."
	}
	return fmt.Errorf("%w: %s returned %q: %v", domain.ErrUninterpretable, task, snippet, cause)
}

func decode(output any, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(output)
}

func coverageWord(s string) (string, bool) {
	norm := strings.Join(strings.Fields(strings.ToLower(strings.NewReplacer("_", " ", "-", " ").Replace(s))), " ")
	switch norm {
	case "yes", "true", "covered", "active", "in force", "valid":
		return domain.CoverageYes, true
	case "no", "false", "not covered", "uncovered", "excluded", "lapsed", "expired", "inactive", "invalid":
		return domain.CoverageNo, true
	}
	return "", false
}

func parseCoverage(output any) (string, error) {
	switch out := output.(type) {
	case string:
		text := strings.ToLower(out)
		for _, neg := range []string{"not covered", "no coverage", "not_covered", "uncovered", "excluded", "lapsed", "expired"} {
			if strings.Contains(text, neg) {
				return domain.CoverageNo, nil
			}
		}
		if strings.Contains(text, "covered") || strings.Contains(text, "coverage confirmed") {
			return domain.CoverageYes, nil
		}
		return "", fmt.Errorf("no coverage verdict in text")
	case map[string]any:
		var p policyOutput
		if err := decode(out, &p); err != nil {
			return "", err
		}
		if p.Covered != nil {
			if *p.Covered {
				return domain.CoverageYes, nil
			}
			return domain.CoverageNo, nil
		}
		for _, s := range []string{p.Coverage, p.Status} {
			if v, ok := coverageWord(s); ok {
				return v, nil
			}
		}
		return "", fmt.Errorf("no covered/coverage field")
	case bool:
		if out {
			return domain.CoverageYes, nil
		}
		return domain.CoverageNo, nil
	}
	return "", fmt.Errorf("unsupported output type %T", output)
}

func riskLevel(s string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return domain.FraudRiskLow, true
	case "medium", "moderate", "elevated":
		return domain.FraudRiskMedium, true
	case "high":
		return domain.FraudRiskHigh, true
	}
	return "", false
}

func riskFromScore(score float64) (string, error) {
	if score < 0 || math.IsNaN(score) {
		return "", fmt.Errorf("invalid fraud score %v", score)
	}
	if score > 1 {
		if score > 100 {
			return "", fmt.Errorf("invalid fraud score %v", score)
		}
		score /= 100
	}
	switch {
	case score < 0.3:
		return domain.FraudRiskLow, nil
	case score < 0.7:
		return domain.FraudRiskMedium, nil
	default:
		return domain.FraudRiskHigh, nil
	}
}

func parseFraudRisk(output any) (string, error) {
	switch out := output.(type) {
	case string:
		// The most severe level mentioned wins
		best := ""
		for _, m := range riskWord.FindAllString(strings.ToLower(out), -1) {
			lvl, _ := riskLevel(m)
			if riskRank[lvl] > riskRank[best] {
				best = lvl
			}
		}
		if best == "" {
			return "", fmt.Errorf("no risk level in text")
		}
		return best, nil
	case map[string]any:
		var f fraudOutput
		if err := decode(out, &f); err != nil {
			return "", err
		}
		for _, s := range []string{f.Risk, f.FraudRisk} {
			if lvl, ok := riskLevel(s); ok {
				return lvl, nil
			}
		}
		if f.Score != nil {
			return riskFromScore(*f.Score)
		}
		return "", fmt.Errorf("no risk/fraud_risk/score field")
	case float64:
		return riskFromScore(out)
	}
	return "", fmt.Errorf("unsupported output type %T", output)
}

func parseAmount(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
}

func parseDamage(output any) (float64, error) {
	switch out := output.(type) {
	case string:
		found := false
		largest := 0.0
		for _, re := range []*regexp.Regexp{dollarAmount, usdAmount} {
			for _, m := range re.FindAllStringSubmatch(out, -1) {
				v, err := parseAmount(m[1])
				if err != nil {
					continue
				}
				found = true
				largest = math.Max(largest, v)
			}
		}
		if !found {
			return 0, fmt.Errorf("no amount in text")
		}
		return largest, nil
	case map[string]any:
		var d damageOutput
		if err := decode(out, &d); err != nil {
			return 0, err
		}
		for _, v := range []*float64{d.Estimate, d.DamageEstimate, d.Total, d.Cost, d.Amount} {
			if v != nil {
				if *v < 0 || math.IsNaN(*v) || math.IsInf(*v, 0) {
					return 0, fmt.Errorf("invalid amount %v", *v)
				}
				return *v, nil
			}
		}
		return 0, fmt.Errorf("no estimate/total/cost field")
	case float64:
		if out < 0 || math.IsNaN(out) || math.IsInf(out, 0) {
			return 0, fmt.Errorf("invalid amount %v", out)
		}
		return out, nil
	}
	return 0, fmt.Errorf("unsupported output type %T", output)
}
