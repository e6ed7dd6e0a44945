package middleware

import (
	"context"
	"regexp"

	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
	"github.com/stephen-chu/insurance-claims-triage/pkg/ports"
)

// Mask replaces values of masked fields.
const Mask = "***"

type piiMiddleware struct {
	next     ports.SessionStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks claim fields and keys of
// structured task outputs whose names match any of the patterns.
// The claim ID is never masked. Invalid patterns panic.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.SessionStore) ports.SessionStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) match(name string) bool {
	for _, p := range m.patterns {
		if p.MatchString(name) {
			return true
		}
	}
	return false
}

func (m *piiMiddleware) Save(ctx context.Context, s *domain.Session) error {
	// Clone so the in-memory session used by the caller keeps real values.
	// Clone copies task outputs too, so they can be masked in place.
	cloned := s.Clone()

	m.maskClaim(&cloned.Claim)
	for _, r := range cloned.Results {
		if out, ok := r.Output.(map[string]any); ok {
			maskMap(out, m.match)
		}
	}

	return m.next.Save(ctx, cloned)
}

func (m *piiMiddleware) maskClaim(c *domain.Claim) {
	fields := []struct {
		name  string
		value *string
	}{
		{"claimant_name", &c.ClaimantName},
		{"policy_id", &c.PolicyID},
		{"claim_type", &c.ClaimType},
		{"description", &c.Description},
		{"incident_date", &c.IncidentDate},
		{"claim_dir", &c.Dir},
	}
	for _, f := range fields {
		if *f.value != "" && m.match(f.name) {
			*f.value = Mask
		}
	}
	if len(c.Photos) > 0 && m.match("photos") {
		c.Photos = []string{Mask}
	}
}

func (m *piiMiddleware) Load(ctx context.Context, sessionID string) (*domain.Session, error) {
	return m.next.Load(ctx, sessionID)
}

func (m *piiMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

// Helpers

func maskMap(m map[string]any, match func(string) bool) {
	for k, v := range m {
		if match(k) {
			m[k] = Mask
			continue
		}
		if subMap, ok := v.(map[string]any); ok {
			maskMap(subMap, match)
		}
	}
}
