package delegation

import (
	"fmt"
	"sync"
	"time"

	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
	"github.com/stephen-chu/insurance-claims-triage/pkg/ports"
)

// TaskSpec registers one delegated analysis.
type TaskSpec struct {
	Name     string
	Kind     domain.TaskKind
	Executor ports.TaskExecutor

	// Timeout overrides the coordinator default when positive.
	Timeout time.Duration
}

// requiredFields lists, per kind, the claim fields a task cannot run without.
var requiredFields = map[domain.TaskKind][]string{
	domain.TaskDamage: {"claim_id", "photos", "claim_type"},
	domain.TaskFraud:  {"claimant_name"},
	domain.TaskPolicy: {"policy_id", "claim_type"},
}

// Required returns the claim fields the task needs.
func (s TaskSpec) Required() []string {
	return requiredFields[s.Kind]
}

// BuildRequest derives the task request for a claim.
// A claim lacking a required field yields domain.ErrMissingInput.
func (s TaskSpec) BuildRequest(claim domain.Claim) (domain.TaskRequest, error) {
	req := domain.TaskRequest{TaskName: s.Name, Kind: s.Kind, ClaimID: claim.ClaimID}
	for _, field := range s.Required() {
		if claim.Field(field) == "" {
			return req, fmt.Errorf("%w: %s needs %s", domain.ErrMissingInput, s.Name, field)
		}
	}

	switch s.Kind {
	case domain.TaskDamage:
		req.Payload = map[string]any{
			"claim_id":    claim.ClaimID,
			"photos":      append([]string(nil), claim.Photos...),
			"damage_type": claim.ClaimType,
			"claim_dir":   claim.Dir,
		}
	case domain.TaskFraud:
		req.Payload = map[string]any{
			"claimant_name": claim.ClaimantName,
		}
	case domain.TaskPolicy:
		req.Payload = map[string]any{
			"policy_id":  claim.PolicyID,
			"claim_type": claim.ClaimType,
		}
	default:
		return req, fmt.Errorf("unknown task kind %q", s.Kind)
	}
	return req, nil
}

// Registry manages the delegated tasks, in registration order.
type Registry struct {
	mu    sync.RWMutex
	specs []TaskSpec
	names map[string]struct{}
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		names: make(map[string]struct{}),
	}
}

// Register adds a task. Names must be unique and kinds known.
func (r *Registry) Register(spec TaskSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("task name cannot be empty")
	}
	if !spec.Kind.Valid() {
		return fmt.Errorf("task %s: unknown kind %q", spec.Name, spec.Kind)
	}
	if spec.Executor == nil {
		return fmt.Errorf("task %s: executor is required", spec.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.names[spec.Name]; dup {
		return fmt.Errorf("task %s already registered", spec.Name)
	}
	r.names[spec.Name] = struct{}{}
	r.specs = append(r.specs, spec)
	return nil
}

// MustRegister is Register for static wiring; it panics on error.
func (r *Registry) MustRegister(specs ...TaskSpec) *Registry {
	for _, s := range specs {
		if err := r.Register(s); err != nil {
			panic(err)
		}
	}
	return r
}

// Specs returns a snapshot of the registered tasks.
func (r *Registry) Specs() []TaskSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]TaskSpec(nil), r.specs...)
}

// Len returns the number of registered tasks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.specs)
}

// DefaultSpecs returns the three standard analyses under their usual names.
func DefaultSpecs(damage, fraud, policy ports.TaskExecutor) []TaskSpec {
	return []TaskSpec{
		{Name: domain.TaskNameDamage, Kind: domain.TaskDamage, Executor: damage},
		{Name: domain.TaskNameFraud, Kind: domain.TaskFraud, Executor: fraud},
		{Name: domain.TaskNamePolicy, Kind: domain.TaskPolicy, Executor: policy},
	}
}
