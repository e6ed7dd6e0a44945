package domain

import "time"

// TaskKind identifies one of the analyses a claim is delegated to.
// The set is closed: new kinds require a matching payload builder.
type TaskKind string

const (
	TaskDamage TaskKind = "damage" // photo scoring and cost estimate
	TaskFraud  TaskKind = "fraud"  // claimant fraud lookup
	TaskPolicy TaskKind = "policy" // policy coverage verification
)

// Default task names.
const (
	TaskNameDamage = "damage-assessor"
	TaskNameFraud  = "fraud-detector"
	TaskNamePolicy = "policy-verifier"
)

// Valid reports whether k is one of the known task kinds.
func (k TaskKind) Valid() bool {
	switch k {
	case TaskDamage, TaskFraud, TaskPolicy:
		return true
	}
	return false
}

// TaskRequest is one delegated analysis derived from a Claim.
type TaskRequest struct {
	TaskName string         `json:"task_name"`
	Kind     TaskKind       `json:"kind"`
	ClaimID  string         `json:"claim_id"`
	Payload  map[string]any `json:"payload"`
}

// TaskResult is the outcome of exactly one TaskRequest.
// Output is either structured (map) or free text (string). When Error is set,
// Output must be ignored and the task counts as unknown during synthesis.
type TaskResult struct {
	TaskName string        `json:"task_name"`
	Kind     TaskKind      `json:"kind"`
	Output   any           `json:"output,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Failed reports whether the task produced an error instead of an output.
func (r TaskResult) Failed() bool {
	return r.Error != ""
}
