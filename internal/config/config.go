// Package config loads the triage configuration with the hierarchy
// defaults < YAML file < TRIAGE_* environment variables.
package config

import (
	"time"

	"github.com/stephen-chu/insurance-claims-triage/pkg/adapters/lookup"
	"github.com/stephen-chu/insurance-claims-triage/pkg/adapters/process"
	"github.com/stephen-chu/insurance-claims-triage/pkg/delegation"
	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
	"github.com/stephen-chu/insurance-claims-triage/pkg/intake"
	"github.com/stephen-chu/insurance-claims-triage/pkg/synthesis"
)

// Session store backends.
const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config is the root configuration.
type Config struct {
	// ClaimsDir holds one directory per claim, each with a claim.json.
	ClaimsDir string `yaml:"claims_dir"`
	// ResultsDir receives one FinalDecision file per claim (file backend).
	ResultsDir string `yaml:"results_dir"`

	Sessions   SessionsConfig   `yaml:"sessions"`
	Intake     IntakeConfig     `yaml:"intake"`
	Delegation DelegationConfig `yaml:"delegation"`
	Synthesis  SynthesisConfig  `yaml:"synthesis"`
	Tasks      []TaskConfig     `yaml:"tasks"`
	Lookup     *lookup.Tables   `yaml:"lookup"`
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
}

// SessionsConfig selects and tunes the checkpoint store.
type SessionsConfig struct {
	Backend string      `yaml:"backend"`
	Dir     string      `yaml:"dir"`
	Redis   RedisConfig `yaml:"redis"`

	// EncryptionKey enables the AES-256-GCM envelope (hex or base64, 32 bytes).
	EncryptionKey string `yaml:"encryption_key"`
	// FallbackKeys decrypt sessions sealed with rotated-out keys.
	FallbackKeys []string `yaml:"fallback_keys"`
	// PIIPatterns lists claim fields (glob patterns) masked before persistence.
	PIIPatterns []string `yaml:"pii_patterns"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// IntakeConfig tunes the Claim Intake Loop.
type IntakeConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Concurrency int           `yaml:"concurrency"`
	StaleAfter  time.Duration `yaml:"stale_after"`
}

// DelegationConfig tunes the Delegation Coordinator.
type DelegationConfig struct {
	TaskTimeout time.Duration `yaml:"task_timeout"`
	// RateLimit caps task calls per second across all claims. Zero disables it.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// SynthesisConfig tunes the Decision Synthesizer.
type SynthesisConfig struct {
	AutoApproveLimit float64 `yaml:"auto_approve_limit"`
}

// TaskConfig registers one delegated task. A task with a command runs it as
// an external process; one without is answered from the lookup tables.
type TaskConfig struct {
	process.ProcessConfig `yaml:",inline"`

	Kind    domain.TaskKind `yaml:"kind"`
	Timeout time.Duration   `yaml:"timeout"`
}

// External reports whether the task runs as an external process.
func (t TaskConfig) External() bool {
	return t.Command != ""
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LogConfig controls the application logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults returns a configuration that runs the demo out of the box: file
// backed sessions under .triage and the three tasks answered from lookup tables.
func Defaults() Config {
	return Config{
		ClaimsDir:  "claims",
		ResultsDir: "results",
		Sessions: SessionsConfig{
			Backend: BackendFile,
			Dir:     ".triage",
			Redis: RedisConfig{
				Address: "localhost:6379",
				Prefix:  "triage:",
			},
		},
		Intake: IntakeConfig{
			Interval:    intake.DefaultInterval,
			Concurrency: intake.DefaultConcurrency,
			StaleAfter:  intake.DefaultStaleAfter,
		},
		Delegation: DelegationConfig{
			TaskTimeout: delegation.DefaultTaskTimeout,
			RateBurst:   1,
		},
		Synthesis: SynthesisConfig{
			AutoApproveLimit: synthesis.DefaultAutoApproveLimit,
		},
		Tasks: []TaskConfig{
			{ProcessConfig: process.ProcessConfig{Name: domain.TaskNameDamage}, Kind: domain.TaskDamage},
			{ProcessConfig: process.ProcessConfig{Name: domain.TaskNameFraud}, Kind: domain.TaskFraud},
			{ProcessConfig: process.ProcessConfig{Name: domain.TaskNamePolicy}, Kind: domain.TaskPolicy},
		},
		Server: ServerConfig{Port: 8080},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// Tables returns the configured lookup tables, or the demo set.
func (c *Config) Tables() lookup.Tables {
	if c.Lookup != nil {
		return *c.Lookup
	}
	return lookup.Demo()
}
