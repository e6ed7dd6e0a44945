package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "triage.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, BackendFile, cfg.Sessions.Backend)
	assert.Equal(t, 3*time.Second, cfg.Intake.Interval)
	assert.Equal(t, 30*time.Second, cfg.Delegation.TaskTimeout)
	assert.Equal(t, 5000.0, cfg.Synthesis.AutoApproveLimit)
	require.Len(t, cfg.Tasks, 3)
	for _, task := range cfg.Tasks {
		assert.False(t, task.External())
	}
	assert.NoError(t, cfg.Validate())
	assert.Contains(t, cfg.Tables().Policies, "POL-1001")
}

func TestLoadFrom_MissingFile(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().ClaimsDir, cfg.ClaimsDir)
}

func TestLoadFrom_EmptyFile(t *testing.T) {
	cfg, err := LoadFrom(writeYAML(t, ""))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadFrom_YAMLOverride(t *testing.T) {
	path := writeYAML(t, `
claims_dir: /data/claims
sessions:
  backend: redis
  redis:
    address: redis:6379
    ttl: 72h
  pii_patterns: [claimant_name, "*_id"]
intake:
  interval: 10s
  concurrency: 2
delegation:
  task_timeout: 45s
  rate_limit: 5
  rate_burst: 2
synthesis:
  auto_approve_limit: 2500
tasks:
  - name: damage-assessor
    kind: damage
    command: python3
    args: [assess.py]
    env:
      MODEL: vision-small
    timeout: 1m
  - name: fraud-detector
    kind: fraud
lookup:
  policies:
    POL-9:
      active: true
      covers: [water]
log:
  level: debug
  format: json
`)
	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/claims", cfg.ClaimsDir)
	assert.Equal(t, "results", cfg.ResultsDir)
	assert.Equal(t, BackendRedis, cfg.Sessions.Backend)
	assert.Equal(t, "redis:6379", cfg.Sessions.Redis.Address)
	assert.Equal(t, "triage:", cfg.Sessions.Redis.Prefix)
	assert.Equal(t, 72*time.Hour, cfg.Sessions.Redis.TTL)
	assert.Equal(t, []string{"claimant_name", "*_id"}, cfg.Sessions.PIIPatterns)
	assert.Equal(t, 10*time.Second, cfg.Intake.Interval)
	assert.Equal(t, 2, cfg.Intake.Concurrency)
	assert.Equal(t, 10*time.Minute, cfg.Intake.StaleAfter)
	assert.Equal(t, 45*time.Second, cfg.Delegation.TaskTimeout)
	assert.Equal(t, 5.0, cfg.Delegation.RateLimit)
	assert.Equal(t, 2500.0, cfg.Synthesis.AutoApproveLimit)

	require.Len(t, cfg.Tasks, 2)
	damage := cfg.Tasks[0]
	assert.True(t, damage.External())
	assert.Equal(t, domain.TaskDamage, damage.Kind)
	assert.Equal(t, []string{"assess.py"}, damage.Args)
	assert.Equal(t, "vision-small", damage.Environment["MODEL"])
	assert.Equal(t, time.Minute, damage.Timeout)
	assert.False(t, cfg.Tasks[1].External())

	tables := cfg.Tables()
	assert.Contains(t, tables.Policies, "POL-9")
	assert.NotContains(t, tables.Policies, "POL-1001")
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFrom_UnknownKey(t *testing.T) {
	_, err := LoadFrom(writeYAML(t, "sesions:\n  backend: memory\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sesions")
}

func TestLoadFrom_EnvOverridesYAML(t *testing.T) {
	path := writeYAML(t, "server:\n  port: 9090\nlog:\n  level: debug\n")

	t.Setenv("TRIAGE_PORT", "7070")
	t.Setenv("TRIAGE_SESSIONS_BACKEND", "memory")
	t.Setenv("TRIAGE_TASK_TIMEOUT", "5s")
	t.Setenv("TRIAGE_AUTO_APPROVE_LIMIT", "1000")
	t.Setenv("TRIAGE_PII_PATTERNS", "claimant_name, policy_id,")
	t.Setenv("TRIAGE_ENCRYPTION_KEY", testKey)
	t.Setenv("TRIAGE_INTAKE_CONCURRENCY", "not-a-number")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, BackendMemory, cfg.Sessions.Backend)
	assert.Equal(t, 5*time.Second, cfg.Delegation.TaskTimeout)
	assert.Equal(t, 1000.0, cfg.Synthesis.AutoApproveLimit)
	assert.Equal(t, []string{"claimant_name", "policy_id"}, cfg.Sessions.PIIPatterns)
	assert.Equal(t, testKey, cfg.Sessions.EncryptionKey)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Unparseable values keep the previous layer.
	assert.Equal(t, 4, cfg.Intake.Concurrency)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown backend", func(c *Config) { c.Sessions.Backend = "sqlite" }, "sessions.backend"},
		{"redis without address", func(c *Config) {
			c.Sessions.Backend = BackendRedis
			c.Sessions.Redis.Address = ""
		}, "redis.address"},
		{"bad key", func(c *Config) { c.Sessions.EncryptionKey = "short" }, "encryption_key"},
		{"fallback without key", func(c *Config) { c.Sessions.FallbackKeys = []string{testKey} }, "fallback_keys"},
		{"zero interval", func(c *Config) { c.Intake.Interval = 0 }, "intake.interval"},
		{"zero concurrency", func(c *Config) { c.Intake.Concurrency = 0 }, "intake.concurrency"},
		{"zero timeout", func(c *Config) { c.Delegation.TaskTimeout = 0 }, "task_timeout"},
		{"negative limit", func(c *Config) { c.Synthesis.AutoApproveLimit = -1 }, "auto_approve_limit"},
		{"no tasks", func(c *Config) { c.Tasks = nil }, "at least one task"},
		{"duplicate task", func(c *Config) { c.Tasks = append(c.Tasks, c.Tasks[0]) }, "duplicate"},
		{"bad kind", func(c *Config) { c.Tasks[0].Kind = "weather" }, "kind"},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.want), "error %q should mention %q", err, tt.want)
		})
	}
}

func TestLoadFrom_ExampleFile(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join("..", "..", "examples", "triage.example.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "examples/claims", cfg.ClaimsDir)
	assert.Equal(t, []string{"claimant_name"}, cfg.Sessions.PIIPatterns)
	assert.Equal(t, 72*time.Hour, cfg.Sessions.Redis.TTL)
	require.Len(t, cfg.Tasks, 3)
	assert.True(t, cfg.Tasks[1].External())
	assert.Equal(t, time.Minute, cfg.Tasks[1].Timeout)
	assert.False(t, cfg.Tasks[0].External())
}
