package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/stephen-chu/insurance-claims-triage/internal/logging"
	"github.com/stephen-chu/insurance-claims-triage/pkg/persistence/middleware"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "triage.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom is Load with an explicit YAML path. The file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file over cfg. A missing file is not an error.
// Unknown keys are rejected so that typos do not silently fall back to defaults.
func loadYAML(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// loadEnv overlays TRIAGE_* environment variables onto cfg.
// Only non-empty values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.ClaimsDir, "TRIAGE_CLAIMS_DIR")
	setString(&cfg.ResultsDir, "TRIAGE_RESULTS_DIR")

	setString(&cfg.Sessions.Backend, "TRIAGE_SESSIONS_BACKEND")
	setString(&cfg.Sessions.Dir, "TRIAGE_SESSIONS_DIR")
	setString(&cfg.Sessions.EncryptionKey, "TRIAGE_ENCRYPTION_KEY")
	setList(&cfg.Sessions.FallbackKeys, "TRIAGE_ENCRYPTION_FALLBACK_KEYS")
	setList(&cfg.Sessions.PIIPatterns, "TRIAGE_PII_PATTERNS")

	// Redis
	setString(&cfg.Sessions.Redis.Address, "TRIAGE_REDIS_ADDR")
	setString(&cfg.Sessions.Redis.Password, "TRIAGE_REDIS_PASSWORD")
	setInt(&cfg.Sessions.Redis.DB, "TRIAGE_REDIS_DB")
	setString(&cfg.Sessions.Redis.Prefix, "TRIAGE_REDIS_PREFIX")
	setDuration(&cfg.Sessions.Redis.TTL, "TRIAGE_REDIS_TTL")

	setDuration(&cfg.Intake.Interval, "TRIAGE_INTAKE_INTERVAL")
	setInt(&cfg.Intake.Concurrency, "TRIAGE_INTAKE_CONCURRENCY")
	setDuration(&cfg.Intake.StaleAfter, "TRIAGE_STALE_AFTER")

	setDuration(&cfg.Delegation.TaskTimeout, "TRIAGE_TASK_TIMEOUT")
	setFloat64(&cfg.Delegation.RateLimit, "TRIAGE_RATE_LIMIT")
	setInt(&cfg.Delegation.RateBurst, "TRIAGE_RATE_BURST")

	setFloat64(&cfg.Synthesis.AutoApproveLimit, "TRIAGE_AUTO_APPROVE_LIMIT")

	setInt(&cfg.Server.Port, "TRIAGE_PORT")
	setString(&cfg.Log.Level, "TRIAGE_LOG_LEVEL")
	setString(&cfg.Log.Format, "TRIAGE_LOG_FORMAT")
}

// Validate checks the configuration for values the components would reject.
func (c *Config) Validate() error {
	switch c.Sessions.Backend {
	case BackendFile:
		if c.Sessions.Dir == "" {
			return errors.New("sessions.dir is required for the file backend")
		}
		if c.ResultsDir == "" {
			return errors.New("results_dir is required for the file backend")
		}
	case BackendRedis:
		if c.Sessions.Redis.Address == "" {
			return errors.New("sessions.redis.address is required for the redis backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("sessions.backend must be one of file, redis, memory (got %q)", c.Sessions.Backend)
	}

	if c.Sessions.EncryptionKey != "" {
		for _, k := range append([]string{c.Sessions.EncryptionKey}, c.Sessions.FallbackKeys...) {
			if _, err := middleware.ParseKey(k); err != nil {
				return fmt.Errorf("sessions.encryption_key: %w", err)
			}
		}
	} else if len(c.Sessions.FallbackKeys) > 0 {
		return errors.New("sessions.fallback_keys require sessions.encryption_key")
	}

	if c.Intake.Interval <= 0 {
		return errors.New("intake.interval must be > 0")
	}
	if c.Intake.Concurrency < 1 {
		return errors.New("intake.concurrency must be >= 1")
	}
	if c.Intake.StaleAfter <= 0 {
		return errors.New("intake.stale_after must be > 0")
	}
	if c.Delegation.TaskTimeout <= 0 {
		return errors.New("delegation.task_timeout must be > 0")
	}
	if c.Delegation.RateLimit < 0 {
		return errors.New("delegation.rate_limit must be >= 0")
	}
	if c.Delegation.RateLimit > 0 && c.Delegation.RateBurst < 1 {
		return errors.New("delegation.rate_burst must be >= 1")
	}
	if c.Synthesis.AutoApproveLimit < 0 {
		return errors.New("synthesis.auto_approve_limit must be >= 0")
	}

	if len(c.Tasks) == 0 {
		return errors.New("at least one task is required")
	}
	seen := make(map[string]bool, len(c.Tasks))
	for i, t := range c.Tasks {
		if t.Name == "" {
			return fmt.Errorf("tasks[%d]: name is required", i)
		}
		if seen[t.Name] {
			return fmt.Errorf("tasks[%d]: duplicate task name %q", i, t.Name)
		}
		seen[t.Name] = true
		if !t.Kind.Valid() {
			return fmt.Errorf("tasks[%d] (%s): kind must be one of damage, fraud, policy (got %q)", i, t.Name, t.Kind)
		}
		if t.Timeout < 0 {
			return fmt.Errorf("tasks[%d] (%s): timeout must be >= 0", i, t.Name)
		}
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535 (got %d)", c.Server.Port)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if f := strings.ToLower(c.Log.Format); f != logging.FormatText && f != logging.FormatJSON {
		return fmt.Errorf("log.format must be text or json (got %q)", c.Log.Format)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setList(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		var out []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		*dst = out
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
