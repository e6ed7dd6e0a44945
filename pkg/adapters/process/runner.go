// Package process runs delegated analyses as external commands.
//
// Commands must be registered up front (allow-listing). The task payload is
// passed both as TRIAGE_ARG_<KEY> environment variables and as a JSON object
// on stdin; it is never spliced into the command line. Stdout that parses as
// JSON becomes structured output, anything else is returned as text.
package process

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stephen-chu/insurance-claims-triage/internal/logging"
	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
	"github.com/stephen-chu/insurance-claims-triage/pkg/ports"
)

// DefaultGracePeriod is how long a cancelled command may take to exit after
// the interrupt before it is killed.
const DefaultGracePeriod = 5 * time.Second

// ErrNotRegistered is returned for commands missing from the allow-list.
var ErrNotRegistered = errors.New("process not registered")

var envKey = regexp.MustCompile(`[^A-Z0-9_]`)

// Runner executes allow-listed local processes.
type Runner struct {
	mu       sync.RWMutex
	registry map[string]ProcessConfig
	baseDir  string
	grace    time.Duration
	logger   *slog.Logger
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithRegistry populates the allow-list from loaded config.
func WithRegistry(procs ...ProcessConfig) RunnerOption {
	return func(r *Runner) {
		for _, p := range procs {
			r.registry[p.Name] = p
		}
	}
}

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// WithGracePeriod sets how long a cancelled process may take to exit.
func WithGracePeriod(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.grace = d
	}
}

// WithLogger configures a logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = l
	}
}

// NewRunner creates a new Process Runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		registry: make(map[string]ProcessConfig),
		grace:    DefaultGracePeriod,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a trusted script/command to the allow-list.
func (r *Runner) Register(name string, command string, args ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registry[name] = ProcessConfig{Name: name, Command: command, Args: args}
}

// Registered returns the allow-listed names, sorted.
func (r *Runner) Registered() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.registry))
	for name := range r.registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Executor binds a registered process to the TaskExecutor port.
func (r *Runner) Executor(name string) (ports.TaskExecutor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.registry[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	return ports.TaskExecutorFunc(func(ctx context.Context, req domain.TaskRequest) (any, error) {
		return r.Run(ctx, name, req)
	}), nil
}

// Run executes the process registered under name for one task request.
func (r *Runner) Run(ctx context.Context, name string, req domain.TaskRequest) (any, error) {
	r.mu.RLock()
	proc, ok := r.registry[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}

	stdin, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	cmd := exec.CommandContext(ctx, proc.Command, proc.Args...)
	cmd.Dir = r.baseDir
	if proc.Dir != "" {
		cmd.Dir = proc.Dir
	}
	cmd.Env = append(cmd.Environ(), buildEnv(proc, req)...)
	cmd.Stdin = bytes.NewReader(stdin)

	// Interrupt first and give the process a chance to clean up
	if runtime.GOOS != "windows" {
		cmd.Cancel = func() error {
			return cmd.Process.Signal(os.Interrupt)
		}
	}
	cmd.WaitDelay = r.grace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	r.logger.Debug("process finished",
		"task", req.TaskName,
		"command", proc.Command,
		"duration", time.Since(start),
		"err", err,
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("execution cancelled: %w", ctxErr)
		}
		return nil, fmt.Errorf("execution failed: %w. Stderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	return parseOutput(stdout.String()), nil
}

func buildEnv(proc ProcessConfig, req domain.TaskRequest) []string {
	env := make([]string, 0, len(proc.Environment)+len(req.Payload)+2)
	for k, v := range proc.Environment {
		env = append(env, k+"="+v)
	}
	env = append(env,
		"TRIAGE_TASK="+req.TaskName,
		"TRIAGE_CLAIM_ID="+req.ClaimID,
	)

	// Payload keys become TRIAGE_ARG_<KEY>
	// - Primitives (string, number, bool): fmt.Sprintf
	// - Complex (Map, Slice): json.Marshal
	for k, v := range req.Payload {
		var val string
		switch v.(type) {
		case string, int, int64, float64, bool:
			val = fmt.Sprintf("%v", v)
		case nil:
			val = ""
		default:
			if b, err := json.Marshal(v); err == nil {
				val = string(b)
			} else {
				val = fmt.Sprintf("%v", v)
			}
		}
		env = append(env, fmt.Sprintf("TRIAGE_ARG_%s=%s", envKey.ReplaceAllString(strings.ToUpper(k), "_"), val))
	}
	return env
}

func parseOutput(output string) any {
	trimmed := strings.TrimSpace(output)

	// Try to parse as JSON (Auto-Detection)
	if (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")) {
		var jsonResult any
		if err := json.Unmarshal([]byte(trimmed), &jsonResult); err == nil {
			return jsonResult
		}
	}

	// Fallback to string
	return trimmed
}
