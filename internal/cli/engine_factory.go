package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	triage "github.com/stephen-chu/insurance-claims-triage"
	"github.com/stephen-chu/insurance-claims-triage/internal/config"
	"github.com/stephen-chu/insurance-claims-triage/pkg/adapters/file"
	httpadapter "github.com/stephen-chu/insurance-claims-triage/pkg/adapters/http"
	"github.com/stephen-chu/insurance-claims-triage/pkg/adapters/loam"
	"github.com/stephen-chu/insurance-claims-triage/pkg/adapters/lookup"
	"github.com/stephen-chu/insurance-claims-triage/pkg/adapters/memory"
	"github.com/stephen-chu/insurance-claims-triage/pkg/adapters/process"
	"github.com/stephen-chu/insurance-claims-triage/pkg/adapters/redis"
	"github.com/stephen-chu/insurance-claims-triage/pkg/delegation"
	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
	"github.com/stephen-chu/insurance-claims-triage/pkg/observability"
	"github.com/stephen-chu/insurance-claims-triage/pkg/persistence/middleware"
	"github.com/stephen-chu/insurance-claims-triage/pkg/ports"
)

// App is a fully wired triage process: the engine plus the collaborators the
// outer surfaces share.
type App struct {
	Config  *config.Config
	Engine  *triage.Engine
	Streams *httpadapter.StreamManager
	Metrics *prometheus.Registry
	Logger  *slog.Logger

	closers []func() error
}

// backend groups the persistence adapters selected by configuration.
type backend struct {
	store   ports.SessionStore
	archive ports.Archive
	sink    ports.DecisionSink
	locker  ports.DistributedLocker
	close   func() error
}

// NewApp initializes the engine with standard CLI conventions.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = createLogger(cfg.Log)
	}

	be, err := openBackend(cfg)
	if err != nil {
		return nil, err
	}

	tasks, err := buildTasks(cfg, logger)
	if err != nil {
		return nil, errors.Join(err, be.close())
	}

	app := &App{
		Config:  cfg,
		Streams: httpadapter.NewStreamManager(logger),
		Metrics: prometheus.NewRegistry(),
		Logger:  logger,
		closers: []func() error{be.close},
	}
	metrics := observability.NewMetrics(app.Metrics)

	opts := []triage.Option{
		triage.WithTasks(tasks...),
		triage.WithStore(be.store),
		triage.WithArchive(be.archive),
		triage.WithSink(be.sink),
		triage.WithTaskTimeout(cfg.Delegation.TaskTimeout),
		triage.WithAutoApproveLimit(cfg.Synthesis.AutoApproveLimit),
		triage.WithLogger(logger),
		triage.WithLifecycleHooks(domain.ComposeHooks(
			observability.AuditHooks(logger),
			metrics.Hooks(),
			app.Streams.Hooks(),
		)),
	}
	if be.locker != nil {
		opts = append(opts, triage.WithLocker(be.locker))
	}
	if cfg.Delegation.RateLimit > 0 {
		opts = append(opts, triage.WithRateLimiter(
			rate.NewLimiter(rate.Limit(cfg.Delegation.RateLimit), cfg.Delegation.RateBurst),
		))
	}

	engine, err := triage.New(opts...)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("error initializing engine: %w", err), app.Close())
	}
	app.Engine = engine
	return app, nil
}

// Close releases backend connections.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// OpenSource opens the claims directory. It is separate from NewApp so that
// commands that never scan claims do not require the directory to exist.
func (a *App) OpenSource() (ports.ClaimSource, error) {
	src, err := loam.Open(a.Config.ClaimsDir)
	if err != nil {
		return nil, fmt.Errorf("open claims dir %s: %w", a.Config.ClaimsDir, err)
	}
	return src, nil
}

func openBackend(cfg *config.Config) (backend, error) {
	sc := cfg.Sessions
	var be backend

	switch sc.Backend {
	case config.BackendRedis:
		store := redis.New(sc.Redis.Address, sc.Redis.Password, sc.Redis.DB,
			redis.WithPrefix(sc.Redis.Prefix),
			redis.WithTTL(sc.Redis.TTL),
		)
		be = backend{
			store:   store,
			archive: redis.NewArchive(store.Client(), store.Prefix()),
			sink:    redis.NewSink(store.Client(), store.Prefix()),
			locker:  redis.NewLocker(store.Client(), store.Prefix()),
			close:   store.Close,
		}
	case config.BackendMemory:
		be = backend{
			store:   memory.NewStore(),
			archive: memory.NewArchive(),
			sink:    memory.NewSink(),
		}
	default:
		be = backend{
			store:   file.New(filepath.Join(sc.Dir, "sessions")),
			archive: file.NewArchive(filepath.Join(sc.Dir, "archive")),
			sink:    file.NewSink(cfg.ResultsDir),
		}
	}
	if be.close == nil {
		be.close = func() error { return nil }
	}

	mws, err := storeMiddlewares(sc)
	if err != nil {
		return backend{}, errors.Join(err, be.close())
	}
	be.store = middleware.Chain(be.store, mws...)
	return be, nil
}

// storeMiddlewares masks PII before anything else sees the session, then seals it.
func storeMiddlewares(sc config.SessionsConfig) ([]middleware.Middleware, error) {
	var mws []middleware.Middleware
	if len(sc.PIIPatterns) > 0 {
		mws = append(mws, middleware.NewPIIMiddleware(sc.PIIPatterns))
	}
	if sc.EncryptionKey == "" {
		return mws, nil
	}

	active, err := middleware.ParseKey(sc.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}
	enc := middleware.EncryptionConfig{ActiveKey: active}
	for i, k := range sc.FallbackKeys {
		key, err := middleware.ParseKey(k)
		if err != nil {
			return nil, fmt.Errorf("fallback key %d: %w", i, err)
		}
		enc.FallbackKeys = append(enc.FallbackKeys, key)
	}
	return append(mws, middleware.NewEncryptionMiddleware(enc)), nil
}

// buildTasks binds each configured task to its executor: an allow-listed
// external command when one is set, the lookup tables otherwise.
func buildTasks(cfg *config.Config, logger *slog.Logger) ([]delegation.TaskSpec, error) {
	var procs []process.ProcessConfig
	for _, t := range cfg.Tasks {
		if t.External() {
			procs = append(procs, t.ProcessConfig)
		}
	}
	runner := process.NewRunner(
		process.WithRegistry(procs...),
		process.WithLogger(logger),
	)
	tables := cfg.Tables()

	specs := make([]delegation.TaskSpec, 0, len(cfg.Tasks))
	for _, t := range cfg.Tasks {
		var exec ports.TaskExecutor
		if t.External() {
			e, err := runner.Executor(t.Name)
			if err != nil {
				return nil, err
			}
			exec = e
		} else {
			e, err := lookupExecutor(tables, t.Kind)
			if err != nil {
				return nil, fmt.Errorf("task %s: %w", t.Name, err)
			}
			exec = e
		}
		specs = append(specs, delegation.TaskSpec{
			Name:     t.Name,
			Kind:     t.Kind,
			Executor: exec,
			Timeout:  t.Timeout,
		})
	}
	return specs, nil
}

func lookupExecutor(t lookup.Tables, kind domain.TaskKind) (ports.TaskExecutor, error) {
	switch kind {
	case domain.TaskDamage:
		return t.DamageExecutor(), nil
	case domain.TaskFraud:
		return t.FraudExecutor(), nil
	case domain.TaskPolicy:
		return t.PolicyExecutor(), nil
	default:
		return nil, fmt.Errorf("no lookup table for kind %q", kind)
	}
}
