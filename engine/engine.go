// Package engine assembles the nuvom runtime: it loads plugins,
// resolves the configured backends, populates the task registry from a
// manifest and runs the worker pool.
//
// A host embeds the engine behind its own surface (CLI, service) and
// maps startup errors to exit codes: nil means a graceful run, a
// non-nil error from Start is unrecoverable (plugin load error, unknown
// backend, corrupt manifest).
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/nahom-zewdu/nuvom"
	"github.com/nahom-zewdu/nuvom/codec"
	"github.com/nahom-zewdu/nuvom/config"
	"github.com/nahom-zewdu/nuvom/file"
	"github.com/nahom-zewdu/nuvom/job"
	"github.com/nahom-zewdu/nuvom/memory"
	"github.com/nahom-zewdu/nuvom/plugin"
	"github.com/nahom-zewdu/nuvom/sql"
	"github.com/nahom-zewdu/nuvom/task"
)

const (
	stopped = iota
	started
)

// Engine wires configuration, plugins, backends and the worker pool
// into one lifecycle.
type Engine struct {
	state atomic.Int32

	cfg      *config.Config
	registry *task.Registry
	log      *slog.Logger

	loader *plugin.Loader
	caps   *plugin.Registry
	funcs  map[string]task.Func

	codec         codec.Codec
	queue         nuvom.Queue
	results       nuvom.ResultBackend
	pool          *nuvom.Pool
	defaultPolicy job.TimeoutPolicy

	addErr error
}

// Option configures an Engine under construction.
type Option func(*Engine)

// WithPlugin adds an in-process plugin, compiled into the host binary.
// It obeys the same version and lifecycle rules as descriptor plugins.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		if err := e.loader.Add(p); err != nil {
			// surfaced on Start, where failures are fatal
			e.addErr = errors.Join(e.addErr, err)
		}
	}
}

// WithTaskFuncs supplies the callables bound to manifest symbols.
func WithTaskFuncs(funcs map[string]task.Func) Option {
	return func(e *Engine) {
		for name, fn := range funcs {
			e.funcs[name] = fn
		}
	}
}

// New creates an engine over the given configuration and task registry.
//
// The engine is not started automatically. Call Start to load plugins
// and begin processing.
func New(cfg *config.Config, registry *task.Registry, log *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		registry: registry,
		log:      log,
		loader:   plugin.NewLoader(log),
		caps:     plugin.NewRegistry(),
		funcs:    make(map[string]task.Func),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// registerBuiltins makes the bundled backends constructible by name.
// Plugins started later may shadow them.
func (e *Engine) registerBuiltins() {
	e.caps.RegisterQueueBackend("memory", func(cfg *config.Config) (nuvom.Queue, error) {
		return memory.NewQueue(cfg.QueueCapacity), nil
	})
	e.caps.RegisterQueueBackend("file", func(cfg *config.Config) (nuvom.Queue, error) {
		return file.NewQueue(cfg.QueueDir, e.codec, &file.QueueConfig{
			VisibilityTimeout: cfg.VisibilityTimeout(),
		}, e.log)
	})
	e.caps.RegisterQueueBackend("sqlite", func(cfg *config.Config) (nuvom.Queue, error) {
		return sql.OpenQueue(context.Background(), cfg.SQLiteQueue, e.codec, &sql.QueueConfig{
			VisibilityTimeout: cfg.VisibilityTimeout(),
		}, e.log)
	})
	e.caps.RegisterResultBackend("memory", func(cfg *config.Config) (nuvom.ResultBackend, error) {
		return memory.NewResultBackend(), nil
	})
	e.caps.RegisterResultBackend("file", func(cfg *config.Config) (nuvom.ResultBackend, error) {
		return file.NewResultBackend(cfg.ResultDir, e.codec, e.log)
	})
	e.caps.RegisterResultBackend("sqlite", func(cfg *config.Config) (nuvom.ResultBackend, error) {
		return sql.OpenResultBackend(context.Background(), cfg.SQLiteResult, e.log)
	})
}

// applyManifest populates the registry from the configured manifest,
// binding callables supplied via WithTaskFuncs.
func (e *Engine) applyManifest() error {
	if e.cfg.ManifestPath == "" {
		return nil
	}
	manifest, err := task.LoadManifest(e.cfg.ManifestPath)
	if err != nil {
		return err
	}
	return manifest.Apply(e.registry, e.funcs, task.Silent)
}

// Start performs startup in order: codec resolution, built-in
// registration, plugin loading, backend construction, manifest
// application, pool start.
//
// Any failure is fatal; resources acquired so far are released before
// returning.
func (e *Engine) Start(ctx context.Context) error {
	if !e.state.CompareAndSwap(stopped, started) {
		return nuvom.ErrDoubleStarted
	}

	var err error
	e.codec, err = codec.Get(e.cfg.SerializationBackend)
	if err != nil {
		e.state.Store(stopped)
		return err
	}
	e.registerBuiltins()

	desc, err := plugin.ParseDescriptor(e.cfg.PluginPath)
	if err != nil {
		e.state.Store(stopped)
		return err
	}
	if err := e.loader.Load(desc); err != nil {
		e.state.Store(stopped)
		return err
	}
	if e.addErr != nil {
		e.state.Store(stopped)
		return e.addErr
	}
	settings := &plugin.Settings{
		Config:   e.cfg,
		Registry: e.caps,
		Log:      e.log,
	}
	if err := e.loader.Start(settings); err != nil {
		e.state.Store(stopped)
		return err
	}

	e.queue, err = e.caps.OpenQueue(e.cfg.QueueBackend, e.cfg)
	if err != nil {
		return e.abortStart(err)
	}
	e.results, err = e.caps.OpenResult(e.cfg.ResultBackend, e.cfg)
	if err != nil {
		return e.abortStart(err)
	}

	if err := e.applyManifest(); err != nil {
		return e.abortStart(err)
	}

	policy, err := job.ParseTimeoutPolicy(e.cfg.TimeoutPolicy)
	if err != nil {
		return e.abortStart(err)
	}
	e.defaultPolicy = policy

	e.pool = nuvom.NewPool(e.registry, e.queue, e.results, &nuvom.PoolConfig{
		MaxWorkers:    e.cfg.MaxWorkers,
		BatchSize:     e.cfg.BatchSize,
		PullInterval:  e.cfg.PullInterval(),
		JobTimeout:    e.cfg.JobTimeout(),
		ShutdownGrace: e.cfg.ShutdownGrace(),
	}, e.log)
	if err := e.pool.Start(ctx); err != nil {
		return e.abortStart(err)
	}
	e.log.Info("engine started",
		"queue", e.cfg.QueueBackend,
		"results", e.cfg.ResultBackend,
		"codec", e.codec.Name(),
		"tasks", e.registry.Len())
	return nil
}

// abortStart unwinds a partially completed startup.
func (e *Engine) abortStart(cause error) error {
	errs := []error{cause, e.loader.Stop()}
	if e.queue != nil {
		errs = append(errs, e.queue.Close())
	}
	if e.results != nil {
		errs = append(errs, e.results.Close())
	}
	e.state.Store(stopped)
	return errors.Join(errs...)
}

// Stop shuts the runtime down gracefully: the pool drains within its
// grace period, plugins stop in reverse start order, and the backends
// are closed. Stop is idempotent.
func (e *Engine) Stop() error {
	if !e.state.CompareAndSwap(started, stopped) {
		return nil
	}
	var errs []error
	if e.pool != nil {
		errs = append(errs, e.pool.Stop())
	}
	errs = append(errs, e.loader.Stop())
	if e.queue != nil {
		errs = append(errs, e.queue.Close())
	}
	if e.results != nil {
		errs = append(errs, e.results.Close())
	}
	e.log.Info("engine stopped")
	return errors.Join(errs...)
}

// Submit builds a job for the named task, layering the task's defaults
// and the engine's configured timeout policy under the given per-call
// options, and enqueues it. It returns the new job id.
func (e *Engine) Submit(ctx context.Context, funcName string, args []any, kwargs map[string]any, opts ...job.Option) (string, error) {
	if e.state.Load() != started {
		return "", fmt.Errorf("engine is not running")
	}
	def, err := e.registry.Get(funcName)
	if err != nil {
		return "", err
	}
	base := []job.Option{job.WithTimeoutPolicy(e.defaultPolicy)}
	jb := def.NewJob(args, kwargs, append(base, opts...)...)
	if err := e.queue.Enqueue(ctx, jb); err != nil {
		return "", err
	}
	e.log.Debug("job submitted", "id", jb.ID, "func", funcName)
	return jb.ID, nil
}

// Map enqueues one independent job per argument tuple and returns the
// ids in input order. Sub-jobs share nothing: each is its own record
// with its own retry budget.
func (e *Engine) Map(ctx context.Context, funcName string, argsList [][]any, opts ...job.Option) ([]string, error) {
	ids := make([]string, 0, len(argsList))
	for _, args := range argsList {
		id, err := e.Submit(ctx, funcName, args, nil, opts...)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Queue exposes the active queue backend.
func (e *Engine) Queue() nuvom.Queue {
	return e.queue
}

// Results exposes the active result backend.
func (e *Engine) Results() nuvom.ResultBackend {
	return e.results
}

// Metrics returns a live snapshot from the running pool.
func (e *Engine) Metrics(ctx context.Context) (nuvom.Snapshot, error) {
	if e.pool == nil {
		return nuvom.Snapshot{}, fmt.Errorf("engine is not running")
	}
	return e.pool.MetricsSnapshot(ctx)
}

// WaitStopped blocks until the context is done, then stops the engine.
// Hosts typically call it with a signal-bound context.
func (e *Engine) WaitStopped(ctx context.Context) error {
	<-ctx.Done()
	return e.Stop()
}
