// Package app wires the stepwise components together and manages their
// lifecycle: configuration, logging, metrics, the owner goroutine, and one
// undo engine per open document.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/stepwise/internal/config"
	"github.com/dshills/stepwise/internal/dispatch"
	"github.com/dshills/stepwise/internal/engine"
	"github.com/dshills/stepwise/internal/engine/history"
	"github.com/dshills/stepwise/internal/logging"
	"github.com/dshills/stepwise/internal/metrics"
	"github.com/dshills/stepwise/internal/scene"
	"github.com/dshills/stepwise/internal/script"
)

// DefaultShutdownTimeout bounds how long Shutdown waits for queued owner
// tasks to drain.
const DefaultShutdownTimeout = 5 * time.Second

// Application is the central coordinator for all stepwise components.
type Application struct {
	mu sync.RWMutex

	config   *config.Config
	log      *slog.Logger
	level    *slog.LevelVar // nil when the caller supplied the logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	owner    *dispatch.Owner

	documents map[string]*scene.Document
	notifiers []history.Notifier

	configPath    string
	levelOverride string

	running atomic.Bool
}

// Options configures the application.
type Options struct {
	// ConfigPath is the path to the configuration file. Empty uses defaults
	// plus environment overrides.
	ConfigPath string

	// LogLevel overrides the configured log level when set.
	LogLevel string

	// Config is used as-is instead of loading ConfigPath when non-nil.
	Config *config.Config

	// EnableMetrics turns metrics on regardless of the configuration.
	EnableMetrics bool

	// Logger is used instead of building one from the configuration.
	Logger *slog.Logger

	// Notifiers are registered on every document's engine.
	Notifiers []history.Notifier
}

// New creates and starts an Application.
func New(opts Options) (*Application, error) {
	app := &Application{
		documents:     make(map[string]*scene.Document),
		notifiers:     opts.Notifiers,
		configPath:    opts.ConfigPath,
		levelOverride: opts.LogLevel,
	}
	if err := app.bootstrap(opts); err != nil {
		return nil, err
	}
	return app, nil
}

// bootstrap initializes all components in dependency order.
func (app *Application) bootstrap(opts Options) error {
	// 1. Config
	cfg := opts.Config
	if cfg == nil {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return &InitError{Component: "config", Err: err}
		}
		cfg = loaded
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if opts.EnableMetrics {
		cfg.Metrics.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		return &InitError{Component: "config", Err: err}
	}
	app.config = cfg

	// 2. Logging
	app.log = opts.Logger
	if app.log == nil {
		level, err := logging.ParseLevel(cfg.Logging.Level)
		if err != nil {
			return &InitError{Component: "logging", Err: err}
		}
		app.level = new(slog.LevelVar)
		app.level.Set(level)
		app.log = logging.New(app.level, logging.Format(cfg.Logging.Format))
	}

	// 3. Metrics
	if cfg.Metrics.Enabled {
		app.registry = prometheus.NewRegistry()
		app.metrics = metrics.New(app.registry, cfg.Metrics.Namespace)
	}

	// 4. Owner goroutine
	app.owner = dispatch.NewOwner(
		dispatch.WithQueueSize(cfg.Dispatch.QueueSize),
		dispatch.WithStallWarning(cfg.Dispatch.StallWarning.Std()),
		dispatch.WithLogger(app.log),
		dispatch.WithMetrics(app.metrics),
	)
	if err := app.owner.Start(); err != nil {
		return &InitError{Component: "owner", Err: err}
	}

	app.running.Store(true)
	app.log.Debug("application started",
		"max_steps", cfg.History.MaxSteps,
		"strict", cfg.History.Strict,
		"queue_size", cfg.Dispatch.QueueSize,
	)
	return nil
}

// Open returns the document with the given name, creating it and its undo
// engine on first use.
func (app *Application) Open(name string) (*scene.Document, error) {
	if !app.running.Load() {
		return nil, ErrNotRunning
	}

	app.mu.Lock()
	defer app.mu.Unlock()

	if doc, ok := app.documents[name]; ok {
		return doc, nil
	}

	opts := []engine.Option{
		engine.WithName(name),
		engine.WithMaxSteps(app.config.History.MaxSteps),
		engine.WithStrict(app.config.History.Strict),
		engine.WithLogger(app.log),
		engine.WithMetrics(app.metrics),
	}
	for _, n := range app.notifiers {
		opts = append(opts, engine.WithNotifier(n))
	}
	eng := engine.New(app.owner, opts...)
	doc := scene.New(eng, name, scene.WithLogger(app.log))
	if err := eng.AddNotifier(context.Background(), doc); err != nil {
		return nil, NewOperationError("open", name, err)
	}
	app.documents[name] = doc
	return doc, nil
}

// Reload applies the settings of cfg that can change while running: the
// log level and the undo limit of open and future documents. Strict mode,
// dispatcher settings and metrics keep their startup values, and a
// --log-level given at startup keeps precedence.
func (app *Application) Reload(ctx context.Context, cfg *config.Config) error {
	if !app.running.Load() {
		return ErrNotRunning
	}
	if err := cfg.Validate(); err != nil {
		return NewOperationError("reload", "config", err)
	}

	app.mu.Lock()
	next := *app.config
	next.History.MaxSteps = cfg.History.MaxSteps
	if app.levelOverride == "" {
		next.Logging.Level = cfg.Logging.Level
	}
	app.config = &next
	docs := make([]*scene.Document, 0, len(app.documents))
	for _, doc := range app.documents {
		docs = append(docs, doc)
	}
	app.mu.Unlock()

	if app.level != nil {
		level, err := logging.ParseLevel(next.Logging.Level)
		if err != nil {
			return NewOperationError("reload", "logging", err)
		}
		app.level.Set(level)
	}

	var errs []error
	for _, doc := range docs {
		if err := doc.Engine().SetMaxSteps(ctx, next.History.MaxSteps); err != nil {
			errs = append(errs, NewOperationError("reload", doc.Name(), err))
		}
	}
	app.log.Info("configuration reloaded",
		"max_steps", next.History.MaxSteps,
		"log_level", next.Logging.Level,
		"documents", len(docs),
	)
	return errors.Join(errs...)
}

// Watch reloads the configuration file the application started with each
// time it changes. The caller closes the returned watcher.
func (app *Application) Watch() (*config.Watcher, error) {
	if app.configPath == "" {
		return nil, ErrNoConfigFile
	}
	return config.NewWatcher(app.configPath, func(cfg *config.Config) {
		if err := app.Reload(context.Background(), cfg); err != nil {
			app.log.Warn("config reload not applied", "err", err)
		}
	}, config.WithWatchLogger(app.log))
}

// Documents returns the names of open documents, sorted.
func (app *Application) Documents() []string {
	app.mu.RLock()
	defer app.mu.RUnlock()

	names := make([]string, 0, len(app.documents))
	for name := range app.documents {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// RunScripts runs each script file against doc on its own goroutine. A
// failing script does not stop the others; all run to completion or until
// ctx is done, and the first error is returned.
func (app *Application) RunScripts(ctx context.Context, doc *scene.Document, paths ...string) error {
	runner := script.New(doc, script.WithLogger(app.log))

	var g errgroup.Group
	for _, path := range paths {
		g.Go(func() error {
			if err := runner.RunFile(ctx, path); err != nil {
				return NewOperationError("run", path, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Shutdown stops the owner goroutine after draining queued tasks.
func (app *Application) Shutdown() error {
	if !app.running.CompareAndSwap(true, false) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()

	if err := app.owner.Stop(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrShutdownTimeout, err)
	}
	stats := app.owner.Stats()
	app.log.Debug("application stopped",
		"processed", stats.Processed,
		"failed", stats.Failed,
		"panicked", stats.Panicked,
	)
	return nil
}

// IsRunning returns true if the application is running.
func (app *Application) IsRunning() bool {
	return app.running.Load()
}

// Config returns the active configuration.
func (app *Application) Config() *config.Config {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.config
}

// Logger returns the application logger.
func (app *Application) Logger() *slog.Logger {
	return app.log
}

// Owner returns the owner dispatcher.
func (app *Application) Owner() *dispatch.Owner {
	return app.owner
}

// Registry returns the metrics registry, or nil when metrics are disabled.
func (app *Application) Registry() *prometheus.Registry {
	return app.registry
}
