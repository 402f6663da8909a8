// /servicehost/pkg/host.go
package servicehost

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/goletan/servicehost/internal/api"
	"github.com/goletan/servicehost/internal/assets"
	"github.com/goletan/servicehost/internal/binder/process"
	"github.com/goletan/servicehost/internal/config"
	"github.com/goletan/servicehost/internal/dbtransfer"
	"github.com/goletan/servicehost/internal/discovery"
	"github.com/goletan/servicehost/internal/discovery/strategies"
	"github.com/goletan/servicehost/internal/lifecycle"
	"github.com/goletan/servicehost/internal/logger"
	"github.com/goletan/servicehost/internal/metrics"
	"github.com/goletan/servicehost/internal/prefs"
	"github.com/goletan/servicehost/internal/registry"
	"github.com/goletan/servicehost/internal/seed"
	"github.com/goletan/servicehost/internal/serverconfig"
	"github.com/goletan/servicehost/internal/telemetry"
	"github.com/goletan/servicehost/shared/types"
	"go.uber.org/zap"
)

const serviceName = "servicehost"

// Host wires the hosted services together with the seeder, the config
// editor, the database transfer and the control API.
type Host struct {
	Registry *registry.Registry
	Metrics  *metrics.HostMetrics
	Prefs    prefs.Store
	Seeder   *seed.Seeder
	Editor   *serverconfig.Editor
	Database *dbtransfer.Transfer

	cfg     *config.Config
	logger  *zap.Logger
	binder  types.Binder
	api     *api.Server
	version string

	ownsLogger      bool
	shutdownTracing func(context.Context) error
}

// Option customizes New.
type Option func(*Host)

// WithBinder replaces the process binder.
func WithBinder(b types.Binder) Option {
	return func(h *Host) { h.binder = b }
}

// WithLogger uses log instead of building one from the configuration.
func WithLogger(log *zap.Logger) Option {
	return func(h *Host) { h.logger = log }
}

// WithPrefs uses store for the first-run flag instead of opening badger.
func WithPrefs(store prefs.Store) Option {
	return func(h *Host) { h.Prefs = store }
}

// WithVersion sets the version reported by the API and tracing.
func WithVersion(v string) Option {
	return func(h *Host) { h.version = v }
}

// New assembles a host from cfg. Nothing is bound until Run.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Host, error) {
	h := &Host{cfg: cfg, version: "dev"}
	for _, opt := range opts {
		opt(h)
	}

	if h.logger == nil {
		log, err := logger.New(cfg.Logging)
		if err != nil {
			return nil, err
		}
		h.logger = log
		h.ownsLogger = true
	}

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry, serviceName, h.version)
	if err != nil {
		return nil, err
	}
	h.shutdownTracing = shutdown

	if cfg.Metrics.Enabled {
		h.Metrics = metrics.InitMetrics()
	}

	if h.Prefs == nil {
		store, err := prefs.OpenBadger(cfg.Prefs.Path, cfg.Prefs.InMemory, h.logger)
		if err != nil {
			_ = h.shutdownTracing(ctx)
			return nil, err
		}
		h.Prefs = store
	}

	if h.binder == nil {
		resolver := discovery.NewCompositeDiscovery(h.logger,
			strategies.NewStaticStrategy(),
			strategies.NewDNSDiscovery(h.logger, net.DefaultResolver.LookupSRV),
		)
		h.binder = process.NewBinder(resolver, h.logger)
	}

	h.Registry = registry.NewRegistry(h.logger)
	for _, desc := range cfg.Services {
		c := lifecycle.New(desc, h.binder, h.logger, h.Metrics)
		c.OnTransition(h.logTransition)
		if err := h.Registry.Register(c); err != nil {
			_ = h.Close(ctx)
			return nil, err
		}
	}

	h.Seeder = seed.NewSeeder(assets.FS, cfg.Seed.Template, cfg.Seed.Target, h.Prefs, h.logger)
	h.Editor = serverconfig.NewEditor(cfg.Seed.Target, h.logger)

	owner, err := h.Registry.Get(cfg.Database.Service)
	if err != nil {
		_ = h.Close(ctx)
		return nil, err
	}
	h.Database = dbtransfer.New(cfg.Database.Path, owner, h.logger)

	if cfg.API.Enabled {
		deps := api.Deps{
			Services: h.Registry,
			Config:   h.Editor,
			Database: h.Database,
			Version:  h.version,
		}
		if h.Metrics != nil {
			deps.Metrics = h.Metrics.Handler()
		}
		h.api = api.NewServer(cfg.API, api.NewRouter(deps, h.logger), h.logger)
	}

	return h, nil
}

// Logger returns the host logger.
func (h *Host) Logger() *zap.Logger {
	return h.logger
}

// API returns the control API server, or nil when disabled.
func (h *Host) API() *api.Server {
	return h.api
}

// Run drives the host lifecycle: create (seed the configuration), start
// every service, serve until ctx ends, then stop and destroy. A signal on
// rebind releases and re-acquires every binding. Bind failures are logged
// and left for the operator to retry; they do not end Run.
func (h *Host) Run(ctx context.Context, rebind <-chan struct{}) error {
	if err := h.Registry.Dispatch(ctx, lifecycle.EventCreate); err != nil {
		return err
	}
	if _, err := h.Seeder.SeedIfFirstRun(ctx); err != nil {
		return err
	}
	h.loadEditor()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if changes, err := h.Editor.Watch(runCtx); err != nil {
		h.logger.Warn("Not watching server configuration", zap.Error(err))
	} else {
		go h.reloadOnChange(changes)
	}

	// apiErr stays nil without an API; receiving from it blocks forever.
	var apiErr chan error
	if h.api != nil {
		apiErr = make(chan error, 1)
		go func() { apiErr <- h.api.Start(runCtx) }()
	}

	if err := h.Registry.StartAll(ctx); err != nil {
		h.logger.Warn("Not every service is bound", zap.Error(err))
	}

	var errs []error
loop:
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Host stopping")
			break loop
		case <-rebind:
			h.logger.Info("Rebinding services")
			if err := h.Registry.StopAll(ctx); err != nil {
				h.logger.Warn("Release before rebind failed", zap.Error(err))
			}
			if err := h.Registry.StartAll(ctx); err != nil {
				h.logger.Warn("Not every service is bound", zap.Error(err))
			}
		case err := <-apiErr:
			if err != nil {
				errs = append(errs, err)
			}
			apiErr = nil
			break loop
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), h.cfg.ShutdownTimeout)
	defer stopCancel()

	if err := h.Registry.StopAll(stopCtx); err != nil {
		errs = append(errs, err)
	}
	if err := h.Registry.ShutdownAll(stopCtx); err != nil {
		errs = append(errs, err)
	}

	cancel()
	if apiErr != nil {
		if err := <-apiErr; err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Seed runs only the first-run step.
func (h *Host) Seed(ctx context.Context) (bool, error) {
	return h.Seeder.SeedIfFirstRun(ctx)
}

// Close releases the flag store, flushes traces and syncs the logger.
func (h *Host) Close(ctx context.Context) error {
	var errs []error
	if h.Prefs != nil {
		if err := h.Prefs.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close prefs: %w", err))
		}
	}
	if h.shutdownTracing != nil {
		if err := h.shutdownTracing(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to flush traces: %w", err))
		}
	}
	if h.ownsLogger {
		_ = h.logger.Sync()
	}
	return errors.Join(errs...)
}

func (h *Host) loadEditor() {
	if err := h.Editor.Load(); err != nil {
		h.logger.Warn("Server configuration unavailable; recreate it from the config editor",
			zap.String("path", h.Editor.Path()), zap.Error(err))
	}
}

func (h *Host) reloadOnChange(changes <-chan struct{}) {
	for range changes {
		h.logger.Info("Server configuration changed on disk", zap.String("path", h.Editor.Path()))
		h.loadEditor()
	}
}

func (h *Host) logTransition(t lifecycle.Transition) {
	fields := []zap.Field{
		zap.String("service", t.Service),
		zap.Stringer("from", t.From),
		zap.Stringer("to", t.To),
		zap.Time("at", t.At.Truncate(time.Millisecond)),
	}
	if t.Err != nil {
		fields = append(fields, zap.Error(t.Err))
	}
	h.logger.Info("Service state changed", fields...)
}
