package commands

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"git.home.luguber.info/inful/omnipreview/internal/cache"
	"git.home.luguber.info/inful/omnipreview/internal/config"
	"git.home.luguber.info/inful/omnipreview/internal/events"
	ferrors "git.home.luguber.info/inful/omnipreview/internal/foundation/errors"
	"git.home.luguber.info/inful/omnipreview/internal/metrics"
	"git.home.luguber.info/inful/omnipreview/internal/preview"
	"git.home.luguber.info/inful/omnipreview/internal/renderer"
	"git.home.luguber.info/inful/omnipreview/internal/renderer/builtin"
	"git.home.luguber.info/inful/omnipreview/internal/scheduler"
	"git.home.luguber.info/inful/omnipreview/internal/server"
	"git.home.luguber.info/inful/omnipreview/internal/source"
	"git.home.luguber.info/inful/omnipreview/internal/version"
)

const shutdownTimeout = 10 * time.Second

// ServeCmd implements the 'serve' command.
type ServeCmd struct {
	Paths        []string `arg:"" optional:"" type:"path" help:"Directories to watch (overrides watch.paths)."`
	Addr         string   `short:"a" help:"Listen address (overrides server.addr)."`
	Lazy         bool     `help:"Only re-render files that were previewed before."`
	NoLiveReload bool     `name:"no-live-reload" help:"Disable the live-reload event stream."`
}

func (s *ServeCmd) Run(_ *Global, root *CLI) error {
	cfg, err := root.LoadConfig()
	if err != nil {
		return err
	}
	s.applyOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	root.setupLogging(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	configPath := ""
	if configExists(root.Config) {
		configPath = root.Config
	}
	return RunServe(ctx, cfg, configPath)
}

func (s *ServeCmd) applyOverrides(cfg *config.Config) {
	if len(s.Paths) > 0 {
		cfg.Watch.Paths = s.Paths
	}
	if s.Addr != "" {
		cfg.Server.Addr = s.Addr
	}
	if s.Lazy {
		cfg.Watch.Lazy = true
	}
	if s.NoLiveReload {
		cfg.Server.LiveReload = false
	}
}

// RunServe runs the preview service until ctx is done or the HTTP server
// fails. configPath may be empty, which disables configuration reloads.
func RunServe(ctx context.Context, cfg *config.Config, configPath string) error {
	a, err := newApp(cfg, configPath)
	if err != nil {
		return err
	}
	if err := a.start(ctx); err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(err, a.stop(stopCtx))
	}

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case err, ok := <-a.server.Errors():
		if ok {
			runErr = ferrors.RuntimeError("preview server failed").WithCause(err).Build()
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.stop(stopCtx); err != nil && runErr == nil {
		runErr = err
	}
	slog.Info("Preview service stopped")
	return runErr
}

// app is the wired preview service.
type app struct {
	cfg *config.Config

	bus           *events.Bus
	store         *cache.MemoryStore
	coordinator   *preview.Coordinator
	documents     *source.DocumentTable
	watcher       *source.Watcher
	configWatcher *source.ConfigWatcher
	scheduler     *scheduler.Scheduler
	server        *server.Server
	recorder      metrics.Recorder
}

func newApp(cfg *config.Config, configPath string) (*app, error) {
	a := &app{cfg: cfg, bus: events.NewBus(), recorder: metrics.NoopRecorder{}}

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		reg := metrics.NewRegistry()
		a.recorder = metrics.NewPrometheusRecorder(reg)
		metricsHandler = metrics.HTTPHandler(reg)
	}

	store, err := cache.NewMemoryStore(
		cache.WithMaxEntries(cfg.Cache.MaxEntries),
		cache.WithBus(a.bus),
		cache.WithRecorder(a.recorder),
	)
	if err != nil {
		return nil, err
	}
	a.store = store

	renderers, err := builtin.Load(cfg.Renderers)
	if err != nil {
		return nil, err
	}
	a.coordinator = preview.New(renderer.NewRegistry(renderers...), store, preview.WithRecorder(a.recorder))
	a.documents = source.NewDocumentTable()

	if len(cfg.Watch.Paths) > 0 {
		a.watcher, err = source.NewWatcher(cfg.Watch, a.documents, a.coordinator)
		if err != nil {
			return nil, err
		}
	}
	if configPath != "" {
		a.configWatcher, err = source.NewConfigWatcher(configPath, cfg.Watch.Debounce, source.ReloadRenderers(a.coordinator, cfg))
		if err != nil {
			return nil, err
		}
	}

	a.scheduler, err = scheduler.New()
	if err != nil {
		return nil, err
	}
	if _, err := a.scheduler.ScheduleJanitor(store, cfg.Cache.MaxAge, cfg.Cache.PruneInterval, a.recorder); err != nil {
		return nil, err
	}

	a.server = server.New(server.Options{
		Addr:           cfg.Server.Addr,
		LiveReload:     cfg.Server.LiveReload,
		MetricsPath:    cfg.Metrics.Path,
		MetricsHandler: metricsHandler,
		Version:        version.Version,
	}, server.Deps{
		Previewer: a.coordinator,
		Documents: a.documents,
		Cache:     store,
		Worker:    a.coordinator.Worker(),
		Bus:       a.bus,
	})
	return a, nil
}

func (a *app) start(ctx context.Context) error {
	a.coordinator.Start()
	a.scheduler.Start()
	if err := a.server.Start(ctx); err != nil {
		return err
	}
	if a.watcher != nil {
		if err := a.watcher.Start(ctx); err != nil {
			return err
		}
	}
	if a.configWatcher != nil {
		if err := a.configWatcher.Start(ctx); err != nil {
			return err
		}
	}
	slog.Info("Preview service started",
		slog.String("addr", a.server.Addr()),
		slog.Int("renderers", len(a.cfg.Renderers)),
		slog.Bool("metrics", a.cfg.Metrics.Enabled))
	return nil
}

// stop shuts down the inputs first, then the worker, then the janitor.
func (a *app) stop(ctx context.Context) error {
	var errs []error
	if a.watcher != nil {
		errs = append(errs, a.watcher.Stop())
	}
	if a.configWatcher != nil {
		errs = append(errs, a.configWatcher.Stop())
	}
	errs = append(errs, a.server.Shutdown(ctx))
	a.coordinator.Stop()
	errs = append(errs, a.scheduler.Stop())
	a.bus.Close()
	return errors.Join(errs...)
}
