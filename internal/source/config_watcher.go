package source

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/omnipreview/internal/config"
	ferrors "git.home.luguber.info/inful/omnipreview/internal/foundation/errors"
	"git.home.luguber.info/inful/omnipreview/internal/logfields"
	"git.home.luguber.info/inful/omnipreview/internal/renderer"
	"git.home.luguber.info/inful/omnipreview/internal/renderer/builtin"
)

// ApplyFunc receives each successfully loaded configuration.
type ApplyFunc func(cfg *config.Config) error

// Reloader swaps the active renderer list.
type Reloader interface {
	Reload(renderers []renderer.Renderer)
}

// ReloadRenderers returns an ApplyFunc that rebuilds the renderers of r from
// the configuration. A configuration whose renderer section did not change
// is skipped.
func ReloadRenderers(r Reloader, current *config.Config) ApplyFunc {
	var mu sync.Mutex
	last := current.RendererSnapshot()
	return func(cfg *config.Config) error {
		mu.Lock()
		defer mu.Unlock()

		snap := cfg.RendererSnapshot()
		if snap == last {
			slog.Debug("Renderer configuration unchanged")
			return nil
		}
		renderers, err := builtin.Load(cfg.Renderers)
		if err != nil {
			return err
		}
		r.Reload(renderers)
		last = snap
		return nil
	}
}

// ConfigWatcher reloads the configuration file when it changes.
type ConfigWatcher struct {
	configPath string
	apply      ApplyFunc
	debounce   time.Duration

	watcher *fsnotify.Watcher
	trigger chan struct{}
	stop    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

func NewConfigWatcher(configPath string, debounce time.Duration, apply ApplyFunc) (*ConfigWatcher, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, ferrors.FileSystemError("failed to resolve config path").WithCause(err).Build()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, ferrors.FileSystemError("failed to create file watcher").WithCause(err).Build()
	}
	return &ConfigWatcher{
		configPath: absPath,
		apply:      apply,
		debounce:   debounce,
		watcher:    watcher,
		trigger:    make(chan struct{}, 1),
		stop:       make(chan struct{}),
	}, nil
}

// Start watches the directory of the config file; editors often replace the
// file instead of writing it in place.
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	dir := filepath.Dir(cw.configPath)
	if err := cw.watcher.Add(dir); err != nil {
		return ferrors.FileSystemError("failed to watch config directory").WithCause(err).WithContext("path", dir).Build()
	}
	slog.Info("Watching configuration", logfields.Path(cw.configPath))

	cw.wg.Add(2)
	go cw.watchLoop(ctx)
	go cw.reloadLoop(ctx)
	return nil
}

// Stop ends both loops and waits for them.
func (cw *ConfigWatcher) Stop() error {
	var err error
	cw.once.Do(func() {
		close(cw.stop)
		err = cw.watcher.Close()
	})
	cw.wg.Wait()
	return err
}

func (cw *ConfigWatcher) watchLoop(ctx context.Context) {
	defer cw.wg.Done()
	name := filepath.Base(cw.configPath)

	for {
		select {
		case <-ctx.Done():
			return
		case <-cw.stop:
			return
		case ev, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if ev.Op.Has(fsnotify.Remove) {
				slog.Warn("Config file removed", logfields.Path(ev.Name))
				continue
			}
			if ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Rename) {
				select {
				case cw.trigger <- struct{}{}:
				default:
				}
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Config watcher error", logfields.Error(err))
		}
	}
}

// reloadLoop applies the configuration once changes have been quiet for the
// debounce interval.
func (cw *ConfigWatcher) reloadLoop(ctx context.Context) {
	defer cw.wg.Done()
	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
		}
	}

	for {
		select {
		case <-ctx.Done():
			stopTimer()
			return
		case <-cw.stop:
			stopTimer()
			return
		case <-cw.trigger:
			stopTimer()
			timer = time.NewTimer(cw.debounce)
			timerC = timer.C
		case <-timerC:
			timer, timerC = nil, nil
			cw.reload()
		}
	}
}

func (cw *ConfigWatcher) reload() {
	cfg, err := config.Load(cw.configPath)
	if err != nil {
		slog.Error("Configuration reload failed, keeping previous configuration", logfields.Path(cw.configPath), logfields.Error(err))
		return
	}
	if err := cw.apply(cfg); err != nil {
		slog.Error("Failed to apply configuration", logfields.Error(err))
		return
	}
	slog.Info("Configuration reloaded", logfields.Path(cw.configPath))
}
