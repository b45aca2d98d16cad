package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ganttforge/ganttforge/pkg/logger"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher reloads the config file when it changes on disk and fans the
// new Config out to registered listeners. The parent directory is
// watched rather than the file itself, so editors that save by writing
// a temp file and renaming it over the original are not missed.
type Watcher struct {
	path     string
	loader   *Loader
	debounce time.Duration

	fs   *fsnotify.Watcher
	quit chan struct{}
	once sync.Once

	mu        sync.Mutex
	listeners []func(*Config)
	running   bool
}

// WatcherOption adjusts watcher behavior at construction.
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period required after the last file
// event before a reload is attempted.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// NewWatcher prepares a watcher for the given config file. Watch must
// be called to start it.
func NewWatcher(configPath string, loader *Loader, opts ...WatcherOption) (*Watcher, error) {
	if configPath == "" {
		return nil, fmt.Errorf("config path is required for watching")
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	w := &Watcher{
		path:     filepath.Clean(configPath),
		loader:   loader,
		debounce: defaultDebounce,
		fs:       fs,
		quit:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// OnChange registers a listener invoked on its own goroutine after each
// successful reload.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}

// Watch blocks, reloading on file changes, until ctx is cancelled or
// Stop is called.
func (w *Watcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher is already running")
	}
	w.running = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	dir := filepath.Dir(w.path)
	if err := w.fs.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	// quiet is armed on the first relevant event and re-armed on every
	// one after it, so a burst of writes yields a single reload.
	quiet := time.NewTimer(time.Hour)
	if !quiet.Stop() {
		<-quiet.C
	}
	defer quiet.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.quit:
			return nil
		case <-quiet.C:
			w.reload()
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			if !quiet.Stop() {
				select {
				case <-quiet.C:
				default:
				}
			}
			quiet.Reset(w.debounce)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", "error", err)
		}
	}
}

// relevant filters directory events down to ones touching our file.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.path {
		return false
	}
	return ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Rename)
}

func (w *Watcher) reload() {
	cfg, err := w.loader.Load(w.path, nil)
	if err != nil {
		logger.Error("config reload failed", "path", w.path, "error", err)
		return
	}

	w.mu.Lock()
	listeners := append(([]func(*Config))(nil), w.listeners...)
	w.mu.Unlock()

	for _, fn := range listeners {
		go func(fn func(*Config)) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("config listener panic", "panic", r)
				}
			}()
			fn(cfg)
		}(fn)
	}
}

// Stop terminates Watch and releases the underlying fsnotify watcher.
func (w *Watcher) Stop() error {
	var err error
	w.once.Do(func() {
		close(w.quit)
		err = w.fs.Close()
	})
	return err
}

// IsRunning reports whether Watch is currently active.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// ConfigPath returns the path being watched.
func (w *Watcher) ConfigPath() string { return w.path }

// HotReloadableConfig is the subset of settings that take effect
// without restarting the process.
type HotReloadableConfig struct {
	LogLevel       string
	LogFormat      string
	SolverRestarts int
	SolverSeed     int64
	RenderFormat   string
}

// ExtractHotReloadable pulls the hot-reloadable subset out of cfg.
func ExtractHotReloadable(cfg *Config) HotReloadableConfig {
	return HotReloadableConfig{
		LogLevel:       cfg.Log.Level,
		LogFormat:      cfg.Log.Format,
		SolverRestarts: cfg.Solver.Restarts,
		SolverSeed:     cfg.Solver.Seed,
		RenderFormat:   cfg.Render.Format,
	}
}

// Changed reports whether any hot-reloadable value differs.
func (h HotReloadableConfig) Changed(other HotReloadableConfig) bool {
	return h != other
}
