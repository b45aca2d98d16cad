package plan

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher re-loads a plan file when it changes on disk, so a
// long-running process can re-solve whenever the input is edited. Like
// the config watcher, it watches the parent directory to catch editors
// that save by renaming a temp file over the original.
type Watcher struct {
	path     string
	debounce time.Duration
	onError  func(error)

	fs   *fsnotify.Watcher
	quit chan struct{}
	once sync.Once

	mu        sync.Mutex
	listeners []func(*Plan)
	running   bool
}

// WatcherOption adjusts watcher behavior at construction.
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period required after the last file event
// before a reload is attempted.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithErrorHandler installs a callback for reload failures (parse or
// validation errors in the edited file). Without one, failed reloads
// are dropped and the previous plan stays in effect.
func WithErrorHandler(fn func(error)) WatcherOption {
	return func(w *Watcher) { w.onError = fn }
}

// NewWatcher prepares a watcher for the given plan file.
func NewWatcher(planPath string, opts ...WatcherOption) (*Watcher, error) {
	if planPath == "" {
		return nil, fmt.Errorf("plan path is required for watching")
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	w := &Watcher{
		path:     filepath.Clean(planPath),
		debounce: 500 * time.Millisecond,
		fs:       fs,
		quit:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// OnChange registers a listener invoked on its own goroutine with each
// successfully reloaded plan.
func (w *Watcher) OnChange(fn func(*Plan)) {
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

	// Armed on the first relevant event, re-armed on every one after;
	// a burst of writes yields a single reload.
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
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Rename) {
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
			w.reportError(err)
		}
	}
}

func (w *Watcher) reload() {
	pl, err := Load(w.path)
	if err != nil {
		w.reportError(fmt.Errorf("failed to reload plan: %w", err))
		return
	}

	w.mu.Lock()
	listeners := append(([]func(*Plan))(nil), w.listeners...)
	w.mu.Unlock()

	for _, fn := range listeners {
		go func(fn func(*Plan)) {
			defer func() {
				if r := recover(); r != nil {
					w.reportError(fmt.Errorf("plan listener panic: %v", r))
				}
			}()
			fn(pl)
		}(fn)
	}
}

func (w *Watcher) reportError(err error) {
	if w.onError != nil {
		w.onError(err)
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

// PlanPath returns the path being watched.
func (w *Watcher) PlanPath() string { return w.path }
