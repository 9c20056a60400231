package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDelay is how long the watcher waits after the last change
// before reloading. Editors often write a file in several steps.
const DefaultReloadDelay = 100 * time.Millisecond

// Watcher reloads a configuration file when it changes and hands every
// valid result to a callback. Invalid files are logged and skipped, so the
// last good configuration stays in effect.
type Watcher struct {
	mu sync.Mutex

	path   string
	delay  time.Duration
	log    *slog.Logger
	onLoad func(*Config)

	fsw *fsnotify.Watcher

	reloads  atomic.Int64
	failures atomic.Int64

	// Lifecycle
	closed   bool
	closeCh  chan struct{}
	closedWg sync.WaitGroup
}

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithReloadDelay sets the debounce delay.
func WithReloadDelay(d time.Duration) WatchOption {
	return func(w *Watcher) {
		if d > 0 {
			w.delay = d
		}
	}
}

// WithWatchLogger sets the logger.
func WithWatchLogger(log *slog.Logger) WatchOption {
	return func(w *Watcher) {
		if log != nil {
			w.log = log
		}
	}
}

// WatchStats reports watcher activity.
type WatchStats struct {
	Reloads  int64
	Failures int64
}

// NewWatcher starts watching the configuration file at path. onLoad runs on
// the watcher's goroutine with each configuration that loads and validates.
func NewWatcher(path string, onLoad func(*Config), opts ...WatchOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("watch config: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("watch config: %w", err)
	}

	w := &Watcher{
		path:    abs,
		delay:   DefaultReloadDelay,
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		onLoad:  onLoad,
		closeCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.With("component", "config", "path", abs)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch config: %w", err)
	}
	// Watch the directory: saving by rename replaces the file and would
	// drop a watch on the file itself.
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch config: %w", err)
	}
	w.fsw = fsw

	w.closedWg.Add(1)
	go w.loop()
	return w, nil
}

// Path returns the absolute path of the watched file.
func (w *Watcher) Path() string {
	return w.path
}

// Stats returns watcher statistics.
func (w *Watcher) Stats() WatchStats {
	return WatchStats{
		Reloads:  w.reloads.Load(),
		Failures: w.failures.Load(),
	}
}

func (w *Watcher) loop() {
	defer w.closedWg.Done()

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.delay)
			} else {
				timer.Reset(w.delay)
			}
			fire = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.failures.Add(1)
			w.log.Warn("config watch error", "err", err)

		case <-fire:
			fire = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.failures.Add(1)
		w.log.Warn("config reload failed, keeping previous", "err", err)
		return
	}
	w.reloads.Add(1)
	w.log.Info("config reloaded")
	w.onLoad(cfg)
}

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	w.mu.Unlock()

	err := w.fsw.Close()
	w.closedWg.Wait()
	return err
}
