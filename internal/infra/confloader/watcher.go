package confloader

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/fsnotify/fsnotify"
)

// DefaultSettle is how long a file must stay quiet before handlers run.
const DefaultSettle = 250 * time.Millisecond

// Watcher calls its handlers when one config file changes. The parent
// directory is watched so editors that replace the file by rename are
// seen. Bursts of events collapse into one call once the file settles.
type Watcher struct {
	fs     *fsnotify.Watcher
	path   string
	settle time.Duration
	clock  clock.Clock
	logger *slog.Logger

	mu       sync.Mutex
	handlers []func(path string)
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the logger.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithSettle sets the quiet period. Zero calls handlers on every event.
func WithSettle(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.settle = d }
}

// WithClock replaces the clock used for the quiet period.
func WithClock(c clock.Clock) WatcherOption {
	return func(w *Watcher) { w.clock = c }
}

// NewWatcher starts watching the directory of path.
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fs:     fw,
		path:   filepath.Clean(path),
		settle: DefaultSettle,
		clock:  clock.New(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// OnChange registers a handler. Handlers run on the Run goroutine.
func (w *Watcher) OnChange(fn func(path string)) {
	w.mu.Lock()
	w.handlers = append(w.handlers, fn)
	w.mu.Unlock()
}

// Run delivers changes until ctx is done, then releases the watch.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()
	w.logger.Info("watching config file", "file", w.path)

	var settled <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			w.logger.Debug("config file event", "op", ev.Op.String())
			if w.settle <= 0 {
				w.fire()
				continue
			}
			settled = w.clock.After(w.settle)
		case <-settled:
			settled = nil
			w.fire()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watch error", "error", err)
		}
	}
}

func (w *Watcher) fire() {
	w.mu.Lock()
	handlers := append([]func(string){}, w.handlers...)
	w.mu.Unlock()
	for _, fn := range handlers {
		fn(w.path)
	}
}
