package hotreload

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/loquat-fw/loquat/internal/errutil"
)

// Target is a single hot-reloadable artifact: an already-loaded Plugin or
// Adapter, identified by the file it was loaded from.
type Target interface {
	Name() string
	Path() string
	Reload(ctx context.Context) error
}

// Config controls a Watcher's polling cadence and retry policy.
type Config struct {
	// Interval is how often the watcher polls every Target's mtime.
	Interval time.Duration
	// RetryAttempts is the total number of Reload attempts, including the
	// first, before the reload is recorded as a terminal failure.
	RetryAttempts int
	// RetryBackoff is the base linear backoff between attempts: attempt
	// N waits RetryBackoff * N before retrying.
	RetryBackoff time.Duration
	// HistoryCapacity bounds the number of retained reload Entries per
	// component.
	HistoryCapacity int
	// LRUCapacity bounds how many distinct artifact paths are tracked.
	LRUCapacity int
}

// DefaultConfig returns the default polling cadence for the given
// component family ("plugins" polls every 5s, anything else every 10s).
func DefaultConfig(component string) Config {
	interval := 10 * time.Second
	if component == "plugins" {
		interval = 5 * time.Second
	}
	return Config{
		Interval:        interval,
		RetryAttempts:   3,
		RetryBackoff:    100 * time.Millisecond,
		HistoryCapacity: 100,
		LRUCapacity:     1000,
	}
}

// Watcher polls a set of Targets for on-disk modification and reloads any
// that changed, retrying transient failures with linear backoff. An
// fsnotify watch on each Target's directory supplements the poll with an
// early wake, but the poll ticker remains the source of truth — fsnotify
// events never bypass the mtime check.
type Watcher struct {
	component string
	cfg       Config
	lru       *LRUTracker
	history   *History
	logger    *slog.Logger

	targets func() []Target
	sink    func(Entry)
}

// NewWatcher constructs a Watcher for the given component family. targets
// is called on every tick to obtain the current set of loaded artifacts,
// since Plugins/Adapters may be added or removed between ticks.
func NewWatcher(component string, cfg Config, logger *slog.Logger, targets func() []Target) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		component: component,
		cfg:       cfg,
		lru:       NewLRUTracker(cfg.LRUCapacity),
		history:   NewHistory(cfg.HistoryCapacity),
		logger:    logger.With("component", "HotReloadWatcher", "family", component),
		targets:   targets,
	}
}

// History returns the Watcher's capped reload history.
func (w *Watcher) History() *History { return w.history }

// Run polls until ctx is cancelled. A best-effort fsnotify watch is
// installed on each Target's directory to trigger an out-of-cycle check;
// fsnotify setup failures are logged and otherwise ignored since the poll
// ticker alone is sufficient for correctness.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	fsw, err := fsnotify.NewWatcher()
	var fsEvents <-chan fsnotify.Event
	if err != nil {
		w.logger.Warn("fsnotify unavailable, falling back to polling only", "error", err)
	} else {
		defer fsw.Close()
		fsEvents = fsw.Events
		w.watchDirs(fsw)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.checkAll(ctx)
		case ev, ok := <-fsEvents:
			if !ok {
				fsEvents = nil
				continue
			}
			w.logger.Debug("fsnotify event, triggering early check", "path", ev.Name, "op", ev.Op.String())
			w.checkAll(ctx)
		}
	}
}

// ReloadAll forces every current Target through the retry-with-backoff
// reload path immediately, bypassing the mtime comparison. This backs the
// HTTP surface's manual "POST /api/.../reload" operations.
func (w *Watcher) ReloadAll(ctx context.Context) {
	for _, t := range w.targets() {
		w.reloadWithRetry(ctx, t)
	}
}

func (w *Watcher) watchDirs(fsw *fsnotify.Watcher) {
	seen := make(map[string]bool)
	for _, t := range w.targets() {
		dir := dirOf(t.Path())
		if seen[dir] {
			continue
		}
		seen[dir] = true
		if err := fsw.Add(dir); err != nil {
			w.logger.Debug("fsnotify add failed", "dir", dir, "error", err)
		}
	}
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}

func (w *Watcher) checkAll(ctx context.Context) {
	for _, t := range w.targets() {
		info, err := os.Stat(t.Path())
		if err != nil {
			w.logger.Warn("stat failed during hot-reload poll", "name", t.Name(), "path", t.Path(), "error", err)
			continue
		}
		if !w.lru.Observe(t.Path(), info.ModTime()) {
			continue
		}
		w.reloadWithRetry(ctx, t)
	}
}

// SetSink installs fn to be called with every Entry recorded to History,
// immediately after it is recorded — the write-through hook a
// historystore.Store attaches itself to for durable audit logging.
func (w *Watcher) SetSink(fn func(Entry)) {
	w.sink = fn
}

func (w *Watcher) record(e Entry) {
	w.history.Record(e)
	if w.sink != nil {
		w.sink(e)
	}
}

func (w *Watcher) reloadWithRetry(ctx context.Context, t Target) {
	attempts := 0
	err := errutil.RetryWithBackoff(ctx, errutil.RetryConfig{Attempts: w.cfg.RetryAttempts, Backoff: w.cfg.RetryBackoff}, func() error {
		attempts++
		err := t.Reload(ctx)
		if err != nil {
			w.logger.Warn("hot-reload attempt failed", "name", t.Name(), "attempt", attempts, "error", err)
		}
		return err
	})

	if err == nil {
		w.record(Entry{Component: t.Name(), Path: t.Path(), Attempts: attempts, Success: true, At: now()})
		w.logger.Info("hot-reload succeeded", "name", t.Name(), "attempt", attempts)
		return
	}
	if ctx.Err() != nil {
		// Aborted by context cancellation between attempts, not a genuine
		// exhausted-retries failure; nothing to record.
		return
	}

	w.record(Entry{
		Component: t.Name(),
		Path:      t.Path(),
		Attempts:  attempts,
		Success:   false,
		Error:     err.Error(),
		At:        now(),
	})
	w.logger.Error("hot-reload exhausted retries", "name", t.Name(), "error", err)
}

// now is indirected so tests can pin deterministic History timestamps.
var now = time.Now
