// Package watch keeps a workspace's derived state current. A watcher is a
// long-running process that subscribes to filesystem events on the log
// directory and, after each debounced burst of log appends, rebuilds the
// sqlite cache, re-renders the board, and re-exports the drift gauge.
//
// One watcher runs per workspace, enforced with a kernel flock so a crashed
// watcher never leaves a stale guard behind.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/daviddao/worklog/pkg/config"
	"github.com/daviddao/worklog/pkg/coord"
	"github.com/daviddao/worklog/pkg/lockfile"
	"github.com/daviddao/worklog/pkg/metrics"
)

// DefaultDebounce is how long a burst of log writes must settle before the
// derived state is refreshed.
const DefaultDebounce = 500 * time.Millisecond

// Options tunes a watcher. The zero value watches with defaults and no
// metrics endpoint.
type Options struct {
	Logger   *slog.Logger        // nil uses slog.Default
	Gatherer prometheus.Gatherer // serves /metrics when set together with cfg.MetricsAddr
	Debounce time.Duration       // 0 selects DefaultDebounce
}

// Watcher refreshes one workspace's derived surfaces on log changes.
type Watcher struct {
	cfg      config.Config
	coord    *coord.Coordinator
	log      *slog.Logger
	gatherer prometheus.Gatherer
	debounce time.Duration
}

// New builds a watcher over an existing coordinator.
func New(cfg config.Config, c *coord.Coordinator, opts Options) *Watcher {
	w := &Watcher{
		cfg:      cfg,
		coord:    c,
		log:      opts.Logger,
		gatherer: opts.Gatherer,
		debounce: opts.Debounce,
	}
	if w.log == nil {
		w.log = slog.Default()
	}
	w.log = w.log.With("component", "watch")
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}
	return w
}

// Run blocks until ctx is done. It takes the single-instance guard (failing
// fast with lockfile.ErrGuardHeld when another watcher owns the workspace),
// refreshes once so a cold start serves current state, then follows the
// log. Filesystem errors are logged and the loop keeps going; only a dead
// event stream or ctx ends it.
func (w *Watcher) Run(ctx context.Context) error {
	guard, err := lockfile.AcquireFlock(w.cfg.WatchLock)
	if err != nil {
		return err
	}
	defer guard.Release()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()
	logDir := filepath.Dir(w.cfg.LogPath)
	if err := fsw.Add(logDir); err != nil {
		return fmt.Errorf("watch %s: %w", logDir, err)
	}

	if w.cfg.MetricsAddr != "" && w.gatherer != nil {
		shutdown, err := w.serveMetrics()
		if err != nil {
			return err
		}
		defer shutdown()
	}

	w.log.Info("watching", "log", w.cfg.LogPath, "debounce", w.debounce)
	w.refresh(ctx)

	var settled <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.isLogEvent(ev) {
				continue
			}
			settled = time.After(w.debounce)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Error("filesystem watch error", "err", err)
		case <-settled:
			settled = nil
			w.refresh(ctx)
		}
	}
}

// isLogEvent reports whether ev is a change to the event log itself. The
// log directory also holds the lock file, the sqlite cache, and commit
// temporaries; reacting to those would make the watcher refresh on its own
// writes.
func (w *Watcher) isLogEvent(ev fsnotify.Event) bool {
	if filepath.Base(ev.Name) != filepath.Base(w.cfg.LogPath) {
		return false
	}
	return ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Rename)
}

// refresh rebuilds the cache, re-renders the board, and re-exports the
// drift gauge. The surfaces are independent, so a failure in one is logged
// and the rest still refresh; the next log change retries everything.
func (w *Watcher) refresh(ctx context.Context) {
	start := time.Now()
	if err := w.coord.RefreshIndex(ctx); err != nil {
		w.log.Error("index rebuild failed", "err", err)
	}
	if err := w.coord.RefreshViews(ctx); err != nil {
		w.log.Error("view render failed", "err", err)
	}
	rep, err := w.coord.ValidateSync(ctx)
	if err != nil {
		w.log.Error("drift check failed", "err", err)
		return
	}
	if !rep.InSync() {
		w.log.Warn("derived state drifted", "entries", len(rep.Entries))
	}
	w.log.Info("refreshed", "units", rep.Units, "elapsed", time.Since(start))
}

// serveMetrics binds the metrics listener and serves /metrics until the
// returned shutdown function runs. Binding happens here, synchronously, so
// an occupied address fails Run instead of a background goroutine.
func (w *Watcher) serveMetrics() (func(), error) {
	ln, err := net.Listen("tcp", w.cfg.MetricsAddr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(w.gatherer))
	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			w.log.Error("metrics endpoint failed", "addr", w.cfg.MetricsAddr, "err", err)
		}
	}()
	w.log.Info("metrics endpoint up", "addr", ln.Addr().String())
	return func() {
		shctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shctx)
	}, nil
}
