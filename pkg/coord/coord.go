// Package coord is the library surface over the event log: every lifecycle
// operation a caller can take on a work unit, each one executed as a single
// transaction that appends events and rewrites the derived surfaces (board,
// unit document, completion marker) in the same commit.
//
// The coordinator owns no state of its own. Work units are projected from
// the log on demand, sessions are recovered from claim events, and the
// sqlite cache is an optimization the coordinator rebuilds whenever the log
// outgrows its freshness stamp.
package coord

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/daviddao/worklog/pkg/config"
	"github.com/daviddao/worklog/pkg/eventlog"
	"github.com/daviddao/worklog/pkg/index"
	"github.com/daviddao/worklog/pkg/lockfile"
	"github.com/daviddao/worklog/pkg/metrics"
	"github.com/daviddao/worklog/pkg/model"
	"github.com/daviddao/worklog/pkg/txn"
	"github.com/daviddao/worklog/pkg/vcs"
	"github.com/daviddao/worklog/pkg/view"
)

var (
	// ErrNotClaimant rejects a completion from a session that does not hold
	// the unit's claim. Force, with a reason, overrides it.
	ErrNotClaimant = errors.New("work unit is claimed by another session")

	// ErrForceRequired guards reopen: done is terminal unless the caller
	// forces the unit back out of it.
	ErrForceRequired = errors.New("force required")
)

// Options overrides the coordinator's collaborators. Every nil field gets a
// default derived from the configuration, so production callers pass the
// zero value and tests substitute fakes.
type Options struct {
	Store   eventlog.Store
	Locker  lockfile.Locker
	VCS     vcs.VCS
	Metrics *metrics.Collector
	Now     func() time.Time
}

// Coordinator executes work-unit operations against one workspace.
type Coordinator struct {
	cfg    config.Config
	store  eventlog.Store
	locker lockfile.Locker
	vcs    vcs.VCS
	m      *metrics.Collector
	now    func() time.Time

	ixOnce sync.Once
	ix     *index.Index
	ixErr  error
}

// New builds a coordinator for the workspace described by cfg.
func New(cfg config.Config, opts Options) *Coordinator {
	c := &Coordinator{
		cfg:    cfg,
		store:  opts.Store,
		locker: opts.Locker,
		vcs:    opts.VCS,
		m:      opts.Metrics,
		now:    opts.Now,
	}
	if c.store == nil {
		c.store = eventlog.New(cfg.LogPath)
	}
	if c.locker == nil {
		lc := cfg.LockConfig()
		if c.m != nil {
			lc.OnStaleReclaim = func(lockfile.Owner) { c.m.RecordStaleReclaim() }
		}
		c.locker = lockfile.New(c.store.LockPath(), lc)
	}
	if c.m != nil {
		c.locker = &measuredLocker{inner: c.locker, m: c.m}
	}
	if c.vcs == nil {
		c.vcs = vcs.NewGit(cfg.Root)
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Close releases the query cache handle, if one was opened.
func (c *Coordinator) Close() error {
	if c.ix != nil {
		return c.ix.Close()
	}
	return nil
}

// cache opens the sqlite index once and reuses the handle. The open error
// is latched: a workspace without a metadata directory keeps reporting it.
func (c *Coordinator) cache() (*index.Index, error) {
	c.ixOnce.Do(func() {
		c.ix, c.ixErr = index.New(c.cfg.IndexPath)
	})
	return c.ix, c.ixErr
}

// GetState returns the projected state of one work unit.
func (c *Coordinator) GetState(ctx context.Context, id string) (*model.WorkUnit, error) {
	proj, err := c.store.Load()
	if err != nil {
		return nil, err
	}
	wu := proj.Get(id)
	if wu == nil {
		return nil, fmt.Errorf("work unit %s: %w", id, eventlog.ErrNotFound)
	}
	return wu, nil
}

// Projection replays the whole log into a snapshot of every unit.
func (c *Coordinator) Projection(ctx context.Context) (model.Projection, error) {
	return c.store.Load()
}

// Units lists every work unit in id order. A fresh index answers directly;
// a stale or unopenable one falls back to a full replay, rebuilding the
// index in passing when it can. The log stays the source of truth either
// way.
func (c *Coordinator) Units(ctx context.Context) ([]model.WorkUnit, error) {
	size, serr := c.store.Size()
	if serr == nil {
		if ix, err := c.cache(); err == nil {
			if fresh, err := ix.Fresh(size); err == nil && fresh {
				return ix.List()
			}
		}
	}
	proj, err := c.store.Load()
	if err != nil {
		return nil, err
	}
	if serr == nil {
		if ix, err := c.cache(); err == nil && ix.Rebuild(proj, size) == nil {
			c.m.RecordRebuild()
		}
	}
	units := proj.Units()
	out := make([]model.WorkUnit, 0, len(units))
	for _, wu := range units {
		out = append(out, *wu)
	}
	return out, nil
}

// ActiveSessions recovers the live claim contexts from the projection.
// There is no session registry: a session is active exactly while some unit
// carries its claim.
func (c *Coordinator) ActiveSessions(ctx context.Context) ([]model.Session, error) {
	proj, err := c.store.Load()
	if err != nil {
		return nil, err
	}
	var out []model.Session
	for _, wu := range proj.Units() {
		if !wu.Locked {
			continue
		}
		out = append(out, model.Session{
			ID:        wu.ClaimedBy,
			WUID:      wu.ID,
			PID:       wu.ClaimedPID,
			State:     model.SessionActive,
			Lane:      wu.Lane,
			StartedAt: wu.ClaimedAt,
		})
	}
	return out, nil
}

// begin opens a transaction against the workspace.
func (c *Coordinator) begin() *txn.Tx {
	return txn.Begin(c.cfg.Root, c.locker, c.store)
}

// commit finishes a transaction and records the outcome. types enumerates
// the event types the transaction appended, for the per-type counter.
func (c *Coordinator) commit(ctx context.Context, tx *txn.Tx, types ...model.EventType) error {
	if err := tx.Commit(ctx); err != nil {
		c.m.RecordAbort()
		return err
	}
	c.m.RecordCommit()
	for _, typ := range types {
		c.m.RecordEvent(typ)
	}
	return nil
}

// renderBoard adapts the board renderer to the transaction's view contract.
func renderBoard(p model.Projection) ([]byte, error) {
	return view.Render(p), nil
}

// measuredLocker wraps a Locker to time acquisitions for the collector.
// An acquisition that times out against a live holder counts as contention.
type measuredLocker struct {
	inner lockfile.Locker
	m     *metrics.Collector
}

func (l *measuredLocker) Acquire(ctx context.Context) error {
	start := time.Now()
	err := l.inner.Acquire(ctx)
	if err != nil {
		var le *lockfile.LockError
		if errors.As(err, &le) {
			l.m.RecordLockContention()
		}
		return err
	}
	l.m.RecordLockAcquired(time.Since(start).Seconds())
	return nil
}

func (l *measuredLocker) Release() error { return l.inner.Release() }
