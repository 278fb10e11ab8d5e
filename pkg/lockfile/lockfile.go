// Package lockfile provides advisory file locking for the event log.
//
// A lock is an exclusively created JSON file recording the holder's pid,
// acquisition time (epoch milliseconds), and hostname. Mutual exclusion
// comes from O_CREATE|O_EXCL; no daemon and no kernel lock is involved, so
// the scheme works on any shared filesystem that creates files atomically.
//
// Crashed holders heal through staleness reclaim. A lock is stale when its
// pid is gone (same host, signal-0 probe) or its age exceeds the staleness
// window. Eviction of a stale holder serializes through a kernel flock
// guard next to the lock file, so concurrent waiters cannot each delete
// and re-create the same stale lock. Locks from other hosts are never reclaimed unless cross-host
// reclaim is enabled: a foreign pid cannot be probed, and an age judgment
// alone can steal the lock from a live process on a partitioned mount.
//
// Locking is advisory. Processes that do not go through Acquire can ignore it.
package lockfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultStaleAfter is the age past which a lock is reclaimable.
	DefaultStaleAfter = 5 * time.Minute

	// DefaultRetryDelay is the fixed wait between acquisition attempts.
	DefaultRetryDelay = 50 * time.Millisecond

	// DefaultMaxRetries bounds acquisition at roughly five seconds.
	DefaultMaxRetries = 100
)

// Locker is the capability the transaction coordinator depends on:
// exclusive acquisition with bounded waiting, and release. The concrete
// *FileLock satisfies it; tests substitute in-memory implementations.
type Locker interface {
	Acquire(ctx context.Context) error
	Release() error
}

// Owner is the JSON payload of a lock file.
type Owner struct {
	PID       int    `json:"pid"`
	Timestamp int64  `json:"timestamp"`
	Hostname  string `json:"hostname"`
}

// AcquiredAt returns the acquisition time recorded in the lock.
func (o Owner) AcquiredAt() time.Time { return time.UnixMilli(o.Timestamp) }

// Age returns how long the lock has been held as of now.
func (o Owner) Age(now time.Time) time.Duration { return now.Sub(o.AcquiredAt()) }

// Config tunes acquisition. The zero value selects every default.
type Config struct {
	StaleAfter time.Duration
	RetryDelay time.Duration
	MaxRetries uint64

	// AllowCrossHostReclaim permits age-based reclaim of locks written by
	// other hostnames. Off by default: fail closed.
	AllowCrossHostReclaim bool

	// OnStaleReclaim observes each stale lock this process evicts. Nil is
	// ignored. The callback runs inside Acquire; it must not block.
	OnStaleReclaim func(evicted Owner)
}

func (c Config) withDefaults() Config {
	if c.StaleAfter <= 0 {
		c.StaleAfter = DefaultStaleAfter
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	return c
}

// FileLock is an exclusive-create JSON lock file.
type FileLock struct {
	path string
	cfg  Config
	host string
}

// Compile-time check that *FileLock implements Locker.
var _ Locker = (*FileLock)(nil)

// New returns a FileLock at path. A zero Config selects the defaults.
func New(path string, cfg Config) *FileLock {
	host, _ := os.Hostname()
	return &FileLock{path: path, cfg: cfg.withDefaults(), host: host}
}

// Path returns the lock file path.
func (l *FileLock) Path() string { return l.path }

// errHeld marks an attempt that found a live holder; Acquire retries it.
var errHeld = errors.New("lock held")

// Acquire takes the lock, polling at a fixed interval until it succeeds,
// the bounded attempt budget runs out (LockError), or ctx is done. A stale
// lock found during an attempt is deleted and re-acquired within the same
// attempt, so reclaim does not consume the waiting budget.
func (l *FileLock) Acquire(ctx context.Context) error {
	var lastHolder *Owner
	op := func() error {
		holder, err := l.tryAcquire(time.Now())
		if holder != nil {
			lastHolder = holder
		}
		return err
	}
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(l.cfg.RetryDelay), l.cfg.MaxRetries)
	err := backoff.Retry(op, backoff.WithContext(b, ctx))
	if err == nil {
		return nil
	}
	if errors.Is(err, errHeld) {
		return &LockError{Path: l.path, Holder: lastHolder}
	}
	if ctx.Err() != nil {
		return fmt.Errorf("acquire lock %s: %w", l.path, err)
	}
	return err
}

// tryAcquire makes one pass: create exclusively, or classify the holder and
// reclaim it when stale. It returns the observed holder (if any) and errHeld
// when the lock remains taken.
func (l *FileLock) tryAcquire(now time.Time) (*Owner, error) {
	err := l.create(now)
	if err == nil {
		return nil, nil
	}
	if !errors.Is(err, os.ErrExist) {
		return nil, backoff.Permanent(fmt.Errorf("create lock %s: %w", l.path, err))
	}
	holder, rerr := l.Holder()
	if rerr != nil || holder == nil {
		// A racing writer mid-create, or a holder that vanished between
		// our create and read. Either way the next attempt settles it.
		return nil, errHeld
	}
	if !l.stale(*holder, now) {
		return holder, errHeld
	}
	if l.reclaim(*holder, now) {
		if l.cfg.OnStaleReclaim != nil {
			l.cfg.OnStaleReclaim(*holder)
		}
		return holder, nil
	}
	// Another waiter won the reclaim race.
	return holder, errHeld
}

// reclaim evicts a stale holder and takes its place. Eviction runs under a
// kernel flock guard, and the lock file is re-read inside it: the remove
// only happens while the sampled victim is still the one on disk. Without
// the guard, two waiters that both classified the same holder as stale
// could each delete-and-create in turn, the second remove erasing the
// first waiter's live lock and handing the same lock out twice.
func (l *FileLock) reclaim(victim Owner, now time.Time) bool {
	guard, err := AcquireFlock(l.path + ".reclaim")
	if err != nil {
		// Guard busy or unavailable; retry the whole attempt.
		return false
	}
	defer guard.Release()

	current, err := l.Holder()
	if err != nil || current == nil || *current != victim {
		// The lock changed hands since it was classified stale.
		return false
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false
	}
	return l.create(now) == nil
}

// stale classifies a holder. Same host: a dead pid is stale immediately,
// and even a live one loses the lock past the staleness window (hung
// processes must not wedge the system). Foreign host: reclaim is age-only
// and requires opt-in.
func (l *FileLock) stale(o Owner, now time.Time) bool {
	if o.Hostname == l.host {
		if !processAlive(o.PID) {
			return true
		}
		return o.Age(now) > l.cfg.StaleAfter
	}
	if l.cfg.AllowCrossHostReclaim {
		return o.Age(now) > l.cfg.StaleAfter
	}
	return false
}

// create writes the lock file exclusively. A partial write is removed so a
// failed create never leaves an unreadable lock behind.
func (l *FileLock) create(now time.Time) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	data, err := json.Marshal(Owner{PID: os.Getpid(), Timestamp: now.UnixMilli(), Hostname: l.host})
	if err == nil {
		_, err = f.Write(data)
	}
	if err == nil {
		err = f.Sync()
	}
	if err != nil {
		f.Close()
		os.Remove(l.path)
		return err
	}
	return f.Close()
}

// Holder reads the current lock owner, nil when the lock is free. An
// unreadable or half-written lock file is an error, not a free lock.
func (l *FileLock) Holder() (*Owner, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read lock %s: %w", l.path, err)
	}
	var o Owner
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("parse lock %s: %w", l.path, err)
	}
	return &o, nil
}

// Release deletes the lock file. Absence is not an error: release after a
// reclaim, or a double release, is a no-op.
func (l *FileLock) Release() error {
	err := os.Remove(l.path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("release lock %s: %w", l.path, err)
}

// LockError reports an acquisition that exhausted its bounded retry budget
// while the lock stayed held.
type LockError struct {
	Path   string
	Holder *Owner
}

func (e *LockError) Error() string {
	if e.Holder == nil {
		return fmt.Sprintf("lock %s: still held after retries (holder unreadable)", e.Path)
	}
	return fmt.Sprintf("lock %s: still held after retries (pid %d on %s)",
		e.Path, e.Holder.PID, e.Holder.Hostname)
}
