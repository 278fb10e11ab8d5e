// Package txn commits batches of related file mutations atomically.
//
// A transaction accumulates staged writes (full content, a mutator over
// current content, or a view rendered from the post-transaction
// projection), removals, lifecycle events, and status preconditions,
// then commits them under the event-log lock: every staged file is written
// to a temporary in its target directory, fsynced, and renamed into place,
// with the event log renamed last. A crash mid-commit can therefore leave
// derived artifacts ahead of the log, never the reverse; each individual
// file is always entirely old or entirely new.
//
// Preconditions are rechecked against the on-disk projection after the lock
// is held, closing the race between assembling a transaction and committing
// it. On any failure before the final rename, temporaries are discarded and
// the lock is released; no partial effect stays visible.
package txn

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/daviddao/worklog/pkg/eventlog"
	"github.com/daviddao/worklog/pkg/lockfile"
	"github.com/daviddao/worklog/pkg/model"
)

// Mutator rewrites a staged file from its current content. old is nil when
// the file does not exist yet. Mutators staged on the same path compose in
// staging order.
type Mutator func(old []byte) ([]byte, error)

// ViewRenderer produces a derived file's content from the projection as it
// will stand after this transaction's events are applied.
type ViewRenderer func(proj model.Projection) ([]byte, error)

type write struct {
	path    string
	content []byte
	mutate  Mutator
	render  ViewRenderer
}

type requirement struct {
	id       string
	statuses []model.Status
}

// Tx is one staged batch. It is built by a single goroutine and committed
// once; a finished transaction rejects further commits.
type Tx struct {
	root     string
	locker   lockfile.Locker
	store    eventlog.Store
	writes   []write
	removes  []string
	events   []model.Event
	requires []requirement
	done     bool
}

// Begin opens a transaction rooted at dir. Relative staged paths resolve
// against dir; the lock and the log come from the injected capabilities.
func Begin(dir string, locker lockfile.Locker, store eventlog.Store) *Tx {
	return &Tx{root: dir, locker: locker, store: store}
}

// Stage records a full-content write of path.
func (t *Tx) Stage(path string, content []byte) {
	t.writes = append(t.writes, write{path: path, content: content})
}

// StageFunc records a mutating write of path, resolved against the file's
// content at commit time.
func (t *Tx) StageFunc(path string, mutate Mutator) {
	t.writes = append(t.writes, write{path: path, mutate: mutate})
}

// StageView records a derived-file write of path, rendered at commit time
// from the post-transaction projection. Rendering under the lock keeps the
// view consistent with the log even when other processes committed between
// staging and commit.
func (t *Tx) StageView(path string, render ViewRenderer) {
	t.writes = append(t.writes, write{path: path, render: render})
}

// StageRemove records a removal of path. Removing an absent file is a no-op.
func (t *Tx) StageRemove(path string) {
	t.removes = append(t.removes, path)
}

// Append queues lifecycle events for the log. They are validated against
// the on-disk projection at commit time, under the lock.
func (t *Tx) Append(events ...model.Event) {
	t.events = append(t.events, events...)
}

// Require records a status precondition: at commit time id must be in one
// of the given statuses. Use the empty status to require an unborn unit.
func (t *Tx) Require(id string, statuses ...model.Status) {
	t.requires = append(t.requires, requirement{id: id, statuses: statuses})
}

// Abandon discards the transaction without durable effect.
func (t *Tx) Abandon() {
	t.done = true
	t.writes = nil
	t.removes = nil
	t.events = nil
	t.requires = nil
}

// Commit applies the batch: acquire the lock, recheck preconditions against
// the current projection, validate and encode the queued events, write all
// temporaries, rename derived files into place in sorted path order, apply
// removals, and rename the log last. Lock acquisition failures and illegal
// transitions surface unchanged so callers can branch on their types.
func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return &TransactionError{Op: "commit", Err: errors.New("transaction already finished")}
	}
	t.done = true

	if err := t.locker.Acquire(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	defer t.locker.Release()

	proj, err := t.store.Load()
	if err != nil {
		return fmt.Errorf("commit: reload projection: %w", err)
	}
	for _, req := range t.requires {
		cur := proj.StatusOf(req.id)
		if !slices.Contains(req.statuses, cur) {
			return &TransactionError{ID: req.id, Op: "precondition",
				Err: fmt.Errorf("status is %s, want one of %s", display(cur), displayList(req.statuses))}
		}
	}

	// Prepare folds the accepted events into proj, so from here on proj is
	// the post-transaction projection that staged views render from.
	lines, err := eventlog.Prepare(proj, t.events)
	if err != nil {
		return err
	}

	logPath := filepath.Clean(t.store.Path())
	resolved, order, err := t.resolve(logPath, proj)
	if err != nil {
		return err
	}

	// Write every temporary before renaming anything, so a write failure
	// aborts with zero visible effect.
	temps := make(map[string]string, len(order))
	discard := func() {
		for _, tmp := range temps {
			os.Remove(tmp)
		}
	}
	for _, path := range order {
		tmp, err := writeTemp(path, resolved[path])
		if err != nil {
			discard()
			return &TransactionError{Op: "stage", Err: err}
		}
		temps[path] = tmp
	}
	var logTmp string
	if len(lines) > 0 {
		current, err := os.ReadFile(logPath)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			discard()
			return &TransactionError{Op: "stage", Err: fmt.Errorf("read log: %w", err)}
		}
		logTmp, err = writeTemp(logPath, append(eventlog.CleanTail(current), lines...))
		if err != nil {
			discard()
			return &TransactionError{Op: "stage", Err: err}
		}
	}

	for _, path := range order {
		if err := os.Rename(temps[path], path); err != nil {
			discard()
			if logTmp != "" {
				os.Remove(logTmp)
			}
			return &TransactionError{Op: "commit", Err: fmt.Errorf("rename %s: %w", path, err)}
		}
		delete(temps, path)
	}
	for _, path := range t.removes {
		p := t.abs(path)
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			if logTmp != "" {
				os.Remove(logTmp)
			}
			return &TransactionError{Op: "commit", Err: fmt.Errorf("remove %s: %w", p, err)}
		}
	}
	if logTmp != "" {
		if err := os.Rename(logTmp, logPath); err != nil {
			os.Remove(logTmp)
			return &TransactionError{Op: "commit", Err: fmt.Errorf("rename log: %w", err)}
		}
	}
	return nil
}

// resolve computes the final content of every staged path. Mutators read
// the file's current content, or the output of an earlier staged write on
// the same path, so stages compose; renderers read the post-transaction
// projection. The log itself cannot be staged.
func (t *Tx) resolve(logPath string, proj model.Projection) (map[string][]byte, []string, error) {
	resolved := make(map[string][]byte, len(t.writes))
	var order []string
	for _, w := range t.writes {
		path := t.abs(w.path)
		if path == logPath {
			return nil, nil, &TransactionError{Op: "stage",
				Err: errors.New("the event log cannot be staged directly; queue events with Append")}
		}
		content := w.content
		switch {
		case w.render != nil:
			var err error
			content, err = w.render(proj)
			if err != nil {
				return nil, nil, &TransactionError{Op: "stage", Err: fmt.Errorf("render %s: %w", path, err)}
			}
		case w.mutate != nil:
			old, seen := resolved[path]
			if !seen {
				var err error
				old, err = os.ReadFile(path)
				if err != nil && !errors.Is(err, os.ErrNotExist) {
					return nil, nil, &TransactionError{Op: "stage", Err: fmt.Errorf("read %s: %w", path, err)}
				}
			}
			var err error
			content, err = w.mutate(old)
			if err != nil {
				return nil, nil, &TransactionError{Op: "stage", Err: fmt.Errorf("mutate %s: %w", path, err)}
			}
		}
		if _, seen := resolved[path]; !seen {
			order = append(order, path)
		}
		resolved[path] = content
	}
	sort.Strings(order)
	return resolved, order, nil
}

func (t *Tx) abs(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(t.root, path)
}

// writeTemp writes content to a temporary file in path's directory, synced
// and closed, ready to rename. Parent directories are created as needed.
func writeTemp(path string, content []byte) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return "", fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmp := f.Name()
	if _, err := f.Write(content); err == nil {
		err = f.Sync()
	}
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("write temp for %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("close temp for %s: %w", path, err)
	}
	return tmp, nil
}

func display(s model.Status) string {
	if s == "" {
		return "(none)"
	}
	return string(s)
}

func displayList(statuses []model.Status) string {
	out := ""
	for i, s := range statuses {
		if i > 0 {
			out += ", "
		}
		out += display(s)
	}
	return out
}

// TransactionError reports a failed stage, precondition recheck, or commit.
type TransactionError struct {
	ID  string
	Op  string
	Err error
}

func (e *TransactionError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("transaction %s failed for %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("transaction %s failed: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }
