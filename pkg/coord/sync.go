package coord

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/daviddao/worklog/pkg/config"
	"github.com/daviddao/worklog/pkg/drift"
	"github.com/daviddao/worklog/pkg/model"
	"github.com/daviddao/worklog/pkg/view"
	"github.com/daviddao/worklog/pkg/wudoc"
)

// Init bootstraps the workspace: metadata directory, an empty log if none
// exists, the views, docs, and marker directories, an empty board, and the
// query cache. Running it on an initialized workspace changes nothing but
// refreshes the derived surfaces.
func (c *Coordinator) Init(ctx context.Context) error {
	dirs := []string{
		filepath.Join(c.cfg.Root, config.DirName),
		c.cfg.ViewsDir,
		c.cfg.DocsDir,
		c.cfg.DoneDir,
	}
	if c.cfg.WorktreeEnabled {
		dirs = append(dirs, c.cfg.WorktreeDir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("init workspace: %w", err)
		}
	}
	f, err := os.OpenFile(c.cfg.LogPath, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("init workspace: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("init workspace: %w", err)
	}
	if err := c.RefreshViews(ctx); err != nil {
		return err
	}
	return c.RefreshIndex(ctx)
}

// RefreshViews re-renders the board from the current log, under the lock so
// the render cannot interleave with a commit.
func (c *Coordinator) RefreshViews(ctx context.Context) error {
	tx := c.begin()
	tx.StageView(c.cfg.BoardPath(), renderBoard)
	return c.commit(ctx, tx)
}

// RefreshIndex rebuilds the sqlite cache from a full replay. The size is
// read before the replay so the freshness stamp never exceeds the bytes the
// replay saw.
func (c *Coordinator) RefreshIndex(ctx context.Context) error {
	size, err := c.store.Size()
	if err != nil {
		return err
	}
	proj, err := c.store.Load()
	if err != nil {
		return err
	}
	ix, err := c.cache()
	if err != nil {
		return err
	}
	if err := ix.Rebuild(proj, size); err != nil {
		return err
	}
	c.m.RecordRebuild()
	return nil
}

// ValidateSync compares every derived surface against a fresh replay and
// returns the drift report. Drift is data: the report lists disagreements,
// and the caller decides whether they are an error. A surface whose file or
// directory does not exist is skipped, not reported.
func (c *Coordinator) ValidateSync(ctx context.Context) (*drift.Report, error) {
	proj, err := c.store.Load()
	if err != nil {
		return nil, err
	}

	var s drift.Surfaces
	board, err := os.ReadFile(c.cfg.BoardPath())
	switch {
	case err == nil:
		s.Board = view.Parse(board)
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("read board: %w", err)
	}

	s.Docs, err = c.readDocStatuses()
	if err != nil {
		return nil, err
	}
	s.Markers, err = c.readMarkers()
	if err != nil {
		return nil, err
	}

	rep := drift.Compare(proj, s)
	c.m.SetDriftEntries(len(rep.Entries))
	return rep, nil
}

// readDocStatuses collects the status field of every parseable unit
// document. Files that do not parse as unit documents make no statement
// about the log and are skipped.
func (c *Coordinator) readDocStatuses() (map[string]model.Status, error) {
	entries, err := os.ReadDir(c.cfg.DocsDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read docs dir: %w", err)
	}
	docs := map[string]model.Status{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		doc, err := wudoc.Load(filepath.Join(c.cfg.DocsDir, e.Name()))
		if err != nil || doc.ID == "" {
			continue
		}
		docs[doc.ID] = doc.Status
	}
	return docs, nil
}

// readMarkers collects the set of completion markers on disk.
func (c *Coordinator) readMarkers() (map[string]bool, error) {
	entries, err := os.ReadDir(c.cfg.DoneDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read markers dir: %w", err)
	}
	markers := map[string]bool{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		markers[strings.TrimSuffix(e.Name(), ".json")] = true
	}
	return markers, nil
}
