package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, root, content string) {
	t.Helper()
	dir := filepath.Join(root, DirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestDefaultIsComplete(t *testing.T) {
	root := t.TempDir()
	cfg := Default(root)

	if cfg.LogPath != filepath.Join(root, DirName, "events.ndjson") {
		t.Fatalf("LogPath = %q", cfg.LogPath)
	}
	if cfg.IndexPath != filepath.Join(root, DirName, "index.db") {
		t.Fatalf("IndexPath = %q", cfg.IndexPath)
	}
	if cfg.ViewsDir != filepath.Join(root, "views") {
		t.Fatalf("ViewsDir = %q", cfg.ViewsDir)
	}
	if cfg.DocsDir != filepath.Join(root, "work") {
		t.Fatalf("DocsDir = %q", cfg.DocsDir)
	}
	if cfg.LockStaleAfter != 5*time.Minute {
		t.Fatalf("LockStaleAfter = %v", cfg.LockStaleAfter)
	}
	if cfg.WorktreeEnabled {
		t.Fatalf("worktrees should default off")
	}
}

func TestLoadWithoutFile(t *testing.T) {
	root := t.TempDir()
	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load with no config file: %v", err)
	}
	if cfg.LogPath != Default(root).LogPath {
		t.Fatalf("LogPath = %q, want default", cfg.LogPath)
	}
	if cfg.AllowCrossHostReclaim {
		t.Fatalf("cross-host reclaim should default off")
	}
}

func TestLoadOverrides(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `
log: state/log.ndjson
views_dir: boards
default_lane: backend
lanes:
  - backend
  - frontend
lock:
  stale_after: 10m
  retry_delay: 100ms
  max_retries: 20
  cross_host_reclaim: true
worktree:
  enabled: true
  dir: trees
`)
	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogPath != filepath.Join(root, "state/log.ndjson") {
		t.Fatalf("LogPath = %q", cfg.LogPath)
	}
	if cfg.ViewsDir != filepath.Join(root, "boards") {
		t.Fatalf("ViewsDir = %q", cfg.ViewsDir)
	}
	if cfg.DefaultLane != "backend" {
		t.Fatalf("DefaultLane = %q", cfg.DefaultLane)
	}
	if len(cfg.Lanes) != 2 || cfg.Lanes[0] != "backend" || cfg.Lanes[1] != "frontend" {
		t.Fatalf("Lanes = %v", cfg.Lanes)
	}
	if cfg.LockStaleAfter != 10*time.Minute {
		t.Fatalf("LockStaleAfter = %v", cfg.LockStaleAfter)
	}
	if cfg.LockRetryDelay != 100*time.Millisecond {
		t.Fatalf("LockRetryDelay = %v", cfg.LockRetryDelay)
	}
	if cfg.LockMaxRetries != 20 {
		t.Fatalf("LockMaxRetries = %d", cfg.LockMaxRetries)
	}
	if !cfg.AllowCrossHostReclaim {
		t.Fatalf("cross_host_reclaim not applied")
	}
	if !cfg.WorktreeEnabled || cfg.WorktreeDir != filepath.Join(root, "trees") {
		t.Fatalf("worktree = %v %q", cfg.WorktreeEnabled, cfg.WorktreeDir)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "default_lane: backend\n")
	t.Setenv("WORKLOG_DEFAULT_LANE", "ops")

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultLane != "ops" {
		t.Fatalf("DefaultLane = %q, want env override", cfg.DefaultLane)
	}
}

func TestEnvNestedKey(t *testing.T) {
	root := t.TempDir()
	t.Setenv("WORKLOG_LOCK_STALE_AFTER", "90s")

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LockStaleAfter != 90*time.Second {
		t.Fatalf("LockStaleAfter = %v, want 90s", cfg.LockStaleAfter)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "lanes: [unclosed\n")
	if _, err := Load(root); err == nil {
		t.Fatalf("expected error for malformed yaml")
	}
}

func TestLoadRejectsNonPositiveDurations(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "lock:\n  stale_after: 0s\n")
	if _, err := Load(root); err == nil {
		t.Fatalf("expected error for zero stale_after")
	}
}

func TestLoadRejectsNegativeMaxRetries(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "lock:\n  max_retries: -1\n")
	_, err := Load(root)
	if err == nil {
		t.Fatalf("expected error for negative max_retries")
	}
	if !strings.Contains(err.Error(), "max_retries") {
		t.Fatalf("error should name the key, got %v", err)
	}
}

func TestLockConfigBridge(t *testing.T) {
	cfg := Default(t.TempDir())
	cfg.AllowCrossHostReclaim = true
	lc := cfg.LockConfig()
	if lc.StaleAfter != cfg.LockStaleAfter || lc.RetryDelay != cfg.LockRetryDelay {
		t.Fatalf("LockConfig = %+v", lc)
	}
	if lc.MaxRetries != cfg.LockMaxRetries || !lc.AllowCrossHostReclaim {
		t.Fatalf("LockConfig = %+v", lc)
	}
}

func TestPathHelpers(t *testing.T) {
	root := t.TempDir()
	cfg := Default(root)

	if got := cfg.DocPath("WU-3"); got != filepath.Join(root, "work", "WU-3.md") {
		t.Fatalf("DocPath = %q", got)
	}
	if got := cfg.MarkerPath("WU-3"); got != filepath.Join(root, DirName, "done", "WU-3.json") {
		t.Fatalf("MarkerPath = %q", got)
	}
	if got := cfg.BoardPath(); got != filepath.Join(root, "views", "board.md") {
		t.Fatalf("BoardPath = %q", got)
	}
	if got := cfg.WorktreePath("WU-3"); got != filepath.Join(root, DirName, "worktrees", "WU-3") {
		t.Fatalf("WorktreePath = %q", got)
	}
	if got := BranchFor("WU-3"); got != "wu/WU-3" {
		t.Fatalf("BranchFor = %q", got)
	}
}

func TestFindRoot(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, DirName), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	nested := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir nested: %v", err)
	}

	got, err := FindRoot(nested)
	if err != nil {
		t.Fatalf("FindRoot: %v", err)
	}
	if got != root {
		t.Fatalf("FindRoot = %q, want %q", got, root)
	}
}

func TestFindRootMissing(t *testing.T) {
	if _, err := FindRoot(t.TempDir()); err == nil {
		t.Fatalf("expected error when no workspace exists above dir")
	}
}

func TestValidateLanes(t *testing.T) {
	if err := ValidateLanes([]string{"backend", "frontend"}); err != nil {
		t.Fatalf("valid lanes rejected: %v", err)
	}
	if err := ValidateLanes([]string{"backend", "backend"}); err == nil {
		t.Fatalf("duplicate lanes accepted")
	}
	if err := ValidateLanes([]string{"  "}); err == nil {
		t.Fatalf("blank lane accepted")
	}
	if err := ValidateLanes(nil); err != nil {
		t.Fatalf("empty list rejected: %v", err)
	}
}
