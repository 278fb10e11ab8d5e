// Package config resolves workspace settings from defaults, the workspace
// config file, and WORKLOG_* environment variables, in that order.
//
// The defaults are complete: a workspace with no config file and no
// environment is fully usable. The file lives inside the workspace
// metadata directory and is read with viper, so the same keys work from
// YAML and from the environment (dots become underscores:
// lock.stale_after is WORKLOG_LOCK_STALE_AFTER).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/daviddao/worklog/pkg/lockfile"
)

const (
	// DirName is the workspace metadata directory, resolved under Root.
	DirName = ".worklog"
	// FileName is the config file inside the metadata directory.
	FileName = "config.yaml"
	// EnvPrefix namespaces the environment variables viper reads.
	EnvPrefix = "WORKLOG"
)

// Config is the resolved workspace configuration. All paths are absolute.
type Config struct {
	Root string // workspace root, the directory holding DirName

	LogPath   string // append-only event log
	IndexPath string // sqlite query cache
	ViewsDir  string // rendered board documents
	DocsDir   string // per-unit documents
	DoneDir   string // completion markers
	WatchLock string // watcher single-instance guard

	LockStaleAfter        time.Duration
	LockRetryDelay        time.Duration
	LockMaxRetries        uint64
	AllowCrossHostReclaim bool

	WorktreeEnabled bool
	WorktreeDir     string // where per-unit worktrees are checked out
	WorktreeRemote  string // remote fetched before worktree setup, "" skips

	DefaultLane string
	Lanes       []string // advisory lane names for display and init

	MetricsAddr string // watcher's prometheus listen address, "" disables
}

// Default returns the zero-config settings for a workspace rooted at root.
func Default(root string) Config {
	meta := filepath.Join(root, DirName)
	return Config{
		Root:      root,
		LogPath:   filepath.Join(meta, "events.ndjson"),
		IndexPath: filepath.Join(meta, "index.db"),
		ViewsDir:  filepath.Join(root, "views"),
		DocsDir:   filepath.Join(root, "work"),
		DoneDir:   filepath.Join(meta, "done"),
		WatchLock: filepath.Join(meta, "watch.lock"),

		LockStaleAfter: lockfile.DefaultStaleAfter,
		LockRetryDelay: lockfile.DefaultRetryDelay,
		LockMaxRetries: lockfile.DefaultMaxRetries,

		WorktreeDir: filepath.Join(meta, "worktrees"),
	}
}

// Load resolves the configuration for the workspace rooted at root. A
// missing config file is not an error; a malformed one is.
func Load(root string) (Config, error) {
	def := Default(root)

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(filepath.Join(root, DirName, FileName))
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log", def.LogPath)
	v.SetDefault("index", def.IndexPath)
	v.SetDefault("views_dir", def.ViewsDir)
	v.SetDefault("docs_dir", def.DocsDir)
	v.SetDefault("done_dir", def.DoneDir)
	v.SetDefault("lock.stale_after", def.LockStaleAfter)
	v.SetDefault("lock.retry_delay", def.LockRetryDelay)
	v.SetDefault("lock.max_retries", int64(def.LockMaxRetries))
	v.SetDefault("lock.cross_host_reclaim", false)
	v.SetDefault("worktree.enabled", false)
	v.SetDefault("worktree.dir", def.WorktreeDir)
	v.SetDefault("worktree.remote", "")
	v.SetDefault("default_lane", "")
	v.SetDefault("lanes", []string{})
	v.SetDefault("metrics.addr", "")

	// With an explicit config file, viper surfaces a plain path error when
	// the file is absent; that is the zero-config case, not a failure.
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := def
	cfg.LogPath = abs(root, v.GetString("log"))
	cfg.IndexPath = abs(root, v.GetString("index"))
	cfg.ViewsDir = abs(root, v.GetString("views_dir"))
	cfg.DocsDir = abs(root, v.GetString("docs_dir"))
	cfg.DoneDir = abs(root, v.GetString("done_dir"))
	cfg.LockStaleAfter = v.GetDuration("lock.stale_after")
	cfg.LockRetryDelay = v.GetDuration("lock.retry_delay")
	retries := v.GetInt64("lock.max_retries")
	if retries < 0 {
		// Guard before the uint64 conversion; a negative would wrap into an
		// effectively unbounded retry budget.
		return Config{}, fmt.Errorf("lock.max_retries must not be negative, got %d", retries)
	}
	cfg.LockMaxRetries = uint64(retries)
	cfg.AllowCrossHostReclaim = v.GetBool("lock.cross_host_reclaim")
	cfg.WorktreeEnabled = v.GetBool("worktree.enabled")
	cfg.WorktreeDir = abs(root, v.GetString("worktree.dir"))
	cfg.WorktreeRemote = v.GetString("worktree.remote")
	cfg.DefaultLane = v.GetString("default_lane")
	cfg.Lanes = v.GetStringSlice("lanes")
	cfg.MetricsAddr = v.GetString("metrics.addr")

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.LockStaleAfter <= 0 {
		return fmt.Errorf("lock.stale_after must be positive, got %v", c.LockStaleAfter)
	}
	if c.LockRetryDelay <= 0 {
		return fmt.Errorf("lock.retry_delay must be positive, got %v", c.LockRetryDelay)
	}
	return nil
}

// LockConfig bridges the lock settings into the lockfile package.
func (c Config) LockConfig() lockfile.Config {
	return lockfile.Config{
		StaleAfter:            c.LockStaleAfter,
		RetryDelay:            c.LockRetryDelay,
		MaxRetries:            c.LockMaxRetries,
		AllowCrossHostReclaim: c.AllowCrossHostReclaim,
	}
}

// DocPath returns the document path for a unit id.
func (c Config) DocPath(id string) string {
	return filepath.Join(c.DocsDir, id+".md")
}

// MarkerPath returns the completion-marker path for a unit id.
func (c Config) MarkerPath(id string) string {
	return filepath.Join(c.DoneDir, id+".json")
}

// BoardPath returns the rendered board document path.
func (c Config) BoardPath() string {
	return filepath.Join(c.ViewsDir, "board.md")
}

// WorktreePath returns where a unit's worktree is checked out.
func (c Config) WorktreePath(id string) string {
	return filepath.Join(c.WorktreeDir, id)
}

// BranchFor returns the branch name used for a unit's worktree.
func BranchFor(id string) string { return "wu/" + id }

// FindRoot walks up from dir looking for a workspace metadata directory,
// the way git finds its repository root.
func FindRoot(dir string) (string, error) {
	cur, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		if fi, err := os.Stat(filepath.Join(cur, DirName)); err == nil && fi.IsDir() {
			return cur, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", fmt.Errorf("no %s directory found above %s", DirName, dir)
		}
		cur = parent
	}
}

// ValidateLanes rejects lane lists with duplicates or blank names.
func ValidateLanes(lanes []string) error {
	seen := map[string]bool{}
	for _, lane := range lanes {
		if strings.TrimSpace(lane) == "" {
			return fmt.Errorf("lane names must be non-blank")
		}
		if seen[lane] {
			return fmt.Errorf("duplicate lane %q", lane)
		}
		seen[lane] = true
	}
	return nil
}

// abs resolves p against root when it is relative.
func abs(root, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}
