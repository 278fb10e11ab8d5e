// Package vcs adapts the version-control operations worklog needs behind a
// small interface, so the coordination core never shells out directly and
// tests run against an in-memory fake.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// VCS is the version-control surface the coordinator depends on.
type VCS interface {
	CurrentBranch(ctx context.Context) (string, error)
	CommitHash(ctx context.Context, ref string) (string, error)
	Fetch(ctx context.Context, remote, branch string) error
	BranchExists(ctx context.Context, name string) (bool, error)
	WorktreeAdd(ctx context.Context, path, branch string) error
	WorktreeRemove(ctx context.Context, path string) error
}

// Git runs the real git binary against a repository root.
type Git struct {
	dir string
}

var _ VCS = (*Git)(nil)

// NewGit returns a Git adapter rooted at dir.
func NewGit(dir string) *Git { return &Git{dir: dir} }

// CurrentBranch returns the checked-out branch name, or "HEAD" when
// detached.
func (g *Git) CurrentBranch(ctx context.Context) (string, error) {
	return g.output(ctx, "rev-parse", "--abbrev-ref", "HEAD")
}

// CommitHash resolves ref to a full commit hash. An empty ref means HEAD.
func (g *Git) CommitHash(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		ref = "HEAD"
	}
	return g.output(ctx, "rev-parse", ref)
}

// Fetch updates the named branch from remote.
func (g *Git) Fetch(ctx context.Context, remote, branch string) error {
	_, err := g.run(ctx, "fetch", remote, branch)
	return err
}

// BranchExists reports whether a local branch with the given name exists.
func (g *Git) BranchExists(ctx context.Context, name string) (bool, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", g.dir, "show-ref", "--verify", "--quiet", "refs/heads/"+name)
	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	return false, fmt.Errorf("git show-ref failed: %w", err)
}

// WorktreeAdd checks the branch out into a new worktree at path, creating
// the branch from HEAD when it does not exist yet.
func (g *Git) WorktreeAdd(ctx context.Context, path, branch string) error {
	exists, err := g.BranchExists(ctx, branch)
	if err != nil {
		return err
	}
	if exists {
		_, err = g.run(ctx, "worktree", "add", path, branch)
	} else {
		_, err = g.run(ctx, "worktree", "add", path, "-b", branch)
	}
	return err
}

// WorktreeRemove detaches and deletes the worktree at path.
func (g *Git) WorktreeRemove(ctx context.Context, path string) error {
	_, err := g.run(ctx, "worktree", "remove", "--force", path)
	return err
}

// run executes git with combined output captured for error reporting.
func (g *Git) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", g.dir}, args...)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s failed: %w\n%s", args[0], err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

// output executes git and returns trimmed stdout.
func (g *Git) output(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", g.dir}, args...)...)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s failed: %w", args[0], err)
	}
	return strings.TrimSpace(string(out)), nil
}
