package vcs

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
}

// newTestRepo creates a git repository with one commit on branch "trunk".
func newTestRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	runGit(t, dir, "init")
	runGit(t, dir, "config", "user.email", "test@test.com")
	runGit(t, dir, "config", "user.name", "Test User")
	runGit(t, dir, "checkout", "-b", "trunk")
	if err := os.WriteFile(filepath.Join(dir, "README"), []byte("x\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-m", "initial")
	return dir
}

func TestGitCurrentBranchAndHash(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	ctx := context.Background()
	g := NewGit(newTestRepo(t))

	branch, err := g.CurrentBranch(ctx)
	if err != nil {
		t.Fatalf("CurrentBranch: %v", err)
	}
	if branch != "trunk" {
		t.Fatalf("branch = %q, want trunk", branch)
	}

	hash, err := g.CommitHash(ctx, "")
	if err != nil {
		t.Fatalf("CommitHash: %v", err)
	}
	if len(hash) != 40 {
		t.Fatalf("hash = %q, want 40 hex chars", hash)
	}
}

func TestGitBranchExists(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	ctx := context.Background()
	g := NewGit(newTestRepo(t))

	ok, err := g.BranchExists(ctx, "trunk")
	if err != nil || !ok {
		t.Fatalf("BranchExists(trunk) = %v, %v; want true, nil", ok, err)
	}
	ok, err = g.BranchExists(ctx, "wu/WU-1")
	if err != nil || ok {
		t.Fatalf("BranchExists(wu/WU-1) = %v, %v; want false, nil", ok, err)
	}
}

func TestGitWorktreeAddAndRemove(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	ctx := context.Background()
	repo := newTestRepo(t)
	g := NewGit(repo)

	wt := filepath.Join(t.TempDir(), "wu-1")
	if err := g.WorktreeAdd(ctx, wt, "wu/WU-1"); err != nil {
		t.Fatalf("WorktreeAdd: %v", err)
	}
	if _, err := os.Stat(filepath.Join(wt, "README")); err != nil {
		t.Fatalf("worktree not checked out: %v", err)
	}
	ok, err := g.BranchExists(ctx, "wu/WU-1")
	if err != nil || !ok {
		t.Fatalf("branch wu/WU-1 should exist after WorktreeAdd: %v, %v", ok, err)
	}

	if err := g.WorktreeRemove(ctx, wt); err != nil {
		t.Fatalf("WorktreeRemove: %v", err)
	}
	if _, err := os.Stat(wt); !os.IsNotExist(err) {
		t.Fatalf("worktree dir still present after remove: %v", err)
	}
}

func TestFakeZeroValue(t *testing.T) {
	ctx := context.Background()
	f := &Fake{}

	branch, err := f.CurrentBranch(ctx)
	if err != nil || branch != "main" {
		t.Fatalf("CurrentBranch = %q, %v; want main, nil", branch, err)
	}
	hash, err := f.CommitHash(ctx, "")
	if err != nil || len(hash) != 40 {
		t.Fatalf("CommitHash = %q, %v", hash, err)
	}
	ok, err := f.BranchExists(ctx, "anything")
	if err != nil || ok {
		t.Fatalf("BranchExists = %v, %v; want false, nil", ok, err)
	}
}

func TestFakeWorktreeLifecycle(t *testing.T) {
	ctx := context.Background()
	f := &Fake{}

	if err := f.WorktreeAdd(ctx, "/tmp/wt/WU-1", "wu/WU-1"); err != nil {
		t.Fatalf("WorktreeAdd: %v", err)
	}
	if f.Worktrees["/tmp/wt/WU-1"] != "wu/WU-1" {
		t.Fatalf("Worktrees = %v", f.Worktrees)
	}
	if ok, _ := f.BranchExists(ctx, "wu/WU-1"); !ok {
		t.Fatalf("branch should exist after WorktreeAdd")
	}
	if err := f.WorktreeAdd(ctx, "/tmp/wt/WU-1", "wu/WU-1"); err == nil {
		t.Fatalf("duplicate WorktreeAdd should fail")
	}

	if err := f.WorktreeRemove(ctx, "/tmp/wt/WU-1"); err != nil {
		t.Fatalf("WorktreeRemove: %v", err)
	}
	if len(f.Removed) != 1 || f.Removed[0] != "/tmp/wt/WU-1" {
		t.Fatalf("Removed = %v", f.Removed)
	}
	if err := f.WorktreeRemove(ctx, "/tmp/wt/WU-1"); err == nil {
		t.Fatalf("removing a missing worktree should fail")
	}
}

func TestFakeErrInjection(t *testing.T) {
	ctx := context.Background()
	f := &Fake{Err: os.ErrPermission}
	if _, err := f.CurrentBranch(ctx); err == nil {
		t.Fatalf("expected injected error")
	}
	if err := f.WorktreeAdd(ctx, "p", "b"); err == nil {
		t.Fatalf("expected injected error")
	}
}
