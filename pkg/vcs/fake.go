// fake.go provides the in-memory VCS used by hermetic tests.
package vcs

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory VCS. The zero value is usable: it reports branch
// "main" and resolves every ref to a fixed hash. Every mutating call is
// recorded so tests can assert on the operations the coordinator issued.
type Fake struct {
	mu sync.Mutex

	Branch   string          // reported by CurrentBranch; "main" when empty
	Hashes   map[string]string
	Branches map[string]bool
	Err      error // returned by every call when set

	Worktrees map[string]string // path -> branch, live worktrees
	Fetches   []string          // "remote/branch" per Fetch call
	Removed   []string          // paths passed to WorktreeRemove
}

var _ VCS = (*Fake)(nil)

func (f *Fake) CurrentBranch(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return "", f.Err
	}
	if f.Branch == "" {
		return "main", nil
	}
	return f.Branch, nil
}

func (f *Fake) CommitHash(ctx context.Context, ref string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return "", f.Err
	}
	if ref == "" {
		ref = "HEAD"
	}
	if h, ok := f.Hashes[ref]; ok {
		return h, nil
	}
	return "0000000000000000000000000000000000000000", nil
}

func (f *Fake) Fetch(ctx context.Context, remote, branch string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Fetches = append(f.Fetches, remote+"/"+branch)
	return nil
}

func (f *Fake) BranchExists(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return false, f.Err
	}
	return f.Branches[name], nil
}

func (f *Fake) WorktreeAdd(ctx context.Context, path, branch string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	if f.Worktrees == nil {
		f.Worktrees = map[string]string{}
	}
	if _, ok := f.Worktrees[path]; ok {
		return fmt.Errorf("worktree %s already exists", path)
	}
	if f.Branches == nil {
		f.Branches = map[string]bool{}
	}
	f.Branches[branch] = true
	f.Worktrees[path] = branch
	return nil
}

func (f *Fake) WorktreeRemove(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	if _, ok := f.Worktrees[path]; !ok {
		return fmt.Errorf("worktree %s does not exist", path)
	}
	delete(f.Worktrees, path)
	f.Removed = append(f.Removed, path)
	return nil
}
