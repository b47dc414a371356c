// Package worktree manages the isolated, branch-scoped git worktrees that
// foreman runs each unit of work in.
//
// Repo wraps the git CLI for worktree operations and uses go-git for
// read-only ref and remote lookups. Manager adds idempotent acquisition and
// tracking on top of it so an engine can release everything it created.
package worktree

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/Iron-Ham/foreman/internal/errors"
)

// CommandExecutor abstracts command execution for testability.
type CommandExecutor interface {
	// Run executes a command in dir and returns combined output.
	Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error)
}

// CLICommandExecutor executes commands using os/exec.
type CLICommandExecutor struct{}

// Run executes a command and returns combined output.
func (CLICommandExecutor) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// Entry is one worktree reported by `git worktree list --porcelain`.
type Entry struct {
	Path   string
	Branch string
}

// Repo performs git operations against one repository.
type Repo struct {
	root     string
	remote   string
	executor CommandExecutor
}

// FindGitRoot walks up from startDir to the directory containing .git
// (a directory for normal repositories, a file for worktrees).
func FindGitRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.ErrNotGitRepository
		}
		dir = parent
	}
}

// OpenRepo opens the repository containing dir.
func OpenRepo(dir string) (*Repo, error) {
	return OpenRepoWithExecutor(dir, CLICommandExecutor{})
}

// OpenRepoWithExecutor opens a repository with a custom command executor.
func OpenRepoWithExecutor(dir string, executor CommandExecutor) (*Repo, error) {
	root, err := FindGitRoot(dir)
	if err != nil {
		return nil, err
	}
	return &Repo{root: root, remote: "origin", executor: executor}, nil
}

// Root returns the repository's top-level directory.
func (r *Repo) Root() string {
	return r.root
}

// Remote returns the name of the remote used for fetches and remote refs.
func (r *Repo) Remote() string {
	return r.remote
}

func (r *Repo) git(ctx context.Context, dir string, args ...string) (string, error) {
	out, err := r.executor.Run(ctx, dir, "git", args...)
	return string(out), err
}

// AddWorktree creates a worktree at path for branch. When base equals branch
// the existing branch (local, or remote via git's tracking DWIM) is checked
// out; otherwise branch is created from base, or checked out as-is if it
// already exists locally.
func (r *Repo) AddWorktree(ctx context.Context, path, branch, base string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.NewGitError("failed to create worktree directory", err).WithWorktree(path)
	}

	args := []string{"worktree", "add", path, branch}
	if base != branch && !r.BranchExists(branch) {
		args = []string{"worktree", "add", "-b", branch, path, base}
	}

	out, err := r.git(ctx, r.root, args...)
	if err != nil {
		return errors.NewGitError("failed to create worktree", errors.Join(errors.ErrWorktreeCreate, err)).
			WithBranch(branch).
			WithBase(base).
			WithWorktree(path).
			WithGitOutput(out)
	}
	return nil
}

// RemoveWorktree force-removes the worktree at path. When git refuses, the
// directory is deleted and stale metadata pruned before the error is returned.
func (r *Repo) RemoveWorktree(ctx context.Context, path string) error {
	out, err := r.git(ctx, r.root, "worktree", "remove", "--force", path)
	if err != nil {
		_ = os.RemoveAll(path)
		_ = r.Prune(ctx)
		return errors.NewGitError("failed to remove worktree cleanly", err).
			WithWorktree(path).
			WithGitOutput(out)
	}
	return nil
}

// Prune removes administrative data for worktrees that no longer exist.
func (r *Repo) Prune(ctx context.Context) error {
	out, err := r.git(ctx, r.root, "worktree", "prune")
	if err != nil {
		return errors.NewGitError("failed to prune worktrees", err).WithGitOutput(out)
	}
	return nil
}

// ListWorktrees returns every worktree with its checked-out branch.
func (r *Repo) ListWorktrees(ctx context.Context) ([]Entry, error) {
	out, err := r.git(ctx, r.root, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, errors.NewGitError("failed to list worktrees", err).WithGitOutput(out)
	}
	return parseWorktreeList(out), nil
}

func parseWorktreeList(out string) []Entry {
	var entries []Entry
	var current *Entry
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(line, "worktree "):
			entries = append(entries, Entry{Path: strings.TrimPrefix(line, "worktree ")})
			current = &entries[len(entries)-1]
		case strings.HasPrefix(line, "branch ") && current != nil:
			current.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
		}
	}
	return entries
}

// Fetch updates remote-tracking refs from the remote.
func (r *Repo) Fetch(ctx context.Context) error {
	out, err := r.git(ctx, r.root, "fetch", "--prune", r.remote)
	if err != nil {
		return errors.NewGitError("failed to fetch "+r.remote, err).
			WithGitOutput(out).
			WithRetryable(true)
	}
	return nil
}

func (r *Repo) open() (*git.Repository, error) {
	return git.PlainOpenWithOptions(r.root, &git.PlainOpenOptions{
		DetectDotGit:          true,
		EnableDotGitCommonDir: true,
	})
}

// BranchExists reports whether refs/heads/<branch> exists.
func (r *Repo) BranchExists(branch string) bool {
	repo, err := r.open()
	if err != nil {
		return false
	}
	_, err = repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	return err == nil
}

// RemoteBranchExists reports whether refs/remotes/<remote>/<branch> exists.
func (r *Repo) RemoteBranchExists(branch string) bool {
	repo, err := r.open()
	if err != nil {
		return false
	}
	_, err = repo.Reference(plumbing.NewRemoteReferenceName(r.remote, branch), true)
	return err == nil
}

// RemoteURL returns the first URL of the configured remote.
func (r *Repo) RemoteURL() (string, error) {
	repo, err := r.open()
	if err != nil {
		return "", errors.NewGitError("failed to open repository", err)
	}
	remote, err := repo.Remote(r.remote)
	if err != nil {
		return "", errors.NewGitError("remote "+r.remote+" not configured", err)
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", errors.NewGitError("remote "+r.remote+" has no URL", nil)
	}
	return urls[0], nil
}
