// Package testutil provides git and tmux fixtures for foreman tests.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// SetupTestRepo creates a git repository on branch main with one commit.
// It is removed when the test completes.
func SetupTestRepo(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	Git(t, dir, "init")
	Git(t, dir, "config", "user.email", "test@foreman.dev")
	Git(t, dir, "config", "user.name", "Foreman Test")

	// git worktree needs at least one commit
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("# Test Repository\n"), 0644); err != nil {
		t.Fatalf("failed to create README: %v", err)
	}
	Git(t, dir, "add", ".")
	Git(t, dir, "commit", "-m", "Initial commit")
	Git(t, dir, "branch", "-M", "main")

	return dir
}

// SetupTestRepoWithRemote creates a repository whose main branch is pushed to
// a bare "origin" repository.
func SetupTestRepoWithRemote(t *testing.T) (repoDir, remoteDir string) {
	t.Helper()

	remoteDir = t.TempDir()
	Git(t, remoteDir, "init", "--bare")

	repoDir = SetupTestRepo(t)
	Git(t, repoDir, "remote", "add", "origin", remoteDir)
	Git(t, repoDir, "push", "-u", "origin", "main")

	return repoDir, remoteDir
}

// CommitFile writes a file and commits it.
func CommitFile(t *testing.T, repoDir, path, content, message string) {
	t.Helper()

	fullPath := filepath.Join(repoDir, path)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write file %s: %v", path, err)
	}
	Git(t, repoDir, "add", path)
	Git(t, repoDir, "commit", "-m", message)
}

// CreateBranch creates a branch at HEAD without checking it out.
func CreateBranch(t *testing.T, repoDir, branch string) {
	t.Helper()
	Git(t, repoDir, "branch", branch)
}

// ListWorktrees returns the paths of every worktree of the repository.
func ListWorktrees(t *testing.T, repoDir string) []string {
	t.Helper()

	out := Git(t, repoDir, "worktree", "list", "--porcelain")
	var worktrees []string
	for _, line := range strings.Split(out, "\n") {
		if path, ok := strings.CutPrefix(line, "worktree "); ok {
			worktrees = append(worktrees, path)
		}
	}
	return worktrees
}

// SamePath compares paths after resolving symlinks (macOS /var -> /private/var).
func SamePath(a, b string) bool {
	ra, errA := filepath.EvalSymlinks(a)
	rb, errB := filepath.EvalSymlinks(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return ra == rb
}

// SkipIfNoGit skips the test if git is not installed.
func SkipIfNoGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not found in PATH, skipping test")
	}
}

// SkipIfNoTmux skips the test if tmux is not installed.
func SkipIfNoTmux(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("tmux"); err != nil {
		t.Skip("tmux not found in PATH, skipping test")
	}
}

// Git runs a git command in dir with a fixed identity and fails the test on
// error. It returns the combined output.
func Git(t *testing.T, dir string, args ...string) string {
	t.Helper()

	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=Foreman Test",
		"GIT_AUTHOR_EMAIL=test@foreman.dev",
		"GIT_COMMITTER_NAME=Foreman Test",
		"GIT_COMMITTER_EMAIL=test@foreman.dev",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return string(out)
}
