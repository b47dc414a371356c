package worktree

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/Iron-Ham/foreman/internal/errors"
	"github.com/Iron-Ham/foreman/internal/testutil"
)

func TestParseWorktreeList(t *testing.T) {
	out := `worktree /repo
HEAD 1111111111111111111111111111111111111111
branch refs/heads/main

worktree /repo/.foreman/worktrees/feat-x
HEAD 2222222222222222222222222222222222222222
branch refs/heads/feat/x

worktree /tmp/detached
HEAD 3333333333333333333333333333333333333333
detached
`
	want := []Entry{
		{Path: "/repo", Branch: "main"},
		{Path: "/repo/.foreman/worktrees/feat-x", Branch: "feat/x"},
		{Path: "/tmp/detached"},
	}
	if got := parseWorktreeList(out); !reflect.DeepEqual(got, want) {
		t.Errorf("parseWorktreeList() = %+v, want %+v", got, want)
	}
}

func TestFindGitRoot(t *testing.T) {
	testutil.SkipIfNoGit(t)
	repo := testutil.SetupTestRepo(t)

	sub := filepath.Join(repo, "a", "b")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	root, err := FindGitRoot(sub)
	if err != nil {
		t.Fatalf("FindGitRoot() error = %v", err)
	}
	if !testutil.SamePath(root, repo) {
		t.Errorf("FindGitRoot() = %q, want %q", root, repo)
	}

	if _, err := FindGitRoot(t.TempDir()); !errors.Is(err, errors.ErrNotGitRepository) {
		t.Errorf("FindGitRoot(non-repo) error = %v", err)
	}
}

func TestRepo_WorktreeLifecycle(t *testing.T) {
	testutil.SkipIfNoGit(t)
	repoDir := testutil.SetupTestRepo(t)
	ctx := context.Background()

	repo, err := OpenRepo(repoDir)
	if err != nil {
		t.Fatalf("OpenRepo() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "wt", "stage-1")
	if err := repo.AddWorktree(ctx, path, "stage-1", "main"); err != nil {
		t.Fatalf("AddWorktree() error = %v", err)
	}
	if !repo.BranchExists("stage-1") {
		t.Error("BranchExists(stage-1) = false after AddWorktree")
	}

	entries, err := repo.ListWorktrees(ctx)
	if err != nil {
		t.Fatalf("ListWorktrees() error = %v", err)
	}
	found := false
	for _, e := range entries {
		if e.Branch == "stage-1" && testutil.SamePath(e.Path, path) {
			found = true
		}
	}
	if !found {
		t.Errorf("worktree not listed: %+v", entries)
	}

	if err := repo.RemoveWorktree(ctx, path); err != nil {
		t.Fatalf("RemoveWorktree() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("worktree directory still exists")
	}

	// The branch now exists, so a second add checks it out rather than
	// failing on "-b".
	if err := repo.AddWorktree(ctx, path, "stage-1", "main"); err != nil {
		t.Fatalf("AddWorktree(existing branch) error = %v", err)
	}

	err = repo.AddWorktree(ctx, filepath.Join(t.TempDir(), "bad"), "stage-2", "no-such-base")
	if !errors.Is(err, errors.ErrWorktreeCreate) {
		t.Errorf("AddWorktree(bad base) error = %v, want ErrWorktreeCreate", err)
	}
}

func TestRepo_RemoteRefs(t *testing.T) {
	testutil.SkipIfNoGit(t)
	repoDir, _ := testutil.SetupTestRepoWithRemote(t)
	ctx := context.Background()

	testutil.CreateBranch(t, repoDir, "feat/pushed")
	testutil.Git(t, repoDir, "push", "origin", "feat/pushed")
	testutil.Git(t, repoDir, "branch", "-D", "feat/pushed")

	repo, err := OpenRepo(repoDir)
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.Fetch(ctx); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if repo.BranchExists("feat/pushed") {
		t.Error("local branch should be gone")
	}
	if !repo.RemoteBranchExists("feat/pushed") {
		t.Error("RemoteBranchExists(feat/pushed) = false")
	}
	if url, err := repo.RemoteURL(); err != nil || url == "" {
		t.Errorf("RemoteURL() = %q, %v", url, err)
	}

	// The fix flow bases a change-set's worktree on origin/<branch>.
	path := filepath.Join(t.TempDir(), "feat-pushed")
	if err := repo.AddWorktree(ctx, path, "feat/pushed", "origin/feat/pushed"); err != nil {
		t.Fatalf("AddWorktree(origin base) error = %v", err)
	}
}

func TestManager_WithRealGit(t *testing.T) {
	testutil.SkipIfNoGit(t)
	repoDir := testutil.SetupTestRepo(t)
	ctx := context.Background()

	repo, err := OpenRepo(repoDir)
	if err != nil {
		t.Fatal(err)
	}
	m := NewManager(repo, filepath.Join(repoDir, ".foreman", "worktrees"), nil)

	first, err := m.Acquire(ctx, "stage-1", "main")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	second, err := m.Acquire(ctx, "stage-1", "main")
	if err != nil {
		t.Fatalf("second Acquire() error = %v", err)
	}
	if !testutil.SamePath(first.Path, second.Path) {
		t.Errorf("paths differ: %q vs %q", first.Path, second.Path)
	}
	if n := len(testutil.ListWorktrees(t, repoDir)); n != 2 {
		t.Errorf("worktree count = %d, want 2 (main + stage-1)", n)
	}

	m.ReleaseAll(ctx)
	if n := len(testutil.ListWorktrees(t, repoDir)); n != 1 {
		t.Errorf("worktree count after ReleaseAll = %d, want 1", n)
	}
}
