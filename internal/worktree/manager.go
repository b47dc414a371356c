package worktree

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/Iron-Ham/foreman/internal/errors"
	"github.com/Iron-Ham/foreman/internal/logging"
)

// Git is the subset of repository operations the Manager needs.
type Git interface {
	AddWorktree(ctx context.Context, path, branch, base string) error
	RemoveWorktree(ctx context.Context, path string) error
	ListWorktrees(ctx context.Context) ([]Entry, error)
}

var _ Git = (*Repo)(nil)

// Workspace is an isolated checkout of one branch.
type Workspace struct {
	Branch string
	Path   string
	Base   string
	// Reused is true when the worktree existed before Acquire was called.
	Reused bool
}

// Manager creates, reuses and releases workspaces, tracking every one it hands
// out so that ReleaseAll can tear them down on any exit path.
type Manager struct {
	git     Git
	baseDir string
	logger  *logging.Logger

	mu      sync.Mutex
	tracked map[string]*Workspace
}

// NewManager creates a Manager that places new worktrees under baseDir.
func NewManager(git Git, baseDir string, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Manager{
		git:     git,
		baseDir: baseDir,
		logger:  logger.With("component", "worktree"),
		tracked: make(map[string]*Workspace),
	}
}

var unsafePathChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// PathFor returns where the worktree for branch is created.
func (m *Manager) PathFor(branch string) string {
	name := strings.Trim(unsafePathChars.ReplaceAllString(branch, "-"), "-.")
	if name == "" {
		name = "worktree"
	}
	return filepath.Join(m.baseDir, name)
}

// Acquire returns a workspace for branch. An existing worktree for the branch
// is reused; otherwise one is created from base. If creation from base fails
// it is retried exactly once with branch itself as the base. The workspace is
// tracked for release either way.
func (m *Manager) Acquire(ctx context.Context, branch, base string) (*Workspace, error) {
	if branch == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "branch is required")
	}
	log := m.logger.With("branch", branch, "base", base)

	if path, ok := m.existing(ctx, branch); ok {
		log.Info("reusing existing worktree", "path", path)
		return m.track(&Workspace{Branch: branch, Path: path, Base: base, Reused: true}), nil
	}

	path := m.PathFor(branch)
	err := m.git.AddWorktree(ctx, path, branch, base)
	if err != nil && base != branch {
		log.Warn("worktree creation failed, retrying from branch", "error", err)
		base = branch
		err = m.git.AddWorktree(ctx, path, branch, base)
	}
	if err != nil {
		log.Error("worktree creation failed", "error", err)
		return nil, err
	}

	log.Info("created worktree", "path", path)
	return m.track(&Workspace{Branch: branch, Path: path, Base: base}), nil
}

// existing looks for a worktree that already has branch checked out. Tracked
// workspaces are checked first so repeated acquires skip the git call.
func (m *Manager) existing(ctx context.Context, branch string) (string, bool) {
	m.mu.Lock()
	ws, ok := m.tracked[branch]
	m.mu.Unlock()
	if ok {
		if _, err := os.Stat(ws.Path); err == nil {
			return ws.Path, true
		}
	}

	entries, err := m.git.ListWorktrees(ctx)
	if err != nil {
		m.logger.Debug("could not list worktrees", "error", err)
		return "", false
	}
	for _, e := range entries {
		if e.Branch == branch {
			return e.Path, true
		}
	}
	return "", false
}

func (m *Manager) track(ws *Workspace) *Workspace {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.tracked[ws.Branch]; ok && prev.Path == ws.Path {
		prev.Reused = ws.Reused
		return prev
	}
	m.tracked[ws.Branch] = ws
	return ws
}

// Release removes the worktree for branch and stops tracking it. Failures are
// logged, never returned.
func (m *Manager) Release(ctx context.Context, branch string) {
	m.mu.Lock()
	ws, ok := m.tracked[branch]
	delete(m.tracked, branch)
	m.mu.Unlock()

	if !ok {
		m.logger.Debug("release of untracked worktree ignored", "branch", branch)
		return
	}

	// Cleanup must still run after an interrupt canceled ctx.
	if err := m.git.RemoveWorktree(context.WithoutCancel(ctx), ws.Path); err != nil {
		m.logger.Warn("failed to remove worktree", "branch", branch, "path", ws.Path, "error", err)
		return
	}
	m.logger.Info("removed worktree", "branch", branch, "path", ws.Path)
}

// ReleaseAll releases every tracked workspace.
func (m *Manager) ReleaseAll(ctx context.Context) {
	for _, ws := range m.Tracked() {
		m.Release(ctx, ws.Branch)
	}
}

// Tracked returns a snapshot of the tracked workspaces ordered by branch.
func (m *Manager) Tracked() []Workspace {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Workspace, 0, len(m.tracked))
	for _, ws := range m.tracked {
		out = append(out, *ws)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Branch < out[j].Branch })
	return out
}
