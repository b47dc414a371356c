// Package cleanup removes what interrupted foreman runs leave behind:
// worktrees, tmux sessions, stale run locks and per-session temp files.
//
// A Job is a snapshot taken by Scan. The Executor acts only on that
// snapshot, so anything created after the scan is never touched.
package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/Iron-Ham/foreman/internal/session"
	"github.com/Iron-Ham/foreman/internal/supervisor"
	"github.com/Iron-Ham/foreman/internal/worktree"
)

// SessionFilePattern matches the prompt, output, exit and stream files each
// session writes to the temp directory.
const SessionFilePattern = "foreman-*.prompt*"

// Git is the repository surface cleanup needs.
type Git interface {
	ListWorktrees(ctx context.Context) ([]worktree.Entry, error)
	RemoveWorktree(ctx context.Context, path string) error
	Prune(ctx context.Context) error
}

// Sessions is the tmux surface cleanup needs.
type Sessions interface {
	ListOwned(ctx context.Context) ([]supervisor.SessionInfo, error)
	Kill(ctx context.Context, name string)
}

// Options say where to look. Git may be nil outside a repository.
type Options struct {
	Git         Git
	Sessions    Sessions
	WorktreeDir string
	SessionsDir string
	TempDir     string
	// Exclude holds glob patterns of session names to keep.
	Exclude []string
}

// Job is the set of resources found by Scan.
type Job struct {
	Worktrees []worktree.Entry
	Sessions  []string
	// StaleLocks are run scopes whose lock owner is gone.
	StaleLocks []*session.Info
	Files      []string

	// Active are runs still holding their lock.
	Active []*session.Info
	// Warnings are scan steps that could not complete.
	Warnings []string
}

// Empty reports whether there is nothing to remove.
func (j *Job) Empty() bool {
	return len(j.Worktrees) == 0 && len(j.Sessions) == 0 && len(j.StaleLocks) == 0 && len(j.Files) == 0
}

// Scan snapshots everything cleanup would remove.
func Scan(ctx context.Context, opts Options) *Job {
	job := &Job{}

	if opts.Git != nil && opts.WorktreeDir != "" {
		entries, err := opts.Git.ListWorktrees(ctx)
		if err != nil {
			job.Warnings = append(job.Warnings, "list worktrees: "+err.Error())
		}
		for _, e := range entries {
			if Within(opts.WorktreeDir, e.Path) {
				job.Worktrees = append(job.Worktrees, e)
			}
		}
	}

	if opts.Sessions != nil {
		sessions, err := opts.Sessions.ListOwned(ctx)
		if err != nil {
			job.Warnings = append(job.Warnings, "list sessions: "+err.Error())
		}
		for _, s := range sessions {
			if !MatchesAny(s.Name, opts.Exclude) {
				job.Sessions = append(job.Sessions, s.Name)
			}
		}
	}

	if opts.SessionsDir != "" {
		runs, err := session.ListRuns(opts.SessionsDir)
		if err != nil {
			job.Warnings = append(job.Warnings, "read run locks: "+err.Error())
		}
		for _, r := range runs {
			switch {
			case r.Active:
				job.Active = append(job.Active, r)
			case r.Lock != nil:
				job.StaleLocks = append(job.StaleLocks, r)
			}
		}
	}

	if opts.TempDir != "" {
		files, err := doublestar.Glob(os.DirFS(opts.TempDir), SessionFilePattern, doublestar.WithFilesOnly())
		if err != nil {
			job.Warnings = append(job.Warnings, "scan temp dir: "+err.Error())
		}
		for _, f := range files {
			job.Files = append(job.Files, filepath.Join(opts.TempDir, f))
		}
	}
	return job
}

// Within reports whether path is dir or below it.
func Within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil || filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// MatchesAny reports whether name matches one of the glob patterns.
func MatchesAny(name string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}
