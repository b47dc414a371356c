package cleanup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Iron-Ham/foreman/internal/logging"
	"github.com/Iron-Ham/foreman/internal/session"
)

// Results counts what Execute removed.
type Results struct {
	WorktreesRemoved int
	SessionsKilled   int
	LocksRemoved     int
	FilesRemoved     int
	Errors           []string
}

// Total is the number of removed resources.
func (r *Results) Total() int {
	return r.WorktreesRemoved + r.SessionsKilled + r.LocksRemoved + r.FilesRemoved
}

// Executor removes the resources of one Job.
type Executor struct {
	job    *Job
	opts   Options
	logger *logging.Logger
}

// NewExecutor returns an Executor for job. logger may be nil.
func NewExecutor(job *Job, opts Options, logger *logging.Logger) *Executor {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Executor{job: job, opts: opts, logger: logger.With("component", "cleanup")}
}

// Execute removes every resource in the snapshot. Failures are collected
// and the remaining steps still run.
func (e *Executor) Execute(ctx context.Context) *Results {
	results := &Results{}
	e.cleanWorktrees(ctx, results)
	e.killSessions(ctx, results)
	e.removeLocks(results)
	e.removeFiles(results)
	e.logger.Info("cleanup finished",
		"worktrees", results.WorktreesRemoved,
		"sessions", results.SessionsKilled,
		"locks", results.LocksRemoved,
		"files", results.FilesRemoved,
		"errors", len(results.Errors))
	return results
}

func (e *Executor) cleanWorktrees(ctx context.Context, results *Results) {
	if e.opts.Git == nil || len(e.job.Worktrees) == 0 {
		return
	}
	for _, wt := range e.job.Worktrees {
		if _, err := os.Stat(wt.Path); os.IsNotExist(err) {
			continue
		}
		if err := e.opts.Git.RemoveWorktree(ctx, wt.Path); err != nil {
			results.Errors = append(results.Errors, fmt.Sprintf("remove worktree %s: %v", filepath.Base(wt.Path), err))
			continue
		}
		results.WorktreesRemoved++
	}
	if err := e.opts.Git.Prune(ctx); err != nil {
		results.Errors = append(results.Errors, fmt.Sprintf("prune worktrees: %v", err))
	}
}

func (e *Executor) killSessions(ctx context.Context, results *Results) {
	if e.opts.Sessions == nil {
		return
	}
	for _, name := range e.job.Sessions {
		e.opts.Sessions.Kill(ctx, name)
		results.SessionsKilled++
	}
}

func (e *Executor) removeLocks(results *Results) {
	for _, r := range e.job.StaleLocks {
		ok, err := session.CleanStaleLock(r.Dir, e.logger)
		if err != nil {
			results.Errors = append(results.Errors, fmt.Sprintf("lock %s: %v", r.Scope, err))
			continue
		}
		if ok {
			results.LocksRemoved++
		}
	}
}

func (e *Executor) removeFiles(results *Results) {
	for _, path := range e.job.Files {
		if err := os.Remove(path); err != nil {
			if !os.IsNotExist(err) {
				results.Errors = append(results.Errors, fmt.Sprintf("remove %s: %v", filepath.Base(path), err))
			}
			continue
		}
		results.FilesRemoved++
	}
}
