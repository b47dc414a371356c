// Package tracker mirrors foreman's units of work onto a task board reached
// over MCP. Every operation degrades to a logged warning: a board that is
// down, slow or misconfigured never fails a run.
package tracker

import (
	"context"

	"github.com/Iron-Ham/foreman/internal/config"
	"github.com/Iron-Ham/foreman/internal/logging"
)

// Task statuses understood by the board.
const (
	StatusTodo       = "todo"
	StatusInProgress = "inprogress"
	StatusDone       = "done"
	// StatusFailed maps to the board's terminal non-success column; it has no
	// dedicated failed state.
	StatusFailed = "cancelled"
)

// Tracker records tasks for stages and change-sets. Implementations return
// zero values instead of errors.
type Tracker interface {
	// CreateTask returns the new task's ID, or "" when it could not be created.
	CreateTask(ctx context.Context, title, description string) string
	// UpdateStatus reports whether the update was accepted.
	UpdateStatus(ctx context.Context, taskID, status string) bool
	// FindByTitle returns the ID of the first task titled title, or "".
	FindByTitle(ctx context.Context, title string) string
	Close() error
}

// New returns an MCP-backed tracker when cfg enables one, otherwise Nop.
func New(cfg config.TrackerConfig, logger *logging.Logger) Tracker {
	if !cfg.Enabled || cfg.Command == "" {
		return Nop{}
	}
	return NewMCP(cfg.ProjectID, CommandConnector(cfg.Command, cfg.Args...), cfg.Timeout(), logger)
}

// Nop discards everything.
type Nop struct{}

func (Nop) CreateTask(context.Context, string, string) string { return "" }
func (Nop) UpdateStatus(context.Context, string, string) bool { return false }
func (Nop) FindByTitle(context.Context, string) string { return "" }
func (Nop) Close() error { return nil }

// Ensure reuses a task titled title when one exists, otherwise creates it, and
// moves it to in-progress.
func Ensure(ctx context.Context, t Tracker, title, description string) string {
	id := t.FindByTitle(ctx, title)
	if id == "" {
		id = t.CreateTask(ctx, title, description)
	}
	if id != "" {
		t.UpdateStatus(ctx, id, StatusInProgress)
	}
	return id
}

// Finish moves taskID to done or failed. An empty ID is ignored.
func Finish(ctx context.Context, t Tracker, taskID string, ok bool) {
	if taskID == "" {
		return
	}
	status := StatusDone
	if !ok {
		status = StatusFailed
	}
	t.UpdateStatus(ctx, taskID, status)
}
