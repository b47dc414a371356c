// Package engine runs a staged build: it schedules a plan's stages into
// batches, gives each stage a workspace and a detached agent session, and
// checkpoints every result into the plan as the sessions finish.
//
// The dispatch machinery in this package is shared with the convergence
// loop, which drives the same kind of units against open change-sets.
package engine

import (
	"context"
	"time"

	"github.com/Iron-Ham/foreman/internal/ai"
	"github.com/Iron-Ham/foreman/internal/config"
	"github.com/Iron-Ham/foreman/internal/console"
	"github.com/Iron-Ham/foreman/internal/logging"
	"github.com/Iron-Ham/foreman/internal/supervisor"
	"github.com/Iron-Ham/foreman/internal/tracker"
	"github.com/Iron-Ham/foreman/internal/worktree"
)

// Agent produces work-order sessions and foreground runs.
type Agent interface {
	RunPrompt(ctx context.Context, prompt, workdir string) (*ai.Result, error)
	SessionCommand(files ai.SessionFiles) string
	StreamJSON() bool
}

// Sessions launches and observes detached sessions.
type Sessions interface {
	Launch(ctx context.Context, name, workdir, command, marker string) (*supervisor.Handle, error)
	WaitForAll(ctx context.Context, handles []*supervisor.Handle, pollInterval time.Duration, onEach func(*supervisor.Handle)) error
	Exists(ctx context.Context, name string) bool
	Kill(ctx context.Context, name string)
}

// Workspaces hands out and tears down branch workspaces.
type Workspaces interface {
	Acquire(ctx context.Context, branch, base string) (*worktree.Workspace, error)
	Release(ctx context.Context, branch string)
	ReleaseAll(ctx context.Context)
}

var (
	_ Agent      = (*ai.Claude)(nil)
	_ Sessions   = (*supervisor.Supervisor)(nil)
	_ Workspaces = (*worktree.Manager)(nil)
)

// Deps are the collaborators a run drives. Config, Agent, Sessions and
// Workspaces are required; the rest default.
type Deps struct {
	Config     *config.Config
	Agent      Agent
	Sessions   Sessions
	Workspaces Workspaces
	Tracker    tracker.Tracker
	Console    *console.Printer
	Logger     *logging.Logger
	// Verbose echoes each session's final text to the console.
	Verbose bool
	// Now is replaceable for deterministic file names in tests.
	Now func() time.Time
}

func (d *Deps) withDefaults() {
	if d.Tracker == nil {
		d.Tracker = tracker.Nop{}
	}
	if d.Console == nil {
		d.Console = console.Stdout()
	}
	if d.Logger == nil {
		d.Logger = logging.NopLogger()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
}

// Timestamp formats t the way plan and session files are stamped.
func Timestamp(t time.Time) string {
	return t.UTC().Format("20060102-150405")
}
