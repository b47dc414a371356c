package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Iron-Ham/foreman/internal/ai"
	"github.com/Iron-Ham/foreman/internal/errors"
	"github.com/Iron-Ham/foreman/internal/logging"
	"github.com/Iron-Ham/foreman/internal/result"
	"github.com/Iron-Ham/foreman/internal/supervisor"
	"github.com/Iron-Ham/foreman/internal/tracker"
	"github.com/Iron-Ham/foreman/internal/util"
	"github.com/Iron-Ham/foreman/internal/worktree"
)

// Unit is one workspace plus one session working on one branch.
type Unit struct {
	// Key is the stage or change-set number.
	Key int
	// Label names the unit in console output, e.g. "Stage 2" or "PR #101".
	Label  string
	Branch string
	Base   string
	// FilePrefix names the unit's session files inside the temp dir.
	FilePrefix      string
	TaskTitle       string
	TaskDescription string
	// WorkOrder renders the prompt once the workspace exists.
	WorkOrder func(ws *worktree.Workspace) (string, error)

	Workspace *worktree.Workspace
	Files     ai.SessionFiles
	Handle    *supervisor.Handle
	TaskID    string
	// Err records why the unit never launched.
	Err error
}

// Launched reports whether the unit got a session.
func (u *Unit) Launched() bool {
	return u.Handle != nil
}

// Output is what a finished session left behind.
type Output struct {
	Raw string
	// Text is the agent's final message extracted from Raw.
	Text string
	// Missing is set when the session never wrote an output file.
	Missing bool
}

// Hooks customize one dispatch.
type Hooks struct {
	// Ready runs after every workspace and work order is in place and
	// before any session starts. An error aborts the dispatch.
	Ready func(ready []*Unit) error
	// Done runs once per launched unit as its session is seen finished.
	// It reports whether the unit succeeded.
	Done func(u *Unit, out Output) bool
}

// Dispatcher runs batches of units and remembers every session it started
// so Cleanup can stop them on any exit path.
type Dispatcher struct {
	deps *Deps
	log  *logging.Logger

	mu       sync.Mutex
	launched map[string]bool
}

// NewDispatcher creates a Dispatcher over deps.
func NewDispatcher(deps *Deps) *Dispatcher {
	deps.withDefaults()
	return &Dispatcher{
		deps:     deps,
		log:      deps.Logger.With("component", "dispatch"),
		launched: make(map[string]bool),
	}
}

// Run dispatches units as one concurrent batch and blocks until every
// launched unit has reported. Units whose workspace, work order or launch
// fails are skipped with a warning and their Err set; siblings proceed.
// The batch's workspaces and session files are released before Run returns.
func (d *Dispatcher) Run(ctx context.Context, units []*Unit, hooks Hooks) error {
	tempDir := d.deps.Config.Paths.ResolveTempDir()
	defer d.releaseBatch(ctx, units)

	var ready []*Unit
	for _, u := range units {
		if err := d.prepare(ctx, u, tempDir); err != nil {
			u.Err = err
			d.log.Warn("unit skipped", "unit", u.Label, "branch", u.Branch, "error", err)
			d.deps.Console.Warn("%s skipped: %v", u.Label, err)
			continue
		}
		ready = append(ready, u)
	}

	if hooks.Ready != nil {
		if err := hooks.Ready(ready); err != nil {
			return err
		}
	}

	byName := make(map[string]*Unit, len(ready))
	var handles []*supervisor.Handle
	for _, u := range ready {
		u.TaskID = tracker.Ensure(ctx, d.deps.Tracker, u.TaskTitle, u.TaskDescription)

		cmd := d.deps.Agent.SessionCommand(u.Files)
		h, err := d.deps.Sessions.Launch(ctx, u.Branch, u.Workspace.Path, cmd, u.Files.Exit)
		if err != nil {
			u.Err = err
			d.log.Error("launch failed", "unit", u.Label, "error", err)
			d.deps.Console.Error("%s: could not start session: %v", u.Label, err)
			tracker.Finish(ctx, d.deps.Tracker, u.TaskID, false)
			continue
		}
		d.track(h.Name)
		u.Handle = h
		byName[h.Name] = u
		handles = append(handles, h)
		d.deps.Console.Info("  %s: session %s", u.Label, h.Name)
	}

	if len(handles) == 0 {
		return nil
	}

	poll := d.deps.Config.Supervisor.PollInterval()
	reported := make(map[string]bool, len(handles))
	err := d.deps.Sessions.WaitForAll(ctx, handles, poll, func(h *supervisor.Handle) {
		reported[h.Name] = true
		u := byName[h.Name]
		if u == nil {
			return
		}
		out := d.collect(u)
		ok := false
		if hooks.Done != nil {
			ok = hooks.Done(u, out)
		}
		tracker.Finish(ctx, d.deps.Tracker, u.TaskID, ok)
	})
	if err != nil {
		// The deferred release removes worktrees; nothing may still run in them.
		d.stopUnreported(ctx, handles, reported)
	}
	return err
}

func (d *Dispatcher) stopUnreported(ctx context.Context, handles []*supervisor.Handle, reported map[string]bool) {
	ctx = context.WithoutCancel(ctx)
	for _, h := range handles {
		if reported[h.Name] {
			continue
		}
		d.log.Info("stopping unfinished session", "session", h.Name)
		d.deps.Sessions.Kill(ctx, h.Name)
	}
}

func (d *Dispatcher) prepare(ctx context.Context, u *Unit, tempDir string) error {
	ws, err := d.deps.Workspaces.Acquire(ctx, u.Branch, u.Base)
	if err != nil {
		return err
	}
	u.Workspace = ws

	prompt, err := u.WorkOrder(ws)
	if err != nil {
		return errors.Wrap(err, "render work order")
	}
	u.Files = ai.NewSessionFiles(tempDir, u.FilePrefix, d.deps.Agent.StreamJSON())
	if err := u.Files.WritePrompt(prompt); err != nil {
		return errors.Wrap(err, "write work order")
	}
	d.log.Debug("work order written", "unit", u.Label, "prompt", u.Files.Prompt, "chars", len(prompt))
	return nil
}

func (d *Dispatcher) collect(u *Unit) Output {
	log := d.log.With("unit", u.Label, "session", u.Handle.Name)
	raw := u.Files.ReadOutput()
	if raw == "" {
		log.Warn("no output captured", "output", u.Files.Output)
		return Output{Missing: true}
	}

	if stats, ok := result.RunStats(raw); ok {
		log.Info("agent run stats",
			"duration_ms", stats.DurationMS,
			"turns", stats.NumTurns,
			"cost_usd", stats.CostUSD,
			"is_error", stats.IsError,
		)
	}
	out := Output{Raw: raw, Text: result.Text(raw)}
	log.Debug("output collected", "chars", len(raw), "first_line", util.FirstLine(out.Text))
	if d.deps.Verbose {
		d.deps.Console.Header("Output from %s", u.Label)
		d.deps.Console.Dim("%s", out.Text)
	}
	return out
}

func (d *Dispatcher) releaseBatch(ctx context.Context, units []*Unit) {
	for _, u := range units {
		if u.Files.Prompt != "" {
			u.Files.Remove()
		}
		if u.Workspace != nil {
			d.deps.Workspaces.Release(ctx, u.Branch)
		}
	}
}

func (d *Dispatcher) track(session string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.launched[session] = true
}

// Launched returns the names of every session this dispatcher started.
func (d *Dispatcher) Launched() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.launched))
	for n := range d.launched {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Cleanup kills every session this dispatcher started that is still alive
// and releases every workspace. It runs after cancellation too.
func (d *Dispatcher) Cleanup(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	for _, name := range d.Launched() {
		if d.deps.Sessions.Exists(ctx, name) {
			d.log.Info("killing session on cleanup", "session", name)
			d.deps.Sessions.Kill(ctx, name)
		}
	}
	d.deps.Workspaces.ReleaseAll(ctx)
}

// FilePrefix builds "foreman-<kind>-<n>-<timestamp>".
func FilePrefix(kind string, n int, stamp string) string {
	return fmt.Sprintf("foreman-%s-%d-%s", kind, n, stamp)
}
