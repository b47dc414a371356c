// Package enginetest provides in-memory collaborators for driving the
// engine and the convergence loop in tests without tmux, git or an agent.
package enginetest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Iron-Ham/foreman/internal/ai"
	"github.com/Iron-Ham/foreman/internal/supervisor"
	"github.com/Iron-Ham/foreman/internal/tmux"
	"github.com/Iron-Ham/foreman/internal/worktree"
)

// Launch describes one session start seen by Sessions.
type Launch struct {
	Name    string
	Session string
	WorkDir string
	Prompt  string
}

// Sessions completes every launched session immediately. Respond decides
// what the session wrote: its output text and whether an output file exists
// at all. Names in Hang never write a marker.
type Sessions struct {
	Respond    func(l Launch) (output string, written bool)
	FailLaunch map[string]bool
	Hang       map[string]bool

	mu       sync.Mutex
	launched []Launch
	killed   []string
	alive    map[string]bool
}

// Launch records the start, writes the scripted output and the marker.
func (s *Sessions) Launch(_ context.Context, name, workdir, command, marker string) (*supervisor.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailLaunch[name] {
		return nil, fmt.Errorf("launch of %s refused", name)
	}
	if s.alive == nil {
		s.alive = make(map[string]bool)
	}

	session := tmux.SessionName(name)
	promptFile := strings.TrimSuffix(marker, ".exit")
	prompt, _ := os.ReadFile(promptFile)
	l := Launch{Name: name, Session: session, WorkDir: workdir, Prompt: string(prompt)}
	s.launched = append(s.launched, l)
	s.alive[session] = true

	if !s.Hang[name] {
		if s.Respond != nil {
			if out, ok := s.Respond(l); ok {
				if err := os.WriteFile(promptFile+".output", []byte(out), 0644); err != nil {
					return nil, err
				}
			}
		}
		if err := os.WriteFile(marker, []byte("0\n"), 0644); err != nil {
			return nil, err
		}
	}
	return &supervisor.Handle{Name: session, WorkDir: workdir, Command: command, Marker: marker}, nil
}

// WaitForAll reports finished handles in order, then blocks on ctx while any
// remain.
func (s *Sessions) WaitForAll(ctx context.Context, handles []*supervisor.Handle, _ time.Duration, onEach func(*supervisor.Handle)) error {
	pending := 0
	for _, h := range handles {
		if !h.Finished() {
			pending++
			continue
		}
		if onEach != nil {
			onEach(h)
		}
	}
	if pending > 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

// Exists reports whether the session is alive.
func (s *Sessions) Exists(_ context.Context, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive[tmux.SessionName(name)]
}

// Kill ends the session.
func (s *Sessions) Kill(_ context.Context, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session := tmux.SessionName(name)
	delete(s.alive, session)
	s.killed = append(s.killed, session)
}

// Launched returns every launch in order.
func (s *Sessions) Launched() []Launch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Launch(nil), s.launched...)
}

// LaunchedNames returns the launch names in order.
func (s *Sessions) LaunchedNames() []string {
	var names []string
	for _, l := range s.Launched() {
		names = append(names, l.Name)
	}
	return names
}

// Killed returns the killed session names in order.
func (s *Sessions) Killed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.killed...)
}

// Workspaces creates plain directories under Root. OnRelease, when set, runs
// for every release before the branch is forgotten.
type Workspaces struct {
	Root      string
	Fail      map[string]bool
	OnRelease func(branch string)

	mu       sync.Mutex
	acquired []string
	released []string
	tracked  map[string]bool
}

// Acquire records "branch@base" and creates the directory.
func (w *Workspaces) Acquire(_ context.Context, branch, base string) (*worktree.Workspace, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.acquired = append(w.acquired, branch+"@"+base)
	if w.Fail[branch] {
		return nil, fmt.Errorf("cannot create worktree for %s", branch)
	}
	if w.tracked == nil {
		w.tracked = make(map[string]bool)
	}
	path := filepath.Join(w.Root, strings.ReplaceAll(branch, "/", "-"))
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, err
	}
	w.tracked[branch] = true
	return &worktree.Workspace{Branch: branch, Path: path, Base: base}, nil
}

// Release forgets branch.
func (w *Workspaces) Release(_ context.Context, branch string) {
	if w.OnRelease != nil {
		w.OnRelease(branch)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.tracked[branch] {
		delete(w.tracked, branch)
		w.released = append(w.released, branch)
	}
}

// ReleaseAll releases every tracked branch.
func (w *Workspaces) ReleaseAll(ctx context.Context) {
	w.mu.Lock()
	var branches []string
	for b := range w.tracked {
		branches = append(branches, b)
	}
	w.mu.Unlock()
	for _, b := range branches {
		w.Release(ctx, b)
	}
}

// Acquired returns every acquire as "branch@base".
func (w *Workspaces) Acquired() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.acquired...)
}

// Outstanding returns how many workspaces are still held.
func (w *Workspaces) Outstanding() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.tracked)
}

// Agent answers foreground runs with Run and builds trivial session commands.
type Agent struct {
	Run func(prompt, workdir string) (*ai.Result, error)

	mu      sync.Mutex
	prompts []string
}

// RunPrompt records the prompt and delegates to Run.
func (a *Agent) RunPrompt(_ context.Context, prompt, workdir string) (*ai.Result, error) {
	a.mu.Lock()
	a.prompts = append(a.prompts, prompt)
	a.mu.Unlock()
	if a.Run == nil {
		return &ai.Result{}, nil
	}
	return a.Run(prompt, workdir)
}

// SessionCommand returns a placeholder command line.
func (a *Agent) SessionCommand(files ai.SessionFiles) string {
	return "agent < " + files.Prompt
}

// StreamJSON is always false.
func (a *Agent) StreamJSON() bool { return false }

// Prompts returns every foreground prompt in order.
func (a *Agent) Prompts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.prompts...)
}

// Tracker is an in-memory task board.
type Tracker struct {
	mu     sync.Mutex
	titles map[string]string
	status map[string]string
	next   int
}

// CreateTask adds a task.
func (t *Tracker) CreateTask(_ context.Context, title, _ string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.titles == nil {
		t.titles = make(map[string]string)
		t.status = make(map[string]string)
	}
	t.next++
	id := fmt.Sprintf("task-%d", t.next)
	t.titles[id] = title
	t.status[id] = "todo"
	return id
}

// UpdateStatus sets a task's status.
func (t *Tracker) UpdateStatus(_ context.Context, id, status string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.titles[id]; !ok {
		return false
	}
	t.status[id] = status
	return true
}

// FindByTitle returns the task with exactly title.
func (t *Tracker) FindByTitle(_ context.Context, title string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, tt := range t.titles {
		if tt == title {
			return id
		}
	}
	return ""
}

// Close does nothing.
func (t *Tracker) Close() error { return nil }

// StatusOf returns the status of the task titled title.
func (t *Tracker) StatusOf(title string) string {
	id := t.FindByTitle(context.Background(), title)
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status[id]
}

// Count returns the number of tasks.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.titles)
}
