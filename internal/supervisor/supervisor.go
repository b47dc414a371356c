// Package supervisor runs units of work as detached tmux sessions and
// observes their completion.
//
// A session's lifecycle is none -> created (detached) -> finished. Completion
// is signalled by the session's marker file: the command launched in the
// session writes its exit code there as its last act. The marker is the cheap
// signal; asking tmux whether the session still exists is the expensive
// fallback.
//
// RejoinableSupervise additionally lets the orchestrator re-execute itself
// inside a session and stream that session's output, so a lost terminal
// detaches the run instead of killing it.
package supervisor

import (
	"context"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/Iron-Ham/foreman/internal/console"
	"github.com/Iron-Ham/foreman/internal/errors"
	"github.com/Iron-Ham/foreman/internal/logging"
	"github.com/Iron-Ham/foreman/internal/tmux"
)

// DefaultGracefulStopTimeout is how long Kill waits after Ctrl+C before
// removing the session.
const DefaultGracefulStopTimeout = 500 * time.Millisecond

// Runner executes tmux subcommands on the supervisor's socket.
type Runner interface {
	Run(ctx context.Context, args ...string) ([]byte, error)
	Interactive(ctx context.Context, args ...string) error
}

var _ Runner = (*tmux.Client)(nil)

// Handle identifies one launched session.
type Handle struct {
	Name    string
	WorkDir string
	Command string
	// Marker is the file whose existence means the session's work is done.
	Marker string
}

// Finished reports whether the handle's marker exists.
func (h *Handle) Finished() bool {
	if h.Marker == "" {
		return false
	}
	_, err := os.Stat(h.Marker)
	return err == nil
}

// SessionInfo describes an owned session reported by tmux.
type SessionInfo struct {
	Name     string
	Windows  int
	Attached bool
	Created  time.Time
}

// Options configures a Supervisor. Zero values select defaults.
type Options struct {
	// SessionsDir holds per-session log and exit-code files for rejoinable
	// sessions.
	SessionsDir string
	// HistoryLimit is the scrollback kept per session.
	HistoryLimit int
	// MarkerCheckInterval is the cheap completion check while streaming.
	MarkerCheckInterval time.Duration
	// SessionCheckInterval is the expensive has-session fallback period.
	SessionCheckInterval time.Duration
	// Hints persists the last rejoinable session for "foreman rejoin".
	Hints *HintStore
	// Console receives streamed session output and reattach hints.
	Console *console.Printer
}

// Supervisor launches, observes and kills owned sessions.
type Supervisor struct {
	tmux   Runner
	opts   Options
	logger *logging.Logger

	// attachHint renders the reattach command for a session.
	attachHint func(session string) string

	console *console.Printer
	// logWait is how long streaming waits quietly for the session log.
	logWait time.Duration

	// Process environment, replaceable in tests.
	getenv     func(string) string
	isTerminal func() bool
	interrupts func() (<-chan os.Signal, func())
}

// New creates a Supervisor driving tmux through runner.
func New(runner Runner, opts Options, logger *logging.Logger) *Supervisor {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if opts.MarkerCheckInterval <= 0 {
		opts.MarkerCheckInterval = 100 * time.Millisecond
	}
	if opts.SessionCheckInterval <= 0 {
		opts.SessionCheckInterval = 10 * time.Second
	}
	if opts.Console == nil {
		opts.Console = console.Stdout()
	}
	s := &Supervisor{
		tmux:   runner,
		opts:   opts,
		logger: logger.With("component", "supervisor"),
		attachHint: func(session string) string {
			return "tmux attach -t " + session
		},
		console:    opts.Console,
		logWait:    logWaitTimeout,
		getenv:     os.Getenv,
		isTerminal: stdioIsTerminal,
		interrupts: notifyInterrupts,
	}
	if c, ok := runner.(*tmux.Client); ok {
		s.attachHint = c.AttachCommand
	}
	return s
}

// AttachCommand returns the command an operator runs to reattach to session.
func (s *Supervisor) AttachCommand(session string) string {
	return s.attachHint(session)
}

// Launch starts command in a new detached session rooted at workdir and
// returns immediately. The session name is derived from name; a stale session
// with the same name is killed first, and a stale marker is removed so the
// new session is not mistaken for finished.
func (s *Supervisor) Launch(ctx context.Context, name, workdir, command, marker string) (*Handle, error) {
	session := tmux.SessionName(name)
	log := s.logger.With("session", session)

	if s.Exists(ctx, session) {
		log.Info("killing stale session before launch")
		s.Kill(ctx, session)
	}
	if marker != "" {
		if err := os.Remove(marker); err != nil && !os.IsNotExist(err) {
			log.Warn("failed to remove stale marker", "marker", marker, "error", err)
		}
	}

	out, err := s.tmux.Run(ctx, "new-session", "-d", "-s", session, "-c", workdir, command)
	if err != nil {
		log.Error("failed to create session", "error", err, "output", strings.TrimSpace(string(out)))
		return nil, errors.NewSessionError(
			"failed to create session: "+strings.TrimSpace(string(out)),
			errors.Join(errors.ErrSessionLaunch, err),
		).WithSession(session)
	}
	if s.opts.HistoryLimit > 0 {
		_, _ = s.tmux.Run(ctx, "set-option", "-t", session, "history-limit", strconv.Itoa(s.opts.HistoryLimit))
	}

	log.Info("session launched", "workdir", workdir)
	return &Handle{Name: session, WorkDir: workdir, Command: command, Marker: marker}, nil
}

// Exists reports whether the session derived from name exists.
func (s *Supervisor) Exists(ctx context.Context, name string) bool {
	_, err := s.tmux.Run(ctx, "has-session", "-t", tmux.SessionName(name))
	return err == nil
}

// Kill stops the session derived from name: Ctrl+C, a short grace period,
// kill-session, then SIGKILL for any process of the pane that survived. It
// waits briefly for tmux to forget the name so it can be reused at once.
// Killing a missing session is not an error.
func (s *Supervisor) Kill(ctx context.Context, name string) {
	session := tmux.SessionName(name)
	ctx = context.WithoutCancel(ctx)

	pids := s.processTree(ctx, session)
	if len(pids) > 0 {
		_, _ = s.tmux.Run(ctx, "send-keys", "-t", session, "C-c")
		tmux.WaitForProcessExit(pids[0], DefaultGracefulStopTimeout)
	}

	if _, err := s.tmux.Run(ctx, "kill-session", "-t", session); err != nil {
		s.logger.Debug("kill-session failed (may not exist)", "session", session, "error", err)
	} else {
		for range 10 {
			if !s.Exists(ctx, session) {
				break
			}
			time.Sleep(50 * time.Millisecond)
		}
	}
	tmux.EnsureProcessesKilled(pids)
	s.logger.Debug("session killed", "session", session)
}

func (s *Supervisor) processTree(ctx context.Context, session string) []int {
	out, err := s.tmux.Run(ctx, "display-message", "-t", session, "-p", "#{pane_pid}")
	if err != nil {
		return nil
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil || pid <= 0 {
		return nil
	}
	return append([]int{pid}, tmux.DescendantPIDs(pid)...)
}

// ListOwned returns the owned sessions on the socket ordered by name. A
// socket with no server yields an empty list.
func (s *Supervisor) ListOwned(ctx context.Context) ([]SessionInfo, error) {
	out, err := s.tmux.Run(ctx, "list-sessions", "-F",
		"#{session_name}:#{session_windows}:#{session_attached}:#{session_created}")
	if err != nil {
		s.logger.Debug("list-sessions failed (no server?)", "error", err)
		return nil, nil
	}
	return parseSessionList(string(out)), nil
}

func parseSessionList(out string) []SessionInfo {
	var sessions []SessionInfo
	for _, line := range strings.Split(out, "\n") {
		parts := strings.Split(strings.TrimSpace(line), ":")
		if len(parts) < 3 || !tmux.IsOwned(parts[0]) {
			continue
		}
		info := SessionInfo{Name: parts[0], Windows: 1, Attached: parts[2] == "1"}
		if n, err := strconv.Atoi(parts[1]); err == nil {
			info.Windows = n
		}
		if len(parts) > 3 {
			if secs, err := strconv.ParseInt(parts[3], 10, 64); err == nil {
				info.Created = time.Unix(secs, 0)
			}
		}
		sessions = append(sessions, info)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Name < sessions[j].Name })
	return sessions
}

// KillAllOwned kills every owned session whose name matches none of the
// exclude glob patterns, returning the names it killed.
func (s *Supervisor) KillAllOwned(ctx context.Context, exclude []string) ([]string, error) {
	for _, pattern := range exclude {
		if !doublestar.ValidatePattern(pattern) {
			return nil, errors.Wrapf(errors.ErrInvalidInput, "bad exclude pattern %q", pattern)
		}
	}

	sessions, err := s.ListOwned(ctx)
	if err != nil {
		return nil, err
	}

	var killed []string
	for _, info := range sessions {
		if excluded(info.Name, exclude) {
			s.logger.Debug("skipping excluded session", "session", info.Name)
			continue
		}
		s.Kill(ctx, info.Name)
		killed = append(killed, info.Name)
	}
	return killed, nil
}

func excluded(name string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// Attach connects the current terminal to the session derived from name.
func (s *Supervisor) Attach(ctx context.Context, name string) error {
	session := tmux.SessionName(name)
	if !s.Exists(ctx, session) {
		return errors.NewSessionError("no such session", errors.ErrSessionNotFound).WithSession(session)
	}
	return s.tmux.Interactive(ctx, "attach-session", "-t", session)
}
