package supervisor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/Iron-Ham/foreman/internal/errors"
	"github.com/Iron-Ham/foreman/internal/tmux"
	"github.com/Iron-Ham/foreman/internal/util"
)

// Environment variables controlling self-supervision.
const (
	// EnvWrapped is set inside a supervised session so the re-executed
	// orchestrator runs in-process instead of wrapping itself again.
	EnvWrapped = "FOREMAN_TMUX_WRAPPED"
	// EnvDisableWrapper turns self-supervision off.
	EnvDisableWrapper = "FOREMAN_DISABLE_TMUX_WRAPPER"
)

const (
	logFileName  = "output.log"
	exitFileName = "exit_code"

	logWaitTimeout  = 5 * time.Second
	exitReadTimeout = 5 * time.Second
	drainDelay      = 50 * time.Millisecond
	readChunkSize   = 64 * 1024
)

// Outcome reports how a rejoinable session ended.
type Outcome struct {
	// Supervised is false when wrapping did not apply and the caller should
	// run the work in-process.
	Supervised bool
	Session    string
	// Detached is true when the operator interrupted the stream; the session
	// keeps running.
	Detached bool
	// ExitCode is the real exit code of the re-executed command. It is 1
	// when no code could be read.
	ExitCode int
}

// ShouldWrap reports whether RejoinableSupervise would start a session. It is
// false when already wrapped, when disabled, inside tmux, or when stdin or
// stdout is not a terminal.
func (s *Supervisor) ShouldWrap() bool {
	switch {
	case s.getenv(EnvWrapped) == "1":
		return false
	case s.getenv(EnvDisableWrapper) == "1":
		return false
	case s.getenv("TMUX") != "":
		return false
	}
	return s.isTerminal()
}

// RejoinableSupervise re-executes argv inside a detached session named after
// name and streams the session's output to the terminal until it finishes.
//
// An interrupt detaches: the session keeps running, reattach instructions are
// printed, and the outcome is Detached with exit code 0. On completion the
// remaining output is drained and the command's real exit code returned.
// When ShouldWrap is false nothing happens and Outcome.Supervised is false.
func (s *Supervisor) RejoinableSupervise(ctx context.Context, name string, argv []string) (Outcome, error) {
	if !s.ShouldWrap() {
		return Outcome{}, nil
	}

	session := tmux.SessionName(name)
	log := s.logger.With("session", session)
	if s.Exists(ctx, session) {
		s.Kill(ctx, session)
	}

	dir := filepath.Join(s.opts.SessionsDir, session)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Outcome{}, errors.NewSessionError("failed to create session directory", err).WithSession(session)
	}
	logPath := filepath.Join(dir, logFileName)
	exitPath := filepath.Join(dir, exitFileName)
	for _, stale := range []string{logPath, exitPath} {
		_ = os.Remove(stale)
	}

	command := ScriptCommand(runtime.GOOS, logPath, WrappedCommand(argv, exitPath))
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	s.recordHint(session, argv)

	out, err := s.tmux.Run(ctx, "new-session", "-d", "-s", session, "-c", cwd, command)
	if err != nil {
		return Outcome{}, errors.NewSessionError(
			"failed to create session: "+strings.TrimSpace(string(out)),
			errors.Join(errors.ErrSessionLaunch, err),
		).WithSession(session)
	}
	log.Info("rejoinable session started", "argv", argv)
	s.console.Dim("Running in session %s (Ctrl+C detaches; reattach with: %s)", session, s.AttachCommand(session))

	if s.stream(ctx, session, logPath, exitPath) {
		log.Info("detached from session")
		s.console.ReattachBox(session, s.AttachCommand(session))
		return Outcome{Supervised: true, Session: session, Detached: true}, nil
	}

	code := readExitCode(exitPath, exitReadTimeout)
	log.Info("rejoinable session finished", "exit_code", code)
	return Outcome{Supervised: true, Session: session, ExitCode: code}, nil
}

func (s *Supervisor) recordHint(session string, argv []string) {
	if s.opts.Hints == nil {
		return
	}
	hint := Hint{
		Session:   session,
		Reconnect: s.AttachCommand(session),
		Started:   time.Now(),
		Command:   util.ShellJoin(argv),
	}
	if err := s.opts.Hints.Save(hint); err != nil {
		s.logger.Warn("failed to record session hint", "error", err)
	}
}

// WrappedCommand returns the shell command run inside the session: argv with
// EnvWrapped set, and an EXIT trap that writes the exit status to exitFile
// however the command ends.
func WrappedCommand(argv []string, exitFile string) string {
	return fmt.Sprintf(
		`EXIT_CODE_FILE=%s; trap 'mkdir -p "$(dirname "$EXIT_CODE_FILE")"; echo $? > "$EXIT_CODE_FILE"' EXIT; %s=1 %s`,
		util.ShellQuote(exitFile), EnvWrapped, util.ShellJoin(argv),
	)
}

// ScriptCommand wraps command in script(1) so its terminal output is copied
// to logFile as it is produced. BSD and util-linux script differ in flags.
func ScriptCommand(goos, logFile, command string) string {
	if goos == "darwin" {
		return fmt.Sprintf("script -q -F %s /bin/sh -c %s", util.ShellQuote(logFile), util.ShellQuote(command))
	}
	return fmt.Sprintf("script -q -f %s -c %s", util.ShellQuote(logFile), util.ShellQuote(command))
}

// stream copies the session log to the console until the exit-code file
// appears, the session disappears, or the operator detaches. It reports
// whether the operator detached.
//
// The log is tailed once it exists. A session whose log is slow to appear
// is still waited for; only the marker, the session's absence or a detach
// end the wait.
func (s *Supervisor) stream(ctx context.Context, session, logPath, exitPath string) bool {
	interrupts, stop := s.interrupts()
	defer stop()

	detach := func() bool {
		select {
		case <-interrupts:
			return true
		case <-ctx.Done():
			return true
		default:
			return false
		}
	}

	out := s.console.Writer()
	var tail *tailReader
	defer func() {
		if tail != nil {
			tail.close()
		}
	}()
	follow := func() {
		if tail != nil || !fileExists(logPath) {
			return
		}
		t, err := startTail(logPath)
		if err != nil {
			s.logger.Warn("cannot follow session output", "log", logPath, "error", err)
			return
		}
		tail = t
	}

	started := time.Now()
	warned := false
	var lastMarker time.Time
	lastSession := started
	for {
		if detach() {
			return true
		}
		follow()
		if tail == nil && !warned && time.Since(started) >= s.logWait {
			warned = true
			s.logger.Warn("session output has not appeared yet; still waiting", "session", session, "log", logPath)
		}

		if tail != nil && !tail.eof {
			tail.pump(out, time.Millisecond)
		} else {
			time.Sleep(s.opts.MarkerCheckInterval)
		}

		now := time.Now()
		if now.Sub(lastMarker) >= s.opts.MarkerCheckInterval {
			lastMarker = now
			if fileExists(exitPath) {
				break
			}
		}
		if now.Sub(lastSession) >= s.opts.SessionCheckInterval {
			lastSession = now
			if !s.Exists(ctx, session) {
				break
			}
		}
	}

	follow()
	if tail != nil {
		time.Sleep(drainDelay)
		tail.drain(out)
	}
	return false
}

// tailReader follows a file through `tail -f` on a non-blocking pipe.
type tailReader struct {
	cmd  *exec.Cmd
	pipe *os.File
	fd   int
	buf  []byte
	eof  bool
}

func startTail(path string) (*tailReader, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	cmd := exec.Command("tail", "-f", "-n", "+1", path)
	cmd.Stdout = w
	if err := cmd.Start(); err != nil {
		_ = r.Close()
		_ = w.Close()
		return nil, err
	}
	_ = w.Close()

	fd := int(r.Fd())
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		_ = r.Close()
		return nil, err
	}
	return &tailReader{cmd: cmd, pipe: r, fd: fd, buf: make([]byte, readChunkSize)}, nil
}

// pump waits up to timeout for output and copies at most one chunk.
func (t *tailReader) pump(out io.Writer, timeout time.Duration) {
	fds := []unix.PollFd{{Fd: int32(t.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, int(timeout.Milliseconds()))
	if err != nil || n == 0 {
		return
	}
	t.read(out)
}

// read copies one chunk. It reports whether data was read.
func (t *tailReader) read(out io.Writer) bool {
	n, err := unix.Read(t.fd, t.buf)
	if n > 0 {
		_, _ = out.Write(t.buf[:n])
		return true
	}
	if err == nil {
		t.eof = true
	}
	return false
}

// drain copies everything already buffered in the pipe.
func (t *tailReader) drain(out io.Writer) {
	for !t.eof && t.read(out) {
	}
}

func (t *tailReader) close() {
	_ = t.cmd.Process.Kill()
	_ = t.cmd.Wait()
	_ = t.pipe.Close()
}

// readExitCode waits up to timeout for path to hold a decimal exit code,
// returning 1 if it never does.
func readExitCode(path string, timeout time.Duration) int {
	deadline := time.Now().Add(timeout)
	for {
		if data, err := os.ReadFile(path); err == nil {
			text := strings.TrimSpace(string(data))
			if text != "" && strings.Trim(text, "0123456789") == "" {
				if code, err := strconv.Atoi(text); err == nil {
					return code
				}
			}
		}
		if time.Now().After(deadline) {
			return 1
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func stdioIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

func notifyInterrupts() (<-chan os.Signal, func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	return ch, func() { signal.Stop(ch) }
}
