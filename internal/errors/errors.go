// Package errors provides centralized error definitions for foreman.
//
// It defines sentinel errors grouped by subsystem, domain error types that
// carry structured context (branch, session, tool names), and classification
// helpers used at the CLI boundary to decide what is fatal.
//
// # Usage
//
//	err := errors.NewGitError("failed to create worktree", cause).
//		WithBranch("stage-1-models").
//		WithGitOutput(out)
//
//	if errors.Is(err, errors.ErrWorktreeCreate) { ... }
//
//	var depErr *errors.DependencyError
//	if errors.As(err, &depErr) {
//		fmt.Println(depErr.Missing)
//	}
//
// # Fatal vs. unit-local errors
//
// Only configuration and dependency errors are meant to reach the process
// exit code. Git, session and agent errors are scoped to one unit of work
// and are logged by the engine rather than returned from a batch.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions so callers only import this package.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Plan-related sentinel errors
var (
	// ErrPlanNotFound indicates that a plan document could not be read.
	ErrPlanNotFound = New("plan not found")
	// ErrPlanInvalid indicates that a plan failed validation.
	ErrPlanInvalid = New("plan is invalid")
	// ErrPlanningFailed indicates that the planning phase produced no usable plan.
	ErrPlanningFailed = New("planning failed")
)

// Workspace-related sentinel errors
var (
	// ErrNotGitRepository indicates that the directory is not a git repository.
	ErrNotGitRepository = New("not a git repository")
	// ErrWorktreeCreate indicates that a worktree could not be created.
	ErrWorktreeCreate = New("worktree creation failed")
)

// Session-related sentinel errors
var (
	// ErrSessionLaunch indicates that a detached session could not be started.
	ErrSessionLaunch = New("session launch failed")
	// ErrSessionNotFound indicates that a named session does not exist.
	ErrSessionNotFound = New("session not found")
	// ErrSessionLocked indicates another orchestrator owns the run directory.
	ErrSessionLocked = New("session is locked")
)

// Collaborator-related sentinel errors
var (
	// ErrDependencyMissing indicates that required external tooling is absent.
	ErrDependencyMissing = New("required dependency missing")
	// ErrAgentFailed indicates that a foreground agent invocation failed.
	ErrAgentFailed = New("agent invocation failed")
	// ErrChangeSetNotFound indicates that the hosting service has no such change-set.
	ErrChangeSetNotFound = New("change-set not found")
	// ErrInvalidIdentifier indicates an unparseable change-set identifier.
	ErrInvalidIdentifier = New("invalid change-set identifier")
)

// General sentinel errors
var (
	// ErrCanceled indicates that an operation was canceled by the operator.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error
// -----------------------------------------------------------------------------

// ForemanError is implemented by every domain error in this package.
type ForemanError interface {
	error
	Unwrap() error
	Severity() Severity
	IsRetryable() bool
	IsUserFacing() bool
}

type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *baseError) Unwrap() error      { return e.cause }
func (e *baseError) Severity() Severity { return e.severity }
func (e *baseError) IsRetryable() bool  { return e.retryable }
func (e *baseError) IsUserFacing() bool { return e.userFacing }

// format renders "<kind> [k=v, ...]: message: cause".
func (e *baseError) format(kind string, parts []string) string {
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// Domain Errors
// -----------------------------------------------------------------------------

// DependencyError reports external tools that must be installed before any
// scheduling can begin.
//
// Example:
//
//	err := errors.NewDependencyError([]string{"tmux", "script"})
//	fmt.Println(err) // "dependency error: missing required tools: tmux, script: required dependency missing"
type DependencyError struct {
	baseError
	Missing []string
}

// NewDependencyError creates a DependencyError for the given tool names.
func NewDependencyError(missing []string) *DependencyError {
	return &DependencyError{
		baseError: baseError{
			message:    "missing required tools: " + strings.Join(missing, ", "),
			cause:      ErrDependencyMissing,
			severity:   SeverityCritical,
			userFacing: true,
		},
		Missing: missing,
	}
}

// Error returns the formatted error message.
func (e *DependencyError) Error() string {
	return e.format("dependency error", nil)
}

// GitError represents errors from git and worktree operations.
type GitError struct {
	baseError
	Branch    string
	Worktree  string
	Base      string
	GitOutput string
}

// NewGitError creates a new GitError.
func NewGitError(message string, cause error) *GitError {
	return &GitError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
	}
}

// WithBranch adds a branch name to the error context.
func (e *GitError) WithBranch(branch string) *GitError {
	e.Branch = branch
	return e
}

// WithWorktree adds a worktree path to the error context.
func (e *GitError) WithWorktree(path string) *GitError {
	e.Worktree = path
	return e
}

// WithBase adds the base ref a worktree was created from.
func (e *GitError) WithBase(base string) *GitError {
	e.Base = base
	return e
}

// WithGitOutput adds git command output to the error context.
func (e *GitError) WithGitOutput(output string) *GitError {
	e.GitOutput = strings.TrimSpace(output)
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *GitError) WithRetryable(r bool) *GitError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *GitError) Error() string {
	var parts []string
	if e.Branch != "" {
		parts = append(parts, "branch="+e.Branch)
	}
	if e.Base != "" {
		parts = append(parts, "base="+e.Base)
	}
	if e.Worktree != "" {
		parts = append(parts, "worktree="+e.Worktree)
	}
	msg := e.format("git error", parts)
	if e.GitOutput != "" {
		msg += "\ngit output: " + e.GitOutput
	}
	return msg
}

// Is matches any *GitError target in addition to the wrapped cause.
func (e *GitError) Is(target error) bool {
	_, ok := target.(*GitError)
	return ok
}

// SessionError represents errors from detached session management.
type SessionError struct {
	baseError
	Session string
}

// NewSessionError creates a new SessionError.
func NewSessionError(message string, cause error) *SessionError {
	return &SessionError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
	}
}

// WithSession adds a session name to the error context.
func (e *SessionError) WithSession(name string) *SessionError {
	e.Session = name
	return e
}

// Error returns the formatted error message.
func (e *SessionError) Error() string {
	var parts []string
	if e.Session != "" {
		parts = append(parts, "session="+e.Session)
	}
	return e.format("session error", parts)
}

// Is matches any *SessionError target.
func (e *SessionError) Is(target error) bool {
	_, ok := target.(*SessionError)
	return ok
}

// AgentError represents a failed foreground agent run.
type AgentError struct {
	baseError
	ExitCode int
	Output   string
}

// NewAgentError creates a new AgentError.
func NewAgentError(message string, exitCode int, output string) *AgentError {
	return &AgentError{
		baseError: baseError{
			message:    message,
			cause:      ErrAgentFailed,
			severity:   SeverityError,
			retryable:  true,
			userFacing: true,
		},
		ExitCode: exitCode,
		Output:   output,
	}
}

// Error returns the formatted error message.
func (e *AgentError) Error() string {
	return e.format("agent error", []string{fmt.Sprintf("exit=%d", e.ExitCode)})
}

// HostingError represents errors returned by the code-hosting provider.
type HostingError struct {
	baseError
	Provider string
	Number   int
}

// NewHostingError creates a new HostingError.
func NewHostingError(provider, message string, cause error) *HostingError {
	return &HostingError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  true,
			userFacing: true,
		},
		Provider: provider,
	}
}

// WithNumber adds the change-set number to the error context.
func (e *HostingError) WithNumber(n int) *HostingError {
	e.Number = n
	return e
}

// Error returns the formatted error message.
func (e *HostingError) Error() string {
	var parts []string
	if e.Provider != "" {
		parts = append(parts, "provider="+e.Provider)
	}
	if e.Number > 0 {
		parts = append(parts, fmt.Sprintf("number=%d", e.Number))
	}
	return e.format("hosting error", parts)
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable reports whether err is transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var fe ForemanError
	if As(err, &fe) {
		return fe.IsRetryable()
	}
	return false
}

// IsUserFacing reports whether err is safe to print to the operator verbatim.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	var fe ForemanError
	if As(err, &fe) {
		return fe.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity of err, SeverityError for foreign errors.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var fe ForemanError
	if As(err, &fe) {
		return fe.Severity()
	}
	return SeverityError
}

// IsFatal reports whether err should terminate the process with a nonzero
// exit: missing tooling, invalid plans and invalid input.
func IsFatal(err error) bool {
	return Is(err, ErrDependencyMissing) || Is(err, ErrPlanInvalid) ||
		Is(err, ErrInvalidInput) || Is(err, ErrPlanningFailed)
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
