// Package ai builds and runs coding-agent invocations.
//
// Agents run in two ways: detached inside a supervised session, following
// the per-session file protocol (SessionFiles), or in the foreground for
// short steps such as planning (RunPrompt).
package ai

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/Iron-Ham/foreman/internal/config"
	"github.com/Iron-Ham/foreman/internal/errors"
	"github.com/Iron-Ham/foreman/internal/logging"
	"github.com/Iron-Ham/foreman/internal/util"
)

// Claude invokes the Claude Code CLI.
type Claude struct {
	command         string
	model           string
	skipPermissions bool
	streamJSON      bool
	logger          *logging.Logger
}

// NewClaude creates a Claude invoker from agent configuration.
func NewClaude(cfg config.AgentConfig, logger *logging.Logger) *Claude {
	if logger == nil {
		logger = logging.NopLogger()
	}
	command := cfg.Command
	if command == "" {
		command = "claude"
	}
	return &Claude{
		command:         command,
		model:           cfg.Model,
		skipPermissions: cfg.SkipPermissions,
		streamJSON:      cfg.StreamJSON,
		logger:          logger.With("component", "agent"),
	}
}

// Executable returns the agent binary name, for dependency checks.
func (c *Claude) Executable() string {
	return c.command
}

// StreamJSON reports whether session output is stream-json.
func (c *Claude) StreamJSON() bool {
	return c.streamJSON
}

// args returns the CLI arguments shared by both invocation styles.
func (c *Claude) args(stream bool) []string {
	args := []string{}
	if c.model != "" {
		args = append(args, "--model", c.model)
	}
	args = append(args, "--print")
	if stream {
		args = append(args, "--output-format", "stream-json", "--verbose")
	}
	if c.skipPermissions {
		args = append(args, "--dangerously-skip-permissions")
	}
	return args
}

// SessionCommand returns the shell command run inside a detached session:
// the agent reads the prompt file, output is captured to the output file
// (and mirrored to the stream file when set), and the agent's own exit
// status is written to the exit file last. When mirroring, the status goes
// through a side file and is moved into place once tee has finished.
func (c *Claude) SessionCommand(files SessionFiles) string {
	agent := util.ShellJoin(append([]string{c.command}, c.args(c.streamJSON)...))
	prompt := util.ShellQuote(files.Prompt)
	output := util.ShellQuote(files.Output)
	exit := util.ShellQuote(files.Exit)

	if files.Stream == "" {
		return fmt.Sprintf("%s < %s > %s 2>&1 ; echo $? > %s", agent, prompt, output, exit)
	}
	status := util.ShellQuote(files.Exit + ".status")
	return fmt.Sprintf("{ %s < %s 2>&1 ; echo $? > %s ; } | tee %s > %s 2>&1 ; mv %s %s",
		agent, prompt, status, util.ShellQuote(files.Stream), output, status, exit)
}

// Result is the captured output of a foreground run.
type Result struct {
	Output   string
	ExitCode int
}

// RunPrompt runs the agent in the foreground with prompt on stdin and waits
// for it. A nonzero exit returns the Result together with an AgentError.
func (c *Claude) RunPrompt(ctx context.Context, prompt, workdir string) (*Result, error) {
	args := c.args(false)
	c.logger.Info("running agent", "model", c.model, "workdir", workdir, "prompt_chars", len(prompt))

	cmd := exec.CommandContext(ctx, c.command, args...)
	cmd.Dir = workdir
	cmd.Stdin = strings.NewReader(prompt)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	res := &Result{Output: out.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			c.logger.Error("agent could not start", "error", err)
			return nil, errors.NewAgentError("failed to run "+c.command+": "+err.Error(), -1, "")
		}
		res.ExitCode = exitErr.ExitCode()
		c.logger.Warn("agent exited with error", "exit_code", res.ExitCode, "output", util.FirstLine(res.Output))
		return res, errors.NewAgentError(c.command+" exited with an error", res.ExitCode, res.Output)
	}

	c.logger.Info("agent finished", "output_chars", len(res.Output))
	return res, nil
}

// CheckInstalled verifies the agent binary runs.
func (c *Claude) CheckInstalled(ctx context.Context) error {
	out, err := exec.CommandContext(ctx, c.command, "--version").CombinedOutput()
	if err != nil {
		c.logger.Warn("agent not available", "command", c.command, "error", err)
		return errors.NewDependencyError([]string{c.command})
	}
	c.logger.Debug("agent available", "version", strings.TrimSpace(string(out)))
	return nil
}
