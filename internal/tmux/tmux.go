// Package tmux provides socket-scoped helpers for the tmux server that hosts
// foreman's detached sessions.
//
// Every session foreman creates lives on one named socket (default
// "foreman") and carries the "foreman-" name prefix, so listing and bulk
// cleanup never touch a user's own tmux sessions.
package tmux

import (
	"context"
	"os"
	"os/exec"
	"strings"
)

// DefaultSocket is the tmux socket name used when none is configured.
const DefaultSocket = "foreman"

// SessionPrefix marks a session as owned by foreman.
const SessionPrefix = "foreman-"

// Client runs tmux commands against one socket.
type Client struct {
	socket string
}

// NewClient returns a Client for socket. An empty socket selects DefaultSocket.
func NewClient(socket string) *Client {
	if socket == "" {
		socket = DefaultSocket
	}
	return &Client{socket: socket}
}

// Socket returns the socket name passed to tmux -L.
func (c *Client) Socket() string {
	return c.socket
}

// Args prefixes args with the socket selection flags.
func (c *Client) Args(args ...string) []string {
	return append([]string{"-L", c.socket}, args...)
}

// Command creates a context-aware exec.Cmd for tmux on the client's socket.
func (c *Client) Command(ctx context.Context, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, "tmux", c.Args(args...)...)
}

// Run executes a tmux command and returns its combined output.
func (c *Client) Run(ctx context.Context, args ...string) ([]byte, error) {
	return c.Command(ctx, args...).CombinedOutput()
}

// Interactive runs a tmux command attached to the current terminal, as needed
// for attach-session.
func (c *Client) Interactive(ctx context.Context, args ...string) error {
	cmd := c.Command(ctx, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// AttachCommand returns the shell command an operator types to reattach to
// session.
func (c *Client) AttachCommand(session string) string {
	return "tmux -L " + c.socket + " attach -t " + session
}

// SanitizeSessionName makes name acceptable to tmux. Slashes and spaces
// become dashes; tmux also rejects "." and ":" in target names.
func SanitizeSessionName(name string) string {
	return strings.NewReplacer("/", "-", " ", "-", ".", "-", ":", "-").Replace(name)
}

// SessionName derives the owned session name for name. It is idempotent.
func SessionName(name string) string {
	name = SanitizeSessionName(name)
	if IsOwned(name) {
		return name
	}
	return SessionPrefix + name
}

// IsOwned reports whether session carries the owned prefix.
func IsOwned(session string) bool {
	return strings.HasPrefix(session, SessionPrefix)
}
