package tmux

import (
	"context"
	"reflect"
	"testing"
)

func TestNewClient_DefaultSocket(t *testing.T) {
	if got := NewClient("").Socket(); got != DefaultSocket {
		t.Errorf("Socket() = %q, want %q", got, DefaultSocket)
	}
	if got := NewClient("custom").Socket(); got != "custom" {
		t.Errorf("Socket() = %q, want %q", got, "custom")
	}
}

func TestClient_Command(t *testing.T) {
	c := NewClient("foreman-test")
	cmd := c.Command(context.Background(), "has-session", "-t", "x")

	want := []string{"tmux", "-L", "foreman-test", "has-session", "-t", "x"}
	if !reflect.DeepEqual(cmd.Args, want) {
		t.Errorf("Args = %v, want %v", cmd.Args, want)
	}
}

func TestClient_AttachCommand(t *testing.T) {
	got := NewClient("").AttachCommand("foreman-impl-notes")
	want := "tmux -L foreman attach -t foreman-impl-notes"
	if got != want {
		t.Errorf("AttachCommand() = %q, want %q", got, want)
	}
}

func TestSanitizeSessionName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"stage-1", "stage-1"},
		{"user/feat/models", "user-feat-models"},
		{"design doc", "design-doc"},
		{"v1.2:fix", "v1-2-fix"},
	}
	for _, tt := range tests {
		if got := SanitizeSessionName(tt.in); got != tt.want {
			t.Errorf("SanitizeSessionName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSessionName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"feat/models", "foreman-feat-models"},
		{"foreman-fix-42", "foreman-fix-42"},
		{"impl notes", "foreman-impl-notes"},
	}
	for _, tt := range tests {
		got := SessionName(tt.in)
		if got != tt.want {
			t.Errorf("SessionName(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if again := SessionName(got); again != got {
			t.Errorf("SessionName not idempotent: %q -> %q", got, again)
		}
	}
}

func TestIsOwned(t *testing.T) {
	if !IsOwned("foreman-x") {
		t.Error("IsOwned(foreman-x) = false")
	}
	for _, name := range []string{"main", "foreman", "work-foreman-x"} {
		if IsOwned(name) {
			t.Errorf("IsOwned(%q) = true", name)
		}
	}
}
