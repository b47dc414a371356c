package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Agent.Command != "claude" {
		t.Errorf("Agent.Command = %q, want %q", cfg.Agent.Command, "claude")
	}
	if !cfg.Agent.SkipPermissions {
		t.Error("Agent.SkipPermissions should be true by default")
	}
	if cfg.Branch.Base != "main" {
		t.Errorf("Branch.Base = %q, want %q", cfg.Branch.Base, "main")
	}
	if cfg.Supervisor.Socket != "foreman" {
		t.Errorf("Supervisor.Socket = %q, want %q", cfg.Supervisor.Socket, "foreman")
	}
	if got := cfg.Supervisor.PollInterval(); got != 5*time.Second {
		t.Errorf("PollInterval() = %v, want 5s", got)
	}
	if got := cfg.Supervisor.MarkerCheckInterval(); got != 100*time.Millisecond {
		t.Errorf("MarkerCheckInterval() = %v, want 100ms", got)
	}
	if got := cfg.Supervisor.SessionCheckInterval(); got != 10*time.Second {
		t.Errorf("SessionCheckInterval() = %v, want 10s", got)
	}
	if cfg.Fix.MaxIterations != 0 {
		t.Errorf("Fix.MaxIterations = %d, want 0 (unlimited)", cfg.Fix.MaxIterations)
	}
	if got := cfg.Fix.IterationDelay(); got != 10*time.Second {
		t.Errorf("IterationDelay() = %v, want 10s", got)
	}
	if cfg.Tracker.Enabled {
		t.Error("Tracker.Enabled should be false by default")
	}

	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Default().Validate() = %v, want no errors", errs)
	}
}

func TestResolveWorktreeDir(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	tests := []struct {
		name        string
		worktreeDir string
		baseDir     string
		want        string
	}{
		{"empty uses default", "", "/repo", filepath.Join("/repo", ".foreman", "worktrees")},
		{"absolute", "/fast/wt", "/repo", "/fast/wt"},
		{"relative", "wt", "/repo", filepath.Join("/repo", "wt")},
		{"home", "~/wt", "/repo", filepath.Join(home, "wt")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := PathsConfig{WorktreeDir: tt.worktreeDir}
			if got := p.ResolveWorktreeDir(tt.baseDir); got != tt.want {
				t.Errorf("ResolveWorktreeDir() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"empty agent command", func(c *Config) { c.Agent.Command = " " }, "agent.command"},
		{"empty base", func(c *Config) { c.Branch.Base = "" }, "branch.base"},
		{"bad prefix", func(c *Config) { c.Branch.Prefix = "-bad" }, "branch.prefix"},
		{"bad socket", func(c *Config) { c.Supervisor.Socket = "a b" }, "supervisor.socket"},
		{"poll too fast", func(c *Config) { c.Supervisor.PollIntervalMs = 1 }, "supervisor.poll_interval_ms"},
		{"expensive check too frequent", func(c *Config) { c.Supervisor.SessionCheckSeconds = 0 }, "supervisor.session_check_seconds"},
		{"negative iterations", func(c *Config) { c.Fix.MaxIterations = -1 }, "fix.max_iterations"},
		{"unknown provider", func(c *Config) { c.Hosting.Provider = "bitbucket" }, "hosting.provider"},
		{"tracker without project", func(c *Config) { c.Tracker.Enabled = true }, "tracker.project_id"},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			errs := cfg.Validate()
			found := false
			for _, e := range errs {
				if e.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("Validate() = %v, want an error for %s", errs, tt.wantField)
			}
		})
	}
}

func TestValidationErrors_Error(t *testing.T) {
	errs := ValidationErrors{
		{Field: "a", Value: 1, Message: "bad"},
		{Field: "b", Value: 2, Message: "worse"},
	}
	msg := errs.Error()
	if !strings.HasPrefix(msg, "2 validation errors:") {
		t.Errorf("Error() = %q", msg)
	}
	if ValidationErrors(nil).Error() != "" {
		t.Error("empty ValidationErrors should render empty")
	}
}

func TestLoad(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	SetDefaults()
	viper.Set("branch.base", "develop")
	viper.Set("fix.max_iterations", 3)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Branch.Base != "develop" {
		t.Errorf("Branch.Base = %q, want develop", cfg.Branch.Base)
	}
	if cfg.Fix.MaxIterations != 3 {
		t.Errorf("Fix.MaxIterations = %d, want 3", cfg.Fix.MaxIterations)
	}
	if len(cfg.Tracker.Args) != 2 {
		t.Errorf("Tracker.Args = %v, want defaults", cfg.Tracker.Args)
	}

	viper.Set("logging.level", "loud")
	if _, err := Load(); err == nil {
		t.Error("Load() with invalid level should fail")
	}
}

func TestConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := ConfigDir(); got != filepath.Join("/xdg", "foreman") {
		t.Errorf("ConfigDir() = %q", got)
	}
	if got := ConfigFile(); got != filepath.Join("/xdg", "foreman", "config.yaml") {
		t.Errorf("ConfigFile() = %q", got)
	}

	t.Setenv("XDG_STATE_HOME", "/state")
	if got := StateDir(); got != filepath.Join("/state", "foreman") {
		t.Errorf("StateDir() = %q", got)
	}
}
