package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete foreman configuration
type Config struct {
	Agent      AgentConfig      `mapstructure:"agent"`
	Branch     BranchConfig     `mapstructure:"branch"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	Paths      PathsConfig      `mapstructure:"paths"`
	Fix        FixConfig        `mapstructure:"fix"`
	Hosting    HostingConfig    `mapstructure:"hosting"`
	Tracker    TrackerConfig    `mapstructure:"tracker"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// AgentConfig controls how the coding agent is invoked
type AgentConfig struct {
	// Command is the agent executable (default: "claude")
	Command string `mapstructure:"command"`
	// Model is passed to the agent with --model
	Model string `mapstructure:"model"`
	// SkipPermissions adds --dangerously-skip-permissions so detached
	// sessions never block on an approval prompt (default: true)
	SkipPermissions bool `mapstructure:"skip_permissions"`
	// StreamJSON requests stream-json output and mirrors it to a
	// diagnostic file next to the output file (default: true)
	StreamJSON bool `mapstructure:"stream_json"`
}

// BranchConfig controls branch naming
type BranchConfig struct {
	// Base is the branch stages without a dependency are created from (default: "main")
	Base string `mapstructure:"base"`
	// Prefix is prepended to generated stage branches, e.g. "username/"
	Prefix string `mapstructure:"prefix"`
}

// SupervisorConfig controls detached session supervision
type SupervisorConfig struct {
	// Socket is the tmux socket name all owned sessions live on (default: "foreman")
	Socket string `mapstructure:"socket"`
	// PollIntervalMs is how often WaitForAll checks completion markers (default: 5000)
	PollIntervalMs int `mapstructure:"poll_interval_ms"`
	// MarkerCheckMs is the cheap marker check period while streaming a
	// rejoinable session (default: 100)
	MarkerCheckMs int `mapstructure:"marker_check_ms"`
	// SessionCheckSeconds is the expensive has-session fallback period (default: 10)
	SessionCheckSeconds int `mapstructure:"session_check_seconds"`
	// HistoryLimit is the tmux scrollback kept per session (default: 50000)
	HistoryLimit int `mapstructure:"history_limit"`
	// Rejoin re-executes top-level commands inside a supervised session so a
	// lost terminal does not kill the run (default: true)
	Rejoin bool `mapstructure:"rejoin"`
}

// PathsConfig controls where foreman stores data
type PathsConfig struct {
	// WorktreeDir is where git worktrees are created.
	// If empty, defaults to ".foreman/worktrees" relative to the repository root.
	// Supports ~ for home directory expansion.
	WorktreeDir string `mapstructure:"worktree_dir"`
	// TempDir holds per-session prompt, output and exit files (default: os.TempDir())
	TempDir string `mapstructure:"temp_dir"`
	// PlansDir holds generated plan documents (default: {state}/plans)
	PlansDir string `mapstructure:"plans_dir"`
	// SessionsDir holds per-run logs and locks (default: {state}/sessions)
	SessionsDir string `mapstructure:"sessions_dir"`
}

// FixConfig controls the convergence loop
type FixConfig struct {
	// MaxIterations caps the loop; 0 means unlimited
	MaxIterations int `mapstructure:"max_iterations"`
	// IterationDelaySeconds is the pause between iterations (default: 10)
	IterationDelaySeconds int `mapstructure:"iteration_delay_seconds"`
	// RetryDelaySeconds is the pause after a failed fix-planning step (default: 5)
	RetryDelaySeconds int `mapstructure:"retry_delay_seconds"`
}

// HostingConfig selects the code-hosting provider
type HostingConfig struct {
	// Provider is "auto", "github" or "gitlab" (default: "auto", detected from origin)
	Provider string `mapstructure:"provider"`
	// BaseURL overrides the API base for self-hosted instances
	BaseURL string `mapstructure:"base_url"`
	// TokenEnvVar names the environment variable holding the API token.
	// Empty uses GITHUB_TOKEN or GITLAB_TOKEN depending on the provider.
	TokenEnvVar string `mapstructure:"token_env_var"`
}

// TrackerConfig controls the optional task-board integration
type TrackerConfig struct {
	// Enabled turns on task creation and status updates (default: false)
	Enabled bool `mapstructure:"enabled"`
	// ProjectID is the board project tasks are created in
	ProjectID string `mapstructure:"project_id"`
	// Command and Args start the MCP server over stdio
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
	// URL is printed in run headers when set
	URL string `mapstructure:"url"`
	// TimeoutSeconds bounds each tracker call (default: 30)
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether run logs are written (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is "debug", "info", "warn" or "error" (default: "info")
	Level string `mapstructure:"level"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	state := StateDir()
	return &Config{
		Agent: AgentConfig{
			Command:         "claude",
			Model:           "claude-opus-4-5-20251101",
			SkipPermissions: true,
			StreamJSON:      true,
		},
		Branch: BranchConfig{
			Base: "main",
		},
		Supervisor: SupervisorConfig{
			Socket:              "foreman",
			PollIntervalMs:      5000,
			MarkerCheckMs:       100,
			SessionCheckSeconds: 10,
			HistoryLimit:        50000,
			Rejoin:              true,
		},
		Paths: PathsConfig{
			TempDir:     os.TempDir(),
			PlansDir:    filepath.Join(state, "plans"),
			SessionsDir: filepath.Join(state, "sessions"),
		},
		Fix: FixConfig{
			IterationDelaySeconds: 10,
			RetryDelaySeconds:     5,
		},
		Hosting: HostingConfig{
			Provider: "auto",
		},
		Tracker: TrackerConfig{
			Command:        "npx",
			Args:           []string{"vibe-kanban@latest", "--mcp"},
			TimeoutSeconds: 30,
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
		},
	}
}

// PollInterval returns the WaitForAll poll interval
func (c *SupervisorConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// MarkerCheckInterval returns the cheap marker check period
func (c *SupervisorConfig) MarkerCheckInterval() time.Duration {
	return time.Duration(c.MarkerCheckMs) * time.Millisecond
}

// SessionCheckInterval returns the expensive has-session fallback period
func (c *SupervisorConfig) SessionCheckInterval() time.Duration {
	return time.Duration(c.SessionCheckSeconds) * time.Second
}

// IterationDelay returns the pause between convergence iterations
func (c *FixConfig) IterationDelay() time.Duration {
	return time.Duration(c.IterationDelaySeconds) * time.Second
}

// RetryDelay returns the pause after a failed fix-planning step
func (c *FixConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

// Timeout returns the per-call tracker timeout
func (c *TrackerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ResolveWorktreeDir returns the resolved worktree directory path.
// Empty resolves to {baseDir}/.foreman/worktrees; relative paths resolve
// against baseDir; ~ expands to the home directory.
func (p *PathsConfig) ResolveWorktreeDir(baseDir string) string {
	if p.WorktreeDir == "" {
		return filepath.Join(baseDir, ".foreman", "worktrees")
	}

	path := expandHome(p.WorktreeDir)
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	return path
}

// ResolveTempDir returns TempDir with ~ expanded, falling back to os.TempDir().
func (p *PathsConfig) ResolveTempDir() string {
	if p.TempDir == "" {
		return os.TempDir()
	}
	return expandHome(p.TempDir)
}

func expandHome(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		return filepath.Join(home, rest)
	}
	return path
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Agent defaults
	viper.SetDefault("agent.command", defaults.Agent.Command)
	viper.SetDefault("agent.model", defaults.Agent.Model)
	viper.SetDefault("agent.skip_permissions", defaults.Agent.SkipPermissions)
	viper.SetDefault("agent.stream_json", defaults.Agent.StreamJSON)

	// Branch defaults
	viper.SetDefault("branch.base", defaults.Branch.Base)
	viper.SetDefault("branch.prefix", defaults.Branch.Prefix)

	// Supervisor defaults
	viper.SetDefault("supervisor.socket", defaults.Supervisor.Socket)
	viper.SetDefault("supervisor.poll_interval_ms", defaults.Supervisor.PollIntervalMs)
	viper.SetDefault("supervisor.marker_check_ms", defaults.Supervisor.MarkerCheckMs)
	viper.SetDefault("supervisor.session_check_seconds", defaults.Supervisor.SessionCheckSeconds)
	viper.SetDefault("supervisor.history_limit", defaults.Supervisor.HistoryLimit)
	viper.SetDefault("supervisor.rejoin", defaults.Supervisor.Rejoin)

	// Paths defaults
	viper.SetDefault("paths.worktree_dir", defaults.Paths.WorktreeDir)
	viper.SetDefault("paths.temp_dir", defaults.Paths.TempDir)
	viper.SetDefault("paths.plans_dir", defaults.Paths.PlansDir)
	viper.SetDefault("paths.sessions_dir", defaults.Paths.SessionsDir)

	// Fix defaults
	viper.SetDefault("fix.max_iterations", defaults.Fix.MaxIterations)
	viper.SetDefault("fix.iteration_delay_seconds", defaults.Fix.IterationDelaySeconds)
	viper.SetDefault("fix.retry_delay_seconds", defaults.Fix.RetryDelaySeconds)

	// Hosting defaults
	viper.SetDefault("hosting.provider", defaults.Hosting.Provider)
	viper.SetDefault("hosting.base_url", defaults.Hosting.BaseURL)
	viper.SetDefault("hosting.token_env_var", defaults.Hosting.TokenEnvVar)

	// Tracker defaults
	viper.SetDefault("tracker.enabled", defaults.Tracker.Enabled)
	viper.SetDefault("tracker.project_id", defaults.Tracker.ProjectID)
	viper.SetDefault("tracker.command", defaults.Tracker.Command)
	viper.SetDefault("tracker.args", defaults.Tracker.Args)
	viper.SetDefault("tracker.url", defaults.Tracker.URL)
	viper.SetDefault("tracker.timeout_seconds", defaults.Tracker.TimeoutSeconds)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "foreman")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".foreman"
	}
	return filepath.Join(home, ".config", "foreman")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// StateDir returns the directory for plans, run logs and the last-session hint
func StateDir() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "foreman")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".foreman"
	}
	return filepath.Join(home, ".foreman")
}

// ValidHostingProviders returns the accepted hosting.provider values
func ValidHostingProviders() []string {
	return []string{"auto", "github", "gitlab"}
}
