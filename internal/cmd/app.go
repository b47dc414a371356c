package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/foreman/internal/ai"
	"github.com/Iron-Ham/foreman/internal/config"
	"github.com/Iron-Ham/foreman/internal/console"
	"github.com/Iron-Ham/foreman/internal/engine"
	"github.com/Iron-Ham/foreman/internal/errors"
	"github.com/Iron-Ham/foreman/internal/hosting"
	_ "github.com/Iron-Ham/foreman/internal/hosting/github"
	_ "github.com/Iron-Ham/foreman/internal/hosting/gitlab"
	"github.com/Iron-Ham/foreman/internal/logging"
	"github.com/Iron-Ham/foreman/internal/supervisor"
	"github.com/Iron-Ham/foreman/internal/tmux"
	"github.com/Iron-Ham/foreman/internal/tracker"
	"github.com/Iron-Ham/foreman/internal/worktree"
)

// ExitError carries the exit code of a supervised re-execution.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// Report prints err for the operator and returns the process exit code.
// A supervised re-execution's code passes through unprinted. Fatal errors
// are the ones raised before anything was scheduled.
func Report(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	var exit *ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}
	p := console.New(w)
	if errors.GetSeverity(err) <= errors.SeverityWarning {
		p.Warn("%s", err)
	} else {
		p.Error("%s", err)
	}
	switch {
	case errors.IsFatal(err):
		p.Dim("No sessions were scheduled.")
	case !errors.IsUserFacing(err):
		p.Dim("Enable logging.enabled for the full debug log.")
	}
	return 1
}

// app holds the collaborators one command invocation needs.
type app struct {
	cfg     *config.Config
	runID   string
	log     *logging.Logger
	out     *console.Printer
	tmux    *tmux.Client
	sup     *supervisor.Supervisor
	agent   *ai.Claude
	repo    *worktree.Repo
	verbose bool
	dryRun  bool
}

// newApp loads configuration and builds the shared collaborators. The
// repository is opened only when needRepo is set.
func newApp(cmd *cobra.Command, needRepo bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		runID:   uuid.NewString(),
		out:     console.New(cmd.OutOrStdout()),
		verbose: viper.GetBool("verbose"),
		dryRun:  viper.GetBool("dry_run"),
	}

	a.log = logging.NopLogger()
	if cfg.Logging.Enabled {
		logDir := filepath.Join(cfg.Paths.SessionsDir, "runs", a.runID)
		if l, err := logging.NewLogger(logDir, cfg.Logging.Level); err == nil {
			a.log = l
		} else {
			a.out.Warn("debug log disabled: %v", err)
		}
	}

	a.tmux = tmux.NewClient(cfg.Supervisor.Socket)
	a.sup = supervisor.New(a.tmux, supervisor.Options{
		SessionsDir:          cfg.Paths.SessionsDir,
		HistoryLimit:         cfg.Supervisor.HistoryLimit,
		MarkerCheckInterval:  cfg.Supervisor.MarkerCheckInterval(),
		SessionCheckInterval: cfg.Supervisor.SessionCheckInterval(),
		Hints:                supervisor.NewHintStore(config.StateDir()),
		Console:              a.out,
	}, a.log)
	a.agent = ai.NewClaude(cfg.Agent, a.log)

	if needRepo {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		if a.repo, err = worktree.OpenRepo(cwd); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *app) close() {
	_ = a.log.Close()
}

// checkDependencies fails before any scheduling when a required tool is
// missing or the agent does not run. script is only needed when the run
// wraps itself in a session.
func (a *app) checkDependencies(ctx context.Context, wrap bool) error {
	tools := []string{"git", "tmux", a.agent.Executable()}
	if wrap {
		tools = append(tools, "script")
	}
	var missing []string
	for _, tool := range tools {
		if _, err := exec.LookPath(tool); err != nil {
			missing = append(missing, tool)
		}
	}
	if len(missing) > 0 {
		a.log.Error("missing dependencies", "tools", missing)
		return errors.NewDependencyError(missing)
	}
	return a.agent.CheckInstalled(ctx)
}

// supervise re-executes the current command inside a rejoinable session
// when configured and possible. handled is true when the command already
// ran (or is still running detached) and the caller must return err as is.
func (a *app) supervise(ctx context.Context, name string) (handled bool, err error) {
	if !a.cfg.Supervisor.Rejoin || a.dryRun || !a.sup.ShouldWrap() {
		return false, nil
	}
	outcome, err := a.sup.RejoinableSupervise(ctx, name, os.Args)
	if err != nil {
		return true, err
	}
	if !outcome.Supervised {
		return false, nil
	}
	if outcome.Detached || outcome.ExitCode == 0 {
		return true, nil
	}
	return true, &ExitError{Code: outcome.ExitCode}
}

func (a *app) workspaces() *worktree.Manager {
	return worktree.NewManager(a.repo, a.cfg.Paths.ResolveWorktreeDir(a.repo.Root()), a.log)
}

func (a *app) tracker() tracker.Tracker {
	return tracker.New(a.cfg.Tracker, a.log)
}

func (a *app) deps(workspaces engine.Workspaces, tr tracker.Tracker) *engine.Deps {
	return &engine.Deps{
		Config:     a.cfg,
		Agent:      a.agent,
		Sessions:   a.sup,
		Workspaces: workspaces,
		Tracker:    tr,
		Console:    a.out,
		Logger:     a.log,
		Verbose:    a.verbose,
	}
}

func (a *app) hostingConfig() (hosting.Config, error) {
	cfg := hosting.Config{
		Provider:    a.cfg.Hosting.Provider,
		BaseURL:     a.cfg.Hosting.BaseURL,
		TokenEnvVar: a.cfg.Hosting.TokenEnvVar,
	}
	if a.repo != nil {
		remote, err := a.repo.RemoteURL()
		if err != nil && (cfg.Provider == "" || cfg.Provider == "auto") {
			return cfg, err
		}
		cfg.RemoteURL = remote
	}
	return cfg, nil
}

func (a *app) hostingProvider() (hosting.Provider, error) {
	cfg, err := a.hostingConfig()
	if err != nil {
		return nil, err
	}
	return hosting.NewProvider(cfg)
}

// checkHostingToken verifies a token is available before a fix run starts.
func (a *app) checkHostingToken() error {
	cfg, err := a.hostingConfig()
	if err != nil {
		return err
	}
	pt, err := hosting.ResolveType(cfg)
	if err != nil {
		return err
	}
	_, err = hosting.ResolveToken(pt, cfg)
	return err
}

// printHeader prints the run banner shared by implement and fix.
func (a *app) printHeader(title string) {
	a.out.Header("%s", title)
	a.out.Field("Run", a.runID)
	if a.repo != nil {
		a.out.Field("Repository", a.repo.Root())
	}
	if a.cfg.Tracker.Enabled && a.cfg.Tracker.URL != "" {
		a.out.Field("Tracker", a.cfg.Tracker.URL)
	}
	if a.cfg.Logging.Enabled {
		a.out.Field("Debug log", filepath.Join(a.cfg.Paths.SessionsDir, "runs", a.runID, logging.LogFileName))
	}
}

func stem(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}
