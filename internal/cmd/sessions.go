package cmd

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/foreman/internal/cleanup"
	"github.com/Iron-Ham/foreman/internal/errors"
	"github.com/Iron-Ham/foreman/internal/session"
	"github.com/Iron-Ham/foreman/internal/tmux"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List or stop foreman's tmux sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List running sessions",
	Args:    cobra.NoArgs,
	RunE:    runSessionsList,
}

var sessionsKillCmd = &cobra.Command{
	Use:   "kill [session]...",
	Short: "Stop sessions and their process trees",
	RunE:  runSessionsKill,
}

var (
	sessionsKillAll     bool
	sessionsKillExclude []string
)

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd, sessionsKillCmd)
	sessionsKillCmd.Flags().BoolVar(&sessionsKillAll, "all", false, "stop every foreman session")
	sessionsKillCmd.Flags().StringSliceVar(&sessionsKillExclude, "exclude", nil, "glob patterns of sessions to keep (with --all)")
}

func runSessionsList(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.close()

	if runs, err := session.ActiveRuns(a.cfg.Paths.SessionsDir); err == nil && len(runs) > 0 {
		rows := make([][]string, 0, len(runs))
		for _, r := range runs {
			rows = append(rows, []string{r.Scope, r.Lock.Command, r.Lock.RunID, strconv.Itoa(r.Lock.PID)})
		}
		a.out.Header("Active runs")
		a.out.Table([]string{"Scope", "Command", "Run", "PID"}, rows, 60)
	}

	sessions, err := a.sup.ListOwned(cmd.Context())
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		a.out.Info("No foreman sessions running.")
		return nil
	}
	a.out.Header("Sessions")

	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		attached := "no"
		if s.Attached {
			attached = "yes"
		}
		created := ""
		if !s.Created.IsZero() {
			created = s.Created.Local().Format("2006-01-02 15:04")
		}
		rows = append(rows, []string{s.Name, strconv.Itoa(s.Windows), attached, created})
	}
	a.out.Table([]string{"Session", "Windows", "Attached", "Created"}, rows, 60)
	a.out.Dim("Attach with: %s", a.sup.AttachCommand("<session>"))
	return nil
}

func runSessionsKill(cmd *cobra.Command, args []string) error {
	if sessionsKillAll == (len(args) > 0) {
		return errors.Wrap(errors.ErrInvalidInput, "name sessions to stop or pass --all")
	}

	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.close()
	ctx := cmd.Context()

	if sessionsKillAll {
		if a.dryRun {
			return a.previewKill(cmd)
		}
		killed, err := a.sup.KillAllOwned(ctx, sessionsKillExclude)
		if err != nil {
			return err
		}
		for _, name := range killed {
			a.out.Success("Stopped %s", name)
		}
		if len(killed) == 0 {
			a.out.Info("No sessions stopped.")
		}
		return nil
	}

	for _, name := range args {
		full := tmux.SessionName(name)
		if !a.sup.Exists(ctx, full) {
			a.out.Warn("No session %s", full)
			continue
		}
		if a.dryRun {
			a.out.Info("Would stop %s", full)
			continue
		}
		a.sup.Kill(ctx, full)
		a.out.Success("Stopped %s", full)
	}
	return nil
}

func (a *app) previewKill(cmd *cobra.Command) error {
	sessions, err := a.sup.ListOwned(cmd.Context())
	if err != nil {
		return err
	}
	for _, s := range sessions {
		if cleanup.MatchesAny(s.Name, sessionsKillExclude) {
			continue
		}
		a.out.Info("Would stop %s", s.Name)
	}
	return nil
}
