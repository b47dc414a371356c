package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/foreman/internal/config"
	"github.com/Iron-Ham/foreman/internal/errors"
	"github.com/Iron-Ham/foreman/internal/supervisor"
)

var rejoinCmd = &cobra.Command{
	Use:   "rejoin [session]",
	Short: "Reattach to a running implement or fix session",
	Long: `Rejoin attaches the terminal to a foreman session that kept running
after its terminal was lost. Without an argument the most recently started
session is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRejoin,
}

func init() {
	rootCmd.AddCommand(rejoinCmd)
}

func runRejoin(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.close()
	ctx := cmd.Context()

	if len(args) == 1 {
		return a.sup.Attach(ctx, args[0])
	}

	hint, err := supervisor.NewHintStore(config.StateDir()).Load()
	if errors.Is(err, errors.ErrSessionNotFound) {
		a.out.Info("No session to rejoin.")
		a.out.Dim("Running sessions: foreman sessions list")
		return nil
	}
	if err != nil {
		return err
	}
	if !a.sup.Exists(ctx, hint.Session) {
		a.out.Warn("Session %s is no longer running.", hint.Session)
		return nil
	}

	a.out.Field("Session", hint.Session)
	a.out.Field("Command", hint.Command)
	a.out.Field("Started", hint.Started.Local().Format("2006-01-02 15:04:05"))
	return a.sup.Attach(ctx, hint.Session)
}
