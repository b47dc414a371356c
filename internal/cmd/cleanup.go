package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/foreman/internal/cleanup"
	"github.com/Iron-Ham/foreman/internal/worktree"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove worktrees, sessions and files left by interrupted runs",
	Long: `Cleanup removes what a crashed or killed run can leave behind:

  - worktrees under the configured worktree directory
  - foreman tmux sessions (see --exclude)
  - stale run locks whose process is gone
  - prompt, output and exit files in the temp directory

Nothing is removed while another foreman run holds a lock, unless --force
is given. Use --dry-run to see what would be removed.`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

var (
	cleanupForce   bool
	cleanupExclude []string
)

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().BoolVarP(&cleanupForce, "force", "f", false, "clean up even while a run holds a lock")
	cleanupCmd.Flags().StringSliceVar(&cleanupExclude, "exclude", nil, "glob patterns of sessions to keep")
}

func runCleanup(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.close()
	ctx := cmd.Context()

	opts := cleanup.Options{
		Sessions:    a.sup,
		SessionsDir: a.cfg.Paths.SessionsDir,
		TempDir:     a.cfg.Paths.ResolveTempDir(),
		Exclude:     cleanupExclude,
	}
	if cwd, err := os.Getwd(); err == nil {
		if repo, err := worktree.OpenRepo(cwd); err == nil {
			opts.Git = repo
			opts.WorktreeDir = a.cfg.Paths.ResolveWorktreeDir(repo.Root())
		}
	}
	if opts.Git == nil {
		a.out.Dim("Not in a git repository; skipping worktrees.")
	}

	job := cleanup.Scan(ctx, opts)
	for _, w := range job.Warnings {
		a.out.Warn("%s", w)
	}
	if len(job.Active) > 0 && !cleanupForce {
		for _, r := range job.Active {
			a.out.Warn("Run %s (%s, PID %d) is still active", r.Lock.RunID, r.Lock.Command, r.Lock.PID)
		}
		a.out.Dim("Stop it first, or pass --force.")
		return nil
	}
	if job.Empty() {
		a.out.Info("Nothing to clean up.")
		return nil
	}

	if a.dryRun {
		for _, w := range job.Worktrees {
			a.out.Info("Would remove worktree %s (%s)", w.Path, w.Branch)
		}
		for _, s := range job.Sessions {
			a.out.Info("Would stop session %s", s)
		}
		for _, r := range job.StaleLocks {
			a.out.Info("Would remove stale lock %s", r.Dir)
		}
		for _, f := range job.Files {
			a.out.Info("Would remove %s", filepath.Base(f))
		}
		return nil
	}

	results := cleanup.NewExecutor(job, opts, a.log).Execute(ctx)
	for _, e := range results.Errors {
		a.out.Warn("%s", e)
	}
	a.out.Success("Removed %d worktree(s), %d session(s), %d stale lock(s) and %d file(s)",
		results.WorktreesRemoved, results.SessionsKilled, results.LocksRemoved, results.FilesRemoved)
	return nil
}
