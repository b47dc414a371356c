package cmd

import (
	"context"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/foreman/internal/converge"
	"github.com/Iron-Ham/foreman/internal/errors"
	"github.com/Iron-Ham/foreman/internal/hosting"
	"github.com/Iron-Ham/foreman/internal/session"
	"github.com/Iron-Ham/foreman/internal/tracker"
)

var fixCmd = &cobra.Command{
	Use:   "fix <pr>...",
	Short: "Drive pull requests to green CI and addressed review",
	Long: `Fix repeatedly plans and dispatches fix sessions for the given pull
or merge requests until every review item is addressed, the base branch is
merged in and CI passes, or the iteration cap is reached.

PRs can be given as numbers, #numbers or URLs.`,
	Example: `  foreman fix 101 102
  foreman fix https://github.com/acme/app/pull/101 --max-iterations 3`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFix,
}

var (
	fixMaxIterations int
	fixDesign        string
	fixPlan          string
)

func init() {
	rootCmd.AddCommand(fixCmd)
	fixCmd.Flags().IntVar(&fixMaxIterations, "max-iterations", 0, "cap iterations (default: fix.max_iterations, 0 is unlimited)")
	fixCmd.Flags().StringVar(&fixDesign, "design", "", "design document the PRs implement")
	fixCmd.Flags().StringVar(&fixPlan, "plan", "", "plan the PRs were built from")
}

func runFix(cmd *cobra.Command, args []string) error {
	numbers, err := hosting.ParseChangeSetRefs(args)
	if err != nil {
		return err
	}

	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.close()
	ctx := cmd.Context()

	if err := a.checkDependencies(ctx, a.cfg.Supervisor.Rejoin && a.sup.ShouldWrap()); err != nil {
		return err
	}
	if err := a.checkHostingToken(); err != nil {
		return err
	}
	scope := "fix-" + joinWith(numbers, "-")
	if handled, err := a.supervise(ctx, scope); handled {
		return err
	}

	if a.dryRun {
		return a.previewFix(ctx, numbers)
	}

	lock, err := session.AcquireLock(a.lockDir(scope), a.runID, "fix", a.log)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	tr := a.tracker()
	defer func() { _ = tr.Close() }()

	a.printHeader("Fixing PR(s) " + joinWith(numbers, ", "))
	return a.converge(ctx, tr, numbers, fixDesign, fixPlan, fixMaxIterations)
}

// converge runs the convergence loop for numbers and reports the result.
// Interrupts are not errors; neither is stopping at the iteration cap.
func (a *app) converge(ctx context.Context, tr tracker.Tracker, numbers []int, design, planPath string, maxIter int) error {
	provider, err := a.hostingProvider()
	if err != nil {
		return err
	}
	loop, err := converge.New(a.deps(a.workspaces(), tr), provider, a.repo, converge.Options{
		Numbers:       numbers,
		DesignPath:    design,
		PlanPath:      planPath,
		BaseBranch:    a.cfg.Branch.Base,
		MaxIterations: maxIter,
		RepoRoot:      a.repo.Root(),
		RunID:         a.runID,
	})
	if err != nil {
		return err
	}

	report, err := loop.Run(ctx)
	if errors.Is(err, errors.ErrCanceled) {
		a.out.Warn("Interrupted; fix sessions stopped and worktrees removed.")
		return nil
	}
	if err != nil {
		return err
	}
	if !report.Done {
		a.out.Warn("Stopped after %d iteration(s) with work outstanding.", len(report.Iterations))
		a.out.Dim("Run again with: foreman fix %s", joinInts(numbers))
	}
	return nil
}

func (a *app) previewFix(ctx context.Context, numbers []int) error {
	provider, err := a.hostingProvider()
	if err != nil {
		return err
	}
	var rows [][]string
	for _, n := range numbers {
		cs, err := provider.GetChangeSet(ctx, n)
		if err != nil {
			return err
		}
		rows = append(rows, []string{strconv.Itoa(cs.Number), cs.HeadBranch, cs.BaseBranch, cs.State, cs.Title})
	}
	a.out.Header("Would fix on %s", provider.Name())
	a.out.Table([]string{"PR", "Branch", "Base", "State", "Title"}, rows, 50)
	return nil
}

// lockDir is the run-lock directory for scope in the current repository.
func (a *app) lockDir(scope string) string {
	repo := "norepo"
	if a.repo != nil {
		repo = filepath.Base(a.repo.Root())
	}
	return session.LockDir(a.cfg.Paths.SessionsDir, repo+"-"+scope)
}

func joinWith(ns []int, sep string) string {
	s := ""
	for i, n := range ns {
		if i > 0 {
			s += sep
		}
		s += strconv.Itoa(n)
	}
	return s
}
