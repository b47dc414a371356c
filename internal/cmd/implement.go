package cmd

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/foreman/internal/console"
	"github.com/Iron-Ham/foreman/internal/engine"
	"github.com/Iron-Ham/foreman/internal/errors"
	"github.com/Iron-Ham/foreman/internal/plan"
	"github.com/Iron-Ham/foreman/internal/resolver"
	"github.com/Iron-Ham/foreman/internal/session"
)

var implementCmd = &cobra.Command{
	Use:   "implement [design.md]",
	Short: "Plan a design and build it as stacked stages",
	Long: `Implement turns a design document into a plan of stages and builds
every stage in its own worktree with a detached agent session.

Stages in the same parallel group run together; groups run in order. Each
finished stage is checkpointed into the plan, so an interrupted run can be
picked up again with --resume. When stages produce pull requests the run
moves straight on to "foreman fix" for them unless --no-fix is given.

With --plan an existing plan is used and planning is skipped.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runImplement,
}

var (
	implementResume        bool
	implementPlan          string
	implementBase          string
	implementPrefix        string
	implementNoFix         bool
	implementMaxIterations int
)

func init() {
	rootCmd.AddCommand(implementCmd)
	implementCmd.Flags().BoolVar(&implementResume, "resume", false, "skip stages the plan marks completed")
	implementCmd.Flags().StringVar(&implementPlan, "plan", "", "use an existing plan instead of planning")
	implementCmd.Flags().StringVar(&implementBase, "base", "", "base branch for stages without a dependency (default: branch.base)")
	implementCmd.Flags().StringVar(&implementPrefix, "prefix", "", "prefix for generated branch names (default: branch.prefix)")
	implementCmd.Flags().BoolVar(&implementNoFix, "no-fix", false, "stop after building instead of fixing the resulting PRs")
	implementCmd.Flags().IntVar(&implementMaxIterations, "max-iterations", 0, "cap fix iterations after building (default: fix.max_iterations)")
}

func runImplement(cmd *cobra.Command, args []string) error {
	var design string
	if len(args) > 0 {
		design = args[0]
	}
	if design == "" && implementPlan == "" {
		return errors.Wrap(errors.ErrInvalidInput, "a design document or --plan is required")
	}
	subject := design
	if subject == "" {
		subject = implementPlan
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
	if handled, err := a.supervise(ctx, "implement-"+stem(subject)); handled {
		return err
	}

	opts := engine.Options{
		DesignPath:   design,
		PlanPath:     implementPlan,
		Resume:       implementResume,
		BaseBranch:   implementBase,
		BranchPrefix: implementPrefix,
		RepoRoot:     a.repo.Root(),
		RunID:        a.runID,
	}
	if a.dryRun {
		return a.previewImplement(opts)
	}

	lock, err := session.AcquireLock(a.lockDir("implement-"+stem(subject)), a.runID, "implement", a.log)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	tr := a.tracker()
	defer func() { _ = tr.Close() }()

	a.printHeader("Implementing " + filepath.Base(subject))
	eng, err := engine.New(a.deps(a.workspaces(), tr), opts)
	if err != nil {
		return err
	}
	report, runErr := eng.Run(ctx)
	printImplementReport(a.out, report)
	if errors.Is(runErr, errors.ErrCanceled) {
		a.out.Warn("Interrupted; sessions stopped and worktrees removed. Re-run with --resume to continue.")
		return nil
	}
	if runErr != nil {
		return runErr
	}

	if implementNoFix || len(report.PRs) == 0 {
		return nil
	}
	if err := a.checkHostingToken(); err != nil {
		a.out.Warn("Not fixing PRs automatically: %v", err)
		a.out.Dim("Run: foreman fix %s", joinInts(report.PRs))
		return nil
	}
	a.out.Header("Fixing %d PR(s) from this run", len(report.PRs))
	return a.converge(ctx, tr, report.PRs, design, report.PlanPath, implementMaxIterations)
}

// previewImplement prints the schedule without starting anything.
func (a *app) previewImplement(opts engine.Options) error {
	base := opts.BaseBranch
	if base == "" {
		base = a.cfg.Branch.Base
	}
	if opts.PlanPath == "" {
		path := engine.PlanPathFor(a.cfg.Paths.PlansDir, opts.DesignPath, "<timestamp>")
		a.out.Info("Would plan %s into %s, then build its stages from %s.", opts.DesignPath, path, base)
		return nil
	}

	p, err := plan.Load(opts.PlanPath)
	if err != nil {
		return err
	}
	vr := p.Validate()
	for _, m := range append(vr.Errors(), vr.Warnings()...) {
		if m.IsError() {
			a.out.Error("%s", m.String())
		} else {
			a.out.Warn("%s", m.String())
		}
	}

	batches := resolver.Schedule(p, base, opts.Resume)
	var rows [][]string
	for i, b := range batches {
		for _, u := range b.Units {
			rows = append(rows, []string{
				strconv.Itoa(i + 1), b.Group, strconv.Itoa(u.Stage.Number), u.Stage.Branch, u.Base, string(u.Stage.Status),
			})
		}
	}
	a.out.Header("Schedule for %s", p.Title)
	a.out.Table([]string{"Batch", "Group", "Stage", "Branch", "Base", "Status"}, rows, 40)
	if vr.HasErrors() {
		return errors.Wrap(errors.ErrPlanInvalid, "plan has validation errors")
	}
	return nil
}

func printImplementReport(out *console.Printer, r *engine.Report) {
	if r == nil || r.PlanPath == "" {
		return
	}
	out.Header("Run summary")
	out.Field("Plan", r.PlanPath)
	out.Field("Completed", fmt.Sprint(len(r.Completed)))
	if len(r.Pending) > 0 {
		out.Field("Not finished", fmt.Sprint(r.Pending))
	}
	if len(r.Failed) > 0 {
		out.Field("Failed", fmt.Sprint(r.Failed))
	}
	if len(r.Skipped) > 0 {
		out.Field("Never started", fmt.Sprint(r.Skipped))
	}
	if len(r.PRs) > 0 {
		out.Success("PRs: %s", joinInts(r.PRs))
	}
}

func joinInts(ns []int) string {
	return joinWith(ns, " ")
}
