// Package converge drives a fixed set of open change-sets to done. Each
// iteration surveys what is outstanding, gives every tracked change-set a
// workspace and a fix session, and aggregates what the sessions report
// until every change-set is done, the iteration cap is hit or the run is
// interrupted.
package converge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/foreman/internal/engine"
	"github.com/Iron-Ham/foreman/internal/errors"
	"github.com/Iron-Ham/foreman/internal/logging"
	"github.com/Iron-Ham/foreman/internal/result"
	"github.com/Iron-Ham/foreman/internal/worktree"
	"github.com/Iron-Ham/foreman/internal/workorder"
)

// Remote refreshes and inspects remote-tracking refs.
type Remote interface {
	Fetch(ctx context.Context) error
	// Remote names the remote, e.g. "origin".
	Remote() string
	RemoteBranchExists(branch string) bool
}

// Options select what the loop works on.
type Options struct {
	Numbers []int
	// DesignPath and PlanPath give fix sessions the original context; both
	// are optional.
	DesignPath string
	PlanPath   string
	// BaseBranch is used when a change-set reports no base.
	BaseBranch string
	// MaxIterations overrides the configured cap when positive.
	MaxIterations int
	RepoRoot      string
	RunID         string
}

// Iteration is the outcome of one pass.
type Iteration struct {
	Number int
	// Planned is the fix-planning result; zero when planning failed.
	Planned     result.FixPlanOutcome
	PlanningOK  bool
	FixPlanPath string
	States      []FixTaskState
	Totals      Totals
}

// Done reports whether the iteration ended the loop with success.
func (it Iteration) Done() bool {
	if it.PlanningOK && !it.Planned.Outstanding() {
		return true
	}
	return it.Totals.AllDone
}

// Report summarizes a finished loop.
type Report struct {
	RunID      string
	Iterations []Iteration
	Done       bool
}

// Last returns the final iteration, or nil.
func (r *Report) Last() *Iteration {
	if len(r.Iterations) == 0 {
		return nil
	}
	return &r.Iterations[len(r.Iterations)-1]
}

// Loop is one convergence run.
type Loop struct {
	deps       *engine.Deps
	changeSets ChangeSets
	remote     Remote
	opts       Options
	log        *logging.Logger
	dispatcher *engine.Dispatcher

	// sleep waits between iterations; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Loop. remote may be nil, in which case fix workspaces start
// from local branches.
func New(deps *engine.Deps, changeSets ChangeSets, remote Remote, opts Options) (*Loop, error) {
	if deps == nil || deps.Config == nil || deps.Agent == nil || deps.Sessions == nil || deps.Workspaces == nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "convergence requires config, agent, sessions and workspaces")
	}
	if changeSets == nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "a hosting provider is required")
	}
	if len(opts.Numbers) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidInput, "no change-sets given")
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.BaseBranch == "" {
		opts.BaseBranch = deps.Config.Branch.Base
	}
	dispatcher := engine.NewDispatcher(deps)
	return &Loop{
		deps:       deps,
		changeSets: changeSets,
		remote:     remote,
		opts:       opts,
		log:        deps.Logger.WithRun(opts.RunID).WithPhase("fix"),
		dispatcher: dispatcher,
		sleep:      sleepContext,
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (l *Loop) maxIterations() int {
	if l.opts.MaxIterations > 0 {
		return l.opts.MaxIterations
	}
	return l.deps.Config.Fix.MaxIterations
}

// Run iterates until every change-set is done, the cap is reached or ctx is
// canceled. Sessions it launched are killed and workspaces released on
// every exit path. Hitting the cap is not an error; Report.Done says how it
// ended.
func (l *Loop) Run(ctx context.Context) (*Report, error) {
	defer l.dispatcher.Cleanup(ctx)
	report := &Report{RunID: l.opts.RunID}

	design, err := engine.LoadDesign(l.opts.DesignPath)
	if err != nil {
		return report, err
	}
	var originalPlan string
	if l.opts.PlanPath != "" {
		if data, err := os.ReadFile(l.opts.PlanPath); err == nil {
			originalPlan = string(data)
		} else {
			l.log.Warn("original plan unreadable", "plan", l.opts.PlanPath, "error", err)
		}
	}

	targets, err := l.resolveChangeSets(ctx, l.opts.Numbers)
	if err != nil {
		return report, err
	}
	l.log.Info("convergence started", "change_sets", l.opts.Numbers, "max_iterations", l.maxIterations())

	maxIter := l.maxIterations()
	for n := 1; maxIter == 0 || n <= maxIter; n++ {
		if ctx.Err() != nil {
			return report, errors.Join(errors.ErrCanceled, ctx.Err())
		}
		l.deps.Console.Header("Fix iteration %d%s", n, capSuffix(maxIter))

		it, err := l.iterate(ctx, n, targets, design, originalPlan)
		report.Iterations = append(report.Iterations, it)
		if err != nil {
			return report, err
		}
		if it.Done() {
			report.Done = true
			l.log.Info("convergence finished", "iterations", n)
			l.deps.Console.Success("All change-sets done after %d iteration(s)", n)
			return report, nil
		}

		delay := l.deps.Config.Fix.IterationDelay()
		if !it.PlanningOK {
			delay = l.deps.Config.Fix.RetryDelay()
		}
		if maxIter == 0 || n < maxIter {
			if err := l.sleep(ctx, delay); err != nil {
				return report, errors.Join(errors.ErrCanceled, err)
			}
		}
	}

	l.log.Warn("iteration cap reached", "max_iterations", maxIter)
	l.deps.Console.Warn("Stopped after %d iteration(s) without converging", maxIter)
	return report, nil
}

func capSuffix(maxIter int) string {
	if maxIter == 0 {
		return ""
	}
	return "/" + strconv.Itoa(maxIter)
}

func (l *Loop) iterate(ctx context.Context, n int, targets []Target, design workorder.Design, originalPlan string) (Iteration, error) {
	it := Iteration{Number: n}
	stamp := engine.Timestamp(l.deps.Now())
	log := l.log.With("iteration", n)
	l.fetch(ctx, log)

	it.FixPlanPath = l.fixPlanPath(design, stamp)
	planned, ok := l.planFixes(ctx, log, targets, design, originalPlan, it.FixPlanPath)
	it.Planned, it.PlanningOK = planned, ok
	if !ok {
		if ctx.Err() != nil {
			return it, errors.Join(errors.ErrCanceled, ctx.Err())
		}
		l.deps.Console.Warn("Fix planning failed; retrying in %s", l.deps.Config.Fix.RetryDelay())
		return it, nil
	}
	if !planned.Outstanding() {
		log.Info("nothing outstanding")
		l.deps.Console.Success("Nothing outstanding across %d change-set(s)", len(targets))
		return it, nil
	}
	if !fileExists(it.FixPlanPath) {
		log.Warn("fix plan not written", "path", it.FixPlanPath)
		l.deps.Console.Warn("Fix plan %s was not written; retrying in %s", it.FixPlanPath, l.deps.Config.Fix.RetryDelay())
		it.PlanningOK = false
		return it, nil
	}
	l.deps.Console.Info("Outstanding: %d item(s), %d comment(s), %d CI failure(s)",
		planned.IncompleteItems, planned.Comments, planned.CIFailures)

	fixPlan, _ := os.ReadFile(it.FixPlanPath)
	states := make(map[int]FixTaskState, len(targets))
	units := make([]*engine.Unit, 0, len(targets))
	for _, t := range targets {
		base := t.Base
		if base == "" {
			base = l.opts.BaseBranch
		}
		units = append(units, &engine.Unit{
			Key:             t.Number,
			Label:           fmt.Sprintf("PR #%d", t.Number),
			Branch:          t.Branch,
			Base:            l.branchBase(t.Branch),
			FilePrefix:      engine.FilePrefix("fix-pr", t.Number, stamp),
			TaskTitle:       fmt.Sprintf("[fix] PR #%d", t.Number),
			TaskDescription: fmt.Sprintf("Fixing %s (iteration %d)", t.Branch, n),
			WorkOrder: func(ws *worktree.Workspace) (string, error) {
				return workorder.Fix(workorder.FixData{
					Design:         design,
					OriginalPlan:   originalPlan,
					FixPlanPath:    it.FixPlanPath,
					FixPlanContent: string(fixPlan),
					Number:         t.Number,
					Branch:         t.Branch,
					WorkDir:        ws.Path,
					BaseBranch:     base,
				})
			},
		})
	}

	err := l.dispatcher.Run(ctx, units, engine.Hooks{
		Done: func(u *engine.Unit, out engine.Output) bool {
			csLog := log.WithChangeSet(u.Key)
			s := FixTaskState{Number: u.Key, Branch: u.Branch}
			if out.Missing {
				csLog.Warn("fix session produced no output")
			} else if o, ok := result.Fix(out.Text, u.Key); ok {
				s = StateFromOutcome(u.Branch, o)
				csLog.Info("fix session reported", "done", s.Done(), "ci_status", s.CIStatus, "addressed", s.Addressed)
			} else {
				csLog.Warn("no fix result in output")
			}
			states[u.Key] = s
			l.report(s)
			return s.Done()
		},
	})

	for _, t := range targets {
		s, ok := states[t.Number]
		if !ok {
			s = FixTaskState{Number: t.Number, Branch: t.Branch}
		}
		it.States = append(it.States, s)
	}
	it.Totals = Aggregate(it.States)
	l.summarize(it)
	if err != nil {
		return it, errors.Join(errors.ErrCanceled, err)
	}
	return it, nil
}

// fetch refreshes remote refs before an iteration. A transient failure is
// retried once; after that the iteration works from local refs.
func (l *Loop) fetch(ctx context.Context, log *logging.Logger) {
	if l.remote == nil {
		return
	}
	err := l.remote.Fetch(ctx)
	if errors.IsRetryable(err) {
		log.Info("fetch failed; retrying", "error", err)
		err = l.remote.Fetch(ctx)
	}
	if err != nil {
		log.Warn("fetch failed; using local refs", "error", err)
	}
}

// branchBase is where a fix workspace for branch starts: the remote
// tracking ref when the branch has been pushed, the local branch otherwise.
func (l *Loop) branchBase(branch string) string {
	if l.remote != nil && l.remote.RemoteBranchExists(branch) {
		return l.remote.Remote() + "/" + branch
	}
	return branch
}

// planFixes runs the fix-planning step in the foreground.
func (l *Loop) planFixes(ctx context.Context, log *logging.Logger, targets []Target, design workorder.Design, originalPlan, path string) (result.FixPlanOutcome, bool) {
	numbers := make([]int, len(targets))
	for i, t := range targets {
		numbers[i] = t.Number
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		log.Error("cannot create plans directory", "error", err)
		return result.FixPlanOutcome{}, false
	}
	prompt, err := workorder.FixPlanning(workorder.FixPlanningData{
		Design:       design,
		OriginalPlan: originalPlan,
		Numbers:      numbers,
		FixPlanPath:  path,
		BaseBranch:   l.opts.BaseBranch,
	})
	if err != nil {
		log.Error("fix planning work order failed", "error", err)
		return result.FixPlanOutcome{}, false
	}

	res, err := l.deps.Agent.RunPrompt(ctx, prompt, l.opts.RepoRoot)
	if err != nil {
		log.Warn("fix planning run failed", "error", err)
		return result.FixPlanOutcome{}, false
	}
	out, ok := result.FixPlan(result.Text(res.Output))
	if !ok {
		log.Warn("no fix planning result in output")
		return result.FixPlanOutcome{}, false
	}
	if out.Error != "" {
		log.Warn("fix planning reported an error", "error", out.Error)
		return out, false
	}
	log.Info("fix planning finished",
		"incomplete_items", out.IncompleteItems,
		"comments", out.Comments,
		"ci_failures", out.CIFailures,
	)
	return out, true
}

// fixPlanPath returns "<plans dir>/<stem>.foreman-fix-<stamp>.md".
func (l *Loop) fixPlanPath(design workorder.Design, stamp string) string {
	stem := "changesets"
	if design.Path != "" {
		stem = strings.TrimSuffix(filepath.Base(design.Path), filepath.Ext(design.Path))
	}
	return filepath.Join(l.deps.Config.Paths.PlansDir, stem+".foreman-fix-"+stamp+".md")
}

func (l *Loop) report(s FixTaskState) {
	switch {
	case s.Done():
		l.deps.Console.Success("PR #%d done (%s)", s.Number, s.Summary())
	case s.Reported && s.Error != "":
		l.deps.Console.Error("PR #%d: %s", s.Number, s.Error)
	default:
		l.deps.Console.Warn("PR #%d not done (%s)", s.Number, s.Summary())
	}
}

func (l *Loop) summarize(it Iteration) {
	rows := make([][]string, 0, len(it.States))
	for _, s := range it.States {
		done := "no"
		if s.Done() {
			done = "yes"
		}
		ci := s.CIStatus
		if !s.Reported {
			ci = "-"
		}
		rows = append(rows, []string{
			"#" + strconv.Itoa(s.Number), s.Branch, done, ci,
			strconv.Itoa(s.Unresolved()), strconv.Itoa(s.Addressed),
		})
	}
	l.deps.Console.Table([]string{"PR", "Branch", "Done", "CI", "Unresolved", "Addressed"}, rows, 40)

	t := it.Totals
	l.log.Info("iteration finished",
		"iteration", it.Number,
		"done", t.Done,
		"change_sets", t.ChangeSets,
		"unresolved_before", t.UnresolvedBefore,
		"addressed", t.Addressed,
		"ci_failing", t.CIFailing,
	)
	switch {
	case t.AllDone:
	case t.ReviewDoneCIFailing:
		l.deps.Console.Warn("All review items addressed but CI failing on %d change-set(s)", t.CIFailing)
	default:
		l.deps.Console.Info("%d/%d change-set(s) done; %d of %d item(s) addressed",
			t.Done, t.ChangeSets, t.Addressed, t.UnresolvedBefore)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
