package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/Iron-Ham/foreman/internal/conflict"
	"github.com/Iron-Ham/foreman/internal/errors"
	"github.com/Iron-Ham/foreman/internal/logging"
	"github.com/Iron-Ham/foreman/internal/plan"
	"github.com/Iron-Ham/foreman/internal/resolver"
	"github.com/Iron-Ham/foreman/internal/result"
	"github.com/Iron-Ham/foreman/internal/tmux"
	"github.com/Iron-Ham/foreman/internal/workorder"
	"github.com/Iron-Ham/foreman/internal/worktree"
)

// Options select what a run builds.
type Options struct {
	// DesignPath is the design document stages are implemented from.
	DesignPath string
	// PlanPath is a user-supplied plan. When empty a plan is generated.
	PlanPath string
	// Resume skips stages the plan already marks completed.
	Resume bool
	// BaseBranch is the base of stages without a dependency.
	BaseBranch   string
	BranchPrefix string
	// RepoRoot is where the planning run executes.
	RepoRoot string
	RunID    string
}

// Report summarizes a finished run.
type Report struct {
	RunID    string
	PlanPath string
	// PRs holds the change-sets of every completed stage in plan order,
	// including stages skipped on resume.
	PRs       []int
	Completed []int
	// Pending lists stages left pending or in progress.
	Pending []int
	Failed  []int
	// Skipped lists stages that never got a session in this run.
	Skipped []int
}

// Engine drives one staged build.
type Engine struct {
	deps       *Deps
	opts       Options
	log        *logging.Logger
	dispatcher *Dispatcher
	// failed holds stages that reported an explicit error this run. The plan
	// keeps them in progress.
	failed map[int]bool
}

// New creates an Engine.
func New(deps *Deps, opts Options) (*Engine, error) {
	if deps == nil || deps.Config == nil || deps.Agent == nil || deps.Sessions == nil || deps.Workspaces == nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "engine requires config, agent, sessions and workspaces")
	}
	if opts.DesignPath == "" && opts.PlanPath == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "a design or a plan is required")
	}
	deps.withDefaults()
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.BaseBranch == "" {
		opts.BaseBranch = deps.Config.Branch.Base
	}
	if opts.BranchPrefix == "" {
		opts.BranchPrefix = deps.Config.Branch.Prefix
	}
	return &Engine{
		deps:       deps,
		opts:       opts,
		log:        deps.Logger.WithRun(opts.RunID),
		dispatcher: NewDispatcher(deps),
		failed:     make(map[int]bool),
	}, nil
}

// Run plans when needed, then executes the plan's batches in order. Every
// launched session is killed and every workspace released before Run
// returns, including after cancellation.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	defer e.dispatcher.Cleanup(ctx)

	report := &Report{RunID: e.opts.RunID}

	design, err := LoadDesign(e.opts.DesignPath)
	if err != nil {
		return report, err
	}

	planPath := e.opts.PlanPath
	if planPath == "" {
		if planPath, err = e.Plan(ctx, design); err != nil {
			return report, err
		}
	} else {
		e.log.Info("using supplied plan, skipping planning", "plan", planPath)
	}
	report.PlanPath = planPath

	p, err := plan.Load(planPath)
	if err != nil {
		return report, err
	}
	if err := e.validate(p); err != nil {
		return report, err
	}

	if done := p.Completed(); len(done) > 0 {
		if e.opts.Resume {
			e.deps.Console.Info("Resuming: skipping %d completed stage(s), PRs %v", len(done), p.CompletedPRs())
		} else {
			e.deps.Console.Warn("%d stage(s) already completed will be re-run (use --resume to skip them)", len(done))
		}
	}

	batches := resolver.Schedule(p, e.opts.BaseBranch, e.opts.Resume)
	e.log.Info("run started", "plan", planPath, "batches", len(batches), "resume", e.opts.Resume)
	updater := plan.NewUpdater(planPath, e.log)

	var runErr error
	for i, batch := range batches {
		if ctx.Err() != nil {
			runErr = errors.Join(errors.ErrCanceled, ctx.Err())
			break
		}
		e.deps.Console.Header("Batch %d/%d (group %s): stages %v", i+1, len(batches), batch.Group, batch.Numbers())
		skipped, err := e.runBatch(ctx, design, updater, batch)
		report.Skipped = append(report.Skipped, skipped...)
		if err != nil {
			runErr = err
			break
		}
	}

	e.summarize(report)
	e.log.Info("run finished",
		"completed", len(report.Completed),
		"pending", len(report.Pending),
		"failed", len(report.Failed),
		"prs", report.PRs,
	)
	return report, runErr
}

func (e *Engine) validate(p *plan.Plan) error {
	vr := p.Validate()
	for _, w := range vr.Warnings() {
		e.deps.Console.Warn("%s", w.String())
	}
	if vr.HasErrors() {
		for _, m := range vr.Errors() {
			e.deps.Console.Error("%s", m.String())
		}
		return errors.Wrapf(errors.ErrPlanInvalid, "%d validation error(s) in %s", len(vr.Errors()), p.Path)
	}
	return nil
}

// runBatch dispatches one batch and checkpoints each stage as its session
// finishes. It returns the numbers of stages that never launched.
func (e *Engine) runBatch(ctx context.Context, design workorder.Design, updater *plan.Updater, batch resolver.Batch) ([]int, error) {
	// Re-read so each batch's work orders see earlier checkpoints.
	planContent, err := os.ReadFile(updater.Path())
	if err != nil {
		return nil, errors.Join(errors.ErrPlanNotFound, err)
	}
	stamp := Timestamp(e.deps.Now())
	designName := filepath.Base(design.Path)
	if designName == "." {
		designName = filepath.Base(updater.Path())
	}

	units := make([]*Unit, 0, len(batch.Units))
	for _, ru := range batch.Units {
		stage := ru.Stage
		units = append(units, &Unit{
			Key:             stage.Number,
			Label:           fmt.Sprintf("Stage %d", stage.Number),
			Branch:          stage.Branch,
			Base:            ru.Base,
			FilePrefix:      FilePrefix("stage", stage.Number, stamp),
			TaskTitle:       fmt.Sprintf("[impl] Stage %d: %s", stage.Number, stage.Title),
			TaskDescription: fmt.Sprintf("Implementing %s for %s", stage.Branch, designName),
			WorkOrder: func(ws *worktree.Workspace) (string, error) {
				return workorder.Stage(workorder.StageData{
					Design:      design,
					PlanPath:    updater.Path(),
					PlanContent: string(planContent),
					Stage:       stage,
					WorkDir:     ws.Path,
					Base:        ws.Base,
					Session:     tmux.SessionName(stage.Branch),
				})
			},
		})
	}

	var overlap *conflict.Detector
	err = e.dispatcher.Run(ctx, units, Hooks{
		Ready: func(ready []*Unit) error {
			nums := make([]int, len(ready))
			for i, u := range ready {
				nums[i] = u.Key
			}
			if err := updater.MarkInProgress(nums); err != nil {
				e.log.Warn("could not mark stages in progress", "stages", nums, "error", err)
			}
			overlap = e.watchOverlap(ready)
			return nil
		},
		Done: func(u *Unit, out Output) bool {
			return e.checkpoint(updater, u, out)
		},
	})

	if overlap != nil {
		overlap.Stop()
		e.reportOverlaps(overlap.Overlaps())
	}

	var skipped []int
	for _, u := range units {
		if !u.Launched() {
			skipped = append(skipped, u.Key)
		}
	}
	if err != nil {
		return skipped, errors.Join(errors.ErrCanceled, err)
	}
	return skipped, nil
}

// watchOverlap starts watching the worktrees of a batch with more than one
// stage. A watcher that cannot start is logged and skipped.
func (e *Engine) watchOverlap(units []*Unit) *conflict.Detector {
	if len(units) < 2 {
		return nil
	}
	d, err := conflict.New(e.log)
	if err != nil {
		e.log.Debug("overlap watcher unavailable", "error", err)
		return nil
	}
	for _, u := range units {
		if u.Workspace == nil {
			continue
		}
		if err := d.Watch(u.Label, u.Workspace.Path); err != nil {
			e.log.Debug("cannot watch worktree", "path", u.Workspace.Path, "error", err)
		}
	}
	d.Start()
	return d
}

func (e *Engine) reportOverlaps(overlaps []conflict.Overlap) {
	for _, o := range overlaps {
		e.log.Warn("file changed by parallel stages", "path", o.Path, "stages", o.Owners)
		e.deps.Console.Warn("%s was changed by %s; their PRs may conflict", o.Path, strings.Join(o.Owners, " and "))
	}
}

// checkpoint records a stage's outcome in the plan. Only a completed stage
// with a PR changes the plan; anything else, an explicit failure included,
// leaves the stage in progress for inspection.
func (e *Engine) checkpoint(updater *plan.Updater, u *Unit, out Output) bool {
	log := e.log.WithStage(u.Key)
	if out.Missing {
		log.Warn("stage produced no output; left in progress")
		e.deps.Console.Warn("%s: no output captured; left in progress", u.Label)
		return false
	}

	outcome, ok := result.Build(out.Text)
	switch {
	case ok && outcome.Complete:
		if _, err := updater.UpdateStage(u.Key, plan.StatusCompleted, outcome.PRNumber); err != nil {
			log.Error("checkpoint failed", "error", err)
		}
		log.Info("stage completed", "pr", outcome.PRNumber, "strategy", outcome.Strategy)
		e.deps.Console.Success("%s completed: PR #%d", u.Label, outcome.PRNumber)
		return true
	case ok && outcome.Failed():
		e.failed[u.Key] = true
		log.Warn("stage reported failure; left in progress", "error", outcome.Error)
		e.deps.Console.Error("%s failed: %s", u.Label, outcome.Error)
		e.deps.Console.Warn("%s kept in progress; verify it manually", u.Label)
		return false
	default:
		log.Warn("no result found in stage output; left in progress")
		e.deps.Console.Warn("%s: no PR found in output; left in progress", u.Label)
		return false
	}
}

// summarize fills the report from the plan as it stands on disk.
func (e *Engine) summarize(report *Report) {
	p, err := plan.Load(report.PlanPath)
	if err != nil {
		e.log.Warn("could not reload plan for summary", "error", err)
		return
	}
	for _, s := range p.Stages {
		switch {
		case s.Status == plan.StatusCompleted:
			report.Completed = append(report.Completed, s.Number)
		case s.Status == plan.StatusFailed || e.failed[s.Number]:
			report.Failed = append(report.Failed, s.Number)
		default:
			report.Pending = append(report.Pending, s.Number)
		}
	}
	report.PRs = p.CompletedPRs()
}
