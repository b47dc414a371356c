package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/Iron-Ham/foreman/internal/errors"
	"github.com/Iron-Ham/foreman/internal/result"
	"github.com/Iron-Ham/foreman/internal/workorder"
)

// PlanPathFor returns where a plan generated from designPath is written:
// "<plansDir>/<design stem>.foreman-<stamp>.md".
func PlanPathFor(plansDir, designPath, stamp string) string {
	stem := strings.TrimSuffix(filepath.Base(designPath), filepath.Ext(designPath))
	if stem == "" || stem == "." {
		stem = "plan"
	}
	return filepath.Join(plansDir, stem+".foreman-"+stamp+".md")
}

// LoadDesign reads the design document at path.
func LoadDesign(path string) (workorder.Design, error) {
	if path == "" {
		return workorder.Design{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return workorder.Design{}, errors.Wrapf(errors.ErrInvalidInput, "read design %s: %v", path, err)
	}
	return workorder.Design{Path: path, Content: string(data)}, nil
}

// Plan runs the planning sub-phase: one foreground agent run that turns the
// design into a plan document. It returns the plan's path, which must exist
// and hold at least one stage.
func (e *Engine) Plan(ctx context.Context, design workorder.Design) (string, error) {
	log := e.log.WithPhase("planning")
	plansDir := e.deps.Config.Paths.PlansDir
	if err := os.MkdirAll(plansDir, 0755); err != nil {
		return "", errors.Wrap(err, "create plans directory")
	}
	path := PlanPathFor(plansDir, design.Path, Timestamp(e.deps.Now()))

	prompt, err := workorder.Planning(workorder.PlanningData{
		Design:       design,
		PlanPath:     path,
		BaseBranch:   e.opts.BaseBranch,
		BranchPrefix: e.opts.BranchPrefix,
	})
	if err != nil {
		return "", err
	}

	e.deps.Console.Header("Planning %s", filepath.Base(design.Path))
	e.deps.Console.Field("Plan", path)
	log.Info("planning started", "design", design.Path, "plan", path)

	res, err := e.deps.Agent.RunPrompt(ctx, prompt, e.opts.RepoRoot)
	if err != nil {
		log.Error("planning run failed", "error", err)
		return "", errors.Join(errors.ErrPlanningFailed, err)
	}

	out, ok := result.Planning(result.Text(res.Output))
	switch {
	case !ok:
		log.Warn("planning produced no result")
		return "", errors.Wrap(errors.ErrPlanningFailed, "no planning result in agent output")
	case out.Error != "":
		return "", errors.Wrapf(errors.ErrPlanningFailed, "agent reported: %s", out.Error)
	case out.NumStages < 1:
		return "", errors.Wrap(errors.ErrPlanningFailed, "plan has no stages")
	}

	if _, err := os.Stat(path); err != nil {
		// Accept a plan the agent wrote somewhere else and reported.
		if out.PlanFile == "" || !fileExists(out.PlanFile) {
			return "", errors.Wrapf(errors.ErrPlanningFailed, "plan file %s was not written", path)
		}
		path = out.PlanFile
	}

	log.Info("planning finished", "plan", path, "stages", out.NumStages, "strategy", out.Strategy)
	e.deps.Console.Success("Plan written with %d stages", out.NumStages)
	return path, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
