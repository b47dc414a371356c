// Package workorder renders the self-contained instructions handed to a
// coding agent for each kind of unit: planning, implementing one stage,
// planning fixes, and fixing one change-set.
//
// Every work order ends by asking for a delimited JSON result block, which
// the result package extracts.
package workorder

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/Iron-Ham/foreman/internal/plan"
)

// Design is the source document a run works from.
type Design struct {
	Path    string
	Content string
}

// PlanningData fills the planning work order.
type PlanningData struct {
	Design       Design
	PlanPath     string
	BaseBranch   string
	BranchPrefix string
}

// StageData fills the work order for one plan stage.
type StageData struct {
	Design      Design
	PlanPath    string
	PlanContent string
	Stage       plan.Stage
	WorkDir     string
	// Base is the branch the stage's workspace was created from.
	Base    string
	Session string
}

// FixPlanningData fills the fix-planning work order.
type FixPlanningData struct {
	Design       Design
	OriginalPlan string
	Numbers      []int
	FixPlanPath  string
	BaseBranch   string
}

// FixData fills the work order for one change-set.
type FixData struct {
	Design         Design
	OriginalPlan   string
	FixPlanPath    string
	FixPlanContent string
	Number         int
	Branch         string
	WorkDir        string
	BaseBranch     string
}

var templates = template.Must(template.New("workorder").Funcs(template.FuncMap{
	"numbers": func(ns []int) string {
		parts := make([]string, len(ns))
		for i, n := range ns {
			parts[i] = fmt.Sprintf("#%d", n)
		}
		return strings.Join(parts, " ")
	},
	"dependency": func(branch string) string {
		if branch == "" {
			return "none"
		}
		return branch
	},
}).Parse(sharedTemplates))

func init() {
	template.Must(templates.New("planning").Parse(planningTemplate))
	template.Must(templates.New("stage").Parse(stageTemplate))
	template.Must(templates.New("fix-planning").Parse(fixPlanningTemplate))
	template.Must(templates.New("fix").Parse(fixTemplate))
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s work order: %w", name, err)
	}
	return buf.String(), nil
}

// Planning renders the work order that turns a design into a plan document
// written to d.PlanPath.
func Planning(d PlanningData) (string, error) {
	return render("planning", d)
}

// Stage renders the work order for implementing d.Stage.
func Stage(d StageData) (string, error) {
	return render("stage", d)
}

// FixPlanning renders the work order that surveys every change-set and writes
// the outstanding items to d.FixPlanPath.
func FixPlanning(d FixPlanningData) (string, error) {
	return render("fix-planning", d)
}

// Fix renders the work order for driving one change-set to done.
func Fix(d FixData) (string, error) {
	return render("fix", d)
}
