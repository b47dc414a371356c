package workorder

import (
	"strings"
	"testing"

	"github.com/Iron-Ham/foreman/internal/plan"
)

var design = Design{Path: "/repo/docs/notes.md", Content: "Add a notes feature."}

func assertContains(t *testing.T, got string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(got, want) {
			t.Errorf("work order missing %q", want)
		}
	}
	if strings.Contains(got, "<no value>") {
		t.Error("work order has an unfilled field")
	}
}

func TestPlanning(t *testing.T) {
	got, err := Planning(PlanningData{Design: design, PlanPath: "/state/plans/notes.foreman-1.md", BaseBranch: "main"})
	if err != nil {
		t.Fatalf("Planning() error = %v", err)
	}
	assertContains(t, got,
		"Location: /repo/docs/notes.md",
		"Add a notes feature.",
		"write the plan to: /state/plans/notes.foreman-1.md",
		"- **Parallel group**:",
		"builds directly on main",
		"---JSON_OUTPUT---",
		`"num_stages"`,
		"---END_JSON---",
	)
}

func TestStage(t *testing.T) {
	stage := plan.Stage{
		Number:    2,
		Title:     "API",
		Branch:    "stage-2-api",
		DependsOn: "stage-1-models",
		AcceptanceCriteria: []plan.Criterion{
			{Text: "Endpoints return JSON"},
		},
	}
	got, err := Stage(StageData{
		Design:      design,
		PlanPath:    "/state/plans/p.md",
		PlanContent: "# Plan",
		Stage:       stage,
		WorkDir:     "/repo/.foreman/worktrees/stage-2-api",
		Base:        "stage-1-models",
		Session:     "foreman-stage-2-api",
	})
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	assertContains(t, got,
		"Stage 2: API",
		"Branch: stage-2-api",
		"git merge origin/stage-1-models",
		"   - Endpoints return JSON\n",
		"stacks on that branch",
		`"stage_number": 2`,
		`"branch": "stage-2-api"`,
		"Retry a failing step up to 5 times",
	)
}

func TestStage_NoDependency(t *testing.T) {
	got, err := Stage(StageData{Design: design, Stage: plan.Stage{Number: 1, Branch: "s1"}, Base: "main"})
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	assertContains(t, got, "depends on none", "pull request into main")
}

func TestFixPlanning(t *testing.T) {
	got, err := FixPlanning(FixPlanningData{
		Design:       design,
		OriginalPlan: "# Original",
		Numbers:      []int{41, 42},
		FixPlanPath:  "/state/plans/fix-1.md",
		BaseBranch:   "main",
	})
	if err != nil {
		t.Fatalf("FixPlanning() error = %v", err)
	}
	assertContains(t, got,
		"## Original Implementation Plan",
		"# Original",
		"#41 #42",
		"to: /state/plans/fix-1.md",
		`"num_incomplete_items"`,
		`"num_ci_failures"`,
	)
}

func TestFixPlanning_WithoutOriginalPlan(t *testing.T) {
	got, err := FixPlanning(FixPlanningData{Design: design, Numbers: []int{7}, BaseBranch: "main"})
	if err != nil {
		t.Fatalf("FixPlanning() error = %v", err)
	}
	if strings.Contains(got, "Original Implementation Plan") {
		t.Error("original plan section rendered without content")
	}
}

func TestFix(t *testing.T) {
	got, err := Fix(FixData{
		Design:         design,
		FixPlanPath:    "/state/plans/fix-1.md",
		FixPlanContent: "## PR #42\n- comment",
		Number:         42,
		Branch:         "stage-2-api",
		WorkDir:        "/wt/stage-2-api",
		BaseBranch:     "main",
	})
	if err != nil {
		t.Fatalf("Fix() error = %v", err)
	}
	assertContains(t, got,
		"pull request #42 to done",
		"Worktree: /wt/stage-2-api",
		"merge origin/main",
		"## PR #42\n- comment",
		`"pr_number": 42`,
		`"base_branch_merged"`,
		`"merge_conflicts"`,
	)
}
