package result

import "testing"

func TestBuild(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantOK     bool
		wantPR     int
		wantFailed bool
		wantBranch string
	}{
		{
			name:       "json complete",
			text:       "---JSON_OUTPUT---\n{\"stage_number\": 1, \"complete\": true, \"pr_number\": 12, \"branch\": \"feat/a\", \"error\": null}\n---END_JSON---",
			wantOK:     true,
			wantPR:     12,
			wantBranch: "feat/a",
		},
		{
			name:       "json failure",
			text:       "---JSON_OUTPUT---\n{\"complete\": false, \"pr_number\": null, \"branch\": \"feat/a\", \"error\": \"tests never passed\"}\n---END_JSON---",
			wantOK:     true,
			wantFailed: true,
			wantBranch: "feat/a",
		},
		{
			name:   "mention only",
			text:   "Created PR #31",
			wantOK: true,
			wantPR: 31,
		},
		{
			name: "no evidence",
			text: "I made some changes.",
		},
		{
			name: "json complete without pr is not evidence",
			text: "---JSON_OUTPUT---{\"complete\": true, \"pr_number\": null}---END_JSON---",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Build(tt.text)
			if ok != tt.wantOK {
				t.Fatalf("Build() ok = %v, want %v", ok, tt.wantOK)
			}
			if got.PRNumber != tt.wantPR {
				t.Errorf("PRNumber = %d, want %d", got.PRNumber, tt.wantPR)
			}
			if got.Failed() != tt.wantFailed {
				t.Errorf("Failed() = %v, want %v", got.Failed(), tt.wantFailed)
			}
			if got.Branch != tt.wantBranch {
				t.Errorf("Branch = %q, want %q", got.Branch, tt.wantBranch)
			}
		})
	}
}

func TestFix_JSON(t *testing.T) {
	text := `Processed.
---JSON_OUTPUT---
{
  "pr_number": 101,
  "base_branch_merged": true,
  "merge_conflicts": "resolved",
  "unresolved_before": 3,
  "addressed": 3,
  "ci_status": "passing",
  "done": true,
  "error": null
}
---END_JSON---`

	got, ok := Fix(text, 101)
	if !ok {
		t.Fatal("Fix() ok = false")
	}
	want := FixOutcome{
		Number: 101, Done: true, CIStatus: CIPassing, BaseMerged: true,
		MergeConflicts: ConflictsResolved, UnresolvedBefore: 3, Addressed: 3,
		Strategy: StrategyJSON,
	}
	if got != want {
		t.Errorf("Fix() = %+v, want %+v", got, want)
	}
}

func TestFix_Legacy(t *testing.T) {
	text := "PR_102_DONE: false\nPR_102_CI_STATUS: failing\nPR_102_UNRESOLVED_BEFORE: 4\nPR_102_ADDRESSED: 1\n"

	got, ok := Fix(text, 102)
	if !ok {
		t.Fatal("Fix() ok = false")
	}
	if got.Strategy != StrategyLegacy {
		t.Errorf("Strategy = %q, want legacy", got.Strategy)
	}
	if got.Done || got.CIStatus != CIFailing || got.UnresolvedBefore != 4 || got.Addressed != 1 {
		t.Errorf("Fix() = %+v", got)
	}
	if got.BaseMerged {
		t.Error("BaseMerged should follow the done flag when absent")
	}

	if _, ok := Fix(text, 103); ok {
		t.Error("labels for another change-set must not match")
	}
}

func TestFix_NotFound(t *testing.T) {
	got, ok := Fix("", 5)
	if ok {
		t.Error("Fix(empty) ok = true")
	}
	if got.Number != 5 || got.Done {
		t.Errorf("Fix(empty) = %+v", got)
	}
}

func TestPlanning(t *testing.T) {
	got, ok := Planning("---JSON_OUTPUT---{\"todo_file_created\": \"/p.md\", \"num_stages\": 3}---END_JSON---")
	if !ok || got.NumStages != 3 || got.PlanFile != "/p.md" || got.Strategy != StrategyJSON {
		t.Errorf("Planning(json) = %+v, %v", got, ok)
	}

	got, ok = Planning("Wrote the plan.\nNUM_STAGES: 2\n")
	if !ok || got.NumStages != 2 || got.Strategy != StrategyLegacy {
		t.Errorf("Planning(legacy) = %+v, %v", got, ok)
	}

	if _, ok := Planning("nothing"); ok {
		t.Error("Planning(nothing) ok = true")
	}
}

func TestFixPlan(t *testing.T) {
	got, ok := FixPlan("---JSON_OUTPUT---{\"num_incomplete_items\": 0, \"num_comments\": 2, \"num_ci_failures\": 1, \"error\": null}---END_JSON---")
	if !ok || !got.Outstanding() || got.Comments != 2 || got.CIFailures != 1 {
		t.Errorf("FixPlan(json) = %+v, %v", got, ok)
	}

	got, ok = FixPlan("---JSON_OUTPUT---{\"num_incomplete_items\": 0, \"num_comments\": 0, \"num_ci_failures\": 0}---END_JSON---")
	if !ok || got.Outstanding() {
		t.Errorf("FixPlan(clean) = %+v, %v", got, ok)
	}

	got, ok = FixPlan("NUM_COMMENTS: 5")
	if !ok || got.Comments != 5 || got.Strategy != StrategyLegacy {
		t.Errorf("FixPlan(legacy) = %+v, %v", got, ok)
	}
}
