package result

import (
	"fmt"
	"strings"
)

// Continuous-integration states reported by fix sessions.
const (
	CIPassing = "passing"
	CIFailing = "failing"
)

// Merge conflict states reported by fix sessions.
const (
	ConflictsNone       = "none"
	ConflictsResolved   = "resolved"
	ConflictsUnresolved = "unresolved"
)

// BuildOutcome is the result of one staged-build session.
type BuildOutcome struct {
	Complete bool
	PRNumber int
	Branch   string
	Error    string
	Strategy Strategy
}

// Failed reports whether the session explicitly gave up.
func (o BuildOutcome) Failed() bool {
	return !o.Complete && o.Error != "" && o.PRNumber == 0
}

// Build extracts a build-stage outcome. A PR number found by any strategy
// counts as completion; an explicit JSON failure report is also returned so
// the caller can record it.
func Build(text string) (BuildOutcome, bool) {
	if block, ok := findBlock(text); ok {
		out := BuildOutcome{
			Complete: block.Get("complete").Bool(),
			Branch:   nullableString(block.Get("branch")),
			Error:    nullableString(block.Get("error")),
			Strategy: StrategyJSON,
		}
		if n, ok := positiveInt(block.Get("pr_number")); ok {
			out.PRNumber = n
			out.Complete = true
			return out, true
		}
		if out.Failed() {
			return out, true
		}
	}

	n, strategy, ok := PRNumber(text)
	if !ok {
		return BuildOutcome{}, false
	}
	return BuildOutcome{Complete: true, PRNumber: n, Strategy: strategy}, true
}

// FixOutcome is the result of one fix session for one change-set.
type FixOutcome struct {
	Number           int
	Done             bool
	CIStatus         string
	BaseMerged       bool
	MergeConflicts   string
	UnresolvedBefore int
	Addressed        int
	Error            string
	Strategy         Strategy
}

// Fix extracts a fix-session outcome for change-set number.
func Fix(text string, number int) (FixOutcome, bool) {
	out, strategy, ok := run(text, fixChain(number))
	if !ok {
		return FixOutcome{Number: number}, false
	}
	out.Number = number
	out.Strategy = strategy
	return out, true
}

func fixChain(number int) []step[FixOutcome] {
	return []step[FixOutcome]{
		{StrategyJSON, fixFromJSON},
		{StrategyLegacy, func(text string) (FixOutcome, bool) {
			return fixFromLabels(text, number)
		}},
	}
}

func fixFromJSON(text string) (FixOutcome, bool) {
	block, ok := findBlock(text)
	if !ok {
		return FixOutcome{}, false
	}

	out := FixOutcome{
		Done:             block.Get("done").Bool(),
		CIStatus:         normalizeCI(block.Get("ci_status").String()),
		BaseMerged:       block.Get("base_branch_merged").Bool(),
		MergeConflicts:   normalizeConflicts(block.Get("merge_conflicts").String()),
		UnresolvedBefore: int(block.Get("unresolved_before").Int()),
		Addressed:        int(block.Get("addressed").Int()),
		Error:            nullableString(block.Get("error")),
	}
	if !block.Get("base_branch_merged").Exists() {
		out.BaseMerged = out.Done
	}
	return out, true
}

// fixFromLabels reads PR_<n>_* labels. Older sessions only report done, CI
// status and counts, so the merge fields follow the done flag when absent.
func fixFromLabels(text string, number int) (FixOutcome, bool) {
	key := func(name string) string { return fmt.Sprintf("PR_%d_%s", number, name) }

	done, found := LabelBool(text, key("DONE"))
	ci, ciFound := LabelValue(text, key("CI_STATUS"))
	unresolved, unresolvedFound := LabelInt(text, key("UNRESOLVED_BEFORE"))
	addressed, addressedFound := LabelInt(text, key("ADDRESSED"))
	if !found && !ciFound && !unresolvedFound && !addressedFound {
		return FixOutcome{}, false
	}

	out := FixOutcome{
		Done:             done,
		CIStatus:         normalizeCI(ci),
		UnresolvedBefore: unresolved,
		Addressed:        addressed,
		BaseMerged:       done,
		MergeConflicts:   ConflictsNone,
	}
	if merged, ok := LabelBool(text, key("BASE_MERGED")); ok {
		out.BaseMerged = merged
	}
	if conflicts, ok := LabelValue(text, key("MERGE_CONFLICTS")); ok {
		out.MergeConflicts = normalizeConflicts(conflicts)
	}
	return out, true
}

// normalizeCI treats anything but an explicit failure as passing; sessions are
// told that pending checks count as passed.
func normalizeCI(v string) string {
	if strings.EqualFold(strings.TrimSpace(v), CIFailing) {
		return CIFailing
	}
	return CIPassing
}

func normalizeConflicts(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case ConflictsResolved:
		return ConflictsResolved
	case ConflictsUnresolved:
		return ConflictsUnresolved
	default:
		return ConflictsNone
	}
}

// PlanningOutcome is the result of the planning sub-phase.
type PlanningOutcome struct {
	NumStages int
	PlanFile  string
	Error     string
	Strategy  Strategy
}

// Planning extracts the planning result.
func Planning(text string) (PlanningOutcome, bool) {
	out, strategy, ok := run(text, planningChain)
	out.Strategy = strategy
	return out, ok
}

var planningChain = []step[PlanningOutcome]{
	{StrategyJSON, func(text string) (PlanningOutcome, bool) {
		block, ok := findBlock(text)
		if !ok || !block.Get("num_stages").Exists() {
			return PlanningOutcome{}, false
		}
		return PlanningOutcome{
			NumStages: int(block.Get("num_stages").Int()),
			PlanFile:  nullableString(block.Get("todo_file_created")),
			Error:     nullableString(block.Get("error")),
		}, true
	}},
	{StrategyLegacy, func(text string) (PlanningOutcome, bool) {
		n, ok := LabelInt(text, "NUM_STAGES")
		if !ok {
			return PlanningOutcome{}, false
		}
		return PlanningOutcome{NumStages: n}, true
	}},
}

// FixPlanOutcome is the result of one convergence iteration's planning step.
type FixPlanOutcome struct {
	IncompleteItems int
	Comments        int
	CIFailures      int
	PlanFile        string
	Error           string
	Strategy        Strategy
}

// Outstanding reports whether anything is left to fix.
func (o FixPlanOutcome) Outstanding() bool {
	return o.IncompleteItems+o.Comments+o.CIFailures > 0
}

// FixPlan extracts the fix-planning result.
func FixPlan(text string) (FixPlanOutcome, bool) {
	out, strategy, ok := run(text, fixPlanChain)
	out.Strategy = strategy
	return out, ok
}

var fixPlanChain = []step[FixPlanOutcome]{
	{StrategyJSON, func(text string) (FixPlanOutcome, bool) {
		block, ok := findBlock(text)
		if !ok {
			return FixPlanOutcome{}, false
		}
		return FixPlanOutcome{
			IncompleteItems: int(block.Get("num_incomplete_items").Int()),
			Comments:        int(block.Get("num_comments").Int()),
			CIFailures:      int(block.Get("num_ci_failures").Int()),
			PlanFile:        nullableString(block.Get("todo_file_created")),
			Error:           nullableString(block.Get("error")),
		}, true
	}},
	{StrategyLegacy, func(text string) (FixPlanOutcome, bool) {
		incomplete, a := LabelInt(text, "NUM_INCOMPLETE_ITEMS")
		comments, b := LabelInt(text, "NUM_COMMENTS")
		failures, c := LabelInt(text, "NUM_CI_FAILURES")
		if !a && !b && !c {
			return FixPlanOutcome{}, false
		}
		return FixPlanOutcome{IncompleteItems: incomplete, Comments: comments, CIFailures: failures}, true
	}},
}
