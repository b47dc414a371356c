package workorder

const sharedTemplates = `
{{define "design"}}## Design Document
Location: {{.Path}}

{{.Content}}
{{end}}

{{define "original-plan"}}{{if .}}
## Original Implementation Plan

{{.}}
{{end}}{{end}}

{{define "conflicts"}}### Merge Conflicts
Resolve every conflict marker before committing. Keep both sides' intent;
never discard another stage's work to make a merge succeed. Re-run the
project's checks after resolving.
{{end}}

{{define "retries"}}### When Something Fails
Retry a failing step up to 5 times, changing approach each time. Only report
failure after the fifth attempt.
{{end}}

{{define "json-rules"}}### Result Block
The result block must be valid JSON: double-quoted keys, no comments, no
trailing commas, null for missing values. Print it exactly once, last.
{{end}}
`

const planningTemplate = `You are planning the implementation of a design document.

{{template "design" .Design}}
## Your Task
Break the design into a sequence of stacked, independently reviewable
change-sets and write the plan to: {{.PlanPath}}

Use exactly this format:

` + "```" + `markdown
# Implementation Plan: <feature>

## Overview
<what is being built>

## Stages

### Stage 1: <title>
- **Status**: pending
- **Branch**: <branch, e.g. {{.BranchPrefix}}stage-1-models>
- **Parallel group**: <group id>
- **Depends on**: none
- **PR**:
- **Description**: <what this stage implements>
- **Files**:
  - [path/to/file]: <change>
- **Acceptance criteria**:
  - [ ] <criterion>

## Notes
<risks and considerations>
` + "```" + `

### Rules
- Use 2 to 6 stages; each must be a self-contained change-set.
- "Depends on" names another stage's branch, never "Stage N". Use "none"
  when the stage builds directly on {{.BaseBranch}}.
- Stages sharing a parallel group run at the same time in separate
  worktrees. Groups run in the order they first appear.
- A stage may only depend on a stage in an earlier group.
{{- if .BranchPrefix}}
- Every branch name starts with "{{.BranchPrefix}}".
{{- end}}

### Output
After writing the plan, end your response with:

---JSON_OUTPUT---
{"todo_file_created": "{{.PlanPath}}", "num_stages": <number>, "error": null}
---END_JSON---
`

const stageTemplate = `You are implementing Stage {{.Stage.Number}}: {{.Stage.Title}}.

## Workspace
- Worktree: {{.WorkDir}}
- Branch: {{.Stage.Branch}} (already checked out)
- Based on: {{.Base}}
- Session: {{.Session}}

{{template "design" .Design}}
## Implementation Plan
Location: {{.PlanPath}}

{{.PlanContent}}

## Your Task
1. Merge the latest {{.Base}} (git fetch origin; git merge origin/{{.Base}}).
2. Implement Stage {{.Stage.Number}} as described in the plan.
{{- range .Stage.AcceptanceCriteria}}
   - {{.Text}}
{{- end}}
3. Run the project's lint, type and test checks until they pass.
4. Commit, push, and open a pull request into {{.Base}}. When the stage
   depends on {{dependency .Stage.DependsOn}}, the pull request stacks on that branch.
5. Include the full stage list from the plan in the pull request body.

{{template "conflicts"}}
{{template "retries"}}
{{template "json-rules"}}
### Output
End your response with:

---JSON_OUTPUT---
{"stage_number": {{.Stage.Number}}, "complete": true, "pr_number": <number>, "branch": "{{.Stage.Branch}}", "error": null}
---END_JSON---

If you could not finish, set "complete" to false, "pr_number" to null and
describe the problem in "error".
`

const fixPlanningTemplate = `You are surveying open pull requests for outstanding work.

{{template "design" .Design}}{{template "original-plan" .OriginalPlan}}
## Pull Requests
{{numbers .Numbers}}

## Your Task
For every pull request:
1. Compare the diff against the design and the original plan; list any
   missing functionality.
2. Collect unresolved review comments. Skip resolved threads and comments
   that begin with [FOREMAN].
3. Check CI status. Treat pending checks as passing. For failing checks,
   record the failing job and its error output.
4. Check whether it merges cleanly into {{.BaseBranch}}.

Write everything outstanding, grouped by pull request, to: {{.FixPlanPath}}

{{template "json-rules"}}
### Output
End your response with:

---JSON_OUTPUT---
{"todo_file_created": "{{.FixPlanPath}}", "num_incomplete_items": <n>, "num_comments": <n>, "num_ci_failures": <n>, "error": null}
---END_JSON---
`

const fixTemplate = `You are driving pull request #{{.Number}} to done.

## Workspace
- Worktree: {{.WorkDir}}
- Branch: {{.Branch}} (already checked out)

{{template "design" .Design}}{{template "original-plan" .OriginalPlan}}
## Fix Plan
Location: {{.FixPlanPath}}

{{.FixPlanContent}}

## Your Task
Complete every step, even when there are no comments:
1. Pull {{.Branch}} and merge origin/{{.BaseBranch}} into it.
2. Fix every failing CI check for #{{.Number}}.
3. Implement any missing items the fix plan assigns to #{{.Number}}.
4. Reply to every unresolved review comment, prefixing replies with
   [FOREMAN], and resolve threads you addressed.
5. Run the project's checks, commit and push.

{{template "conflicts"}}
{{template "retries"}}
{{template "json-rules"}}
### Output
End your response with:

---JSON_OUTPUT---
{"pr_number": {{.Number}}, "base_branch_merged": <bool>, "merge_conflicts": "<none|resolved|unresolved>", "unresolved_before": <n>, "addressed": <n>, "ci_status": "<passing|failing>", "done": <bool>, "error": null}
---END_JSON---

"done" may only be true when {{.BaseBranch}} is merged, no conflicts remain,
every comment is addressed and CI is passing.
`
