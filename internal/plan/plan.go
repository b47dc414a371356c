package plan

import "strings"

// Status is the lifecycle state of a single stage.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// DefaultGroup is the parallel group assigned to stages that do not name one.
const DefaultGroup = "sequential"

// String returns the status as written in a plan document.
func (s Status) String() string {
	return string(s)
}

// ParseStatus normalizes a status value read from a plan document.
// Unknown values are treated as pending so a typo never marks work as done.
func ParseStatus(value string) Status {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "pending":
		return StatusPending
	case "in_progress", "in progress", "in-progress":
		return StatusInProgress
	case "completed", "complete", "done":
		return StatusCompleted
	case "failed":
		return StatusFailed
	default:
		return StatusPending
	}
}

// FileHint is one entry of a stage's file list.
type FileHint struct {
	Path        string
	Description string
}

// Criterion is one checkbox acceptance criterion.
type Criterion struct {
	Text    string
	Checked bool
}

// Stage is one independently reviewable unit of change.
type Stage struct {
	Number        int
	Title         string
	Branch        string
	ParallelGroup string
	// DependsOn is the branch of another stage in the same plan, or empty.
	DependsOn          string
	Status             Status
	PRNumber           int
	Description        string
	Files              []FileHint
	AcceptanceCriteria []Criterion
}

// IsCompleted reports whether the stage has finished successfully.
func (s *Stage) IsCompleted() bool {
	return s.Status == StatusCompleted
}

// HasDependency reports whether the stage is stacked on another stage.
func (s *Stage) HasDependency() bool {
	return s.DependsOn != ""
}

// Plan is a parsed implementation plan document.
type Plan struct {
	Path     string
	Title    string
	Overview string
	Stages   []Stage
	Notes    string
}

// Stage returns the stage with the given number, or nil.
func (p *Plan) Stage(number int) *Stage {
	for i := range p.Stages {
		if p.Stages[i].Number == number {
			return &p.Stages[i]
		}
	}
	return nil
}

// StageByBranch returns the stage producing the given branch, or nil.
func (p *Plan) StageByBranch(branch string) *Stage {
	for i := range p.Stages {
		if p.Stages[i].Branch == branch {
			return &p.Stages[i]
		}
	}
	return nil
}

// StagesByGroup returns the stages keyed by parallel group, each list in plan order.
func (p *Plan) StagesByGroup() map[string][]Stage {
	groups := make(map[string][]Stage)
	for _, s := range p.Stages {
		groups[s.ParallelGroup] = append(groups[s.ParallelGroup], s)
	}
	return groups
}

// GroupsInOrder returns each distinct parallel group once, in the order of its
// first appearance. This is the execution order of batches.
func (p *Plan) GroupsInOrder() []string {
	seen := make(map[string]bool)
	var groups []string
	for _, s := range p.Stages {
		if seen[s.ParallelGroup] {
			continue
		}
		seen[s.ParallelGroup] = true
		groups = append(groups, s.ParallelGroup)
	}
	return groups
}

// Completed returns the stages whose status is completed.
func (p *Plan) Completed() []Stage {
	var out []Stage
	for _, s := range p.Stages {
		if s.IsCompleted() {
			out = append(out, s)
		}
	}
	return out
}

// Incomplete returns every stage that is not completed.
func (p *Plan) Incomplete() []Stage {
	var out []Stage
	for _, s := range p.Stages {
		if !s.IsCompleted() {
			out = append(out, s)
		}
	}
	return out
}

// CompletedPRs returns the PR numbers recorded on completed stages, in plan order.
func (p *Plan) CompletedPRs() []int {
	var prs []int
	for _, s := range p.Completed() {
		if s.PRNumber > 0 {
			prs = append(prs, s.PRNumber)
		}
	}
	return prs
}
