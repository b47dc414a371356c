package plan

import "fmt"

// ValidationSeverity is the severity of a validation message.
type ValidationSeverity string

const (
	// SeverityError blocks scheduling.
	SeverityError ValidationSeverity = "error"
	// SeverityWarning is reported but does not block scheduling.
	SeverityWarning ValidationSeverity = "warning"
)

// ValidationMessage is a single validation issue.
type ValidationMessage struct {
	Severity ValidationSeverity
	Message  string
	// Stage is the stage number the message refers to, or 0 for plan-level issues.
	Stage int
	Field string
}

// IsError returns true if this message blocks scheduling.
func (m ValidationMessage) IsError() bool {
	return m.Severity == SeverityError
}

// String formats the message for logs and the console.
func (m ValidationMessage) String() string {
	if m.Stage > 0 {
		return fmt.Sprintf("%s: stage %d: %s", m.Severity, m.Stage, m.Message)
	}
	return fmt.Sprintf("%s: %s", m.Severity, m.Message)
}

// ValidationResult holds every issue found in a plan.
type ValidationResult struct {
	Messages     []ValidationMessage
	ErrorCount   int
	WarningCount int
}

// HasErrors returns true if any message is an error.
func (v *ValidationResult) HasErrors() bool {
	return v.ErrorCount > 0
}

// Errors returns only the error messages.
func (v *ValidationResult) Errors() []ValidationMessage {
	var out []ValidationMessage
	for _, m := range v.Messages {
		if m.IsError() {
			out = append(out, m)
		}
	}
	return out
}

// Warnings returns only the warning messages.
func (v *ValidationResult) Warnings() []ValidationMessage {
	var out []ValidationMessage
	for _, m := range v.Messages {
		if !m.IsError() {
			out = append(out, m)
		}
	}
	return out
}

func (v *ValidationResult) add(m ValidationMessage) {
	v.Messages = append(v.Messages, m)
	if m.IsError() {
		v.ErrorCount++
	} else {
		v.WarningCount++
	}
}

// Validate checks the plan's stage numbering and dependency graph.
//
// Batches run in group order, so a dependency is only satisfiable when its
// target's group runs strictly before the dependent's group. Anything else
// (unknown branch, self reference, same or later group) is an error.
func (p *Plan) Validate() *ValidationResult {
	result := &ValidationResult{}

	if len(p.Stages) == 0 {
		result.add(ValidationMessage{Severity: SeverityError, Message: "plan has no stages"})
		return result
	}

	groupIndex := make(map[string]int)
	for i, g := range p.GroupsInOrder() {
		groupIndex[g] = i
	}

	numbers := make(map[int]bool)
	branches := make(map[string]*Stage)
	for i := range p.Stages {
		s := &p.Stages[i]
		if s.Number <= 0 {
			result.add(ValidationMessage{
				Severity: SeverityError, Stage: s.Number, Field: "number",
				Message: "stage number must be positive",
			})
		}
		if numbers[s.Number] {
			result.add(ValidationMessage{
				Severity: SeverityError, Stage: s.Number, Field: "number",
				Message: "duplicate stage number",
			})
		}
		numbers[s.Number] = true

		if s.Branch == "" {
			result.add(ValidationMessage{
				Severity: SeverityError, Stage: s.Number, Field: "branch",
				Message: "stage has no branch",
			})
			continue
		}
		if _, dup := branches[s.Branch]; dup {
			result.add(ValidationMessage{
				Severity: SeverityError, Stage: s.Number, Field: "branch",
				Message: fmt.Sprintf("branch %q is used by more than one stage", s.Branch),
			})
			continue
		}
		branches[s.Branch] = s
	}

	for i := range p.Stages {
		s := &p.Stages[i]
		if s.Title == "" {
			result.add(ValidationMessage{
				Severity: SeverityWarning, Stage: s.Number, Field: "title",
				Message: "stage has no title",
			})
		}
		if !s.HasDependency() {
			continue
		}

		if s.DependsOn == s.Branch {
			result.add(ValidationMessage{
				Severity: SeverityError, Stage: s.Number, Field: "depends_on",
				Message: "stage depends on itself",
			})
			continue
		}
		target, ok := branches[s.DependsOn]
		if !ok {
			result.add(ValidationMessage{
				Severity: SeverityError, Stage: s.Number, Field: "depends_on",
				Message: fmt.Sprintf("depends on unknown branch %q", s.DependsOn),
			})
			continue
		}
		if groupIndex[target.ParallelGroup] >= groupIndex[s.ParallelGroup] {
			result.add(ValidationMessage{
				Severity: SeverityError, Stage: s.Number, Field: "depends_on",
				Message: fmt.Sprintf("depends on stage %d in group %q, which does not run before group %q",
					target.Number, target.ParallelGroup, s.ParallelGroup),
			})
		}
	}

	return result
}
