package converge

import (
	"fmt"

	"github.com/Iron-Ham/foreman/internal/result"
)

// FixTaskState is what one change-set's fix session reported in one
// iteration.
type FixTaskState struct {
	Number int
	Branch string
	// Reported is false when the session left no usable result.
	Reported bool
	// AgentDone is the session's own done flag.
	AgentDone        bool
	UnresolvedBefore int
	Addressed        int
	CIStatus         string
	BaseMerged       bool
	MergeConflicts   string
	Error            string
}

// StateFromOutcome converts an extracted fix outcome.
func StateFromOutcome(branch string, o result.FixOutcome) FixTaskState {
	return FixTaskState{
		Number:           o.Number,
		Branch:           branch,
		Reported:         true,
		AgentDone:        o.Done,
		UnresolvedBefore: o.UnresolvedBefore,
		Addressed:        o.Addressed,
		CIStatus:         o.CIStatus,
		BaseMerged:       o.BaseMerged,
		MergeConflicts:   o.MergeConflicts,
		Error:            o.Error,
	}
}

// Unresolved is the number of items still open after this iteration.
func (s FixTaskState) Unresolved() int {
	return max(0, s.UnresolvedBefore-s.Addressed)
}

// ReviewDone reports whether everything but CI is settled.
func (s FixTaskState) ReviewDone() bool {
	return s.Reported && s.AgentDone && s.BaseMerged &&
		s.MergeConflicts != result.ConflictsUnresolved && s.Unresolved() == 0
}

// Done reports whether the change-set needs no further work: the base is
// merged, no conflict is left, nothing is unresolved and checks pass.
func (s FixTaskState) Done() bool {
	return s.ReviewDone() && s.CIStatus == result.CIPassing
}

// Summary is a one-line description for console output.
func (s FixTaskState) Summary() string {
	if !s.Reported {
		return "no result"
	}
	return fmt.Sprintf("%d/%d addressed, ci %s, conflicts %s", s.Addressed, s.UnresolvedBefore, s.CIStatus, s.MergeConflicts)
}

// Totals aggregate one iteration.
type Totals struct {
	ChangeSets       int
	Done             int
	UnresolvedBefore int
	Addressed        int
	CIFailing        int
	// AllDone requires every change-set done, not merely reported.
	AllDone bool
	// ReviewDoneCIFailing is set when every change-set is settled except for
	// failing checks.
	ReviewDoneCIFailing bool
}

// Aggregate sums states. An empty set is never done.
func Aggregate(states []FixTaskState) Totals {
	t := Totals{ChangeSets: len(states)}
	reviewDone := len(states) > 0
	for _, s := range states {
		t.UnresolvedBefore += s.UnresolvedBefore
		t.Addressed += s.Addressed
		if s.Done() {
			t.Done++
		}
		if s.Reported && s.CIStatus != result.CIPassing {
			t.CIFailing++
		}
		if !s.ReviewDone() {
			reviewDone = false
		}
	}
	t.AllDone = len(states) > 0 && t.Done == len(states)
	t.ReviewDoneCIFailing = reviewDone && !t.AllDone
	return t
}
