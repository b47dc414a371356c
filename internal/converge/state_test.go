package converge

import (
	"testing"

	"github.com/Iron-Ham/foreman/internal/result"
)

func done(n int) FixTaskState {
	return FixTaskState{
		Number: n, Reported: true, AgentDone: true,
		UnresolvedBefore: 2, Addressed: 2,
		CIStatus: result.CIPassing, BaseMerged: true, MergeConflicts: result.ConflictsResolved,
	}
}

func TestFixTaskState_Done(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*FixTaskState)
		want   bool
	}{
		{"all conditions hold", func(*FixTaskState) {}, true},
		{"agent not done", func(s *FixTaskState) { s.AgentDone = false }, false},
		{"base not merged", func(s *FixTaskState) { s.BaseMerged = false }, false},
		{"conflicts unresolved", func(s *FixTaskState) { s.MergeConflicts = result.ConflictsUnresolved }, false},
		{"items left", func(s *FixTaskState) { s.Addressed = 1 }, false},
		{"over-addressed still counts as zero left", func(s *FixTaskState) { s.Addressed = 5 }, true},
		{"ci failing", func(s *FixTaskState) { s.CIStatus = result.CIFailing }, false},
		{"no result", func(s *FixTaskState) { s.Reported = false }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := done(1)
			tt.mutate(&s)
			if got := s.Done(); got != tt.want {
				t.Errorf("Done() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAggregate(t *testing.T) {
	failingCI := done(2)
	failingCI.CIStatus = result.CIFailing
	pending := done(3)
	pending.Addressed = 0

	tests := []struct {
		name       string
		states     []FixTaskState
		allDone    bool
		ciOnly     bool
		doneCount  int
		unresolved int
	}{
		{"empty is never done", nil, false, false, 0, 0},
		{"unanimous", []FixTaskState{done(1), done(2)}, true, false, 2, 4},
		{"ci failing only", []FixTaskState{done(1), failingCI}, false, true, 1, 4},
		{"work left", []FixTaskState{done(1), pending, failingCI}, false, false, 1, 6},
		{"missing result", []FixTaskState{done(1), {Number: 4}}, false, false, 1, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate(tt.states)
			if got.AllDone != tt.allDone || got.ReviewDoneCIFailing != tt.ciOnly {
				t.Errorf("AllDone = %v, ReviewDoneCIFailing = %v; want %v, %v", got.AllDone, got.ReviewDoneCIFailing, tt.allDone, tt.ciOnly)
			}
			if got.Done != tt.doneCount || got.UnresolvedBefore != tt.unresolved {
				t.Errorf("Totals = %+v", got)
			}
		})
	}
}
