// Package resolver turns a plan's stages into ordered batches of concurrently
// runnable units and picks the base ref each unit's workspace starts from.
//
// Batches are exactly the parallel groups, in order of first appearance. No
// topological sort is performed: a plan places dependents in a later group
// than the stage they stack on, and plan.Validate rejects plans that don't.
package resolver

import "github.com/Iron-Ham/foreman/internal/plan"

// Unit is one stage scheduled with its workspace base.
type Unit struct {
	Stage plan.Stage
	Base  string
}

// Batch is a set of units that run concurrently.
type Batch struct {
	Group string
	Units []Unit
}

// Numbers returns the stage numbers in the batch.
func (b Batch) Numbers() []int {
	nums := make([]int, 0, len(b.Units))
	for _, u := range b.Units {
		nums = append(nums, u.Stage.Number)
	}
	return nums
}

// Batches partitions stages by parallel group, ordering the batches by each
// group's first appearance and keeping plan order within a batch. Bases are
// left empty; see Schedule.
func Batches(stages []plan.Stage) []Batch {
	index := make(map[string]int)
	var batches []Batch
	for _, s := range stages {
		i, ok := index[s.ParallelGroup]
		if !ok {
			i = len(batches)
			index[s.ParallelGroup] = i
			batches = append(batches, Batch{Group: s.ParallelGroup})
		}
		batches[i].Units = append(batches[i].Units, Unit{Stage: s})
	}
	return batches
}

// BaseFor returns the ref a stage's workspace is created from: the stage's
// dependency branch verbatim, or defaultBase when it has none.
func BaseFor(s plan.Stage, defaultBase string) string {
	if s.DependsOn != "" {
		return s.DependsOn
	}
	return defaultBase
}

// Schedule returns the plan's batches with bases resolved. When skipCompleted
// is set, completed stages are left out and batches left empty are dropped.
func Schedule(p *plan.Plan, defaultBase string, skipCompleted bool) []Batch {
	stages := p.Stages
	if skipCompleted {
		stages = p.Incomplete()
	}

	batches := Batches(stages)
	for i := range batches {
		for j := range batches[i].Units {
			u := &batches[i].Units[j]
			u.Base = BaseFor(u.Stage, defaultBase)
		}
	}
	return batches
}
