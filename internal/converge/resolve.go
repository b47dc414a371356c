package converge

import (
	"context"
	"sort"

	"github.com/sourcegraph/conc/pool"

	"github.com/Iron-Ham/foreman/internal/errors"
	"github.com/Iron-Ham/foreman/internal/hosting"
)

// ChangeSets looks change-sets up by number.
type ChangeSets interface {
	GetChangeSet(ctx context.Context, number int) (*hosting.ChangeSet, error)
}

// Target is one tracked change-set.
type Target struct {
	Number int
	Branch string
	// Base is the branch the change-set merges into.
	Base string
	URL  string
}

const lookupConcurrency = 4

// resolveChangeSets looks every number up concurrently and returns targets
// in the order given. Change-sets that are no longer open are dropped with a
// warning; any lookup failure fails the whole resolve.
func (l *Loop) resolveChangeSets(ctx context.Context, numbers []int) ([]Target, error) {
	p := pool.NewWithResults[*hosting.ChangeSet]().
		WithContext(ctx).
		WithCancelOnError().
		WithMaxGoroutines(lookupConcurrency)
	for _, n := range numbers {
		p.Go(func(ctx context.Context) (*hosting.ChangeSet, error) {
			cs, err := l.changeSets.GetChangeSet(ctx, n)
			if err != nil {
				return nil, err
			}
			l.log.Debug("change-set resolved", "number", n, "branch", cs.HeadBranch, "state", cs.State)
			return cs, nil
		})
	}
	found, err := p.Wait()
	if err != nil {
		return nil, err
	}

	order := make(map[int]int, len(numbers))
	for i, n := range numbers {
		order[n] = i
	}
	sort.Slice(found, func(i, j int) bool { return order[found[i].Number] < order[found[j].Number] })

	var targets []Target
	for _, cs := range found {
		if cs.State != "" && cs.State != "open" {
			l.deps.Console.Warn("PR #%d is %s; not tracking it", cs.Number, cs.State)
			continue
		}
		if cs.HeadBranch == "" {
			return nil, errors.Wrapf(errors.ErrChangeSetNotFound, "PR #%d has no head branch", cs.Number)
		}
		targets = append(targets, Target{Number: cs.Number, Branch: cs.HeadBranch, Base: cs.BaseBranch, URL: cs.URL})
	}
	if len(targets) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidInput, "no open change-sets to fix")
	}
	return targets, nil
}
