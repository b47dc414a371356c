// Package hosting provides a unified view of change-sets (pull requests and
// merge requests) on GitHub and GitLab.
package hosting

import "context"

// ProviderType identifies which hosting provider is in use.
type ProviderType string

const (
	ProviderGitHub  ProviderType = "github"
	ProviderGitLab  ProviderType = "gitlab"
	ProviderUnknown ProviderType = "unknown"
)

// Provider is the read-only surface foreman needs from a code host.
type Provider interface {
	// GetChangeSet returns change-set metadata by number. A missing
	// change-set is reported as errors.ErrChangeSetNotFound.
	GetChangeSet(ctx context.Context, number int) (*ChangeSet, error)

	// GetChecks summarizes CI for a ref (branch name or commit SHA).
	GetChecks(ctx context.Context, ref string) (*CheckSummary, error)

	CheckAuth(ctx context.Context) error
	Name() ProviderType
	OwnerRepo() (string, string)
}

// ChangeSet is a pull request or merge request.
type ChangeSet struct {
	Number     int    `json:"number"`
	Title      string `json:"title"`
	State      string `json:"state"` // open, closed, merged
	HeadBranch string `json:"head_branch"`
	BaseBranch string `json:"base_branch"`
	HeadSHA    string `json:"head_sha"`
	URL        string `json:"url"`
	Draft      bool   `json:"draft"`
}

// CheckRun is one CI job or check, normalized to GitHub's vocabulary.
type CheckRun struct {
	Name       string `json:"name"`
	Status     string `json:"status"`     // queued, in_progress, completed
	Conclusion string `json:"conclusion"` // success, failure, ...
}

// Checks status values.
const (
	ChecksNone    = "none"
	ChecksPending = "pending"
	ChecksFailure = "failure"
	ChecksSuccess = "success"
)

// CheckSummary aggregates the check runs for one ref.
type CheckSummary struct {
	Status  string     `json:"status"`
	Passed  int        `json:"passed"`
	Failed  int        `json:"failed"`
	Pending int        `json:"pending"`
	Runs    []CheckRun `json:"runs,omitempty"`
}

// Summarize counts runs by outcome. Any failure wins over pending, and an
// empty list is ChecksNone.
func Summarize(runs []CheckRun) *CheckSummary {
	s := &CheckSummary{Runs: runs}
	for _, r := range runs {
		if r.Status != "completed" {
			s.Pending++
			continue
		}
		switch r.Conclusion {
		case "success", "neutral", "skipped":
			s.Passed++
		case "failure", "timed_out", "cancelled", "action_required":
			s.Failed++
		}
	}

	switch {
	case len(runs) == 0:
		s.Status = ChecksNone
	case s.Failed > 0:
		s.Status = ChecksFailure
	case s.Pending > 0:
		s.Status = ChecksPending
	default:
		s.Status = ChecksSuccess
	}
	return s
}
