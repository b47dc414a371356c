// Package gitlab implements hosting.Provider with the GitLab client-go API.
package gitlab

import (
	"context"
	"net/http"
	"strings"

	gogitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/Iron-Ham/foreman/internal/errors"
	"github.com/Iron-Ham/foreman/internal/hosting"
)

var _ hosting.Provider = (*Provider)(nil)

func init() {
	hosting.RegisterProvider(hosting.ProviderGitLab, newProvider)
}

// Provider reads merge requests and pipelines from gitlab.com or a
// self-hosted instance.
type Provider struct {
	client *gogitlab.Client
	// projectID is the full "group/sub/repo" path; client-go escapes it.
	projectID string
	owner     string
	repo      string
}

func newProvider(cfg hosting.Config) (hosting.Provider, error) {
	token, err := hosting.ResolveToken(hosting.ProviderGitLab, cfg)
	if err != nil {
		return nil, err
	}
	owner, repo := hosting.ParseOwnerRepo(cfg.RemoteURL)
	if owner == "" || repo == "" {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "could not parse owner/repo from remote %q", cfg.RemoteURL)
	}

	var opts []gogitlab.ClientOptionFunc
	if cfg.BaseURL != "" {
		opts = append(opts, gogitlab.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")+"/api/v4"))
	}
	client, err := gogitlab.NewClient(token, opts...)
	if err != nil {
		return nil, errors.NewHostingError(string(hosting.ProviderGitLab), "create client", err)
	}
	return New(client, owner, repo), nil
}

// New wraps an existing client.
func New(client *gogitlab.Client, owner, repo string) *Provider {
	return &Provider{client: client, projectID: owner + "/" + repo, owner: owner, repo: repo}
}

// Name returns hosting.ProviderGitLab.
func (p *Provider) Name() hosting.ProviderType {
	return hosting.ProviderGitLab
}

// OwnerRepo returns the owner (possibly "group/subgroup") and repository.
func (p *Provider) OwnerRepo() (string, string) {
	return p.owner, p.repo
}

// CheckAuth validates the token by fetching the current user.
func (p *Provider) CheckAuth(ctx context.Context) error {
	if _, _, err := p.client.Users.CurrentUser(gogitlab.WithContext(ctx)); err != nil {
		return errors.NewHostingError(string(hosting.ProviderGitLab), "check auth", err)
	}
	return nil
}

// GetChangeSet fetches merge request !number.
func (p *Provider) GetChangeSet(ctx context.Context, number int) (*hosting.ChangeSet, error) {
	mr, resp, err := p.client.MergeRequests.GetMergeRequest(p.projectID, int64(number), nil, gogitlab.WithContext(ctx))
	if err != nil {
		cause := err
		if resp != nil && resp.Response != nil && resp.StatusCode == http.StatusNotFound {
			cause = errors.Join(errors.ErrChangeSetNotFound, err)
		}
		return nil, errors.NewHostingError(string(hosting.ProviderGitLab), "get merge request", cause).WithNumber(number)
	}

	state := mr.State
	if state == "opened" {
		state = "open"
	}
	return &hosting.ChangeSet{
		Number:     int(mr.IID),
		Title:      mr.Title,
		State:      state,
		HeadBranch: mr.SourceBranch,
		BaseBranch: mr.TargetBranch,
		HeadSHA:    mr.SHA,
		URL:        mr.WebURL,
		Draft:      mr.Draft,
	}, nil
}

// GetChecks maps the jobs of the latest pipeline for ref to check runs.
func (p *Provider) GetChecks(ctx context.Context, ref string) (*hosting.CheckSummary, error) {
	pipelines, _, err := p.client.Pipelines.ListProjectPipelines(p.projectID, &gogitlab.ListProjectPipelinesOptions{
		Ref:         gogitlab.Ptr(ref),
		ListOptions: gogitlab.ListOptions{PerPage: 1},
	}, gogitlab.WithContext(ctx))
	if err != nil {
		return nil, errors.NewHostingError(string(hosting.ProviderGitLab), "list pipelines for "+ref, err)
	}
	if len(pipelines) == 0 {
		return hosting.Summarize(nil), nil
	}

	jobs, _, err := p.client.Jobs.ListPipelineJobs(p.projectID, pipelines[0].ID, nil, gogitlab.WithContext(ctx))
	if err != nil {
		return nil, errors.NewHostingError(string(hosting.ProviderGitLab), "list pipeline jobs for "+ref, err)
	}

	runs := make([]hosting.CheckRun, 0, len(jobs))
	for _, job := range jobs {
		status, conclusion := jobStatus(job.Status)
		runs = append(runs, hosting.CheckRun{Name: job.Name, Status: status, Conclusion: conclusion})
	}
	return hosting.Summarize(runs), nil
}

// jobStatus translates a GitLab job status into GitHub check-run terms.
func jobStatus(s string) (status, conclusion string) {
	switch s {
	case "success":
		return "completed", "success"
	case "failed":
		return "completed", "failure"
	case "canceled":
		return "completed", "cancelled"
	case "skipped":
		return "completed", "skipped"
	case "running":
		return "in_progress", ""
	default:
		return "queued", ""
	}
}
