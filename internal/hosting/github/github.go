// Package github implements hosting.Provider with go-github.
package github

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	gogithub "github.com/google/go-github/v82/github"
	"golang.org/x/oauth2"

	"github.com/Iron-Ham/foreman/internal/errors"
	"github.com/Iron-Ham/foreman/internal/hosting"
)

var _ hosting.Provider = (*Provider)(nil)

func init() {
	hosting.RegisterProvider(hosting.ProviderGitHub, newProvider)
}

// Provider reads pull requests and check runs from GitHub or GitHub
// Enterprise.
type Provider struct {
	client *gogithub.Client
	owner  string
	repo   string
}

func newProvider(cfg hosting.Config) (hosting.Provider, error) {
	token, err := hosting.ResolveToken(hosting.ProviderGitHub, cfg)
	if err != nil {
		return nil, err
	}
	owner, repo := hosting.ParseOwnerRepo(cfg.RemoteURL)
	if owner == "" || repo == "" {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "could not parse owner/repo from remote %q", cfg.RemoteURL)
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	client := gogithub.NewClient(oauth2.NewClient(context.Background(), ts))

	if cfg.BaseURL != "" {
		base := strings.TrimSuffix(cfg.BaseURL, "/")
		if client.BaseURL, err = url.Parse(base + "/api/v3/"); err != nil {
			return nil, errors.Wrapf(errors.ErrInvalidInput, "parse base URL %q: %v", cfg.BaseURL, err)
		}
		if client.UploadURL, err = url.Parse(base + "/api/uploads/"); err != nil {
			return nil, errors.Wrapf(errors.ErrInvalidInput, "parse upload URL %q: %v", cfg.BaseURL, err)
		}
	}

	return New(client, owner, repo), nil
}

// New wraps an existing client. Tests point the client at a local server.
func New(client *gogithub.Client, owner, repo string) *Provider {
	return &Provider{client: client, owner: owner, repo: repo}
}

// Name returns hosting.ProviderGitHub.
func (p *Provider) Name() hosting.ProviderType {
	return hosting.ProviderGitHub
}

// OwnerRepo returns the owner and repository name.
func (p *Provider) OwnerRepo() (string, string) {
	return p.owner, p.repo
}

// CheckAuth validates the token by fetching the authenticated user.
func (p *Provider) CheckAuth(ctx context.Context) error {
	if _, _, err := p.client.Users.Get(ctx, ""); err != nil {
		return errors.NewHostingError(string(hosting.ProviderGitHub), "check auth", err)
	}
	return nil
}

// GetChangeSet fetches pull request number.
func (p *Provider) GetChangeSet(ctx context.Context, number int) (*hosting.ChangeSet, error) {
	pr, resp, err := p.client.PullRequests.Get(ctx, p.owner, p.repo, number)
	if err != nil {
		cause := err
		if resp != nil && resp.Response != nil && resp.StatusCode == http.StatusNotFound {
			cause = errors.Join(errors.ErrChangeSetNotFound, err)
		}
		return nil, errors.NewHostingError(string(hosting.ProviderGitHub), "get pull request", cause).WithNumber(number)
	}
	return mapPR(pr), nil
}

// GetChecks lists check runs for ref.
func (p *Provider) GetChecks(ctx context.Context, ref string) (*hosting.CheckSummary, error) {
	result, _, err := p.client.Checks.ListCheckRunsForRef(ctx, p.owner, p.repo, ref, nil)
	if err != nil {
		return nil, errors.NewHostingError(string(hosting.ProviderGitHub), "list check runs for "+ref, err)
	}

	runs := make([]hosting.CheckRun, 0, len(result.CheckRuns))
	for _, cr := range result.CheckRuns {
		runs = append(runs, hosting.CheckRun{
			Name:       cr.GetName(),
			Status:     cr.GetStatus(),
			Conclusion: cr.GetConclusion(),
		})
	}
	return hosting.Summarize(runs), nil
}

func mapPR(pr *gogithub.PullRequest) *hosting.ChangeSet {
	state := pr.GetState()
	if pr.GetMerged() {
		state = "merged"
	}
	return &hosting.ChangeSet{
		Number:     pr.GetNumber(),
		Title:      pr.GetTitle(),
		State:      state,
		HeadBranch: pr.GetHead().GetRef(),
		BaseBranch: pr.GetBase().GetRef(),
		HeadSHA:    pr.GetHead().GetSHA(),
		URL:        pr.GetHTMLURL(),
		Draft:      pr.GetDraft(),
	}
}
