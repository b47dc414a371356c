package hosting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/foreman/internal/errors"
)

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		url  string
		want ProviderType
	}{
		{"git@github.com:owner/repo.git", ProviderGitHub},
		{"https://github.com/owner/repo", ProviderGitHub},
		{"ssh://git@github.com:22/owner/repo.git", ProviderGitHub},
		{"https://github.acme.io/org/repo.git", ProviderGitHub},
		{"git@gitlab.com:group/sub/repo.git", ProviderGitLab},
		{"https://gitlab.internal.example.com/org/repo", ProviderGitLab},
		{"https://bitbucket.org/owner/repo.git", ProviderUnknown},
		{"https://notgithub.com/owner/repo.git", ProviderUnknown},
		{"", ProviderUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectProvider(tt.url))
		})
	}
}

func TestParseOwnerRepo(t *testing.T) {
	tests := []struct {
		url         string
		owner, repo string
	}{
		{"git@github.com:owner/repo.git", "owner", "repo"},
		{"https://github.com/owner/repo.git", "owner", "repo"},
		{"https://github.com/owner/repo/", "owner", "repo"},
		{"ssh://git@github.com:22/owner/repo.git", "owner", "repo"},
		{"git@gitlab.com:group/subgroup/repo.git", "group/subgroup", "repo"},
		{"repo", "repo", ""},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			owner, repo := ParseOwnerRepo(tt.url)
			assert.Equal(t, tt.owner, owner)
			assert.Equal(t, tt.repo, repo)
		})
	}
}

func TestParseChangeSetRef(t *testing.T) {
	tests := []struct {
		ref     string
		want    int
		wantErr bool
	}{
		{ref: "42", want: 42},
		{ref: " #7 ", want: 7},
		{ref: "https://github.com/o/r/pull/123", want: 123},
		{ref: "https://github.com/o/r/pull/123/files", want: 123},
		{ref: "https://gitlab.com/g/sub/r/-/merge_requests/9", want: 9},
		{ref: "0", wantErr: true},
		{ref: "-3", wantErr: true},
		{ref: "abc", wantErr: true},
		{ref: "https://github.com/o/r/issues/5", wantErr: true},
		{ref: "https://github.com/o/r/pull/x", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := ParseChangeSetRef(tt.ref)
			if tt.wantErr {
				assert.ErrorIs(t, err, errors.ErrInvalidIdentifier)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseChangeSetRefs(t *testing.T) {
	got, err := ParseChangeSetRefs([]string{"3", "https://github.com/o/r/pull/1", "#3"})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1}, got)

	_, err = ParseChangeSetRefs([]string{"1", "nope"})
	assert.ErrorIs(t, err, errors.ErrInvalidIdentifier)
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, ChecksNone, Summarize(nil).Status)

	s := Summarize([]CheckRun{
		{Name: "lint", Status: "completed", Conclusion: "success"},
		{Name: "docs", Status: "completed", Conclusion: "skipped"},
		{Name: "test", Status: "in_progress"},
	})
	assert.Equal(t, ChecksPending, s.Status)
	assert.Equal(t, 2, s.Passed)
	assert.Equal(t, 1, s.Pending)

	s = Summarize([]CheckRun{
		{Name: "test", Status: "in_progress"},
		{Name: "build", Status: "completed", Conclusion: "failure"},
	})
	assert.Equal(t, ChecksFailure, s.Status)
	assert.Equal(t, 1, s.Failed)

	s = Summarize([]CheckRun{{Name: "ok", Status: "completed", Conclusion: "neutral"}})
	assert.Equal(t, ChecksSuccess, s.Status)
}

func TestResolveType(t *testing.T) {
	pt, err := ResolveType(Config{Provider: "gitlab", RemoteURL: "git@github.com:o/r.git"})
	require.NoError(t, err)
	assert.Equal(t, ProviderGitLab, pt, "explicit provider wins over detection")

	pt, err = ResolveType(Config{Provider: "auto", RemoteURL: "git@github.com:o/r.git"})
	require.NoError(t, err)
	assert.Equal(t, ProviderGitHub, pt)

	_, err = ResolveType(Config{RemoteURL: "https://example.com/o/r.git"})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	_, err = ResolveType(Config{Provider: "bitbucket"})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestResolveToken(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("GH_TOKEN", "gh-fallback")
	t.Setenv("GITLAB_TOKEN", "")
	t.Setenv("GITLAB_PRIVATE_TOKEN", "")
	t.Setenv("MY_TOKEN", "")

	token, err := ResolveToken(ProviderGitHub, Config{})
	require.NoError(t, err)
	assert.Equal(t, "gh-fallback", token)

	t.Setenv("GITHUB_TOKEN", "primary")
	token, err = ResolveToken(ProviderGitHub, Config{})
	require.NoError(t, err)
	assert.Equal(t, "primary", token)

	_, err = ResolveToken(ProviderGitLab, Config{})
	assert.ErrorIs(t, err, errors.ErrDependencyMissing)

	_, err = ResolveToken(ProviderGitHub, Config{TokenEnvVar: "MY_TOKEN"})
	assert.ErrorIs(t, err, errors.ErrDependencyMissing, "custom variable must not fall back to defaults")

	t.Setenv("MY_TOKEN", "custom")
	token, err = ResolveToken(ProviderGitLab, Config{TokenEnvVar: "MY_TOKEN"})
	require.NoError(t, err)
	assert.Equal(t, "custom", token)
}

type stubProvider struct{ Provider }

func (stubProvider) Name() ProviderType { return ProviderGitLab }

func TestNewProvider(t *testing.T) {
	prev, had := constructors[ProviderGitLab]
	t.Cleanup(func() {
		if had {
			constructors[ProviderGitLab] = prev
		} else {
			delete(constructors, ProviderGitLab)
		}
	})
	delete(constructors, ProviderGitLab)

	_, err := NewProvider(Config{Provider: "gitlab"})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	var got Config
	RegisterProvider(ProviderGitLab, func(cfg Config) (Provider, error) {
		got = cfg
		return stubProvider{}, nil
	})
	p, err := NewProvider(Config{RemoteURL: "git@gitlab.com:g/r.git", BaseURL: "https://gl"})
	require.NoError(t, err)
	assert.Equal(t, ProviderGitLab, p.Name())
	assert.Equal(t, "https://gl", got.BaseURL)
}
