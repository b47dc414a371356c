package hosting

import (
	"regexp"
	"strings"
)

var (
	githubRemote = regexp.MustCompile(`(^|[@/.])github(\.[a-z0-9-]+)*\.[a-z]+[:/]`)
	gitlabRemote = regexp.MustCompile(`(^|[@/.])gitlab(\.[a-z0-9-]+)*\.[a-z]+[:/]`)
)

// DetectProvider guesses the provider from a remote URL. github.com,
// gitlab.com and self-hosted "github.<corp>" / "gitlab.<corp>" hosts are
// recognized in both SCP-style and URL forms.
func DetectProvider(remoteURL string) ProviderType {
	u := strings.ToLower(strings.TrimSpace(remoteURL))
	switch {
	case githubRemote.MatchString(u):
		return ProviderGitHub
	case gitlabRemote.MatchString(u):
		return ProviderGitLab
	default:
		return ProviderUnknown
	}
}

// ParseOwnerRepo splits a remote URL into owner and repository. For nested
// GitLab groups the owner keeps every group segment ("group/sub").
func ParseOwnerRepo(remoteURL string) (owner, repo string) {
	path := strings.TrimSuffix(strings.TrimSpace(remoteURL), ".git")

	if scheme, rest, ok := strings.Cut(path, "://"); ok && scheme != "" {
		// Drop the host (and any user or port).
		_, path, _ = strings.Cut(rest, "/")
	} else if _, rest, ok := strings.Cut(path, ":"); ok {
		path = rest
	}

	path = strings.Trim(path, "/")
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return path, ""
	}
	return path[:i], path[i+1:]
}
