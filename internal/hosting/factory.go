package hosting

import (
	"os"
	"sort"
	"strings"

	"github.com/Iron-Ham/foreman/internal/errors"
)

// Config selects and authenticates a provider.
type Config struct {
	// Provider is "github", "gitlab", or "auto"/"" to detect from RemoteURL.
	Provider string
	// BaseURL points at a self-hosted instance. Empty means the public host.
	BaseURL string
	// TokenEnvVar overrides the default token variable.
	TokenEnvVar string
	// RemoteURL is the repository's origin URL.
	RemoteURL string
}

// NewProviderFunc builds a provider. Provider packages register one at init
// so this package does not import them.
type NewProviderFunc func(cfg Config) (Provider, error)

var constructors = map[ProviderType]NewProviderFunc{}

// RegisterProvider registers a constructor for providerType.
func RegisterProvider(providerType ProviderType, fn NewProviderFunc) {
	constructors[providerType] = fn
}

// NewProvider resolves the provider type and builds it.
func NewProvider(cfg Config) (Provider, error) {
	pt, err := ResolveType(cfg)
	if err != nil {
		return nil, err
	}
	fn, ok := constructors[pt]
	if !ok {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "no provider registered for %q (registered: %v)", pt, registered())
	}
	return fn(cfg)
}

// ResolveType returns the explicit provider from cfg, or detects it from the
// remote URL.
func ResolveType(cfg Config) (ProviderType, error) {
	switch cfg.Provider {
	case "", "auto":
	case string(ProviderGitHub), string(ProviderGitLab):
		return ProviderType(cfg.Provider), nil
	default:
		return "", errors.Wrapf(errors.ErrInvalidInput, "unknown provider %q (supported: github, gitlab)", cfg.Provider)
	}

	pt := DetectProvider(cfg.RemoteURL)
	if pt == ProviderUnknown {
		return "", errors.Wrapf(errors.ErrInvalidInput,
			"cannot detect hosting provider from remote %q; set hosting.provider", cfg.RemoteURL)
	}
	return pt, nil
}

// TokenEnvVars lists, in priority order, the variables a token is read from.
func TokenEnvVars(pt ProviderType, cfg Config) []string {
	if cfg.TokenEnvVar != "" {
		return []string{cfg.TokenEnvVar}
	}
	switch pt {
	case ProviderGitLab:
		return []string{"GITLAB_TOKEN", "GITLAB_PRIVATE_TOKEN"}
	default:
		return []string{"GITHUB_TOKEN", "GH_TOKEN"}
	}
}

// ResolveToken returns the first non-empty token variable for pt.
func ResolveToken(pt ProviderType, cfg Config) (string, error) {
	vars := TokenEnvVars(pt, cfg)
	for _, v := range vars {
		if token := os.Getenv(v); token != "" {
			return token, nil
		}
	}
	return "", errors.Wrapf(errors.ErrDependencyMissing, "%s not set (required for %s API access)", strings.Join(vars, " or "), pt)
}

func registered() []string {
	names := make([]string, 0, len(constructors))
	for pt := range constructors {
		names = append(names, string(pt))
	}
	sort.Strings(names)
	return names
}
