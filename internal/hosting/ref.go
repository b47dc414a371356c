package hosting

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/Iron-Ham/foreman/internal/errors"
)

// ParseChangeSetRef accepts a change-set number ("42", "#42") or a web URL
// ending in /pull/<n>, /pulls/<n> or /-/merge_requests/<n>.
func ParseChangeSetRef(ref string) (int, error) {
	s := strings.TrimPrefix(strings.TrimSpace(ref), "#")
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return 0, errors.Wrapf(errors.ErrInvalidIdentifier, "change-set number must be positive: %q", ref)
		}
		return n, nil
	}

	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return 0, errors.Wrapf(errors.ErrInvalidIdentifier, "not a change-set number or URL: %q", ref)
	}

	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := len(segs) - 2; i >= 0; i-- {
		switch segs[i] {
		case "pull", "pulls", "merge_requests":
			n, err := strconv.Atoi(segs[i+1])
			if err != nil || n <= 0 {
				break
			}
			return n, nil
		}
	}
	return 0, errors.Wrapf(errors.ErrInvalidIdentifier, "no change-set number in URL: %q", ref)
}

// ParseChangeSetRefs parses every ref, stopping at the first invalid one.
// Duplicates are dropped while preserving order.
func ParseChangeSetRefs(refs []string) ([]int, error) {
	seen := make(map[int]bool, len(refs))
	var out []int
	for _, r := range refs {
		n, err := ParseChangeSetRef(r)
		if err != nil {
			return nil, err
		}
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out, nil
}
