package plan

import (
	"fmt"
	"os"
	"regexp"
	"strconv"

	"github.com/Iron-Ham/foreman/internal/logging"
)

var (
	// Go's regexp has no lookahead, so the end of a stage block is found with
	// a second search starting after the block's header.
	stageBoundaryRe = regexp.MustCompile(`(?m)^###\s+Stage\s+\d+:|^## Notes`)
	statusFieldRe   = regexp.MustCompile(`(\*\*Status\*\*:)[ \t]*\S*`)
	prFieldRe       = regexp.MustCompile(`(\*\*PR\*\*:)[^\n]*`)
)

// Updater rewrites stage fields of a plan file in place.
type Updater struct {
	path   string
	logger *logging.Logger
}

// NewUpdater creates an Updater for the plan at path.
func NewUpdater(path string, logger *logging.Logger) *Updater {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Updater{path: path, logger: logger}
}

// Path returns the plan file the updater writes to.
func (u *Updater) Path() string {
	return u.path
}

// UpdateStage sets stage number's status and, when pr > 0, its PR field.
// It returns false without touching the file when the stage does not exist.
func (u *Updater) UpdateStage(number int, status Status, pr int) (bool, error) {
	info, err := os.Stat(u.path)
	if err != nil {
		u.logger.Warn("plan file not found", "path", u.path)
		return false, nil
	}
	data, err := os.ReadFile(u.path)
	if err != nil {
		return false, fmt.Errorf("failed to read plan: %w", err)
	}

	updated, ok := UpdateStageText(string(data), number, status, pr)
	if !ok {
		u.logger.Warn("stage not found in plan", "stage", number, "path", u.path)
		return false, nil
	}
	if updated == string(data) {
		return true, nil
	}

	if err := os.WriteFile(u.path, []byte(updated), info.Mode().Perm()); err != nil {
		return false, fmt.Errorf("failed to write plan: %w", err)
	}
	u.logger.Info("updated stage", "stage", number, "status", status, "pr", pr)
	return true, nil
}

// MarkInProgress marks each of the given stages in_progress.
func (u *Updater) MarkInProgress(numbers []int) error {
	for _, n := range numbers {
		if _, err := u.UpdateStage(n, StatusInProgress, 0); err != nil {
			return err
		}
	}
	return nil
}

// UpdateStageText returns content with stage number's Status field (and PR
// field, when pr > 0) replaced. Everything outside those two fields is kept
// byte for byte. ok is false when the stage block cannot be found.
func UpdateStageText(content string, number int, status Status, pr int) (string, bool) {
	start, end, found := stageBounds(content, number)
	if !found {
		return content, false
	}

	block := content[start:end]
	block = replaceFirst(statusFieldRe, block, "${1} "+status.String())
	if pr > 0 {
		block = replaceFirst(prFieldRe, block, "${1} #"+strconv.Itoa(pr))
	}

	return content[:start] + block + content[end:], true
}

// stageBounds locates the byte range of stage number's block: from its
// header up to the next stage header, the notes section or end of input.
func stageBounds(content string, number int) (int, int, bool) {
	headerRe := regexp.MustCompile(`(?m)^###\s+Stage\s+` + strconv.Itoa(number) + `:`)
	loc := headerRe.FindStringIndex(content)
	if loc == nil {
		return 0, 0, false
	}

	start := loc[0]
	end := len(content)
	if next := stageBoundaryRe.FindStringIndex(content[loc[1]:]); next != nil {
		end = loc[1] + next[0]
	}
	return start, end, true
}

func replaceFirst(re *regexp.Regexp, s, repl string) string {
	loc := re.FindStringSubmatchIndex(s)
	if loc == nil {
		return s
	}
	var dst []byte
	dst = re.ExpandString(dst, repl, s, loc)
	return s[:loc[0]] + string(dst) + s[loc[1]:]
}
