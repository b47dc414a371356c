package plan

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/Iron-Ham/foreman/internal/errors"
)

var (
	stageHeaderRe = regexp.MustCompile(`^###\s+Stage\s+(\d+):\s*(.+)$`)
	fieldRe       = regexp.MustCompile(`^-\s+\*\*([^*]+)\*\*:\s*(.*)$`)
	fileItemRe    = regexp.MustCompile(`^\s+-\s+\[([^\]]+)\]:\s*(.*)$`)
	criterionRe   = regexp.MustCompile(`^\s+-\s+\[([xX ])\]\s+(.+)$`)
	prNumberRe    = regexp.MustCompile(`#?(\d+)`)
)

// section tracks which part of the document the parser is in.
type section int

const (
	sectionNone section = iota
	sectionOverview
	sectionStages
	sectionStage
	sectionNotes
)

// Load reads and parses the plan at path.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", errors.ErrPlanNotFound, path)
		}
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}

	p, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	p.Path = path
	return p, nil
}

// Parse parses plan document text. Stage blocks may be partially filled:
// a missing status is pending, a missing group is DefaultGroup and a
// dependency of "none" is treated as absent.
func Parse(text string) (*Plan, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: document is empty", errors.ErrPlanInvalid)
	}

	p := &Plan{}
	var (
		current       = sectionNone
		stage         *Stage
		overviewLines []string
		notesLines    []string
	)

	flush := func() {
		if stage != nil {
			p.Stages = append(p.Stages, *stage)
			stage = nil
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")

		if strings.HasPrefix(line, "# ") {
			if p.Title == "" {
				p.Title = strings.TrimSpace(line[2:])
			}
			continue
		}

		switch {
		case strings.HasPrefix(line, "## Overview"):
			flush()
			current = sectionOverview
			continue
		case strings.HasPrefix(line, "## Stages"):
			flush()
			current = sectionStages
			continue
		case strings.HasPrefix(line, "## Notes"):
			flush()
			current = sectionNotes
			continue
		}

		if m := stageHeaderRe.FindStringSubmatch(line); m != nil {
			flush()
			n, err := strconv.Atoi(m[1])
			if err != nil {
				return nil, fmt.Errorf("%w: bad stage number %q", errors.ErrPlanInvalid, m[1])
			}
			stage = &Stage{
				Number:        n,
				Title:         strings.TrimSpace(m[2]),
				ParallelGroup: DefaultGroup,
				Status:        StatusPending,
			}
			current = sectionStage
			continue
		}

		switch current {
		case sectionStage:
			parseStageLine(stage, line)
		case sectionOverview:
			overviewLines = append(overviewLines, line)
		case sectionNotes:
			notesLines = append(notesLines, line)
		}
	}
	flush()

	p.Overview = strings.TrimSpace(strings.Join(overviewLines, "\n"))
	p.Notes = strings.TrimSpace(strings.Join(notesLines, "\n"))
	return p, nil
}

// parseStageLine applies one line of a stage block to s. Unknown fields and
// free text are ignored.
func parseStageLine(s *Stage, line string) {
	if m := fieldRe.FindStringSubmatch(line); m != nil {
		name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(m[1])), " ", "_")
		value := strings.TrimSpace(m[2])

		switch name {
		case "status":
			s.Status = ParseStatus(value)
		case "branch":
			s.Branch = value
		case "parallel_group":
			if value != "" {
				s.ParallelGroup = value
			}
		case "depends_on":
			if strings.EqualFold(value, "none") {
				value = ""
			}
			s.DependsOn = value
		case "pr":
			s.PRNumber = 0
			if pm := prNumberRe.FindStringSubmatch(value); pm != nil {
				s.PRNumber, _ = strconv.Atoi(pm[1])
			}
		case "description":
			s.Description = value
		}
		return
	}

	if m := fileItemRe.FindStringSubmatch(line); m != nil {
		s.Files = append(s.Files, FileHint{Path: m[1], Description: strings.TrimSpace(m[2])})
		return
	}

	if m := criterionRe.FindStringSubmatch(line); m != nil {
		s.AcceptanceCriteria = append(s.AcceptanceCriteria, Criterion{
			Text:    strings.TrimSpace(m[2]),
			Checked: strings.EqualFold(m[1], "x"),
		})
	}
}
