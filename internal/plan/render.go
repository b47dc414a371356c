package plan

import (
	"bytes"
	"fmt"
	"os"
	"text/template"
)

const documentTemplate = `# {{.Title}}

## Overview

{{.Overview}}

## Stages
{{range .Stages}}
### Stage {{.Number}}: {{.Title}}

- **Status**: {{.Status}}
- **Branch**: {{.Branch}}
- **Parallel group**: {{.ParallelGroup}}
- **Depends on**: {{dependency .DependsOn}}
- **PR**:{{if .PRNumber}} #{{.PRNumber}}{{end}}
- **Description**: {{.Description}}
{{- if .Files}}
- **Files**:
{{- range .Files}}
  - [{{.Path}}]: {{.Description}}
{{- end}}
{{- end}}
{{- if .AcceptanceCriteria}}
- **Acceptance criteria**:
{{- range .AcceptanceCriteria}}
  - [{{if .Checked}}x{{else}} {{end}}] {{.Text}}
{{- end}}
{{- end}}
{{end}}
## Notes

{{.Notes}}
`

var documentTmpl = template.Must(template.New("plan").Funcs(template.FuncMap{
	"dependency": func(branch string) string {
		if branch == "" {
			return "none"
		}
		return branch
	},
}).Parse(documentTemplate))

// Render serializes the plan into the document format read by Parse.
func (p *Plan) Render() (string, error) {
	var buf bytes.Buffer
	if err := documentTmpl.Execute(&buf, p); err != nil {
		return "", fmt.Errorf("failed to render plan: %w", err)
	}
	return buf.String(), nil
}

// Save renders the plan and writes it to p.Path.
func (p *Plan) Save() error {
	if p.Path == "" {
		return fmt.Errorf("plan has no path")
	}
	content, err := p.Render()
	if err != nil {
		return err
	}
	return os.WriteFile(p.Path, []byte(content), 0644)
}
