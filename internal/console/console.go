// Package console prints operator-facing progress lines. Structured debug
// output goes to the logger; this is what a person watching the run reads.
package console

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/foreman/internal/util"
)

var (
	primaryColor = lipgloss.Color("#A78BFA")
	successColor = lipgloss.Color("#10B981")
	warningColor = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#F87171")
	mutedColor   = lipgloss.Color("#9CA3AF")
	borderColor  = lipgloss.Color("#6B7280")

	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	infoStyle    = lipgloss.NewStyle()
	successStyle = lipgloss.NewStyle().Foreground(successColor)
	warningStyle = lipgloss.NewStyle().Foreground(warningColor)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(errorColor)
	dimStyle     = lipgloss.NewStyle().Foreground(mutedColor)
	keyStyle     = lipgloss.NewStyle().Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(borderColor).
			Padding(0, 1)
)

// Printer writes styled lines. It is safe for concurrent use.
type Printer struct {
	mu sync.Mutex
	w  io.Writer
}

// New returns a Printer writing to w.
func New(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Stdout returns a Printer for os.Stdout.
func Stdout() *Printer {
	return New(os.Stdout)
}

// Writer returns the underlying writer.
func (p *Printer) Writer() io.Writer {
	return p.w
}

func (p *Printer) line(style lipgloss.Style, prefix, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, style.Render(prefix+msg))
}

// Header prints a bold section title preceded by a blank line.
func (p *Printer) Header(format string, args ...any) {
	p.mu.Lock()
	fmt.Fprintln(p.w)
	p.mu.Unlock()
	p.line(headerStyle, "", format, args...)
}

func (p *Printer) Info(format string, args ...any) {
	p.line(infoStyle, "", format, args...)
}

func (p *Printer) Success(format string, args ...any) {
	p.line(successStyle, "✓ ", format, args...)
}

func (p *Printer) Warn(format string, args ...any) {
	p.line(warningStyle, "! ", format, args...)
}

func (p *Printer) Error(format string, args ...any) {
	p.line(errorStyle, "✗ ", format, args...)
}

func (p *Printer) Dim(format string, args ...any) {
	p.line(dimStyle, "", format, args...)
}

// Field prints an aligned "key: value" pair.
func (p *Printer) Field(key, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "  %s %s\n", keyStyle.Render(fmt.Sprintf("%-10s", key+":")), value)
}

// ReattachBox prints a boxed hint telling the operator how to get back to a
// detached session.
func (p *Printer) ReattachBox(session, command string) {
	body := strings.Join([]string{
		warningStyle.Render("Detached from " + session),
		"The run continues in the background. Reattach with:",
		keyStyle.Render("  " + command),
	}, "\n")
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, boxStyle.Render(body))
}

// Table prints rows with columns padded to the widest cell. Cells wider
// than maxWidth are truncated; 0 disables truncation.
func (p *Printer) Table(header []string, rows [][]string, maxWidth int) {
	all := make([][]string, 0, len(rows)+1)
	widths := make([]int, len(header))
	for _, src := range append([][]string{header}, rows...) {
		row := make([]string, len(widths))
		for i := range row {
			if i >= len(src) {
				continue
			}
			row[i] = src[i]
			if maxWidth > 0 {
				row[i] = util.TruncateANSI(row[i], maxWidth)
			}
			if w := lipgloss.Width(row[i]); w > widths[i] {
				widths[i] = w
			}
		}
		all = append(all, row)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for n, row := range all {
		var b strings.Builder
		for i, cell := range row {
			if i < len(widths)-1 {
				cell += strings.Repeat(" ", widths[i]-lipgloss.Width(cell)+2)
			}
			b.WriteString(cell)
		}
		out := strings.TrimRight(b.String(), " ")
		if n == 0 {
			out = dimStyle.Render(out)
		}
		fmt.Fprintln(p.w, out)
	}
}

// Status colors a plan or check status word.
func Status(s string) string {
	switch s {
	case "completed", "success", "merged", "done":
		return successStyle.Render(s)
	case "failed", "failure", "closed":
		return errorStyle.Render(s)
	case "in_progress", "pending", "open":
		return warningStyle.Render(s)
	default:
		return dimStyle.Render(s)
	}
}
