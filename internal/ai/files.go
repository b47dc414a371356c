package ai

import (
	"os"
	"path/filepath"
)

// SessionFiles are the files one detached agent session reads and writes.
// The exit file doubles as the session's completion marker.
type SessionFiles struct {
	Prompt string
	Output string
	Exit   string
	// Stream is the optional raw stream-json mirror; empty when disabled.
	Stream string
}

// NewSessionFiles names the files for prefix inside dir:
// <prefix>.prompt, <prefix>.prompt.output, <prefix>.prompt.exit and, when
// stream is set, <prefix>.prompt.stream.jsonl.
func NewSessionFiles(dir, prefix string, stream bool) SessionFiles {
	base := filepath.Join(dir, prefix+".prompt")
	files := SessionFiles{
		Prompt: base,
		Output: base + ".output",
		Exit:   base + ".exit",
	}
	if stream {
		files.Stream = base + ".stream.jsonl"
	}
	return files
}

// WritePrompt writes the work order and removes outputs left by an earlier
// session with the same prefix.
func (f SessionFiles) WritePrompt(prompt string) error {
	if err := os.MkdirAll(filepath.Dir(f.Prompt), 0755); err != nil {
		return err
	}
	f.removeOutputs()
	return os.WriteFile(f.Prompt, []byte(prompt), 0644)
}

// ReadOutput returns the captured session output, or "" when the agent
// never wrote any.
func (f SessionFiles) ReadOutput() string {
	data, err := os.ReadFile(f.Output)
	if err != nil {
		return ""
	}
	return string(data)
}

// Remove deletes every file of the session.
func (f SessionFiles) Remove() {
	_ = os.Remove(f.Prompt)
	f.removeOutputs()
}

func (f SessionFiles) removeOutputs() {
	for _, p := range []string{f.Output, f.Exit, f.Exit + ".status", f.Stream} {
		if p != "" {
			_ = os.Remove(p)
		}
	}
}
