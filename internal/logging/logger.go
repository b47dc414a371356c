package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Log levels supported by the logger
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// LogFileName is the file created inside a run directory.
const LogFileName = "debug.log"

// Logger writes structured JSON lines. Child loggers created through the
// With* methods share the parent's sink and are safe for concurrent use.
type Logger struct {
	logger *slog.Logger
	out    *sink
}

// sink owns the log file, if any, so that Close works from any child.
type sink struct {
	mu   sync.Mutex
	file *os.File
}

// NewLogger creates a Logger that writes JSON lines to {dir}/debug.log.
// If dir is empty, logs are written to stderr.
//
// Levels are cumulative: DEBUG logs everything, ERROR only errors.
// Unknown levels mean INFO.
func NewLogger(dir string, level string) (*Logger, error) {
	if dir == "" {
		return newWithWriter(os.Stderr, nil, level), nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(filepath.Join(dir, LogFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return newWithWriter(file, file, level), nil
}

// NewWriterLogger creates a Logger that writes JSON lines to w.
func NewWriterLogger(w io.Writer, level string) *Logger {
	return newWithWriter(w, nil, level)
}

func newWithWriter(w io.Writer, file *os.File, level string) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})
	return &Logger{logger: slog.New(handler), out: &sink{file: file}}
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(ParseLevel(level))); err != nil {
		return slog.LevelInfo
	}
	return l
}

// WithRun tags every entry with the orchestrator run ID.
func (l *Logger) WithRun(runID string) *Logger {
	return l.child(slog.String("run_id", runID))
}

// WithStage tags every entry with a plan stage number.
func (l *Logger) WithStage(number int) *Logger {
	return l.child(slog.Int("stage", number))
}

// WithChangeSet tags every entry with a change-set number.
func (l *Logger) WithChangeSet(number int) *Logger {
	return l.child(slog.Int("change_set", number))
}

// WithPhase tags every entry with a phase name
// ("planning", "implementation", "fix", ...).
func (l *Logger) WithPhase(phase string) *Logger {
	return l.child(slog.String("phase", phase))
}

// With returns a child Logger with arbitrary key-value attributes.
// Pairs whose key is not a string are dropped.
func (l *Logger) With(args ...any) *Logger {
	if len(args) == 0 {
		return l
	}
	attrs := make([]any, 0, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		if key, ok := args[i].(string); ok {
			attrs = append(attrs, slog.Any(key, args[i+1]))
		}
	}
	return l.child(attrs...)
}

func (l *Logger) child(attrs ...any) *Logger {
	return &Logger{logger: l.logger.With(attrs...), out: l.out}
}

// Debug logs at DEBUG level with alternating key-value pairs.
func (l *Logger) Debug(msg string, args ...any) {
	l.logger.Debug(msg, args...)
}

// Info logs at INFO level with alternating key-value pairs.
func (l *Logger) Info(msg string, args ...any) {
	l.logger.Info(msg, args...)
}

// Warn logs at WARN level with alternating key-value pairs.
func (l *Logger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, args...)
}

// Error logs at ERROR level with alternating key-value pairs.
func (l *Logger) Error(msg string, args ...any) {
	l.logger.Error(msg, args...)
}

// Close syncs and closes the log file. It is a no-op for stderr and writer
// loggers, and for every call after the first.
func (l *Logger) Close() error {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()

	f := l.out.file
	if f == nil {
		return nil
	}
	l.out.file = nil
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to sync log file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return nil
}

// NopLogger returns a Logger that discards all output.
func NopLogger() *Logger {
	return &Logger{logger: slog.New(slog.DiscardHandler), out: &sink{}}
}

// ParseLevel normalizes a level string, falling back to LevelInfo.
func ParseLevel(level string) string {
	switch strings.ToUpper(level) {
	case LevelDebug:
		return LevelDebug
	case LevelWarn:
		return LevelWarn
	case LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

// ValidLevels returns the list of valid log level strings.
func ValidLevels() []string {
	return []string{LevelDebug, LevelInfo, LevelWarn, LevelError}
}
