package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// SystemLogFile is the name of the system log inside the logs directory.
const SystemLogFile = "system.log"

// Logger appends structured entries to <logDir>/system.log and mirrors them
// to the console, so failures stay inspectable after the tmux sessions close.
type Logger struct {
	*slog.Logger
	file *os.File
}

// Options tunes New.
type Options struct {
	// Level is the minimum level recorded. Defaults to info.
	Level slog.Level
	// Stdout and Stderr receive the console mirror. Nil defaults to the
	// process streams; use io.Discard to silence the console.
	Stdout io.Writer
	Stderr io.Writer
}

// New creates (or reuses) the system log file under logDir.
func New(logDir string, opts Options) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	path := filepath.Join(logDir, SystemLogFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	stdout, stderr := opts.Stdout, opts.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	handler := NewHandler(f, stdout, stderr, opts.Level)
	return &Logger{Logger: slog.New(handler), file: f}, nil
}

// Close releases the file handle.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// For returns a logger whose entries carry source as their origin.
func For(logger *slog.Logger, source string) *slog.Logger {
	if logger == nil {
		logger = Discard()
	}
	return logger.With(SourceKey, source)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(NewHandler(nil, nil, nil, slog.LevelError+1))
}

// ParseLevel maps debug|info|warn|error to a slog level. Unknown values
// fall back to info.
func ParseLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
