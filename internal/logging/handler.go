package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// SourceKey is the attribute naming the component an entry came from.
const SourceKey = "source"

// Entry is one line of the system log.
type Entry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Source    string         `json:"source"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}

// Handler writes each record as an NDJSON Entry to file and as a
// "[timestamp] [LEVEL] [source] message" line to the console. Write errors
// are dropped: logging never fails the caller.
type Handler struct {
	mu     *sync.Mutex
	file   io.Writer
	stdout io.Writer
	stderr io.Writer
	level  slog.Leveler
	attrs  []boundAttr
	groups []string
}

// boundAttr is an attribute attached through WithAttrs, remembered with the
// group path that was open at the time.
type boundAttr struct {
	prefix string
	attr   slog.Attr
}

// NewHandler builds a Handler. Any writer may be nil to skip that sink.
func NewHandler(file, stdout, stderr io.Writer, level slog.Leveler) *Handler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &Handler{
		mu:     &sync.Mutex{},
		file:   file,
		stdout: stdout,
		stderr: stderr,
		level:  level,
	}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	entry := Entry{
		Timestamp: ts.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Level:     levelName(r.Level),
		Message:   r.Message,
	}
	details := map[string]any{}
	collect := func(prefix string, a slog.Attr) {
		if a.Key == SourceKey && prefix == "" {
			entry.Source = a.Value.Resolve().String()
			return
		}
		flatten(details, prefix, a)
	}
	for _, b := range h.attrs {
		collect(b.prefix, b.attr)
	}
	groupPrefix := strings.Join(h.groups, ".")
	r.Attrs(func(a slog.Attr) bool {
		collect(groupPrefix, a)
		return true
	})
	if len(details) > 0 {
		entry.Details = details
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.file != nil {
		if line, err := json.Marshal(entry); err == nil {
			_, _ = h.file.Write(append(line, '\n'))
		}
	}
	console := h.stdout
	if r.Level >= slog.LevelWarn {
		console = h.stderr
	}
	if console != nil {
		fmt.Fprintf(console, "%s %s %s %s\n",
			color.HiBlackString("["+entry.Timestamp+"]"),
			levelTag(r.Level),
			color.CyanString("["+entry.Source+"]"),
			entry.Message,
		)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	prefix := strings.Join(h.groups, ".")
	clone.attrs = make([]boundAttr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, a := range attrs {
		clone.attrs = append(clone.attrs, boundAttr{prefix: prefix, attr: a})
	}
	return &clone
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

func flatten(into map[string]any, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	key := a.Key
	if prefix != "" && key != "" {
		key = prefix + "." + key
	} else if key == "" {
		key = prefix
	}
	if v.Kind() == slog.KindGroup {
		for _, child := range v.Group() {
			flatten(into, key, child)
		}
		return
	}
	if key == "" {
		return
	}
	switch val := v.Any().(type) {
	case error:
		into[key] = val.Error()
	case time.Duration:
		into[key] = val.String()
	default:
		into[key] = val
	}
}

func levelName(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "error"
	case l >= slog.LevelWarn:
		return "warn"
	case l >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}

func levelTag(l slog.Level) string {
	tag := "[" + strings.ToUpper(levelName(l)) + "]"
	switch {
	case l >= slog.LevelError:
		return color.New(color.FgRed, color.Bold).Sprint(tag)
	case l >= slog.LevelWarn:
		return color.YellowString(tag)
	case l >= slog.LevelInfo:
		return color.GreenString(tag)
	default:
		return color.MagentaString(tag)
	}
}
