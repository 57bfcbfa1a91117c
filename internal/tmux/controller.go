// Package tmux is the session transport: a thin, order-preserving adapter
// that turns session intents (create, destroy, exists, list, inject text,
// capture output) into tmux command lines. It keeps no state of its own;
// the tmux server is the only source of truth.
//
// Command lines are executed through a shell, so every interpolated value is
// wrapped in double quotes with backslash, double quote, dollar and backtick
// escaped. Text injected with SendKeys therefore reaches the target pane
// exactly as given.
package tmux

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kingrea/layers/internal/errs"
)

const (
	// DefaultWindowName labels the first window of a new session.
	DefaultWindowName = "main"

	listFormat = "#{session_name}|#{session_attached}|#{session_windows}|#{session_created}"
)

var errSessionMissing = errors.New("session missing after create")

// Session describes one live tmux session.
type Session struct {
	Name      string
	Attached  bool
	Windows   int
	CreatedAt time.Time
}

// SessionOptions configures NewSession. The zero value creates a detached
// session in the current directory with a window labelled "main".
type SessionOptions struct {
	WindowName string
	WorkingDir string
	// Attached creates the session attached to the calling terminal.
	Attached bool
}

// CaptureOptions windows the captured pane output. Nil bounds leave the tmux
// default (the visible pane).
type CaptureOptions struct {
	StartLine *int
	EndLine   *int
}

// LastLines captures the final n lines of history.
func LastLines(n int) CaptureOptions {
	start := -n
	return CaptureOptions{StartLine: &start}
}

// Controller issues tmux commands through a Runner.
type Controller struct {
	runner Runner
}

// NewController wires a Controller to runner. A nil runner uses ShellRunner.
func NewController(runner Runner) *Controller {
	if runner == nil {
		runner = ShellRunner{}
	}
	return &Controller{runner: runner}
}

// NewSession creates a session. It fails with a transport error when tmux
// rejects the request or the session is absent afterwards.
func (c *Controller) NewSession(ctx context.Context, name string, opts SessionOptions) error {
	window := opts.WindowName
	if window == "" {
		window = DefaultWindowName
	}
	dir := opts.WorkingDir
	if dir == "" {
		if wd, err := os.Getwd(); err == nil {
			dir = wd
		}
	}
	parts := []string{"tmux new-session"}
	if !opts.Attached {
		parts = append(parts, "-d")
	}
	parts = append(parts, "-s "+Quote(name), "-n "+Quote(window))
	if dir != "" {
		parts = append(parts, "-c "+Quote(dir))
	}
	if _, err := c.runner.Run(ctx, strings.Join(parts, " ")); err != nil {
		return errs.Transport("create session", name, err)
	}
	if !c.HasSession(ctx, name) {
		return errs.Transport("create session", name, errSessionMissing)
	}
	return nil
}

// KillSession terminates a session. The failure of the kill command is
// reported as-is, including when the session did not exist.
func (c *Controller) KillSession(ctx context.Context, name string) error {
	if _, err := c.runner.Run(ctx, "tmux kill-session -t "+Quote(name)); err != nil {
		return errs.Transport("kill session", name, err)
	}
	return nil
}

// HasSession reports whether the session exists. Any query failure reads as
// absent.
func (c *Controller) HasSession(ctx context.Context, name string) bool {
	_, err := c.runner.Run(ctx, "tmux has-session -t "+Quote(name))
	return err == nil
}

// ListSessions enumerates live sessions. Enumeration is best-effort: a
// failed query or an unparseable line yields fewer (or no) entries rather
// than an error.
func (c *Controller) ListSessions(ctx context.Context) []Session {
	out, err := c.runner.Run(ctx, "tmux list-sessions -F "+Quote(listFormat))
	if err != nil {
		return nil
	}
	return parseSessions(out)
}

func parseSessions(out string) []Session {
	var sessions []Session
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, "|")
		if len(fields) != 4 {
			continue
		}
		windows, err := strconv.Atoi(fields[2])
		if err != nil {
			continue
		}
		created, err := strconv.ParseInt(fields[3], 10, 64)
		if err != nil {
			continue
		}
		sessions = append(sessions, Session{
			Name:      fields[0],
			Attached:  fields[1] == "1",
			Windows:   windows,
			CreatedAt: time.Unix(created, 0),
		})
	}
	return sessions
}

// SendKeys injects keys into the target's input. The text follows "--" so
// tmux never reads a leading dash as a flag. When enter is set, a separate
// Enter keystroke follows so the target submits the text.
func (c *Controller) SendKeys(ctx context.Context, target, keys string, enter bool) error {
	if _, err := c.runner.Run(ctx, "tmux send-keys -t "+Quote(target)+" -- "+Quote(keys)); err != nil {
		return errs.Transport("send keys", target, err)
	}
	if enter {
		if _, err := c.runner.Run(ctx, "tmux send-keys -t "+Quote(target)+" Enter"); err != nil {
			return errs.Transport("send keys", target, err)
		}
	}
	return nil
}

// CapturePane returns the target's recent output.
func (c *Controller) CapturePane(ctx context.Context, target string, opts CaptureOptions) (string, error) {
	cmd := "tmux capture-pane -t " + Quote(target) + " -p"
	if opts.StartLine != nil {
		cmd += " -S " + strconv.Itoa(*opts.StartLine)
	}
	if opts.EndLine != nil {
		cmd += " -E " + strconv.Itoa(*opts.EndLine)
	}
	out, err := c.runner.Run(ctx, cmd)
	if err != nil {
		return "", errs.Transport("capture pane", target, err)
	}
	return out, nil
}

var escaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `\$`, "`", "\\`")

// Escape protects s from interpretation inside a double-quoted shell word.
func Escape(s string) string {
	return escaper.Replace(s)
}

// Quote returns s as a double-quoted shell word.
func Quote(s string) string {
	return `"` + Escape(s) + `"`
}
