package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/kingrea/layers/internal/agents"
	"github.com/kingrea/layers/internal/config"
	"github.com/kingrea/layers/internal/messaging"
	"github.com/kingrea/layers/internal/monitor"
	"github.com/kingrea/layers/internal/roster"
	"github.com/kingrea/layers/internal/tui"
)

func newFlagSet(e *env, name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet("layers "+name, pflag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}

// errHelp stops a command after its usage has been printed.
var errHelp = errors.New("help requested")

func parseFlags(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return errHelp
		}
		return usagef("%v", err)
	}
	return nil
}

func runInit(_ context.Context, e *env, args []string) error {
	if len(args) > 0 {
		return usagef("init takes no arguments")
	}
	if err := config.InitLayersDir(e.projectDir); err != nil {
		return fmt.Errorf("initializing %s: %w", config.LayersDir, err)
	}
	cfg, err := config.NewConfig(e.projectDir)
	if err != nil {
		return err
	}
	path := cfg.RosterPath()
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(e.stdout, "Roster already present: %s\n", path)
		return nil
	}
	ref := roster.Reference()
	if err := roster.Save(path, ref); err != nil {
		return fmt.Errorf("writing roster: %w", err)
	}
	for _, w := range ref.Workers() {
		if err := ensurePrompt(e.projectDir, w); err != nil {
			return err
		}
	}
	fmt.Fprintf(e.stdout, "%s %s (%d agents)\n", color.GreenString("Initialized"), path, ref.Len())
	return nil
}

func ensurePrompt(projectDir string, w roster.WorkerConfig) error {
	if w.PromptFile == "" {
		return nil
	}
	path := filepath.Join(projectDir, w.PromptFile)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	body := fmt.Sprintf("# %s\n\nDescribe the responsibilities of the %s role here.\n", w.Role, w.Role)
	return os.WriteFile(path, []byte(body), 0o644)
}

func runStart(ctx context.Context, e *env, args []string) error {
	sys, err := e.open()
	if err != nil {
		return err
	}
	defer sys.Close()
	if _, err := sys.LoadRoster(); err != nil {
		return err
	}
	if len(args) == 0 {
		if err := sys.Agents.StartAll(ctx); err != nil {
			return err
		}
		fmt.Fprintln(e.stdout, color.GreenString("All agents started"))
		return nil
	}
	for _, name := range args {
		if err := sys.Agents.StartAgent(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func runStop(ctx context.Context, e *env, args []string) error {
	sys, err := e.open()
	if err != nil {
		return err
	}
	defer sys.Close()
	if len(args) > 0 {
		for _, name := range args {
			if err := sys.Agents.StopAgent(ctx, name); err != nil {
				return err
			}
		}
		return nil
	}
	if _, err := sys.LoadRoster(); err != nil {
		return err
	}
	if err := sys.Agents.StopAll(ctx); err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, color.GreenString("All agents stopped"))
	return nil
}

func runStatus(ctx context.Context, e *env, args []string) error {
	if len(args) > 0 {
		return usagef("status takes no arguments")
	}
	sys, err := e.open()
	if err != nil {
		return err
	}
	defer sys.Close()
	if _, err := sys.LoadRoster(); err != nil {
		return err
	}
	statuses, err := sys.Agents.Status(ctx)
	if err != nil {
		return err
	}
	printStatus(e.stdout, statuses)
	return nil
}

func printStatus(w io.Writer, statuses []agents.WorkerStatus) {
	running := 0
	for _, s := range statuses {
		if s.Running {
			running++
		}
	}
	health := color.GreenString("OK")
	if running < len(statuses) {
		health = color.RedString("DEGRADED")
	}
	fmt.Fprintln(w, color.New(color.Bold).Sprint("=== Layers Agent Status ==="))
	fmt.Fprintf(w, "Total: %d  Running: %d  Stopped: %d  Health: %s\n\n", len(statuses), running, len(statuses)-running, health)
	for _, group := range agents.GroupByRole(statuses) {
		role := string(group.Role)
		if role == "" {
			role = "unassigned"
		}
		fmt.Fprintf(w, "%s:\n", role)
		for _, s := range group.Statuses {
			tag := color.RedString("[STOPPED]")
			if s.Running {
				tag = color.GreenString("[RUNNING]")
			}
			fmt.Fprintf(w, "  %s %s\n", tag, s.Name)
		}
		fmt.Fprintln(w)
	}
}

func runSend(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "send")
	to := fs.String("to", "", "target worker")
	from := fs.String("from", "coo", "sender name")
	typ := fs.String("type", "", "message type ("+joinTypes()+")")
	priority := fs.String("priority", string(messaging.PriorityNormal), "low, normal, high or urgent")
	subject := fs.String("subject", "", "short subject line")
	body := fs.String("message", "", "message body")
	task := fs.String("task", "", "task id the message refers to")
	requiresResponse := fs.Bool("requires-response", false, "ask the recipient to reply")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *to == "" || *typ == "" || *body == "" {
		return usagef("send requires --to, --type and --message")
	}
	msgType, err := messaging.ParseType(*typ)
	if err != nil {
		return usagef("%v", err)
	}
	prio, err := messaging.ParsePriority(*priority)
	if err != nil {
		return usagef("%v", err)
	}

	sys, err := e.open()
	if err != nil {
		return err
	}
	defer sys.Close()
	msg, err := sys.Broker.Send(ctx, messaging.Draft{
		Type:     msgType,
		From:     *from,
		To:       *to,
		Priority: prio,
		Content: messaging.Content{
			Subject: *subject,
			Body:    *body,
			TaskID:  *task,
		},
		RequiresResponse: *requiresResponse,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "%s %s\n", color.GreenString("Message sent:"), msg.ID)
	return nil
}

func joinTypes() string {
	names := make([]string, len(messaging.Types))
	for i, t := range messaging.Types {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

func runMonitor(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "monitor")
	interval := fs.Duration("interval", 0, "poll period (default from config)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	sys, err := e.open()
	if err != nil {
		return err
	}
	defer sys.Close()
	if _, err := sys.LoadRoster(); err != nil {
		return err
	}
	period := *interval
	if period == 0 {
		period = sys.Config.MonitorInterval()
	}
	sys.Monitor = sys.NewMonitor(func(r agents.HealthReport) {
		printHealthLine(e.stdout, r)
	})
	printHealthLine(e.stdout, sys.Monitor.Check(ctx))
	if err := sys.Monitor.Watch(ctx, period); err != nil {
		return usagef("%v", err)
	}
	<-ctx.Done()
	sys.Monitor.StopWatching()
	return nil
}

func printHealthLine(w io.Writer, r agents.HealthReport) {
	stamp := time.Now().Format("15:04:05")
	if r.Healthy {
		fmt.Fprintf(w, "[%s] %s %d/%d running\n", stamp, color.GreenString("healthy"), len(r.Workers), len(r.Workers))
		return
	}
	fmt.Fprintf(w, "[%s] %s %d/%d running, missing: %s\n", stamp, color.RedString("degraded"),
		len(r.Workers)-r.UnhealthyCount, len(r.Workers), strings.Join(r.Unhealthy(), ", "))
}

func runLive(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "live")
	interval := fs.Duration("interval", 0, "refresh period, at least 1s (default from config)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *interval != 0 && *interval < time.Second {
		return usagef("--interval must be at least 1s")
	}
	// The dashboard owns the screen; keep log lines off the console.
	e.opts.Stdout = io.Discard
	e.opts.Stderr = io.Discard
	sys, err := e.open()
	if err != nil {
		return err
	}
	defer sys.Close()
	if _, err := sys.LoadRoster(); err != nil {
		return err
	}
	period := *interval
	if period == 0 {
		period = sys.Config.LiveInterval()
	}
	app := tui.NewApp(ctx, tui.Sources{Status: sys.Agents, Panes: sys.Tmux, History: sys.Broker}, period)
	program := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("running dashboard: %w", err)
	}
	return nil
}

func runRecover(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "recover")
	retries := fs.Int("retries", 0, "maximum attempts (default from config)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usagef("recover requires exactly one worker name")
	}
	sys, err := e.open()
	if err != nil {
		return err
	}
	defer sys.Close()
	if _, err := sys.LoadRoster(); err != nil {
		return err
	}
	attempts := *retries
	if attempts <= 0 {
		attempts = sys.Config.MaxRetries()
	}
	name := fs.Arg(0)
	if err := sys.Agents.Recover(ctx, name, attempts); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "%s %s\n", color.GreenString("Recovered"), name)
	return nil
}

func runCapture(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "capture")
	lines := fs.Int("lines", monitor.DefaultCaptureLines, "number of history lines")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usagef("capture requires exactly one worker name")
	}
	sys, err := e.open()
	if err != nil {
		return err
	}
	defer sys.Close()
	fmt.Fprint(e.stdout, sys.Monitor.CaptureLog(ctx, fs.Arg(0), *lines))
	return nil
}

func runSessions(ctx context.Context, e *env, args []string) error {
	if len(args) > 0 {
		return usagef("sessions takes no arguments")
	}
	sys, err := e.open()
	if err != nil {
		return err
	}
	defer sys.Close()
	sessions := sys.Monitor.Sessions(ctx)
	if len(sessions) == 0 {
		fmt.Fprintln(e.stdout, "No tmux sessions")
		return nil
	}
	for _, s := range sessions {
		attached := ""
		if s.Attached {
			attached = color.CyanString(" (attached)")
		}
		fmt.Fprintf(e.stdout, "%-16s %d windows  created %s%s\n", s.Name, s.Windows, s.CreatedAt.Format("2006-01-02 15:04"), attached)
	}
	return nil
}

func runHistory(_ context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "history")
	limit := fs.Int("limit", 20, "number of records")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	sys, err := e.open()
	if err != nil {
		return err
	}
	defer sys.Close()
	records, total := sys.Broker.History(*limit)
	fmt.Fprintf(e.stdout, "Showing %d of %d messages\n", len(records), total)
	for _, rec := range records {
		line := fmt.Sprintf("%s %s %s → %s", color.HiBlackString(rec.Timestamp), color.CyanString("["+rec.Type+"]"), rec.From, rec.To)
		if rec.Subject != "" {
			line += " · " + rec.Subject
		}
		fmt.Fprintln(e.stdout, line)
		if rec.BodyPreview != "" {
			fmt.Fprintf(e.stdout, "    %s\n", rec.BodyPreview)
		}
	}
	return nil
}

func runValidate(_ context.Context, e *env, args []string) error {
	if len(args) > 1 {
		return usagef("validate takes at most one path")
	}
	var path string
	if len(args) == 1 {
		path = args[0]
	} else {
		cfg, err := config.NewConfig(e.projectDir)
		if err != nil {
			return err
		}
		path = cfg.RosterPath()
	}
	r, err := roster.Load(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "%s %s (%d agents, root %s)\n", color.GreenString("OK:"), path, r.Len(), r.Root())
	for i, stage := range r.Stages() {
		fmt.Fprintf(e.stdout, "  stage %d: %s\n", i+1, strings.Join(stage, ", "))
	}
	return nil
}
