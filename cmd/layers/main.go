// cmd/layers/main.go
//
// This is the entry point for the layers CLI. Each subcommand builds one
// system.System for the project in the working directory and drives it.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/kingrea/layers/internal/system"
)

// command is one CLI verb.
type command struct {
	name    string
	args    string
	summary string
	run     func(ctx context.Context, env *env, args []string) error
}

// env carries what a command needs from the process.
type env struct {
	projectDir string
	stdout     io.Writer
	stderr     io.Writer
	opts       system.Options
}

// open builds the per-invocation system.
func (e *env) open() (*system.System, error) {
	opts := e.opts
	if opts.Stdout == nil {
		opts.Stdout = e.stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = e.stderr
	}
	return system.New(e.projectDir, opts)
}

// usageError marks bad invocations; they exit with status 2.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }
func (e *usageError) ExitCode() int { return 2 }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

func commands() map[string]command {
	list := []command{
		{"init", "", "create .layers/ with default config and roster", runInit},
		{"start", "[name...]", "start every worker in stages, or just the named ones", runStart},
		{"stop", "[name...]", "stop every worker, or just the named ones", runStop},
		{"status", "", "show session state grouped by role", runStatus},
		{"send", "--to NAME --type TYPE --message TEXT", "deliver a message to a worker", runSend},
		{"monitor", "[--interval D]", "poll health until interrupted", runMonitor},
		{"live", "[--interval D]", "open the live dashboard", runLive},
		{"recover", "NAME [--retries N]", "restart a worker until its session is back", runRecover},
		{"capture", "NAME [--lines N]", "print the tail of a worker's pane", runCapture},
		{"sessions", "", "list every tmux session", runSessions},
		{"history", "[--limit N]", "show recently delivered messages", runHistory},
		{"validate", "[PATH]", "check a roster file and print its stages", runValidate},
	}
	out := make(map[string]command, len(list))
	for _, c := range list {
		out[c.name] = c
	}
	return out
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("error:"), err)
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}
	e := &env{projectDir: cwd, stdout: stdout, stderr: stderr}
	return dispatch(ctx, e, args)
}

func dispatch(ctx context.Context, e *env, args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printHelp(e.stdout)
		return nil
	}
	cmd, ok := commands()[args[0]]
	if !ok {
		printHelp(e.stderr)
		return usagef("unknown command %q", args[0])
	}
	err := cmd.run(ctx, e, args[1:])
	if errors.Is(err, errHelp) {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(e.stderr, color.YellowString("interrupted"))
		return nil
	}
	return err
}

func printHelp(w io.Writer) {
	fmt.Fprintf(w, "%s supervise a hierarchy of agent sessions in tmux\n\n", color.New(color.Bold).Sprint("layers"))
	fmt.Fprintln(w, "Usage: layers <command> [flags]")
	fmt.Fprintln(w)
	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := cmds[name]
		usage := strings.TrimSpace(c.name + " " + c.args)
		fmt.Fprintf(w, "  %-44s %s\n", usage, c.summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Settings live in .layers/config.yaml (or config.toml); set LAYERS_CONFIG to override.")
}
