package tmux

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes one shell command line and returns its standard output.
// Every tmux operation goes through a Runner so tests can substitute a fake
// that records the composed command lines.
type Runner interface {
	Run(ctx context.Context, command string) (string, error)
}

// ShellRunner runs command lines through a POSIX shell.
type ShellRunner struct {
	// Shell is the interpreter invoked with -c. Defaults to "sh".
	Shell string
}

// Run executes command and returns stdout. On failure the returned error
// includes the trimmed stderr.
func (r ShellRunner) Run(ctx context.Context, command string) (string, error) {
	shell := r.Shell
	if shell == "" {
		shell = "sh"
	}
	cmd := exec.CommandContext(ctx, shell, "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if detail := strings.TrimSpace(stderr.String()); detail != "" {
			return stdout.String(), fmt.Errorf("%w (%s)", err, detail)
		}
		return stdout.String(), err
	}
	return stdout.String(), nil
}
