package system

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/layers/internal/clock"
	"github.com/kingrea/layers/internal/config"
	"github.com/kingrea/layers/internal/errs"
	"github.com/kingrea/layers/internal/messaging"
	"github.com/kingrea/layers/internal/roster"
)

var targetPattern = regexp.MustCompile(`-[st] "([^"]*)"`)

// tmuxTable emulates the tmux server by interpreting composed command lines.
type tmuxTable struct {
	mu       sync.Mutex
	sessions map[string]bool
	typed    map[string][]string
}

func newTmuxTable() *tmuxTable {
	return &tmuxTable{sessions: map[string]bool{}, typed: map[string][]string{}}
}

var errNoServer = errors.New("no server running")

func (r *tmuxTable) Run(_ context.Context, command string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var target string
	if m := targetPattern.FindStringSubmatch(command); m != nil {
		target = m[1]
	}
	switch {
	case strings.HasPrefix(command, "tmux new-session"):
		r.sessions[target] = true
	case strings.HasPrefix(command, "tmux has-session"):
		if !r.sessions[target] {
			return "", errNoServer
		}
	case strings.HasPrefix(command, "tmux kill-session"):
		if !r.sessions[target] {
			return "", errNoServer
		}
		delete(r.sessions, target)
	case strings.HasPrefix(command, "tmux send-keys"):
		r.typed[target] = append(r.typed[target], command)
	case strings.HasPrefix(command, "tmux list-sessions"):
		var lines []string
		for name := range r.sessions {
			lines = append(lines, name+"|0|1|1700000000")
		}
		return strings.Join(lines, "\n"), nil
	}
	return "", nil
}

func newProject(t *testing.T) (string, *tmuxTable, *System) {
	t.Helper()
	t.Setenv(config.EnvConfigPath, "")
	dir := t.TempDir()
	require.NoError(t, config.InitLayersDir(dir))
	r, err := roster.New([]roster.WorkerConfig{
		{Name: "root", PromptFile: ".layers/prompts/root.md"},
		{Name: "child", Superior: "root"},
		{Name: "leaf", Superior: "child", PermissionMode: roster.PermissionAcceptEdits},
	})
	require.NoError(t, err)
	require.NoError(t, roster.Save(filepath.Join(dir, ".layers", "config", "agents.json"), r))

	table := newTmuxTable()
	sys, err := New(dir, Options{
		Stdout: io.Discard,
		Stderr: io.Discard,
		Runner: table,
		Clock:  clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)
	t.Cleanup(func() { sys.Close() })
	return dir, table, sys
}

func TestSystemStartsMessagesAndStops(t *testing.T) {
	dir, table, sys := newProject(t)
	ctx := context.Background()

	r, err := sys.LoadRoster()
	require.NoError(t, err)
	assert.Equal(t, 3, r.Len())

	require.NoError(t, sys.Agents.StartAll(ctx))
	assert.True(t, sys.Monitor.Check(ctx).Healthy)
	require.Len(t, table.typed["root"], 2)
	assert.Equal(t, `tmux send-keys -t "root" Enter`, table.typed["root"][1])
	assert.Contains(t, table.typed["root"][0], `--system-prompt-file \"`+filepath.Join(dir, ".layers/prompts/root.md")+`\"`)
	assert.Contains(t, table.typed["leaf"][0], "--permission-mode acceptEdits")

	msg, err := sys.Broker.Send(ctx, messaging.Draft{
		Type: messaging.TypeInstruction, From: "coo", To: "child",
		Content: messaging.Content{Subject: "kickoff", Body: "Plan sprint $1"},
	})
	require.NoError(t, err)
	records, total := sys.Broker.History(10)
	require.Equal(t, 1, total)
	assert.Equal(t, msg.ID, records[0].MessageID)
	assert.Contains(t, table.typed["child"][2], `sprint \$1`)
	assert.Contains(t, table.typed["child"][2], `-t "child" -- "---[MESSAGE START]---`)

	require.NoError(t, sys.Agents.StopAll(ctx))
	report := sys.Monitor.Check(ctx)
	assert.Equal(t, 3, report.UnhealthyCount)

	_, err = sys.Broker.Send(ctx, messaging.Draft{Type: messaging.TypeAck, From: "coo", To: "child"})
	assert.ErrorIs(t, err, errs.ErrDelivery)
}

func TestSystemLoadRosterReportsConfigErrors(t *testing.T) {
	t.Setenv(config.EnvConfigPath, "")
	dir := t.TempDir()
	sys, err := New(dir, Options{Stdout: io.Discard, Stderr: io.Discard, Runner: newTmuxTable()})
	require.NoError(t, err)
	defer sys.Close()

	_, err = sys.LoadRoster()
	assert.ErrorIs(t, err, errs.ErrConfig)
	assert.Empty(t, sys.Monitor.Check(context.Background()).Workers)
}
