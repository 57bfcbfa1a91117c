package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/layers/internal/agents"
	"github.com/kingrea/layers/internal/clock"
	"github.com/kingrea/layers/internal/logging"
	"github.com/kingrea/layers/internal/roster"
	"github.com/kingrea/layers/internal/tmux"
)

type fakeSessions struct {
	mu       sync.Mutex
	live     []string
	panes    map[string]string
	captures []tmux.CaptureOptions
}

func (f *fakeSessions) ListSessions(context.Context) []tmux.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]tmux.Session, len(f.live))
	for i, name := range f.live {
		out[i] = tmux.Session{Name: name, Windows: 1}
	}
	return out
}

func (f *fakeSessions) CapturePane(_ context.Context, target string, opts tmux.CaptureOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captures = append(f.captures, opts)
	pane, ok := f.panes[target]
	if !ok {
		return "", errors.New("can't find pane")
	}
	return pane, nil
}

func referenceWithout(absent ...string) []string {
	skip := map[string]bool{}
	for _, name := range absent {
		skip[name] = true
	}
	var live []string
	for _, name := range roster.Reference().Names() {
		if !skip[name] {
			live = append(live, name)
		}
	}
	return live
}

func TestCheckComparesAgainstRoster(t *testing.T) {
	sessions := &fakeSessions{live: append(referenceWithout("director", "lead_qa", "tester_2"), "scratch")}
	m := New(sessions, roster.Reference(), Options{})

	report := m.Check(context.Background())
	assert.Len(t, report.Workers, 14)
	assert.Equal(t, 3, report.UnhealthyCount)
	assert.False(t, report.Healthy)
	assert.Equal(t, []string{"director", "lead_qa", "tester_2"}, report.Unhealthy())

	sessions.live = referenceWithout()
	report = m.Check(context.Background())
	assert.True(t, report.Healthy)
	assert.Zero(t, report.UnhealthyCount)
}

func TestCheckTreatsFailedListingAsAllAbsent(t *testing.T) {
	m := New(&fakeSessions{}, roster.Reference(), Options{})
	report := m.Check(context.Background())
	assert.Equal(t, 14, report.UnhealthyCount)
}

func TestWatchWarnsAboutUnhealthyMembers(t *testing.T) {
	var logBuf bytes.Buffer
	logger := slog.New(logging.NewHandler(&logBuf, io.Discard, io.Discard, slog.LevelInfo))
	fake := clock.NewFake(time.Now())
	reports := make(chan agents.HealthReport, 4)
	sessions := &fakeSessions{live: referenceWithout("programmer_3", "designer_1")}
	m := New(sessions, roster.Reference(), Options{
		Clock:    fake,
		Logger:   logger,
		OnReport: func(r agents.HealthReport) { reports <- r },
	})

	require.NoError(t, m.Watch(context.Background(), 5*time.Second))
	assert.True(t, m.Watching())
	assert.Equal(t, 1, fake.ActiveTickers())

	fake.Tick()
	report := <-reports
	assert.Equal(t, 2, report.UnhealthyCount)

	m.StopWatching()
	assert.False(t, m.Watching())
	assert.Zero(t, fake.ActiveTickers())

	var warned *logging.Entry
	for _, line := range strings.Split(strings.TrimSpace(logBuf.String()), "\n") {
		var e logging.Entry
		require.NoError(t, json.Unmarshal([]byte(line), &e))
		if e.Level == "warn" {
			warned = &e
		}
	}
	require.NotNil(t, warned, "expected a warning entry in %s", logBuf.String())
	assert.Equal(t, "Monitor", warned.Source)
	assert.Equal(t, "Unhealthy agents detected: 2", warned.Message)
	assert.Equal(t, "designer_1,programmer_3", warned.Details["agents"])
}

func TestWatchRearmReplacesPreviousLoop(t *testing.T) {
	fake := clock.NewFake(time.Now())
	m := New(&fakeSessions{}, roster.Reference(), Options{Clock: fake})
	ctx := context.Background()

	require.NoError(t, m.Watch(ctx, time.Second))
	require.NoError(t, m.Watch(ctx, 2*time.Second))
	assert.Equal(t, 1, fake.ActiveTickers())

	m.StopWatching()
	m.StopWatching()
	assert.Zero(t, fake.ActiveTickers())
}

func TestWatchEndsWithParentContext(t *testing.T) {
	fake := clock.NewFake(time.Now())
	m := New(&fakeSessions{}, roster.Reference(), Options{Clock: fake})
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, m.Watch(ctx, time.Second))
	cancel()
	require.Eventually(t, func() bool { return !m.Watching() }, time.Second, time.Millisecond)
	m.StopWatching()
	assert.Zero(t, fake.ActiveTickers())
}

func TestWatchRejectsNonPositiveInterval(t *testing.T) {
	m := New(&fakeSessions{}, roster.Reference(), Options{Clock: clock.NewFake(time.Now())})
	assert.Error(t, m.Watch(context.Background(), 0))
	assert.False(t, m.Watching())
}

func TestCaptureLogWindowsAndSwallowsErrors(t *testing.T) {
	sessions := &fakeSessions{panes: map[string]string{"producer": "line one\nline two\n"}}
	m := New(sessions, roster.Reference(), Options{})
	ctx := context.Background()

	assert.Equal(t, "line one\nline two\n", m.CaptureLog(ctx, "producer", 3))
	require.Len(t, sessions.captures, 1)
	require.NotNil(t, sessions.captures[0].StartLine)
	assert.Equal(t, -3, *sessions.captures[0].StartLine)

	assert.Equal(t, "", m.CaptureLog(ctx, "ghost", 0))
	assert.Equal(t, -DefaultCaptureLines, *sessions.captures[1].StartLine)
}

func TestSessionsListsEverything(t *testing.T) {
	m := New(&fakeSessions{live: []string{"producer", "scratch"}}, roster.Reference(), Options{})
	sessions := m.Sessions(context.Background())
	require.Len(t, sessions, 2)
	assert.Equal(t, "scratch", sessions[1].Name)
}

func TestActivity(t *testing.T) {
	cases := map[string]string{
		"":                            ActivityWaiting,
		"   \n\n  ":                   ActivityWaiting,
		"first\n  last line  \n\n":    "last line",
		strings.Repeat("x", 30):       strings.Repeat("x", 25) + "...",
		"> Editing src/game/loop.go…": "> Editing src/game/loop.g...",
	}
	for in, want := range cases {
		assert.Equal(t, want, Activity(in), "input %q", in)
	}
}
