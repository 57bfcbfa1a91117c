// Package monitor compares live tmux sessions against the roster and can
// keep doing so on a cancellable timer.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kingrea/layers/internal/agents"
	"github.com/kingrea/layers/internal/clock"
	"github.com/kingrea/layers/internal/logging"
	"github.com/kingrea/layers/internal/roster"
	"github.com/kingrea/layers/internal/tmux"
)

// DefaultCaptureLines is how much pane history CaptureLog returns by default.
const DefaultCaptureLines = 100

// Sessions is the read side of the tmux controller.
type Sessions interface {
	ListSessions(ctx context.Context) []tmux.Session
	CapturePane(ctx context.Context, target string, opts tmux.CaptureOptions) (string, error)
}

// Options configures a Monitor.
type Options struct {
	Clock  clock.Clock
	Logger *slog.Logger
	// OnReport observes every watch tick. It runs on the watch goroutine
	// and must not call StopWatching or Watch.
	OnReport func(agents.HealthReport)
}

// Monitor is the health poller. At most one watch loop runs at a time.
type Monitor struct {
	sessions Sessions
	roster   *roster.Roster
	clock    clock.Clock
	log      *slog.Logger
	onReport func(agents.HealthReport)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Monitor expecting every member of r. A nil roster expects
// nothing, which still serves CaptureLog and Sessions.
func New(sessions Sessions, r *roster.Roster, opts Options) *Monitor {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	return &Monitor{
		sessions: sessions,
		roster:   r,
		clock:    opts.Clock,
		log:      logging.For(opts.Logger, "Monitor"),
		onReport: opts.OnReport,
	}
}

// Check lists live sessions once and reports which roster members are
// missing.
func (m *Monitor) Check(ctx context.Context) agents.HealthReport {
	live := make(map[string]struct{})
	for _, s := range m.sessions.ListSessions(ctx) {
		live[s.Name] = struct{}{}
	}
	var names []string
	if m.roster != nil {
		names = m.roster.Names()
	}
	workers := make([]agents.WorkerHealth, len(names))
	for i, name := range names {
		_, running := live[name]
		workers[i] = agents.WorkerHealth{Name: name, Running: running}
	}
	return agents.NewHealthReport(workers)
}

// Watch runs Check every interval until ctx ends or StopWatching is called.
// An unhealthy result is logged as a warning naming the missing workers.
// Arming a new watch stops the previous one first.
func (m *Monitor) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("monitor: watch interval must be positive, got %s", interval)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()

	loopCtx, cancel := context.WithCancel(ctx)
	ticker := m.clock.NewTicker(interval)
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				m.tick(loopCtx)
			}
		}
	}()
	m.log.Info(fmt.Sprintf("Started watching with interval %s", interval))
	return nil
}

func (m *Monitor) tick(ctx context.Context) {
	report := m.Check(ctx)
	if ctx.Err() != nil {
		return
	}
	if !report.Healthy {
		unhealthy := report.Unhealthy()
		m.log.Warn(fmt.Sprintf("Unhealthy agents detected: %d", report.UnhealthyCount),
			"agents", strings.Join(unhealthy, ","))
	}
	if m.onReport != nil {
		m.onReport(report)
	}
}

// StopWatching cancels the active watch and waits for its loop to exit.
// It does nothing when no watch is running.
func (m *Monitor) StopWatching() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *Monitor) stopLocked() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.cancel = nil
	m.done = nil
	m.log.Info("Stopped watching")
}

// Watching reports whether a watch loop is active. A loop whose parent
// context ended reads as stopped.
func (m *Monitor) Watching() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done == nil {
		return false
	}
	select {
	case <-m.done:
		return false
	default:
		return true
	}
}

// CaptureLog returns the last lines of a worker's pane, or "" when the pane
// cannot be read.
func (m *Monitor) CaptureLog(ctx context.Context, name string, lines int) string {
	if lines <= 0 {
		lines = DefaultCaptureLines
	}
	out, err := m.sessions.CapturePane(ctx, name, tmux.LastLines(lines))
	if err != nil {
		return ""
	}
	return out
}

// Sessions lists every live tmux session, including ones outside the roster.
func (m *Monitor) Sessions(ctx context.Context) []tmux.Session {
	return m.sessions.ListSessions(ctx)
}
