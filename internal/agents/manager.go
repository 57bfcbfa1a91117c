// Package agents supervises the worker hierarchy: staged startup, shutdown,
// status sampling and bounded-retry recovery. Liveness is session presence
// only; a session whose hosted process has stalled still reads as running.
//
// Recover and a concurrent StopAgent on the same worker are not serialised.
// A stop that lands between the restart and the recheck makes that attempt
// fail and the loop starts the worker again.
package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kingrea/layers/internal/clock"
	"github.com/kingrea/layers/internal/errs"
	"github.com/kingrea/layers/internal/logging"
	"github.com/kingrea/layers/internal/roster"
	"github.com/kingrea/layers/internal/tmux"
)

// DefaultMaxRetries bounds Recover when the caller passes zero.
const DefaultMaxRetries = 3

var errNoRoster = errors.New("no roster loaded")

// Timing holds the fixed settle pauses.
type Timing struct {
	// SessionSettle separates session creation from the launch keystrokes.
	SessionSettle time.Duration
	// StageSettle separates startup stages.
	StageSettle time.Duration
	// RecoverySettle follows a forced kill during recovery.
	RecoverySettle time.Duration
	// RecoveryVerify precedes the post-restart presence check.
	RecoveryVerify time.Duration
}

// DefaultTiming returns the stock settle pauses.
func DefaultTiming() Timing {
	return Timing{
		SessionSettle:  500 * time.Millisecond,
		StageSettle:    time.Second,
		RecoverySettle: 500 * time.Millisecond,
		RecoveryVerify: 2 * time.Second,
	}
}

// Options configures a Manager.
type Options struct {
	ProjectDir   string
	LogsDir      string
	EntryCommand string
	// Timing overrides the settle pauses; nil means DefaultTiming. Zero
	// durations are honored and skip the pause.
	Timing *Timing
	// MaxParallel caps concurrent starts within a stage; zero is unlimited.
	MaxParallel int
	Clock       clock.Clock
	Logger      *slog.Logger
}

// Manager is the process supervisor.
type Manager struct {
	sessions     Sessions
	roster       atomic.Pointer[roster.Roster]
	projectDir   string
	logsDir      string
	entryCommand string
	timing       Timing
	maxParallel  int
	clock        clock.Clock
	log          *slog.Logger
}

// NewManager builds a Manager. The roster is installed later by LoadRoster
// or SetRoster.
func NewManager(sessions Sessions, opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.EntryCommand == "" {
		opts.EntryCommand = "claude"
	}
	timing := DefaultTiming()
	if opts.Timing != nil {
		timing = *opts.Timing
	}
	return &Manager{
		sessions:     sessions,
		projectDir:   opts.ProjectDir,
		logsDir:      opts.LogsDir,
		entryCommand: opts.EntryCommand,
		timing:       timing,
		maxParallel:  opts.MaxParallel,
		clock:        opts.Clock,
		log:          logging.For(opts.Logger, "AgentManager"),
	}
}

// LoadRoster reads and installs the roster at path.
func (m *Manager) LoadRoster(path string) error {
	r, err := roster.Load(path)
	if err != nil {
		return err
	}
	m.SetRoster(r)
	m.log.Info(fmt.Sprintf("Loaded %d agents from config", r.Len()), "path", path)
	return nil
}

// SetRoster installs an already validated roster.
func (m *Manager) SetRoster(r *roster.Roster) {
	m.roster.Store(r)
}

// Roster returns the installed roster, or nil before loading.
func (m *Manager) Roster() *roster.Roster {
	return m.roster.Load()
}

func (m *Manager) requireRoster() (*roster.Roster, error) {
	r := m.roster.Load()
	if r == nil {
		return nil, errs.Config("roster", errNoRoster)
	}
	return r, nil
}

// StartAll starts the roster stage by stage, root first. Every start within
// a stage runs concurrently and the whole stage completes before the next
// begins. A failed stage aborts the rollout once its siblings finish.
func (m *Manager) StartAll(ctx context.Context) error {
	r, err := m.requireRoster()
	if err != nil {
		return err
	}
	m.log.Info("Starting all agents...")
	m.ensureLogsDir()

	stages := r.Stages()
	for i, stage := range stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		var g errgroup.Group
		if m.maxParallel > 0 {
			g.SetLimit(m.maxParallel)
		}
		for _, name := range stage {
			name := name
			g.Go(func() error {
				return m.StartAgent(ctx, name)
			})
		}
		if err := g.Wait(); err != nil {
			m.log.Error(fmt.Sprintf("Stage %d failed", i+1), "error", err)
			return err
		}
		if i < len(stages)-1 {
			if err := clock.Sleep(ctx, m.clock, m.timing.StageSettle); err != nil {
				return err
			}
		}
	}
	m.log.Info("All agents started")
	return nil
}

func (m *Manager) ensureLogsDir() {
	if m.logsDir == "" {
		return
	}
	if _, err := os.Stat(m.logsDir); err == nil {
		return
	}
	if err := os.MkdirAll(m.logsDir, 0o755); err != nil {
		m.log.Error("Failed to create logs directory: "+m.logsDir, "error", err)
		return
	}
	m.log.Info("Created logs directory: " + m.logsDir)
}

// StartAgent creates the worker's session and types its launch command.
// An existing session is left alone.
func (m *Manager) StartAgent(ctx context.Context, name string) error {
	r, err := m.requireRoster()
	if err != nil {
		return err
	}
	worker, ok := r.Lookup(name)
	if !ok {
		return errs.NotFound(name)
	}
	if m.sessions.HasSession(ctx, name) {
		m.log.Warn("Session already exists: " + name)
		return nil
	}
	if err := m.sessions.NewSession(ctx, name, tmux.SessionOptions{WorkingDir: m.projectDir}); err != nil {
		return err
	}
	if err := clock.Sleep(ctx, m.clock, m.timing.SessionSettle); err != nil {
		return err
	}
	launch := LaunchCommand(m.projectDir, m.entryCommand, worker)
	if err := m.sessions.SendKeys(ctx, name, launch, true); err != nil {
		return err
	}
	m.log.Info("Started agent: " + name)
	return nil
}

// StopAgent kills the worker's session if present.
func (m *Manager) StopAgent(ctx context.Context, name string) error {
	if !m.sessions.HasSession(ctx, name) {
		return nil
	}
	if err := m.sessions.KillSession(ctx, name); err != nil {
		return err
	}
	m.log.Info("Stopped agent: " + name)
	return nil
}

// StopAll stops every roster member in declaration order. A failure is
// logged and the remaining members are still attempted; the failures are
// returned joined.
func (m *Manager) StopAll(ctx context.Context) error {
	r, err := m.requireRoster()
	if err != nil {
		return err
	}
	m.log.Info("Stopping all agents...")
	var failures []error
	for _, name := range r.Names() {
		if err := m.StopAgent(ctx, name); err != nil {
			m.log.Error("Failed to stop agent: "+name, "error", err)
			failures = append(failures, err)
		}
	}
	m.log.Info("All agents stopped")
	return errors.Join(failures...)
}

// Status samples session presence for every roster member.
func (m *Manager) Status(ctx context.Context) ([]WorkerStatus, error) {
	r, err := m.requireRoster()
	if err != nil {
		return nil, err
	}
	workers := r.Workers()
	statuses := make([]WorkerStatus, 0, len(workers))
	for _, w := range workers {
		statuses = append(statuses, WorkerStatus{
			Name:         w.Name,
			Role:         w.Role,
			Running:      m.sessions.HasSession(ctx, w.Name),
			Superior:     w.Superior,
			Subordinates: w.Subordinates,
		})
	}
	return statuses, nil
}

// HealthCheck derives a HealthReport from Status.
func (m *Manager) HealthCheck(ctx context.Context) (HealthReport, error) {
	statuses, err := m.Status(ctx)
	if err != nil {
		return HealthReport{}, err
	}
	workers := make([]WorkerHealth, len(statuses))
	for i, s := range statuses {
		workers[i] = WorkerHealth{Name: s.Name, Running: s.Running}
	}
	return NewHealthReport(workers), nil
}

// Recover restarts name until its session is present again, giving up after
// maxRetries attempts. Each attempt kills any leftover session, starts the
// worker, waits for it to settle and rechecks presence.
func (m *Manager) Recover(ctx context.Context, name string, maxRetries int) error {
	r, err := m.requireRoster()
	if err != nil {
		return err
	}
	if _, ok := r.Lookup(name); !ok {
		return errs.NotFound(name)
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	m.log.Info("Attempting to recover: " + name)

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err := m.recoverOnce(ctx, name)
		if err == nil {
			m.log.Info("Recovered: "+name, "attempt", attempt)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		lastErr = err
		m.log.Warn(fmt.Sprintf("Recovery attempt %d failed for %s", attempt, name), "error", err)
	}
	return errs.Recovery(name, maxRetries, lastErr)
}

var errStillAbsent = errors.New("session absent after restart")

func (m *Manager) recoverOnce(ctx context.Context, name string) error {
	if m.sessions.HasSession(ctx, name) {
		if err := m.sessions.KillSession(ctx, name); err != nil {
			return err
		}
		if err := clock.Sleep(ctx, m.clock, m.timing.RecoverySettle); err != nil {
			return err
		}
	}
	if err := m.StartAgent(ctx, name); err != nil {
		return err
	}
	if err := clock.Sleep(ctx, m.clock, m.timing.RecoveryVerify); err != nil {
		return err
	}
	if !m.sessions.HasSession(ctx, name) {
		return errStillAbsent
	}
	return nil
}
