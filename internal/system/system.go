// Package system assembles the supervisor, broker and monitor for one
// project. A System is built once per command invocation and handed to the
// command handler; nothing is held in package state.
package system

import (
	"io"
	"path/filepath"

	"github.com/kingrea/layers/internal/agents"
	"github.com/kingrea/layers/internal/clock"
	"github.com/kingrea/layers/internal/config"
	"github.com/kingrea/layers/internal/logbook"
	"github.com/kingrea/layers/internal/logging"
	"github.com/kingrea/layers/internal/messaging"
	"github.com/kingrea/layers/internal/monitor"
	"github.com/kingrea/layers/internal/roster"
	"github.com/kingrea/layers/internal/tmux"
)

// Options overrides the collaborators New would otherwise create.
type Options struct {
	// Stdout and Stderr receive the log console mirror.
	Stdout io.Writer
	Stderr io.Writer
	Runner tmux.Runner
	Clock  clock.Clock
}

// System is the per-invocation context shared by every command.
type System struct {
	Config  *config.Config
	Logger  *logging.Logger
	Tmux    *tmux.Controller
	Agents  *agents.Manager
	Broker  *messaging.Broker
	Logbook *logbook.Logbook
	Monitor *monitor.Monitor

	clock clock.Clock
}

// New loads configuration for projectDir and wires every component. The
// roster is not read until LoadRoster.
func New(projectDir string, opts Options) (*System, error) {
	cfg, err := config.NewConfig(projectDir)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogsDir(), logging.Options{
		Level:  logging.ParseLevel(cfg.LogLevel()),
		Stdout: opts.Stdout,
		Stderr: opts.Stderr,
	})
	if err != nil {
		return nil, err
	}
	book, err := logbook.New(filepath.Join(cfg.LogsDir(), logbook.MessagesFile))
	if err != nil {
		logger.Close()
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}

	ctrl := tmux.NewController(opts.Runner)
	timing := cfg.Timing()
	s := &System{
		Config:  cfg,
		Logger:  logger,
		Tmux:    ctrl,
		Logbook: book,
		clock:   opts.Clock,
	}
	s.Agents = agents.NewManager(ctrl, agents.Options{
		ProjectDir:   cfg.ProjectDir,
		LogsDir:      cfg.LogsDir(),
		EntryCommand: cfg.EntryCommand(),
		Timing: &agents.Timing{
			SessionSettle:  timing.SessionSettle,
			StageSettle:    timing.StageSettle,
			RecoverySettle: timing.RecoverySettle,
			RecoveryVerify: timing.RecoveryVerify,
		},
		MaxParallel: cfg.MaxParallel(),
		Clock:       opts.Clock,
		Logger:      logger.Logger,
	})
	s.Broker = messaging.NewBroker(messaging.NewTmuxTransport(ctrl), messaging.Options{
		Logbook: book,
		Clock:   opts.Clock,
		Logger:  logger.Logger,
	})
	s.Monitor = s.NewMonitor(nil)
	return s, nil
}

// LoadRoster reads the configured roster into the supervisor and points the
// monitor at it.
func (s *System) LoadRoster() (*roster.Roster, error) {
	if r := s.Agents.Roster(); r != nil {
		return r, nil
	}
	if err := s.Agents.LoadRoster(s.Config.RosterPath()); err != nil {
		return nil, err
	}
	s.Monitor = s.NewMonitor(nil)
	return s.Agents.Roster(), nil
}

// NewMonitor builds a monitor over the loaded roster (if any) that calls
// onReport on every watch tick.
func (s *System) NewMonitor(onReport func(agents.HealthReport)) *monitor.Monitor {
	return monitor.New(s.Tmux, s.Agents.Roster(), monitor.Options{
		Clock:    s.clock,
		Logger:   s.Logger.Logger,
		OnReport: onReport,
	})
}

// Close stops background work and releases the system log.
func (s *System) Close() error {
	if s.Monitor != nil {
		s.Monitor.StopWatching()
	}
	return s.Logger.Close()
}
