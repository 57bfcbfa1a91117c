// internal/config/config.go
//
// This package handles configuration and the .layers directory structure.
// Every project supervised by layers gets a .layers/ folder in its root.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/kingrea/layers/internal/errs"
)

const (
	// LayersDir is the name of the directory we create in each project
	LayersDir = ".layers"

	// EnvConfigPath overrides the settings file location.
	EnvConfigPath = "LAYERS_CONFIG"

	defaultRosterPath   = ".layers/config/agents.json"
	defaultEntryCommand = "claude"
	minLiveInterval     = time.Second
)

const defaultProjectConfigYAML = `# layers project configuration
version: 1

# Worker hierarchy (JSON, comments allowed). Relative to the project root.
roster: .layers/config/agents.json

# Program launched inside every worker session unless the roster overrides it.
entry_command: claude

logging:
  level: info

# Fixed pauses that absorb process startup latency.
timing:
  session_settle: 500ms
  stage_settle: 1s
  recovery_settle: 500ms
  recovery_verify: 2s

recovery:
  max_retries: 3

startup:
  # 0 starts every worker of a stage at once.
  max_parallel: 0

monitor:
  interval: 5s

live:
  interval: 3s
`

// LoggingConfig selects the minimum system log level.
type LoggingConfig struct {
	Level string `yaml:"level" toml:"level"`
}

// TimingConfig holds raw duration strings for the settle intervals.
type TimingConfig struct {
	SessionSettle  string `yaml:"session_settle" toml:"session_settle"`
	StageSettle    string `yaml:"stage_settle" toml:"stage_settle"`
	RecoverySettle string `yaml:"recovery_settle" toml:"recovery_settle"`
	RecoveryVerify string `yaml:"recovery_verify" toml:"recovery_verify"`
}

// RecoveryConfig bounds the restart loop.
type RecoveryConfig struct {
	MaxRetries int `yaml:"max_retries" toml:"max_retries"`
}

// StartupConfig limits concurrent starts within a stage.
type StartupConfig struct {
	MaxParallel int `yaml:"max_parallel" toml:"max_parallel"`
}

// IntervalConfig holds a raw polling interval.
type IntervalConfig struct {
	Interval string `yaml:"interval" toml:"interval"`
}

// ProjectConfig models .layers/config.yaml (or config.toml).
type ProjectConfig struct {
	Version      int            `yaml:"version" toml:"version"`
	Roster       string         `yaml:"roster" toml:"roster"`
	EntryCommand string         `yaml:"entry_command" toml:"entry_command"`
	Logging      LoggingConfig  `yaml:"logging" toml:"logging"`
	Timing       TimingConfig   `yaml:"timing" toml:"timing"`
	Recovery     RecoveryConfig `yaml:"recovery" toml:"recovery"`
	Startup      StartupConfig  `yaml:"startup" toml:"startup"`
	Monitor      IntervalConfig `yaml:"monitor" toml:"monitor"`
	Live         IntervalConfig `yaml:"live" toml:"live"`
}

// Timing is the parsed form of TimingConfig.
type Timing struct {
	SessionSettle  time.Duration
	StageSettle    time.Duration
	RecoverySettle time.Duration
	RecoveryVerify time.Duration
}

// Config holds the runtime configuration for layers.
type Config struct {
	// ProjectDir is the directory where the user ran `layers` from
	ProjectDir string

	// LayersProjectDir is ProjectDir/.layers
	LayersProjectDir string

	// Source is the settings file that was loaded, empty when defaults apply.
	Source string

	Project ProjectConfig

	timing          Timing
	monitorInterval time.Duration
	liveInterval    time.Duration
}

// InitLayersDir creates the .layers directory structure in the given project
// directory and writes a default config.yaml when none exists.
//
// Structure created:
// .layers/
// ├── config/    <- agents.json roster
// ├── prompts/   <- per-worker system prompt files
// └── logs/      <- system.log and messages.log
func InitLayersDir(projectDir string) error {
	layersDir := filepath.Join(projectDir, LayersDir)
	dirs := []string{
		filepath.Join(layersDir, "config"),
		filepath.Join(layersDir, "prompts"),
		filepath.Join(layersDir, "logs"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if hasFile(filepath.Join(layersDir, "config.toml")) {
		return nil
	}
	return ensureProjectConfig(filepath.Join(layersDir, "config.yaml"))
}

// NewConfig loads project settings, falling back to defaults when no
// settings file exists.
func NewConfig(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir:       projectDir,
		LayersProjectDir: filepath.Join(projectDir, LayersDir),
		Project:          defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.LayersProjectDir, "logs")
}

// PromptsDir returns the directory holding worker prompt files
func (c *Config) PromptsDir() string {
	return filepath.Join(c.LayersProjectDir, "prompts")
}

// RosterPath returns the absolute path of the roster file
func (c *Config) RosterPath() string {
	return resolvePath(c.ProjectDir, c.Project.Roster)
}

// EntryCommand returns the default worker launch program.
func (c *Config) EntryCommand() string {
	return c.Project.EntryCommand
}

// Timing returns the parsed settle intervals.
func (c *Config) Timing() Timing {
	return c.timing
}

// MaxRetries returns the recovery attempt bound.
func (c *Config) MaxRetries() int {
	return c.Project.Recovery.MaxRetries
}

// MaxParallel returns the per-stage start concurrency limit (0 = unlimited).
func (c *Config) MaxParallel() int {
	return c.Project.Startup.MaxParallel
}

// MonitorInterval returns the health watch period.
func (c *Config) MonitorInterval() time.Duration {
	return c.monitorInterval
}

// LiveInterval returns the dashboard refresh period.
func (c *Config) LiveInterval() time.Duration {
	return c.liveInterval
}

// LogLevel returns the configured log level name.
func (c *Config) LogLevel() string {
	return c.Project.Logging.Level
}

// settingsPath picks the file to load: $LAYERS_CONFIG, then config.toml,
// then config.yaml.
func (c *Config) settingsPath() string {
	if override := strings.TrimSpace(os.Getenv(EnvConfigPath)); override != "" {
		return resolvePath(c.ProjectDir, override)
	}
	tomlPath := filepath.Join(c.LayersProjectDir, "config.toml")
	if hasFile(tomlPath) {
		return tomlPath
	}
	return filepath.Join(c.LayersProjectDir, "config.yaml")
}

func (c *Config) loadProjectConfig() error {
	path := c.settingsPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return c.finish()
		}
		return errs.Config(path, fmt.Errorf("read: %w", err))
	}

	var parsed ProjectConfig
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), &parsed); err != nil {
			return errs.Config(path, fmt.Errorf("parse: %w", err))
		}
	} else {
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return errs.Config(path, fmt.Errorf("parse: %w", err))
		}
	}
	parsed.applyDefaults()
	c.Project = parsed
	c.Source = path
	if err := c.finish(); err != nil {
		return errs.Config(path, err)
	}
	return nil
}

func (c *Config) finish() error {
	c.Project.applyDefaults()
	if err := c.Project.validate(); err != nil {
		return err
	}
	t := c.Project.Timing
	var err error
	parse := func(field, raw string) time.Duration {
		if err != nil {
			return 0
		}
		var d time.Duration
		d, err = parseDuration(field, raw)
		return d
	}
	c.timing = Timing{
		SessionSettle:  parse("timing.session_settle", t.SessionSettle),
		StageSettle:    parse("timing.stage_settle", t.StageSettle),
		RecoverySettle: parse("timing.recovery_settle", t.RecoverySettle),
		RecoveryVerify: parse("timing.recovery_verify", t.RecoveryVerify),
	}
	c.monitorInterval = parse("monitor.interval", c.Project.Monitor.Interval)
	c.liveInterval = parse("live.interval", c.Project.Live.Interval)
	if err != nil {
		return err
	}
	if c.monitorInterval <= 0 {
		return fmt.Errorf("monitor.interval must be positive")
	}
	if c.liveInterval < minLiveInterval {
		return fmt.Errorf("live.interval must be at least %s", minLiveInterval)
	}
	return nil
}

func defaultProjectConfig() ProjectConfig {
	pc := ProjectConfig{}
	pc.applyDefaults()
	return pc
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	pc.Roster = strings.TrimSpace(pc.Roster)
	if pc.Roster == "" {
		pc.Roster = defaultRosterPath
	}
	pc.EntryCommand = strings.TrimSpace(pc.EntryCommand)
	if pc.EntryCommand == "" {
		pc.EntryCommand = defaultEntryCommand
	}
	if strings.TrimSpace(pc.Logging.Level) == "" {
		pc.Logging.Level = "info"
	}
	setDefault(&pc.Timing.SessionSettle, "500ms")
	setDefault(&pc.Timing.StageSettle, "1s")
	setDefault(&pc.Timing.RecoverySettle, "500ms")
	setDefault(&pc.Timing.RecoveryVerify, "2s")
	setDefault(&pc.Monitor.Interval, "5s")
	setDefault(&pc.Live.Interval, "3s")
	if pc.Recovery.MaxRetries == 0 {
		pc.Recovery.MaxRetries = 3
	}
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	switch strings.ToLower(strings.TrimSpace(pc.Logging.Level)) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	if pc.Recovery.MaxRetries < 1 {
		return fmt.Errorf("recovery.max_retries must be >= 1")
	}
	if pc.Startup.MaxParallel < 0 {
		return fmt.Errorf("startup.max_parallel must be >= 0")
	}
	return nil
}

func setDefault(field *string, value string) {
	if strings.TrimSpace(*field) == "" {
		*field = value
	}
}

func parseDuration(field, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", field)
	}
	return d, nil
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func hasFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0o644)
}
