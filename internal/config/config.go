package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"go.uber.org/zap/zapcore"

	"github.com/dshills/cargorun/internal/config/loader"
	"github.com/dshills/cargorun/internal/integration/task"
	"github.com/dshills/cargorun/internal/lsp"
)

const (
	// EnvPrefix starts every environment variable read by Load.
	EnvPrefix = "CARGORUN_"

	// ProjectFile is the per-workspace configuration file name.
	ProjectFile = ".cargorun.toml"
)

// Sections are the top-level configuration tables.
var Sections = []string{"server", "task", "debug", "hooks", "logging", "watch", "history"}

// Config is the complete cargorun configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Task    TaskConfig    `mapstructure:"task"`
	Debug   DebugConfig   `mapstructure:"debug"`
	Hooks   HooksConfig   `mapstructure:"hooks"`
	Logging LoggingConfig `mapstructure:"logging"`
	Watch   WatchConfig   `mapstructure:"watch"`
	History HistoryConfig `mapstructure:"history"`

	// Files lists the configuration files that were read, lowest precedence
	// first.
	Files []string `mapstructure:"-"`
}

// ServerConfig describes the rust-analyzer process.
type ServerConfig struct {
	Command string            `mapstructure:"command"`
	Args    []string          `mapstructure:"args"`
	Env     map[string]string `mapstructure:"env"`

	// Timeout bounds the initialize and shutdown handshakes.
	Timeout time.Duration `mapstructure:"timeout"`

	// WaitQuiescent delays the runnables request until the server reports it
	// has finished loading the workspace.
	WaitQuiescent bool `mapstructure:"wait_quiescent"`

	// Settings answer the server's workspace/configuration requests.
	Settings map[string]any `mapstructure:"settings"`
}

// TaskConfig controls how cargo tasks are built and run.
type TaskConfig struct {
	// CargoRunner wraps cargo, e.g. "cross".
	CargoRunner string `mapstructure:"cargo_runner"`

	// CargoPath pins the cargo executable.
	CargoPath string `mapstructure:"cargo_path"`

	Reveal          string   `mapstructure:"reveal"`
	ProblemMatchers []string `mapstructure:"problem_matchers"`

	// KeepLines is how many trailing output lines are kept per execution.
	KeepLines int `mapstructure:"keep_lines"`
}

// DebugConfig controls launch configuration output.
type DebugConfig struct {
	// LaunchFile defaults to <workspace>/.vscode/launch.json.
	LaunchFile string `mapstructure:"launch_file"`
	Overwrite  bool   `mapstructure:"overwrite"`
}

// HooksConfig names optional user scripts.
type HooksConfig struct {
	// Filter is a Lua file defining filter(runnable).
	Filter  string        `mapstructure:"filter"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`

	// File enables a rotating log file in addition to stderr.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// WatchConfig configures --watch.
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
	Ignore   []string      `mapstructure:"ignore"`
	Files    []string      `mapstructure:"files"`
}

// HistoryConfig controls remembering the last picked runnable.
type HistoryConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Dir defaults to the user cache directory.
	Dir string `mapstructure:"dir"`
}

// Default returns the built-in configuration.
func Default() *Config {
	server := lsp.DefaultRustAnalyzerConfig()
	return &Config{
		Server: ServerConfig{
			Command:       server.Command,
			Timeout:       server.Timeout,
			WaitQuiescent: true,
		},
		Task: TaskConfig{
			Reveal:          string(task.RevealAlways),
			ProblemMatchers: []string{task.MatcherRustc, task.MatcherRustPanic},
			KeepLines:       1000,
		},
		Hooks: HooksConfig{
			Timeout: time.Second,
		},
		Logging: LoggingConfig{
			Level:      "warn",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Watch: WatchConfig{
			Debounce: 300 * time.Millisecond,
			Ignore:   []string{"target/", ".git/"},
			Files:    []string{"*.rs", "Cargo.toml", "Cargo.lock", "build.rs"},
		},
		History: HistoryConfig{
			Enabled: true,
		},
	}
}

// Option configures Load.
type Option func(*options)

type options struct {
	file          string
	workspace     string
	userConfigDir func() (string, error)
	environ       func() []string
	overrides     map[string]any
	fs            loader.FileSystem
}

// WithFile loads path instead of the user configuration file. The file must
// exist.
func WithFile(path string) Option {
	return func(o *options) { o.file = path }
}

// WithWorkspace enables the workspace's .cargorun.toml.
func WithWorkspace(dir string) Option {
	return func(o *options) { o.workspace = dir }
}

// WithUserConfigDir replaces os.UserConfigDir.
func WithUserConfigDir(fn func() (string, error)) Option {
	return func(o *options) { o.userConfigDir = fn }
}

// WithEnviron replaces os.Environ.
func WithEnviron(fn func() []string) Option {
	return func(o *options) { o.environ = fn }
}

// WithOverride sets the dotted path to value above every other source. CLI
// flags use it.
func WithOverride(path string, value any) Option {
	return func(o *options) {
		if o.overrides == nil {
			o.overrides = make(map[string]any)
		}
		loader.SetByPath(o.overrides, path, value)
	}
}

// WithFS replaces the file system configuration files are read from.
func WithFS(fsys loader.FileSystem) Option {
	return func(o *options) { o.fs = fsys }
}

// UserFile returns the default user configuration file path.
func UserFile(userConfigDir func() (string, error)) (string, error) {
	if userConfigDir == nil {
		userConfigDir = os.UserConfigDir
	}
	dir, err := userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "cargorun", "config.toml"), nil
}

// Load builds the configuration from, in increasing precedence: defaults,
// the user file (or the WithFile file), the workspace file, CARGORUN_*
// variables and overrides.
func Load(opts ...Option) (*Config, error) {
	o := options{
		userConfigDir: os.UserConfigDir,
		environ:       os.Environ,
		fs:            loader.DefaultFS(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	var files []*loader.TOMLLoader
	switch {
	case o.file != "":
		files = append(files, loader.NewRequiredTOMLLoader(o.file).WithFS(o.fs))
	default:
		// No user config directory simply means no user file.
		if path, err := UserFile(o.userConfigDir); err == nil {
			files = append(files, loader.NewTOMLLoader(path).WithFS(o.fs))
		}
	}
	if o.workspace != "" {
		files = append(files, loader.NewTOMLLoader(filepath.Join(o.workspace, ProjectFile)).WithFS(o.fs))
	}

	cfg := Default()
	merged := make(map[string]any)
	for _, l := range files {
		data, err := l.Load()
		if err != nil {
			return nil, err
		}
		if data == nil {
			continue
		}
		cfg.Files = append(cfg.Files, l.Path())
		loader.DeepMerge(merged, data)
	}

	env := loader.NewEnvLoader(EnvPrefix, Sections...).WithEnviron(o.environ)
	env.AddMapping(EnvPrefix+"LOG_LEVEL", "logging.level")
	env.AddMapping(EnvPrefix+"LOG_FILE", "logging.file")
	env.AddMapping(EnvPrefix+"RUST_ANALYZER", "server.command")
	envData, err := env.Load()
	if err != nil {
		return nil, err
	}
	loader.DeepMerge(merged, envData)
	loader.DeepMerge(merged, o.overrides)

	if err := Decode(merged, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode decodes a merged configuration map onto cfg. Keys absent from data
// keep cfg's values; unknown keys are an error.
func Decode(data map[string]any, cfg *Config) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		ZeroFields:       true,
		ErrorUnused:      true,
		Result:           cfg,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(data); err != nil {
		return fmt.Errorf("decoding configuration: %w", err)
	}
	return nil
}

var (
	formats = []string{"console", "json"}
	reveals = []string{"always", "silent", "never"}
)

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var errs ValidationErrors
	fail := func(path, msg string, value any) {
		errs = append(errs, &ValidationError{Path: path, Message: msg, Value: value})
	}

	if c.Server.Command == "" {
		fail("server.command", "must not be empty", c.Server.Command)
	}
	if c.Server.Timeout < 0 {
		fail("server.timeout", "must not be negative", c.Server.Timeout)
	}
	if !slices.Contains(reveals, c.Task.Reveal) {
		fail("task.reveal", "must be one of always, silent, never", c.Task.Reveal)
	}
	if c.Task.KeepLines < 0 {
		fail("task.keep_lines", "must not be negative", c.Task.KeepLines)
	}
	known := task.NewProblemMatcher().ListMatchers()
	for _, name := range c.Task.ProblemMatchers {
		if !slices.Contains(known, name) {
			fail("task.problem_matchers", "unknown problem matcher", name)
		}
	}
	if c.Hooks.Timeout < 0 {
		fail("hooks.timeout", "must not be negative", c.Hooks.Timeout)
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		fail("logging.level", "unknown level", c.Logging.Level)
	}
	if !slices.Contains(formats, c.Logging.Format) {
		fail("logging.format", "must be console or json", c.Logging.Format)
	}
	if c.Watch.Debounce < 0 {
		fail("watch.debounce", "must not be negative", c.Watch.Debounce)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// LaunchFile returns the launch.json path for workspace.
func (c *Config) LaunchFile(workspace string) string {
	if c.Debug.LaunchFile == "" {
		return filepath.Join(workspace, ".vscode", "launch.json")
	}
	if filepath.IsAbs(c.Debug.LaunchFile) {
		return c.Debug.LaunchFile
	}
	return filepath.Join(workspace, c.Debug.LaunchFile)
}
