package task

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"

	"go.uber.org/zap"
)

// RunnerError reports a cargo runner override that could not be used.
type RunnerError struct {
	Runner string
	Err    error
}

// Error implements the error interface.
func (e *RunnerError) Error() string {
	return fmt.Sprintf("cargo runner %q failed: %v", e.Runner, e.Err)
}

// Unwrap returns the underlying error.
func (e *RunnerError) Unwrap() error {
	return e.Err
}

// BuilderConfig configures cargo task construction.
type BuilderConfig struct {
	// CargoPath pins the cargo executable. Empty means resolve it.
	CargoPath string

	// ProblemMatchers are attached to every task (default: $rustc, $rust-panic).
	ProblemMatchers []string

	// Reveal is the default output reveal behaviour (default: always).
	Reveal RevealKind
}

// Builder materializes cargo tasks from definitions.
type Builder struct {
	config BuilderConfig
	logger *zap.Logger

	lookPath func(string) (string, error)
	getenv   func(string) string
	homeDir  func() (string, error)
	stat     func(string) (os.FileInfo, error)
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithBuilderLogger sets the builder's logger.
func WithBuilderLogger(logger *zap.Logger) BuilderOption {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithLookPath replaces executable lookup.
func WithLookPath(fn func(string) (string, error)) BuilderOption {
	return func(b *Builder) { b.lookPath = fn }
}

// WithGetenv replaces environment lookup.
func WithGetenv(fn func(string) string) BuilderOption {
	return func(b *Builder) { b.getenv = fn }
}

// WithHomeDir replaces home directory lookup.
func WithHomeDir(fn func() (string, error)) BuilderOption {
	return func(b *Builder) { b.homeDir = fn }
}

// NewBuilder creates a Builder.
func NewBuilder(config BuilderConfig, opts ...BuilderOption) *Builder {
	if len(config.ProblemMatchers) == 0 {
		config.ProblemMatchers = []string{MatcherRustc, MatcherRustPanic}
	}
	if config.Reveal == "" {
		config.Reveal = RevealAlways
	}

	b := &Builder{
		config:   config,
		logger:   zap.NewNop(),
		lookPath: exec.LookPath,
		getenv:   os.Getenv,
		homeDir:  os.UserHomeDir,
		stat:     os.Stat,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// CargoPath returns the cargo executable: the configured path, then $CARGO,
// then cargo on PATH, then ~/.cargo/bin/cargo. When none exists the bare
// name is returned and the spawn reports the failure.
func (b *Builder) CargoPath() string {
	if b.config.CargoPath != "" {
		return b.config.CargoPath
	}
	if p := b.getenv("CARGO"); p != "" {
		return p
	}

	name := "cargo"
	if runtime.GOOS == "windows" {
		name = "cargo.exe"
	}
	if p, err := b.lookPath(name); err == nil {
		return p
	}
	if home, err := b.homeDir(); err == nil {
		p := filepath.Join(home, ".cargo", "bin", name)
		if info, err := b.stat(p); err == nil && !info.IsDir() {
			return p
		}
	}

	b.logger.Debug("cargo not found, relying on PATH at spawn time")
	return name
}

// BuildCargoTask builds the task for def. args is the full cargo argument
// list (def.Command followed by def.Args). A non-empty runner replaces the
// cargo executable; if it cannot be resolved a *RunnerError is returned.
func (b *Builder) BuildCargoTask(scope string, def Definition, name string, args []string, runner string, clearOutput bool) (*Task, error) {
	command := ""
	if runner != "" {
		path, err := b.lookPath(runner)
		if err != nil {
			return nil, &RunnerError{Runner: runner, Err: err}
		}
		command = path
		b.logger.Debug("using cargo runner", zap.String("runner", path))
	} else {
		command = b.CargoPath()
	}

	t := &Task{
		Name:       name,
		Scope:      scope,
		Source:     SourceRust,
		Definition: def,
		Execution: ProcessExecution{
			Command: command,
			Args:    slices.Clone(args),
			Cwd:     def.Cwd,
			Env:     def.Env,
		},
		ProblemMatchers: slices.Clone(b.config.ProblemMatchers),
		Presentation: Presentation{
			Clear:  clearOutput,
			Reveal: b.config.Reveal,
		},
	}
	if t.Execution.Cwd == "" {
		t.Execution.Cwd = scope
	}

	b.logger.Debug("built cargo task",
		zap.String("name", name),
		zap.String("command", t.Execution.CommandLine()),
		zap.String("cwd", t.Execution.Cwd))
	return t, nil
}
