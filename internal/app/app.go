// Package app wires cargorun together: it loads configuration, starts
// rust-analyzer, lets the user pick a runnable and then runs it as a cargo
// task or saves it as a launch configuration.
package app

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/dshills/cargorun/internal/config"
	"github.com/dshills/cargorun/internal/input/palette"
	"github.com/dshills/cargorun/internal/logging"
	"github.com/dshills/cargorun/internal/lsp"
	"github.com/dshills/cargorun/internal/project/workspace"
	"github.com/dshills/cargorun/internal/runnable"
)

// Options configures the application.
type Options struct {
	// ConfigPath is the path to the configuration file.
	ConfigPath string

	// Overrides are dotted configuration paths set from flags.
	Overrides map[string]any

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Environ is the environment tasks inherit (default: os.Environ()).
	Environ []string
}

// Target is the file and cursor runnables are requested for.
type Target struct {
	File string

	// Line and Column are one-based. A zero Line asks for every runnable in
	// the file.
	Line   int
	Column int
}

// SourceFactory starts a runnable source for a session. The returned close
// function releases it.
type SourceFactory func(ctx context.Context, s *Session) (runnable.Source, func(context.Context) error, error)

// Application runs cargorun commands.
type Application struct {
	opts      Options
	newSource SourceFactory
	picker    palette.Picker
}

// Option configures an Application.
type Option func(*Application)

// WithSourceFactory replaces the rust-analyzer source.
func WithSourceFactory(f SourceFactory) Option {
	return func(a *Application) {
		if f != nil {
			a.newSource = f
		}
	}
}

// WithPicker replaces the terminal quick-pick.
func WithPicker(p palette.Picker) Option {
	return func(a *Application) { a.picker = p }
}

// New creates an application.
func New(opts Options, options ...Option) *Application {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Environ == nil {
		opts.Environ = os.Environ()
	}

	a := &Application{opts: opts, newSource: rustAnalyzerSource}
	for _, opt := range options {
		opt(a)
	}
	return a
}

// Session is the state shared by one command invocation.
type Session struct {
	Config    *config.Config
	Logger    *zap.Logger
	Workspace *workspace.Workspace

	// File is the absolute source file and Content its text.
	File    string
	Content string

	// Position is the requested cursor, nil for the whole file.
	Position *lsp.Position

	log *logging.Logger
}

// Close releases the session logger.
func (s *Session) Close() error {
	return s.log.Close()
}

// Document returns the selector document for the session.
func (s *Session) Document() *runnable.Document {
	return &runnable.Document{Path: s.File, Position: s.Position}
}

// open resolves the target, loads configuration and builds the logger.
func (a *Application) open(target Target) (*Session, error) {
	if target.File == "" {
		return nil, ErrNoFile
	}
	file, err := filepath.Abs(target.File)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	ws, err := workspace.Find(file)
	if err != nil {
		return nil, componentErr("workspace", "locate", err)
	}

	cfgOpts := []config.Option{
		config.WithWorkspace(ws.Root),
		config.WithEnviron(func() []string { return a.opts.Environ }),
	}
	if a.opts.ConfigPath != "" {
		cfgOpts = append(cfgOpts, config.WithFile(a.opts.ConfigPath))
	}
	for path, value := range a.opts.Overrides {
		cfgOpts = append(cfgOpts, config.WithOverride(path, value))
	}
	cfg, err := config.Load(cfgOpts...)
	if err != nil {
		return nil, componentErr("config", "load", err)
	}

	log, err := logging.New(logging.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Stderr:     a.opts.Stderr,
	})
	if err != nil {
		return nil, componentErr("logging", "init", err)
	}

	s := &Session{
		Config:    cfg,
		Logger:    log.Logger,
		Workspace: ws,
		File:      file,
		Content:   string(content),
		log:       log,
	}
	if target.Line > 0 {
		pos := lsp.CursorPosition(s.Content, target.Line, target.Column)
		s.Position = &pos
	}
	s.Logger.Debug("session",
		zap.String("file", file),
		zap.String("workspace", ws.Root),
		zap.String("package", ws.Package),
		zap.Strings("config_files", cfg.Files))
	return s, nil
}

// rustAnalyzerSource starts rust-analyzer on the workspace and opens the
// session file in it.
func rustAnalyzerSource(ctx context.Context, s *Session) (runnable.Source, func(context.Context) error, error) {
	cfg := s.Config.Server
	server := lsp.NewServer(lsp.ServerConfig{
		Command:  cfg.Command,
		Args:     cfg.Args,
		Env:      cfg.Env,
		WorkDir:  s.Workspace.Root,
		Settings: cfg.Settings,
		Timeout:  cfg.Timeout,
	}, lsp.WithServerLogger(s.Logger.Named("lsp")))

	if err := server.Start(ctx, []lsp.WorkspaceFolder{lsp.WorkspaceFolderFromPath(s.Workspace.Root)}); err != nil {
		return nil, nil, componentErr("rust-analyzer", "start", err)
	}
	shutdown := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
		return server.Shutdown(ctx)
	}

	if err := server.OpenDocument(ctx, s.File, s.Content); err != nil {
		_ = shutdown(context.WithoutCancel(ctx))
		return nil, nil, componentErr("rust-analyzer", "open document", err)
	}
	release := func(ctx context.Context) error {
		if err := server.CloseDocument(ctx, s.File); err != nil {
			s.Logger.Debug("close document", zap.Error(err))
		}
		return shutdown(ctx)
	}
	if cfg.WaitQuiescent {
		start := time.Now()
		if err := server.WaitQuiescent(ctx); err != nil {
			_ = release(context.WithoutCancel(ctx))
			return nil, nil, componentErr("rust-analyzer", "wait for workspace load", err)
		}
		fields := []zap.Field{zap.Duration("took", time.Since(start))}
		if st, ok := server.LastStatus(); ok {
			fields = append(fields, zap.String("health", st.Health), zap.String("message", st.Message))
		}
		s.Logger.Debug("workspace loaded", fields...)
	}
	return server, release, nil
}

// pickerFor returns the configured picker, a full-screen picker on a
// terminal, or the line picker otherwise. release frees a picker created
// here; an injected picker belongs to the caller.
func (a *Application) pickerFor() (p palette.Picker, release func()) {
	if a.picker != nil {
		return a.picker, func() {}
	}
	if isTerminal(a.opts.Stdin) && isTerminal(a.opts.Stdout) {
		return palette.NewScreenPicker(), func() {}
	}
	lp := palette.NewLinePicker(a.opts.Stdin, a.opts.Stderr)
	return lp, lp.Close
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
