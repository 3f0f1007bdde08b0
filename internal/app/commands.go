package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/tidwall/pretty"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/dshills/cargorun/internal/integration/debug"
	"github.com/dshills/cargorun/internal/integration/task"
	"github.com/dshills/cargorun/internal/lsp"
	luahook "github.com/dshills/cargorun/internal/plugin/lua"
	"github.com/dshills/cargorun/internal/runnable"
)

// RunOptions tune the run command.
type RunOptions struct {
	// Watch re-runs the task whenever workspace sources change.
	Watch bool

	// NoButtons hides the save-as-launch-configuration button.
	NoButtons bool
}

// Run lets the user pick a runnable and runs it as a cargo task. It returns
// the task's exit code; 0 when nothing was picked.
func (a *Application) Run(ctx context.Context, target Target, opts RunOptions) (int, error) {
	s, err := a.open(target)
	if err != nil {
		return 1, err
	}
	defer s.Close()

	item, err := a.selectRunnable(ctx, s, "run", runnable.SelectOptions{ShowButtons: !opts.NoButtons})
	if err != nil || item == nil {
		return exitCode(err), err
	}

	t, err := a.buildTask(s, item.Runnable)
	if err != nil {
		return 1, err
	}

	code, err := a.execute(ctx, s, t)
	if err != nil || !opts.Watch {
		return code, err
	}
	return a.watch(ctx, s, t, code)
}

// Debug lets the user pick a debuggable runnable and saves it as an lldb
// launch configuration.
func (a *Application) Debug(ctx context.Context, target Target) error {
	s, err := a.open(target)
	if err != nil {
		return err
	}
	defer s.Close()

	item, err := a.selectRunnable(ctx, s, "debug", runnable.SelectOptions{DebuggeeOnly: true})
	if err != nil {
		return err
	}
	if item == nil {
		return ErrNothingSelected
	}

	cfg, err := debug.MakeLaunchConfig(item.Runnable)
	if err != nil {
		return err
	}
	w := a.launchWriter(s)
	if err := w.Write(ctx, cfg); err != nil {
		return componentErr("launch.json", "write", err)
	}
	fmt.Fprintf(a.opts.Stdout, "Saved %q to %s\n", cfg.Name, w.Path())
	return nil
}

// List output formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ErrUnknownFormat is returned by List for an unsupported format.
var ErrUnknownFormat = errors.New("unknown output format")

// List prints the runnables at the target as JSON or YAML.
func (a *Application) List(ctx context.Context, target Target, format string) error {
	if format == "" {
		format = FormatJSON
	}
	if format != FormatJSON && format != FormatYAML {
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	s, err := a.open(target)
	if err != nil {
		return err
	}
	defer s.Close()

	source, closeSource, err := a.newSource(ctx, s)
	if err != nil {
		return err
	}
	runnables, err := source.Runnables(ctx, s.File, s.Position)
	if cerr := closeSource(context.WithoutCancel(ctx)); cerr != nil {
		s.Logger.Warn("shutdown", zap.Error(cerr))
	}
	if err != nil {
		return err
	}
	if runnables == nil {
		runnables = []lsp.Runnable{}
	}

	data, err := json.Marshal(runnables)
	if err != nil {
		return err
	}
	if format == FormatYAML {
		data, err = jsonToYAML(data)
		if err != nil {
			return err
		}
	} else {
		data = pretty.Pretty(data)
		if isTerminal(a.opts.Stdout) {
			data = pretty.Color(data, nil)
		}
	}
	_, err = a.opts.Stdout.Write(data)
	return err
}

// jsonToYAML re-encodes JSON as YAML, keeping the JSON field names.
func jsonToYAML(data []byte) ([]byte, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return yaml.Marshal(v)
}

// selectRunnable runs one selection. kind keeps the remembered previous
// selection of run and debug apart.
func (a *Application) selectRunnable(ctx context.Context, s *Session, kind string, opts runnable.SelectOptions) (*runnable.Item, error) {
	store := a.lastStore(s, kind)
	if store != nil {
		prev, err := store.Previous()
		if err != nil {
			s.Logger.Warn("previous selection unreadable", zap.String("path", store.Path()), zap.Error(err))
		}
		opts.Previous = prev
	}

	if path := s.Config.Hooks.Filter; path != "" {
		if !filepath.IsAbs(path) {
			path = filepath.Join(s.Workspace.Root, path)
		}
		hook, err := luahook.LoadHook(path,
			luahook.WithHookLogger(s.Logger.Named("hook")),
			luahook.WithStateOptions(luahook.WithExecutionTimeout(s.Config.Hooks.Timeout)))
		if err != nil {
			return nil, componentErr("hooks", "load filter", err)
		}
		defer hook.Close()
		opts.Filter = hook.Keep
	}

	source, closeSource, err := a.newSource(ctx, s)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := closeSource(context.WithoutCancel(ctx)); err != nil {
			s.Logger.Warn("shutdown", zap.Error(err))
		}
	}()

	picker, release := a.pickerFor()
	defer release()
	selector := runnable.NewSelector(source, picker,
		runnable.WithPersister(a.launchWriter(s)),
		runnable.WithNotifier(notifier{a.opts.Stderr}),
		runnable.WithSelectorLogger(s.Logger.Named("select")))

	item, err := selector.Select(ctx, s.Document(), opts)
	if err != nil || item == nil {
		return nil, err
	}
	s.Logger.Info("selected", zap.String("label", item.Label))

	if store != nil {
		if err := store.Save(item.Runnable); err != nil {
			s.Logger.Warn("remember selection", zap.Error(err))
		}
	}
	return item, nil
}

func (a *Application) lastStore(s *Session, kind string) *runnable.LastStore {
	if !s.Config.History.Enabled {
		return nil
	}
	dir := s.Config.History.Dir
	if dir == "" {
		var err error
		if dir, err = runnable.DefaultStateDir(); err != nil {
			s.Logger.Warn("history disabled", zap.Error(err))
			return nil
		}
	}
	return runnable.NewLastStore(filepath.Join(dir, kind), s.Workspace.Root)
}

func (a *Application) launchWriter(s *Session) *debug.LaunchWriter {
	return debug.NewLaunchWriter(s.Config.LaunchFile(s.Workspace.Root),
		debug.WithOverwrite(s.Config.Debug.Overwrite),
		debug.WithWriterLogger(s.Logger.Named("launch")))
}

func (a *Application) buildTask(s *Session, r lsp.Runnable) (*task.Task, error) {
	builder := task.NewBuilder(task.BuilderConfig{
		CargoPath:       s.Config.Task.CargoPath,
		ProblemMatchers: s.Config.Task.ProblemMatchers,
		Reveal:          task.RevealKind(s.Config.Task.Reveal),
	}, task.WithBuilderLogger(s.Logger.Named("task")))

	return runnable.CreateTask(r, runnable.TaskConfig{
		Workspace:   s.Workspace.Root,
		CargoRunner: s.Config.Task.CargoRunner,
		BaseEnv:     runnable.EnvFromEnviron(a.opts.Environ),
	}, builder)
}

// notifier prints user-facing errors.
type notifier struct {
	w io.Writer
}

func (n notifier) Error(msg string) {
	fmt.Fprintf(n.w, "error: %s\n", msg)
}

// exitCode maps a command error to a process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return 130
	default:
		return 1
	}
}
