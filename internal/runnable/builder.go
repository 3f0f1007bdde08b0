package runnable

import (
	"errors"
	"maps"
	"slices"
	"strings"

	"github.com/dshills/cargorun/internal/integration/task"
	"github.com/dshills/cargorun/internal/lsp"
)

// ErrNoCargoArgs is returned for a cargo runnable without a subcommand.
var ErrNoCargoArgs = errors.New("runnable has no cargo arguments")

// UnsupportedKindError is returned when a runnable is not a cargo runnable.
type UnsupportedKindError struct {
	Kind lsp.RunnableKind
}

// Error implements the error interface.
func (e *UnsupportedKindError) Error() string {
	return "unexpected runnable kind: " + e.Kind.String()
}

// TaskFactory materializes a task from a definition.
type TaskFactory interface {
	BuildCargoTask(scope string, def task.Definition, name string, args []string, runner string, clearOutput bool) (*task.Task, error)
}

// TaskConfig carries what CreateTask needs beyond the runnable itself.
type TaskConfig struct {
	// Workspace is the workspace root the task is scoped to.
	Workspace string

	// CargoRunner optionally replaces the cargo executable.
	CargoRunner string

	// BaseEnv is the environment the task starts from.
	BaseEnv map[string]string
}

// backtraceEnv is set on every task and wins over BaseEnv.
var backtraceEnv = map[string]string{"RUST_BACKTRACE": "short"}

// CreateTask converts a cargo runnable into a task. The returned task always
// clears previous output before running.
func CreateTask(r lsp.Runnable, cfg TaskConfig, factory TaskFactory) (*task.Task, error) {
	if r.Kind != lsp.RunnableKindCargo {
		return nil, &UnsupportedKindError{Kind: r.Kind}
	}

	args := combinedArgs(r)
	if len(args) == 0 {
		return nil, ErrNoCargoArgs
	}

	env := make(map[string]string, len(cfg.BaseEnv)+len(backtraceEnv))
	maps.Copy(env, cfg.BaseEnv)
	maps.Copy(env, backtraceEnv)

	def := task.Definition{
		Type:    task.TaskTypeCargo,
		Command: args[0],
		Args:    slices.Clone(args[1:]),
		Cwd:     r.Args.WorkspaceRoot,
		Env:     env,
	}

	runner := cfg.CargoRunner
	if runner == "" {
		runner = r.Args.OverrideCargo
	}

	t, err := factory.BuildCargoTask(cfg.Workspace, def, r.Label, args, runner, true)
	if err != nil {
		return nil, err
	}
	t.Presentation.Clear = true
	return t, nil
}

// combinedArgs returns a fresh slice of the cargo arguments followed by "--"
// and the executable arguments when there are any.
func combinedArgs(r lsp.Runnable) []string {
	args := make([]string, 0, len(r.Args.CargoArgs)+len(r.Args.CargoExtraArgs)+len(r.Args.ExecutableArgs)+1)
	args = append(args, r.Args.CargoArgs...)
	args = append(args, r.Args.CargoExtraArgs...)
	if len(r.Args.ExecutableArgs) > 0 {
		args = append(args, "--")
		args = append(args, r.Args.ExecutableArgs...)
	}
	return args
}

// EnvFromEnviron converts "KEY=value" pairs, as returned by os.Environ, into
// a map. Later duplicates win.
func EnvFromEnviron(environ []string) map[string]string {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		env[k] = v
	}
	return env
}
