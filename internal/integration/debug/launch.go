package debug

import (
	"errors"
	"slices"

	"github.com/dshills/cargorun/internal/lsp"
)

// AdapterLLDB is the CodeLLDB adapter type.
const AdapterLLDB = "lldb"

// ErrUnsupportedRunnable is returned for runnables that are not cargo runnables.
var ErrUnsupportedRunnable = errors.New("only cargo runnables can be debugged")

// CargoConfig tells the adapter how to build the debuggee.
type CargoConfig struct {
	// Args are the cargo arguments that build the binary without running it.
	Args []string `json:"args"`
}

// LaunchConfig is one entry of launch.json's "configurations" array.
type LaunchConfig struct {
	// Type is the adapter type.
	Type string `json:"type"`

	// Request is "launch".
	Request string `json:"request"`

	// Name identifies the configuration; it is the runnable label.
	Name string `json:"name"`

	Cargo CargoConfig `json:"cargo"`

	// Args are passed to the debuggee.
	Args []string `json:"args"`

	// Cwd is the debuggee's working directory.
	Cwd string `json:"cwd,omitempty"`

	// Env are additional environment variables.
	Env map[string]string `json:"env,omitempty"`

	SourceLanguages []string `json:"sourceLanguages"`
}

// MakeLaunchConfig builds the lldb launch configuration of a cargo runnable.
func MakeLaunchConfig(r lsp.Runnable) (LaunchConfig, error) {
	if r.Kind != lsp.RunnableKindCargo {
		return LaunchConfig{}, ErrUnsupportedRunnable
	}

	args := r.Args.ExecutableArgs
	if args == nil {
		args = []string{}
	}

	return LaunchConfig{
		Type:            AdapterLLDB,
		Request:         "launch",
		Name:            r.Label,
		Cargo:           CargoConfig{Args: BuildArgs(r.Args.CargoArgs, r.Args.CargoExtraArgs)},
		Args:            slices.Clone(args),
		Cwd:             r.Args.WorkspaceRoot,
		SourceLanguages: []string{"rust"},
	}, nil
}

// BuildArgs turns the cargo arguments of a runnable into arguments that only
// build it: "run" becomes "build" and other commands get "--no-run".
func BuildArgs(cargoArgs, extraArgs []string) []string {
	args := make([]string, 0, len(cargoArgs)+len(extraArgs)+1)
	args = append(args, cargoArgs...)
	args = append(args, extraArgs...)

	switch {
	case len(args) == 0:
	case args[0] == "run":
		args[0] = "build"
	case !slices.Contains(args, "--no-run"):
		args = append(args, "--no-run")
	}
	return args
}
