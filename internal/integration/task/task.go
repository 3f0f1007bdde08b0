package task

import (
	"slices"
	"sort"
	"strings"
)

// TaskTypeCargo is the definition type of tasks that run cargo.
const TaskTypeCargo = "cargo"

// SourceRust is the source reported by every task this package builds.
const SourceRust = "rust"

// Definition describes what a task runs. Once handed to a Builder it is owned
// by the resulting Task.
type Definition struct {
	// Type is the task type, TaskTypeCargo for cargo tasks.
	Type string `json:"type"`

	// Command is the cargo subcommand, e.g. "test".
	Command string `json:"command"`

	// Args are the remaining arguments after Command.
	Args []string `json:"args,omitempty"`

	// Cwd is the directory the process runs in.
	Cwd string `json:"cwd,omitempty"`

	// Env is the complete process environment.
	Env map[string]string `json:"env,omitempty"`
}

// RevealKind controls whether running a task brings its output forward.
type RevealKind string

const (
	RevealAlways RevealKind = "always"
	RevealSilent RevealKind = "silent"
	RevealNever  RevealKind = "never"
)

// Presentation holds how a task's output is shown.
type Presentation struct {
	// Clear erases previous output before the task runs.
	Clear bool `json:"clear"`

	Reveal RevealKind `json:"reveal,omitempty"`
}

// ProcessExecution is the concrete process a task spawns.
type ProcessExecution struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// CommandLine renders the execution as a shell-like line for display.
func (e ProcessExecution) CommandLine() string {
	parts := make([]string, 0, len(e.Args)+1)
	parts = append(parts, shellEscape(e.Command))
	for _, a := range e.Args {
		parts = append(parts, shellEscape(a))
	}
	return strings.Join(parts, " ")
}

// Environ returns the environment as sorted KEY=VALUE pairs.
func (e ProcessExecution) Environ() []string {
	keys := make([]string, 0, len(e.Env))
	for k := range e.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+e.Env[k])
	}
	return env
}

// Task is an executable task built from a Definition.
type Task struct {
	// Name is the display name, normally the runnable label.
	Name string `json:"name"`

	// Scope is the workspace folder the task belongs to.
	Scope string `json:"scope"`

	// Source identifies the producer of the task.
	Source string `json:"source"`

	Definition      Definition       `json:"definition"`
	Execution       ProcessExecution `json:"execution"`
	ProblemMatchers []string         `json:"problemMatchers,omitempty"`
	Presentation    Presentation     `json:"presentation"`
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	c := *t
	c.Definition.Args = slices.Clone(t.Definition.Args)
	c.Definition.Env = cloneEnv(t.Definition.Env)
	c.Execution.Args = slices.Clone(t.Execution.Args)
	c.Execution.Env = cloneEnv(t.Execution.Env)
	c.ProblemMatchers = slices.Clone(t.ProblemMatchers)
	return &c
}

func cloneEnv(env map[string]string) map[string]string {
	if env == nil {
		return nil
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}

// shellEscape quotes s for display in a POSIX shell.
func shellEscape(s string) string {
	if s == "" {
		return "''"
	}

	needsEscape := false
	for _, c := range s {
		if !isShellSafe(c) {
			needsEscape = true
			break
		}
	}
	if !needsEscape {
		return s
	}

	var result strings.Builder
	result.WriteByte('\'')
	for _, c := range s {
		if c == '\'' {
			result.WriteString(`'\''`)
		} else {
			result.WriteRune(c)
		}
	}
	result.WriteByte('\'')
	return result.String()
}

func isShellSafe(c rune) bool {
	return (c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9') ||
		c == '-' || c == '_' || c == '.' || c == '/' || c == '=' || c == ':'
}
