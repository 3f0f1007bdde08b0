package lua

import (
	"fmt"
	"os"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/dshills/cargorun/internal/lsp"
)

// FilterFunction is the global a hook script defines to filter runnables.
const FilterFunction = "filter"

// Hook is a loaded hook script.
//
// A script defines
//
//	function filter(runnable)
//	  return not runnable.label:find("bench")
//	end
//
// where runnable mirrors the experimental/runnables JSON: label, kind and
// args (workspaceRoot, cargoArgs, executableArgs, ...).
type Hook struct {
	state  *State
	path   string
	logger *zap.Logger
}

// HookOption configures a Hook.
type HookOption func(*hookConfig)

type hookConfig struct {
	logger  *zap.Logger
	stateOp []StateOption
}

// WithHookLogger sets the logger used to report script errors.
func WithHookLogger(logger *zap.Logger) HookOption {
	return func(c *hookConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithStateOptions passes options to the underlying State.
func WithStateOptions(opts ...StateOption) HookOption {
	return func(c *hookConfig) {
		c.stateOp = append(c.stateOp, opts...)
	}
}

// LoadHook runs the script at path and checks that it defines filter.
func LoadHook(path string, opts ...HookOption) (*Hook, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("lua hook: %w", err)
	}
	return newHook(path, func(s *State) error { return s.DoFile(path) }, opts)
}

// LoadHookString is LoadHook for an in-memory script.
func LoadHookString(name, code string, opts ...HookOption) (*Hook, error) {
	return newHook(name, func(s *State) error { return s.DoString(code) }, opts)
}

func newHook(name string, load func(*State) error, opts []HookOption) (*Hook, error) {
	cfg := hookConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	state := NewState(cfg.stateOp...)
	if err := load(state); err != nil {
		_ = state.Close()
		return nil, fmt.Errorf("lua hook %s: %w", name, err)
	}
	if !state.HasFunction(FilterFunction) {
		_ = state.Close()
		return nil, fmt.Errorf("lua hook %s: %w (want %s)", name, ErrNoHook, FilterFunction)
	}

	return &Hook{state: state, path: name, logger: cfg.logger}, nil
}

// Filter calls filter(runnable) and returns its truthiness.
func (h *Hook) Filter(r lsp.Runnable) (bool, error) {
	ret, err := h.state.Call(FilterFunction, func(L *lua.LState) []lua.LValue {
		v, err := JSONValue(L, r)
		if err != nil {
			return []lua.LValue{lua.LNil}
		}
		return []lua.LValue{v}
	})
	if err != nil {
		return false, err
	}
	return lua.LVAsBool(ret), nil
}

// Keep is Filter for use as a selection predicate. A failing script keeps
// the runnable and logs the error.
func (h *Hook) Keep(r lsp.Runnable) bool {
	keep, err := h.Filter(r)
	if err != nil {
		h.logger.Warn("lua filter failed; keeping runnable",
			zap.String("hook", h.path),
			zap.String("label", r.Label),
			zap.Error(err))
		return true
	}
	return keep
}

// Close releases the Lua state.
func (h *Hook) Close() error {
	return h.state.Close()
}
