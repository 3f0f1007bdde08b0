package app

import (
	"errors"
	"fmt"
)

// Application errors.
var (
	// ErrNoFile indicates the target names no source file.
	ErrNoFile = errors.New("no source file given")

	// ErrNothingSelected is returned by Debug when the user dismissed the
	// quick-pick or there was nothing to pick.
	ErrNothingSelected = errors.New("no runnable selected")
)

// ComponentError represents an error from a specific component.
type ComponentError struct {
	Component string // Component name (e.g., "config", "rust-analyzer")
	Action    string // Action being performed
	Err       error  // Underlying error
}

func (e *ComponentError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s: %s: %v", e.Component, e.Action, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Component, e.Err)
}

func (e *ComponentError) Unwrap() error {
	return e.Err
}

func componentErr(component, action string, err error) error {
	if err == nil {
		return nil
	}
	return &ComponentError{Component: component, Action: action, Err: err}
}
