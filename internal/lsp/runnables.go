package lsp

import (
	"encoding/json"
	"fmt"
)

// rust-analyzer protocol extensions.
const (
	MethodRunnables    = "experimental/runnables"
	MethodServerStatus = "experimental/serverStatus"
)

// RunnableKind tags the shape of a runnable's arguments. The set of kinds is
// closed: RunnableKindCargo is the only supported value. Tags that are not
// recognised decode to a kind that compares unequal to every exported value
// but keeps the wire tag for diagnostics.
type RunnableKind struct {
	tag string
}

// RunnableKindCargo identifies a runnable executed through cargo.
var RunnableKindCargo = RunnableKind{tag: "cargo"}

// ParseRunnableKind maps a wire tag to a RunnableKind.
func ParseRunnableKind(tag string) RunnableKind {
	return RunnableKind{tag: tag}
}

// Supported reports whether k is one of the kinds this client can execute.
func (k RunnableKind) Supported() bool {
	switch k {
	case RunnableKindCargo:
		return true
	default:
		return false
	}
}

// String returns the wire tag.
func (k RunnableKind) String() string {
	if k.tag == "" {
		return "<empty>"
	}
	return k.tag
}

// MarshalJSON encodes the kind as its wire tag.
func (k RunnableKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.tag)
}

// UnmarshalJSON decodes a wire tag.
func (k *RunnableKind) UnmarshalJSON(data []byte) error {
	var tag string
	if err := json.Unmarshal(data, &tag); err != nil {
		return fmt.Errorf("runnable kind: %w", err)
	}
	k.tag = tag
	return nil
}

// CargoRunnableArgs are the arguments of a cargo runnable.
type CargoRunnableArgs struct {
	// WorkspaceRoot is the directory cargo runs in.
	WorkspaceRoot string `json:"workspaceRoot,omitempty"`

	// CargoArgs are the cargo subcommand and its flags, e.g. ["test", "--package", "foo"].
	CargoArgs []string `json:"cargoArgs"`

	// CargoExtraArgs are user-configured extra cargo flags.
	CargoExtraArgs []string `json:"cargoExtraArgs,omitempty"`

	// ExecutableArgs are passed to the built binary after "--".
	ExecutableArgs []string `json:"executableArgs"`

	// OverrideCargo replaces the cargo executable when set.
	OverrideCargo string `json:"overrideCargo,omitempty"`

	// ExpectTest marks runnables that update expect-test snapshots.
	ExpectTest bool `json:"expectTest,omitempty"`
}

// Runnable is an executable action rust-analyzer discovered in a document.
type Runnable struct {
	Label    string            `json:"label"`
	Location *LocationLink     `json:"location,omitempty"`
	Kind     RunnableKind      `json:"kind"`
	Args     CargoRunnableArgs `json:"args"`
}

// RunnablesParams is the payload of an experimental/runnables request.
type RunnablesParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     *Position              `json:"position,omitempty"`
}

// ServerStatusParams is the payload of an experimental/serverStatus notification.
type ServerStatusParams struct {
	Health    string `json:"health"`
	Quiescent bool   `json:"quiescent"`
	Message   string `json:"message,omitempty"`
}
