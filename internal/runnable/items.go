package runnable

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dshills/cargorun/internal/lsp"
)

// Item is one entry of the runnable quick-pick.
type Item struct {
	// Label mirrors Runnable.Label.
	Label       string
	Description string
	Detail      string
	Picked      bool

	Runnable lsp.Runnable
}

// NewItem wraps r for presentation.
func NewItem(r lsp.Runnable) Item {
	return Item{
		Label:    r.Label,
		Detail:   commandLine(r),
		Runnable: r,
	}
}

// Predicate decides whether a runnable is offered. Nil accepts everything.
type Predicate func(lsp.Runnable) bool

// Label prefixes of runnables that are not debuggable on their own: doctests
// and whole-package cargo commands such as "cargo test -p foo".
const (
	prefixDoctest = "doctest"
	prefixCargo   = "cargo"
)

// IsDebuggee reports whether a runnable with this label can be launched
// under a debugger. It is a label heuristic, not a classification reported
// by the server.
func IsDebuggee(label string) bool {
	return !strings.HasPrefix(label, prefixDoctest) && !strings.HasPrefix(label, prefixCargo)
}

// wantsSaveButton reports whether saving a launch configuration makes sense
// for the item with this label.
func wantsSaveButton(label string) bool {
	return !strings.HasPrefix(label, prefixCargo)
}

// BuildItems builds the presentation list. prev, when non-nil, is always
// first. A candidate is skipped when its JSON form equals that of an item
// already in the list, when debuggeeOnly is set and it is not a debuggee, or
// when keep rejects it.
func BuildItems(prev *Item, candidates []lsp.Runnable, debuggeeOnly bool, keep Predicate) ([]Item, error) {
	items := make([]Item, 0, len(candidates)+1)
	seen := make(map[string]struct{}, len(candidates)+1)

	if prev != nil {
		key, err := serialize(prev.Runnable)
		if err != nil {
			return nil, err
		}
		seen[key] = struct{}{}
		items = append(items, *prev)
	}

	for _, r := range candidates {
		key, err := serialize(r)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[key]; dup {
			continue
		}
		if debuggeeOnly && !IsDebuggee(r.Label) {
			continue
		}
		if keep != nil && !keep(r) {
			continue
		}
		seen[key] = struct{}{}
		items = append(items, NewItem(r))
	}
	return items, nil
}

func serialize(r lsp.Runnable) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("serialize runnable %q: %w", r.Label, err)
	}
	return string(data), nil
}

// commandLine renders the cargo invocation of r for display.
func commandLine(r lsp.Runnable) string {
	if !r.Kind.Supported() || len(r.Args.CargoArgs) == 0 {
		return ""
	}
	return "cargo " + strings.Join(combinedArgs(r), " ")
}
