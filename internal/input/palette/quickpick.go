package palette

import (
	"errors"
	"fmt"
)

// ErrPickerClosed is returned by Open after the picker was closed.
var ErrPickerClosed = errors.New("picker closed")

// Item is one row of a quick-pick.
type Item struct {
	Label       string
	Description string
	Detail      string

	// Picked marks the item that starts highlighted.
	Picked bool
}

// EventKind identifies what happened in a quick-pick session.
type EventKind int

const (
	// EventAccept means the user confirmed the active item.
	EventAccept EventKind = iota
	// EventHide means the quick-pick was dismissed.
	EventHide
	// EventTriggerButton means the side button was pressed.
	EventTriggerButton
	// EventChangeActive means the highlighted item changed.
	EventChangeActive
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventAccept:
		return "accept"
	case EventHide:
		return "hide"
	case EventTriggerButton:
		return "trigger-button"
	case EventChangeActive:
		return "change-active"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is delivered by a Session.
type Event struct {
	Kind EventKind

	// Index is the position of the active item in the slice passed to Open,
	// or -1 when no item is active.
	Index int
}

// Options configures a quick-pick.
type Options struct {
	Title       string
	Placeholder string

	// Button is the tooltip of the single side button. Empty means no button.
	Button string

	// ButtonVisible is the initial visibility of the button.
	ButtonVisible bool
}

// Picker opens quick-pick sessions.
type Picker interface {
	Open(opts Options, items []Item) (Session, error)
}

// Session is one open quick-pick. Events arrive one at a time on Events.
// After Dispose returns no further events are delivered and the channel is
// closed.
type Session interface {
	Events() <-chan Event
	SetButtonVisible(visible bool)
	Dispose()
}

// initialActive returns the index of the first picked item, or 0.
func initialActive(items []Item) int {
	for i, it := range items {
		if it.Picked {
			return i
		}
	}
	return 0
}
