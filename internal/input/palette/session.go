package palette

import (
	"sync"
	"sync/atomic"
)

// session carries the event plumbing shared by every Session implementation.
type session struct {
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	hasButton     bool
	buttonVisible atomic.Bool

	// onDispose releases implementation resources; it must unblock the
	// goroutines tracked by wg.
	onDispose func()
	// onButton is called after the button visibility changes.
	onButton func()
}

func newSession(opts Options) *session {
	s := &session{
		events:    make(chan Event),
		done:      make(chan struct{}),
		hasButton: opts.Button != "",
	}
	s.buttonVisible.Store(s.hasButton && opts.ButtonVisible)
	return s
}

// Events implements Session.
func (s *session) Events() <-chan Event {
	return s.events
}

// SetButtonVisible implements Session. It has no effect without a button.
func (s *session) SetButtonVisible(visible bool) {
	if !s.hasButton {
		return
	}
	if s.buttonVisible.Swap(visible) != visible && s.onButton != nil {
		s.onButton()
	}
}

// buttonShown reports whether the side button is currently visible.
func (s *session) buttonShown() bool {
	return s.buttonVisible.Load()
}

// emit delivers ev unless the session is disposed first.
func (s *session) emit(ev Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

// disposed reports whether Dispose has been called.
func (s *session) disposed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Dispose implements Session. It is safe to call more than once.
func (s *session) Dispose() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.onDispose != nil {
			s.onDispose()
		}
		s.wg.Wait()
		close(s.events)
	})
}
