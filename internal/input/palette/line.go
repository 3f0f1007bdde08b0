package palette

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// LinePicker is a quick-pick for terminals without a full screen. It prints
// a numbered list and reads one command per line:
//
//	N      accept item N
//	sN     press the side button on item N (s alone uses the active item)
//	/text  filter the list
//	q      dismiss
//
// An empty line accepts the active item. End of input dismisses.
type LinePicker struct {
	in  io.Reader
	out io.Writer

	// lines is fed by a single reader goroutine so a disposed session never
	// swallows input meant for the next one.
	lines     chan string
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
}

// NewLinePicker creates a picker over the given streams.
func NewLinePicker(in io.Reader, out io.Writer) *LinePicker {
	return &LinePicker{
		in:    in,
		out:   out,
		lines: make(chan string),
		done:  make(chan struct{}),
	}
}

func (p *LinePicker) start() {
	p.startOnce.Do(func() {
		go func() {
			defer close(p.lines)
			scanner := bufio.NewScanner(p.in)
			for scanner.Scan() {
				select {
				case p.lines <- scanner.Text():
				case <-p.done:
					return
				}
			}
		}()
	})
}

// Close stops handing input to sessions. A reader goroutine blocked in a
// read of the input stream exits after that read returns.
func (p *LinePicker) Close() {
	p.closeOnce.Do(func() { close(p.done) })
}

// Open implements Picker.
func (p *LinePicker) Open(opts Options, items []Item) (Session, error) {
	select {
	case <-p.done:
		return nil, ErrPickerClosed
	default:
	}
	p.start()

	ls := &lineSession{
		session: newSession(opts),
		picker:  p,
		opts:    opts,
		model:   NewModel(items),
	}
	ls.wg.Add(1)
	go ls.loop()
	return ls, nil
}

type lineSession struct {
	*session
	picker *LinePicker
	opts   Options
	model  *Model
}

func (s *lineSession) loop() {
	defer s.wg.Done()

	if active := s.model.Active(); active >= 0 {
		if !s.emit(Event{Kind: EventChangeActive, Index: active}) {
			return
		}
	}

	for {
		if s.disposed() {
			return
		}
		s.render()
		select {
		case <-s.done:
			return
		case line, ok := <-s.picker.lines:
			if !ok {
				s.emit(Event{Kind: EventHide, Index: -1})
				return
			}
			if !s.handle(strings.TrimSpace(line)) {
				return
			}
		}
	}
}

// handle applies one input line and reports whether to keep reading.
func (s *lineSession) handle(cmd string) bool {
	switch {
	case cmd == "":
		s.emit(Event{Kind: EventAccept, Index: s.model.Active()})
		return false

	case cmd == "q":
		s.emit(Event{Kind: EventHide, Index: -1})
		return false

	case strings.HasPrefix(cmd, "/"):
		if s.model.SetQuery(cmd[1:]) {
			return s.emit(Event{Kind: EventChangeActive, Index: s.model.Active()})
		}
		return true

	case strings.HasPrefix(cmd, "s"):
		if !s.hasButton {
			s.printf("no button available\n")
			return true
		}
		if rest := strings.TrimSpace(cmd[1:]); rest != "" {
			if !s.choose(rest) {
				return true
			}
			if !s.emit(Event{Kind: EventChangeActive, Index: s.model.Active()}) {
				return false
			}
		}
		// Visibility follows the active item and is decided by the receiver
		// once it has seen the change above; keep reading in case it refuses.
		return s.emit(Event{Kind: EventTriggerButton, Index: s.model.Active()})

	default:
		if !s.choose(cmd) {
			return true
		}
		s.emit(Event{Kind: EventAccept, Index: s.model.Active()})
		return false
	}
}

// choose highlights the visible row numbered n (1-based).
func (s *lineSession) choose(n string) bool {
	row, err := strconv.Atoi(n)
	matches := s.model.Matches()
	if err != nil || row < 1 || row > len(matches) {
		s.printf("invalid choice %q\n", n)
		return false
	}
	s.model.Select(matches[row-1].Index)
	return true
}

func (s *lineSession) render() {
	items := s.model.Items()
	if s.opts.Title != "" {
		s.printf("%s\n", s.opts.Title)
	}
	cursor := s.model.Cursor()
	for row, m := range s.model.Matches() {
		marker := " "
		if row == cursor {
			marker = ">"
		}
		it := items[m.Index]
		s.printf("%s %2d) %s", marker, row+1, it.Label)
		if it.Description != "" {
			s.printf("  %s", it.Description)
		}
		s.printf("\n")
	}

	hint := "number to run, /text to filter, q to cancel"
	if s.buttonShown() {
		hint = "number to run, s<number> to " + strings.ToLower(s.opts.Button) + ", /text to filter, q to cancel"
	}
	s.printf("%s: ", hint)
}

func (s *lineSession) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(s.picker.out, format, args...)
}
