package palette

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/uniseg"
)

// ScreenPicker shows quick-picks on a full terminal screen.
type ScreenPicker struct {
	newScreen func() (tcell.Screen, error)
}

// NewScreenPicker returns a picker that draws on the controlling terminal.
func NewScreenPicker() *ScreenPicker {
	return &ScreenPicker{newScreen: tcell.NewScreen}
}

// NewScreenPickerWith returns a picker that obtains its screen from fn.
// Each session calls fn once and finalizes the screen on Dispose.
func NewScreenPickerWith(fn func() (tcell.Screen, error)) *ScreenPicker {
	return &ScreenPicker{newScreen: fn}
}

// firstListLine is the screen row of the first item; rows 0 and 1 hold the
// title and the query.
const firstListLine = 2

var (
	styleTitle  = tcell.StyleDefault.Bold(true)
	styleDim    = tcell.StyleDefault.Dim(true)
	styleActive = tcell.StyleDefault.Reverse(true)
	styleButton = tcell.StyleDefault.Foreground(tcell.ColorYellow)
)

// Open implements Picker.
func (p *ScreenPicker) Open(opts Options, items []Item) (Session, error) {
	screen, err := p.newScreen()
	if err != nil {
		return nil, fmt.Errorf("create screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("init screen: %w", err)
	}

	ss := &screenSession{
		session: newSession(opts),
		screen:  screen,
		opts:    opts,
		model:   NewModel(items),
	}
	ss.onDispose = screen.Fini
	ss.onButton = func() {
		_ = screen.PostEvent(tcell.NewEventInterrupt(nil))
	}

	ss.wg.Add(1)
	go ss.loop()
	return ss, nil
}

type screenSession struct {
	*session
	screen tcell.Screen
	opts   Options
	model  *Model
	offset int
}

func (s *screenSession) loop() {
	defer s.wg.Done()

	s.draw()
	if active := s.model.Active(); active >= 0 {
		if !s.emit(Event{Kind: EventChangeActive, Index: active}) {
			return
		}
	}

	for {
		ev := s.screen.PollEvent()
		if ev == nil || s.disposed() {
			return
		}

		changed := false
		switch e := ev.(type) {
		case *tcell.EventResize:
			s.screen.Sync()
		case *tcell.EventKey:
			var out *Event
			changed, out = s.handleKey(e)
			if out != nil && !s.emit(*out) {
				return
			}
		}

		s.draw()
		if changed && !s.emit(Event{Kind: EventChangeActive, Index: s.model.Active()}) {
			return
		}
	}
}

// handleKey applies a key to the model. It reports whether the active item
// changed and the terminal event to deliver, if any.
func (s *screenSession) handleKey(e *tcell.EventKey) (bool, *Event) {
	_, height := s.screen.Size()
	page := max(height-firstListLine, 1)

	switch e.Key() {
	case tcell.KeyEnter:
		return false, &Event{Kind: EventAccept, Index: s.model.Active()}
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return false, &Event{Kind: EventHide, Index: -1}
	case tcell.KeyCtrlS:
		// The receiver may still be applying the last active change, so it
		// decides whether the button applies.
		if s.hasButton {
			return false, &Event{Kind: EventTriggerButton, Index: s.model.Active()}
		}
	case tcell.KeyUp, tcell.KeyCtrlP:
		return s.model.Move(-1), nil
	case tcell.KeyDown, tcell.KeyCtrlN:
		return s.model.Move(1), nil
	case tcell.KeyPgUp:
		return s.model.Move(-page), nil
	case tcell.KeyPgDn:
		return s.model.Move(page), nil
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		return s.model.DeleteRune(), nil
	case tcell.KeyRune:
		return s.model.InsertRune(e.Rune()), nil
	}
	return false, nil
}

func (s *screenSession) draw() {
	scr := s.screen
	scr.Clear()
	width, height := scr.Size()

	x := drawText(scr, 0, 0, width, s.opts.Title, styleTitle)
	if s.buttonShown() {
		hint := "[ctrl-s] " + s.opts.Button
		if hw := uniseg.StringWidth(hint); x+2+hw <= width {
			drawText(scr, width-hw, 0, width, hint, styleButton)
		}
	}

	prompt := "> "
	x = drawText(scr, 0, 1, width, prompt, tcell.StyleDefault)
	if q := s.model.Query(); q != "" {
		end := drawText(scr, x, 1, width, q, tcell.StyleDefault)
		scr.ShowCursor(end, 1)
	} else {
		drawText(scr, x, 1, width, s.opts.Placeholder, styleDim)
		scr.ShowCursor(x, 1)
	}

	rows := height - firstListLine
	if rows <= 0 {
		scr.Show()
		return
	}

	matches := s.model.Matches()
	cursor := s.model.Cursor()
	if cursor < s.offset {
		s.offset = cursor
	}
	if cursor >= s.offset+rows {
		s.offset = cursor - rows + 1
	}
	if s.offset < 0 {
		s.offset = 0
	}

	items := s.model.Items()
	for row := 0; row < rows && s.offset+row < len(matches); row++ {
		m := matches[s.offset+row]
		it := items[m.Index]
		y := firstListLine + row

		base := tcell.StyleDefault
		if s.offset+row == cursor {
			base = styleActive
			for cx := 0; cx < width; cx++ {
				scr.SetContent(cx, y, ' ', nil, base)
			}
		}

		x := drawLabel(scr, 1, y, width, it.Label, m.Positions, base)
		if it.Description != "" {
			drawText(scr, x+2, y, width, it.Description, base.Dim(true))
		}
	}

	scr.Show()
}

// drawLabel draws a label, emphasising the bytes at positions.
func drawLabel(scr tcell.Screen, x, y, maxX int, label string, positions []int, style tcell.Style) int {
	if len(positions) == 0 {
		return drawText(scr, x, y, maxX, label, style)
	}

	hit := make(map[int]bool, len(positions))
	for _, p := range positions {
		hit[p] = true
	}

	offset := 0
	rest := label
	state := -1
	for rest != "" && x < maxX {
		var cluster string
		var w int
		cluster, rest, w, state = uniseg.FirstGraphemeClusterInString(rest, state)
		if x+w > maxX {
			break
		}
		st := style
		if hit[offset] {
			st = style.Bold(true).Underline(true)
		}
		putCluster(scr, x, y, cluster, st)
		x += w
		offset += len(cluster)
	}
	return x
}

// drawText draws s from x, clipped at maxX, and returns the next column.
func drawText(scr tcell.Screen, x, y, maxX int, s string, style tcell.Style) int {
	state := -1
	for s != "" && x < maxX {
		var cluster string
		var w int
		cluster, s, w, state = uniseg.FirstGraphemeClusterInString(s, state)
		if x+w > maxX {
			break
		}
		putCluster(scr, x, y, cluster, style)
		x += w
	}
	return x
}

func putCluster(scr tcell.Screen, x, y int, cluster string, style tcell.Style) {
	runes := []rune(cluster)
	if len(runes) == 0 {
		return
	}
	scr.SetContent(x, y, runes[0], runes[1:], style)
}
