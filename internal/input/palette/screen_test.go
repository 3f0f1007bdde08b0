package palette

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
)

func openSim(t *testing.T, opts Options, items []Item) (tcell.SimulationScreen, Session) {
	t.Helper()

	var sim tcell.SimulationScreen
	picker := NewScreenPickerWith(func() (tcell.Screen, error) {
		sim = tcell.NewSimulationScreen("UTF-8")
		return sim, nil
	})
	sess, err := picker.Open(opts, items)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return sim, sess
}

func nextEvent(t *testing.T, sess Session) Event {
	t.Helper()
	select {
	case ev, ok := <-sess.Events():
		if !ok {
			t.Fatal("events closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func rowText(sim tcell.SimulationScreen, y int) string {
	cells, width, _ := sim.GetContents()
	var b strings.Builder
	for x := 0; x < width; x++ {
		c := cells[y*width+x]
		if len(c.Runes) == 0 {
			b.WriteByte(' ')
			continue
		}
		b.WriteString(string(c.Runes))
	}
	return strings.TrimRight(b.String(), " ")
}

func TestScreenPicker_NavigateAndAccept(t *testing.T) {
	sim, sess := openSim(t, Options{Title: "Select Runnable"}, testItems())
	defer sess.Dispose()

	if ev := nextEvent(t, sess); ev != (Event{Kind: EventChangeActive, Index: 0}) {
		t.Fatalf("initial event = %v", ev)
	}

	sim.InjectKey(tcell.KeyDown, 0, tcell.ModNone)
	if ev := nextEvent(t, sess); ev != (Event{Kind: EventChangeActive, Index: 1}) {
		t.Fatalf("after Down = %v", ev)
	}

	sim.InjectKey(tcell.KeyEnter, 0, tcell.ModNone)
	if ev := nextEvent(t, sess); ev != (Event{Kind: EventAccept, Index: 1}) {
		t.Fatalf("after Enter = %v", ev)
	}
}

func TestScreenPicker_TypingFilters(t *testing.T) {
	sim, sess := openSim(t, Options{Title: "Select Runnable"}, testItems())
	defer sess.Dispose()

	nextEvent(t, sess)

	sim.InjectKey(tcell.KeyRune, 'h', tcell.ModNone)
	if ev := nextEvent(t, sess); ev != (Event{Kind: EventChangeActive, Index: 1}) {
		t.Fatalf("after typing = %v", ev)
	}

	sim.InjectKey(tcell.KeyEscape, 0, tcell.ModNone)
	if ev := nextEvent(t, sess); ev.Kind != EventHide {
		t.Fatalf("after Escape = %v", ev)
	}
}

func TestScreenPicker_Button(t *testing.T) {
	opts := Options{Title: "Select Runnable", Button: "Save", ButtonVisible: false}
	sim, sess := openSim(t, opts, testItems())
	defer sess.Dispose()

	nextEvent(t, sess)

	// Visibility is not known yet for the new row, so the press goes out
	// right behind the active change.
	sim.InjectKey(tcell.KeyDown, 0, tcell.ModNone)
	sim.InjectKey(tcell.KeyCtrlS, 0, tcell.ModCtrl)
	if ev := nextEvent(t, sess); ev != (Event{Kind: EventChangeActive, Index: 1}) {
		t.Fatalf("after Down = %v", ev)
	}
	if ev := nextEvent(t, sess); ev != (Event{Kind: EventTriggerButton, Index: 1}) {
		t.Fatalf("after ctrl-s = %v", ev)
	}
}

func TestScreenPicker_NoButton(t *testing.T) {
	sim, sess := openSim(t, Options{Title: "Select Runnable"}, testItems())
	defer sess.Dispose()

	nextEvent(t, sess)

	sim.InjectKey(tcell.KeyCtrlS, 0, tcell.ModCtrl)
	sim.InjectKey(tcell.KeyDown, 0, tcell.ModNone)
	if ev := nextEvent(t, sess); ev.Kind != EventChangeActive {
		t.Fatalf("ctrl-s without a button produced %v", ev)
	}
}

func TestScreenPicker_Draw(t *testing.T) {
	items := testItems()
	items[0].Description = "bin demo"
	sim, sess := openSim(t, Options{Title: "Select Runnable", Placeholder: "type to filter"}, items)
	defer sess.Dispose()

	// The first event is sent after the first frame is shown.
	nextEvent(t, sess)

	if got := rowText(sim, 0); got != "Select Runnable" {
		t.Errorf("title row = %q", got)
	}
	if got := rowText(sim, 1); got != "> type to filter" {
		t.Errorf("query row = %q", got)
	}
	if got := rowText(sim, 2); got != " run demo  bin demo" {
		t.Errorf("first item row = %q", got)
	}
}

func TestScreenPicker_OpenError(t *testing.T) {
	boom := errors.New("no tty")
	picker := NewScreenPickerWith(func() (tcell.Screen, error) { return nil, boom })
	if _, err := picker.Open(Options{}, testItems()); !errors.Is(err, boom) {
		t.Fatalf("Open error = %v, want %v", err, boom)
	}
}

func TestScreenPicker_DisposeClosesEvents(t *testing.T) {
	_, sess := openSim(t, Options{}, testItems())

	sess.Dispose()

	select {
	case _, ok := <-sess.Events():
		if ok {
			t.Error("event delivered after Dispose")
		}
	case <-time.After(time.Second):
		t.Fatal("events not closed after Dispose")
	}
}
