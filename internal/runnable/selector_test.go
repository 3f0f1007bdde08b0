package runnable

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/cargorun/internal/input/palette"
	"github.com/dshills/cargorun/internal/lsp"
)

func cargoRunnable(label string, args ...string) lsp.Runnable {
	return lsp.Runnable{
		Label: label,
		Kind:  lsp.RunnableKindCargo,
		Args: lsp.CargoRunnableArgs{
			WorkspaceRoot:  "/ws",
			CargoArgs:      args,
			ExecutableArgs: []string{},
		},
	}
}

var (
	runDemo   = cargoRunnable("run demo", "run", "--package", "demo", "--bin", "demo")
	testParse = cargoRunnable("test tests::parse", "test", "--package", "demo", "--lib")
	cargoTest = cargoRunnable("cargo test -p demo", "test", "--package", "demo")
	doctest   = cargoRunnable("doctest lib::add", "test", "--doc", "--package", "demo")
)

type fakeSource struct {
	runnables []lsp.Runnable
	err       error
	calls     int
	path      string
	pos       *lsp.Position
}

func (f *fakeSource) Runnables(_ context.Context, path string, pos *lsp.Position) ([]lsp.Runnable, error) {
	f.calls++
	f.path = path
	f.pos = pos
	return f.runnables, f.err
}

type fakeSession struct {
	events chan palette.Event

	mu       sync.Mutex
	visible  []bool
	disposed int
}

func (s *fakeSession) Events() <-chan palette.Event { return s.events }

func (s *fakeSession) SetButtonVisible(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = append(s.visible, v)
}

func (s *fakeSession) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposed++
}

func (s *fakeSession) isDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed > 0
}

// fakePicker replays a scripted event sequence.
type fakePicker struct {
	script  []palette.Event
	err     error
	opened  int
	opts    palette.Options
	items   []palette.Item
	session *fakeSession
}

func (p *fakePicker) Open(opts palette.Options, items []palette.Item) (palette.Session, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.opened++
	p.opts = opts
	p.items = items
	p.session = &fakeSession{events: make(chan palette.Event, len(p.script))}
	for _, ev := range p.script {
		p.session.events <- ev
	}
	return p.session, nil
}

type fakeNotifier struct {
	messages []string
}

func (n *fakeNotifier) Error(msg string) { n.messages = append(n.messages, msg) }

type fakePersister struct {
	saved        []lsp.Runnable
	err          error
	disposedSeen bool
	session      func() *fakeSession
}

func (p *fakePersister) Persist(_ context.Context, r lsp.Runnable) error {
	p.saved = append(p.saved, r)
	if p.session != nil {
		p.disposedSeen = p.session().isDisposed()
	}
	return p.err
}

func ev(kind palette.EventKind, i int) palette.Event {
	return palette.Event{Kind: kind, Index: i}
}

type selectorFixture struct {
	source    *fakeSource
	picker    *fakePicker
	notifier  *fakeNotifier
	persister *fakePersister
	selector  *Selector
}

func newFixture(runnables []lsp.Runnable, script ...palette.Event) *selectorFixture {
	f := &selectorFixture{
		source:   &fakeSource{runnables: runnables},
		picker:   &fakePicker{script: script},
		notifier: &fakeNotifier{},
	}
	f.persister = &fakePersister{session: func() *fakeSession { return f.picker.session }}
	f.selector = NewSelector(f.source, f.picker, WithNotifier(f.notifier), WithPersister(f.persister))
	return f
}

var doc = &Document{Path: "/ws/src/main.rs", Position: &lsp.Position{Line: 3, Character: 4}}

func TestSelect_Preconditions(t *testing.T) {
	f := newFixture([]lsp.Runnable{runDemo})

	item, err := f.selector.Select(context.Background(), nil, SelectOptions{})
	require.NoError(t, err)
	assert.Nil(t, item)
	assert.Zero(t, f.source.calls)

	noClient := NewSelector(nil, f.picker, WithNotifier(f.notifier))
	item, err = noClient.Select(context.Background(), doc, SelectOptions{})
	require.NoError(t, err)
	assert.Nil(t, item)

	assert.Empty(t, f.notifier.messages)
	assert.Zero(t, f.picker.opened)
}

func TestSelect_SourceErrorUnchanged(t *testing.T) {
	rpcErr := &lsp.RPCError{Code: lsp.CodeContentModified, Message: "content modified"}
	f := newFixture(nil)
	f.source.err = rpcErr

	item, err := f.selector.Select(context.Background(), doc, SelectOptions{})
	assert.Nil(t, item)
	assert.Same(t, rpcErr, err)
	assert.Zero(t, f.picker.opened)
	assert.Empty(t, f.notifier.messages)
}

func TestSelect_RequestsDocumentPosition(t *testing.T) {
	f := newFixture([]lsp.Runnable{runDemo}, ev(palette.EventHide, -1))

	_, err := f.selector.Select(context.Background(), doc, SelectOptions{})
	require.NoError(t, err)
	assert.Equal(t, doc.Path, f.source.path)
	assert.Equal(t, doc.Position, f.source.pos)
}

func TestSelect_EmptyNotifiesOnce(t *testing.T) {
	tests := []struct {
		name      string
		runnables []lsp.Runnable
		opts      SelectOptions
	}{
		{name: "no runnables"},
		{
			name:      "no debuggee",
			runnables: []lsp.Runnable{cargoTest, doctest},
			opts:      SelectOptions{DebuggeeOnly: true},
		},
		{
			name:      "rejected by filter",
			runnables: []lsp.Runnable{runDemo},
			opts:      SelectOptions{Filter: func(lsp.Runnable) bool { return false }},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(tt.runnables)

			item, err := f.selector.Select(context.Background(), doc, tt.opts)
			require.NoError(t, err)
			assert.Nil(t, item)
			assert.Equal(t, []string{NoTargetMessage}, f.notifier.messages)
			assert.Zero(t, f.picker.opened)
		})
	}
}

func TestSelect_Accept(t *testing.T) {
	f := newFixture([]lsp.Runnable{runDemo, testParse},
		ev(palette.EventChangeActive, 0),
		ev(palette.EventChangeActive, 1),
		ev(palette.EventAccept, 1),
	)

	item, err := f.selector.Select(context.Background(), doc, SelectOptions{})
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, testParse, item.Runnable)
	assert.Equal(t, testParse.Label, item.Label)
	assert.Equal(t, 1, f.picker.session.disposed)
}

func TestSelect_PickerOptions(t *testing.T) {
	f := newFixture([]lsp.Runnable{runDemo}, ev(palette.EventHide, -1))

	_, err := f.selector.Select(context.Background(), doc, SelectOptions{ShowButtons: true})
	require.NoError(t, err)
	assert.Equal(t, palette.Options{Title: Title, Button: SaveButton, ButtonVisible: true}, f.picker.opts)
	require.Len(t, f.picker.items, 1)
	assert.Equal(t, "run demo", f.picker.items[0].Label)
	assert.Equal(t, "cargo run --package demo --bin demo", f.picker.items[0].Detail)

	f = newFixture([]lsp.Runnable{runDemo}, ev(palette.EventHide, -1))
	_, err = f.selector.Select(context.Background(), doc, SelectOptions{})
	require.NoError(t, err)
	assert.Equal(t, palette.Options{Title: Title}, f.picker.opts)
}

func TestSelect_PreviousFirst(t *testing.T) {
	prev := NewItem(testParse)
	f := newFixture([]lsp.Runnable{runDemo, testParse, cargoTest}, ev(palette.EventAccept, 0))

	item, err := f.selector.Select(context.Background(), doc, SelectOptions{Previous: &prev})
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, testParse, item.Runnable)

	labels := make([]string, len(f.picker.items))
	for i, it := range f.picker.items {
		labels[i] = it.Label
	}
	assert.Equal(t, []string{"test tests::parse", "run demo", "cargo test -p demo"}, labels)
}

func TestSelect_Hide(t *testing.T) {
	f := newFixture([]lsp.Runnable{runDemo}, ev(palette.EventHide, -1), ev(palette.EventAccept, 0))

	item, err := f.selector.Select(context.Background(), doc, SelectOptions{})
	require.NoError(t, err)
	assert.Nil(t, item)
	// The accept queued after the hide is never observed.
	assert.Len(t, f.picker.session.events, 1)
}

func TestSelect_TriggerPersistsActive(t *testing.T) {
	f := newFixture([]lsp.Runnable{runDemo, testParse},
		ev(palette.EventChangeActive, 0),
		ev(palette.EventChangeActive, 1),
		ev(palette.EventTriggerButton, 1),
		ev(palette.EventAccept, 1),
	)

	item, err := f.selector.Select(context.Background(), doc, SelectOptions{ShowButtons: true})
	require.NoError(t, err)
	assert.Nil(t, item)
	assert.Equal(t, []lsp.Runnable{testParse}, f.persister.saved)
	assert.True(t, f.persister.disposedSeen, "session must be disposed before persisting")
	assert.Len(t, f.picker.session.events, 1)
	assert.Empty(t, f.notifier.messages)
}

func TestSelect_TriggerIgnoredWithoutButtons(t *testing.T) {
	f := newFixture([]lsp.Runnable{runDemo},
		ev(palette.EventTriggerButton, 0),
		ev(palette.EventAccept, 0),
	)

	item, err := f.selector.Select(context.Background(), doc, SelectOptions{})
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Empty(t, f.persister.saved)
}

func TestSelect_ButtonHiddenForCargoCommands(t *testing.T) {
	f := newFixture([]lsp.Runnable{runDemo, cargoTest},
		ev(palette.EventChangeActive, 0),
		ev(palette.EventChangeActive, 1),
		ev(palette.EventTriggerButton, 1), // hidden: ignored
		ev(palette.EventChangeActive, 0),
		ev(palette.EventTriggerButton, 0),
	)

	item, err := f.selector.Select(context.Background(), doc, SelectOptions{ShowButtons: true})
	require.NoError(t, err)
	assert.Nil(t, item)
	assert.Equal(t, []bool{false, true}, f.picker.session.visible)
	assert.Equal(t, []lsp.Runnable{runDemo}, f.persister.saved)
}

func TestSelect_LinePickerSaveButton(t *testing.T) {
	tests := []struct {
		name      string
		runnables []lsp.Runnable
		input     string
		want      []lsp.Runnable
	}{
		{
			name:      "first row is a cargo command",
			runnables: []lsp.Runnable{cargoTest, runDemo},
			input:     "s2\n",
			want:      []lsp.Runnable{runDemo},
		},
		{
			name:      "press on a cargo command does not block later presses",
			runnables: []lsp.Runnable{runDemo, cargoTest},
			input:     "s2\ns1\n",
			want:      []lsp.Runnable{runDemo},
		},
		{
			name:      "press on a cargo command alone saves nothing",
			runnables: []lsp.Runnable{runDemo, cargoTest},
			input:     "s2\n",
			want:      nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			picker := palette.NewLinePicker(strings.NewReader(tt.input), io.Discard)
			defer picker.Close()
			persister := &fakePersister{}
			selector := NewSelector(&fakeSource{runnables: tt.runnables}, picker, WithPersister(persister))

			item, err := selector.Select(context.Background(), doc, SelectOptions{ShowButtons: true})
			require.NoError(t, err)
			assert.Nil(t, item)
			assert.Equal(t, tt.want, persister.saved)
		})
	}
}

func TestSelect_ButtonVisibilityUntouchedWhenDisabled(t *testing.T) {
	f := newFixture([]lsp.Runnable{runDemo, cargoTest},
		ev(palette.EventChangeActive, 1),
		ev(palette.EventHide, -1),
	)

	_, err := f.selector.Select(context.Background(), doc, SelectOptions{})
	require.NoError(t, err)
	assert.Empty(t, f.picker.session.visible)
}

func TestSelect_PersistError(t *testing.T) {
	f := newFixture([]lsp.Runnable{runDemo}, ev(palette.EventTriggerButton, 0))
	f.persister.err = errors.New("read-only file system")

	item, err := f.selector.Select(context.Background(), doc, SelectOptions{ShowButtons: true})
	require.NoError(t, err)
	assert.Nil(t, item)
	require.Len(t, f.notifier.messages, 1)
	assert.Contains(t, f.notifier.messages[0], "read-only file system")
}

func TestSelect_ContextCanceled(t *testing.T) {
	f := newFixture([]lsp.Runnable{runDemo})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	item, err := f.selector.Select(ctx, doc, SelectOptions{})
	assert.Nil(t, item)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, f.picker.session.disposed)
}

func TestSelect_ClosedSessionResolvesNone(t *testing.T) {
	f := newFixture([]lsp.Runnable{runDemo})
	f.picker.script = nil

	picker := &closingPicker{fakePicker: f.picker}
	s := NewSelector(f.source, picker)

	item, err := s.Select(context.Background(), doc, SelectOptions{})
	require.NoError(t, err)
	assert.Nil(t, item)
}

type closingPicker struct {
	*fakePicker
}

func (p *closingPicker) Open(opts palette.Options, items []palette.Item) (palette.Session, error) {
	sess, err := p.fakePicker.Open(opts, items)
	if err != nil {
		return nil, err
	}
	close(p.fakePicker.session.events)
	return sess, nil
}

func TestSelect_PickerOpenError(t *testing.T) {
	f := newFixture([]lsp.Runnable{runDemo})
	f.picker.err = errors.New("no terminal")

	_, err := f.selector.Select(context.Background(), doc, SelectOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, f.picker.err)
}
