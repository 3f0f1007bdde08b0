package runnable

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dshills/cargorun/internal/input/palette"
	"github.com/dshills/cargorun/internal/lsp"
)

// Quick-pick texts.
const (
	Title           = "Select Runnable"
	SaveButton      = "Save as a launch.json configuration"
	NoTargetMessage = "There's no debug target!"
)

// Source lists the runnables at a position in a document.
type Source interface {
	Runnables(ctx context.Context, path string, pos *lsp.Position) ([]lsp.Runnable, error)
}

// Persister saves a runnable as a launch configuration.
type Persister interface {
	Persist(ctx context.Context, r lsp.Runnable) error
}

// Notifier shows messages to the user.
type Notifier interface {
	Error(msg string)
}

// Document identifies the file and cursor a selection is made for.
type Document struct {
	Path string

	// Position is the cursor. Nil asks for every runnable in the file.
	Position *lsp.Position
}

// SelectOptions tune a single selection.
type SelectOptions struct {
	// Previous is offered first when set.
	Previous *Item

	// DebuggeeOnly drops runnables that cannot be debugged.
	DebuggeeOnly bool

	// ShowButtons adds the save-as-launch-configuration button.
	ShowButtons bool

	// Filter is an optional extra predicate.
	Filter Predicate
}

// Selector lets the user choose one runnable.
type Selector struct {
	source    Source
	picker    palette.Picker
	persister Persister
	notifier  Notifier
	logger    *zap.Logger
}

// SelectorOption configures a Selector.
type SelectorOption func(*Selector)

// WithPersister sets the collaborator invoked by the save button.
func WithPersister(p Persister) SelectorOption {
	return func(s *Selector) { s.persister = p }
}

// WithNotifier sets where user-visible errors go.
func WithNotifier(n Notifier) SelectorOption {
	return func(s *Selector) { s.notifier = n }
}

// WithSelectorLogger sets the logger.
func WithSelectorLogger(logger *zap.Logger) SelectorOption {
	return func(s *Selector) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSelector creates a Selector. A nil source makes every Select a no-op.
func NewSelector(source Source, picker palette.Picker, opts ...SelectorOption) *Selector {
	s := &Selector{
		source:   source,
		picker:   picker,
		notifier: nopNotifier{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select fetches the runnables for doc and lets the user pick one.
//
// It returns (nil, nil) when there is nothing to select from, when the user
// dismisses the quick-pick and after the save button was used. Errors from
// the source are returned unchanged.
func (s *Selector) Select(ctx context.Context, doc *Document, opts SelectOptions) (*Item, error) {
	if doc == nil || s.source == nil {
		return nil, nil
	}

	runnables, err := s.source.Runnables(ctx, doc.Path, doc.Position)
	if err != nil {
		return nil, err
	}

	items, err := BuildItems(opts.Previous, runnables, opts.DebuggeeOnly, opts.Filter)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("runnables",
		zap.String("path", doc.Path),
		zap.Int("received", len(runnables)),
		zap.Int("presented", len(items)))

	if len(items) == 0 {
		s.notifier.Error(NoTargetMessage)
		return nil, nil
	}

	pickOpts := palette.Options{Title: Title}
	if opts.ShowButtons {
		pickOpts.Button = SaveButton
		pickOpts.ButtonVisible = true
	}

	sess, err := s.picker.Open(pickOpts, paletteItems(items))
	if err != nil {
		return nil, fmt.Errorf("open quick-pick: %w", err)
	}

	sel := &selection{
		Selector: s,
		session:  sess,
		items:    items,
		buttons:  opts.ShowButtons,
		visible:  opts.ShowButtons,
	}
	return sel.run(ctx)
}

// selection is one open quick-pick. It resolves exactly once: every exit
// path of run disposes the session, after which no event is delivered.
type selection struct {
	*Selector
	session palette.Session
	items   []Item

	buttons bool
	visible bool
}

func (sel *selection) run(ctx context.Context) (*Item, error) {
	defer sel.session.Dispose()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case ev, ok := <-sel.session.Events():
			if !ok {
				return nil, nil
			}
			item, done := sel.handle(ctx, ev)
			if done {
				return item, nil
			}
		}
	}
}

// handle applies one event and reports whether the selection is resolved.
func (sel *selection) handle(ctx context.Context, ev palette.Event) (*Item, bool) {
	switch ev.Kind {
	case palette.EventAccept:
		item := sel.item(ev.Index)
		if item != nil {
			sel.logger.Debug("runnable accepted", zap.String("label", item.Label))
		}
		return item, true

	case palette.EventHide:
		return nil, true

	case palette.EventTriggerButton:
		if !sel.buttons || !sel.visible {
			return nil, false
		}
		item := sel.item(ev.Index)
		sel.session.Dispose()
		if item != nil {
			sel.persist(ctx, item.Runnable)
		}
		return nil, true

	case palette.EventChangeActive:
		item := sel.item(ev.Index)
		if !sel.buttons || item == nil {
			return nil, false
		}
		if visible := wantsSaveButton(item.Label); visible != sel.visible {
			sel.visible = visible
			sel.session.SetButtonVisible(visible)
		}
	}
	return nil, false
}

func (sel *selection) item(i int) *Item {
	if i < 0 || i >= len(sel.items) {
		return nil
	}
	item := sel.items[i]
	return &item
}

func (s *Selector) persist(ctx context.Context, r lsp.Runnable) {
	if s.persister == nil {
		s.logger.Warn("no launch configuration writer; ignoring save", zap.String("label", r.Label))
		return
	}
	if err := s.persister.Persist(ctx, r); err != nil {
		s.logger.Error("save launch configuration", zap.String("label", r.Label), zap.Error(err))
		s.notifier.Error(fmt.Sprintf("Failed to save launch configuration: %v", err))
		return
	}
	s.logger.Info("saved launch configuration", zap.String("label", r.Label))
}

func paletteItems(items []Item) []palette.Item {
	out := make([]palette.Item, len(items))
	for i, it := range items {
		out[i] = palette.Item{
			Label:       it.Label,
			Description: it.Description,
			Detail:      it.Detail,
			Picked:      it.Picked,
		}
	}
	return out
}

type nopNotifier struct{}

func (nopNotifier) Error(string) {}
