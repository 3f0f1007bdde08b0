package palette

// Model is the UI-independent state of a quick-pick: the query, the items
// that match it and the highlighted row.
type Model struct {
	items   []Item
	filter  *Filter
	query   []rune
	matches []Match
	cursor  int
}

// NewModel creates a model over items with the first picked item active.
func NewModel(items []Item) *Model {
	m := &Model{
		items:  items,
		filter: NewFilter(),
	}
	m.matches = m.filter.Search(items, "")
	m.cursor = initialActive(items)
	if m.cursor >= len(m.matches) {
		m.cursor = 0
	}
	return m
}

// Items returns the items the model was created with.
func (m *Model) Items() []Item {
	return m.items
}

// Query returns the current filter text.
func (m *Model) Query() string {
	return string(m.query)
}

// Matches returns the visible items in display order.
func (m *Model) Matches() []Match {
	return m.matches
}

// Cursor returns the highlighted row within Matches, or -1 when empty.
func (m *Model) Cursor() int {
	if len(m.matches) == 0 {
		return -1
	}
	return m.cursor
}

// Active returns the index into Items of the highlighted item, or -1.
func (m *Model) Active() int {
	if len(m.matches) == 0 {
		return -1
	}
	return m.matches[m.cursor].Index
}

// SetQuery replaces the filter text and highlights the best match. It
// reports whether the active item changed.
func (m *Model) SetQuery(q string) bool {
	before := m.Active()
	m.query = []rune(q)
	m.matches = m.filter.Search(m.items, q)
	m.cursor = 0
	return m.Active() != before
}

// InsertRune appends r to the query.
func (m *Model) InsertRune(r rune) bool {
	return m.SetQuery(string(append(m.query, r)))
}

// DeleteRune removes the last rune of the query.
func (m *Model) DeleteRune() bool {
	if len(m.query) == 0 {
		return false
	}
	return m.SetQuery(string(m.query[:len(m.query)-1]))
}

// Move shifts the highlight by delta rows, clamped to the list. It reports
// whether the active item changed.
func (m *Model) Move(delta int) bool {
	if len(m.matches) == 0 {
		return false
	}
	next := m.cursor + delta
	if next < 0 {
		next = 0
	}
	if next >= len(m.matches) {
		next = len(m.matches) - 1
	}
	if next == m.cursor {
		return false
	}
	m.cursor = next
	return true
}

// Select highlights the item at index i of Items if it is visible.
func (m *Model) Select(i int) bool {
	for row, match := range m.matches {
		if match.Index == i {
			if row == m.cursor {
				return false
			}
			m.cursor = row
			return true
		}
	}
	return false
}
