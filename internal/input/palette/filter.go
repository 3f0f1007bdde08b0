package palette

import (
	"sort"
	"strings"
	"unicode"
)

// Match is an item that satisfied a query.
type Match struct {
	// Index is the item's position in the searched slice.
	Index int

	// Score is the match score (higher is better).
	Score int

	// Positions are the byte offsets of matched characters in the label.
	Positions []int
}

// Filter handles quick-pick search with fuzzy matching.
type Filter struct {
	// MinScore is the minimum score for a match to be included.
	MinScore int
}

// NewFilter creates a new filter with default settings.
func NewFilter() *Filter {
	return &Filter{}
}

// Search returns the items matching query, best first. An empty query keeps
// every item in its original order. Ties keep the original order.
func (f *Filter) Search(items []Item, query string) []Match {
	results := make([]Match, 0, len(items))
	if query == "" {
		for i := range items {
			results = append(results, Match{Index: i})
		}
		return results
	}

	query = strings.ToLower(query)
	for i, it := range items {
		score, positions := f.matchItem(query, it)
		if score > f.MinScore {
			results = append(results, Match{Index: i, Score: score, Positions: positions})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}

// matchItem scores an item, preferring label matches.
func (f *Filter) matchItem(query string, it Item) (int, []int) {
	if score, positions := f.fuzzyMatch(query, it.Label); score > 0 {
		return score + 50, positions
	}
	if score, _ := f.fuzzyMatch(query, it.Description); score > 0 {
		return score, nil
	}
	if score, _ := f.fuzzyMatch(query, it.Detail); score > 0 {
		return score, nil
	}
	return 0, nil
}

// fuzzyMatch performs subsequence matching and returns score and match offsets.
func (f *Filter) fuzzyMatch(query, text string) (int, []int) {
	if text == "" {
		return 0, nil
	}

	textLower := strings.ToLower(text)
	positions := make([]int, 0, len(query))
	queryIdx := 0

	for i := 0; i < len(textLower) && queryIdx < len(query); i++ {
		if textLower[i] == query[queryIdx] {
			positions = append(positions, i)
			queryIdx++
		}
	}

	if queryIdx != len(query) {
		return 0, nil
	}

	return f.calculateScore(query, text, textLower, positions), positions
}

// calculateScore rewards consecutive, boundary and prefix matches.
func (f *Filter) calculateScore(query, text, textLower string, positions []int) int {
	score := 100

	for i := 1; i < len(positions); i++ {
		if positions[i] == positions[i-1]+1 {
			score += 20
		}
	}

	for _, idx := range positions {
		if isWordBoundary(text, idx) {
			score += 15
		}
	}

	if positions[0] == 0 {
		score += 25
	} else {
		score -= positions[0]
	}

	if len(positions) > 1 {
		if gap := positions[len(positions)-1] - positions[0] - len(positions) + 1; gap > 0 {
			score -= gap * 2
		}
	}

	if len(text) < 20 {
		score += 20 - len(text)
	}

	if strings.HasPrefix(textLower, query) {
		score += 50
	}

	if score < 1 {
		score = 1
	}
	return score
}

// isWordBoundary checks if the character at idx starts a word. Runnable labels
// use "::" paths and snake_case, so both count as separators.
func isWordBoundary(text string, idx int) bool {
	if idx == 0 {
		return true
	}
	if idx >= len(text) {
		return false
	}

	prev := rune(text[idx-1])
	curr := rune(text[idx])

	switch prev {
	case '/', '_', '-', '.', ' ', ':':
		return true
	}
	return unicode.IsLower(prev) && unicode.IsUpper(curr)
}
