package lsp

import (
	"strings"
	"unicode/utf8"
)

// CursorPosition converts a one-based line and one-based column, counted in
// characters as editors display them, into an LSP position. Columns past the
// end of the line clamp to the line end; lines past the end clamp to the last
// line.
func CursorPosition(content string, line, column int) Position {
	if line < 1 {
		line = 1
	}
	if column < 1 {
		column = 1
	}

	lines := strings.Split(content, "\n")
	if line > len(lines) {
		line = len(lines)
	}
	text := strings.TrimSuffix(lines[line-1], "\r")

	runes := column - 1
	if n := utf8.RuneCountInString(text); runes > n {
		runes = n
	}

	return Position{Line: line - 1, Character: runeToUTF16Offset(text, runes)}
}

// runeToUTF16Offset converts a rune offset within a line to UTF-16 code units.
func runeToUTF16Offset(s string, runeOff int) int {
	utf16Off := 0
	i := 0
	for _, r := range s {
		if i >= runeOff {
			break
		}
		if r >= 0x10000 {
			utf16Off += 2 // surrogate pair
		} else {
			utf16Off++
		}
		i++
	}
	return utf16Off
}
