package menu

import "strings"

// DefaultPreviewChars is the first-line budget used by hosts that show a selection preview.
const DefaultPreviewChars = 140

// Preview renders a compact "Selected:" preview of text: its first line, cut at maxChars
// runes with an ellipsis, followed by an ellipsis line when more lines exist.
func Preview(text string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultPreviewChars
	}

	firstLine, multiline := text, false
	if i := strings.IndexAny(text, "\r\n"); i >= 0 {
		firstLine, multiline = text[:i], true
	}

	head := firstLine
	if r := []rune(firstLine); len(r) > maxChars {
		head = string(r[:maxChars]) + "…"
	}

	more := ""
	if multiline {
		more = "\n…"
	}
	return "Selected:\n" + head + more
}
