package search

import (
	"strings"
	"unicode"
)

// snippetLength is the approximate snippet size in bytes.
const snippetLength = 240

// buildSnippet extracts a window of the chunk text centered on the
// earliest query-term match. Without a match it falls back to the
// start of the text. Boundaries snap to whitespace and truncated
// sides get an ellipsis.
func buildSnippet(text string, terms []string) string {
	text = strings.TrimSpace(text)
	if len(text) <= snippetLength {
		return text
	}

	anchor := earliestMatch(text, terms)

	start := anchor - snippetLength/2
	if start < 0 {
		start = 0
	}
	end := start + snippetLength
	if end > len(text) {
		end = len(text)
		start = end - snippetLength
	}

	// Snap to whitespace so words are never cut mid-way
	if start > 0 {
		if i := strings.IndexFunc(text[start:end], unicode.IsSpace); i >= 0 {
			start += i + 1
		}
	}
	if end < len(text) {
		if i := strings.LastIndexFunc(text[start:end], unicode.IsSpace); i > 0 {
			end = start + i
		}
	}

	snippet := strings.TrimSpace(text[start:end])
	if start > 0 {
		snippet = "…" + snippet
	}
	if end < len(text) {
		snippet += "…"
	}
	return snippet
}

// earliestMatch returns the byte offset of the first occurrence of any
// query term, or 0 when nothing matches.
func earliestMatch(text string, terms []string) int {
	lower := strings.ToLower(text)

	best := -1
	for _, term := range terms {
		if term == "" {
			continue
		}
		if idx := strings.Index(lower, term); idx >= 0 && (best == -1 || idx < best) {
			best = idx
		}
	}
	if best == -1 {
		return 0
	}
	return best
}
