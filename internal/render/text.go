package render

import (
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
)

// Highlight marks every case-insensitive occurrence of term in text.
// Text whose length changes under lowercasing is returned unmarked.
func (s *Style) Highlight(text, term string) string {
	if term == "" || !s.colorized {
		return text
	}
	lowerText := strings.ToLower(text)
	lowerTerm := strings.ToLower(term)
	if len(lowerText) != len(text) || len(lowerTerm) != len(term) {
		return text
	}

	var b strings.Builder
	for {
		i := strings.Index(lowerText, lowerTerm)
		if i < 0 {
			b.WriteString(text)
			return b.String()
		}
		b.WriteString(text[:i])
		b.WriteString(s.Match.Sprint(text[i : i+len(term)]))
		text = text[i+len(term):]
		lowerText = lowerText[i+len(term):]
	}
}

// Truncate shortens s to at most width terminal cells, marking the cut
// with an ellipsis.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}

// Pad right-pads s with spaces to exactly width cells, truncating if needed.
func Pad(s string, width int) string {
	return runewidth.FillRight(Truncate(s, width), width)
}

// Count formats a count with thousands separators.
func Count(n int) string {
	return humanize.Comma(int64(n))
}

// Bytes formats a byte size for humans.
func Bytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}
