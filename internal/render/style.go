// Package render formats intrinsics for terminals: the detail view,
// search-term highlighting, technology colors and column truncation.
package render

import (
	"github.com/fatih/color"
)

// Style holds the terminal attributes used by the text renderers.
type Style struct {
	Heading   *color.Color
	Type      *color.Color
	Param     *color.Color
	Match     *color.Color
	Dim       *color.Color
	colorized bool
}

// NewStyle returns the default style. With colorize false every attribute
// renders as plain text regardless of the terminal.
func NewStyle(colorize bool) *Style {
	s := &Style{
		Heading:   color.New(color.Bold),
		Type:      color.New(color.FgBlue),
		Param:     color.New(color.FgCyan),
		Match:     color.New(color.FgBlack, color.BgYellow),
		Dim:       color.New(color.Faint),
		colorized: colorize,
	}
	for _, c := range []*color.Color{s.Heading, s.Type, s.Param, s.Match, s.Dim} {
		if colorize {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return s
}

// Plain is a style that never emits escape sequences.
func Plain() *Style {
	return NewStyle(false)
}

// Colorized reports whether the style emits escape sequences.
func (s *Style) Colorized() bool {
	return s.colorized
}
