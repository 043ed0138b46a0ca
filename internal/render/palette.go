package render

import (
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/FocuswithJustin/IntrinsicsGuide/core/intrinsics"
)

const (
	// firstHue is where the technology color wheel starts (yellow).
	firstHue = 59.0
	lastHue  = 359.0

	// fallbackColor is used for labels past the AVX-512 chain.
	fallbackColor = "#c0c0c0"
)

// Palette assigns each technology label a color. Labels are spread evenly
// over the hue wheel from MMX up to the start of the AVX-512 chain; later
// labels share a neutral grey.
type Palette map[string]string

// NewPalette builds a palette for labels given in presentation order.
func NewPalette(labels []string) Palette {
	p := make(Palette, len(labels))
	if len(labels) == 0 {
		return p
	}

	stop := len(labels) - 1
	for n, label := range labels {
		if strings.HasPrefix(label, "AVX-512") {
			stop = n
			break
		}
	}

	step := 0.0
	if stop > 0 {
		step = (lastHue - firstHue) / float64(stop)
	}
	for n := 0; n <= stop; n++ {
		p[labels[n]] = colorful.Hsv(firstHue+step*float64(n), 1, 1).Hex()
	}
	return p
}

// PaletteFor builds a palette over a snapshot's technology labels.
func PaletteFor(res *intrinsics.ParseResult) Palette {
	labels := make([]string, 0, len(res.Technologies))
	for _, t := range res.Technologies {
		labels = append(labels, t.Family)
	}
	return NewPalette(labels)
}

// Color returns the hex color for label.
func (p Palette) Color(label string) string {
	if c, ok := p[label]; ok {
		return c
	}
	return fallbackColor
}

// Tint blends the label color toward white; strength 1 is the full color
// and 0 is white.
func (p Palette) Tint(label string, strength float64) string {
	c, err := colorful.Hex(p.Color(label))
	if err != nil {
		return fallbackColor
	}
	white := colorful.Color{R: 1, G: 1, B: 1}
	return white.BlendRgb(c, clamp(strength)).Hex()
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
