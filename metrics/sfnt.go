package metrics

import (
	"fmt"

	"golang.org/x/image/font"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

// English letter frequencies (percent) used to weight glyph advances when
// computing average character width. Space is weighted as roughly one
// character in six of running text.
var charWeights = []struct {
	r rune
	w float64
}{
	{'a', 8.167}, {'b', 1.492}, {'c', 2.782}, {'d', 4.253}, {'e', 12.702},
	{'f', 2.228}, {'g', 2.015}, {'h', 6.094}, {'i', 6.966}, {'j', 0.153},
	{'k', 0.772}, {'l', 4.025}, {'m', 2.406}, {'n', 6.749}, {'o', 7.507},
	{'p', 1.929}, {'q', 0.095}, {'r', 5.987}, {'s', 6.327}, {'t', 9.056},
	{'u', 2.758}, {'v', 0.978}, {'w', 2.360}, {'x', 0.150}, {'y', 1.974},
	{'z', 0.074}, {' ', 20.0},
}

func fromFixed(x fixed.Int26_6) float64 {
	return float64(x) / 64.0
}

// FromFont reads metrics from TrueType or OpenType font data. WOFF and WOFF2
// containers are not supported.
func FromFont(data []byte) (*FontMetrics, error) {
	f, err := sfnt.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("unable to parse font: %w", err)
	}

	var buf sfnt.Buffer

	upem := f.UnitsPerEm()
	if upem == 0 {
		return nil, fmt.Errorf("font has zero units per em")
	}
	// with ppem equal to units per em all values come back in font units
	ppem := fixed.I(int(upem))

	m, err := f.Metrics(&buf, ppem, font.HintingNone)
	if err != nil {
		return nil, fmt.Errorf("unable to read font metrics: %w", err)
	}

	var sum, total float64
	for _, cw := range charWeights {
		idx, err := f.GlyphIndex(&buf, cw.r)
		if err != nil || idx == 0 {
			continue
		}
		adv, err := f.GlyphAdvance(&buf, idx, ppem, font.HintingNone)
		if err != nil {
			continue
		}
		sum += fromFixed(adv) * cw.w
		total += cw.w
	}
	if total == 0 {
		return nil, fmt.Errorf("font has no glyphs for latin lowercase letters")
	}

	return &FontMetrics{
		UnitsPerEm: float64(upem),
		Ascent:     fromFixed(m.Ascent),
		Descent:    -fromFixed(m.Descent),
		LineGap:    fromFixed(m.Height - m.Ascent - m.Descent),
		XWidthAvg:  sum / total,
	}, nil
}

// FamilyName returns family name recorded in font data.
func FamilyName(data []byte) (string, error) {
	f, err := sfnt.Parse(data)
	if err != nil {
		return "", fmt.Errorf("unable to parse font: %w", err)
	}
	var buf sfnt.Buffer
	name, err := f.Name(&buf, sfnt.NameIDTypographicFamily)
	if err != nil || name == "" {
		name, err = f.Name(&buf, sfnt.NameIDFamily)
	}
	if err != nil {
		return "", fmt.Errorf("unable to read family name: %w", err)
	}
	return name, nil
}
