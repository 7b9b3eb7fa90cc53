// Package metrics computes fallback font overrides (size-adjust,
// ascent-override, descent-override and line-gap-override) which make a
// locally available system font occupy the same space as a web font.
package metrics

import (
	"context"
	"fmt"
	"math"
	"strconv"
)

// FontMetrics describes vertical metrics and average character width of a
// font, all in font units.
type FontMetrics struct {
	UnitsPerEm float64 `yaml:"units_per_em"`
	Ascent     float64 `yaml:"ascent"`
	Descent    float64 `yaml:"descent"` // negative, below baseline
	LineGap    float64 `yaml:"line_gap"`
	XWidthAvg  float64 `yaml:"x_width_avg"`
}

// Valid reports whether metrics may be used for computations.
func (m FontMetrics) Valid() bool {
	return m.UnitsPerEm > 0 && m.XWidthAvg > 0
}

// Overrides are @font-face descriptor values for a fallback face expressed
// as ratios (1.0 is 100%).
type Overrides struct {
	SizeAdjust      float64
	AscentOverride  float64
	DescentOverride float64
	LineGapOverride float64
}

// Compute returns overrides which scale fallback so that its average
// character width matches font, and line box metrics of font are reproduced
// on the scaled em square.
func Compute(font, fallback FontMetrics) (Overrides, error) {
	if !font.Valid() {
		return Overrides{}, fmt.Errorf("invalid font metrics: %+v", font)
	}
	if !fallback.Valid() {
		return Overrides{}, fmt.Errorf("invalid fallback metrics: %+v", fallback)
	}

	sizeAdjust := (font.XWidthAvg / font.UnitsPerEm) / (fallback.XWidthAvg / fallback.UnitsPerEm)
	em := font.UnitsPerEm * sizeAdjust

	return Overrides{
		SizeAdjust:      sizeAdjust,
		AscentOverride:  font.Ascent / em,
		DescentOverride: math.Abs(font.Descent) / em,
		LineGapOverride: font.LineGap / em,
	}, nil
}

// Percent renders ratio as CSS percentage rounded to 4 decimal places with
// no trailing zeros: 0.92326 -> "92.326%", 0 -> "0%".
func Percent(v float64) string {
	r := math.Round(v*100*10000) / 10000
	if r == 0 {
		// avoid "-0"
		r = 0
	}
	return strconv.FormatFloat(r, 'f', -1, 64) + "%"
}

// Source provides metrics for a font family. Unknown families produce nil
// metrics and nil error.
type Source interface {
	Lookup(ctx context.Context, family string) (*FontMetrics, error)
}

// SourceFunc adapts function to Source.
type SourceFunc func(ctx context.Context, family string) (*FontMetrics, error)

// Lookup implements Source.
func (f SourceFunc) Lookup(ctx context.Context, family string) (*FontMetrics, error) {
	return f(ctx, family)
}
