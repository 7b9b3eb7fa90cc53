package inject

import (
	"strings"

	"fontinject/css"
	"fontinject/metrics"
)

// fallbackFace is a synthesized @font-face for a system font standing in for
// a web font while it loads.
type fallbackFace struct {
	name      string // "<Family> Fallback: <System>"
	system    string
	overrides metrics.Overrides
}

func fallbackName(family, system string) string {
	return family + " Fallback: " + system
}

func (f fallbackFace) rule() string {
	var b strings.Builder
	b.WriteString("@font-face {\n")
	b.WriteString("  font-family: " + css.QuoteString(f.name) + ";\n")
	b.WriteString("  src: local(" + css.QuoteString(f.system) + ");\n")
	b.WriteString("  size-adjust: " + metrics.Percent(f.overrides.SizeAdjust) + ";\n")
	b.WriteString("  ascent-override: " + metrics.Percent(f.overrides.AscentOverride) + ";\n")
	b.WriteString("  descent-override: " + metrics.Percent(f.overrides.DescentOverride) + ";\n")
	b.WriteString("  line-gap-override: " + metrics.Percent(f.overrides.LineGapOverride) + ";\n")
	b.WriteString("}")
	return b.String()
}

func primaryRule(family string, src Source) string {
	var b strings.Builder
	b.WriteString("@font-face {\n")
	b.WriteString("  font-family: " + quoteSingle(family) + ";\n")
	b.WriteString("  src: url(" + css.QuoteString(src.URL) + ")")
	if src.Format != "" {
		b.WriteString(" format(" + src.Format + ")")
	}
	b.WriteString(";\n")
	b.WriteString("  font-display: swap;\n")
	b.WriteString("}")
	return b.String()
}

func quoteSingle(s string) string {
	if !strings.ContainsAny(s, `'\`) {
		return "'" + s + "'"
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(s) + "'"
}

// assemble joins rules the way they are placed in the output: separated by a
// blank line and followed by a line break.
func assemble(rules []string, atTop bool) string {
	out := strings.Join(rules, "\n\n") + "\n"
	if !atTop {
		out = "\n" + out
	}
	return out
}
