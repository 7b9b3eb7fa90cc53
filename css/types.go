package css

import (
	"fmt"
	"strings"
)

// Span is a half-open byte range [Start, End) in the source text.
type Span struct {
	Start int
	End   int
}

// Len returns span length in bytes.
func (s Span) Len() int {
	return s.End - s.Start
}

// IsEmpty reports whether span covers no bytes.
func (s Span) IsEmpty() bool {
	return s.End <= s.Start
}

// Text returns the part of src covered by the span.
func (s Span) Text(src string) string {
	return src[s.Start:s.End]
}

// RuleKind distinguishes qualified rules (selector + block) from at-rules.
type RuleKind int

const (
	RuleQualified RuleKind = iota // selector { ... }
	RuleAt                        // @name prelude { ... } or @name prelude;
)

// Declaration is a single "property: value" pair inside a block.
type Declaration struct {
	Property  string // lowercased property name
	Name      Span   // property name as written
	Value     Span   // value without surrounding whitespace and !important
	Important bool
	Span      Span // whole declaration, terminating ';' not included
}

// Rule is a node of the stylesheet tree. Qualified rules have Name set to the
// trimmed selector text, at-rules to the lowercased at-keyword without '@'.
type Rule struct {
	Kind     RuleKind
	Name     string
	Prelude  Span
	Block    Span // content between braces, empty for statement at-rules
	HasBlock bool
	Span     Span // from the first token of the rule to its closing brace or ';'

	Declarations []Declaration
	Rules        []*Rule
	Parent       *Rule
}

// IsAt reports whether the rule is an at-rule with the given name.
func (r *Rule) IsAt(name string) bool {
	return r.Kind == RuleAt && r.Name == name
}

// IsFontFace reports whether the rule is an @font-face rule.
func (r *Rule) IsFontFace() bool {
	return r.IsAt("font-face")
}

// Lookup returns the last declaration of the property (CSS cascade order
// within one block), lowercased property name is expected.
func (r *Rule) Lookup(property string) (Declaration, bool) {
	for i := len(r.Declarations) - 1; i >= 0; i-- {
		if r.Declarations[i].Property == property {
			return r.Declarations[i], true
		}
	}
	return Declaration{}, false
}

// Stylesheet is a parsed CSS source. Source is never modified, all spans in
// the tree point into it.
type Stylesheet struct {
	Source string
	Rules  []*Rule
}

// Walk visits rules depth first in source order. Children of a rule are
// skipped when fn returns false for it.
func (s *Stylesheet) Walk(fn func(r *Rule) bool) {
	var walk func(rules []*Rule)
	walk = func(rules []*Rule) {
		for _, r := range rules {
			if fn(r) {
				walk(r.Rules)
			}
		}
	}
	walk(s.Rules)
}

// Text returns source text covered by span.
func (s *Stylesheet) Text(sp Span) string {
	return sp.Text(s.Source)
}

const byteOrderMark = "\uFEFF"

// BOMLen returns length of UTF-8 byte order mark src starts with, 0 if there
// is none.
func BOMLen(src string) int {
	if strings.HasPrefix(src, byteOrderMark) {
		return len(byteOrderMark)
	}
	return 0
}

// ParseError describes malformed CSS input.
type ParseError struct {
	Offset int
	Line   int // 1-based
	Column int // 1-based, in bytes
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("css: %s at line %d, column %d", e.Msg, e.Line, e.Column)
}

func newParseError(src string, offset int, format string, args ...any) *ParseError {
	offset = min(max(offset, 0), len(src))
	line := strings.Count(src[:offset], "\n") + 1
	col := offset - strings.LastIndexByte(src[:offset], '\n')
	return &ParseError{
		Offset: offset,
		Line:   line,
		Column: col,
		Msg:    fmt.Sprintf(format, args...),
	}
}

// QuoteString returns s as a double quoted CSS string.
func QuoteString(s string) string {
	return `"` + cssEscapeDoubleQuoted(s) + `"`
}

// cssEscapeDoubleQuoted escapes a string for use inside CSS double quotes.
// Backslashes and double quotes are escaped per CSS syntax: \" and \\.
func cssEscapeDoubleQuoted(s string) string {
	if !strings.ContainsAny(s, `"\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
