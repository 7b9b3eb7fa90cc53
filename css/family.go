package css

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tdewolff/parse/v2/css"
	"golang.org/x/text/cases"
)

// Family is a single entry of a font-family list.
type Family struct {
	Raw     string // entry as written, surrounding whitespace removed
	Name    string // family name with quotes and escapes removed
	Quoted  bool
	Generic bool // unquoted generic family or CSS-wide keyword
	Opaque  bool // not a plain name, e.g. var(--font)
	Span    Span // position of Raw within the parsed value
}

// Injectable reports whether entry names a concrete font family.
func (f Family) Injectable() bool {
	return !f.Generic && !f.Opaque && f.Name != ""
}

var genericFamilies = map[string]struct{}{
	"serif":         {},
	"sans-serif":    {},
	"monospace":     {},
	"cursive":       {},
	"fantasy":       {},
	"system-ui":     {},
	"ui-serif":      {},
	"ui-sans-serif": {},
	"ui-monospace":  {},
	"ui-rounded":    {},
	"emoji":         {},
	"math":          {},
	"fangsong":      {},
	// CSS-wide keywords
	"inherit":      {},
	"initial":      {},
	"unset":        {},
	"revert":       {},
	"revert-layer": {},
}

// IsGeneric reports whether unquoted name is a generic family or CSS-wide
// keyword.
func IsGeneric(name string) bool {
	_, ok := genericFamilies[strings.ToLower(name)]
	return ok
}

// FamilyKey returns key for comparing family names. Family names are matched
// case-insensitively.
func FamilyKey(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

// ParseFamilies splits font-family value into entries. Commas inside strings
// and functions do not separate entries, whitespace separated identifiers
// form a single name.
func ParseFamilies(value string) []Family {
	toks, err := tokenize(value)
	if err != nil {
		raw := strings.TrimSpace(value)
		if raw == "" {
			return nil
		}
		return []Family{{Raw: raw, Opaque: true}}
	}

	var (
		families []Family
		depth    int
		from     int
	)
	flush := func(to int) {
		if f, ok := makeFamily(value, toks[from:to]); ok {
			families = append(families, f)
		}
		from = to + 1
	}
	for i, t := range toks {
		switch t.tt {
		case css.FunctionToken, css.LeftParenthesisToken, css.LeftBracketToken, css.LeftBraceToken:
			depth++
		case css.RightParenthesisToken, css.RightBracketToken, css.RightBraceToken:
			depth--
		case css.CommaToken:
			if depth == 0 {
				flush(i)
			}
		}
	}
	flush(len(toks))
	return families
}

func makeFamily(src string, toks []token) (Family, bool) {
	var sig []token
	for _, t := range toks {
		if !insignificant(t.tt) {
			sig = append(sig, t)
		}
	}
	if len(sig) == 0 {
		return Family{}, false
	}

	f := Family{Span: Span{Start: sig[0].span.Start, End: sig[len(sig)-1].span.End}}
	f.Raw = f.Span.Text(src)
	switch {
	case len(sig) == 1 && sig[0].tt == css.StringToken:
		f.Name = unquote(sig[0].span.Text(src))
		f.Quoted = true
	case allIdents(sig):
		words := make([]string, 0, len(sig))
		for _, t := range sig {
			words = append(words, unescape(t.span.Text(src)))
		}
		f.Name = strings.Join(words, " ")
		f.Generic = len(sig) == 1 && IsGeneric(f.Name)
	default:
		f.Opaque = true
	}
	return f, true
}

func allIdents(toks []token) bool {
	for _, t := range toks {
		if t.tt != css.IdentToken {
			return false
		}
	}
	return true
}

// unquote removes surrounding quotes from a CSS string token and resolves
// escapes.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) == 0 {
		return s
	}
	if q := s[0]; q == '"' || q == '\'' {
		s = s[1:]
		if len(s) > 0 && s[len(s)-1] == q && !escapedAt(s, len(s)-1) {
			s = s[:len(s)-1]
		}
	}
	return unescape(s)
}

// escapedAt reports whether byte at i is preceded by an odd number of
// backslashes.
func escapedAt(s string, i int) bool {
	n := 0
	for j := i - 1; j >= 0 && s[j] == '\\'; j-- {
		n++
	}
	return n%2 == 1
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

// unescape resolves CSS escapes: \XXXXXX (1-6 hex digits and an optional
// whitespace), escaped newlines and escaped single characters.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch {
		case isHex(s[i]):
			j := i
			for j < len(s) && j-i < 6 && isHex(s[j]) {
				j++
			}
			code, _ := strconv.ParseUint(s[i:j], 16, 32)
			r := rune(code)
			if r == 0 || r > utf8.MaxRune || (0xD800 <= r && r <= 0xDFFF) {
				r = utf8.RuneError
			}
			b.WriteRune(r)
			if j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\n') {
				j++
			} else if j+1 < len(s) && s[j] == '\r' && s[j+1] == '\n' {
				j += 2
			}
			i = j - 1
		case s[i] == '\n':
			// line continuation
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
