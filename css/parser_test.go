package css_test

import (
	"errors"
	"testing"

	"go.uber.org/zap"

	"fontinject/css"
)

func mustParse(t *testing.T, src string) *css.Stylesheet {
	t.Helper()
	sheet, err := css.NewParser(zap.NewNop()).Parse(src)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return sheet
}

func TestParser_SimpleRule(t *testing.T) {
	src := `:root { font-family: 'CustomFont' }`
	sheet := mustParse(t, src)

	if len(sheet.Rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(sheet.Rules))
	}
	r := sheet.Rules[0]
	if r.Kind != css.RuleQualified {
		t.Errorf("expected qualified rule, got %v", r.Kind)
	}
	if r.Name != ":root" {
		t.Errorf("expected selector ':root', got '%s'", r.Name)
	}
	if r.Span.Start != 0 || r.Span.End != len(src) {
		t.Errorf("rule span = %+v, want [0, %d)", r.Span, len(src))
	}
	if got := sheet.Text(r.Block); got != ` font-family: 'CustomFont' ` {
		t.Errorf("block text = %q", got)
	}

	d, ok := r.Lookup("font-family")
	if !ok {
		t.Fatal("expected font-family declaration")
	}
	if got := sheet.Text(d.Value); got != `'CustomFont'` {
		t.Errorf("value = %q, want %q", got, `'CustomFont'`)
	}
	if got := sheet.Text(d.Name); got != "font-family" {
		t.Errorf("name = %q", got)
	}
}

func TestParser_ValueSpans(t *testing.T) {
	tests := []struct {
		name      string
		src       string
		value     string
		important bool
	}{
		{"no space no semicolon", `a{font-family:Open Sans}`, `Open Sans`, false},
		{"trailing space", `a { font-family: Open Sans, sans-serif }`, `Open Sans, sans-serif`, false},
		{"semicolon", `a { font-family: "A";color:red }`, `"A"`, false},
		{"important", `a { font-family: 'A', serif !important; }`, `'A', serif`, true},
		{"important no space", `a { font-family: 'A'!IMPORTANT }`, `'A'`, true},
		{"comments around", `a { font-family: /* x */ 'A' /* y */; }`, `'A'`, false},
		{"uppercase property", `a { FONT-FAMILY: Foo }`, `Foo`, false},
		{"multiline", "a {\n  font-family:\n    Foo,\n    serif;\n}", "Foo,\n    serif", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sheet := mustParse(t, tt.src)
			d, ok := sheet.Rules[0].Lookup("font-family")
			if !ok {
				t.Fatal("expected font-family declaration")
			}
			if got := sheet.Text(d.Value); got != tt.value {
				t.Errorf("value = %q, want %q", got, tt.value)
			}
			if d.Important != tt.important {
				t.Errorf("important = %v, want %v", d.Important, tt.important)
			}
		})
	}
}

func TestParser_AtRules(t *testing.T) {
	src := `@charset "utf-8";
@import url("base.css") screen;
@font-face { font-family: 'ScopedFont'; src: local("ScopedFont") }
@media (min-width: 600px) {
  .a { font-family: Foo }
  @supports (display: grid) {
    .b { font-family: Bar }
  }
}
@layer base;
`
	sheet := mustParse(t, src)
	if len(sheet.Rules) != 5 {
		t.Fatalf("expected 5 top level rules, got %d", len(sheet.Rules))
	}

	names := []string{"charset", "import", "font-face", "media", "layer"}
	for i, want := range names {
		if got := sheet.Rules[i].Name; got != want {
			t.Errorf("rule %d name = %q, want %q", i, got, want)
		}
	}

	if sheet.Rules[0].HasBlock || sheet.Rules[1].HasBlock || sheet.Rules[4].HasBlock {
		t.Error("statement at-rules must not have blocks")
	}
	if got := sheet.Text(sheet.Rules[1].Prelude); got != `url("base.css") screen` {
		t.Errorf("import prelude = %q", got)
	}
	if !sheet.Rules[2].IsFontFace() {
		t.Error("expected @font-face")
	}

	media := sheet.Rules[3]
	if got := sheet.Text(media.Prelude); got != `(min-width: 600px)` {
		t.Errorf("media prelude = %q", got)
	}
	if len(media.Rules) != 2 {
		t.Fatalf("expected 2 nested rules in @media, got %d", len(media.Rules))
	}
	supports := media.Rules[1]
	if !supports.IsAt("supports") || len(supports.Rules) != 1 {
		t.Fatalf("unexpected @supports rule: %+v", supports)
	}
	inner := supports.Rules[0]
	if inner.Name != ".b" || inner.Parent != supports || supports.Parent != media {
		t.Errorf("unexpected nesting for %q", inner.Name)
	}
}

func TestParser_Nesting(t *testing.T) {
	src := `.card { color: red; &:hover { font-family: Foo } .title { font-family: Bar; } a:hover { x: y } }`
	sheet := mustParse(t, src)
	card := sheet.Rules[0]
	if len(card.Declarations) != 1 || card.Declarations[0].Property != "color" {
		t.Fatalf("unexpected declarations: %+v", card.Declarations)
	}
	if len(card.Rules) != 3 {
		t.Fatalf("expected 3 nested rules, got %d", len(card.Rules))
	}
	want := []string{"&:hover", ".title", "a:hover"}
	for i, w := range want {
		if card.Rules[i].Name != w {
			t.Errorf("nested rule %d = %q, want %q", i, card.Rules[i].Name, w)
		}
	}
}

func TestParser_CustomPropertyWithBraces(t *testing.T) {
	sheet := mustParse(t, `a { --x: { b: c }; font-family: Foo }`)
	r := sheet.Rules[0]
	if len(r.Rules) != 0 {
		t.Fatalf("custom property must not produce nested rules, got %d", len(r.Rules))
	}
	if len(r.Declarations) != 2 {
		t.Fatalf("expected 2 declarations, got %d", len(r.Declarations))
	}
	if got := sheet.Text(r.Declarations[0].Value); got != `{ b: c }` {
		t.Errorf("custom property value = %q", got)
	}
}

func TestParser_InvalidDeclarationsDropped(t *testing.T) {
	sheet := mustParse(t, `a { *zoom: 1; : x; font-family: Foo; junk }`)
	r := sheet.Rules[0]
	if len(r.Declarations) != 1 || r.Declarations[0].Property != "font-family" {
		t.Errorf("unexpected declarations: %+v", r.Declarations)
	}
}

func TestParser_Walk(t *testing.T) {
	sheet := mustParse(t, `@font-face { font-family: X } @media print { a { b: c } } d { e: f }`)
	var visited []string
	sheet.Walk(func(r *css.Rule) bool {
		visited = append(visited, r.Name)
		return !r.IsAt("media")
	})
	want := []string{"font-face", "media", "d"}
	if len(visited) != len(want) {
		t.Fatalf("visited = %v, want %v", visited, want)
	}
	for i := range want {
		if visited[i] != want[i] {
			t.Errorf("visited[%d] = %q, want %q", i, visited[i], want[i])
		}
	}
}

func TestParser_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line int
	}{
		{"unclosed block", `a { font-family: Foo`, 1},
		{"stray brace", "a { b: c }\n}", 2},
		{"unbalanced paren", `a { b: calc(1px + 2px }`, 1},
		{"mismatched bracket", `a[href) { b: c }`, 1},
		{"missing block", `a { b: c } d`, 1},
		{"unterminated string", "a { font-family: 'Foo\n; }", 1},
		{"nested unclosed", "@media print {\n  a { b: c }\n", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := css.NewParser(nil).Parse(tt.src)
			if err == nil {
				t.Fatal("expected parse error")
			}
			var pe *css.ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *css.ParseError, got %T", err)
			}
			if pe.Line != tt.line {
				t.Errorf("line = %d, want %d (%v)", pe.Line, tt.line, err)
			}
		})
	}
}

func TestParser_ByteOrderMark(t *testing.T) {
	src := "\uFEFFa { font-family: Foo }"
	sheet := mustParse(t, src)
	if len(sheet.Rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(sheet.Rules))
	}
	r := sheet.Rules[0]
	if r.Name != "a" || r.Span.Start != len("\uFEFF") {
		t.Errorf("rule %q starts at %d", r.Name, r.Span.Start)
	}
	if css.BOMLen(src) != 3 || css.BOMLen("a{}") != 0 {
		t.Error("unexpected BOMLen()")
	}
}

func TestParser_EmptyInput(t *testing.T) {
	for _, src := range []string{"", "   \n", "/* only comment */", "<!-- -->"} {
		sheet := mustParse(t, src)
		if len(sheet.Rules) != 0 {
			t.Errorf("%q: expected no rules, got %d", src, len(sheet.Rules))
		}
	}
}
