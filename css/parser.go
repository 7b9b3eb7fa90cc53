package css

import (
	"errors"
	"io"
	"strings"

	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
	"go.uber.org/zap"
)

// Parser turns CSS text into a Stylesheet tree with source spans. It does not
// interpret values, it only records where things are.
type Parser struct {
	log *zap.Logger
}

// NewParser creates a new CSS parser.
func NewParser(log *zap.Logger) *Parser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{log: log.Named("css-parser")}
}

type token struct {
	tt   css.TokenType
	span Span
}

// Parse parses CSS text into a Stylesheet.
// The optional source parameter identifies what's being parsed (for debug logging).
func (p *Parser) Parse(src string, source ...string) (*Stylesheet, error) {
	log := p.log
	if len(source) > 0 && source[0] != "" {
		log = log.With(zap.String("source", source[0]))
	}
	log.Debug("Parsing CSS", zap.Int("bytes", len(src)))

	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}

	st := &state{src: src, toks: toks, log: log}
	rules, err := st.parseRuleList()
	if err != nil {
		log.Debug("CSS parse error", zap.Error(err))
		return nil, err
	}
	return &Stylesheet{Source: src, Rules: rules}, nil
}

// tokenize runs tdewolff lexer over src. The lexer is lossless, so token
// offsets are obtained by accumulating token lengths.
func tokenize(src string) ([]token, error) {
	// byte order mark is not part of the stylesheet
	pos := BOMLen(src)
	l := css.NewLexer(parse.NewInputString(src[pos:]))

	toks := make([]token, 0, len(src)/4+1)
	for {
		tt, data := l.Next()
		if tt == css.ErrorToken {
			if err := l.Err(); err != nil && !errors.Is(err, io.EOF) {
				return nil, newParseError(src, pos, "%v", err)
			}
			break
		}
		end := pos + len(data)
		switch tt {
		case css.BadStringToken:
			return nil, newParseError(src, pos, "unterminated string")
		case css.BadURLToken:
			return nil, newParseError(src, pos, "malformed url()")
		}
		toks = append(toks, token{tt: tt, span: Span{Start: pos, End: end}})
		pos = end
	}
	if pos != len(src) {
		return nil, newParseError(src, pos, "unexpected character")
	}
	return toks, nil
}

// state is a single parsing run.
type state struct {
	src  string
	toks []token
	pos  int
	log  *zap.Logger
}

func (st *state) text(t token) string {
	return t.span.Text(st.src)
}

func (st *state) errorAt(t token, format string, args ...any) error {
	return newParseError(st.src, t.span.Start, format, args...)
}

func (st *state) errorAtEOF(format string, args ...any) error {
	return newParseError(st.src, len(st.src), format, args...)
}

func insignificant(tt css.TokenType) bool {
	return tt == css.WhitespaceToken || tt == css.CommentToken
}

// parseRuleList parses top level of the stylesheet.
func (st *state) parseRuleList() ([]*Rule, error) {
	var rules []*Rule
	for st.pos < len(st.toks) {
		t := st.toks[st.pos]
		switch t.tt {
		case css.WhitespaceToken, css.CommentToken, css.CDOToken, css.CDCToken, css.SemicolonToken:
			st.pos++
		case css.RightBraceToken:
			return nil, st.errorAt(t, "unexpected '}'")
		case css.AtKeywordToken:
			r, err := st.parseAtRule(nil)
			if err != nil {
				return nil, err
			}
			rules = append(rules, r)
		default:
			r, err := st.parseQualifiedRule(nil)
			if err != nil {
				return nil, err
			}
			rules = append(rules, r)
		}
	}
	return rules, nil
}

type stopSet uint8

const (
	stopSemicolon stopSet = 1 << iota
	stopLeftBrace
	stopRightBrace
)

// scan advances from st.pos looking for a token at nesting depth 0 which is in
// stops. It returns the index of that token or len(st.toks) on EOF. Blocks and
// functions met on the way must be balanced.
func (st *state) scan(from int, stops stopSet) (int, error) {
	var closers []css.TokenType
	for i := from; i < len(st.toks); i++ {
		t := st.toks[i]
		if len(closers) == 0 {
			switch {
			case t.tt == css.SemicolonToken && stops&stopSemicolon != 0,
				t.tt == css.LeftBraceToken && stops&stopLeftBrace != 0,
				t.tt == css.RightBraceToken && stops&stopRightBrace != 0:
				return i, nil
			}
		}
		switch t.tt {
		case css.FunctionToken, css.LeftParenthesisToken:
			closers = append(closers, css.RightParenthesisToken)
		case css.LeftBracketToken:
			closers = append(closers, css.RightBracketToken)
		case css.LeftBraceToken:
			closers = append(closers, css.RightBraceToken)
		case css.RightParenthesisToken, css.RightBracketToken, css.RightBraceToken:
			if len(closers) == 0 || closers[len(closers)-1] != t.tt {
				return 0, st.errorAt(t, "unexpected '%s'", st.text(t))
			}
			closers = closers[:len(closers)-1]
		}
	}
	if len(closers) != 0 {
		return 0, st.errorAtEOF("unexpected end of input, missing '%s'", closerText(closers[len(closers)-1]))
	}
	return len(st.toks), nil
}

func closerText(tt css.TokenType) string {
	switch tt {
	case css.RightParenthesisToken:
		return ")"
	case css.RightBracketToken:
		return "]"
	default:
		return "}"
	}
}

// trim returns span of tokens [from, to) without leading and trailing
// whitespace and comments. Empty span is positioned at the end of the range.
func (st *state) trim(from, to int) Span {
	for from < to && insignificant(st.toks[from].tt) {
		from++
	}
	for to > from && insignificant(st.toks[to-1].tt) {
		to--
	}
	if from == to {
		if from < len(st.toks) {
			return Span{Start: st.toks[from].span.Start, End: st.toks[from].span.Start}
		}
		return Span{Start: len(st.src), End: len(st.src)}
	}
	return Span{Start: st.toks[from].span.Start, End: st.toks[to-1].span.End}
}

func (st *state) parseAtRule(parent *Rule) (*Rule, error) {
	kw := st.toks[st.pos]
	r := &Rule{
		Kind:   RuleAt,
		Name:   strings.ToLower(strings.TrimPrefix(st.text(kw), "@")),
		Parent: parent,
		Span:   Span{Start: kw.span.Start},
	}
	st.pos++

	end, err := st.scan(st.pos, stopSemicolon|stopLeftBrace|stopRightBrace)
	if err != nil {
		return nil, err
	}
	r.Prelude = st.trim(st.pos, end)
	st.pos = end

	if end == len(st.toks) {
		// statement at-rule terminated by EOF
		r.Span.End = len(st.src)
		return r, nil
	}
	switch t := st.toks[end]; t.tt {
	case css.SemicolonToken:
		r.Span.End = t.span.End
		st.pos++
		return r, nil
	case css.RightBraceToken:
		// statement at-rule closed by enclosing block, '}' belongs to the parent
		r.Span.End = r.Prelude.End
		return r, nil
	}

	if err := st.parseBlock(r); err != nil {
		return nil, err
	}
	return r, nil
}

func (st *state) parseQualifiedRule(parent *Rule) (*Rule, error) {
	start := st.toks[st.pos]
	end, err := st.scan(st.pos, stopLeftBrace|stopRightBrace|stopSemicolon)
	if err != nil {
		return nil, err
	}
	if end == len(st.toks) {
		return nil, st.errorAtEOF("unexpected end of input, missing '{'")
	}
	if t := st.toks[end]; t.tt != css.LeftBraceToken {
		return nil, st.errorAt(t, "unexpected '%s', missing '{'", st.text(t))
	}

	r := &Rule{
		Kind:    RuleQualified,
		Prelude: st.trim(st.pos, end),
		Parent:  parent,
		Span:    Span{Start: start.span.Start},
	}
	r.Name = r.Prelude.Text(st.src)
	st.pos = end

	if err := st.parseBlock(r); err != nil {
		return nil, err
	}
	return r, nil
}

// parseBlock parses a {}-block starting at st.pos (which must point to '{')
// into declarations and nested rules of r.
func (st *state) parseBlock(r *Rule) error {
	open := st.toks[st.pos]
	r.HasBlock = true
	r.Block.Start = open.span.End
	st.pos++

	for st.pos < len(st.toks) {
		t := st.toks[st.pos]
		switch t.tt {
		case css.WhitespaceToken, css.CommentToken, css.SemicolonToken:
			st.pos++
			continue
		case css.RightBraceToken:
			r.Block.End = t.span.Start
			r.Span.End = t.span.End
			st.pos++
			return nil
		case css.AtKeywordToken:
			nested, err := st.parseAtRule(r)
			if err != nil {
				return err
			}
			r.Rules = append(r.Rules, nested)
			continue
		}

		if st.isCustomProperty(st.pos) {
			end, err := st.scan(st.pos, stopSemicolon|stopRightBrace)
			if err != nil {
				return err
			}
			st.addDeclaration(r, st.pos, end)
			st.pos = end
			continue
		}

		end, err := st.scan(st.pos, stopSemicolon|stopLeftBrace|stopRightBrace)
		if err != nil {
			return err
		}
		if end < len(st.toks) && st.toks[end].tt == css.LeftBraceToken {
			nested, err := st.parseQualifiedRule(r)
			if err != nil {
				return err
			}
			r.Rules = append(r.Rules, nested)
			continue
		}
		st.addDeclaration(r, st.pos, end)
		st.pos = end
	}
	return newParseError(st.src, r.Span.Start, "unclosed block")
}

func (st *state) isCustomProperty(i int) bool {
	t := st.toks[i]
	if t.tt != css.CustomPropertyNameToken && (t.tt != css.IdentToken || !strings.HasPrefix(st.text(t), "--")) {
		return false
	}
	for i++; i < len(st.toks) && insignificant(st.toks[i].tt); i++ {
	}
	return i < len(st.toks) && st.toks[i].tt == css.ColonToken
}

// addDeclaration records declaration found in tokens [from, to). Anything not
// shaped as "ident : value" is dropped the way browsers drop it.
func (st *state) addDeclaration(r *Rule, from, to int) {
	i := from
	for i < to && insignificant(st.toks[i].tt) {
		i++
	}
	if i == to {
		return
	}
	name := st.toks[i]
	if name.tt != css.IdentToken && name.tt != css.CustomPropertyNameToken {
		st.log.Debug("Skipping invalid declaration", zap.String("text", st.trim(from, to).Text(st.src)))
		return
	}
	for i++; i < to && insignificant(st.toks[i].tt); i++ {
	}
	if i == to || st.toks[i].tt != css.ColonToken {
		st.log.Debug("Skipping invalid declaration", zap.String("text", st.trim(from, to).Text(st.src)))
		return
	}
	i++

	d := Declaration{
		Property: strings.ToLower(st.text(name)),
		Name:     name.span,
		Span:     Span{Start: name.span.Start, End: st.trim(from, to).End},
	}

	// strip trailing !important
	valueEnd := to
	for valueEnd > i && insignificant(st.toks[valueEnd-1].tt) {
		valueEnd--
	}
	if valueEnd > i && st.toks[valueEnd-1].tt == css.IdentToken && strings.EqualFold(st.text(st.toks[valueEnd-1]), "important") {
		bang := valueEnd - 2
		for bang >= i && insignificant(st.toks[bang].tt) {
			bang--
		}
		if bang >= i && st.toks[bang].tt == css.DelimToken && st.text(st.toks[bang]) == "!" {
			d.Important = true
			valueEnd = bang
		}
	}
	d.Value = st.trim(i, valueEnd)
	r.Declarations = append(r.Declarations, d)
}
