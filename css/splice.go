package css

import (
	"fmt"
	"slices"
	"strings"
)

type edit struct {
	span Span
	text string
	seq  int
}

// Splicer accumulates text replacements against immutable source and applies
// them in a single pass. Text outside of edited spans is copied unchanged.
type Splicer struct {
	src   string
	edits []edit
}

// NewSplicer creates splicer for src.
func NewSplicer(src string) *Splicer {
	return &Splicer{src: src}
}

// Replace schedules replacement of span with text.
func (s *Splicer) Replace(sp Span, text string) error {
	if sp.Start < 0 || sp.End < sp.Start || sp.End > len(s.src) {
		return fmt.Errorf("span [%d, %d) is out of source bounds [0, %d)", sp.Start, sp.End, len(s.src))
	}
	s.edits = append(s.edits, edit{span: sp, text: text, seq: len(s.edits)})
	return nil
}

// Insert schedules insertion of text at offset. Insertions at the same offset
// keep the order in which they were scheduled.
func (s *Splicer) Insert(at int, text string) error {
	return s.Replace(Span{Start: at, End: at}, text)
}

// Len returns number of scheduled edits.
func (s *Splicer) Len() int {
	return len(s.edits)
}

// Apply produces resulting text. Overlapping edits are an error.
func (s *Splicer) Apply() (string, error) {
	edits := slices.Clone(s.edits)
	slices.SortStableFunc(edits, func(a, b edit) int {
		if a.span.Start != b.span.Start {
			return a.span.Start - b.span.Start
		}
		// insertions go ahead of replacements starting at the same offset
		if a.span.IsEmpty() != b.span.IsEmpty() {
			if a.span.IsEmpty() {
				return -1
			}
			return 1
		}
		return a.seq - b.seq
	})

	var b strings.Builder
	grow := len(s.src)
	for _, e := range edits {
		grow += len(e.text) - e.span.Len()
	}
	b.Grow(max(grow, 0))

	pos := 0
	for _, e := range edits {
		if e.span.Start < pos {
			return "", fmt.Errorf("edit [%d, %d) overlaps previous edit ending at %d", e.span.Start, e.span.End, pos)
		}
		b.WriteString(s.src[pos:e.span.Start])
		b.WriteString(e.text)
		pos = e.span.End
	}
	b.WriteString(s.src[pos:])
	return b.String(), nil
}
