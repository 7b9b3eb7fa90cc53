package css

// FontFamilyDeclaration is a font-family declaration found outside of
// @font-face rules.
type FontFamilyDeclaration struct {
	Rule     *Rule
	Value    Span
	Families []Family
}

// ScanResult is what the scanner learned about the stylesheet.
type ScanResult struct {
	Declarations []FontFamilyDeclaration
	// Excluded holds keys (see FamilyKey) of families already declared by
	// @font-face rules anywhere in the stylesheet.
	Excluded map[string]struct{}
}

// IsExcluded reports whether family is already provided by the stylesheet.
func (s *ScanResult) IsExcluded(name string) bool {
	_, ok := s.Excluded[FamilyKey(name)]
	return ok
}

// Scan collects font-family declarations and local @font-face families.
// Declarations inside @font-face describe the font rather than use it and
// are never reported.
func Scan(sheet *Stylesheet) *ScanResult {
	res := &ScanResult{Excluded: make(map[string]struct{})}

	sheet.Walk(func(r *Rule) bool {
		if !r.IsFontFace() {
			return true
		}
		if d, ok := r.Lookup("font-family"); ok {
			for _, f := range ParseFamilies(sheet.Text(d.Value)) {
				if f.Name != "" {
					res.Excluded[FamilyKey(f.Name)] = struct{}{}
				}
			}
		}
		return false
	})

	sheet.Walk(func(r *Rule) bool {
		if r.IsFontFace() {
			return false
		}
		for _, d := range r.Declarations {
			if d.Property != "font-family" || d.Value.IsEmpty() {
				continue
			}
			res.Declarations = append(res.Declarations, FontFamilyDeclaration{
				Rule:     r,
				Value:    d.Value,
				Families: ParseFamilies(sheet.Text(d.Value)),
			})
		}
		return true
	})
	return res
}

// InsertionPoint returns offset in the source where new top level rules may
// be placed: after byte order mark and any leading @charset, @import and
// statement @layer rules, which must stay ahead of other rules.
func InsertionPoint(sheet *Stylesheet) int {
	at := BOMLen(sheet.Source)
	for _, r := range sheet.Rules {
		if r.Kind != RuleAt || r.HasBlock {
			break
		}
		switch r.Name {
		case "charset", "import", "layer":
			at = r.Span.End
			continue
		}
		break
	}
	return at
}
