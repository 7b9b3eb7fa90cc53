// Package inject rewrites stylesheets so that every font family which can be
// served locally gets its @font-face rule and metric adjusted system font
// fallbacks, reducing layout shift while web fonts load.
package inject

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fontinject/css"
)

// Injector performs stylesheet transformations. It keeps no state between
// Transform calls and may be used concurrently.
type Injector struct {
	opts   Options
	parser *css.Parser
	log    *zap.Logger
}

// New creates Injector.
func New(opts Options, log *zap.Logger) (*Injector, error) {
	if opts.Resolver == nil {
		return nil, errors.New("font resolver is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Injector{
		opts:   opts,
		parser: css.NewParser(log),
		log:    log.Named("inject"),
	}, nil
}

// resolution is the per run outcome of resolving one family.
type resolution struct {
	family string
	opts   ResolveOptions

	done      bool
	src       *Source // nil when family cannot be served
	fallbacks []fallbackFace
}

func (r *resolution) injected() bool {
	return r.src != nil
}

// declState tracks which entry of a declaration is being considered as the
// family the declaration is built around.
type declState struct {
	decl    *css.FontFamilyDeclaration
	cursor  int
	done    bool
	primary *resolution
}

// run holds state of a single Transform call.
type run struct {
	in    *Injector
	scan  *css.ScanResult
	cache map[string]*resolution
	log   *zap.Logger
}

// Transform rewrites code. It returns nil result (and nil error) when nothing
// had to be injected, in which case caller should keep the original.
// The optional source parameter identifies what's being transformed (for
// logging).
func (in *Injector) Transform(ctx context.Context, code string, source ...string) (*Result, error) {
	log := in.log
	if len(source) > 0 && source[0] != "" {
		log = log.With(zap.String("source", source[0]))
	}

	sheet, err := in.parser.Parse(code, source...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse stylesheet: %w", err)
	}

	scan := css.Scan(sheet)
	if len(scan.Declarations) == 0 {
		log.Debug("No font-family declarations found")
		return nil, nil
	}

	r := &run{
		in:    in,
		scan:  scan,
		cache: make(map[string]*resolution),
		log:   log,
	}
	states, err := r.settle(ctx)
	if err != nil {
		return nil, err
	}

	// emission order follows first appearance in the stylesheet
	var (
		rules    []string
		families []string
		emitted  = make(map[*resolution]struct{})
	)
	for _, st := range states {
		p := st.primary
		if p == nil {
			continue
		}
		if _, ok := emitted[p]; ok {
			continue
		}
		emitted[p] = struct{}{}
		families = append(families, p.family)
		for i := len(p.fallbacks) - 1; i >= 0; i-- {
			rules = append(rules, p.fallbacks[i].rule())
		}
		rules = append(rules, primaryRule(p.family, *p.src))
	}
	if len(rules) == 0 {
		log.Debug("Nothing to inject")
		return nil, nil
	}

	sp := css.NewSplicer(code)
	for _, st := range states {
		if st.primary == nil || len(st.primary.fallbacks) == 0 {
			continue
		}
		at := st.decl.Value.Start + st.decl.Families[st.cursor].Span.End
		if err := sp.Insert(at, fallbackList(st.primary)); err != nil {
			return nil, fmt.Errorf("unable to rewrite declaration: %w", err)
		}
	}
	at := css.InsertionPoint(sheet)
	if err := sp.Insert(at, assemble(rules, at == css.BOMLen(code))); err != nil {
		return nil, fmt.Errorf("unable to insert font faces: %w", err)
	}

	out, err := sp.Apply()
	if err != nil {
		return nil, fmt.Errorf("unable to assemble stylesheet: %w", err)
	}
	log.Debug("Injected font faces", zap.Strings("families", families), zap.Int("rules", len(rules)))
	return &Result{Code: out, Families: families}, nil
}

// fallbackList is text placed right after the family a declaration is built
// around: quoted fallback names, each preceded by a comma.
func fallbackList(r *resolution) string {
	var b strings.Builder
	for _, fb := range r.fallbacks {
		b.WriteString(", ")
		b.WriteString(css.QuoteString(fb.name))
	}
	return b.String()
}

// settle decides for every declaration which family (if any) it is built
// around. A declaration is settled by its first concrete family which is
// either already declared by the stylesheet or can be resolved, families
// after it are its fallbacks. Resolution happens in rounds: each round
// resolves all families declarations currently wait for.
func (r *run) settle(ctx context.Context) ([]*declState, error) {
	states := make([]*declState, 0, len(r.scan.Declarations))
	for i := range r.scan.Declarations {
		states = append(states, &declState{decl: &r.scan.Declarations[i]})
	}

	for {
		var batch []*resolution
		for _, st := range states {
			if nr := r.advance(st); nr != nil {
				batch = append(batch, nr)
			}
		}
		if len(batch) == 0 {
			return states, nil
		}
		if err := r.resolveBatch(ctx, batch); err != nil {
			return nil, err
		}
	}
}

// advance moves declaration cursor as far as possible with resolutions known
// so far. It returns a newly requested resolution, if any.
func (r *run) advance(st *declState) *resolution {
	fams := st.decl.Families
	for !st.done {
		if st.cursor >= len(fams) {
			st.done = true
			break
		}
		f := fams[st.cursor]
		if !f.Injectable() {
			if r.in.opts.Dev {
				r.log.Debug("Skipping family", zap.String("family", f.Raw), zap.Bool("generic", f.Generic))
			}
			st.cursor++
			continue
		}
		if r.scan.IsExcluded(f.Name) {
			if r.in.opts.Dev {
				r.log.Debug("Family already has @font-face", zap.String("family", f.Name))
			}
			st.done = true
			break
		}

		key := css.FamilyKey(f.Name)
		res, ok := r.cache[key]
		if !ok {
			res = &resolution{family: f.Name, opts: resolveOptions(fams, st.cursor)}
			r.cache[key] = res
			return res
		}
		if !res.done {
			// requested by another declaration in this round
			return nil
		}
		if res.injected() {
			st.primary = res
			st.done = true
			break
		}
		st.cursor++
	}
	return nil
}

func resolveOptions(fams []css.Family, at int) ResolveOptions {
	var opts ResolveOptions
	for _, f := range fams[at+1:] {
		switch {
		case f.Injectable():
			opts.Fallbacks = append(opts.Fallbacks, f.Name)
		case f.Generic && opts.Generic == "" && isFamilyKeyword(f.Name):
			opts.Generic = strings.ToLower(f.Name)
		}
	}
	return opts
}

func isFamilyKeyword(name string) bool {
	switch strings.ToLower(name) {
	case "inherit", "initial", "unset", "revert", "revert-layer":
		return false
	}
	return true
}

func (r *run) resolveBatch(ctx context.Context, batch []*resolution) error {
	limit := r.in.opts.Concurrency
	if limit < 2 || len(batch) == 1 {
		for _, res := range batch {
			if err := r.resolve(ctx, res); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, res := range batch {
		g.Go(func() error {
			return r.resolve(gctx, res)
		})
	}
	return g.Wait()
}

// resolve calls resolver and metrics resolver for a single family. It only
// touches res, so distinct resolutions may be processed in parallel.
func (r *run) resolve(ctx context.Context, res *resolution) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer func() { res.done = true }()

	opts := r.in.opts
	font, err := opts.Resolver.ResolveFontFace(ctx, res.family, res.opts)
	if err != nil {
		return &ResolutionError{Family: res.family, Err: err}
	}
	src := firstSource(font)
	if src == nil {
		if opts.Dev {
			r.log.Debug("Family cannot be resolved", zap.String("family", res.family))
		}
		return nil
	}
	res.src = src

	if opts.Metrics == nil {
		return nil
	}
	seen := map[string]struct{}{css.FamilyKey(res.family): {}}
	for _, name := range font.Fallbacks {
		key := css.FamilyKey(name)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		o, err := opts.Metrics.FallbackMetrics(ctx, res.family, name)
		if err != nil {
			return &ResolutionError{Family: res.family, Err: err}
		}
		if o == nil {
			if opts.Dev {
				r.log.Debug("No fallback metrics", zap.String("family", res.family), zap.String("fallback", name))
			}
			continue
		}
		res.fallbacks = append(res.fallbacks, fallbackFace{
			name:      fallbackName(res.family, name),
			system:    name,
			overrides: *o,
		})
	}
	return nil
}

func firstSource(font *ResolvedFont) *Source {
	if font == nil {
		return nil
	}
	for _, f := range font.Fonts {
		for _, s := range f.Src {
			if s.URL != "" {
				return &s
			}
		}
	}
	return nil
}
