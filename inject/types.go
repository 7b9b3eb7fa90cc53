package inject

import (
	"context"
	"fmt"

	"fontinject/metrics"
)

// ResolveOptions are hints passed to the resolver with a family name.
type ResolveOptions struct {
	// Fallbacks are concrete families listed after the family in the same
	// font-family declaration, in order.
	Fallbacks []string
	// Generic is the first generic family keyword (e.g. "sans-serif") listed
	// after the family, empty if there is none.
	Generic string
}

// Source is a single font asset.
type Source struct {
	URL    string
	Format string // woff2, woff, truetype, opentype...
}

// Font is a set of alternative sources for one face.
type Font struct {
	Src []Source
}

// ResolvedFont describes how a family can be served locally.
type ResolvedFont struct {
	Fonts []Font
	// Fallbacks are system fonts to synthesize metric adjusted faces for.
	Fallbacks []string
}

// Resolver finds local assets for a font family. A nil result with nil error
// means the family cannot be served and is left alone.
type Resolver interface {
	ResolveFontFace(ctx context.Context, family string, opts ResolveOptions) (*ResolvedFont, error)
}

// ResolverFunc adapts function to Resolver.
type ResolverFunc func(ctx context.Context, family string, opts ResolveOptions) (*ResolvedFont, error)

// ResolveFontFace implements Resolver.
func (f ResolverFunc) ResolveFontFace(ctx context.Context, family string, opts ResolveOptions) (*ResolvedFont, error) {
	return f(ctx, family, opts)
}

// MetricsResolver provides overrides for a fallback face. A nil result with
// nil error means metrics are unknown and the fallback face is skipped.
type MetricsResolver interface {
	FallbackMetrics(ctx context.Context, family, fallback string) (*metrics.Overrides, error)
}

// Options configure Injector.
type Options struct {
	// Dev enables verbose diagnostics, output is not affected.
	Dev bool
	// Resolver is required.
	Resolver Resolver
	// Metrics is optional, without it no fallback faces are generated.
	Metrics MetricsResolver
	// Concurrency limits number of parallel resolver calls, values below 2
	// mean sequential resolution.
	Concurrency int
}

// Result is a rewritten stylesheet.
type Result struct {
	Code string
	// Families lists injected families in the order their rules were emitted.
	Families []string
}

// ResolutionError is returned when resolver or metrics resolver fails.
type ResolutionError struct {
	Family string
	Err    error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("unable to resolve font family %q: %v", e.Family, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}
