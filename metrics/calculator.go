package metrics

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Calculator produces fallback overrides for family / system font pairs.
// Metrics are looked up in sources in order, first hit wins.
type Calculator struct {
	sources []Source
	log     *zap.Logger
}

// NewCalculator creates calculator over sources.
func NewCalculator(log *zap.Logger, sources ...Source) *Calculator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Calculator{sources: sources, log: log.Named("metrics")}
}

func (c *Calculator) lookup(ctx context.Context, family string) (*FontMetrics, error) {
	for _, src := range c.sources {
		m, err := src.Lookup(ctx, family)
		if err != nil {
			return nil, err
		}
		if m != nil && m.Valid() {
			return m, nil
		}
	}
	return nil, nil
}

// FallbackMetrics returns overrides for using fallback in place of family.
// When metrics of either font are unknown nil is returned.
func (c *Calculator) FallbackMetrics(ctx context.Context, family, fallback string) (*Overrides, error) {
	fm, err := c.lookup(ctx, family)
	if err != nil {
		return nil, fmt.Errorf("unable to get metrics for %q: %w", family, err)
	}
	if fm == nil {
		c.log.Debug("No metrics for font", zap.String("family", family))
		return nil, nil
	}
	bm, err := c.lookup(ctx, fallback)
	if err != nil {
		return nil, fmt.Errorf("unable to get metrics for %q: %w", fallback, err)
	}
	if bm == nil {
		c.log.Debug("No metrics for fallback font", zap.String("family", family), zap.String("fallback", fallback))
		return nil, nil
	}
	o, err := Compute(*fm, *bm)
	if err != nil {
		return nil, err
	}
	return &o, nil
}
