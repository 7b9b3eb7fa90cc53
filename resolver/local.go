// Package resolver provides font resolver serving font files from a local
// directory.
package resolver

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gosimple/slug"
	"github.com/h2non/filetype"
	"github.com/maruel/natural"
	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"fontinject/inject"
	"fontinject/metrics"
)

// formats maps file extensions to CSS format() hints.
var formats = map[string]string{
	"woff2": "woff2",
	"woff":  "woff",
	"ttf":   "truetype",
	"otf":   "opentype",
}

// DefaultFormats is extension preference used when none is configured.
var DefaultFormats = []string{"woff2", "woff", "ttf", "otf"}

// acceptable base name suffixes after family slug
var suffixes = []string{"", "-regular", "-normal", "-400", "-variable"}

// Config describes local font directory.
type Config struct {
	// Dir is directory with font files named after family slug, e.g.
	// "open-sans.woff2" or "open-sans-regular.ttf".
	Dir string
	// URLPrefix is prepended to file names to build asset URLs.
	URLPrefix string
	// Formats lists extensions in preference order.
	Formats []string
	// Fallbacks maps generic family keyword to system fonts used as
	// fallbacks for families declared with it.
	Fallbacks map[string][]string
	// DefaultFallbacks are used when declaration has no generic family.
	DefaultFallbacks []string
}

// Local resolves families to font files in a directory.
type Local struct {
	cfg Config
	log *zap.Logger
}

// NewLocal creates local resolver.
func NewLocal(cfg Config, log *zap.Logger) *Local {
	if log == nil {
		log = zap.NewNop()
	}
	if len(cfg.Formats) == 0 {
		cfg.Formats = DefaultFormats
	}
	return &Local{cfg: cfg, log: log.Named("resolver")}
}

type candidate struct {
	name string // file name
	ext  string // lowercased extension without dot
	rank int    // position of ext in preferred formats
}

// candidates lists files for family, best first. Files which content does not
// match their extension are skipped.
func (l *Local) candidates(family string, exts ...string) ([]candidate, error) {
	base := slug.Make(family)
	if base == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(l.cfg.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			l.log.Debug("Font directory does not exist", zap.String("dir", l.cfg.Dir))
			return nil, nil
		}
		return nil, fmt.Errorf("unable to read font directory: %w", err)
	}

	var found []candidate
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		name := e.Name()
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
		rank := slices.Index(l.cfg.Formats, ext)
		if rank < 0 || (len(exts) > 0 && !slices.Contains(exts, ext)) {
			continue
		}
		stem := strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))
		if !slices.ContainsFunc(suffixes, func(s string) bool { return stem == base+s }) {
			continue
		}
		ok, err := l.sniff(name, ext)
		if err != nil {
			return nil, err
		}
		if !ok {
			l.log.Warn("Font file content does not match its extension, skipping", zap.String("file", name))
			continue
		}
		found = append(found, candidate{name: name, ext: ext, rank: rank})
	}
	slices.SortFunc(found, func(a, b candidate) int {
		if a.rank != b.rank {
			return a.rank - b.rank
		}
		switch {
		case natural.Less(a.name, b.name):
			return -1
		case natural.Less(b.name, a.name):
			return 1
		}
		return 0
	})
	return found, nil
}

func (l *Local) sniff(name, ext string) (bool, error) {
	f, err := os.Open(filepath.Join(l.cfg.Dir, name))
	if err != nil {
		return false, fmt.Errorf("unable to open font file: %w", err)
	}
	defer f.Close()

	head := make([]byte, 262)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return false, fmt.Errorf("unable to read font file: %w", err)
	}
	return filetype.Is(head[:n], ext), nil
}

func (l *Local) assetURL(name string) string {
	return strings.TrimRight(l.cfg.URLPrefix, "/") + "/" + url.PathEscape(name)
}

// ResolveFontFace implements inject.Resolver.
func (l *Local) ResolveFontFace(ctx context.Context, family string, opts inject.ResolveOptions) (*inject.ResolvedFont, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	found, err := l.candidates(family)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		l.log.Debug("No local font files", zap.String("family", family))
		return nil, nil
	}

	font := inject.Font{Src: make([]inject.Source, 0, len(found))}
	for _, c := range found {
		font.Src = append(font.Src, inject.Source{URL: l.assetURL(c.name), Format: formats[c.ext]})
	}
	return &inject.ResolvedFont{
		Fonts:     []inject.Font{font},
		Fallbacks: l.fallbacks(family, opts),
	}, nil
}

// fallbacks returns system fonts for the generic category (or defaults)
// followed by families listed after the family in the declaration.
func (l *Local) fallbacks(family string, opts inject.ResolveOptions) []string {
	list, ok := l.cfg.Fallbacks[opts.Generic]
	if opts.Generic == "" || !ok {
		list = l.cfg.DefaultFallbacks
	}

	fold := cases.Fold()
	seen := map[string]struct{}{fold.String(family): {}}
	var out []string
	for _, name := range slices.Concat(list, opts.Fallbacks) {
		key := fold.String(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, name)
	}
	return out
}

// Lookup implements metrics.Source by reading metrics from TrueType or
// OpenType file of the family, if there is one. Files whose recorded family
// name differs from the requested one are ignored.
func (l *Local) Lookup(ctx context.Context, family string) (*metrics.FontMetrics, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	found, err := l.candidates(family, "ttf", "otf")
	if err != nil {
		return nil, err
	}
	for _, c := range found {
		data, err := os.ReadFile(filepath.Join(l.cfg.Dir, c.name))
		if err != nil {
			return nil, fmt.Errorf("unable to read font file: %w", err)
		}
		name, err := metrics.FamilyName(data)
		if err != nil {
			l.log.Warn("Unable to read font family name", zap.String("file", c.name), zap.Error(err))
			continue
		}
		if fold := cases.Fold(); fold.String(name) != fold.String(family) {
			l.log.Warn("Font file belongs to another family, skipping",
				zap.String("file", c.name), zap.String("family", family), zap.String("actual", name))
			continue
		}
		m, err := metrics.FromFont(data)
		if err != nil {
			l.log.Warn("Unable to read font metrics", zap.String("file", c.name), zap.Error(err))
			continue
		}
		return m, nil
	}
	return nil, nil
}
