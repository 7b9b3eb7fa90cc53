package process

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"fontinject/archive"
	"fontinject/config"
	"fontinject/inject"
	"fontinject/metrics"
	"fontinject/resolver"
	"fontinject/state"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type processor struct {
	env *state.LocalEnv
	in  *inject.Injector
	log *zap.Logger

	seen, changed int
}

// loadDatabase returns embedded metrics merged with configured metrics file.
func loadDatabase(cfg *config.Config) (*metrics.Database, error) {
	db, err := metrics.DefaultDatabase()
	if err != nil {
		return nil, err
	}
	if cfg.Fonts.MetricsPath != "" {
		if err := db.LoadFile(cfg.Fonts.MetricsPath); err != nil {
			return nil, fmt.Errorf("unable to load font metrics: %w", err)
		}
	}
	return db, nil
}

// newInjector wires local font directory and metrics database into injector
// according to configuration.
func newInjector(cfg *config.Config, log *zap.Logger) (*inject.Injector, error) {
	db, err := loadDatabase(cfg)
	if err != nil {
		return nil, err
	}

	local := resolver.NewLocal(resolver.Config{
		Dir:              cfg.Fonts.Dir,
		URLPrefix:        cfg.Fonts.URLPrefix,
		Formats:          cfg.Fonts.Formats,
		Fallbacks:        cfg.Fonts.Fallbacks,
		DefaultFallbacks: cfg.Fonts.DefaultFallbacks,
	}, log)

	concurrency := cfg.Transform.Concurrency
	if concurrency == 0 {
		concurrency = runtime.NumCPU()
	}
	return inject.New(inject.Options{
		Dev:      cfg.Transform.Dev,
		Resolver: local,
		// metrics of served font files take precedence over database
		Metrics:     metrics.NewCalculator(log, local, db),
		Concurrency: concurrency,
	}, log)
}

func newProcessor(env *state.LocalEnv, log *zap.Logger) (*processor, error) {
	if env.Cfg == nil {
		return nil, errors.New("configuration is not loaded")
	}
	in, err := newInjector(env.Cfg, log)
	if err != nil {
		return nil, fmt.Errorf("unable to prepare font injector: %w", err)
	}
	return &processor{env: env, in: in, log: log}, nil
}

func (p *processor) isStylesheet(name string) bool {
	ext := filepath.Ext(name)
	return slices.ContainsFunc(p.env.Cfg.Transform.Extensions, func(e string) bool {
		return strings.EqualFold(e, ext)
	})
}

// process determines the input type (directory, archive with optional path
// inside, or single file) and processes accordingly.
func (p *processor) process(ctx context.Context, src, dst string) error {
	var head, tail string
	for head = src; len(head) != 0; head, tail = filepath.Split(head) {
		if err := ctx.Err(); err != nil {
			return err
		}

		head = strings.TrimSuffix(head, string(filepath.Separator))

		fi, err := os.Stat(head)
		if err != nil {
			// does not exist - probably path in archive
			continue
		}

		if fi.Mode().IsDir() {
			if len(tail) != 0 {
				// directory cannot have tail - it would be simple file
				return fmt.Errorf("input source was not found (%s) => (%s)", head, strings.TrimPrefix(src, head))
			}
			if err := p.processDir(ctx, head, dst); err != nil {
				return fmt.Errorf("unable to process directory: %w", err)
			}
			return nil
		}

		if !fi.Mode().IsRegular() {
			return fmt.Errorf("unexpected path mode for (%s) => (%s)", head, strings.TrimPrefix(src, head))
		}

		isArchive, err := archive.IsArchive(head)
		if err != nil {
			return fmt.Errorf("unable to check archive type: %w", err)
		}
		if isArchive {
			pathIn := filepath.ToSlash(strings.TrimPrefix(strings.TrimPrefix(src, head), string(filepath.Separator)))
			if err := p.processArchive(ctx, head, pathIn, "", dst); err != nil {
				return fmt.Errorf("unable to process archive: %w", err)
			}
			return nil
		}

		if len(tail) == 0 && p.isStylesheet(head) {
			data, err := os.ReadFile(head)
			if err != nil {
				return err
			}
			return p.processStylesheet(ctx, data, filepath.Base(head), dst)
		}
		return fmt.Errorf("input was not recognized as stylesheet (%s)", head)
	}
	return fmt.Errorf("input source was not found (%s)", src)
}

// processDir walks directory tree finding stylesheets and archives. Failures
// of individual files do not stop the walk, they are returned together.
func (p *processor) processDir(ctx context.Context, dir, dst string) error {
	var errs error
	count := 0

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err != nil {
			p.log.Warn("Skipping path", zap.String("path", path), zap.Error(err))
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		if p.isStylesheet(path) {
			count++
			data, err := os.ReadFile(path)
			if err == nil {
				err = p.processStylesheet(ctx, data, rel, dst)
			}
			if err != nil {
				p.log.Error("Unable to process file", zap.String("file", path), zap.Error(err))
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", rel, err))
			}
			return nil
		}

		isArchive, err := archive.IsArchive(path)
		if err != nil {
			p.log.Warn("Skipping file", zap.String("file", path), zap.Error(err))
			return nil
		}
		if !isArchive {
			p.log.Debug("Skipping file, not recognized as stylesheet or archive", zap.String("file", path))
			return nil
		}
		count++
		if err := p.processArchive(ctx, path, "", filepath.Dir(rel), dst); err != nil {
			p.log.Error("Unable to process archive", zap.String("file", path), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", rel, err))
		}
		return nil
	})
	if err != nil {
		return multierr.Append(err, errs)
	}
	if count == 0 {
		p.log.Debug("Nothing to process", zap.String("dir", dir))
	}
	return errs
}

// processArchive transforms stylesheets inside archive under pathIn, results
// are placed under pathOut relative to dst.
func (p *processor) processArchive(ctx context.Context, path, pathIn, pathOut, dst string) error {
	var errs error
	count := 0

	err := archive.Walk(path, pathIn, p.isStylesheet, func(arc string, f *zip.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		count++

		data, err := archive.ReadFile(f)
		if err == nil {
			err = p.processStylesheet(ctx, data, filepath.Join(pathOut, filepath.FromSlash(f.Name)), dst)
		}
		if err != nil {
			p.log.Error("Unable to process file in archive",
				zap.String("archive", arc), zap.String("file", f.Name), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", f.Name, err))
		}
		return nil
	})
	if err != nil {
		return multierr.Append(err, errs)
	}
	if count == 0 {
		p.log.Debug("Nothing to process", zap.String("archive", path), zap.String("path", pathIn))
	}
	return errs
}

// processStylesheet transforms single stylesheet. "src" is the source path
// relative to what was requested (base file name for a single file). Nothing
// is written when stylesheet does not need changes.
func (p *processor) processStylesheet(ctx context.Context, data []byte, src, dst string) error {
	p.seen++
	start := time.Now()

	bom := bytes.HasPrefix(data, utf8BOM)
	code := string(bytes.TrimPrefix(data, utf8BOM))

	res, err := p.in.Transform(ctx, code, src)
	if err != nil {
		return err
	}
	if res == nil {
		p.log.Debug("Stylesheet unchanged", zap.String("file", src), zap.Duration("elapsed", time.Since(start)))
		return nil
	}

	out := p.outputPath(src, dst)
	if _, err := os.Stat(out); err == nil {
		if !p.env.Overwrite {
			return fmt.Errorf("output file already exists: %s", out)
		}
		p.log.Warn("Overwriting existing file", zap.String("file", out))
	} else if !os.IsNotExist(err) {
		return err
	} else if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return fmt.Errorf("unable to create output directory: %w", err)
	}

	result := []byte(res.Code)
	if bom {
		result = append(slices.Clip(utf8BOM), result...)
	}
	if err := os.WriteFile(out, result, 0644); err != nil {
		return fmt.Errorf("unable to write stylesheet: %w", err)
	}
	p.changed++

	name := filepath.ToSlash(src)
	p.env.Rpt.StoreData("source/"+name, data)
	p.env.Rpt.StoreData("result/"+name, result)

	p.log.Info("Stylesheet transformed", zap.String("from", src), zap.String("to", out),
		zap.Strings("families", res.Families), zap.Duration("elapsed", time.Since(start)))
	return nil
}

// outputPath keeps relative location of the source under dst unless
// directory structure was not requested.
func (p *processor) outputPath(src, dst string) string {
	name := config.CleanFileName(filepath.Base(src))
	if p.env.NoDirs {
		return filepath.Join(dst, name)
	}
	parts := []string{dst}
	for _, seg := range strings.Split(filepath.ToSlash(filepath.Dir(src)), "/") {
		if seg == "" || seg == "." {
			continue
		}
		parts = append(parts, config.CleanFileName(seg))
	}
	return filepath.Join(append(parts, name)...)
}
