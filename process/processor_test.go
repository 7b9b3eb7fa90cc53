package process

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"fontinject/config"
	"fontinject/state"
)

const (
	poppinsCSS   = ":root { font-family: Poppins, sans-serif }\n"
	unchangedCSS = "body { color: red }\n"
)

var fakeWOFF2 = append([]byte("wOF2\x00\x01\x00\x00"), make([]byte, 64)...)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("unable to read %s: %v", path, err)
	}
	return string(data)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func newTestProcessor(t *testing.T) (*processor, context.Context) {
	t.Helper()
	ctx := state.ContextWithEnv(context.Background())
	env := state.EnvFromContext(ctx)

	cfg, err := config.LoadConfiguration("")
	if err != nil {
		t.Fatal(err)
	}
	fonts := t.TempDir()
	writeFile(t, filepath.Join(fonts, "poppins.woff2"), fakeWOFF2)
	cfg.Fonts.Dir = fonts
	env.Cfg = cfg
	env.Log = zaptest.NewLogger(t)

	p, err := newProcessor(env, env.Log)
	if err != nil {
		t.Fatalf("newProcessor() error = %v", err)
	}
	return p, ctx
}

func checkTransformed(t *testing.T, path string) {
	t.Helper()
	got := readFile(t, path)
	for _, want := range []string{
		`font-family: "Poppins Fallback: Arial";`,
		`src: url("/fonts/poppins.woff2") format(woff2);`,
		`:root { font-family: Poppins, "Poppins Fallback: Arial", sans-serif }`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("%s does not contain %q:\n%s", path, want, got)
		}
	}
}

func TestProcess_File(t *testing.T) {
	p, ctx := newTestProcessor(t)
	src, dst := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(src, "site.css"), []byte(poppinsCSS))
	writeFile(t, filepath.Join(src, "plain.css"), []byte(unchangedCSS))

	if err := p.process(ctx, filepath.Join(src, "site.css"), dst); err != nil {
		t.Fatalf("process() error = %v", err)
	}
	checkTransformed(t, filepath.Join(dst, "site.css"))

	if err := p.process(ctx, filepath.Join(src, "plain.css"), dst); err != nil {
		t.Fatalf("process() error = %v", err)
	}
	if exists(filepath.Join(dst, "plain.css")) {
		t.Error("unchanged stylesheet must not be written")
	}
	if p.seen != 2 || p.changed != 1 {
		t.Errorf("seen = %d, changed = %d", p.seen, p.changed)
	}
}

func TestProcess_Overwrite(t *testing.T) {
	p, ctx := newTestProcessor(t)
	src, dst := t.TempDir(), t.TempDir()
	in := filepath.Join(src, "site.css")
	writeFile(t, in, []byte(poppinsCSS))
	writeFile(t, filepath.Join(dst, "site.css"), []byte("old"))

	if err := p.process(ctx, in, dst); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected existing output error, got %v", err)
	}
	if readFile(t, filepath.Join(dst, "site.css")) != "old" {
		t.Error("existing output must be kept")
	}

	p.env.Overwrite = true
	if err := p.process(ctx, in, dst); err != nil {
		t.Fatalf("process() error = %v", err)
	}
	checkTransformed(t, filepath.Join(dst, "site.css"))
}

func TestProcess_InPlace(t *testing.T) {
	p, ctx := newTestProcessor(t)
	dir := t.TempDir()
	in := filepath.Join(dir, "site.css")
	writeFile(t, in, []byte(poppinsCSS))
	p.env.Overwrite = true

	if err := p.process(ctx, in, dir); err != nil {
		t.Fatalf("process() error = %v", err)
	}
	checkTransformed(t, in)

	// second pass finds nothing to do
	before := readFile(t, in)
	if err := p.process(ctx, in, dir); err != nil {
		t.Fatalf("process() error = %v", err)
	}
	if readFile(t, in) != before {
		t.Error("second pass must not change the stylesheet")
	}
}

func TestProcess_ByteOrderMark(t *testing.T) {
	p, ctx := newTestProcessor(t)
	src, dst := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(src, "bom.css"), append([]byte{0xEF, 0xBB, 0xBF}, poppinsCSS...))

	if err := p.process(ctx, filepath.Join(src, "bom.css"), dst); err != nil {
		t.Fatalf("process() error = %v", err)
	}
	got := readFile(t, filepath.Join(dst, "bom.css"))
	if !strings.HasPrefix(got, "\xEF\xBB\xBF@font-face {") {
		t.Errorf("byte order mark must stay first: %q", got[:min(len(got), 20)])
	}
}

func TestProcess_Directory(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "site.css"), []byte(poppinsCSS))
	writeFile(t, filepath.Join(src, "nested", "deep", "theme.CSS"), []byte(poppinsCSS))
	writeFile(t, filepath.Join(src, "nested", "plain.css"), []byte(unchangedCSS))
	writeFile(t, filepath.Join(src, "nested", "broken.css"), []byte("a { font-family: Poppins"))
	writeFile(t, filepath.Join(src, "readme.txt"), []byte(poppinsCSS))

	t.Run("keep structure", func(t *testing.T) {
		p, ctx := newTestProcessor(t)
		dst := t.TempDir()
		err := p.process(ctx, src, dst)
		if err == nil || !strings.Contains(err.Error(), "broken.css") {
			t.Fatalf("expected error mentioning broken.css, got %v", err)
		}
		checkTransformed(t, filepath.Join(dst, "site.css"))
		checkTransformed(t, filepath.Join(dst, "nested", "deep", "theme.CSS"))
		for _, name := range []string{"readme.txt", filepath.Join("nested", "plain.css"), filepath.Join("nested", "broken.css")} {
			if exists(filepath.Join(dst, name)) {
				t.Errorf("%s must not be written", name)
			}
		}
	})

	t.Run("no dirs", func(t *testing.T) {
		p, ctx := newTestProcessor(t)
		p.env.NoDirs = true
		dst := t.TempDir()
		_ = p.process(ctx, src, dst)
		checkTransformed(t, filepath.Join(dst, "site.css"))
		checkTransformed(t, filepath.Join(dst, "theme.CSS"))
	})
}

func makeArchive(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	w := zip.NewWriter(f)
	for name, content := range files {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProcess_Archive(t *testing.T) {
	src := t.TempDir()
	arc := filepath.Join(src, "bundle.zip")
	makeArchive(t, arc, map[string]string{
		"css/site.css":    poppinsCSS,
		"css/extra.css":   poppinsCSS,
		"other/theme.css": poppinsCSS,
		"css/image.png":   "png",
	})

	t.Run("whole archive", func(t *testing.T) {
		p, ctx := newTestProcessor(t)
		dst := t.TempDir()
		if err := p.process(ctx, arc, dst); err != nil {
			t.Fatalf("process() error = %v", err)
		}
		checkTransformed(t, filepath.Join(dst, "css", "site.css"))
		checkTransformed(t, filepath.Join(dst, "other", "theme.css"))
		if p.seen != 3 {
			t.Errorf("seen = %d, want 3", p.seen)
		}
	})

	t.Run("path inside archive", func(t *testing.T) {
		p, ctx := newTestProcessor(t)
		dst := t.TempDir()
		if err := p.process(ctx, filepath.Join(arc, "css", "site.css"), dst); err != nil {
			t.Fatalf("process() error = %v", err)
		}
		checkTransformed(t, filepath.Join(dst, "css", "site.css"))
		if exists(filepath.Join(dst, "css", "extra.css")) || exists(filepath.Join(dst, "other")) {
			t.Error("only requested path must be processed")
		}
	})

	t.Run("archive in directory", func(t *testing.T) {
		p, ctx := newTestProcessor(t)
		dst := t.TempDir()
		if err := p.process(ctx, src, dst); err != nil {
			t.Fatalf("process() error = %v", err)
		}
		checkTransformed(t, filepath.Join(dst, "other", "theme.css"))
	})
}

func TestProcess_Errors(t *testing.T) {
	p, ctx := newTestProcessor(t)
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "notes.txt"), []byte(poppinsCSS))
	writeFile(t, filepath.Join(src, "site.css"), []byte(poppinsCSS))

	tests := []struct {
		name string
		path string
	}{
		{"missing", filepath.Join(src, "missing", "site.css")},
		{"not a stylesheet", filepath.Join(src, "notes.txt")},
		{"file with tail", filepath.Join(src, "site.css", "more.css")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := p.process(ctx, tt.path, t.TempDir()); err == nil {
				t.Error("expected error")
			}
		})
	}

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(ctx)
		cancel()
		if err := p.process(ctx, src, t.TempDir()); err == nil {
			t.Error("expected error for cancelled context")
		}
	})
}

func TestOutputPath(t *testing.T) {
	p, _ := newTestProcessor(t)
	dst := filepath.Join("out", "dir")
	src := filepath.Join("a", "b", "c.css")

	if got, want := p.outputPath(src, dst), filepath.Join(dst, "a", "b", "c.css"); got != want {
		t.Errorf("outputPath() = %q, want %q", got, want)
	}
	if got, want := p.outputPath("c.css", dst), filepath.Join(dst, "c.css"); got != want {
		t.Errorf("outputPath() = %q, want %q", got, want)
	}
	p.env.NoDirs = true
	if got, want := p.outputPath(src, dst), filepath.Join(dst, "c.css"); got != want {
		t.Errorf("outputPath() with nodirs = %q, want %q", got, want)
	}
}

func TestPreview(t *testing.T) {
	p, ctx := newTestProcessor(t)

	var b strings.Builder
	if err := preview(ctx, p.in, "Poppins, sans-serif", &b); err != nil {
		t.Fatalf("preview() error = %v", err)
	}
	if !strings.Contains(b.String(), `body { font-family: Poppins, "Poppins Fallback: Arial", sans-serif }`) {
		t.Errorf("unexpected preview:\n%s", b.String())
	}

	b.Reset()
	if err := preview(ctx, p.in, "Unknown Family, serif", &b); err != nil {
		t.Fatalf("preview() error = %v", err)
	}
	if got := b.String(); got != "/* nothing to inject */\n" {
		t.Errorf("preview() = %q", got)
	}
}

func TestListMetrics(t *testing.T) {
	p, _ := newTestProcessor(t)
	extra := filepath.Join(t.TempDir(), "metrics.yaml")
	writeFile(t, extra, []byte(`fonts:
  - family: Brand Sans
    units_per_em: 1000
    x_width_avg: 480
`))
	p.env.Cfg.Fonts.MetricsPath = extra

	db, err := loadDatabase(p.env.Cfg)
	if err != nil {
		t.Fatalf("loadDatabase() error = %v", err)
	}
	var b strings.Builder
	if err := listMetrics(db, &b); err != nil {
		t.Fatalf("listMetrics() error = %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(b.String(), "\n"), "\n")
	if len(lines) != 6 {
		t.Fatalf("expected 6 families, got:\n%s", b.String())
	}
	if lines[0] != "Arial\tsans-serif\t904/2048" {
		t.Errorf("first line = %q", lines[0])
	}
	if lines[1] != "Brand Sans\t-\t480/1000" {
		t.Errorf("second line = %q", lines[1])
	}
}
