package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfiguration_NoFile(t *testing.T) {
	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatalf("LoadConfiguration() with empty path error = %v", err)
	}
	if cfg.Version != 1 {
		t.Errorf("Default config version = %d, want 1", cfg.Version)
	}
	if cfg.Fonts.URLPrefix != "/fonts" {
		t.Errorf("URLPrefix = %q, want /fonts", cfg.Fonts.URLPrefix)
	}
	if strings.Join(cfg.Fonts.Formats, ",") != "woff2,woff,ttf,otf" {
		t.Errorf("Formats = %v", cfg.Fonts.Formats)
	}
	if got := cfg.Fonts.Fallbacks["serif"]; len(got) != 1 || got[0] != "Times New Roman" {
		t.Errorf("serif fallbacks = %v", got)
	}
	if len(cfg.Transform.Extensions) != 1 || cfg.Transform.Extensions[0] != ".css" {
		t.Errorf("Extensions = %v", cfg.Transform.Extensions)
	}
	if cfg.Logging.ConsoleLogger.Level != "normal" {
		t.Errorf("console level = %q, want normal", cfg.Logging.ConsoleLogger.Level)
	}
}

func TestLoadConfiguration_WithFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `version: 1
fonts:
  dir: `+dir+`
  url_prefix: /static/fonts/
  formats: [woff2, ttf]
  fallbacks:
    cursive: ["Comic Sans MS"]
transform:
  dev: true
  concurrency: 4
  extensions: [.css, .pcss]
logging:
  console:
    level: debug
  file:
    level: none
reporting:
  destination: `+filepath.Join(dir, "report.zip")+`
`)

	cfg, err := LoadConfiguration(path)
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}
	if cfg.Fonts.Dir != dir {
		t.Errorf("Dir = %q, want %q", cfg.Fonts.Dir, dir)
	}
	if cfg.Fonts.URLPrefix != "/static/fonts/" {
		t.Errorf("URLPrefix = %q", cfg.Fonts.URLPrefix)
	}
	if strings.Join(cfg.Fonts.Formats, ",") != "woff2,ttf" {
		t.Errorf("Formats = %v, want file list to replace defaults", cfg.Fonts.Formats)
	}
	if _, ok := cfg.Fonts.Fallbacks["cursive"]; !ok {
		t.Error("expected cursive fallbacks from file")
	}
	if _, ok := cfg.Fonts.Fallbacks["serif"]; !ok {
		t.Error("expected default serif fallbacks to be kept")
	}
	if !cfg.Transform.Dev || cfg.Transform.Concurrency != 4 {
		t.Errorf("Transform = %+v", cfg.Transform)
	}
	if len(cfg.Transform.Extensions) != 2 {
		t.Errorf("Extensions = %v", cfg.Transform.Extensions)
	}
}

func TestLoadConfiguration_NonExistentFile(t *testing.T) {
	if _, err := LoadConfiguration("/nonexistent/config.yaml"); err == nil {
		t.Error("Expected error for nonexistent file")
	}
}

func TestLoadConfiguration_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"invalid yaml", "version: 1\nfonts:\n  dir: x\n  invalid indent\n"},
		{"unknown field", "version: 1\nfonts:\n  font_dir: x\n"},
		{"wrong version", "version: 2\n"},
		{"unknown format", "version: 1\nfonts:\n  formats: [woff2, eot]\n"},
		{"empty url prefix", "version: 1\nfonts:\n  url_prefix: \"\"\n"},
		{"negative concurrency", "version: 1\ntransform:\n  concurrency: -1\n"},
		{"bad extension", "version: 1\ntransform:\n  extensions: [css]\n"},
		{"bad log level", "version: 1\nlogging:\n  console:\n    level: verbose\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadConfiguration(writeConfig(t, tt.content)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestPrepareAndDump(t *testing.T) {
	data, err := Prepare()
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if !strings.Contains(string(data), "url_prefix") {
		t.Error("default configuration is missing url_prefix")
	}

	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatal(err)
	}
	dumped, err := Dump(cfg)
	if err != nil {
		t.Fatalf("Dump() error = %v", err)
	}

	// dumped configuration must be loadable as is
	again, err := LoadConfiguration(writeConfig(t, string(dumped)))
	if err != nil {
		t.Fatalf("LoadConfiguration(dumped) error = %v", err)
	}
	if again.Fonts.URLPrefix != cfg.Fonts.URLPrefix || len(again.Fonts.Fallbacks) != len(cfg.Fonts.Fallbacks) {
		t.Errorf("dumped configuration differs: %+v vs %+v", again.Fonts, cfg.Fonts)
	}
}
