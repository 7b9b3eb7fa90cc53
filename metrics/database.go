package metrics

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/maruel/natural"
	"golang.org/x/text/cases"
	yaml "gopkg.in/yaml.v3"
)

//go:embed fonts.yaml
var embeddedFonts []byte

// Entry is a single record of metrics database.
type Entry struct {
	Family      string `yaml:"family"`
	Category    string `yaml:"category,omitempty"`
	FontMetrics `yaml:",inline"`
}

type dbFile struct {
	Fonts []Entry `yaml:"fonts"`
}

// Database is an in-memory metrics table keyed by case-folded family name.
// It is safe for concurrent lookups once loaded.
type Database struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func familyKey(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

// NewDatabase returns empty database.
func NewDatabase() *Database {
	return &Database{entries: make(map[string]Entry)}
}

// DefaultDatabase returns database preloaded with embedded metrics of common
// system and web fonts.
func DefaultDatabase() (*Database, error) {
	db := NewDatabase()
	if err := db.Load(bytes.NewReader(embeddedFonts)); err != nil {
		return nil, fmt.Errorf("unable to load embedded metrics: %w", err)
	}
	return db, nil
}

// Load reads YAML records from r, later records replace earlier ones with the
// same family.
func (db *Database) Load(r io.Reader) error {
	var data dbFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&data); err != nil && err != io.EOF {
		return fmt.Errorf("failed to decode metrics data: %w", err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	for i, e := range data.Fonts {
		if strings.TrimSpace(e.Family) == "" {
			return fmt.Errorf("metrics record %d: family is required", i)
		}
		if !e.Valid() {
			return fmt.Errorf("metrics record %d (%s): units_per_em and x_width_avg must be positive", i, e.Family)
		}
		db.entries[familyKey(e.Family)] = e
	}
	return nil
}

// LoadFile merges records from YAML file.
func (db *Database) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := db.Load(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Entries returns known records ordered by family name.
func (db *Database) Entries() []Entry {
	db.mu.RLock()
	defer db.mu.RUnlock()
	names := make([]string, 0, len(db.entries))
	for key := range db.entries {
		names = append(names, key)
	}
	sort.Sort(natural.StringSlice(names))

	out := make([]Entry, 0, len(names))
	for _, key := range names {
		out = append(out, db.entries[key])
	}
	return out
}

// Lookup implements Source.
func (db *Database) Lookup(_ context.Context, family string) (*FontMetrics, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if e, ok := db.entries[familyKey(family)]; ok {
		m := e.FontMetrics
		return &m, nil
	}
	return nil, nil
}
