// Package taxonomy maps macroalgal species labels to their higher taxonomy.
//
// The mapping is a fixed reference table: the shipped default is embedded from
// default_taxonomy.yaml and can be replaced by a file with the same layout.
package taxonomy

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default_taxonomy.yaml
var defaultTable []byte

// ErrUnresolved is matched by every UnresolvedError.
var ErrUnresolved = errors.New("taxonomy: species not in lookup table")

// UnresolvedError names the species that had no lookup entry.
type UnresolvedError struct {
	Species string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("taxonomy: no entry for species %q", e.Species)
}

func (e *UnresolvedError) Unwrap() error { return ErrUnresolved }

// Record is the taxonomy of one species.
type Record struct {
	Species   string `yaml:"species" json:"species"`
	Phylum    string `yaml:"phylum" json:"phylum"`
	Order     string `yaml:"order" json:"order"`
	Family    string `yaml:"family" json:"family"`
	Published bool   `yaml:"published" json:"published"`
}

type tableFile struct {
	Records []Record `yaml:"species"`
}

// Resolver looks species up by exact label.
type Resolver struct {
	bySpecies map[string]Record
}

// New builds a resolver from records. Duplicate species and records without a
// phylum are rejected so two diverging entries can never coexist.
func New(records []Record) (*Resolver, error) {
	r := &Resolver{bySpecies: make(map[string]Record, len(records))}
	for i, rec := range records {
		rec.Species = strings.TrimSpace(rec.Species)
		if rec.Species == "" {
			return nil, fmt.Errorf("taxonomy: record %d has no species", i)
		}
		if rec.Phylum == "" {
			return nil, fmt.Errorf("taxonomy: species %q has no phylum", rec.Species)
		}
		if _, dup := r.bySpecies[rec.Species]; dup {
			return nil, fmt.Errorf("taxonomy: duplicate species %q", rec.Species)
		}
		r.bySpecies[rec.Species] = rec
	}
	return r, nil
}

// Default returns the resolver over the embedded reference table.
func Default() (*Resolver, error) {
	return parse(defaultTable, "embedded table")
}

// LoadFile reads a YAML table with the same layout as the embedded one.
func LoadFile(path string) (*Resolver, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}
	return parse(b, path)
}

func parse(b []byte, src string) (*Resolver, error) {
	var tf tableFile
	if err := yaml.Unmarshal(b, &tf); err != nil {
		return nil, fmt.Errorf("parse taxonomy %s: %w", src, err)
	}
	return New(tf.Records)
}

// Resolve returns the record for species or an *UnresolvedError.
func (r *Resolver) Resolve(species string) (Record, error) {
	rec, ok := r.bySpecies[species]
	if !ok {
		return Record{}, &UnresolvedError{Species: species}
	}
	return rec, nil
}

// Species lists every known species in lexical order.
func (r *Resolver) Species() []string {
	out := make([]string, 0, len(r.bySpecies))
	for s := range r.bySpecies {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Len is the number of records.
func (r *Resolver) Len() int { return len(r.bySpecies) }
