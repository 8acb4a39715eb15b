// Package dataset turns the raw biomarker table into immutable, analysis-ready
// views whose numeric rows and taxonomy annotations stay row-aligned.
package dataset

import (
	"fmt"
	"math"
	"strings"

	"github.com/KaramelBytes/algamark-cli/internal/tabular"
)

// Identifier and isotope column names as they appear in the source header.
const (
	ColProjectID = "Project ID"
	ColSite      = "Site"
	ColSpecies   = "Species"
	ColIceCover  = "Ice cover"

	MarkerCN   = "CN ratio"
	MarkerD15N = "d15N"
	MarkerD13C = "d13C"
)

// DefaultControlColumn is the internal-standard fatty acid dropped on load.
const DefaultControlColumn = "C19:0"

// IsotopeMarkers is the isotope panel in source order.
var IsotopeMarkers = []string{MarkerCN, MarkerD15N, MarkerD13C}

// LoadOptions controls ingestion.
type LoadOptions struct {
	// ControlColumn is dropped from the fatty-acid block. Empty disables dropping.
	ControlColumn string
	Delimiter     rune
	Sheet         string
	SheetIndex    int
}

// DefaultLoadOptions drops the standard control column.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{ControlColumn: DefaultControlColumn}
}

// Sample is one measured specimen. Values align with SampleTable.Markers; NaN is missing.
type Sample struct {
	Key       int
	ProjectID string
	Site      string
	Species   string
	IceCover  float64
	Values    []float64
}

// SampleTable is the parsed source table.
type SampleTable struct {
	Name       string
	Markers    []string
	Isotopes   []string
	FattyAcids []string
	Dropped    string
	Samples    []Sample

	index map[string]int
}

// Load reads path and validates the header schema.
func Load(path string, opt LoadOptions) (*SampleTable, error) {
	raw, err := tabular.Read(path, tabular.Options{Delimiter: opt.Delimiter, Sheet: opt.Sheet, SheetIndex: opt.SheetIndex})
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return FromTable(raw, opt)
}

// FromTable interprets an already-read table.
func FromTable(raw *tabular.Table, opt LoadOptions) (*SampleTable, error) {
	pos := make(map[string]int, len(raw.Header))
	for i, h := range raw.Header {
		pos[normalizeName(h)] = i
	}
	var missing []string
	find := func(name string) int {
		i, ok := pos[normalizeName(name)]
		if !ok {
			missing = append(missing, name)
			return -1
		}
		return i
	}
	idProject, idSite, idSpecies, idIce := find(ColProjectID), find(ColSite), find(ColSpecies), find(ColIceCover)
	isoIdx := make([]int, len(IsotopeMarkers))
	lastIso := -1
	for k, m := range IsotopeMarkers {
		isoIdx[k] = find(m)
		lastIso = max(lastIso, isoIdx[k])
	}
	control := -1
	if opt.ControlColumn != "" {
		control = find(opt.ControlColumn)
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Table: raw.Name, Missing: missing}
	}
	if err := checkContiguous(raw.Name, isoIdx); err != nil {
		return nil, err
	}

	t := &SampleTable{Name: raw.Name, Isotopes: append([]string(nil), IsotopeMarkers...)}
	if control >= 0 {
		t.Dropped = raw.Header[control]
	}
	cols := append([]int(nil), isoIdx...)
	for j := lastIso + 1; j < len(raw.Header); j++ {
		if j == control || raw.Header[j] == "" {
			continue
		}
		t.FattyAcids = append(t.FattyAcids, raw.Header[j])
		cols = append(cols, j)
	}
	if len(t.FattyAcids) == 0 {
		return nil, &SchemaError{Table: raw.Name, Detail: "no fatty-acid columns after the isotope block"}
	}
	t.Markers = append(append([]string(nil), t.Isotopes...), t.FattyAcids...)
	t.index = make(map[string]int, len(t.Markers))
	for k, m := range t.Markers {
		if _, dup := t.index[m]; dup {
			return nil, &SchemaError{Table: raw.Name, Detail: fmt.Sprintf("duplicate marker column %q", m)}
		}
		t.index[m] = k
	}

	for r, rec := range raw.Rows {
		line := r + 2
		ice, ok := tabular.ParseNumber(rec[idIce])
		if !ok {
			return nil, fmt.Errorf("%s line %d column %q: %q: %w", raw.Name, line, ColIceCover, rec[idIce], ErrValue)
		}
		s := Sample{
			Key:       r,
			ProjectID: strings.TrimSpace(rec[idProject]),
			Site:      strings.TrimSpace(rec[idSite]),
			Species:   strings.TrimSpace(rec[idSpecies]),
			IceCover:  ice,
			Values:    make([]float64, len(cols)),
		}
		for k, j := range cols {
			v, ok := tabular.ParseNumber(rec[j])
			if !ok {
				return nil, fmt.Errorf("%s line %d column %q: %q: %w", raw.Name, line, raw.Header[j], rec[j], ErrValue)
			}
			s.Values[k] = v
		}
		t.Samples = append(t.Samples, s)
	}
	return t, nil
}

func checkContiguous(table string, idx []int) error {
	lo, hi := idx[0], idx[0]
	for _, i := range idx[1:] {
		lo, hi = min(lo, i), max(hi, i)
	}
	if hi-lo != len(idx)-1 {
		return &SchemaError{Table: table, Detail: "isotope columns are not contiguous"}
	}
	return nil
}

func normalizeName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch r {
		case ' ', '_', '-', '.':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// MarkerIndex returns the position of marker in Sample.Values.
func (t *SampleTable) MarkerIndex(marker string) (int, bool) {
	i, ok := t.index[marker]
	return i, ok
}

// Value returns one marker of a sample, NaN when unknown or missing.
func (t *SampleTable) Value(s Sample, marker string) float64 {
	i, ok := t.index[marker]
	if !ok {
		return math.NaN()
	}
	return s.Values[i]
}

// HasIsotopes reports whether every isotope marker of s is present.
func (t *SampleTable) HasIsotopes(s Sample) bool {
	return t.panelPresent(s, t.Isotopes)
}

// HasFattyAcids reports whether every fatty-acid marker of s is present.
func (t *SampleTable) HasFattyAcids(s Sample) bool {
	return t.panelPresent(s, t.FattyAcids)
}

func (t *SampleTable) panelPresent(s Sample, panel []string) bool {
	for _, m := range panel {
		if math.IsNaN(s.Values[t.index[m]]) {
			return false
		}
	}
	return true
}
