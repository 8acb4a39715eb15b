package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Annotation is the taxonomy and provenance of one view row.
type Annotation struct {
	Key       int    `json:"key"`
	Species   string `json:"species"`
	Phylum    string `json:"phylum"`
	Order     string `json:"order"`
	Family    string `json:"family"`
	Site      string `json:"site"`
	Published bool   `json:"published"`
}

// Factor names accepted by View.Factor.
const (
	FactorPhylum  = "phylum"
	FactorOrder   = "order"
	FactorFamily  = "family"
	FactorSpecies = "species"
	FactorSite    = "site"
)

// View is a named samples × markers matrix with a row-parallel annotation table.
// A View is never modified after construction; transforms return new views.
type View struct {
	Name        string       `json:"name"`
	Markers     []string     `json:"markers"`
	Rows        [][]float64  `json:"-"`
	Annotations []Annotation `json:"annotations"`
	Filters     []string     `json:"filters"`
	Transforms  []string     `json:"transforms"`
}

// Len is the number of rows.
func (v *View) Len() int { return len(v.Rows) }

func (v *View) derive(name, transform string) *View {
	out := &View{
		Name:        name,
		Markers:     append([]string(nil), v.Markers...),
		Annotations: append([]Annotation(nil), v.Annotations...),
		Filters:     append([]string(nil), v.Filters...),
		Transforms:  append([]string(nil), v.Transforms...),
	}
	if transform != "" {
		out.Transforms = append(out.Transforms, transform)
	}
	return out
}

// MarkerIndex returns the column of marker.
func (v *View) MarkerIndex(marker string) (int, error) {
	for j, m := range v.Markers {
		if m == marker {
			return j, nil
		}
	}
	return -1, fmt.Errorf("view %q: %q: %w", v.Name, marker, ErrUnknownMarker)
}

// Column copies one marker column.
func (v *View) Column(marker string) ([]float64, error) {
	j, err := v.MarkerIndex(marker)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(v.Rows))
	for i, r := range v.Rows {
		out[i] = r[j]
	}
	return out, nil
}

// Factor returns the annotation column named by key.
func (v *View) Factor(key string) ([]string, error) {
	var get func(Annotation) string
	switch strings.ToLower(key) {
	case FactorPhylum:
		get = func(a Annotation) string { return a.Phylum }
	case FactorOrder:
		get = func(a Annotation) string { return a.Order }
	case FactorFamily:
		get = func(a Annotation) string { return a.Family }
	case FactorSpecies:
		get = func(a Annotation) string { return a.Species }
	case FactorSite:
		get = func(a Annotation) string { return a.Site }
	default:
		return nil, fmt.Errorf("view %q: unknown grouping factor %q", v.Name, key)
	}
	out := make([]string, len(v.Annotations))
	for i, a := range v.Annotations {
		out[i] = get(a)
	}
	return out, nil
}

// Select keeps only the given markers, in the given order.
func (v *View) Select(name string, markers []string) (*View, error) {
	idx := make([]int, len(markers))
	for k, m := range markers {
		j, err := v.MarkerIndex(m)
		if err != nil {
			return nil, err
		}
		idx[k] = j
	}
	out := v.derive(name, "select")
	out.Markers = append([]string(nil), markers...)
	out.Rows = make([][]float64, len(v.Rows))
	for i, r := range v.Rows {
		row := make([]float64, len(idx))
		for k, j := range idx {
			row[k] = r[j]
		}
		out.Rows[i] = row
	}
	return out, nil
}

// Reduced keeps only markers, e.g. the discriminating markers of a SIMPER ranking.
func (v *View) Reduced(markers []string) (*View, error) {
	return v.Select(v.Name+"_reduced", markers)
}

// Subset keeps the rows whose annotation satisfies keep. Rows and annotations are
// filtered together.
func (v *View) Subset(name, filter string, keep func(Annotation) bool) (*View, error) {
	out := v.derive(name, "")
	out.Filters = append(out.Filters, filter)
	out.Annotations = nil
	for i, a := range v.Annotations {
		if keep(a) {
			out.Rows = append(out.Rows, append([]float64(nil), v.Rows[i]...))
			out.Annotations = append(out.Annotations, a)
		}
	}
	if len(out.Rows) == 0 {
		return nil, &ViewError{View: name, Filters: out.Filters, Err: ErrEmptyView}
	}
	return out, nil
}

func (v *View) mapValues(name, transform string, f func(float64) float64) *View {
	out := v.derive(name, transform)
	out.Rows = make([][]float64, len(v.Rows))
	for i, r := range v.Rows {
		row := make([]float64, len(r))
		for j, x := range r {
			row[j] = f(x)
		}
		out.Rows[i] = row
	}
	return out
}

// Abs takes the elementwise absolute value. Isotope ratios are naturally negative;
// Bray-Curtis analyses of views containing them run on the absolute values, and the
// transform is recorded so it is never implicit.
func (v *View) Abs() *View {
	return v.mapValues(v.Name+"_abs", "abs", math.Abs)
}

// Percent rescales proportions to percentages.
func (v *View) Percent() *View {
	return v.mapValues(v.Name+"_percent", "percent", func(x float64) float64 { return x * 100 })
}

// HasNegative reports whether any value is below zero.
func (v *View) HasNegative() bool {
	for _, r := range v.Rows {
		for _, x := range r {
			if x < 0 {
				return true
			}
		}
	}
	return false
}

// SpeciesMeans collapses rows to one mean profile per species, in first-seen order.
// Missing values propagate into the mean.
func (v *View) SpeciesMeans() *View {
	out := v.derive(v.Name+"_species_means", "species_means")
	out.Annotations = nil
	pos := map[string]int{}
	var counts []float64
	for i, a := range v.Annotations {
		k, ok := pos[a.Species]
		if !ok {
			k = len(out.Rows)
			pos[a.Species] = k
			out.Rows = append(out.Rows, make([]float64, len(v.Markers)))
			a.Key = k
			a.Site = ""
			out.Annotations = append(out.Annotations, a)
			counts = append(counts, 0)
		}
		counts[k]++
		for j, x := range v.Rows[i] {
			out.Rows[k][j] += x
		}
	}
	for k, r := range out.Rows {
		for j := range r {
			r[j] /= counts[k]
		}
	}
	return out
}

// Labels returns the species label of every row.
func (v *View) Labels() []string {
	out := make([]string, len(v.Annotations))
	for i, a := range v.Annotations {
		out[i] = a.Species
	}
	return out
}

// WriteCSV exports the view with its annotation columns.
func (v *View) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := append([]string{"key", "species", "phylum", "order", "family", "site"}, v.Markers...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, a := range v.Annotations {
		rec := []string{strconv.Itoa(a.Key), a.Species, a.Phylum, a.Order, a.Family, a.Site}
		for _, x := range v.Rows[i] {
			rec = append(rec, formatValue(x))
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatValue(x float64) string {
	if math.IsNaN(x) {
		return "NA"
	}
	return strconv.FormatFloat(x, 'g', -1, 64)
}
