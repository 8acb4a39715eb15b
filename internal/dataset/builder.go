package dataset

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/KaramelBytes/algamark-cli/internal/taxonomy"
)

// Names of the standard views.
const (
	ViewWide      = "wide"
	ViewFA        = "fa"
	ViewSI        = "si"
	ViewOverlap   = "overlap"
	ViewFAPercent = "fa_percent"
)

// Filter is a named row predicate.
type Filter struct {
	Name string
	keep func(t *SampleTable, s Sample, a Annotation) bool
}

// IsotopePresent keeps samples with a complete isotope panel.
func IsotopePresent() Filter {
	return Filter{Name: "isotope_present", keep: func(t *SampleTable, s Sample, _ Annotation) bool {
		return t.HasIsotopes(s)
	}}
}

// FattyAcidPresent keeps samples with a complete fatty-acid panel.
func FattyAcidPresent() Filter {
	return Filter{Name: "fatty_acid_present", keep: func(t *SampleTable, s Sample, _ Annotation) bool {
		return t.HasFattyAcids(s)
	}}
}

// SpeciesIn keeps the listed species.
func SpeciesIn(species ...string) Filter {
	set := toSet(species)
	return Filter{Name: "species in {" + strings.Join(species, ", ") + "}", keep: func(_ *SampleTable, s Sample, _ Annotation) bool {
		return set[s.Species]
	}}
}

// PhylumIn keeps the listed divisions.
func PhylumIn(phyla ...string) Filter {
	set := toSet(phyla)
	return Filter{Name: "phylum in {" + strings.Join(phyla, ", ") + "}", keep: func(_ *SampleTable, _ Sample, a Annotation) bool {
		return set[a.Phylum]
	}}
}

// PublishedOnly keeps species flagged as published in the taxonomy table.
func PublishedOnly() Filter {
	return Filter{Name: "published", keep: func(_ *SampleTable, _ Sample, a Annotation) bool {
		return a.Published
	}}
}

func toSet(xs []string) map[string]bool {
	m := make(map[string]bool, len(xs))
	for _, x := range xs {
		m[x] = true
	}
	return m
}

// Panel selects a marker block.
type Panel int

const (
	PanelAll Panel = iota
	PanelIsotope
	PanelFattyAcid
)

// ColumnRange selects the inclusive marker range From..To in table order.
type ColumnRange struct {
	From, To string
}

// ViewSpec describes one derived view: row filters (intersected), then columns.
// Column precedence: Markers, then Range, then Panel.
type ViewSpec struct {
	Name    string
	Filters []Filter
	Markers []string
	Range   *ColumnRange
	Panel   Panel
}

// Builder derives views from one table. Every species is resolved at construction.
type Builder struct {
	table       *SampleTable
	annotations []Annotation
}

// NewBuilder joins taxonomy onto every sample. Any unresolved species is an error.
func NewBuilder(t *SampleTable, r *taxonomy.Resolver) (*Builder, error) {
	b := &Builder{table: t, annotations: make([]Annotation, len(t.Samples))}
	for i, s := range t.Samples {
		rec, err := r.Resolve(s.Species)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", t.Name, s.Key+2, err)
		}
		b.annotations[i] = Annotation{
			Key:       s.Key,
			Species:   s.Species,
			Phylum:    rec.Phylum,
			Order:     rec.Order,
			Family:    rec.Family,
			Site:      s.Site,
			Published: rec.Published,
		}
	}
	return b, nil
}

// Table returns the source table.
func (b *Builder) Table() *SampleTable { return b.table }

// Build applies the row filters and column selection.
func (b *Builder) Build(spec ViewSpec) (*View, error) {
	names := make([]string, len(spec.Filters))
	for i, f := range spec.Filters {
		names[i] = f.Name
	}
	fail := func(err error) (*View, error) {
		return nil, &ViewError{View: spec.Name, Filters: names, Err: err}
	}
	cols, err := b.columns(spec)
	if err != nil {
		return fail(err)
	}
	v := &View{Name: spec.Name, Filters: names}
	for _, m := range cols {
		v.Markers = append(v.Markers, b.table.Markers[m])
	}
	for i, s := range b.table.Samples {
		a := b.annotations[i]
		keep := true
		for _, f := range spec.Filters {
			if !f.keep(b.table, s, a) {
				keep = false
				break
			}
		}
		if !keep {
			continue
		}
		row := make([]float64, len(cols))
		for k, m := range cols {
			row[k] = s.Values[m]
		}
		v.Rows = append(v.Rows, row)
		v.Annotations = append(v.Annotations, a)
	}
	if len(v.Rows) == 0 {
		return fail(ErrEmptyView)
	}
	return v, nil
}

func (b *Builder) columns(spec ViewSpec) ([]int, error) {
	t := b.table
	lookup := func(m string) (int, error) {
		i, ok := t.MarkerIndex(m)
		if !ok {
			return 0, fmt.Errorf("%q: %w", m, ErrUnknownMarker)
		}
		return i, nil
	}
	switch {
	case len(spec.Markers) > 0:
		out := make([]int, len(spec.Markers))
		for k, m := range spec.Markers {
			i, err := lookup(m)
			if err != nil {
				return nil, err
			}
			out[k] = i
		}
		return out, nil
	case spec.Range != nil:
		from, err := lookup(spec.Range.From)
		if err != nil {
			return nil, err
		}
		to, err := lookup(spec.Range.To)
		if err != nil {
			return nil, err
		}
		if to < from {
			return nil, fmt.Errorf("range %s..%s is reversed", spec.Range.From, spec.Range.To)
		}
		return seq(from, to+1), nil
	}
	switch spec.Panel {
	case PanelIsotope:
		return seq(0, len(t.Isotopes)), nil
	case PanelFattyAcid:
		return seq(len(t.Isotopes), len(t.Markers)), nil
	default:
		return seq(0, len(t.Markers)), nil
	}
}

func seq(lo, hi int) []int {
	out := make([]int, 0, hi-lo)
	for i := lo; i < hi; i++ {
		out = append(out, i)
	}
	return out
}

// Phyla lists the divisions present in the table, sorted.
func (b *Builder) Phyla() []string {
	set := map[string]bool{}
	for _, a := range b.annotations {
		set[a.Phylum] = true
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// StandardSpecs are the views every pipeline run starts from.
func StandardSpecs() []ViewSpec {
	return []ViewSpec{
		{Name: ViewWide, Panel: PanelAll},
		{Name: ViewFA, Filters: []Filter{FattyAcidPresent()}, Panel: PanelFattyAcid},
		{Name: ViewSI, Filters: []Filter{IsotopePresent()}, Panel: PanelIsotope},
		{Name: ViewOverlap, Filters: []Filter{IsotopePresent(), FattyAcidPresent()}, Panel: PanelAll},
	}
}

// Standard builds the standard views plus fa_percent and one fa_<phylum> view per
// division, keyed by name. Order lists the names in build order. A standard view
// that cannot be built (typically no row passes its filters) is left out and
// reported in failed; the others are still returned.
func (b *Builder) Standard() (views map[string]*View, order []string, failed []*ViewError) {
	views = map[string]*View{}
	add := func(v *View) {
		views[v.Name] = v
		order = append(order, v.Name)
	}
	for _, spec := range StandardSpecs() {
		v, err := b.Build(spec)
		if err != nil {
			failed = append(failed, asViewError(spec, err))
			continue
		}
		add(v)
	}
	if fa, ok := views[ViewFA]; ok {
		pct := fa.Percent()
		pct.Name = ViewFAPercent
		add(pct)
	} else {
		cause := error(ErrEmptyView)
		for _, ve := range failed {
			if ve.View == ViewFA {
				cause = ve.Err
			}
		}
		failed = append(failed, &ViewError{View: ViewFAPercent, Filters: []string{FattyAcidPresent().Name}, Err: cause})
	}
	for _, p := range b.Phyla() {
		v, err := b.Build(ViewSpec{
			Name:    ViewFA + "_" + strings.ToLower(p),
			Filters: []Filter{FattyAcidPresent(), PhylumIn(p)},
			Panel:   PanelFattyAcid,
		})
		if err != nil {
			// a division without any FA-complete sample simply has no view
			continue
		}
		add(v)
	}
	return views, order, failed
}

func asViewError(spec ViewSpec, err error) *ViewError {
	var ve *ViewError
	if errors.As(err, &ve) {
		return ve
	}
	names := make([]string, len(spec.Filters))
	for i, f := range spec.Filters {
		names[i] = f.Name
	}
	return &ViewError{View: spec.Name, Filters: names, Err: err}
}
