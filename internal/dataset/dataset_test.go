package dataset

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/algamark-cli/internal/tabular"
	"github.com/KaramelBytes/algamark-cli/internal/taxonomy"
)

// Four species; Ulva intestinalis has no isotope panel, Iridaea cordata has one
// sample with a missing fatty acid.
const fixtureCSV = `Project ID,Site,Species,Ice cover,CN ratio,d15N,d13C,C16:0,C18:1n9,C19:0,C20:5n3
P1,Palmer,Desmarestia menziesii,0.4,12.1,4.2,-28.1,0.30,0.20,0.01,0.50
P1,Palmer,Desmarestia menziesii,0.4,11.8,4.0,-27.9,0.32,0.18,0.01,0.50
P1,Biscoe,Palmaria decipiens,0.7,9.4,5.1,-22.3,0.25,0.05,0.01,0.70
P1,Biscoe,Palmaria decipiens,0.7,9.9,5.3,-22.0,0.27,0.06,0.02,0.67
P2,Palmer,Ulva intestinalis,0.1,NA,NA,NA,0.40,0.30,0.01,0.30
P2,Palmer,Ulva intestinalis,0.1,,,,0.42,0.28,0.01,0.30
P2,Biscoe,Iridaea cordata,0.6,10.5,6.0,-30.2,0.20,0.10,0.01,0.70
P2,Biscoe,Iridaea cordata,0.6,10.2,6.2,-30.0,0.22,n/a,0.01,0.68
`

func writeFixture(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "biomarkers.csv")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func newBuilder(t *testing.T) *Builder {
	t.Helper()
	tbl, err := Load(writeFixture(t, fixtureCSV), DefaultLoadOptions())
	require.NoError(t, err)
	r, err := taxonomy.Default()
	require.NoError(t, err)
	b, err := NewBuilder(tbl, r)
	require.NoError(t, err)
	return b
}

func speciesSet(v *View) map[string]bool {
	out := map[string]bool{}
	for _, a := range v.Annotations {
		out[a.Species] = true
	}
	return out
}

func TestLoadSchema(t *testing.T) {
	tbl, err := Load(writeFixture(t, fixtureCSV), DefaultLoadOptions())
	require.NoError(t, err)

	assert.Equal(t, IsotopeMarkers, tbl.Isotopes)
	assert.Equal(t, []string{"C16:0", "C18:1n9", "C20:5n3"}, tbl.FattyAcids)
	assert.Equal(t, "C19:0", tbl.Dropped)
	require.Len(t, tbl.Samples, 8)
	assert.True(t, math.IsNaN(tbl.Value(tbl.Samples[4], MarkerD13C)))
	assert.InDelta(t, -28.1, tbl.Value(tbl.Samples[0], MarkerD13C), 1e-12)
	assert.False(t, tbl.HasIsotopes(tbl.Samples[5]))
	assert.False(t, tbl.HasFattyAcids(tbl.Samples[7]))
}

func TestLoadNormalizesHeaders(t *testing.T) {
	body := strings.Replace(fixtureCSV, "Project ID,Site,Species,Ice cover,CN ratio", "project_id,SITE,species,Ice-Cover,cn ratio", 1)
	tbl, err := Load(writeFixture(t, body), DefaultLoadOptions())
	require.NoError(t, err)
	assert.Len(t, tbl.Samples, 8)
}

func TestLoadMissingColumns(t *testing.T) {
	body := strings.Replace(fixtureCSV, "Ice cover,", "Ice,", 1)
	_, err := Load(writeFixture(t, body), DefaultLoadOptions())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchema)
	var se *SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, []string{ColIceCover}, se.Missing)
}

func TestLoadMissingControlColumn(t *testing.T) {
	_, err := Load(writeFixture(t, fixtureCSV), LoadOptions{ControlColumn: "C23:0"})
	assert.ErrorIs(t, err, ErrSchema)

	tbl, err := Load(writeFixture(t, fixtureCSV), LoadOptions{})
	require.NoError(t, err)
	assert.Contains(t, tbl.FattyAcids, "C19:0")
}

func TestLoadRejectsSplitIsotopeBlock(t *testing.T) {
	raw := &tabular.Table{
		Name:   "split",
		Header: []string{"Project ID", "Site", "Species", "Ice cover", "CN ratio", "C16:0", "d15N", "d13C", "C19:0"},
		Rows:   [][]string{{"P", "S", "Ulva intestinalis", "0", "1", "2", "3", "4", "5"}},
	}
	_, err := FromTable(raw, DefaultLoadOptions())
	var se *SchemaError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Detail, "contiguous")
}

func TestLoadBadValue(t *testing.T) {
	body := strings.Replace(fixtureCSV, "12.1,4.2", "12.1,abc", 1)
	_, err := Load(writeFixture(t, body), DefaultLoadOptions())
	require.ErrorIs(t, err, ErrValue)
	assert.Contains(t, err.Error(), "line 2")
}

func TestLoadRejectsPercentCell(t *testing.T) {
	body := strings.Replace(fixtureCSV, "0.30,0.20,0.01,0.50", "0.30,12%,0.01,0.50", 1)
	_, err := Load(writeFixture(t, body), DefaultLoadOptions())
	require.ErrorIs(t, err, ErrValue)
	assert.Contains(t, err.Error(), `"12%"`)
}

func TestNewBuilderUnresolvedSpecies(t *testing.T) {
	body := strings.Replace(fixtureCSV, "Iridaea cordata", "Iridaea undulosa", 1)
	tbl, err := Load(writeFixture(t, body), DefaultLoadOptions())
	require.NoError(t, err)
	r, err := taxonomy.Default()
	require.NoError(t, err)

	_, err = NewBuilder(tbl, r)
	require.ErrorIs(t, err, taxonomy.ErrUnresolved)
	var ue *taxonomy.UnresolvedError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "Iridaea undulosa", ue.Species)
}

func TestStandardViews(t *testing.T) {
	b := newBuilder(t)
	views, order, failed := b.Standard()
	require.Empty(t, failed)
	assert.Equal(t, []string{"wide", "fa", "si", "overlap", "fa_percent", "fa_chlorophyta", "fa_ochrophyta", "fa_rhodophyta"}, order)

	fa := views[ViewFA]
	assert.Len(t, speciesSet(fa), 4)
	assert.Equal(t, 7, fa.Len())
	assert.Equal(t, []string{"C16:0", "C18:1n9", "C20:5n3"}, fa.Markers)

	overlap := views[ViewOverlap]
	assert.Len(t, speciesSet(overlap), 3)
	assert.False(t, speciesSet(overlap)["Ulva intestinalis"])
	assert.Equal(t, 5, overlap.Len())

	si := views[ViewSI]
	assert.Equal(t, IsotopeMarkers, si.Markers)
	assert.Equal(t, 6, si.Len())

	pct := views[ViewFAPercent]
	assert.InDelta(t, 30.0, pct.Rows[0][0], 1e-9)
	assert.Equal(t, []string{"percent"}, pct.Transforms)

	for _, a := range views["fa_rhodophyta"].Annotations {
		assert.Equal(t, "Rhodophyta", a.Phylum)
	}
}

// blankIsotopes replaces every isotope cell of the fixture with NA.
func blankIsotopes(body string) string {
	lines := strings.Split(strings.TrimSpace(body), "\n")
	for i := 1; i < len(lines); i++ {
		f := strings.Split(lines[i], ",")
		f[4], f[5], f[6] = "NA", "NA", "NA"
		lines[i] = strings.Join(f, ",")
	}
	return strings.Join(lines, "\n") + "\n"
}

func TestStandardViewsWithoutIsotopes(t *testing.T) {
	tbl, err := Load(writeFixture(t, blankIsotopes(fixtureCSV)), DefaultLoadOptions())
	require.NoError(t, err)
	r, err := taxonomy.Default()
	require.NoError(t, err)
	b, err := NewBuilder(tbl, r)
	require.NoError(t, err)

	views, order, failed := b.Standard()
	assert.Equal(t, []string{"wide", "fa", "fa_percent", "fa_chlorophyta", "fa_ochrophyta", "fa_rhodophyta"}, order)
	assert.Equal(t, 7, views[ViewFA].Len())

	require.Len(t, failed, 2)
	assert.Equal(t, ViewSI, failed[0].View)
	assert.Equal(t, []string{"isotope_present"}, failed[0].Filters)
	assert.ErrorIs(t, failed[0], ErrEmptyView)
	assert.Equal(t, ViewOverlap, failed[1].View)
	assert.Equal(t, []string{"isotope_present", "fatty_acid_present"}, failed[1].Filters)
}

func TestOverlapIsIntersectionOfPanels(t *testing.T) {
	b := newBuilder(t)
	overlap, err := b.Build(ViewSpec{Name: "overlap", Filters: []Filter{IsotopePresent(), FattyAcidPresent()}})
	require.NoError(t, err)

	var want []int
	for _, s := range b.Table().Samples {
		if b.Table().HasIsotopes(s) && b.Table().HasFattyAcids(s) {
			want = append(want, s.Key)
		}
	}
	var got []int
	for _, a := range overlap.Annotations {
		got = append(got, a.Key)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("overlap keys (-want +got):\n%s", diff)
	}
}

func TestRowsAndAnnotationsStayAligned(t *testing.T) {
	b := newBuilder(t)
	v, err := b.Build(ViewSpec{Name: "red", Filters: []Filter{PhylumIn("Rhodophyta")}, Markers: []string{MarkerD13C}})
	require.NoError(t, err)
	require.Equal(t, v.Len(), len(v.Annotations))
	for i, a := range v.Annotations {
		s := b.Table().Samples[a.Key]
		assert.Equal(t, s.Species, a.Species)
		if !math.IsNaN(v.Rows[i][0]) {
			assert.Equal(t, b.Table().Value(s, MarkerD13C), v.Rows[i][0])
		}
	}
}

func TestBuildErrors(t *testing.T) {
	b := newBuilder(t)

	_, err := b.Build(ViewSpec{Name: "none", Filters: []Filter{SpeciesIn("Ascoseira mirabilis")}})
	require.ErrorIs(t, err, ErrEmptyView)
	var ve *ViewError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "none", ve.View)
	assert.Equal(t, []string{"species in {Ascoseira mirabilis}"}, ve.Filters)

	_, err = b.Build(ViewSpec{Name: "bad", Markers: []string{"C99:0"}})
	assert.ErrorIs(t, err, ErrUnknownMarker)

	v, err := b.Build(ViewSpec{Name: "range", Range: &ColumnRange{From: MarkerD15N, To: "C18:1n9"}})
	require.NoError(t, err)
	assert.Equal(t, []string{MarkerD15N, MarkerD13C, "C16:0", "C18:1n9"}, v.Markers)

	_, err = b.Build(ViewSpec{Name: "rev", Range: &ColumnRange{From: "C18:1n9", To: MarkerD15N}})
	assert.Error(t, err)
}

func TestViewTransforms(t *testing.T) {
	b := newBuilder(t)
	si, err := b.Build(ViewSpec{Name: "si", Filters: []Filter{IsotopePresent()}, Panel: PanelIsotope})
	require.NoError(t, err)
	require.True(t, si.HasNegative())

	abs := si.Abs()
	assert.False(t, abs.HasNegative())
	assert.Equal(t, []string{"abs"}, abs.Transforms)
	assert.True(t, si.HasNegative(), "source view must be unchanged")

	means := si.SpeciesMeans()
	assert.Equal(t, []string{"Desmarestia menziesii", "Palmaria decipiens", "Iridaea cordata"}, means.Labels())
	assert.InDelta(t, -28.0, means.Rows[0][2], 1e-9)

	phyla, err := si.Factor(FactorPhylum)
	require.NoError(t, err)
	assert.Equal(t, "Ochrophyta", phyla[0])
	_, err = si.Factor("genus")
	assert.Error(t, err)

	sub, err := si.Subset("si_red", "phylum=Rhodophyta", func(a Annotation) bool { return a.Phylum == "Rhodophyta" })
	require.NoError(t, err)
	assert.Equal(t, 4, sub.Len())
	assert.Equal(t, append(si.Filters, "phylum=Rhodophyta"), sub.Filters)
}

func TestViewCSVExport(t *testing.T) {
	b := newBuilder(t)
	v, err := b.Build(ViewSpec{Name: "ulva", Filters: []Filter{SpeciesIn("Ulva intestinalis")}, Markers: []string{MarkerCN, "C16:0"}})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, v.WriteCSV(&buf))
	want := "key,species,phylum,order,family,site,CN ratio,C16:0\n" +
		"4,Ulva intestinalis,Chlorophyta,Ulvales,Ulvaceae,Palmer,NA,0.4\n" +
		"5,Ulva intestinalis,Chlorophyta,Ulvales,Ulvaceae,Palmer,NA,0.42\n"
	assert.Equal(t, want, buf.String())

	long := v.Melt()
	require.Len(t, long.Records, 4)
	assert.Equal(t, "C16:0", long.Records[1].Marker)
	buf.Reset()
	require.NoError(t, long.WriteCSV(&buf))
	assert.Equal(t, 5, strings.Count(buf.String(), "\n"))
}
