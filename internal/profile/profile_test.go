package profile

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KaramelBytes/algamark-cli/internal/tabular"
)

var csvRows = []string{
	"Species;Site;d13C [permil];C16:0;Note",
	"Desmarestia menziesii;Palmer;-28;0,30;first",
	"Desmarestia menziesii;Palmer;-27;0,32;second",
	"Palmaria decipiens;Biscoe;-29;0,25;third",
	"Palmaria decipiens;Biscoe;-28;0,27;fourth",
	"Iridaea cordata;Biscoe;-27,5;0,20;fifth",
	"Iridaea cordata;Biscoe;-28,5;0,22;sixth",
	"Ulva intestinalis;Palmer;-28;0,40;seventh",
	"Ulva intestinalis;Palmer;-27,8;0,42;eighth",
	"Ulva intestinalis;Palmer;-10;0,41;ninth",
	"Ulva intestinalis;Palmer;NA;0,39;tenth",
}

func readFixture(t *testing.T) *tabular.Table {
	t.Helper()
	p := filepath.Join(t.TempDir(), "raw.csv")
	if err := os.WriteFile(p, []byte(strings.Join(csvRows, "\n")), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tab, err := tabular.Read(p, tabular.Options{})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return tab
}

func column(t *testing.T, r *Report, name string) ColumnSummary {
	t.Helper()
	for _, c := range r.Cols {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("column %q not found", name)
	return ColumnSummary{}
}

func TestProfileAndMarkdown(t *testing.T) {
	opt := DefaultOptions()
	opt.GroupBy = []string{"Site"}
	rep := Profile(readFixture(t), opt)

	if rep.Rows != 10 || len(rep.Cols) != 5 {
		t.Fatalf("rows=%d cols=%d", rep.Rows, len(rep.Cols))
	}

	iso := column(t, rep, "d13C")
	if iso.Kind != "numeric" || iso.Unit != "permil" {
		t.Fatalf("d13C kind=%s unit=%q", iso.Kind, iso.Unit)
	}
	if iso.NonNull != 9 || iso.Missing != 1 {
		t.Fatalf("d13C non-null=%d missing=%d", iso.NonNull, iso.Missing)
	}
	if iso.Median != -28 || math.Abs(iso.MAD-0.5) > 1e-12 {
		t.Fatalf("median=%v mad=%v", iso.Median, iso.MAD)
	}
	if iso.Min != -29 || iso.Max != -10 {
		t.Fatalf("bounds %v..%v", iso.Min, iso.Max)
	}
	if iso.OutliersCount != 1 {
		t.Fatalf("outliers=%d, want 1", iso.OutliersCount)
	}
	if want := 0.6745 * 18 / 0.5; math.Abs(iso.OutliersMaxAbsZ-want) > 1e-9 {
		t.Fatalf("max |z| = %v, want %v", iso.OutliersMaxAbsZ, want)
	}

	fa := column(t, rep, "C16:0")
	if fa.Kind != "numeric" || fa.Unit != "" {
		t.Fatalf("C16:0 kind=%s unit=%q", fa.Kind, fa.Unit)
	}
	if math.Abs(fa.Max-0.42) > 1e-12 {
		t.Fatalf("decimal comma not parsed: max=%v", fa.Max)
	}

	sp := column(t, rep, "Species")
	if sp.Kind != "categorical" || sp.Unique != 4 {
		t.Fatalf("species kind=%s unique=%d", sp.Kind, sp.Unique)
	}
	if sp.TopValues[0].Value != "Ulva intestinalis" || sp.TopValues[0].Count != 4 {
		t.Fatalf("top value = %+v", sp.TopValues[0])
	}
	if note := column(t, rep, "Note"); note.Kind != "text" {
		t.Fatalf("note kind = %s", note.Kind)
	}

	if len(rep.Groups) != 2 {
		t.Fatalf("groups = %d", len(rep.Groups))
	}
	if rep.Groups[0].Key != "Site=Palmer" || rep.Groups[0].Size != 6 {
		t.Fatalf("first group = %+v", rep.Groups[0])
	}
	if got := rep.Groups[1].Means["d13C"]; math.Abs(got-(-28.25)) > 1e-9 {
		t.Fatalf("Biscoe d13C mean = %v", got)
	}

	md := rep.Markdown()
	for _, want := range []string{
		"[DATASET SUMMARY]", "Rows: 10", "[SCHEMA]",
		"- d13C [permil]: numeric", "outliers: 1 above |z|>3.5",
		"Ulva intestinalis(4)", "[GROUP-BY SUMMARY]", "[HEAD AND SAMPLE ROWS]",
	} {
		if !strings.Contains(md, want) {
			t.Fatalf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestProfileShortColumnSkipsOutliers(t *testing.T) {
	tab := &tabular.Table{
		Header: []string{"x"},
		Rows:   [][]string{{"1"}, {"2"}, {"100"}},
	}
	rep := Profile(tab, DefaultOptions())
	c := rep.Cols[0]
	if c.OutlierThreshold != 0 || c.OutliersCount != 0 {
		t.Fatalf("outliers computed for %d values: %+v", c.NonNull, c)
	}
	if strings.Contains(rep.Markdown(), "outliers:") {
		t.Fatal("markdown reports outliers for a short column")
	}
}

func TestProfileMixedColumnWarns(t *testing.T) {
	tab := &tabular.Table{
		Header: []string{"CN ratio", "blank"},
		Rows:   [][]string{{"10,5", ""}, {"11", "NA"}, {"pending", "-"}},
	}
	rep := Profile(tab, DefaultOptions())
	if rep.Cols[0].Kind != "numeric" || len(rep.Warnings) != 1 {
		t.Fatalf("kind=%s warnings=%v", rep.Cols[0].Kind, rep.Warnings)
	}
	if rep.Cols[1].Kind != "empty" || rep.Cols[1].Missing != 3 {
		t.Fatalf("blank column = %+v", rep.Cols[1])
	}
	if !strings.Contains(rep.Markdown(), "[NOTES]") {
		t.Fatal("notes section missing")
	}
}

func TestSplitUnitsKeepsMarkerNames(t *testing.T) {
	cases := map[string][2]string{
		"Ice cover (%)":  {"Ice cover", "%"},
		"d15N [permil]":  {"d15N", "permil"},
		"C18:3(n-3)":     {"C18:3(n-3)", ""},
		"  CN ratio  ":   {"CN ratio", ""},
	}
	for in, want := range cases {
		c, u := splitUnits(in)
		if c != want[0] || u != want[1] {
			t.Fatalf("splitUnits(%q) = %q, %q", in, c, u)
		}
	}
}
