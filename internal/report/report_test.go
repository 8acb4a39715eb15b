package report_test

import (
	"math"
	"strings"
	"testing"

	"github.com/KaramelBytes/algamark-cli/internal/community"
	"github.com/KaramelBytes/algamark-cli/internal/dataset"
	"github.com/KaramelBytes/algamark-cli/internal/distance"
	"github.com/KaramelBytes/algamark-cli/internal/ordination"
	"github.com/KaramelBytes/algamark-cli/internal/report"
	"github.com/KaramelBytes/algamark-cli/internal/summary"
	"github.com/KaramelBytes/algamark-cli/internal/univariate"
)

func mustContain(t *testing.T, out string, wants ...string) {
	t.Helper()
	for _, w := range wants {
		if !strings.Contains(out, w) {
			t.Errorf("expected %q in output:\n%s", w, out)
		}
	}
}

func TestASCIIAndMarkdownModes(t *testing.T) {
	tb := report.NewTable(report.ASCII)
	tb.Header("Marker", "Mean")
	tb.Row("C16:0", report.Num(0.31))
	ascii := tb.String()
	mustContain(t, ascii, "Marker", "0.310", "───")

	md := report.NewTable(report.Markdown)
	md.Header("Marker", "Mean")
	md.Row("C16:0", report.Num(0.31))
	mustContain(t, md.String(), "| Marker", "---", "C16:0")
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]report.Mode{"": report.ASCII, "ASCII": report.ASCII, "md": report.Markdown, "markdown": report.Markdown} {
		got, err := report.ParseMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := report.ParseMode("html"); err == nil {
		t.Fatal("expected error for html")
	}
}

func TestNumRoundsOnlyForDisplay(t *testing.T) {
	cases := map[float64]string{
		1.23456:      "1.235",
		-0.0001:      "0.000",
		math.NaN():   "NA",
		math.Inf(1):  "Inf",
		2:            "2.000",
		-28.12345678: "-28.123",
	}
	for in, want := range cases {
		if got := report.Num(in); got != want {
			t.Errorf("Num(%v) = %q, want %q", in, got, want)
		}
	}
	if got := report.PValue(0.0004); got != "<0.001" {
		t.Errorf("PValue = %q", got)
	}
	if got := report.PValue(0.0123); got != "0.012" {
		t.Errorf("PValue = %q", got)
	}
}

func TestResultTables(t *testing.T) {
	perm := &community.PermanovaResult{
		Terms:        []community.Term{{Name: "phylum", Df: 2, SumSq: 1.5, MeanSq: 0.75, F: 12.3456, R2: 0.6, P: 0.001}},
		Residual:     community.Term{Name: "Residual", Df: 9, SumSq: 1, R2: 0.4, MeanSq: math.NaN()},
		Total:        community.Term{Name: "Total", Df: 11, SumSq: 2.5, R2: 1},
		Permutations: 999,
	}
	mustContain(t, report.Permanova(report.ASCII, perm), "phylum", "12.346", "Residual", "999 perms")

	pairs := []community.SimperPair{{
		GroupA: "Chlorophyta", GroupB: "Rhodophyta",
		Contributions: []community.Contribution{
			{Marker: "C20:5n3", Average: 0.2, Cumulative: 0.7, P: 0.01},
			{Marker: "C16:0", Average: 0.05, Cumulative: 0.9, P: 0.2},
			{Marker: "C18:1n9", Average: 0.03, Cumulative: 1, P: 0.5},
		},
	}}
	simper := report.Simper(report.Markdown, pairs, 0.83)
	mustContain(t, simper, "Chlorophyta vs Rhodophyta", "C20:5n3", "C16:0")
	if strings.Contains(simper, "C18:1n9") {
		t.Errorf("marker beyond threshold rendered:\n%s", simper)
	}

	pca := &ordination.Result{
		Markers:    []string{"C16:0", "d13C"},
		SDev:       []float64{1.2, 0.5},
		Eigen:      []float64{1.44, 0.25},
		Proportion: []float64{0.852, 0.148},
		Cumulative: []float64{0.852, 1},
		Loadings:   [][]float64{{0.7071, -0.7071}, {0.7071, 0.7071}},
	}
	mustContain(t, report.PCAImportance(report.ASCII, pca), "PC1", "0.852", "1.000")
	load := report.PCALoadings(report.ASCII, pca, 1)
	mustContain(t, load, "d13C", "0.707")
	if strings.Contains(load, "PC2") {
		t.Errorf("axis limit ignored:\n%s", load)
	}

	nmds := &community.NMDSResult{Points: [][]float64{{0.1, -0.2}, {-0.1, 0.2}}, Stress: 0.0812, Converged: false, Repeats: 3, Tries: make([]community.Try, 20)}
	mustContain(t, report.NMDS(report.ASCII, nmds, []string{"Ulva intestinalis", "Iridaea cordata"}), "Iridaea cordata", "0.081", "not converged", "3/20 tries")
}

func TestDendrogramAndClusters(t *testing.T) {
	dm, err := distance.Compute([][]float64{{0}, {1}, {10}, {11}}, distance.Euclidean)
	if err != nil {
		t.Fatal(err)
	}
	d, err := distance.Ward(dm, []string{"a", "b", "c", "d"})
	if err != nil {
		t.Fatal(err)
	}
	out := report.Dendrogram(report.ASCII, d)
	mustContain(t, out, "#1", "#2")
	cut, err := d.Cut(2)
	if err != nil {
		t.Fatal(err)
	}
	mustContain(t, report.Clusters(report.Markdown, d, cut), "| a", "| d")
}

func TestUnivariateTables(t *testing.T) {
	y := []float64{10, 12, 11, 13, 20, 18, 22, 19}
	g := []string{"a", "a", "a", "a", "b", "b", "b", "b"}
	m, tab, err := univariate.ANOVAOnLog(y, g, "CN ratio", "phylum")
	if err != nil {
		t.Fatal(err)
	}
	mustContain(t, report.ANOVA(report.ASCII, tab), "phylum", "Residuals")
	mustContain(t, report.Coefficients(report.ASCII, m), "(Intercept)", "phylumb", "sigma")
	cmps, err := univariate.PairwiseTukey(m)
	if err != nil {
		t.Fatal(err)
	}
	mustContain(t, report.Tukey(report.ASCII, cmps), "b-a")
	d := &univariate.Diagnostics{Simulations: 250, Seed: 7, KS: 0.1, KSP: 0.6, Dispersion: 1.02, DispersionP: 0.9}
	mustContain(t, report.Diagnostics(report.Markdown, d), "KS uniformity", "250 simulations", "seed 7")
}

func TestSummaryAndViews(t *testing.T) {
	v := &dataset.View{
		Name:    "fa",
		Markers: []string{"C16:0"},
		Rows:    [][]float64{{0.3}, {0.32}, {0.25}},
		Annotations: []dataset.Annotation{
			{Key: 0, Species: "Desmarestia menziesii", Phylum: "Ochrophyta"},
			{Key: 1, Species: "Desmarestia menziesii", Phylum: "Ochrophyta"},
			{Key: 2, Species: "Palmaria decipiens", Phylum: "Rhodophyta"},
		},
		Filters: []string{"fatty_acid_present"},
	}
	s, err := summary.GroupSummary(v, []string{dataset.FactorPhylum}, nil)
	if err != nil {
		t.Fatal(err)
	}
	mustContain(t, report.Summary(report.ASCII, s), "Ochrophyta", "0.310", "NA")
	mustContain(t, report.Ranked(report.ASCII, summary.Ranked(s, 1)), "Rhodophyta", "0.250")
	mustContain(t, report.Views(report.ASCII, map[string]*dataset.View{"fa": v}, []string{"fa", "missing"}), "fatty_acid_present", "fa")
}
