package report

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/algamark-cli/internal/community"
	"github.com/KaramelBytes/algamark-cli/internal/dataset"
	"github.com/KaramelBytes/algamark-cli/internal/distance"
	"github.com/KaramelBytes/algamark-cli/internal/ordination"
	"github.com/KaramelBytes/algamark-cli/internal/summary"
	"github.com/KaramelBytes/algamark-cli/internal/univariate"
)

// Views lists derived views with their provenance.
func Views(m Mode, views map[string]*dataset.View, order []string) string {
	tb := NewTable(m)
	tb.Header("View", "Rows", "Species", "Markers", "Filters", "Transforms")
	for _, name := range order {
		v := views[name]
		if v == nil {
			continue
		}
		species := map[string]bool{}
		for _, a := range v.Annotations {
			species[a.Species] = true
		}
		tb.Row(v.Name, v.Len(), len(species), len(v.Markers), orDash(strings.Join(v.Filters, ", ")), orDash(strings.Join(v.Transforms, ", ")))
	}
	rightAlign(tb, 2, 4)
	return tb.String()
}

// Summary renders one row per group and marker.
func Summary(m Mode, s *summary.Summary) string {
	tb := NewTable(m)
	tb.Header(strings.Join(s.GroupBy, " / "), "N", "Marker", "Mean", "SD", "Missing")
	for _, g := range s.Groups {
		for _, st := range g.Stats {
			tb.Row(g.Label(), g.N, st.Marker, Num(st.Mean), Num(st.SD), st.Missing)
		}
	}
	tb.Columns(
		ColumnConfig{Number: 2, Align: AlignRight},
		ColumnConfig{Number: 4, Align: AlignRight},
		ColumnConfig{Number: 5, Align: AlignRight},
		ColumnConfig{Number: 6, Align: AlignRight},
	)
	return tb.String()
}

// Ranked renders each group's top markers by mean.
func Ranked(m Mode, groups []summary.RankedGroup) string {
	tb := NewTable(m)
	tb.Header("Group", "Rank", "Marker", "Mean", "SD")
	for _, g := range groups {
		label := strings.Join(g.Keys, " / ")
		for i, rm := range g.Markers {
			tb.Row(label, i+1, rm.Marker, Num(rm.Mean), Num(rm.SD))
		}
	}
	rightAlign(tb, 4, 5)
	return tb.String()
}

// Permanova renders the sequential PERMANOVA table.
func Permanova(m Mode, r *community.PermanovaResult) string {
	tb := NewTable(m)
	tb.Header("Term", "Df", "SumSq", "MeanSq", "F", "R2", "Pr(>F)")
	for _, t := range r.Terms {
		tb.Row(t.Name, t.Df, Num(t.SumSq), Num(t.MeanSq), Num(t.F), Num(t.R2), PValue(t.P))
	}
	tb.Row(r.Residual.Name, r.Residual.Df, Num(r.Residual.SumSq), Num(r.Residual.MeanSq), "", Num(r.Residual.R2), "")
	tb.Footer(r.Total.Name, r.Total.Df, Num(r.Total.SumSq), "", "", Num(r.Total.R2), fmt.Sprintf("%d perms", r.Permutations))
	rightAlign(tb, 2, 7)
	return tb.String()
}

// Simper renders every pair's discriminating markers (all markers when threshold >= 1).
func Simper(m Mode, pairs []community.SimperPair, threshold float64) string {
	tb := NewTable(m)
	tb.Header("Pair", "Marker", "Average", "SD", "Ratio", "Mean A", "Mean B", "Cumsum", "P")
	for _, p := range pairs {
		label := p.GroupA + " vs " + p.GroupB
		for _, c := range p.Discriminating(threshold) {
			tb.Row(label, c.Marker, Num(c.Average), Num(c.SD), Num(c.Ratio), Num(c.MeanA), Num(c.MeanB), Num(c.Cumulative), PValue(c.P))
		}
	}
	rightAlign(tb, 3, 9)
	return tb.String()
}

// NMDS renders the configuration with row labels and a stress footer.
func NMDS(m Mode, r *community.NMDSResult, labels []string) string {
	tb := NewTable(m)
	tb.Header("Sample", "Species", "NMDS1", "NMDS2")
	for i, pt := range r.Points {
		label := ""
		if i < len(labels) {
			label = labels[i]
		}
		tb.Row(i+1, label, Num(pt[0]), Num(pt[1]))
	}
	status := "converged"
	if !r.Converged {
		status = "not converged"
	}
	tb.Footer("stress", Num(r.Stress), status, fmt.Sprintf("%d/%d tries", r.Repeats, len(r.Tries)))
	rightAlign(tb, 3, 4)
	return tb.String()
}

// PCAImportance renders the variance explained per axis.
func PCAImportance(m Mode, r *ordination.Result) string {
	tb := NewTable(m)
	tb.Header("Axis", "SDev", "Eigenvalue", "Proportion", "Cumulative")
	for k := 0; k < r.Axes(); k++ {
		tb.Row(fmt.Sprintf("PC%d", k+1), Num(r.SDev[k]), Num(r.Eigen[k]), Num(r.Proportion[k]), Num(r.Cumulative[k]))
	}
	rightAlign(tb, 2, 5)
	return tb.String()
}

// PCALoadings renders the first axes loadings per marker (axes <= 0 means all).
func PCALoadings(m Mode, r *ordination.Result, axes int) string {
	if axes <= 0 || axes > r.Axes() {
		axes = r.Axes()
	}
	header := []string{"Marker"}
	for k := 0; k < axes; k++ {
		header = append(header, fmt.Sprintf("PC%d", k+1))
	}
	tb := NewTable(m)
	tb.Header(header...)
	for j, marker := range r.Markers {
		row := []any{marker}
		for k := 0; k < axes; k++ {
			row = append(row, Num(r.Loadings[j][k]))
		}
		tb.Row(row...)
	}
	rightAlign(tb, 2, axes+1)
	return tb.String()
}

// Dendrogram renders the merge sequence with leaf labels resolved.
func Dendrogram(m Mode, d *distance.Dendrogram) string {
	tb := NewTable(m)
	tb.Header("Step", "Left", "Right", "Height", "Size")
	for s, mg := range d.Merges {
		tb.Row(s+1, nodeName(d, mg.Left), nodeName(d, mg.Right), Num(mg.Height), mg.Size)
	}
	rightAlign(tb, 4, 5)
	return tb.String()
}

func nodeName(d *distance.Dendrogram, node int) string {
	if node < d.Len() {
		return d.Labels[node]
	}
	return fmt.Sprintf("#%d", node-d.Len()+1)
}

// Clusters renders a dendrogram cut in leaf order.
func Clusters(m Mode, d *distance.Dendrogram, clusters []int) string {
	tb := NewTable(m)
	tb.Header("Label", "Cluster")
	for _, leaf := range d.Order() {
		tb.Row(d.Labels[leaf], clusters[leaf])
	}
	rightAlign(tb, 2, 2)
	return tb.String()
}

// ANOVA renders the ANOVA table of a one-way model.
func ANOVA(m Mode, t *univariate.ANOVATable) string {
	tb := NewTable(m)
	tb.Header("Term", "Df", "SumSq", "MeanSq", "F", "Pr(>F)")
	for _, r := range t.Rows {
		if r.Term == "Residuals" {
			tb.Row(r.Term, r.Df, Num(r.SumSq), Num(r.MeanSq), "", "")
			continue
		}
		tb.Row(r.Term, r.Df, Num(r.SumSq), Num(r.MeanSq), Num(r.F), PValue(r.P))
	}
	rightAlign(tb, 2, 6)
	return tb.String()
}

// Coefficients renders the treatment-coded estimates of a model.
func Coefficients(m Mode, mod *univariate.Model) string {
	tb := NewTable(m)
	tb.Header("Term", "Estimate", "SE", "t", "Pr(>|t|)")
	for _, c := range mod.Coefficients {
		tb.Row(c.Term, Num(c.Estimate), Num(c.SE), Num(c.T), PValue(c.P))
	}
	tb.Footer("sigma "+Num(mod.Sigma), fmt.Sprintf("df %d", mod.DfResidual), "R2 "+Num(mod.RSquared), "", "")
	rightAlign(tb, 2, 5)
	return tb.String()
}

// Tukey renders pairwise comparisons as "B-A".
func Tukey(m Mode, cmps []univariate.Comparison) string {
	tb := NewTable(m)
	tb.Header("Comparison", "Diff", "Lower", "Upper", "p adj")
	for _, c := range cmps {
		tb.Row(c.B+"-"+c.A, Num(c.Diff), Num(c.Lower), Num(c.Upper), PValue(c.PAdj))
	}
	rightAlign(tb, 2, 5)
	return tb.String()
}

// Diagnostics renders the simulated residual checks.
func Diagnostics(m Mode, d *univariate.Diagnostics) string {
	tb := NewTable(m)
	tb.Header("Check", "Statistic", "P")
	tb.Row("KS uniformity", Num(d.KS), PValue(d.KSP))
	tb.Row("Dispersion", Num(d.Dispersion), PValue(d.DispersionP))
	tb.Row("Outliers", d.Outliers, "")
	tb.Footer(fmt.Sprintf("%d simulations", d.Simulations), fmt.Sprintf("seed %d", d.Seed), "")
	rightAlign(tb, 2, 3)
	return tb.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
