// Package profile describes a raw table column by column before any schema is
// applied: inferred kind, missingness, numeric spread and robust outliers.
package profile

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/aclements/go-moremath/stats"

	"github.com/KaramelBytes/algamark-cli/internal/tabular"
)

// Options controls profiling.
type Options struct {
	// SampleRows determines how many example rows to include in the report.
	SampleRows int
	// GroupBy computes per-group numeric means for the given column names.
	GroupBy []string
	// Outlier detection via robust Z-score (MAD); counts |z| > OutlierThreshold.
	Outliers         bool
	OutlierThreshold float64
}

// DefaultOptions returns reasonable defaults for describing a biomarker table.
func DefaultOptions() Options {
	return Options{SampleRows: 5, Outliers: true, OutlierThreshold: 3.5}
}

// Report is the profile of one table.
type Report struct {
	Name     string
	Rows     int
	Cols     []ColumnSummary
	Samples  [][]string
	Groups   []GroupResult
	Warnings []string
}

// ColumnSummary captures inferred kind and statistics per column.
type ColumnSummary struct {
	Name    string
	Kind    string // numeric|categorical|text|empty
	Unit    string
	NonNull int
	Missing int
	Unique  int
	// numeric
	Min, Max, Mean, Std float64
	Median, MAD         float64
	OutliersCount       int
	OutliersMaxAbsZ     float64
	OutlierThreshold    float64
	// categorical
	TopValues []CategoryCount
}

type CategoryCount struct {
	Value string
	Count int
}

// GroupResult captures per-group numeric means.
type GroupResult struct {
	Key   string
	Size  int
	Means map[string]float64
}

// Profile summarises every column of t.
func Profile(t *tabular.Table, opt Options) *Report {
	rep := &Report{Name: t.Name, Rows: len(t.Rows)}
	sampleRows := opt.SampleRows
	if sampleRows <= 0 {
		sampleRows = 5
	}
	for i := 0; i < len(t.Rows) && i < sampleRows; i++ {
		rep.Samples = append(rep.Samples, append([]string(nil), t.Rows[i]...))
	}

	numeric := make([][]float64, len(t.Header))
	isNumeric := make([]bool, len(t.Header))
	for j, h := range t.Header {
		clean, unit := splitUnits(h)
		c := ColumnSummary{Name: clean, Unit: unit}
		cats := map[string]int{}
		var text int
		for _, rec := range t.Rows {
			v := strings.TrimSpace(rec[j])
			if tabular.IsMissing(v) {
				c.Missing++
				continue
			}
			c.NonNull++
			if x, ok := tabular.ParseNumber(v); ok {
				numeric[j] = append(numeric[j], x)
				continue
			}
			text++
			if len(v) <= 64 {
				cats[v]++
			}
		}
		switch {
		case c.NonNull == 0:
			c.Kind = "empty"
		case len(numeric[j]) >= text:
			c.Kind = "numeric"
			isNumeric[j] = true
			describeNumeric(&c, numeric[j], opt)
			if text > 0 {
				rep.Warnings = append(rep.Warnings, fmt.Sprintf("column %q: %d non-numeric values ignored", clean, text))
			}
		case len(cats) > 0 && len(cats) < c.NonNull:
			c.Kind = "categorical"
			c.Unique = len(cats)
			c.TopValues = topValues(cats, 8)
		default:
			c.Kind = "text"
			c.Unique = len(cats)
		}
		rep.Cols = append(rep.Cols, c)
	}
	if len(opt.GroupBy) > 0 {
		rep.Groups = groupMeans(t, opt.GroupBy, isNumeric, rep.Cols)
	}
	return rep
}

func describeNumeric(c *ColumnSummary, vals []float64, opt Options) {
	s := stats.Sample{Xs: append([]float64(nil), vals...)}
	s.Sort()
	c.Min, c.Max = s.Bounds()
	c.Mean = s.Mean()
	if len(vals) > 1 {
		c.Std = s.StdDev()
	}
	c.Median = s.Quantile(0.5)
	dev := stats.Sample{Xs: make([]float64, len(vals))}
	for i, v := range vals {
		dev.Xs[i] = math.Abs(v - c.Median)
	}
	dev.Sort()
	c.MAD = dev.Quantile(0.5)
	if !opt.Outliers || len(vals) < 8 {
		return
	}
	thr := opt.OutlierThreshold
	if thr <= 0 {
		thr = 3.5
	}
	c.OutlierThreshold = thr
	if c.MAD == 0 {
		return
	}
	for _, v := range vals {
		az := math.Abs(0.6745 * (v - c.Median) / c.MAD)
		if az > thr {
			c.OutliersCount++
		}
		c.OutliersMaxAbsZ = math.Max(c.OutliersMaxAbsZ, az)
	}
}

func topValues(cats map[string]int, limit int) []CategoryCount {
	tops := make([]CategoryCount, 0, len(cats))
	for k, v := range cats {
		tops = append(tops, CategoryCount{Value: k, Count: v})
	}
	sort.Slice(tops, func(i, j int) bool {
		if tops[i].Count == tops[j].Count {
			return tops[i].Value < tops[j].Value
		}
		return tops[i].Count > tops[j].Count
	})
	if len(tops) > limit {
		tops = tops[:limit]
	}
	return tops
}

func groupMeans(t *tabular.Table, by []string, isNumeric []bool, cols []ColumnSummary) []GroupResult {
	index := map[string]int{}
	for j, c := range cols {
		index[strings.ToLower(c.Name)] = j
	}
	var keyCols []int
	for _, name := range by {
		if j, ok := index[strings.ToLower(strings.TrimSpace(name))]; ok {
			keyCols = append(keyCols, j)
		}
	}
	if len(keyCols) == 0 {
		return nil
	}
	type acc struct {
		size int
		sum  map[int]float64
		cnt  map[int]int
	}
	groups := map[string]*acc{}
	for _, rec := range t.Rows {
		parts := make([]string, len(keyCols))
		for k, j := range keyCols {
			parts[k] = fmt.Sprintf("%s=%s", cols[j].Name, safeVal(strings.TrimSpace(rec[j])))
		}
		key := strings.Join(parts, " | ")
		g := groups[key]
		if g == nil {
			g = &acc{sum: map[int]float64{}, cnt: map[int]int{}}
			groups[key] = g
		}
		g.size++
		for j, ok := range isNumeric {
			if !ok {
				continue
			}
			if x, parsed := tabular.ParseNumber(rec[j]); parsed && !math.IsNaN(x) {
				g.sum[j] += x
				g.cnt[j]++
			}
		}
	}
	out := make([]GroupResult, 0, len(groups))
	for key, g := range groups {
		gr := GroupResult{Key: key, Size: g.size, Means: map[string]float64{}}
		for j, n := range g.cnt {
			gr.Means[cols[j].Name] = g.sum[j] / float64(n)
		}
		out = append(out, gr)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Size == out[j].Size {
			return out[i].Key < out[j].Key
		}
		return out[i].Size > out[j].Size
	})
	if len(out) > 20 {
		out = out[:20]
	}
	return out
}

// Markdown renders a compact report.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if r.Name != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", r.Name))
	}
	b.WriteString(fmt.Sprintf("Rows: %d\n", r.Rows))
	b.WriteString(fmt.Sprintf("Columns: %d\n\n", len(r.Cols)))

	b.WriteString("[SCHEMA]\n")
	for _, c := range r.Cols {
		total := c.NonNull + c.Missing
		missPct := 0.0
		if total > 0 {
			missPct = float64(c.Missing) * 100.0 / float64(total)
		}
		name := safeName(c.Name)
		if c.Unit != "" {
			name = fmt.Sprintf("%s [%s]", name, c.Unit)
		}
		b.WriteString(fmt.Sprintf("- %s: %s (non-null %d, missing %.1f%%)", name, c.Kind, c.NonNull, missPct))
		switch c.Kind {
		case "numeric":
			b.WriteString(fmt.Sprintf(": min %.4g, max %.4g, mean %.4g, std %.4g, median %.4g", c.Min, c.Max, c.Mean, c.Std, c.Median))
			if c.OutlierThreshold > 0 {
				b.WriteString(fmt.Sprintf("; outliers: %d above |z|>%.1f", c.OutliersCount, c.OutlierThreshold))
				if c.OutliersMaxAbsZ > 0 {
					b.WriteString(fmt.Sprintf(" (max |z|≈%.2f)", c.OutliersMaxAbsZ))
				}
			}
		case "categorical":
			b.WriteString(": top ")
			for i, kv := range c.TopValues {
				if i > 0 {
					b.WriteString(", ")
				}
				b.WriteString(fmt.Sprintf("%s(%d)", safeVal(kv.Value), kv.Count))
			}
			if c.Unique > len(c.TopValues) {
				b.WriteString(fmt.Sprintf("; unique=%d", c.Unique))
			}
		}
		b.WriteString("\n")
	}
	if len(r.Groups) > 0 {
		b.WriteString("\n[GROUP-BY SUMMARY]\n")
		for _, g := range r.Groups {
			b.WriteString(fmt.Sprintf("- %s (n=%d)\n", g.Key, g.Size))
			keys := make([]string, 0, len(g.Means))
			for k := range g.Means {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for i := 0; i < len(keys) && i < 6; i++ {
				b.WriteString(fmt.Sprintf("  • %s: mean %.4g\n", keys[i], g.Means[keys[i]]))
			}
		}
	}
	if len(r.Samples) > 0 {
		b.WriteString("\n[HEAD AND SAMPLE ROWS]\n| ")
		for i, c := range r.Cols {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(safeName(c.Name))
		}
		b.WriteString(" |\n|")
		for range r.Cols {
			b.WriteString(" --- |")
		}
		b.WriteString("\n")
		for _, row := range r.Samples {
			b.WriteString("| ")
			for i := range r.Cols {
				if i > 0 {
					b.WriteString(" | ")
				}
				val := ""
				if i < len(row) {
					val = row[i]
				}
				if len(val) > 80 {
					val = val[:77] + "..."
				}
				b.WriteString(safeVal(val))
			}
			b.WriteString(" |\n")
		}
	}
	if len(r.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range r.Warnings {
			b.WriteString("- " + w + "\n")
		}
	}
	return b.String()
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }

var unitPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(.*\S)\s+\(([^)]+)\)\s*$`),  // e.g., Ice cover (%)
	regexp.MustCompile(`^(.*\S)\s*\[([^\]]+)\]\s*$`), // e.g., d13C [permil]
}

func splitUnits(name string) (clean string, unit string) {
	s := strings.TrimSpace(name)
	for _, re := range unitPatterns {
		if m := re.FindStringSubmatch(s); len(m) >= 3 {
			base, u := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
			if base != "" && u != "" {
				return base, u
			}
		}
	}
	return s, ""
}
