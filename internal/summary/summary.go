// Package summary computes group-wise descriptive statistics over a derived view.
package summary

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/KaramelBytes/algamark-cli/internal/dataset"
)

// MarkerStats is the mean and sample SD (n-1) of one marker within a group.
// Missing counts NaN cells; any missing cell makes Mean and SD NaN.
type MarkerStats struct {
	Marker  string  `json:"marker"`
	N       int     `json:"n"`
	Missing int     `json:"missing"`
	Mean    float64 `json:"mean"`
	SD      float64 `json:"sd"`
}

// Group is one distinct combination of grouping-key values.
type Group struct {
	Keys  []string      `json:"keys"`
	N     int           `json:"n"`
	Stats []MarkerStats `json:"stats"`
}

// Label joins the key values for display.
func (g Group) Label() string { return strings.Join(g.Keys, " / ") }

// Summary is the result of GroupSummary.
type Summary struct {
	View    string   `json:"view"`
	GroupBy []string `json:"group_by"`
	Markers []string `json:"markers"`
	Groups  []Group  `json:"groups"`
}

// GroupSummary computes per-group marker statistics. groupKeys are annotation
// factors (phylum, order, family, species, site); an empty markers list means every
// marker of the view. Groups are sorted by their key values.
func GroupSummary(v *dataset.View, groupKeys, markers []string) (*Summary, error) {
	if len(groupKeys) == 0 {
		return nil, fmt.Errorf("summary %s: no grouping keys", v.Name)
	}
	if len(markers) == 0 {
		markers = v.Markers
	}
	cols := make([]int, len(markers))
	for k, m := range markers {
		j, err := v.MarkerIndex(m)
		if err != nil {
			return nil, fmt.Errorf("summary: %w", err)
		}
		cols[k] = j
	}
	factors := make([][]string, len(groupKeys))
	for k, key := range groupKeys {
		f, err := v.Factor(key)
		if err != nil {
			return nil, fmt.Errorf("summary: %w", err)
		}
		factors[k] = f
	}

	members := map[string][]int{}
	keyVals := map[string][]string{}
	for i := range v.Rows {
		vals := make([]string, len(factors))
		for k, f := range factors {
			vals[k] = f[i]
		}
		id := strings.Join(vals, "\x00")
		if _, ok := keyVals[id]; !ok {
			keyVals[id] = vals
		}
		members[id] = append(members[id], i)
	}
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool {
		ka, kb := keyVals[ids[a]], keyVals[ids[b]]
		for k := range ka {
			if ka[k] != kb[k] {
				return ka[k] < kb[k]
			}
		}
		return false
	})

	s := &Summary{View: v.Name, GroupBy: append([]string(nil), groupKeys...), Markers: append([]string(nil), markers...)}
	buf := make([]float64, 0, len(v.Rows))
	for _, id := range ids {
		rows := members[id]
		g := Group{Keys: keyVals[id], N: len(rows), Stats: make([]MarkerStats, len(markers))}
		for k, j := range cols {
			buf = buf[:0]
			missing := 0
			for _, i := range rows {
				x := v.Rows[i][j]
				if math.IsNaN(x) {
					missing++
				}
				buf = append(buf, x)
			}
			mean, sd := stat.MeanStdDev(buf, nil)
			if len(buf) < 2 {
				sd = math.NaN()
			}
			g.Stats[k] = MarkerStats{Marker: markers[k], N: len(rows), Missing: missing, Mean: mean, SD: sd}
		}
		s.Groups = append(s.Groups, g)
	}
	return s, nil
}

// RankedMarker is one entry of a group's ranking.
type RankedMarker struct {
	Marker string  `json:"marker"`
	Mean   float64 `json:"mean"`
	SD     float64 `json:"sd"`
}

// RankedGroup lists a group's markers by descending mean.
type RankedGroup struct {
	Keys    []string       `json:"keys"`
	Markers []RankedMarker `json:"markers"`
}

// Ranked orders every group's markers by mean, largest first, keeping at most limit
// (limit <= 0 keeps all). Markers with a NaN mean sort last.
func Ranked(s *Summary, limit int) []RankedGroup {
	out := make([]RankedGroup, 0, len(s.Groups))
	for _, g := range s.Groups {
		ms := make([]RankedMarker, len(g.Stats))
		for k, st := range g.Stats {
			ms[k] = RankedMarker{Marker: st.Marker, Mean: st.Mean, SD: st.SD}
		}
		sort.SliceStable(ms, func(a, b int) bool {
			ma, mb := ms[a].Mean, ms[b].Mean
			if math.IsNaN(mb) {
				return !math.IsNaN(ma)
			}
			return ma > mb
		})
		if limit > 0 && len(ms) > limit {
			ms = ms[:limit]
		}
		out = append(out, RankedGroup{Keys: g.Keys, Markers: ms})
	}
	return out
}
