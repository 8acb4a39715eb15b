package community

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/KaramelBytes/algamark-cli/internal/numeric"
)

// SimperOptions configures SIMPER. Permutations > 0 adds a permutation p-value per
// marker, shuffling group labels among the rows of each pair.
type SimperOptions struct {
	Permutations int
	Seed         uint64
	Workers      int
}

// Contribution is one marker's share of the Bray-Curtis dissimilarity of a group pair.
type Contribution struct {
	Marker     string  `json:"marker"`
	Average    float64 `json:"average"`
	SD         float64 `json:"sd"`
	Ratio      float64 `json:"ratio"`
	MeanA      float64 `json:"mean_a"`
	MeanB      float64 `json:"mean_b"`
	Cumulative float64 `json:"cumulative"`
	P          float64 `json:"p"`
}

// SimperPair is the ranked contribution list for one pair of groups.
type SimperPair struct {
	GroupA        string         `json:"group_a"`
	GroupB        string         `json:"group_b"`
	NA            int            `json:"n_a"`
	NB            int            `json:"n_b"`
	Overall       float64        `json:"overall"`
	Contributions []Contribution `json:"contributions"`
}

// Discriminating returns the shortest prefix of the ranking whose cumulative
// fraction reaches threshold.
func (p SimperPair) Discriminating(threshold float64) []Contribution {
	for k, c := range p.Contributions {
		if c.Cumulative >= threshold-1e-12 {
			return p.Contributions[:k+1]
		}
	}
	return p.Contributions
}

// DiscriminatingMarkers is the union of every pair's discriminating markers, in order
// of first appearance.
func DiscriminatingMarkers(pairs []SimperPair, threshold float64) []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range pairs {
		for _, c := range p.Discriminating(threshold) {
			if !seen[c.Marker] {
				seen[c.Marker] = true
				out = append(out, c.Marker)
			}
		}
	}
	return out
}

// SIMPER ranks markers by their average contribution to the Bray-Curtis dissimilarity
// between every pair of groups. For each pair the averages sum to the mean
// between-group dissimilarity. Rows containing negative values enter on their
// absolute values, matching distance.BrayCurtis.
func SIMPER(ctx context.Context, rows [][]float64, markers, groups []string, opt SimperOptions) ([]SimperPair, error) {
	n, p, err := numeric.ValidateFinite("simper", rows)
	if err != nil {
		return nil, err
	}
	if err := numeric.CheckLen("simper", "markers", p, len(markers)); err != nil {
		return nil, err
	}
	if err := numeric.CheckLen("simper", "groups", n, len(groups)); err != nil {
		return nil, err
	}
	levels, idx := numeric.SortedLevels(groups)
	if len(levels) < 2 {
		return nil, fmt.Errorf("simper: need at least 2 groups, got %d", len(levels))
	}
	members := make([][]int, len(levels))
	for i, l := range idx {
		members[l] = append(members[l], i)
	}

	var out []SimperPair
	for a := 0; a < len(levels); a++ {
		for b := a + 1; b < len(levels); b++ {
			pair := simperPair(rows, markers, members[a], members[b])
			pair.GroupA, pair.GroupB = levels[a], levels[b]
			if opt.Permutations > 0 {
				if err := simperPermute(ctx, rows, markers, members[a], members[b], &pair, opt); err != nil {
					return nil, fmt.Errorf("simper %s vs %s: %w", levels[a], levels[b], err)
				}
			}
			out = append(out, pair)
		}
	}
	return out, nil
}

// contributions returns the per-marker contribution for each cross pair (i in a,
// j in b), pair-major.
func contributions(rows [][]float64, a, b []int) [][]float64 {
	p := len(rows[0])
	out := make([][]float64, 0, len(a)*len(b))
	for _, i := range a {
		for _, j := range b {
			out = append(out, pairContribution(rows[i], rows[j], p))
		}
	}
	return out
}

func pairContribution(x, y []float64, p int) []float64 {
	abs := false
	for k := 0; k < p; k++ {
		if x[k] < 0 || y[k] < 0 {
			abs = true
			break
		}
	}
	c := make([]float64, p)
	var den float64
	for k := 0; k < p; k++ {
		u, v := x[k], y[k]
		if abs {
			u, v = math.Abs(u), math.Abs(v)
		}
		c[k] = math.Abs(u - v)
		den += u + v
	}
	if den == 0 {
		return make([]float64, p)
	}
	for k := range c {
		c[k] /= den
	}
	return c
}

func averages(contrib [][]float64, p int) []float64 {
	avg := make([]float64, p)
	for _, c := range contrib {
		for k, v := range c {
			avg[k] += v
		}
	}
	for k := range avg {
		avg[k] /= float64(len(contrib))
	}
	return avg
}

func simperPair(rows [][]float64, markers []string, a, b []int) SimperPair {
	p := len(markers)
	contrib := contributions(rows, a, b)
	avg := averages(contrib, p)

	sd := make([]float64, p)
	if len(contrib) > 1 {
		for _, c := range contrib {
			for k, v := range c {
				d := v - avg[k]
				sd[k] += d * d
			}
		}
		for k := range sd {
			sd[k] = math.Sqrt(sd[k] / float64(len(contrib)-1))
		}
	} else {
		for k := range sd {
			sd[k] = math.NaN()
		}
	}
	groupMean := func(members []int, k int) float64 {
		var s float64
		for _, i := range members {
			s += rows[i][k]
		}
		return s / float64(len(members))
	}

	pair := SimperPair{NA: len(a), NB: len(b), Contributions: make([]Contribution, p)}
	for k := 0; k < p; k++ {
		pair.Overall += avg[k]
		pair.Contributions[k] = Contribution{
			Marker:  markers[k],
			Average: avg[k],
			SD:      sd[k],
			Ratio:   avg[k] / sd[k],
			MeanA:   groupMean(a, k),
			MeanB:   groupMean(b, k),
			P:       math.NaN(),
		}
	}
	sort.SliceStable(pair.Contributions, func(i, j int) bool {
		return pair.Contributions[i].Average > pair.Contributions[j].Average
	})
	var cum float64
	for k := range pair.Contributions {
		cum += pair.Contributions[k].Average
		if pair.Overall > 0 {
			pair.Contributions[k].Cumulative = cum / pair.Overall
		}
	}
	return pair
}

func simperPermute(ctx context.Context, rows [][]float64, markers []string, a, b []int, pair *SimperPair, opt SimperOptions) error {
	pool := append(append([]int(nil), a...), b...)
	p := len(markers)
	pos := make(map[string]int, p)
	for k, c := range pair.Contributions {
		pos[c.Marker] = k
	}
	obs := make([]float64, p)
	for col, m := range markers {
		obs[col] = pair.Contributions[pos[m]].Average
	}

	exceed := make([][]bool, opt.Permutations)
	err := runTrials(ctx, opt.Permutations, opt.Workers, func(trial int) {
		shuffled := append([]int(nil), pool...)
		trialRand(opt.Seed, trial).Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		avg := averages(contributions(rows, shuffled[:len(a)], shuffled[len(a):]), p)
		hit := make([]bool, p)
		for col := range avg {
			hit[col] = avg[col] >= obs[col]-permEps
		}
		exceed[trial] = hit
	})
	if err != nil {
		return err
	}
	for col, m := range markers {
		count := 0
		for _, hit := range exceed {
			if hit[col] {
				count++
			}
		}
		pair.Contributions[pos[m]].P = float64(count+1) / float64(opt.Permutations+1)
	}
	return nil
}
