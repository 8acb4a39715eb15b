package univariate

import (
	"errors"
	"math"
)

// Comparison is one Tukey HSD contrast, B minus A on the log10 scale.
type Comparison struct {
	A     string  `json:"a"`
	B     string  `json:"b"`
	Diff  float64 `json:"diff"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Q     float64 `json:"q"`
	PAdj  float64 `json:"p_adj"`
}

// PairwiseTukey compares every pair of factor levels of a fitted model with Tukey's
// honestly significant difference. Intervals are 95% family-wise.
func PairwiseTukey(m *Model) ([]Comparison, error) {
	if m == nil || len(m.Levels) < 2 {
		return nil, ErrTooFewLevels
	}
	if m.DfResidual <= 0 {
		return nil, ErrNoResidualDf
	}
	if m.Sigma == 0 {
		return nil, errors.New("univariate: zero residual variance")
	}
	k := len(m.Levels)
	df := float64(m.DfResidual)
	crit := qtukey(0.95, k, df)
	var out []Comparison
	for a := 0; a < k; a++ {
		for b := a + 1; b < k; b++ {
			diff := m.Means[b] - m.Means[a]
			se := m.Sigma * math.Sqrt(0.5*(1/float64(m.Counts[a])+1/float64(m.Counts[b])))
			q := math.Abs(diff) / se
			out = append(out, Comparison{
				A: m.Levels[a], B: m.Levels[b],
				Diff:  diff,
				Lower: diff - crit*se,
				Upper: diff + crit*se,
				Q:     q,
				PAdj:  1 - ptukey(q, k, df),
			})
		}
	}
	return out, nil
}
