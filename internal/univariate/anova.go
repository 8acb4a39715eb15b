// Package univariate fits a one-way linear model to a log10-transformed marker
// and follows it up with Tukey comparisons and simulated residual checks.
package univariate

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/KaramelBytes/algamark-cli/internal/numeric"
)

var (
	// ErrNonPositive reports a response value that has no logarithm.
	ErrNonPositive = errors.New("univariate: response must be positive for log10")

	// ErrTooFewLevels reports a factor with a single level.
	ErrTooFewLevels = errors.New("univariate: factor needs at least 2 levels")

	// ErrNoResidualDf reports a model with as many parameters as observations.
	ErrNoResidualDf = errors.New("univariate: no residual degrees of freedom")
)

// Coefficient is one reference-coded model parameter.
type Coefficient struct {
	Term     string  `json:"term"`
	Estimate float64 `json:"estimate"`
	SE       float64 `json:"se"`
	T        float64 `json:"t"`
	P        float64 `json:"p"`
}

// Model is a fitted one-way linear model of log10(response).
type Model struct {
	Response     string        `json:"response"`
	Factor       string        `json:"factor"`
	Levels       []string      `json:"levels"`
	Counts       []int         `json:"counts"`
	Means        []float64     `json:"means"` // per level, on the log10 scale
	Coefficients []Coefficient `json:"coefficients"`
	Sigma        float64       `json:"sigma"`
	DfResidual   int           `json:"df_residual"`
	RSquared     float64       `json:"r_squared"`

	Y         []float64 `json:"-"`
	Fitted    []float64 `json:"-"`
	Residuals []float64 `json:"-"`
	group     []int
}

// ANOVARow is one line of the ANOVA table.
type ANOVARow struct {
	Term   string  `json:"term"`
	Df     int     `json:"df"`
	SumSq  float64 `json:"sum_sq"`
	MeanSq float64 `json:"mean_sq"`
	F      float64 `json:"f"`
	P      float64 `json:"p"`
}

// ANOVATable has the factor row followed by the residual row.
type ANOVATable struct {
	Rows []ANOVARow `json:"rows"`
}

// ANOVAOnLog fits log10(response) ~ factor with treatment coding (levels sorted,
// the first is the reference) and returns the model with its ANOVA table.
func ANOVAOnLog(response []float64, factor []string, responseName, factorName string) (*Model, *ANOVATable, error) {
	n := len(response)
	if err := numeric.CheckLen("anova", "factor", n, len(factor)); err != nil {
		return nil, nil, err
	}
	y := make([]float64, n)
	for i, v := range response {
		if math.IsNaN(v) {
			return nil, nil, fmt.Errorf("anova: row %d: %w", i, numeric.ErrNaN)
		}
		if v <= 0 {
			return nil, nil, fmt.Errorf("anova: row %d value %g: %w", i, v, ErrNonPositive)
		}
		y[i] = math.Log10(v)
	}
	levels, idx := numeric.SortedLevels(factor)
	k := len(levels)
	if k < 2 {
		return nil, nil, ErrTooFewLevels
	}
	if n <= k {
		return nil, nil, ErrNoResidualDf
	}

	x := mat.NewDense(n, k, nil)
	for i, l := range idx {
		x.Set(i, 0, 1)
		if l > 0 {
			x.Set(i, l, 1)
		}
	}
	var qr mat.QR
	qr.Factorize(x)
	var beta mat.VecDense
	if err := qr.SolveVecTo(&beta, false, mat.NewVecDense(n, y)); err != nil {
		return nil, nil, fmt.Errorf("anova: least squares: %w", err)
	}

	m := &Model{
		Response: responseName, Factor: factorName, Levels: levels,
		Counts: make([]int, k), Means: make([]float64, k),
		Y: y, Fitted: make([]float64, n), Residuals: make([]float64, n),
		DfResidual: n - k, group: idx,
	}
	var grand float64
	for i, l := range idx {
		m.Counts[l]++
		m.Means[l] += y[i]
		grand += y[i]
	}
	grand /= float64(n)
	for l := range m.Means {
		m.Means[l] /= float64(m.Counts[l])
	}
	var rss, ssFactor float64
	for i, l := range idx {
		f := beta.AtVec(0)
		if l > 0 {
			f += beta.AtVec(l)
		}
		m.Fitted[i] = f
		m.Residuals[i] = y[i] - f
		rss += m.Residuals[i] * m.Residuals[i]
		ssFactor += (f - grand) * (f - grand)
	}
	sigma2 := rss / float64(m.DfResidual)
	m.Sigma = math.Sqrt(sigma2)
	if tss := rss + ssFactor; tss > 0 {
		m.RSquared = ssFactor / tss
	}

	var xtx, inv mat.Dense
	xtx.Mul(x.T(), x)
	if err := inv.Inverse(&xtx); err != nil {
		return nil, nil, fmt.Errorf("anova: %w", err)
	}
	tdist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(m.DfResidual)}
	for c := 0; c < k; c++ {
		term := "(Intercept)"
		if c > 0 {
			term = factorName + levels[c]
		}
		est := beta.AtVec(c)
		se := math.Sqrt(sigma2 * inv.At(c, c))
		tv := est / se
		m.Coefficients = append(m.Coefficients, Coefficient{
			Term: term, Estimate: est, SE: se, T: tv, P: 2 * tdist.Survival(math.Abs(tv)),
		})
	}

	dfF := k - 1
	msF := ssFactor / float64(dfF)
	fv := msF / sigma2
	fdist := distuv.F{D1: float64(dfF), D2: float64(m.DfResidual)}
	table := &ANOVATable{Rows: []ANOVARow{
		{Term: factorName, Df: dfF, SumSq: ssFactor, MeanSq: msF, F: fv, P: fdist.Survival(fv)},
		{Term: "Residuals", Df: m.DfResidual, SumSq: rss, MeanSq: sigma2, F: math.NaN(), P: math.NaN()},
	}}
	return m, table, nil
}
