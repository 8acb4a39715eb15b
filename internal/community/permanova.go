package community

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/KaramelBytes/algamark-cli/internal/distance"
	"github.com/KaramelBytes/algamark-cli/internal/numeric"
)

// permEps absorbs floating-point noise when comparing permuted and observed F.
var permEps = math.Sqrt(2.220446049250313e-16)

// ErrNoFactors reports a PERMANOVA call without grouping factors.
var ErrNoFactors = errors.New("community: no grouping factors")

// Factor is a named grouping of the rows.
type Factor struct {
	Name   string
	Values []string
}

// PermanovaOptions configures PERMANOVA. Permutations <= 0 skips the test and leaves
// P as NaN.
type PermanovaOptions struct {
	Metric       distance.Metric
	Permutations int
	Seed         uint64
	Workers      int
}

// Term is one row of the PERMANOVA table.
type Term struct {
	Name   string  `json:"name"`
	Df     int     `json:"df"`
	SumSq  float64 `json:"sum_sq"`
	MeanSq float64 `json:"mean_sq"`
	F      float64 `json:"f"`
	R2     float64 `json:"r2"`
	P      float64 `json:"p"`
}

// PermanovaResult is the sequential (type I) partition, one term per factor in caller
// order, plus residual and total rows.
type PermanovaResult struct {
	Terms        []Term `json:"terms"`
	Residual     Term   `json:"residual"`
	Total        Term   `json:"total"`
	Permutations int    `json:"permutations"`
	Seed         uint64 `json:"seed"`
	AbsApplied   bool   `json:"abs_applied"`
}

// PERMANOVA computes the distance matrix of rows and partitions it by factors.
func PERMANOVA(ctx context.Context, rows [][]float64, factors []Factor, opt PermanovaOptions) (*PermanovaResult, error) {
	dm, err := distance.Compute(rows, opt.Metric)
	if err != nil {
		return nil, fmt.Errorf("permanova: %w", err)
	}
	return PERMANOVAMatrix(ctx, dm, factors, opt)
}

// PERMANOVAMatrix runs PERMANOVA on a precomputed distance matrix. Terms are fitted
// sequentially, so their order changes the partition. Significance comes from
// permuting observations against the fixed design.
func PERMANOVAMatrix(ctx context.Context, dm *distance.Matrix, factors []Factor, opt PermanovaOptions) (*PermanovaResult, error) {
	n := dm.N
	if len(factors) == 0 {
		return nil, ErrNoFactors
	}
	for _, f := range factors {
		if err := numeric.CheckLen("permanova", "factor "+f.Name, n, len(f.Values)); err != nil {
			return nil, err
		}
	}
	if n < 3 {
		return nil, fmt.Errorf("permanova: need at least 3 rows, got %d", n)
	}

	g := gowerCentred(dm)
	var trG float64
	for i := 0; i < n; i++ {
		trG += g[i*n+i]
	}

	// Projection increments M_k = H_k - H_{k-1}, with H_0 the mean projection.
	incs := make([][]float64, len(factors))
	prev := meanProjection(n)
	prevRank := 1
	design := [][]float64{ones(n)}
	res := &PermanovaResult{Permutations: max(opt.Permutations, 0), Seed: opt.Seed, AbsApplied: dm.AbsApplied}
	for k, f := range factors {
		design = append(design, dummies(f.Values)...)
		h, rank := hat(design, n)
		inc := make([]float64, n*n)
		for i := range inc {
			inc[i] = h[i] - prev[i]
		}
		incs[k] = inc
		res.Terms = append(res.Terms, Term{Name: f.Name, Df: rank - prevRank})
		prev, prevRank = h, rank
	}
	dfRes := n - prevRank

	partition := func(perm []int) (ss []float64, ssRes float64) {
		ss = make([]float64, len(incs))
		var sum float64
		for k, m := range incs {
			ss[k] = traceProduct(g, m, n, perm)
			sum += ss[k]
		}
		return ss, trG - sum
	}
	fstats := func(ss []float64, ssRes float64) []float64 {
		out := make([]float64, len(ss))
		for k, s := range ss {
			df := res.Terms[k].Df
			if df == 0 || dfRes == 0 {
				out[k] = math.NaN()
				continue
			}
			out[k] = (s / float64(df)) / (ssRes / float64(dfRes))
		}
		return out
	}

	ss, ssRes := partition(nil)
	fObs := fstats(ss, ssRes)
	for k := range res.Terms {
		t := &res.Terms[k]
		t.SumSq, t.F, t.R2, t.P = ss[k], fObs[k], ss[k]/trG, math.NaN()
		t.MeanSq = math.NaN()
		if t.Df > 0 {
			t.MeanSq = ss[k] / float64(t.Df)
		}
	}
	res.Residual = Term{Name: "Residual", Df: dfRes, SumSq: ssRes, R2: ssRes / trG, MeanSq: math.NaN(), F: math.NaN(), P: math.NaN()}
	if dfRes > 0 {
		res.Residual.MeanSq = ssRes / float64(dfRes)
	}
	res.Total = Term{Name: "Total", Df: n - 1, SumSq: trG, R2: 1, MeanSq: math.NaN(), F: math.NaN(), P: math.NaN()}

	if res.Permutations == 0 {
		return res, nil
	}
	exceed := make([][]bool, res.Permutations)
	err := runTrials(ctx, res.Permutations, opt.Workers, func(trial int) {
		perm := trialRand(opt.Seed, trial).Perm(n)
		f := fstats(partition(perm))
		hit := make([]bool, len(f))
		for k := range f {
			hit[k] = f[k] >= fObs[k]-permEps
		}
		exceed[trial] = hit
	})
	if err != nil {
		return nil, fmt.Errorf("permanova: %w", err)
	}
	for k := range res.Terms {
		if math.IsNaN(fObs[k]) {
			continue
		}
		count := 0
		for _, hit := range exceed {
			if hit[k] {
				count++
			}
		}
		res.Terms[k].P = float64(count+1) / float64(res.Permutations+1)
	}
	return res, nil
}

// gowerCentred returns G = -1/2 (I - J/n) D∘D (I - J/n) as a dense row-major slice.
func gowerCentred(dm *distance.Matrix) []float64 {
	n := dm.N
	a := make([]float64, n*n)
	rowMean := make([]float64, n)
	var grand float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			d := dm.At(i, j)
			v := -0.5 * d * d
			a[i*n+j] = v
			rowMean[i] += v
		}
		grand += rowMean[i]
		rowMean[i] /= float64(n)
	}
	grand /= float64(n * n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			a[i*n+j] += grand - rowMean[i] - rowMean[j]
		}
	}
	return a
}

// traceProduct returns tr(P G Pᵀ M) = Σ G[π(i),π(j)] M[i,j] for the permutation π
// (identity when perm is nil). Both matrices are symmetric.
func traceProduct(g, m []float64, n int, perm []int) float64 {
	var s float64
	for i := 0; i < n; i++ {
		pi := i
		if perm != nil {
			pi = perm[i]
		}
		for j := 0; j < n; j++ {
			pj := j
			if perm != nil {
				pj = perm[j]
			}
			s += g[pi*n+pj] * m[i*n+j]
		}
	}
	return s
}

func ones(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

func meanProjection(n int) []float64 {
	out := make([]float64, n*n)
	for i := range out {
		out[i] = 1 / float64(n)
	}
	return out
}

// dummies returns the treatment-coded indicator columns of a factor (first level
// dropped).
func dummies(values []string) [][]float64 {
	levels, idx := numeric.SortedLevels(values)
	cols := make([][]float64, 0, len(levels)-1)
	for l := 1; l < len(levels); l++ {
		c := make([]float64, len(values))
		for i, k := range idx {
			if k == l {
				c[i] = 1
			}
		}
		cols = append(cols, c)
	}
	return cols
}

// hat returns the orthogonal projection onto the column space of the design and its
// rank. Aliased columns (a nested factor, a level confounded with an earlier term)
// contribute nothing.
func hat(columns [][]float64, n int) ([]float64, int) {
	x := mat.NewDense(n, len(columns), nil)
	for j, c := range columns {
		x.SetCol(j, c)
	}
	var svd mat.SVD
	if !svd.Factorize(x, mat.SVDThin) {
		panic("community: SVD of design matrix failed")
	}
	s := svd.Values(nil)
	var u mat.Dense
	svd.UTo(&u)
	tol := float64(max(n, len(columns))) * s[0] * 2.220446049250313e-16
	rank := 0
	for _, v := range s {
		if v > tol {
			rank++
		}
	}
	ur := u.Slice(0, n, 0, rank)
	var h mat.Dense
	h.Mul(ur, ur.T())
	return h.RawMatrix().Data, rank
}
