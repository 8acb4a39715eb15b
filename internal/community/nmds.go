package community

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/KaramelBytes/algamark-cli/internal/distance"
)

// NMDSOptions configures non-metric multidimensional scaling.
type NMDSOptions struct {
	Metric    distance.Metric
	Tries     int     // starts; the first is classical scaling, the rest random
	MaxIter   int     // iterations per start
	Tolerance float64 // stop when stress improves by less than this
	Seed      uint64
	Workers   int
}

func (o NMDSOptions) withDefaults() NMDSOptions {
	if o.Tries <= 0 {
		o.Tries = 20
	}
	if o.MaxIter <= 0 {
		o.MaxIter = 200
	}
	if o.Tolerance <= 0 {
		o.Tolerance = 1e-4
	}
	return o
}

// ConvergenceWarning reports that the best start stopped at the iteration limit.
// It is carried on the result, never returned as an error.
type ConvergenceWarning struct {
	MaxIter int
	Stress  float64
}

func (w *ConvergenceWarning) Error() string {
	return fmt.Sprintf("nmds: no convergence within %d iterations (stress %.4f)", w.MaxIter, w.Stress)
}

// Try is the outcome of one start.
type Try struct {
	Stress     float64 `json:"stress"`
	Iterations int     `json:"iterations"`
	Converged  bool    `json:"converged"`
}

// NMDSResult holds the lowest-stress 2-D configuration, centred and rotated to its
// principal axes.
type NMDSResult struct {
	Points     [][]float64         `json:"points"`
	Stress     float64             `json:"stress"`
	Converged  bool                `json:"converged"`
	Iterations int                 `json:"iterations"`
	BestTry    int                 `json:"best_try"`
	Repeats    int                 `json:"repeats"` // starts within 1e-3 of the best stress
	Tries      []Try               `json:"tries"`
	AbsApplied bool                `json:"abs_applied"`
	Warning    *ConvergenceWarning `json:"warning,omitempty"`
}

const nmdsDims = 2

// NMDS embeds rows in two dimensions so that embedded distances follow the rank
// order of their dissimilarities. The result depends on Seed.
func NMDS(ctx context.Context, rows [][]float64, opt NMDSOptions) (*NMDSResult, error) {
	dm, err := distance.Compute(rows, opt.Metric)
	if err != nil {
		return nil, fmt.Errorf("nmds: %w", err)
	}
	return NMDSMatrix(ctx, dm, opt)
}

// NMDSMatrix runs NMDS on a precomputed dissimilarity matrix.
func NMDSMatrix(ctx context.Context, dm *distance.Matrix, opt NMDSOptions) (*NMDSResult, error) {
	opt = opt.withDefaults()
	n := dm.N
	if n < 3 {
		return nil, fmt.Errorf("nmds: need at least 3 rows, got %d", n)
	}
	diss, order := pairOrder(dm)

	configs := make([][][]float64, opt.Tries)
	tries := make([]Try, opt.Tries)
	err := runTrials(ctx, opt.Tries, opt.Workers, func(t int) {
		var x [][]float64
		if t == 0 {
			x = classicalScaling(dm)
		}
		if x == nil {
			x = randomConfig(n, trialRand(opt.Seed, t))
		}
		x, tries[t] = smacof(x, diss, order, opt)
		configs[t] = x
	})
	if err != nil {
		return nil, fmt.Errorf("nmds: %w", err)
	}

	best := 0
	for t := range tries {
		if tries[t].Stress < tries[best].Stress {
			best = t
		}
	}
	res := &NMDSResult{
		Points:     principalAxes(configs[best]),
		Stress:     tries[best].Stress,
		Converged:  tries[best].Converged,
		Iterations: tries[best].Iterations,
		BestTry:    best,
		Tries:      tries,
		AbsApplied: dm.AbsApplied,
	}
	for _, t := range tries {
		if math.Abs(t.Stress-res.Stress) < 1e-3 {
			res.Repeats++
		}
	}
	if !res.Converged {
		res.Warning = &ConvergenceWarning{MaxIter: opt.MaxIter, Stress: res.Stress}
	}
	return res, nil
}

// pairOrder lists the upper-triangle dissimilarities (i<j, row-major) and their
// indices sorted ascending.
func pairOrder(dm *distance.Matrix) ([]float64, []int) {
	n := dm.N
	diss := make([]float64, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			diss = append(diss, dm.At(i, j))
		}
	}
	order := make([]int, len(diss))
	for k := range order {
		order[k] = k
	}
	sort.SliceStable(order, func(a, b int) bool { return diss[order[a]] < diss[order[b]] })
	return diss, order
}

func configDistances(x [][]float64) []float64 {
	n := len(x)
	out := make([]float64, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			var s float64
			for k := range x[i] {
				d := x[i][k] - x[j][k]
				s += d * d
			}
			out = append(out, math.Sqrt(s))
		}
	}
	return out
}

// disparities is Kruskal's monotone regression of the configuration distances d on
// the dissimilarity order, ties in dissimilarity handled by the primary approach.
func disparities(d, diss []float64, order []int) []float64 {
	idx := append([]int(nil), order...)
	// within each tie block, order by current distance
	for lo := 0; lo < len(idx); {
		hi := lo + 1
		for hi < len(idx) && diss[idx[hi]] == diss[idx[lo]] {
			hi++
		}
		if hi-lo > 1 {
			block := idx[lo:hi]
			sort.SliceStable(block, func(a, b int) bool { return d[block[a]] < d[block[b]] })
		}
		lo = hi
	}

	type run struct {
		sum   float64
		count int
	}
	runs := make([]run, 0, len(idx))
	for _, k := range idx {
		runs = append(runs, run{sum: d[k], count: 1})
		for len(runs) > 1 {
			last, prev := runs[len(runs)-1], runs[len(runs)-2]
			if prev.sum/float64(prev.count) <= last.sum/float64(last.count) {
				break
			}
			runs = runs[:len(runs)-1]
			runs[len(runs)-1] = run{sum: prev.sum + last.sum, count: prev.count + last.count}
		}
	}
	out := make([]float64, len(d))
	pos := 0
	for _, r := range runs {
		v := r.sum / float64(r.count)
		for c := 0; c < r.count; c++ {
			out[idx[pos]] = v
			pos++
		}
	}
	return out
}

func stress1(d, dhat []float64) float64 {
	var num, den float64
	for k := range d {
		e := d[k] - dhat[k]
		num += e * e
		den += d[k] * d[k]
	}
	if den == 0 {
		return 0
	}
	return math.Sqrt(num / den)
}

// stressSettled reports whether stress s, following prev, ends the iteration:
// either a near-perfect fit or a decrease smaller than tol. A rise never settles.
func stressSettled(prev, s, tol float64) bool {
	if s < 1e-8 {
		return true
	}
	return s <= prev && prev-s < tol
}

// smacof iterates monotone regression and the Guttman transform from x.
func smacof(x [][]float64, diss []float64, order []int, opt NMDSOptions) ([][]float64, Try) {
	n := len(x)
	prev := math.Inf(1)
	var tr Try
	for it := 1; it <= opt.MaxIter; it++ {
		d := configDistances(x)
		dhat := disparities(d, diss, order)
		s := stress1(d, dhat)
		tr = Try{Stress: s, Iterations: it}
		if stressSettled(prev, s, opt.Tolerance) {
			tr.Converged = true
			return x, tr
		}
		prev = s

		// normalise disparities to sum of squares n(n-1)/2
		var ss float64
		for _, v := range dhat {
			ss += v * v
		}
		if ss == 0 {
			tr.Converged = true
			return x, tr
		}
		scale := math.Sqrt(float64(n*(n-1)/2) / ss)

		next := make([][]float64, n)
		for i := range next {
			next[i] = make([]float64, nmdsDims)
		}
		k := 0
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				if d[k] > 0 {
					b := dhat[k] * scale / d[k]
					for c := 0; c < nmdsDims; c++ {
						delta := b * (x[i][c] - x[j][c])
						next[i][c] += delta
						next[j][c] -= delta
					}
				}
				k++
			}
		}
		for i := range next {
			for c := range next[i] {
				next[i][c] /= float64(n)
			}
		}
		x = next
	}
	return x, tr
}

// classicalScaling is Torgerson's metric embedding, used as the first start. It
// returns nil when fewer than two positive eigenvalues exist.
func classicalScaling(dm *distance.Matrix) [][]float64 {
	n := dm.N
	sym := mat.NewSymDense(n, gowerCentred(dm))
	var es mat.EigenSym
	if !es.Factorize(sym, true) {
		return nil
	}
	vals := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)
	x := make([][]float64, n)
	for i := range x {
		x[i] = make([]float64, nmdsDims)
	}
	for c := 0; c < nmdsDims; c++ {
		col := n - 1 - c
		if vals[col] <= 1e-12 {
			return nil
		}
		w := math.Sqrt(vals[col])
		for i := 0; i < n; i++ {
			x[i][c] = vecs.At(i, col) * w
		}
	}
	return x
}

func randomConfig(n int, rng *rand.Rand) [][]float64 {
	x := make([][]float64, n)
	for i := range x {
		x[i] = []float64{rng.Float64() - 0.5, rng.Float64() - 0.5}
	}
	return x
}

// principalAxes centres x and rotates it so the first axis carries the most
// variance. Each axis is signed so its largest-magnitude coordinate is positive.
func principalAxes(x [][]float64) [][]float64 {
	n := len(x)
	c := mat.NewDense(n, nmdsDims, nil)
	for k := 0; k < nmdsDims; k++ {
		var mean float64
		for i := range x {
			mean += x[i][k]
		}
		mean /= float64(n)
		for i := range x {
			c.Set(i, k, x[i][k]-mean)
		}
	}
	var svd mat.SVD
	out := make([][]float64, n)
	if !svd.Factorize(c, mat.SVDThin) {
		for i := range out {
			out[i] = mat.Row(nil, i, c)
		}
		return out
	}
	var v mat.Dense
	svd.VTo(&v)
	var r mat.Dense
	r.Mul(c, &v)
	for k := 0; k < nmdsDims; k++ {
		big := 0
		for i := 0; i < n; i++ {
			if math.Abs(r.At(i, k)) > math.Abs(r.At(big, k)) {
				big = i
			}
		}
		if r.At(big, k) < 0 {
			for i := 0; i < n; i++ {
				r.Set(i, k, -r.At(i, k))
			}
		}
	}
	for i := range out {
		out[i] = mat.Row(nil, i, &r)
	}
	return out
}
