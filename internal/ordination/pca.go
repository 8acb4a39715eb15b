// Package ordination implements principal component analysis.
package ordination

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/KaramelBytes/algamark-cli/internal/numeric"
)

// ErrConstantColumn reports a zero-variance column that cannot be scaled.
var ErrConstantColumn = errors.New("ordination: constant column cannot be scaled to unit variance")

// Result is a fitted PCA. Axes are ordered by decreasing explained variance.
type Result struct {
	Markers    []string    `json:"markers"`
	Scaled     bool        `json:"scaled"`
	Center     []float64   `json:"center"`
	Scale      []float64   `json:"scale,omitempty"`
	SDev       []float64   `json:"sdev"`
	Eigen      []float64   `json:"eigenvalues"`
	Proportion []float64   `json:"proportion"`
	Cumulative []float64   `json:"cumulative"`
	Loadings   [][]float64 `json:"loadings"` // markers × axes
	Scores     [][]float64 `json:"scores"`   // samples × axes
}

// Axes is the number of principal components.
func (r *Result) Axes() int { return len(r.Eigen) }

// PCA centres the columns (and scales them to unit SD when scale is set) and takes
// the singular value decomposition. Loadings are orthonormal; each loading vector is
// signed so its largest-magnitude coefficient is positive.
func PCA(rows [][]float64, markers []string, scale bool) (*Result, error) {
	n, p, err := numeric.ValidateFinite("pca", rows)
	if err != nil {
		return nil, err
	}
	if err := numeric.CheckLen("pca", "markers", p, len(markers)); err != nil {
		return nil, err
	}
	if n < 2 {
		return nil, fmt.Errorf("pca: need at least 2 rows, got %d", n)
	}

	x := numeric.Dense(rows)
	res := &Result{Markers: append([]string(nil), markers...), Scaled: scale, Center: make([]float64, p)}
	if scale {
		res.Scale = make([]float64, p)
	}
	col := make([]float64, n)
	for j := 0; j < p; j++ {
		mat.Col(col, j, x)
		mean, sd := stat.MeanStdDev(col, nil)
		res.Center[j] = mean
		div := 1.0
		if scale {
			if sd == 0 || math.IsNaN(sd) {
				return nil, fmt.Errorf("pca: %q: %w", markers[j], ErrConstantColumn)
			}
			res.Scale[j] = sd
			div = sd
		}
		for i := 0; i < n; i++ {
			x.Set(i, j, (col[i]-mean)/div)
		}
	}

	var svd mat.SVD
	if !svd.Factorize(x, mat.SVDThin) {
		return nil, errors.New("pca: singular value decomposition did not converge")
	}
	s := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	k := len(s)

	var total float64
	res.Eigen = make([]float64, k)
	res.SDev = make([]float64, k)
	for a, sv := range s {
		res.Eigen[a] = sv * sv / float64(n-1)
		res.SDev[a] = sv / math.Sqrt(float64(n-1))
		total += res.Eigen[a]
	}
	res.Proportion = make([]float64, k)
	res.Cumulative = make([]float64, k)
	var cum float64
	for a := range s {
		if total > 0 {
			res.Proportion[a] = res.Eigen[a] / total
		}
		cum += res.Proportion[a]
		res.Cumulative[a] = cum
	}

	res.Loadings = make([][]float64, p)
	for j := range res.Loadings {
		res.Loadings[j] = make([]float64, k)
	}
	res.Scores = make([][]float64, n)
	for i := range res.Scores {
		res.Scores[i] = make([]float64, k)
	}
	for a := 0; a < k; a++ {
		big := 0
		for j := 0; j < p; j++ {
			if math.Abs(v.At(j, a)) > math.Abs(v.At(big, a)) {
				big = j
			}
		}
		sign := 1.0
		if v.At(big, a) < 0 {
			sign = -1
		}
		for j := 0; j < p; j++ {
			res.Loadings[j][a] = sign * v.At(j, a)
		}
		for i := 0; i < n; i++ {
			res.Scores[i][a] = sign * u.At(i, a) * s[a]
		}
	}
	return res, nil
}
