// Package distance computes pairwise dissimilarities between sample rows and
// clusters them hierarchically.
package distance

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/KaramelBytes/algamark-cli/internal/numeric"
)

// Metric names a dissimilarity.
type Metric string

const (
	Bray      Metric = "bray"
	Euclidean Metric = "euclidean"
)

// ErrMetric reports an unsupported metric name.
var ErrMetric = errors.New("distance: unknown metric")

// ParseMetric accepts "bray" (also "braycurtis", "bray-curtis") and "euclidean". Empty is bray.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "bray", "braycurtis", "bray-curtis":
		return Bray, nil
	case "euclidean":
		return Euclidean, nil
	}
	return "", fmt.Errorf("%q: %w", s, ErrMetric)
}

// Matrix is a symmetric n×n dissimilarity matrix with a zero diagonal.
type Matrix struct {
	N      int
	Metric Metric
	// AbsApplied is set when at least one row pair contained negative values and
	// Bray-Curtis was computed on their absolute values.
	AbsApplied bool
	data       []float64
}

// At returns d(i, j).
func (m *Matrix) At(i, j int) float64 { return m.data[i*m.N+j] }

func (m *Matrix) set(i, j int, d float64) {
	m.data[i*m.N+j] = d
	m.data[j*m.N+i] = d
}

// Rows copies the matrix as a row slice.
func (m *Matrix) Rows() [][]float64 {
	out := make([][]float64, m.N)
	for i := range out {
		out[i] = append([]float64(nil), m.data[i*m.N:(i+1)*m.N]...)
	}
	return out
}

// FromRows wraps an existing square, symmetric matrix.
func FromRows(rows [][]float64, metric Metric) (*Matrix, error) {
	n, p, err := numeric.ValidateFinite("distance.FromRows", rows)
	if err != nil {
		return nil, err
	}
	if err := numeric.CheckLen("distance.FromRows", "columns", n, p); err != nil {
		return nil, err
	}
	m := &Matrix{N: n, Metric: metric, data: make([]float64, n*n)}
	for i := 0; i < n; i++ {
		if rows[i][i] != 0 {
			return nil, fmt.Errorf("distance.FromRows: non-zero diagonal at %d", i)
		}
		for j := i + 1; j < n; j++ {
			if math.Abs(rows[i][j]-rows[j][i]) > 1e-12 {
				return nil, fmt.Errorf("distance.FromRows: asymmetric at (%d,%d)", i, j)
			}
			m.set(i, j, rows[i][j])
		}
	}
	return m, nil
}

// Compute returns the pairwise dissimilarities between rows. Missing values are
// rejected; callers filter panels first.
func Compute(rows [][]float64, metric Metric) (*Matrix, error) {
	n, _, err := numeric.ValidateFinite("distance.Compute", rows)
	if err != nil {
		return nil, err
	}
	if metric == "" {
		metric = Bray
	}
	m := &Matrix{N: n, Metric: metric, data: make([]float64, n*n)}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			var d float64
			switch metric {
			case Bray:
				var abs bool
				d, abs = BrayCurtis(rows[i], rows[j])
				m.AbsApplied = m.AbsApplied || abs
			case Euclidean:
				d = euclidean(rows[i], rows[j])
			default:
				return nil, fmt.Errorf("%q: %w", metric, ErrMetric)
			}
			m.set(i, j, d)
		}
	}
	return m, nil
}

// BrayCurtis returns Σ|x−y| / Σ(x+y). When either row has a negative value both rows
// are taken elementwise absolute first and abs is true. Two all-zero rows are at 0.
func BrayCurtis(x, y []float64) (d float64, abs bool) {
	for k := range x {
		if x[k] < 0 || y[k] < 0 {
			abs = true
			break
		}
	}
	var num, den float64
	for k := range x {
		a, b := x[k], y[k]
		if abs {
			a, b = math.Abs(a), math.Abs(b)
		}
		num += math.Abs(a - b)
		den += a + b
	}
	if den == 0 {
		return 0, abs
	}
	return num / den, abs
}

func euclidean(x, y []float64) float64 {
	var s float64
	for k := range x {
		d := x[k] - y[k]
		s += d * d
	}
	return math.Sqrt(s)
}
