package numeric

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Validate checks that rows is a non-empty rectangular matrix and returns its shape.
func Validate(op string, rows [][]float64) (n, p int, err error) {
	n = len(rows)
	if n == 0 {
		return 0, 0, fmt.Errorf("%s: %w", op, ErrEmpty)
	}
	p = len(rows[0])
	if p == 0 {
		return 0, 0, fmt.Errorf("%s: %w", op, ErrEmpty)
	}
	for i := 1; i < n; i++ {
		if len(rows[i]) != p {
			return 0, 0, &ShapeError{Op: op, What: fmt.Sprintf("row %d", i), Want: p, Got: len(rows[i])}
		}
	}
	return n, p, nil
}

// ValidateFinite is Validate plus a NaN/Inf scan.
func ValidateFinite(op string, rows [][]float64) (n, p int, err error) {
	n, p, err = Validate(op, rows)
	if err != nil {
		return 0, 0, err
	}
	for i := range rows {
		for j, v := range rows[i] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, 0, fmt.Errorf("%s: row %d col %d: %w", op, i, j, ErrNaN)
			}
		}
	}
	return n, p, nil
}

// CheckLen returns a ShapeError when got differs from want.
func CheckLen(op, what string, want, got int) error {
	if want != got {
		return &ShapeError{Op: op, What: what, Want: want, Got: got}
	}
	return nil
}

// Dense copies rows into a gonum matrix.
func Dense(rows [][]float64) *mat.Dense {
	n, p := len(rows), len(rows[0])
	data := make([]float64, 0, n*p)
	for _, r := range rows {
		data = append(data, r...)
	}
	return mat.NewDense(n, p, data)
}

// Column extracts column j.
func Column(rows [][]float64, j int) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r[j]
	}
	return out
}

// Clone deep-copies rows.
func Clone(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = append([]float64(nil), r...)
	}
	return out
}

// Levels returns the distinct values of factor in first-seen order and the level
// index of every element.
func Levels(factor []string) (levels []string, idx []int) {
	pos := make(map[string]int)
	idx = make([]int, len(factor))
	for i, f := range factor {
		k, ok := pos[f]
		if !ok {
			k = len(levels)
			pos[f] = k
			levels = append(levels, f)
		}
		idx[i] = k
	}
	return levels, idx
}

// SortedLevels is Levels with levels in lexical order, the way factor levels are
// ordered for reference coding.
func SortedLevels(factor []string) (levels []string, idx []int) {
	levels, _ = Levels(factor)
	sort.Strings(levels)
	pos := make(map[string]int, len(levels))
	for k, l := range levels {
		pos[l] = k
	}
	idx = make([]int, len(factor))
	for i, f := range factor {
		idx[i] = pos[f]
	}
	return levels, idx
}
