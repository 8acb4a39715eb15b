// Package numeric holds the shared row-matrix helpers and structural errors used by
// every analysis engine.
package numeric

import (
	"errors"
	"fmt"
)

var (
	// ErrShape reports a row-count or column-count mismatch between a numeric matrix
	// and something that must stay aligned with it (a grouping factor, labels, a
	// ragged row).
	ErrShape = errors.New("numeric: shape mismatch")

	// ErrEmpty reports a matrix with no rows or no columns where data is required.
	ErrEmpty = errors.New("numeric: empty matrix")

	// ErrNaN reports a missing value inside a matrix handed to an engine that
	// cannot work around it.
	ErrNaN = errors.New("numeric: NaN in input")
)

// ShapeError carries the two disagreeing sizes. It matches ErrShape via errors.Is.
type ShapeError struct {
	Op   string
	What string
	Want int
	Got  int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: %s length %d, want %d", e.Op, e.What, e.Got, e.Want)
}

func (e *ShapeError) Unwrap() error { return ErrShape }
