package numeric

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestValidateRagged(t *testing.T) {
	_, _, err := Validate("test", [][]float64{{1, 2}, {3}})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrShape))
	var se *ShapeError
	require.True(t, errors.As(err, &se))
	require.Equal(t, 2, se.Want)
	require.Equal(t, 1, se.Got)
}

func TestValidateEmptyAndNaN(t *testing.T) {
	_, _, err := Validate("test", nil)
	require.ErrorIs(t, err, ErrEmpty)

	_, _, err = ValidateFinite("test", [][]float64{{1, math.NaN()}})
	require.ErrorIs(t, err, ErrNaN)

	n, p, err := ValidateFinite("test", [][]float64{{1, 2}, {3, 4}, {5, 6}})
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, 2, p)
}

func TestLevels(t *testing.T) {
	levels, idx := Levels([]string{"b", "a", "b", "c"})
	if diff := cmp.Diff([]string{"b", "a", "c"}, levels); diff != "" {
		t.Fatalf("levels mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 1, 0, 2}, idx); diff != "" {
		t.Fatalf("idx mismatch (-want +got):\n%s", diff)
	}

	levels, idx = SortedLevels([]string{"b", "a", "b", "c"})
	if diff := cmp.Diff([]string{"a", "b", "c"}, levels); diff != "" {
		t.Fatalf("sorted levels mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 0, 1, 2}, idx); diff != "" {
		t.Fatalf("sorted idx mismatch (-want +got):\n%s", diff)
	}
}

func TestDenseAndColumn(t *testing.T) {
	rows := [][]float64{{1, 2}, {3, 4}}
	d := Dense(rows)
	r, c := d.Dims()
	require.Equal(t, 2, r)
	require.Equal(t, 2, c)
	require.Equal(t, 4.0, d.At(1, 1))
	require.Equal(t, []float64{2, 4}, Column(rows, 1))

	cp := Clone(rows)
	cp[0][0] = 99
	require.Equal(t, 1.0, rows[0][0])
}
