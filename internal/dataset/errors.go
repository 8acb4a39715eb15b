package dataset

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSchema is matched by every SchemaError.
	ErrSchema = errors.New("dataset: schema error")

	// ErrValue reports a marker cell that is neither a number nor a missing token.
	ErrValue = errors.New("dataset: invalid marker value")

	// ErrUnknownMarker reports a marker name that is not a column of the view.
	ErrUnknownMarker = errors.New("dataset: unknown marker")

	// ErrEmptyView reports a filter combination that kept no rows.
	ErrEmptyView = errors.New("dataset: view has no rows")
)

// SchemaError names the expected columns missing from a loaded table.
type SchemaError struct {
	Table   string
	Missing []string
	Detail  string
}

func (e *SchemaError) Error() string {
	msg := "dataset: " + e.Table + ": "
	if len(e.Missing) > 0 {
		msg += "missing columns " + strings.Join(e.Missing, ", ")
	}
	if e.Detail != "" {
		if len(e.Missing) > 0 {
			msg += "; "
		}
		msg += e.Detail
	}
	return msg
}

func (e *SchemaError) Unwrap() error { return ErrSchema }

// ViewError attributes a construction failure to the view and filters involved.
type ViewError struct {
	View    string
	Filters []string
	Err     error
}

func (e *ViewError) Error() string {
	return fmt.Sprintf("view %q [filters: %s]: %v", e.View, strings.Join(e.Filters, ", "), e.Err)
}

func (e *ViewError) Unwrap() error { return e.Err }
