// Package tabular reads delimited and spreadsheet files into raw string records.
//
// It knows nothing about biomarkers: the dataset package interprets the header and
// cells. Readers are selected by file extension through a small registry.
package tabular

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupported indicates no reader accepts the file.
var ErrUnsupported = errors.New("tabular: unsupported file format")

// Table is a header plus rows of raw cell text. Rows are padded to the header width.
type Table struct {
	Name   string
	Header []string
	Rows   [][]string
}

// Options controls how files are read.
type Options struct {
	// Delimiter for delimited text. If 0, sniffed from the file name and header line.
	Delimiter rune
	// Sheet selects an XLSX sheet by name; empty means SheetIndex.
	Sheet string
	// SheetIndex is 1-based; <= 0 means the first sheet.
	SheetIndex int
}

// Reader reads one file format.
type Reader interface {
	CanRead(path string) bool
	Read(path string, opt Options) (*Table, error)
}

var registry []Reader

// Register adds a reader. Later registrations do not override earlier ones.
func Register(r Reader) {
	registry = append(registry, r)
}

func init() {
	Register(xlsxReader{})
	Register(delimitedReader{})
}

// Read picks a reader by extension and normalizes the result.
func Read(path string, opt Options) (*Table, error) {
	for _, r := range registry {
		if !r.CanRead(path) {
			continue
		}
		t, err := r.Read(path, opt)
		if err != nil {
			return nil, err
		}
		t.Name = filepath.Base(path)
		t.normalize()
		return t, nil
	}
	return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrUnsupported)
}

// normalize trims header cells, pads short rows and drops fully blank rows.
func (t *Table) normalize() {
	for i := range t.Header {
		t.Header[i] = strings.TrimSpace(strings.TrimPrefix(t.Header[i], "\ufeff"))
	}
	n := len(t.Header)
	kept := t.Rows[:0]
	for _, rec := range t.Rows {
		if len(rec) < n {
			tmp := make([]string, n)
			copy(tmp, rec)
			rec = tmp
		}
		blank := true
		for _, v := range rec {
			if strings.TrimSpace(v) != "" {
				blank = false
				break
			}
		}
		if !blank {
			kept = append(kept, rec)
		}
	}
	t.Rows = kept
}
