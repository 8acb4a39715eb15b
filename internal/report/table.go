// Package report renders analysis results as fixed-width or Markdown tables.
// Numbers are rounded to three decimals here and nowhere else.
package report

import (
	"fmt"
	"math"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Mode controls the output format.
type Mode int

const (
	ASCII    Mode = iota // Fixed-width terminal tables
	Markdown             // GitHub-flavoured Markdown tables
)

// ParseMode accepts "ascii" (or empty) and "markdown"/"md".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ascii", "text":
		return ASCII, nil
	case "markdown", "md":
		return Markdown, nil
	}
	return ASCII, fmt.Errorf("report: unknown output format %q", s)
}

func (m Mode) String() string {
	if m == Markdown {
		return "markdown"
	}
	return "ascii"
}

// ColumnAlign specifies the horizontal alignment for a column.
type ColumnAlign int

const (
	AlignDefault ColumnAlign = iota
	AlignLeft
	AlignCenter
	AlignRight
)

// ColumnConfig controls per-column formatting.
type ColumnConfig struct {
	Number   int // 1-based column index
	Align    ColumnAlign
	MaxWidth int // 0 = unlimited
}

// TableBuilder builds a table once and renders it in the Mode chosen at creation.
type TableBuilder interface {
	Header(cols ...string)
	// Row appends a data row. Values are converted to strings via fmt Sprint.
	Row(vals ...any)
	Footer(vals ...any)
	Columns(cfgs ...ColumnConfig)
	String() string
}

// NewTable returns a TableBuilder that renders in the given Mode.
func NewTable(m Mode) TableBuilder {
	w := table.NewWriter()
	if m == ASCII {
		w.SetStyle(table.StyleLight)
	}
	return &prettyAdapter{writer: w, mode: m}
}

type prettyAdapter struct {
	writer table.Writer
	mode   Mode
}

func (a *prettyAdapter) Header(cols ...string) {
	row := make(table.Row, len(cols))
	for i, c := range cols {
		row[i] = c
	}
	a.writer.AppendHeader(row)
}

func (a *prettyAdapter) Row(vals ...any) {
	row := make(table.Row, len(vals))
	copy(row, vals)
	a.writer.AppendRow(row)
}

func (a *prettyAdapter) Footer(vals ...any) {
	row := make(table.Row, len(vals))
	copy(row, vals)
	a.writer.AppendFooter(row)
}

func (a *prettyAdapter) Columns(cfgs ...ColumnConfig) {
	goCfgs := make([]table.ColumnConfig, len(cfgs))
	for i, c := range cfgs {
		goCfgs[i] = table.ColumnConfig{
			Number:   c.Number,
			Align:    toTextAlign(c.Align),
			WidthMax: c.MaxWidth,
		}
	}
	a.writer.SetColumnConfigs(goCfgs)
}

func (a *prettyAdapter) String() string {
	if a.mode == Markdown {
		return a.writer.RenderMarkdown()
	}
	return a.writer.Render()
}

func toTextAlign(a ColumnAlign) text.Align {
	switch a {
	case AlignLeft:
		return text.AlignLeft
	case AlignRight:
		return text.AlignRight
	case AlignCenter:
		return text.AlignCenter
	default:
		return text.AlignDefault
	}
}

// Num rounds x to three decimals. NaN renders as NA.
func Num(x float64) string {
	switch {
	case math.IsNaN(x):
		return "NA"
	case math.IsInf(x, 1):
		return "Inf"
	case math.IsInf(x, -1):
		return "-Inf"
	}
	s := fmt.Sprintf("%.3f", x)
	if s == "-0.000" {
		s = "0.000"
	}
	return s
}

// PValue is Num with a floor of "<0.001".
func PValue(p float64) string {
	if !math.IsNaN(p) && p < 0.001 {
		return "<0.001"
	}
	return Num(p)
}

// Title renders a section heading for the mode.
func Title(m Mode, title string) string {
	if m == Markdown {
		return "### " + title + "\n\n"
	}
	return title + "\n"
}

// rightAlign right-aligns columns from..to (1-based, inclusive).
func rightAlign(tb TableBuilder, from, to int) {
	var cfgs []ColumnConfig
	for c := from; c <= to; c++ {
		cfgs = append(cfgs, ColumnConfig{Number: c, Align: AlignRight})
	}
	tb.Columns(cfgs...)
}
