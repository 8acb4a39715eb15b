package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// LongRecord is one (sample, marker) cell of a melted view.
type LongRecord struct {
	Key     int     `json:"key"`
	Species string  `json:"species"`
	Phylum  string  `json:"phylum"`
	Order   string  `json:"order"`
	Family  string  `json:"family"`
	Site    string  `json:"site"`
	Marker  string  `json:"marker"`
	Value   float64 `json:"value"`
}

// LongView is the wide→long melt of a View, rows ordered sample-major.
type LongView struct {
	Name    string
	Records []LongRecord
}

// Melt reshapes the view to one record per (row, marker).
func (v *View) Melt() *LongView {
	lv := &LongView{Name: v.Name + "_long", Records: make([]LongRecord, 0, len(v.Rows)*len(v.Markers))}
	for i, a := range v.Annotations {
		for j, m := range v.Markers {
			lv.Records = append(lv.Records, LongRecord{
				Key: a.Key, Species: a.Species, Phylum: a.Phylum, Order: a.Order,
				Family: a.Family, Site: a.Site, Marker: m, Value: v.Rows[i][j],
			})
		}
	}
	return lv
}

// WriteCSV exports the long form.
func (lv *LongView) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"key", "species", "phylum", "order", "family", "site", "marker", "value"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range lv.Records {
		rec := []string{strconv.Itoa(r.Key), r.Species, r.Phylum, r.Order, r.Family, r.Site, r.Marker, formatValue(r.Value)}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
