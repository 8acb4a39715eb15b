package tabular

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
)

type xlsxReader struct{}

func (xlsxReader) CanRead(p string) bool {
	return strings.HasSuffix(strings.ToLower(p), ".xlsx")
}

func (xlsxReader) Read(p string, opt Options) (*Table, error) {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer zr.Close()

	var wb struct {
		Sheets []struct {
			Name    string `xml:"name,attr"`
			SheetID int    `xml:"sheetId,attr"`
			RID     string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
		} `xml:"sheets>sheet"`
	}
	if err := decodeZipXML(&zr.Reader, "xl/workbook.xml", &wb); err != nil {
		return nil, err
	}
	var rels struct {
		Items []struct {
			ID     string `xml:"Id,attr"`
			Target string `xml:"Target,attr"`
		} `xml:"Relationship"`
	}
	if err := decodeZipXML(&zr.Reader, "xl/_rels/workbook.xml.rels", &rels); err != nil {
		return nil, err
	}
	targets := make(map[string]string, len(rels.Items))
	for _, r := range rels.Items {
		targets[r.ID] = sheetPath(r.Target)
	}

	target := ""
	var names []string
	for _, s := range wb.Sheets {
		names = append(names, s.Name)
		switch {
		case opt.Sheet != "" && strings.EqualFold(s.Name, opt.Sheet):
			target = targets[s.RID]
		case opt.Sheet == "" && s.SheetID == max(opt.SheetIndex, 1):
			target = targets[s.RID]
		}
		if target != "" {
			break
		}
	}
	if target == "" {
		if opt.Sheet != "" {
			return nil, fmt.Errorf("sheet %q not found; available sheets: %s", opt.Sheet, strings.Join(names, ", "))
		}
		target = fmt.Sprintf("xl/worksheets/sheet%d.xml", max(opt.SheetIndex, 1))
	}

	shared, err := readSharedStrings(&zr.Reader)
	if err != nil {
		return nil, err
	}
	data, err := readZipEntry(&zr.Reader, target)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("xlsx: worksheet %s missing", target)
	}
	rows, err := readSheetRows(data, shared)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return &Table{}, nil
	}
	return &Table{Header: rows[0], Rows: rows[1:]}, nil
}

func readZipEntry(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("xlsx: open %s: %w", name, err)
		}
		defer rc.Close()
		b, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("xlsx: read %s: %w", name, err)
		}
		return b, nil
	}
	return nil, nil
}

// decodeZipXML leaves v untouched when the entry is absent.
func decodeZipXML(zr *zip.Reader, name string, v any) error {
	b, err := readZipEntry(zr, name)
	if err != nil || b == nil {
		return err
	}
	if err := xml.Unmarshal(b, v); err != nil {
		return fmt.Errorf("xlsx: parse %s: %w", name, err)
	}
	return nil
}

// sheetPath turns a relationship target into a zip entry name.
func sheetPath(target string) string {
	target = strings.TrimPrefix(target, "/")
	if strings.HasPrefix(target, "xl/") {
		return target
	}
	return path.Join("xl", target)
}

func readSharedStrings(zr *zip.Reader) ([]string, error) {
	var sst struct {
		Items []struct {
			T    string `xml:"t"`
			Runs []struct {
				T string `xml:"t"`
			} `xml:"r"`
		} `xml:"si"`
	}
	if err := decodeZipXML(zr, "xl/sharedStrings.xml", &sst); err != nil {
		return nil, err
	}
	out := make([]string, len(sst.Items))
	for i, it := range sst.Items {
		if len(it.Runs) == 0 {
			out[i] = it.T
			continue
		}
		var b strings.Builder
		for _, r := range it.Runs {
			b.WriteString(r.T)
		}
		out[i] = b.String()
	}
	return out, nil
}

type xlsxCell struct {
	Ref    string `xml:"r,attr"`
	Type   string `xml:"t,attr"`
	Value  string `xml:"v"`
	Inline string `xml:"is>t"`
}

// readSheetRows streams <row> elements; cells are placed by their A1 column so
// sparse rows keep their alignment.
func readSheetRows(data []byte, shared []string) ([][]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var rows [][]string
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("xlsx: parse sheet: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "row" {
			continue
		}
		var row struct {
			Cells []xlsxCell `xml:"c"`
		}
		if err := dec.DecodeElement(&row, &se); err != nil {
			return nil, fmt.Errorf("xlsx: parse row: %w", err)
		}
		var rec []string
		for k, c := range row.Cells {
			col := k
			if c.Ref != "" {
				col = columnIndex(c.Ref)
			}
			for len(rec) <= col {
				rec = append(rec, "")
			}
			rec[col] = cellText(c, shared)
		}
		rows = append(rows, rec)
	}
}

func cellText(c xlsxCell, shared []string) string {
	switch c.Type {
	case "s":
		i, err := strconv.Atoi(strings.TrimSpace(c.Value))
		if err != nil || i < 0 || i >= len(shared) {
			return ""
		}
		return shared[i]
	case "inlineStr":
		return c.Inline
	default:
		return c.Value
	}
}

// columnIndex maps "C12" to 2.
func columnIndex(ref string) int {
	idx := 0
	for _, ch := range strings.ToUpper(ref) {
		if ch < 'A' || ch > 'Z' {
			break
		}
		idx = idx*26 + int(ch-'A'+1)
	}
	return idx - 1
}
