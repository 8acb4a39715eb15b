package tabular

import (
	"archive/zip"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadCSVSniffsSemicolonAndPads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "algae.csv")
	body := strings.Join([]string{
		"Species;d13C;C16:0",
		"Desmarestia menziesii;-30,5;21,2",
		"Palmaria decipiens;-25",
		";;",
	}, "\n")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	tab, err := Read(path, Options{})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if tab.Name != "algae.csv" {
		t.Fatalf("name = %q", tab.Name)
	}
	if len(tab.Rows) != 2 {
		t.Fatalf("rows = %d, want 2 (blank row dropped)", len(tab.Rows))
	}
	if got := tab.Rows[1]; len(got) != 3 || got[2] != "" {
		t.Fatalf("short row not padded: %#v", got)
	}
}

func TestReadUnsupported(t *testing.T) {
	_, err := Read("notes.docx", Options{})
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("err = %v, want ErrUnsupported", err)
	}
}

func TestParseNumber(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"1.5", 1.5},
		{"1,5", 1.5},
		{"1.000,25", 1000.25},
		{"1,000.25", 1000.25},
		{"-30.1", -30.1},
		{"1e-3", 0.001},
	}
	for _, c := range cases {
		got, ok := ParseNumber(c.in)
		if !ok || math.Abs(got-c.want) > 1e-12 {
			t.Fatalf("ParseNumber(%q) = %v, %v; want %v", c.in, got, ok, c.want)
		}
	}
	for _, m := range []string{"", "NA", "nan", " n/a ", "-"} {
		got, ok := ParseNumber(m)
		if !ok || !math.IsNaN(got) {
			t.Fatalf("ParseNumber(%q) = %v, %v; want NaN", m, got, ok)
		}
	}
	for _, bad := range []string{"abc", "12%", "0.5 %"} {
		if _, ok := ParseNumber(bad); ok {
			t.Fatalf("ParseNumber(%q) should fail", bad)
		}
	}
}

func TestReadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "algae.xlsx")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	zw := zip.NewWriter(f)
	files := map[string]string{
		"xl/workbook.xml": `<workbook xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"><sheets>` +
			`<sheet name="Notes" sheetId="1" r:id="rId1"/><sheet name="Data" sheetId="2" r:id="rId2"/></sheets></workbook>`,
		"xl/_rels/workbook.xml.rels": `<Relationships><Relationship Id="rId1" Target="worksheets/sheet1.xml"/>` +
			`<Relationship Id="rId2" Target="/xl/worksheets/sheet2.xml"/></Relationships>`,
		"xl/sharedStrings.xml": `<sst><si><t>Species</t></si><si><t>d13C</t></si><si><r><t>Ulva </t></r><r><t>intestinalis</t></r></si></sst>`,
		"xl/worksheets/sheet1.xml": `<worksheet><sheetData><row r="1"><c r="A1" t="inlineStr"><is><t>ignore</t></is></c></row></sheetData></worksheet>`,
		"xl/worksheets/sheet2.xml": `<worksheet><sheetData>` +
			`<row r="1"><c r="A1" t="s"><v>0</v></c><c r="B1" t="s"><v>1</v></c></row>` +
			`<row r="2"><c r="A2" t="s"><v>2</v></c><c r="C2"><v>-18.25</v></c></row>` +
			`</sheetData></worksheet>`,
	}
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	f.Close()

	tab, err := Read(path, Options{Sheet: "data"})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if strings.Join(tab.Header, "|") != "Species|d13C" {
		t.Fatalf("header = %#v", tab.Header)
	}
	if len(tab.Rows) != 1 || tab.Rows[0][0] != "Ulva intestinalis" || tab.Rows[0][2] != "-18.25" {
		t.Fatalf("rows = %#v", tab.Rows)
	}

	byIndex, err := Read(path, Options{SheetIndex: 1})
	if err != nil {
		t.Fatalf("Read index: %v", err)
	}
	if byIndex.Header[0] != "ignore" {
		t.Fatalf("sheet index 1 header = %#v", byIndex.Header)
	}

	if _, err := Read(path, Options{Sheet: "Missing"}); err == nil || !strings.Contains(err.Error(), "available sheets") {
		t.Fatalf("err = %v, want sheet-not-found", err)
	}
}
