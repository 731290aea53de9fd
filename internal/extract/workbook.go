package extract

import (
	"bytes"
	"fmt"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// excelizeReader is the SpreadsheetReader backed by github.com/xuri/excelize/v2.
type excelizeReader struct{}

func (excelizeReader) Library() string { return "github.com/xuri/excelize/v2" }

func (excelizeReader) OpenWorkbook(data []byte) (Workbook, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return &excelWorkbook{f: f}, nil
}

type excelWorkbook struct {
	f *excelize.File
}

func (w *excelWorkbook) Properties() map[string]string {
	props := make(map[string]string)
	if dp, err := w.f.GetDocProps(); err == nil && dp != nil {
		props["creator"] = dp.Creator
		props["last_modified_by"] = dp.LastModifiedBy
		props["title"] = dp.Title
		props["subject"] = dp.Subject
		props["keywords"] = dp.Keywords
		props["description"] = dp.Description
		props["category"] = dp.Category
		props["created"] = dp.Created
		props["modified"] = dp.Modified
	}
	if ap, err := w.f.GetAppProps(); err == nil && ap != nil {
		props["company"] = ap.Company
	}
	return props
}

// Sheets reports every sheet with the index of its last non-empty row and
// the widest row seen.
func (w *excelWorkbook) Sheets() []Sheet {
	names := w.f.GetSheetList()
	sheets := make([]Sheet, 0, len(names))
	for _, name := range names {
		s := Sheet{Name: name}
		rows, err := w.f.Rows(name)
		if err != nil {
			sheets = append(sheets, s)
			continue
		}
		for i := 1; rows.Next(); i++ {
			cols, err := rows.Columns()
			if err != nil {
				break
			}
			if width := lastNonEmpty(cols) + 1; width > 0 {
				s.Rows = i
				s.Cols = max(s.Cols, width)
			}
		}
		_ = rows.Close()
		sheets = append(sheets, s)
	}
	return sheets
}

func (w *excelWorkbook) Cells(sheet string, maxRows, maxCols int) ([][]string, error) {
	rows, err := w.f.Rows(sheet)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]string
	for len(out) < maxRows && rows.Next() {
		cols, err := rows.Columns()
		if err != nil {
			return nil, err
		}
		out = append(out, fitRow(cols, maxCols))
	}
	return out, rows.Error()
}

func (w *excelWorkbook) DefinedNames() map[string]string {
	names := make(map[string]string)
	for _, dn := range w.f.GetDefinedName() {
		names[dn.Name] = dn.RefersTo
	}
	return names
}

func (w *excelWorkbook) Close() error { return w.f.Close() }

// xlsReader is the SpreadsheetReader backed by github.com/extrame/xls.
type xlsReader struct{}

func (xlsReader) Library() string { return "github.com/extrame/xls" }

func (xlsReader) OpenWorkbook(data []byte) (wb Workbook, err error) {
	defer func() {
		if r := recover(); r != nil {
			wb, err = nil, fmt.Errorf("%w: %v", ErrMalformed, r)
		}
	}()
	book, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, err
	}
	if book == nil {
		return nil, fmt.Errorf("%w: no workbook stream", ErrMalformed)
	}
	return &xlsWorkbook{book: book}, nil
}

type xlsWorkbook struct {
	book *xls.WorkBook
}

// Properties is empty: BIFF records carry no document properties. They
// come from the OLE property streams instead.
func (*xlsWorkbook) Properties() map[string]string { return map[string]string{} }

func (w *xlsWorkbook) Sheets() []Sheet {
	var sheets []Sheet
	for i := range w.book.NumSheets() {
		ws := w.sheet(i)
		if ws == nil {
			continue
		}
		s := Sheet{Name: ws.Name}
		for r := 0; r <= int(ws.MaxRow); r++ {
			row := xlsRow(ws, r)
			if row == nil {
				continue
			}
			s.Rows = r + 1
			s.Cols = max(s.Cols, row.LastCol())
		}
		sheets = append(sheets, s)
	}
	return sheets
}

func (w *xlsWorkbook) Cells(sheet string, maxRows, maxCols int) ([][]string, error) {
	for i := range w.book.NumSheets() {
		ws := w.sheet(i)
		if ws == nil || ws.Name != sheet {
			continue
		}
		var out [][]string
		for r := 0; r <= int(ws.MaxRow) && r < maxRows; r++ {
			row := xlsRow(ws, r)
			if row == nil {
				out = append(out, make([]string, maxCols))
				continue
			}
			cols := make([]string, 0, maxCols)
			for c := range min(row.LastCol(), maxCols) {
				cols = append(cols, xlsCol(row, c))
			}
			out = append(out, fitRow(cols, maxCols))
		}
		return out, nil
	}
	return nil, fmt.Errorf("sheet %q not found", sheet)
}

func (*xlsWorkbook) DefinedNames() map[string]string { return nil }

func (*xlsWorkbook) Close() error { return nil }

// sheet parses sheet i on first use. A sheet whose records cannot be
// parsed is reported as nil.
func (w *xlsWorkbook) sheet(i int) (ws *xls.WorkSheet) {
	defer func() {
		if recover() != nil {
			ws = nil
		}
	}()
	return w.book.GetSheet(i)
}

// xlsRow returns nil for rows that hold no records.
func xlsRow(ws *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return ws.Row(i)
}

func xlsCol(row *xls.Row, i int) (v string) {
	defer func() {
		if recover() != nil {
			v = ""
		}
	}()
	return row.Col(i)
}

// fitRow pads or cuts a row to exactly width cells.
func fitRow(cols []string, width int) []string {
	out := make([]string, width)
	copy(out, cols)
	return out
}

func lastNonEmpty(cols []string) int {
	for i := len(cols) - 1; i >= 0; i-- {
		if cols[i] != "" {
			return i
		}
	}
	return -1
}
