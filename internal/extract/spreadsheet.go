package extract

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/nao1215/fisgon/internal/model"
	"github.com/nao1215/fisgon/internal/sensitive"
)

// Spreadsheet content caps.
const (
	MaxSheets        = 10
	MaxSheetRows     = 100
	MaxSheetCols     = 50
	MaxCellsPerSheet = 1000
)

// spreadsheetExtractor handles XLSX files, and XLS files when legacy is
// set. A legacy extractor without its primary reader reuses the XLSX path.
type spreadsheetExtractor struct {
	primary  SpreadsheetReader
	fallback SpreadsheetReader
	ole      PropertyReader
	legacy   bool
}

func (x *spreadsheetExtractor) Name() string {
	if x.legacy {
		return VariantLegacy
	}
	return VariantSpreadsheet
}

// reader returns the reader to use and whether it is the legacy one.
func (x *spreadsheetExtractor) reader() (SpreadsheetReader, bool) {
	if x.primary != nil {
		return x.primary, x.legacy
	}
	return x.fallback, false
}

func (x *spreadsheetExtractor) Extract(_ context.Context, f *File) model.Metadata {
	md := model.Metadata{}
	r, legacy := x.reader()
	if r == nil {
		return md
	}

	wb, err := r.OpenWorkbook(f.Data)
	if err != nil {
		md[model.KeyExtractionError] = fmt.Sprintf("%s: %v", f.Type, err)
		return md
	}
	defer wb.Close()

	sheets := wb.Sheets()
	if legacy {
		office := map[string]any{
			"document_type": docTypeXLS,
			"sheets_count":  len(sheets),
		}
		if x.ole != nil {
			if doc, err := x.ole.ReadOLE(f.Data); err == nil {
				maps.Copy(office, oleOfficeMetadata(doc.Properties))
			}
		}
		info := make([]any, 0, len(sheets))
		for _, s := range sheets {
			info = append(info, map[string]any{"name": s.Name, "nrows": s.Rows, "ncols": s.Cols})
		}
		md[model.CategoryOffice] = office
		md[model.CategorySheets] = info
		return md
	}

	office := make(map[string]any)
	for k, v := range wb.Properties() {
		putNonEmpty(office, k, v)
	}
	info := make([]any, 0, len(sheets))
	for _, s := range sheets {
		info = append(info, map[string]any{"name": s.Name, "max_row": s.Rows, "max_column": s.Cols})
	}
	md[model.CategoryOffice] = office
	md[model.CategorySheets] = info
	md[model.CategoryDocument] = map[string]any{
		"sheets_count":  len(sheets),
		"document_type": docTypeXLSX,
	}
	return md
}

// Content renders up to MaxSheets sheets. Each sheet is capped at
// MaxSheetRows rows, MaxSheetCols columns and MaxCellsPerSheet non-empty
// cells; text cells are tagged when they look sensitive.
func (x *spreadsheetExtractor) Content(ctx context.Context, f *File) (string, error) {
	r, _ := x.reader()
	if r == nil {
		return "", fmt.Errorf("%s: %w", f.Type, ErrCapabilityUnavailable)
	}
	wb, err := r.OpenWorkbook(f.Data)
	if err != nil {
		return "", fmt.Errorf("%s: %w", f.Type, err)
	}
	defer wb.Close()

	sheets := wb.Sheets()
	names := wb.DefinedNames()
	blocks := make([]string, 0, min(len(sheets), MaxSheets))
	for _, s := range sheets[:min(len(sheets), MaxSheets)] {
		if err := ctx.Err(); err != nil {
			return strings.Join(blocks, "\n\n"), err
		}
		blocks = append(blocks, sheetContent(wb, s, names))
	}
	return strings.Join(blocks, "\n\n"), nil
}

// sheetContent renders one sheet.
func sheetContent(wb Workbook, s Sheet, definedNames map[string]string) string {
	header := "=== SHEET: " + s.Name + " ==="
	lines := []string{header}
	if s.Rows == 0 || s.Cols == 0 {
		return strings.Join(append(lines, "(empty sheet)"), "\n")
	}

	width := min(s.Cols, MaxSheetCols)
	rows, err := wb.Cells(s.Name, min(s.Rows, MaxSheetRows), width)
	if err != nil {
		return header + " (extraction error)"
	}

	cells := 0
	for _, row := range rows {
		if cells >= MaxCellsPerSheet {
			lines = append(lines, fmt.Sprintf("... (limited to %d cells)", MaxCellsPerSheet))
			break
		}
		values := make([]string, width)
		hasData := false
		for i := range min(len(row), width) {
			if row[i] == "" {
				continue
			}
			hasData = true
			values[i] = formatCell(row[i])
			cells++
		}
		if hasData {
			lines = append(lines, strings.Join(values, " | "))
		}
	}

	var ranges []string
	for name, ref := range definedNames {
		if name != "" && strings.Contains(ref, s.Name) {
			ranges = append(ranges, name)
		}
	}
	if len(ranges) > 0 {
		slices.Sort(ranges)
		lines = append(lines, "=== DEFINED RANGES ===", strings.Join(ranges, ", "))
	}
	return strings.Join(lines, "\n")
}

// formatCell keeps numbers as they are and tags sensitive text.
func formatCell(v string) string {
	if _, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
		return v
	}
	return sensitive.Tag(v)
}
