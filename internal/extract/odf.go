package extract

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/nao1215/fisgon/internal/model"
)

// odfMetaFields maps office:meta children to openoffice_metadata keys.
var odfMetaFields = []struct {
	element string
	key     string
}{
	{"title", "title"},
	{"subject", "subject"},
	{"description", "description"},
	{"creator", "creator"},
	{"initial-creator", "initial_creator"},
	{"creation-date", "creation_date"},
	{"date", "modification_date"},
	{"language", "language"},
	{"keyword", "keywords"},
	{"generator", "generator"},
	{"editing-cycles", "editing_cycles"},
	{"editing-duration", "editing_duration"},
	{"template", "template"},
}

// Preview caps for the OpenDocument variants.
const (
	odtPreviewElements = 10
	odsPreviewSheets   = 5
	odsPreviewRows     = 5
	odsPreviewCells    = 5
	odpPreviewSlides   = 3
	odpSlidePreview    = 200
)

type odfExtractor struct {
	xml    XMLParser
	logger *slog.Logger
}

func (*odfExtractor) Name() string { return VariantODF }

// Extract reads the document with the XML parser. Without one, or when
// the parse fails, meta.xml is read directly from the archive.
func (x *odfExtractor) Extract(_ context.Context, f *File) model.Metadata {
	if x.xml != nil {
		md, err := x.native(f)
		if err == nil {
			return md
		}
		x.logger.Debug("opendocument parse failed, reading meta.xml directly", "file", f.Path, "error", err)
	}
	return odfFallback(f)
}

func (x *odfExtractor) native(f *File) (model.Metadata, error) {
	zr, err := openZip(f.Data)
	if err != nil {
		return nil, err
	}
	md := model.Metadata{}
	if meta, err := parsePart(x.xml, zr, "meta.xml"); err == nil {
		if office := odfMetadata(meta); len(office) > 0 {
			md[model.CategoryOpenOffice] = office
		}
	} else if !isNotExist(err) {
		return nil, fmt.Errorf("meta.xml: %w", err)
	}

	content, err := parsePart(x.xml, zr, "content.xml")
	if err != nil {
		return nil, fmt.Errorf("content.xml: %w", err)
	}

	switch f.Type {
	case model.FileTypeODT:
		odtSummary(md, content)
	case model.FileTypeODS:
		odsSummary(md, content)
	case model.FileTypeODP:
		odpSummary(md, content)
	default:
		md[model.CategoryDocument] = map[string]any{"document_type": "OpenDocument " + f.ext()}
	}
	return md, nil
}

// odfMetadata reads the office:meta element. Only the first keyword is kept.
func odfMetadata(meta *xmlquery.Node) map[string]any {
	office := make(map[string]any)
	base := "//" + byLocal("meta") + "/"
	for _, fld := range odfMetaFields {
		n := xmlquery.FindOne(meta, base+byLocal(fld.element))
		if n == nil {
			continue
		}
		v := nodeText(n)
		if fld.element == "template" {
			if href := attrLocal(n, "href"); href != "" {
				v = href
			} else {
				v = attrLocal(n, "title")
			}
		}
		putNonEmpty(office, fld.key, v)
	}
	return office
}

func odtSummary(md model.Metadata, content *xmlquery.Node) {
	paragraphs := elementsByLocal(content, "p")
	headers := elementsByLocal(content, "h")
	md[model.CategoryDocument] = map[string]any{
		"document_type":   "OpenDocument Text (.odt)",
		"paragraph_count": len(paragraphs),
		"header_count":    len(headers),
		"image_count":     len(elementsByLocal(content, "image")),
	}

	elements := slices.Concat(headers, paragraphs)
	var texts []string
	for _, n := range elements[:min(len(elements), odtPreviewElements)] {
		if t := nodeText(n); t != "" {
			texts = append(texts, t)
		}
	}
	if len(texts) > 0 {
		md["content_preview"] = truncate(strings.Join(texts, " "), PreviewLength)
	}
}

func odsSummary(md model.Metadata, content *xmlquery.Node) {
	tables := odsTables(content)
	md[model.CategoryDocument] = map[string]any{
		"document_type": "OpenDocument Spreadsheet (.ods)",
		"sheet_count":   len(tables),
	}

	info := make([]any, 0, odsPreviewSheets)
	for i, tbl := range tables[:min(len(tables), odsPreviewSheets)] {
		sheet := map[string]any{"name": odsTableName(tbl, i)}
		if rows := len(odsRows(tbl)); rows > 0 {
			sheet["row_count"] = rows
		}
		info = append(info, sheet)
	}
	md[model.CategorySheets] = info

	if len(tables) == 0 {
		return
	}
	var lines []string
	rows := odsRows(tables[0])
	for _, row := range rows[:min(len(rows), odsPreviewRows)] {
		if line := odsRowText(row, odsPreviewCells, false); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) > 0 {
		md["content_preview"] = truncate(strings.Join(lines, "\n"), PreviewLength)
	}
}

func odpSummary(md model.Metadata, content *xmlquery.Node) {
	slides := xmlquery.Find(content, "//"+byLocal("page"))
	md[model.CategoryDocument] = map[string]any{
		"document_type": "OpenDocument Presentation (.odp)",
		"slide_count":   len(slides),
	}

	preview := make([]any, 0, odpPreviewSlides)
	var texts []string
	for i, slide := range slides[:min(len(slides), odpPreviewSlides)] {
		s := map[string]any{
			"slide_number": i + 1,
			"slide_name":   odpSlideName(slide, i),
		}
		if t := truncate(strings.Join(odpSlideTexts(slide), " "), odpSlidePreview); t != "" {
			s["text_preview"] = t
			texts = append(texts, t)
		}
		preview = append(preview, s)
	}
	md["slides_preview"] = preview
	if len(texts) > 0 {
		md["content_preview"] = truncate(strings.Join(texts, " "), PreviewLength)
	}
}

// Content renders the whole document: text documents as headers,
// paragraphs and tables, spreadsheets sheet by sheet, presentations slide
// by slide.
func (x *odfExtractor) Content(_ context.Context, f *File) (string, error) {
	if x.xml == nil {
		return "", fmt.Errorf("%s: %w", f.Type, ErrCapabilityUnavailable)
	}
	zr, err := openZip(f.Data)
	if err != nil {
		return "", fmt.Errorf("%s: %w", f.Type, err)
	}
	content, err := parsePart(x.xml, zr, "content.xml")
	if err != nil {
		return "", fmt.Errorf("%s: content.xml: %w", f.Type, err)
	}

	switch f.Type {
	case model.FileTypeODT:
		return odtContent(content), nil
	case model.FileTypeODS:
		return odsContent(content), nil
	case model.FileTypeODP:
		return odpContent(content), nil
	default:
		return "", ErrNoContent
	}
}

func odtContent(content *xmlquery.Node) string {
	var lines []string
	for _, h := range elementsByLocal(content, "h") {
		if t := nodeText(h); t != "" {
			lines = append(lines, t)
		}
	}
	for _, p := range elementsByLocal(content, "p") {
		if hasAncestor(p, "table") {
			continue
		}
		if t := nodeText(p); t != "" {
			lines = append(lines, t)
		}
	}
	for _, tbl := range odsTables(content) {
		var rows []string
		for _, row := range odsRows(tbl) {
			if line := odsRowText(row, -1, false); line != "" {
				rows = append(rows, line)
			}
		}
		if len(rows) == 0 {
			continue
		}
		lines = append(lines, "=== TABLE ===")
		lines = append(lines, rows...)
		lines = append(lines, "=== END TABLE ===")
	}
	return strings.Join(lines, "\n")
}

func odsContent(content *xmlquery.Node) string {
	tables := odsTables(content)
	blocks := make([]string, 0, min(len(tables), MaxSheets))
	for i, tbl := range tables[:min(len(tables), MaxSheets)] {
		lines := []string{"=== SHEET: " + odsTableName(tbl, i) + " ==="}
		rows := odsRows(tbl)
		for _, row := range rows[:min(len(rows), MaxSheetRows)] {
			if line := odsRowText(row, MaxSheetCols, true); line != "" {
				lines = append(lines, line)
			}
		}
		if len(lines) == 1 {
			lines = append(lines, "(empty sheet)")
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	return strings.Join(blocks, "\n\n")
}

func odpContent(content *xmlquery.Node) string {
	var blocks []string
	for i, slide := range xmlquery.Find(content, "//"+byLocal("page")) {
		lines := []string{fmt.Sprintf("=== SLIDE %d: %s ===", i+1, odpSlideName(slide, i))}
		lines = append(lines, odpSlideTexts(slide)...)
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	return strings.Join(blocks, "\n\n")
}

// odsTables returns the top-level tables. Nested sub-tables are not included.
func odsTables(content *xmlquery.Node) []*xmlquery.Node {
	return xmlquery.Find(content, "//"+byLocal("table")+"[not(ancestor::"+byLocal("table")+")]")
}

func odsTableName(tbl *xmlquery.Node, i int) string {
	if name := attrLocal(tbl, "name"); name != "" {
		return name
	}
	return fmt.Sprintf("Sheet%d", i+1)
}

// odsRows returns the rows of tbl, including those inside row groups.
func odsRows(tbl *xmlquery.Node) []*xmlquery.Node {
	return xmlquery.Find(tbl, ".//"+byLocal("table-row"))
}

// odsRowText joins the non-empty cells of row with " | ". A negative
// limit reads every cell. When tag is set, text cells are tagged when
// they look sensitive.
func odsRowText(row *xmlquery.Node, limit int, tag bool) string {
	cells := xmlquery.Find(row, "./"+byLocal("table-cell"))
	if limit >= 0 {
		cells = cells[:min(len(cells), limit)]
	}
	var values []string
	for _, c := range cells {
		t := nodeText(c)
		if t == "" {
			continue
		}
		if tag {
			t = formatCell(t)
		}
		values = append(values, t)
	}
	return strings.Join(values, " | ")
}

func odpSlideName(slide *xmlquery.Node, i int) string {
	if name := attrLocal(slide, "name"); name != "" {
		return name
	}
	return fmt.Sprintf("Slide %d", i+1)
}

func odpSlideTexts(slide *xmlquery.Node) []string {
	var texts []string
	for _, box := range xmlquery.Find(slide, ".//"+byLocal("text-box")) {
		if t := nodeText(box); t != "" {
			texts = append(texts, t)
		}
	}
	return texts
}

// odfMetaDocument is meta.xml as read by the archive fallback.
type odfMetaDocument struct {
	Meta struct {
		Title        string   `xml:"title"`
		Subject      string   `xml:"subject"`
		Description  string   `xml:"description"`
		Creator      string   `xml:"creator"`
		Date         string   `xml:"date"`
		CreationDate string   `xml:"creation-date"`
		Generator    string   `xml:"generator"`
		Keywords     []string `xml:"keyword"`
	} `xml:"meta"`
}

// odfFallback reads meta.xml straight from the archive. It never fails:
// problems are reported under extraction_error.
func odfFallback(f *File) model.Metadata {
	md := model.Metadata{}
	info := map[string]any{"document_type": "OpenDocument " + f.ext()}
	md[model.CategoryDocument] = info

	office, err := readODFMeta(f.Data)
	if err != nil {
		info["extraction_method"] = "fallback failed"
		md[model.KeyExtractionError] = fmt.Sprintf("%s: %v", f.Type, err)
		return md
	}
	info["extraction_method"] = "ZIP fallback"
	if len(office) > 0 {
		md[model.CategoryOpenOffice] = office
	}
	return md
}

func readODFMeta(data []byte) (map[string]any, error) {
	zr, err := openZip(data)
	if err != nil {
		return nil, err
	}
	return decodeODFMeta(zr)
}

func decodeODFMeta(zr *zip.Reader) (map[string]any, error) {
	b, err := readPart(zr, "meta.xml")
	if err != nil {
		return nil, err
	}
	var doc odfMetaDocument
	if err := xml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("meta.xml: %w", err)
	}
	m := doc.Meta
	office := make(map[string]any)
	putNonEmpty(office, "title", m.Title)
	putNonEmpty(office, "subject", m.Subject)
	putNonEmpty(office, "description", m.Description)
	putNonEmpty(office, "creator", m.Creator)
	putNonEmpty(office, "modification_date", m.Date)
	putNonEmpty(office, "creation_date", m.CreationDate)
	putNonEmpty(office, "generator", m.Generator)
	if len(m.Keywords) > 0 {
		putNonEmpty(office, "keywords", m.Keywords[0])
	}
	return office, nil
}
