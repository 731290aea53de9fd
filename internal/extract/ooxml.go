package extract

import (
	"archive/zip"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"

	"github.com/nao1215/fisgon/internal/model"
)

// Document types reported in document_info.
const (
	docTypeDOCX = "Word Document (.docx)"
	docTypePPTX = "PowerPoint Presentation (.pptx)"
	docTypeXLSX = "Excel Workbook (.xlsx)"
	docTypeXLS  = "Excel Workbook Legacy (.xls)"
)

// coreProperties maps docProps/core.xml elements to office_metadata keys.
var coreProperties = []struct {
	element string
	key     string
	date    bool
}{
	{"creator", "author", false},
	{"lastModifiedBy", "last_modified_by", false},
	{"created", "created", true},
	{"modified", "modified", true},
	{"title", "title", false},
	{"subject", "subject", false},
	{"keywords", "keywords", false},
	{"description", "comments", false},
	{"category", "category", false},
	{"revision", "revision", false},
}

// docxPreviewParagraphs is the number of leading paragraphs in content_preview.
const docxPreviewParagraphs = 3

type ooxmlExtractor struct {
	xml XMLParser
}

func (*ooxmlExtractor) Name() string { return VariantOOXML }

func (x *ooxmlExtractor) Extract(_ context.Context, f *File) model.Metadata {
	md := model.Metadata{}
	if x.xml == nil {
		return md
	}

	zr, err := openZip(f.Data)
	if err != nil {
		md[model.KeyExtractionError] = fmt.Sprintf("%s: %v", f.Type, err)
		return md
	}
	office, err := x.officeProperties(zr)
	if err != nil {
		md[model.KeyExtractionError] = err.Error()
		return md
	}
	md[model.CategoryOffice] = office

	if f.Type == model.FileTypePPTX {
		md[model.CategoryDocument] = map[string]any{
			"slides_count":  len(partNames(zr, "ppt/slides/slide", ".xml")),
			"document_type": docTypePPTX,
		}
		return md
	}

	doc, err := x.wordDocument(zr)
	if err != nil {
		md[model.KeyExtractionError] = err.Error()
		return md
	}
	paragraphs := bodyParagraphs(doc)
	md[model.CategoryDocument] = map[string]any{
		"paragraphs_count": len(paragraphs),
		"tables_count":     len(bodyTables(doc)),
		"document_type":    docTypeDOCX,
	}

	var first []string
	for _, p := range paragraphs[:min(len(paragraphs), docxPreviewParagraphs)] {
		if t := strings.TrimSpace(p); t != "" {
			first = append(first, t)
		}
	}
	if len(first) > 0 {
		md["content_preview"] = truncate(strings.Join(first, " "), PreviewLength)
	}
	return md
}

// Content renders a DOCX as its paragraphs, then its tables wrapped in
// table markers, then its header and footer paragraphs.
func (x *ooxmlExtractor) Content(ctx context.Context, f *File) (string, error) {
	if f.Type != model.FileTypeDOCX {
		return "", ErrNoContent
	}
	if x.xml == nil {
		return "", fmt.Errorf("docx: %w", ErrCapabilityUnavailable)
	}
	zr, err := openZip(f.Data)
	if err != nil {
		return "", fmt.Errorf("docx: %w", err)
	}
	doc, err := x.wordDocument(zr)
	if err != nil {
		return "", err
	}

	var lines []string
	for _, p := range bodyParagraphs(doc) {
		if t := strings.TrimSpace(p); t != "" {
			lines = append(lines, t)
		}
	}
	for _, tbl := range bodyTables(doc) {
		rows := tableRows(tbl)
		if len(rows) == 0 {
			continue
		}
		lines = append(lines, "=== TABLE ===")
		lines = append(lines, rows...)
		lines = append(lines, "=== END TABLE ===")
	}
	if err := ctx.Err(); err != nil {
		return strings.Join(lines, "\n"), err
	}

	for _, part := range []struct{ prefix, marker string }{
		{"word/header", "=== HEADER ==="},
		{"word/footer", "=== FOOTER ==="},
	} {
		names := partNames(zr, part.prefix, ".xml")
		slices.Sort(names)
		for _, name := range names {
			node, err := parsePart(x.xml, zr, name)
			if err != nil {
				continue
			}
			for _, p := range xmlquery.Find(node, "//"+byLocal("p")) {
				if t := paragraphText(p); t != "" {
					lines = append(lines, part.marker+" "+t)
				}
			}
		}
	}
	return strings.Join(lines, "\n"), nil
}

// officeProperties reads docProps/core.xml and docProps/app.xml. Missing
// parts are not an error.
func (x *ooxmlExtractor) officeProperties(zr *zip.Reader) (map[string]any, error) {
	office := make(map[string]any)

	core, err := parsePart(x.xml, zr, "docProps/core.xml")
	switch {
	case err == nil:
		for _, p := range coreProperties {
			v := nodeText(xmlquery.FindOne(core, "//"+byLocal("coreProperties")+"/"+byLocal(p.element)))
			if p.date {
				v = isoDate(v)
			}
			putNonEmpty(office, p.key, v)
		}
	case !isNotExist(err):
		return nil, fmt.Errorf("core properties: %w", err)
	}

	app, err := parsePart(x.xml, zr, "docProps/app.xml")
	if err == nil {
		props := "//" + byLocal("Properties") + "/"
		putNonEmpty(office, "application", nodeText(xmlquery.FindOne(app, props+byLocal("Application"))))
		putNonEmpty(office, "company", nodeText(xmlquery.FindOne(app, props+byLocal("Company"))))
	}
	return office, nil
}

func (x *ooxmlExtractor) wordDocument(zr *zip.Reader) (*xmlquery.Node, error) {
	doc, err := parsePart(x.xml, zr, "word/document.xml")
	if err != nil {
		return nil, fmt.Errorf("word document: %w", err)
	}
	return doc, nil
}

// bodyParagraphs returns the text of the top-level paragraphs of the body.
// Paragraphs inside tables are not included.
func bodyParagraphs(doc *xmlquery.Node) []string {
	nodes := xmlquery.Find(doc, "//"+byLocal("body")+"/"+byLocal("p"))
	texts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		texts = append(texts, paragraphText(n))
	}
	return texts
}

func bodyTables(doc *xmlquery.Node) []*xmlquery.Node {
	return xmlquery.Find(doc, "//"+byLocal("body")+"/"+byLocal("tbl"))
}

// tableRows renders each row as its non-empty cell texts joined by " | ".
func tableRows(tbl *xmlquery.Node) []string {
	var rows []string
	for _, tr := range xmlquery.Find(tbl, "./"+byLocal("tr")) {
		var cells []string
		for _, tc := range xmlquery.Find(tr, "./"+byLocal("tc")) {
			var paras []string
			for _, p := range xmlquery.Find(tc, "./"+byLocal("p")) {
				paras = append(paras, paragraphText(p))
			}
			if t := strings.TrimSpace(strings.Join(paras, "\n")); t != "" {
				cells = append(cells, t)
			}
		}
		if len(cells) > 0 {
			rows = append(rows, strings.Join(cells, " | "))
		}
	}
	return rows
}

// paragraphText concatenates the text runs of a w:p element. Tabs and
// breaks become whitespace.
func paragraphText(p *xmlquery.Node) string {
	var sb strings.Builder
	for _, n := range xmlquery.Find(p, ".//*[local-name()='t' or local-name()='tab' or local-name()='br']") {
		switch n.Data {
		case "t":
			sb.WriteString(n.InnerText())
		case "tab":
			sb.WriteByte('\t')
		case "br":
			sb.WriteByte('\n')
		}
	}
	return strings.TrimSpace(sb.String())
}

// isoDate normalizes a W3CDTF timestamp to RFC 3339 with a numeric offset.
// Values that do not parse are returned as they are.
func isoDate(v string) string {
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return v
	}
	return t.Format("2006-01-02T15:04:05-07:00")
}
