package extract

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/nao1215/fisgon/internal/model"
)

// MaxPDFPages caps the pages rendered by the PDF content extraction.
const MaxPDFPages = 500

var pdfVersionRe = regexp.MustCompile(`^%PDF-(\d+\.\d+)`)

// pdfInfoKeys maps Info dictionary names to pdf_metadata keys.
var pdfInfoKeys = []struct {
	name string
	key  string
	date bool
}{
	{"Author", "author", false},
	{"Creator", "creator", false},
	{"Producer", "producer", false},
	{"Title", "title", false},
	{"Subject", "subject", false},
	{"Keywords", "keywords", false},
	{"CreationDate", "creation_date", true},
	{"ModDate", "modification_date", true},
}

type pdfExtractor struct {
	reader PDFReader
}

func (*pdfExtractor) Name() string { return VariantPDF }

func (x *pdfExtractor) Extract(ctx context.Context, f *File) model.Metadata {
	md := model.Metadata{}
	if x.reader == nil {
		return md
	}

	doc, err := x.reader.OpenPDF(f.Data)
	if err != nil {
		// The Info dictionary is often readable even when the
		// cross-reference table is not.
		info := scanPDFInfo(f.Data)
		if meta := pdfMetadata(info); len(meta) > 0 {
			md[model.CategoryPDF] = meta
			md[model.CategoryPDFInfo] = map[string]any{
				"num_pages":   countPDFPages(f.Data),
				"encrypted":   bytes.Contains(f.Data, []byte("/Encrypt")),
				"pdf_version": pdfVersion(f.Data),
				"parser":      "info-scan",
			}
			return md
		}
		md[model.KeyExtractionError] = err.Error()
		return md
	}

	if meta := pdfMetadata(doc.Info()); len(meta) > 0 {
		md[model.CategoryPDF] = meta
	}
	md[model.CategoryPDFInfo] = map[string]any{
		"num_pages":   doc.NumPages(),
		"encrypted":   doc.Encrypted(),
		"pdf_version": pdfVersion(f.Data),
	}
	if canceled(ctx, md) {
		return md
	}
	if doc.NumPages() > 0 {
		text, err := doc.PageText(1)
		if err != nil {
			md[model.KeyExtractionError] = fmt.Sprintf("first page: %v", err)
			return md
		}
		md["first_page_preview"] = truncate(text, PreviewLength)
	}
	return md
}

// Content renders up to MaxPDFPages pages as "=== Page N ===" blocks.
// Pages that fail or carry no text are skipped.
func (x *pdfExtractor) Content(ctx context.Context, f *File) (string, error) {
	if x.reader == nil {
		return "", fmt.Errorf("pdf: %w", ErrCapabilityUnavailable)
	}
	doc, err := x.reader.OpenPDF(f.Data)
	if err != nil {
		return "", fmt.Errorf("pdf: %w", err)
	}

	pages := min(doc.NumPages(), MaxPDFPages)
	blocks := make([]string, 0, pages)
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return strings.Join(blocks, "\n\n"), err
		}
		text, err := doc.PageText(i)
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			blocks = append(blocks, fmt.Sprintf("=== Page %d ===\n%s", i, text))
		}
	}
	return strings.Join(blocks, "\n\n"), nil
}

// pdfMetadata maps Info dictionary entries to pdf_metadata, dropping
// empty values.
func pdfMetadata(info map[string]string) map[string]any {
	meta := make(map[string]any)
	for _, k := range pdfInfoKeys {
		v, ok := info[k.name]
		if !ok {
			continue
		}
		if k.date {
			v = ParsePDFDate(strings.TrimSpace(v))
		} else {
			v = cleanText(v)
		}
		if v != "" {
			meta[k.key] = v
		}
	}
	return meta
}

// ParsePDFDate converts a PDF date such as "D:20230515143022+05'00'" to
// "2023-05-15T14:30:22". Missing time parts default to "00"; the time zone
// is dropped. Strings that are not PDF dates are returned unchanged.
func ParsePDFDate(s string) string {
	if !strings.HasPrefix(s, "D:") {
		return s
	}
	part := s[2:min(len(s), 16)]
	if len(part) < 8 {
		return s
	}
	pair := func(i int) string {
		if len(part) >= i+2 {
			return part[i : i+2]
		}
		return "00"
	}
	return fmt.Sprintf("%s-%s-%sT%s:%s:%s", part[:4], part[4:6], part[6:8], pair(8), pair(10), pair(12))
}

func pdfVersion(data []byte) string {
	head := data[:min(len(data), 16)]
	if m := pdfVersionRe.FindSubmatch(head); m != nil {
		return string(m[1])
	}
	return ""
}

// ledongthucReader is the PDFReader backed by github.com/ledongthuc/pdf.
type ledongthucReader struct{}

func (ledongthucReader) Library() string { return "github.com/ledongthuc/pdf" }

func (ledongthucReader) OpenPDF(data []byte) (doc PDFDocument, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("%w: %v", ErrMalformed, r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	return &ledongthucDocument{r: r}, nil
}

type ledongthucDocument struct {
	r *pdf.Reader
}

func (d *ledongthucDocument) Info() (info map[string]string) {
	info = make(map[string]string)
	defer func() {
		// A broken Info reference must not hide the rest of the document.
		_ = recover()
	}()
	dict := d.r.Trailer().Key("Info")
	for _, k := range dict.Keys() {
		if v := dict.Key(k); v.Kind() == pdf.String {
			info[k] = v.Text()
		}
	}
	return info
}

func (d *ledongthucDocument) NumPages() (n int) {
	defer func() {
		if recover() != nil {
			n = 0
		}
	}()
	return d.r.NumPage()
}

func (d *ledongthucDocument) Encrypted() bool {
	return !d.r.Trailer().Key("Encrypt").IsNull()
}

func (d *ledongthucDocument) PageText(n int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("page %d: %w: %v", n, ErrMalformed, r)
		}
	}()
	p := d.r.Page(n)
	if p.V.IsNull() {
		return "", fmt.Errorf("page %d: not found", n)
	}
	return p.GetPlainText(nil)
}
