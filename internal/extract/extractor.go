package extract

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nao1215/fisgon/internal/model"
)

// Variant names returned by Extractor.Name.
const (
	VariantPDF         = "pdf"
	VariantImage       = "image"
	VariantOOXML       = "ooxml"
	VariantSpreadsheet = "spreadsheet"
	VariantLegacy      = "legacy_office"
	VariantODF         = "opendocument"
	VariantMedia       = "media"
	VariantHTML        = "html"
	VariantGeneric     = "generic"
)

// PreviewLength is the maximum length, in characters, of the previews
// stored with the metadata.
const PreviewLength = 500

// Extractor handles one family of file formats.
type Extractor interface {
	// Name returns the variant name.
	Name() string

	// Extract returns the format-specific metadata of f. It never fails:
	// problems are recorded under model.KeyExtractionError.
	Extract(ctx context.Context, f *File) model.Metadata

	// Content returns the full plain-text rendition of f, or ErrNoContent.
	Content(ctx context.Context, f *File) (string, error)
}

// File is a stored file handed to the extraction engine.
type File struct {
	// Path is the storage path recorded as file_path.
	Path string
	// URL is the URL the file was downloaded from.
	URL string
	// Referrer is the page that linked to URL.
	Referrer string
	// Type is the classified file type. It selects the variant.
	Type model.FileType
	// ContentType is the Content-Type header of the response, if any.
	ContentType string
	// Data is the complete file content.
	Data []byte

	CreatedAt  time.Time
	ModifiedAt time.Time
}

// ext returns the dotted extension of the file type, e.g. ".odt".
func (f *File) ext() string {
	return "." + string(f.Type)
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// cleanText removes NULs and carriage returns and folds newlines into spaces.
func cleanText(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.ReplaceAll(s, "\r", "")
	return strings.ReplaceAll(s, "\n", " ")
}

// putNonEmpty stores v under key when it is not blank.
func putNonEmpty(m map[string]any, key, v string) {
	if v = strings.TrimSpace(v); v != "" {
		m[key] = v
	}
}

// canceled reports whether ctx is done, recording the reason in md.
func canceled(ctx context.Context, md model.Metadata) bool {
	if err := ctx.Err(); err != nil {
		md[model.KeyExtractionError] = err.Error()
		return true
	}
	return false
}
