package extract

import (
	"io"

	"github.com/antchfx/xmlquery"
)

// PDFDocument is an opened PDF file.
type PDFDocument interface {
	// Info returns the string entries of the document Info dictionary,
	// keyed by name without the leading slash (Author, CreationDate, ...).
	Info() map[string]string
	NumPages() int
	Encrypted() bool
	// PageText returns the plain text of the 1-based page n.
	PageText(n int) (string, error)
}

// PDFReader opens PDF files.
type PDFReader interface {
	OpenPDF(data []byte) (PDFDocument, error)
}

// Sheet describes one worksheet. Rows and Cols are the used range.
type Sheet struct {
	Name string
	Rows int
	Cols int
}

// Workbook is an opened spreadsheet.
type Workbook interface {
	// Properties returns the document properties keyed by the
	// office_metadata key names.
	Properties() map[string]string
	Sheets() []Sheet
	// Cells returns at most maxRows rows of at most maxCols formatted
	// cell values. Empty cells are "".
	Cells(sheet string, maxRows, maxCols int) ([][]string, error)
	// DefinedNames maps each defined name to the range it refers to.
	DefinedNames() map[string]string
	Close() error
}

// SpreadsheetReader opens spreadsheet files.
type SpreadsheetReader interface {
	OpenWorkbook(data []byte) (Workbook, error)
}

// OLEDocument is the content of an OLE2 compound file.
type OLEDocument struct {
	// Properties are the SummaryInformation and DocumentSummaryInformation
	// properties keyed by property name (Author, LastAuthor, Company, ...).
	Properties map[string]string
	// Streams holds the text-bearing streams (WordDocument, 0Table, 1Table).
	Streams map[string][]byte
}

// PropertyReader reads OLE2 compound files (.doc, .xls, .ppt).
type PropertyReader interface {
	ReadOLE(data []byte) (*OLEDocument, error)
}

// XMLParser parses the XML parts of zipped documents (OOXML and ODF).
type XMLParser interface {
	ParseXML(r io.Reader) (*xmlquery.Node, error)
}

// EXIFTag is one decoded EXIF entry. Rational values are converted to
// []float64.
type EXIFTag struct {
	Name      string
	Value     any
	Formatted string
}

// EXIFReader decodes the EXIF block of an image.
type EXIFReader interface {
	// ReadEXIF returns nil, nil when the image carries no EXIF block.
	ReadEXIF(data []byte) ([]EXIFTag, error)
}

// MediaTags are the tags of an audio or video file.
type MediaTags struct {
	// Format is the tag format, e.g. "ID3v2.4" or "MP4".
	Format string
	// Raw maps frame or atom identifiers to their values.
	Raw map[string]any
}

// TagReader reads audio and video tags.
type TagReader interface {
	ReadTags(r io.ReadSeeker) (*MediaTags, error)
}

// Capabilities are the parsers available to the engine. A nil field means
// the capability is unavailable; the variants that need it fall back to
// the common metadata.
type Capabilities struct {
	PDF               PDFReader
	Spreadsheet       SpreadsheetReader
	LegacySpreadsheet SpreadsheetReader
	OLE               PropertyReader
	XML               XMLParser
	EXIF              EXIFReader
	Media             TagReader
}

// DefaultCapabilities binds every capability to its library.
func DefaultCapabilities() Capabilities {
	return Capabilities{
		PDF:               ledongthucReader{},
		Spreadsheet:       excelizeReader{},
		LegacySpreadsheet: xlsReader{},
		OLE:               oleReader{},
		XML:               xmlqueryParser{},
		EXIF:              goEXIFReader{},
		Media:             tagReader{},
	}
}

// CapabilityStatus is one row of Capabilities.Report.
type CapabilityStatus struct {
	Name      string `json:"name"`
	Formats   string `json:"formats"`
	Library   string `json:"library,omitempty"`
	Available bool   `json:"available"`
}

// library is implemented by the default capability adapters.
type library interface {
	Library() string
}

// Report lists every capability and whether it is available.
func (c Capabilities) Report() []CapabilityStatus {
	entries := []struct {
		name    string
		formats string
		impl    any
	}{
		{"pdf", "pdf", c.PDF},
		{"spreadsheet", "xlsx", c.Spreadsheet},
		{"legacy_spreadsheet", "xls", c.LegacySpreadsheet},
		{"ole", "doc, xls, ppt", c.OLE},
		{"xml", "docx, pptx, odt, ods, odp", c.XML},
		{"exif", "jpg, jpeg, png, gif, tiff", c.EXIF},
		{"media", "mp3, mp4", c.Media},
	}
	statuses := make([]CapabilityStatus, 0, len(entries))
	for _, e := range entries {
		st := CapabilityStatus{Name: e.name, Formats: e.formats, Available: e.impl != nil}
		if l, ok := e.impl.(library); ok {
			st.Library = l.Library()
		}
		statuses = append(statuses, st)
	}
	return statuses
}
