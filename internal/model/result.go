package model

import (
	"fmt"
	"time"
)

// Metadata is the nested metadata mapping of a stored file. Top-level keys
// are categories such as "pdf_metadata" or "exif_metadata", plus the common
// keys shared by every file (file_path, file_hash_sha256, ...).
type Metadata map[string]any

// Metadata category keys.
const (
	CategoryPDF        = "pdf_metadata"
	CategoryPDFInfo    = "pdf_info"
	CategoryEXIF       = "exif_metadata"
	CategoryImageInfo  = "image_info"
	CategoryOffice     = "office_metadata"
	CategoryDocument   = "document_info"
	CategorySheets     = "sheets_info"
	CategoryOpenOffice = "openoffice_metadata"
	CategoryMedia      = "media_metadata"
	CategoryStream     = "stream_info"
	CategoryHTML       = "html_metadata"

	// KeyExtractionError holds the reason a variant stopped early.
	KeyExtractionError = "extraction_error"
)

// Section returns the nested map stored under key, or nil.
func (m Metadata) Section(key string) map[string]any {
	switch v := m[key].(type) {
	case map[string]any:
		return v
	case Metadata:
		return v
	default:
		return nil
	}
}

// String returns m[key] formatted as a string, or "" when absent.
func (m Metadata) String(key string) string {
	return stringValue(m[key])
}

// SectionString returns the string value of key inside section.
func (m Metadata) SectionString(section, key string) string {
	return stringValue(m.Section(section)[key])
}

// HasError reports whether extraction recorded an error.
func (m Metadata) HasError() bool {
	return m.String(KeyExtractionError) != ""
}

func stringValue(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

// CrawlResult is a stored file. It is created by the storage step and
// updated once by the extraction step.
type CrawlResult struct {
	ID          int64    `json:"id"`
	SessionID   string   `json:"session_id"`
	QueueItemID int64    `json:"queue_item_id"`
	URL         string   `json:"url"`
	FileType    FileType `json:"file_type"`
	FileName    string   `json:"file_name"`
	FilePath    string   `json:"file_path"`
	FileHash    string   `json:"file_hash"`
	FileSize    int64    `json:"file_size"`
	ContentType string   `json:"content_type,omitempty"`

	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Keywords    string `json:"keywords,omitempty"`

	Metadata  Metadata  `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HasMetadata reports whether extraction produced anything.
func (r *CrawlResult) HasMetadata() bool {
	return len(r.Metadata) > 0
}
