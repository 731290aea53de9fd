package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// ExportTimeFormat is the timestamp layout used in exported records.
const ExportTimeFormat = "2006-01-02 15:04:05"

// ExportRecord is the stable, flat view of a queue item and its stored
// result consumed by the CSV and JSON exporters.
type ExportRecord struct {
	URL          string  `json:"url"`
	ParentURL    string  `json:"parent_url"`
	Depth        int     `json:"depth"`
	FileType     string  `json:"file_type"`
	Status       string  `json:"status"`
	HTTPStatus   int     `json:"http_status,omitempty"`
	ResponseTime float64 `json:"response_time,omitempty"`
	ContentType  string  `json:"content_type,omitempty"`
	FileSize     int64   `json:"file_size,omitempty"`
	RetryCount   int     `json:"retry_count"`
	DiscoveredAt string  `json:"discovered_at"`
	ProcessedAt  string  `json:"processed_at,omitempty"`
	ErrorMessage string  `json:"error_message,omitempty"`

	FileName string   `json:"file_name,omitempty"`
	FileHash string   `json:"file_hash,omitempty"`
	Metadata Metadata `json:"metadata,omitempty"`

	Fields MetadataFields `json:"metadata_fields"`
}

// MetadataFields are the well-known values picked out of the nested metadata.
type MetadataFields struct {
	Author           string `json:"author,omitempty"`
	Creator          string `json:"creator,omitempty"`
	CreationDate     string `json:"creation_date,omitempty"`
	ModificationDate string `json:"modification_date,omitempty"`
	Software         string `json:"software,omitempty"`
	Title            string `json:"title,omitempty"`
	GPSLatitude      string `json:"gps_latitude,omitempty"`
	GPSLongitude     string `json:"gps_longitude,omitempty"`
}

type fieldSource struct {
	section string
	key     string
}

// Each field takes the first non-empty value in listed order.
var (
	authorSources = []fieldSource{
		{CategoryPDF, "author"}, {CategoryOffice, "author"}, {CategoryOffice, "creator"},
		{CategoryOpenOffice, "creator"}, {CategoryEXIF, "artist"}, {CategoryMedia, "artist"},
	}
	creatorSources = []fieldSource{
		{CategoryPDF, "creator"}, {CategoryOffice, "last_modified_by"}, {CategoryOpenOffice, "initial_creator"},
	}
	creationSources = []fieldSource{
		{CategoryPDF, "creation_date"}, {CategoryOffice, "created"},
		{CategoryOpenOffice, "creation_date"}, {CategoryEXIF, "datetime_original"},
	}
	modificationSources = []fieldSource{
		{CategoryPDF, "modification_date"}, {CategoryOffice, "modified"}, {CategoryOpenOffice, "modification_date"},
	}
	softwareSources = []fieldSource{
		{CategoryPDF, "producer"}, {CategoryOffice, "application"}, {CategoryEXIF, "software"},
		{CategoryOpenOffice, "generator"}, {CategoryMedia, "encoding_software"},
	}
	titleSources = []fieldSource{
		{CategoryPDF, "title"}, {CategoryOffice, "title"}, {CategoryOpenOffice, "title"},
		{CategoryMedia, "title"}, {CategoryHTML, "title"},
	}
)

func (m Metadata) first(sources []fieldSource) string {
	for _, s := range sources {
		if v := m.SectionString(s.section, s.key); v != "" {
			return v
		}
	}
	return ""
}

// GPS returns the decimal coordinates stored by the image extractor.
func (m Metadata) GPS() (lat, lon float64, ok bool) {
	gps, _ := m.Section(CategoryEXIF)["gps_coordinates"].(map[string]any)
	if gps == nil {
		return 0, 0, false
	}
	lat, okLat := toFloat(gps["latitude"])
	lon, okLon := toFloat(gps["longitude"])
	return lat, lon, okLat && okLon
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Fields picks the well-known values out of the nested metadata.
func (m Metadata) Fields() MetadataFields {
	f := MetadataFields{
		Author:           m.first(authorSources),
		Creator:          m.first(creatorSources),
		CreationDate:     m.first(creationSources),
		ModificationDate: m.first(modificationSources),
		Software:         m.first(softwareSources),
		Title:            m.first(titleSources),
	}
	if lat, lon, ok := m.GPS(); ok {
		f.GPSLatitude = fmt.Sprintf("%.6f", lat)
		f.GPSLongitude = fmt.Sprintf("%.6f", lon)
	}
	return f
}

// ToExportRecord builds the export view of item. result may be nil when
// the URL produced no stored file.
func ToExportRecord(item URLQueueItem, result *CrawlResult) ExportRecord {
	rec := ExportRecord{
		URL:          item.URL,
		ParentURL:    item.ParentURL,
		Depth:        item.Depth,
		FileType:     item.FileType.String(),
		Status:       string(item.Status),
		HTTPStatus:   item.HTTPStatus,
		ResponseTime: item.ResponseTime.Seconds(),
		ContentType:  item.ContentType,
		FileSize:     item.FileSize,
		RetryCount:   item.RetryCount,
		DiscoveredAt: formatExportTime(&item.DiscoveredAt),
		ProcessedAt:  formatExportTime(item.ProcessedAt),
		ErrorMessage: item.ErrorMessage,
	}
	if result != nil {
		rec.FileName = result.FileName
		rec.FileHash = result.FileHash
		rec.Metadata = result.Metadata
		rec.Fields = result.Metadata.Fields()
	}
	return rec
}

func formatExportTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(ExportTimeFormat)
}
