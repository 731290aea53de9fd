package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"

	"github.com/nao1215/fisgon/internal/model"
)

// CSVHeaders are the columns written for every record.
var CSVHeaders = []string{
	"url", "file_type", "file_name", "file_size", "http_status",
	"response_time", "depth", "parent_url", "discovered_at",
	"processed_at", "status",
}

// CSVMetadataHeaders are appended when metadata columns are enabled.
var CSVMetadataHeaders = []string{
	"author", "creator", "creation_date", "modification_date", "software",
	"title", "gps_latitude", "gps_longitude", "file_hash", "metadata_json",
}

// CSVWriter writes one row per discovered URL.
type CSVWriter struct {
	baseWriter
	metadata bool
}

// CSVWriterOption configures a CSVWriter.
type CSVWriterOption func(*CSVWriter)

// WithMetadataColumns adds the CSVMetadataHeaders columns.
func WithMetadataColumns() CSVWriterOption {
	return func(w *CSVWriter) { w.metadata = true }
}

// NewCSVWriter creates a CSVWriter that outputs to the given writer.
func NewCSVWriter(output io.Writer, opts ...CSVWriterOption) *CSVWriter {
	w := &CSVWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the header row followed by every record.
func (w *CSVWriter) Write(export *Export) (int, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)

	headers := CSVHeaders
	if w.metadata {
		headers = append(append([]string{}, CSVHeaders...), CSVMetadataHeaders...)
	}
	if err := cw.Write(headers); err != nil {
		return 0, err
	}

	for _, rec := range export.Records {
		row, err := w.row(rec)
		if err != nil {
			return 0, err
		}
		if err := cw.Write(row); err != nil {
			return 0, err
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, err
	}
	return w.output.Write(buf.Bytes())
}

func (w *CSVWriter) row(rec model.ExportRecord) ([]string, error) {
	row := []string{
		rec.URL,
		rec.FileType,
		rec.FileName,
		optionalInt(rec.FileSize),
		optionalInt(int64(rec.HTTPStatus)),
		optionalSeconds(rec.ResponseTime),
		strconv.Itoa(rec.Depth),
		rec.ParentURL,
		rec.DiscoveredAt,
		rec.ProcessedAt,
		rec.Status,
	}
	if !w.metadata {
		return row, nil
	}

	var raw string
	if len(rec.Metadata) > 0 {
		data, err := json.Marshal(rec.Metadata)
		if err != nil {
			return nil, err
		}
		raw = string(data)
	}
	f := rec.Fields
	return append(row,
		f.Author, f.Creator, f.CreationDate, f.ModificationDate, f.Software,
		f.Title, f.GPSLatitude, f.GPSLongitude, rec.FileHash, raw,
	), nil
}

func optionalInt(n int64) string {
	if n == 0 {
		return ""
	}
	return strconv.FormatInt(n, 10)
}

func optionalSeconds(s float64) string {
	if s == 0 {
		return ""
	}
	return strconv.FormatFloat(s, 'f', 3, 64)
}
