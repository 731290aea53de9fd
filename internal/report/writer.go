package report

import (
	"context"
	"io"
	"slices"
	"time"

	"github.com/nao1215/fisgon/internal/analysis"
	"github.com/nao1215/fisgon/internal/model"
)

// Export is the snapshot of one session that every writer renders.
type Export struct {
	Version     string                 `json:"version,omitempty"`
	GeneratedAt time.Time              `json:"generated_at"`
	Session     *model.CrawlSession    `json:"session"`
	FileTypes   map[model.FileType]int `json:"file_types"`
	Records     []model.ExportRecord   `json:"records"`

	// Analysis is nil unless requested and at least one result carries
	// metadata.
	Analysis *analysis.Report `json:"analysis,omitempty"`
}

// Source is the read side of the store needed to build an Export.
// *database.Store implements it.
type Source interface {
	GetSession(ctx context.Context, id string) (*model.CrawlSession, error)
	ListQueueItems(ctx context.Context, sessionID string) ([]*model.URLQueueItem, error)
	ListResults(ctx context.Context, sessionID string) ([]*model.CrawlResult, error)
	FileTypeCounts(ctx context.Context, sessionID string) (map[model.FileType]int, error)
}

type collectConfig struct {
	analysis bool
	version  string
	now      func() time.Time
}

// CollectOption configures Collect.
type CollectOption func(*collectConfig)

// WithAnalysis embeds the metadata analysis in the export.
func WithAnalysis() CollectOption {
	return func(c *collectConfig) { c.analysis = true }
}

// WithVersion records the fisgon version that produced the export.
func WithVersion(version string) CollectOption {
	return func(c *collectConfig) { c.version = version }
}

// WithCollectClock replaces time.Now.
func WithCollectClock(now func() time.Time) CollectOption {
	return func(c *collectConfig) { c.now = now }
}

// Collect loads a session, its frontier and its results from src and
// joins them into one record per discovered URL.
func Collect(ctx context.Context, src Source, sessionID string, opts ...CollectOption) (*Export, error) {
	cfg := collectConfig{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}

	session, err := src.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	items, err := src.ListQueueItems(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	results, err := src.ListResults(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	fileTypes, err := src.FileTypeCounts(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	byItem := make(map[int64]*model.CrawlResult, len(results))
	for _, r := range results {
		byItem[r.QueueItemID] = r
	}

	now := cfg.now().UTC()
	export := &Export{
		Version:     cfg.version,
		GeneratedAt: now,
		Session:     session,
		FileTypes:   fileTypes,
		Records:     make([]model.ExportRecord, 0, len(items)),
	}
	for _, item := range items {
		export.Records = append(export.Records, model.ToExportRecord(*item, byItem[item.ID]))
	}

	if cfg.analysis && slices.ContainsFunc(results, (*model.CrawlResult).HasMetadata) {
		export.Analysis = analysis.Analyze(results, now)
		export.Analysis.SessionID = session.ID
	}
	return export, nil
}

// Writer renders an Export.
type Writer interface {
	// Write outputs the export and returns the number of bytes written.
	Write(export *Export) (int, error)
}

// MultiWriter writes the same export to several Writers, e.g. a report
// file and a terminal summary.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write stops on the first error and returns the total bytes written.
func (m *MultiWriter) Write(export *Export) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(export)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}
