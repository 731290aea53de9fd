package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/nao1215/fisgon/internal/analysis"
)

// SimpleWriter outputs a plain text summary for terminal display.
type SimpleWriter struct {
	baseWriter

	// showEmpty prints analysis sections that found nothing.
	showEmpty bool

	// verbose lists risk recommendations and outdated software.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the crawl summary followed by the analysis, if any.
func (w *SimpleWriter) Write(export *Export) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, export)
	if export.Analysis == nil {
		sb.WriteString("No metadata was extracted for this session.\n")
	} else {
		w.writeAnalysis(&sb, export.Analysis)
	}
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")

	return w.output.Write([]byte(sb.String()))
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, export *Export) {
	s := export.Session
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	fmt.Fprintf(sb, "FISGON REPORT: %s\n", s.Name)
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Session:    %s\n", s.ID)
	fmt.Fprintf(sb, "Target:     %s\n", s.TargetURL)
	fmt.Fprintf(sb, "Status:     %s\n", s.Status)
	fmt.Fprintf(sb, "Discovered: %d URLs\n", s.URLsDiscovered)
	fmt.Fprintf(sb, "Processed:  %d URLs\n", s.URLsProcessed)
	fmt.Fprintf(sb, "Files:      %d (%s)\n", s.FilesFound, humanize.Bytes(uint64(storedBytes(export.Records))))
	fmt.Fprintf(sb, "Errors:     %d\n", s.Errors)

	if counts := sortedFileTypes(export.FileTypes); len(counts) > 0 {
		parts := make([]string, 0, len(counts))
		for _, c := range counts {
			parts = append(parts, fmt.Sprintf("%s=%d", c.Value, c.Count))
		}
		fmt.Fprintf(sb, "File types: %s\n", strings.Join(parts, " "))
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeAnalysis(sb *strings.Builder, r *analysis.Report) {
	fmt.Fprintf(sb, "Analyzed files: %d\n", r.TotalFiles)
	fmt.Fprintf(sb, "Security risk:  %s (%.1f/10)\n", r.SecurityRisk.Level, r.SecurityRisk.Score)
	fmt.Fprintf(sb, "Privacy risk:   %s (%.1f/10)\n\n", r.PrivacyRisk.Level, r.PrivacyRisk.Score)

	if len(r.Authors.MostFrequentAuthors) > 0 || w.showEmpty {
		fmt.Fprintf(sb, "Authors (%d unique):\n", r.Authors.TotalUniqueAuthors)
		writeCounts(sb, r.Authors.MostFrequentAuthors)
	}
	if len(r.Authors.EmailAddresses) > 0 {
		fmt.Fprintf(sb, "Email addresses: %s\n\n", strings.Join(r.Authors.EmailAddresses, ", "))
	}

	if len(r.Software.MostCommonSoftware) > 0 || w.showEmpty {
		fmt.Fprintf(sb, "Software (%d detected):\n", r.Software.TotalSoftwareDetected)
		writeCounts(sb, r.Software.MostCommonSoftware)
	}
	if w.verbose && len(r.Software.OutdatedSoftware) > 0 {
		sb.WriteString("Outdated software:\n")
		for _, o := range r.Software.OutdatedSoftware {
			fmt.Fprintf(sb, "  - %s (%d, %d years old)\n", o.Software, o.Year, o.AgeYears)
		}
		sb.WriteString("\n")
	}

	if dr := r.Temporal.CreationDateRange; dr != nil {
		fmt.Fprintf(sb, "Created:        %s to %s (%d days)\n\n",
			dr.Earliest.Format("2006-01-02"), dr.Latest.Format("2006-01-02"), dr.SpanDays)
	} else if w.showEmpty {
		sb.WriteString("Created:        no parsable dates\n\n")
	}

	if r.Location.TotalFilesWithGPS > 0 || w.showEmpty {
		fmt.Fprintf(sb, "GPS:            %d file(s), %d unique location(s)\n\n",
			r.Location.TotalFilesWithGPS, r.Location.UniqueLocations)
	}

	factors := append(append([]analysis.RiskFactor{}, r.SecurityRisk.Factors...), r.PrivacyRisk.Factors...)
	if len(factors) == 0 {
		return
	}
	sb.WriteString("Risk factors:\n")
	for _, f := range factors {
		fmt.Fprintf(sb, "  [%.1f] %s\n", f.Level, f.Description)
		if w.verbose && f.Recommendation != "" {
			fmt.Fprintf(sb, "        -> %s\n", f.Recommendation)
		}
	}
	sb.WriteString("\n")
}

func writeCounts(sb *strings.Builder, counts []analysis.Count) {
	if len(counts) == 0 {
		sb.WriteString("  (none)\n\n")
		return
	}
	for _, c := range counts {
		fmt.Fprintf(sb, "  %-50s %d\n", truncateString(c.Value, 50), c.Count)
	}
	sb.WriteString("\n")
}
