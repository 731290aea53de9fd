package report

import (
	"cmp"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/fisgon/internal/analysis"
	"github.com/nao1215/fisgon/internal/model"
)

// MarkdownWriter renders the crawl summary and the metadata analysis as
// a Markdown document.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the report. Sections that depend on the analysis are
// replaced by a note when export.Analysis is nil.
func (w *MarkdownWriter) Write(export *Export) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, export)
	w.writeCrawlSummary(md, export)
	w.writeFileTypes(md, export)

	if export.Analysis == nil {
		md.H2("Metadata Analysis")
		md.PlainText("")
		md.Note("No metadata was extracted for this session.")
		md.PlainText("")
	} else {
		w.writeRisk(md, export.Analysis)
		w.writeAuthors(md, export.Analysis.Authors)
		w.writeSoftware(md, export.Analysis.Software)
		w.writeTemporal(md, export.Analysis.Temporal)
		w.writeLocation(md, export.Analysis.Location)
	}

	w.writeFooter(md, export)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, export *Export) {
	s := export.Session
	md.H1("Fisgon Report: " + s.Name)
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Session", "`" + s.ID + "`"},
			{"Target", s.TargetURL},
			{"Domain", "`" + s.TargetDomain + "`"},
			{"Status", string(s.Status)},
			{"Created", s.CreatedAt.UTC().Format(model.ExportTimeFormat)},
			{"Generated", export.GeneratedAt.UTC().Format(model.ExportTimeFormat)},
		},
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeCrawlSummary(md *markdown.Markdown, export *Export) {
	s := export.Session
	md.H2("Crawl Summary")
	md.PlainText("")

	rows := [][]string{
		{"URLs discovered", humanize.Comma(int64(s.URLsDiscovered))},
		{"URLs processed", humanize.Comma(int64(s.URLsProcessed))},
		{"Files stored", humanize.Comma(int64(s.FilesFound))},
		{"Errors", humanize.Comma(int64(s.Errors))},
		{"Stored size", humanize.Bytes(uint64(storedBytes(export.Records)))},
		{"Duration", s.Duration(export.GeneratedAt).Round(1e9).String()},
	}
	if s.Settings.MaxPages > 0 {
		rows = append(rows, []string{"Progress", fmt.Sprintf("%.1f%%", s.ProgressPercentage())})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Value"},
		Rows:   rows,
	})
	md.PlainText("")

	if s.Errors > 0 {
		md.Warningf("%d URL(s) failed during the crawl.", s.Errors)
		md.PlainText("")
	}
}

func (w *MarkdownWriter) writeFileTypes(md *markdown.Markdown, export *Export) {
	md.H2("File Types")
	md.PlainText("")

	counts := sortedFileTypes(export.FileTypes)
	if len(counts) == 0 {
		md.PlainText("No URLs were discovered.")
		md.PlainText("")
		return
	}

	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Discovered URLs by file type"),
		piechart.WithShowData(true),
	)
	rows := make([][]string, 0, len(counts))
	for _, c := range counts {
		chart.LabelAndIntValue(c.Value, uint64(c.Count))
		rows = append(rows, []string{c.Value, strconv.Itoa(c.Count)})
	}

	md.Table(markdown.TableSet{
		Header: []string{"File Type", "URLs"},
		Rows:   rows,
	})
	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeRisk(md *markdown.Markdown, r *analysis.Report) {
	md.H2("Risk Assessment")
	md.PlainText("")
	md.PlainTextf("%d file(s) with metadata were analyzed.", r.TotalFiles)
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Assessment", "Score", "Level"},
		Rows: [][]string{
			{"Security", formatScore(r.SecurityRisk.Score), r.SecurityRisk.Level.String()},
			{"Privacy", formatScore(r.PrivacyRisk.Score), r.PrivacyRisk.Level.String()},
		},
	})
	md.PlainText("")

	level := max(r.SecurityRisk.Level, r.PrivacyRisk.Level)
	switch level {
	case model.RiskCritical:
		md.Caution("Critical metadata exposure. Review the factors below before publishing more documents.")
	case model.RiskHigh:
		md.Warning("High metadata exposure detected.")
	case model.RiskMedium:
		md.Important("Some documents leak identifying metadata.")
	default:
		md.Tip("No significant metadata exposure detected.")
	}
	md.PlainText("")

	factors := append(slices.Clone(r.SecurityRisk.Factors), r.PrivacyRisk.Factors...)
	if len(factors) == 0 {
		return
	}
	rows := make([][]string, 0, len(factors))
	for _, f := range factors {
		rows = append(rows, []string{
			f.Type,
			formatScore(f.Level),
			strconv.Itoa(f.AffectedItems),
			truncateString(f.Description, 60),
		})
	}
	md.H3("Risk Factors")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Type", "Level", "Affected", "Description"},
		Rows:   rows,
	})
	md.PlainText("")

	recs := make([]string, 0, len(factors))
	for _, f := range factors {
		if f.Recommendation != "" && !slices.Contains(recs, f.Recommendation) {
			recs = append(recs, f.Recommendation)
		}
	}
	if len(recs) > 0 {
		md.H3("Recommendations")
		md.PlainText("")
		md.BulletList(recs...)
		md.PlainText("")
	}
}

func (w *MarkdownWriter) writeAuthors(md *markdown.Markdown, a analysis.AuthorsAnalysis) {
	md.H2("Authors")
	md.PlainText("")
	md.PlainTextf("%d unique author(s), %d unique creator(s).", a.TotalUniqueAuthors, a.TotalUniqueCreators)
	md.PlainText("")

	if len(a.MostFrequentAuthors) > 0 {
		md.Table(countTable("Author", a.MostFrequentAuthors))
		md.PlainText("")
	}
	if len(a.CorporatePatterns) > 0 {
		md.PlainText("Corporate or generic account names:")
		md.PlainText("")
		md.BulletList(a.CorporatePatterns...)
		md.PlainText("")
	}
	if len(a.EmailAddresses) > 0 {
		md.Warningf("%d email address(es) found in author fields.", len(a.EmailAddresses))
		md.PlainText("")
		md.BulletList(a.EmailAddresses...)
		md.PlainText("")
	}
}

func (w *MarkdownWriter) writeSoftware(md *markdown.Markdown, s analysis.SoftwareAnalysis) {
	md.H2("Software")
	md.PlainText("")
	md.PlainTextf("%d distinct tool(s) detected, %d version string(s).",
		s.TotalSoftwareDetected, s.Versions.TotalVersionsDetected)
	md.PlainText("")

	if len(s.MostCommonSoftware) > 0 {
		md.Table(countTable("Software", s.MostCommonSoftware))
		md.PlainText("")
	}

	if len(s.OutdatedSoftware) > 0 {
		rows := make([][]string, 0, len(s.OutdatedSoftware))
		for _, o := range s.OutdatedSoftware {
			rows = append(rows, []string{
				truncateString(o.Software, 50),
				o.Version,
				strconv.Itoa(o.Year),
				strconv.Itoa(o.AgeYears),
			})
		}
		md.H3("Outdated Software")
		md.PlainText("")
		md.Table(markdown.TableSet{
			Header: []string{"Software", "Version", "Year", "Age (years)"},
			Rows:   rows,
		})
		md.PlainText("")
	}

	if len(s.Categories) > 0 {
		var lines []string
		for _, name := range slices.Sorted(maps.Keys(s.Categories)) {
			lines = append(lines, fmt.Sprintf("%s: %s", name, strings.Join(s.Categories[name], ", ")))
		}
		md.Details("Software categories", strings.Join(lines, "\n"))
		md.PlainText("")
	}
}

func (w *MarkdownWriter) writeTemporal(md *markdown.Markdown, t analysis.TemporalAnalysis) {
	md.H2("Timeline")
	md.PlainText("")

	if t.CreationDateRange == nil {
		md.PlainText("No creation dates could be parsed.")
		md.PlainText("")
		return
	}

	r := t.CreationDateRange
	md.PlainTextf("Documents were created between %s and %s (%d days).",
		r.Earliest.Format("2006-01-02"), r.Latest.Format("2006-01-02"), r.SpanDays)
	md.PlainText("")

	if len(t.ActivityByYear) > 0 {
		rows := make([][]string, 0, len(t.ActivityByYear))
		for _, year := range slices.Sorted(maps.Keys(t.ActivityByYear)) {
			rows = append(rows, []string{year, strconv.Itoa(t.ActivityByYear[year])})
		}
		md.Table(markdown.TableSet{
			Header: []string{"Year", "Files"},
			Rows:   rows,
		})
		md.PlainText("")
	}

	if len(t.HighActivityPeriods) > 0 {
		items := make([]string, 0, len(t.HighActivityPeriods))
		for _, p := range t.HighActivityPeriods {
			items = append(items, fmt.Sprintf("%s: %d file(s), %.1fx the weekly average", p.Period, p.ActivityCount, p.AboveAverageRatio))
		}
		md.H3("High Activity Weeks")
		md.PlainText("")
		md.BulletList(items...)
		md.PlainText("")
	}
}

func (w *MarkdownWriter) writeLocation(md *markdown.Markdown, l analysis.LocationAnalysis) {
	md.H2("Locations")
	md.PlainText("")

	if l.TotalFilesWithGPS == 0 {
		md.PlainText("No GPS coordinates found.")
		md.PlainText("")
		return
	}

	md.Cautionf("%d file(s) embed GPS coordinates (%d unique location(s)).", l.TotalFilesWithGPS, l.UniqueLocations)
	md.PlainText("")
	if l.Center != nil {
		md.PlainTextf("Geographic center: %s", formatCoordinate(*l.Center))
		md.PlainText("")
	}
	if len(l.Clusters) > 0 {
		rows := make([][]string, 0, len(l.Clusters))
		for _, c := range l.Clusters {
			rows = append(rows, []string{formatCoordinate(c.Center), strconv.Itoa(c.Size)})
		}
		md.Table(markdown.TableSet{
			Header: []string{"Cluster Center", "Points"},
			Rows:   rows,
		})
		md.PlainText("")
	}
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown, export *Export) {
	md.HorizontalRule()
	if export.Version != "" {
		md.PlainTextf("*Generated by fisgon %s*", export.Version)
		return
	}
	md.PlainText("*Generated by fisgon*")
}

func countTable(label string, counts []analysis.Count) markdown.TableSet {
	rows := make([][]string, 0, len(counts))
	for _, c := range counts {
		rows = append(rows, []string{truncateString(c.Value, 50), strconv.Itoa(c.Count)})
	}
	return markdown.TableSet{
		Header: []string{label, "Files"},
		Rows:   rows,
	}
}

// sortedFileTypes orders file types by count, then by name.
func sortedFileTypes(m map[model.FileType]int) []analysis.Count {
	counts := make([]analysis.Count, 0, len(m))
	for ft, n := range m {
		counts = append(counts, analysis.Count{Value: ft.String(), Count: n})
	}
	slices.SortFunc(counts, func(a, b analysis.Count) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Value, b.Value)
	})
	return counts
}

func storedBytes(records []model.ExportRecord) int64 {
	var total int64
	for _, r := range records {
		if r.FileName != "" {
			total += r.FileSize
		}
	}
	return total
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', 1, 64)
}

func formatCoordinate(c analysis.Coordinate) string {
	return fmt.Sprintf("%.6f, %.6f", c.Latitude, c.Longitude)
}

// truncateString truncates a string to maxLen runes with ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
