// Package report turns a crawl session into exports and reports.
//
// Collect joins the frontier with the stored results into one
// model.ExportRecord per discovered URL and optionally runs the metadata
// analysis. The result, an Export, is rendered by:
//   - CSVWriter: one row per URL, optionally with metadata columns
//   - JSONWriter: the session, its records and the analysis
//   - MarkdownWriter: a shareable report with tables and a file type chart
//   - SimpleWriter: a plain text summary for the terminal
package report
