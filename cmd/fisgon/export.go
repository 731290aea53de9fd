package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/fisgon/internal/report"
)

// Export formats accepted by --format.
const (
	formatCSV      = "csv"
	formatJSON     = "json"
	formatMarkdown = "markdown"
	formatText     = "text"
)

var errUnknownFormat = errors.New("unknown export format (use csv, json, markdown or text)")

// NewExportCmd creates the export command.
func NewExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Export the URLs and metadata of a session",
		Long: `Export writes one record per discovered URL of a session.

Formats:
  csv       one row per URL; --metadata adds author, software, dates,
            GPS coordinates, file hash and the raw metadata as JSON
  json      session, file type counts and records; --analysis embeds
            the metadata analysis
  markdown  report with the crawl summary and the metadata analysis
  text      plain text summary

When --output is given, a text summary is also printed to the terminal.

Examples:
  fisgon export 3f2a9c1e --format csv --metadata -o results.csv
  fisgon export 3f2a9c1e --format json --analysis -o results.json`,
		Args: cobra.ExactArgs(1),
		RunE: runExportCmd,
	}

	cmd.Flags().StringP("format", "F", formatCSV, "Output format: csv, json, markdown or text")
	cmd.Flags().StringP("output", "o", "", "Write the export to this file (creates directories if needed)")
	cmd.Flags().Bool("metadata", false, "Add metadata columns to CSV output")
	cmd.Flags().Bool("analysis", false, "Embed the metadata analysis in JSON output")

	return cmd
}

func runExportCmd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	format, err := flags.GetString("format")
	if err != nil {
		return err
	}
	format = strings.ToLower(format)
	outputPath, err := flags.GetString("output")
	if err != nil {
		return err
	}
	withMetadata, err := flags.GetBool("metadata")
	if err != nil {
		return err
	}
	withAnalysis, err := flags.GetBool("analysis")
	if err != nil {
		return err
	}

	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	session, err := e.session(ctx, args[0])
	if err != nil {
		return err
	}

	opts := []report.CollectOption{report.WithVersion(getVersion())}
	if withAnalysis || format == formatMarkdown || format == formatText {
		opts = append(opts, report.WithAnalysis())
	}
	export, err := report.Collect(ctx, e.store, session.ID, opts...)
	if err != nil {
		return fmt.Errorf("failed to collect session data: %w", err)
	}

	output, closeOutput, err := openOutput(outputPath, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer closeOutput() //nolint:errcheck // closed explicitly below on success

	w, err := newExportWriter(format, output, withMetadata, e.cfg.Verbose)
	if err != nil {
		return err
	}
	if outputPath != "" && format != formatText {
		w = report.NewMultiWriter(w, report.NewSimpleWriter(cmd.OutOrStdout(), report.WithVerbose(e.cfg.Verbose)))
	}

	if _, err := w.Write(export); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	if outputPath != "" {
		if err := closeOutput(); err != nil {
			return fmt.Errorf("failed to close output file: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Export written to %s\n", outputPath)
	}
	return nil
}

// newExportWriter returns the report writer of format.
func newExportWriter(format string, output io.Writer, withMetadata, verbose bool) (report.Writer, error) {
	switch format {
	case formatCSV:
		var opts []report.CSVWriterOption
		if withMetadata {
			opts = append(opts, report.WithMetadataColumns())
		}
		return report.NewCSVWriter(output, opts...), nil
	case formatJSON:
		return report.NewJSONWriter(output, report.WithPrettyPrint()), nil
	case formatMarkdown:
		return report.NewMarkdownWriter(output), nil
	case formatText:
		return report.NewSimpleWriter(output, report.WithVerbose(verbose)), nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownFormat, format)
	}
}
