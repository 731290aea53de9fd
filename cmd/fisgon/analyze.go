package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/fisgon/internal/analysis"
	"github.com/nao1215/fisgon/internal/report"
)

// NewAnalyzeCmd creates the analyze command.
func NewAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <session-id>",
		Short: "Analyze the extracted metadata of a session",
		Long: `Analyze aggregates the metadata of every file stored by a session and
assesses what it exposes:

- Authors and creators, and the most active ones
- Software and versions, flagging releases more than five years old
- Creation and modification timelines and activity peaks
- GPS coordinates and location clusters
- Security and privacy risk scores with recommendations

Examples:
  fisgon analyze 3f2a9c1e
  fisgon analyze 3f2a9c1e --markdown -o report.md
  fisgon analyze 3f2a9c1e --json`,
		Args: cobra.ExactArgs(1),
		RunE: runAnalyzeCmd,
	}

	cmd.Flags().BoolP("json", "j", false,
		"Output the analysis as JSON (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output a Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write the report to this file (creates directories if needed)")
	cmd.MarkFlagsMutuallyExclusive("json", "markdown")

	return cmd
}

func runAnalyzeCmd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	asJSON, err := flags.GetBool("json")
	if err != nil {
		return err
	}
	asMarkdown, err := flags.GetBool("markdown")
	if err != nil {
		return err
	}
	outputPath, err := flags.GetString("output")
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

	result, err := analysis.AnalyzeSession(ctx, e.store, session.ID, time.Now())
	if err != nil {
		if errors.Is(err, analysis.ErrNoResults) {
			return fmt.Errorf("session %s: %w", shortID(session.ID), err)
		}
		return err
	}

	output, closeOutput, err := openOutput(outputPath, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer closeOutput() //nolint:errcheck // closed explicitly below on success

	if asJSON {
		_, err = report.NewJSONWriter(output, report.WithPrettyPrint()).WriteAnalysis(result)
	} else {
		var export *report.Export
		export, err = report.Collect(ctx, e.store, session.ID, report.WithVersion(getVersion()))
		if err != nil {
			return fmt.Errorf("failed to collect session data: %w", err)
		}
		export.Analysis = result

		var w report.Writer = report.NewSimpleWriter(output, report.WithVerbose(e.cfg.Verbose))
		if asMarkdown {
			w = report.NewMarkdownWriter(output)
		}
		_, err = w.Write(export)
	}
	if err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if outputPath != "" {
		if err := closeOutput(); err != nil {
			return fmt.Errorf("failed to close output file: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", outputPath)
	}
	return nil
}
