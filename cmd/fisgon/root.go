package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for fisgon.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fisgon",
		Short: "Crawl a website and analyze the metadata of its documents",
		Long: `fisgon crawls a website within its registrable domain, downloads the
documents, images and media files it links to and extracts their
embedded metadata (authors, software, dates, GPS coordinates).

Sessions are stored in a local SQLite database so that a crawl can be
paused, resumed, exported and analyzed later.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("json-logs", false, "Write logs as JSON")
	cmd.PersistentFlags().String("data-dir", "",
		"Directory for the database and downloaded files (default: XDG data directory)")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .fisgon in current or home directory)")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewResumeCmd())
	cmd.AddCommand(NewStopCmd())
	cmd.AddCommand(NewDeleteCmd())
	cmd.AddCommand(NewSessionsCmd())
	cmd.AddCommand(NewResultsCmd())
	cmd.AddCommand(NewExportCmd())
	cmd.AddCommand(NewAnalyzeCmd())
	cmd.AddCommand(NewCapabilitiesCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
