package main

import (
	"encoding/json"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/nao1215/fisgon/internal/extract"
)

// NewCapabilitiesCmd creates the capabilities command.
func NewCapabilitiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capabilities",
		Short: "List the metadata extraction capabilities",
		Long: `Capabilities lists the file format readers available to the metadata
extraction engine. Formats whose reader is unavailable still get the
generic metadata (size, hash, timestamps).`,
		Args: cobra.NoArgs,
		RunE: runCapabilitiesCmd,
	}
	cmd.Flags().BoolP("json", "j", false, "Output as JSON")
	return cmd
}

func runCapabilitiesCmd(cmd *cobra.Command, _ []string) error {
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	statuses := extract.DefaultCapabilities().Report()
	out := cmd.OutOrStdout()

	if asJSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(statuses)
	}

	t := newTable(out)
	t.AppendHeader(table.Row{"Capability", "Formats", "Library", "Available"})
	for _, s := range statuses {
		available := "no"
		if s.Available {
			available = "yes"
		}
		t.AppendRow(table.Row{s.Name, s.Formats, s.Library, available})
	}
	t.Render()
	return nil
}
