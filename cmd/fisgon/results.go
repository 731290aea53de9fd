package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/nao1215/fisgon/internal/extract"
	"github.com/nao1215/fisgon/internal/model"
)

// NewResultsCmd creates the results command and its subcommands.
func NewResultsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Inspect the files stored by a session",
		Long: `Results lists the downloaded files of a session and shows their metadata
or full text content.

Examples:
  fisgon results list 3f2a9c1e --type pdf
  fisgon results show 42
  fisgon results content 42
  fisgon results delete 42 43`,
	}

	list := &cobra.Command{
		Use:     "list <session-id>",
		Aliases: []string{"ls"},
		Short:   "List the stored files of a session",
		Args:    cobra.ExactArgs(1),
		RunE:    runResultsList,
	}
	list.Flags().String("type", "", "Only show files of this type")
	list.Flags().String("search", "", "Only show files whose name, URL, title or description contains this text")

	show := &cobra.Command{
		Use:   "show <result-id>",
		Short: "Show a stored file and its extracted metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  runResultsShow,
	}

	content := &cobra.Command{
		Use:   "content <result-id>",
		Short: "Print the full text content of a stored file",
		Args:  cobra.ExactArgs(1),
		RunE:  runResultsContent,
	}
	content.Flags().Duration("timeout", 0, "Extraction timeout (default: the extract timeout)")

	del := &cobra.Command{
		Use:   "delete <result-id>...",
		Short: "Delete stored files and their metadata",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runResultsDelete,
	}

	cmd.AddCommand(list, show, content, del)
	return cmd
}

func parseResultID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid result ID %q", s)
	}
	return id, nil
}

func runResultsList(cmd *cobra.Command, args []string) error {
	fileType, err := cmd.Flags().GetString("type")
	if err != nil {
		return err
	}
	search, err := cmd.Flags().GetString("search")
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
	results, err := e.store.ListResults(ctx, session.ID)
	if err != nil {
		return err
	}
	results = filterResults(results, model.FileType(strings.ToLower(fileType)), search)

	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, "No results found.")
		return nil
	}
	slices.Reverse(results)
	writeResults(out, results, "")
	return nil
}

func filterResults(results []*model.CrawlResult, fileType model.FileType, search string) []*model.CrawlResult {
	search = strings.ToLower(search)
	return slices.DeleteFunc(results, func(r *model.CrawlResult) bool {
		if fileType != "" && r.FileType != fileType {
			return true
		}
		if search == "" {
			return false
		}
		for _, field := range []string{r.FileName, r.URL, r.Title, r.Description} {
			if strings.Contains(strings.ToLower(field), search) {
				return false
			}
		}
		return true
	})
}

func writeResults(out io.Writer, results []*model.CrawlResult, title string) {
	t := newTable(out)
	if title != "" {
		t.SetTitle(title)
	}
	t.AppendHeader(table.Row{"ID", "Type", "File", "Size", "Title", "Metadata"})
	for _, r := range results {
		hasMetadata := "no"
		if r.HasMetadata() {
			hasMetadata = "yes"
		}
		t.AppendRow(table.Row{
			r.ID,
			r.FileType,
			ellipsis(r.FileName, 40),
			humanize.Bytes(uint64(max(r.FileSize, 0))), //nolint:gosec // clamped to non-negative
			ellipsis(r.Title, 30),
			hasMetadata,
		})
	}
	t.Render()
}

func runResultsShow(cmd *cobra.Command, args []string) error {
	id, err := parseResultID(args[0])
	if err != nil {
		return err
	}

	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	r, err := e.store.GetResult(cmd.Context(), id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	t := newTable(out)
	t.SetTitle(r.FileName)
	t.AppendRows([]table.Row{
		{"ID", r.ID},
		{"Session", r.SessionID},
		{"URL", r.URL},
		{"Type", r.FileType},
		{"Content type", r.ContentType},
		{"Size", humanize.Bytes(uint64(max(r.FileSize, 0)))}, //nolint:gosec // clamped to non-negative
		{"SHA-256", r.FileHash},
		{"Stored at", e.blobs.LocalPath(r.FilePath)},
		{"Title", r.Title},
		{"Description", r.Description},
		{"Keywords", r.Keywords},
	})
	t.Render()

	if !r.HasMetadata() {
		fmt.Fprintln(out, "\nNo metadata was extracted for this file.")
		return nil
	}
	data, err := json.MarshalIndent(r.Metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	fmt.Fprintf(out, "\n%s\n", data)
	return nil
}

func runResultsContent(cmd *cobra.Command, args []string) error {
	id, err := parseResultID(args[0])
	if err != nil {
		return err
	}
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		return err
	}

	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if timeout > 0 {
		cfg.ExtractTimeout = timeout
	}
	e, err := openEnvWith(cmd, cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	r, err := e.store.GetResult(ctx, id)
	if err != nil {
		return err
	}
	data, err := e.blobs.ReadFile(r.FilePath)
	if err != nil {
		return fmt.Errorf("failed to read stored file: %w", err)
	}

	file := &extract.File{
		Path:        e.blobs.LocalPath(r.FilePath),
		URL:         r.URL,
		Type:        r.FileType,
		ContentType: r.ContentType,
		Data:        data,
	}
	if item, err := e.store.GetQueueItem(ctx, r.QueueItemID); err == nil {
		file.Referrer = item.ParentURL
	}

	text, err := e.newEngine().Content(ctx, file)
	if err != nil {
		return fmt.Errorf("failed to extract content: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}

func runResultsDelete(cmd *cobra.Command, args []string) error {
	ids := make([]int64, len(args))
	for i, arg := range args {
		id, err := parseResultID(arg)
		if err != nil {
			return err
		}
		ids[i] = id
	}

	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	orch := e.orchestrator()
	out := cmd.OutOrStdout()

	var errs []error
	for _, id := range ids {
		if err := orch.DeleteResult(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("result %d: %w", id, err))
			continue
		}
		fmt.Fprintf(out, "Deleted result %d\n", id)
	}
	return errors.Join(errs...)
}
