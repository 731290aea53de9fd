package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/nao1215/fisgon/internal/database"
	"github.com/nao1215/fisgon/internal/model"
)

// Default number of rows shown by the detail views.
const (
	recentFilesLimit = 10
	recentLogsLimit  = 20
	listLimit        = 100
)

var queueStatuses = []model.QueueStatus{
	model.QueuePending, model.QueueProcessing, model.QueueCompleted, model.QueueFailed, model.QueueSkipped,
}

// NewSessionsCmd creates the sessions command and its subcommands.
func NewSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect crawl sessions",
		Long: `Sessions lists and inspects the crawl sessions stored in the database.

Examples:
  fisgon sessions list --status completed
  fisgon sessions show 3f2a9c1e
  fisgon sessions logs 3f2a9c1e --level ERROR
  fisgon sessions urls 3f2a9c1e --status failed
  fisgon sessions stats`,
	}

	list := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List sessions, newest first",
		Args:    cobra.NoArgs,
		RunE:    runSessionsList,
	}
	list.Flags().String("status", "", "Only show sessions with this status")
	list.Flags().String("domain", "", "Only show sessions whose target domain contains this text")

	show := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show the settings, progress and recent activity of a session",
		Args:  cobra.ExactArgs(1),
		RunE:  runSessionsShow,
	}

	logs := &cobra.Command{
		Use:   "logs <session-id>",
		Short: "Show the event log of a session",
		Args:  cobra.ExactArgs(1),
		RunE:  runSessionsLogs,
	}
	logs.Flags().String("level", "", "Only show entries of this level (DEBUG, INFO, WARNING, ERROR, CRITICAL)")
	logs.Flags().String("search", "", "Only show entries whose message contains this text")
	logs.Flags().Int("limit", listLimit, "Maximum number of entries (0 for all)")

	urls := &cobra.Command{
		Use:   "urls <session-id>",
		Short: "Show the URLs discovered by a session",
		Args:  cobra.ExactArgs(1),
		RunE:  runSessionsURLs,
	}
	urls.Flags().String("status", "", "Only show URLs with this status")
	urls.Flags().String("type", "", "Only show URLs of this file type")
	urls.Flags().Int("depth", -1, "Only show URLs at this depth")
	urls.Flags().String("search", "", "Only show URLs containing this text")
	urls.Flags().Int("limit", listLimit, "Maximum number of URLs (0 for all)")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show statistics over all sessions",
		Args:  cobra.NoArgs,
		RunE:  runSessionsStats,
	}

	cmd.AddCommand(list, show, logs, urls, stats)
	return cmd
}

func runSessionsList(cmd *cobra.Command, _ []string) error {
	status, err := cmd.Flags().GetString("status")
	if err != nil {
		return err
	}
	domain, err := cmd.Flags().GetString("domain")
	if err != nil {
		return err
	}

	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	sessions, err := e.store.ListSessions(cmd.Context())
	if err != nil {
		return err
	}
	sessions = filterSessions(sessions, model.SessionStatus(strings.ToLower(status)), domain)

	out := cmd.OutOrStdout()
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions found.")
		return nil
	}

	t := newTable(out)
	t.AppendHeader(table.Row{"ID", "Name", "Domain", "Status", "Processed", "Files", "Errors", "Created"})
	for _, s := range sessions {
		t.AppendRow(table.Row{
			shortID(s.ID),
			ellipsis(s.Name, 30),
			s.TargetDomain,
			s.Status,
			humanize.Comma(int64(s.URLsProcessed)),
			humanize.Comma(int64(s.FilesFound)),
			humanize.Comma(int64(s.Errors)),
			formatTime(&s.CreatedAt),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", "Total", len(sessions)})
	t.Render()
	return nil
}

// filterSessions keeps sessions in status (when set) whose target domain
// contains domain, case-insensitively.
func filterSessions(sessions []*model.CrawlSession, status model.SessionStatus, domain string) []*model.CrawlSession {
	domain = strings.ToLower(domain)
	return slices.DeleteFunc(sessions, func(s *model.CrawlSession) bool {
		if status != "" && s.Status != status {
			return true
		}
		return domain != "" && !strings.Contains(strings.ToLower(s.TargetDomain), domain)
	})
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
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

	out := cmd.OutOrStdout()
	writeSessionDetails(out, session, time.Now())

	if err := writeURLStats(ctx, out, e.store, session.ID); err != nil {
		return err
	}
	if err := writeFileTypes(ctx, out, e.store, session.ID); err != nil {
		return err
	}
	if err := writeRecentFiles(ctx, out, e.store, session.ID); err != nil {
		return err
	}

	logs, err := e.store.ListLogs(ctx, session.ID, recentLogsLimit)
	if err != nil {
		return err
	}
	if len(logs) > 0 {
		fmt.Fprintln(out, "\nRecent log entries")
		writeLogs(out, logs)
	}
	return nil
}

func writeSessionDetails(out io.Writer, s *model.CrawlSession, now time.Time) {
	settings := s.Settings
	maxPages := "unlimited"
	if settings.MaxPages > 0 {
		maxPages = fmt.Sprintf("%s (%.1f%% done)", humanize.Comma(int64(settings.MaxPages)), s.ProgressPercentage())
	}
	rate := "unlimited"
	if settings.RateLimit > 0 {
		rate = fmt.Sprintf("%g req/s", settings.RateLimit)
	}
	types := make([]string, len(settings.AllowedFileTypes))
	for i, ft := range settings.AllowedFileTypes {
		types[i] = string(ft)
	}

	t := newTable(out)
	t.SetTitle("Session " + s.Name)
	t.AppendRows([]table.Row{
		{"ID", s.ID},
		{"Target", s.TargetURL},
		{"Status", s.Status},
		{"Created", s.CreatedAt.Format(model.ExportTimeFormat)},
		{"Started", formatTime(s.StartedAt)},
		{"Completed", formatTime(s.CompletedAt)},
		{"Duration", s.Duration(now).Round(time.Second)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"URLs discovered", humanize.Comma(int64(s.URLsDiscovered))},
		{"URLs processed", humanize.Comma(int64(s.URLsProcessed))},
		{"Files found", humanize.Comma(int64(s.FilesFound))},
		{"Errors", humanize.Comma(int64(s.Errors))},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Max depth", settings.MaxDepth},
		{"Rate limit", rate},
		{"Max pages", maxPages},
		{"Max file size", humanize.IBytes(uint64(max(settings.MaxFileSize, 0)))}, //nolint:gosec // clamped to non-negative
		{"File types", strings.Join(types, ", ")},
		{"Respect robots.txt", settings.RespectRobotsTxt},
		{"Follow redirects", settings.FollowRedirects},
		{"Extract metadata", settings.ExtractMetadata},
		{"Max retries", settings.MaxRetries},
		{"Seed sitemaps", settings.SeedSitemaps},
	})
	t.Render()
}

func writeURLStats(ctx context.Context, out io.Writer, store *database.Store, sessionID string) error {
	t := newTable(out)
	t.SetTitle("URLs")
	header := make(table.Row, 0, len(queueStatuses))
	row := make(table.Row, 0, len(queueStatuses))
	for _, st := range queueStatuses {
		n, err := store.CountQueueItems(ctx, sessionID, st)
		if err != nil {
			return err
		}
		header = append(header, st)
		row = append(row, humanize.Comma(int64(n)))
	}
	t.AppendHeader(header)
	t.AppendRow(row)
	fmt.Fprintln(out)
	t.Render()
	return nil
}

func writeFileTypes(ctx context.Context, out io.Writer, store *database.Store, sessionID string) error {
	counts, err := store.FileTypeCounts(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(counts) == 0 {
		return nil
	}

	t := newTable(out)
	t.SetTitle("File types")
	t.AppendHeader(table.Row{"Type", "URLs"})
	for _, ft := range sortedByCount(counts) {
		t.AppendRow(table.Row{ft, humanize.Comma(int64(counts[ft]))})
	}
	fmt.Fprintln(out)
	t.Render()
	return nil
}

// sortedByCount returns the keys of counts, most frequent first.
func sortedByCount[K ~string](counts map[K]int) []K {
	keys := slices.Collect(maps.Keys(counts))
	slices.SortFunc(keys, func(a, b K) int {
		if d := counts[b] - counts[a]; d != 0 {
			return d
		}
		return strings.Compare(string(a), string(b))
	})
	return keys
}

func writeRecentFiles(ctx context.Context, out io.Writer, store *database.Store, sessionID string) error {
	results, err := store.ListResults(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return nil
	}
	slices.Reverse(results)
	results = results[:min(recentFilesLimit, len(results))]

	fmt.Fprintln(out)
	writeResults(out, results, "Recent files")
	return nil
}

func runSessionsLogs(cmd *cobra.Command, args []string) error {
	level, err := cmd.Flags().GetString("level")
	if err != nil {
		return err
	}
	search, err := cmd.Flags().GetString("search")
	if err != nil {
		return err
	}
	limit, err := cmd.Flags().GetInt("limit")
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
	logs, err := e.store.ListLogs(ctx, session.ID, 0)
	if err != nil {
		return err
	}
	logs = filterLogs(logs, model.LogLevel(strings.ToUpper(level)), search)
	if limit > 0 && len(logs) > limit {
		logs = logs[len(logs)-limit:]
	}

	out := cmd.OutOrStdout()
	if len(logs) == 0 {
		fmt.Fprintln(out, "No log entries found.")
		return nil
	}
	writeLogs(out, logs)
	return nil
}

func filterLogs(logs []*model.CrawlLog, level model.LogLevel, search string) []*model.CrawlLog {
	search = strings.ToLower(search)
	return slices.DeleteFunc(logs, func(l *model.CrawlLog) bool {
		if level != "" && l.Level != level {
			return true
		}
		return search != "" && !strings.Contains(strings.ToLower(l.Message), search)
	})
}

func writeLogs(out io.Writer, logs []*model.CrawlLog) {
	t := newTable(out)
	t.AppendHeader(table.Row{"Time", "Level", "Message", "Details"})
	for _, l := range logs {
		t.AppendRow(table.Row{
			l.Timestamp.Local().Format(model.ExportTimeFormat),
			l.Level,
			ellipsis(l.Message, 60),
			ellipsis(formatDetails(l.Details), 60),
		})
	}
	t.Render()
}

// formatDetails renders log details as sorted key=value pairs.
func formatDetails(details map[string]any) string {
	keys := slices.Sorted(maps.Keys(details))
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, details[k])
	}
	return strings.Join(parts, " ")
}

func runSessionsURLs(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	status, err := flags.GetString("status")
	if err != nil {
		return err
	}
	fileType, err := flags.GetString("type")
	if err != nil {
		return err
	}
	depth, err := flags.GetInt("depth")
	if err != nil {
		return err
	}
	search, err := flags.GetString("search")
	if err != nil {
		return err
	}
	limit, err := flags.GetInt("limit")
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
	items, err := e.store.ListQueueItems(ctx, session.ID)
	if err != nil {
		return err
	}

	search = strings.ToLower(search)
	items = slices.DeleteFunc(items, func(q *model.URLQueueItem) bool {
		switch {
		case status != "" && string(q.Status) != strings.ToLower(status):
			return true
		case fileType != "" && string(q.FileType) != strings.ToLower(fileType):
			return true
		case depth >= 0 && q.Depth != depth:
			return true
		}
		return search != "" && !strings.Contains(strings.ToLower(q.URL), search)
	})
	// newest discoveries first
	slices.Reverse(items)
	total := len(items)
	if limit > 0 && total > limit {
		items = items[:limit]
	}

	out := cmd.OutOrStdout()
	if total == 0 {
		fmt.Fprintln(out, "No URLs found.")
		return nil
	}

	t := newTable(out)
	t.AppendHeader(table.Row{"Status", "Type", "Depth", "HTTP", "URL", "Error"})
	for _, q := range items {
		httpStatus := "-"
		if q.HTTPStatus != 0 {
			httpStatus = fmt.Sprint(q.HTTPStatus)
		}
		t.AppendRow(table.Row{q.Status, q.FileType, q.Depth, httpStatus, q.URL, ellipsis(q.ErrorMessage, 40)})
	}
	t.AppendFooter(table.Row{"", "", "", "", fmt.Sprintf("%d of %d URLs", len(items), total), ""})
	t.Render()
	return nil
}

func runSessionsStats(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	sessions, err := e.store.ListSessions(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions found.")
		return nil
	}

	var active, discovered, processed, files, errs int
	statuses := make(map[model.SessionStatus]int)
	domains := make(map[string]int)
	domainFiles := make(map[string]int)
	fileTypes := make(map[model.FileType]int)
	for _, s := range sessions {
		if s.IsActive() {
			active++
		}
		discovered += s.URLsDiscovered
		processed += s.URLsProcessed
		files += s.FilesFound
		errs += s.Errors
		statuses[s.Status]++
		domains[s.TargetDomain]++
		domainFiles[s.TargetDomain] += s.FilesFound

		results, err := e.store.ListResults(ctx, s.ID)
		if err != nil {
			return err
		}
		for _, r := range results {
			fileTypes[r.FileType]++
		}
	}

	t := newTable(out)
	t.SetTitle("Overview")
	t.AppendRows([]table.Row{
		{"Sessions", len(sessions)},
		{"Active sessions", active},
		{"Completed sessions", statuses[model.SessionCompleted]},
		{"Failed sessions", statuses[model.SessionFailed]},
		{"URLs discovered", humanize.Comma(int64(discovered))},
		{"URLs processed", humanize.Comma(int64(processed))},
		{"Files found", humanize.Comma(int64(files))},
		{"Errors", humanize.Comma(int64(errs))},
	})
	t.Render()

	t = newTable(out)
	t.SetTitle("Top domains")
	t.AppendHeader(table.Row{"Domain", "Sessions", "Avg files"})
	top := sortedByCount(domains)
	for _, d := range top[:min(10, len(top))] {
		t.AppendRow(table.Row{d, domains[d], fmt.Sprintf("%.1f", float64(domainFiles[d])/float64(domains[d]))})
	}
	fmt.Fprintln(out)
	t.Render()

	if len(fileTypes) > 0 {
		t = newTable(out)
		t.SetTitle("Files by type")
		t.AppendHeader(table.Row{"Type", "Files"})
		for _, ft := range sortedByCount(fileTypes)[:min(10, len(fileTypes))] {
			t.AppendRow(table.Row{ft, humanize.Comma(int64(fileTypes[ft]))})
		}
		fmt.Fprintln(out)
		t.Render()
	}
	return nil
}

// NewStopCmd creates the stop command.
func NewStopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop <session-id>...",
		Short: "Cancel or pause sessions",
		Long: `Stop cancels the given sessions. Pending URLs are skipped and the
session cannot be resumed. With --pause the sessions are paused instead
and can be continued with "fisgon resume".

A crawl running in another process notices the change at its next cycle.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runStopCmd,
	}
	cmd.Flags().Bool("pause", false, "Pause instead of cancel")
	return cmd
}

func runStopCmd(cmd *cobra.Command, args []string) error {
	pause, err := cmd.Flags().GetBool("pause")
	if err != nil {
		return err
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
	for _, id := range args {
		session, err := e.session(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if pause {
			err = orch.Pause(ctx, session.ID)
		} else {
			err = orch.Cancel(ctx, session.ID)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("session %s (%s): %w", shortID(session.ID), session.Status, err))
			continue
		}
		if pause {
			fmt.Fprintf(out, "Paused session %s\n", session.ID)
		} else {
			fmt.Fprintf(out, "Cancelled session %s\n", session.ID)
		}
	}
	return errors.Join(errs...)
}

// NewDeleteCmd creates the delete command.
func NewDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <session-id>...",
		Short: "Delete sessions with their URLs, results, logs and files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runDeleteCmd,
	}
	cmd.Flags().BoolP("force", "f", false, "Also delete running sessions")
	return cmd
}

func runDeleteCmd(cmd *cobra.Command, args []string) error {
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
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
	for _, id := range args {
		session, err := e.session(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if session.Status == model.SessionRunning && !force {
			errs = append(errs, fmt.Errorf("session %s is running; stop it first or use --force", shortID(session.ID)))
			continue
		}
		if err := orch.Delete(ctx, session.ID); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", shortID(session.ID), err))
			continue
		}
		fmt.Fprintf(out, "Deleted session %s\n", session.ID)
	}
	return errors.Join(errs...)
}
