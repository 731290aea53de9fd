package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/net/publicsuffix"

	"github.com/nao1215/fisgon/internal/config"
	"github.com/nao1215/fisgon/internal/crawler"
	"github.com/nao1215/fisgon/internal/model"
	"github.com/nao1215/fisgon/internal/pipeline"
	"github.com/nao1215/fisgon/internal/tor"
	"github.com/nao1215/fisgon/internal/urlutil"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl <url>",
		Short: "Crawl a website and extract the metadata of its files",
		Long: `Crawl creates a new session for the given start URL and runs it.

Pages within the registrable domain of the start URL are followed up to
the maximum depth. Files of the allowed types are downloaded, stored in
the data directory and their metadata is extracted.

Press Ctrl+C to pause the crawl; continue it later with "fisgon resume".

Examples:
  # Crawl with the default settings
  fisgon crawl https://example.com

  # Only look for PDF and Office documents, three levels deep
  fisgon crawl --types pdf,docx,xlsx --depth 3 https://example.com

  # Crawl through a local SOCKS5 proxy
  fisgon crawl --proxy 127.0.0.1:9050 https://example.com

  # Crawl through an embedded Tor daemon
  fisgon crawl --tor https://example.com`,
		Args: cobra.ExactArgs(1),
		RunE: runCrawlCmd,
	}

	defaults := model.DefaultSessionSettings()
	types := make([]string, len(defaults.AllowedFileTypes))
	for i, t := range defaults.AllowedFileTypes {
		types[i] = string(t)
	}

	cmd.Flags().StringP("name", "n", "", "Session name (default: the target domain)")
	cmd.Flags().IntP("depth", "d", defaults.MaxDepth,
		fmt.Sprintf("Maximum crawl depth (%d-%d)", config.MinDepth, config.MaxDepth))
	cmd.Flags().Float64P("rate", "r", defaults.RateLimit,
		"Requests per second (0 disables rate limiting)")
	cmd.Flags().IntP("max-pages", "p", defaults.MaxPages, "Maximum number of URLs to process (0 for unlimited)")
	cmd.Flags().String("max-file-size", "50MiB", "Largest file that is downloaded, e.g. 10MB or 1GiB")
	cmd.Flags().StringP("types", "t", strings.Join(types, ","), "Comma separated list of file types to download")
	cmd.Flags().Int("max-retries", defaults.MaxRetries, "Retries of a URL after network failures")
	cmd.Flags().Bool("no-robots", false, "Ignore robots.txt")
	cmd.Flags().Bool("no-redirects", false, "Do not follow HTTP redirects")
	cmd.Flags().Bool("no-metadata", false, "Download files without extracting metadata")
	cmd.Flags().Bool("seed-sitemaps", false, "Queue the URLs listed in the sitemaps of robots.txt")

	addRunFlags(cmd)

	return cmd
}

// NewResumeCmd creates the resume command.
func NewResumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume <session-id>",
		Short: "Continue a paused session",
		Long: `Resume continues a paused or interrupted session with the settings it was
created with. URLs that were being processed when the session stopped are
queued again.`,
		Args: cobra.ExactArgs(1),
		RunE: runResumeCmd,
	}
	addRunFlags(cmd)
	return cmd
}

// addRunFlags adds the flags that control how a session is executed, as
// opposed to what it crawls.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("workers", "w", config.DefaultWorkers, "Number of URLs fetched concurrently")
	cmd.Flags().Int("batch-size", config.DefaultBatchSize, "Number of URLs scheduled per cycle")
	cmd.Flags().Duration("timeout", config.DefaultTimeout, "Timeout of a single request")
	cmd.Flags().Duration("extract-timeout", config.DefaultExtractTimeout, "Timeout of metadata extraction for one file")
	cmd.Flags().String("user-agent", "", "User-Agent header (default: from the config file or built in)")
	cmd.Flags().String("accept-language", "", "Accept-Language header")
	cmd.Flags().String("proxy", "", "Route requests through a SOCKS5 proxy (e.g. 127.0.0.1:9050)")
	cmd.Flags().Bool("tor", false, "Route requests through an embedded Tor daemon")
	cmd.Flags().Duration("tor-timeout", config.DefaultTorStartupTimeout, "Timeout for embedded Tor startup")
}

// readRunFlags copies the run flags into cfg.
func readRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	var err error
	flags := cmd.Flags()

	if cfg.Workers, err = flags.GetInt("workers"); err != nil {
		return err
	}
	if cfg.BatchSize, err = flags.GetInt("batch-size"); err != nil {
		return err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return err
	}
	if cfg.ExtractTimeout, err = flags.GetDuration("extract-timeout"); err != nil {
		return err
	}
	if cfg.AcceptLanguage, err = flags.GetString("accept-language"); err != nil {
		return err
	}
	if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
		return err
	}
	if cfg.UseTor, err = flags.GetBool("tor"); err != nil {
		return err
	}
	if cfg.TorStartupTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
		return err
	}

	ua, err := flags.GetString("user-agent")
	if err != nil {
		return err
	}
	if ua != "" {
		cfg.UserAgent = ua
	}
	return nil
}

// applySite lets the config file entry of domain override values whose
// flags were not given explicitly.
func applySite(cmd *cobra.Command, cfg *config.Config, site config.SiteConfig) {
	flags := cmd.Flags()
	if site.UserAgent != "" && !flags.Changed("user-agent") {
		cfg.UserAgent = site.UserAgent
	}
	if flags.Lookup("depth") == nil {
		return
	}
	if site.Depth != 0 && !flags.Changed("depth") {
		cfg.Settings.MaxDepth = site.Depth
	}
	if site.RateLimit != 0 && !flags.Changed("rate") {
		cfg.Settings.RateLimit = site.RateLimit
	}
}

// readSettings builds the settings of a new session from the crawl flags.
func readSettings(cmd *cobra.Command) (model.SessionSettings, error) {
	s := model.DefaultSessionSettings()
	flags := cmd.Flags()
	var err error

	if s.MaxDepth, err = flags.GetInt("depth"); err != nil {
		return s, err
	}
	if s.RateLimit, err = flags.GetFloat64("rate"); err != nil {
		return s, err
	}
	if s.MaxPages, err = flags.GetInt("max-pages"); err != nil {
		return s, err
	}
	if s.MaxRetries, err = flags.GetInt("max-retries"); err != nil {
		return s, err
	}

	size, err := flags.GetString("max-file-size")
	if err != nil {
		return s, err
	}
	n, err := humanize.ParseBytes(size)
	if err != nil {
		return s, fmt.Errorf("invalid --max-file-size %q: %w", size, err)
	}
	s.MaxFileSize = int64(n) //nolint:gosec // range checked by config.ValidateSettings

	types, err := flags.GetString("types")
	if err != nil {
		return s, err
	}
	if s.AllowedFileTypes, err = config.ParseFileTypes(types); err != nil {
		return s, err
	}

	noRobots, err := flags.GetBool("no-robots")
	if err != nil {
		return s, err
	}
	noRedirects, err := flags.GetBool("no-redirects")
	if err != nil {
		return s, err
	}
	noMetadata, err := flags.GetBool("no-metadata")
	if err != nil {
		return s, err
	}
	s.RespectRobotsTxt = !noRobots
	s.FollowRedirects = !noRedirects
	s.ExtractMetadata = !noMetadata

	if s.SeedSitemaps, err = flags.GetBool("seed-sitemaps"); err != nil {
		return s, err
	}
	return s, nil
}

// buildCrawlConfig assembles the configuration of a crawl of target.
func buildCrawlConfig(cmd *cobra.Command, target string) (*config.Config, error) {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return nil, err
	}
	if cfg.Settings, err = readSettings(cmd); err != nil {
		return nil, err
	}
	if err := readRunFlags(cmd, cfg); err != nil {
		return nil, err
	}
	if domain, err := urlutil.Domain(target); err == nil {
		applySite(cmd, cfg, cfg.Site(domain))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	target := args[0]
	cfg, err := buildCrawlConfig(cmd, target)
	if err != nil {
		return err
	}
	name, err := cmd.Flags().GetString("name")
	if err != nil {
		return err
	}

	e, err := openEnvWith(cmd, cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	out := cmd.OutOrStdout()
	client, cleanup, err := newEgress(ctx, cfg, e.logger, out)
	if err != nil {
		return err
	}
	defer cleanup()

	domain, _ := urlutil.Domain(target) //nolint:errcheck // Create rejects invalid targets
	orch := newCrawlOrchestrator(e, client, cfg.Site(domain), out)

	session, err := orch.Create(ctx, name, target, cfg.Settings)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Session %s created for %s\n", session.ID, session.TargetURL)

	return runSession(ctx, out, e, orch, session.ID)
}

// runResumeCmd executes the resume command.
func runResumeCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if err := readRunFlags(cmd, cfg); err != nil {
		return err
	}

	e, err := openEnvWith(cmd, cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	session, err := e.session(ctx, args[0])
	if err != nil {
		return err
	}
	if session.Status.IsTerminal() {
		return fmt.Errorf("session %s is %s and cannot be resumed", session.ID, session.Status)
	}

	site := cfg.Site(session.TargetDomain)
	applySite(cmd, cfg, site)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	out := cmd.OutOrStdout()
	client, cleanup, err := newEgress(ctx, cfg, e.logger, out)
	if err != nil {
		return err
	}
	defer cleanup()

	fmt.Fprintf(out, "Resuming session %s (%s)\n", session.ID, session.TargetURL)
	return runSession(ctx, out, e, newCrawlOrchestrator(e, client, site, out), session.ID)
}

// newCrawlOrchestrator wires the fetcher options of the site configuration
// and the progress output into an orchestrator.
func newCrawlOrchestrator(e *env, client *http.Client, site config.SiteConfig, out io.Writer) *pipeline.Orchestrator {
	fetcherOpts := []crawler.FetcherOption{crawler.WithTimeout(e.cfg.Timeout)}
	if e.cfg.AcceptLanguage != "" {
		fetcherOpts = append(fetcherOpts, crawler.WithAcceptLanguage(e.cfg.AcceptLanguage))
	}
	if site.Cookie != "" {
		fetcherOpts = append(fetcherOpts, crawler.WithCookie(site.Cookie))
	}
	if len(site.Headers) > 0 {
		fetcherOpts = append(fetcherOpts, crawler.WithHeaders(site.Headers))
	}

	progress := &progressPrinter{out: out, verbose: e.cfg.Verbose}
	return e.orchestrator(
		pipeline.WithHTTPClient(client),
		pipeline.WithUserAgent(e.cfg.UserAgent),
		pipeline.WithFetcherOptions(fetcherOpts...),
		pipeline.WithSitePatterns(site.IgnorePatterns, site.FollowPatterns),
		pipeline.WithWorkers(e.cfg.Workers),
		pipeline.WithBatchSize(e.cfg.BatchSize),
		pipeline.WithProgress(progress.report),
	)
}

// runSession runs a session to its end and prints a summary. An
// interrupted run leaves the session paused and is not an error.
func runSession(ctx context.Context, out io.Writer, e *env, orch *pipeline.Orchestrator, sessionID string) error {
	err := orch.Run(ctx, sessionID)
	if err != nil && ctx.Err() == nil {
		return err
	}

	session, loadErr := e.store.GetSession(context.WithoutCancel(ctx), sessionID)
	if loadErr != nil {
		return loadErr
	}

	fmt.Fprintln(out)
	if err != nil {
		fmt.Fprintf(out, "Crawl interrupted, session %s is %s.\n", session.ID, session.Status)
		fmt.Fprintf(out, "Continue with: fisgon resume %s\n", session.ID)
		return nil
	}

	fmt.Fprintf(out, "Crawl %s in %s\n", session.Status, session.Duration(time.Now()).Round(time.Second))
	fmt.Fprintf(out, "  URLs discovered: %s\n", humanize.Comma(int64(session.URLsDiscovered)))
	fmt.Fprintf(out, "  URLs processed:  %s\n", humanize.Comma(int64(session.URLsProcessed)))
	fmt.Fprintf(out, "  Files found:     %s\n", humanize.Comma(int64(session.FilesFound)))
	fmt.Fprintf(out, "  Errors:          %s\n", humanize.Comma(int64(session.Errors)))
	if session.FilesFound > 0 {
		fmt.Fprintf(out, "\nAnalyze the metadata with: fisgon analyze %s\n", session.ID)
	}
	return nil
}

// progressPrinter writes one line per stored file, and per processed URL
// in verbose mode. Tasks of a batch report concurrently.
type progressPrinter struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool
	count   int
}

func (p *progressPrinter) report(t *pipeline.Task) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.count++
	switch {
	case t.Result != nil:
		fmt.Fprintf(p.out, "[%d] %-5s %s (%s)\n", p.count, t.Result.FileType, t.Item.URL,
			humanize.Bytes(uint64(max(t.Result.FileSize, 0)))) //nolint:gosec // clamped to non-negative
	case p.verbose:
		fmt.Fprintf(p.out, "[%d] %-5s %s %s\n", p.count, t.Item.FileType, t.Item.URL, t.Item.Status)
	}
}

// newEgress returns the HTTP client of the crawl and a cleanup function:
// an external SOCKS5 proxy, an embedded Tor daemon, or a direct client.
func newEgress(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) (*http.Client, func(), error) {
	switch {
	case cfg.ProxyAddress != "":
		client, err := tor.NewClient(cfg.ProxyAddress, cfg.Timeout)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create proxy client: %w", err)
		}
		if status := client.CheckConnection(ctx); status != tor.ProxyStatusOK {
			return nil, nil, fmt.Errorf("proxy check failed: %w (make sure a SOCKS5 proxy is running at %s)",
				status.Error(), cfg.ProxyAddress)
		}
		logger.Info("SOCKS5 proxy connection verified", "address", cfg.ProxyAddress)
		return client.NewHTTPClient(), func() {}, nil

	case cfg.UseTor:
		embeddedTor, client, err := startEmbeddedTor(ctx, cfg, logger, out)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			logger.Info("stopping embedded Tor daemon")
			if err := embeddedTor.Stop(); err != nil {
				logger.Error("failed to stop embedded Tor", "error", err)
			}
		}
		return client.NewHTTPClient(), cleanup, nil

	default:
		return newDirectClient(cfg.Timeout), func() {}, nil
	}
}

// newDirectClient returns a client without proxy. Cookies set by the
// crawled site are kept per registrable domain.
func newDirectClient(timeout time.Duration) *http.Client {
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List}) //nolint:errcheck // never fails

	transport := http.DefaultTransport.(*http.Transport).Clone() //nolint:forcetypeassert // always *http.Transport
	transport.MaxIdleConnsPerHost = config.MaxWorkers
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
		Jar:       jar,
	}
}

// startEmbeddedTor starts an embedded Tor daemon using tornago and returns
// it with a client for its SOCKS5 port.
func startEmbeddedTor(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) (*tor.EmbeddedTor, *tor.Client, error) {
	fmt.Fprintln(out, "Starting embedded Tor daemon...")
	fmt.Fprintf(out, "This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

	embeddedTor := tor.NewEmbeddedTor(
		tor.WithStartupTimeout(cfg.TorStartupTimeout),
		tor.WithTorLogger(logger),
	)
	if err := embeddedTor.Start(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("failed to start embedded Tor: %w", err)
	}

	client, err := embeddedTor.NewClient(cfg.Timeout)
	if err != nil {
		_ = embeddedTor.Stop() //nolint:errcheck // Best effort cleanup
		return nil, nil, fmt.Errorf("failed to create Tor client: %w", err)
	}

	fmt.Fprintf(out, "Embedded Tor daemon started, SOCKS proxy: %s\n\n", embeddedTor.SocksAddr())
	return embeddedTor, client, nil
}
