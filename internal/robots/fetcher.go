package robots

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
)

const (
	// DefaultTimeout bounds a robots.txt or sitemap request.
	DefaultTimeout = 10 * time.Second

	maxRobotsBodyBytes  = 512 * 1024
	maxSitemapBodyBytes = 10 * 1024 * 1024
)

// Fetcher downloads robots.txt once per session.
type Fetcher struct {
	client      *http.Client
	userAgent   string
	agentTokens []string
	timeout     time.Duration
	logger      *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithUserAgent sets the User-Agent header of robots requests.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithAgentTokens sets the substrings that select a User-agent group.
func WithAgentTokens(tokens ...string) Option {
	return func(f *Fetcher) {
		f.agentTokens = tokens
	}
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.timeout = d
	}
}

// WithLogger sets the logger used for processing events.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// NewFetcher creates a Fetcher that uses client for requests.
func NewFetcher(client *http.Client, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:      client,
		agentTokens: DefaultAgentTokens,
		timeout:     DefaultTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads and parses robots.txt for the origin of targetURL.
// It never returns nil: any failure produces Permissive() and a warning.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) *Policy {
	robotsURL, err := robotsURLFor(targetURL)
	if err != nil {
		f.logger.Warn("could not fetch robots.txt", "error", err)
		return Permissive()
	}

	body, status, err := f.get(ctx, robotsURL, maxRobotsBodyBytes)
	if err != nil {
		f.logger.Warn("could not fetch robots.txt", "robots_url", robotsURL, "error", err)
		return Permissive()
	}
	if status != http.StatusOK {
		f.logger.Warn(fmt.Sprintf("could not fetch robots.txt (HTTP %d)", status), "robots_url", robotsURL)
		return Permissive()
	}

	policy := Parse(bytes.NewReader(body), f.agentTokens...)
	f.logger.Info("robots.txt processed",
		"robots_url", robotsURL,
		"rules_found", policy.RulesFound(),
		"crawl_delay_seconds", policy.CrawlDelay().Seconds(),
		"sitemaps", len(policy.Sitemaps()),
	)
	return policy
}

// robotsURLFor builds {scheme}://{host}/robots.txt for the target origin.
func robotsURLFor(targetURL string) (string, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return "", fmt.Errorf("invalid target URL %q: %w", targetURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("target URL %q has no host", targetURL)
	}
	scheme := u.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return (&url.URL{Scheme: scheme, Host: u.Host, Path: "/robots.txt"}).String(), nil
}

func (f *Fetcher) get(ctx context.Context, target string, limit int64) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read body: %w", err)
	}
	return body, resp.StatusCode, nil
}

// SitemapURLs returns the <loc> entries of the sitemap at sitemapURL.
// Sitemap index files are followed one level deep; failing child
// sitemaps are skipped.
func (f *Fetcher) SitemapURLs(ctx context.Context, sitemapURL string) ([]string, error) {
	locs, isIndex, err := f.readSitemap(ctx, sitemapURL)
	if err != nil {
		return nil, err
	}
	if !isIndex {
		return locs, nil
	}

	var urls []string
	for _, child := range locs {
		childLocs, childIsIndex, err := f.readSitemap(ctx, child)
		if err != nil {
			f.logger.Debug("skipping sitemap", "sitemap_url", child, "error", err)
			continue
		}
		if childIsIndex {
			continue
		}
		urls = append(urls, childLocs...)
	}
	return urls, nil
}

func (f *Fetcher) readSitemap(ctx context.Context, sitemapURL string) ([]string, bool, error) {
	body, status, err := f.get(ctx, sitemapURL, maxSitemapBodyBytes)
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch sitemap: %w", err)
	}
	if status != http.StatusOK {
		return nil, false, fmt.Errorf("sitemap returned status %d", status)
	}
	return parseSitemap(body)
}

// parseSitemap returns the loc values and whether the document is a sitemap index.
func parseSitemap(body []byte) ([]string, bool, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("failed to parse sitemap: %w", err)
	}

	isIndex := xmlquery.FindOne(doc, "/*[local-name()='sitemapindex']") != nil
	var locs []string
	for _, n := range xmlquery.Find(doc, "//*[local-name()='loc']") {
		if loc := strings.TrimSpace(n.InnerText()); loc != "" {
			locs = append(locs, loc)
		}
	}
	return locs, isIndex, nil
}
