package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/nao1215/fisgon/internal/crawler"
	"github.com/nao1215/fisgon/internal/database"
	"github.com/nao1215/fisgon/internal/extract"
	"github.com/nao1215/fisgon/internal/frontier"
	"github.com/nao1215/fisgon/internal/log"
	"github.com/nao1215/fisgon/internal/model"
	"github.com/nao1215/fisgon/internal/ratelimit"
	"github.com/nao1215/fisgon/internal/robots"
	"github.com/nao1215/fisgon/internal/storage"
	"github.com/nao1215/fisgon/internal/urlutil"
)

// DefaultRetryPoll bounds a single wait for a scheduled retry, so that a
// pause or cancel issued meanwhile is noticed.
const DefaultRetryPoll = 5 * time.Second

// CancelMessage is logged and stored on skipped items when a crawl is
// cancelled.
const CancelMessage = "crawl cancelled by user"

// Orchestrator drives crawl sessions through their lifecycle. Session
// events are logged with a session_id attribute and persisted as
// CrawlLog rows.
type Orchestrator struct {
	store  *database.Store
	blobs  *storage.Store
	engine *extract.Engine

	client      *http.Client
	userAgent   string
	fetcherOpts []crawler.FetcherOption
	ignore      []string
	follow      []string

	concurrency int
	batchSize   int
	retryPoll   time.Duration
	onTask      func(*Task)

	logger *slog.Logger
	now    func() time.Time
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithOrchestratorLogger sets the logger session events are written to
// in addition to the session log.
func WithOrchestratorLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithHTTPClient sets the client used for pages, robots.txt and sitemaps.
func WithHTTPClient(client *http.Client) OrchestratorOption {
	return func(o *Orchestrator) {
		if client != nil {
			o.client = client
		}
	}
}

// WithUserAgent sets the User-Agent of every request.
func WithUserAgent(ua string) OrchestratorOption {
	return func(o *Orchestrator) {
		if ua != "" {
			o.userAgent = ua
		}
	}
}

// WithFetcherOptions adds options to the page fetcher, e.g. per-site
// cookies and headers.
func WithFetcherOptions(opts ...crawler.FetcherOption) OrchestratorOption {
	return func(o *Orchestrator) {
		o.fetcherOpts = append(o.fetcherOpts, opts...)
	}
}

// WithSitePatterns sets the path globs ignored or followed by the link step.
func WithSitePatterns(ignore, follow []string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.ignore = ignore
		o.follow = follow
	}
}

// WithWorkers sets the number of URLs processed concurrently.
func WithWorkers(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithBatchSize sets the number of items scheduled per cycle.
func WithBatchSize(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithRetryPoll overrides DefaultRetryPoll.
func WithRetryPoll(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.retryPoll = d
		}
	}
}

// WithProgress registers fn to be called after every processed URL.
func WithProgress(fn func(*Task)) OrchestratorOption {
	return func(o *Orchestrator) {
		o.onTask = fn
	}
}

// WithClock sets the time source of the orchestrator and its steps.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// NewOrchestrator returns an orchestrator persisting to store and blobs.
func NewOrchestrator(store *database.Store, blobs *storage.Store, engine *extract.Engine, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		store:       store,
		blobs:       blobs,
		engine:      engine,
		client:      http.DefaultClient,
		userAgent:   crawler.DefaultUserAgent,
		concurrency: DefaultConcurrency,
		batchSize:   frontier.DefaultBatchSize,
		retryPoll:   DefaultRetryPoll,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	base := o.logger
	o.logger = slog.New(log.NewSessionHandler(base.Handler(), store,
		log.WithSinkErrorHandler(func(err error) {
			base.Warn("session log entry lost", "error", err)
		}),
	))
	return o
}

// Create registers a pending session for targetURL and prepares its
// storage directory. An empty name defaults to the target domain.
func (o *Orchestrator) Create(ctx context.Context, name, targetURL string, settings model.SessionSettings) (*model.CrawlSession, error) {
	normalized, err := urlutil.Normalize(targetURL, "", false)
	if err != nil || !urlutil.Validate(normalized, "") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTarget, targetURL)
	}
	domain, err := urlutil.Domain(normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTarget, targetURL)
	}

	session := model.NewCrawlSession(name, normalized, domain, settings, o.now())
	if err := o.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	if err := o.blobs.CreateSessionDir(session.ID); err != nil {
		return nil, err
	}
	return session, nil
}

// Run crawls a pending or paused session until its frontier is exhausted,
// max_pages is reached or its status changes elsewhere. When ctx ends
// first the session is paused and ctx.Err() is returned. Any other error
// fails the session.
func (o *Orchestrator) Run(ctx context.Context, sessionID string) error {
	session, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrSessionNotRunnable, session.ID, session.Status)
	}
	resuming := session.Status == model.SessionPaused

	if _, err := o.store.TransitionSession(ctx, sessionID, model.SessionRunning, o.now()); err != nil {
		return err
	}
	logger := o.logger.With(log.SessionKey, sessionID)

	err = o.crawl(ctx, session, logger, resuming)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		o.pauseInterrupted(context.WithoutCancel(ctx), sessionID, logger)
		return ctx.Err()
	case errors.Is(err, database.ErrSessionNotFound):
		// deleted while running
		return err
	default:
		o.fail(context.WithoutCancel(ctx), sessionID, logger, err)
		return err
	}
}

// Resume continues a paused session.
func (o *Orchestrator) Resume(ctx context.Context, sessionID string) error {
	return o.Run(ctx, sessionID)
}

func (o *Orchestrator) crawl(ctx context.Context, session *model.CrawlSession, logger *slog.Logger, resuming bool) error {
	settings := session.Settings
	front := frontier.New(o.store, session.ID,
		frontier.WithBatchSize(o.batchSize),
		frontier.WithClock(o.now),
	)

	if resuming {
		requeued, err := o.store.RequeueStuckItems(ctx, session.ID)
		if err != nil {
			return err
		}
		if err := front.Warm(ctx); err != nil {
			return err
		}
		logger.Info("crawl resumed", "requeued_items", requeued)
	} else {
		logger.Info("crawl started",
			"target_url", session.TargetURL,
			"max_depth", settings.MaxDepth,
			"max_pages", settings.MaxPages,
			"rate_limit", settings.RateLimit,
		)
	}

	var policy *robots.Policy
	if settings.RespectRobotsTxt || settings.SeedSitemaps {
		policy = robots.NewFetcher(o.client,
			robots.WithUserAgent(o.userAgent),
			robots.WithLogger(logger),
		).Fetch(ctx, session.TargetURL)
	}

	var delta database.CounterDelta
	seeded, err := front.Seed(ctx, session.TargetURL)
	if err != nil {
		return err
	}
	if seeded {
		delta.Discovered++
	}
	if settings.SeedSitemaps && policy != nil && !resuming {
		delta.Discovered += o.seedSitemaps(ctx, front, session, policy, logger)
	}
	if err := o.store.IncrementCounters(ctx, session.ID, delta); err != nil {
		return err
	}

	var crawlDelay time.Duration
	if policy != nil {
		crawlDelay = policy.CrawlDelay()
	}
	limiter := ratelimit.New(ratelimit.Slowest(settings.RateLimit, crawlDelay))
	if !settings.RespectRobotsTxt {
		policy = nil
	}

	fetcherOpts := append([]crawler.FetcherOption{crawler.WithUserAgent(o.userAgent)}, o.fetcherOpts...)
	p := New(WithLogger(o.logger))
	p.AddSteps(
		NewFetchStep(crawler.NewFetcher(o.client, fetcherOpts...), front, o.store,
			WithFetchLimiter(limiter),
			WithFetchPolicy(policy),
			WithFetchLogger(o.logger),
			WithFetchClock(o.now),
		),
		NewLinkStep(front, WithLinkPatterns(o.ignore, o.follow), WithLinkLogger(o.logger)),
		NewStoreStep(o.blobs, o.store, WithStoreLogger(o.logger), WithStoreClock(o.now)),
		NewExtractStep(o.engine, o.blobs, o.store, WithExtractLogger(o.logger), WithExtractClock(o.now)),
		NewFinalizeStep(o.store, o.now),
	)
	bp := NewBatchProcessor(p, o.store,
		WithConcurrency(o.concurrency),
		WithBatchLogger(o.logger),
		WithBatchClock(o.now),
		WithTaskCallback(o.onTask),
	)

	for {
		current, err := o.store.GetSession(ctx, session.ID)
		if err != nil {
			return err
		}
		if current.Status != model.SessionRunning {
			logger.Debug("scheduling stopped", "status", current.Status)
			return nil
		}
		if current.MaxPagesReached() {
			return o.complete(ctx, current.ID, logger)
		}

		items, err := front.NextBatch(ctx, current.URLsProcessed, current.Settings.MaxPages)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			next, err := front.NextRetryAt(ctx)
			if err != nil {
				return err
			}
			if next == nil {
				return o.complete(ctx, current.ID, logger)
			}
			if err := o.waitUntil(ctx, *next); err != nil {
				return err
			}
			continue
		}

		tasks, procErr := bp.Process(ctx, current, items)
		var batch database.CounterDelta
		for _, t := range tasks {
			batch.Discovered += t.Delta.Discovered
			batch.Processed += t.Delta.Processed
			batch.FilesFound += t.Delta.FilesFound
			batch.Errors += t.Delta.Errors
		}
		if err := o.store.IncrementCounters(context.WithoutCancel(ctx), current.ID, batch); err != nil {
			return err
		}
		if procErr != nil {
			return procErr
		}
	}
}

// seedSitemaps queues the in-domain URLs of the robots.txt sitemaps at
// depth 1 and returns how many were new. Sitemap failures are logged.
func (o *Orchestrator) seedSitemaps(ctx context.Context, front *frontier.Frontier, session *model.CrawlSession, policy *robots.Policy, logger *slog.Logger) int {
	fetcher := robots.NewFetcher(o.client, robots.WithUserAgent(o.userAgent), robots.WithLogger(o.logger))
	seed := &model.URLQueueItem{URL: session.TargetURL, Depth: 0}

	added := 0
	for _, sitemap := range policy.Sitemaps() {
		urls, err := fetcher.SitemapURLs(ctx, sitemap)
		if err != nil {
			logger.Warn("could not read sitemap", "sitemap_url", sitemap, "error", err)
			continue
		}
		links := make([]string, 0, len(urls))
		for _, u := range urls {
			if urlutil.Validate(u, session.TargetDomain) {
				links = append(links, urlutil.Clean(u))
			}
		}
		n, err := front.EnqueueLinks(ctx, seed, links, session.Settings)
		added += n
		if err != nil {
			logger.Warn("could not queue sitemap URLs", "sitemap_url", sitemap, "error", err)
			continue
		}
		logger.Info("sitemap processed", "sitemap_url", sitemap, "urls_found", len(urls), "urls_added", n)
	}
	return added
}

// waitUntil sleeps until next, at most retryPoll at a time.
func (o *Orchestrator) waitUntil(ctx context.Context, next time.Time) error {
	d := min(next.Sub(o.now()), o.retryPoll)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (o *Orchestrator) complete(ctx context.Context, sessionID string, logger *slog.Logger) error {
	if _, err := o.store.TransitionSession(ctx, sessionID, model.SessionCompleted, o.now()); err != nil {
		if errors.Is(err, database.ErrInvalidTransition) {
			return nil
		}
		return err
	}
	session, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	minutes := session.Duration(o.now()).Minutes()
	logger.Info("crawl completed",
		"total_urls_discovered", session.URLsDiscovered,
		"total_urls_processed", session.URLsProcessed,
		"total_files_found", session.FilesFound,
		"total_errors", session.Errors,
		"duration_minutes", math.Round(minutes*100)/100,
	)
	return nil
}

func (o *Orchestrator) pauseInterrupted(ctx context.Context, sessionID string, logger *slog.Logger) {
	if _, err := o.store.TransitionSession(ctx, sessionID, model.SessionPaused, o.now()); err != nil {
		if !errors.Is(err, database.ErrInvalidTransition) {
			logger.Warn("failed to pause interrupted crawl", "error", err)
		}
		return
	}
	logger.Info("crawl paused")
}

func (o *Orchestrator) fail(ctx context.Context, sessionID string, logger *slog.Logger, cause error) {
	if _, err := o.store.TransitionSession(ctx, sessionID, model.SessionFailed, o.now()); err != nil {
		logger.Warn("failed to mark crawl as failed", "error", err)
	}
	logger.Error("crawl failed", "error", cause)
}

// Pause stops scheduling of a running session. A Run in progress notices
// it at its next cycle.
func (o *Orchestrator) Pause(ctx context.Context, sessionID string) error {
	if _, err := o.store.TransitionSession(ctx, sessionID, model.SessionPaused, o.now()); err != nil {
		return err
	}
	o.logger.Info("crawl paused", log.SessionKey, sessionID)
	return nil
}

// Cancel stops a session for good and skips its outstanding items.
func (o *Orchestrator) Cancel(ctx context.Context, sessionID string) error {
	if _, err := o.store.TransitionSession(ctx, sessionID, model.SessionCancelled, o.now()); err != nil {
		return err
	}
	skipped, err := o.store.SkipPendingItems(ctx, sessionID, CancelMessage)
	if err != nil {
		return err
	}
	o.logger.Warn(CancelMessage, log.SessionKey, sessionID, "skipped_items", skipped)
	return nil
}

// Delete removes a session with its queue, results, logs and files.
func (o *Orchestrator) Delete(ctx context.Context, sessionID string) error {
	if _, err := o.store.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	return o.blobs.RemoveSession(sessionID)
}

// DeleteResult removes one result and its stored file.
func (o *Orchestrator) DeleteResult(ctx context.Context, resultID int64) error {
	path, err := o.store.DeleteResult(ctx, resultID)
	if err != nil {
		return err
	}
	return o.blobs.Remove(path)
}
