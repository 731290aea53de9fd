package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nao1215/fisgon/internal/crawler"
	"github.com/nao1215/fisgon/internal/extract"
	"github.com/nao1215/fisgon/internal/log"
	"github.com/nao1215/fisgon/internal/model"
	"github.com/nao1215/fisgon/internal/ratelimit"
	"github.com/nao1215/fisgon/internal/robots"
	"github.com/nao1215/fisgon/internal/storage"
	"github.com/nao1215/fisgon/internal/urlutil"
)

// Step names as they appear in logs.
const (
	StepFetch    = "fetch"
	StepLinks    = "links"
	StepStore    = "store"
	StepExtract  = "extract"
	StepFinalize = "finalize"
)

// ReasonRobots is recorded on items that robots.txt disallows.
const ReasonRobots = "Disallowed by robots.txt"

// QueueWriter persists the state of a queue item. database.Store
// implements it.
type QueueWriter interface {
	UpdateQueueItem(ctx context.Context, item *model.URLQueueItem) error
}

// Retrier records a network failure and schedules the next attempt.
// frontier.Frontier implements it.
type Retrier interface {
	ScheduleRetry(ctx context.Context, item *model.URLQueueItem, maxRetries int, message string) (*time.Time, error)
}

// LinkQueue queues the links found on a page. frontier.Frontier
// implements it.
type LinkQueue interface {
	EnqueueLinks(ctx context.Context, parent *model.URLQueueItem, links []string, settings model.SessionSettings) (int, error)
}

// ResultWriter persists stored files. database.Store implements it.
type ResultWriter interface {
	InsertResult(ctx context.Context, result *model.CrawlResult) error
	UpdateResultMetadata(ctx context.Context, result *model.CrawlResult, extractedAt time.Time) error
	ResultForQueueItem(ctx context.Context, queueItemID int64) (*model.CrawlResult, error)
	DeleteResult(ctx context.Context, id int64) (string, error)
}

// =============================================================================
// FetchStep
// =============================================================================

// FetchStep downloads the URL of a task. Failures are settled here: HTTP
// errors fail the item for good, network errors go through the Retrier
// and oversized bodies skip the item.
type FetchStep struct {
	fetcher *crawler.Fetcher
	retrier Retrier
	queue   QueueWriter
	limiter *ratelimit.Limiter
	policy  *robots.Policy
	logger  *slog.Logger
	now     func() time.Time
}

// FetchStepOption configures a FetchStep.
type FetchStepOption func(*FetchStep)

// WithFetchLimiter gates every request on limiter.
func WithFetchLimiter(limiter *ratelimit.Limiter) FetchStepOption {
	return func(s *FetchStep) {
		s.limiter = limiter
	}
}

// WithFetchPolicy checks every URL against a robots.txt policy when the
// session respects robots.txt.
func WithFetchPolicy(policy *robots.Policy) FetchStepOption {
	return func(s *FetchStep) {
		s.policy = policy
	}
}

// WithFetchLogger sets the logger of the step.
func WithFetchLogger(logger *slog.Logger) FetchStepOption {
	return func(s *FetchStep) {
		s.logger = logger
	}
}

// WithFetchClock sets the clock used for processed_at.
func WithFetchClock(now func() time.Time) FetchStepOption {
	return func(s *FetchStep) {
		s.now = now
	}
}

// NewFetchStep creates a fetch step.
func NewFetchStep(fetcher *crawler.Fetcher, retrier Retrier, queue QueueWriter, opts ...FetchStepOption) *FetchStep {
	s := &FetchStep{
		fetcher: fetcher,
		retrier: retrier,
		queue:   queue,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *FetchStep) Name() string {
	return StepFetch
}

// Do fetches the item's URL and records the response on the item.
func (s *FetchStep) Do(ctx context.Context, task *Task) error {
	item := task.Item
	settings := task.Session.Settings

	if settings.RespectRobotsTxt && s.policy != nil && !s.policy.CanFetch(item.URL) {
		s.logger.Debug("disallowed by robots.txt", "url", item.URL)
		return s.settle(ctx, task, model.QueueSkipped, ReasonRobots)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	out := s.fetcher.Fetch(ctx, item.URL, settings.MaxFileSize, settings.FollowRedirects)
	if out.IsCanceled(ctx) {
		return ctx.Err()
	}
	task.Outcome = out
	item.HTTPStatus = out.StatusCode
	item.ResponseTime = out.ResponseTime
	item.ContentType = out.ContentType
	item.FileSize = out.Size

	switch out.Kind {
	case crawler.OutcomeSuccess:
		item.FileType = urlutil.Classify(item.URL, out.ContentType)
		return nil

	case crawler.OutcomeSkipped:
		return s.settle(ctx, task, model.QueueSkipped, out.Reason)

	case crawler.OutcomeHTTPFailure:
		task.Delta.Errors++
		s.logger.Debug("fetch failed", "url", item.URL, "status", out.StatusCode, "reason", out.Reason)
		return s.settle(ctx, task, model.QueueFailed, out.Reason)

	default:
		task.Delta.Errors++
		task.Finish()
		next, err := s.retrier.ScheduleRetry(ctx, item, settings.MaxRetries, out.Reason)
		if err != nil {
			return err
		}
		if next != nil {
			s.logger.Warn("fetch failed, retry scheduled",
				log.SessionKey, item.SessionID,
				"url", item.URL,
				"retry_count", item.RetryCount,
				"next_attempt_at", *next,
				"error", out.Reason,
			)
		} else {
			s.logger.Warn("fetch failed, retries exhausted",
				log.SessionKey, item.SessionID,
				"url", item.URL,
				"retry_count", item.RetryCount,
				"error", out.Reason,
			)
		}
		return nil
	}
}

// settle writes a final status and stops the task.
func (s *FetchStep) settle(ctx context.Context, task *Task, status model.QueueStatus, reason string) error {
	now := s.now()
	task.Item.Status = status
	task.Item.ErrorMessage = reason
	task.Item.ProcessedAt = &now
	task.Finish()
	return s.queue.UpdateQueueItem(ctx, task.Item)
}

// =============================================================================
// LinkStep
// =============================================================================

// LinkStep queues the links of HTML pages that are above the depth limit.
type LinkStep struct {
	queue    LinkQueue
	linkOpts []crawler.LinkOption
	logger   *slog.Logger
}

// LinkStepOption configures a LinkStep.
type LinkStepOption func(*LinkStep)

// WithLinkPatterns sets the path globs that are ignored or, when follow is
// not empty, required.
func WithLinkPatterns(ignore, follow []string) LinkStepOption {
	return func(s *LinkStep) {
		if len(ignore) > 0 {
			s.linkOpts = append(s.linkOpts, crawler.WithIgnorePatterns(ignore))
		}
		if len(follow) > 0 {
			s.linkOpts = append(s.linkOpts, crawler.WithFollowPatterns(follow))
		}
	}
}

// WithLinkLogger sets the logger of the step.
func WithLinkLogger(logger *slog.Logger) LinkStepOption {
	return func(s *LinkStep) {
		s.logger = logger
	}
}

// NewLinkStep creates a link step that queues into queue.
func NewLinkStep(queue LinkQueue, opts ...LinkStepOption) *LinkStep {
	s := &LinkStep{
		queue:  queue,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *LinkStep) Name() string {
	return StepLinks
}

// Do extracts and queues the links of the fetched page.
func (s *LinkStep) Do(ctx context.Context, task *Task) error {
	item := task.Item
	out := task.Outcome
	if out == nil || item.Depth >= task.Session.Settings.MaxDepth {
		return nil
	}
	if item.FileType != model.FileTypeHTML {
		return nil
	}

	extractor := crawler.NewLinkExtractor(task.Session.TargetDomain, s.linkOpts...)
	links := extractor.Extract(out.Body, out.ContentType, out.FinalURL)

	added, err := s.queue.EnqueueLinks(ctx, item, links, task.Session.Settings)
	task.Delta.Discovered += added
	if err != nil {
		return fmt.Errorf("failed to queue links of %s: %w", item.URL, err)
	}
	if added > 0 {
		s.logger.Info("discovered new URLs",
			log.SessionKey, item.SessionID,
			"parent_url", item.URL,
			"parent_depth", item.Depth,
			"urls_added", added,
		)
	}
	return nil
}

// =============================================================================
// StoreStep
// =============================================================================

// StoreStep saves the body of allowed file types and records a result.
type StoreStep struct {
	blobs   *storage.Store
	results ResultWriter
	logger  *slog.Logger
	now     func() time.Time
}

// StoreStepOption configures a StoreStep.
type StoreStepOption func(*StoreStep)

// WithStoreLogger sets the logger of the step.
func WithStoreLogger(logger *slog.Logger) StoreStepOption {
	return func(s *StoreStep) {
		s.logger = logger
	}
}

// WithStoreClock sets the clock used for created_at.
func WithStoreClock(now func() time.Time) StoreStepOption {
	return func(s *StoreStep) {
		s.now = now
	}
}

// NewStoreStep creates a store step.
func NewStoreStep(blobs *storage.Store, results ResultWriter, opts ...StoreStepOption) *StoreStep {
	s := &StoreStep{
		blobs:   blobs,
		results: results,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *StoreStep) Name() string {
	return StepStore
}

// Do stores the body when the file type is allowed by the session.
func (s *StoreStep) Do(ctx context.Context, task *Task) error {
	item := task.Item
	if task.Outcome == nil || !task.Session.Settings.IsAllowed(item.FileType) {
		return nil
	}

	// An interrupted run may have stored this item already.
	prev, err := s.results.ResultForQueueItem(ctx, item.ID)
	if err != nil {
		return err
	}
	if prev != nil {
		if _, err := s.results.DeleteResult(ctx, prev.ID); err != nil {
			return err
		}
	}

	blob, err := s.blobs.Save(item.SessionID, urlutil.BaseName(item.URL), task.Outcome.Body)
	if err != nil {
		return err
	}

	result := &model.CrawlResult{
		SessionID:   item.SessionID,
		QueueItemID: item.ID,
		URL:         item.URL,
		FileType:    item.FileType,
		FileName:    blob.Name,
		FilePath:    blob.Path,
		FileHash:    blob.Hash,
		FileSize:    blob.Size,
		ContentType: item.ContentType,
		CreatedAt:   s.now(),
	}
	if err := s.results.InsertResult(ctx, result); err != nil {
		return err
	}
	task.Result = result
	if prev == nil {
		task.Delta.FilesFound++
	}

	s.logger.Debug("file stored", "url", item.URL, "path", blob.Path, "size", blob.Size)
	return nil
}

// =============================================================================
// ExtractStep
// =============================================================================

// ExtractStep runs the metadata engine over a stored file.
type ExtractStep struct {
	engine  *extract.Engine
	blobs   *storage.Store
	results ResultWriter
	logger  *slog.Logger
	now     func() time.Time
}

// ExtractStepOption configures an ExtractStep.
type ExtractStepOption func(*ExtractStep)

// WithExtractLogger sets the logger of the step.
func WithExtractLogger(logger *slog.Logger) ExtractStepOption {
	return func(s *ExtractStep) {
		s.logger = logger
	}
}

// WithExtractClock sets the clock used for metadata_extracted_at.
func WithExtractClock(now func() time.Time) ExtractStepOption {
	return func(s *ExtractStep) {
		s.now = now
	}
}

// NewExtractStep creates an extract step.
func NewExtractStep(engine *extract.Engine, blobs *storage.Store, results ResultWriter, opts ...ExtractStepOption) *ExtractStep {
	s := &ExtractStep{
		engine:  engine,
		blobs:   blobs,
		results: results,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *ExtractStep) Name() string {
	return StepExtract
}

// Do extracts metadata of the stored file. Content problems end up in
// the metadata, so only persistence and cancellation are errors here.
func (s *ExtractStep) Do(ctx context.Context, task *Task) error {
	result := task.Result
	if result == nil || !task.Session.Settings.ExtractMetadata {
		return nil
	}
	item := task.Item

	file := &extract.File{
		Path:        s.blobs.LocalPath(result.FilePath),
		URL:         item.URL,
		Referrer:    item.ParentURL,
		Type:        item.FileType,
		ContentType: item.ContentType,
		Data:        task.Outcome.Body,
	}
	if created, modified, err := s.blobs.FileTimes(result.FilePath); err == nil {
		file.CreatedAt = created
		file.ModifiedAt = modified
	}

	md := s.engine.Extract(ctx, file)
	if err := ctx.Err(); err != nil {
		return err
	}

	result.Metadata = md
	result.Title, result.Description, result.Keywords = summarize(md)

	now := s.now()
	if err := s.results.UpdateResultMetadata(ctx, result, now); err != nil {
		return err
	}
	task.Metadata = md
	item.HasMetadata = true
	item.MetadataExtractedAt = &now
	return nil
}

// summarize picks the title, description and keywords of a file from its
// metadata.
func summarize(md model.Metadata) (title, description, keywords string) {
	for _, section := range []string{model.CategoryHTML, model.CategoryPDF, model.CategoryOffice, model.CategoryOpenOffice, model.CategoryMedia} {
		if title == "" {
			title = md.SectionString(section, "title")
		}
		if description == "" {
			description = firstNonEmpty(
				md.SectionString(section, "meta_description"),
				md.SectionString(section, "description"),
				md.SectionString(section, "subject"),
			)
		}
		if keywords == "" {
			keywords = firstNonEmpty(
				md.SectionString(section, "meta_keywords"),
				md.SectionString(section, "keywords"),
			)
		}
	}
	return strings.TrimSpace(title), strings.TrimSpace(description), strings.TrimSpace(keywords)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// =============================================================================
// FinalizeStep
// =============================================================================

// FinalizeStep marks the item completed and counts it as processed.
type FinalizeStep struct {
	queue QueueWriter
	now   func() time.Time
}

// NewFinalizeStep creates a finalize step.
func NewFinalizeStep(queue QueueWriter, now func() time.Time) *FinalizeStep {
	if now == nil {
		now = time.Now
	}
	return &FinalizeStep{queue: queue, now: now}
}

// Name returns the step name.
func (s *FinalizeStep) Name() string {
	return StepFinalize
}

// Do persists the completed item.
func (s *FinalizeStep) Do(ctx context.Context, task *Task) error {
	now := s.now()
	item := task.Item
	item.Status = model.QueueCompleted
	item.ErrorMessage = ""
	item.NextAttemptAt = nil
	item.ProcessedAt = &now
	if err := s.queue.UpdateQueueItem(ctx, item); err != nil {
		return err
	}
	task.Delta.Processed++
	task.Finish()
	return nil
}
