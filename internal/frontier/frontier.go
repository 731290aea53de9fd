package frontier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/nao1215/fisgon/internal/model"
	"github.com/nao1215/fisgon/internal/urlutil"
)

const (
	// DefaultBatchSize is the number of items handed out per scheduling cycle.
	DefaultBatchSize = 10

	// RetryInterval is multiplied by the retry count to get the retry delay.
	RetryInterval = 60 * time.Second

	// defaultExpectedURLs sizes the bloom filter.
	defaultExpectedURLs = 100_000

	// bloomFalsePositiveRate is the target false positive rate of the filter.
	bloomFalsePositiveRate = 0.01
)

// Repository is the persistence the frontier needs.
// database.Store implements it.
type Repository interface {
	InsertQueueItem(ctx context.Context, item *model.URLQueueItem) (bool, error)
	QueueItemExists(ctx context.Context, sessionID, url string) (bool, error)
	ListQueueItems(ctx context.Context, sessionID string) ([]*model.URLQueueItem, error)
	PendingQueueItems(ctx context.Context, sessionID string, now time.Time, limit int) ([]*model.URLQueueItem, error)
	ScheduleRetry(ctx context.Context, id int64, retryCount int, next *time.Time, message string) error
	CountQueueItems(ctx context.Context, sessionID string, statuses ...model.QueueStatus) (int, error)
	NextRetryAt(ctx context.Context, sessionID string) (*time.Time, error)
}

// Frontier is the URL queue of one session.
type Frontier struct {
	repo      Repository
	sessionID string
	batchSize int
	now       func() time.Time

	mu   sync.Mutex
	seen *bloom.BloomFilter
}

// Option configures a Frontier.
type Option func(*Frontier)

// WithBatchSize overrides DefaultBatchSize.
func WithBatchSize(n int) Option {
	return func(f *Frontier) {
		if n > 0 {
			f.batchSize = n
		}
	}
}

// WithClock sets the time source used for discovery and retry times.
func WithClock(now func() time.Time) Option {
	return func(f *Frontier) {
		if now != nil {
			f.now = now
		}
	}
}

// WithExpectedURLs sizes the bloom filter for n URLs.
func WithExpectedURLs(n uint) Option {
	return func(f *Frontier) {
		if n > 0 {
			f.seen = bloom.NewWithEstimates(n, bloomFalsePositiveRate)
		}
	}
}

// New returns the frontier of sessionID.
func New(repo Repository, sessionID string, opts ...Option) *Frontier {
	f := &Frontier{
		repo:      repo,
		sessionID: sessionID,
		batchSize: DefaultBatchSize,
		now:       time.Now,
		seen:      bloom.NewWithEstimates(defaultExpectedURLs, bloomFalsePositiveRate),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Warm loads the URLs already queued for the session into the filter.
// It is called when a paused session is resumed.
func (f *Frontier) Warm(ctx context.Context) error {
	items, err := f.repo.ListQueueItems(ctx, f.sessionID)
	if err != nil {
		return fmt.Errorf("failed to load queue: %w", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range items {
		f.seen.AddString(item.URL)
	}
	return nil
}

// Enqueue adds item to the session's queue unless its URL is already
// there. It reports whether a new row was created.
func (f *Frontier) Enqueue(ctx context.Context, item *model.URLQueueItem) (bool, error) {
	item.SessionID = f.sessionID
	item.Status = model.QueuePending
	if item.DiscoveredAt.IsZero() {
		item.DiscoveredAt = f.now()
	}

	f.mu.Lock()
	maybeSeen := f.seen.TestString(item.URL)
	f.mu.Unlock()

	if maybeSeen {
		exists, err := f.repo.QueueItemExists(ctx, f.sessionID, item.URL)
		if err != nil {
			return false, err
		}
		if exists {
			return false, nil
		}
	}

	inserted, err := f.repo.InsertQueueItem(ctx, item)
	if err != nil {
		return false, err
	}

	f.mu.Lock()
	f.seen.AddString(item.URL)
	f.mu.Unlock()
	return inserted, nil
}

// Seed enqueues the start URL of a crawl at depth 0 with the highest priority.
func (f *Frontier) Seed(ctx context.Context, rawURL string) (bool, error) {
	return f.Enqueue(ctx, &model.URLQueueItem{
		URL:      rawURL,
		Depth:    0,
		FileType: urlutil.Classify(rawURL, ""),
		Priority: model.PrioritySeed,
	})
}

// EnqueueLinks queues the URLs found on parent one level deeper and
// returns how many were new.
func (f *Frontier) EnqueueLinks(ctx context.Context, parent *model.URLQueueItem, links []string, settings model.SessionSettings) (int, error) {
	added := 0
	for _, link := range links {
		fileType := urlutil.Classify(link, "")
		inserted, err := f.Enqueue(ctx, &model.URLQueueItem{
			URL:       link,
			ParentURL: parent.URL,
			Depth:     parent.Depth + 1,
			FileType:  fileType,
			Priority:  Priority(fileType, settings.IsAllowed(fileType)),
		})
		if err != nil {
			return added, err
		}
		if inserted {
			added++
		}
	}
	return added, nil
}

// NextBatch returns the next items to process. Nothing is returned once
// maxPages is positive and processed has reached it; otherwise the batch
// never exceeds the remaining page budget.
func (f *Frontier) NextBatch(ctx context.Context, processed, maxPages int) ([]*model.URLQueueItem, error) {
	limit := f.batchSize
	if maxPages > 0 {
		remaining := maxPages - processed
		if remaining <= 0 {
			return nil, nil
		}
		limit = min(limit, remaining)
	}
	items, err := f.repo.PendingQueueItems(ctx, f.sessionID, f.now(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending items: %w", err)
	}
	return items, nil
}

// ScheduleRetry records a network failure of item. While the new retry
// count stays within maxRetries the item is scheduled again after
// RetryDelay; otherwise it stays failed. The returned time is nil when no
// retry was scheduled.
func (f *Frontier) ScheduleRetry(ctx context.Context, item *model.URLQueueItem, maxRetries int, message string) (*time.Time, error) {
	item.RetryCount++
	item.Status = model.QueueFailed
	item.ErrorMessage = message
	item.NextAttemptAt = nil
	if item.RetryCount <= maxRetries {
		next := f.now().Add(RetryDelay(item.RetryCount))
		item.NextAttemptAt = &next
	}
	if err := f.repo.ScheduleRetry(ctx, item.ID, item.RetryCount, item.NextAttemptAt, message); err != nil {
		return nil, err
	}
	return item.NextAttemptAt, nil
}

// Pending returns the number of items waiting to be fetched now.
func (f *Frontier) Pending(ctx context.Context) (int, error) {
	return f.repo.CountQueueItems(ctx, f.sessionID, model.QueuePending)
}

// NextRetryAt returns when the earliest scheduled retry is due, or nil.
func (f *Frontier) NextRetryAt(ctx context.Context) (*time.Time, error) {
	return f.repo.NextRetryAt(ctx, f.sessionID)
}

// Priority returns the queue priority of a discovered URL.
func Priority(fileType model.FileType, allowed bool) int {
	switch {
	case allowed:
		return model.PriorityAllowed
	case fileType == model.FileTypeHTML:
		return model.PriorityHTML
	default:
		return model.PriorityDefault
	}
}

// RetryDelay returns how long to wait before retry number retryCount.
func RetryDelay(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	return time.Duration(retryCount) * RetryInterval
}
