package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/fisgon/internal/log"
	"github.com/nao1215/fisgon/internal/model"
)

// DefaultConcurrency is the number of URLs processed at once.
const DefaultConcurrency = 4

// Claimer moves a due queue item to processing. database.Store
// implements it.
type Claimer interface {
	ClaimQueueItem(ctx context.Context, id int64, now time.Time) (bool, error)
	UpdateQueueItem(ctx context.Context, item *model.URLQueueItem) error
}

// BatchProcessor runs the pipeline over a batch of queue items with a
// bounded number of workers.
type BatchProcessor struct {
	pipeline    *Pipeline
	queue       Claimer
	concurrency int
	logger      *slog.Logger
	now         func() time.Time
	onTask      func(*Task)
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent tasks.
// Default is DefaultConcurrency if not specified.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithBatchClock sets the clock used to claim items.
func WithBatchClock(now func() time.Time) BatchOption {
	return func(b *BatchProcessor) {
		b.now = now
	}
}

// WithTaskCallback registers fn to be called after each task, from the
// worker goroutine that ran it.
func WithTaskCallback(fn func(*Task)) BatchOption {
	return func(b *BatchProcessor) {
		b.onTask = fn
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(p *Pipeline, queue Claimer, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipeline:    p,
		queue:       queue,
		concurrency: DefaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(bp)
	}
	if bp.logger == nil {
		bp.logger = slog.Default()
	}
	return bp
}

// Process claims and runs every item of the batch. Items another worker
// claimed first are left out of the returned tasks. Per-URL failures are
// recorded on the items and never returned; the error is only set when
// ctx ended before the batch was done.
func (bp *BatchProcessor) Process(ctx context.Context, session *model.CrawlSession, items []*model.URLQueueItem) ([]*Task, error) {
	tasks := make([]*Task, len(items))

	var g errgroup.Group
	g.SetLimit(bp.concurrency)

	for i, item := range items {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			claimed, err := bp.queue.ClaimQueueItem(ctx, item.ID, bp.now())
			if err != nil {
				bp.logger.Warn("failed to claim queue item", "url", item.URL, "error", err)
				return nil
			}
			if !claimed {
				return nil
			}
			item.Status = model.QueueProcessing
			item.NextAttemptAt = nil

			task := NewTask(session, item)
			if err := bp.pipeline.Execute(ctx, task); err != nil {
				bp.fail(ctx, task, err)
			}
			tasks[i] = task
			if bp.onTask != nil {
				bp.onTask(task)
			}
			return nil
		})
	}
	_ = g.Wait()

	done := make([]*Task, 0, len(tasks))
	for _, t := range tasks {
		if t != nil {
			done = append(done, t)
		}
	}
	return done, ctx.Err()
}

// fail records an unexpected step error on the item. Cancellation leaves
// the item in processing so that a resumed run picks it up again.
func (bp *BatchProcessor) fail(ctx context.Context, task *Task, err error) {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return
	}

	item := task.Item
	now := bp.now()
	item.Status = model.QueueFailed
	item.ErrorMessage = err.Error()
	item.NextAttemptAt = nil
	item.ProcessedAt = &now
	task.Delta.Errors++
	task.Finish()

	bp.logger.Error("failed to process URL",
		log.SessionKey, item.SessionID,
		"url", item.URL,
		"error", err,
	)
	if uerr := bp.queue.UpdateQueueItem(context.WithoutCancel(ctx), item); uerr != nil {
		bp.logger.Warn("failed to record URL failure", "url", item.URL, "error", uerr)
	}
}
