package pipeline

import (
	"context"
	"log/slog"

	"github.com/nao1215/fisgon/internal/crawler"
	"github.com/nao1215/fisgon/internal/database"
	"github.com/nao1215/fisgon/internal/model"
)

// Task is the unit of work of one queue item. Steps read and fill it in
// order: the fetch step sets Outcome, the store step sets Result and the
// extract step sets Metadata.
type Task struct {
	// Session is the snapshot of the session taken when the batch started.
	Session *model.CrawlSession

	// Item is the claimed queue item. Steps update it in place and the
	// finalize step persists it.
	Item *model.URLQueueItem

	Outcome  *crawler.Outcome
	Result   *model.CrawlResult
	Metadata model.Metadata

	// Delta is the counter change caused by this task. The orchestrator
	// applies the sum of a batch in a single update.
	Delta database.CounterDelta

	// done stops the remaining steps once the item has reached its final
	// state early, e.g. a failed fetch.
	done bool
}

// NewTask returns the task of item within session.
func NewTask(session *model.CrawlSession, item *model.URLQueueItem) *Task {
	return &Task{Session: session, Item: item}
}

// Finish marks the task as settled; later steps are not run.
func (t *Task) Finish() {
	t.done = true
}

// Finished reports whether Finish was called.
func (t *Task) Finished() bool {
	return t.done
}

// Step is one stage of the per-URL processing.
type Step interface {
	// Do runs the step. An error aborts the remaining steps and marks the
	// item as failed; expected outcomes such as an HTTP 404 are recorded on
	// the task instead.
	Do(ctx context.Context, task *Task) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline runs its steps in sequence over a task.
type Pipeline struct {
	steps  []Step
	logger *slog.Logger
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// New creates a new Pipeline with the given options.
// Steps should be added using AddStep after creation.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends a step to the pipeline.
// Steps are executed in the order they are added.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs the steps over task until one fails, the task is finished
// or ctx is cancelled.
func (p *Pipeline) Execute(ctx context.Context, task *Task) error {
	for _, step := range p.steps {
		if task.Finished() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			p.logger.Debug("pipeline cancelled", "step", step.Name(), "url", task.Item.URL)
			return err
		}

		if err := step.Do(ctx, task); err != nil {
			p.logger.Debug("step failed", "step", step.Name(), "url", task.Item.URL, "error", err)
			return err
		}
	}
	return nil
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
