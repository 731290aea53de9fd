// Package pipeline runs crawl sessions.
//
// Every queue item goes through the same typed steps over a Task:
//
//	fetch -> links -> store -> extract -> finalize
//
// The fetch step settles failed, skipped and retried items on its own and
// finishes the task early; the remaining steps only run for successful
// responses. The link step queues the links of HTML pages below the
// session's max depth, the store step saves allowed file types and the
// extract step fills in their metadata.
//
// A BatchProcessor claims the items of one scheduling cycle and runs them
// with an errgroup worker pool. Failures of a single URL are written to its
// queue item and never stop the batch.
//
// The Orchestrator owns the session state machine. Run re-reads the
// session status at the top of every cycle, so a pause or cancel issued
// from another process takes effect after the batch in flight. Counter
// changes of a batch are applied with one relative update.
package pipeline
