// Package model defines the core data structures used throughout fisgon.
//
// This package contains the following main types:
//   - CrawlSession: the aggregate root of a crawl, with its settings and counters
//   - URLQueueItem: one entry of a session's frontier
//   - CrawlResult: a stored file and the metadata extracted from it
//   - CrawlLog: an append-only session event
//   - ExportRecord: the stable export view over a queue item and its result
//
// Models live in their own package so that the crawler, extraction, analysis,
// database and report packages can share them without import cycles.
package model
