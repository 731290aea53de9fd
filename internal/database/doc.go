// Package database provides SQLite-based storage for fisgon.
//
// The Store persists four tables:
//   - sessions: crawl sessions with settings, status and counters
//   - url_queue: the frontier of every session, unique per (session, url)
//   - results: stored files and their extracted metadata
//   - logs: append-only session events
//
// Sessions are the aggregate root. Deleting one removes its queue items,
// results and logs in a single transaction. Counters are only changed
// with relative SQL increments so concurrent workers never lose updates.
//
// SQLite is used through modernc.org/sqlite, a CGO-free driver, so the
// binary cross-compiles and the database is a single file.
package database
