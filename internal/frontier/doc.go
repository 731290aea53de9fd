// Package frontier schedules the URLs of a crawl session.
//
// The database is the source of truth: every queue item lives in the
// url_queue table and (session, url) is unique there. A bloom filter in
// front of it skips the existence query for URLs that were certainly never
// seen, which is the common case while links are being discovered.
//
// Items are handed out in batches ordered by priority, then discovery
// time. Lower priority values are fetched sooner:
//
//	1  seed URL
//	2  file type the session stores
//	3  anything else
//	4  HTML pages
//
// Network failures are retried by scheduling the item again after
// RetryDelay. A retry is a row with status failed and a next_attempt_at in
// the future, so pending work survives a restart.
package frontier
