// Package log provides the slog handlers used by fisgon.
//
// SecureHandler masks sensitive attributes before they are written:
//   - HTTP headers configured per site (Cookie, Authorization, X-Api-Key)
//   - values that look like credentials (JWT, bearer and basic tokens,
//     AWS keys, private key blocks)
//   - passwords embedded in URLs, which are replaced while the rest of the
//     URL is kept
//
// SessionHandler turns records that carry a "session_id" attribute into
// CrawlLog rows through a Sink, so the orchestrator only logs through slog
// and the session log stream is persisted as a side effect:
//
//	handler := log.NewSessionHandler(log.NewSecureHandler(text), store)
//	logger := slog.New(handler).With(log.SessionKey, session.ID)
//	logger.Info("crawl started", "target_url", session.TargetURL)
//
// NewSecureLogger and NewSecureJSONLogger build the console loggers of
// the CLI; verbose selects the Debug level, otherwise only warnings and
// errors are shown.
package log
