// Package ratelimit throttles outbound requests of a crawl session.
//
// A Limiter enforces a minimum interval of 1/rate between permitted
// requests. Fetches may still overlap in flight; only their issuance is
// spaced out. Limiters are safe for concurrent use.
package ratelimit
