package pipeline

import "errors"

var (
	// ErrInvalidTarget is returned when the start URL of a crawl is not an
	// absolute http(s) URL.
	ErrInvalidTarget = errors.New("invalid target URL")

	// ErrSessionNotRunnable is returned by Run for sessions that already
	// reached a terminal status.
	ErrSessionNotRunnable = errors.New("session cannot be run")
)
