package urlutil

import "errors"

var (
	// ErrInvalidURL is returned when a URL cannot be parsed.
	ErrInvalidURL = errors.New("invalid URL")

	// ErrNotAbsolute is returned when a URL has no scheme or host after resolution.
	ErrNotAbsolute = errors.New("URL is not absolute")

	// ErrEmptyHost is returned when a registrable domain is requested for an empty host.
	ErrEmptyHost = errors.New("empty host")
)
