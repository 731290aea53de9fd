package extract

import "errors"

var (
	// ErrNoContent is returned by Content for variants that have no
	// full-text rendition.
	ErrNoContent = errors.New("content extraction not supported for this file type")

	// ErrCapabilityUnavailable is returned when the parser a variant needs
	// was not injected.
	ErrCapabilityUnavailable = errors.New("parser capability unavailable")

	// ErrTimeout is recorded when a file exceeds the extraction timeout.
	ErrTimeout = errors.New("extraction timed out")

	// ErrMalformed is returned when a parser rejects or panics on a file.
	ErrMalformed = errors.New("malformed file")
)
