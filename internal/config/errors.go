package config

import (
	"errors"
	"fmt"
)

// Validation errors returned by Config.Validate and ValidateSettings.
var (
	ErrInvalidTimeout     = errors.New("invalid timeout: must be positive")
	ErrInvalidWorkers     = fmt.Errorf("invalid workers: must be between 1 and %d", MaxWorkers)
	ErrInvalidBatchSize   = errors.New("invalid batch size: must be positive")
	ErrConflictingEgress  = errors.New("conflicting egress options: --proxy and --tor cannot be used together")
	ErrInvalidDepth       = fmt.Errorf("invalid max depth: must be between %d and %d", MinDepth, MaxDepth)
	ErrInvalidRateLimit   = fmt.Errorf("invalid rate limit: must be 0 or between %.1f and %.0f requests per second", MinRateLimit, MaxRateLimit)
	ErrInvalidMaxPages    = errors.New("invalid max pages: must be non-negative")
	ErrInvalidMaxFileSize = fmt.Errorf("invalid max file size: must be between %d and %d bytes", MinFileSize, MaxFileSize)
	ErrInvalidMaxRetries  = fmt.Errorf("invalid max retries: must be between 0 and %d", MaxRetriesCap)
	ErrNoFileTypes        = errors.New("no allowed file types")
	ErrUnknownFileType    = errors.New("unknown file type")
)

// UnknownFileTypeError names the rejected file type.
type UnknownFileTypeError struct {
	Type string
}

func (e *UnknownFileTypeError) Error() string {
	return fmt.Sprintf("%s: %q", ErrUnknownFileType, e.Type)
}

// Unwrap allows errors.Is(err, ErrUnknownFileType).
func (e *UnknownFileTypeError) Unwrap() error {
	return ErrUnknownFileType
}
