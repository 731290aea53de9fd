package database

import "errors"

var (
	// ErrSessionNotFound is returned when a session ID does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrQueueItemNotFound is returned when a queue item ID does not exist.
	ErrQueueItemNotFound = errors.New("queue item not found")

	// ErrResultNotFound is returned when a result ID does not exist.
	ErrResultNotFound = errors.New("result not found")

	// ErrInvalidTransition is returned when a status change is not allowed
	// from the session's current status.
	ErrInvalidTransition = errors.New("invalid session status transition")
)
