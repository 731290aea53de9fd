package model

import "time"

// QueueStatus is the processing state of a URLQueueItem.
type QueueStatus string

const (
	QueuePending    QueueStatus = "pending"
	QueueProcessing QueueStatus = "processing"
	QueueCompleted  QueueStatus = "completed"
	QueueFailed     QueueStatus = "failed"
	QueueSkipped    QueueStatus = "skipped"
)

// Queue priorities. Lower values are fetched sooner.
const (
	PrioritySeed    = 1
	PriorityAllowed = 2
	PriorityDefault = 3
	PriorityHTML    = 4
)

// URLQueueItem is one frontier entry. The (SessionID, URL) pair is unique.
type URLQueueItem struct {
	ID        int64       `json:"id"`
	SessionID string      `json:"session_id"`
	URL       string      `json:"url"`
	ParentURL string      `json:"parent_url,omitempty"`
	Depth     int         `json:"depth"`
	FileType  FileType    `json:"file_type"`
	Status    QueueStatus `json:"status"`
	Priority  int         `json:"priority"`

	// RetryCount is the number of network failures seen so far.
	RetryCount int `json:"retry_count"`

	// NextAttemptAt is set on failed items that are scheduled for a retry.
	// A failed item with a nil NextAttemptAt is permanently failed.
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`

	DiscoveredAt time.Time  `json:"discovered_at"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`

	HTTPStatus   int           `json:"http_status,omitempty"`
	ResponseTime time.Duration `json:"response_time,omitempty"`
	ContentType  string        `json:"content_type,omitempty"`
	FileSize     int64         `json:"file_size,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`

	HasMetadata         bool       `json:"has_metadata"`
	MetadataExtractedAt *time.Time `json:"metadata_extracted_at,omitempty"`
}

// IsRetryScheduled reports whether a failed item will be attempted again.
func (q *URLQueueItem) IsRetryScheduled() bool {
	return q.Status == QueueFailed && q.NextAttemptAt != nil
}
