package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nao1215/fisgon/internal/model"
)

const queueColumns = `id, session_id, url, parent_url, depth, file_type, status, priority,
	retry_count, next_attempt_at, discovered_at, processed_at, http_status, response_time_ms,
	content_type, file_size, error_message, has_metadata, metadata_extracted_at`

// dueCondition selects pending items and failed items whose retry is due.
const dueCondition = `(status = 'pending' OR (status = 'failed' AND next_attempt_at IS NOT NULL AND next_attempt_at <= ?))`

func scanQueueItem(row rowScanner) (*model.URLQueueItem, error) {
	var (
		item                model.URLQueueItem
		fileType            string
		status              string
		nextAttemptAt       sql.NullString
		discoveredAt        string
		processedAt         sql.NullString
		responseTimeMS      int64
		hasMetadata         int
		metadataExtractedAt sql.NullString
	)
	err := row.Scan(
		&item.ID,
		&item.SessionID,
		&item.URL,
		&item.ParentURL,
		&item.Depth,
		&fileType,
		&status,
		&item.Priority,
		&item.RetryCount,
		&nextAttemptAt,
		&discoveredAt,
		&processedAt,
		&item.HTTPStatus,
		&responseTimeMS,
		&item.ContentType,
		&item.FileSize,
		&item.ErrorMessage,
		&hasMetadata,
		&metadataExtractedAt,
	)
	if err != nil {
		return nil, err
	}
	item.FileType = model.FileType(fileType)
	item.Status = model.QueueStatus(status)
	item.NextAttemptAt = parseNullTime(nextAttemptAt)
	item.DiscoveredAt = parseTimestamp(discoveredAt)
	item.ProcessedAt = parseNullTime(processedAt)
	item.ResponseTime = time.Duration(responseTimeMS) * time.Millisecond
	item.HasMetadata = hasMetadata != 0
	item.MetadataExtractedAt = parseNullTime(metadataExtractedAt)
	return &item, nil
}

func (s *Store) queryQueueItems(ctx context.Context, query string, args ...any) ([]*model.URLQueueItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue items: %w", err)
	}
	defer rows.Close()

	var items []*model.URLQueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// InsertQueueItem inserts item unless its (session, url) pair already
// exists. It reports whether a row was inserted; an existing row is left
// untouched, status included. On insert item.ID is set.
func (s *Store) InsertQueueItem(ctx context.Context, item *model.URLQueueItem) (bool, error) {
	if item.Status == "" {
		item.Status = model.QueuePending
	}
	query := `
	INSERT INTO url_queue (session_id, url, parent_url, depth, file_type, status, priority, discovered_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id, url) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query,
		item.SessionID,
		item.URL,
		item.ParentURL,
		item.Depth,
		string(item.FileType),
		string(item.Status),
		item.Priority,
		formatTime(item.DiscoveredAt),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert queue item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	if id, err := res.LastInsertId(); err == nil {
		item.ID = id
	}
	return true, nil
}

// QueueItemExists reports whether url is already in the session's frontier.
func (s *Store) QueueItemExists(ctx context.Context, sessionID, url string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM url_queue WHERE session_id = ? AND url = ?`, sessionID, url).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check queue item: %w", err)
	}
	return true, nil
}

// GetQueueItem returns a queue item or ErrQueueItemNotFound.
func (s *Store) GetQueueItem(ctx context.Context, id int64) (*model.URLQueueItem, error) {
	item, err := scanQueueItem(s.db.QueryRowContext(ctx,
		`SELECT `+queueColumns+` FROM url_queue WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrQueueItemNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get queue item: %w", err)
	}
	return item, nil
}

// PendingQueueItems returns up to limit items that are due at now,
// ordered by priority then discovery.
func (s *Store) PendingQueueItems(ctx context.Context, sessionID string, now time.Time, limit int) ([]*model.URLQueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM url_queue
	WHERE session_id = ? AND ` + dueCondition + `
	ORDER BY priority ASC, discovered_at ASC, id ASC
	LIMIT ?`
	return s.queryQueueItems(ctx, query, sessionID, formatTime(now), limit)
}

// ListQueueItems returns the whole frontier of a session in discovery order.
func (s *Store) ListQueueItems(ctx context.Context, sessionID string) ([]*model.URLQueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM url_queue WHERE session_id = ? ORDER BY discovered_at ASC, id ASC`
	return s.queryQueueItems(ctx, query, sessionID)
}

// ClaimQueueItem moves a due item to processing. It returns false when
// another worker claimed it first or it is no longer due.
func (s *Store) ClaimQueueItem(ctx context.Context, id int64, now time.Time) (bool, error) {
	query := `UPDATE url_queue SET status = 'processing', next_attempt_at = NULL
	WHERE id = ? AND ` + dueCondition
	res, err := s.db.ExecContext(ctx, query, id, formatTime(now))
	if err != nil {
		return false, fmt.Errorf("failed to claim queue item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

// UpdateQueueItem writes the outcome fields of item.
func (s *Store) UpdateQueueItem(ctx context.Context, item *model.URLQueueItem) error {
	query := `
	UPDATE url_queue SET
		file_type = ?,
		status = ?,
		retry_count = ?,
		next_attempt_at = ?,
		processed_at = ?,
		http_status = ?,
		response_time_ms = ?,
		content_type = ?,
		file_size = ?,
		error_message = ?,
		has_metadata = ?,
		metadata_extracted_at = ?
	WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		string(item.FileType),
		string(item.Status),
		item.RetryCount,
		formatNullTime(item.NextAttemptAt),
		formatNullTime(item.ProcessedAt),
		item.HTTPStatus,
		item.ResponseTime.Milliseconds(),
		item.ContentType,
		item.FileSize,
		item.ErrorMessage,
		boolToInt(item.HasMetadata),
		formatNullTime(item.MetadataExtractedAt),
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update queue item: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %d", ErrQueueItemNotFound, item.ID)
	}
	return nil
}

// ScheduleRetry marks an item failed after a network error. A non-nil
// next schedules a delayed re-entry; nil leaves the item failed for good.
func (s *Store) ScheduleRetry(ctx context.Context, id int64, retryCount int, next *time.Time, message string) error {
	query := `
	UPDATE url_queue SET status = 'failed', retry_count = ?, next_attempt_at = ?, error_message = ?
	WHERE id = ?
	`
	if _, err := s.db.ExecContext(ctx, query, retryCount, formatNullTime(next), message, id); err != nil {
		return fmt.Errorf("failed to schedule retry: %w", err)
	}
	return nil
}

// CountQueueItems counts a session's items, optionally filtered by status.
func (s *Store) CountQueueItems(ctx context.Context, sessionID string, statuses ...model.QueueStatus) (int, error) {
	query := `SELECT COUNT(*) FROM url_queue WHERE session_id = ?`
	args := []any{sessionID}
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		query += ` AND status IN (` + strings.Join(placeholders, ", ") + `)`
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count queue items: %w", err)
	}
	return n, nil
}

// NextRetryAt returns the earliest scheduled retry of the session, or nil.
func (s *Store) NextRetryAt(ctx context.Context, sessionID string) (*time.Time, error) {
	var next sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT MIN(next_attempt_at) FROM url_queue WHERE session_id = ? AND status = 'failed' AND next_attempt_at IS NOT NULL`,
		sessionID).Scan(&next)
	if err != nil {
		return nil, fmt.Errorf("failed to read next retry: %w", err)
	}
	return parseNullTime(next), nil
}

// SkipPendingItems marks every pending item and every scheduled retry of
// the session as skipped.
func (s *Store) SkipPendingItems(ctx context.Context, sessionID string, message string) (int64, error) {
	query := `
	UPDATE url_queue SET status = 'skipped', next_attempt_at = NULL, error_message = ?
	WHERE session_id = ? AND (status = 'pending' OR (status = 'failed' AND next_attempt_at IS NOT NULL))
	`
	res, err := s.db.ExecContext(ctx, query, message, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to skip pending items: %w", err)
	}
	return res.RowsAffected()
}

// RequeueStuckItems returns items left in processing by an interrupted
// run to pending.
func (s *Store) RequeueStuckItems(ctx context.Context, sessionID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE url_queue SET status = 'pending' WHERE session_id = ? AND status = 'processing'`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue stuck items: %w", err)
	}
	return res.RowsAffected()
}

// FileTypeCounts returns the number of queue items per file type.
func (s *Store) FileTypeCounts(ctx context.Context, sessionID string) (map[model.FileType]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_type, COUNT(*) FROM url_queue WHERE session_id = ? GROUP BY file_type`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to count file types: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.FileType]int)
	for rows.Next() {
		var ft string
		var n int
		if err := rows.Scan(&ft, &n); err != nil {
			return nil, fmt.Errorf("failed to scan file type count: %w", err)
		}
		counts[model.FileType(ft)] = n
	}
	return counts, rows.Err()
}
