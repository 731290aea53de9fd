package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nao1215/fisgon/internal/model"
)

const resultColumns = `id, session_id, queue_item_id, url, file_type, file_name, file_path, file_hash,
	file_size, content_type, title, description, keywords, metadata, created_at`

func scanResult(row rowScanner) (*model.CrawlResult, error) {
	var (
		result       model.CrawlResult
		fileType     string
		metadataJSON sql.NullString
		createdAt    string
	)
	err := row.Scan(
		&result.ID,
		&result.SessionID,
		&result.QueueItemID,
		&result.URL,
		&fileType,
		&result.FileName,
		&result.FilePath,
		&result.FileHash,
		&result.FileSize,
		&result.ContentType,
		&result.Title,
		&result.Description,
		&result.Keywords,
		&metadataJSON,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}
	result.FileType = model.FileType(fileType)
	result.CreatedAt = parseTimestamp(createdAt)
	if metadataJSON.Valid && metadataJSON.String != "" {
		var md model.Metadata
		if err := json.Unmarshal([]byte(metadataJSON.String), &md); err != nil {
			return nil, fmt.Errorf("failed to decode metadata of result %d: %w", result.ID, err)
		}
		result.Metadata = md
	}
	return &result, nil
}

func encodeMetadata(md model.Metadata) (sql.NullString, error) {
	if len(md) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(md)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to serialize metadata: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// InsertResult stores a new result row and sets result.ID.
func (s *Store) InsertResult(ctx context.Context, result *model.CrawlResult) error {
	md, err := encodeMetadata(result.Metadata)
	if err != nil {
		return err
	}
	query := `
	INSERT INTO results (session_id, queue_item_id, url, file_type, file_name, file_path, file_hash,
		file_size, content_type, title, description, keywords, metadata, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := s.db.ExecContext(ctx, query,
		result.SessionID,
		result.QueueItemID,
		result.URL,
		string(result.FileType),
		result.FileName,
		result.FilePath,
		result.FileHash,
		result.FileSize,
		result.ContentType,
		result.Title,
		result.Description,
		result.Keywords,
		md,
		formatTime(result.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read result ID: %w", err)
	}
	result.ID = id
	return nil
}

// UpdateResultMetadata writes the extracted metadata of a result and flags
// its queue item as extracted, in one transaction.
func (s *Store) UpdateResultMetadata(ctx context.Context, result *model.CrawlResult, extractedAt time.Time) error {
	md, err := encodeMetadata(result.Metadata)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE results SET metadata = ?, title = ?, description = ?, keywords = ? WHERE id = ?`,
		md, result.Title, result.Description, result.Keywords, result.ID)
	if err != nil {
		return fmt.Errorf("failed to update result metadata: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %d", ErrResultNotFound, result.ID)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE url_queue SET has_metadata = 1, metadata_extracted_at = ? WHERE id = ?`,
		formatTime(extractedAt), result.QueueItemID); err != nil {
		return fmt.Errorf("failed to flag queue item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit metadata update: %w", err)
	}
	return nil
}

// GetResult returns a result or ErrResultNotFound.
func (s *Store) GetResult(ctx context.Context, id int64) (*model.CrawlResult, error) {
	result, err := scanResult(s.db.QueryRowContext(ctx,
		`SELECT `+resultColumns+` FROM results WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrResultNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	return result, nil
}

// ResultForQueueItem returns the result stored for a queue item, or nil.
func (s *Store) ResultForQueueItem(ctx context.Context, queueItemID int64) (*model.CrawlResult, error) {
	result, err := scanResult(s.db.QueryRowContext(ctx,
		`SELECT `+resultColumns+` FROM results WHERE queue_item_id = ? ORDER BY id DESC LIMIT 1`, queueItemID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // absence is not an error here
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	return result, nil
}

func (s *Store) queryResults(ctx context.Context, query string, args ...any) ([]*model.CrawlResult, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var results []*model.CrawlResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// ListResults returns all results of a session in storage order.
func (s *Store) ListResults(ctx context.Context, sessionID string) ([]*model.CrawlResult, error) {
	return s.queryResults(ctx,
		`SELECT `+resultColumns+` FROM results WHERE session_id = ? ORDER BY created_at ASC, id ASC`, sessionID)
}

// ResultsWithMetadata returns the session's results that carry metadata.
func (s *Store) ResultsWithMetadata(ctx context.Context, sessionID string) ([]*model.CrawlResult, error) {
	return s.queryResults(ctx,
		`SELECT `+resultColumns+` FROM results
		WHERE session_id = ? AND metadata IS NOT NULL AND metadata != '' AND metadata != '{}'
		ORDER BY created_at ASC, id ASC`, sessionID)
}

// DeleteResult removes one result and returns its stored file path.
func (s *Store) DeleteResult(ctx context.Context, id int64) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var path string
	err = tx.QueryRowContext(ctx, `SELECT file_path FROM results WHERE id = ?`, id).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %d", ErrResultNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read result: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM results WHERE id = ?`, id); err != nil {
		return "", fmt.Errorf("failed to delete result: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit result deletion: %w", err)
	}
	return path, nil
}

// CountResults returns the number of stored files of a session.
func (s *Store) CountResults(ctx context.Context, sessionID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM results WHERE session_id = ?`, sessionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count results: %w", err)
	}
	return n, nil
}
