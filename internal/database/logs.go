package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/nao1215/fisgon/internal/model"
)

// AppendLog stores a session event and sets entry.ID.
func (s *Store) AppendLog(ctx context.Context, entry *model.CrawlLog) error {
	var details sql.NullString
	if len(entry.Details) > 0 {
		b, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("failed to serialize log details: %w", err)
		}
		details = sql.NullString{String: string(b), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO logs (session_id, level, message, details, timestamp) VALUES (?, ?, ?, ?, ?)`,
		entry.SessionID, string(entry.Level), entry.Message, details, formatTime(entry.Timestamp))
	if err != nil {
		return fmt.Errorf("failed to insert log: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

// ListLogs returns the session's events oldest first. A positive limit
// keeps only the most recent entries.
func (s *Store) ListLogs(ctx context.Context, sessionID string, limit int) ([]*model.CrawlLog, error) {
	query := `SELECT id, session_id, level, message, details, timestamp FROM logs
	WHERE session_id = ? ORDER BY timestamp DESC, id DESC`
	args := []any{sessionID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	defer rows.Close()

	var logs []*model.CrawlLog
	for rows.Next() {
		var (
			entry     model.CrawlLog
			level     string
			details   sql.NullString
			timestamp string
		)
		if err := rows.Scan(&entry.ID, &entry.SessionID, &level, &entry.Message, &details, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		entry.Level = model.LogLevel(level)
		entry.Timestamp = parseTimestamp(timestamp)
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &entry.Details); err != nil {
				return nil, fmt.Errorf("failed to decode log details: %w", err)
			}
		}
		logs = append(logs, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to chronological order.
	for i, j := 0, len(logs)-1; i < j; i, j = i+1, j-1 {
		logs[i], logs[j] = logs[j], logs[i]
	}
	return logs, nil
}
