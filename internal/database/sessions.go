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

// CounterDelta holds relative changes to a session's counters.
type CounterDelta struct {
	Discovered int
	Processed  int
	FilesFound int
	Errors     int
}

// IsZero reports whether the delta changes nothing.
func (d CounterDelta) IsZero() bool {
	return d == CounterDelta{}
}

const sessionColumns = `id, name, target_url, target_domain, settings, status,
	urls_discovered, urls_processed, files_found, errors, created_at, started_at, completed_at`

// CreateSession inserts a new session row.
func (s *Store) CreateSession(ctx context.Context, session *model.CrawlSession) error {
	settingsJSON, err := json.Marshal(session.Settings)
	if err != nil {
		return fmt.Errorf("failed to serialize settings: %w", err)
	}

	query := `
	INSERT INTO sessions (` + sessionColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		session.ID,
		session.Name,
		session.TargetURL,
		session.TargetDomain,
		string(settingsJSON),
		string(session.Status),
		session.URLsDiscovered,
		session.URLsProcessed,
		session.FilesFound,
		session.Errors,
		formatTime(session.CreatedAt),
		formatNullTime(session.StartedAt),
		formatNullTime(session.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*model.CrawlSession, error) {
	var (
		session      model.CrawlSession
		settingsJSON string
		status       string
		createdAt    string
		startedAt    sql.NullString
		completedAt  sql.NullString
	)
	err := row.Scan(
		&session.ID,
		&session.Name,
		&session.TargetURL,
		&session.TargetDomain,
		&settingsJSON,
		&status,
		&session.URLsDiscovered,
		&session.URLsProcessed,
		&session.FilesFound,
		&session.Errors,
		&createdAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(settingsJSON), &session.Settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	session.Status = model.SessionStatus(status)
	session.CreatedAt = parseTimestamp(createdAt)
	session.StartedAt = parseNullTime(startedAt)
	session.CompletedAt = parseNullTime(completedAt)
	return &session, nil
}

// GetSession returns the session with the given ID or ErrSessionNotFound.
func (s *Store) GetSession(ctx context.Context, id string) (*model.CrawlSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = ?`

	session, err := scanSession(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// FindSession resolves a full ID or a unique ID prefix, as typed on the
// command line.
func (s *Store) FindSession(ctx context.Context, idOrPrefix string) (*model.CrawlSession, error) {
	if idOrPrefix == "" {
		return nil, fmt.Errorf("%w: empty ID", ErrSessionNotFound)
	}
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE substr(id, 1, ?) = ? ORDER BY created_at LIMIT 2`

	rows, err := s.db.QueryContext(ctx, query, len(idOrPrefix), idOrPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	defer rows.Close()

	var found []*model.CrawlSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if session.ID == idOrPrefix {
			return session, nil
		}
		found = append(found, session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, idOrPrefix)
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("session prefix %q is ambiguous", idOrPrefix)
	}
}

// ListSessions returns every session, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]*model.CrawlSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.CrawlSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// TransitionSession moves a session to next when the transition is allowed
// from its current status. Entering running stamps started_at once;
// entering a terminal status stamps completed_at.
func (s *Store) TransitionSession(ctx context.Context, id string, next model.SessionStatus, now time.Time) (model.SessionStatus, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM sessions WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read session status: %w", err)
	}

	prev := model.SessionStatus(current)
	if !prev.CanTransition(next) {
		return prev, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prev, next)
	}

	query := `UPDATE sessions SET status = ?`
	args := []any{string(next)}
	if next == model.SessionRunning {
		query += `, started_at = COALESCE(started_at, ?), completed_at = NULL`
		args = append(args, formatTime(now))
	}
	if next.IsTerminal() {
		query += `, completed_at = ?`
		args = append(args, formatTime(now))
	}
	query += ` WHERE id = ?`
	args = append(args, id)

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return prev, fmt.Errorf("failed to update session status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return prev, fmt.Errorf("failed to commit status change: %w", err)
	}
	return prev, nil
}

// IncrementCounters applies delta with relative updates.
func (s *Store) IncrementCounters(ctx context.Context, id string, delta CounterDelta) error {
	if delta.IsZero() {
		return nil
	}
	query := `
	UPDATE sessions SET
		urls_discovered = urls_discovered + ?,
		urls_processed = urls_processed + ?,
		files_found = files_found + ?,
		errors = errors + ?
	WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query, delta.Discovered, delta.Processed, delta.FilesFound, delta.Errors, id)
	if err != nil {
		return fmt.Errorf("failed to increment counters: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// DeleteSession removes a session and everything it owns. File paths of
// the deleted results are returned so the caller can remove the blobs.
func (s *Store) DeleteSession(ctx context.Context, id string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT file_path FROM results WHERE session_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list result files: %w", err)
	}
	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan result file: %w", err)
		}
		paths = append(paths, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, stmt := range []string{
		`DELETE FROM logs WHERE session_id = ?`,
		`DELETE FROM results WHERE session_id = ?`,
		`DELETE FROM url_queue WHERE session_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return nil, fmt.Errorf("failed to delete session children: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to delete session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit session delete: %w", err)
	}
	return paths, nil
}
