package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// DatabaseFile is the name of the SQLite file inside the data directory.
const DatabaseFile = "fisgon.db"

// Store provides SQLite-based storage for sessions, queue items, results and logs.
type Store struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures Store behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a Store in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*Store, error) {
	dbPath := filepath.Join(dbDir, DatabaseFile)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file, mode=rwc allows it.
	// Foreign keys are enabled on every connection the pool opens.
	mode := "rw"
	if opts.CreateIfNotExists {
		mode = "rwc"
	}
	dsn := dbPath + "?mode=" + mode + "&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// createTables creates the database schema if it doesn't exist.
func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		target_url TEXT NOT NULL,
		target_domain TEXT NOT NULL,
		settings TEXT NOT NULL,
		status TEXT NOT NULL,
		urls_discovered INTEGER NOT NULL DEFAULT 0,
		urls_processed INTEGER NOT NULL DEFAULT 0,
		files_found INTEGER NOT NULL DEFAULT 0,
		errors INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		started_at TEXT,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);

	-- The frontier. (session_id, url) is the idempotency key of enqueue.
	CREATE TABLE IF NOT EXISTS url_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		parent_url TEXT NOT NULL DEFAULT '',
		depth INTEGER NOT NULL DEFAULT 0,
		file_type TEXT NOT NULL,
		status TEXT NOT NULL,
		priority INTEGER NOT NULL,
		retry_count INTEGER NOT NULL DEFAULT 0,
		next_attempt_at TEXT,
		discovered_at TEXT NOT NULL,
		processed_at TEXT,
		http_status INTEGER NOT NULL DEFAULT 0,
		response_time_ms INTEGER NOT NULL DEFAULT 0,
		content_type TEXT NOT NULL DEFAULT '',
		file_size INTEGER NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		has_metadata INTEGER NOT NULL DEFAULT 0,
		metadata_extracted_at TEXT,
		UNIQUE(session_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_queue_schedule ON url_queue(session_id, status, priority, discovered_at);

	CREATE TABLE IF NOT EXISTS results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		queue_item_id INTEGER NOT NULL REFERENCES url_queue(id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		file_type TEXT NOT NULL,
		file_name TEXT NOT NULL,
		file_path TEXT NOT NULL,
		file_hash TEXT NOT NULL,
		file_size INTEGER NOT NULL DEFAULT 0,
		content_type TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		keywords TEXT NOT NULL DEFAULT '',
		metadata TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_results_session ON results(session_id);
	CREATE INDEX IF NOT EXISTS idx_results_queue_item ON results(queue_item_id);

	CREATE TABLE IF NOT EXISTS logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		level TEXT NOT NULL,
		message TEXT NOT NULL,
		details TEXT,
		timestamp TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_logs_session ON logs(session_id, timestamp);
	`

	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// timeLayout is fixed-width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02 15:04:05.000000"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTimestamp(ns.String)
	if t.IsZero() {
		return nil
	}
	return &t
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	timeLayout,
	"2006-01-02 15:04:05",  // SQLite default datetime format
	"2006-01-02T15:04:05Z", // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",  // ISO 8601 without timezone
	time.RFC3339,
	time.RFC3339Nano,
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
