// Package journal persists monitor lifecycle events and progress
// samples to a local SQLite database. The journal is an audit trail on
// top of the text log: `migmon history` reads it back.
//
// All writes are best-effort; a broken journal never stops the monitor.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens or creates the journal database at the specified path.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	// WAL keeps readers (migmon history) from blocking the monitor.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	db := &DB{conn: conn, path: path}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn != nil {
		db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return db.conn.Close()
	}
	return nil
}

func (db *DB) initSchema() error {
	schema := `
	-- Monitor lifecycle events (started, restart, stall, critical, stopped)
	CREATE TABLE IF NOT EXISTS monitor_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		details TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Per-tick progress observations
	CREATE TABLE IF NOT EXISTS progress_samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		nonce INTEGER NOT NULL,
		keys_remaining INTEGER NOT NULL,
		nonce_diff INTEGER NOT NULL,
		keys_diff INTEGER NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_monitor_events_timestamp ON monitor_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_progress_samples_timestamp ON progress_samples(timestamp);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Event is a monitor lifecycle event.
type Event struct {
	ID        int64
	EventType string
	Details   string
	Timestamp time.Time
}

// LogEvent records a monitor lifecycle event.
func (db *DB) LogEvent(eventType, details string) error {
	_, err := db.conn.Exec(
		`INSERT INTO monitor_events (event_type, details, timestamp)
		 VALUES (?, ?, ?)`,
		eventType, details, time.Now(),
	)
	return err
}

// ProgressSample is one recorded progress observation.
type ProgressSample struct {
	ID        int64
	Nonce     uint64
	Keys      uint64
	NonceDiff int64
	KeysDiff  int64
	Timestamp time.Time
}

// LogProgress records one tick's progress observation.
func (db *DB) LogProgress(nonce, keys uint64, nonceDiff, keysDiff int64) error {
	_, err := db.conn.Exec(
		`INSERT INTO progress_samples (nonce, keys_remaining, nonce_diff, keys_diff, timestamp)
		 VALUES (?, ?, ?, ?, ?)`,
		nonce, keys, nonceDiff, keysDiff, time.Now(),
	)
	return err
}

// RecentEvents retrieves the most recent lifecycle events, newest first.
func (db *DB) RecentEvents(limit int) ([]Event, error) {
	rows, err := db.conn.Query(
		`SELECT id, event_type, details, timestamp
		 FROM monitor_events
		 ORDER BY id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.EventType, &e.Details, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// RecentProgress retrieves the most recent progress samples, newest
// first.
func (db *DB) RecentProgress(limit int) ([]ProgressSample, error) {
	rows, err := db.conn.Query(
		`SELECT id, nonce, keys_remaining, nonce_diff, keys_diff, timestamp
		 FROM progress_samples
		 ORDER BY id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []ProgressSample
	for rows.Next() {
		var s ProgressSample
		if err := rows.Scan(&s.ID, &s.Nonce, &s.Keys, &s.NonceDiff, &s.KeysDiff, &s.Timestamp); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}
