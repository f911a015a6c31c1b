// Package store persists the reconciliation engine's state: the pending
// external-change list, the last-known snapshot per watched document, and
// user settings.
//
// The store is an embedded SQLite database (ncruces/go-sqlite3) opened in
// WAL mode so the CLI can read status while a watch daemon writes.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"pagewatch/internal/document"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ExternalChange is one observed on-disk change, store-facing.
// Lifecycle: created on receipt of a watch event, mutated only to flip
// Dismissed, pruned by the host UI (PurgeDismissed), never by the engine.
type ExternalChange struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Dismissed bool      `json:"dismissed"`
}

// Settings holds the user-facing reconciliation preferences consulted by
// the coordinator.
type Settings struct {
	// AutoReload applies the default strategy without surfacing conflicts.
	AutoReload        bool   `json:"auto_reload"`
	ShowNotifications bool   `json:"show_notifications"`
	NotificationStyle string `json:"notification_style"`
	// DefaultStrategy is applied when AutoReload is set.
	DefaultStrategy string `json:"default_strategy"`
}

// DefaultSettings returns the settings used before the user changes anything.
func DefaultSettings() Settings {
	return Settings{
		AutoReload:        false,
		ShowNotifications: true,
		NotificationStyle: "banner",
		DefaultStrategy:   "merge-prefer-local",
	}
}

// DB wraps the SQLite connection with engine-specific queries.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates a database connection at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent reads.
// The caller MUST call Close() when done.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.conn.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	return db.conn.Close()
}

// InitSchema creates the tables if they do not exist.
func (db *DB) InitSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS external_changes (
	id        TEXT PRIMARY KEY,
	path      TEXT NOT NULL,
	type      TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	dismissed INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_changes_path ON external_changes(path, dismissed);

CREATE TABLE IF NOT EXISTS snapshots (
	path     TEXT PRIMARY KEY,
	taken_at INTEGER NOT NULL,
	data     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`
	if _, err := db.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// RecordChange inserts one external change.
func (db *DB) RecordChange(ch ExternalChange) error {
	_, err := db.conn.Exec(
		`INSERT INTO external_changes (id, path, type, timestamp, dismissed) VALUES (?, ?, ?, ?, ?)`,
		ch.ID, ch.Path, ch.Type, ch.Timestamp.UnixNano(), boolToInt(ch.Dismissed),
	)
	if err != nil {
		return fmt.Errorf("failed to record change: %w", err)
	}
	return nil
}

// PendingChanges returns non-dismissed changes, most recent per path,
// newest first.
func (db *DB) PendingChanges() ([]ExternalChange, error) {
	rows, err := db.conn.Query(`
		SELECT id, path, type, timestamp, dismissed
		FROM external_changes ec
		WHERE dismissed = 0
		  AND timestamp = (
			SELECT MAX(timestamp) FROM external_changes
			WHERE path = ec.path AND dismissed = 0
		  )
		ORDER BY timestamp DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending changes: %w", err)
	}
	defer rows.Close()

	var out []ExternalChange
	seen := make(map[string]struct{})
	for rows.Next() {
		ch, err := scanChange(rows)
		if err != nil {
			return nil, err
		}
		// Two rows for one path can share the max timestamp; keep one.
		if _, dup := seen[ch.Path]; dup {
			continue
		}
		seen[ch.Path] = struct{}{}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// DismissChange marks one change dismissed. Queued watcher events are
// unaffected. Returns ErrNotFound for an unknown id.
func (db *DB) DismissChange(id string) error {
	res, err := db.conn.Exec(`UPDATE external_changes SET dismissed = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to dismiss change: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check dismissal: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("change %s: %w", id, ErrNotFound)
	}
	return nil
}

// PurgeDismissed deletes dismissed changes and returns how many were removed.
// Provided for the CLI; the engine itself never prunes.
func (db *DB) PurgeDismissed() (int64, error) {
	res, err := db.conn.Exec(`DELETE FROM external_changes WHERE dismissed = 1`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge dismissed changes: %w", err)
	}
	return res.RowsAffected()
}

// CountPending returns the number of non-dismissed change rows.
func (db *DB) CountPending() (int, error) {
	var n int
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM external_changes WHERE dismissed = 0`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending changes: %w", err)
	}
	return n, nil
}

// SaveSnapshot stores the last-known snapshot for a path, replacing any
// previous one.
func (db *DB) SaveSnapshot(path string, snap *document.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	_, err = db.conn.Exec(
		`INSERT INTO snapshots (path, taken_at, data) VALUES (?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET taken_at = excluded.taken_at, data = excluded.data`,
		path, snap.CreatedAt.UnixNano(), string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the last-known snapshot for a path, or ErrNotFound.
func (db *DB) LoadSnapshot(path string) (*document.Snapshot, error) {
	var data string
	err := db.conn.QueryRow(`SELECT data FROM snapshots WHERE path = ?`, path).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot for %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	var snap document.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

// DeleteSnapshot removes the stored snapshot for a path. Deleting a
// missing snapshot is not an error.
func (db *DB) DeleteSnapshot(path string) error {
	if _, err := db.conn.Exec(`DELETE FROM snapshots WHERE path = ?`, path); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// SaveSettings persists the user settings.
func (db *DB) SaveSettings(s Settings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	_, err = db.conn.Exec(
		`INSERT INTO settings (key, value) VALUES ('settings', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// LoadSettings returns the persisted settings, or defaults when none were
// saved yet.
func (db *DB) LoadSettings() (Settings, error) {
	var data string
	err := db.conn.QueryRow(`SELECT value FROM settings WHERE key = 'settings'`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("failed to load settings: %w", err)
	}
	var s Settings
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return Settings{}, fmt.Errorf("failed to decode settings: %w", err)
	}
	return s, nil
}

func scanChange(rows *sql.Rows) (ExternalChange, error) {
	var (
		ch        ExternalChange
		ts        int64
		dismissed int
	)
	if err := rows.Scan(&ch.ID, &ch.Path, &ch.Type, &ts, &dismissed); err != nil {
		return ExternalChange{}, fmt.Errorf("failed to scan change: %w", err)
	}
	ch.Timestamp = time.Unix(0, ts)
	ch.Dismissed = dismissed != 0
	return ch, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
