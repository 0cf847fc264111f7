// Package cache provides the SQLite-backed local note store: cached notes,
// per-note dirty flags, and the persisted offline operation queue.
package cache

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	id            INTEGER PRIMARY KEY,
	title         TEXT NOT NULL DEFAULT '',
	content       TEXT NOT NULL DEFAULT '',
	category      TEXT NOT NULL DEFAULT '',
	favorite      INTEGER NOT NULL DEFAULT 0,
	modified      INTEGER NOT NULL DEFAULT 0,
	etag          TEXT NOT NULL DEFAULT '',
	add_needed    INTEGER NOT NULL DEFAULT 0,
	update_needed INTEGER NOT NULL DEFAULT 0,
	delete_needed INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_notes_category ON notes(category);
CREATE INDEX IF NOT EXISTS idx_notes_favorite ON notes(favorite);

CREATE TABLE IF NOT EXISTS ops (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	note_id     INTEGER NOT NULL,
	kind        TEXT NOT NULL,
	content     TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL DEFAULT '',
	favorite    INTEGER NOT NULL DEFAULT 0,
	enqueued_at INTEGER NOT NULL DEFAULT 0,
	in_flight   INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_ops_note ON ops(note_id);
`

// DB wraps a sql.DB with local-store operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite cache and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("cache: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cache: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cache: apply schema: %w", err)
	}
	// In-flight markers belong to pushes that cannot have survived a restart.
	if _, err := conn.Exec(`UPDATE ops SET in_flight = 0 WHERE in_flight != 0`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cache: reset in-flight ops: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
