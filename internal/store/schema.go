// Package store is the SQLite-backed entity store the note graph is loaded
// from and persisted to, with an optional FTS5 content index.
package store

import (
	"database/sql"
	"fmt"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	note_id       TEXT PRIMARY KEY,
	title         TEXT NOT NULL DEFAULT '',
	type          TEXT NOT NULL DEFAULT 'text',
	mime          TEXT NOT NULL DEFAULT '',
	is_protected  INTEGER NOT NULL DEFAULT 0,
	is_deleted    INTEGER NOT NULL DEFAULT 0,
	date_created  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	date_modified DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS branches (
	branch_id        TEXT PRIMARY KEY,
	note_id          TEXT NOT NULL,
	parent_note_id   TEXT NOT NULL,
	note_position    INTEGER NOT NULL DEFAULT 0,
	prefix           TEXT NOT NULL DEFAULT '',
	is_expanded      INTEGER NOT NULL DEFAULT 0,
	from_search_note INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS attributes (
	attribute_id   TEXT PRIMARY KEY,
	note_id        TEXT NOT NULL,
	type           TEXT NOT NULL,
	name           TEXT NOT NULL,
	value          TEXT NOT NULL DEFAULT '',
	position       INTEGER NOT NULL DEFAULT 0,
	is_inheritable INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS note_contents (
	note_id TEXT PRIMARY KEY,
	content TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS recent_notes (
	note_id    TEXT PRIMARY KEY,
	note_path  TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	visited_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_branches_parent ON branches(parent_note_id);
CREATE INDEX IF NOT EXISTS idx_branches_note ON branches(note_id);
CREATE INDEX IF NOT EXISTS idx_attributes_note ON attributes(note_id);
CREATE INDEX IF NOT EXISTS idx_attributes_name ON attributes(name);
CREATE INDEX IF NOT EXISTS idx_recent_seq ON recent_notes(seq);
`

// DB wraps a sql.DB with entity-store operations.
type DB struct {
	conn *sql.DB
	path string

	// lastWrite is the UnixNano time of this handle's most recent commit;
	// Watch uses it to tell our own writes from external ones.
	lastWrite atomic.Int64
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply fts schema: %w", err)
	}
	return &DB{conn: conn, path: path}, nil
}

// Path is the database file this handle was opened on.
func (db *DB) Path() string { return db.path }

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
