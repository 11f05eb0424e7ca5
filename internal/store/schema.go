// Package store provides the SQLite-backed habit and repetition repository.
// The schema follows the Loop Habit Tracker layout so exported files open there too.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS Habits (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	archived     INTEGER NOT NULL DEFAULT 0,
	color        INTEGER NOT NULL DEFAULT 0,
	description  TEXT    NOT NULL DEFAULT '',
	freq_den     INTEGER NOT NULL DEFAULT 1,
	freq_num     INTEGER NOT NULL DEFAULT 1,
	highlight    INTEGER NOT NULL DEFAULT 0,
	name         TEXT    NOT NULL DEFAULT '',
	position     INTEGER NOT NULL DEFAULT 0,
	type         INTEGER NOT NULL DEFAULT 0,
	target_type  INTEGER NOT NULL DEFAULT 0,
	target_value REAL    NOT NULL DEFAULT 0,
	unit         TEXT    NOT NULL DEFAULT '',
	question     TEXT    NOT NULL DEFAULT '',
	uuid         TEXT    NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS Repetitions (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	habit     INTEGER NOT NULL REFERENCES Habits(id) ON DELETE CASCADE,
	timestamp INTEGER NOT NULL,
	value     INTEGER NOT NULL,
	notes     TEXT    NOT NULL DEFAULT '',
	UNIQUE(habit, timestamp)
);

CREATE INDEX IF NOT EXISTS idx_repetitions_timestamp ON Repetitions(timestamp);
`

// DB wraps a sql.DB with habit-specific operations.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(ctx context.Context, path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: create dir: %w", err)
	}
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.ExecContext(ctx, schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{conn: conn, path: path}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}
