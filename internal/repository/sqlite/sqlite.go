// Package sqlite implements the usage journal on an embedded SQLite database.
//
// modernc.org/sqlite is a pure Go port of SQLite, so the binary still builds
// without CGo and the journal lives in a single file next to the service.
//
// The pattern is the usual database/sql one:
//  1. sql.Open(driverName, dataSourceName) creates a pool
//  2. db.ExecContext / db.QueryContext run statements
//  3. rows.Scan(&field1, &field2) reads results into Go variables
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "/data/usage.db" → file-based database, parent directory is created
//   - ":memory:"       → in-memory database (tests)
func New(dbPath string) (*DB, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: creating database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every pooled connection to ":memory:" would get its own empty database,
	// and the journal has a single writer anyway.
	conn.SetMaxOpenConns(1)

	// sql.Open does not connect; Ping surfaces a bad path or permissions now.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers (stats replay) proceed while an append is in flight.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE ... IF NOT EXISTS makes it safe to run
// on every start.
//
// seq is the append order; id is the entry's xid and may be empty for rows
// imported from older journals.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS usage (
			seq         INTEGER PRIMARY KEY AUTOINCREMENT,
			id          TEXT NOT NULL DEFAULT '',
			timestamp   TEXT NOT NULL,
			client_ip   TEXT NOT NULL DEFAULT '',
			input_size  INTEGER NOT NULL DEFAULT 0,
			elapsed_sec REAL NOT NULL DEFAULT 0,
			memory_used TEXT,
			success     INTEGER NOT NULL DEFAULT 0,
			warnings    TEXT NOT NULL DEFAULT '[]'
		);
		CREATE INDEX IF NOT EXISTS idx_usage_timestamp ON usage(timestamp);
	`)
	if err != nil {
		return fmt.Errorf("creating usage table: %w", err)
	}
	return nil
}
