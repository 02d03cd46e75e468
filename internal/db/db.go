// Package db owns the core's SQLite connection, declarative schema
// migration, and a process-wide write mutex (which no repository takes).
package db

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var SchemaSQL string

// DB wraps the core's single SQLite connection pool.
type DB struct {
	conn *sql.DB
}

// Open connects to the SQLite database at path, creating its parent
// directory if necessary, and applies the pragmas the core requires for
// safe concurrent access from its worker pool.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", dir, err)
		}
	}

	var conn *sql.DB
	var err error
	const maxRetries = 5
	const baseDelay = 100 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		conn, err = sql.Open("sqlite", path)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		conn.SetMaxOpenConns(10)
		conn.SetMaxIdleConns(5)

		if err = conn.Ping(); err == nil {
			break
		}
		conn.Close()
		if attempt == maxRetries-1 {
			return nil, fmt.Errorf("ping database after %d attempts: %w", maxRetries, err)
		}
		time.Sleep(baseDelay * time.Duration(1<<uint(attempt)))
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 30000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}

	return &DB{conn: conn}, nil
}

// Conn returns the underlying *sql.DB for use by the query layer.
func (d *DB) Conn() *sql.DB { return d.conn }

// Close releases the connection pool.
func (d *DB) Close() error {
	d.conn.SetMaxOpenConns(0)
	d.conn.SetMaxIdleConns(0)
	return d.conn.Close()
}

// Migrate brings the database's schema up to date with SchemaSQL.
func (d *DB) Migrate(dbPath string) error {
	return AutoMigrate(d.conn, SchemaSQL, dbPath)
}
