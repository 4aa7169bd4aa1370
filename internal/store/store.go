// Package store provides SQLite persistence for metarelay: per-repo cursors,
// the claimed-event dedup log, and the dispatch result log.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"

	_ "modernc.org/sqlite"
)

// TimeFormat renders timestamps at fixed width so that sorting the TEXT
// columns (claimed_at, started_at, ended_at) sorts chronologically.
const TimeFormat = "2006-01-02T15:04:05.000000000Z"

// Store is the durable side of the relay: cursors, the claim log, and
// dispatch results, all in one SQLite file. Every method is safe for
// concurrent use by the repo workers; row-level serialization is SQLite's.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the relay database at path and runs
// migrations. WAL mode lets the status command read while repo workers
// write; busy_timeout covers the brief moments two workers contend for the
// single writer.
func Open(path string) (*Store, error) {
	// The path rides inside a file: URI, so it must be escaped.
	dsn := fmt.Sprintf("file:%s?mode=rwc&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
		url.PathEscape(path))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open relay database: %w", err)
	}

	// sql.Open is lazy; force the file open so pragma and permission
	// problems surface here rather than on the first claim.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping relay database: %w", err)
	}

	// Dispatch records carry captured handler stdout/stderr, which can
	// include anything a handler prints. Owner-only access, always.
	if err := os.Chmod(path, 0600); err != nil {
		db.Close()
		return nil, fmt.Errorf("restrict database permissions: %w", err)
	}

	// One writer at a time is SQLite's rule regardless; a few extra
	// connections give concurrent repo workers read parallelism under WAL.
	db.SetMaxOpenConns(4)

	store := &Store{db: db, path: path}

	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// journalMode returns the current journal mode (for testing).
func (s *Store) journalMode() (string, error) {
	var mode string
	if err := s.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		return "", err
	}
	return mode, nil
}
