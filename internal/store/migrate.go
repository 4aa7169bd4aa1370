package store

import (
	"context"
	"fmt"
)

// migrate runs database migrations.
func (s *Store) migrate(ctx context.Context) error {
	if err := s.createCursorsTable(ctx); err != nil {
		return err
	}
	if err := s.createEventLogTable(ctx); err != nil {
		return err
	}
	if err := s.createDispatchLogTable(ctx); err != nil {
		return err
	}
	return s.createMetadataTable(ctx)
}

func (s *Store) createCursorsTable(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS cursors (
		repo    TEXT PRIMARY KEY,
		last_id INTEGER NOT NULL
	);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create cursors table: %w", err)
	}
	return nil
}

func (s *Store) createEventLogTable(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS event_log (
		remote_id   INTEGER PRIMARY KEY,
		delivery_id TEXT NOT NULL UNIQUE,
		repo        TEXT NOT NULL,
		event_type  TEXT NOT NULL,
		action      TEXT,
		claimed_at  TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_event_log_repo_id ON event_log(repo, remote_id);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create event_log table: %w", err)
	}
	return nil
}

func (s *Store) createDispatchLogTable(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS dispatch_log (
		remote_id    INTEGER NOT NULL,
		handler_name TEXT NOT NULL,
		outcome      TEXT NOT NULL,
		exit_status  INTEGER,
		stdout       TEXT,
		stderr       TEXT,
		started_at   TEXT NOT NULL,
		ended_at     TEXT NOT NULL,
		PRIMARY KEY (remote_id, handler_name)
	);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create dispatch_log table: %w", err)
	}
	return nil
}

func (s *Store) createMetadataTable(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS metadata (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create metadata table: %w", err)
	}
	return nil
}
