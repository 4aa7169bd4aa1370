package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Cursor is one repo's high-water mark: the largest remote_id for which all
// events at or below it have been dispatched or deliberately skipped.
type Cursor struct {
	Repo   string
	LastID int64
}

// GetCursor returns the cursor for a repo. The second return value is false
// when the repo has never been seen.
func (s *Store) GetCursor(ctx context.Context, repo string) (int64, bool, error) {
	const query = `SELECT last_id FROM cursors WHERE repo = ?`

	var lastID int64
	err := s.db.QueryRowContext(ctx, query, repo).Scan(&lastID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get cursor: %w", err)
	}
	return lastID, true, nil
}

// SetCursor advances a repo's cursor. Cursors are monotonic non-decreasing:
// setting an equal value is an idempotent no-op, setting a smaller value
// fails with ErrStaleCursor.
func (s *Store) SetCursor(ctx context.Context, repo string, remoteID int64) error {
	const query = `
	INSERT INTO cursors (repo, last_id) VALUES (?, ?)
	ON CONFLICT(repo) DO UPDATE SET last_id = excluded.last_id
	WHERE excluded.last_id >= cursors.last_id
	`

	result, err := s.db.ExecContext(ctx, query, repo, remoteID)
	if err != nil {
		return fmt.Errorf("set cursor: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set cursor rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: repo %s already past %d", ErrStaleCursor, repo, remoteID)
	}
	return nil
}

// ListCursors returns every repo cursor, ordered by repo name.
func (s *Store) ListCursors(ctx context.Context) ([]Cursor, error) {
	const query = `SELECT repo, last_id FROM cursors ORDER BY repo`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list cursors: %w", err)
	}
	defer rows.Close()

	var cursors []Cursor
	for rows.Next() {
		var c Cursor
		if err := rows.Scan(&c.Repo, &c.LastID); err != nil {
			return nil, fmt.Errorf("scan cursor: %w", err)
		}
		cursors = append(cursors, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cursor rows: %w", err)
	}
	return cursors, nil
}
