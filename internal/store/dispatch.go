package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Dispatch outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeTimeout = "timeout"
	OutcomeSkipped = "skipped"
)

// DispatchRecord is the result of one handler execution for one event.
// Append-only, keyed by (remote_id, handler_name).
type DispatchRecord struct {
	RemoteID    int64
	HandlerName string
	Outcome     string
	ExitStatus  int
	Stdout      string
	Stderr      string
	StartedAt   time.Time
	EndedAt     time.Time
}

// RecordDispatch stores a dispatch result. Idempotent on
// (remote_id, handler_name): a record that already exists is left untouched,
// so a replayed event can never overwrite the original outcome.
func (s *Store) RecordDispatch(ctx context.Context, r DispatchRecord) error {
	const query = `
	INSERT INTO dispatch_log
	(remote_id, handler_name, outcome, exit_status, stdout, stderr, started_at, ended_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(remote_id, handler_name) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query,
		r.RemoteID,
		r.HandlerName,
		r.Outcome,
		r.ExitStatus,
		r.Stdout,
		r.Stderr,
		r.StartedAt.UTC().Format(TimeFormat),
		r.EndedAt.UTC().Format(TimeFormat),
	)
	if err != nil {
		return fmt.Errorf("record dispatch: %w", err)
	}
	return nil
}

// GetDispatch returns the record for (remoteID, handlerName), or false when
// none exists.
func (s *Store) GetDispatch(ctx context.Context, remoteID int64, handlerName string) (DispatchRecord, bool, error) {
	const query = `
	SELECT remote_id, handler_name, outcome, exit_status, stdout, stderr, started_at, ended_at
	FROM dispatch_log
	WHERE remote_id = ? AND handler_name = ?
	`

	var (
		r          DispatchRecord
		startedAt  string
		endedAt    string
		exitStatus sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, query, remoteID, handlerName).Scan(
		&r.RemoteID, &r.HandlerName, &r.Outcome, &exitStatus,
		&r.Stdout, &r.Stderr, &startedAt, &endedAt,
	)
	if err == sql.ErrNoRows {
		return DispatchRecord{}, false, nil
	}
	if err != nil {
		return DispatchRecord{}, false, fmt.Errorf("get dispatch: %w", err)
	}

	if exitStatus.Valid {
		r.ExitStatus = int(exitStatus.Int64)
	}
	if r.StartedAt, err = time.Parse(TimeFormat, startedAt); err != nil {
		return DispatchRecord{}, false, fmt.Errorf("parse started_at %q: %w", startedAt, err)
	}
	if r.EndedAt, err = time.Parse(TimeFormat, endedAt); err != nil {
		return DispatchRecord{}, false, fmt.Errorf("parse ended_at %q: %w", endedAt, err)
	}
	return r, true, nil
}
