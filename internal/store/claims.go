package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dsifry/metarelay/internal/event"
)

// TryClaim inserts the event into the dedup log. Returns true if the event
// was claimed by this caller, false if a row already exists for its remote_id
// or delivery_id (dedup hit). The insert is atomic against concurrent callers;
// for any event arriving through both the catch-up and live paths exactly one
// claim succeeds.
func (s *Store) TryClaim(ctx context.Context, e *event.Event) (bool, error) {
	if err := validateEvent(e); err != nil {
		return false, err
	}

	const query = `
	INSERT INTO event_log (remote_id, delivery_id, repo, event_type, action, claimed_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT DO NOTHING
	`

	result, err := s.db.ExecContext(ctx, query,
		e.RemoteID,
		e.DeliveryID,
		e.Repo,
		e.Type,
		e.Action,
		time.Now().UTC().Format(TimeFormat),
	)
	if err != nil {
		return false, fmt.Errorf("claim event: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim rows affected: %w", err)
	}
	return affected > 0, nil
}

// CountClaimedInRange returns how many events for the repo are already
// claimed with afterID < remote_id < beforeID. The daemon uses this to decide
// whether an out-of-order live event left a real hole behind it.
func (s *Store) CountClaimedInRange(ctx context.Context, repo string, afterID, beforeID int64) (int64, error) {
	const query = `
	SELECT COUNT(*) FROM event_log
	WHERE repo = ? AND remote_id > ? AND remote_id < ?
	`

	var count int64
	if err := s.db.QueryRowContext(ctx, query, repo, afterID, beforeID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count claimed: %w", err)
	}
	return count, nil
}

func validateEvent(e *event.Event) error {
	if e.RemoteID <= 0 {
		return fmt.Errorf("%w: remote_id is required", ErrInvalidEvent)
	}
	if e.DeliveryID == "" {
		return fmt.Errorf("%w: delivery_id is required", ErrInvalidEvent)
	}
	if e.Repo == "" {
		return fmt.Errorf("%w: repo is required", ErrInvalidEvent)
	}
	if e.Type == "" {
		return fmt.Errorf("%w: event_type is required", ErrInvalidEvent)
	}
	return nil
}
