package store

import (
	"context"
	"fmt"
)

// RepoStatus aggregates one repo's relay progress for status reporting.
type RepoStatus struct {
	Repo       string `json:"repo"`
	LastID     int64  `json:"last_id"`
	Claimed    int64  `json:"claimed"`
	Dispatched int64  `json:"dispatched"`
}

// StatusSummary returns per-repo cursors with claimed-event and dispatch
// counts, ordered by repo name.
func (s *Store) StatusSummary(ctx context.Context) ([]RepoStatus, error) {
	const query = `
	SELECT c.repo, c.last_id,
		(SELECT COUNT(*) FROM event_log e WHERE e.repo = c.repo),
		(SELECT COUNT(*) FROM dispatch_log d
		 WHERE d.remote_id IN (SELECT remote_id FROM event_log e WHERE e.repo = c.repo))
	FROM cursors c
	ORDER BY c.repo
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("status summary: %w", err)
	}
	defer rows.Close()

	var out []RepoStatus
	for rows.Next() {
		var st RepoStatus
		if err := rows.Scan(&st.Repo, &st.LastID, &st.Claimed, &st.Dispatched); err != nil {
			return nil, fmt.Errorf("scan status: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("status rows: %w", err)
	}
	return out, nil
}

// CountClaimed returns the total number of claimed events.
func (s *Store) CountClaimed(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM event_log`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count claimed: %w", err)
	}
	return count, nil
}
