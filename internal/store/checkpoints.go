// ABOUTME: Checkpoint persistence for SQLiteStore
// ABOUTME: Upserts never move a stored cursor backwards

package store

import (
	"context"
	"fmt"
	"time"
)

// SaveCheckpoint stores nanos for topicID, keeping the larger value if a
// cursor already exists.
func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, owner, topicID string, nanos int64) error {
	query := `
		INSERT INTO checkpoints (owner, topic_id, nanos, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (owner, topic_id) DO UPDATE SET
			nanos = max(checkpoints.nanos, excluded.nanos),
			updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, owner, topicID, nanos, formatTime(time.Now())); err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoints returns every cursor stored for owner.
func (s *SQLiteStore) LoadCheckpoints(ctx context.Context, owner string) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT topic_id, nanos FROM checkpoints WHERE owner = ?`, owner)
	if err != nil {
		return nil, fmt.Errorf("querying checkpoints: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var topicID string
		var nanos int64
		if err := rows.Scan(&topicID, &nanos); err != nil {
			return nil, fmt.Errorf("scanning checkpoint: %w", err)
		}
		out[topicID] = nanos
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating checkpoints: %w", err)
	}
	return out, nil
}
