// ABOUTME: Processed-request persistence for SQLiteStore
// ABOUTME: Marks are insert-only and keyed by origin topic and request id

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/2389/coven-hcs10/internal/connections"
)

// MarkRequestProcessed records a handled request. Marking twice is a no-op.
func (s *SQLiteStore) MarkRequestProcessed(ctx context.Context, owner, originTopicID string, requestID int64) error {
	query := `
		INSERT OR IGNORE INTO processed_requests (owner, origin_topic_id, request_id, processed_at)
		VALUES (?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, owner, originTopicID, requestID, formatTime(time.Now())); err != nil {
		return fmt.Errorf("marking request processed: %w", err)
	}
	return nil
}

// ListProcessedRequests returns owner's marks, oldest first.
func (s *SQLiteStore) ListProcessedRequests(ctx context.Context, owner string) ([]connections.ProcessedRequest, error) {
	query := `
		SELECT origin_topic_id, request_id
		FROM processed_requests
		WHERE owner = ?
		ORDER BY processed_at, origin_topic_id, request_id
	`
	rows, err := s.db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("querying processed requests: %w", err)
	}
	defer rows.Close()

	var out []connections.ProcessedRequest
	for rows.Next() {
		var r connections.ProcessedRequest
		if err := rows.Scan(&r.OriginTopicID, &r.RequestID); err != nil {
			return nil, fmt.Errorf("scanning processed request: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating processed requests: %w", err)
	}
	return out, nil
}
