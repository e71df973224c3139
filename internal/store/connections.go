// ABOUTME: Connection persistence for SQLiteStore
// ABOUTME: Rows are upserted whole and listed in first-insert order per owner

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/2389/coven-hcs10/internal/hcs"
)

// SaveConnection inserts or replaces conn for owner. A replaced row keeps
// its original position in ListConnections.
func (s *SQLiteStore) SaveConnection(ctx context.Context, owner string, conn *hcs.Connection) error {
	var profileJSON any
	if conn.Profile != nil {
		b, err := json.Marshal(conn.Profile)
		if err != nil {
			return fmt.Errorf("encoding profile: %w", err)
		}
		profileJSON = string(b)
	}

	var lastActivity any
	if !conn.LastActivity.IsZero() {
		lastActivity = formatTime(conn.LastActivity)
	}

	query := `
		INSERT INTO connections (
			owner, topic_id, target_account_id, target_agent_name, target_inbound_topic_id,
			status, connection_request_id, unique_request_key, profile_json, created_at, last_activity
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (owner, topic_id) DO UPDATE SET
			target_account_id = excluded.target_account_id,
			target_agent_name = excluded.target_agent_name,
			target_inbound_topic_id = excluded.target_inbound_topic_id,
			status = excluded.status,
			connection_request_id = excluded.connection_request_id,
			unique_request_key = excluded.unique_request_key,
			profile_json = excluded.profile_json,
			created_at = excluded.created_at,
			last_activity = excluded.last_activity
	`
	_, err := s.db.ExecContext(ctx, query,
		owner,
		conn.ConnectionTopicID,
		conn.TargetAccountID,
		conn.TargetAgentName,
		conn.TargetInboundTopicID,
		conn.Status.String(),
		conn.ConnectionRequestID,
		conn.UniqueRequestKey,
		profileJSON,
		formatTime(conn.Created),
		lastActivity,
	)
	if err != nil {
		return fmt.Errorf("saving connection: %w", err)
	}

	s.logger.Debug("saved connection", "owner", owner, "topic_id", conn.ConnectionTopicID)
	return nil
}

// DeleteConnection removes owner's connection on topicID. Deleting a
// missing row is not an error.
func (s *SQLiteStore) DeleteConnection(ctx context.Context, owner, topicID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM connections WHERE owner = ? AND topic_id = ?`, owner, topicID); err != nil {
		return fmt.Errorf("deleting connection: %w", err)
	}
	return nil
}

// ListConnections returns owner's connections in first-insert order.
func (s *SQLiteStore) ListConnections(ctx context.Context, owner string) ([]*hcs.Connection, error) {
	query := `
		SELECT topic_id, target_account_id, target_agent_name, target_inbound_topic_id,
			status, connection_request_id, unique_request_key, profile_json, created_at, last_activity
		FROM connections
		WHERE owner = ?
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("querying connections: %w", err)
	}
	defer rows.Close()

	var out []*hcs.Connection
	for rows.Next() {
		var (
			c               hcs.Connection
			status          string
			profileJSON     sql.NullString
			createdAtStr    string
			lastActivityStr sql.NullString
		)
		if err := rows.Scan(
			&c.ConnectionTopicID,
			&c.TargetAccountID,
			&c.TargetAgentName,
			&c.TargetInboundTopicID,
			&status,
			&c.ConnectionRequestID,
			&c.UniqueRequestKey,
			&profileJSON,
			&createdAtStr,
			&lastActivityStr,
		); err != nil {
			return nil, fmt.Errorf("scanning connection: %w", err)
		}

		c.Status = hcs.ParseStatus(status)
		if c.Created, err = parseTime(createdAtStr); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if lastActivityStr.Valid {
			if c.LastActivity, err = parseTime(lastActivityStr.String); err != nil {
				return nil, fmt.Errorf("parsing last_activity: %w", err)
			}
		}
		if profileJSON.Valid {
			var p hcs.Profile
			if err := json.Unmarshal([]byte(profileJSON.String), &p); err != nil {
				s.logger.Warn("ignoring unreadable profile", "topic_id", c.ConnectionTopicID, "error", err)
			} else {
				c.Profile = &p
			}
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating connections: %w", err)
	}
	return out, nil
}
