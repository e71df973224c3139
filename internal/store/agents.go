// ABOUTME: Registered agent persistence for SQLiteStore
// ABOUTME: Private keys are sealed when a secret is configured and dropped otherwise

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/2389/coven-hcs10/internal/hcs"
)

// SaveAgent inserts or updates an agent by name. When the store has no
// sealing secret the private key is not written, and an update without a
// key keeps the previously stored one.
func (s *SQLiteStore) SaveAgent(ctx context.Context, agent hcs.RegisteredAgent) error {
	agent, err := agent.Normalize()
	if err != nil {
		return fmt.Errorf("saving agent: %w", err)
	}
	if agent.Name == "" {
		return fmt.Errorf("saving agent: missing name: %w", hcs.ErrInvalidIdentifier)
	}

	var sealed any
	if agent.PrivateKey != "" {
		if s.sealer == nil {
			s.logger.Warn("private key not stored, no sealing secret configured", "agent", agent.Name)
		} else {
			v, err := s.sealer.seal(agent.PrivateKey, agent.Name)
			if err != nil {
				return fmt.Errorf("sealing private key: %w", err)
			}
			sealed = v
		}
	}

	now := formatTime(time.Now())
	query := `
		INSERT INTO agents (name, account_id, inbound_topic_id, outbound_topic_id, profile_topic_id, sealed_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			account_id = excluded.account_id,
			inbound_topic_id = excluded.inbound_topic_id,
			outbound_topic_id = excluded.outbound_topic_id,
			profile_topic_id = excluded.profile_topic_id,
			sealed_key = coalesce(excluded.sealed_key, agents.sealed_key),
			updated_at = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		agent.Name,
		agent.AccountID,
		agent.InboundTopicID,
		agent.OutboundTopicID,
		agent.ProfileTopicID,
		sealed,
		now,
		now,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("saving agent %q: %w", agent.Name, hcs.ErrInvalidState)
		}
		return fmt.Errorf("saving agent: %w", err)
	}

	s.logger.Debug("saved agent", "name", agent.Name, "account_id", agent.AccountID)
	return nil
}

// GetAgent loads an agent by name, unsealing its private key if present.
// Returns ErrNotFound if the agent doesn't exist.
func (s *SQLiteStore) GetAgent(ctx context.Context, name string) (hcs.RegisteredAgent, error) {
	query := `
		SELECT name, account_id, inbound_topic_id, outbound_topic_id, profile_topic_id, sealed_key
		FROM agents
		WHERE name = ?
	`
	a, sealed, err := scanAgent(s.db.QueryRowContext(ctx, query, name))
	if errors.Is(err, sql.ErrNoRows) {
		return hcs.RegisteredAgent{}, fmt.Errorf("agent %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return hcs.RegisteredAgent{}, fmt.Errorf("querying agent: %w", err)
	}

	if sealed.Valid {
		if s.sealer == nil {
			return a, fmt.Errorf("reading key of agent %q: %w", name, ErrNoSealingSecret)
		}
		if a.PrivateKey, err = s.sealer.open(sealed.String, a.Name); err != nil {
			return a, fmt.Errorf("reading key of agent %q: %w", name, err)
		}
	}
	return a, nil
}

// ListAgents returns all agents ordered by name, without private keys.
func (s *SQLiteStore) ListAgents(ctx context.Context) ([]hcs.RegisteredAgent, error) {
	query := `
		SELECT name, account_id, inbound_topic_id, outbound_topic_id, profile_topic_id, sealed_key
		FROM agents
		ORDER BY name
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer rows.Close()

	var out []hcs.RegisteredAgent
	for rows.Next() {
		a, _, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning agent: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating agents: %w", err)
	}
	return out, nil
}

// DeleteAgent removes an agent. Its connection state is left in place.
// Returns ErrNotFound if the agent doesn't exist.
func (s *SQLiteStore) DeleteAgent(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("deleting agent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("agent %q: %w", name, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (hcs.RegisteredAgent, sql.NullString, error) {
	var a hcs.RegisteredAgent
	var sealed sql.NullString
	err := row.Scan(&a.Name, &a.AccountID, &a.InboundTopicID, &a.OutboundTopicID, &a.ProfileTopicID, &sealed)
	return a, sealed, err
}
