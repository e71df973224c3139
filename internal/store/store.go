// ABOUTME: Store interface and errors for connection-manager persistence
// ABOUTME: Owner-partitioned checkpoints, connections, processed requests and agents

package store

import (
	"context"
	"errors"

	"github.com/2389/coven-hcs10/internal/checkpoint"
	"github.com/2389/coven-hcs10/internal/connections"
	"github.com/2389/coven-hcs10/internal/hcs"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = hcs.ErrNotFound

// ErrNoSealingSecret is returned when a private key cannot be read back
// because the store was opened without a sealing secret.
var ErrNoSealingSecret = errors.New("no sealing secret configured")

// AgentStore persists registered agent identities, keyed by name.
type AgentStore interface {
	SaveAgent(ctx context.Context, agent hcs.RegisteredAgent) error
	GetAgent(ctx context.Context, name string) (hcs.RegisteredAgent, error)
	ListAgents(ctx context.Context) ([]hcs.RegisteredAgent, error)
	DeleteAgent(ctx context.Context, name string) error
}

// Store is everything a session and the CLI need persisted.
type Store interface {
	checkpoint.Persister
	connections.ConnectionStore
	connections.ProcessedStore
	AgentStore
	Close() error
}
