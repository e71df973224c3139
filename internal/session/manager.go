// ABOUTME: Manager tracks the current agent identity for single-identity callers
// ABOUTME: Setting a new agent replaces the whole session so no state carries over

package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/2389/coven-hcs10/internal/hcs"
)

// Manager holds the current Session.
type Manager struct {
	mu      sync.RWMutex
	current *Session

	deps   Deps
	logger *slog.Logger
}

// NewManager creates a Manager with no current agent.
func NewManager(deps Deps) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		deps:   deps,
		logger: logger.With("component", "session_manager"),
	}
}

// SetCurrentAgent makes agent the current identity with a fresh Session.
func (m *Manager) SetCurrentAgent(ctx context.Context, agent hcs.RegisteredAgent) (*Session, error) {
	s, err := New(ctx, agent, m.deps)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	prev := m.current
	m.current = s
	m.mu.Unlock()

	if prev != nil && prev.Agent.AccountID != s.Agent.AccountID {
		m.logger.Info("agent switched", "from", prev.Agent.AccountID, "to", s.Agent.AccountID)
	}
	return s, nil
}

// Current returns the current Session.
func (m *Manager) Current() (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil, fmt.Errorf("no current agent: %w", hcs.ErrNotInitialized)
	}
	return m.current, nil
}

// AddActiveConnection records conn for the current agent.
func (m *Manager) AddActiveConnection(ctx context.Context, conn hcs.Connection) error {
	s, err := m.Current()
	if err != nil {
		return err
	}
	return s.Registry.Add(ctx, conn)
}

// ListConnections lists the current agent's connections.
func (m *Manager) ListConnections() ([]hcs.Connection, error) {
	s, err := m.Current()
	if err != nil {
		return nil, err
	}
	return s.Registry.List(), nil
}

// GetLastTimestamp returns the current agent's checkpoint for topicID.
func (m *Manager) GetLastTimestamp(topicID string) (int64, error) {
	s, err := m.Current()
	if err != nil {
		return 0, err
	}
	return s.Checkpoints.Get(topicID), nil
}
