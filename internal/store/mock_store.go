// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/2389/coven-hcs10/internal/connections"
	"github.com/2389/coven-hcs10/internal/hcs"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu          sync.RWMutex
	checkpoints map[string]map[string]int64               // owner -> topic -> nanos
	conns       map[string][]hcs.Connection               // owner -> insertion ordered
	processed   map[string][]connections.ProcessedRequest // owner -> marks
	agents      map[string]hcs.RegisteredAgent            // name -> agent

	// SaveErr, when set, is returned by every write.
	SaveErr error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		checkpoints: make(map[string]map[string]int64),
		conns:       make(map[string][]hcs.Connection),
		processed:   make(map[string][]connections.ProcessedRequest),
		agents:      make(map[string]hcs.RegisteredAgent),
	}
}

// SaveCheckpoint keeps the larger of the stored and given cursor.
func (m *MockStore) SaveCheckpoint(ctx context.Context, owner, topicID string, nanos int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	if m.checkpoints[owner] == nil {
		m.checkpoints[owner] = make(map[string]int64)
	}
	m.checkpoints[owner][topicID] = max(m.checkpoints[owner][topicID], nanos)
	return nil
}

// LoadCheckpoints returns a copy of owner's cursors.
func (m *MockStore) LoadCheckpoints(ctx context.Context, owner string) (map[string]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int64, len(m.checkpoints[owner]))
	for k, v := range m.checkpoints[owner] {
		out[k] = v
	}
	return out, nil
}

// SaveConnection upserts conn, keeping its first-insert position.
func (m *MockStore) SaveConnection(ctx context.Context, owner string, conn *hcs.Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	for i, c := range m.conns[owner] {
		if c.ConnectionTopicID == conn.ConnectionTopicID {
			m.conns[owner][i] = *conn
			return nil
		}
	}
	m.conns[owner] = append(m.conns[owner], *conn)
	return nil
}

// DeleteConnection removes owner's connection on topicID.
func (m *MockStore) DeleteConnection(ctx context.Context, owner, topicID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.conns[owner] = slices.DeleteFunc(m.conns[owner], func(c hcs.Connection) bool {
		return c.ConnectionTopicID == topicID
	})
	return nil
}

// ListConnections returns copies of owner's connections.
func (m *MockStore) ListConnections(ctx context.Context, owner string) ([]*hcs.Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*hcs.Connection, 0, len(m.conns[owner]))
	for _, c := range m.conns[owner] {
		c := c
		out = append(out, &c)
	}
	return out, nil
}

// MarkRequestProcessed records a mark once.
func (m *MockStore) MarkRequestProcessed(ctx context.Context, owner, originTopicID string, requestID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	r := connections.ProcessedRequest{OriginTopicID: originTopicID, RequestID: requestID}
	if !slices.Contains(m.processed[owner], r) {
		m.processed[owner] = append(m.processed[owner], r)
	}
	return nil
}

// ListProcessedRequests returns owner's marks in insertion order.
func (m *MockStore) ListProcessedRequests(ctx context.Context, owner string) ([]connections.ProcessedRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.processed[owner]), nil
}

// SaveAgent stores agent by name, including its private key.
func (m *MockStore) SaveAgent(ctx context.Context, agent hcs.RegisteredAgent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	if agent.Name == "" {
		return fmt.Errorf("saving agent: missing name: %w", hcs.ErrInvalidIdentifier)
	}
	m.agents[agent.Name] = agent
	return nil
}

// GetAgent returns the agent stored under name.
func (m *MockStore) GetAgent(ctx context.Context, name string) (hcs.RegisteredAgent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[name]
	if !ok {
		return hcs.RegisteredAgent{}, fmt.Errorf("agent %q: %w", name, ErrNotFound)
	}
	return a, nil
}

// ListAgents returns agents ordered by name, without private keys.
func (m *MockStore) ListAgents(ctx context.Context) ([]hcs.RegisteredAgent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]hcs.RegisteredAgent, 0, len(m.agents))
	for _, a := range m.agents {
		a.PrivateKey = ""
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// DeleteAgent removes the agent stored under name.
func (m *MockStore) DeleteAgent(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[name]; !ok {
		return fmt.Errorf("agent %q: %w", name, ErrNotFound)
	}
	delete(m.agents, name)
	return nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

var (
	_ Store = (*MockStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
