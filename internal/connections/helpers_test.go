// ABOUTME: Shared fakes for connections tests
// ABOUTME: In-memory topic reader, profile resolver and connection store

package connections

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/2389/coven-hcs10/internal/hcs"
)

type fakeProfiles struct {
	profiles map[string]*hcs.Profile
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{profiles: make(map[string]*hcs.Profile)}
}

func (f *fakeProfiles) ResolveAgentProfile(ctx context.Context, accountID string) (*hcs.Profile, error) {
	p, ok := f.profiles[accountID]
	if !ok {
		return nil, fmt.Errorf("account %s has no profile: %w", accountID, hcs.ErrNotFound)
	}
	return p, nil
}

type fakeReader struct {
	topics map[string][]hcs.Message
}

func newFakeReader() *fakeReader {
	return &fakeReader{topics: make(map[string][]hcs.Message)}
}

func (f *fakeReader) FetchMessages(ctx context.Context, topicID string, q hcs.Query) ([]hcs.Message, error) {
	return q.Apply(f.topics[topicID]), nil
}

func (f *fakeReader) add(topicID string, msgs ...hcs.Message) {
	f.topics[topicID] = append(f.topics[topicID], msgs...)
}

type memConnStore struct {
	mu    sync.Mutex
	conns map[string]map[string]hcs.Connection
	order map[string][]string
}

func newMemConnStore() *memConnStore {
	return &memConnStore{
		conns: make(map[string]map[string]hcs.Connection),
		order: make(map[string][]string),
	}
}

func (m *memConnStore) SaveConnection(ctx context.Context, owner string, conn *hcs.Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conns[owner] == nil {
		m.conns[owner] = make(map[string]hcs.Connection)
	}
	if _, ok := m.conns[owner][conn.ConnectionTopicID]; !ok {
		m.order[owner] = append(m.order[owner], conn.ConnectionTopicID)
	}
	m.conns[owner][conn.ConnectionTopicID] = *conn
	return nil
}

func (m *memConnStore) DeleteConnection(ctx context.Context, owner, topicID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conns[owner], topicID)
	return nil
}

func (m *memConnStore) ListConnections(ctx context.Context, owner string) ([]*hcs.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*hcs.Connection
	for _, id := range m.order[owner] {
		if c, ok := m.conns[owner][id]; ok {
			out = append(out, &c)
		}
	}
	return out, nil
}

var fixedNow = time.Unix(1700000000, 0)

func newTestRegistry() *Registry {
	return NewRegistry(RegistryOptions{
		Profiles: newFakeProfiles(),
		Owner:    "0.0.1",
		Now:      func() time.Time { return fixedNow },
	})
}
