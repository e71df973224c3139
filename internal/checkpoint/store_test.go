// ABOUTME: Tests for the checkpoint store
// ABOUTME: Covers monotonic updates, seeding and write-through persistence

package checkpoint

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memPersister struct {
	saved   map[string]map[string]int64
	saveErr error
}

func newMemPersister() *memPersister {
	return &memPersister{saved: make(map[string]map[string]int64)}
}

func (m *memPersister) SaveCheckpoint(ctx context.Context, owner, topicID string, nanos int64) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	if m.saved[owner] == nil {
		m.saved[owner] = make(map[string]int64)
	}
	m.saved[owner][topicID] = nanos
	return nil
}

func (m *memPersister) LoadCheckpoints(ctx context.Context, owner string) (map[string]int64, error) {
	out := make(map[string]int64)
	for k, v := range m.saved[owner] {
		out[k] = v
	}
	return out, nil
}

func TestUpdate_Monotonic(t *testing.T) {
	ctx := context.Background()
	pairs := [][2]int64{{5, 10}, {10, 5}, {7, 7}, {0, 3}}

	for _, p := range pairs {
		s := New("0.0.1", nil, nil)
		_, err := s.Update(ctx, "0.0.100", p[0])
		require.NoError(t, err)
		_, err = s.Update(ctx, "0.0.100", p[1])
		require.NoError(t, err)

		assert.Equal(t, max(p[0], p[1]), s.Get("0.0.100"), "sequence %v", p)
	}
}

func TestUpdate_ReportsAdvance(t *testing.T) {
	ctx := context.Background()
	s := New("0.0.1", nil, nil)

	moved, err := s.Update(ctx, "0.0.100", 10)
	require.NoError(t, err)
	assert.True(t, moved)

	moved, err = s.Update(ctx, "0.0.100", 10)
	require.NoError(t, err)
	assert.False(t, moved)
}

func TestGet_Missing(t *testing.T) {
	s := New("0.0.1", nil, nil)
	assert.Zero(t, s.Get("0.0.999"))
	assert.False(t, s.Has("0.0.999"))
}

func TestSeedIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := New("0.0.1", nil, nil)
	now := time.Unix(1700000000, 0)

	seeded, err := s.SeedIfAbsent(ctx, "0.0.100", now)
	require.NoError(t, err)
	assert.True(t, seeded)
	assert.Equal(t, now.UnixNano(), s.Get("0.0.100"))

	seeded, err = s.SeedIfAbsent(ctx, "0.0.100", now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, seeded)
	assert.Equal(t, now.UnixNano(), s.Get("0.0.100"))
}

func TestPersistence_WriteThroughAndLoad(t *testing.T) {
	ctx := context.Background()
	p := newMemPersister()

	s := New("0.0.1", p, nil)
	_, err := s.Update(ctx, "0.0.100", 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), p.saved["0.0.1"]["0.0.100"])

	reloaded := New("0.0.1", p, nil)
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, int64(42), reloaded.Get("0.0.100"))

	other := New("0.0.2", p, nil)
	require.NoError(t, other.Load(ctx))
	assert.Zero(t, other.Get("0.0.100"))
}

func TestPersistence_FailedSaveLeavesCursor(t *testing.T) {
	ctx := context.Background()
	p := newMemPersister()
	s := New("0.0.1", p, nil)

	_, err := s.Update(ctx, "0.0.100", 10)
	require.NoError(t, err)

	p.saveErr = errors.New("disk full")
	moved, err := s.Update(ctx, "0.0.100", 20)
	assert.Error(t, err)
	assert.False(t, moved)
	assert.Equal(t, int64(10), s.Get("0.0.100"))
}

func TestResetAndSnapshot(t *testing.T) {
	ctx := context.Background()
	s := New("0.0.1", nil, nil)
	_, _ = s.Update(ctx, "0.0.100", 1)
	_, _ = s.Update(ctx, "0.0.101", 2)

	snap := s.Snapshot()
	assert.Equal(t, map[string]int64{"0.0.100": 1, "0.0.101": 2}, snap)

	s.Reset()
	assert.Zero(t, s.Get("0.0.100"))
	assert.Len(t, snap, 2)
}
