// ABOUTME: Per-connection "last processed" timestamp cursors in nanoseconds
// ABOUTME: Updates only ever move a cursor forward; persistence is optional write-through

package checkpoint

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"
)

// Persister stores cursors durably for one owner (the agent account id).
type Persister interface {
	SaveCheckpoint(ctx context.Context, owner, topicID string, nanos int64) error
	LoadCheckpoints(ctx context.Context, owner string) (map[string]int64, error)
}

// Store maps connection topic ids to the last processed message timestamp.
type Store struct {
	mu      sync.RWMutex
	cursors map[string]int64

	owner     string
	persister Persister
	logger    *slog.Logger
}

// New creates an in-memory Store. Pass a nil persister to keep cursors in
// memory only.
func New(owner string, persister Persister, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		cursors:   make(map[string]int64),
		owner:     owner,
		persister: persister,
		logger:    logger.With("component", "checkpoint"),
	}
}

// Load merges persisted cursors into memory. Cursors already held in memory
// are kept when they are newer.
func (s *Store) Load(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	saved, err := s.persister.LoadCheckpoints(ctx, s.owner)
	if err != nil {
		return fmt.Errorf("loading checkpoints: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for topic, nanos := range saved {
		if nanos > s.cursors[topic] {
			s.cursors[topic] = nanos
		}
	}
	s.logger.Debug("checkpoints loaded", "owner", s.owner, "count", len(saved))
	return nil
}

// Get returns the cursor for topicID, or 0 when none exists.
func (s *Store) Get(topicID string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursors[topicID]
}

// Has reports whether a cursor exists for topicID.
func (s *Store) Has(topicID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.cursors[topicID]
	return ok
}

// Update advances the cursor for topicID to nanos. An older or equal value
// is a no-op. The returned bool reports whether the cursor moved.
func (s *Store) Update(ctx context.Context, topicID string, nanos int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advanceLocked(ctx, topicID, nanos)
}

// SeedIfAbsent creates a cursor at now so existing history is not replayed.
// Existing cursors are left untouched.
func (s *Store) SeedIfAbsent(ctx context.Context, topicID string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cursors[topicID]; ok {
		return false, nil
	}
	return s.advanceLocked(ctx, topicID, now.UnixNano())
}

// advanceLocked writes through to the persister before touching memory so a
// failed save leaves both sides unchanged. Must be called with mu held.
func (s *Store) advanceLocked(ctx context.Context, topicID string, nanos int64) (bool, error) {
	if current, ok := s.cursors[topicID]; ok && nanos <= current {
		return false, nil
	}

	if s.persister != nil {
		if err := s.persister.SaveCheckpoint(ctx, s.owner, topicID, nanos); err != nil {
			return false, fmt.Errorf("saving checkpoint for %s: %w", topicID, err)
		}
	}

	s.cursors[topicID] = nanos
	return true, nil
}

// Snapshot returns a copy of every cursor.
func (s *Store) Snapshot() map[string]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.cursors)
}

// Reset drops every in-memory cursor. Persisted cursors are not deleted.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.cursors)
}
