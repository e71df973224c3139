// ABOUTME: In-memory table of known connections keyed by canonical topic id
// ABOUTME: Resolves connections by list index, topic id or counterparty account id

package connections

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/2389/coven-hcs10/internal/checkpoint"
	"github.com/2389/coven-hcs10/internal/hcs"
)

// ConnectionStore persists connections for one owner (the agent account id).
type ConnectionStore interface {
	SaveConnection(ctx context.Context, owner string, conn *hcs.Connection) error
	DeleteConnection(ctx context.Context, owner, topicID string) error
	ListConnections(ctx context.Context, owner string) ([]*hcs.Connection, error)
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// Profiles is the channel handle. A Registry without one rejects writes
	// with hcs.ErrNotInitialized.
	Profiles    hcs.ProfileResolver
	Checkpoints *checkpoint.Store
	Owner       string
	Store       ConnectionStore // optional
	Logger      *slog.Logger
	Now         func() time.Time
}

// Registry tracks the connections of a single agent.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	byTopic map[string]*hcs.Connection

	profiles    hcs.ProfileResolver
	checkpoints *checkpoint.Store
	owner       string
	store       ConnectionStore
	logger      *slog.Logger
	now         func() time.Time
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts RegistryOptions) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	checkpoints := opts.Checkpoints
	if checkpoints == nil {
		checkpoints = checkpoint.New(opts.Owner, nil, logger)
	}
	return &Registry{
		byTopic:     make(map[string]*hcs.Connection),
		profiles:    opts.Profiles,
		checkpoints: checkpoints,
		owner:       opts.Owner,
		store:       opts.Store,
		logger:      logger.With("component", "registry"),
		now:         now,
	}
}

// Load reads persisted connections into memory.
func (r *Registry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	conns, err := r.store.ListConnections(ctx, r.owner)
	if err != nil {
		return fmt.Errorf("loading connections: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range conns {
		r.putLocked(*c)
	}
	return nil
}

// Add upserts conn keyed by its canonical topic id. The stored record is
// replaced as a whole; fields the caller leaves empty are not merged from
// the previous value. A checkpoint seeded at the current time is created
// for topics seen for the first time.
func (r *Registry) Add(ctx context.Context, conn hcs.Connection) error {
	if r.profiles == nil {
		return fmt.Errorf("adding connection: %w", hcs.ErrNotInitialized)
	}

	topicID, err := hcs.Canonicalize(conn.ConnectionTopicID)
	if err != nil {
		return fmt.Errorf("adding connection: %w", err)
	}
	conn.ConnectionTopicID = topicID
	if conn.Created.IsZero() {
		conn.Created = r.now()
	}

	if r.store != nil {
		if err := r.store.SaveConnection(ctx, r.owner, &conn); err != nil {
			return fmt.Errorf("saving connection %s: %w", topicID, err)
		}
	}

	r.mu.Lock()
	r.putLocked(conn)
	r.mu.Unlock()

	// Placeholders have no topic to read, so they get no checkpoint.
	if hcs.IsTopicID(topicID) {
		if _, err := r.checkpoints.SeedIfAbsent(ctx, topicID, r.now()); err != nil {
			return fmt.Errorf("seeding checkpoint for %s: %w", topicID, err)
		}
	}

	r.logger.Debug("connection stored",
		"topic_id", topicID,
		"account_id", conn.TargetAccountID,
		"status", conn.Status.String(),
	)
	return nil
}

func (r *Registry) putLocked(conn hcs.Connection) {
	if _, exists := r.byTopic[conn.ConnectionTopicID]; !exists {
		r.order = append(r.order, conn.ConnectionTopicID)
	}
	c := conn
	r.byTopic[conn.ConnectionTopicID] = &c
}

// List returns connections whose topic id is well formed, in insertion
// order. Malformed entries stay in the registry but are never listed.
func (r *Registry) List() []hcs.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]hcs.Connection, 0, len(r.order))
	for _, id := range r.order {
		if !hcs.IsTopicID(id) {
			continue
		}
		out = append(out, *r.byTopic[id])
	}
	return out
}

// All returns every stored connection, including malformed ones.
func (r *Registry) All() []hcs.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]hcs.Connection, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.byTopic[id])
	}
	return out
}

// Len returns the number of stored connections, including malformed ones.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byTopic)
}

// Get returns the connection stored under topicID.
func (r *Registry) Get(topicID string) (hcs.Connection, bool) {
	id, err := hcs.Canonicalize(topicID)
	if err != nil {
		return hcs.Connection{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byTopic[id]
	if !ok {
		return hcs.Connection{}, false
	}
	return *c, true
}

// Resolve finds a connection by a 1-based index into List, then by topic
// id, then by counterparty account id. The first match wins.
func (r *Registry) Resolve(identifier string) (hcs.Connection, error) {
	id, err := hcs.Canonicalize(identifier)
	if err != nil {
		return hcs.Connection{}, fmt.Errorf("resolving connection: %w", err)
	}

	if idx, ok := parseIndex(id); ok {
		listed := r.List()
		if idx <= len(listed) {
			return listed[idx-1], nil
		}
	}

	if c, ok := r.Get(id); ok {
		return c, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, topic := range r.order {
		if c := r.byTopic[topic]; c.TargetAccountID == id {
			return *c, nil
		}
	}
	return hcs.Connection{}, fmt.Errorf("connection %q: %w", identifier, hcs.ErrNotFound)
}

// parseIndex accepts only plain positive decimal integers.
func parseIndex(s string) (int, bool) {
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// Touch records activity on a connection.
func (r *Registry) Touch(ctx context.Context, topicID string, at time.Time) error {
	c, ok := r.Get(topicID)
	if !ok {
		return fmt.Errorf("connection %q: %w", topicID, hcs.ErrNotFound)
	}
	if !at.After(c.LastActivity) {
		return nil
	}
	c.LastActivity = at
	return r.Add(ctx, c)
}

// Remove deletes a connection. Its checkpoint is left in place.
func (r *Registry) Remove(ctx context.Context, topicID string) error {
	id, err := hcs.Canonicalize(topicID)
	if err != nil {
		return fmt.Errorf("removing connection: %w", err)
	}

	if r.store != nil {
		if err := r.store.DeleteConnection(ctx, r.owner, id); err != nil {
			return fmt.Errorf("deleting connection %s: %w", id, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byTopic[id]; !ok {
		return nil
	}
	delete(r.byTopic, id)
	for i, t := range r.order {
		if t == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.logger.Debug("connection removed", "topic_id", id)
	return nil
}

// Enrich fills in the counterparty's profile and inbound topic, which is
// what allows a lost connection to be re-derived later.
func (r *Registry) Enrich(ctx context.Context, topicID string) (hcs.Connection, error) {
	if r.profiles == nil {
		return hcs.Connection{}, fmt.Errorf("enriching connection: %w", hcs.ErrNotInitialized)
	}
	c, ok := r.Get(topicID)
	if !ok {
		return hcs.Connection{}, fmt.Errorf("connection %q: %w", topicID, hcs.ErrNotFound)
	}
	if c.TargetAccountID == "" {
		return c, fmt.Errorf("connection %s has no counterparty account: %w", c.ConnectionTopicID, hcs.ErrInvalidState)
	}

	profile, err := r.profiles.ResolveAgentProfile(ctx, c.TargetAccountID)
	if err != nil {
		return c, fmt.Errorf("resolving profile of %s: %w", c.TargetAccountID, err)
	}

	c.Profile = profile
	if c.TargetInboundTopicID == "" {
		c.TargetInboundTopicID = profile.InboundTopicID
	}
	if c.TargetAgentName == "" {
		c.TargetAgentName = profile.Name()
	}
	if err := r.Add(ctx, c); err != nil {
		return c, err
	}
	return c, nil
}

// TryEnrich runs Enrich and logs failures instead of returning them.
// Accounts without a profile and a missing resolver are logged at debug.
func (r *Registry) TryEnrich(ctx context.Context, topicID string) hcs.Connection {
	c, err := r.Enrich(ctx, topicID)
	switch {
	case err == nil:
		r.logger.Debug("connection enriched",
			"topic_id", c.ConnectionTopicID,
			"agent_name", c.TargetAgentName,
			"inbound_topic_id", c.TargetInboundTopicID,
		)
	case errors.Is(err, hcs.ErrNotFound), errors.Is(err, hcs.ErrNotInitialized):
		r.logger.Debug("connection not enriched", "topic_id", topicID, "error", err)
	default:
		r.logger.Warn("enriching connection failed", "topic_id", topicID, "error", err)
	}
	return c
}

// ProfileOf resolves the profile of accountID without storing it.
func (r *Registry) ProfileOf(ctx context.Context, accountID string) (*hcs.Profile, error) {
	if r.profiles == nil {
		return nil, fmt.Errorf("resolving profile: %w", hcs.ErrNotInitialized)
	}
	return r.profiles.ResolveAgentProfile(ctx, accountID)
}

// Clear drops every connection from memory. Persisted rows are untouched.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = nil
	clear(r.byTopic)
}

// Checkpoints returns the checkpoint store seeded by Add.
func (r *Registry) Checkpoints() *checkpoint.Store {
	return r.checkpoints
}
