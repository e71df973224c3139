// ABOUTME: Tracks connection requests that have not been promoted to connections
// ABOUTME: List, view and reject are local-only; reject submits nothing to the ledger

package connections

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/2389/coven-hcs10/internal/hcs"
)

// RequestMarker records handled requests so they drop out of the pending set.
type RequestMarker interface {
	MarkProcessed(ctx context.Context, originTopicID string, requestID int64) error
	IsProcessed(originTopicID string, requestID int64) bool
}

// Tracker holds inbound and outbound requests awaiting confirmation.
type Tracker struct {
	mu       sync.RWMutex
	order    []string
	requests map[string]*hcs.ConnectionRequest

	marker RequestMarker
	logger *slog.Logger
}

// NewTracker creates an empty Tracker.
func NewTracker(marker RequestMarker, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		requests: make(map[string]*hcs.ConnectionRequest),
		marker:   marker,
		logger:   logger.With("component", "tracker"),
	}
}

// Upsert adds or replaces a request. Requests already marked processed are
// ignored and Upsert reports false.
func (t *Tracker) Upsert(req hcs.ConnectionRequest) bool {
	if req.UniqueRequestKey == "" {
		req.UniqueRequestKey = hcs.RequestKey(req.RequestID(), req.ProcessingTopicID(), req.Counterparty())
	}
	if t.marker != nil && req.ProcessingTopicID() != "" && t.marker.IsProcessed(req.ProcessingTopicID(), req.RequestID()) {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.requests[req.UniqueRequestKey]; !exists {
		t.order = append(t.order, req.UniqueRequestKey)
	}
	r := req
	t.requests[req.UniqueRequestKey] = &r
	return true
}

// Remove drops the request stored under its unique key.
func (t *Tracker) Remove(uniqueKey string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(uniqueKey)
}

func (t *Tracker) removeLocked(uniqueKey string) {
	if _, ok := t.requests[uniqueKey]; !ok {
		return
	}
	delete(t.requests, uniqueKey)
	for i, k := range t.order {
		if k == uniqueKey {
			t.order = append(t.order[:i], t.order[i+1:]...)
			return
		}
	}
}

// ListPending returns outgoing requests awaiting the counterparty and
// incoming requests awaiting local confirmation, in arrival order.
func (t *Tracker) ListPending() []hcs.ConnectionRequest {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]hcs.ConnectionRequest, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, *t.requests[k])
	}
	return out
}

// View finds a request by unique key, falling back to the outbound
// connection request id or the inbound request id.
func (t *Tracker) View(key string) (hcs.ConnectionRequest, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if r, ok := t.requests[key]; ok {
		return *r, nil
	}
	for _, k := range t.order {
		if r := t.requests[k]; r.MatchesKey(key) {
			return *r, nil
		}
	}
	return hcs.ConnectionRequest{}, fmt.Errorf("connection request %q: %w", key, hcs.ErrNotFound)
}

// Reject marks the request processed against its origin topic and drops it
// from the pending set. No message is sent to the counterparty, which may
// therefore still consider the request outstanding.
func (t *Tracker) Reject(ctx context.Context, key string) (hcs.ConnectionRequest, error) {
	req, err := t.View(key)
	if err != nil {
		return hcs.ConnectionRequest{}, err
	}
	if t.marker == nil {
		return req, fmt.Errorf("rejecting request: %w", hcs.ErrNotInitialized)
	}

	if err := t.marker.MarkProcessed(ctx, req.ProcessingTopicID(), req.RequestID()); err != nil {
		return req, fmt.Errorf("rejecting request %s: %w", req.UniqueRequestKey, err)
	}
	t.Remove(req.UniqueRequestKey)

	t.logger.Info("connection request rejected",
		"request_key", req.UniqueRequestKey,
		"type", string(req.Type()),
		"counterparty", req.Counterparty(),
	)
	return req, nil
}

// Clear drops every tracked request.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.order = nil
	clear(t.requests)
}
