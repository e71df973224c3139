// ABOUTME: Local bookkeeping of connection requests this node has handled
// ABOUTME: Keyed by origin topic and request id; never writes to the ledger

package connections

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
)

// ProcessedStore persists processed request marks for one owner.
type ProcessedStore interface {
	MarkRequestProcessed(ctx context.Context, owner, originTopicID string, requestID int64) error
	ListProcessedRequests(ctx context.Context, owner string) ([]ProcessedRequest, error)
}

// ProcessedRequest is one persisted processed mark.
type ProcessedRequest struct {
	OriginTopicID string
	RequestID     int64
}

// ProcessedLog remembers which requests were rejected or accepted locally.
type ProcessedLog struct {
	mu    sync.RWMutex
	marks map[string]struct{}

	owner  string
	store  ProcessedStore
	logger *slog.Logger
}

// NewProcessedLog creates a ProcessedLog. store may be nil.
func NewProcessedLog(owner string, store ProcessedStore, logger *slog.Logger) *ProcessedLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessedLog{
		marks:  make(map[string]struct{}),
		owner:  owner,
		store:  store,
		logger: logger.With("component", "processed"),
	}
}

func processedKey(originTopicID string, requestID int64) string {
	return originTopicID + "#" + strconv.FormatInt(requestID, 10)
}

// Load reads persisted marks into memory.
func (p *ProcessedLog) Load(ctx context.Context) error {
	if p.store == nil {
		return nil
	}
	saved, err := p.store.ListProcessedRequests(ctx, p.owner)
	if err != nil {
		return fmt.Errorf("loading processed requests: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range saved {
		p.marks[processedKey(r.OriginTopicID, r.RequestID)] = struct{}{}
	}
	return nil
}

// MarkProcessed records requestID on originTopicID as handled.
func (p *ProcessedLog) MarkProcessed(ctx context.Context, originTopicID string, requestID int64) error {
	if originTopicID == "" {
		return fmt.Errorf("marking request %d processed: missing origin topic", requestID)
	}
	if p.store != nil {
		if err := p.store.MarkRequestProcessed(ctx, p.owner, originTopicID, requestID); err != nil {
			return fmt.Errorf("persisting processed request %d: %w", requestID, err)
		}
	}

	p.mu.Lock()
	p.marks[processedKey(originTopicID, requestID)] = struct{}{}
	p.mu.Unlock()

	p.logger.Debug("request marked processed", "origin_topic_id", originTopicID, "request_id", requestID)
	return nil
}

// IsProcessed reports whether requestID on originTopicID was handled.
func (p *ProcessedLog) IsProcessed(originTopicID string, requestID int64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.marks[processedKey(originTopicID, requestID)]
	return ok
}

// Reset forgets in-memory marks.
func (p *ProcessedLog) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.marks)
}
