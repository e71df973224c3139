// ABOUTME: Folds an agent's inbound and outbound topic logs into registry and tracker
// ABOUTME: Unconfirmed requests get placeholder entries that never appear in List

package connections

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/2389/coven-hcs10/internal/hcs"
)

// placeholderPrefix keys registry entries for requests that have no
// connection topic yet. Such ids never match the topic id shape.
const placeholderPrefix = "req:"

// PlaceholderTopicID is the registry key used for an unconfirmed request.
func PlaceholderTopicID(uniqueRequestKey string) string {
	return placeholderPrefix + uniqueRequestKey
}

// SyncResult summarizes one Sync pass.
type SyncResult struct {
	Established int
	Incoming    int
	Outgoing    int
	Closed      int
}

// Syncer rebuilds connection state from the topic logs of one agent.
type Syncer struct {
	agent    hcs.RegisteredAgent
	reader   hcs.MessageReader
	registry *Registry
	tracker  *Tracker
	marker   RequestMarker
	logger   *slog.Logger
}

// NewSyncer creates a Syncer.
func NewSyncer(agent hcs.RegisteredAgent, reader hcs.MessageReader, registry *Registry, tracker *Tracker, marker RequestMarker, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		agent:    agent,
		reader:   reader,
		registry: registry,
		tracker:  tracker,
		marker:   marker,
		logger:   logger.With("component", "sync"),
	}
}

// Sync reads the inbound topic, then the outbound topic when the agent has one.
func (s *Syncer) Sync(ctx context.Context) (*SyncResult, error) {
	if s.reader == nil {
		return nil, fmt.Errorf("syncing connections: %w", hcs.ErrNotInitialized)
	}
	res := &SyncResult{}

	inbound, err := s.reader.FetchMessages(ctx, s.agent.InboundTopicID, hcs.Query{})
	if err != nil {
		return nil, fmt.Errorf("fetching inbound topic %s: %w", s.agent.InboundTopicID, err)
	}
	if err := s.foldInbound(ctx, inbound, res); err != nil {
		return nil, err
	}

	if s.agent.OutboundTopicID != "" {
		outbound, err := s.reader.FetchMessages(ctx, s.agent.OutboundTopicID, hcs.Query{})
		if err != nil {
			return nil, fmt.Errorf("fetching outbound topic %s: %w", s.agent.OutboundTopicID, err)
		}
		if err := s.foldOutbound(ctx, outbound, res); err != nil {
			return nil, err
		}
	}

	s.logger.Debug("connections synced",
		"established", res.Established,
		"incoming", res.Incoming,
		"outgoing", res.Outgoing,
		"closed", res.Closed,
	)
	return res, nil
}

func (s *Syncer) foldInbound(ctx context.Context, msgs []hcs.Message, res *SyncResult) error {
	inbound := s.agent.InboundTopicID
	created := make(map[int64]bool)

	for _, m := range msgs {
		if m.Op != hcs.OpConnectionCreated || m.ConnectionTopicID == "" {
			continue
		}
		created[m.ConnectionID] = true
		if err := s.establish(ctx, m, m.ConnectionID); err != nil {
			return err
		}
		res.Established++
	}

	for _, m := range msgs {
		if m.Op != hcs.OpConnectionRequest || m.SequenceNumber <= 0 {
			continue
		}
		op, err := m.Operator()
		if err != nil {
			s.logger.Warn("skipping request with bad operator id", "sequence_number", m.SequenceNumber, "error", err)
			continue
		}

		req := hcs.ConnectionRequest{
			UniqueRequestKey:     hcs.RequestKey(m.SequenceNumber, inbound, op.AccountID),
			RequesterAccountID:   op.AccountID,
			InboundRequestID:     m.SequenceNumber,
			TargetInboundTopicID: inbound,
			Memo:                 m.Memo,
			Created:              m.ConsensusAt,
			NeedsConfirmation:    true,
		}
		if created[m.SequenceNumber] {
			s.forget(ctx, req.UniqueRequestKey)
			continue
		}
		if s.marker != nil && s.marker.IsProcessed(inbound, m.SequenceNumber) {
			continue
		}
		if !s.tracker.Upsert(req) {
			continue
		}
		if err := s.placeholder(ctx, req, hcs.StatusNeedsConfirmation, op.TopicID); err != nil {
			return err
		}
		res.Incoming++
	}
	return nil
}

func (s *Syncer) foldOutbound(ctx context.Context, msgs []hcs.Message, res *SyncResult) error {
	outbound := s.agent.OutboundTopicID
	created := make(map[int64]bool)
	closed := make(map[string]bool)

	for _, m := range msgs {
		if m.Op == hcs.OpCloseConnection && m.ConnectionTopicID != "" {
			closed[m.ConnectionTopicID] = true
		}
	}

	for _, m := range msgs {
		if m.Op != hcs.OpConnectionCreated || m.ConnectionTopicID == "" {
			continue
		}
		created[m.ConnectionRequestID] = true
		if closed[m.ConnectionTopicID] {
			continue
		}
		if err := s.establish(ctx, m, m.ConnectionRequestID); err != nil {
			return err
		}
		res.Established++
	}

	for _, m := range msgs {
		if m.Op != hcs.OpConnectionRequest || m.ConnectionRequestID <= 0 {
			continue
		}
		req := hcs.ConnectionRequest{
			UniqueRequestKey:    hcs.RequestKey(m.ConnectionRequestID, outbound, m.ConnectedAccountID),
			RequesterAccountID:  s.agent.AccountID,
			TargetAccountID:     m.ConnectedAccountID,
			ConnectionRequestID: m.ConnectionRequestID,
			OriginTopicID:       outbound,
			Memo:                m.Memo,
			Created:             m.ConsensusAt,
		}
		if created[m.ConnectionRequestID] {
			s.forget(ctx, req.UniqueRequestKey)
			continue
		}
		if s.marker != nil && s.marker.IsProcessed(outbound, m.ConnectionRequestID) {
			continue
		}
		if !s.tracker.Upsert(req) {
			continue
		}
		if err := s.placeholder(ctx, req, hcs.StatusPending, ""); err != nil {
			return err
		}
		res.Outgoing++
	}

	for topicID := range closed {
		if _, ok := s.registry.Get(topicID); !ok {
			continue
		}
		if err := s.registry.Remove(ctx, topicID); err != nil {
			return err
		}
		res.Closed++
	}
	return nil
}

// establish records a confirmed connection unless an established record
// already exists, so richer data from earlier enrichment is kept.
func (s *Syncer) establish(ctx context.Context, m hcs.Message, requestID int64) error {
	if existing, ok := s.registry.Get(m.ConnectionTopicID); ok && existing.Status == hcs.StatusEstablished {
		return nil
	}
	conn := hcs.Connection{
		ConnectionTopicID:   m.ConnectionTopicID,
		TargetAccountID:     m.ConnectedAccountID,
		Status:              hcs.StatusEstablished,
		Created:             m.ConsensusAt,
		LastActivity:        m.ConsensusAt,
		ConnectionRequestID: requestID,
	}
	if err := s.registry.Add(ctx, conn); err != nil {
		return fmt.Errorf("recording connection %s: %w", m.ConnectionTopicID, err)
	}
	s.registry.TryEnrich(ctx, m.ConnectionTopicID)
	return nil
}

func (s *Syncer) placeholder(ctx context.Context, req hcs.ConnectionRequest, status hcs.Status, inboundTopic string) error {
	conn := hcs.Connection{
		ConnectionTopicID:    PlaceholderTopicID(req.UniqueRequestKey),
		TargetAccountID:      req.Counterparty(),
		TargetInboundTopicID: inboundTopic,
		Status:               status,
		Created:              req.Created,
		ConnectionRequestID:  req.RequestID(),
		UniqueRequestKey:     req.UniqueRequestKey,
	}
	if err := s.registry.Add(ctx, conn); err != nil {
		return fmt.Errorf("recording request %s: %w", req.UniqueRequestKey, err)
	}
	return nil
}

// forget drops a request that has been promoted.
func (s *Syncer) forget(ctx context.Context, uniqueKey string) {
	s.tracker.Remove(uniqueKey)
	if err := s.registry.Remove(ctx, PlaceholderTopicID(uniqueKey)); err != nil {
		s.logger.Warn("removing placeholder failed", "request_key", uniqueKey, "error", err)
	}
}
