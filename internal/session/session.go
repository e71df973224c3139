// ABOUTME: Session holds the registry, tracker, checkpoints and correlator of one agent
// ABOUTME: Loads persisted state on creation and routes operations by connection identifier

package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-hcs10/internal/checkpoint"
	"github.com/2389/coven-hcs10/internal/connections"
	"github.com/2389/coven-hcs10/internal/hcs"
	"github.com/2389/coven-hcs10/internal/messaging"
	"github.com/2389/coven-hcs10/internal/monitor"
)

// Store persists everything a Session owns, partitioned by agent account id.
type Store interface {
	checkpoint.Persister
	connections.ConnectionStore
	connections.ProcessedStore
}

// Deps are shared by every Session a process creates.
type Deps struct {
	Channel  hcs.Channel
	Accepter hcs.ConnectionAccepter // optional; required for Monitor
	Store    Store                  // optional
	Fees     hcs.FeePolicyBuilder   // optional

	Messaging messaging.Options
	Logger    *slog.Logger
	Now       func() time.Time
}

// Session is the connection state of one registered agent.
type Session struct {
	ID    string
	Agent hcs.RegisteredAgent

	Checkpoints *checkpoint.Store
	Registry    *connections.Registry
	Tracker     *connections.Tracker
	Processed   *connections.ProcessedLog
	Syncer      *connections.Syncer
	Messages    *messaging.Correlator

	deps   Deps
	logger *slog.Logger
}

// New creates a Session for agent and loads its persisted state.
func New(ctx context.Context, agent hcs.RegisteredAgent, deps Deps) (*Session, error) {
	agent, err := agent.Normalize()
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	id := uuid.New().String()
	logger := deps.Logger.With("session_id", id, "agent_account_id", agent.AccountID)
	owner := agent.AccountID

	// Each collaborator takes an interface; a nil Store must stay a nil
	// interface rather than a typed nil.
	var (
		persister checkpoint.Persister
		connStore connections.ConnectionStore
		procStore connections.ProcessedStore
		profiles  hcs.ProfileResolver
		reader    hcs.MessageReader
		channel   messaging.Channel
	)
	if deps.Store != nil {
		persister, connStore, procStore = deps.Store, deps.Store, deps.Store
	}
	if deps.Channel != nil {
		profiles, reader, channel = deps.Channel, deps.Channel, deps.Channel
	}

	cps := checkpoint.New(owner, persister, logger)
	processed := connections.NewProcessedLog(owner, procStore, logger)
	registry := connections.NewRegistry(connections.RegistryOptions{
		Profiles:    profiles,
		Checkpoints: cps,
		Owner:       owner,
		Store:       connStore,
		Logger:      logger,
		Now:         deps.Now,
	})
	tracker := connections.NewTracker(processed, logger)

	s := &Session{
		ID:          id,
		Agent:       agent,
		Checkpoints: cps,
		Registry:    registry,
		Tracker:     tracker,
		Processed:   processed,
		Syncer:      connections.NewSyncer(agent, reader, registry, tracker, processed, logger),
		Messages:    messaging.New(channel, cps, agent.OperatorID(), deps.Messaging, logger),
		deps:        deps,
		logger:      logger.With("component", "session"),
	}

	if err := cps.Load(ctx); err != nil {
		return nil, err
	}
	if err := processed.Load(ctx); err != nil {
		return nil, err
	}
	if err := registry.Load(ctx); err != nil {
		return nil, err
	}

	s.logger.Debug("session created", "connections", registry.Len())
	return s, nil
}

// Sync refreshes connections and pending requests from the agent's topics.
func (s *Session) Sync(ctx context.Context) (*connections.SyncResult, error) {
	return s.Syncer.Sync(ctx)
}

// Reject drops a pending request locally and removes its placeholder.
func (s *Session) Reject(ctx context.Context, key string) (hcs.ConnectionRequest, error) {
	req, err := s.Tracker.Reject(ctx, key)
	if err != nil {
		return req, err
	}
	placeholder := connections.PlaceholderTopicID(req.UniqueRequestKey)
	if _, ok := s.Registry.Get(placeholder); ok {
		if err := s.Registry.Remove(ctx, placeholder); err != nil {
			return req, err
		}
	}
	return req, nil
}

// established resolves identifier to a connection that has a topic.
func (s *Session) established(identifier string) (hcs.Connection, error) {
	conn, err := s.Registry.Resolve(identifier)
	if err != nil {
		return conn, err
	}
	if conn.Status != hcs.StatusEstablished {
		return conn, fmt.Errorf("connection %s is %s: %w", conn.ConnectionTopicID, conn.Status, hcs.ErrInvalidState)
	}
	return conn, nil
}

// Send writes text to the connection named by identifier (list index,
// topic id or account id) and optionally waits for the reply.
func (s *Session) Send(ctx context.Context, identifier, text string, opts messaging.SendOptions) (*messaging.Reply, error) {
	conn, err := s.established(identifier)
	if err != nil {
		return nil, err
	}
	reply, err := s.Messages.SendAndAwaitReply(ctx, conn.ConnectionTopicID, text, opts)
	if err != nil {
		return nil, err
	}
	s.touch(ctx, conn.ConnectionTopicID, s.deps.Now())
	return reply, nil
}

// Check reads unread (or, with FetchLatest, the latest) messages of the
// connection named by identifier.
func (s *Session) Check(ctx context.Context, identifier string, opts messaging.CheckOptions) (*messaging.CheckResult, error) {
	conn, err := s.established(identifier)
	if err != nil {
		return nil, err
	}
	res, err := s.Messages.CheckNewMessages(ctx, conn.ConnectionTopicID, opts)
	if err != nil {
		return nil, err
	}
	if n := len(res.Messages); n > 0 {
		s.touch(ctx, conn.ConnectionTopicID, res.Messages[n-1].ConsensusAt)
	}
	return res, nil
}

func (s *Session) touch(ctx context.Context, topicID string, at time.Time) {
	if err := s.Registry.Touch(ctx, topicID, at); err != nil {
		s.logger.Warn("recording connection activity failed", "topic_id", topicID, "error", err)
	}
}

// Monitor builds a monitor loop bound to this session's state.
func (s *Session) Monitor(cfg monitor.Config) (*monitor.Monitor, error) {
	if s.deps.Accepter == nil || s.deps.Channel == nil {
		return nil, fmt.Errorf("starting monitor: %w", hcs.ErrNotInitialized)
	}
	return monitor.New(cfg, monitor.Deps{
		Agent:     s.Agent,
		Reader:    s.deps.Channel,
		Accepter:  s.deps.Accepter,
		Registry:  s.Registry,
		Fees:      s.deps.Fees,
		Tracker:   s.Tracker,
		Processed: s.Processed,
		Logger:    s.deps.Logger.With("session_id", s.ID),
		Now:       s.deps.Now,
	})
}
