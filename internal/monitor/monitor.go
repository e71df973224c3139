// ABOUTME: Deadline-bounded polling loop that accepts inbound connection requests
// ABOUTME: Applies target filter, fee policy and promotes accepted requests into the registry

package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/2389/coven-hcs10/internal/connections"
	"github.com/2389/coven-hcs10/internal/dedupe"
	"github.com/2389/coven-hcs10/internal/hcs"
)

// Defaults for a monitor run.
const (
	DefaultDuration = 120 * time.Second
	DefaultInterval = 3 * time.Second
)

// Config is the accept policy of a monitor run.
type Config struct {
	Duration time.Duration
	Interval time.Duration

	// AcceptAll accepts every request that passes the target filter.
	AcceptAll bool
	// TargetAccountID, when set, restricts the run to one requester.
	TargetAccountID string

	HbarFees         []hcs.HbarFee
	TokenFees        []hcs.TokenFee
	ExemptAccountIDs []string
	// DefaultCollector receives fees whose collector is unset. The agent's
	// own account is used when this is empty too.
	DefaultCollector string

	Memo string
}

// Deps are the collaborators of a monitor run.
type Deps struct {
	Agent    hcs.RegisteredAgent
	Reader   hcs.MessageReader
	Accepter hcs.ConnectionAccepter
	Registry *connections.Registry

	Fees      hcs.FeePolicyBuilder      // defaults to hcs.DefaultFeeBuilder
	Tracker   *connections.Tracker      // optional
	Processed connections.RequestMarker // optional

	Logger *slog.Logger
	Now    func() time.Time
	Sleep  func(ctx context.Context, d time.Duration) error
}

// Result summarizes a finished run.
type Result struct {
	Observed                 int
	Accepted                 int
	ProcessedSequenceNumbers []int64
}

// Monitor accepts connection requests arriving on one agent's inbound topic.
type Monitor struct {
	cfg  Config
	deps Deps

	seen      *dedupe.Cache[int64]
	processed *dedupe.Cache[int64]
	logger    *slog.Logger

	// cursor is the highest sequence number read so far.
	cursor  int64
	backlog []hcs.Message
}

// New validates collaborators and applies defaults.
func New(cfg Config, deps Deps) (*Monitor, error) {
	if deps.Reader == nil || deps.Accepter == nil || deps.Registry == nil {
		return nil, fmt.Errorf("creating monitor: %w", hcs.ErrNotInitialized)
	}
	if deps.Agent.InboundTopicID == "" {
		return nil, fmt.Errorf("creating monitor: agent has no inbound topic: %w", hcs.ErrInvalidState)
	}
	if (len(cfg.HbarFees) > 0 || len(cfg.TokenFees) > 0) && !hcs.AcceptsFees(deps.Accepter) {
		return nil, fmt.Errorf("creating monitor: connection fees are configured but the accepter cannot create fee-gated topics: %w", hcs.ErrInvalidState)
	}
	if cfg.Duration <= 0 {
		cfg.Duration = DefaultDuration
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if deps.Fees == nil {
		deps.Fees = hcs.DefaultFeeBuilder
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Sleep == nil {
		deps.Sleep = sleep
	}

	return &Monitor{
		cfg:       cfg,
		deps:      deps,
		seen:      dedupe.New[int64](0, 0),
		processed: dedupe.New[int64](0, 0),
		logger:    deps.Logger.With("component", "monitor", "inbound_topic_id", deps.Agent.InboundTopicID),
	}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run polls until the configured duration has elapsed or ctx is done.
// Fetch and accept failures are logged and never end the run; the
// returned error is always nil unless the fee configuration is invalid.
func (m *Monitor) Run(ctx context.Context) (*Result, error) {
	policy, err := m.feePolicy()
	if err != nil {
		return nil, fmt.Errorf("building fee policy: %w", err)
	}

	res := &Result{}
	deadline := m.deps.Now().Add(m.cfg.Duration)
	m.logger.Info("monitor started",
		"duration", m.cfg.Duration,
		"interval", m.cfg.Interval,
		"accept_all", m.cfg.AcceptAll,
		"target_account_id", m.cfg.TargetAccountID,
	)

	for {
		m.poll(ctx, policy, res)
		if !m.deps.Now().Before(deadline) {
			break
		}
		if err := m.deps.Sleep(ctx, m.cfg.Interval); err != nil {
			m.logger.Info("monitor stopped early", "reason", err)
			break
		}
	}

	res.ProcessedSequenceNumbers = m.processed.Keys()
	m.logger.Info("monitor finished",
		"observed", res.Observed,
		"accepted", res.Accepted,
	)
	return res, nil
}

// poll reads the inbound topic past the cursor and works through the
// request backlog. Requests leave the backlog once they are settled.
func (m *Monitor) poll(ctx context.Context, policy *hcs.FeePolicy, res *Result) {
	msgs, err := m.deps.Reader.FetchMessages(ctx, m.deps.Agent.InboundTopicID, hcs.Query{AfterSequence: m.cursor})
	if err != nil {
		m.logger.Warn("fetching inbound topic failed", "after_sequence", m.cursor, "error", err)
		return
	}

	for _, msg := range msgs {
		m.cursor = max(m.cursor, msg.SequenceNumber)
		if msg.Op != hcs.OpConnectionRequest || msg.SequenceNumber <= 0 {
			continue
		}
		if m.seen.CheckAndMark(msg.SequenceNumber) {
			continue
		}
		res.Observed++
		m.backlog = append(m.backlog, msg)
	}

	m.backlog = slices.DeleteFunc(m.backlog, func(msg hcs.Message) bool {
		return m.handle(ctx, msg, policy, res)
	})
}

// handle reports whether the request is settled. Requests outside the
// accept policy and failed accepts stay pending for later polls.
func (m *Monitor) handle(ctx context.Context, msg hcs.Message, policy *hcs.FeePolicy, res *Result) bool {
	seq := msg.SequenceNumber
	if m.processed.Check(seq) {
		return true
	}
	if m.deps.Processed != nil && m.deps.Processed.IsProcessed(m.deps.Agent.InboundTopicID, seq) {
		return true
	}

	op, err := msg.Operator()
	if err != nil {
		m.logger.Warn("skipping request with bad operator id", "sequence_number", seq, "error", err)
		return true
	}
	if !m.shouldAccept(op.AccountID) {
		return false
	}

	if err := m.accept(ctx, msg, op, policy); err != nil {
		m.logger.Warn("accepting connection request failed",
			"sequence_number", seq,
			"requester_account_id", op.AccountID,
			"error", err,
		)
		return false
	}
	res.Accepted++
	return true
}

// shouldAccept applies the target filter first; a mismatch is skipped
// without being marked processed so it stays eligible on later polls.
func (m *Monitor) shouldAccept(requester string) bool {
	if m.cfg.TargetAccountID != "" && requester != m.cfg.TargetAccountID {
		return false
	}
	return m.cfg.AcceptAll || requester == m.cfg.TargetAccountID
}

func (m *Monitor) accept(ctx context.Context, msg hcs.Message, op hcs.OperatorID, policy *hcs.FeePolicy) error {
	agent := m.deps.Agent
	seq := msg.SequenceNumber

	out, err := m.deps.Accepter.HandleConnectionRequest(ctx, hcs.AcceptRequest{
		InboundTopicID:     agent.InboundTopicID,
		OutboundTopicID:    agent.OutboundTopicID,
		OperatorID:         agent.OperatorID(),
		RequesterAccountID: op.AccountID,
		RequestID:          seq,
		FeePolicy:          policy,
		Memo:               m.cfg.Memo,
	})
	if err != nil {
		return err
	}
	if out == nil || out.ConnectionTopicID == "" {
		return fmt.Errorf("no connection topic returned: %w", hcs.ErrInvalidState)
	}

	// The connection exists on the ledger from here on, so the request is
	// marked processed even if local bookkeeping fails.
	m.processed.Mark(seq)
	if m.deps.Processed != nil {
		if err := m.deps.Processed.MarkProcessed(ctx, agent.InboundTopicID, seq); err != nil {
			m.logger.Warn("persisting processed request failed", "sequence_number", seq, "error", err)
		}
	}

	now := m.deps.Now()
	conn := hcs.Connection{
		ConnectionTopicID:    out.ConnectionTopicID,
		TargetAccountID:      op.AccountID,
		TargetInboundTopicID: op.TopicID,
		Status:               hcs.StatusEstablished,
		Created:              now,
		LastActivity:         now,
		ConnectionRequestID:  seq,
	}
	if err := m.deps.Registry.Add(ctx, conn); err != nil {
		m.logger.Warn("recording accepted connection failed", "connection_topic_id", out.ConnectionTopicID, "error", err)
	} else {
		m.deps.Registry.TryEnrich(ctx, out.ConnectionTopicID)
	}

	key := hcs.RequestKey(seq, agent.InboundTopicID, op.AccountID)
	if m.deps.Tracker != nil {
		m.deps.Tracker.Remove(key)
	}
	if _, ok := m.deps.Registry.Get(connections.PlaceholderTopicID(key)); ok {
		if err := m.deps.Registry.Remove(ctx, connections.PlaceholderTopicID(key)); err != nil {
			m.logger.Warn("removing request placeholder failed", "request_key", key, "error", err)
		}
	}

	m.logger.Info("connection request accepted",
		"sequence_number", seq,
		"requester_account_id", op.AccountID,
		"connection_topic_id", out.ConnectionTopicID,
	)
	return nil
}

// feePolicy builds the policy attached to every connection accepted in
// this run, or nil when no fees are configured.
func (m *Monitor) feePolicy() (*hcs.FeePolicy, error) {
	if len(m.cfg.HbarFees) == 0 && len(m.cfg.TokenFees) == 0 {
		return nil, nil
	}
	collector := m.cfg.DefaultCollector
	if collector == "" {
		collector = m.deps.Agent.AccountID
	}

	hbar := make([]hcs.HbarFee, len(m.cfg.HbarFees))
	for i, f := range m.cfg.HbarFees {
		if f.CollectorAccount == "" {
			f.CollectorAccount = collector
		}
		hbar[i] = f
	}
	tokens := make([]hcs.TokenFee, len(m.cfg.TokenFees))
	for i, f := range m.cfg.TokenFees {
		if f.CollectorAccount == "" {
			f.CollectorAccount = collector
		}
		tokens[i] = f
	}

	return m.deps.Fees.BuildFeePolicy(hbar, tokens, m.cfg.ExemptAccountIDs)
}
