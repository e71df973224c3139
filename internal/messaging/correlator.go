// ABOUTME: Sends messages on connection topics and correlates replies by sequence number
// ABOUTME: Also reads unread messages per topic using the checkpoint store as cursor

package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-hcs10/internal/checkpoint"
	"github.com/2389/coven-hcs10/internal/hcs"
)

// Defaults for reply polling.
const (
	DefaultReplyAttempts = 30
	DefaultReplyInterval = 4 * time.Second
)

// Channel is what the correlator needs from the ledger side.
type Channel interface {
	hcs.MessageReader
	hcs.MessageSubmitter
	hcs.PayloadResolver
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Options tunes reply polling. Zero values take the defaults.
type Options struct {
	Attempts int
	Interval time.Duration
	Sleep    SleepFunc
}

// Correlator sends on behalf of one operator and reads its connection topics.
type Correlator struct {
	channel     Channel
	checkpoints *checkpoint.Store
	operatorID  string
	attempts    int
	interval    time.Duration
	sleep       SleepFunc
	logger      *slog.Logger
}

// New creates a Correlator. operatorID is the sender's own topicId@accountId;
// messages carrying it are never treated as replies.
func New(channel Channel, checkpoints *checkpoint.Store, operatorID string, opts Options, logger *slog.Logger) *Correlator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultReplyAttempts
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultReplyInterval
	}
	if opts.Sleep == nil {
		opts.Sleep = Sleep
	}
	return &Correlator{
		channel:     channel,
		checkpoints: checkpoints,
		operatorID:  operatorID,
		attempts:    opts.Attempts,
		interval:    opts.Interval,
		sleep:       opts.Sleep,
		logger:      logger.With("component", "messaging"),
	}
}

// SendOptions controls a single send.
type SendOptions struct {
	ExpectReply bool
	Memo        string
}

// Reply is the outcome of SendAndAwaitReply. Found is false both when no
// reply was requested and when none arrived within the attempt budget.
// CorrelationID doubles as the envelope memo when the caller gave none.
type Reply struct {
	SentSequenceNumber int64
	TransactionID      string
	CorrelationID      string
	Found              bool
	Message            hcs.Message
	Content            string
}

// SendAndAwaitReply submits payload to topicID as an HCS-10 message and,
// when asked, polls for the first later message from another operator.
func (c *Correlator) SendAndAwaitReply(ctx context.Context, topicID, payload string, opts SendOptions) (*Reply, error) {
	if c.channel == nil {
		return nil, fmt.Errorf("sending message: %w", hcs.ErrNotInitialized)
	}
	topicID, err := hcs.Canonicalize(topicID)
	if err != nil {
		return nil, fmt.Errorf("sending message: %w", err)
	}

	correlationID := uuid.New().String()
	memo := opts.Memo
	if memo == "" {
		memo = correlationID
	}

	body, err := hcs.EncodeEnvelope(hcs.Envelope{
		Op:         hcs.OpMessage,
		OperatorID: c.operatorID,
		Data:       payload,
		Memo:       memo,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding message: %w", err)
	}

	receipt, err := c.channel.SubmitMessage(ctx, topicID, body, memo)
	if err != nil {
		return nil, fmt.Errorf("submitting message to %s: %w", topicID, err)
	}

	c.logger.Debug("message submitted",
		"topic_id", topicID,
		"sequence_number", receipt.SequenceNumber,
		"transaction_id", receipt.TransactionID,
		"correlation_id", correlationID,
	)

	reply := &Reply{
		SentSequenceNumber: receipt.SequenceNumber,
		TransactionID:      receipt.TransactionID,
		CorrelationID:      correlationID,
	}
	if !opts.ExpectReply {
		return reply, nil
	}

	for attempt := 1; attempt <= c.attempts; attempt++ {
		if err := c.sleep(ctx, c.interval); err != nil {
			return reply, err
		}

		msgs, err := c.channel.FetchMessages(ctx, topicID, hcs.Query{AfterSequence: receipt.SequenceNumber})
		if err != nil {
			c.logger.Warn("reply poll failed",
				"topic_id", topicID,
				"attempt", attempt,
				"correlation_id", correlationID,
				"error", err,
			)
			continue
		}

		m, ok := c.findReply(msgs, receipt.SequenceNumber)
		if !ok {
			continue
		}

		reply.Found = true
		reply.Message = m
		reply.Content = c.resolve(ctx, m.Data)
		c.logger.Debug("reply received",
			"topic_id", topicID,
			"sequence_number", m.SequenceNumber,
			"attempt", attempt,
			"correlation_id", correlationID,
		)
		return reply, nil
	}

	c.logger.Info("no reply within attempt budget",
		"topic_id", topicID,
		"attempts", c.attempts,
		"correlation_id", correlationID,
	)
	return reply, nil
}

// findReply scans in stream order for the first message after sentSeq that
// was not written by this operator.
func (c *Correlator) findReply(msgs []hcs.Message, sentSeq int64) (hcs.Message, bool) {
	for _, m := range msgs {
		if m.SequenceNumber > sentSeq && m.OperatorID != c.operatorID {
			return m, true
		}
	}
	return hcs.Message{}, false
}

// resolve dereferences a pointer payload. Resolution failures are logged
// and the pointer itself is returned.
func (c *Correlator) resolve(ctx context.Context, data string) string {
	if !hcs.IsPointer(data) {
		return data
	}
	content, err := c.channel.ResolveIndirectPayload(ctx, data)
	if err != nil {
		c.logger.Warn("resolving pointer failed", "pointer", data, "error", err)
		return data
	}
	return content
}

// CheckOptions selects between unread and peek modes.
type CheckOptions struct {
	// FetchLatest ignores the checkpoint and returns the last LastN messages
	// without advancing it.
	FetchLatest bool
	LastN       int
}

// InboundMessage is a resolved, formatted topic message.
type InboundMessage struct {
	hcs.Message
	Content string
	hcs.Formatted
}

// CheckResult is the outcome of CheckNewMessages.
type CheckResult struct {
	TopicID  string
	Messages []InboundMessage
	// Checkpoint is the cursor after the call.
	Checkpoint int64
}

// CheckNewMessages returns messages newer than the topic's checkpoint and
// advances the checkpoint to the newest one once all are resolved. In
// FetchLatest mode it returns the last LastN messages and leaves the
// checkpoint alone.
func (c *Correlator) CheckNewMessages(ctx context.Context, topicID string, opts CheckOptions) (*CheckResult, error) {
	if c.channel == nil {
		return nil, fmt.Errorf("checking messages: %w", hcs.ErrNotInitialized)
	}
	topicID, err := hcs.Canonicalize(topicID)
	if err != nil {
		return nil, fmt.Errorf("checking messages: %w", err)
	}

	q := hcs.Query{AfterTimestamp: c.checkpoints.Get(topicID)}
	if opts.FetchLatest {
		q = hcs.Query{Latest: max(opts.LastN, 1)}
	}
	msgs, err := c.channel.FetchMessages(ctx, topicID, q)
	if err != nil {
		return nil, fmt.Errorf("fetching messages on %s: %w", topicID, err)
	}
	selected := q.Apply(msgs)

	res := &CheckResult{TopicID: topicID, Messages: make([]InboundMessage, 0, len(selected))}
	var newest int64
	for _, m := range selected {
		content := c.resolve(ctx, m.Data)
		sender := m.OperatorID
		if op, err := m.Operator(); err == nil {
			sender = op.AccountID
		}
		res.Messages = append(res.Messages, InboundMessage{
			Message:   m,
			Content:   content,
			Formatted: hcs.FormatContent(content, sender),
		})
		newest = max(newest, m.TimestampNanos())
	}

	if !opts.FetchLatest && newest > 0 {
		if _, err := c.checkpoints.Update(ctx, topicID, newest); err != nil {
			return nil, fmt.Errorf("advancing checkpoint for %s: %w", topicID, err)
		}
	}
	res.Checkpoint = c.checkpoints.Get(topicID)
	return res, nil
}

// GetMessages returns every message on topicID with pointers resolved,
// ordered by consensus timestamp.
func (c *Correlator) GetMessages(ctx context.Context, topicID string) ([]InboundMessage, error) {
	if c.channel == nil {
		return nil, fmt.Errorf("getting messages: %w", hcs.ErrNotInitialized)
	}
	topicID, err := hcs.Canonicalize(topicID)
	if err != nil {
		return nil, fmt.Errorf("getting messages: %w", err)
	}

	msgs, err := c.channel.FetchMessages(ctx, topicID, hcs.Query{})
	if err != nil {
		return nil, fmt.Errorf("fetching messages on %s: %w", topicID, err)
	}

	out := make([]InboundMessage, 0, len(msgs))
	for _, m := range msgs {
		content := c.resolve(ctx, m.Data)
		out = append(out, InboundMessage{
			Message:   m,
			Content:   content,
			Formatted: hcs.FormatContent(content, m.OperatorID),
		})
	}
	slices.SortStableFunc(out, func(a, b InboundMessage) int {
		return a.ConsensusAt.Compare(b.ConsensusAt)
	})
	return out, nil
}
