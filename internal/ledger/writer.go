// ABOUTME: Writer submits HCS-10 messages and accepts connection requests
// ABOUTME: Accepting creates a connection topic and announces it on the inbound topic

package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/2389/coven-hcs10/internal/hcs"
)

// DefaultConnectionTTL is the ttl field written into connection topic memos.
const DefaultConnectionTTL = 60

// Options configures a Writer.
type Options struct {
	// Network is mainnet, testnet or previewnet.
	Network     string
	OperatorID  string
	OperatorKey string
	Logger      *slog.Logger
}

// Writer is the ledger write side for one operator.
type Writer struct {
	backend backend
	logger  *slog.Logger
}

// New creates a Writer backed by the Hedera SDK.
func New(opts Options) (*Writer, error) {
	if opts.OperatorID == "" || opts.OperatorKey == "" {
		return nil, fmt.Errorf("ledger writer needs operator credentials: %w", hcs.ErrNotInitialized)
	}
	b, err := newSDKBackend(opts.Network, opts.OperatorID, opts.OperatorKey)
	if err != nil {
		return nil, err
	}
	return newWriter(b, opts.Logger), nil
}

func newWriter(b backend, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{backend: b, logger: logger.With("component", "ledger")}
}

// SubmitMessage appends payload to topicID.
func (w *Writer) SubmitMessage(ctx context.Context, topicID string, payload []byte, memo string) (*hcs.SubmitReceipt, error) {
	topicID, err := hcs.Canonicalize(topicID)
	if err != nil {
		return nil, fmt.Errorf("submitting message: %w", err)
	}
	receipt, err := w.backend.submit(ctx, topicID, payload, memo)
	if err != nil {
		return nil, err
	}
	w.logger.Debug("message submitted",
		"topic_id", topicID,
		"sequence_number", receipt.SequenceNumber,
		"transaction_id", receipt.TransactionID,
		"bytes", len(payload),
	)
	return receipt, nil
}

// CreateTopic creates a topic administered by the operator key.
func (w *Writer) CreateTopic(ctx context.Context, memo string) (string, error) {
	topicID, err := w.backend.createTopic(ctx, memo)
	if err != nil {
		return "", err
	}
	w.logger.Info("topic created", "topic_id", topicID, "memo", memo)
	return topicID, nil
}

// ConnectionTopicMemo is the memo of a connection topic created in answer
// to requestID on inboundTopicID.
func ConnectionTopicMemo(inboundTopicID string, requestID int64) string {
	return fmt.Sprintf("hcs-10:1:%d:2:%s:%d", DefaultConnectionTTL, inboundTopicID, requestID)
}

// SupportsFeePolicy reports false: connection topics are created without
// custom fees, so fee-gated accepts are refused.
func (w *Writer) SupportsFeePolicy() bool {
	return false
}

// HandleConnectionRequest creates the connection topic for an inbound
// request and announces it with connection_created on the inbound topic.
// The same announcement is logged to the outbound topic when one is
// given; a failure there does not fail the accept.
func (w *Writer) HandleConnectionRequest(ctx context.Context, req hcs.AcceptRequest) (*hcs.AcceptResult, error) {
	if req.RequestID <= 0 || req.InboundTopicID == "" || req.RequesterAccountID == "" {
		return nil, fmt.Errorf("accepting request %d: incomplete request: %w", req.RequestID, hcs.ErrInvalidState)
	}
	if !req.FeePolicy.Empty() {
		return nil, fmt.Errorf("accepting request %d: fee-gated connection topics are not supported: %w", req.RequestID, hcs.ErrInvalidState)
	}

	topicID, err := w.CreateTopic(ctx, ConnectionTopicMemo(req.InboundTopicID, req.RequestID))
	if err != nil {
		return nil, fmt.Errorf("accepting request %d: %w", req.RequestID, err)
	}

	created, err := hcs.EncodeEnvelope(hcs.Envelope{
		Op:                 hcs.OpConnectionCreated,
		OperatorID:         req.OperatorID,
		ConnectionTopicID:  topicID,
		ConnectedAccountID: req.RequesterAccountID,
		ConnectionID:       req.RequestID,
		Memo:               req.Memo,
	})
	if err != nil {
		return nil, err
	}
	receipt, err := w.SubmitMessage(ctx, req.InboundTopicID, created, "")
	if err != nil {
		return nil, fmt.Errorf("announcing connection %s: %w", topicID, err)
	}

	if req.OutboundTopicID != "" {
		record, err := hcs.EncodeEnvelope(hcs.Envelope{
			Op:                  hcs.OpConnectionCreated,
			OperatorID:          req.OperatorID,
			ConnectionTopicID:   topicID,
			ConnectedAccountID:  req.RequesterAccountID,
			ConnectionRequestID: req.RequestID,
			Memo:                req.Memo,
		})
		if err == nil {
			_, err = w.SubmitMessage(ctx, req.OutboundTopicID, record, "")
		}
		if err != nil {
			w.logger.Warn("logging connection to outbound topic failed", "connection_topic_id", topicID, "error", err)
		}
	}

	return &hcs.AcceptResult{ConnectionTopicID: topicID, SequenceNumber: receipt.SequenceNumber}, nil
}

// Close releases the SDK client.
func (w *Writer) Close() error {
	return w.backend.close()
}
