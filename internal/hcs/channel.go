// ABOUTME: Interfaces of the external collaborators the connection manager consumes
// ABOUTME: Readers, submitters, resolvers and the accept-connection call

package hcs

import "context"

// Query narrows a topic read. The zero Query reads the whole topic.
type Query struct {
	// AfterSequence keeps messages with a higher sequence number.
	AfterSequence int64
	// AfterTimestamp keeps messages with a later consensus time, in Unix nanoseconds.
	AfterTimestamp int64
	// Latest keeps only the newest Latest messages.
	Latest int
}

// Bounded reports whether q has a lower bound.
func (q Query) Bounded() bool {
	return q.AfterSequence > 0 || q.AfterTimestamp > 0
}

// Match reports whether m satisfies the lower bounds of q. Readers that
// cannot filter server-side use it to filter locally.
func (q Query) Match(m Message) bool {
	if q.AfterSequence > 0 && m.SequenceNumber <= q.AfterSequence {
		return false
	}
	return q.AfterTimestamp <= 0 || m.TimestampNanos() > q.AfterTimestamp
}

// Apply filters msgs, which must be in consensus order, down to what q selects.
func (q Query) Apply(msgs []Message) []Message {
	var out []Message
	for _, m := range msgs {
		if q.Match(m) {
			out = append(out, m)
		}
	}
	if q.Latest > 0 && len(out) > q.Latest {
		out = out[len(out)-q.Latest:]
	}
	return out
}

// MessageReader reads an append-only topic log in consensus order.
type MessageReader interface {
	FetchMessages(ctx context.Context, topicID string, q Query) ([]Message, error)
}

// SubmitReceipt is what the ledger assigns to a submitted message.
type SubmitReceipt struct {
	SequenceNumber int64
	TransactionID  string
}

// MessageSubmitter appends to a topic log.
type MessageSubmitter interface {
	SubmitMessage(ctx context.Context, topicID string, payload []byte, memo string) (*SubmitReceipt, error)
}

// PayloadResolver dereferences hcs:// pointers into literal content.
type PayloadResolver interface {
	ResolveIndirectPayload(ctx context.Context, pointer string) (string, error)
}

// ProfileResolver looks up an agent's profile by account id.
type ProfileResolver interface {
	ResolveAgentProfile(ctx context.Context, accountID string) (*Profile, error)
}

// Channel is the full ledger-backed collaborator used by a session.
type Channel interface {
	MessageReader
	MessageSubmitter
	PayloadResolver
	ProfileResolver
}

// AcceptRequest carries everything needed to promote an inbound request.
type AcceptRequest struct {
	InboundTopicID     string
	OutboundTopicID    string
	OperatorID         string
	RequesterAccountID string
	RequestID          int64
	FeePolicy          *FeePolicy
	Memo               string
}

// AcceptResult describes the connection topic created for an accepted request.
type AcceptResult struct {
	ConnectionTopicID string
	SequenceNumber    int64
}

// ConnectionAccepter performs the ledger side of accepting a request.
type ConnectionAccepter interface {
	HandleConnectionRequest(ctx context.Context, req AcceptRequest) (*AcceptResult, error)
}

// FeeGatedAccepter is a ConnectionAccepter that reports whether it can
// attach a fee policy to the connection topics it creates.
type FeeGatedAccepter interface {
	ConnectionAccepter
	SupportsFeePolicy() bool
}

// AcceptsFees reports whether a can create fee-gated connection topics.
func AcceptsFees(a ConnectionAccepter) bool {
	fa, ok := a.(FeeGatedAccepter)
	return ok && fa.SupportsFeePolicy()
}

// FeePolicyBuilder assembles a fee policy from configured fees.
type FeePolicyBuilder interface {
	BuildFeePolicy(hbarFees []HbarFee, tokenFees []TokenFee, exemptAccountIDs []string) (*FeePolicy, error)
}
