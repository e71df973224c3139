// ABOUTME: HCS-10 message envelope, topic message type and payload helpers
// ABOUTME: Handles hcs:// indirection detection and best-effort content formatting

package hcs

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Protocol is the envelope "p" value for this standard.
const Protocol = "hcs-10"

// Envelope operations.
const (
	OpConnectionRequest = "connection_request"
	OpConnectionCreated = "connection_created"
	OpMessage           = "message"
	OpCloseConnection   = "close_connection"
)

// PointerPrefix marks a payload that references externally stored content.
const PointerPrefix = "hcs://"

// Envelope is the JSON body of an HCS-10 topic message.
type Envelope struct {
	P                        string `json:"p"`
	Op                       string `json:"op"`
	OperatorID               string `json:"operator_id,omitempty"`
	Data                     string `json:"data,omitempty"`
	Memo                     string `json:"m,omitempty"`
	ConnectionRequestID      int64  `json:"connection_request_id,omitempty"`
	ConnectionTopicID        string `json:"connection_topic_id,omitempty"`
	ConnectedAccountID       string `json:"connected_account_id,omitempty"`
	ConnectionID             int64  `json:"connection_id,omitempty"`
	OutboundTopicID          string `json:"outbound_topic_id,omitempty"`
	RequestorOutboundTopicID string `json:"requestor_outbound_topic_id,omitempty"`
}

// EncodeEnvelope marshals an envelope, defaulting the protocol tag.
func EncodeEnvelope(e Envelope) ([]byte, error) {
	if e.P == "" {
		e.P = Protocol
	}
	if e.Op == "" {
		return nil, fmt.Errorf("%w: envelope without op", ErrInvalidState)
	}
	return json.Marshal(e)
}

// DecodeEnvelope parses a raw topic payload into an envelope.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return Envelope{}, fmt.Errorf("decoding envelope: %w", err)
	}
	if e.Op == "" {
		return Envelope{}, fmt.Errorf("decoding envelope: missing op")
	}
	return e, nil
}

// Message is one entry of a topic log as seen by this system.
type Message struct {
	Envelope
	TopicID        string
	SequenceNumber int64
	ConsensusAt    time.Time
	PayerAccountID string
}

// TimestampNanos returns the consensus time in Unix nanoseconds.
func (m Message) TimestampNanos() int64 {
	if m.ConsensusAt.IsZero() {
		return 0
	}
	return m.ConsensusAt.UnixNano()
}

// Operator parses the message's operator id.
func (m Message) Operator() (OperatorID, error) {
	return ParseOperatorID(m.OperatorID)
}

// IsPointer reports whether a payload is an indirection pointer.
func IsPointer(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), PointerPrefix)
}

// ParsePointer splits hcs://<standard>/<topicId> into its parts.
func ParsePointer(s string) (standard, topicID string, err error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(s), PointerPrefix)
	if !ok {
		return "", "", fmt.Errorf("%w: not a pointer: %q", ErrInvalidIdentifier, s)
	}
	standard, topicID, ok = strings.Cut(rest, "/")
	if !ok || standard == "" || !IsTopicID(topicID) {
		return "", "", fmt.Errorf("%w: malformed pointer %q", ErrInvalidIdentifier, s)
	}
	return standard, topicID, nil
}

// Formatted is a human-oriented rendering of a message payload.
type Formatted struct {
	Sender string
	Text   string
	Raw    string
}

// FormatContent makes a best-effort attempt to read content as a structured
// envelope carrying a data field. When the content is not such an object,
// the raw content is used as text and fallbackSender as the author.
func FormatContent(content, fallbackSender string) Formatted {
	out := Formatted{Sender: fallbackSender, Text: content, Raw: content}

	var body struct {
		Data       json.RawMessage `json:"data"`
		OperatorID string          `json:"operator_id"`
	}
	if err := json.Unmarshal([]byte(content), &body); err != nil || len(body.Data) == 0 {
		return out
	}

	var text string
	if err := json.Unmarshal(body.Data, &text); err != nil {
		text = string(body.Data)
	}
	out.Text = text

	if op, err := ParseOperatorID(body.OperatorID); err == nil {
		out.Sender = op.AccountID
	}
	return out
}
