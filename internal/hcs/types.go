// ABOUTME: Core data model for HCS-10 connections, requests and agent identities
// ABOUTME: Status is a single tagged value; the boolean flags are derived from it

package hcs

import (
	"strconv"
	"strings"
	"time"
)

// Status is the lifecycle state of a connection.
type Status int

const (
	StatusUnknown Status = iota
	StatusPending
	StatusNeedsConfirmation
	StatusEstablished
)

// String returns the wire vocabulary for the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusNeedsConfirmation:
		return "needs_confirmation"
	case StatusEstablished:
		return "established"
	default:
		return "unknown"
	}
}

// ParseStatus maps a status string onto Status. Unrecognized values are unknown.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return StatusPending
	case "needs_confirmation", "needs confirmation", "needs-confirmation":
		return StatusNeedsConfirmation
	case "established":
		return StatusEstablished
	default:
		return StatusUnknown
	}
}

// Profile is the public profile of an agent, resolved from its account memo.
type Profile struct {
	AccountID       string `json:"account_id,omitempty"`
	DisplayName     string `json:"display_name,omitempty"`
	Alias           string `json:"alias,omitempty"`
	Bio             string `json:"bio,omitempty"`
	InboundTopicID  string `json:"inbound_topic_id,omitempty"`
	OutboundTopicID string `json:"outbound_topic_id,omitempty"`
	ProfileTopicID  string `json:"profile_topic_id,omitempty"`
	Capabilities    []int  `json:"capabilities,omitempty"`
}

// Name returns the best human-readable name on the profile.
func (p *Profile) Name() string {
	if p == nil {
		return ""
	}
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Alias
}

// Connection is a bidirectional messaging channel keyed by its topic id.
type Connection struct {
	ConnectionTopicID    string
	TargetAccountID      string
	TargetAgentName      string
	TargetInboundTopicID string
	Status               Status
	Created              time.Time
	LastActivity         time.Time
	Profile              *Profile
	ConnectionRequestID  int64 // 0 when the originating request is unknown
	UniqueRequestKey     string
}

// IsPending reports whether the connection awaits the counterparty.
func (c Connection) IsPending() bool {
	return c.Status == StatusPending
}

// NeedsConfirmation reports whether the connection awaits local confirmation.
func (c Connection) NeedsConfirmation() bool {
	return c.Status == StatusNeedsConfirmation
}

// DisplayName returns the counterparty name, falling back to its account id.
func (c Connection) DisplayName() string {
	if c.TargetAgentName != "" {
		return c.TargetAgentName
	}
	if name := c.Profile.Name(); name != "" {
		return name
	}
	return c.TargetAccountID
}

// RequestType distinguishes requests by which side must confirm.
type RequestType string

const (
	RequestIncoming RequestType = "incoming"
	RequestOutgoing RequestType = "outgoing"
)

// ConnectionRequest is an unconfirmed proposal to establish a Connection.
type ConnectionRequest struct {
	UniqueRequestKey   string
	RequesterAccountID string
	// TargetAccountID is the counterparty of an outgoing request.
	TargetAccountID string

	// InboundRequestID is the sequence number of an incoming request on our inbound topic.
	InboundRequestID int64
	// ConnectionRequestID is the id of an outgoing request logged on our outbound topic.
	ConnectionRequestID int64

	// OriginTopicID is where an outgoing request was logged.
	OriginTopicID string
	// TargetInboundTopicID is the inbound topic an incoming request arrived on.
	TargetInboundTopicID string

	Memo              string
	Created           time.Time
	Profile           *Profile
	NeedsConfirmation bool
}

// Type is incoming when the local agent must confirm, otherwise outgoing.
func (r ConnectionRequest) Type() RequestType {
	if r.NeedsConfirmation {
		return RequestIncoming
	}
	return RequestOutgoing
}

// RequestID returns the numeric id relevant to the request's direction.
func (r ConnectionRequest) RequestID() int64 {
	if r.NeedsConfirmation {
		return r.InboundRequestID
	}
	return r.ConnectionRequestID
}

// ProcessingTopicID returns the topic the request is marked processed against.
func (r ConnectionRequest) ProcessingTopicID() string {
	if r.NeedsConfirmation {
		return r.TargetInboundTopicID
	}
	return r.OriginTopicID
}

// Counterparty returns the account on the other side of the request.
func (r ConnectionRequest) Counterparty() string {
	if r.NeedsConfirmation {
		return r.RequesterAccountID
	}
	if r.TargetAccountID != "" {
		return r.TargetAccountID
	}
	return r.RequesterAccountID
}

// MatchesKey reports whether key names this request, either by its unique
// key or by its direction-specific numeric id.
func (r ConnectionRequest) MatchesKey(key string) bool {
	if r.UniqueRequestKey == key {
		return true
	}
	if r.NeedsConfirmation {
		return r.InboundRequestID != 0 && strconv.FormatInt(r.InboundRequestID, 10) == key
	}
	return r.ConnectionRequestID != 0 && strconv.FormatInt(r.ConnectionRequestID, 10) == key
}

// RegisteredAgent is a local agent identity.
type RegisteredAgent struct {
	Name            string
	AccountID       string
	InboundTopicID  string
	OutboundTopicID string
	ProfileTopicID  string
	PrivateKey      string // optional; never logged
}

// OperatorID returns the agent's composite operator id.
func (a RegisteredAgent) OperatorID() string {
	return OperatorID{TopicID: a.InboundTopicID, AccountID: a.AccountID}.String()
}

// Normalize canonicalizes the agent's identifiers. AccountID and
// InboundTopicID are required; the other topics are optional.
func (a RegisteredAgent) Normalize() (RegisteredAgent, error) {
	var err error
	if a.AccountID, err = Canonicalize(a.AccountID); err != nil {
		return a, err
	}
	if a.InboundTopicID, err = Canonicalize(a.InboundTopicID); err != nil {
		return a, err
	}
	if a.OutboundTopicID != "" {
		if a.OutboundTopicID, err = Canonicalize(a.OutboundTopicID); err != nil {
			return a, err
		}
	}
	if a.ProfileTopicID != "" {
		if a.ProfileTopicID, err = Canonicalize(a.ProfileTopicID); err != nil {
			return a, err
		}
	}
	return a, nil
}
