// ABOUTME: Tests for connection status derivation and request helpers
// ABOUTME: Verifies boolean flags follow the single status value

package hcs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_DerivedFlags(t *testing.T) {
	tests := []struct {
		status           Status
		pending, confirm bool
	}{
		{StatusPending, true, false},
		{StatusNeedsConfirmation, false, true},
		{StatusEstablished, false, false},
		{StatusUnknown, false, false},
	}
	for _, tt := range tests {
		c := Connection{Status: tt.status}
		assert.Equal(t, tt.pending, c.IsPending(), tt.status.String())
		assert.Equal(t, tt.confirm, c.NeedsConfirmation(), tt.status.String())
	}
}

func TestParseStatus(t *testing.T) {
	assert.Equal(t, StatusPending, ParseStatus("pending"))
	assert.Equal(t, StatusNeedsConfirmation, ParseStatus("needs confirmation"))
	assert.Equal(t, StatusNeedsConfirmation, ParseStatus("needs_confirmation"))
	assert.Equal(t, StatusEstablished, ParseStatus(" Established "))
	assert.Equal(t, StatusUnknown, ParseStatus("closed"))

	for _, s := range []Status{StatusPending, StatusNeedsConfirmation, StatusEstablished, StatusUnknown} {
		assert.Equal(t, s, ParseStatus(s.String()))
	}
}

func TestConnectionRequest_Direction(t *testing.T) {
	in := ConnectionRequest{
		UniqueRequestKey:     "12:0.0.300@0.0.9",
		RequesterAccountID:   "0.0.9",
		InboundRequestID:     12,
		TargetInboundTopicID: "0.0.300",
		NeedsConfirmation:    true,
	}
	assert.Equal(t, RequestIncoming, in.Type())
	assert.Equal(t, int64(12), in.RequestID())
	assert.Equal(t, "0.0.300", in.ProcessingTopicID())
	assert.True(t, in.MatchesKey("12"))
	assert.True(t, in.MatchesKey("12:0.0.300@0.0.9"))
	assert.False(t, in.MatchesKey("13"))

	out := ConnectionRequest{
		ConnectionRequestID: 4,
		OriginTopicID:       "0.0.301",
		TargetAccountID:     "0.0.10",
	}
	assert.Equal(t, RequestOutgoing, out.Type())
	assert.Equal(t, int64(4), out.RequestID())
	assert.Equal(t, "0.0.301", out.ProcessingTopicID())
	assert.Equal(t, "0.0.10", out.Counterparty())
	assert.True(t, out.MatchesKey("4"))
}

func TestRegisteredAgent_Normalize(t *testing.T) {
	a, err := RegisteredAgent{AccountID: " 0.0.5", InboundTopicID: "0.0.6 "}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "0.0.5", a.AccountID)
	assert.Equal(t, "0.0.6@0.0.5", a.OperatorID())

	_, err = RegisteredAgent{AccountID: "0.0.5"}.Normalize()
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
}

func TestQuery_Match(t *testing.T) {
	at := time.Unix(100, 0)
	m := Message{SequenceNumber: 5, ConsensusAt: at}

	assert.True(t, Query{}.Match(m))
	assert.True(t, Query{}.Match(Message{}))
	assert.False(t, Query{}.Bounded())

	assert.True(t, Query{AfterSequence: 4}.Match(m))
	assert.False(t, Query{AfterSequence: 5}.Match(m))
	assert.True(t, Query{AfterTimestamp: at.UnixNano() - 1}.Match(m))
	assert.False(t, Query{AfterTimestamp: at.UnixNano()}.Match(m))
	assert.True(t, Query{AfterSequence: 1}.Bounded())
}

func TestQuery_Apply(t *testing.T) {
	msgs := []Message{{SequenceNumber: 1}, {SequenceNumber: 2}, {SequenceNumber: 3}, {SequenceNumber: 4}}

	assert.Len(t, Query{}.Apply(msgs), 4)

	got := Query{AfterSequence: 1, Latest: 2}.Apply(msgs)
	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].SequenceNumber)
	assert.Equal(t, int64(4), got[1].SequenceNumber)

	assert.Empty(t, Query{AfterSequence: 4}.Apply(msgs))
}
