// ABOUTME: Tests for the message correlator
// ABOUTME: Uses a scripted in-memory channel and a no-op sleep

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-hcs10/internal/checkpoint"
	"github.com/2389/coven-hcs10/internal/hcs"
)

const (
	selfOperator  = "0.0.10@0.0.1"
	otherOperator = "0.0.20@0.0.2"
	connTopic     = "0.0.500"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeChannel struct {
	mu        sync.Mutex
	nextSeq   int64
	submitted [][]byte
	memos     []string
	submitErr error

	// polls returns the topic contents for each successive fetch; the last
	// entry repeats once exhausted.
	polls    [][]hcs.Message
	fetchErr []error
	fetches  int
	queries  []hcs.Query

	pointers map[string]string
}

func (f *fakeChannel) SubmitMessage(ctx context.Context, topicID string, payload []byte, memo string) (*hcs.SubmitReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = append(f.submitted, payload)
	f.memos = append(f.memos, memo)
	return &hcs.SubmitReceipt{SequenceNumber: f.nextSeq, TransactionID: "0.0.1@1.2"}, nil
}

func (f *fakeChannel) FetchMessages(ctx context.Context, topicID string, q hcs.Query) ([]hcs.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.fetches
	f.fetches++
	if i < len(f.fetchErr) && f.fetchErr[i] != nil {
		return nil, f.fetchErr[i]
	}
	if len(f.polls) == 0 {
		return nil, nil
	}
	f.queries = append(f.queries, q)
	return q.Apply(f.polls[min(i, len(f.polls)-1)]), nil
}

func (f *fakeChannel) ResolveIndirectPayload(ctx context.Context, pointer string) (string, error) {
	content, ok := f.pointers[pointer]
	if !ok {
		return "", errors.New("inscription not found")
	}
	return content, nil
}

func msg(seq int64, operator, data string) hcs.Message {
	return hcs.Message{
		Envelope: hcs.Envelope{
			P:          hcs.Protocol,
			Op:         hcs.OpMessage,
			OperatorID: operator,
			Data:       data,
		},
		TopicID:        connTopic,
		SequenceNumber: seq,
		ConsensusAt:    base.Add(time.Duration(seq) * time.Second),
	}
}

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func newCorrelator(ch *fakeChannel, attempts int) (*Correlator, *checkpoint.Store) {
	cps := checkpoint.New("0.0.1", nil, nil)
	return New(ch, cps, selfOperator, Options{Attempts: attempts, Sleep: noSleep}, nil), cps
}

func TestSend_EncodesEnvelope(t *testing.T) {
	ch := &fakeChannel{nextSeq: 3}
	c, _ := newCorrelator(ch, 1)

	reply, err := c.SendAndAwaitReply(context.Background(), " 0.0.500 ", "hello", SendOptions{Memo: "note"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), reply.SentSequenceNumber)
	assert.False(t, reply.Found)
	assert.Zero(t, ch.fetches, "no polling without ExpectReply")

	require.Len(t, ch.submitted, 1)
	var env hcs.Envelope
	require.NoError(t, json.Unmarshal(ch.submitted[0], &env))
	assert.Equal(t, hcs.Protocol, env.P)
	assert.Equal(t, hcs.OpMessage, env.Op)
	assert.Equal(t, selfOperator, env.OperatorID)
	assert.Equal(t, "hello", env.Data)
	assert.Equal(t, "note", env.Memo)
}

func TestSend_ReplyCorrelation(t *testing.T) {
	ch := &fakeChannel{
		nextSeq: 5,
		polls: [][]hcs.Message{
			{msg(4, otherOperator, "old"), msg(5, selfOperator, "hello")},
			{msg(4, otherOperator, "old"), msg(5, selfOperator, "hello"), msg(6, selfOperator, "again"), msg(7, otherOperator, "hi back")},
		},
	}
	c, _ := newCorrelator(ch, 5)

	reply, err := c.SendAndAwaitReply(context.Background(), connTopic, "hello", SendOptions{ExpectReply: true})
	require.NoError(t, err)
	require.True(t, reply.Found)
	assert.Equal(t, int64(7), reply.Message.SequenceNumber)
	assert.Equal(t, "hi back", reply.Content)
	assert.Equal(t, 2, ch.fetches)
	assert.Equal(t, hcs.Query{AfterSequence: 5}, ch.queries[0], "polls read only past the sent message")
}

func TestSend_CorrelationIDIsDefaultMemo(t *testing.T) {
	ch := &fakeChannel{nextSeq: 1}
	c, _ := newCorrelator(ch, 1)

	reply, err := c.SendAndAwaitReply(context.Background(), connTopic, "hello", SendOptions{})
	require.NoError(t, err)
	_, err = uuid.Parse(reply.CorrelationID)
	require.NoError(t, err)

	var env hcs.Envelope
	require.NoError(t, json.Unmarshal(ch.submitted[0], &env))
	assert.Equal(t, reply.CorrelationID, env.Memo)
	assert.Equal(t, reply.CorrelationID, ch.memos[0])

	again, err := c.SendAndAwaitReply(context.Background(), connTopic, "hello", SendOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, reply.CorrelationID, again.CorrelationID)
}

func TestSend_IgnoresEarlierMessagesFromPeer(t *testing.T) {
	ch := &fakeChannel{
		nextSeq: 10,
		polls: [][]hcs.Message{
			{msg(8, otherOperator, "a"), msg(9, otherOperator, "b"), msg(11, otherOperator, "c")},
		},
	}
	c, _ := newCorrelator(ch, 3)

	reply, err := c.SendAndAwaitReply(context.Background(), connTopic, "q", SendOptions{ExpectReply: true})
	require.NoError(t, err)
	require.True(t, reply.Found)
	assert.Equal(t, int64(11), reply.Message.SequenceNumber)
	assert.Equal(t, "c", reply.Content)
}

func TestSend_SoftTimeout(t *testing.T) {
	ch := &fakeChannel{
		nextSeq: 5,
		polls:   [][]hcs.Message{{msg(5, selfOperator, "hello"), msg(6, selfOperator, "still me")}},
	}
	c, _ := newCorrelator(ch, 3)

	reply, err := c.SendAndAwaitReply(context.Background(), connTopic, "hello", SendOptions{ExpectReply: true})
	require.NoError(t, err)
	assert.False(t, reply.Found)
	assert.Equal(t, int64(5), reply.SentSequenceNumber)
	assert.Equal(t, 3, ch.fetches)
}

func TestSend_PollErrorsAreRetried(t *testing.T) {
	ch := &fakeChannel{
		nextSeq:  1,
		fetchErr: []error{errors.New("mirror unavailable")},
		polls:    [][]hcs.Message{nil, {msg(2, otherOperator, "hcs://1/0.0.900")}},
		pointers: map[string]string{"hcs://1/0.0.900": "large reply"},
	}
	c, _ := newCorrelator(ch, 3)

	reply, err := c.SendAndAwaitReply(context.Background(), connTopic, "hello", SendOptions{ExpectReply: true})
	require.NoError(t, err)
	require.True(t, reply.Found)
	assert.Equal(t, "large reply", reply.Content)
}

func TestSend_SubmitFailure(t *testing.T) {
	ch := &fakeChannel{submitErr: errors.New("insufficient balance")}
	c, _ := newCorrelator(ch, 1)

	_, err := c.SendAndAwaitReply(context.Background(), connTopic, "hello", SendOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient balance")
}

func TestSend_CancelledWhileWaiting(t *testing.T) {
	ch := &fakeChannel{nextSeq: 1}
	c, _ := newCorrelator(ch, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.SendAndAwaitReply(ctx, connTopic, "hello", SendOptions{ExpectReply: true})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSend_WithoutChannel(t *testing.T) {
	c := New(nil, checkpoint.New("0.0.1", nil, nil), selfOperator, Options{}, nil)
	_, err := c.SendAndAwaitReply(context.Background(), connTopic, "x", SendOptions{})
	assert.ErrorIs(t, err, hcs.ErrNotInitialized)
}

func TestCheckNewMessages_AdvancesCheckpoint(t *testing.T) {
	ctx := context.Background()
	ch := &fakeChannel{polls: [][]hcs.Message{{msg(1, otherOperator, "one"), msg(2, otherOperator, "two"), msg(3, otherOperator, "three")}}}
	c, cps := newCorrelator(ch, 1)
	_, err := cps.Update(ctx, connTopic, base.Add(1*time.Second).UnixNano())
	require.NoError(t, err)

	res, err := c.CheckNewMessages(ctx, connTopic, CheckOptions{})
	require.NoError(t, err)
	require.Len(t, res.Messages, 2)
	assert.Equal(t, "two", res.Messages[0].Content)
	assert.Equal(t, "0.0.2", res.Messages[0].Sender)
	assert.Equal(t, base.Add(3*time.Second).UnixNano(), res.Checkpoint)
	assert.Equal(t, res.Checkpoint, cps.Get(connTopic))
	assert.Equal(t, base.Add(1*time.Second).UnixNano(), ch.queries[0].AfterTimestamp)

	res, err = c.CheckNewMessages(ctx, connTopic, CheckOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Messages, "nothing is returned twice")
}

func TestCheckNewMessages_FetchLatestLeavesCheckpoint(t *testing.T) {
	ctx := context.Background()
	ch := &fakeChannel{polls: [][]hcs.Message{{msg(1, otherOperator, "one"), msg(2, otherOperator, "two"), msg(3, otherOperator, "three")}}}
	c, cps := newCorrelator(ch, 1)

	res, err := c.CheckNewMessages(ctx, connTopic, CheckOptions{FetchLatest: true, LastN: 2})
	require.NoError(t, err)
	require.Len(t, res.Messages, 2)
	assert.Equal(t, "two", res.Messages[0].Content)
	assert.Equal(t, "three", res.Messages[1].Content)
	assert.Zero(t, cps.Get(connTopic))
	assert.False(t, cps.Has(connTopic))

	res, err = c.CheckNewMessages(ctx, connTopic, CheckOptions{FetchLatest: true})
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, "three", res.Messages[0].Content)

	res, err = c.CheckNewMessages(ctx, connTopic, CheckOptions{FetchLatest: true, LastN: 10})
	require.NoError(t, err)
	assert.Len(t, res.Messages, 3)
}

func TestCheckNewMessages_UnresolvablePointerFallsBack(t *testing.T) {
	ctx := context.Background()
	ch := &fakeChannel{polls: [][]hcs.Message{{msg(1, otherOperator, "hcs://1/0.0.404")}}}
	c, cps := newCorrelator(ch, 1)

	res, err := c.CheckNewMessages(ctx, connTopic, CheckOptions{})
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, "hcs://1/0.0.404", res.Messages[0].Content)
	assert.Equal(t, base.Add(time.Second).UnixNano(), cps.Get(connTopic))
}

func TestCheckNewMessages_StructuredContent(t *testing.T) {
	ctx := context.Background()
	inner := `{"data":"nested text","operator_id":"0.0.30@0.0.3"}`
	ch := &fakeChannel{
		polls:    [][]hcs.Message{{msg(1, otherOperator, "hcs://1/0.0.901")}},
		pointers: map[string]string{"hcs://1/0.0.901": inner},
	}
	c, _ := newCorrelator(ch, 1)

	res, err := c.CheckNewMessages(ctx, connTopic, CheckOptions{})
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, "nested text", res.Messages[0].Text)
	assert.Equal(t, "0.0.3", res.Messages[0].Sender)
	assert.Equal(t, inner, res.Messages[0].Raw)
}

func TestCheckNewMessages_FetchError(t *testing.T) {
	ch := &fakeChannel{fetchErr: []error{errors.New("timeout")}}
	c, cps := newCorrelator(ch, 1)

	_, err := c.CheckNewMessages(context.Background(), connTopic, CheckOptions{})
	require.Error(t, err)
	assert.False(t, cps.Has(connTopic))
}

func TestGetMessages_SortedAndResolved(t *testing.T) {
	ch := &fakeChannel{
		polls:    [][]hcs.Message{{msg(3, otherOperator, "c"), msg(1, otherOperator, "hcs://1/0.0.902"), msg(2, selfOperator, "b")}},
		pointers: map[string]string{"hcs://1/0.0.902": "a"},
	}
	c, cps := newCorrelator(ch, 1)

	got, err := c.GetMessages(context.Background(), connTopic)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{got[0].Content, got[1].Content, got[2].Content})
	assert.False(t, cps.Has(connTopic))
}
