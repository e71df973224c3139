// ABOUTME: Topic message reads from the mirror node with bounded queries and links.next pagination
// ABOUTME: Decodes base64 payloads into HCS-10 envelopes and skips anything else

package mirror

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/2389/coven-hcs10/internal/hcs"
)

type topicMessage struct {
	ConsensusTimestamp string `json:"consensus_timestamp"`
	Message            string `json:"message"`
	PayerAccountID     string `json:"payer_account_id"`
	SequenceNumber     int64  `json:"sequence_number"`
	TopicID            string `json:"topic_id"`
}

type topicMessagesPage struct {
	Messages []topicMessage `json:"messages"`
	Links    struct {
		Next string `json:"next"`
	} `json:"links"`
}

// FetchMessages returns HCS-10 messages on topicID in consensus order.
// Payloads that are not HCS-10 envelopes are skipped.
//
// A bounded query pages forward from its lower bound, so a truncated read
// still returns the oldest unseen messages and the caller catches up on
// the next call. Unbounded and Latest queries page backward from the
// newest message, so truncation drops the oldest history.
func (c *Client) FetchMessages(ctx context.Context, topicID string, q hcs.Query) ([]hcs.Message, error) {
	topicID, err := hcs.Canonicalize(topicID)
	if err != nil {
		return nil, fmt.Errorf("fetching messages: %w", err)
	}

	forward := q.Bounded() && q.Latest <= 0
	limit := c.pageLimit
	if q.Latest > 0 {
		limit = min(limit, q.Latest)
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	if forward {
		params.Set("order", "asc")
	} else {
		params.Set("order", "desc")
	}
	if q.AfterSequence > 0 {
		params.Add("sequencenumber", "gt:"+strconv.FormatInt(q.AfterSequence, 10))
	}
	if q.AfterTimestamp > 0 {
		params.Add("timestamp", "gt:"+FormatConsensusTimestamp(q.AfterTimestamp))
	}
	next := fmt.Sprintf("/api/v1/topics/%s/messages?%s", url.PathEscape(topicID), params.Encode())

	var out []hcs.Message
	skipped := 0
	page := 0
	for ; next != "" && page < c.maxPages; page++ {
		body, err := c.get(ctx, c.baseURL+next)
		if err != nil {
			return nil, fmt.Errorf("fetching messages on %s: %w", topicID, err)
		}

		var p topicMessagesPage
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("decoding messages page: %w", err)
		}

		for _, tm := range p.Messages {
			m, ok := decodeTopicMessage(tm)
			if !ok {
				skipped++
				continue
			}
			if m.TopicID == "" {
				m.TopicID = topicID
			}
			out = append(out, m)
		}
		next = p.Links.Next
		if q.Latest > 0 && len(out) >= q.Latest {
			out = out[:q.Latest]
			next = ""
		}
	}

	if next != "" {
		c.logger.Warn("topic read truncated",
			"topic_id", topicID,
			"max_pages", c.maxPages,
			"forward", forward,
			"returned", len(out),
		)
	}
	if skipped > 0 {
		c.logger.Debug("skipped non-envelope messages", "topic_id", topicID, "count", skipped)
	}
	if !forward {
		slices.Reverse(out)
	}
	return out, nil
}

func decodeTopicMessage(tm topicMessage) (hcs.Message, bool) {
	raw, err := base64.StdEncoding.DecodeString(tm.Message)
	if err != nil {
		return hcs.Message{}, false
	}
	env, err := hcs.DecodeEnvelope(raw)
	if err != nil || (env.P != "" && env.P != hcs.Protocol) {
		return hcs.Message{}, false
	}
	at, err := ParseConsensusTimestamp(tm.ConsensusTimestamp)
	if err != nil {
		return hcs.Message{}, false
	}
	return hcs.Message{
		Envelope:       env,
		TopicID:        tm.TopicID,
		SequenceNumber: tm.SequenceNumber,
		ConsensusAt:    at,
		PayerAccountID: tm.PayerAccountID,
	}, true
}

// ParseConsensusTimestamp parses the mirror node "seconds.nanoseconds" form.
func ParseConsensusTimestamp(s string) (time.Time, error) {
	secStr, nanoStr, _ := strings.Cut(s, ".")
	sec, err := strconv.ParseInt(secStr, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing consensus timestamp %q: %w", s, err)
	}
	var nanos int64
	if nanoStr != "" {
		if len(nanoStr) > 9 {
			return time.Time{}, fmt.Errorf("parsing consensus timestamp %q: too many fractional digits", s)
		}
		nanoStr += strings.Repeat("0", 9-len(nanoStr))
		if nanos, err = strconv.ParseInt(nanoStr, 10, 64); err != nil {
			return time.Time{}, fmt.Errorf("parsing consensus timestamp %q: %w", s, err)
		}
	}
	return time.Unix(sec, nanos).UTC(), nil
}

// FormatConsensusTimestamp renders Unix nanoseconds in the mirror node
// "seconds.nanoseconds" form.
func FormatConsensusTimestamp(ns int64) string {
	return fmt.Sprintf("%d.%09d", ns/int64(time.Second), ns%int64(time.Second))
}
