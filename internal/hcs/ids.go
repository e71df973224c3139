// ABOUTME: Canonicalization of ledger identifiers (topic and account ids)
// ABOUTME: Every identifier entering the system passes through Canonicalize once

package hcs

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

// entityIDPattern matches the ledger-native shard.realm.number shape.
var entityIDPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// Canonicalize converts an identifier into its canonical string form.
// It accepts plain strings and any value with a String method, such as the
// Hedera SDK's TopicID and AccountID types.
func Canonicalize(v any) (string, error) {
	var s string
	switch id := v.(type) {
	case nil:
		return "", fmt.Errorf("%w: nil identifier", ErrInvalidIdentifier)
	case string:
		s = id
	case *string:
		if id == nil {
			return "", fmt.Errorf("%w: nil identifier", ErrInvalidIdentifier)
		}
		s = *id
	case fmt.Stringer:
		if rv := reflect.ValueOf(id); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return "", fmt.Errorf("%w: nil identifier", ErrInvalidIdentifier)
		}
		s = id.String()
	default:
		return "", fmt.Errorf("%w: unsupported identifier type %T", ErrInvalidIdentifier, v)
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty identifier", ErrInvalidIdentifier)
	}
	return s, nil
}

// IsTopicID reports whether s has the shard.realm.number shape.
func IsTopicID(s string) bool {
	return entityIDPattern.MatchString(s)
}

// IsAccountID reports whether s has the shard.realm.number shape.
// Accounts and topics share the format; the alias keeps call sites readable.
func IsAccountID(s string) bool {
	return entityIDPattern.MatchString(s)
}

// OperatorID identifies the author of a message as topicId@accountId.
type OperatorID struct {
	TopicID   string
	AccountID string
}

// ParseOperatorID splits a topicId@accountId composite.
func ParseOperatorID(s string) (OperatorID, error) {
	topic, account, ok := strings.Cut(strings.TrimSpace(s), "@")
	if !ok || topic == "" || account == "" {
		return OperatorID{}, fmt.Errorf("%w: operator id %q", ErrInvalidIdentifier, s)
	}
	return OperatorID{TopicID: topic, AccountID: account}, nil
}

// String formats the operator id back into its composite form.
func (o OperatorID) String() string {
	return o.TopicID + "@" + o.AccountID
}

// RequestKey builds the composite key used to identify a connection request:
// requestId:originTopic@counterpartyAccountId.
func RequestKey(requestID int64, originTopicID, accountID string) string {
	return strconv.FormatInt(requestID, 10) + ":" + originTopicID + "@" + accountID
}
