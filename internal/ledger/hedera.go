// ABOUTME: Hedera SDK backend: topic creation and message submission with receipts
// ABOUTME: Builds the SDK client for a named network and operator

package ledger

import (
	"context"
	"fmt"

	hedera "github.com/hashgraph/hedera-sdk-go/v2"

	"github.com/2389/coven-hcs10/internal/hcs"
)

type backend interface {
	submit(ctx context.Context, topicID string, payload []byte, memo string) (*hcs.SubmitReceipt, error)
	createTopic(ctx context.Context, memo string) (string, error)
	close() error
}

type sdkBackend struct {
	client *hedera.Client
	key    hedera.PrivateKey
}

func newSDKBackend(network, operatorID, operatorKey string) (*sdkBackend, error) {
	account, err := hedera.AccountIDFromString(operatorID)
	if err != nil {
		return nil, fmt.Errorf("parsing operator account: %w", hcs.ErrInvalidIdentifier)
	}
	key, err := hedera.PrivateKeyFromString(operatorKey)
	if err != nil {
		return nil, fmt.Errorf("parsing operator key: %w", err)
	}

	client, err := hedera.ClientForName(network)
	if err != nil {
		return nil, fmt.Errorf("creating %s client: %w", network, err)
	}
	client.SetOperator(account, key)
	return &sdkBackend{client: client, key: key}, nil
}

func (b *sdkBackend) submit(ctx context.Context, topicID string, payload []byte, memo string) (*hcs.SubmitReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	topic, err := hedera.TopicIDFromString(topicID)
	if err != nil {
		return nil, fmt.Errorf("parsing topic %q: %w", topicID, hcs.ErrInvalidIdentifier)
	}

	tx := hedera.NewTopicMessageSubmitTransaction().
		SetTopicID(topic).
		SetMessage(payload)
	if memo != "" {
		tx = tx.SetTransactionMemo(memo)
	}

	resp, err := tx.Execute(b.client)
	if err != nil {
		return nil, fmt.Errorf("submitting to %s: %w", topicID, err)
	}
	receipt, err := resp.GetReceipt(b.client)
	if err != nil {
		return nil, fmt.Errorf("receipt for %s: %w", resp.TransactionID.String(), err)
	}
	return &hcs.SubmitReceipt{
		SequenceNumber: int64(receipt.TopicSequenceNumber),
		TransactionID:  resp.TransactionID.String(),
	}, nil
}

func (b *sdkBackend) createTopic(ctx context.Context, memo string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	resp, err := hedera.NewTopicCreateTransaction().
		SetTopicMemo(memo).
		SetAdminKey(b.key.PublicKey()).
		Execute(b.client)
	if err != nil {
		return "", fmt.Errorf("creating topic: %w", err)
	}
	receipt, err := resp.GetReceipt(b.client)
	if err != nil {
		return "", fmt.Errorf("receipt for %s: %w", resp.TransactionID.String(), err)
	}
	if receipt.TopicID == nil {
		return "", fmt.Errorf("topic create receipt without topic id: %w", hcs.ErrInvalidState)
	}
	return receipt.TopicID.String(), nil
}

func (b *sdkBackend) close() error {
	return b.client.Close()
}
