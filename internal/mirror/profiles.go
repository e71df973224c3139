// ABOUTME: Resolves hcs:// pointers through the inscription CDN and agent profiles
// ABOUTME: Profiles are found through the account memo "hcs-11:hcs://1/<topic>"

package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/2389/coven-hcs10/internal/hcs"
)

const profileMemoPrefix = "hcs-11:"

// ResolveIndirectPayload fetches the content an hcs:// pointer refers to.
func (c *Client) ResolveIndirectPayload(ctx context.Context, pointer string) (string, error) {
	_, topicID, err := hcs.ParsePointer(pointer)
	if err != nil {
		return "", err
	}
	if c.cdnURL == "" {
		return "", fmt.Errorf("resolving %s: no inscription cdn configured: %w", pointer, hcs.ErrNotInitialized)
	}

	u := fmt.Sprintf("%s/api/inscription-cdn/%s", c.cdnURL, url.PathEscape(topicID))
	if c.network != "" {
		u += "?network=" + url.QueryEscape(c.network)
	}
	body, err := c.get(ctx, u)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", pointer, err)
	}
	return string(body), nil
}

type accountInfo struct {
	Account string `json:"account"`
	Memo    string `json:"memo"`
}

// profileDoc is the subset of an HCS-11 profile this system reads.
type profileDoc struct {
	DisplayName     string `json:"display_name"`
	Alias           string `json:"alias"`
	Bio             string `json:"bio"`
	InboundTopicID  string `json:"inboundTopicId"`
	OutboundTopicID string `json:"outboundTopicId"`
	AIAgent         *struct {
		Capabilities []int `json:"capabilities"`
	} `json:"aiAgent"`
}

// ResolveAgentProfile reads the account memo, follows its profile pointer
// and decodes the profile. Accounts without a profile memo yield
// hcs.ErrNotFound.
func (c *Client) ResolveAgentProfile(ctx context.Context, accountID string) (*hcs.Profile, error) {
	accountID, err := hcs.Canonicalize(accountID)
	if err != nil {
		return nil, fmt.Errorf("resolving profile: %w", err)
	}

	body, err := c.get(ctx, c.baseURL+"/api/v1/accounts/"+url.PathEscape(accountID))
	if err != nil {
		return nil, fmt.Errorf("fetching account %s: %w", accountID, err)
	}
	var acct accountInfo
	if err := json.Unmarshal(body, &acct); err != nil {
		return nil, fmt.Errorf("decoding account %s: %w", accountID, err)
	}

	pointer, ok := strings.CutPrefix(strings.TrimSpace(acct.Memo), profileMemoPrefix)
	if !ok {
		return nil, fmt.Errorf("account %s has no profile memo: %w", accountID, hcs.ErrNotFound)
	}
	_, profileTopic, err := hcs.ParsePointer(pointer)
	if err != nil {
		return nil, fmt.Errorf("account %s profile memo: %w", accountID, err)
	}

	content, err := c.ResolveIndirectPayload(ctx, pointer)
	if err != nil {
		return nil, err
	}
	var doc profileDoc
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return nil, fmt.Errorf("decoding profile of %s: %w", accountID, err)
	}

	p := &hcs.Profile{
		AccountID:       accountID,
		DisplayName:     doc.DisplayName,
		Alias:           doc.Alias,
		Bio:             doc.Bio,
		InboundTopicID:  doc.InboundTopicID,
		OutboundTopicID: doc.OutboundTopicID,
		ProfileTopicID:  profileTopic,
	}
	if doc.AIAgent != nil {
		p.Capabilities = doc.AIAgent.Capabilities
	}
	return p, nil
}
