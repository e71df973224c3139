// ABOUTME: Fee configuration for fee-gated connection topics
// ABOUTME: FeePolicy is passed through unmodified to the accept-connection call

package hcs

import (
	"fmt"
	"slices"
)

// HbarFee is a fixed fee in HBAR charged per message on a connection topic.
type HbarFee struct {
	Amount           float64
	CollectorAccount string
}

// TokenFee is a fixed fee denominated in a fungible token.
type TokenFee struct {
	Amount           float64
	TokenID          string
	CollectorAccount string
}

// FeeKind distinguishes HBAR from token-denominated fees.
type FeeKind string

const (
	FeeHbar  FeeKind = "hbar"
	FeeToken FeeKind = "token"
)

// Fee is one resolved entry of a FeePolicy.
type Fee struct {
	Kind             FeeKind
	Amount           float64
	TokenID          string
	CollectorAccount string
}

// FeePolicy is the fee configuration attached to a new connection topic.
type FeePolicy struct {
	Fees             []Fee
	ExemptAccountIDs []string
}

// Empty reports whether the policy charges nothing.
func (p *FeePolicy) Empty() bool {
	return p == nil || len(p.Fees) == 0
}

// FeeBuilderFunc adapts a function to FeePolicyBuilder.
type FeeBuilderFunc func(hbarFees []HbarFee, tokenFees []TokenFee, exemptAccountIDs []string) (*FeePolicy, error)

// BuildFeePolicy implements FeePolicyBuilder.
func (f FeeBuilderFunc) BuildFeePolicy(hbarFees []HbarFee, tokenFees []TokenFee, exemptAccountIDs []string) (*FeePolicy, error) {
	return f(hbarFees, tokenFees, exemptAccountIDs)
}

// DefaultFeeBuilder validates fees and copies them into a FeePolicy.
var DefaultFeeBuilder FeePolicyBuilder = FeeBuilderFunc(BuildFeePolicy)

// BuildFeePolicy validates the configured fees. Every fee must have a
// positive amount and a collector; token fees also need a token id.
func BuildFeePolicy(hbarFees []HbarFee, tokenFees []TokenFee, exemptAccountIDs []string) (*FeePolicy, error) {
	policy := &FeePolicy{}

	for _, f := range hbarFees {
		if f.Amount <= 0 {
			return nil, fmt.Errorf("%w: hbar fee amount must be positive", ErrInvalidState)
		}
		if f.CollectorAccount == "" {
			return nil, fmt.Errorf("%w: hbar fee without collector", ErrInvalidState)
		}
		policy.Fees = append(policy.Fees, Fee{Kind: FeeHbar, Amount: f.Amount, CollectorAccount: f.CollectorAccount})
	}

	for _, f := range tokenFees {
		if f.Amount <= 0 {
			return nil, fmt.Errorf("%w: token fee amount must be positive", ErrInvalidState)
		}
		if f.TokenID == "" || f.CollectorAccount == "" {
			return nil, fmt.Errorf("%w: token fee needs token id and collector", ErrInvalidState)
		}
		policy.Fees = append(policy.Fees, Fee{Kind: FeeToken, Amount: f.Amount, TokenID: f.TokenID, CollectorAccount: f.CollectorAccount})
	}

	for _, id := range exemptAccountIDs {
		if id != "" && !slices.Contains(policy.ExemptAccountIDs, id) {
			policy.ExemptAccountIDs = append(policy.ExemptAccountIDs, id)
		}
	}
	return policy, nil
}
