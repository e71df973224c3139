// ABOUTME: Tests for fee policy validation and the domain Result envelope
// ABOUTME: Covers collector requirements, exempt de-duplication and error classification

package hcs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFeePolicy(t *testing.T) {
	policy, err := DefaultFeeBuilder.BuildFeePolicy(
		[]HbarFee{{Amount: 1.5, CollectorAccount: "0.0.9"}},
		[]TokenFee{{Amount: 10, TokenID: "0.0.77", CollectorAccount: "0.0.9"}},
		[]string{"0.0.3", "", "0.0.3", "0.0.4"},
	)
	require.NoError(t, err)
	require.Len(t, policy.Fees, 2)
	assert.Equal(t, FeeHbar, policy.Fees[0].Kind)
	assert.Equal(t, FeeToken, policy.Fees[1].Kind)
	assert.Equal(t, "0.0.77", policy.Fees[1].TokenID)
	assert.Equal(t, []string{"0.0.3", "0.0.4"}, policy.ExemptAccountIDs)
	assert.False(t, policy.Empty())
}

func TestBuildFeePolicy_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		hbar   []HbarFee
		tokens []TokenFee
	}{
		{"zero hbar", []HbarFee{{Amount: 0, CollectorAccount: "0.0.9"}}, nil},
		{"hbar without collector", []HbarFee{{Amount: 1}}, nil},
		{"negative token", nil, []TokenFee{{Amount: -1, TokenID: "0.0.7", CollectorAccount: "0.0.9"}}},
		{"token without id", nil, []TokenFee{{Amount: 1, CollectorAccount: "0.0.9"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildFeePolicy(tt.hbar, tt.tokens, nil)
			assert.ErrorIs(t, err, ErrInvalidState)
		})
	}
}

func TestFeePolicy_Empty(t *testing.T) {
	var nilPolicy *FeePolicy
	assert.True(t, nilPolicy.Empty())

	policy, err := BuildFeePolicy(nil, nil, []string{"0.0.3"})
	require.NoError(t, err)
	assert.True(t, policy.Empty())
}

func TestResult(t *testing.T) {
	assert.Equal(t, Result{Success: true}, OK())
	assert.Equal(t, OK(), Fail(nil))

	res := Fail(fmt.Errorf("connection %q: %w", "7", ErrNotFound))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "not found")
}

func TestIsDomainFailure(t *testing.T) {
	assert.True(t, IsDomainFailure(fmt.Errorf("x: %w", ErrNotFound)))
	assert.True(t, IsDomainFailure(fmt.Errorf("x: %w", ErrInvalidState)))
	assert.False(t, IsDomainFailure(fmt.Errorf("x: %w", ErrNotInitialized)))
	assert.False(t, IsDomainFailure(errors.New("boom")))
}
