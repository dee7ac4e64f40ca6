package settings

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/referral-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSnapshot(t *testing.T) {
	s := DefaultSnapshot()
	assert.Equal(t, 10, s.MaxLevels)
	assert.Equal(t, 3, s.BranchingFactor)
	assert.Equal(t, 10000, s.MarketCapLimit)
	assert.Equal(t, StrategyCommission, s.Strategy)
	assert.True(t, s.EntryFee.Equal(decimal.NewFromInt(100)))
	assert.True(t, s.CommissionRate(0).Equal(decimal.RequireFromString("0.1")))
	assert.True(t, s.CommissionRate(3).IsZero())
	assert.True(t, s.CommissionRate(-1).IsZero())
}

func TestSnapshot_PayoutWeight(t *testing.T) {
	s := DefaultSnapshot()
	assert.True(t, s.PayoutWeight(0).Equal(decimal.RequireFromString("0.5")))
	assert.True(t, s.PayoutWeight(2).Equal(decimal.RequireFromString("0.2")))
	assert.True(t, s.PayoutWeight(3).Equal(decimal.RequireFromString("0.1")), "past the list the residual weight applies")
	assert.True(t, s.PayoutWeight(7).Equal(decimal.RequireFromString("0.1")))
}

func TestSnapshot_Apply(t *testing.T) {
	testCases := []struct {
		name  string
		key   string
		value string
		check func(t *testing.T, s Snapshot)
		err   bool
	}{
		{"MaxLevels", KeyMaxLevels, `4`, func(t *testing.T, s Snapshot) { assert.Equal(t, 4, s.MaxLevels) }, false},
		{"MaxLevelsZero", KeyMaxLevels, `0`, nil, true},
		{"PayoutDepthZero", KeyPayoutDepth, `0`, func(t *testing.T, s Snapshot) { assert.Equal(t, 0, s.PayoutDepth) }, false},
		{"BranchingNotInt", KeyBranchingFactor, `"three"`, nil, true},
		{"EntryFeeString", KeyEntryFee, `"49.99"`, func(t *testing.T, s Snapshot) {
			assert.True(t, s.EntryFee.Equal(decimal.RequireFromString("49.99")))
		}, false},
		{"EntryFeeNumber", KeyEntryFee, `25`, func(t *testing.T, s Snapshot) {
			assert.True(t, s.EntryFee.Equal(decimal.NewFromInt(25)))
		}, false},
		{"NegativeRatio", KeyPayoutRatio, `-0.5`, nil, true},
		{"Rates", KeyCommissionRates, `[0.2, "0.1"]`, func(t *testing.T, s Snapshot) {
			require.Len(t, s.CommissionRates, 2)
			assert.True(t, s.CommissionRates[1].Equal(decimal.RequireFromString("0.1")))
		}, false},
		{"EmptyRates", KeyCommissionRates, `[]`, func(t *testing.T, s Snapshot) { assert.Empty(t, s.CommissionRates) }, false},
		{"NegativeWeight", KeyPayoutWeights, `[0.5, -0.1]`, nil, true},
		{"WeightsAboveOne", KeyPayoutWeights, `[0.9, 0.9]`, nil, true},
		{"WeightsSumToOne", KeyPayoutWeights, `[0.6, "0.4"]`, func(t *testing.T, s Snapshot) {
			require.Len(t, s.PayoutWeights, 2)
		}, false},
		{"RatesAboveOne", KeyCommissionRates, `[2, 2]`, nil, true},
		{"RatesSumAboveOne", KeyCommissionRates, `[0.6, 0.3, 0.2]`, nil, true},
		{"RatioAboveOne", KeyPayoutRatio, `5`, nil, true},
		{"RatioOne", KeyPayoutRatio, `1`, func(t *testing.T, s Snapshot) {
			assert.True(t, s.PayoutRatio.Equal(decimal.NewFromInt(1)))
		}, false},
		{"ResidualAboveOne", KeyPayoutResidualWeight, `"1.5"`, nil, true},
		{"RatesNotAList", KeyCommissionRates, `{"bad":1}`, nil, true},
		{"Strategy", KeyDistributionStrategy, `"both"`, func(t *testing.T, s Snapshot) { assert.Equal(t, StrategyBoth, s.Strategy) }, false},
		{"BadStrategy", KeyDistributionStrategy, `"lottery"`, nil, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := DefaultSnapshot()
			err := s.Apply(tc.key, json.RawMessage(tc.value))
			if tc.err {
				var invalid ErrInvalidValue
				require.True(t, errors.As(err, &invalid))
				assert.Equal(t, tc.key, invalid.Key)
				assert.Equal(t, DefaultSnapshot(), s, "a rejected value leaves the snapshot untouched")
				return
			}
			require.NoError(t, err)
			tc.check(t, s)
		})
	}
}

func TestSnapshot_UnknownKey(t *testing.T) {
	s := DefaultSnapshot()
	assert.ErrorIs(t, s.Apply("jackpot", json.RawMessage(`1`)), ErrUnknownKey)
	_, err := s.Value("jackpot")
	assert.ErrorIs(t, err, ErrUnknownKey)
	assert.ErrorIs(t, Validate("jackpot", json.RawMessage(`1`)), ErrUnknownKey)
}

func TestSnapshot_ValueRoundTrip(t *testing.T) {
	defaults := DefaultSnapshot()
	for _, key := range Keys {
		raw, err := defaults.Value(key)
		require.NoError(t, err, key)

		var s Snapshot
		require.NoError(t, s.Apply(key, raw), key)
	}
}

func TestSnapshot_Check(t *testing.T) {
	require.NoError(t, DefaultSnapshot().Check())

	s := DefaultSnapshot()
	s.PayoutRatio = decimal.NewFromInt(2)
	var invalid ErrInvalidValue
	require.ErrorAs(t, s.Check(), &invalid)
	assert.Equal(t, KeyPayoutRatio, invalid.Key)

	s = DefaultSnapshot()
	s.CommissionRates = []decimal.Decimal{decimal.RequireFromString("0.7"), decimal.RequireFromString("0.4")}
	require.ErrorAs(t, s.Check(), &invalid)
	assert.Equal(t, KeyCommissionRates, invalid.Key)

	s = DefaultSnapshot()
	s.BranchingFactor = 0
	require.ErrorAs(t, s.Check(), &invalid)
	assert.Equal(t, KeyBranchingFactor, invalid.Key)
}

func TestStrategy_Pays(t *testing.T) {
	assert.True(t, StrategyCommission.Pays(shared.LedgerKindCommission))
	assert.False(t, StrategyCommission.Pays(shared.LedgerKindPayout))
	assert.True(t, StrategyPayoutPool.Pays(shared.LedgerKindPayout))
	assert.False(t, StrategyPayoutPool.Pays(shared.LedgerKindCommission))
	assert.True(t, StrategyBoth.Pays(shared.LedgerKindCommission))
	assert.True(t, StrategyBoth.Pays(shared.LedgerKindPayout))
	assert.False(t, StrategyBoth.Pays(shared.LedgerKindDeposit))
}
