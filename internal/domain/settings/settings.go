package settings

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/referral-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Runtime setting keys
const (
	KeyMaxLevels            = "max_levels"
	KeyBranchingFactor      = "branching_factor"
	KeyEntryFee             = "entry_fee"
	KeyCommissionRates      = "commission_rates"
	KeyPayoutRatio          = "payout_ratio"
	KeyPayoutDepth          = "payout_depth"
	KeyPayoutWeights        = "payout_weights"
	KeyPayoutResidualWeight = "payout_residual_weight"
	KeyMarketCapLimit       = "market_cap_limit"
	KeyDistributionStrategy = "distribution_strategy"
)

// Keys lists every recognised setting
var Keys = []string{
	KeyMaxLevels,
	KeyBranchingFactor,
	KeyEntryFee,
	KeyCommissionRates,
	KeyPayoutRatio,
	KeyPayoutDepth,
	KeyPayoutWeights,
	KeyPayoutResidualWeight,
	KeyMarketCapLimit,
	KeyDistributionStrategy,
}

var ErrUnknownKey = errors.New("unknown setting key")

// ErrInvalidValue indicates a value that cannot be decoded for its key
type ErrInvalidValue struct {
	Key    string
	Reason string
}

func (e ErrInvalidValue) Error() string {
	return fmt.Sprintf("invalid value for setting %s: %s", e.Key, e.Reason)
}

// Strategy selects how a distribution is split among ancestors
type Strategy string

const (
	StrategyCommission Strategy = "commission"
	StrategyPayoutPool Strategy = "payout_pool"
	StrategyBoth       Strategy = "both"
)

func (s Strategy) Valid() bool {
	return s == StrategyCommission || s == StrategyPayoutPool || s == StrategyBoth
}

// Pays reports whether the strategy writes entries of kind
func (s Strategy) Pays(kind shared.LedgerKind) bool {
	switch kind {
	case shared.LedgerKindCommission:
		return s == StrategyCommission || s == StrategyBoth
	case shared.LedgerKindPayout:
		return s == StrategyPayoutPool || s == StrategyBoth
	}
	return false
}

// Snapshot is the set of tunables read once at the start of an operation
type Snapshot struct {
	MaxLevels            int               `json:"max_levels"`
	BranchingFactor      int               `json:"branching_factor"`
	EntryFee             decimal.Decimal   `json:"entry_fee"`
	CommissionRates      []decimal.Decimal `json:"commission_rates"`
	PayoutRatio          decimal.Decimal   `json:"payout_ratio"`
	PayoutDepth          int               `json:"payout_depth"`
	PayoutWeights        []decimal.Decimal `json:"payout_weights"`
	PayoutResidualWeight decimal.Decimal   `json:"payout_residual_weight"`
	MarketCapLimit       int               `json:"market_cap_limit"`
	Strategy             Strategy          `json:"distribution_strategy"`
}

// DefaultSnapshot returns the built-in defaults
func DefaultSnapshot() Snapshot {
	return Snapshot{
		MaxLevels:       10,
		BranchingFactor: 3,
		EntryFee:        decimal.RequireFromString("100.00"),
		CommissionRates: []decimal.Decimal{
			decimal.RequireFromString("0.10"),
			decimal.RequireFromString("0.05"),
			decimal.RequireFromString("0.02"),
		},
		PayoutRatio: decimal.RequireFromString("0.50"),
		PayoutDepth: 3,
		PayoutWeights: []decimal.Decimal{
			decimal.RequireFromString("0.5"),
			decimal.RequireFromString("0.3"),
			decimal.RequireFromString("0.2"),
		},
		PayoutResidualWeight: decimal.RequireFromString("0.10"),
		MarketCapLimit:       10000,
		Strategy:             StrategyCommission,
	}
}

// CommissionRate returns the rate for the i-th ancestor (0 = direct parent)
func (s Snapshot) CommissionRate(i int) decimal.Decimal {
	if i < 0 || i >= len(s.CommissionRates) {
		return decimal.Zero
	}
	return s.CommissionRates[i]
}

// PayoutWeight returns the pool weight for the i-th ancestor, falling back to
// the residual weight past the end of the configured list.
func (s Snapshot) PayoutWeight(i int) decimal.Decimal {
	if i < 0 {
		return decimal.Zero
	}
	if i < len(s.PayoutWeights) {
		return s.PayoutWeights[i]
	}
	return s.PayoutResidualWeight
}

// Apply decodes value into the field named by key. The snapshot is left
// unchanged when value is rejected.
func (s *Snapshot) Apply(key string, value json.RawMessage) error {
	switch key {
	case KeyMaxLevels:
		return applyInt(&s.MaxLevels, key, value, 1)
	case KeyBranchingFactor:
		return applyInt(&s.BranchingFactor, key, value, 1)
	case KeyPayoutDepth:
		return applyInt(&s.PayoutDepth, key, value, 0)
	case KeyMarketCapLimit:
		return applyInt(&s.MarketCapLimit, key, value, 1)
	case KeyEntryFee:
		d, err := decodeDecimal(key, value)
		if err != nil {
			return err
		}
		s.EntryFee = d
	case KeyPayoutRatio, KeyPayoutResidualWeight:
		d, err := decodeFraction(key, value)
		if err != nil {
			return err
		}
		if key == KeyPayoutRatio {
			s.PayoutRatio = d
		} else {
			s.PayoutResidualWeight = d
		}
	case KeyCommissionRates, KeyPayoutWeights:
		ds, err := decodeShares(key, value)
		if err != nil {
			return err
		}
		if key == KeyCommissionRates {
			s.CommissionRates = ds
		} else {
			s.PayoutWeights = ds
		}
	case KeyDistributionStrategy:
		var strategy Strategy
		if err := json.Unmarshal(value, &strategy); err != nil {
			return ErrInvalidValue{Key: key, Reason: err.Error()}
		}
		if !strategy.Valid() {
			return ErrInvalidValue{Key: key, Reason: "must be commission, payout_pool or both"}
		}
		s.Strategy = strategy
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return nil
}

// Validate checks that value decodes for key without changing anything
func Validate(key string, value json.RawMessage) error {
	s := DefaultSnapshot()
	return s.Apply(key, value)
}

// Check runs every field through the limits Apply enforces
func (s Snapshot) Check() error {
	var fresh Snapshot
	for _, key := range Keys {
		raw, err := s.Value(key)
		if err != nil {
			return err
		}
		if err := fresh.Apply(key, raw); err != nil {
			return err
		}
	}
	return nil
}

// Value returns the JSON encoding of the field named by key
func (s Snapshot) Value(key string) (json.RawMessage, error) {
	var v any
	switch key {
	case KeyMaxLevels:
		v = s.MaxLevels
	case KeyBranchingFactor:
		v = s.BranchingFactor
	case KeyPayoutDepth:
		v = s.PayoutDepth
	case KeyMarketCapLimit:
		v = s.MarketCapLimit
	case KeyEntryFee:
		v = s.EntryFee
	case KeyPayoutRatio:
		v = s.PayoutRatio
	case KeyPayoutResidualWeight:
		v = s.PayoutResidualWeight
	case KeyCommissionRates:
		v = s.CommissionRates
	case KeyPayoutWeights:
		v = s.PayoutWeights
	case KeyDistributionStrategy:
		v = s.Strategy
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return json.Marshal(v)
}

func applyInt(field *int, key string, value json.RawMessage, min int) error {
	var n int
	if err := json.Unmarshal(value, &n); err != nil {
		return ErrInvalidValue{Key: key, Reason: "expected an integer"}
	}
	if n < min {
		return ErrInvalidValue{Key: key, Reason: fmt.Sprintf("must be at least %d", min)}
	}
	*field = n
	return nil
}

// decimals are accepted as JSON numbers or strings
func decodeDecimal(key string, value json.RawMessage) (decimal.Decimal, error) {
	var d decimal.Decimal
	if err := json.Unmarshal(value, &d); err != nil {
		return decimal.Zero, ErrInvalidValue{Key: key, Reason: "expected a decimal"}
	}
	if d.IsNegative() {
		return decimal.Zero, ErrInvalidValue{Key: key, Reason: "must not be negative"}
	}
	return d, nil
}

// decodeFraction accepts a decimal in [0, 1]
func decodeFraction(key string, value json.RawMessage) (decimal.Decimal, error) {
	d, err := decodeDecimal(key, value)
	if err != nil {
		return decimal.Zero, err
	}
	if d.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, ErrInvalidValue{Key: key, Reason: "must not exceed 1"}
	}
	return d, nil
}

// decodeShares accepts a list of non-negative fractions that sum to at most 1
func decodeShares(key string, value json.RawMessage) ([]decimal.Decimal, error) {
	var ds []decimal.Decimal
	if err := json.Unmarshal(value, &ds); err != nil {
		return nil, ErrInvalidValue{Key: key, Reason: "expected a list of decimals"}
	}
	total := decimal.Zero
	for _, d := range ds {
		if d.IsNegative() {
			return nil, ErrInvalidValue{Key: key, Reason: "must not contain negative values"}
		}
		total = total.Add(d)
	}
	if total.GreaterThan(decimal.NewFromInt(1)) {
		return nil, ErrInvalidValue{Key: key, Reason: "values must sum to at most 1"}
	}
	return ds, nil
}
