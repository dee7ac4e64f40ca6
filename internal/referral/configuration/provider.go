package configuration

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/referral-ledger/internal/config"
	"github.com/referral-ledger/internal/domain/settings"
	"github.com/shopspring/decimal"
)

// Provider serves runtime settings. Stored values override the defaults key by
// key; a missing or undecodable value falls back to its default.
type Provider struct {
	repo     settings.Repository
	defaults settings.Snapshot
	clock    clockwork.Clock
	logger   *slog.Logger
}

func NewProvider(logger *slog.Logger, repo settings.Repository, defaults settings.Snapshot, clock clockwork.Clock) *Provider {
	return &Provider{
		repo:     repo,
		defaults: defaults,
		clock:    clock,
		logger:   logger,
	}
}

// Defaults returns a copy of the fallback snapshot
func (p *Provider) Defaults() settings.Snapshot {
	return clone(p.defaults)
}

// Snapshot loads every setting once. Callers pass the result down instead of
// re-reading settings mid-operation.
func (p *Provider) Snapshot(ctx context.Context) (settings.Snapshot, error) {
	snap := clone(p.defaults)

	stored, err := p.repo.GetAll(ctx)
	if err != nil {
		return settings.Snapshot{}, fmt.Errorf("failed to load settings: %w", err)
	}

	for _, key := range settings.Keys {
		raw, ok := stored[key]
		if !ok {
			p.logger.Debug("Setting not stored, using default", "key", key)
			continue
		}
		if err := snap.Apply(key, raw); err != nil {
			p.logger.Warn("Ignoring invalid stored setting", "key", key, "error", err)
		}
	}
	return snap, nil
}

// Get returns the stored value for key, or def when nothing is stored. A nil
// def falls back to the built-in default for key.
func (p *Provider) Get(ctx context.Context, key string, def json.RawMessage) (json.RawMessage, error) {
	fallback, err := p.defaults.Value(key)
	if err != nil {
		return nil, err
	}
	if def != nil {
		fallback = def
	}

	raw, err := p.repo.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	if raw == nil {
		p.logger.Debug("Setting not stored, using default", "key", key)
		return fallback, nil
	}
	return raw, nil
}

// Set validates value for key and stores it
func (p *Provider) Set(ctx context.Context, key string, value json.RawMessage) error {
	if err := settings.Validate(key, value); err != nil {
		return err
	}
	if err := p.repo.Set(ctx, key, value, p.clock.Now()); err != nil {
		return fmt.Errorf("failed to store setting %s: %w", key, err)
	}
	p.logger.Info("Setting updated", "key", key, "value", string(value))
	return nil
}

// DefaultsFromConfig builds the fallback snapshot from the REFERRAL_* config.
// List values may be separated by commas or whitespace.
func DefaultsFromConfig(cfg config.ReferralConfig) (settings.Snapshot, error) {
	snap := settings.DefaultSnapshot()
	snap.MaxLevels = cfg.MaxLevels
	snap.BranchingFactor = cfg.BranchingFactor
	snap.PayoutDepth = cfg.PayoutDepth
	snap.MarketCapLimit = cfg.MarketCapLimit
	snap.Strategy = settings.Strategy(cfg.DistributionStrategy)
	if !snap.Strategy.Valid() {
		return settings.Snapshot{}, settings.ErrInvalidValue{Key: settings.KeyDistributionStrategy, Reason: "must be commission, payout_pool or both"}
	}

	var err error
	if snap.EntryFee, err = parseDecimal(settings.KeyEntryFee, cfg.EntryFee); err != nil {
		return settings.Snapshot{}, err
	}
	if snap.PayoutRatio, err = parseDecimal(settings.KeyPayoutRatio, cfg.PayoutRatio); err != nil {
		return settings.Snapshot{}, err
	}
	if snap.PayoutResidualWeight, err = parseDecimal(settings.KeyPayoutResidualWeight, cfg.PayoutResidualWeight); err != nil {
		return settings.Snapshot{}, err
	}
	if snap.CommissionRates, err = parseDecimals(settings.KeyCommissionRates, cfg.CommissionRates); err != nil {
		return settings.Snapshot{}, err
	}
	if snap.PayoutWeights, err = parseDecimals(settings.KeyPayoutWeights, cfg.PayoutWeights); err != nil {
		return settings.Snapshot{}, err
	}
	if err := snap.Check(); err != nil {
		return settings.Snapshot{}, err
	}
	return snap, nil
}

func parseDecimal(key, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || d.IsNegative() {
		return decimal.Zero, settings.ErrInvalidValue{Key: key, Reason: fmt.Sprintf("%q is not a non-negative decimal", s)}
	}
	return d, nil
}

func parseDecimals(key string, values []string) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			d, err := parseDecimal(key, part)
			if err != nil {
				return nil, err
			}
			out = append(out, d)
		}
	}
	return out, nil
}

func clone(s settings.Snapshot) settings.Snapshot {
	s.CommissionRates = append([]decimal.Decimal(nil), s.CommissionRates...)
	s.PayoutWeights = append([]decimal.Decimal(nil), s.PayoutWeights...)
	return s
}
