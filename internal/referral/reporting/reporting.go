// Package reporting produces administrative summaries and transaction listings.
package reporting

import (
	"context"
	"log/slog"

	"github.com/referral-ledger/internal/domain/ledger"
	"github.com/referral-ledger/internal/domain/member"
	"github.com/referral-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Summary aggregates approved ledger totals and reconciles them with the
// member balances
type Summary struct {
	Members           int             `json:"members"`
	Deposits          decimal.Decimal `json:"deposits"`
	Withdrawals       decimal.Decimal `json:"withdrawals"`
	Commissions       decimal.Decimal `json:"commissions"`
	Payouts           decimal.Decimal `json:"payouts"`
	EntryFees         decimal.Decimal `json:"entry_fees"`
	Adjustments       decimal.Decimal `json:"adjustments"`
	Balances          decimal.Decimal `json:"balances"`
	PayoutAccumulated decimal.Decimal `json:"payout_accumulated"`
	PaidIn            decimal.Decimal `json:"paid_in"`
	ExpectedBalances  decimal.Decimal `json:"expected_balances"`
	Drift             decimal.Decimal `json:"drift"`
}

// Reconciled reports whether the drift is within tolerance
func (s *Summary) Reconciled(tolerance decimal.Decimal) bool {
	return s.Drift.Abs().LessThanOrEqual(tolerance)
}

// Page is one page of ledger entries plus the total number of matches
type Page struct {
	Entries []*ledger.Entry `json:"entries"`
	Total   int64           `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

type Service struct {
	members member.Repository
	entries ledger.Repository
	logger  *slog.Logger
}

func NewService(members member.Repository, entries ledger.Repository, logger *slog.Logger) *Service {
	return &Service{
		members: members,
		entries: entries,
		logger:  logger,
	}
}

// Summary totals approved entries per kind. Balances must equal deposits minus
// withdrawals plus commissions plus signed adjustments; Drift is the
// difference between the actual and expected sums.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	totals, err := s.members.Totals(ctx)
	if err != nil {
		return nil, err
	}
	sums, err := s.entries.SumApproved(ctx)
	if err != nil {
		return nil, err
	}

	sum := func(kind shared.LedgerKind) decimal.Decimal {
		if v, ok := sums[kind]; ok {
			return v
		}
		return decimal.Zero
	}

	summary := &Summary{
		Members:           totals.Members,
		Deposits:          sum(shared.LedgerKindDeposit),
		Withdrawals:       sum(shared.LedgerKindWithdrawal),
		Commissions:       sum(shared.LedgerKindCommission),
		Payouts:           sum(shared.LedgerKindPayout),
		EntryFees:         sum(shared.LedgerKindEntryFee),
		Adjustments:       sum(shared.LedgerKindAdjustment),
		Balances:          totals.Balance,
		PayoutAccumulated: totals.PayoutAccumulated,
		PaidIn:            totals.PaidIn,
	}
	summary.ExpectedBalances = summary.Deposits.
		Sub(summary.Withdrawals).
		Add(summary.Commissions).
		Add(summary.Adjustments)
	summary.Drift = summary.Balances.Sub(summary.ExpectedBalances)

	if !summary.Drift.IsZero() {
		s.logger.Warn("Ledger does not reconcile with balances",
			"expected", summary.ExpectedBalances.String(),
			"actual", summary.Balances.String(),
			"drift", summary.Drift.String(),
		)
	}
	return summary, nil
}

// ListTransactions returns one page of entries matching filter, newest first
func (s *Service) ListTransactions(ctx context.Context, filter ledger.Filter) (*Page, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, shared.ErrInvalidStatus
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, shared.ErrInvalidKind
	}

	entries, err := s.entries.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.entries.Count(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &Page{Entries: entries, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}
