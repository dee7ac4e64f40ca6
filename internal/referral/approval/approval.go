// Package approval moves deposit and withdrawal requests through review and
// applies administrative adjustments.
package approval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jonboulle/clockwork"
	"github.com/referral-ledger/internal/domain/ledger"
	"github.com/referral-ledger/internal/domain/member"
	"github.com/referral-ledger/internal/domain/settings"
	"github.com/referral-ledger/internal/domain/shared"
	"github.com/referral-ledger/internal/metrics"
	"github.com/referral-ledger/internal/platform/persistence"
	"github.com/referral-ledger/internal/referral/distribution"
	"github.com/shopspring/decimal"
)

// SettingsSource loads the settings snapshot for one operation
type SettingsSource interface {
	Snapshot(ctx context.Context) (settings.Snapshot, error)
}

// Distributor runs a distribution inside an open transaction
type Distributor interface {
	DistributeTx(ctx context.Context, tx pgx.Tx, snap settings.Snapshot, req distribution.Request) (*distribution.Result, error)
}

// Request is a member's deposit or withdrawal request
type Request struct {
	MemberID string
	Kind     shared.LedgerKind
	Amount   decimal.Decimal
	Method   string
	Note     string
}

// Outcome reports an approval. Distribution is set for approved deposits.
type Outcome struct {
	Entry        *ledger.Entry        `json:"entry"`
	Distribution *distribution.Result `json:"distribution,omitempty"`
	NoOp         bool                 `json:"no_op"`
}

type Service struct {
	db          persistence.Transactor
	members     member.Repository
	entries     ledger.Repository
	distributor Distributor
	settings    SettingsSource
	clock       clockwork.Clock
	logger      *slog.Logger
}

func NewService(
	db persistence.Transactor,
	members member.Repository,
	entries ledger.Repository,
	distributor Distributor,
	settings SettingsSource,
	clock clockwork.Clock,
	logger *slog.Logger,
) *Service {
	return &Service{
		db:          db,
		members:     members,
		entries:     entries,
		distributor: distributor,
		settings:    settings,
		clock:       clock,
		logger:      logger,
	}
}

// CreateRequest records a pending request. It has no balance effect; a
// withdrawal is checked against the balance only when it is approved.
func (s *Service) CreateRequest(ctx context.Context, req Request) (*ledger.Entry, error) {
	if _, err := s.members.GetByID(ctx, req.MemberID); err != nil {
		return nil, err
	}

	entry, err := ledger.NewRequest(req.MemberID, req.Kind, req.Amount, req.Method, req.Note, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.entries.Create(ctx, entry); err != nil {
		return nil, err
	}

	s.logger.Info("Ledger request created", "entry_id", entry.ID, "member_id", entry.MemberID, "kind", entry.Kind, "amount", entry.Amount.String())
	return entry, nil
}

// Approve applies a pending request. Approving an approved entry is a no-op.
// A deposit credits the balance and is then distributed with the entry id as
// source; a withdrawal needs the balance to cover it, otherwise it fails with
// shared.ErrInsufficientFunds and stays pending.
func (s *Service) Approve(ctx context.Context, entryID string) (*Outcome, error) {
	snap, err := s.settings.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	var outcome *Outcome
	err = s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		var txErr error
		outcome, txErr = s.approve(ctx, tx, snap, entryID)
		return txErr
	})
	if err != nil {
		s.logger.Warn("Approval failed", "entry_id", entryID, "error", err)
		return nil, err
	}

	if !outcome.NoOp {
		metrics.TransitionsTotal.WithLabelValues(string(outcome.Entry.Kind), string(shared.LedgerStatusApproved)).Inc()
		s.logger.Info("Ledger entry approved", "entry_id", entryID, "member_id", outcome.Entry.MemberID, "kind", outcome.Entry.Kind)
	}
	return outcome, nil
}

func (s *Service) approve(ctx context.Context, tx pgx.Tx, snap settings.Snapshot, entryID string) (*Outcome, error) {
	entries := s.entries.WithTx(tx)
	members := s.members.WithTx(tx)

	entry, err := entries.LockForUpdate(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Status == shared.LedgerStatusApproved {
		return &Outcome{Entry: entry, NoOp: true}, nil
	}
	if !entry.Kind.IsRequest() {
		return nil, shared.ErrInvalidTransition{EntryID: entry.ID, From: entry.Status, To: shared.LedgerStatusApproved}
	}

	now := s.clock.Now()
	if err := entry.Approve(now); err != nil {
		return nil, err
	}

	owner, err := members.LockForUpdate(ctx, entry.MemberID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock member %s: %w", entry.MemberID, err)
	}

	var delta member.BalanceDelta
	switch entry.Kind {
	case shared.LedgerKindDeposit:
		delta = member.BalanceDelta{Balance: entry.Amount, PaidIn: entry.Amount}
	case shared.LedgerKindWithdrawal:
		if !owner.CanWithdraw(entry.Amount) {
			return nil, shared.ErrInsufficientFunds
		}
		delta = member.BalanceDelta{Balance: entry.Amount.Neg()}
	}

	if err := members.AdjustBalances(ctx, owner.ID, delta); err != nil {
		return nil, err
	}
	if err := entries.UpdateStatus(ctx, entry.ID, entry.Status, *entry.ResolvedAt); err != nil {
		return nil, err
	}

	outcome := &Outcome{Entry: entry}
	if entry.Kind == shared.LedgerKindDeposit {
		outcome.Distribution, err = s.distributor.DistributeTx(ctx, tx, snap, distribution.Request{
			MemberID:  owner.ID,
			Amount:    entry.Amount,
			SourceRef: entry.ID,
		})
		if err != nil {
			return nil, err
		}
	}
	return outcome, nil
}

// Reject closes a pending request without touching balances. Rejecting a
// rejected entry is a no-op; an approved entry cannot be rejected.
func (s *Service) Reject(ctx context.Context, entryID string) (*Outcome, error) {
	var outcome *Outcome
	err := s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		entries := s.entries.WithTx(tx)

		entry, err := entries.LockForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		if entry.Status == shared.LedgerStatusRejected {
			outcome = &Outcome{Entry: entry, NoOp: true}
			return nil
		}
		if err := entry.Reject(s.clock.Now()); err != nil {
			return err
		}
		if err := entries.UpdateStatus(ctx, entry.ID, entry.Status, *entry.ResolvedAt); err != nil {
			return err
		}
		outcome = &Outcome{Entry: entry}
		return nil
	})
	if err != nil {
		s.logger.Warn("Rejection failed", "entry_id", entryID, "error", err)
		return nil, err
	}

	if !outcome.NoOp {
		metrics.TransitionsTotal.WithLabelValues(string(outcome.Entry.Kind), string(shared.LedgerStatusRejected)).Inc()
		s.logger.Info("Ledger entry rejected", "entry_id", entryID, "member_id", outcome.Entry.MemberID)
	}
	return outcome, nil
}

// Adjust records an administrative credit (positive amount) or debit
// (negative amount). A debit that would overdraw the balance fails with
// shared.ErrInsufficientFunds.
func (s *Service) Adjust(ctx context.Context, memberID string, amount decimal.Decimal, note string) (*ledger.Entry, error) {
	entry, err := ledger.NewAdjustment(memberID, amount, note, s.clock.Now())
	if err != nil {
		return nil, err
	}

	err = s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		members := s.members.WithTx(tx)

		owner, err := members.LockForUpdate(ctx, memberID)
		if err != nil {
			return err
		}
		if entry.Amount.IsNegative() && !owner.CanWithdraw(entry.Amount.Neg()) {
			return shared.ErrInsufficientFunds
		}
		if err := s.entries.WithTx(tx).Create(ctx, entry); err != nil {
			return err
		}
		return members.AdjustBalances(ctx, memberID, member.BalanceDelta{Balance: entry.Amount})
	})
	if err != nil {
		s.logger.Warn("Adjustment failed", "member_id", memberID, "amount", amount.String(), "error", err)
		return nil, err
	}

	s.logger.Info("Balance adjusted", "entry_id", entry.ID, "member_id", memberID, "amount", entry.Amount.String())
	return entry, nil
}
