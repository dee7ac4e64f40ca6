// Package payment turns confirmed checkout sessions into entry fees and
// distributes them exactly once per session.
package payment

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
)

// SettingsSource loads the settings snapshot for one operation
type SettingsSource interface {
	Snapshot(ctx context.Context) (settings.Snapshot, error)
}

// Distributor runs or replays a distribution inside an open transaction
type Distributor interface {
	DistributeTx(ctx context.Context, tx pgx.Tx, snap settings.Snapshot, req distribution.Request) (*distribution.Result, error)
	ReplayTx(ctx context.Context, tx pgx.Tx, snap settings.Snapshot, memberID, sourceRef string) (*distribution.Result, error)
}

// Result reports what a confirmation did
type Result struct {
	SessionID    string               `json:"session_id"`
	EntryID      string               `json:"entry_id,omitempty"`
	Distribution *distribution.Result `json:"distribution,omitempty"`
	Ignored      bool                 `json:"ignored"`
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

// ConfirmPayment records the entry fee of a paid session and distributes it.
// Unpaid sessions are ignored. A session seen before returns the earlier
// result together with shared.ErrAlreadyProcessed and changes nothing.
func (s *Service) ConfirmPayment(ctx context.Context, confirmation *shared.PaymentConfirmation) (*Result, error) {
	logger := s.logger
	if confirmation.CorrelationID != "" {
		logger = s.logger.With("correlation_id", confirmation.CorrelationID)
	}

	if err := confirmation.Validate(); err != nil {
		return nil, err
	}
	if !confirmation.Paid {
		logger.Info("Ignoring unpaid session", "session_id", confirmation.SessionID, "member_id", confirmation.MemberID)
		metrics.PaymentsTotal.WithLabelValues("ignored").Inc()
		return &Result{SessionID: confirmation.SessionID, Ignored: true}, nil
	}

	snap, err := s.settings.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	amount := confirmation.Amount
	if amount.IsZero() {
		amount = snap.EntryFee
	}
	amount = amount.Round(ledger.Precision)

	var (
		result    *Result
		processed bool
	)
	err = s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		entries := s.entries.WithTx(tx)
		members := s.members.WithTx(tx)

		if err := entries.LockSourceRef(ctx, "session:"+confirmation.SessionID); err != nil {
			return fmt.Errorf("failed to lock session %s: %w", confirmation.SessionID, err)
		}

		existing, err := entries.GetByExternalRef(ctx, shared.LedgerKindEntryFee, confirmation.SessionID)
		if err != nil {
			return err
		}
		if existing != nil {
			processed = true
			replay, err := s.distributor.ReplayTx(ctx, tx, snap, existing.MemberID, existing.ID)
			if err != nil {
				return err
			}
			result = &Result{SessionID: confirmation.SessionID, EntryID: existing.ID, Distribution: replay}
			return nil
		}

		payer, err := members.LockForUpdate(ctx, confirmation.MemberID)
		if err != nil {
			return err
		}

		note := "Entry fee for session " + confirmation.SessionID
		fee, err := ledger.NewSystemEntry(payer.ID, shared.LedgerKindEntryFee, amount, "", note, s.clock.Now())
		if err != nil {
			return err
		}
		fee.Method = "stripe"
		sessionID := confirmation.SessionID
		fee.ExternalRef = &sessionID

		if err := entries.Create(ctx, fee); err != nil {
			return err
		}
		if err := members.AdjustBalances(ctx, payer.ID, member.BalanceDelta{PaidIn: amount}); err != nil {
			return err
		}

		dist, err := s.distributor.DistributeTx(ctx, tx, snap, distribution.Request{
			MemberID:      payer.ID,
			Amount:        amount,
			SourceRef:     fee.ID,
			CorrelationID: confirmation.CorrelationID,
		})
		if err != nil {
			return err
		}
		result = &Result{SessionID: confirmation.SessionID, EntryID: fee.ID, Distribution: dist}
		return nil
	})
	if err != nil {
		metrics.PaymentsTotal.WithLabelValues(metrics.ResultError).Inc()
		logger.Error("Failed to confirm payment", "session_id", confirmation.SessionID, "member_id", confirmation.MemberID, "error", err)
		return nil, err
	}

	if processed {
		metrics.PaymentsTotal.WithLabelValues(metrics.ResultReplayed).Inc()
		logger.Info("Session already processed", "session_id", confirmation.SessionID, "entry_id", result.EntryID)
		return result, shared.ErrAlreadyProcessed
	}

	metrics.PaymentsTotal.WithLabelValues(metrics.ResultOK).Inc()
	logger.Info("Payment confirmed",
		"session_id", confirmation.SessionID,
		"member_id", confirmation.MemberID,
		"entry_id", result.EntryID,
		"amount", amount.String(),
		"credits", len(result.Distribution.Credits),
	)
	return result, nil
}
