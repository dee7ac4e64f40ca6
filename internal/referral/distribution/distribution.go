// Package distribution credits a member's ancestors with commission and
// payout-pool shares of an inflow.
package distribution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jonboulle/clockwork"
	"github.com/referral-ledger/internal/domain/ledger"
	"github.com/referral-ledger/internal/domain/member"
	"github.com/referral-ledger/internal/domain/outbox"
	"github.com/referral-ledger/internal/domain/settings"
	"github.com/referral-ledger/internal/domain/shared"
	"github.com/referral-ledger/internal/metrics"
	"github.com/referral-ledger/internal/platform/persistence"
	"github.com/referral-ledger/internal/referral/chain"
	"github.com/shopspring/decimal"
)

var ErrMissingSourceRef = errors.New("distribution source reference is required")

// SettingsSource loads the settings snapshot for one operation
type SettingsSource interface {
	Snapshot(ctx context.Context) (settings.Snapshot, error)
}

// Request names the inflow being distributed. SourceRef identifies it; a
// source is distributed at most once.
type Request struct {
	MemberID      string
	Amount        decimal.Decimal
	SourceRef     string
	CorrelationID string
}

// Result lists the credits written for a source. Replayed is set when the
// source had already been distributed and nothing new was written.
type Result struct {
	SourceRef string          `json:"source_ref"`
	Strategy  string          `json:"strategy"`
	Credits   []ledger.Credit `json:"credits"`
	Replayed  bool            `json:"replayed"`
}

// Total sums the credited amounts
func (r *Result) Total() decimal.Decimal {
	return ledger.TotalCredited(r.Credits)
}

type Service struct {
	db       persistence.Transactor
	members  member.Repository
	entries  ledger.Repository
	outbox   outbox.Repository
	settings SettingsSource
	clock    clockwork.Clock
	logger   *slog.Logger
}

func NewService(
	db persistence.Transactor,
	members member.Repository,
	entries ledger.Repository,
	outboxRepo outbox.Repository,
	settings SettingsSource,
	clock clockwork.Clock,
	logger *slog.Logger,
) *Service {
	return &Service{
		db:       db,
		members:  members,
		entries:  entries,
		outbox:   outboxRepo,
		settings: settings,
		clock:    clock,
		logger:   logger,
	}
}

// Distribute runs a distribution in its own transaction
func (s *Service) Distribute(ctx context.Context, req Request) (*Result, error) {
	snap, err := s.settings.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	var result *Result
	err = s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		var txErr error
		result, txErr = s.DistributeTx(ctx, tx, snap, req)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DistributeTx runs a distribution inside the caller's transaction. The source
// reference is locked first, so a concurrent call for the same source waits
// and then replays.
func (s *Service) DistributeTx(ctx context.Context, tx pgx.Tx, snap settings.Snapshot, req Request) (result *Result, err error) {
	logger := s.logger
	if req.CorrelationID != "" {
		logger = s.logger.With("correlation_id", req.CorrelationID)
	}

	if strings.TrimSpace(req.SourceRef) == "" {
		return nil, ErrMissingSourceRef
	}
	if !req.Amount.IsPositive() {
		return nil, shared.ErrInvalidAmount
	}

	strategy := string(snap.Strategy)
	start := s.clock.Now()
	defer func() {
		metrics.DistributionDuration.WithLabelValues(strategy).Observe(s.clock.Since(start).Seconds())
		switch {
		case err != nil:
			metrics.DistributionsTotal.WithLabelValues(strategy, metrics.ResultError).Inc()
		case result.Replayed:
			metrics.DistributionsTotal.WithLabelValues(strategy, metrics.ResultReplayed).Inc()
		default:
			metrics.DistributionsTotal.WithLabelValues(strategy, metrics.ResultOK).Inc()
		}
	}()

	entries := s.entries.WithTx(tx)
	members := s.members.WithTx(tx)

	if err := entries.LockSourceRef(ctx, req.SourceRef); err != nil {
		return nil, fmt.Errorf("failed to lock source %s: %w", req.SourceRef, err)
	}

	origin, err := members.GetByID(ctx, req.MemberID)
	if err != nil {
		return nil, err
	}

	recorded, err := entries.ListBySourceRef(ctx, req.SourceRef, shared.LedgerKindCommission, shared.LedgerKindPayout)
	if err != nil {
		return nil, err
	}
	if len(recorded) > 0 {
		logger.Info("Source already distributed, replaying", "source_ref", req.SourceRef, "credits", len(recorded))
		return s.replay(ctx, tx, members, origin, snap, req.SourceRef, recorded)
	}

	ancestors, err := chain.Ancestors(ctx, members, origin, walkDepth(snap))
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	result = &Result{SourceRef: req.SourceRef, Strategy: strategy, Credits: []ledger.Credit{}}

	if snap.Strategy.Pays(shared.LedgerKindCommission) {
		for i, ancestor := range ancestors {
			if i >= len(snap.CommissionRates) {
				break
			}
			share := req.Amount.Mul(snap.CommissionRate(i)).Round(ledger.Precision)
			credit, err := s.credit(ctx, entries, members, ancestor, shared.LedgerKindCommission, share, i+1, origin, req.SourceRef, now)
			if err != nil {
				return nil, err
			}
			if credit != nil {
				result.Credits = append(result.Credits, *credit)
			}
		}
	}

	if snap.Strategy.Pays(shared.LedgerKindPayout) {
		pool := req.Amount.Mul(snap.PayoutRatio)
		// residual weights may add up past the pool; later shares are cut to what is left
		remaining := pool.Round(ledger.Precision)
		for i, ancestor := range ancestors {
			if i >= snap.PayoutDepth {
				break
			}
			share := decimal.Min(pool.Mul(snap.PayoutWeight(i)).Round(ledger.Precision), remaining)
			remaining = remaining.Sub(share)
			credit, err := s.credit(ctx, entries, members, ancestor, shared.LedgerKindPayout, share, i+1, origin, req.SourceRef, now)
			if err != nil {
				return nil, err
			}
			if credit != nil {
				result.Credits = append(result.Credits, *credit)
			}
		}
	}

	if len(result.Credits) > 0 {
		event := &ledger.DistributionEvent{
			SourceRef:     req.SourceRef,
			MemberID:      origin.ID,
			Amount:        req.Amount,
			Strategy:      strategy,
			Credits:       result.Credits,
			CorrelationID: req.CorrelationID,
			OccurredAt:    now.UTC(),
		}
		msg, err := outbox.NewMessage(event, now)
		if err != nil {
			return nil, fmt.Errorf("failed to build distribution event: %w", err)
		}
		if err := s.outbox.WithTx(tx).Create(ctx, msg); err != nil {
			return nil, err
		}
	}

	logger.Info("Distribution completed",
		"source_ref", req.SourceRef,
		"member_id", origin.ID,
		"amount", req.Amount.String(),
		"strategy", strategy,
		"credits", len(result.Credits),
		"total", result.Total().String(),
	)
	return result, nil
}

// ReplayTx returns the credits already recorded for sourceRef without writing
// anything. The result is empty when nothing was credited.
func (s *Service) ReplayTx(ctx context.Context, tx pgx.Tx, snap settings.Snapshot, memberID, sourceRef string) (*Result, error) {
	members := s.members.WithTx(tx)
	origin, err := members.GetByID(ctx, memberID)
	if err != nil {
		return nil, err
	}
	recorded, err := s.entries.WithTx(tx).ListBySourceRef(ctx, sourceRef, shared.LedgerKindCommission, shared.LedgerKindPayout)
	if err != nil {
		return nil, err
	}
	return s.replay(ctx, tx, members, origin, snap, sourceRef, recorded)
}

// replay rebuilds the credits of an earlier run. Levels and strategy come from
// the recorded distribution event, not from the caller.
func (s *Service) replay(ctx context.Context, tx pgx.Tx, members member.Repository, origin *member.Member, snap settings.Snapshot, sourceRef string, recorded []*ledger.Entry) (*Result, error) {
	result := &Result{SourceRef: sourceRef, Strategy: string(snap.Strategy), Credits: []ledger.Credit{}, Replayed: true}
	if len(recorded) == 0 {
		return result, nil
	}

	levels, err := s.recordedLevels(ctx, tx, sourceRef, result)
	if err != nil {
		return nil, err
	}
	if levels == nil {
		s.logger.Warn("No distribution event for source, deriving levels from the requesting member",
			"source_ref", sourceRef, "member_id", origin.ID)

		// Parents never change, so the walk still yields the recorded levels
		ancestors, err := chain.Ancestors(ctx, members, origin, snap.MaxLevels)
		if err != nil {
			return nil, err
		}
		byMember := chain.Levels(ancestors)
		levels = make(map[string]int, len(recorded))
		for _, e := range recorded {
			levels[e.ID] = byMember[e.MemberID]
		}
	}

	for _, e := range recorded {
		result.Credits = append(result.Credits, ledger.CreditFromEntry(e, levels[e.ID]))
	}
	return result, nil
}

// recordedLevels maps entry ids to the levels stored in the source's
// distribution event and sets the recorded strategy on result. It returns nil
// when no event exists.
func (s *Service) recordedLevels(ctx context.Context, tx pgx.Tx, sourceRef string, result *Result) (map[string]int, error) {
	msg, err := s.outbox.WithTx(tx).GetBySourceRef(ctx, sourceRef)
	if err != nil {
		var notFound outbox.ErrMessageNotFound
		if errors.As(err, &notFound) {
			return nil, nil
		}
		return nil, err
	}
	event, err := msg.GetDistributionEvent()
	if err != nil {
		return nil, fmt.Errorf("failed to decode distribution event %s: %w", sourceRef, err)
	}

	levels := make(map[string]int, len(event.Credits))
	for _, c := range event.Credits {
		levels[c.EntryID] = c.Level
	}
	if event.Strategy != "" {
		result.Strategy = event.Strategy
	}
	return levels, nil
}

// credit writes one approved entry and the matching balance change. Non-positive
// shares are skipped.
func (s *Service) credit(
	ctx context.Context,
	entries ledger.Repository,
	members member.Repository,
	beneficiary *member.Member,
	kind shared.LedgerKind,
	share decimal.Decimal,
	level int,
	origin *member.Member,
	sourceRef string,
	now time.Time,
) (*ledger.Credit, error) {
	if !share.IsPositive() {
		return nil, nil
	}

	label := "commission"
	delta := member.BalanceDelta{Balance: share}
	if kind == shared.LedgerKindPayout {
		label = "payout"
		delta = member.BalanceDelta{PayoutAccumulated: share}
	}

	note := fmt.Sprintf("Level %d %s from member %s", level, label, origin.Username)
	entry, err := ledger.NewSystemEntry(beneficiary.ID, kind, share, sourceRef, note, now)
	if err != nil {
		return nil, err
	}
	if err := entries.Create(ctx, entry); err != nil {
		return nil, err
	}
	if err := members.AdjustBalances(ctx, beneficiary.ID, delta); err != nil {
		return nil, err
	}

	metrics.CreditsTotal.WithLabelValues(string(kind)).Inc()
	credit := ledger.CreditFromEntry(entry, level)
	return &credit, nil
}

// walkDepth is the number of ancestors the active strategy can pay, capped
// at max_levels
func walkDepth(snap settings.Snapshot) int {
	depth := 0
	if snap.Strategy.Pays(shared.LedgerKindCommission) {
		depth = len(snap.CommissionRates)
	}
	if snap.Strategy.Pays(shared.LedgerKindPayout) {
		depth = max(depth, snap.PayoutDepth)
	}
	return min(depth, snap.MaxLevels)
}
