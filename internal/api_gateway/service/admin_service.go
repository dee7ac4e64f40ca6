package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/referral-ledger/internal/domain/ledger"
	"github.com/referral-ledger/internal/domain/settings"
	"github.com/referral-ledger/internal/referral/approval"
	"github.com/referral-ledger/internal/referral/configuration"
	"github.com/referral-ledger/internal/referral/distribution"
	"github.com/referral-ledger/internal/referral/reporting"
	"github.com/shopspring/decimal"
)

var ErrAuditUnavailable = errors.New("distribution audit store is not configured")

type AdminServiceImpl struct {
	approval     *approval.Service
	distribution *distribution.Service
	reporting    *reporting.Service
	provider     *configuration.Provider
	events       ledger.EventStore
	logger       *slog.Logger
}

// NewAdminService builds the admin facade. events may be nil when the audit
// projection is not reachable from the gateway.
func NewAdminService(
	logger *slog.Logger,
	approvalSvc *approval.Service,
	distributionSvc *distribution.Service,
	reportingSvc *reporting.Service,
	provider *configuration.Provider,
	events ledger.EventStore,
) AdminService {
	return &AdminServiceImpl{
		approval:     approvalSvc,
		distribution: distributionSvc,
		reporting:    reportingSvc,
		provider:     provider,
		events:       events,
		logger:       logger,
	}
}

func (s *AdminServiceImpl) Approve(ctx context.Context, entryID string) (*approval.Outcome, error) {
	return s.approval.Approve(ctx, entryID)
}

func (s *AdminServiceImpl) Reject(ctx context.Context, entryID string) (*approval.Outcome, error) {
	return s.approval.Reject(ctx, entryID)
}

func (s *AdminServiceImpl) Adjust(ctx context.Context, memberID string, amount decimal.Decimal, note string) (*ledger.Entry, error) {
	return s.approval.Adjust(ctx, memberID, amount, note)
}

func (s *AdminServiceImpl) Distribute(ctx context.Context, req distribution.Request) (*distribution.Result, error) {
	return s.distribution.Distribute(ctx, req)
}

func (s *AdminServiceImpl) Summary(ctx context.Context) (*reporting.Summary, error) {
	return s.reporting.Summary(ctx)
}

func (s *AdminServiceImpl) Settings(ctx context.Context) (settings.Snapshot, error) {
	return s.provider.Snapshot(ctx)
}

func (s *AdminServiceImpl) Setting(ctx context.Context, key string) (json.RawMessage, error) {
	return s.provider.Get(ctx, key, nil)
}

func (s *AdminServiceImpl) UpdateSetting(ctx context.Context, key string, value json.RawMessage) error {
	if err := s.provider.Set(ctx, key, value); err != nil {
		return err
	}
	s.logger.Info("Setting updated", "key", key, "value", string(value))
	return nil
}

func (s *AdminServiceImpl) DistributionEvent(ctx context.Context, sourceRef string) (*ledger.DistributionEvent, error) {
	if s.events == nil {
		return nil, ErrAuditUnavailable
	}
	return s.events.GetBySourceRef(ctx, sourceRef)
}

func (s *AdminServiceImpl) BeneficiaryEvents(ctx context.Context, memberID string, limit, offset int) ([]*ledger.DistributionEvent, int64, error) {
	if s.events == nil {
		return nil, 0, ErrAuditUnavailable
	}
	events, err := s.events.ListByBeneficiary(ctx, memberID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.events.CountByBeneficiary(ctx, memberID)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}
