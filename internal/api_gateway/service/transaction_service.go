package service

import (
	"context"
	"log/slog"

	"github.com/referral-ledger/internal/domain/ledger"
	"github.com/referral-ledger/internal/referral/approval"
	"github.com/referral-ledger/internal/referral/reporting"
)

// TransactionServiceImpl implements the TransactionService interface
type TransactionServiceImpl struct {
	approval  *approval.Service
	reporting *reporting.Service
	entries   ledger.Repository
	logger    *slog.Logger
}

func NewTransactionService(logger *slog.Logger, approvalSvc *approval.Service, reportingSvc *reporting.Service, entries ledger.Repository) TransactionService {
	return &TransactionServiceImpl{
		approval:  approvalSvc,
		reporting: reportingSvc,
		entries:   entries,
		logger:    logger,
	}
}

// CreateRequest records a pending deposit or withdrawal. Nothing moves until
// an administrator approves it.
func (s *TransactionServiceImpl) CreateRequest(ctx context.Context, req approval.Request) (*ledger.Entry, error) {
	entry, err := s.approval.CreateRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Ledger request created",
		"entry_id", entry.ID,
		"member_id", entry.MemberID,
		"kind", string(entry.Kind),
		"amount", entry.Amount.String(),
	)
	return entry, nil
}

func (s *TransactionServiceImpl) GetTransaction(ctx context.Context, id string) (*ledger.Entry, error) {
	return s.entries.GetByID(ctx, id)
}

func (s *TransactionServiceImpl) ListTransactions(ctx context.Context, filter ledger.Filter) (*reporting.Page, error) {
	return s.reporting.ListTransactions(ctx, filter)
}
