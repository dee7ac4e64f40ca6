package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/referral-ledger/internal/domain/member"
	"github.com/referral-ledger/internal/domain/shared"
	"github.com/referral-ledger/internal/platform/persistence"
)

// RetryPolicy bounds how often a confirmation that hit a busy store is retried
// before the message is left uncommitted
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Backoff: 200 * time.Millisecond}

type ProcessingServiceImpl struct {
	confirmer       PaymentConfirmer
	failureRecorder FailureRecorder
	retry           RetryPolicy
	clock           clockwork.Clock
	logger          *slog.Logger
}

func NewProcessingService(
	confirmer PaymentConfirmer,
	failureRecorder FailureRecorder,
	retry RetryPolicy,
	clock clockwork.Clock,
	logger *slog.Logger,
) ProcessingService {
	if retry.Attempts <= 0 {
		retry.Attempts = 1
	}
	return &ProcessingServiceImpl{
		confirmer:       confirmer,
		failureRecorder: failureRecorder,
		retry:           retry,
		clock:           clock,
		logger:          logger,
	}
}

// ProcessPayment confirms the payment. Duplicates and permanent failures are
// acknowledged; transient failures are returned so the offset stays uncommitted.
func (s *ProcessingServiceImpl) ProcessPayment(ctx context.Context, confirmation *shared.PaymentConfirmation) error {
	logger := s.logger.With("session_id", confirmation.SessionID, "member_id", confirmation.MemberID)
	if confirmation.CorrelationID != "" {
		logger = logger.With("correlation_id", confirmation.CorrelationID)
	}

	var err error
	for attempt := 1; attempt <= s.retry.Attempts; attempt++ {
		err = s.confirm(ctx, logger, confirmation)
		if err == nil || !errors.Is(err, shared.ErrStoreBusy) || attempt == s.retry.Attempts {
			break
		}
		logger.Warn("Store busy, retrying payment confirmation", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(s.retry.Backoff * time.Duration(attempt)):
		}
	}
	if err == nil {
		return nil
	}

	if reason, permanent := failureReason(err); permanent {
		logger.Error("Payment confirmation cannot be processed", "reason", reason, "error", err)
		if recordErr := s.failureRecorder.RecordFailure(ctx, confirmation, reason); recordErr != nil {
			logger.Error("Failed to record payment failure", "error", recordErr)
		}
		return nil
	}

	return fmt.Errorf("failed to confirm payment for session %s: %w", confirmation.SessionID, err)
}

func (s *ProcessingServiceImpl) confirm(ctx context.Context, logger *slog.Logger, confirmation *shared.PaymentConfirmation) error {
	result, err := s.confirmer.ConfirmPayment(ctx, confirmation)
	switch {
	case errors.Is(err, shared.ErrAlreadyProcessed):
		logger.Info("Payment confirmation already processed")
		return nil
	case err != nil:
		return err
	case result.Ignored:
		return nil
	}

	credited := 0
	if result.Distribution != nil {
		credited = len(result.Distribution.Credits)
	}
	logger.Info("Payment confirmation processed", "entry_id", result.EntryID, "credits", credited)
	return nil
}

// failureReason names the reason a confirmation is dead-lettered. Only
// transient failures are left for redelivery; anything else would fail the
// same way every time.
func failureReason(err error) (string, bool) {
	switch {
	case persistence.IsTransient(err):
		return "", false
	case errors.Is(err, shared.ErrMissingSessionID), errors.Is(err, shared.ErrMissingMemberID):
		return "invalid_confirmation", true
	case errors.Is(err, shared.ErrInvalidAmount):
		return "invalid_amount", true
	case errors.Is(err, member.ErrMemberNotFound{}):
		return "member_not_found", true
	}
	return "processing_failed", true
}
