package components

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/referral-ledger/internal/domain/shared"
	"github.com/referral-ledger/internal/metrics"
	"github.com/referral-ledger/internal/payment_processor/service"
	"github.com/referral-ledger/internal/platform/messaging/producers"
)

// FailureRecorderImpl moves confirmations that can never be booked to the
// dead letter topic, where an operator can inspect and replay them
type FailureRecorderImpl struct {
	dlq    producers.DeadLetterPublisher
	logger *slog.Logger
}

func NewFailureRecorder(dlq producers.DeadLetterPublisher, logger *slog.Logger) service.FailureRecorder {
	return &FailureRecorderImpl{
		dlq:    dlq,
		logger: logger,
	}
}

func (r *FailureRecorderImpl) RecordFailure(ctx context.Context, confirmation *shared.PaymentConfirmation, reason string) error {
	logger := r.logger
	if confirmation.CorrelationID != "" {
		logger = r.logger.With("correlation_id", confirmation.CorrelationID)
	}
	metrics.PaymentsTotal.WithLabelValues(metrics.ResultRejected).Inc()

	payload, err := json.Marshal(confirmation)
	if err != nil {
		return fmt.Errorf("failed to marshal payment confirmation %s: %w", confirmation.SessionID, err)
	}

	if err := r.dlq.PublishToDLQ(ctx, confirmation.SessionID, payload, reason); err != nil {
		logger.Error("Failed to dead-letter payment confirmation",
			"session_id", confirmation.SessionID,
			"reason", reason,
			"error", err,
		)
		return fmt.Errorf("failed to dead-letter session %s: %w", confirmation.SessionID, err)
	}

	logger.Info("Dead-lettered payment confirmation", "session_id", confirmation.SessionID, "reason", reason)
	return nil
}
