package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/referral-ledger/internal/domain/shared"
	"github.com/referral-ledger/internal/payment_processor/service"
	"github.com/referral-ledger/internal/platform/messaging/producers"
)

// PaymentEventHandler decodes payment confirmations from Kafka
type PaymentEventHandler struct {
	processingService service.ProcessingService
	dlq               producers.DeadLetterPublisher
	logger            *slog.Logger
}

func NewPaymentEventHandler(
	logger *slog.Logger,
	processingService service.ProcessingService,
	dlq producers.DeadLetterPublisher,
) *PaymentEventHandler {
	return &PaymentEventHandler{
		processingService: processingService,
		dlq:               dlq,
		logger:            logger,
	}
}

// HandleMessage returns nil when the offset may be committed
func (h *PaymentEventHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var confirmation shared.PaymentConfirmation
	if err := json.Unmarshal(value, &confirmation); err != nil {
		h.logger.Error("Failed to unmarshal payment confirmation", "message_key", string(key), "error", err)

		reason := "unmarshal payment confirmation: " + err.Error()
		if dlqErr := h.dlq.PublishToDLQ(ctx, string(key), value, reason); dlqErr != nil {
			h.logger.Error("Failed to publish unparseable message to DLQ",
				"message_key", string(key),
				"dlq_error", dlqErr,
			)
			return fmt.Errorf("failed to unmarshal message value: %w", err)
		}
		return nil
	}

	logger := h.logger
	if confirmation.CorrelationID != "" {
		logger = h.logger.With("correlation_id", confirmation.CorrelationID)
	}
	logger.Info("Received payment confirmation",
		"session_id", confirmation.SessionID,
		"member_id", confirmation.MemberID,
		"paid", confirmation.Paid,
		"amount", confirmation.Amount.String(),
	)

	if err := h.processingService.ProcessPayment(ctx, &confirmation); err != nil {
		logger.Error("Failed to process payment confirmation", "session_id", confirmation.SessionID, "error", err)
		return fmt.Errorf("processing session %s failed: %w", confirmation.SessionID, err)
	}
	return nil
}
