package service

import (
	"context"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/referral-ledger/internal/domain/shared"
	"github.com/referral-ledger/internal/platform/messaging/producers"
)

// PaymentServiceImpl validates webhook payloads and queues them for the
// payment processor
type PaymentServiceImpl struct {
	producer producers.PaymentPublisher
	clock    clockwork.Clock
	logger   *slog.Logger
}

func NewPaymentService(logger *slog.Logger, producer producers.PaymentPublisher, clock clockwork.Clock) PaymentService {
	return &PaymentServiceImpl{
		producer: producer,
		clock:    clock,
		logger:   logger,
	}
}

func (s *PaymentServiceImpl) SubmitConfirmation(ctx context.Context, confirmation *shared.PaymentConfirmation) error {
	if err := confirmation.Validate(); err != nil {
		return err
	}
	if confirmation.Timestamp.IsZero() {
		confirmation.Timestamp = s.clock.Now().UTC()
	}

	if err := s.producer.PublishPayment(ctx, confirmation); err != nil {
		return err
	}

	s.logger.Info("Payment confirmation queued",
		"session_id", confirmation.SessionID,
		"member_id", confirmation.MemberID,
		"paid", confirmation.Paid,
	)
	return nil
}
