package service

import (
	"context"

	"github.com/referral-ledger/internal/domain/shared"
	"github.com/referral-ledger/internal/referral/payment"
)

// ProcessingService handles one payment confirmation taken off the queue.
// A nil error means the message may be committed.
type ProcessingService interface {
	ProcessPayment(ctx context.Context, confirmation *shared.PaymentConfirmation) error
}

// PaymentConfirmer books entry fees and runs their distribution
type PaymentConfirmer interface {
	ConfirmPayment(ctx context.Context, confirmation *shared.PaymentConfirmation) (*payment.Result, error)
}

// FailureRecorder parks confirmations that can never succeed
type FailureRecorder interface {
	RecordFailure(ctx context.Context, confirmation *shared.PaymentConfirmation, reason string) error
}
