package producers

import (
	"context"

	"github.com/referral-ledger/internal/domain/shared"
	"github.com/segmentio/kafka-go"
)

// PaymentPublisher hands payment confirmations to the processor
type PaymentPublisher interface {
	PublishPayment(ctx context.Context, confirmation *shared.PaymentConfirmation) error
	Close() error
}

// DeadLetterPublisher handles publishing messages to a Dead Letter Queue
type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, key string, originalMessageValue []byte, reason string) error
	Close() error
}

// KafkaWriter wraps kafka.Writer methods for testing
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ KafkaWriter = (*kafka.Writer)(nil)
