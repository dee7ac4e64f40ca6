package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/referral-ledger/internal/config"
	"github.com/referral-ledger/internal/domain/shared"
	"github.com/segmentio/kafka-go"
)

// PaymentProducer publishes confirmations keyed by checkout session, so every
// redelivery of one session lands on the same partition.
type PaymentProducer struct {
	logger *slog.Logger
	writer KafkaWriter
	topic  string
}

var _ PaymentPublisher = (*PaymentProducer)(nil)

// NewPaymentProducer ensures the payment topic exists and opens a synchronous writer
func NewPaymentProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*PaymentProducer, error) {
	if cfg.PaymentTopic == "" {
		return nil, fmt.Errorf("kafka payment topic is not configured")
	}

	if err := ensureTopic(ctx, cfg, cfg.PaymentTopic, logger); err != nil {
		return nil, err
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.PaymentTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: cfg.MaxWait,
	}

	return &PaymentProducer{
		logger: logger.With("topic", cfg.PaymentTopic),
		writer: writer,
		topic:  cfg.PaymentTopic,
	}, nil
}

// PublishPayment writes the confirmation and waits for the broker to accept it.
// The webhook only acknowledges the oracle once this returns nil.
func (p *PaymentProducer) PublishPayment(ctx context.Context, confirmation *shared.PaymentConfirmation) error {
	value, err := json.Marshal(confirmation)
	if err != nil {
		return fmt.Errorf("failed to marshal payment confirmation: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(confirmation.SessionID),
		Value: value,
	}
	if confirmation.CorrelationID != "" {
		msg.Headers = []kafka.Header{{Key: "correlation-id", Value: []byte(confirmation.CorrelationID)}}
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish payment confirmation",
			"session_id", confirmation.SessionID,
			"error", err,
		)
		return fmt.Errorf("failed to publish payment confirmation to %s: %w", p.topic, err)
	}

	p.logger.Debug("Published payment confirmation", "session_id", confirmation.SessionID)
	return nil
}

func (p *PaymentProducer) Close() error {
	p.logger.Info("Closing payment confirmation producer")
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
