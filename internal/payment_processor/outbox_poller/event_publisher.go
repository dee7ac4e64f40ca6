package outbox_poller

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/referral-ledger/internal/domain/ledger"
	"github.com/referral-ledger/internal/domain/outbox"
	"github.com/referral-ledger/internal/domain/shared"
	"github.com/referral-ledger/internal/metrics"
)

// EventPublisher projects one outbox message into the audit store
type EventPublisher interface {
	Publish(ctx context.Context, message *outbox.Message) error
}

// EventPublisherImpl writes distribution events to the event store and marks
// their outbox rows processed. The store ignores repeats, so a crash between
// the two writes only causes a harmless second save.
type EventPublisherImpl struct {
	outboxRepo outbox.Repository
	events     ledger.EventStore
	clock      clockwork.Clock
	logger     *slog.Logger
}

func NewEventPublisher(
	outboxRepo outbox.Repository,
	events ledger.EventStore,
	clock clockwork.Clock,
	logger *slog.Logger,
) EventPublisher {
	return &EventPublisherImpl{
		outboxRepo: outboxRepo,
		events:     events,
		clock:      clock,
		logger:     logger,
	}
}

func (p *EventPublisherImpl) Publish(ctx context.Context, message *outbox.Message) error {
	event, err := message.GetDistributionEvent()
	if err != nil {
		p.logger.Error("Failed to decode distribution event from outbox payload",
			"outbox_id", message.ID, "source_ref", message.SourceRef, "error", err,
		)
		metrics.OutboxPublishedTotal.WithLabelValues(metrics.ResultRejected).Inc()
		// A corrupt payload never decodes, so it is parked immediately
		if updateErr := p.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusFailedToPublish); updateErr != nil {
			p.logger.Error("Failed to mark undecodable outbox message", "outbox_id", message.ID, "error", updateErr)
		}
		return fmt.Errorf("decode payload for outbox %d failed: %w", message.ID, err)
	}

	logger := p.logger
	if event.CorrelationID != "" {
		logger = p.logger.With("correlation_id", event.CorrelationID)
	}

	published := p.clock.Now().UTC()
	event.PublishedAt = &published

	if err := p.events.Save(ctx, event); err != nil {
		metrics.OutboxPublishedTotal.WithLabelValues(metrics.ResultError).Inc()
		return fmt.Errorf("failed to save distribution event %s: %w", event.SourceRef, err)
	}

	if err := p.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusProcessed); err != nil {
		metrics.OutboxPublishedTotal.WithLabelValues(metrics.ResultError).Inc()
		return fmt.Errorf("event %s saved, but failed to mark outbox %d as PROCESSED: %w", event.SourceRef, message.ID, err)
	}

	metrics.OutboxPublishedTotal.WithLabelValues(metrics.ResultOK).Inc()
	logger.Info("Projected distribution event",
		"outbox_id", message.ID,
		"source_ref", event.SourceRef,
		"credits", len(event.Credits),
	)
	return nil
}
