package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/referral-ledger/internal/domain/ledger"
)

// DefaultCollectionName is used when no collection is configured
const DefaultCollectionName = "distribution_events"

// eventCollection is the subset of *mongo.Collection the repository uses
type eventCollection interface {
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

var _ eventCollection = (*mongo.Collection)(nil)

// DistributionEventRepository implements ledger.EventStore for MongoDB
type DistributionEventRepository struct {
	coll   eventCollection
	logger *slog.Logger
}

// NewDistributionEventRepository creates a repository on the named collection
func NewDistributionEventRepository(logger *slog.Logger, db *mongo.Database, collection string) ledger.EventStore {
	if collection == "" {
		collection = DefaultCollectionName
	}
	return &DistributionEventRepository{
		coll:   db.Collection(collection),
		logger: logger,
	}
}

// Save upserts on source_ref with $setOnInsert so a republished event never
// overwrites the first projection
func (r *DistributionEventRepository) Save(ctx context.Context, event *ledger.DistributionEvent) error {
	filter := bson.M{"source_ref": event.SourceRef}
	update := bson.M{"$setOnInsert": event}
	opts := options.Update().SetUpsert(true)

	result, err := r.coll.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		r.logger.Error("Failed to save distribution event",
			"source_ref", event.SourceRef,
			"error", err)
		return fmt.Errorf("failed to save distribution event: %w", err)
	}

	if result != nil && result.UpsertedCount == 0 {
		r.logger.Debug("Distribution event already projected", "source_ref", event.SourceRef)
	}
	return nil
}

func (r *DistributionEventRepository) GetBySourceRef(ctx context.Context, sourceRef string) (*ledger.DistributionEvent, error) {
	var event ledger.DistributionEvent
	err := r.coll.FindOne(ctx, bson.M{"source_ref": sourceRef}).Decode(&event)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ledger.ErrEventNotFound{SourceRef: sourceRef}
		}
		r.logger.Error("Failed to get distribution event",
			"source_ref", sourceRef,
			"error", err)
		return nil, fmt.Errorf("failed to get distribution event: %w", err)
	}

	return &event, nil
}

// ListByBeneficiary returns paginated events that credited memberID
func (r *DistributionEventRepository) ListByBeneficiary(ctx context.Context, memberID string, limit, offset int) ([]*ledger.DistributionEvent, error) {
	filter := bson.M{"credits.beneficiary_id": memberID}
	opts := options.Find().
		SetSort(bson.D{{Key: "occurred_at", Value: -1}, {Key: "source_ref", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to list distribution events",
			"member_id", memberID,
			"error", err)
		return nil, fmt.Errorf("failed to list distribution events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []*ledger.DistributionEvent
	if err := cursor.All(ctx, &events); err != nil {
		r.logger.Error("Failed to decode distribution events",
			"member_id", memberID,
			"error", err)
		return nil, fmt.Errorf("failed to decode distribution events: %w", err)
	}

	return events, nil
}

func (r *DistributionEventRepository) CountByBeneficiary(ctx context.Context, memberID string) (int64, error) {
	count, err := r.coll.CountDocuments(ctx, bson.M{"credits.beneficiary_id": memberID})
	if err != nil {
		r.logger.Error("Failed to count distribution events",
			"member_id", memberID,
			"error", err)
		return 0, fmt.Errorf("failed to count distribution events: %w", err)
	}
	return count, nil
}
