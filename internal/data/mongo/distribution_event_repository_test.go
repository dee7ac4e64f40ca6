package mongo

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/referral-ledger/internal/domain/ledger"
	"github.com/referral-ledger/internal/domain/shared"
	"github.com/referral-ledger/internal/platform/persistence"
)

type mockCollection struct {
	mock.Mock
}

func (m *mockCollection) UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	args := m.Called(ctx, filter, update, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mongo.UpdateResult), args.Error(1)
}

func (m *mockCollection) FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult {
	args := m.Called(ctx, filter)
	return args.Get(0).(*mongo.SingleResult)
}

func (m *mockCollection) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error) {
	args := m.Called(ctx, filter, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mongo.Cursor), args.Error(1)
}

func (m *mockCollection) CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func sampleEvent(sourceRef string) *ledger.DistributionEvent {
	return &ledger.DistributionEvent{
		SourceRef: sourceRef,
		MemberID:  "child",
		Amount:    decimal.RequireFromString("1000.00"),
		Strategy:  "commission",
		Credits: []ledger.Credit{
			{BeneficiaryID: "parent", Level: 1, Kind: shared.LedgerKindCommission, Amount: decimal.RequireFromString("100.00"), EntryID: "e1"},
		},
		OccurredAt: time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestNewDistributionEventRepository(t *testing.T) {
	client, err := mongo.NewClient(options.Client().ApplyURI("mongodb://localhost:27017"))
	require.NoError(t, err)

	repo := NewDistributionEventRepository(newTestLogger(), client.Database("testdb"), "")
	impl, ok := repo.(*DistributionEventRepository)
	require.True(t, ok)
	assert.Equal(t, DefaultCollectionName, impl.coll.(*mongo.Collection).Name())
}

func TestDistributionEventRepository_Save(t *testing.T) {
	ctx := context.Background()

	t.Run("Upserts", func(t *testing.T) {
		coll := &mockCollection{}
		repo := &DistributionEventRepository{coll: coll, logger: newTestLogger()}
		event := sampleEvent("src-1")

		coll.On("UpdateOne", ctx, bson.M{"source_ref": "src-1"}, bson.M{"$setOnInsert": event}, mock.MatchedBy(func(opts []*options.UpdateOptions) bool {
			return len(opts) == 1 && opts[0].Upsert != nil && *opts[0].Upsert
		})).Return(&mongo.UpdateResult{UpsertedCount: 1}, nil)

		require.NoError(t, repo.Save(ctx, event))
		coll.AssertExpectations(t)
	})

	t.Run("AlreadyProjected", func(t *testing.T) {
		coll := &mockCollection{}
		repo := &DistributionEventRepository{coll: coll, logger: newTestLogger()}

		coll.On("UpdateOne", ctx, mock.Anything, mock.Anything, mock.Anything).Return(&mongo.UpdateResult{MatchedCount: 1}, nil)
		assert.NoError(t, repo.Save(ctx, sampleEvent("src-1")))
	})

	t.Run("Error", func(t *testing.T) {
		coll := &mockCollection{}
		repo := &DistributionEventRepository{coll: coll, logger: newTestLogger()}
		dbErr := errors.New("not primary")

		coll.On("UpdateOne", ctx, mock.Anything, mock.Anything, mock.Anything).Return(nil, dbErr)
		err := repo.Save(ctx, sampleEvent("src-1"))
		assert.ErrorIs(t, err, dbErr)
		assert.Contains(t, err.Error(), "failed to save distribution event")
	})
}

func TestDistributionEventRepository_GetBySourceRef(t *testing.T) {
	ctx := context.Background()
	reg := persistence.NewBSONRegistry()

	t.Run("Found", func(t *testing.T) {
		coll := &mockCollection{}
		repo := &DistributionEventRepository{coll: coll, logger: newTestLogger()}

		coll.On("FindOne", ctx, bson.M{"source_ref": "src-1"}).
			Return(mongo.NewSingleResultFromDocument(sampleEvent("src-1"), nil, reg))

		event, err := repo.GetBySourceRef(ctx, "src-1")
		require.NoError(t, err)
		assert.Equal(t, "child", event.MemberID)
		require.Len(t, event.Credits, 1)
		assert.True(t, event.Credits[0].Amount.Equal(decimal.NewFromInt(100)))
	})

	t.Run("NotFound", func(t *testing.T) {
		coll := &mockCollection{}
		repo := &DistributionEventRepository{coll: coll, logger: newTestLogger()}

		coll.On("FindOne", ctx, mock.Anything).
			Return(mongo.NewSingleResultFromDocument(bson.D{}, mongo.ErrNoDocuments, reg))

		_, err := repo.GetBySourceRef(ctx, "missing")
		var notFound ledger.ErrEventNotFound
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "missing", notFound.SourceRef)
	})
}

func TestDistributionEventRepository_ListByBeneficiary(t *testing.T) {
	ctx := context.Background()
	reg := persistence.NewBSONRegistry()
	coll := &mockCollection{}
	repo := &DistributionEventRepository{coll: coll, logger: newTestLogger()}

	cursor, err := mongo.NewCursorFromDocuments([]interface{}{sampleEvent("src-2"), sampleEvent("src-1")}, nil, reg)
	require.NoError(t, err)

	coll.On("Find", ctx, bson.M{"credits.beneficiary_id": "parent"}, mock.MatchedBy(func(opts []*options.FindOptions) bool {
		return len(opts) == 1 && *opts[0].Limit == 10 && *opts[0].Skip == 20
	})).Return(cursor, nil)
	coll.On("CountDocuments", ctx, bson.M{"credits.beneficiary_id": "parent"}).Return(int64(22), nil)

	events, err := repo.ListByBeneficiary(ctx, "parent", 10, 20)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "src-2", events[0].SourceRef)
	assert.True(t, events[1].Amount.Equal(decimal.NewFromInt(1000)))

	count, err := repo.CountByBeneficiary(ctx, "parent")
	require.NoError(t, err)
	assert.Equal(t, int64(22), count)
	coll.AssertExpectations(t)
}
