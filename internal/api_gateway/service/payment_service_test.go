package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/referral-ledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPaymentPublisher struct {
	mock.Mock
}

func (m *MockPaymentPublisher) PublishPayment(ctx context.Context, confirmation *shared.PaymentConfirmation) error {
	return m.Called(ctx, confirmation).Error(0)
}

func (m *MockPaymentPublisher) Close() error {
	return m.Called().Error(0)
}

func TestPaymentService_SubmitConfirmation(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(now)

	t.Run("StampsAndPublishes", func(t *testing.T) {
		producer := new(MockPaymentPublisher)
		producer.On("PublishPayment", ctx, mock.MatchedBy(func(c *shared.PaymentConfirmation) bool {
			return c.SessionID == "cs_1" && c.Timestamp.Equal(now)
		})).Return(nil).Once()

		err := NewPaymentService(logger, producer, clock).SubmitConfirmation(ctx, &shared.PaymentConfirmation{SessionID: "cs_1", MemberID: "m1", Paid: true})
		require.NoError(t, err)
		producer.AssertExpectations(t)
	})

	t.Run("InvalidNeverPublished", func(t *testing.T) {
		producer := new(MockPaymentPublisher)
		err := NewPaymentService(logger, producer, clock).SubmitConfirmation(ctx, &shared.PaymentConfirmation{MemberID: "m1"})
		assert.ErrorIs(t, err, shared.ErrMissingSessionID)
		producer.AssertNotCalled(t, "PublishPayment", mock.Anything, mock.Anything)
	})

	t.Run("PublishError", func(t *testing.T) {
		producer := new(MockPaymentPublisher)
		publishErr := errors.New("kafka down")
		producer.On("PublishPayment", ctx, mock.Anything).Return(publishErr).Once()

		err := NewPaymentService(logger, producer, clock).SubmitConfirmation(ctx, &shared.PaymentConfirmation{SessionID: "cs_2", MemberID: "m1"})
		assert.ErrorIs(t, err, publishErr)
	})
}
