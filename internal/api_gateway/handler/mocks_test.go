package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/referral-ledger/internal/domain/ledger"
	"github.com/referral-ledger/internal/domain/member"
	"github.com/referral-ledger/internal/domain/settings"
	"github.com/referral-ledger/internal/domain/shared"
	"github.com/referral-ledger/internal/referral/approval"
	"github.com/referral-ledger/internal/referral/distribution"
	"github.com/referral-ledger/internal/referral/placement"
	"github.com/referral-ledger/internal/referral/queries"
	"github.com/referral-ledger/internal/referral/reporting"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type envelope[T any] struct {
	Data          T          `json:"data"`
	Error         *ErrorInfo `json:"error,omitempty"`
	CorrelationID string     `json:"correlation_id,omitempty"`
	Meta          *MetaInfo  `json:"meta,omitempty"`
}

type MockMemberService struct {
	mock.Mock
}

func (m *MockMemberService) Join(ctx context.Context, req placement.Request) (*placement.Placement, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*placement.Placement), args.Error(1)
}

func (m *MockMemberService) GetMember(ctx context.Context, id string) (*member.Member, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*member.Member), args.Error(1)
}

func (m *MockMemberService) DirectReferrals(ctx context.Context, id string) ([]*member.Member, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*member.Member), args.Error(1)
}

func (m *MockMemberService) ParentChain(ctx context.Context, id string, levels int) ([]string, error) {
	args := m.Called(ctx, id, levels)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockMemberService) ReferralTree(ctx context.Context, id string, depth int) (*queries.TreeNode, error) {
	args := m.Called(ctx, id, depth)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*queries.TreeNode), args.Error(1)
}

type MockTransactionService struct {
	mock.Mock
}

func (m *MockTransactionService) CreateRequest(ctx context.Context, req approval.Request) (*ledger.Entry, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Entry), args.Error(1)
}

func (m *MockTransactionService) GetTransaction(ctx context.Context, id string) (*ledger.Entry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Entry), args.Error(1)
}

func (m *MockTransactionService) ListTransactions(ctx context.Context, filter ledger.Filter) (*reporting.Page, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reporting.Page), args.Error(1)
}

type MockAdminService struct {
	mock.Mock
}

func (m *MockAdminService) Approve(ctx context.Context, entryID string) (*approval.Outcome, error) {
	args := m.Called(ctx, entryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*approval.Outcome), args.Error(1)
}

func (m *MockAdminService) Reject(ctx context.Context, entryID string) (*approval.Outcome, error) {
	args := m.Called(ctx, entryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*approval.Outcome), args.Error(1)
}

func (m *MockAdminService) Adjust(ctx context.Context, memberID string, amount decimal.Decimal, note string) (*ledger.Entry, error) {
	args := m.Called(ctx, memberID, amount, note)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Entry), args.Error(1)
}

func (m *MockAdminService) Distribute(ctx context.Context, req distribution.Request) (*distribution.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*distribution.Result), args.Error(1)
}

func (m *MockAdminService) Summary(ctx context.Context) (*reporting.Summary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reporting.Summary), args.Error(1)
}

func (m *MockAdminService) Settings(ctx context.Context) (settings.Snapshot, error) {
	args := m.Called(ctx)
	return args.Get(0).(settings.Snapshot), args.Error(1)
}

func (m *MockAdminService) Setting(ctx context.Context, key string) (json.RawMessage, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

func (m *MockAdminService) UpdateSetting(ctx context.Context, key string, value json.RawMessage) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockAdminService) DistributionEvent(ctx context.Context, sourceRef string) (*ledger.DistributionEvent, error) {
	args := m.Called(ctx, sourceRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.DistributionEvent), args.Error(1)
}

func (m *MockAdminService) BeneficiaryEvents(ctx context.Context, memberID string, limit, offset int) ([]*ledger.DistributionEvent, int64, error) {
	args := m.Called(ctx, memberID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*ledger.DistributionEvent), args.Get(1).(int64), args.Error(2)
}

type MockPaymentService struct {
	mock.Mock
}

func (m *MockPaymentService) SubmitConfirmation(ctx context.Context, confirmation *shared.PaymentConfirmation) error {
	args := m.Called(ctx, confirmation)
	return args.Error(0)
}
