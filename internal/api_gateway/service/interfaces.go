package service

import (
	"context"
	"encoding/json"

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
)

// MemberService covers joining and the read side of the referral forest
type MemberService interface {
	// Join places a new member. Placement errors come back unchanged so the
	// handler can map them to status codes.
	Join(ctx context.Context, req placement.Request) (*placement.Placement, error)

	GetMember(ctx context.Context, id string) (*member.Member, error)
	DirectReferrals(ctx context.Context, id string) ([]*member.Member, error)
	ParentChain(ctx context.Context, id string, levels int) ([]string, error)
	ReferralTree(ctx context.Context, id string, depth int) (*queries.TreeNode, error)
}

// TransactionService handles member-initiated ledger requests
type TransactionService interface {
	CreateRequest(ctx context.Context, req approval.Request) (*ledger.Entry, error)
	GetTransaction(ctx context.Context, id string) (*ledger.Entry, error)
	ListTransactions(ctx context.Context, filter ledger.Filter) (*reporting.Page, error)
}

// AdminService exposes approval, adjustments, settings and audit reads
type AdminService interface {
	Approve(ctx context.Context, entryID string) (*approval.Outcome, error)
	Reject(ctx context.Context, entryID string) (*approval.Outcome, error)
	Adjust(ctx context.Context, memberID string, amount decimal.Decimal, note string) (*ledger.Entry, error)
	Distribute(ctx context.Context, req distribution.Request) (*distribution.Result, error)
	Summary(ctx context.Context) (*reporting.Summary, error)

	Settings(ctx context.Context) (settings.Snapshot, error)
	Setting(ctx context.Context, key string) (json.RawMessage, error)
	UpdateSetting(ctx context.Context, key string, value json.RawMessage) error

	DistributionEvent(ctx context.Context, sourceRef string) (*ledger.DistributionEvent, error)
	BeneficiaryEvents(ctx context.Context, memberID string, limit, offset int) ([]*ledger.DistributionEvent, int64, error)
}

// PaymentService accepts confirmations from the payment oracle
type PaymentService interface {
	SubmitConfirmation(ctx context.Context, confirmation *shared.PaymentConfirmation) error
}
