package member

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Repository defines member persistence operations
type Repository interface {
	Create(ctx context.Context, m *Member) error
	GetByID(ctx context.Context, id string) (*Member, error)
	GetByUsername(ctx context.Context, username string) (*Member, error)

	// LockForUpdate acquires a row lock on the member for the rest of the transaction
	LockForUpdate(ctx context.Context, id string) (*Member, error)

	// LockPlacement serializes placements for the rest of the transaction
	LockPlacement(ctx context.Context) error

	Count(ctx context.Context) (int, error)
	CountChildren(ctx context.Context, parentID string) (int, error)

	// FindPlacementCandidate returns the shallowest member below maxLevels with a
	// free child slot, earliest joined first, or nil when none exists.
	FindPlacementCandidate(ctx context.Context, maxLevels, branchingFactor int) (*Member, error)

	// ListChildren returns direct referrals, newest first
	ListChildren(ctx context.Context, parentID string) ([]*Member, error)

	// AdjustBalances applies a signed delta to the member's totals
	AdjustBalances(ctx context.Context, id string, delta BalanceDelta) error

	Totals(ctx context.Context) (*Totals, error)
	WithTx(tx pgx.Tx) Repository
}

// Totals aggregates member counts and balances for reconciliation
type Totals struct {
	Members           int             `json:"members"`
	Balance           decimal.Decimal `json:"balance"`
	PayoutAccumulated decimal.Decimal `json:"payout_accumulated"`
	PaidIn            decimal.Decimal `json:"paid_in"`
}

// ErrMemberNotFound indicates missing member
type ErrMemberNotFound struct {
	MemberID string
}

func (e ErrMemberNotFound) Error() string {
	return "member not found: " + e.MemberID
}

// Is matches any ErrMemberNotFound when the target id is empty
func (e ErrMemberNotFound) Is(target error) bool {
	t, ok := target.(ErrMemberNotFound)
	if !ok {
		return false
	}
	return t.MemberID == "" || t.MemberID == e.MemberID
}

// ErrDuplicateUsername indicates username uniqueness violation
type ErrDuplicateUsername struct {
	Username string
}

func (e ErrDuplicateUsername) Error() string {
	return "member with username already exists: " + e.Username
}
