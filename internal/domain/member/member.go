package member

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrEmptyUsername   = errors.New("username cannot be empty")
	ErrInvalidUsername = errors.New("username may only contain letters, digits, '.', '-' and '_'")
)

const maxUsernameLength = 64

// Member is a node in the referral forest. The username doubles as the
// member's referral code.
type Member struct {
	ID                string          `json:"id"`
	Username          string          `json:"username"`
	Email             string          `json:"email,omitempty"`
	ParentID          *string         `json:"parent_id,omitempty"`
	Level             int             `json:"level"`
	Balance           decimal.Decimal `json:"balance"`
	PayoutAccumulated decimal.Decimal `json:"payout_accumulated"`
	PaidIn            decimal.Decimal `json:"paid_in"`
	CreatedAt         time.Time       `json:"created_at"`
}

// NewMember builds a member attached under parent, or a root when parent is nil.
// Roots sit at level 0.
func NewMember(username, email string, parent *Member, createdAt time.Time) (*Member, error) {
	username = strings.TrimSpace(username)
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}

	m := &Member{
		ID:                id.String(),
		Username:          username,
		Email:             strings.TrimSpace(email),
		Balance:           decimal.Zero,
		PayoutAccumulated: decimal.Zero,
		PaidIn:            decimal.Zero,
		CreatedAt:         createdAt.UTC(),
	}
	if parent != nil {
		parentID := parent.ID
		m.ParentID = &parentID
		m.Level = parent.Level + 1
	}
	return m, nil
}

// ValidateUsername checks the referral-code alphabet
func ValidateUsername(username string) error {
	if username == "" {
		return ErrEmptyUsername
	}
	if len(username) > maxUsernameLength {
		return ErrInvalidUsername
	}
	for _, r := range username {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '-', r == '_':
		default:
			return ErrInvalidUsername
		}
	}
	return nil
}

// IsRoot reports whether the member has no parent
func (m *Member) IsRoot() bool {
	return m.ParentID == nil
}

// CanWithdraw checks if the balance covers amount
func (m *Member) CanWithdraw(amount decimal.Decimal) bool {
	return m.Balance.GreaterThanOrEqual(amount)
}

// BalanceDelta is a signed change applied to a member's monetary totals
type BalanceDelta struct {
	Balance           decimal.Decimal
	PayoutAccumulated decimal.Decimal
	PaidIn            decimal.Decimal
}

// IsZero reports whether the delta changes nothing
func (d BalanceDelta) IsZero() bool {
	return d.Balance.IsZero() && d.PayoutAccumulated.IsZero() && d.PaidIn.IsZero()
}

// Apply adds the delta to m in place
func (d BalanceDelta) Apply(m *Member) {
	m.Balance = m.Balance.Add(d.Balance)
	m.PayoutAccumulated = m.PayoutAccumulated.Add(d.PayoutAccumulated)
	m.PaidIn = m.PaidIn.Add(d.PaidIn)
}
