package shared

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrMissingSessionID = errors.New("payment session id is required")
	ErrMissingMemberID  = errors.New("payment member id is required")
)

// PaymentConfirmation is the Kafka message the payment oracle produces for a checkout session
type PaymentConfirmation struct {
	SessionID     string          `json:"session_id"`
	MemberID      string          `json:"member_id"`
	Amount        decimal.Decimal `json:"amount"`
	Paid          bool            `json:"paid"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Validate checks the fields every confirmation must carry. A zero amount is
// allowed and means "use the configured entry fee".
func (p *PaymentConfirmation) Validate() error {
	if strings.TrimSpace(p.SessionID) == "" {
		return ErrMissingSessionID
	}
	if strings.TrimSpace(p.MemberID) == "" {
		return ErrMissingMemberID
	}
	if p.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}
