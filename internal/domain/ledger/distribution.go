package ledger

import (
	"time"

	"github.com/referral-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Credit is one share paid to an ancestor by a distribution
type Credit struct {
	BeneficiaryID string            `json:"beneficiary_id" bson:"beneficiary_id"`
	Level         int               `json:"level" bson:"level"` // 1 = direct parent
	Kind          shared.LedgerKind `json:"kind" bson:"kind"`
	Amount        decimal.Decimal   `json:"amount" bson:"amount"`
	EntryID       string            `json:"entry_id" bson:"entry_id"`
}

// CreditFromEntry rebuilds the credit recorded by a commission or payout entry
func CreditFromEntry(e *Entry, level int) Credit {
	return Credit{
		BeneficiaryID: e.MemberID,
		Level:         level,
		Kind:          e.Kind,
		Amount:        e.Amount,
		EntryID:       e.ID,
	}
}

// TotalCredited sums credit amounts
func TotalCredited(credits []Credit) decimal.Decimal {
	total := decimal.Zero
	for _, c := range credits {
		total = total.Add(c.Amount)
	}
	return total
}

// DistributionEvent is the audit record of one distribution, published through
// the outbox and projected into the document store.
type DistributionEvent struct {
	SourceRef     string          `json:"source_ref" bson:"source_ref"`
	MemberID      string          `json:"member_id" bson:"member_id"`
	Amount        decimal.Decimal `json:"amount" bson:"amount"`
	Strategy      string          `json:"strategy" bson:"strategy"`
	Credits       []Credit        `json:"credits" bson:"credits"`
	CorrelationID string          `json:"correlation_id,omitempty" bson:"correlation_id,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at" bson:"occurred_at"`
	PublishedAt   *time.Time      `json:"published_at,omitempty" bson:"published_at,omitempty"`
}
