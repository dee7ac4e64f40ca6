package outbox

import (
	"encoding/json"
	"time"

	"github.com/referral-ledger/internal/domain/ledger"
	"github.com/referral-ledger/internal/domain/shared"
)

// Message carries a distribution event from the distributing transaction to
// the audit projection.
type Message struct {
	ID            int64               `json:"id"`
	SourceRef     string              `json:"source_ref"`
	MemberID      string              `json:"member_id"`
	Payload       json.RawMessage     `json:"payload"`
	Status        shared.OutboxStatus `json:"status"`
	Attempts      int                 `json:"attempts"`
	CreatedAt     time.Time           `json:"created_at"`
	LastAttemptAt *time.Time          `json:"last_attempt_at,omitempty"`
}

func NewMessage(event *ledger.DistributionEvent, now time.Time) (*Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	return &Message{
		SourceRef: event.SourceRef,
		MemberID:  event.MemberID,
		Payload:   payload,
		Status:    shared.OutboxStatusPending,
		CreatedAt: now.UTC(),
	}, nil
}

func (m *Message) IncrementAttempts(now time.Time) {
	m.Attempts++
	m.LastAttemptAt = &now
}

func (m *Message) MarkAsProcessed(now time.Time) {
	m.Status = shared.OutboxStatusProcessed
	m.LastAttemptAt = &now
}

func (m *Message) MarkAsFailed(now time.Time) {
	m.Status = shared.OutboxStatusFailedToPublish
	m.LastAttemptAt = &now
}

// GetDistributionEvent decodes the payload
func (m *Message) GetDistributionEvent() (*ledger.DistributionEvent, error) {
	var event ledger.DistributionEvent
	if err := json.Unmarshal(m.Payload, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
