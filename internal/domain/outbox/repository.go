package outbox

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/referral-ledger/internal/domain/shared"
)

// Repository manages transactional outbox message persistence
type Repository interface {
	Create(ctx context.Context, message *Message) error
	GetPending(ctx context.Context, limit int) ([]*Message, error)
	UpdateStatus(ctx context.Context, id int64, status shared.OutboxStatus) error
	IncrementAttempts(ctx context.Context, id int64) error
	GetBySourceRef(ctx context.Context, sourceRef string) (*Message, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrMessageNotFound indicates missing outbox message
type ErrMessageNotFound struct {
	ID        int64
	SourceRef string
}

func (e ErrMessageNotFound) Error() string {
	if e.SourceRef != "" {
		return "outbox message not found for source: " + e.SourceRef
	}
	return "outbox message not found: " + strconv.FormatInt(e.ID, 10)
}

// ErrDuplicateMessage indicates source reference uniqueness violation
type ErrDuplicateMessage struct {
	SourceRef string
}

func (e ErrDuplicateMessage) Error() string {
	return "duplicate outbox message: " + e.SourceRef
}
