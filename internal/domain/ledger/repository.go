package ledger

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/referral-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Repository manages ledger entry persistence
type Repository interface {
	Create(ctx context.Context, entry *Entry) error
	GetByID(ctx context.Context, id string) (*Entry, error)

	// LockForUpdate acquires a row lock on the entry for the rest of the transaction
	LockForUpdate(ctx context.Context, id string) (*Entry, error)
	UpdateStatus(ctx context.Context, id string, status shared.LedgerStatus, resolvedAt time.Time) error

	// LockSourceRef serializes work keyed by sourceRef for the rest of the transaction
	LockSourceRef(ctx context.Context, sourceRef string) error

	// ListBySourceRef returns entries of the given kinds that reference sourceRef, oldest first
	ListBySourceRef(ctx context.Context, sourceRef string, kinds ...shared.LedgerKind) ([]*Entry, error)

	// GetByExternalRef returns nil, nil when no entry of kind carries externalRef
	GetByExternalRef(ctx context.Context, kind shared.LedgerKind, externalRef string) (*Entry, error)

	List(ctx context.Context, filter Filter) ([]*Entry, error)
	Count(ctx context.Context, filter Filter) (int64, error)

	// SumApproved totals approved amounts per kind
	SumApproved(ctx context.Context) (map[shared.LedgerKind]decimal.Decimal, error)
	WithTx(tx pgx.Tx) Repository
}

// Filter narrows ledger listings. Zero values mean "any".
type Filter struct {
	MemberID string
	Status   shared.LedgerStatus
	Kind     shared.LedgerKind
	Limit    int
	Offset   int
}

// Matches reports whether e passes the filter, ignoring paging
func (f Filter) Matches(e *Entry) bool {
	if f.MemberID != "" && e.MemberID != f.MemberID {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	return true
}

// ErrEntryNotFound indicates missing ledger entry
type ErrEntryNotFound struct {
	EntryID string
}

func (e ErrEntryNotFound) Error() string {
	return "ledger entry not found: " + e.EntryID
}

// Is implements the errors.Is interface for ErrEntryNotFound
func (e ErrEntryNotFound) Is(target error) bool {
	t, ok := target.(ErrEntryNotFound)
	if !ok {
		return false
	}
	// If the target EntryID is empty, consider it a match for any ErrEntryNotFound
	if t.EntryID == "" {
		return true
	}
	return e.EntryID == t.EntryID
}

// ErrDuplicateEntry indicates a uniqueness violation on source or external reference
type ErrDuplicateEntry struct {
	Ref string
}

func (e ErrDuplicateEntry) Error() string {
	return "duplicate ledger entry: " + e.Ref
}

// Is implements the errors.Is interface for ErrDuplicateEntry
func (e ErrDuplicateEntry) Is(target error) bool {
	t, ok := target.(ErrDuplicateEntry)
	if !ok {
		return false
	}
	if t.Ref == "" {
		return true
	}
	return e.Ref == t.Ref
}

// EventStore keeps the audit projection of published distribution events
type EventStore interface {
	// Save stores the event keyed by its source reference. Saving the same
	// source twice leaves the first copy in place.
	Save(ctx context.Context, event *DistributionEvent) error
	GetBySourceRef(ctx context.Context, sourceRef string) (*DistributionEvent, error)

	// ListByBeneficiary returns events that credited memberID, newest first
	ListByBeneficiary(ctx context.Context, memberID string, limit, offset int) ([]*DistributionEvent, error)
	CountByBeneficiary(ctx context.Context, memberID string) (int64, error)
}

// ErrEventNotFound indicates no projected event exists for the source
type ErrEventNotFound struct {
	SourceRef string
}

func (e ErrEventNotFound) Error() string {
	return "distribution event not found: " + e.SourceRef
}
