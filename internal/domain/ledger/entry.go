package ledger

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/referral-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Entry is one monetary movement. Amounts are positive and the sign is implied
// by the kind, except adjustments which carry their own sign.
type Entry struct {
	ID          string              `json:"id"`
	MemberID    string              `json:"member_id"`
	Kind        shared.LedgerKind   `json:"kind"`
	Method      string              `json:"method,omitempty"`
	Amount      decimal.Decimal     `json:"amount"`
	Status      shared.LedgerStatus `json:"status"`
	SourceRef   *string             `json:"source_ref,omitempty"`
	ExternalRef *string             `json:"external_ref,omitempty"`
	Note        string              `json:"note,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	ResolvedAt  *time.Time          `json:"resolved_at,omitempty"`
}

// Money is kept at two decimal places
const Precision = 2

// NewRequest creates a pending deposit or withdrawal request
func NewRequest(memberID string, kind shared.LedgerKind, amount decimal.Decimal, method, note string, now time.Time) (*Entry, error) {
	if !kind.IsRequest() {
		return nil, shared.ErrInvalidKind
	}
	amount = amount.Round(Precision)
	if !amount.IsPositive() {
		return nil, shared.ErrInvalidAmount
	}
	if method == "" {
		method = "manual"
	}
	return newEntry(memberID, kind, amount, shared.LedgerStatusPending, method, note, now), nil
}

// NewSystemEntry creates an approved entry written by the system itself
// (commission, payout, entry fee).
func NewSystemEntry(memberID string, kind shared.LedgerKind, amount decimal.Decimal, sourceRef, note string, now time.Time) (*Entry, error) {
	if kind.IsRequest() || kind == shared.LedgerKindAdjustment || !kind.Valid() {
		return nil, shared.ErrInvalidKind
	}
	if !amount.IsPositive() {
		return nil, shared.ErrInvalidAmount
	}
	e := newEntry(memberID, kind, amount, shared.LedgerStatusApproved, "system", note, now)
	if sourceRef != "" {
		e.SourceRef = &sourceRef
	}
	resolved := e.CreatedAt
	e.ResolvedAt = &resolved
	return e, nil
}

// NewAdjustment creates an approved administrative credit (positive) or debit (negative)
func NewAdjustment(memberID string, amount decimal.Decimal, note string, now time.Time) (*Entry, error) {
	amount = amount.Round(Precision)
	if amount.IsZero() {
		return nil, shared.ErrInvalidAmount
	}
	e := newEntry(memberID, shared.LedgerKindAdjustment, amount, shared.LedgerStatusApproved, "admin", note, now)
	resolved := e.CreatedAt
	e.ResolvedAt = &resolved
	return e, nil
}

func newEntry(memberID string, kind shared.LedgerKind, amount decimal.Decimal, status shared.LedgerStatus, method, note string, now time.Time) *Entry {
	return &Entry{
		ID:        uuid.Must(uuid.NewV7()).String(),
		MemberID:  memberID,
		Kind:      kind,
		Method:    method,
		Amount:    amount,
		Status:    status,
		Note:      strings.TrimSpace(note),
		CreatedAt: now.UTC(),
	}
}

// IsTerminal reports whether the entry left pending
func (e *Entry) IsTerminal() bool {
	return e.Status != shared.LedgerStatusPending
}

// Approve moves a pending entry to approved
func (e *Entry) Approve(now time.Time) error {
	return e.transition(shared.LedgerStatusApproved, now)
}

// Reject moves a pending entry to rejected
func (e *Entry) Reject(now time.Time) error {
	return e.transition(shared.LedgerStatusRejected, now)
}

func (e *Entry) transition(to shared.LedgerStatus, now time.Time) error {
	if e.Status != shared.LedgerStatusPending {
		return shared.ErrInvalidTransition{EntryID: e.ID, From: e.Status, To: to}
	}
	e.Status = to
	resolved := now.UTC()
	e.ResolvedAt = &resolved
	return nil
}
