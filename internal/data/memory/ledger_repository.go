package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/referral-ledger/internal/domain/ledger"
	"github.com/referral-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

const defaultListLimit = 50

type LedgerRepository struct {
	store *Store
	inTx  bool
}

func (r *LedgerRepository) WithTx(_ pgx.Tx) ledger.Repository {
	return &LedgerRepository{store: r.store, inTx: true}
}

// Create enforces the same uniqueness rules as the Postgres indexes: one
// distribution credit per (source, member, kind) and one external reference
// per kind.
func (r *LedgerRepository) Create(_ context.Context, e *ledger.Entry) error {
	defer r.store.exclusive(r.inTx)()

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[e.ID]; exists {
		return fmt.Errorf("failed to create ledger entry: duplicate id %s", e.ID)
	}
	if _, ok := s.members[e.MemberID]; !ok {
		return fmt.Errorf("failed to create ledger entry: unknown member %s", e.MemberID)
	}
	for _, existing := range s.entries {
		if e.Kind.IsDistribution() && e.SourceRef != nil && existing.Kind == e.Kind &&
			existing.MemberID == e.MemberID && existing.SourceRef != nil && *existing.SourceRef == *e.SourceRef {
			return ledger.ErrDuplicateEntry{Ref: *e.SourceRef}
		}
		if e.ExternalRef != nil && existing.Kind == e.Kind &&
			existing.ExternalRef != nil && *existing.ExternalRef == *e.ExternalRef {
			return ledger.ErrDuplicateEntry{Ref: *e.ExternalRef}
		}
	}

	cp := *e
	s.entries[e.ID] = &cp
	s.order = append(s.order, e.ID)
	return nil
}

func (r *LedgerRepository) GetByID(_ context.Context, id string) (*ledger.Entry, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, ledger.ErrEntryNotFound{EntryID: id}
	}
	cp := *e
	return &cp, nil
}

func (r *LedgerRepository) LockForUpdate(ctx context.Context, id string) (*ledger.Entry, error) {
	return r.GetByID(ctx, id)
}

func (r *LedgerRepository) UpdateStatus(_ context.Context, id string, status shared.LedgerStatus, resolvedAt time.Time) error {
	defer r.store.exclusive(r.inTx)()

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return ledger.ErrEntryNotFound{EntryID: id}
	}
	resolved := resolvedAt.UTC()
	e.Status = status
	e.ResolvedAt = &resolved
	return nil
}

func (r *LedgerRepository) LockSourceRef(_ context.Context, _ string) error {
	return nil
}

func (r *LedgerRepository) ListBySourceRef(_ context.Context, sourceRef string, kinds ...shared.LedgerKind) ([]*ledger.Entry, error) {
	wanted := make(map[shared.LedgerKind]bool, len(kinds))
	for _, k := range kinds {
		wanted[k] = true
	}
	return r.collect(func(e *ledger.Entry) bool {
		return e.SourceRef != nil && *e.SourceRef == sourceRef && wanted[e.Kind]
	}), nil
}

func (r *LedgerRepository) GetByExternalRef(_ context.Context, kind shared.LedgerKind, externalRef string) (*ledger.Entry, error) {
	found := r.collect(func(e *ledger.Entry) bool {
		return e.Kind == kind && e.ExternalRef != nil && *e.ExternalRef == externalRef
	})
	if len(found) == 0 {
		return nil, nil
	}
	return found[0], nil
}

// List returns matching entries newest first
func (r *LedgerRepository) List(_ context.Context, filter ledger.Filter) ([]*ledger.Entry, error) {
	entries := r.collect(filter.Matches)
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].ID > entries[j].ID
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	offset := max(filter.Offset, 0)
	if offset >= len(entries) {
		return []*ledger.Entry{}, nil
	}
	return entries[offset:min(offset+limit, len(entries))], nil
}

func (r *LedgerRepository) Count(_ context.Context, filter ledger.Filter) (int64, error) {
	return int64(len(r.collect(filter.Matches))), nil
}

func (r *LedgerRepository) SumApproved(_ context.Context) (map[shared.LedgerKind]decimal.Decimal, error) {
	sums := make(map[shared.LedgerKind]decimal.Decimal)
	for _, e := range r.collect(func(e *ledger.Entry) bool { return e.Status == shared.LedgerStatusApproved }) {
		sums[e.Kind] = sums[e.Kind].Add(e.Amount)
	}
	return sums, nil
}

// collect copies matching entries in insertion order
func (r *LedgerRepository) collect(match func(*ledger.Entry) bool) []*ledger.Entry {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*ledger.Entry, 0)
	for _, id := range s.order {
		e := s.entries[id]
		if match(e) {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out
}
