package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/referral-ledger/internal/domain/member"
	"github.com/referral-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

type MemberRepository struct {
	store *Store
	inTx  bool
}

func (r *MemberRepository) WithTx(_ pgx.Tx) member.Repository {
	return &MemberRepository{store: r.store, inTx: true}
}

func (r *MemberRepository) Create(_ context.Context, m *member.Member) error {
	defer r.store.exclusive(r.inTx)()

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.members[m.ID]; exists {
		return fmt.Errorf("failed to create member: duplicate id %s", m.ID)
	}
	for _, existing := range s.members {
		if existing.Username == m.Username {
			return member.ErrDuplicateUsername{Username: m.Username}
		}
	}

	cp := *m
	s.members[m.ID] = &cp
	return nil
}

func (r *MemberRepository) GetByID(_ context.Context, id string) (*member.Member, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.members[id]
	if !ok {
		return nil, member.ErrMemberNotFound{MemberID: id}
	}
	cp := *m
	return &cp, nil
}

func (r *MemberRepository) GetByUsername(_ context.Context, username string) (*member.Member, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.members {
		if m.Username == username {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

// LockForUpdate is a plain read; transactions are already exclusive
func (r *MemberRepository) LockForUpdate(ctx context.Context, id string) (*member.Member, error) {
	return r.GetByID(ctx, id)
}

func (r *MemberRepository) LockPlacement(_ context.Context) error {
	return nil
}

func (r *MemberRepository) Count(_ context.Context) (int, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.members), nil
}

func (r *MemberRepository) CountChildren(_ context.Context, parentID string) (int, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.childCount(parentID), nil
}

// childCount expects s.mu to be held
func (s *Store) childCount(parentID string) int {
	n := 0
	for _, m := range s.members {
		if m.ParentID != nil && *m.ParentID == parentID {
			n++
		}
	}
	return n
}

func (r *MemberRepository) FindPlacementCandidate(_ context.Context, maxLevels, branchingFactor int) (*member.Member, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *member.Member
	for _, m := range s.members {
		if m.Level >= maxLevels || s.childCount(m.ID) >= branchingFactor {
			continue
		}
		if best == nil || placedBefore(m, best) {
			best = m
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func placedBefore(a, b *member.Member) bool {
	if a.Level != b.Level {
		return a.Level < b.Level
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func (r *MemberRepository) ListChildren(_ context.Context, parentID string) ([]*member.Member, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	children := make([]*member.Member, 0)
	for _, m := range s.members {
		if m.ParentID != nil && *m.ParentID == parentID {
			cp := *m
			children = append(children, &cp)
		}
	}
	sort.Slice(children, func(i, j int) bool {
		if !children[i].CreatedAt.Equal(children[j].CreatedAt) {
			return children[i].CreatedAt.After(children[j].CreatedAt)
		}
		return children[i].ID > children[j].ID
	})
	return children, nil
}

// AdjustBalances rejects a delta that would leave the balance negative, as the
// balance CHECK constraint does in Postgres
func (r *MemberRepository) AdjustBalances(_ context.Context, id string, delta member.BalanceDelta) error {
	defer r.store.exclusive(r.inTx)()

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.members[id]
	if !ok {
		return member.ErrMemberNotFound{MemberID: id}
	}
	next := *m
	delta.Apply(&next)
	if next.Balance.IsNegative() {
		return shared.ErrInsufficientFunds
	}
	*m = next
	return nil
}

func (r *MemberRepository) Totals(_ context.Context) (*member.Totals, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := &member.Totals{
		Members:           len(s.members),
		Balance:           decimal.Zero,
		PayoutAccumulated: decimal.Zero,
		PaidIn:            decimal.Zero,
	}
	for _, m := range s.members {
		totals.Balance = totals.Balance.Add(m.Balance)
		totals.PayoutAccumulated = totals.PayoutAccumulated.Add(m.PayoutAccumulated)
		totals.PaidIn = totals.PaidIn.Add(m.PaidIn)
	}
	return totals, nil
}
