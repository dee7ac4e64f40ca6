// Package chain walks the ancestor chain of a member.
package chain

import (
	"context"
	"fmt"

	"github.com/referral-ledger/internal/domain/member"
)

// ErrCycle is returned when the walk meets a member it already visited
type ErrCycle struct {
	MemberID string
}

func (e ErrCycle) Error() string {
	return "cycle in referral chain at member " + e.MemberID
}

// Reader is the part of member.Repository the walk needs
type Reader interface {
	GetByID(ctx context.Context, id string) (*member.Member, error)
}

// Ancestors returns at most limit ancestors of m, direct parent first. The
// walk stops at a root.
func Ancestors(ctx context.Context, members Reader, m *member.Member, limit int) ([]*member.Member, error) {
	ancestors := make([]*member.Member, 0, max(limit, 0))
	seen := map[string]struct{}{m.ID: {}}

	parentID := m.ParentID
	for len(ancestors) < limit && parentID != nil {
		if _, ok := seen[*parentID]; ok {
			return nil, ErrCycle{MemberID: *parentID}
		}
		parent, err := members.GetByID(ctx, *parentID)
		if err != nil {
			return nil, fmt.Errorf("failed to load ancestor %s: %w", *parentID, err)
		}
		seen[parent.ID] = struct{}{}
		ancestors = append(ancestors, parent)
		parentID = parent.ParentID
	}
	return ancestors, nil
}

// IDs lists ancestor ids in walk order
func IDs(ancestors []*member.Member) []string {
	ids := make([]string, len(ancestors))
	for i, a := range ancestors {
		ids[i] = a.ID
	}
	return ids
}

// Levels maps each ancestor id to its distance from the walk origin (1 = direct parent)
func Levels(ancestors []*member.Member) map[string]int {
	levels := make(map[string]int, len(ancestors))
	for i, a := range ancestors {
		levels[a.ID] = i + 1
	}
	return levels
}
