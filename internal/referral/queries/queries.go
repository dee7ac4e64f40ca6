// Package queries answers read-only questions about the referral forest.
package queries

import (
	"context"
	"log/slog"

	"github.com/referral-ledger/internal/domain/member"
	"github.com/referral-ledger/internal/domain/settings"
	"github.com/referral-ledger/internal/referral/chain"
)

// SettingsSource loads the settings snapshot for one operation
type SettingsSource interface {
	Snapshot(ctx context.Context) (settings.Snapshot, error)
}

// TreeNode is one member of a referral subtree
type TreeNode struct {
	ID       string      `json:"id"`
	Username string      `json:"username"`
	Level    int         `json:"level"`
	Children []*TreeNode `json:"children"`
}

type Service struct {
	members  member.Repository
	settings SettingsSource
	logger   *slog.Logger
}

func NewService(members member.Repository, settings SettingsSource, logger *slog.Logger) *Service {
	return &Service{
		members:  members,
		settings: settings,
		logger:   logger,
	}
}

// DirectReferrals lists the members placed directly under memberID, newest first
func (s *Service) DirectReferrals(ctx context.Context, memberID string) ([]*member.Member, error) {
	if _, err := s.members.GetByID(ctx, memberID); err != nil {
		return nil, err
	}
	return s.members.ListChildren(ctx, memberID)
}

// ParentChain lists ancestor ids, direct parent first. levels is capped at
// max_levels; zero or less means max_levels.
func (s *Service) ParentChain(ctx context.Context, memberID string, levels int) ([]string, error) {
	snap, err := s.settings.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if levels <= 0 || levels > snap.MaxLevels {
		levels = snap.MaxLevels
	}

	m, err := s.members.GetByID(ctx, memberID)
	if err != nil {
		return nil, err
	}
	ancestors, err := chain.Ancestors(ctx, s.members, m, levels)
	if err != nil {
		return nil, err
	}
	return chain.IDs(ancestors), nil
}

// ReferralTree builds the subtree under memberID breadth first, depth levels
// deep. depth is capped at max_levels; zero or less means max_levels.
func (s *Service) ReferralTree(ctx context.Context, memberID string, depth int) (*TreeNode, error) {
	snap, err := s.settings.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if depth <= 0 || depth > snap.MaxLevels {
		depth = snap.MaxLevels
	}

	m, err := s.members.GetByID(ctx, memberID)
	if err != nil {
		return nil, err
	}

	root := newNode(m)
	frontier := []*TreeNode{root}
	for d := 0; d < depth && len(frontier) > 0; d++ {
		var next []*TreeNode
		for _, node := range frontier {
			children, err := s.members.ListChildren(ctx, node.ID)
			if err != nil {
				return nil, err
			}
			for _, c := range children {
				child := newNode(c)
				node.Children = append(node.Children, child)
				next = append(next, child)
			}
		}
		frontier = next
	}

	s.logger.Debug("Referral tree built", "member_id", memberID, "depth", depth)
	return root, nil
}

func newNode(m *member.Member) *TreeNode {
	return &TreeNode{ID: m.ID, Username: m.Username, Level: m.Level, Children: []*TreeNode{}}
}
