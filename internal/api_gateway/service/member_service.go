package service

import (
	"context"
	"log/slog"

	"github.com/referral-ledger/internal/domain/member"
	"github.com/referral-ledger/internal/referral/placement"
	"github.com/referral-ledger/internal/referral/queries"
)

type MemberServiceImpl struct {
	placement *placement.Service
	queries   *queries.Service
	members   member.Repository
	logger    *slog.Logger
}

func NewMemberService(logger *slog.Logger, placementSvc *placement.Service, querySvc *queries.Service, members member.Repository) MemberService {
	return &MemberServiceImpl{
		placement: placementSvc,
		queries:   querySvc,
		members:   members,
		logger:    logger,
	}
}

func (s *MemberServiceImpl) Join(ctx context.Context, req placement.Request) (*placement.Placement, error) {
	return s.placement.PlaceMember(ctx, req)
}

func (s *MemberServiceImpl) GetMember(ctx context.Context, id string) (*member.Member, error) {
	return s.members.GetByID(ctx, id)
}

func (s *MemberServiceImpl) DirectReferrals(ctx context.Context, id string) ([]*member.Member, error) {
	return s.queries.DirectReferrals(ctx, id)
}

func (s *MemberServiceImpl) ParentChain(ctx context.Context, id string, levels int) ([]string, error) {
	return s.queries.ParentChain(ctx, id, levels)
}

func (s *MemberServiceImpl) ReferralTree(ctx context.Context, id string, depth int) (*queries.TreeNode, error) {
	return s.queries.ReferralTree(ctx, id, depth)
}
