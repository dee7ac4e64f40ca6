// Package placement assigns new members a position in the referral forest.
package placement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jonboulle/clockwork"
	"github.com/referral-ledger/internal/domain/member"
	"github.com/referral-ledger/internal/domain/settings"
	"github.com/referral-ledger/internal/domain/shared"
	"github.com/referral-ledger/internal/metrics"
	"github.com/referral-ledger/internal/platform/persistence"
)

// Placement modes, used as a metrics label
const (
	ModeReferral = "referral"
	ModeAuto     = "auto"
	ModeRoot     = "root"
)

// SettingsSource loads the settings snapshot for one operation
type SettingsSource interface {
	Snapshot(ctx context.Context) (settings.Snapshot, error)
}

// Request describes a join. An empty ReferralCode asks for auto-placement.
type Request struct {
	Username     string
	Email        string
	ReferralCode string
}

// Placement is the outcome of a successful join
type Placement struct {
	Member   *member.Member `json:"member"`
	ParentID *string        `json:"parent_id,omitempty"`
	Level    int            `json:"level"`
	Mode     string         `json:"mode"`
}

type Service struct {
	db       persistence.Transactor
	members  member.Repository
	settings SettingsSource
	clock    clockwork.Clock
	logger   *slog.Logger
}

func NewService(db persistence.Transactor, members member.Repository, settings SettingsSource, clock clockwork.Clock, logger *slog.Logger) *Service {
	return &Service{
		db:       db,
		members:  members,
		settings: settings,
		clock:    clock,
		logger:   logger,
	}
}

// PlaceMember creates a member under the member named by the referral code, or
// under the shallowest member with a free slot when no code is given. The
// capacity check, the parent checks and the insert run in one transaction
// serialized against every other placement.
func (s *Service) PlaceMember(ctx context.Context, req Request) (*Placement, error) {
	if err := member.ValidateUsername(strings.TrimSpace(req.Username)); err != nil {
		return nil, err
	}

	snap, err := s.settings.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	mode := ModeAuto
	if req.ReferralCode != "" {
		mode = ModeReferral
	}

	var placed *Placement
	err = s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		var txErr error
		placed, txErr = s.place(ctx, tx, snap, req)
		return txErr
	})
	if err != nil {
		metrics.PlacementsTotal.WithLabelValues(mode, placementResult(err)).Inc()
		s.logger.Warn("Placement failed", "username", req.Username, "referral_code", req.ReferralCode, "error", err)
		return nil, err
	}

	metrics.PlacementsTotal.WithLabelValues(placed.Mode, metrics.ResultOK).Inc()
	s.logger.Info("Member placed",
		"member_id", placed.Member.ID,
		"parent_id", derefOrEmpty(placed.ParentID),
		"level", placed.Level,
		"mode", placed.Mode,
	)
	return placed, nil
}

func (s *Service) place(ctx context.Context, tx pgx.Tx, snap settings.Snapshot, req Request) (*Placement, error) {
	members := s.members.WithTx(tx)

	if err := members.LockPlacement(ctx); err != nil {
		return nil, err
	}

	count, err := members.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count >= snap.MarketCapLimit {
		return nil, shared.ErrCapacityExceeded
	}

	username := strings.TrimSpace(req.Username)
	existing, err := members.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, member.ErrDuplicateUsername{Username: username}
	}

	var parent *member.Member
	mode := ModeAuto
	if code := strings.TrimSpace(req.ReferralCode); code != "" {
		mode = ModeReferral
		parent, err = s.referrer(ctx, members, snap, code)
	} else {
		parent, err = members.FindPlacementCandidate(ctx, snap.MaxLevels, snap.BranchingFactor)
	}
	if err != nil {
		return nil, err
	}
	if parent == nil {
		mode = ModeRoot
	}

	m, err := member.NewMember(username, req.Email, parent, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := members.Create(ctx, m); err != nil {
		return nil, err
	}

	return &Placement{Member: m, ParentID: m.ParentID, Level: m.Level, Mode: mode}, nil
}

// referrer resolves and locks the member named by code and checks it can take
// another child
func (s *Service) referrer(ctx context.Context, members member.Repository, snap settings.Snapshot, code string) (*member.Member, error) {
	named, err := members.GetByUsername(ctx, code)
	if err != nil {
		return nil, err
	}
	if named == nil {
		return nil, shared.ErrInvalidReferralCode{Code: code}
	}

	parent, err := members.LockForUpdate(ctx, named.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock referrer %s: %w", named.ID, err)
	}

	children, err := members.CountChildren(ctx, parent.ID)
	if err != nil {
		return nil, err
	}
	if children >= snap.BranchingFactor {
		return nil, shared.ErrBranchingLimitExceeded{ParentID: parent.ID, Limit: snap.BranchingFactor}
	}
	if parent.Level+1 > snap.MaxLevels {
		return nil, shared.ErrDepthLimitExceeded{ParentID: parent.ID, MaxLevels: snap.MaxLevels}
	}
	return parent, nil
}

func placementResult(err error) string {
	switch {
	case errors.Is(err, shared.ErrCapacityExceeded),
		errors.Is(err, shared.ErrInvalidReferralCode{}),
		errors.Is(err, shared.ErrBranchingLimitExceeded{}),
		errors.Is(err, shared.ErrDepthLimitExceeded{}),
		errors.As(err, &member.ErrDuplicateUsername{}):
		return metrics.ResultRejected
	}
	return metrics.ResultError
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
