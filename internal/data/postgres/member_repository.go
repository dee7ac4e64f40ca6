// Package postgres provides PostgreSQL implementations of the domain repositories.
// Money columns are written as NUMERIC from decimal strings and read back
// through ::TEXT so no precision is lost on the way.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/referral-ledger/internal/domain/member"
	"github.com/referral-ledger/internal/domain/shared"
	"github.com/referral-ledger/internal/platform/persistence"
	"github.com/shopspring/decimal"
)

// placementLockKey is the advisory lock key shared by every placement
const placementLockKey int64 = 0x52454650 // "REFP"

const memberColumns = `id, username, email, parent_id, level, balance::TEXT, payout_accumulated::TEXT, paid_in::TEXT, created_at`

// MemberRepository implements the member.Repository interface for PostgreSQL
type MemberRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewMemberRepository creates a new PostgreSQL member repository
func NewMemberRepository(logger *slog.Logger, db *persistence.PostgresDB) member.Repository {
	return &MemberRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx returns a repository bound to tx
func (r *MemberRepository) WithTx(tx pgx.Tx) member.Repository {
	return &MemberRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create inserts a member with zeroed balances. A taken username surfaces as
// member.ErrDuplicateUsername; any other constraint failure, including an id
// collision, is returned as is.
func (r *MemberRepository) Create(ctx context.Context, m *member.Member) error {
	query := `
		INSERT INTO members (id, username, email, parent_id, level, balance, payout_accumulated, paid_in, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9)
	`

	_, err := r.querier.Exec(ctx, query,
		m.ID,
		m.Username,
		m.Email,
		m.ParentID,
		m.Level,
		m.Balance.String(),
		m.PayoutAccumulated.String(),
		m.PaidIn.String(),
		m.CreatedAt,
	)
	if err != nil {
		if persistence.IsUniqueViolation(err, "members_username_key") {
			return member.ErrDuplicateUsername{Username: m.Username}
		}
		r.logger.Error("Failed to create member", "id", m.ID, "error", err)
		return fmt.Errorf("failed to create member: %w", err)
	}

	return nil
}

// GetByID retrieves a member by id
func (r *MemberRepository) GetByID(ctx context.Context, id string) (*member.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE id = $1`

	m, err := scanMember(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, member.ErrMemberNotFound{MemberID: id}
		}
		r.logger.Error("Failed to get member", "id", id, "error", err)
		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	return m, nil
}

// GetByUsername returns nil, nil when no member has the username
func (r *MemberRepository) GetByUsername(ctx context.Context, username string) (*member.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE username = $1`

	m, err := scanMember(r.querier.QueryRow(ctx, query, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get member by username", "username", username, "error", err)
		return nil, fmt.Errorf("failed to get member by username: %w", err)
	}

	return m, nil
}

// LockForUpdate obtains a row lock on the member and returns its current state.
// Must run inside a transaction.
func (r *MemberRepository) LockForUpdate(ctx context.Context, id string) (*member.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE id = $1 FOR UPDATE`

	m, err := scanMember(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, member.ErrMemberNotFound{MemberID: id}
		}
		r.logger.Error("Failed to lock member for update", "id", id, "error", err)
		return nil, fmt.Errorf("failed to lock member for update: %w", err)
	}

	return m, nil
}

// LockPlacement takes the transaction-scoped placement lock
func (r *MemberRepository) LockPlacement(ctx context.Context) error {
	if _, err := r.querier.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, placementLockKey); err != nil {
		r.logger.Error("Failed to acquire placement lock", "error", err)
		return fmt.Errorf("failed to acquire placement lock: %w", err)
	}
	return nil
}

func (r *MemberRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.querier.QueryRow(ctx, `SELECT COUNT(*) FROM members`).Scan(&n); err != nil {
		r.logger.Error("Failed to count members", "error", err)
		return 0, fmt.Errorf("failed to count members: %w", err)
	}
	return n, nil
}

func (r *MemberRepository) CountChildren(ctx context.Context, parentID string) (int, error) {
	var n int
	if err := r.querier.QueryRow(ctx, `SELECT COUNT(*) FROM members WHERE parent_id = $1`, parentID).Scan(&n); err != nil {
		r.logger.Error("Failed to count children", "parent_id", parentID, "error", err)
		return 0, fmt.Errorf("failed to count children: %w", err)
	}
	return n, nil
}

// FindPlacementCandidate picks the shallowest member that may take another
// child, earliest joined first with id as the final tie-break
func (r *MemberRepository) FindPlacementCandidate(ctx context.Context, maxLevels, branchingFactor int) (*member.Member, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM members m
		WHERE m.level < $1
		  AND (SELECT COUNT(*) FROM members c WHERE c.parent_id = m.id) < $2
		ORDER BY m.level ASC, m.created_at ASC, m.id ASC
		LIMIT 1
	`

	m, err := scanMember(r.querier.QueryRow(ctx, query, maxLevels, branchingFactor))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to find placement candidate", "error", err)
		return nil, fmt.Errorf("failed to find placement candidate: %w", err)
	}

	return m, nil
}

// ListChildren returns direct referrals, newest first
func (r *MemberRepository) ListChildren(ctx context.Context, parentID string) ([]*member.Member, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM members
		WHERE parent_id = $1
		ORDER BY created_at DESC, id DESC
	`

	rows, err := r.querier.Query(ctx, query, parentID)
	if err != nil {
		r.logger.Error("Failed to list children", "parent_id", parentID, "error", err)
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	defer rows.Close()

	var children []*member.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			r.logger.Error("Failed to scan member", "error", err)
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		children = append(children, m)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over members", "error", err)
		return nil, fmt.Errorf("error iterating over members: %w", err)
	}

	return children, nil
}

// AdjustBalances applies a signed delta in one statement. A balance that
// would drop below zero trips the table CHECK and becomes
// shared.ErrInsufficientFunds.
func (r *MemberRepository) AdjustBalances(ctx context.Context, id string, delta member.BalanceDelta) error {
	query := `
		UPDATE members
		SET balance = balance + $1::NUMERIC,
		    payout_accumulated = payout_accumulated + $2::NUMERIC,
		    paid_in = paid_in + $3::NUMERIC
		WHERE id = $4
	`

	result, err := r.querier.Exec(ctx, query,
		delta.Balance.String(),
		delta.PayoutAccumulated.String(),
		delta.PaidIn.String(),
		id,
	)
	if err != nil {
		if persistence.IsCheckViolation(err, "members_balance_check") {
			return shared.ErrInsufficientFunds
		}
		r.logger.Error("Failed to adjust member balances", "id", id, "error", err)
		return fmt.Errorf("failed to adjust member balances: %w", err)
	}

	if result.RowsAffected() == 0 {
		return member.ErrMemberNotFound{MemberID: id}
	}

	return nil
}

// Totals aggregates every member row
func (r *MemberRepository) Totals(ctx context.Context) (*member.Totals, error) {
	query := `
		SELECT COUNT(*),
		       COALESCE(SUM(balance), 0)::TEXT,
		       COALESCE(SUM(payout_accumulated), 0)::TEXT,
		       COALESCE(SUM(paid_in), 0)::TEXT
		FROM members
	`

	var totals member.Totals
	var balance, payout, paidIn string
	if err := r.querier.QueryRow(ctx, query).Scan(&totals.Members, &balance, &payout, &paidIn); err != nil {
		r.logger.Error("Failed to total members", "error", err)
		return nil, fmt.Errorf("failed to total members: %w", err)
	}

	var err error
	if totals.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("failed to parse balance total: %w", err)
	}
	if totals.PayoutAccumulated, err = decimal.NewFromString(payout); err != nil {
		return nil, fmt.Errorf("failed to parse payout total: %w", err)
	}
	if totals.PaidIn, err = decimal.NewFromString(paidIn); err != nil {
		return nil, fmt.Errorf("failed to parse paid-in total: %w", err)
	}

	return &totals, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (*member.Member, error) {
	var m member.Member
	var balance, payout, paidIn string
	if err := row.Scan(
		&m.ID,
		&m.Username,
		&m.Email,
		&m.ParentID,
		&m.Level,
		&balance,
		&payout,
		&paidIn,
		&m.CreatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if m.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("invalid balance %q: %w", balance, err)
	}
	if m.PayoutAccumulated, err = decimal.NewFromString(payout); err != nil {
		return nil, fmt.Errorf("invalid payout_accumulated %q: %w", payout, err)
	}
	if m.PaidIn, err = decimal.NewFromString(paidIn); err != nil {
		return nil, fmt.Errorf("invalid paid_in %q: %w", paidIn, err)
	}
	return &m, nil
}
