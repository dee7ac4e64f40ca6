package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/referral-ledger/internal/domain/ledger"
	"github.com/referral-ledger/internal/domain/shared"
	"github.com/referral-ledger/internal/platform/persistence"
	"github.com/shopspring/decimal"
)

const entryColumns = `id, member_id, kind, method, amount::TEXT, status, source_ref, external_ref, note, created_at, resolved_at`

const defaultListLimit = 50

// LedgerRepository implements the ledger.Repository interface for PostgreSQL
type LedgerRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewLedgerRepository creates a new PostgreSQL ledger repository
func NewLedgerRepository(logger *slog.Logger, db *persistence.PostgresDB) ledger.Repository {
	return &LedgerRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *LedgerRepository) WithTx(tx pgx.Tx) ledger.Repository {
	return &LedgerRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create inserts the entry. Violations of the distribution or external
// reference unique indexes surface as ledger.ErrDuplicateEntry.
func (r *LedgerRepository) Create(ctx context.Context, e *ledger.Entry) error {
	query := `
		INSERT INTO ledger_entries (id, member_id, kind, method, amount, status, source_ref, external_ref, note, created_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.querier.Exec(ctx, query,
		e.ID,
		e.MemberID,
		string(e.Kind),
		e.Method,
		e.Amount.String(),
		string(e.Status),
		e.SourceRef,
		e.ExternalRef,
		e.Note,
		e.CreatedAt,
		e.ResolvedAt,
	)
	if err != nil {
		switch {
		case persistence.IsUniqueViolation(err, "ledger_entries_distribution_key") && e.SourceRef != nil:
			return ledger.ErrDuplicateEntry{Ref: *e.SourceRef}
		case persistence.IsUniqueViolation(err, "ledger_entries_external_ref_key") && e.ExternalRef != nil:
			return ledger.ErrDuplicateEntry{Ref: *e.ExternalRef}
		}
		r.logger.Error("Failed to create ledger entry", "id", e.ID, "kind", string(e.Kind), "error", err)
		return fmt.Errorf("failed to create ledger entry: %w", err)
	}

	return nil
}

func (r *LedgerRepository) GetByID(ctx context.Context, id string) (*ledger.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE id = $1`

	e, err := scanEntry(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrEntryNotFound{EntryID: id}
		}
		r.logger.Error("Failed to get ledger entry", "id", id, "error", err)
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}
	return e, nil
}

func (r *LedgerRepository) LockForUpdate(ctx context.Context, id string) (*ledger.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE id = $1 FOR UPDATE`

	e, err := scanEntry(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrEntryNotFound{EntryID: id}
		}
		r.logger.Error("Failed to lock ledger entry", "id", id, "error", err)
		return nil, fmt.Errorf("failed to lock ledger entry: %w", err)
	}
	return e, nil
}

func (r *LedgerRepository) UpdateStatus(ctx context.Context, id string, status shared.LedgerStatus, resolvedAt time.Time) error {
	query := `
		UPDATE ledger_entries
		SET status = $1, resolved_at = $2
		WHERE id = $3
	`

	result, err := r.querier.Exec(ctx, query, string(status), resolvedAt, id)
	if err != nil {
		r.logger.Error("Failed to update ledger entry status", "id", id, "status", string(status), "error", err)
		return fmt.Errorf("failed to update ledger entry status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ledger.ErrEntryNotFound{EntryID: id}
	}
	return nil
}

// LockSourceRef takes a transaction-scoped advisory lock derived from sourceRef
func (r *LedgerRepository) LockSourceRef(ctx context.Context, sourceRef string) error {
	if _, err := r.querier.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, sourceRef); err != nil {
		r.logger.Error("Failed to acquire source lock", "source_ref", sourceRef, "error", err)
		return fmt.Errorf("failed to acquire source lock: %w", err)
	}
	return nil
}

func (r *LedgerRepository) ListBySourceRef(ctx context.Context, sourceRef string, kinds ...shared.LedgerKind) ([]*ledger.Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE source_ref = $1 AND kind = ANY($2)
		ORDER BY created_at ASC, id ASC
	`

	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}

	return r.queryEntries(ctx, "list ledger entries by source", query, sourceRef, names)
}

func (r *LedgerRepository) GetByExternalRef(ctx context.Context, kind shared.LedgerKind, externalRef string) (*ledger.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE kind = $1 AND external_ref = $2`

	e, err := scanEntry(r.querier.QueryRow(ctx, query, string(kind), externalRef))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get ledger entry by external ref", "external_ref", externalRef, "error", err)
		return nil, fmt.Errorf("failed to get ledger entry by external ref: %w", err)
	}
	return e, nil
}

// List returns entries matching filter, newest first
func (r *LedgerRepository) List(ctx context.Context, filter ledger.Filter) ([]*ledger.Entry, error) {
	where, args := filterClause(filter)

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit, max(filter.Offset, 0))

	query := fmt.Sprintf(`
		SELECT %s
		FROM ledger_entries
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, entryColumns, where, len(args)-1, len(args))

	return r.queryEntries(ctx, "list ledger entries", query, args...)
}

func (r *LedgerRepository) Count(ctx context.Context, filter ledger.Filter) (int64, error) {
	where, args := filterClause(filter)

	var n int64
	if err := r.querier.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_entries `+where, args...).Scan(&n); err != nil {
		r.logger.Error("Failed to count ledger entries", "error", err)
		return 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}
	return n, nil
}

// SumApproved totals approved amounts per kind. Kinds with no entries are absent.
func (r *LedgerRepository) SumApproved(ctx context.Context) (map[shared.LedgerKind]decimal.Decimal, error) {
	query := `
		SELECT kind, COALESCE(SUM(amount), 0)::TEXT
		FROM ledger_entries
		WHERE status = $1
		GROUP BY kind
	`

	rows, err := r.querier.Query(ctx, query, string(shared.LedgerStatusApproved))
	if err != nil {
		r.logger.Error("Failed to sum ledger entries", "error", err)
		return nil, fmt.Errorf("failed to sum ledger entries: %w", err)
	}
	defer rows.Close()

	sums := make(map[shared.LedgerKind]decimal.Decimal)
	for rows.Next() {
		var kind, total string
		if err := rows.Scan(&kind, &total); err != nil {
			return nil, fmt.Errorf("failed to scan ledger sum: %w", err)
		}
		d, err := decimal.NewFromString(total)
		if err != nil {
			return nil, fmt.Errorf("invalid ledger sum %q: %w", total, err)
		}
		sums[shared.LedgerKind(kind)] = d
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over ledger sums: %w", err)
	}
	return sums, nil
}

func (r *LedgerRepository) queryEntries(ctx context.Context, op, query string, args ...any) ([]*ledger.Entry, error) {
	rows, err := r.querier.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to "+op, "error", err)
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	defer rows.Close()

	var entries []*ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			r.logger.Error("Failed to scan ledger entry", "error", err)
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over ledger entries", "error", err)
		return nil, fmt.Errorf("error iterating over ledger entries: %w", err)
	}
	return entries, nil
}

func filterClause(f ledger.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.MemberID != "" {
		args = append(args, f.MemberID)
		conds = append(conds, fmt.Sprintf("member_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Kind != "" {
		args = append(args, string(f.Kind))
		conds = append(conds, fmt.Sprintf("kind = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

func scanEntry(row rowScanner) (*ledger.Entry, error) {
	var (
		e      ledger.Entry
		kind   string
		status string
		amount string
	)
	if err := row.Scan(
		&e.ID,
		&e.MemberID,
		&kind,
		&e.Method,
		&amount,
		&status,
		&e.SourceRef,
		&e.ExternalRef,
		&e.Note,
		&e.CreatedAt,
		&e.ResolvedAt,
	); err != nil {
		return nil, err
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	e.Amount = d
	e.Kind = shared.LedgerKind(kind)
	e.Status = shared.LedgerStatus(status)
	return &e, nil
}
