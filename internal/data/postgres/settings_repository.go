package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/referral-ledger/internal/domain/settings"
	"github.com/referral-ledger/internal/platform/persistence"
)

// SettingsRepository implements settings.Repository on the settings table
type SettingsRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewSettingsRepository(logger *slog.Logger, db *persistence.PostgresDB) settings.Repository {
	return &SettingsRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *SettingsRepository) GetAll(ctx context.Context) (map[string]json.RawMessage, error) {
	rows, err := r.querier.Query(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		r.logger.Error("Failed to load settings", "error", err)
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	defer rows.Close()

	values := make(map[string]json.RawMessage)
	for rows.Next() {
		var (
			key   string
			value []byte
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		values[key] = json.RawMessage(value)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over settings: %w", err)
	}
	return values, nil
}

func (r *SettingsRepository) Get(ctx context.Context, key string) (json.RawMessage, error) {
	var value []byte
	err := r.querier.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get setting", "key", key, "error", err)
		return nil, fmt.Errorf("failed to get setting: %w", err)
	}
	return json.RawMessage(value), nil
}

// Set upserts the value
func (r *SettingsRepository) Set(ctx context.Context, key string, value json.RawMessage, updatedAt time.Time) error {
	query := `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2::JSONB, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`

	if _, err := r.querier.Exec(ctx, query, key, string(value), updatedAt); err != nil {
		r.logger.Error("Failed to store setting", "key", key, "error", err)
		return fmt.Errorf("failed to store setting: %w", err)
	}
	return nil
}
