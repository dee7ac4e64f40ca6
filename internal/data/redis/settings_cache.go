// Package redis caches read-mostly data in front of the primary store.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/referral-ledger/internal/domain/settings"
)

const (
	settingsKey        = "referral:settings"
	settingsVersionKey = "referral:settings:version"
)

// CachedSettingsRepository wraps the primary settings repository with a Redis
// read-through cache. The cached map lives under a versioned key; writes go to
// the primary and then bump the version, so a reader that loaded the primary
// before the write can only populate a key no one reads any more. When Redis
// is unavailable every read falls through to the primary.
type CachedSettingsRepository struct {
	primary settings.Repository
	rdb     redis.Cmdable
	ttl     time.Duration
	logger  *slog.Logger
}

var _ settings.Repository = (*CachedSettingsRepository)(nil)

func NewCachedSettingsRepository(logger *slog.Logger, primary settings.Repository, rdb redis.Cmdable, ttl time.Duration) *CachedSettingsRepository {
	return &CachedSettingsRepository{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
		logger:  logger,
	}
}

func (c *CachedSettingsRepository) GetAll(ctx context.Context) (map[string]json.RawMessage, error) {
	key, err := c.cacheKey(ctx)
	if err != nil {
		c.logger.Warn("Settings cache unavailable, reading primary", "error", err)
		return c.primary.GetAll(ctx)
	}

	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var values map[string]json.RawMessage
		if json.Unmarshal(data, &values) == nil {
			return values, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("Settings cache unavailable, reading primary", "error", err)
	}

	values, err := c.primary.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(values); err == nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Debug("Failed to populate settings cache", "error", err)
		}
	}
	return values, nil
}

// cacheKey returns the key of the current settings generation
func (c *CachedSettingsRepository) cacheKey(ctx context.Context) (string, error) {
	version, err := c.rdb.Get(ctx, settingsVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		version, err = 0, nil
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", settingsKey, version), nil
}

func (c *CachedSettingsRepository) Get(ctx context.Context, key string) (json.RawMessage, error) {
	values, err := c.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	value, ok := values[key]
	if !ok {
		return nil, nil
	}
	return value, nil
}

func (c *CachedSettingsRepository) Set(ctx context.Context, key string, value json.RawMessage, updatedAt time.Time) error {
	if err := c.primary.Set(ctx, key, value, updatedAt); err != nil {
		return err
	}
	if err := c.rdb.Incr(ctx, settingsVersionKey).Err(); err != nil {
		c.logger.Warn("Failed to invalidate settings cache", "key", key, "error", err)
	}
	return nil
}
