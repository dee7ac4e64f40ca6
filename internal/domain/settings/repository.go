package settings

import (
	"context"
	"encoding/json"
	"time"
)

// Repository persists raw setting values keyed by name
type Repository interface {
	// GetAll returns every stored value. Keys that were never set are absent.
	GetAll(ctx context.Context) (map[string]json.RawMessage, error)

	// Get returns nil, nil when the key was never set
	Get(ctx context.Context, key string) (json.RawMessage, error)
	Set(ctx context.Context, key string, value json.RawMessage, updatedAt time.Time) error
}
