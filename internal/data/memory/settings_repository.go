package memory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/referral-ledger/internal/domain/settings"
)

var _ settings.Repository = (*SettingsRepository)(nil)

type SettingsRepository struct {
	store *Store
}

func (r *SettingsRepository) GetAll(_ context.Context) (map[string]json.RawMessage, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	values := make(map[string]json.RawMessage, len(s.settings))
	for k, v := range s.settings {
		values[k] = append(json.RawMessage(nil), v...)
	}
	return values, nil
}

func (r *SettingsRepository) Get(_ context.Context, key string) (json.RawMessage, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.settings[key]
	if !ok {
		return nil, nil
	}
	return append(json.RawMessage(nil), v...), nil
}

func (r *SettingsRepository) Set(_ context.Context, key string, value json.RawMessage, _ time.Time) error {
	defer r.store.exclusive(false)()

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings[key] = append(json.RawMessage(nil), value...)
	return nil
}
