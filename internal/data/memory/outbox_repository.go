package memory

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/referral-ledger/internal/domain/outbox"
	"github.com/referral-ledger/internal/domain/shared"
)

type OutboxRepository struct {
	store *Store
	inTx  bool
}

func (r *OutboxRepository) WithTx(_ pgx.Tx) outbox.Repository {
	return &OutboxRepository{store: r.store, inTx: true}
}

func (r *OutboxRepository) Create(_ context.Context, message *outbox.Message) error {
	defer r.store.exclusive(r.inTx)()

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.messages {
		if existing.SourceRef == message.SourceRef {
			return outbox.ErrDuplicateMessage{SourceRef: message.SourceRef}
		}
	}

	s.nextID++
	message.ID = s.nextID
	cp := *message
	s.messages = append(s.messages, &cp)
	return nil
}

func (r *OutboxRepository) GetPending(_ context.Context, limit int) ([]*outbox.Message, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending := make([]*outbox.Message, 0)
	for _, m := range s.messages {
		if m.Status != shared.OutboxStatusPending {
			continue
		}
		cp := *m
		pending = append(pending, &cp)
		if limit > 0 && len(pending) == limit {
			break
		}
	}
	return pending, nil
}

func (r *OutboxRepository) UpdateStatus(_ context.Context, id int64, status shared.OutboxStatus) error {
	return r.update(id, func(m *outbox.Message) {
		now := time.Now().UTC()
		m.Status = status
		m.LastAttemptAt = &now
	})
}

func (r *OutboxRepository) IncrementAttempts(_ context.Context, id int64) error {
	return r.update(id, func(m *outbox.Message) {
		m.IncrementAttempts(time.Now().UTC())
	})
}

func (r *OutboxRepository) GetBySourceRef(_ context.Context, sourceRef string) (*outbox.Message, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.messages {
		if m.SourceRef == sourceRef {
			cp := *m
			return &cp, nil
		}
	}
	return nil, outbox.ErrMessageNotFound{SourceRef: sourceRef}
}

func (r *OutboxRepository) update(id int64, fn func(*outbox.Message)) error {
	defer r.store.exclusive(r.inTx)()

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.messages {
		if m.ID == id {
			fn(m)
			return nil
		}
	}
	return outbox.ErrMessageNotFound{ID: id}
}
