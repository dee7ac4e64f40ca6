// Package memory implements the repositories on in-memory maps. Used for
// tests and development; nothing survives a restart.
package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/referral-ledger/internal/domain/ledger"
	"github.com/referral-ledger/internal/domain/member"
	"github.com/referral-ledger/internal/domain/outbox"
	"github.com/referral-ledger/internal/platform/persistence"
)

var _ persistence.Transactor = (*Store)(nil)

// Store holds every table. Transactions run one at a time under txMu and the
// state is restored from a snapshot when the transaction fails, which gives
// the same all-or-nothing result as the Postgres store.
type Store struct {
	txMu sync.Mutex

	mu       sync.RWMutex
	members  map[string]*member.Member
	entries  map[string]*ledger.Entry
	order    []string // entry ids in insertion order
	settings map[string]json.RawMessage
	messages []*outbox.Message
	nextID   int64
}

func NewStore() *Store {
	return &Store{
		members:  make(map[string]*member.Member),
		entries:  make(map[string]*ledger.Entry),
		settings: make(map[string]json.RawMessage),
	}
}

func (s *Store) Members() member.Repository { return &MemberRepository{store: s} }
func (s *Store) Ledger() ledger.Repository { return &LedgerRepository{store: s} }
func (s *Store) Outbox() outbox.Repository { return &OutboxRepository{store: s} }
func (s *Store) Settings() *SettingsRepository { return &SettingsRepository{store: s} }

// ExecuteTx runs fn with exclusive access to the store. The tx handed to fn is
// nil. Writes inside fn must go through repositories obtained with WithTx.
func (s *Store) ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	defer func() {
		if r := recover(); r != nil {
			s.restore(snap)
			panic(r)
		}
	}()

	if err = fn(nil); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// exclusive serializes a write made outside ExecuteTx with running
// transactions, so a rollback cannot undo it
func (s *Store) exclusive(inTx bool) func() {
	if inTx {
		return func() {}
	}
	s.txMu.Lock()
	return s.txMu.Unlock
}

type snapshot struct {
	members  map[string]member.Member
	entries  map[string]ledger.Entry
	order    []string
	settings map[string]json.RawMessage
	messages []outbox.Message
	nextID   int64
}

func (s *Store) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := snapshot{
		members:  make(map[string]member.Member, len(s.members)),
		entries:  make(map[string]ledger.Entry, len(s.entries)),
		order:    append([]string(nil), s.order...),
		settings: make(map[string]json.RawMessage, len(s.settings)),
		messages: make([]outbox.Message, 0, len(s.messages)),
		nextID:   s.nextID,
	}
	for id, m := range s.members {
		snap.members[id] = *m
	}
	for id, e := range s.entries {
		snap.entries[id] = *e
	}
	for k, v := range s.settings {
		snap.settings[k] = v
	}
	for _, msg := range s.messages {
		snap.messages = append(snap.messages, *msg)
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.members = make(map[string]*member.Member, len(snap.members))
	for id, m := range snap.members {
		m := m
		s.members[id] = &m
	}
	s.entries = make(map[string]*ledger.Entry, len(snap.entries))
	for id, e := range snap.entries {
		e := e
		s.entries[id] = &e
	}
	s.order = snap.order
	s.settings = snap.settings
	s.messages = make([]*outbox.Message, 0, len(snap.messages))
	for _, msg := range snap.messages {
		msg := msg
		s.messages = append(s.messages, &msg)
	}
	s.nextID = snap.nextID
}
