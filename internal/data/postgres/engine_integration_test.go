package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/referral-ledger/internal/config"
	"github.com/referral-ledger/internal/data/postgres"
	"github.com/referral-ledger/internal/domain/ledger"
	"github.com/referral-ledger/internal/domain/member"
	"github.com/referral-ledger/internal/domain/settings"
	"github.com/referral-ledger/internal/domain/shared"
	"github.com/referral-ledger/internal/platform/persistence"
	"github.com/referral-ledger/internal/referral/configuration"
	"github.com/referral-ledger/internal/referral/distribution"
	"github.com/referral-ledger/internal/referral/payment"
	"github.com/referral-ledger/internal/referral/placement"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

const migrationsPath = "../../../migrations/postgres"

// engine is the placement and distribution stack over a real PostgreSQL
type engine struct {
	db           *persistence.PostgresDB
	members      member.Repository
	entries      ledger.Repository
	placement    *placement.Service
	distribution *distribution.Service
	payment      *payment.Service
}

func startPostgres(t *testing.T) string {
	t.Helper()
	if os.Getenv("REFERRAL_INTEGRATION") != "1" {
		t.Skip("set REFERRAL_INTEGRATION=1 to run against a PostgreSQL container")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("referral"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		terminateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = container.Terminate(terminateCtx)
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return connStr
}

func newEngine(t *testing.T, snap settings.Snapshot) *engine {
	t.Helper()
	connStr := startPostgres(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := clockwork.NewRealClock()

	db, err := persistence.NewPostgresDB(context.Background(), logger, &config.PostgresConfig{
		URL:             connStr,
		MaxConns:        16,
		MinConns:        1,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: time.Minute,
		MigrationsPath:  migrationsPath,
		LockTimeout:     10 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	members := postgres.NewMemberRepository(logger, db)
	entries := postgres.NewLedgerRepository(logger, db)
	outboxRepo := postgres.NewOutboxRepository(logger, db)
	provider := configuration.NewProvider(logger, postgres.NewSettingsRepository(logger, db), snap, clock)

	dist := distribution.NewService(db, members, entries, outboxRepo, provider, clock, logger)
	return &engine{
		db:           db,
		members:      members,
		entries:      entries,
		placement:    placement.NewService(db, members, provider, clock, logger),
		distribution: dist,
		payment:      payment.NewService(db, members, entries, dist, provider, clock, logger),
	}
}

func (e *engine) join(t *testing.T, username, referral string) *member.Member {
	t.Helper()
	p, err := e.placement.PlaceMember(context.Background(), placement.Request{Username: username, ReferralCode: referral})
	require.NoError(t, err)
	return p.Member
}

// runConcurrently starts n calls of fn at once and collects their errors
func runConcurrently(n int, fn func(i int) error) []error {
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = fn(i)
		}(i)
	}
	close(start)
	wg.Wait()
	return errs
}

func TestEngine_ConcurrentReferralsRespectBranchingFactor(t *testing.T) {
	snap := settings.DefaultSnapshot()
	snap.BranchingFactor = 3
	e := newEngine(t, snap)
	ctx := context.Background()

	root := e.join(t, "root", "")

	errs := runConcurrently(12, func(i int) error {
		_, err := e.placement.PlaceMember(ctx, placement.Request{Username: fmt.Sprintf("kid%02d", i), ReferralCode: "root"})
		return err
	})

	placed := 0
	for _, err := range errs {
		if err == nil {
			placed++
			continue
		}
		assert.ErrorIs(t, err, shared.ErrBranchingLimitExceeded{})
	}
	assert.Equal(t, 3, placed)

	children, err := e.members.CountChildren(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, children)
}

func TestEngine_ConcurrentJoinsRespectMarketCap(t *testing.T) {
	snap := settings.DefaultSnapshot()
	snap.MarketCapLimit = 7
	snap.BranchingFactor = 2
	e := newEngine(t, snap)
	ctx := context.Background()

	errs := runConcurrently(20, func(i int) error {
		_, err := e.placement.PlaceMember(ctx, placement.Request{Username: fmt.Sprintf("user%02d", i)})
		return err
	})

	placed := 0
	for _, err := range errs {
		if err == nil {
			placed++
			continue
		}
		assert.ErrorIs(t, err, shared.ErrCapacityExceeded)
	}
	assert.Equal(t, 7, placed)

	count, err := e.members.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, count)
}

func TestEngine_DistributionIsIdempotentUnderRace(t *testing.T) {
	e := newEngine(t, settings.DefaultSnapshot())
	ctx := context.Background()

	root := e.join(t, "root", "")
	mid := e.join(t, "mid", "root")
	leaf := e.join(t, "leaf", "mid")

	req := distribution.Request{MemberID: leaf.ID, Amount: decimal.NewFromInt(1000), SourceRef: "invoice-1"}
	results := make([]*distribution.Result, 8)
	errs := runConcurrently(len(results), func(i int) error {
		var err error
		results[i], err = e.distribution.Distribute(ctx, req)
		return err
	})

	fresh := 0
	for i, err := range errs {
		require.NoError(t, err)
		if !results[i].Replayed {
			fresh++
		}
		require.Len(t, results[i].Credits, 2)
	}
	assert.Equal(t, 1, fresh, "exactly one caller writes credits")

	written, err := e.entries.ListBySourceRef(ctx, "invoice-1", shared.LedgerKindCommission, shared.LedgerKindPayout)
	require.NoError(t, err)
	assert.Len(t, written, 2)

	parent, err := e.members.GetByID(ctx, mid.ID)
	require.NoError(t, err)
	assert.True(t, parent.Balance.Equal(decimal.NewFromInt(100)), "level 1 earns 10%%, got %s", parent.Balance)

	grandparent, err := e.members.GetByID(ctx, root.ID)
	require.NoError(t, err)
	assert.True(t, grandparent.Balance.Equal(decimal.NewFromInt(50)), "level 2 earns 5%%, got %s", grandparent.Balance)
}

func TestEngine_PaymentReplayChangesNothing(t *testing.T) {
	e := newEngine(t, settings.DefaultSnapshot())
	ctx := context.Background()

	root := e.join(t, "root", "")
	payer := e.join(t, "payer", "root")

	confirmation := &shared.PaymentConfirmation{SessionID: "cs_live_1", MemberID: payer.ID, Paid: true}
	first, err := e.payment.ConfirmPayment(ctx, confirmation)
	require.NoError(t, err)
	require.NotNil(t, first.Distribution)

	second, err := e.payment.ConfirmPayment(ctx, confirmation)
	assert.True(t, errors.Is(err, shared.ErrAlreadyProcessed))
	require.NotNil(t, second)
	assert.Equal(t, first.EntryID, second.EntryID)

	paid, err := e.members.GetByID(ctx, payer.ID)
	require.NoError(t, err)
	assert.True(t, paid.PaidIn.Equal(settings.DefaultSnapshot().EntryFee))

	upline, err := e.members.GetByID(ctx, root.ID)
	require.NoError(t, err)
	assert.True(t, upline.Balance.Equal(first.Distribution.Total()))
}
