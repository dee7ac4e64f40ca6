package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/referral-ledger/internal/api_gateway"
	"github.com/referral-ledger/internal/api_gateway/service"
	"github.com/referral-ledger/internal/config"
	"github.com/referral-ledger/internal/data/mongo"
	"github.com/referral-ledger/internal/data/postgres"
	"github.com/referral-ledger/internal/data/redis"
	"github.com/referral-ledger/internal/domain/ledger"
	"github.com/referral-ledger/internal/domain/settings"
	"github.com/referral-ledger/internal/logger"
	"github.com/referral-ledger/internal/platform/messaging/producers"
	"github.com/referral-ledger/internal/platform/persistence"
	"github.com/referral-ledger/internal/referral/approval"
	"github.com/referral-ledger/internal/referral/configuration"
	"github.com/referral-ledger/internal/referral/distribution"
	"github.com/referral-ledger/internal/referral/placement"
	"github.com/referral-ledger/internal/referral/queries"
	"github.com/referral-ledger/internal/referral/reporting"
)

func main() {
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("api_gateway")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)
	clock := clockwork.NewRealClock()

	defaults, err := configuration.DefaultsFromConfig(cfg.Referral)
	if err != nil {
		log.Error("Invalid referral defaults", "error", err)
		os.Exit(1)
	}

	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	healthChecks := map[string]api_gateway.HealthCheck{
		"postgres": func(ctx context.Context) error { return postgresDB.Pool().Ping(ctx) },
	}

	// The audit store is optional for the gateway; without it the audit
	// endpoints answer 503 and everything else keeps working.
	var events ledger.EventStore
	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Warn("MongoDB unavailable, distribution audit endpoints disabled", "error", err)
	} else {
		events = mongo.NewDistributionEventRepository(log, mongoDB.Database(), cfg.MongoDB.EventsCollection)
		healthChecks["mongodb"] = mongoDB.Ping
	}

	var settingsRepo settings.Repository = postgres.NewSettingsRepository(log, postgresDB)
	var closeRedis func() error
	if cfg.Redis.Enabled() {
		rdb, err := persistence.NewRedisClient(appCtx, log, &cfg.Redis)
		if err != nil {
			log.Error("Failed to initialize Redis", "error", err)
			os.Exit(1)
		}
		settingsRepo = redis.NewCachedSettingsRepository(log, settingsRepo, rdb, cfg.Redis.SettingsTTL)
		healthChecks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		closeRedis = rdb.Close
	}

	paymentProducer, err := producers.NewPaymentProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize payment Kafka producer", "error", err)
		os.Exit(1)
	}

	memberRepo := postgres.NewMemberRepository(log, postgresDB)
	ledgerRepo := postgres.NewLedgerRepository(log, postgresDB)
	outboxRepo := postgres.NewOutboxRepository(log, postgresDB)

	provider := configuration.NewProvider(log, settingsRepo, defaults, clock)
	placementSvc := placement.NewService(postgresDB, memberRepo, provider, clock, log)
	querySvc := queries.NewService(memberRepo, provider, log)
	distributionSvc := distribution.NewService(postgresDB, memberRepo, ledgerRepo, outboxRepo, provider, clock, log)
	approvalSvc := approval.NewService(postgresDB, memberRepo, ledgerRepo, distributionSvc, provider, clock, log)
	reportingSvc := reporting.NewService(memberRepo, ledgerRepo, log)

	server := api_gateway.NewServer(log, cfg, api_gateway.Services{
		Members:      service.NewMemberService(log, placementSvc, querySvc, memberRepo),
		Transactions: service.NewTransactionService(log, approvalSvc, reportingSvc, ledgerRepo),
		Admin:        service.NewAdminService(log, approvalSvc, distributionSvc, reportingSvc, provider, events),
		Payments:     service.NewPaymentService(log, paymentProducer, clock),
		HealthChecks: healthChecks,
	})
	log.Info("REST server initialized", "strategy", defaults.Strategy, "market_cap_limit", defaults.MarketCapLimit)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	cancelAppCtx()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	// Drain HTTP first so no request runs against a closed pool
	var shutdownErr error
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
		shutdownErr = err
	}

	if err := paymentProducer.Close(); err != nil {
		log.Error("Error closing payment Kafka producer", "error", err)
		shutdownErr = err
	}

	if closeRedis != nil {
		if err := closeRedis(); err != nil {
			log.Error("Error closing Redis client", "error", err)
			shutdownErr = err
		}
	}

	if mongoDB != nil {
		if err := mongoDB.Close(shutdownCtx); err != nil {
			log.Error("Error closing MongoDB connection", "error", err)
			shutdownErr = err
		}
	}

	postgresDB.Close()

	if serverErr != nil || shutdownErr != nil {
		log.Error("API gateway shutdown completed with errors", "server_error", serverErr, "shutdown_error", shutdownErr)
		os.Exit(1)
	}
	log.Info("API gateway shutdown completed successfully")
}
