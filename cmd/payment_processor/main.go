package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/referral-ledger/internal/config"
	"github.com/referral-ledger/internal/data/mongo"
	"github.com/referral-ledger/internal/data/postgres"
	"github.com/referral-ledger/internal/data/redis"
	"github.com/referral-ledger/internal/domain/settings"
	"github.com/referral-ledger/internal/logger"
	"github.com/referral-ledger/internal/payment_processor/components"
	"github.com/referral-ledger/internal/payment_processor/consumer"
	"github.com/referral-ledger/internal/payment_processor/outbox_poller"
	"github.com/referral-ledger/internal/platform/messaging/consumers"
	"github.com/referral-ledger/internal/platform/messaging/producers"
	"github.com/referral-ledger/internal/platform/persistence"
	"github.com/referral-ledger/internal/referral/configuration"
	"github.com/referral-ledger/internal/referral/distribution"
	"github.com/referral-ledger/internal/referral/payment"
)

func main() {
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("payment_processor")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)
	clock := clockwork.NewRealClock()

	log.Info("Starting Payment Processor",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

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

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
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
		closeRedis = rdb.Close
	}

	memberRepo := postgres.NewMemberRepository(log, postgresDB)
	ledgerRepo := postgres.NewLedgerRepository(log, postgresDB)
	outboxRepo := postgres.NewOutboxRepository(log, postgresDB)
	eventStore := mongo.NewDistributionEventRepository(log, mongoDB.Database(), cfg.MongoDB.EventsCollection)

	provider := configuration.NewProvider(log, settingsRepo, defaults, clock)
	distributionSvc := distribution.NewService(postgresDB, memberRepo, ledgerRepo, outboxRepo, provider, clock, log)
	paymentSvc := payment.NewService(postgresDB, memberRepo, ledgerRepo, distributionSvc, provider, clock, log)

	kafkaConsumer := consumers.NewKafkaConsumer(appCtx, log, &cfg.Kafka)

	// dlqProducer is nil when no DLQ topic is configured; its methods are nil-safe
	dlqProducer, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka, clock)
	if err != nil {
		log.Error("Failed to initialize DLQ Kafka producer", "error", err)
		os.Exit(1)
	}

	processingService, shutdownPool := components.CreateProcessingService(paymentSvc, dlqProducer, clock, log, cfg)
	paymentEventHandler := consumer.NewPaymentEventHandler(log, processingService, dlqProducer)

	poller := outbox_poller.NewPoller(
		&cfg.Outbox,
		outboxRepo,
		outbox_poller.NewEventPublisher(outboxRepo, eventStore, clock, log),
		clock,
		log,
	)

	errChan := make(chan error, 1)
	var wg sync.WaitGroup

	log.Info("Starting Kafka consumer",
		"topic", cfg.Kafka.PaymentTopic,
		"group", cfg.Kafka.ConsumerGroup,
	)
	if err := kafkaConsumer.Subscribe(appCtx, paymentEventHandler.HandleMessage); err != nil {
		errChan <- fmt.Errorf("kafka consumer error: %w", err)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Starting Outbox Poller",
			"interval", cfg.Outbox.PollingInterval.String(),
			"batch_size", cfg.Outbox.BatchSize,
		)
		poller.Start(appCtx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var serviceErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Service error occurred", "error", err)
		serviceErr = err
	}

	cancelAppCtx()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	// In-flight confirmations finish before their stores close
	shutdownPool()

	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(wgChan)
	}()

	select {
	case <-wgChan:
		log.Info("Outbox poller stopped")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	var shutdownErr error
	if err := kafkaConsumer.Close(); err != nil {
		log.Error("Error closing Kafka consumer", "error", err)
		shutdownErr = err
	}
	if err := dlqProducer.Close(); err != nil {
		log.Error("Error closing DLQ Kafka producer", "error", err)
		shutdownErr = err
	}
	if closeRedis != nil {
		if err := closeRedis(); err != nil {
			log.Error("Error closing Redis client", "error", err)
			shutdownErr = err
		}
	}
	if err := mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
		shutdownErr = err
	}
	postgresDB.Close()

	if serviceErr != nil || shutdownErr != nil {
		log.Error("Payment Processor shutdown completed with errors", "service_error", serviceErr, "shutdown_error", shutdownErr)
		os.Exit(1)
	}
	log.Info("Payment Processor shutdown completed successfully")
}
