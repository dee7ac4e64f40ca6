package components

import (
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/referral-ledger/internal/config"
	"github.com/referral-ledger/internal/payment_processor/service"
	"github.com/referral-ledger/internal/platform/messaging/producers"
)

// CreateProcessingService wires the confirmation pipeline. The returned
// shutdown func releases the worker pool and is never nil.
func CreateProcessingService(
	confirmer service.PaymentConfirmer,
	dlq producers.DeadLetterPublisher,
	clock clockwork.Clock,
	logger *slog.Logger,
	cfg *config.Config,
) (service.ProcessingService, func()) {
	failureRecorder := NewFailureRecorder(dlq, logger.With("component", "failure_recorder"))

	baseService := service.NewProcessingService(
		confirmer,
		failureRecorder,
		service.DefaultRetryPolicy,
		clock,
		logger,
	)

	if cfg.WorkerPool.Size <= 0 {
		logger.Warn("Worker pool disabled, processing payments inline", "pool_size", cfg.WorkerPool.Size)
		return baseService, func() {}
	}

	workerPoolService, err := service.NewWorkerPoolProcessingService(
		baseService,
		service.WorkerPoolConfig{Size: cfg.WorkerPool.Size},
		logger.With("component", "worker_pool"),
	)
	if err != nil {
		logger.Error("Failed to create worker pool service, falling back to base service", "error", err)
		return baseService, func() {}
	}

	logger.Info("Created worker pool processing service", "pool_size", cfg.WorkerPool.Size)
	return workerPoolService, func() { workerPoolService.Shutdown(cfg.Server.ShutdownTimeout) }
}
