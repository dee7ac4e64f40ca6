package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/referral-ledger/internal/domain/shared"
)

// WorkerPoolProcessingService bounds the number of confirmations processed at
// once. Callers block until their confirmation finishes.
type WorkerPoolProcessingService struct {
	baseService ProcessingService
	pool        *ants.Pool
	logger      *slog.Logger
}

type WorkerPoolConfig struct {
	Size int
}

var _ ProcessingService = (*WorkerPoolProcessingService)(nil)

func NewWorkerPoolProcessingService(
	baseService ProcessingService,
	config WorkerPoolConfig,
	logger *slog.Logger,
) (*WorkerPoolProcessingService, error) {
	pool, err := ants.NewPool(config.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	return &WorkerPoolProcessingService{
		baseService: baseService,
		pool:        pool,
		logger:      logger,
	}, nil
}

// ProcessPayment runs the confirmation on a pooled worker and waits for it
func (s *WorkerPoolProcessingService) ProcessPayment(ctx context.Context, confirmation *shared.PaymentConfirmation) error {
	// Buffered so a worker never blocks on a caller that gave up
	resultChan := make(chan error, 1)
	req := *confirmation

	err := s.pool.Submit(func() {
		resultChan <- s.baseService.ProcessPayment(ctx, &req)
	})
	if err != nil {
		s.logger.Error("Failed to submit payment confirmation to worker pool",
			"session_id", confirmation.SessionID,
			"error", err,
		)
		return fmt.Errorf("failed to submit session %s to worker pool: %w", confirmation.SessionID, err)
	}

	select {
	case err := <-resultChan:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown releases the pool, waiting up to timeout for running workers
func (s *WorkerPoolProcessingService) Shutdown(timeout time.Duration) {
	s.logger.Info("Shutting down worker pool", "running_workers", s.pool.Running())
	if err := s.pool.ReleaseTimeout(timeout); err != nil {
		s.logger.Warn("Worker pool did not drain before timeout", "error", err)
	}
}

func (s *WorkerPoolProcessingService) Running() int {
	return s.pool.Running()
}

func (s *WorkerPoolProcessingService) Capacity() int {
	return s.pool.Cap()
}
