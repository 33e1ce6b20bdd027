package dispatchworker

import (
	"context"
	"time"

	"orderflow/internal/ports"
	"orderflow/internal/shared/logger"
)

// WorkerService manages worker registration, heartbeats, and graceful offline.
type WorkerService struct {
	uow     ports.UnitOfWork
	workers ports.WorkerRegistry
	logger  *logger.Logger
}

var _ ports.WorkerService = (*WorkerService)(nil)

// NewWorkerService creates the worker lifecycle service.
func NewWorkerService(uow ports.UnitOfWork, workers ports.WorkerRegistry, logger *logger.Logger) *WorkerService {
	return &WorkerService{uow: uow, workers: workers, logger: logger}
}

// RegisterOrExit registers the worker as online. ok=false means another
// worker with the same name is already online and this process should stop.
func (service *WorkerService) RegisterOrExit(ctx context.Context, name, channels string) (bool, error) {
	var ok bool
	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		ok, err = service.workers.RegisterOnline(txCtx, name, channels)
		return err
	})
	if err != nil {
		service.logger.Error(ctx, "worker_registration_failed", "Failed to register worker", err)
		return false, err
	}
	if !ok {
		service.logger.Error(ctx, "worker_duplicate", "Worker name already online", nil)
	}
	return ok, nil
}

// Heartbeat refreshes the worker's last_seen timestamp.
func (service *WorkerService) Heartbeat(ctx context.Context, name string) error {
	return service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		return service.workers.Heartbeat(txCtx, name, time.Now().UTC())
	})
}

// GracefulOffline marks the worker offline during shutdown.
func (service *WorkerService) GracefulOffline(ctx context.Context, name string) error {
	return service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		return service.workers.MarkOffline(txCtx, name)
	})
}

// RecordProcessed increments the worker's processed counter.
func (service *WorkerService) RecordProcessed(ctx context.Context, name string) error {
	return service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		return service.workers.IncrementProcessed(txCtx, name)
	})
}
