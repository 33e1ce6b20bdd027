package trackingservice

import (
	"context"
	"time"

	"orderflow/internal/ports"
	"orderflow/internal/shared/logger"
)

// Service implements ports.TrackingService as a pure read side over the event
// journal and the worker registry.
type Service struct {
	uow     ports.UnitOfWork
	journal ports.EventJournal
	workers ports.WorkerRegistry
	logger  *logger.Logger
}

var _ ports.TrackingService = (*Service)(nil)

// NewService creates the tracking read service.
func NewService(uow ports.UnitOfWork, journal ports.EventJournal, workers ports.WorkerRegistry, logger *logger.Logger) *Service {
	return &Service{
		uow:     uow,
		journal: journal,
		workers: workers,
		logger:  logger,
	}
}

// GetOrderStatus projects the order's current status from its latest
// journal entry.
func (service *Service) GetOrderStatus(ctx context.Context, orderID string) (*ports.OrderStatusView, error) {
	var out *ports.OrderStatusView
	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		latest, err := service.journal.Latest(txCtx, orderID)
		if err != nil {
			return err
		}

		at := latest.OccurredAt
		out = &ports.OrderStatusView{
			OrderID:       latest.OrderID,
			CurrentStatus: latest.Status,
			UpdatedAt:     &at,
			LastEvent:     string(latest.EventType),
		}
		return nil
	})
	if err != nil {
		service.logger.Error(ctx, "db_query_failed", "Failed to project order status", err)
		return nil, err
	}
	return out, nil
}

// GetOrderHistory returns the full lifecycle event history, oldest first.
func (service *Service) GetOrderHistory(ctx context.Context, orderID string) ([]ports.JournalEntry, error) {
	var hist []ports.JournalEntry
	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		hist, err = service.journal.History(txCtx, orderID)
		return err
	})
	if err != nil {
		service.logger.Error(ctx, "db_query_failed", "Failed to list order history", err)
		return nil, err
	}
	return hist, nil
}

// ListWorkers returns all registered workers, deriving offline status for
// anyone whose last heartbeat is older than the threshold.
func (service *Service) ListWorkers(ctx context.Context, offlineIfOlderThan time.Duration, now time.Time) ([]ports.WorkerView, error) {
	var views []ports.WorkerView
	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		all, err := service.workers.ListAll(txCtx)
		if err != nil {
			return err
		}

		for i := range all {
			worker := all[i]
			derived := string(worker.Status)
			if now.Sub(worker.LastSeen) > offlineIfOlderThan {
				derived = "offline"
			}

			last := worker.LastSeen
			views = append(views, ports.WorkerView{
				WorkerName:      worker.Name,
				Status:          derived,
				OrdersProcessed: worker.OrdersProcessed,
				LastSeen:        &last,
			})
		}
		return nil
	})
	if err != nil {
		service.logger.Error(ctx, "db_query_failed", "Failed to list workers", err)
		return nil, err
	}
	return views, nil
}
