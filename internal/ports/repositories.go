package ports

import (
	"context"
	"time"

	"orderflow/internal/domain/orders"
	"orderflow/internal/domain/workers"
)

// UnitOfWork wraps a function in a DB transaction.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// JournalEntry is one appended lifecycle event as read back from the journal.
type JournalEntry struct {
	EventID       string
	EventType     orders.EventType
	OrderID       string
	Status        orders.OrderStatus
	CorrelationID string
	EmittedBy     string
	OccurredAt    time.Time
	Reason        *string
}

// EventJournal is the append-only record of lifecycle events. It is a
// read-model source for tracking, never the source of truth for order state.
type EventJournal interface {
	Append(ctx context.Context, ev *orders.LifecycleEvent) error
	History(ctx context.Context, orderID string) ([]JournalEntry, error)
	Latest(ctx context.Context, orderID string) (*JournalEntry, error)
}

// WorkerRegistry controls dispatch-worker registration, heartbeats and counters.
type WorkerRegistry interface {
	RegisterOnline(ctx context.Context, name, channels string) (ok bool, err error)
	MarkOffline(ctx context.Context, name string) error
	Heartbeat(ctx context.Context, name string, when time.Time) error
	IncrementProcessed(ctx context.Context, name string) error
	ListAll(ctx context.Context) ([]workers.Worker, error)
}
