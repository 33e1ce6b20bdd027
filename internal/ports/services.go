package ports

import (
	"context"
	"errors"
	"time"

	"orderflow/internal/domain/orders"
)

// Expected business outcomes. These drive compensating transitions instead of
// propagating as failures.
var (
	ErrPaymentDeclined     = errors.New("payment declined")
	ErrInventoryShortfall  = errors.New("inventory shortfall")
	ErrOrderNotFound       = errors.New("order not found")
	ErrOrderAlreadyExists  = errors.New("order already exists")
	ErrOrderTerminal       = errors.New("order is in a terminal state")
)

// Publisher hands a message plus headers to a named destination on the
// transport. The core treats a returned error as retryable-or-fatal and
// delegates the decision to the retry collaborator.
type Publisher interface {
	Publish(ctx context.Context, destination string, body []byte, headers map[string]any) error
}

// PaymentProcessor charges an order. A declined payment is reported as
// ErrPaymentDeclined (possibly wrapped), not as an infrastructure failure.
type PaymentProcessor interface {
	Process(ctx context.Context, o *orders.Order) error
}

// InventoryOracle answers availability per line item. Injected so tests stay
// deterministic.
type InventoryOracle interface {
	Available(ctx context.Context, item orders.OrderItem) (bool, error)
}

// StructuralValidator is consumed before creation; the core never
// re-implements structural/email/schema validation.
type StructuralValidator interface {
	ValidateOrder(o *orders.Order) (ok bool, problems []string)
}

// IntakeService handles the create-order flow on the HTTP boundary.
type IntakeService interface {
	PlaceOrder(ctx context.Context, cmd CreateOrderCommand) (OrderPlaced, error)
}

// CreateOrderCommand is the service-level input for placing an order.
type CreateOrderCommand struct {
	OrderID         string
	CustomerID      string
	CustomerEmail   string
	Priority        orders.PriorityTier
	DeliveryAddress *string
	PaymentMethod   *string
	Notes           string
	Items           []ItemInput
	CustomerClass   string // contextual header, forwarded to the scorer
}

// ItemInput is one requested line item; unit price in dollars.
type ItemInput struct {
	ProductID string
	Quantity  int
	UnitPrice float64
}

// OrderPlaced summarizes a successful creation.
type OrderPlaced struct {
	OrderID     string
	Status      orders.OrderStatus
	TotalAmount string
	Tier        orders.PriorityTier
	Channel     string
}

// TrackingService powers the read-side HTTP API.
type TrackingService interface {
	GetOrderStatus(ctx context.Context, orderID string) (*OrderStatusView, error)
	GetOrderHistory(ctx context.Context, orderID string) ([]JournalEntry, error)
	ListWorkers(ctx context.Context, offlineIfOlderThan time.Duration, now time.Time) ([]WorkerView, error)
}

// OrderStatusView is the tracking projection of an order.
type OrderStatusView struct {
	OrderID       string
	CurrentStatus orders.OrderStatus
	Tier          orders.PriorityTier
	UpdatedAt     *time.Time
	LastEvent     string
}

// WorkerView is the tracking projection of a dispatch worker.
type WorkerView struct {
	WorkerName      string
	Status          string
	OrdersProcessed int
	LastSeen        *time.Time
}

// WorkerService manages dispatch-worker lifecycle and heartbeats.
type WorkerService interface {
	RegisterOrExit(ctx context.Context, name, channels string) (ok bool, err error)
	Heartbeat(ctx context.Context, name string) error
	GracefulOffline(ctx context.Context, name string) error
}
