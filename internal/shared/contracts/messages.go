package contracts

import "time"

// Header vocabulary carried on every published message. Names are stable;
// values are plain strings or numbers.
const (
	HeaderEventType     = "event-type"
	HeaderOrderID       = "order-id"
	HeaderCustomerID    = "customer-id"
	HeaderOrderStatus   = "order-status"
	HeaderPriority      = "priority"
	HeaderRetryCount    = "retry-count"
	HeaderFailureReason = "failure-reason"
	HeaderCustomerClass = "customer-class"
)

// OrderItemMessage is the wire format for a single line item.
type OrderItemMessage struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"` // unit price in dollars
}

// OrderPayload is the full order snapshot travelling inside lifecycle events,
// so consumers can rebuild state without a shared store.
type OrderPayload struct {
	OrderID         string             `json:"order_id"`
	CustomerID      string             `json:"customer_id"`
	Items           []OrderItemMessage `json:"items"`
	TotalAmount     float64            `json:"total_amount"`
	Status          string             `json:"status"`
	Priority        string             `json:"priority"` // LOW | NORMAL | HIGH | URGENT
	CreatedAt       time.Time          `json:"created_at"`
	DeliveryAddress *string            `json:"delivery_address"` // null when not applicable
	PaymentMethod   *string            `json:"payment_method"`   // null when not applicable
	Notes           string             `json:"notes,omitempty"`
}

// OrderEventMessage is published to the dispatch topic exchange once per
// lifecycle transition.
type OrderEventMessage struct {
	EventID       string       `json:"event_id"`
	EventType     string       `json:"event_type"`
	CorrelationID string       `json:"correlation_id"`
	EmittedBy     string       `json:"emitted_by"`
	Timestamp     time.Time    `json:"timestamp"`
	Order         OrderPayload `json:"order"`
	Reason        string       `json:"reason,omitempty"`
}

// StatusUpdateMessage is published to the status fanout exchange.
type StatusUpdateMessage struct {
	OrderID   string    `json:"order_id"`
	OldStatus string    `json:"old_status"`
	NewStatus string    `json:"new_status"`
	ChangedBy string    `json:"changed_by"`
	Timestamp time.Time `json:"timestamp"`
	Reason    *string   `json:"reason,omitempty"`
}
