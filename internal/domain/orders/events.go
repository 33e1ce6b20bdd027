package orders

import (
	"time"

	"github.com/google/uuid"
)

// EventType is the closed set of lifecycle event kinds. Keeping it a typed
// constant set (instead of free-form strings) means the orchestrator's
// side-effect switch stays exhaustive and greppable.
type EventType string

const (
	EventOrderCreated     EventType = "order.created"
	EventOrderConfirmed   EventType = "order.confirmed"
	EventOrderBackordered EventType = "order.backordered"
	EventOrderPaid        EventType = "order.paid"
	EventOrderProcessing  EventType = "order.processing"
	EventOrderShipped     EventType = "order.shipped"
	EventOrderDelivered   EventType = "order.delivered"
	EventOrderCancelled   EventType = "order.cancelled"

	// Compensating / side-effect events.
	EventRefundRequested EventType = "compensation.refund"
	EventDeadLettered    EventType = "compensation.deadletter"
	EventHighValue       EventType = "notification.highvalue"
	EventAnalytics       EventType = "analytics.confirmed"
)

// EventForStatus maps a transition target onto its lifecycle event type.
func EventForStatus(target OrderStatus) EventType {
	switch target {
	case StatusConfirmed:
		return EventOrderConfirmed
	case StatusBackordered:
		return EventOrderBackordered
	case StatusPaid:
		return EventOrderPaid
	case StatusProcessing:
		return EventOrderProcessing
	case StatusShipped:
		return EventOrderShipped
	case StatusDelivered:
		return EventOrderDelivered
	case StatusCancelled:
		return EventOrderCancelled
	default:
		return EventOrderCreated
	}
}

// LifecycleEvent is produced exactly once per transition. It carries a full
// order snapshot so downstream consumers never need shared state.
type LifecycleEvent struct {
	ID            string
	Type          EventType
	CorrelationID string
	EmittedBy     string
	OccurredAt    time.Time
	Order         *Order
	Reason        string
}

// NewLifecycleEvent builds an immutable event around a snapshot of the order.
// An empty correlation id gets a fresh one.
func NewLifecycleEvent(t EventType, o *Order, emittedBy, correlationID string, now time.Time) *LifecycleEvent {
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	return &LifecycleEvent{
		ID:            uuid.NewString(),
		Type:          t,
		CorrelationID: correlationID,
		EmittedBy:     emittedBy,
		OccurredAt:    now.UTC(),
		Order:         o.Clone(),
		Reason:        "",
	}
}
