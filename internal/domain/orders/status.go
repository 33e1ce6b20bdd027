package orders

import "fmt"

// OrderStatus is a custom type that represents the current status of an order in its lifecycle.
type OrderStatus string

const (
	StatusPending     OrderStatus = "PENDING"
	StatusConfirmed   OrderStatus = "CONFIRMED"
	StatusBackordered OrderStatus = "BACKORDERED"
	StatusPaid        OrderStatus = "PAID"
	StatusProcessing  OrderStatus = "PROCESSING"
	StatusShipped     OrderStatus = "SHIPPED"
	StatusDelivered   OrderStatus = "DELIVERED"
	StatusCancelled   OrderStatus = "CANCELLED"
	StatusRefunded    OrderStatus = "REFUNDED"
)

// allowed holds the legal state transitions. PENDING is the initial state;
// DELIVERED, CANCELLED and REFUNDED are terminal. REFUNDED is reserved for the
// external refund processor and is never a target of a workflow transition.
var allowed = map[OrderStatus]map[OrderStatus]bool{
	StatusPending:     {StatusConfirmed: true, StatusCancelled: true, StatusBackordered: true},
	StatusConfirmed:   {StatusPaid: true, StatusCancelled: true},
	StatusPaid:        {StatusProcessing: true, StatusCancelled: true},
	StatusProcessing:  {StatusShipped: true, StatusCancelled: true},
	StatusShipped:     {StatusDelivered: true},
	StatusBackordered: {StatusConfirmed: true, StatusCancelled: true},
	StatusDelivered:   {},
	StatusCancelled:   {},
	StatusRefunded:    {},
}

// CanTransition checks if from->to is allowed.
func CanTransition(from, to OrderStatus) bool {
	nexts := allowed[from]
	return nexts != nil && nexts[to]
}

// IsTerminal reports whether no further transition may leave the given status.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled || s == StatusRefunded
}

// Valid reports whether the status is a member of the declared enum.
func (s OrderStatus) Valid() bool {
	_, ok := allowed[s]
	return ok
}

// InvalidTransitionError reports an attempt to move an order between two
// states that are not connected in the lifecycle table. It indicates an
// ordering bug on the caller's side and is never retried.
type InvalidTransitionError struct {
	OrderID string
	From    OrderStatus
	To      OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %s: illegal transition %s -> %s", e.OrderID, e.From, e.To)
}

// ValidationError reports structurally invalid input. It is surfaced to the
// caller immediately and never retried.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 0 {
		return "validation failed"
	}
	return "validation failed: " + e.Problems[0]
}
