package orders

import (
	"time"

	"github.com/govalues/decimal"
)

// PriorityTier is the priority declared on an order at creation time.
type PriorityTier string

const (
	TierLow    PriorityTier = "LOW"
	TierNormal PriorityTier = "NORMAL"
	TierHigh   PriorityTier = "HIGH"
	TierUrgent PriorityTier = "URGENT"
)

// ParseTier normalizes a declared tier, falling back to NORMAL for unknown input.
func ParseTier(s string) PriorityTier {
	switch PriorityTier(s) {
	case TierLow, TierNormal, TierHigh, TierUrgent:
		return PriorityTier(s)
	default:
		return TierNormal
	}
}

// OrderItem represents a single line item. Items are immutable once the order
// is created.
type OrderItem struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Total returns quantity * unit price for the line.
func (it OrderItem) Total() (decimal.Decimal, error) {
	qty, err := decimal.New(int64(it.Quantity), 0)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return it.UnitPrice.Mul(qty)
}

// Order is the aggregate driven through the lifecycle state machine.
type Order struct {
	ID              string
	CustomerID      string
	Items           []OrderItem
	TotalAmount     decimal.Decimal
	Status          OrderStatus
	Tier            PriorityTier
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeliveryAddress *string
	PaymentMethod   *string
	Notes           string
}

// SumItems recomputes the order total from its line items. The invariant is
// TotalAmount == sum of line totals.
func (o *Order) SumItems() error {
	sum := decimal.Decimal{} // zero
	for _, it := range o.Items {
		line, err := it.Total()
		if err != nil {
			return err
		}
		sum, err = sum.Add(line)
		if err != nil {
			return err
		}
	}
	o.TotalAmount = sum
	return nil
}

// AgeMinutes returns how many minutes the order has existed at the given instant.
func (o *Order) AgeMinutes(now time.Time) float64 {
	return now.Sub(o.CreatedAt).Minutes()
}

// Clone returns a deep copy so read-only consumers never alias the stored aggregate.
func (o *Order) Clone() *Order {
	cp := *o
	cp.Items = make([]OrderItem, len(o.Items))
	copy(cp.Items, o.Items)
	if o.DeliveryAddress != nil {
		addr := *o.DeliveryAddress
		cp.DeliveryAddress = &addr
	}
	if o.PaymentMethod != nil {
		pm := *o.PaymentMethod
		cp.PaymentMethod = &pm
	}
	return &cp
}
