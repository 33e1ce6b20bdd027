package workflow

import (
	"context"

	"orderflow/internal/domain/orders"
	"orderflow/internal/ports"
)

// StaticInventory is a deterministic inventory oracle: every product is
// available unless listed as out of stock.
type StaticInventory struct {
	OutOfStock map[string]bool
}

var _ ports.InventoryOracle = (*StaticInventory)(nil)

// AlwaysAvailable returns an oracle that never reports a shortfall.
func AlwaysAvailable() *StaticInventory {
	return &StaticInventory{}
}

// Available reports per-item availability.
func (s *StaticInventory) Available(_ context.Context, item orders.OrderItem) (bool, error) {
	if s.OutOfStock == nil {
		return true, nil
	}
	return !s.OutOfStock[item.ProductID], nil
}
