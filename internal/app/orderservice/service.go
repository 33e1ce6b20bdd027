package orderservice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/govalues/decimal"

	"orderflow/internal/domain/orders"
	"orderflow/internal/ports"
	"orderflow/internal/shared/contracts"
	"orderflow/internal/shared/logger"
	"orderflow/internal/shared/validate"
	"orderflow/internal/workflow"
)

// Service implements ports.IntakeService on top of the workflow orchestrator.
type Service struct {
	flow   *workflow.Orchestrator
	logger *logger.Logger
}

var _ ports.IntakeService = (*Service)(nil)

// New creates the intake service.
func New(flow *workflow.Orchestrator, logger *logger.Logger) *Service {
	return &Service{flow: flow, logger: logger}
}

// PlaceOrder validates input, builds the domain aggregate, and creates the
// order through the orchestrator (which performs structural validation,
// stores it as PENDING and dispatches the creation event).
func (service *Service) PlaceOrder(ctx context.Context, cmd ports.CreateOrderCommand) (ports.OrderPlaced, error) {
	if len(cmd.Items) < 1 || len(cmd.Items) > 100 {
		return ports.OrderPlaced{}, errors.New("order must contain between 1 and 100 items")
	}

	cmd.OrderID = strings.TrimSpace(cmd.OrderID)
	cmd.CustomerID = strings.TrimSpace(cmd.CustomerID)
	if !validate.ValidID(cmd.OrderID) {
		return ports.OrderPlaced{}, errors.New("order_id must match [A-Za-z0-9-]+")
	}
	if !validate.ValidID(cmd.CustomerID) {
		return ports.OrderPlaced{}, errors.New("customer_id must match [A-Za-z0-9-]+")
	}
	if cmd.CustomerEmail != "" && !validate.ValidEmail(cmd.CustomerEmail) {
		return ports.OrderPlaced{}, errors.New("customer_email is not a valid address")
	}

	order := &orders.Order{
		ID:         cmd.OrderID,
		CustomerID: cmd.CustomerID,
		Tier:       cmd.Priority,
		Notes:      cmd.Notes,
	}
	if cmd.DeliveryAddress != nil {
		addr := strings.TrimSpace(*cmd.DeliveryAddress)
		order.DeliveryAddress = &addr
	}
	if cmd.PaymentMethod != nil {
		pm := strings.TrimSpace(*cmd.PaymentMethod)
		order.PaymentMethod = &pm
	}

	order.Items = make([]orders.OrderItem, len(cmd.Items))
	for i, item := range cmd.Items {
		price, err := decimal.NewFromFloat64(item.UnitPrice)
		if err != nil {
			return ports.OrderPlaced{}, fmt.Errorf("item %d unit_price is not a valid amount: %w", i+1, err)
		}
		if item.Quantity < 1 {
			return ports.OrderPlaced{}, fmt.Errorf("item %d quantity must be >= 1", i+1)
		}
		order.Items[i] = orders.OrderItem{
			ProductID: strings.TrimSpace(item.ProductID),
			Quantity:  item.Quantity,
			UnitPrice: price,
		}
	}

	// the total is always derived, never accepted from the client
	if err := order.SumItems(); err != nil {
		return ports.OrderPlaced{}, fmt.Errorf("compute order total: %w", err)
	}

	headers := map[string]string{}
	if cmd.CustomerClass != "" {
		headers[contracts.HeaderCustomerClass] = cmd.CustomerClass
	}

	_, channel, err := service.flow.CreateOrder(ctx, order, headers)
	if err != nil {
		return ports.OrderPlaced{}, err
	}

	service.logger.Info(ctx, "order_placed", "Order accepted and dispatched", map[string]any{
		"order_id": order.ID,
		"total":    order.TotalAmount.String(),
		"channel":  channel,
	})

	return ports.OrderPlaced{
		OrderID:     order.ID,
		Status:      order.Status,
		TotalAmount: order.TotalAmount.String(),
		Tier:        order.Tier,
		Channel:     channel,
	}, nil
}
