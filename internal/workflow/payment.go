package workflow

import (
	"context"
	"fmt"
	"strings"

	"orderflow/internal/domain/orders"
	"orderflow/internal/ports"
)

// SimulatedPayments is the deterministic stand-in for a payment gateway. It
// declines when the amount is not positive, the payment method is missing, or
// the order id contains the failure marker, so the state machine is testable
// without payment infrastructure.
type SimulatedPayments struct {
	FailureMarker string
}

var _ ports.PaymentProcessor = (*SimulatedPayments)(nil)

// NewSimulatedPayments builds the simulator with the given forced-failure marker.
func NewSimulatedPayments(failureMarker string) *SimulatedPayments {
	return &SimulatedPayments{FailureMarker: failureMarker}
}

// Process charges the order, or reports ErrPaymentDeclined with a reason.
func (p *SimulatedPayments) Process(_ context.Context, o *orders.Order) error {
	if o.TotalAmount.Sign() <= 0 {
		return fmt.Errorf("%w: non-positive amount %s", ports.ErrPaymentDeclined, o.TotalAmount)
	}
	if o.PaymentMethod == nil || *o.PaymentMethod == "" {
		return fmt.Errorf("%w: no payment method on order %s", ports.ErrPaymentDeclined, o.ID)
	}
	if p.FailureMarker != "" && strings.Contains(o.ID, p.FailureMarker) {
		return fmt.Errorf("%w: forced failure marker in order id %s", ports.ErrPaymentDeclined, o.ID)
	}
	return nil
}
