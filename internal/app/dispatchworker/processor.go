package dispatchworker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"orderflow/internal/domain/orders"
	"orderflow/internal/ports"
	"orderflow/internal/shared/contracts"
	"orderflow/internal/shared/logger"
	"orderflow/internal/workflow"
)

// Processor consumes lifecycle events and advances the order one step per
// delivery. Each step the orchestrator takes emits the next event, which
// routes back through the dispatch topology until the order reaches a
// terminal status.
type Processor struct {
	flow      *workflow.Orchestrator
	workerSvc *WorkerService
	logger    *logger.Logger
}

// NewProcessor creates a Processor around the orchestrator.
func NewProcessor(flow *workflow.Orchestrator, workerSvc *WorkerService, logger *logger.Logger) *Processor {
	return &Processor{flow: flow, workerSvc: workerSvc, logger: logger}
}

// Process handles a single lifecycle event delivered on the given channel
// (the message's routing key). It seeds the local store from the snapshot
// carried in the event, then advances the order.
func (p *Processor) Process(ctx context.Context, workerName, channelsCSV, channel string, msg contracts.OrderEventMessage) error {
	if !supports(channelsCSV, channel) {
		return ErrUnsupportedChannel
	}

	order, err := workflow.DecodeOrder(msg.Order)
	if err != nil {
		return fmt.Errorf("decode order snapshot: %w", err)
	}
	p.flow.Seed(order)

	ctx = p.logger.WithRequestID(ctx, msg.CorrelationID)
	headers := map[string]string{}

	advanced := true
	switch orders.EventType(msg.EventType) {
	case orders.EventOrderCreated:
		_, err = p.flow.ConfirmWithInventory(ctx, order.ID, workerName, headers)

	case orders.EventOrderConfirmed:
		_, err = p.flow.ProcessPayment(ctx, order.ID, workerName, headers)

	case orders.EventOrderPaid:
		_, err = p.flow.Transition(ctx, order.ID, orders.StatusProcessing, workerName, "", headers)

	case orders.EventOrderProcessing:
		_, err = p.flow.Transition(ctx, order.ID, orders.StatusShipped, workerName, "", headers)

	case orders.EventOrderShipped:
		_, err = p.flow.Transition(ctx, order.ID, orders.StatusDelivered, workerName, "", headers)

	case orders.EventOrderBackordered:
		// parked until restock; an operator or scheduler retries confirmation
		advanced = false

	default:
		// terminal, compensation and informational events need no advancement
		advanced = false
	}

	if err != nil {
		var invalid *orders.InvalidTransitionError
		switch {
		case errors.As(err, &invalid):
			// a stale or duplicate delivery; dropping it is safe because the
			// committed state already moved on
			p.logger.Debug(ctx, "stale_event_dropped", "Event targets an already-passed transition", map[string]any{
				"order_id": invalid.OrderID,
				"from":     string(invalid.From),
				"to":       string(invalid.To),
			})
			return nil
		case errors.Is(err, ports.ErrOrderNotFound):
			return err
		default:
			// infrastructure problems are worth another delivery
			return Retryable(err)
		}
	}

	if advanced {
		if err := p.workerSvc.RecordProcessed(ctx, workerName); err != nil {
			// counting is best effort; the order already advanced
			p.logger.Error(ctx, "processed_count_failed", "Failed to increment processed counter", err)
		}
	}
	return nil
}

// supports reports whether the worker's channel-class CSV covers the given
// dispatch channel. An empty CSV means all channels.
func supports(csv, channel string) bool {
	if strings.TrimSpace(csv) == "" {
		return true
	}

	class := channelClass(channel)
	if class == "" {
		return false
	}

	normalized := strings.ReplaceAll(csv, ", ", ",")
	for _, c := range strings.Split(normalized, ",") {
		if strings.EqualFold(strings.TrimSpace(c), class) {
			return true
		}
	}
	return false
}

// channelClass extracts the class segment from a channel name, e.g.
// "dispatch.urgent.2" -> "urgent", "dispatch.escalation.critical" -> "escalation".
func channelClass(channel string) string {
	parts := strings.Split(channel, ".")
	if len(parts) < 2 || parts[0] != "dispatch" {
		return ""
	}
	return parts[1]
}
