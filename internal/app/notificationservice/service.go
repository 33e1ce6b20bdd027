package notificationservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"orderflow/internal/shared/contracts"
	"orderflow/internal/shared/logger"
	"orderflow/internal/shared/rabbitmq"
)

// ConsumeForever continuously (re)creates a channel and consumes the durable
// status updates queue, printing human-readable notification lines.
func ConsumeForever(ctx context.Context, rmq *rabbitmq.Client, logger *logger.Logger) {
	const (
		prefetch       = 50
		retryBaseDelay = time.Second
		retryMaxDelay  = 30 * time.Second
		consumerName   = "" // let the server generate a unique consumer tag
	)

	backoff := retryBaseDelay
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ch, err := rmq.NewConsumerChannel(prefetch)
		if err != nil {
			logger.Error(ctx, "rabbitmq_channel_open_failed", "Failed to open consumer channel", err)
			if !sleepWithContext(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, retryMaxDelay)
			continue
		}

		// reset backoff on successful channel creation
		backoff = retryBaseDelay

		deliveries, err := ch.Consume(rabbitmq.StatusQueue, consumerName, false, false, false, false, nil)
		if err != nil {
			_ = ch.Close()
			logger.Error(ctx, "rabbitmq_consume_failed", "Failed to start consuming notifications", err)
			if !sleepWithContext(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, retryMaxDelay)
			continue
		}

		closed := ch.NotifyClose(make(chan *amqp.Error, 1))

	consumption:
		for {
			select {
			case <-ctx.Done():
				_ = ch.Close()
				break consumption

			case amqpErr := <-closed:
				if amqpErr != nil {
					logger.Error(ctx, "rabbitmq_channel_closed", "Consumer channel closed", amqpErr)
				} else {
					logger.Error(ctx, "rabbitmq_channel_closed", "Consumer channel closed", errors.New("unknown channel close"))
				}
				break consumption

			case d, ok := <-deliveries:
				if !ok {
					logger.Error(ctx, "rabbitmq_deliveries_closed", "Deliveries channel closed", errors.New("deliveries channel closed"))
					break consumption
				}

				handleDelivery(ctx, logger, d)
			}
		}

		// small delay before attempting to recreate channel (avoid hot loop)
		if !sleepWithContext(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff, retryMaxDelay)
	}
}

// handleDelivery parses one fanout message and prints/acknowledges it. The
// status exchange carries two shapes: status updates and high-value event
// notifications; the event-type header tells them apart.
func handleDelivery(ctx context.Context, logger *logger.Logger, d amqp.Delivery) {
	if et, ok := d.Headers[contracts.HeaderEventType].(string); ok && et != "" {
		var ev contracts.OrderEventMessage
		if err := json.Unmarshal(d.Body, &ev); err != nil {
			logger.Error(ctx, "notification_decode_failed", "Failed to decode event notification JSON", err)
			// malformed JSON cannot be recovered by redelivery - ack to drop it
			_ = d.Ack(false)
			return
		}

		logger.Debug(ctx, "notification_received", "Received event notification", map[string]any{
			"order_id":   ev.Order.OrderID,
			"event_type": ev.EventType,
		})
		fmt.Println(renderEvent(ev))

		if err := d.Ack(false); err != nil {
			logger.Error(ctx, "rabbitmq_ack_failed", "Failed to ack notification message", err)
		}
		return
	}

	var update contracts.StatusUpdateMessage
	if err := json.Unmarshal(d.Body, &update); err != nil {
		logger.Error(ctx, "notification_decode_failed", "Failed to decode status update JSON", err)
		_ = d.Ack(false)
		return
	}

	logger.Debug(ctx, "notification_received", "Received status update", map[string]any{
		"order_id":   update.OrderID,
		"old_status": update.OldStatus,
		"new_status": update.NewStatus,
		"changed_by": update.ChangedBy,
	})
	fmt.Println(renderHuman(update))

	if err := d.Ack(false); err != nil {
		logger.Error(ctx, "rabbitmq_ack_failed", "Failed to ack notification message", err)
	}
}

// renderHuman formats a status change as a single readable line.
func renderHuman(update contracts.StatusUpdateMessage) string {
	if update.Reason != nil && *update.Reason != "" {
		return fmt.Sprintf(
			"Notification for order %s: status changed from '%s' to '%s' by %s (%s).",
			update.OrderID, update.OldStatus, update.NewStatus, update.ChangedBy, *update.Reason,
		)
	}

	return fmt.Sprintf(
		"Notification for order %s: status changed from '%s' to '%s' by %s.",
		update.OrderID, update.OldStatus, update.NewStatus, update.ChangedBy,
	)
}

// renderEvent formats a lifecycle event notification (e.g. high-value orders).
func renderEvent(ev contracts.OrderEventMessage) string {
	return fmt.Sprintf(
		"Notification for order %s: %s (amount %.2f) at %s.",
		ev.Order.OrderID, ev.EventType, ev.Order.TotalAmount, ev.Timestamp.UTC().Format(time.RFC3339),
	)
}

// Helpers

// sleepWithContext sleeps for the given duration or returns early if ctx is done.
func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// nextBackoff calculates the next backoff duration with exponential growth capped at max.
func nextBackoff(curr, max time.Duration) time.Duration {
	n := curr * 2
	if n > max {
		return max
	}
	return n
}
