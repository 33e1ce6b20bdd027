package dispatchworker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rabbitmq/amqp091-go"

	service "orderflow/internal/app/dispatchworker"
	"orderflow/internal/shared/contracts"
	"orderflow/internal/shared/logger"
	"orderflow/internal/shared/rabbitmq"
)

// channelClasses is the canonical ordering of dispatch channel classes.
var channelClasses = []string{"escalation", "atrisk", "urgent", "express", "standard", "bulk", "fallback"}

// normalizeChannels returns a canonical CSV of channel classes this worker
// consumes. Empty or all-invalid input means all classes.
func normalizeChannels(channels *string) string {
	allowed := map[string]struct{}{}
	for _, c := range channelClasses {
		allowed[c] = struct{}{}
	}

	render := func(have map[string]bool) string {
		var out []string
		for _, c := range channelClasses {
			if have[c] {
				out = append(out, c)
			}
		}
		return strings.Join(out, ",")
	}

	all := map[string]bool{}
	for _, c := range channelClasses {
		all[c] = true
	}

	if channels == nil || strings.TrimSpace(*channels) == "" {
		return render(all)
	}

	have := map[string]bool{}
	for _, p := range strings.Split(*channels, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if _, ok := allowed[p]; ok {
			have[p] = true
		}
	}

	if len(have) == 0 {
		return render(all)
	}
	return render(have)
}

// consumeLoop (re)subscribes to the dispatch queue and handles deliveries
// until ctx is cancelled.
func consumeLoop(
	ctx context.Context,
	log *logger.Logger,
	rmq *rabbitmq.Client,
	processor *service.Processor,
	workerName, channelsCSV string,
	prefetch int,
) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}

		ch, err := rmq.NewConsumerChannel(prefetch)
		if err != nil {
			log.Error(ctx, "rabbitmq_channel_failed", "Failed to open consumer channel", err)
			if !sleepWithContext(ctx, backoff) {
				return
			}
			backoff = growBackoff(backoff)
			continue
		}

		consumerTag := "dispatch-" + workerName
		deliveries, err := ch.Consume(rabbitmq.DispatchQueue, consumerTag, false, false, false, false, nil)
		if err != nil {
			_ = ch.Close()
			log.Error(ctx, "rabbitmq_consume_failed", "Failed to start consuming", err)
			if !sleepWithContext(ctx, backoff) {
				return
			}
			backoff = growBackoff(backoff)
			continue
		}

		// reset backoff after a successful subscribe
		backoff = time.Second

	read:
		for {
			select {
			case <-ctx.Done():
				// stop consuming and let the broker requeue any in-flight
				_ = ch.Cancel(consumerTag, false)
				_ = ch.Close()
				return
			case d, ok := <-deliveries:
				if !ok {
					// channel closed (connection lost or server-side cancel) -> resubscribe
					_ = ch.Close()
					if !sleepWithContext(ctx, backoff) {
						return
					}
					backoff = growBackoff(backoff)
					break read
				}
				handleDelivery(ctx, log, processor, workerName, channelsCSV, d)
			}
		}
	}
}

// handleDelivery decodes, processes and acks/nacks a single message.
func handleDelivery(
	ctx context.Context,
	log *logger.Logger,
	processor *service.Processor,
	workerName, channelsCSV string,
	d amqp091.Delivery,
) {
	var msg contracts.OrderEventMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		log.Error(ctx, "message_decode_failed", "Failed to decode lifecycle event", err)
		_ = d.Nack(false, false) // DLX for unrecoverable malformed JSON
		return
	}

	err := processor.Process(ctx, workerName, channelsCSV, d.RoutingKey, msg)
	if err == nil {
		_ = d.Ack(false)
		return
	}

	switch {
	case errors.Is(err, service.ErrUnsupportedChannel):
		log.Debug(ctx, "unsupported_channel",
			"Nack with requeue (channel not consumed by this worker)",
			map[string]any{"order_id": msg.Order.OrderID, "channel": d.RoutingKey})
		_ = d.Nack(false, true) // requeue for a worker covering this class
	case service.IsRetryable(err):
		log.Error(ctx, "processing_retryable", "Processing failed; requeuing for retry", err)
		_ = d.Nack(false, true)
	default:
		log.Error(ctx, "processing_failed", "Processing failed; nacking to DLX", err)
		_ = d.Nack(false, false)
	}
}

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

func growBackoff(curr time.Duration) time.Duration {
	if curr >= 30*time.Second {
		return 30 * time.Second
	}
	return curr * 2
}
