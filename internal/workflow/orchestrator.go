// Package workflow drives orders through the lifecycle state machine. The
// orchestrator owns the in-memory order store, validates transitions, asks
// the priority scorer and SLA evaluator for a classification, picks a
// destination via the dispatch selector, and hands the event to the transport
// collaborator. Failures route to compensating actions instead of escaping
// the orchestrator boundary.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/govalues/decimal"

	"orderflow/internal/dispatch"
	"orderflow/internal/domain/orders"
	"orderflow/internal/ports"
	"orderflow/internal/priority"
	"orderflow/internal/shared/contracts"
	"orderflow/internal/shared/logger"
	"orderflow/internal/shared/metrics"
	"orderflow/internal/shared/retry"
	"orderflow/internal/sla"
)

// StatusUpdateDestination is the logical destination for status notifications
// (a fanout exchange on the AMQP transport, so the name is informational).
const StatusUpdateDestination = "status.update"

// Config wires the orchestrator's collaborators. Selector, Dispatcher and
// Validator are required; the rest default to safe no-ops or simulators.
type Config struct {
	Selector   *dispatch.Selector
	Dispatcher ports.Publisher
	Notifier   ports.Publisher
	Validator  ports.StructuralValidator
	Payments   ports.PaymentProcessor
	Inventory  ports.InventoryOracle
	Journal    ports.EventJournal
	Metrics    *metrics.Metrics
	Logger     *logger.Logger
	Retry      retry.Config

	// Orders entering PAID above this amount trigger a high-value notification.
	HighValueThreshold decimal.Decimal
	// EmittedBy names this service in lifecycle events.
	EmittedBy string
	// Now is the clock seam; defaults to time.Now.
	Now func() time.Time
}

// Orchestrator is safe for concurrent use: scoring and evaluation are pure,
// and the store serializes writers per order id.
type Orchestrator struct {
	store      *Store
	selector   *dispatch.Selector
	dispatcher ports.Publisher
	notifier   ports.Publisher
	validator  ports.StructuralValidator
	payments   ports.PaymentProcessor
	inventory  ports.InventoryOracle
	journal    ports.EventJournal
	metrics    *metrics.Metrics
	logger     *logger.Logger
	retryCfg   retry.Config
	highValue  decimal.Decimal
	emitter    string
	now        func() time.Time
}

// New builds an orchestrator around an empty store.
func New(cfg Config) *Orchestrator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.EmittedBy == "" {
		cfg.EmittedBy = "workflow"
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.New(cfg.EmittedBy)
	}
	if cfg.Payments == nil {
		cfg.Payments = NewSimulatedPayments("FAIL-PAYMENT")
	}
	if cfg.Inventory == nil {
		cfg.Inventory = AlwaysAvailable()
	}
	if cfg.Retry == (retry.Config{}) {
		cfg.Retry = retry.DefaultConfig()
	}
	return &Orchestrator{
		store:      NewStore(),
		selector:   cfg.Selector,
		dispatcher: cfg.Dispatcher,
		notifier:   cfg.Notifier,
		validator:  cfg.Validator,
		payments:   cfg.Payments,
		inventory:  cfg.Inventory,
		journal:    cfg.Journal,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		retryCfg:   cfg.Retry,
		highValue:  cfg.HighValueThreshold,
		emitter:    cfg.EmittedBy,
		now:        cfg.Now,
	}
}

// Get returns a copy of the order.
func (oc *Orchestrator) Get(_ context.Context, id string) (*orders.Order, error) {
	return oc.store.Get(id)
}

// Seed makes an order known to this process without emitting anything.
// Dispatch workers call it with the snapshot carried in a consumed event.
func (oc *Orchestrator) Seed(o *orders.Order) {
	oc.store.Seed(o)
}

// CreateOrder validates the order via the structural collaborator, stores it
// as PENDING, and dispatches the order.created event. The returned channel is
// the destination the event was handed to.
func (oc *Orchestrator) CreateOrder(ctx context.Context, o *orders.Order, headers map[string]string) (*orders.LifecycleEvent, string, error) {
	if ok, problems := oc.validator.ValidateOrder(o); !ok {
		return nil, "", &orders.ValidationError{Problems: problems}
	}

	now := oc.now().UTC()
	o.Status = orders.StatusPending
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	if o.Tier == "" {
		o.Tier = orders.TierNormal
	}

	if err := oc.store.Put(o); err != nil {
		return nil, "", err
	}

	ev := orders.NewLifecycleEvent(orders.EventOrderCreated, o, oc.emitter, logger.RequestID(ctx), now)
	oc.countTransition(orders.StatusPending)
	oc.journalAppend(ctx, ev)
	channel := oc.dispatchEvent(ctx, ev, headers)
	return ev, channel, nil
}

// Transition moves an order to the target status if the lifecycle table
// allows it, emits exactly one lifecycle event, performs the transition's
// side effects, and dispatches the event. An illegal pair fails with
// *orders.InvalidTransitionError and leaves the order untouched.
func (oc *Orchestrator) Transition(ctx context.Context, orderID string, target orders.OrderStatus, actor, reason string, headers map[string]string) (*orders.LifecycleEvent, error) {
	var (
		ev   *orders.LifecycleEvent
		from orders.OrderStatus
	)

	updated, err := oc.store.Update(orderID, func(o *orders.Order) error {
		if !orders.CanTransition(o.Status, target) {
			return &orders.InvalidTransitionError{OrderID: o.ID, From: o.Status, To: target}
		}
		from = o.Status
		o.Status = target
		o.UpdatedAt = oc.now().UTC()
		ev = orders.NewLifecycleEvent(orders.EventForStatus(target), o, oc.emitter, logger.RequestID(ctx), oc.now())
		ev.Reason = reason
		return nil
	})
	if err != nil {
		return nil, err
	}

	oc.countTransition(target)
	oc.journalAppend(ctx, ev)
	oc.sideEffects(ctx, from, target, updated, ev)
	oc.dispatchEvent(ctx, ev, headers)
	oc.publishStatusUpdate(ctx, updated.ID, from, target, actor, reason)
	return ev, nil
}

// ConfirmWithInventory checks every line item against the inventory oracle
// and confirms the order, or backorders it on a shortfall. A shortfall is a
// business outcome, not an error. Works from PENDING and from BACKORDERED
// (restock retry).
func (oc *Orchestrator) ConfirmWithInventory(ctx context.Context, orderID, actor string, headers map[string]string) (*orders.LifecycleEvent, error) {
	o, err := oc.store.Get(orderID)
	if err != nil {
		return nil, err
	}

	var missing []string
	for _, it := range o.Items {
		ok, err := oc.inventory.Available(ctx, it)
		if err != nil {
			return nil, fmt.Errorf("inventory check for %s: %w", it.ProductID, err)
		}
		if !ok {
			missing = append(missing, it.ProductID)
		}
	}

	if len(missing) == 0 {
		return oc.Transition(ctx, orderID, orders.StatusConfirmed, actor, "", headers)
	}

	reason := fmt.Sprintf("%v: %s", ports.ErrInventoryShortfall, strings.Join(missing, ","))
	oc.countCompensation("backorder")
	return oc.Transition(ctx, orderID, orders.StatusBackordered, actor, reason, headers)
}

// ProcessPayment charges the order and moves it to PAID, or cancels it with
// the decline reason (a compensating transition, not an error). Only
// infrastructure failures propagate.
func (oc *Orchestrator) ProcessPayment(ctx context.Context, orderID, actor string, headers map[string]string) (*orders.LifecycleEvent, error) {
	o, err := oc.store.Get(orderID)
	if err != nil {
		return nil, err
	}

	err = oc.payments.Process(ctx, o)
	switch {
	case err == nil:
		return oc.Transition(ctx, orderID, orders.StatusPaid, actor, "", headers)
	case errors.Is(err, ports.ErrPaymentDeclined):
		oc.countCompensation("payment-rejection")
		return oc.Transition(ctx, orderID, orders.StatusCancelled, actor, err.Error(), headers)
	default:
		return nil, fmt.Errorf("payment processing: %w", err)
	}
}

// --- internals ---

// sideEffects fires the transition-triggered actions: refund compensation on
// CANCELLED-from-PAID, an analytics signal on CONFIRMED, and a high-value
// notification on PAID above the threshold.
func (oc *Orchestrator) sideEffects(ctx context.Context, from, to orders.OrderStatus, o *orders.Order, cause *orders.LifecycleEvent) {
	switch {
	case to == orders.StatusCancelled && from == orders.StatusPaid:
		refund := orders.NewLifecycleEvent(orders.EventRefundRequested, o, oc.emitter, cause.CorrelationID, oc.now())
		refund.Reason = "order cancelled after payment"
		oc.journalAppend(ctx, refund)
		oc.countCompensation("refund")
		oc.logger.Info(ctx, "refund_requested", "Refund compensation signalled", map[string]any{
			"order_id": o.ID, "amount": o.TotalAmount.String(),
		})

	case to == orders.StatusConfirmed:
		analytics := orders.NewLifecycleEvent(orders.EventAnalytics, o, oc.emitter, cause.CorrelationID, oc.now())
		oc.journalAppend(ctx, analytics)
		oc.logger.Debug(ctx, "analytics_signalled", "Order confirmation recorded for analytics", map[string]any{
			"order_id": o.ID,
		})

	case to == orders.StatusPaid && oc.highValue.Sign() > 0 && o.TotalAmount.Cmp(oc.highValue) > 0:
		hv := orders.NewLifecycleEvent(orders.EventHighValue, o, oc.emitter, cause.CorrelationID, oc.now())
		hv.Reason = fmt.Sprintf("amount %s above high-value threshold %s", o.TotalAmount, oc.highValue)
		oc.journalAppend(ctx, hv)
		oc.notify(ctx, hv)
		oc.logger.Info(ctx, "high_value_order", "High-value order paid", map[string]any{
			"order_id": o.ID, "amount": o.TotalAmount.String(),
		})
	}
}

// dispatchEvent classifies the order, selects a destination channel, and
// hands the event to the transport with retry. Exhausted retries become a
// dead-letter compensating action; the caller never sees a transport error.
func (oc *Orchestrator) dispatchEvent(ctx context.Context, ev *orders.LifecycleEvent, ctxHeaders map[string]string) string {
	now := oc.now()
	cls := priority.Score(ev.Order, ctxHeaders, now)
	assess := sla.Assess(ev.Order, now)
	if assess.Level != sla.EscalationNone {
		oc.countEscalation(assess.Level)
	}

	channel := oc.selector.Select(ev.Order, cls, assess)

	body, err := json.Marshal(encodeEvent(ev))
	if err != nil {
		// Marshalling our own structs should never fail; treat as dead-letter.
		oc.compensateDeadLetter(ctx, ev, channel, err)
		return channel
	}

	headers := map[string]any{
		contracts.HeaderEventType:   string(ev.Type),
		contracts.HeaderOrderID:     ev.Order.ID,
		contracts.HeaderCustomerID:  ev.Order.CustomerID,
		contracts.HeaderOrderStatus: string(ev.Order.Status),
		contracts.HeaderPriority:    string(cls.Tier),
	}
	if ev.Reason != "" {
		headers[contracts.HeaderFailureReason] = ev.Reason
	}
	if class, ok := ctxHeaders[contracts.HeaderCustomerClass]; ok {
		headers[contracts.HeaderCustomerClass] = class
	}

	attempt := 0
	err = retry.Do(ctx, oc.retryCfg, func() error {
		headers[contracts.HeaderRetryCount] = attempt
		attempt++
		return oc.dispatcher.Publish(ctx, channel, body, headers)
	})
	if attempt > 1 && oc.metrics != nil {
		oc.metrics.PublishRetries.Inc()
	}
	if err != nil {
		oc.compensateDeadLetter(ctx, ev, channel, err)
		return channel
	}

	oc.countDispatch(channel)
	oc.logger.Debug(ctx, "event_dispatched", "Lifecycle event handed to transport", map[string]any{
		"order_id": ev.Order.ID,
		"event":    string(ev.Type),
		"channel":  channel,
		"score":    cls.Score,
		"tier":     string(cls.Tier),
		"risk":     string(assess.Risk),
	})
	return channel
}

// compensateDeadLetter records that the transport gave up on an event. The
// order keeps its (already committed) state; the event is preserved in the
// journal for replay.
func (oc *Orchestrator) compensateDeadLetter(ctx context.Context, ev *orders.LifecycleEvent, channel string, cause error) {
	dead := orders.NewLifecycleEvent(orders.EventDeadLettered, ev.Order, oc.emitter, ev.CorrelationID, oc.now())
	dead.Reason = fmt.Sprintf("publish to %s failed: %v", channel, cause)
	oc.journalAppend(ctx, dead)
	oc.countCompensation("deadletter")
	oc.logger.Error(ctx, "dispatch_dead_lettered", "Transport hand-off exhausted retries", cause)
}

func (oc *Orchestrator) publishStatusUpdate(ctx context.Context, orderID string, from, to orders.OrderStatus, actor, reason string) {
	if oc.notifier == nil {
		return
	}
	msg := contracts.StatusUpdateMessage{
		OrderID:   orderID,
		OldStatus: string(from),
		NewStatus: string(to),
		ChangedBy: actor,
		Timestamp: oc.now().UTC(),
	}
	if reason != "" {
		msg.Reason = &reason
	}
	body, err := json.Marshal(msg)
	if err != nil {
		oc.logger.Error(ctx, "status_encode_failed", "Failed to encode status update", err)
		return
	}
	headers := map[string]any{
		contracts.HeaderOrderID:     orderID,
		contracts.HeaderOrderStatus: string(to),
	}
	// Best effort: the transition is already committed.
	if err := oc.notifier.Publish(ctx, StatusUpdateDestination, body, headers); err != nil {
		oc.logger.Error(ctx, "status_publish_failed", "Failed to publish status update", err)
	}
}

func (oc *Orchestrator) notify(ctx context.Context, ev *orders.LifecycleEvent) {
	if oc.notifier == nil {
		return
	}
	body, err := json.Marshal(encodeEvent(ev))
	if err != nil {
		oc.logger.Error(ctx, "notify_encode_failed", "Failed to encode notification event", err)
		return
	}
	headers := map[string]any{
		contracts.HeaderEventType: string(ev.Type),
		contracts.HeaderOrderID:   ev.Order.ID,
	}
	if err := oc.notifier.Publish(ctx, StatusUpdateDestination, body, headers); err != nil {
		oc.logger.Error(ctx, "notify_publish_failed", "Failed to publish notification event", err)
	}
}

func (oc *Orchestrator) journalAppend(ctx context.Context, ev *orders.LifecycleEvent) {
	if oc.journal == nil {
		return
	}
	// The journal is a read model; a failed append never blocks the workflow.
	if err := oc.journal.Append(ctx, ev); err != nil {
		oc.logger.Error(ctx, "journal_append_failed", "Failed to append lifecycle event", err)
	}
}

func (oc *Orchestrator) countTransition(to orders.OrderStatus) {
	if oc.metrics != nil {
		oc.metrics.Transitions.WithLabelValues(string(to)).Inc()
	}
}

func (oc *Orchestrator) countDispatch(channel string) {
	if oc.metrics != nil {
		oc.metrics.Dispatches.WithLabelValues(channel).Inc()
	}
}

func (oc *Orchestrator) countEscalation(level sla.EscalationLevel) {
	if oc.metrics != nil {
		oc.metrics.Escalations.WithLabelValues(string(level)).Inc()
	}
}

func (oc *Orchestrator) countCompensation(kind string) {
	if oc.metrics != nil {
		oc.metrics.Compensations.WithLabelValues(kind).Inc()
	}
}

// encodeEvent converts a lifecycle event to its wire form.
func encodeEvent(ev *orders.LifecycleEvent) contracts.OrderEventMessage {
	o := ev.Order
	items := make([]contracts.OrderItemMessage, len(o.Items))
	for i, it := range o.Items {
		price, _ := it.UnitPrice.Float64()
		items[i] = contracts.OrderItemMessage{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: price,
		}
	}
	total, _ := o.TotalAmount.Float64()
	return contracts.OrderEventMessage{
		EventID:       ev.ID,
		EventType:     string(ev.Type),
		CorrelationID: ev.CorrelationID,
		EmittedBy:     ev.EmittedBy,
		Timestamp:     ev.OccurredAt,
		Reason:        ev.Reason,
		Order: contracts.OrderPayload{
			OrderID:         o.ID,
			CustomerID:      o.CustomerID,
			Items:           items,
			TotalAmount:     total,
			Status:          string(o.Status),
			Priority:        string(o.Tier),
			CreatedAt:       o.CreatedAt,
			DeliveryAddress: o.DeliveryAddress,
			PaymentMethod:   o.PaymentMethod,
			Notes:           o.Notes,
		},
	}
}

// DecodeOrder rebuilds an order aggregate from its wire payload.
func DecodeOrder(p contracts.OrderPayload) (*orders.Order, error) {
	total, err := decimal.NewFromFloat64(p.TotalAmount)
	if err != nil {
		return nil, fmt.Errorf("decode total amount: %w", err)
	}
	items := make([]orders.OrderItem, len(p.Items))
	for i, it := range p.Items {
		price, err := decimal.NewFromFloat64(it.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("decode unit price for %s: %w", it.ProductID, err)
		}
		items[i] = orders.OrderItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: price,
		}
	}
	return &orders.Order{
		ID:              p.OrderID,
		CustomerID:      p.CustomerID,
		Items:           items,
		TotalAmount:     total,
		Status:          orders.OrderStatus(p.Status),
		Tier:            orders.ParseTier(p.Priority),
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.CreatedAt,
		DeliveryAddress: p.DeliveryAddress,
		PaymentMethod:   p.PaymentMethod,
		Notes:           p.Notes,
	}, nil
}
