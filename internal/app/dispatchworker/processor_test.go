package dispatchworker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/govalues/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/dispatch"
	"orderflow/internal/domain/orders"
	"orderflow/internal/domain/workers"
	"orderflow/internal/shared/contracts"
	"orderflow/internal/shared/logger"
	"orderflow/internal/workflow"
)

var procNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// --- fakes ---

type nullPublisher struct{}

func (nullPublisher) Publish(context.Context, string, []byte, map[string]any) error { return nil }

type passValidator struct{}

func (passValidator) ValidateOrder(*orders.Order) (bool, []string) { return true, nil }

// passUow runs the function without any transaction machinery.
type passUow struct{}

func (passUow) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type memRegistry struct {
	mu        sync.Mutex
	online    map[string]bool
	processed map[string]int
}

func newMemRegistry() *memRegistry {
	return &memRegistry{online: map[string]bool{}, processed: map[string]int{}}
}

func (r *memRegistry) RegisterOnline(_ context.Context, name, _ string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.online[name] {
		return false, nil
	}
	r.online[name] = true
	return true, nil
}

func (r *memRegistry) MarkOffline(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.online[name] = false
	return nil
}

func (r *memRegistry) Heartbeat(context.Context, string, time.Time) error { return nil }

func (r *memRegistry) IncrementProcessed(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processed[name]++
	return nil
}

func (r *memRegistry) ListAll(context.Context) ([]workers.Worker, error) { return nil, nil }

// --- helpers ---

func newTestProcessor(t *testing.T) (*Processor, *workflow.Orchestrator, *memRegistry) {
	t.Helper()
	log := logger.New("test")
	flow := workflow.New(workflow.Config{
		Selector:   dispatch.NewSelector(dispatch.DefaultConfig()),
		Dispatcher: nullPublisher{},
		Notifier:   nullPublisher{},
		Validator:  passValidator{},
		Logger:     log,
		Now:        func() time.Time { return procNow },
	})
	reg := newMemRegistry()
	workerSvc := NewWorkerService(passUow{}, reg, log)
	return NewProcessor(flow, workerSvc, log), flow, reg
}

func eventMessage(id string, et orders.EventType, status orders.OrderStatus) contracts.OrderEventMessage {
	addr := "12 Harbor Street"
	pm := "card"
	return contracts.OrderEventMessage{
		EventID:       "ev-1",
		EventType:     string(et),
		CorrelationID: "corr-1",
		EmittedBy:     "test",
		Timestamp:     procNow,
		Order: contracts.OrderPayload{
			OrderID:         id,
			CustomerID:      "CUST-1",
			Items:           []contracts.OrderItemMessage{{ProductID: "p1", Quantity: 1, UnitPrice: 100}},
			TotalAmount:     100,
			Status:          string(status),
			Priority:        "NORMAL",
			CreatedAt:       procNow,
			DeliveryAddress: &addr,
			PaymentMethod:   &pm,
		},
	}
}

// --- tests ---

func TestProcessAdvancesCreatedOrder(t *testing.T) {
	p, flow, reg := newTestProcessor(t)

	msg := eventMessage("ORD-1", orders.EventOrderCreated, orders.StatusPending)
	require.NoError(t, p.Process(context.Background(), "worker-1", "", "dispatch.standard.0", msg))

	got, err := flow.Get(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusConfirmed, got.Status)
	assert.Equal(t, 1, reg.processed["worker-1"])
}

func TestProcessDrivesFullLifecycle(t *testing.T) {
	p, flow, _ := newTestProcessor(t)
	ctx := context.Background()

	steps := []struct {
		event orders.EventType
		from  orders.OrderStatus
		want  orders.OrderStatus
	}{
		{orders.EventOrderCreated, orders.StatusPending, orders.StatusConfirmed},
		{orders.EventOrderConfirmed, orders.StatusConfirmed, orders.StatusPaid},
		{orders.EventOrderPaid, orders.StatusPaid, orders.StatusProcessing},
		{orders.EventOrderProcessing, orders.StatusProcessing, orders.StatusShipped},
		{orders.EventOrderShipped, orders.StatusShipped, orders.StatusDelivered},
	}
	for _, step := range steps {
		msg := eventMessage("ORD-1", step.event, step.from)
		require.NoError(t, p.Process(ctx, "worker-1", "", "dispatch.standard.0", msg))

		got, err := flow.Get(ctx, "ORD-1")
		require.NoError(t, err)
		require.Equal(t, step.want, got.Status, "after %s", step.event)
	}
}

func TestProcessUnsupportedChannel(t *testing.T) {
	p, _, _ := newTestProcessor(t)

	msg := eventMessage("ORD-1", orders.EventOrderCreated, orders.StatusPending)
	err := p.Process(context.Background(), "worker-1", "urgent,express", "dispatch.bulk", msg)
	assert.ErrorIs(t, err, ErrUnsupportedChannel)
}

func TestProcessStaleEventDropped(t *testing.T) {
	p, flow, _ := newTestProcessor(t)
	ctx := context.Background()

	// first delivery confirms the order
	msg := eventMessage("ORD-1", orders.EventOrderCreated, orders.StatusPending)
	require.NoError(t, p.Process(ctx, "worker-1", "", "dispatch.standard.0", msg))

	// a redelivery of the same event targets an already-passed transition
	require.NoError(t, p.Process(ctx, "worker-1", "", "dispatch.standard.0", msg))

	got, err := flow.Get(ctx, "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusConfirmed, got.Status)
}

func TestProcessTerminalEventIsNoOp(t *testing.T) {
	p, _, reg := newTestProcessor(t)

	msg := eventMessage("ORD-1", orders.EventOrderDelivered, orders.StatusDelivered)
	require.NoError(t, p.Process(context.Background(), "worker-1", "", "dispatch.standard.0", msg))
	assert.Zero(t, reg.processed["worker-1"], "no advancement means no processed increment")
}

func TestSupports(t *testing.T) {
	assert.True(t, supports("", "dispatch.urgent.1"), "empty CSV covers everything")
	assert.True(t, supports("urgent,express", "dispatch.urgent.2"))
	assert.True(t, supports("escalation", "dispatch.escalation.critical"))
	assert.True(t, supports("URGENT", "dispatch.urgent.0"), "matching is case-insensitive")
	assert.False(t, supports("urgent,express", "dispatch.bulk"))
	assert.False(t, supports("urgent", "other.urgent.0"))
}

func TestChannelClass(t *testing.T) {
	assert.Equal(t, "urgent", channelClass("dispatch.urgent.2"))
	assert.Equal(t, "escalation", channelClass("dispatch.escalation.critical"))
	assert.Equal(t, "bulk", channelClass("dispatch.bulk"))
	assert.Equal(t, "fallback", channelClass("dispatch.fallback"))
	assert.Empty(t, channelClass("dispatch"))
	assert.Empty(t, channelClass("kitchen.dine_in.1"))
}

func TestWorkerServiceLifecycle(t *testing.T) {
	_, _, reg := newTestProcessor(t)
	svc := NewWorkerService(passUow{}, reg, logger.New("test"))
	ctx := context.Background()

	ok, err := svc.RegisterOrExit(ctx, "worker-1", "urgent")
	require.NoError(t, err)
	assert.True(t, ok)

	// duplicate name while online is refused
	ok, err = svc.RegisterOrExit(ctx, "worker-1", "urgent")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, svc.GracefulOffline(ctx, "worker-1"))
	assert.False(t, reg.online["worker-1"])
}

func TestDecodeOrderRoundTripsSnapshot(t *testing.T) {
	payload := eventMessage("ORD-1", orders.EventOrderCreated, orders.StatusPending).Order
	decoded, err := workflow.DecodeOrder(payload)
	require.NoError(t, err)
	assert.Zero(t, decoded.TotalAmount.Cmp(decimal.MustParse("100")))
}
