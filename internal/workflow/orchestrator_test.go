package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/govalues/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/dispatch"
	"orderflow/internal/domain/orders"
	"orderflow/internal/ports"
)

var flowNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// --- fakes ---

type published struct {
	destination string
	headers     map[string]any
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	fail error
}

func (p *fakePublisher) Publish(_ context.Context, destination string, _ []byte, headers map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	h := make(map[string]any, len(headers))
	for k, v := range headers {
		h[k] = v
	}
	p.sent = append(p.sent, published{destination: destination, headers: h})
	return nil
}

func (p *fakePublisher) destinations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.sent))
	for i, s := range p.sent {
		out[i] = s.destination
	}
	return out
}

type memJournal struct {
	mu      sync.Mutex
	entries []*orders.LifecycleEvent
}

func (j *memJournal) Append(_ context.Context, ev *orders.LifecycleEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, ev)
	return nil
}

func (j *memJournal) History(_ context.Context, orderID string) ([]ports.JournalEntry, error) {
	return nil, nil
}

func (j *memJournal) Latest(_ context.Context, orderID string) (*ports.JournalEntry, error) {
	return nil, ports.ErrOrderNotFound
}

func (j *memJournal) types() []orders.EventType {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]orders.EventType, len(j.entries))
	for i, e := range j.entries {
		out[i] = e.Type
	}
	return out
}

type passValidator struct{}

func (passValidator) ValidateOrder(*orders.Order) (bool, []string) { return true, nil }

type rejectValidator struct{}

func (rejectValidator) ValidateOrder(*orders.Order) (bool, []string) {
	return false, []string{"total amount must be strictly positive"}
}

// --- helpers ---

type flowFixture struct {
	flow       *Orchestrator
	dispatcher *fakePublisher
	notifier   *fakePublisher
	journal    *memJournal
}

func newFixture(t *testing.T, mutate func(*Config)) *flowFixture {
	t.Helper()
	f := &flowFixture{
		dispatcher: &fakePublisher{},
		notifier:   &fakePublisher{},
		journal:    &memJournal{},
	}
	cfg := Config{
		Selector:           dispatch.NewSelector(dispatch.DefaultConfig()),
		Dispatcher:         f.dispatcher,
		Notifier:           f.notifier,
		Validator:          passValidator{},
		Journal:            f.journal,
		HighValueThreshold: decimal.MustParse("2500"),
		EmittedBy:          "test",
		Now:                func() time.Time { return flowNow },
	}
	if mutate != nil {
		mutate(&cfg)
	}
	f.flow = New(cfg)
	return f
}

func testOrder(id string) *orders.Order {
	addr := "12 Harbor Street"
	pm := "card"
	return &orders.Order{
		ID:              id,
		CustomerID:      "CUST-1",
		Items:           []orders.OrderItem{{ProductID: "p1", Quantity: 1, UnitPrice: decimal.MustParse("100")}},
		TotalAmount:     decimal.MustParse("100"),
		Tier:            orders.TierNormal,
		CreatedAt:       flowNow,
		DeliveryAddress: &addr,
		PaymentMethod:   &pm,
	}
}

// --- tests ---

func TestCreateOrderDispatchesCreatedEvent(t *testing.T) {
	f := newFixture(t, nil)

	ev, channel, err := f.flow.CreateOrder(context.Background(), testOrder("ORD-1"), nil)
	require.NoError(t, err)
	assert.Equal(t, orders.EventOrderCreated, ev.Type)
	assert.NotEmpty(t, channel)
	assert.Contains(t, channel, "dispatch.")

	require.Len(t, f.dispatcher.sent, 1)
	assert.Equal(t, channel, f.dispatcher.sent[0].destination)
	assert.Equal(t, "ORD-1", f.dispatcher.sent[0].headers["order-id"])
	assert.Equal(t, []orders.EventType{orders.EventOrderCreated}, f.journal.types())

	got, err := f.flow.Get(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, got.Status)
}

func TestCreateOrderRejectsInvalid(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.Validator = rejectValidator{} })

	_, _, err := f.flow.CreateOrder(context.Background(), testOrder("ORD-1"), nil)
	var vErr *orders.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Empty(t, f.dispatcher.sent, "nothing may be published for an invalid order")
}

func TestCreateOrderDuplicate(t *testing.T) {
	f := newFixture(t, nil)
	_, _, err := f.flow.CreateOrder(context.Background(), testOrder("ORD-1"), nil)
	require.NoError(t, err)
	_, _, err = f.flow.CreateOrder(context.Background(), testOrder("ORD-1"), nil)
	assert.ErrorIs(t, err, ports.ErrOrderAlreadyExists)
}

func TestTransitionEmitsExactlyOneEvent(t *testing.T) {
	f := newFixture(t, nil)
	_, _, err := f.flow.CreateOrder(context.Background(), testOrder("ORD-1"), nil)
	require.NoError(t, err)

	ev, err := f.flow.Transition(context.Background(), "ORD-1", orders.StatusConfirmed, "tester", "", nil)
	require.NoError(t, err)
	assert.Equal(t, orders.EventOrderConfirmed, ev.Type)

	// one dispatch per lifecycle event: created + confirmed
	assert.Len(t, f.dispatcher.sent, 2)

	got, err := f.flow.Get(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusConfirmed, got.Status)
}

func TestTransitionIllegalPairFails(t *testing.T) {
	f := newFixture(t, nil)
	_, _, err := f.flow.CreateOrder(context.Background(), testOrder("ORD-1"), nil)
	require.NoError(t, err)

	before := len(f.dispatcher.sent)
	_, err = f.flow.Transition(context.Background(), "ORD-1", orders.StatusDelivered, "tester", "", nil)

	var invalid *orders.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, orders.StatusPending, invalid.From)
	assert.Equal(t, orders.StatusDelivered, invalid.To)

	// the order is untouched and nothing extra was published
	got, err := f.flow.Get(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, got.Status)
	assert.Len(t, f.dispatcher.sent, before)
}

func TestConfirmWithInventoryShortfallBackorders(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.Inventory = &StaticInventory{OutOfStock: map[string]bool{"p1": true}}
	})
	_, _, err := f.flow.CreateOrder(context.Background(), testOrder("ORD-1"), nil)
	require.NoError(t, err)

	ev, err := f.flow.ConfirmWithInventory(context.Background(), "ORD-1", "worker-1", nil)
	require.NoError(t, err, "a shortfall is a business outcome, not an error")
	assert.Equal(t, orders.EventOrderBackordered, ev.Type)
	assert.Contains(t, ev.Reason, "p1")

	got, err := f.flow.Get(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusBackordered, got.Status)
}

func TestConfirmWithInventoryRestockRetry(t *testing.T) {
	inv := &StaticInventory{OutOfStock: map[string]bool{"p1": true}}
	f := newFixture(t, func(c *Config) { c.Inventory = inv })
	_, _, err := f.flow.CreateOrder(context.Background(), testOrder("ORD-1"), nil)
	require.NoError(t, err)

	_, err = f.flow.ConfirmWithInventory(context.Background(), "ORD-1", "worker-1", nil)
	require.NoError(t, err)

	// restock and retry from BACKORDERED
	inv.OutOfStock = nil
	ev, err := f.flow.ConfirmWithInventory(context.Background(), "ORD-1", "worker-1", nil)
	require.NoError(t, err)
	assert.Equal(t, orders.EventOrderConfirmed, ev.Type)
}

func TestProcessPaymentSuccess(t *testing.T) {
	f := newFixture(t, nil)
	_, _, err := f.flow.CreateOrder(context.Background(), testOrder("ORD-1"), nil)
	require.NoError(t, err)
	_, err = f.flow.ConfirmWithInventory(context.Background(), "ORD-1", "worker-1", nil)
	require.NoError(t, err)

	ev, err := f.flow.ProcessPayment(context.Background(), "ORD-1", "worker-1", nil)
	require.NoError(t, err)
	assert.Equal(t, orders.EventOrderPaid, ev.Type)
}

func TestProcessPaymentDeclineCancels(t *testing.T) {
	f := newFixture(t, nil)
	o := testOrder("ORD-FAIL-PAYMENT-1")
	_, _, err := f.flow.CreateOrder(context.Background(), o, nil)
	require.NoError(t, err)
	_, err = f.flow.ConfirmWithInventory(context.Background(), o.ID, "worker-1", nil)
	require.NoError(t, err)

	ev, err := f.flow.ProcessPayment(context.Background(), o.ID, "worker-1", nil)
	require.NoError(t, err, "a decline is a compensating transition, not an error")
	assert.Equal(t, orders.EventOrderCancelled, ev.Type)
	assert.Contains(t, ev.Reason, "payment declined")

	got, err := f.flow.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, got.Status)
}

func TestCancelAfterPaidRequestsRefund(t *testing.T) {
	f := newFixture(t, nil)
	_, _, err := f.flow.CreateOrder(context.Background(), testOrder("ORD-1"), nil)
	require.NoError(t, err)
	_, err = f.flow.ConfirmWithInventory(context.Background(), "ORD-1", "worker-1", nil)
	require.NoError(t, err)
	_, err = f.flow.ProcessPayment(context.Background(), "ORD-1", "worker-1", nil)
	require.NoError(t, err)

	_, err = f.flow.Transition(context.Background(), "ORD-1", orders.StatusCancelled, "support", "customer request", nil)
	require.NoError(t, err)

	assert.Contains(t, f.journal.types(), orders.EventRefundRequested)
}

func TestHighValuePaidNotifies(t *testing.T) {
	f := newFixture(t, nil)
	o := testOrder("ORD-1")
	o.Items = []orders.OrderItem{{ProductID: "p1", Quantity: 1, UnitPrice: decimal.MustParse("3000")}}
	require.NoError(t, o.SumItems())

	_, _, err := f.flow.CreateOrder(context.Background(), o, nil)
	require.NoError(t, err)
	_, err = f.flow.ConfirmWithInventory(context.Background(), "ORD-1", "worker-1", nil)
	require.NoError(t, err)
	_, err = f.flow.ProcessPayment(context.Background(), "ORD-1", "worker-1", nil)
	require.NoError(t, err)

	assert.Contains(t, f.journal.types(), orders.EventHighValue)

	// the notifier saw both the high-value event and the status updates
	var sawHighValue bool
	f.notifier.mu.Lock()
	for _, s := range f.notifier.sent {
		if s.headers["event-type"] == string(orders.EventHighValue) {
			sawHighValue = true
		}
	}
	f.notifier.mu.Unlock()
	assert.True(t, sawHighValue)
}

func TestConfirmedEmitsAnalyticsSignal(t *testing.T) {
	f := newFixture(t, nil)
	_, _, err := f.flow.CreateOrder(context.Background(), testOrder("ORD-1"), nil)
	require.NoError(t, err)
	_, err = f.flow.Transition(context.Background(), "ORD-1", orders.StatusConfirmed, "tester", "", nil)
	require.NoError(t, err)

	assert.Contains(t, f.journal.types(), orders.EventAnalytics)
}

func TestDispatchExhaustionDeadLetters(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.Retry.MaxRetries = 1
		c.Retry.Base = time.Millisecond
		c.Retry.Cap = time.Millisecond
	})
	f.dispatcher.fail = errors.New("broker down")

	ev, channel, err := f.flow.CreateOrder(context.Background(), testOrder("ORD-1"), nil)
	require.NoError(t, err, "transport failure never surfaces to the caller")
	require.NotNil(t, ev)
	assert.NotEmpty(t, channel)

	// the order keeps its committed state and the failure is journaled
	got, err := f.flow.Get(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, got.Status)
	assert.Contains(t, f.journal.types(), orders.EventDeadLettered)
}

func TestSeedMakesOrderVisible(t *testing.T) {
	f := newFixture(t, nil)
	o := testOrder("ORD-1")
	o.Status = orders.StatusConfirmed
	f.flow.Seed(o)

	got, err := f.flow.Get(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusConfirmed, got.Status)
}

func TestConcurrentTransitionsOnlyOneWins(t *testing.T) {
	f := newFixture(t, nil)
	_, _, err := f.flow.CreateOrder(context.Background(), testOrder("ORD-1"), nil)
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.flow.Transition(context.Background(), "ORD-1", orders.StatusConfirmed, "racer", "", nil)
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var invalid *orders.InvalidTransitionError
		assert.ErrorAs(t, err, &invalid)
	}
	assert.Equal(t, 1, succeeded, "exactly one racer may apply PENDING -> CONFIRMED")
}

func TestDecodeOrderRoundTrip(t *testing.T) {
	o := testOrder("ORD-1")
	o.Status = orders.StatusPaid

	ev := orders.NewLifecycleEvent(orders.EventOrderPaid, o, "test", "corr-1", flowNow)
	decoded, err := DecodeOrder(encodeEvent(ev).Order)
	require.NoError(t, err)

	assert.Equal(t, o.ID, decoded.ID)
	assert.Equal(t, o.Status, decoded.Status)
	assert.Equal(t, o.Tier, decoded.Tier)
	require.Len(t, decoded.Items, 1)
	assert.Equal(t, "p1", decoded.Items[0].ProductID)
	assert.Zero(t, decoded.TotalAmount.Cmp(o.TotalAmount))
}
