package orders

import (
	"testing"
	"time"

	"github.com/govalues/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSumItems(t *testing.T) {
	o := &Order{
		ID: "ORD-1",
		Items: []OrderItem{
			{ProductID: "p1", Quantity: 2, UnitPrice: decimal.MustParse("19.99")},
			{ProductID: "p2", Quantity: 1, UnitPrice: decimal.MustParse("5.50")},
		},
	}
	require.NoError(t, o.SumItems())
	assert.Equal(t, "45.48", o.TotalAmount.String())
}

func TestSumItemsEmptyOrderIsZero(t *testing.T) {
	o := &Order{ID: "ORD-2"}
	require.NoError(t, o.SumItems())
	assert.Zero(t, o.TotalAmount.Sign())
}

func TestAgeMinutes(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	o := &Order{ID: "ORD-3", CreatedAt: created}
	assert.InDelta(t, 90.0, o.AgeMinutes(created.Add(90*time.Minute)), 0.001)
}

func TestCloneIsDeep(t *testing.T) {
	addr := "12 Harbor Street"
	o := &Order{
		ID:              "ORD-4",
		Items:           []OrderItem{{ProductID: "p1", Quantity: 1, UnitPrice: decimal.MustParse("10")}},
		DeliveryAddress: &addr,
	}

	cp := o.Clone()
	cp.Items[0].Quantity = 99
	*cp.DeliveryAddress = "changed"

	assert.Equal(t, 1, o.Items[0].Quantity)
	assert.Equal(t, "12 Harbor Street", *o.DeliveryAddress)
}

func TestParseTier(t *testing.T) {
	assert.Equal(t, TierUrgent, ParseTier("URGENT"))
	assert.Equal(t, TierLow, ParseTier("LOW"))
	assert.Equal(t, TierNormal, ParseTier("unknown"))
	assert.Equal(t, TierNormal, ParseTier(""))
}

func TestNewLifecycleEvent(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	o := &Order{ID: "ORD-5", Status: StatusPending}

	ev := NewLifecycleEvent(EventOrderCreated, o, "order-service", "", now)
	assert.NotEmpty(t, ev.ID)
	assert.NotEmpty(t, ev.CorrelationID, "empty correlation id gets a fresh one")
	assert.Equal(t, now, ev.OccurredAt)

	// snapshot must not alias the live aggregate
	o.Status = StatusConfirmed
	assert.Equal(t, StatusPending, ev.Order.Status)

	ev2 := NewLifecycleEvent(EventOrderConfirmed, o, "worker-1", "corr-1", now)
	assert.Equal(t, "corr-1", ev2.CorrelationID)
}

func TestEventForStatus(t *testing.T) {
	assert.Equal(t, EventOrderConfirmed, EventForStatus(StatusConfirmed))
	assert.Equal(t, EventOrderCancelled, EventForStatus(StatusCancelled))
	assert.Equal(t, EventOrderDelivered, EventForStatus(StatusDelivered))
}
