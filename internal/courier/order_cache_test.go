package courier

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/courier-backend/internal/models"
)

func event(t *testing.T, eventType string, data any) models.RealtimeEvent {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return models.RealtimeEvent{ID: uuid.New(), Type: eventType, Data: raw, CreatedAt: time.Now()}
}

func TestOrderCache_ApplyIsIdempotent(t *testing.T) {
	courierID := uuid.New()
	cache := NewOrderCache(courierID)
	order := acceptedBy(uuid.New(), courierID)
	order.Status = models.OrderStatusOutForDelivery

	ev := event(t, models.EventOrderStatusChanged, order)
	changed, err := cache.Apply(ev)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = cache.Apply(ev)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Len(t, cache.Active(), 1)
}

func TestOrderCache_RemovesTerminalAndForeignOrders(t *testing.T) {
	courierID := uuid.New()
	cache := NewOrderCache(courierID)
	delivered := acceptedBy(uuid.New(), courierID)
	reassigned := acceptedBy(uuid.New(), courierID)
	cache.Seed([]models.Order{*delivered, *reassigned})

	delivered.Status = models.OrderStatusDelivered
	changed, err := cache.Apply(event(t, models.EventOrderStatusChanged, delivered))
	require.NoError(t, err)
	assert.True(t, changed)

	other := uuid.New()
	reassigned.CourierID = &other
	changed, err = cache.Apply(event(t, models.EventOrderStatusChanged, reassigned))
	require.NoError(t, err)
	assert.True(t, changed)

	assert.Empty(t, cache.Active())
}

func TestOrderCache_RepeatedAssignmentKeepsAcceptedState(t *testing.T) {
	courierID := uuid.New()
	cache := NewOrderCache(courierID)
	orderID := uuid.New()
	cache.Upsert(*acceptedBy(orderID, courierID))

	changed, err := cache.Apply(event(t, models.EventOrderAssigned, models.AssignmentPayload{
		OrderID: orderID,
		Order:   assignedOrder(orderID, courierID),
	}))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.True(t, cache.IsAccepted(orderID))
}

func TestOrderCache_AppliesPaymentStatus(t *testing.T) {
	courierID := uuid.New()
	cache := NewOrderCache(courierID)
	order := acceptedBy(uuid.New(), courierID)
	cache.Upsert(*order)

	payload := models.PaymentEventPayload{OrderID: order.ID, PaymentStatus: "paid", Type: models.TransactionTypeTip, Amount: "50.00"}
	changed, err := cache.Apply(event(t, models.EventPaymentConfirmed, payload))
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = cache.Apply(event(t, models.EventPaymentConfirmed, payload))
	require.NoError(t, err)
	assert.False(t, changed)

	cached, ok := cache.Get(order.ID)
	require.True(t, ok)
	assert.Equal(t, "paid", cached.PaymentStatus)
}

func TestOrderCache_RejectsMalformedData(t *testing.T) {
	cache := NewOrderCache(uuid.New())
	_, err := cache.Apply(models.RealtimeEvent{ID: uuid.New(), Type: models.EventOrderStatusChanged, Data: json.RawMessage(`"oops"`)})
	assert.Error(t, err)
}

func TestOrderCache_StaleAssignmentAfterRejectIsDropped(t *testing.T) {
	courierID := uuid.New()
	cache := NewOrderCache(courierID)
	orderID := uuid.New()
	rejectedAt := time.Now()

	stale := assignedOrder(orderID, courierID)
	stale.UpdatedAt = rejectedAt.Add(-time.Minute)
	cache.Upsert(*stale)

	rejected := *stale
	rejected.DriverAccepted = boolPtr(false)
	rejected.UpdatedAt = rejectedAt
	cache.MarkRejected(orderID, &rejected)

	changed, err := cache.Apply(event(t, models.EventOrderAssigned, models.AssignmentPayload{OrderID: orderID, Order: stale}))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, cache.Active())

	reassigned := assignedOrder(orderID, courierID)
	reassigned.UpdatedAt = rejectedAt.Add(time.Minute)
	changed, err = cache.Apply(event(t, models.EventOrderAssigned, models.AssignmentPayload{OrderID: orderID, Order: reassigned}))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.False(t, cache.IsRejected(models.AssignmentPayload{OrderID: orderID}))
}
