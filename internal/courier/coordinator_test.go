package courier

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/courier-backend/internal/models"
)

func newTestCoordinator(ttl time.Duration) (*Coordinator, *recordingPresenter, *recordingNotifier, *OrderCache, uuid.UUID) {
	courierID := uuid.New()
	cache := NewOrderCache(courierID)
	presenter := &recordingPresenter{}
	notifier := &recordingNotifier{}
	c := NewCoordinator(cache, presenter, notifier, ttl)
	return c, presenter, notifier, cache, courierID
}

func TestCoordinator_InvokesPresenterOncePerOrder(t *testing.T) {
	c, presenter, _, _, courierID := newTestCoordinator(time.Minute)
	defer c.Close()
	orderID := uuid.New()
	payload := models.AssignmentPayload{OrderID: orderID, Order: assignedOrder(orderID, courierID)}

	handled, err := c.OnAssignmentEvent(context.Background(), payload, ChannelRealtime)
	require.NoError(t, err)
	assert.True(t, handled)

	handled, err = c.OnAssignmentEvent(context.Background(), payload, ChannelNotification)
	require.NoError(t, err)
	assert.False(t, handled)

	assert.Equal(t, 1, presenter.count())
	assert.True(t, c.InFlight(orderID))
}

func TestCoordinator_ConcurrentEventsPresentOnce(t *testing.T) {
	c, presenter, _, _, courierID := newTestCoordinator(time.Minute)
	defer c.Close()
	orderID := uuid.New()
	payload := models.AssignmentPayload{OrderID: orderID, Order: assignedOrder(orderID, courierID)}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		channel := ChannelRealtime
		if i%2 == 0 {
			channel = ChannelNotification
		}
		go func() {
			defer wg.Done()
			_, _ = c.OnAssignmentEvent(context.Background(), payload, channel)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, presenter.count())
}

func TestCoordinator_DropsAcceptedOrder(t *testing.T) {
	c, presenter, _, cache, courierID := newTestCoordinator(time.Minute)
	defer c.Close()
	orderID := uuid.New()
	accepted := assignedOrder(orderID, courierID)
	accepted.DriverAccepted = boolPtr(true)
	cache.Upsert(*accepted)

	handled, err := c.OnAssignmentEvent(context.Background(), models.AssignmentPayload{OrderID: orderID}, ChannelRealtime)
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Zero(t, presenter.count())
	assert.False(t, c.InFlight(orderID))
}

func TestCoordinator_DefersRealtimeEventInBackground(t *testing.T) {
	c, presenter, notifier, _, courierID := newTestCoordinator(time.Minute)
	defer c.Close()
	orderID := uuid.New()
	payload := models.AssignmentPayload{OrderID: orderID, Order: assignedOrder(orderID, courierID)}

	c.SetForeground(false)
	handled, err := c.OnAssignmentEvent(context.Background(), payload, ChannelRealtime)
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Zero(t, presenter.count())
	assert.False(t, c.InFlight(orderID))

	// повтор в фоне второе уведомление не показывает
	_, err = c.OnAssignmentEvent(context.Background(), payload, ChannelRealtime)
	require.NoError(t, err)

	notifications := notifier.list()
	require.Len(t, notifications, 1)
	assert.Equal(t, orderID.String(), notifications[0].Data[NotificationKeyOrderID])
	assert.Equal(t, models.EventOrderAssigned, notifications[0].Data[NotificationKeyType])

	handled, err = c.HandleNotificationTap(context.Background(), notifications[0].Data)
	require.NoError(t, err)
	assert.True(t, handled)
	require.Equal(t, 1, presenter.count())
	assert.NotNil(t, presenter.payloads[0].Order)

	handled, err = c.HandleNotificationTap(context.Background(), notifications[0].Data)
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Equal(t, 1, presenter.count())
}

func TestCoordinator_TapWithoutDeferredPayload(t *testing.T) {
	c, presenter, _, _, _ := newTestCoordinator(time.Minute)
	defer c.Close()
	orderID := uuid.New()

	handled, err := c.HandleNotificationTap(context.Background(), map[string]string{
		NotificationKeyOrderID: orderID.String(),
		NotificationKeyType:    models.EventOrderAssigned,
	})
	require.NoError(t, err)
	assert.True(t, handled)
	require.Equal(t, 1, presenter.count())
	assert.Equal(t, orderID, presenter.payloads[0].OrderID)
}

func TestCoordinator_RejectsBadTapData(t *testing.T) {
	c, _, _, _, _ := newTestCoordinator(time.Minute)
	defer c.Close()

	_, err := c.HandleNotificationTap(context.Background(), map[string]string{NotificationKeyType: "promo"})
	assert.Error(t, err)

	_, err = c.HandleNotificationTap(context.Background(), map[string]string{
		NotificationKeyType:    models.EventOrderAssigned,
		NotificationKeyOrderID: "42",
	})
	assert.Error(t, err)
}

func TestCoordinator_ReleasesMarkerAfterTTL(t *testing.T) {
	c, presenter, _, _, courierID := newTestCoordinator(30 * time.Millisecond)
	defer c.Close()
	orderID := uuid.New()
	payload := models.AssignmentPayload{OrderID: orderID, Order: assignedOrder(orderID, courierID)}

	_, err := c.OnAssignmentEvent(context.Background(), payload, ChannelRealtime)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return !c.InFlight(orderID) }, time.Second, 5*time.Millisecond)

	handled, err := c.OnAssignmentEvent(context.Background(), payload, ChannelRealtime)
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, 2, presenter.count())
}

func TestCoordinator_TTLDoesNotCancelPrompt(t *testing.T) {
	courierID := uuid.New()
	orderID := uuid.New()
	cache := NewOrderCache(courierID)
	log := &callLog{}
	alerter := &fakeAlerter{log: log}
	responder := &fakeResponder{log: log, fn: func(uuid.UUID, uuid.UUID, bool) (*models.Order, error) { return nil, nil }}
	presenter := NewPresenter(courierID, alerter, responder, cache)
	c := NewCoordinator(cache, presenter, nil, 20*time.Millisecond)
	defer c.Close()

	payload := models.AssignmentPayload{OrderID: orderID, Order: assignedOrder(orderID, courierID)}
	_, err := c.OnAssignmentEvent(context.Background(), payload, ChannelRealtime)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return !c.InFlight(orderID) }, time.Second, 5*time.Millisecond)

	prompt, ok := presenter.Prompt(orderID)
	require.True(t, ok)
	assert.Equal(t, PromptAlerting, prompt.State())

	// повтор после снятия отметки второй экран не открывает
	_, err = c.OnAssignmentEvent(context.Background(), payload, ChannelRealtime)
	require.NoError(t, err)
	assert.Equal(t, 1, alerter.started())
	assert.Len(t, presenter.Active(), 1)
}

func TestCoordinator_DropsRejectedOrderUntilReassigned(t *testing.T) {
	c, presenter, _, cache, courierID := newTestCoordinator(time.Minute)
	defer c.Close()
	orderID := uuid.New()
	rejectedAt := time.Now()

	rejected := assignedOrder(orderID, courierID)
	rejected.DriverAccepted = boolPtr(false)
	rejected.UpdatedAt = rejectedAt
	cache.MarkRejected(orderID, rejected)

	stale := assignedOrder(orderID, courierID)
	stale.UpdatedAt = rejectedAt.Add(-time.Minute)
	handled, err := c.OnAssignmentEvent(context.Background(), models.AssignmentPayload{OrderID: orderID, Order: stale}, ChannelRealtime)
	require.NoError(t, err)
	assert.False(t, handled)

	handled, err = c.HandleNotificationTap(context.Background(), map[string]string{
		NotificationKeyType:    models.EventOrderAssigned,
		NotificationKeyOrderID: orderID.String(),
	})
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Zero(t, presenter.count())
	assert.False(t, c.InFlight(orderID))

	reassigned := assignedOrder(orderID, courierID)
	reassigned.UpdatedAt = rejectedAt.Add(time.Minute)
	handled, err = c.OnAssignmentEvent(context.Background(), models.AssignmentPayload{OrderID: orderID, Order: reassigned}, ChannelRealtime)
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, 1, presenter.count())
}
