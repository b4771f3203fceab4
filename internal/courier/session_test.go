package courier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/courier-backend/internal/dto"
	"github.com/ignatzorin/courier-backend/internal/models"
)

type sessionFixture struct {
	session   *Session
	courierID uuid.UUID
	alerter   *fakeAlerter
	notifier  *recordingNotifier

	mu       sync.Mutex
	prompts  []uuid.UUID
	wallets  []models.WalletSummary
	resolved []PromptResult
}

func newSessionFixture(t *testing.T, handler http.Handler) *sessionFixture {
	t.Helper()
	if handler == nil {
		handler = http.NotFoundHandler()
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	f := &sessionFixture{
		courierID: uuid.New(),
		alerter:   &fakeAlerter{log: &callLog{}},
		notifier:  &recordingNotifier{},
	}
	f.session = NewSession(SessionConfig{
		ServerURL:      srv.URL,
		AccessToken:    "token",
		CourierID:      f.courierID,
		MarkerTTL:      time.Minute,
		RequestTimeout: time.Second,
		Alerter:        f.alerter,
		Notifier:       f.notifier,
		OnPrompt: func(p *Prompt) {
			f.mu.Lock()
			f.prompts = append(f.prompts, p.OrderID())
			f.mu.Unlock()
		},
		OnResolved: func(r PromptResult) {
			f.mu.Lock()
			f.resolved = append(f.resolved, r)
			f.mu.Unlock()
		},
		OnWallet: func(s models.WalletSummary) {
			f.mu.Lock()
			f.wallets = append(f.wallets, s)
			f.mu.Unlock()
		},
	})
	t.Cleanup(f.session.coordinator.Close)
	return f
}

func (f *sessionFixture) assignment(t *testing.T, orderID uuid.UUID) models.RealtimeEvent {
	ev := event(t, models.EventOrderAssigned, models.AssignmentPayload{
		OrderID: orderID,
		Order:   assignedOrder(orderID, f.courierID),
	})
	ev.Topic = models.CourierTopic(f.courierID)
	return ev
}

func TestSession_AcceptedOrderDropsDuplicateAssignment(t *testing.T) {
	orderID := uuid.New()
	var courierID uuid.UUID

	mux := http.NewServeMux()
	mux.HandleFunc("/api/orders/respond", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, dto.RespondOrderResponse{Success: true, Order: acceptedBy(orderID, courierID)})
	})
	f := newSessionFixture(t, mux)
	courierID = f.courierID

	f.session.HandleEvent(context.Background(), f.assignment(t, orderID))
	require.Len(t, f.prompts, 1)

	result, err := f.session.Accept(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, result.Outcome)
	assert.Contains(t, f.session.realtime.Topics(), models.OrderTopic(orderID))

	// дубликат из второго канала после принятия экран не открывает
	f.session.HandleEvent(context.Background(), f.assignment(t, orderID))
	handled, err := f.session.Tap(context.Background(), map[string]string{
		NotificationKeyOrderID: orderID.String(),
		NotificationKeyType:    models.EventOrderAssigned,
	})
	require.NoError(t, err)
	assert.False(t, handled)

	assert.Len(t, f.prompts, 1)
	assert.Equal(t, 1, f.alerter.started())
	orders := f.session.Orders()
	require.Len(t, orders, 1)
	assert.True(t, orders[0].IsAcceptedBy(f.courierID))
}

func TestSession_BackgroundAssignmentWaitsForTap(t *testing.T) {
	f := newSessionFixture(t, nil)
	orderID := uuid.New()

	f.session.SetForeground(false)
	f.session.HandleEvent(context.Background(), f.assignment(t, orderID))
	assert.Empty(t, f.prompts)

	notifications := f.notifier.list()
	require.Len(t, notifications, 1)

	f.session.SetForeground(true)
	handled, err := f.session.Tap(context.Background(), notifications[0].Data)
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, []uuid.UUID{orderID}, f.prompts)
	assert.Len(t, f.session.Prompts(), 1)
}

func TestSession_RoutesWalletAndStatusEvents(t *testing.T) {
	f := newSessionFixture(t, nil)
	orderID := uuid.New()
	f.session.cache.Upsert(*acceptedBy(orderID, f.courierID))

	summary := models.WalletSummary{CourierID: f.courierID, Balance: decimal.NewFromInt(300), AvailableBalance: decimal.NewFromInt(250)}
	f.session.HandleEvent(context.Background(), event(t, models.EventWalletUpdated, summary))
	require.Len(t, f.wallets, 1)
	assert.True(t, decimal.NewFromInt(250).Equal(f.wallets[0].AvailableBalance))

	done := acceptedBy(orderID, f.courierID)
	done.Status = models.OrderStatusCompleted
	f.session.HandleEvent(context.Background(), event(t, models.EventOrderStatusChanged, done))
	assert.Empty(t, f.session.Orders())
}

func TestSession_RefreshSeedsCache(t *testing.T) {
	orderID := uuid.New()
	var courierID uuid.UUID
	mux := http.NewServeMux()
	mux.HandleFunc("/api/couriers/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/couriers/"+courierID.String()+"/orders/active", r.URL.Path)
		writeJSON(w, http.StatusOK, dto.OrdersResponse{Orders: []models.Order{*acceptedBy(orderID, courierID)}})
	})
	f := newSessionFixture(t, mux)
	courierID = f.courierID

	require.NoError(t, f.session.Refresh(context.Background()))
	assert.True(t, f.session.cache.IsAccepted(orderID))
	assert.Contains(t, f.session.realtime.Topics(), models.OrderTopic(orderID))
}

func TestSession_IgnoresMalformedAssignment(t *testing.T) {
	f := newSessionFixture(t, nil)
	f.session.HandleEvent(context.Background(), models.RealtimeEvent{
		ID:   uuid.New(),
		Type: models.EventOrderAssigned,
		Data: json.RawMessage(`[]`),
	})
	assert.Empty(t, f.prompts)
}
