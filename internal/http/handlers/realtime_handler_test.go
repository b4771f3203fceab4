package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/courier-backend/internal/dto"
	"github.com/ignatzorin/courier-backend/internal/models"
)

func TestRealtimeHandler_DefaultsToCourierTopic(t *testing.T) {
	courierID := uuid.New()
	events := new(mockEvents)
	events.On("ListSince", mock.Anything, courierID, models.CourierTopic(courierID), time.Time{}, 0).
		Return([]models.RealtimeEvent{{ID: uuid.New(), Type: models.EventWalletUpdated}}, nil)

	r := newTestRouter(courierID)
	r.GET("/realtime/events", NewRealtimeHandler(events).ListEvents)

	w := doJSON(r, http.MethodGet, "/realtime/events", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var body dto.EventsResponse
	require.NoError(t, decodeBody(w, &body))
	assert.Len(t, body.Events, 1)
}

func TestRealtimeHandler_SinceParsed(t *testing.T) {
	courierID := uuid.New()
	orderTopic := models.OrderTopic(uuid.New())
	since := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	events := new(mockEvents)
	events.On("ListSince", mock.Anything, courierID, orderTopic, mock.MatchedBy(func(ts time.Time) bool {
		return ts.Equal(since)
	}), 50).Return([]models.RealtimeEvent{}, nil)

	r := newTestRouter(courierID)
	r.GET("/realtime/events", NewRealtimeHandler(events).ListEvents)

	w := doJSON(r, http.MethodGet, "/realtime/events?topic="+orderTopic+"&since=2026-10-01T12:00:00Z&limit=50", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	events.AssertExpectations(t)
}

func TestRealtimeHandler_BadSince(t *testing.T) {
	r := newTestRouter(uuid.New())
	r.GET("/realtime/events", NewRealtimeHandler(new(mockEvents)).ListEvents)

	w := doJSON(r, http.MethodGet, "/realtime/events?since=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
