package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/courier-backend/internal/dto"
	"github.com/ignatzorin/courier-backend/internal/http/handlers/common"
	"github.com/ignatzorin/courier-backend/internal/models"
	"github.com/ignatzorin/courier-backend/internal/pkg/apperror"
)

// EventLister читает журнал realtime событий.
type EventLister interface {
	ListSince(ctx context.Context, courierID uuid.UUID, topic string, since time.Time, limit int) ([]models.RealtimeEvent, error)
}

// RealtimeHandler отдаёт пропущенные события клиентам после переподключения.
type RealtimeHandler struct {
	events EventLister
}

func NewRealtimeHandler(events EventLister) *RealtimeHandler {
	return &RealtimeHandler{events: events}
}

// ListEvents GET /api/realtime/events?topic=&since=&limit=
// Без topic возвращает события топика курьера, since в формате RFC3339.
func (h *RealtimeHandler) ListEvents(c *gin.Context) {
	courierID, err := common.CurrentCourierID(c)
	if err != nil {
		common.RespondAppError(c, apperror.ErrUnauthorized)
		return
	}

	topic := c.Query("topic")
	if topic == "" {
		topic = models.CourierTopic(courierID)
	}

	var since time.Time
	if raw := c.Query("since"); raw != "" {
		since, err = time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			common.RespondAppError(c, apperror.New(apperror.ErrCodeValidation, "since должен быть в формате RFC3339"))
			return
		}
	}

	events, err := h.events.ListSince(c.Request.Context(), courierID, topic, since, common.ParseIntQuery(c, "limit", 0))
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.EventsResponse{Events: events})
}
