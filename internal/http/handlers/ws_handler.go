package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ignatzorin/courier-backend/internal/http/handlers/common"
	"github.com/ignatzorin/courier-backend/internal/http/middleware"
	"github.com/ignatzorin/courier-backend/internal/pkg/apperror"
	"github.com/ignatzorin/courier-backend/internal/ws"
)

// WSHandler отвечает за установку WebSocket соединений курьеров.
type WSHandler struct {
	hub      *ws.Hub
	tokens   middleware.AccessTokenParser
	upgrader websocket.Upgrader
}

// NewWSHandler создаёт новый хэндлер. Мобильные клиенты не присылают Origin,
// поэтому проверка origin отключена, доступ ограничивается токеном.
func NewWSHandler(hub *ws.Hub, tokens middleware.AccessTokenParser) *WSHandler {
	return &WSHandler{
		hub:    hub,
		tokens: tokens,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handle обслуживает GET /api/ws?token=...
func (h *WSHandler) Handle(c *gin.Context) {
	rawToken := c.Query("token")
	if rawToken == "" {
		common.RespondAppError(c, apperror.New(apperror.ErrCodeUnauthorized, "access токен обязателен"))
		return
	}

	courierID, _, err := h.tokens.ParseAccess(rawToken)
	if err != nil || courierID == uuid.Nil {
		common.RespondAppError(c, apperror.New(apperror.ErrCodeUnauthorized, "невалидный access токен"))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade уже ответил клиенту
		return
	}

	client := ws.NewClient(conn, h.hub, courierID)
	h.hub.Register(client)

	client.Run(c.Request.Context())
}
