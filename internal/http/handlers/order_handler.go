package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/courier-backend/internal/dto"
	"github.com/ignatzorin/courier-backend/internal/http/handlers/common"
	"github.com/ignatzorin/courier-backend/internal/models"
	"github.com/ignatzorin/courier-backend/internal/pkg/apperror"
)

// OrderResponder операции курьера с назначенными заказами.
type OrderResponder interface {
	Respond(ctx context.Context, orderID, courierID uuid.UUID, accepted bool) (*models.Order, error)
	ListActive(ctx context.Context, courierID uuid.UUID) ([]models.Order, error)
}

type OrderHandler struct {
	orders OrderResponder
}

func NewOrderHandler(orders OrderResponder) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// Respond POST /api/orders/respond
func (h *OrderHandler) Respond(c *gin.Context) {
	courierID, err := common.CurrentCourierID(c)
	if err != nil {
		common.RespondAppError(c, apperror.ErrUnauthorized)
		return
	}

	var req dto.RespondOrderRequest
	if !common.BindJSON(c, &req) {
		return
	}
	if req.CourierID != courierID {
		common.RespondAppError(c, apperror.ErrForbidden)
		return
	}

	order, err := h.orders.Respond(c.Request.Context(), req.OrderID, courierID, *req.Accepted)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.RespondOrderResponse{Success: true, Order: order})
}

// ListActive GET /api/couriers/:courierId/orders/active
func (h *OrderHandler) ListActive(c *gin.Context) {
	courierID, err := common.ParseUUIDParam(c, "courierId")
	if err != nil {
		common.RespondAppError(c, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error()))
		return
	}

	orders, err := h.orders.ListActive(c.Request.Context(), courierID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.OrdersResponse{Orders: orders})
}
