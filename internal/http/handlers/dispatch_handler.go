package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/courier-backend/internal/dto"
	"github.com/ignatzorin/courier-backend/internal/http/handlers/common"
	"github.com/ignatzorin/courier-backend/internal/models"
	"github.com/ignatzorin/courier-backend/internal/pkg/apperror"
	"github.com/ignatzorin/courier-backend/internal/service"
)

// Dispatcher операции диспетчерской системы с заказами.
type Dispatcher interface {
	Assign(ctx context.Context, orderID, courierID uuid.UUID, total decimal.Decimal) (*models.Order, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, status string) (*models.Order, error)
	IssueCourierToken(courierID uuid.UUID) (*service.AccessToken, error)
}

// CashSettler списывает собранные курьером наличные.
type CashSettler interface {
	RecordCashSettlement(ctx context.Context, walletID uuid.UUID, orderID *uuid.UUID, amount decimal.Decimal, note string) (*models.WalletTransaction, error)
}

// DispatchHandler служебные маршруты диспетчерской системы.
type DispatchHandler struct {
	dispatch Dispatcher
	cash     CashSettler
}

func NewDispatchHandler(dispatch Dispatcher, cash CashSettler) *DispatchHandler {
	return &DispatchHandler{dispatch: dispatch, cash: cash}
}

// Assign POST /api/dispatch/assignments
func (h *DispatchHandler) Assign(c *gin.Context) {
	var req dto.AssignOrderRequest
	if !common.BindJSON(c, &req) {
		return
	}

	order, err := h.dispatch.Assign(c.Request.Context(), req.OrderID, req.CourierID, req.TotalAmount)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// UpdateStatus PUT /api/dispatch/orders/:id/status
func (h *DispatchHandler) UpdateStatus(c *gin.Context) {
	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondAppError(c, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error()))
		return
	}

	var req dto.UpdateOrderStatusRequest
	if !common.BindJSON(c, &req) {
		return
	}

	order, err := h.dispatch.UpdateStatus(c.Request.Context(), orderID, req.Status)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// IssueToken POST /api/dispatch/couriers/:courierId/token
func (h *DispatchHandler) IssueToken(c *gin.Context) {
	courierID, err := common.ParseUUIDParam(c, "courierId")
	if err != nil {
		common.RespondAppError(c, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error()))
		return
	}

	token, err := h.dispatch.IssueCourierToken(courierID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, token)
}

// CashSettlement POST /api/dispatch/wallets/:walletId/cash-settlements
func (h *DispatchHandler) CashSettlement(c *gin.Context) {
	walletID, err := common.ParseUUIDParam(c, "walletId")
	if err != nil {
		common.RespondAppError(c, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error()))
		return
	}

	var req dto.CashSettlementRequest
	if !common.BindJSON(c, &req) {
		return
	}

	txn, err := h.cash.RecordCashSettlement(c.Request.Context(), walletID, req.OrderID, req.Amount, req.Note)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.CashSettlementResponse{Success: true, Transaction: txn})
}
