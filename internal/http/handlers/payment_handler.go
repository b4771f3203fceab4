package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/courier-backend/internal/dto"
	"github.com/ignatzorin/courier-backend/internal/http/handlers/common"
	"github.com/ignatzorin/courier-backend/internal/models"
	"github.com/ignatzorin/courier-backend/internal/service"
)

// PushPaymentInitiator запускает push-оплату заказа.
type PushPaymentInitiator interface {
	InitiatePushPayment(ctx context.Context, in service.PushPaymentInput) (*models.PaymentRequest, error)
}

// CallbackHandler применяет колбэк провайдера.
type CallbackHandler interface {
	Handle(ctx context.Context, cb models.ProviderCallback) (*models.CallbackResult, error)
}

type PaymentHandler struct {
	payments  PushPaymentInitiator
	callbacks CallbackHandler
}

func NewPaymentHandler(payments PushPaymentInitiator, callbacks CallbackHandler) *PaymentHandler {
	return &PaymentHandler{payments: payments, callbacks: callbacks}
}

// Push POST /api/payments/push
func (h *PaymentHandler) Push(c *gin.Context) {
	var req dto.PushPaymentRequest
	if !common.BindJSON(c, &req) {
		return
	}

	created, err := h.payments.InitiatePushPayment(c.Request.Context(), service.PushPaymentInput{
		OrderID:    req.OrderID,
		Type:       req.Type,
		Amount:     req.Amount,
		PayerPhone: req.PayerPhone,
	})
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, dto.PushPaymentResponse{Success: true, Request: created})
}

// ProviderWebhook POST /api/webhooks/provider
func (h *PaymentHandler) ProviderWebhook(c *gin.Context) {
	var cb models.ProviderCallback
	if !common.BindJSON(c, &cb) {
		return
	}

	result, err := h.callbacks.Handle(c.Request.Context(), cb)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
