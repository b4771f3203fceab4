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
	"github.com/ignatzorin/courier-backend/internal/service"
)

// PayoutRequester запускает вывод средств.
type PayoutRequester interface {
	RequestPayout(ctx context.Context, in service.PayoutInput) (*models.WalletTransaction, error)
}

// WalletAuthorizer проверяет владельца кошелька.
type WalletAuthorizer interface {
	Authorize(ctx context.Context, walletID, courierID uuid.UUID) (*models.Wallet, error)
}

type PayoutHandler struct {
	payouts PayoutRequester
	wallets WalletAuthorizer
}

func NewPayoutHandler(payouts PayoutRequester, wallets WalletAuthorizer) *PayoutHandler {
	return &PayoutHandler{payouts: payouts, wallets: wallets}
}

// Request POST /api/wallets/payouts
func (h *PayoutHandler) Request(c *gin.Context) {
	courierID, err := common.CurrentCourierID(c)
	if err != nil {
		common.RespondAppError(c, apperror.ErrUnauthorized)
		return
	}

	var req dto.PayoutRequest
	if !common.BindJSON(c, &req) {
		return
	}

	if _, err := h.wallets.Authorize(c.Request.Context(), req.WalletID, courierID); err != nil {
		common.RespondAppError(c, err)
		return
	}

	txn, err := h.payouts.RequestPayout(c.Request.Context(), service.PayoutInput{
		WalletID:         req.WalletID,
		Amount:           req.Amount,
		DestinationPhone: req.DestinationPhone,
	})
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, dto.PayoutResponse{Success: true, Transaction: txn})
}
