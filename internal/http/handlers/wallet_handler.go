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

// WalletReader операции чтения кошелька курьера.
type WalletReader interface {
	GetSummaryByCourier(ctx context.Context, courierID uuid.UUID) (*models.WalletSummary, error)
	Authorize(ctx context.Context, walletID, courierID uuid.UUID) (*models.Wallet, error)
	Audit(ctx context.Context, walletID uuid.UUID) (*models.WalletAudit, error)
	ListTransactions(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]models.WalletTransaction, error)
}

type WalletHandler struct {
	wallets WalletReader
}

func NewWalletHandler(wallets WalletReader) *WalletHandler {
	return &WalletHandler{wallets: wallets}
}

// GetByCourier GET /api/couriers/:courierId/wallet
func (h *WalletHandler) GetByCourier(c *gin.Context) {
	courierID, err := common.ParseUUIDParam(c, "courierId")
	if err != nil {
		common.RespondAppError(c, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error()))
		return
	}

	summary, err := h.wallets.GetSummaryByCourier(c.Request.Context(), courierID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// Audit GET /api/wallets/:walletId/audit
func (h *WalletHandler) Audit(c *gin.Context) {
	walletID, ok := h.ownedWallet(c)
	if !ok {
		return
	}

	audit, err := h.wallets.Audit(c.Request.Context(), walletID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, audit)
}

// Transactions GET /api/wallets/:walletId/transactions?limit&offset
func (h *WalletHandler) Transactions(c *gin.Context) {
	walletID, ok := h.ownedWallet(c)
	if !ok {
		return
	}

	limit, offset := common.GetPagination(c)
	txs, err := h.wallets.ListTransactions(c.Request.Context(), walletID, limit, offset)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.TransactionsResponse{Transactions: txs, Limit: limit, Offset: offset})
}

// ownedWallet проверяет, что кошелёк из пути принадлежит курьеру из токена.
func (h *WalletHandler) ownedWallet(c *gin.Context) (uuid.UUID, bool) {
	courierID, err := common.CurrentCourierID(c)
	if err != nil {
		common.RespondAppError(c, apperror.ErrUnauthorized)
		return uuid.Nil, false
	}
	walletID, err := common.ParseUUIDParam(c, "walletId")
	if err != nil {
		common.RespondAppError(c, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error()))
		return uuid.Nil, false
	}
	if _, err := h.wallets.Authorize(c.Request.Context(), walletID, courierID); err != nil {
		common.RespondAppError(c, err)
		return uuid.Nil, false
	}
	return walletID, true
}
