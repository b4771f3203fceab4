package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/courier-backend/internal/dto"
	"github.com/ignatzorin/courier-backend/internal/models"
	"github.com/ignatzorin/courier-backend/internal/pkg/apperror"
	"github.com/ignatzorin/courier-backend/internal/service"
)

func TestDispatchHandler_Assign(t *testing.T) {
	dispatch := new(mockDispatch)
	orderID := uuid.New()
	courierID := uuid.New()
	dispatch.On("Assign", mock.Anything, orderID, courierID, mock.AnythingOfType("decimal.Decimal")).
		Return(&models.Order{ID: orderID, CourierID: &courierID, Status: models.OrderStatusConfirmed}, nil)

	r := newTestRouter(uuid.Nil)
	r.POST("/dispatch/assignments", NewDispatchHandler(dispatch, new(mockWallets)).Assign)

	w := doJSON(r, http.MethodPost, "/dispatch/assignments", map[string]interface{}{"orderId": orderID, "courierId": courierID, "totalAmount": "1200"})

	require.Equal(t, http.StatusOK, w.Code)
	var order models.Order
	require.NoError(t, decodeBody(w, &order))
	assert.Equal(t, orderID, order.ID)
}

func TestDispatchHandler_UpdateStatus(t *testing.T) {
	dispatch := new(mockDispatch)
	orderID := uuid.New()
	dispatch.On("UpdateStatus", mock.Anything, orderID, models.OrderStatusCompleted).
		Return(&models.Order{ID: orderID, Status: models.OrderStatusCompleted}, nil)

	r := newTestRouter(uuid.Nil)
	r.PUT("/dispatch/orders/:id/status", NewDispatchHandler(dispatch, new(mockWallets)).UpdateStatus)

	w := doJSON(r, http.MethodPut, "/dispatch/orders/"+orderID.String()+"/status", map[string]string{"status": "completed"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodPut, "/dispatch/orders/not-a-uuid/status", map[string]string{"status": "completed"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDispatchHandler_IssueToken(t *testing.T) {
	dispatch := new(mockDispatch)
	courierID := uuid.New()
	dispatch.On("IssueCourierToken", courierID).Return(&service.AccessToken{AccessToken: "jwt", ExpiresAt: time.Now().Add(time.Hour)}, nil)

	r := newTestRouter(uuid.Nil)
	r.POST("/dispatch/couriers/:courierId/token", NewDispatchHandler(dispatch, new(mockWallets)).IssueToken)

	w := doJSON(r, http.MethodPost, "/dispatch/couriers/"+courierID.String()+"/token", nil)

	require.Equal(t, http.StatusCreated, w.Code)
	var token service.AccessToken
	require.NoError(t, decodeBody(w, &token))
	assert.Equal(t, "jwt", token.AccessToken)
}

func TestDispatchHandler_CashSettlement(t *testing.T) {
	wallets := new(mockWallets)
	walletID := uuid.New()
	orderID := uuid.New()
	wallets.On("RecordCashSettlement", mock.Anything, walletID, &orderID, decimal.RequireFromString("450"), "наличные за заказ").
		Return(&models.WalletTransaction{ID: uuid.New(), Type: models.TransactionTypeCashSettlement, Status: models.TransactionStatusCompleted}, nil)

	r := newTestRouter(uuid.Nil)
	r.POST("/dispatch/wallets/:walletId/cash-settlements", NewDispatchHandler(new(mockDispatch), wallets).CashSettlement)

	w := doJSON(r, http.MethodPost, "/dispatch/wallets/"+walletID.String()+"/cash-settlements",
		map[string]interface{}{"orderId": orderID, "amount": "450", "note": "наличные за заказ"})

	require.Equal(t, http.StatusCreated, w.Code)
	var body dto.CashSettlementResponse
	require.NoError(t, decodeBody(w, &body))
	assert.Equal(t, models.TransactionTypeCashSettlement, body.Transaction.Type)
}

func TestDispatchHandler_AssignClosedOrder(t *testing.T) {
	dispatch := new(mockDispatch)
	dispatch.On("Assign", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, apperror.New(apperror.ErrCodeConflict, "заказ уже закрыт"))

	r := newTestRouter(uuid.Nil)
	r.POST("/dispatch/assignments", NewDispatchHandler(dispatch, new(mockWallets)).Assign)

	w := doJSON(r, http.MethodPost, "/dispatch/assignments", map[string]interface{}{"orderId": uuid.New(), "courierId": uuid.New()})
	assert.Equal(t, http.StatusConflict, w.Code)
}
