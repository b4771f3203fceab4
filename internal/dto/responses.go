package dto

import (
	"github.com/ignatzorin/courier-backend/internal/models"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// RespondOrderResponse результат ответа курьера на назначение.
type RespondOrderResponse struct {
	Success bool          `json:"success"`
	Order   *models.Order `json:"order"`
}

// OrdersResponse список заказов курьера.
type OrdersResponse struct {
	Orders []models.Order `json:"orders"`
}

// PayoutResponse результат запроса на вывод.
type PayoutResponse struct {
	Success     bool                      `json:"success"`
	Transaction *models.WalletTransaction `json:"transaction"`
}

// TransactionsResponse страница истории кошелька.
type TransactionsResponse struct {
	Transactions []models.WalletTransaction `json:"transactions"`
	Limit        int                        `json:"limit"`
	Offset       int                        `json:"offset"`
}

// PushPaymentResponse результат запуска push-оплаты.
type PushPaymentResponse struct {
	Success bool                   `json:"success"`
	Request *models.PaymentRequest `json:"request"`
}

// CashSettlementResponse результат списания наличных.
type CashSettlementResponse struct {
	Success     bool                      `json:"success"`
	Transaction *models.WalletTransaction `json:"transaction"`
}

// EventsResponse события журнала для догоняющего чтения.
type EventsResponse struct {
	Events []models.RealtimeEvent `json:"events"`
}
