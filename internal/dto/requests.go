package dto

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/courier-backend/internal/models"
)

// RespondOrderRequest ответ курьера на назначение.
type RespondOrderRequest struct {
	OrderID   uuid.UUID `json:"orderId" binding:"required"`
	CourierID uuid.UUID `json:"courierId" binding:"required"`
	Accepted  *bool     `json:"accepted" binding:"required"`
}

// PayoutRequest запрос курьера на вывод средств.
type PayoutRequest struct {
	WalletID         uuid.UUID       `json:"walletId" binding:"required"`
	Amount           decimal.Decimal `json:"amount"`
	DestinationPhone string          `json:"destinationPhone" binding:"required"`
}

// PushPaymentRequest запрос диспетчера на оплату заказа с телефона клиента.
type PushPaymentRequest struct {
	OrderID    uuid.UUID              `json:"orderId" binding:"required"`
	Type       models.TransactionType `json:"type" binding:"required"`
	Amount     decimal.Decimal        `json:"amount"`
	PayerPhone string                 `json:"payerPhone" binding:"required"`
}

// AssignOrderRequest назначение заказа курьеру.
type AssignOrderRequest struct {
	OrderID     uuid.UUID       `json:"orderId" binding:"required"`
	CourierID   uuid.UUID       `json:"courierId" binding:"required"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}

// UpdateOrderStatusRequest изменение статуса заказа диспетчерской системой.
type UpdateOrderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// CashSettlementRequest списание наличных, собранных курьером.
type CashSettlementRequest struct {
	OrderID *uuid.UUID      `json:"orderId"`
	Amount  decimal.Decimal `json:"amount"`
	Note    string          `json:"note"`
}
