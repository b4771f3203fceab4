package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Типы realtime событий
const (
	EventOrderAssigned      = "order-assigned"
	EventOrderStatusChanged = "order-status-changed"
	EventPaymentConfirmed   = "payment-confirmed"
	EventPaymentFailed      = "payment-failed"
	EventWalletUpdated      = "wallet-updated"
)

// CourierTopic имя топика конкретного курьера.
func CourierTopic(courierID uuid.UUID) string {
	return "courier:" + courierID.String()
}

// OrderTopic имя топика конкретного заказа.
func OrderTopic(orderID uuid.UUID) string {
	return "order:" + orderID.String()
}

// RealtimeEvent конверт события, рассылаемого подключённым сессиям.
type RealtimeEvent struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	Topic     string          `db:"topic" json:"topic"`
	Type      string          `db:"type" json:"type"`
	Data      json.RawMessage `db:"payload" json:"data"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
}

// AssignmentPayload полезная нагрузка события order-assigned.
type AssignmentPayload struct {
	OrderID uuid.UUID `json:"orderId"`
	Order   *Order    `json:"order"`
}

// PaymentEventPayload полезная нагрузка событий payment-confirmed / payment-failed.
type PaymentEventPayload struct {
	OrderID       uuid.UUID       `json:"orderId"`
	PaymentStatus string          `json:"paymentStatus"`
	Type          TransactionType `json:"type"`
	Amount        string          `json:"amount"`
	Reason        string          `json:"reason,omitempty"`
}
