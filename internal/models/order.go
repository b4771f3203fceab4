package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order описывает заказ на доставку в той части, которой владеет это ядро.
type Order struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	Status         string          `db:"status" json:"status"`
	DriverAccepted *bool           `db:"driver_accepted" json:"driverAccepted"`
	PaymentStatus  string          `db:"payment_status" json:"paymentStatus"`
	CourierID      *uuid.UUID      `db:"courier_id" json:"courierId"`
	TotalAmount    decimal.Decimal `db:"total_amount" json:"totalAmount"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updatedAt"`
}

// IsTerminal сообщает, завершён ли заказ с точки зрения курьера.
func (o *Order) IsTerminal() bool {
	return IsTerminalOrderStatus(o.Status)
}

// IsUndecided возвращает true, пока курьер не принял и не отклонил заказ.
func (o *Order) IsUndecided() bool {
	return o.DriverAccepted == nil
}

// IsAcceptedBy проверяет, что заказ принят указанным курьером.
func (o *Order) IsAcceptedBy(courierID uuid.UUID) bool {
	return o.CourierID != nil && *o.CourierID == courierID &&
		o.DriverAccepted != nil && *o.DriverAccepted
}

// Ответы курьера в истории назначений
const (
	AssignmentResponseAccepted = "accepted"
	AssignmentResponseRejected = "rejected"
)

// OrderAssignment хранит историю назначений заказа курьерам.
type OrderAssignment struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	OrderID     uuid.UUID  `db:"order_id" json:"orderId"`
	CourierID   uuid.UUID  `db:"courier_id" json:"courierId"`
	AssignedAt  time.Time  `db:"assigned_at" json:"assignedAt"`
	RespondedAt *time.Time `db:"responded_at" json:"respondedAt,omitempty"`
	Response    *string    `db:"response" json:"response,omitempty"`
}
