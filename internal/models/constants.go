package models

// Статусы заказа
const (
	OrderStatusPending        = "pending"
	OrderStatusConfirmed      = "confirmed"
	OrderStatusPreparing      = "preparing"
	OrderStatusOutForDelivery = "out_for_delivery"
	OrderStatusDelivered      = "delivered"
	OrderStatusCompleted      = "completed"
	OrderStatusCancelled      = "cancelled"
)

// Статусы оплаты заказа
const (
	PaymentStatusUnpaid  = "unpaid"
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
)

// ValidOrderStatuses список валидных статусов заказов
var ValidOrderStatuses = map[string]struct{}{
	OrderStatusPending:        {},
	OrderStatusConfirmed:      {},
	OrderStatusPreparing:      {},
	OrderStatusOutForDelivery: {},
	OrderStatusDelivered:      {},
	OrderStatusCompleted:      {},
	OrderStatusCancelled:      {},
}

// terminalOrderStatuses статусы, после которых заказ уходит из списка активных.
var terminalOrderStatuses = map[string]struct{}{
	OrderStatusDelivered: {},
	OrderStatusCompleted: {},
	OrderStatusCancelled: {},
}

// IsValidOrderStatus проверяет, что статус заказа известен.
func IsValidOrderStatus(status string) bool {
	_, ok := ValidOrderStatuses[status]
	return ok
}

// IsTerminalOrderStatus сообщает, является ли статус терминальным.
func IsTerminalOrderStatus(status string) bool {
	_, ok := terminalOrderStatuses[status]
	return ok
}
