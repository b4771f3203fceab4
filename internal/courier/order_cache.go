package courier

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/courier-backend/internal/models"
)

// OrderCache локальный список активных заказов курьера. Применение событий
// идемпотентно: повтор того же состояния ничего не меняет.
type OrderCache struct {
	mu        sync.RWMutex
	courierID uuid.UUID
	orders    map[uuid.UUID]models.Order
	// момент отказа по серверному updated_at; назначения не новее него устарели
	rejected  map[uuid.UUID]time.Time
}

func NewOrderCache(courierID uuid.UUID) *OrderCache {
	return &OrderCache{
		courierID: courierID,
		orders:    make(map[uuid.UUID]models.Order),
		rejected:  make(map[uuid.UUID]time.Time),
	}
}

// Seed заменяет содержимое кэша списком с сервера.
func (c *OrderCache) Seed(orders []models.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orders = make(map[uuid.UUID]models.Order, len(orders))
	for _, o := range orders {
		c.orders[o.ID] = o
	}
}

// Get возвращает копию заказа из кэша.
func (c *OrderCache) Get(orderID uuid.UUID) (models.Order, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	o, ok := c.orders[orderID]
	return o, ok
}

// IsAccepted сообщает, что курьер уже принял этот заказ.
func (c *OrderCache) IsAccepted(orderID uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	o, ok := c.orders[orderID]
	return ok && o.DriverAccepted != nil && *o.DriverAccepted
}

// Upsert применяет состояние заказа с сервера. Возвращает true, если кэш изменился.
func (c *OrderCache) Upsert(order models.Order) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.upsertLocked(order)
}

// MarkRejected убирает отклонённый заказ из списка и запоминает отказ.
func (c *OrderCache) MarkRejected(orderID uuid.UUID, order *models.Order) {
	at := time.Now()
	if order != nil && !order.UpdatedAt.IsZero() {
		at = order.UpdatedAt
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.orders, orderID)
	c.rejected[orderID] = at
}

// IsRejected сообщает, что назначение относится к заказу, от которого курьер
// уже отказался. Новое назначение после отказа (driverAccepted сброшен,
// updated_at позже отказа) снимает отметку.
func (c *OrderCache) IsRejected(payload models.AssignmentPayload) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	at, ok := c.rejected[payload.OrderID]
	if !ok {
		return false
	}
	if o := payload.Order; o != nil && o.DriverAccepted == nil && o.UpdatedAt.After(at) {
		delete(c.rejected, payload.OrderID)
		return false
	}
	return true
}

// Apply применяет realtime событие к кэшу. Возвращает true, если кэш изменился.
func (c *OrderCache) Apply(event models.RealtimeEvent) (bool, error) {
	switch event.Type {
	case models.EventOrderAssigned:
		var payload models.AssignmentPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return false, err
		}
		if payload.Order == nil {
			return false, nil
		}
		// Повтор назначения не перетирает уже известное состояние заказа
		if _, known := c.Get(payload.OrderID); known || c.IsRejected(payload) {
			return false, nil
		}
		return c.Upsert(*payload.Order), nil

	case models.EventOrderStatusChanged:
		var order models.Order
		if err := json.Unmarshal(event.Data, &order); err != nil {
			return false, err
		}
		return c.Upsert(order), nil

	case models.EventPaymentConfirmed, models.EventPaymentFailed:
		var payload models.PaymentEventPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return false, err
		}
		return c.setPaymentStatus(payload.OrderID, payload.PaymentStatus), nil
	}
	return false, nil
}

// Active возвращает активные заказы, новые сверху.
func (c *OrderCache) Active() []models.Order {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Order, 0, len(c.orders))
	for _, o := range c.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (c *OrderCache) upsertLocked(order models.Order) bool {
	current, exists := c.orders[order.ID]

	// Заказ ушёл из активного списка: завершён, отменён, отклонён или передан другому
	if order.IsTerminal() || order.CourierID == nil || *order.CourierID != c.courierID ||
		(order.DriverAccepted != nil && !*order.DriverAccepted) {
		if exists {
			delete(c.orders, order.ID)
			return true
		}
		return false
	}

	if exists && sameState(current, order) {
		return false
	}
	c.orders[order.ID] = order
	return true
}

func (c *OrderCache) setPaymentStatus(orderID uuid.UUID, status string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.orders[orderID]
	if !ok || o.PaymentStatus == status {
		return false
	}
	o.PaymentStatus = status
	c.orders[orderID] = o
	return true
}

func sameState(a, b models.Order) bool {
	return a.Status == b.Status &&
		a.PaymentStatus == b.PaymentStatus &&
		boolPtrEqual(a.DriverAccepted, b.DriverAccepted)
}

func boolPtrEqual(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
