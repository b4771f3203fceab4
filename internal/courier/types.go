// Package courier содержит клиентскую часть сессии курьера: дедупликацию
// назначений из двух каналов доставки, экран ответа на назначение с сигналом,
// локальный кэш заказов и клиенты HTTP API и realtime.
package courier

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ignatzorin/courier-backend/internal/models"
)

// Channel канал, которым пришло событие о назначении.
type Channel string

const (
	ChannelRealtime     Channel = "realtime"
	ChannelNotification Channel = "notification"
)

// ErrNetwork запрос не дошёл до сервера или ответ не получен. Решение можно
// повторить.
var ErrNetwork = errors.New("courier: сеть недоступна")

// Notification локальное уведомление, которое показывается, пока приложение в фоне.
type Notification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data"`
}

// NotificationScheduler показывает локальное уведомление немедленно. Нажатие
// на уведомление возвращается в Coordinator.HandleNotificationTap с теми же Data.
type NotificationScheduler interface {
	ScheduleNow(ctx context.Context, n Notification) error
}

// Alert запущенный сигнал. Stop останавливает вибрацию и звук и возвращает
// управление только после остановки.
type Alert interface {
	Stop()
}

// Alerter запускает непрерывный сигнал о новом назначении.
type Alerter interface {
	StartAlert(orderID uuid.UUID) Alert
}

// OrderResponder отправляет ответ курьера на сервер.
type OrderResponder interface {
	RespondToOrder(ctx context.Context, orderID, courierID uuid.UUID, accepted bool) (*models.Order, error)
}
