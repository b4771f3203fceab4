package courier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/courier-backend/internal/logger"
	"github.com/ignatzorin/courier-backend/internal/models"
)

// DefaultMarkerTTL время жизни отметки «назначение уже показывается».
const DefaultMarkerTTL = 60 * time.Second

// Ключи данных локального уведомления о назначении
const (
	NotificationKeyOrderID = "orderId"
	NotificationKeyType    = "type"
)

// AssignmentPresenter показывает экран ответа на назначение.
type AssignmentPresenter interface {
	Present(ctx context.Context, payload models.AssignmentPayload) error
}

// Coordinator сводит события о назначении из realtime канала и push-уведомлений
// в один вызов экрана ответа на заказ.
type Coordinator struct {
	mu         sync.Mutex
	inFlight   map[uuid.UUID]*time.Timer
	deferred   map[uuid.UUID]models.AssignmentPayload
	foreground bool
	ttl        time.Duration

	cache     *OrderCache
	presenter AssignmentPresenter
	notifier  NotificationScheduler
	log       *logrus.Entry
}

func NewCoordinator(cache *OrderCache, presenter AssignmentPresenter, notifier NotificationScheduler, ttl time.Duration) *Coordinator {
	if ttl <= 0 {
		ttl = DefaultMarkerTTL
	}
	return &Coordinator{
		inFlight:   make(map[uuid.UUID]*time.Timer),
		deferred:   make(map[uuid.UUID]models.AssignmentPayload),
		foreground: true,
		ttl:        ttl,
		cache:      cache,
		presenter:  presenter,
		notifier:   notifier,
		log:        logger.Component("coordinator"),
	}
}

// SetForeground переключает состояние приложения: на экране или в фоне.
func (c *Coordinator) SetForeground(foreground bool) {
	c.mu.Lock()
	c.foreground = foreground
	c.mu.Unlock()
}

// OnAssignmentEvent обрабатывает событие о назначении. Возвращает true, если
// событие открыло экран ответа.
func (c *Coordinator) OnAssignmentEvent(ctx context.Context, payload models.AssignmentPayload, channel Channel) (bool, error) {
	orderID := payload.OrderID
	log := c.log.WithFields(logrus.Fields{"order_id": orderID, "channel": channel})

	if c.cache.IsAccepted(orderID) {
		log.Debug("заказ уже принят, событие пропущено")
		return false, nil
	}
	if c.cache.IsRejected(payload) {
		log.Debug("от заказа уже отказались, событие пропущено")
		return false, nil
	}

	c.mu.Lock()
	if !c.foreground && channel == ChannelRealtime {
		_, already := c.deferred[orderID]
		c.deferred[orderID] = payload
		c.mu.Unlock()
		if already {
			return false, nil
		}
		if err := c.notify(ctx, payload); err != nil {
			return false, err
		}
		log.Info("приложение в фоне, назначение отложено до нажатия на уведомление")
		return false, nil
	}

	if _, busy := c.inFlight[orderID]; busy {
		c.mu.Unlock()
		log.Debug("назначение уже обрабатывается, дубликат пропущен")
		return false, nil
	}
	var timer *time.Timer
	timer = time.AfterFunc(c.ttl, func() { c.release(orderID, timer) })
	c.inFlight[orderID] = timer
	delete(c.deferred, orderID)
	c.mu.Unlock()

	if err := c.presenter.Present(ctx, payload); err != nil {
		log.WithError(err).Error("не удалось показать экран назначения")
		return false, err
	}
	return true, nil
}

// HandleNotificationTap обрабатывает нажатие на локальное уведомление.
func (c *Coordinator) HandleNotificationTap(ctx context.Context, data map[string]string) (bool, error) {
	if t := data[NotificationKeyType]; t != models.EventOrderAssigned {
		return false, fmt.Errorf("courier: неизвестный тип уведомления %q", t)
	}
	orderID, err := uuid.Parse(data[NotificationKeyOrderID])
	if err != nil {
		return false, fmt.Errorf("courier: некорректный orderId в уведомлении: %w", err)
	}

	c.mu.Lock()
	payload, ok := c.deferred[orderID]
	c.mu.Unlock()
	if !ok {
		payload = models.AssignmentPayload{OrderID: orderID}
	}
	return c.OnAssignmentEvent(ctx, payload, ChannelNotification)
}

// InFlight сообщает, отмечено ли назначение как обрабатываемое.
func (c *Coordinator) InFlight(orderID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inFlight[orderID]
	return ok
}

// Close останавливает таймеры снятия отметок.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, t := range c.inFlight {
		t.Stop()
		delete(c.inFlight, id)
	}
}

// release снимает отметку. Открытый экран ответа при этом не закрывается.
func (c *Coordinator) release(orderID uuid.UUID, timer *time.Timer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if current, ok := c.inFlight[orderID]; ok && current == timer {
		delete(c.inFlight, orderID)
	}
}

func (c *Coordinator) notify(ctx context.Context, payload models.AssignmentPayload) error {
	if c.notifier == nil {
		return nil
	}
	n := Notification{
		Title: "Новый заказ",
		Body:  "Вам назначен заказ " + shortID(payload.OrderID),
		Data: map[string]string{
			NotificationKeyOrderID: payload.OrderID.String(),
			NotificationKeyType:    models.EventOrderAssigned,
		},
	}
	if err := c.notifier.ScheduleNow(ctx, n); err != nil {
		return fmt.Errorf("courier: не удалось показать уведомление: %w", err)
	}
	return nil
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}
