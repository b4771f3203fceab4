package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/courier-backend/internal/goroutine"
	"github.com/ignatzorin/courier-backend/internal/logger"
	"github.com/ignatzorin/courier-backend/internal/models"
)

const journalTimeout = 5 * time.Second

// EventJournal сохраняет разосланные события для догоняющего чтения.
type EventJournal interface {
	Record(ctx context.Context, event *models.RealtimeEvent) error
}

// SubscriptionChecker проверяет право курьера подписаться на топик.
type SubscriptionChecker interface {
	CanSubscribe(ctx context.Context, courierID uuid.UUID, topic string) error
}

// Fanout рассылает сериализованное событие всем инстансам сервера.
type Fanout interface {
	Publish(ctx context.Context, raw []byte) error
}

// Hub управляет WebSocket клиентами и их подписками на топики.
type Hub struct {
	mu         sync.RWMutex
	topics     map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan delivery
	journal    EventJournal
	checker    SubscriptionChecker
	fanout     Fanout
	ctx        context.Context
	log        *logrus.Entry
}

type delivery struct {
	topic   string
	payload []byte
}

// NewHub создаёт новый хаб.
func NewHub(ctx context.Context, checker SubscriptionChecker) *Hub {
	return &Hub{
		topics:     make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan delivery, 64),
		checker:    checker,
		ctx:        ctx,
		log:        logger.Component("ws"),
	}
}

// SetJournal устанавливает журнал событий.
func (h *Hub) SetJournal(journal EventJournal) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.journal = journal
}

// SetFanout включает рассылку через внешний брокер. Без него события
// доставляются только клиентам этого инстанса.
func (h *Hub) SetFanout(fanout Fanout) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fanout = fanout
}

// Run запускает главный цикл хаба до отмены контекста.
func (h *Hub) Run() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case d := <-h.broadcast:
			h.send(d.topic, d.payload)
		}
	}
}

// Register добавляет клиента и подписывает его на топик курьера.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

// Unregister удаляет клиента со всех топиков.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Subscribe подписывает клиента на топик после проверки прав.
func (h *Hub) Subscribe(ctx context.Context, client *Client, topic string) error {
	if h.checker != nil {
		if err := h.checker.CanSubscribe(ctx, client.courierID, topic); err != nil {
			return err
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if client.closed {
		return nil
	}
	h.subscribeLocked(client, topic)
	return nil
}

// Unsubscribe отписывает клиента от топика заказа. От собственного топика
// курьер не отписывается.
func (h *Hub) Unsubscribe(client *Client, topic string) {
	if topic == models.CourierTopic(client.courierID) {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(client, topic)
}

// Publish рассылает событие подписчикам топика и сохраняет его в журнал.
// Реализует service.EventPublisher.
func (h *Hub) Publish(ctx context.Context, topic, eventType string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("ws: не удалось сериализовать данные события: %w", err)
	}
	event := &models.RealtimeEvent{
		ID:        uuid.New(),
		Topic:     topic,
		Type:      eventType,
		Data:      payload,
		CreatedAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("ws: не удалось сериализовать сообщение: %w", err)
	}

	h.mu.RLock()
	journal := h.journal
	fanout := h.fanout
	h.mu.RUnlock()

	if journal != nil {
		goroutine.SafeGo(func() {
			saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
			defer cancel()
			if err := journal.Record(saveCtx, event); err != nil {
				h.log.WithError(err).WithFields(logrus.Fields{
					"event": eventType,
					"topic": topic,
				}).Warn("не удалось сохранить событие в журнал")
			}
		})
	}

	if fanout != nil {
		err := fanout.Publish(ctx, raw)
		if err == nil {
			return nil
		}
		h.log.WithError(err).WithField("event", eventType).Warn("fan-out недоступен, доставляем локально")
	}
	h.enqueue(topic, raw)
	return nil
}

// Deliver доставляет локальным клиентам событие, пришедшее от брокера.
func (h *Hub) Deliver(raw []byte) error {
	var envelope struct {
		Topic string `json:"topic"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("ws: некорректное событие: %w", err)
	}
	if envelope.Topic == "" {
		return fmt.Errorf("ws: событие без топика")
	}
	h.enqueue(envelope.Topic, raw)
	return nil
}

// Subscribers возвращает число клиентов, подписанных на топик.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

func (h *Hub) enqueue(topic string, raw []byte) {
	select {
	case h.broadcast <- delivery{topic: topic, payload: raw}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client.closed {
		return
	}
	h.subscribeLocked(client, models.CourierTopic(client.courierID))
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.closed = true
	for topic := range client.topics {
		h.unsubscribeLocked(client, topic)
	}
}

func (h *Hub) subscribeLocked(client *Client, topic string) {
	if _, ok := h.topics[topic]; !ok {
		h.topics[topic] = make(map[*Client]struct{})
	}
	h.topics[topic][client] = struct{}{}
	client.topics[topic] = struct{}{}
}

func (h *Hub) unsubscribeLocked(client *Client, topic string) {
	delete(client.topics, topic)
	if clients, ok := h.topics[topic]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.topics, topic)
		}
	}
}

func (h *Hub) send(topic string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.topics[topic] {
		select {
		case client.send <- payload:
		default:
			// Медленный клиент: закрываем, после переподключения он дочитает журнал
			c := client
			goroutine.SafeGo(c.Close)
		}
	}
}
