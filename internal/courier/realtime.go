package courier

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/courier-backend/internal/logger"
	"github.com/ignatzorin/courier-backend/internal/models"
)

const (
	realtimeWriteWait = 10 * time.Second
	catchUpPageSize   = 200
	seenCapacity      = 1024
)

// EventSource журнал событий для догоняющего чтения после переподключения.
type EventSource interface {
	ListEvents(ctx context.Context, topic string, since time.Time, limit int) ([]models.RealtimeEvent, error)
}

// controlMessage управляющее сообщение клиента и ответ сервера на него.
type controlMessage struct {
	Action string `json:"action,omitempty"`
	Type   string `json:"type,omitempty"`
	Topic  string `json:"topic,omitempty"`
	Error  string `json:"error,omitempty"`
}

// RealtimeClient держит WebSocket соединение с сервером, переподключается
// после обрыва и догоняет пропущенные события по журналу. Каждое событие
// передаётся обработчику не больше одного раза.
type RealtimeClient struct {
	wsURL     string
	courierID uuid.UUID
	history   EventSource
	handler   func(context.Context, models.RealtimeEvent)
	reconnect time.Duration
	dialer    *websocket.Dialer

	mu       sync.Mutex
	conn     *websocket.Conn
	topics   map[string]struct{}
	lastSeen map[string]time.Time
	seen     map[uuid.UUID]struct{}
	seenRing []uuid.UUID

	writeMu sync.Mutex
	log     *logrus.Entry
}

func NewRealtimeClient(serverURL, token string, courierID uuid.UUID, history EventSource, reconnect time.Duration, handler func(context.Context, models.RealtimeEvent)) *RealtimeClient {
	if reconnect <= 0 {
		reconnect = 3 * time.Second
	}
	courierTopic := models.CourierTopic(courierID)
	return &RealtimeClient{
		wsURL:     websocketURL(serverURL, token),
		courierID: courierID,
		history:   history,
		handler:   handler,
		reconnect: reconnect,
		dialer:    websocket.DefaultDialer,
		topics:    map[string]struct{}{courierTopic: {}},
		lastSeen:  make(map[string]time.Time),
		seen:      make(map[uuid.UUID]struct{}),
		log:       logger.Component("realtime").WithField("courier_id", courierID),
	}
}

// websocketURL строит адрес /api/ws из адреса HTTP API.
func websocketURL(serverURL, token string) string {
	base := strings.TrimRight(serverURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/api/ws?token=" + url.QueryEscape(token)
}

// Run держит соединение до отмены контекста.
func (r *RealtimeClient) Run(ctx context.Context) error {
	for {
		err := r.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		r.log.WithError(err).Warn("realtime соединение потеряно, переподключение")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(r.reconnect):
		}
	}
}

// Subscribe добавляет топик к подписке. Топик сохраняется между переподключениями.
func (r *RealtimeClient) Subscribe(topic string) error {
	r.mu.Lock()
	r.topics[topic] = struct{}{}
	conn := r.conn
	r.mu.Unlock()

	if conn == nil {
		return nil
	}
	return r.write(conn, controlMessage{Action: "subscribe", Topic: topic})
}

// Unsubscribe убирает топик из подписки. Топик курьера не убирается.
func (r *RealtimeClient) Unsubscribe(topic string) error {
	if topic == models.CourierTopic(r.courierID) {
		return nil
	}
	r.mu.Lock()
	delete(r.topics, topic)
	conn := r.conn
	r.mu.Unlock()

	if conn == nil {
		return nil
	}
	return r.write(conn, controlMessage{Action: "unsubscribe", Topic: topic})
}

// Topics возвращает текущие топики подписки.
func (r *RealtimeClient) Topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.topics))
	for t := range r.topics {
		out = append(out, t)
	}
	return out
}

func (r *RealtimeClient) session(ctx context.Context) error {
	conn, _, err := r.dialer.DialContext(ctx, r.wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	r.mu.Lock()
	r.conn = conn
	topics := make([]string, 0, len(r.topics))
	for t := range r.topics {
		topics = append(topics, t)
	}
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.conn = nil
		r.mu.Unlock()
	}()

	courierTopic := models.CourierTopic(r.courierID)
	for _, t := range topics {
		if t == courierTopic {
			continue
		}
		if err := r.write(conn, controlMessage{Action: "subscribe", Topic: t}); err != nil {
			return err
		}
	}
	r.log.WithField("topics", len(topics)).Info("realtime соединение установлено")

	// Журнал читаем после подписки, пересечение отсекает дедупликация
	r.catchUp(ctx, topics)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		r.handleRaw(ctx, raw)
	}
}

func (r *RealtimeClient) catchUp(ctx context.Context, topics []string) {
	if r.history == nil {
		return
	}
	for _, topic := range topics {
		r.mu.Lock()
		since := r.lastSeen[topic]
		r.mu.Unlock()
		if since.IsZero() {
			continue
		}
		events, err := r.history.ListEvents(ctx, topic, since, catchUpPageSize)
		if err != nil {
			r.log.WithError(err).WithField("topic", topic).Warn("не удалось догнать события по журналу")
			continue
		}
		for _, ev := range events {
			r.dispatch(ctx, ev)
		}
	}
}

func (r *RealtimeClient) handleRaw(ctx context.Context, raw []byte) {
	var event models.RealtimeEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		r.log.WithError(err).Warn("некорректное сообщение realtime")
		return
	}
	if event.ID == uuid.Nil {
		var reply controlMessage
		_ = json.Unmarshal(raw, &reply)
		if reply.Type == "error" {
			r.log.WithFields(logrus.Fields{"topic": reply.Topic, "error": reply.Error}).Warn("сервер отклонил подписку")
		}
		return
	}
	r.dispatch(ctx, event)
}

// dispatch передаёт событие обработчику, если оно ещё не встречалось.
func (r *RealtimeClient) dispatch(ctx context.Context, event models.RealtimeEvent) {
	r.mu.Lock()
	if _, dup := r.seen[event.ID]; dup {
		r.mu.Unlock()
		return
	}
	r.markSeenLocked(event.ID)
	if event.CreatedAt.After(r.lastSeen[event.Topic]) {
		r.lastSeen[event.Topic] = event.CreatedAt
	}
	r.mu.Unlock()

	if r.handler != nil {
		r.handler(ctx, event)
	}
}

func (r *RealtimeClient) markSeenLocked(id uuid.UUID) {
	if len(r.seenRing) >= seenCapacity {
		oldest := r.seenRing[0]
		r.seenRing = r.seenRing[1:]
		delete(r.seen, oldest)
	}
	r.seen[id] = struct{}{}
	r.seenRing = append(r.seenRing, id)
}

func (r *RealtimeClient) write(conn *websocket.Conn, msg controlMessage) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if conn == nil {
		return errors.New("courier: нет realtime соединения")
	}
	_ = conn.SetWriteDeadline(time.Now().Add(realtimeWriteWait))
	return conn.WriteJSON(msg)
}
