package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/courier-backend/internal/goroutine"
	"github.com/ignatzorin/courier-backend/internal/pkg/apperror"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

// Действия, которые клиент может прислать серверу.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// ClientMessage управляющее сообщение от клиента.
type ClientMessage struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

// controlReply ответ сервера на управляющее сообщение.
type controlReply struct {
	Type  string `json:"type"`
	Topic string `json:"topic,omitempty"`
	Error string `json:"error,omitempty"`
}

// Client представляет одно подключение WebSocket курьера.
type Client struct {
	conn      *websocket.Conn
	hub       *Hub
	courierID uuid.UUID
	send      chan []byte
	topics    map[string]struct{}
	closed    bool
	closeOnce sync.Once
	log       *logrus.Entry
}

// NewClient создаёт нового клиента.
func NewClient(conn *websocket.Conn, hub *Hub, courierID uuid.UUID) *Client {
	return &Client{
		conn:      conn,
		hub:       hub,
		courierID: courierID,
		send:      make(chan []byte, 32),
		topics:    make(map[string]struct{}),
		log:       hub.log.WithField("courier_id", courierID),
	}
}

// Run запускает обработку входящих и исходящих сообщений.
func (c *Client) Run(ctx context.Context) {
	goroutine.SafeGo(c.writePump)
	c.readPump(ctx)
}

// Close закрывает соединение. Повторные вызовы ничего не делают.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.hub.Unregister(c)
		c.conn.Close()
	})
}

func (c *Client) readPump(ctx context.Context) {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if ctx.Err() != nil {
			return
		}
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.WithError(err).Debug("соединение закрыто")
			}
			return
		}
		c.handleMessage(ctx, raw)
	}
}

func (c *Client) handleMessage(ctx context.Context, raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.reply(controlReply{Type: "error", Error: "некорректное сообщение"})
		return
	}

	switch msg.Action {
	case ActionSubscribe:
		if err := c.hub.Subscribe(ctx, c, msg.Topic); err != nil {
			c.reply(controlReply{Type: "error", Topic: msg.Topic, Error: apperror.MessageOf(err)})
			return
		}
		c.reply(controlReply{Type: "subscribed", Topic: msg.Topic})
	case ActionUnsubscribe:
		c.hub.Unsubscribe(c, msg.Topic)
		c.reply(controlReply{Type: "unsubscribed", Topic: msg.Topic})
	default:
		c.reply(controlReply{Type: "error", Error: "неизвестное действие"})
	}
}

func (c *Client) reply(r controlReply) {
	raw, err := json.Marshal(r)
	if err != nil {
		return
	}
	select {
	case c.send <- raw:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
