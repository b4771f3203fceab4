package ws

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/courier-backend/internal/logger"
)

// RedisBridge рассылает события через Redis pub/sub, чтобы их получили
// клиенты, подключённые к любому инстансу.
type RedisBridge struct {
	client  *redis.Client
	channel string
	log     *logrus.Entry
}

// NewRedisClient подключается к Redis и проверяет соединение.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ws: не удалось подключиться к redis: %w", err)
	}
	return client, nil
}

func NewRedisBridge(client *redis.Client, channel string) *RedisBridge {
	return &RedisBridge{
		client:  client,
		channel: channel,
		log:     logger.Component("redis-bridge").WithField("channel", channel),
	}
}

// Publish реализует Fanout.
func (b *RedisBridge) Publish(ctx context.Context, raw []byte) error {
	if err := b.client.Publish(ctx, b.channel, raw).Err(); err != nil {
		return fmt.Errorf("ws: публикация в redis: %w", err)
	}
	return nil
}

// Run подписывается на канал и передаёт события в локальный хаб до отмены
// контекста.
func (b *RedisBridge) Run(ctx context.Context, hub *Hub) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("ws: подписка на redis: %w", err)
	}
	b.log.Info("подписка на redis канал активна")

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if err := hub.Deliver([]byte(msg.Payload)); err != nil {
				b.log.WithError(err).Warn("пропущено некорректное событие из redis")
			}
		}
	}
}
