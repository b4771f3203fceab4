package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/courier-backend/internal/models"
)

// EventPublisher рассылает realtime события подписчикам топика.
type EventPublisher interface {
	Publish(ctx context.Context, topic, eventType string, data interface{}) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, string, interface{}) error { return nil }

func publisherOrNoop(p EventPublisher) EventPublisher {
	if p == nil {
		return noopPublisher{}
	}
	return p
}

// publishOrderEvent отправляет событие в топик заказа и в топик курьера.
func publishOrderEvent(ctx context.Context, events EventPublisher, log *logrus.Entry, order *models.Order, courierID *uuid.UUID, eventType string, data interface{}) {
	topics := []string{models.OrderTopic(order.ID)}
	if courierID != nil {
		topics = append(topics, models.CourierTopic(*courierID))
	}
	for _, topic := range topics {
		if err := events.Publish(ctx, topic, eventType, data); err != nil {
			log.WithError(err).WithFields(logrus.Fields{
				"order_id": order.ID,
				"topic":    topic,
				"event":    eventType,
			}).Warn("не удалось отправить realtime событие")
		}
	}
}
