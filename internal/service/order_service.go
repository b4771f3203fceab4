package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/courier-backend/internal/logger"
	"github.com/ignatzorin/courier-backend/internal/models"
	"github.com/ignatzorin/courier-backend/internal/repository"
)

type OrderRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	Respond(ctx context.Context, orderID, courierID uuid.UUID, accepted bool) (*models.Order, error)
	Assign(ctx context.Context, in repository.AssignInput) (*models.Order, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, status string) (*models.Order, bool, error)
	ListActiveByCourier(ctx context.Context, courierID uuid.UUID) ([]models.Order, error)
}

// OrderService принимает ответы курьеров на назначения.
type OrderService struct {
	repo   OrderRepository
	events EventPublisher
	log    *logrus.Entry
}

func NewOrderService(repo OrderRepository, events EventPublisher) *OrderService {
	return &OrderService{
		repo:   repo,
		events: publisherOrNoop(events),
		log:    logger.Component("order"),
	}
}

// Respond фиксирует принятие или отказ. Ответ принимается один раз, повтор
// возвращает Conflict. После ответа событие уходит во все сессии курьера.
func (s *OrderService) Respond(ctx context.Context, orderID, courierID uuid.UUID, accepted bool) (*models.Order, error) {
	log := s.log.WithFields(logrus.Fields{
		"order_id":   orderID,
		"courier_id": courierID,
		"accepted":   accepted,
	})

	order, err := s.repo.Respond(ctx, orderID, courierID, accepted)
	if err != nil {
		err = mapRepoError(err)
		log.WithError(err).Info("ответ на назначение не принят")
		return nil, err
	}

	log.Info("ответ курьера на назначение сохранён")
	publishOrderEvent(ctx, s.events, s.log, order, &courierID, models.EventOrderStatusChanged, order)
	return order, nil
}

// GetOrder возвращает заказ.
func (s *OrderService) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	return order, mapRepoError(err)
}

// ListActive возвращает активные заказы курьера.
func (s *OrderService) ListActive(ctx context.Context, courierID uuid.UUID) ([]models.Order, error) {
	orders, err := s.repo.ListActiveByCourier(ctx, courierID)
	return orders, mapRepoError(err)
}
