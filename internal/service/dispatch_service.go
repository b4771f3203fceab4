package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/courier-backend/internal/logger"
	"github.com/ignatzorin/courier-backend/internal/models"
	"github.com/ignatzorin/courier-backend/internal/pkg/apperror"
	"github.com/ignatzorin/courier-backend/internal/repository"
	"github.com/ignatzorin/courier-backend/internal/validation"
)

// CourierNotifier отправляет курьеру сводку кошелька после смены статуса заказа.
type CourierNotifier interface {
	NotifyCourier(ctx context.Context, courierID uuid.UUID)
}

// DispatchService принимает команды внешнего диспетчера.
type DispatchService struct {
	repo    OrderRepository
	events  EventPublisher
	wallets CourierNotifier
	tokens  *TokenManager
	log     *logrus.Entry
}

func NewDispatchService(repo OrderRepository, events EventPublisher, wallets CourierNotifier, tokens *TokenManager) *DispatchService {
	return &DispatchService{
		repo:    repo,
		events:  publisherOrNoop(events),
		wallets: wallets,
		tokens:  tokens,
		log:     logger.Component("dispatch"),
	}
}

// Assign назначает заказ курьеру и отправляет order-assigned в его топик.
// Явное назначение сбрасывает прежний отказ.
func (s *DispatchService) Assign(ctx context.Context, orderID, courierID uuid.UUID, total decimal.Decimal) (*models.Order, error) {
	if total.IsNegative() {
		return nil, apperror.New(apperror.ErrCodeValidation, "сумма заказа не может быть отрицательной")
	}

	order, err := s.repo.Assign(ctx, repository.AssignInput{
		OrderID:     orderID,
		CourierID:   courierID,
		TotalAmount: total,
	})
	if err != nil {
		return nil, mapRepoError(err)
	}

	s.log.WithFields(logrus.Fields{
		"order_id":   orderID,
		"courier_id": courierID,
	}).Info("заказ назначен курьеру")

	payload := models.AssignmentPayload{OrderID: order.ID, Order: order}
	if err := s.events.Publish(ctx, models.CourierTopic(courierID), models.EventOrderAssigned, payload); err != nil {
		s.log.WithError(err).WithField("order_id", orderID).Warn("не удалось отправить order-assigned")
	}
	return order, nil
}

// UpdateStatus меняет статус заказа. Повтор того же статуса ничего не рассылает.
func (s *DispatchService) UpdateStatus(ctx context.Context, orderID uuid.UUID, status string) (*models.Order, error) {
	if err := validation.ValidateOrderStatus(status); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	order, changed, err := s.repo.UpdateStatus(ctx, orderID, status)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if !changed {
		return order, nil
	}

	s.log.WithFields(logrus.Fields{
		"order_id": orderID,
		"status":   status,
	}).Info("статус заказа обновлён")

	publishOrderEvent(ctx, s.events, s.log, order, order.CourierID, models.EventOrderStatusChanged, order)

	// Завершение или отмена меняет сумму удержания
	if order.IsTerminal() && order.CourierID != nil && s.wallets != nil {
		s.wallets.NotifyCourier(ctx, *order.CourierID)
	}
	return order, nil
}

// IssueCourierToken выпускает access токен курьера.
func (s *DispatchService) IssueCourierToken(courierID uuid.UUID) (*AccessToken, error) {
	if courierID == uuid.Nil {
		return nil, apperror.New(apperror.ErrCodeValidation, "идентификатор курьера обязателен")
	}
	return s.tokens.GenerateAccess(courierID, RoleCourier)
}
