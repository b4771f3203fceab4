package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/courier-backend/internal/logger"
	"github.com/ignatzorin/courier-backend/internal/models"
	"github.com/ignatzorin/courier-backend/internal/pkg/apperror"
)

const (
	defaultEventRetention = 24 * time.Hour
	maxEventsPage         = 200
)

type EventStore interface {
	Save(ctx context.Context, event *models.RealtimeEvent) error
	ListSince(ctx context.Context, topic string, since time.Time, limit int) ([]models.RealtimeEvent, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// EventService ведёт журнал realtime событий, чтобы клиент после переподключения
// мог дочитать пропущенное.
type EventService struct {
	repo      EventStore
	orders    OrderReader
	retention time.Duration
	log       *logrus.Entry
}

func NewEventService(repo EventStore, orders OrderReader) *EventService {
	return &EventService{
		repo:      repo,
		orders:    orders,
		retention: defaultEventRetention,
		log:       logger.Component("events"),
	}
}

// Record сохраняет событие в журнал.
func (s *EventService) Record(ctx context.Context, event *models.RealtimeEvent) error {
	return s.repo.Save(ctx, event)
}

// ListSince возвращает события топика после since. Курьер читает только свой
// топик и топики заказов, назначенных ему.
func (s *EventService) ListSince(ctx context.Context, courierID uuid.UUID, topic string, since time.Time, limit int) ([]models.RealtimeEvent, error) {
	if err := s.CanSubscribe(ctx, courierID, topic); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxEventsPage {
		limit = maxEventsPage
	}
	return s.repo.ListSince(ctx, topic, since, limit)
}

// CanSubscribe проверяет право курьера на топик.
func (s *EventService) CanSubscribe(ctx context.Context, courierID uuid.UUID, topic string) error {
	if topic == models.CourierTopic(courierID) {
		return nil
	}

	raw, ok := strings.CutPrefix(topic, "order:")
	if !ok {
		return apperror.New(apperror.ErrCodeValidation, "неизвестный топик")
	}
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return apperror.New(apperror.ErrCodeValidation, "некорректный идентификатор заказа в топике")
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return mapRepoError(err)
	}
	if order.CourierID == nil || *order.CourierID != courierID {
		return apperror.ErrForbidden
	}
	return nil
}

// Cleanup удаляет события старше срока хранения.
func (s *EventService) Cleanup(ctx context.Context) {
	deleted, err := s.repo.DeleteOlderThan(ctx, time.Now().Add(-s.retention))
	if err != nil {
		s.log.WithError(err).Warn("не удалось очистить журнал событий")
		return
	}
	if deleted > 0 {
		s.log.WithField("deleted", deleted).Info("журнал событий очищен")
	}
}

// RunCleanup периодически чистит журнал до отмены контекста.
func (s *EventService) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Cleanup(ctx)
		}
	}
}
