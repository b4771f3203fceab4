package courier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/courier-backend/internal/logger"
	"github.com/ignatzorin/courier-backend/internal/models"
)

// SessionConfig параметры сессии курьера.
type SessionConfig struct {
	ServerURL       string
	AccessToken     string
	CourierID       uuid.UUID
	MarkerTTL       time.Duration
	RequestTimeout  time.Duration
	ReconnectPeriod time.Duration

	Alerter  Alerter
	Notifier NotificationScheduler

	OnPrompt        func(*Prompt)
	OnResolved      func(PromptResult)
	OnWallet        func(models.WalletSummary)
	OnOrdersChanged func([]models.Order)
}

// Session связывает API клиента, realtime соединение, кэш заказов,
// координатор назначений и экраны ответа.
type Session struct {
	cfg         SessionConfig
	api         *APIClient
	cache       *OrderCache
	presenter   *Presenter
	coordinator *Coordinator
	realtime    *RealtimeClient
	log         *logrus.Entry
}

func NewSession(cfg SessionConfig) *Session {
	s := &Session{
		cfg:   cfg,
		api:   NewAPIClient(cfg.ServerURL, cfg.AccessToken, cfg.CourierID, cfg.RequestTimeout),
		cache: NewOrderCache(cfg.CourierID),
		log:   logger.Component("session").WithField("courier_id", cfg.CourierID),
	}
	s.presenter = NewPresenter(cfg.CourierID, cfg.Alerter, s.api, s.cache,
		WithOnShow(cfg.OnPrompt),
		WithOnResolved(s.onResolved),
	)
	s.coordinator = NewCoordinator(s.cache, s.presenter, cfg.Notifier, cfg.MarkerTTL)
	s.realtime = NewRealtimeClient(cfg.ServerURL, cfg.AccessToken, cfg.CourierID, s.api, cfg.ReconnectPeriod, s.HandleEvent)
	return s
}

// Run заполняет кэш активными заказами и держит realtime соединение до отмены контекста.
func (s *Session) Run(ctx context.Context) error {
	if err := s.Refresh(ctx); err != nil {
		return err
	}
	defer s.coordinator.Close()
	return s.realtime.Run(ctx)
}

// Refresh перечитывает активные заказы с сервера.
func (s *Session) Refresh(ctx context.Context) error {
	orders, err := s.api.ListActiveOrders(ctx)
	if err != nil {
		return fmt.Errorf("courier: не удалось загрузить активные заказы: %w", err)
	}
	s.cache.Seed(orders)
	for _, o := range orders {
		if o.IsAcceptedBy(s.cfg.CourierID) {
			_ = s.realtime.Subscribe(models.OrderTopic(o.ID))
		}
	}
	s.ordersChanged()
	return nil
}

// HandleEvent разбирает realtime событие.
func (s *Session) HandleEvent(ctx context.Context, event models.RealtimeEvent) {
	log := s.log.WithFields(logrus.Fields{"event_id": event.ID, "type": event.Type})

	switch event.Type {
	case models.EventOrderAssigned:
		var payload models.AssignmentPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			log.WithError(err).Warn("некорректное событие назначения")
			return
		}
		if _, err := s.coordinator.OnAssignmentEvent(ctx, payload, ChannelRealtime); err != nil {
			log.WithError(err).Warn("событие назначения не обработано")
		}
		if changed, _ := s.cache.Apply(event); changed {
			s.ordersChanged()
		}

	case models.EventOrderStatusChanged, models.EventPaymentConfirmed, models.EventPaymentFailed:
		changed, err := s.cache.Apply(event)
		if err != nil {
			log.WithError(err).Warn("некорректное событие заказа")
			return
		}
		if changed {
			s.ordersChanged()
		}

	case models.EventWalletUpdated:
		var summary models.WalletSummary
		if err := json.Unmarshal(event.Data, &summary); err != nil {
			log.WithError(err).Warn("некорректное событие кошелька")
			return
		}
		if s.cfg.OnWallet != nil {
			s.cfg.OnWallet(summary)
		}

	default:
		log.Debug("неизвестный тип события")
	}
}

// SetForeground переключает приложение между экраном и фоном.
func (s *Session) SetForeground(foreground bool) {
	s.coordinator.SetForeground(foreground)
}

// Tap обрабатывает нажатие на локальное уведомление.
func (s *Session) Tap(ctx context.Context, data map[string]string) (bool, error) {
	return s.coordinator.HandleNotificationTap(ctx, data)
}

// Accept принимает заказ с открытого экрана ответа.
func (s *Session) Accept(ctx context.Context, orderID uuid.UUID) (PromptResult, error) {
	prompt, err := s.prompt(orderID)
	if err != nil {
		return PromptResult{}, err
	}
	return prompt.Accept(ctx)
}

// Reject отклоняет заказ с открытого экрана ответа.
func (s *Session) Reject(ctx context.Context, orderID uuid.UUID) (PromptResult, error) {
	prompt, err := s.prompt(orderID)
	if err != nil {
		return PromptResult{}, err
	}
	return prompt.Reject(ctx)
}

// Prompts возвращает открытые экраны ответа.
func (s *Session) Prompts() []*Prompt {
	return s.presenter.Active()
}

// Orders возвращает активные заказы из кэша.
func (s *Session) Orders() []models.Order {
	return s.cache.Active()
}

// Wallet возвращает сводку по кошельку.
func (s *Session) Wallet(ctx context.Context) (*models.WalletSummary, error) {
	return s.api.GetWallet(ctx)
}

// Payout запрашивает вывод с кошелька курьера.
func (s *Session) Payout(ctx context.Context, amount decimal.Decimal, phone string) (*models.WalletTransaction, error) {
	summary, err := s.api.GetWallet(ctx)
	if err != nil {
		return nil, err
	}
	return s.api.RequestPayout(ctx, summary.WalletID, amount, phone)
}

func (s *Session) prompt(orderID uuid.UUID) (*Prompt, error) {
	prompt, ok := s.presenter.Prompt(orderID)
	if !ok {
		return nil, fmt.Errorf("courier: нет открытого экрана для заказа %s", orderID)
	}
	return prompt, nil
}

func (s *Session) onResolved(result PromptResult) {
	topic := models.OrderTopic(result.OrderID)
	if result.Outcome == OutcomeAccepted {
		if err := s.realtime.Subscribe(topic); err != nil {
			s.log.WithError(err).Warn("не удалось подписаться на топик заказа")
		}
	} else {
		_ = s.realtime.Unsubscribe(topic)
	}
	s.ordersChanged()
	if s.cfg.OnResolved != nil {
		s.cfg.OnResolved(result)
	}
}

func (s *Session) ordersChanged() {
	if s.cfg.OnOrdersChanged != nil {
		s.cfg.OnOrdersChanged(s.cache.Active())
	}
}
