package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/courier-backend/internal/logger"
	"github.com/ignatzorin/courier-backend/internal/models"
	"github.com/ignatzorin/courier-backend/internal/pkg/apperror"
	"github.com/ignatzorin/courier-backend/internal/provider"
	"github.com/ignatzorin/courier-backend/internal/repository"
	"github.com/ignatzorin/courier-backend/internal/validation"
)

type PaymentRepository interface {
	Create(ctx context.Context, in repository.CreatePaymentInput) (*models.PaymentRequest, error)
	SetCorrelationID(ctx context.Context, id uuid.UUID, correlationID string) error
	Confirm(ctx context.Context, id uuid.UUID) (*repository.PaymentConfirmation, error)
	Fail(ctx context.Context, id uuid.UUID, reason string) (*repository.PaymentConfirmation, error)
}

// OrderReader читает заказ по идентификатору.
type OrderReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

// CourierWallets находит или создаёт кошелёк курьера.
type CourierWallets interface {
	GetOrCreateByCourier(ctx context.Context, courierID uuid.UUID) (*models.Wallet, error)
}

// PushPaymentInput запрос на оплату заказа с телефона клиента.
type PushPaymentInput struct {
	OrderID    uuid.UUID
	Type       models.TransactionType
	Amount     decimal.Decimal
	PayerPhone string
}

// PaymentService проводит push-оплаты доставки и чаевых. Кошелёк курьера
// пополняется только после подтверждения провайдером.
type PaymentService struct {
	repo     PaymentRepository
	orders   OrderReader
	wallets  CourierWallets
	provider provider.Provider
	locks    *WalletLocks
	events   EventPublisher
	notifier WalletNotifier
	log      *logrus.Entry
}

func NewPaymentService(repo PaymentRepository, orders OrderReader, wallets CourierWallets, p provider.Provider, locks *WalletLocks, events EventPublisher, notifier WalletNotifier) *PaymentService {
	return &PaymentService{
		repo:     repo,
		orders:   orders,
		wallets:  wallets,
		provider: p,
		locks:    locks,
		events:   publisherOrNoop(events),
		notifier: notifier,
		log:      logger.Component("payment"),
	}
}

// InitiatePushPayment создаёт запрос на оплату и отправляет его провайдеру.
func (s *PaymentService) InitiatePushPayment(ctx context.Context, in PushPaymentInput) (*models.PaymentRequest, error) {
	if err := validation.ValidatePushPaymentType(in.Type); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateAmount(in.Amount, decimal.Zero); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidatePhone("номер плательщика", in.PayerPhone); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	phone := validation.NormalizePhone(in.PayerPhone)

	order, err := s.orders.GetByID(ctx, in.OrderID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if order.CourierID == nil {
		return nil, apperror.New(apperror.ErrCodeConflict, "заказ ещё не назначен курьеру")
	}
	if order.Status == models.OrderStatusCancelled {
		return nil, apperror.New(apperror.ErrCodeConflict, "заказ отменён")
	}

	wallet, err := s.wallets.GetOrCreateByCourier(ctx, *order.CourierID)
	if err != nil {
		return nil, mapRepoError(err)
	}

	req, err := s.repo.Create(ctx, repository.CreatePaymentInput{
		OrderID:    order.ID,
		WalletID:   wallet.ID,
		Type:       in.Type,
		Amount:     in.Amount,
		PayerPhone: phone,
	})
	if err != nil {
		return nil, mapRepoError(err)
	}

	log := s.log.WithFields(logrus.Fields{
		"order_id":   order.ID,
		"request_id": req.ID,
		"type":       in.Type,
		"amount":     in.Amount.String(),
	})

	initiation, err := s.provider.InitiatePushPayment(ctx, provider.PushPaymentRequest{
		Reference:   req.ID.String(),
		Amount:      in.Amount,
		PayerPhone:  phone,
		Description: "Оплата заказа " + order.ID.String(),
	})
	if err != nil {
		log.WithError(err).Warn("провайдер не принял push-оплату")
		detached := context.WithoutCancel(ctx)
		if res, failErr := s.repo.Fail(detached, req.ID, err.Error()); failErr != nil {
			log.WithError(failErr).Error("не удалось отметить push-оплату неуспешной")
		} else {
			s.publishPayment(detached, res, models.EventPaymentFailed, err.Error())
		}
		return nil, mapProviderError(err)
	}

	if err := s.repo.SetCorrelationID(context.WithoutCancel(ctx), req.ID, initiation.CorrelationID); err != nil {
		log.WithError(err).Error("не удалось сохранить correlation id, колбэк будет сопоставлен по reference")
	}
	req.CorrelationID = &initiation.CorrelationID

	log.WithField("correlation_id", initiation.CorrelationID).Info("push-оплата передана провайдеру")
	return req, nil
}

// HandleCallback подтверждает или отклоняет push-оплату по колбэку провайдера.
func (s *PaymentService) HandleCallback(ctx context.Context, req *models.PaymentRequest, cb models.ProviderCallback) (*models.CallbackResult, error) {
	log := s.log.WithFields(logrus.Fields{
		"order_id":       req.OrderID,
		"request_id":     req.ID,
		"correlation_id": cb.CorrelationID,
	})

	unlock := s.locks.Lock(req.WalletID)
	var (
		res *repository.PaymentConfirmation
		err error
	)
	if cb.Success {
		res, err = s.repo.Confirm(ctx, req.ID)
	} else {
		res, err = s.repo.Fail(ctx, req.ID, cb.Reason)
	}
	unlock()
	if err != nil {
		return nil, mapRepoError(err)
	}

	result := &models.CallbackResult{
		Outcome: models.CallbackOutcomeApplied,
		Kind:    "push_payment",
		ID:      res.Request.ID,
		Status:  res.Request.Status,
	}
	if !res.Applied {
		result.Outcome = models.CallbackOutcomeDuplicate
		log.WithField("status", res.Request.Status).Info("callback duplicate: оплата уже в финальном статусе")
		return result, nil
	}

	if cb.Success {
		if !cb.Amount.IsZero() && !cb.Amount.Equal(res.Request.Amount) {
			log.WithFields(logrus.Fields{
				"requested": res.Request.Amount.String(),
				"paid":      cb.Amount.String(),
			}).Warn("сумма оплаты у провайдера не совпадает с запросом")
		}
		log.Info("push-оплата подтверждена, кошелёк пополнен")
		s.publishPayment(ctx, res, models.EventPaymentConfirmed, "")
		s.notifier.NotifyWallet(ctx, res.Request.WalletID)
	} else {
		log.WithField("reason", cb.Reason).Info("push-оплата отклонена")
		s.publishPayment(ctx, res, models.EventPaymentFailed, cb.Reason)
	}
	return result, nil
}

func (s *PaymentService) publishPayment(ctx context.Context, res *repository.PaymentConfirmation, eventType, reason string) {
	if res == nil || res.Order == nil {
		return
	}
	payload := models.PaymentEventPayload{
		OrderID:       res.Order.ID,
		PaymentStatus: res.Order.PaymentStatus,
		Type:          res.Request.Type,
		Amount:        res.Request.Amount.StringFixed(2),
		Reason:        reason,
	}
	publishOrderEvent(ctx, s.events, s.log, res.Order, res.Order.CourierID, eventType, payload)
}
