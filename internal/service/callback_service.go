package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/courier-backend/internal/logger"
	"github.com/ignatzorin/courier-backend/internal/models"
	"github.com/ignatzorin/courier-backend/internal/pkg/apperror"
	"github.com/ignatzorin/courier-backend/internal/repository"
)

// CallbackLookup ищет операции, к которым может относиться колбэк провайдера.
type CallbackLookup interface {
	FindTransactionByCorrelationID(ctx context.Context, correlationID string) (*models.WalletTransaction, error)
	GetTransaction(ctx context.Context, txID uuid.UUID) (*models.WalletTransaction, error)
	FindPaymentByCorrelationID(ctx context.Context, correlationID string) (*models.PaymentRequest, error)
	GetPayment(ctx context.Context, id uuid.UUID) (*models.PaymentRequest, error)
}

// PayoutCallbackHandler применяет колбэк к выплате.
type PayoutCallbackHandler interface {
	HandleCallback(ctx context.Context, txn *models.WalletTransaction, cb models.ProviderCallback) (*models.CallbackResult, error)
}

// PaymentCallbackHandler применяет колбэк к push-оплате.
type PaymentCallbackHandler interface {
	HandleCallback(ctx context.Context, req *models.PaymentRequest, cb models.ProviderCallback) (*models.CallbackResult, error)
}

// CallbackService маршрутизирует колбэки провайдера к выплатам или push-оплатам.
type CallbackService struct {
	lookup   CallbackLookup
	payouts  PayoutCallbackHandler
	payments PaymentCallbackHandler
	log      *logrus.Entry
}

func NewCallbackService(lookup CallbackLookup, payouts PayoutCallbackHandler, payments PaymentCallbackHandler) *CallbackService {
	return &CallbackService{
		lookup:   lookup,
		payouts:  payouts,
		payments: payments,
		log:      logger.Component("callback"),
	}
}

// Handle находит операцию по correlation id, а если его не успели сохранить,
// по reference, который мы сами передали провайдеру.
func (s *CallbackService) Handle(ctx context.Context, cb models.ProviderCallback) (*models.CallbackResult, error) {
	if cb.CorrelationID == "" && cb.Reference == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "correlationId обязателен")
	}

	log := s.log.WithFields(logrus.Fields{
		"correlation_id": cb.CorrelationID,
		"reference":      cb.Reference,
		"success":        cb.Success,
	})

	if cb.CorrelationID != "" {
		// По correlation id к выплатам уходят только списания, прочие проводки
		// принадлежат push-оплатам и ищутся по запросу на оплату.
		txn, err := s.lookup.FindTransactionByCorrelationID(ctx, cb.CorrelationID)
		switch {
		case err == nil && txn.Type == models.TransactionTypeWithdrawal:
			return s.payouts.HandleCallback(ctx, txn, cb)
		case err != nil && !errors.Is(err, repository.ErrTransactionNotFound):
			return nil, err
		}

		req, err := s.lookup.FindPaymentByCorrelationID(ctx, cb.CorrelationID)
		if err == nil {
			return s.payments.HandleCallback(ctx, req, cb)
		}
		if !errors.Is(err, repository.ErrPaymentRequestNotFound) {
			return nil, err
		}
	}

	if ref, err := uuid.Parse(cb.Reference); err == nil {
		if txn, err := s.lookup.GetTransaction(ctx, ref); err == nil && txn.Type == models.TransactionTypeWithdrawal {
			return s.payouts.HandleCallback(ctx, txn, cb)
		}
		if req, err := s.lookup.GetPayment(ctx, ref); err == nil {
			return s.payments.HandleCallback(ctx, req, cb)
		}
	}

	log.Warn("колбэк по неизвестной операции")
	return nil, apperror.ErrUnknownCorrelation
}
