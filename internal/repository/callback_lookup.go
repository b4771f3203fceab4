package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/ignatzorin/courier-backend/internal/models"
)

// CallbackLookup ищет выплату или push-оплату, к которой относится колбэк провайдера.
type CallbackLookup struct {
	wallets  *WalletRepository
	payments *PaymentRepository
}

func NewCallbackLookup(wallets *WalletRepository, payments *PaymentRepository) *CallbackLookup {
	return &CallbackLookup{wallets: wallets, payments: payments}
}

func (l *CallbackLookup) FindTransactionByCorrelationID(ctx context.Context, correlationID string) (*models.WalletTransaction, error) {
	return l.wallets.FindByCorrelationID(ctx, correlationID)
}

func (l *CallbackLookup) GetTransaction(ctx context.Context, txID uuid.UUID) (*models.WalletTransaction, error) {
	return l.wallets.GetTransaction(ctx, txID)
}

func (l *CallbackLookup) FindPaymentByCorrelationID(ctx context.Context, correlationID string) (*models.PaymentRequest, error) {
	return l.payments.FindByCorrelationID(ctx, correlationID)
}

func (l *CallbackLookup) GetPayment(ctx context.Context, id uuid.UUID) (*models.PaymentRequest, error) {
	return l.payments.GetByID(ctx, id)
}
