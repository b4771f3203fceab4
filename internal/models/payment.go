package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Статусы запроса на push-оплату
const (
	PaymentRequestStatusPending   = "pending"
	PaymentRequestStatusCompleted = "completed"
	PaymentRequestStatusFailed    = "failed"
)

// PaymentRequest намерение клиента оплатить доставку или оставить чаевые
// через внешнего провайдера. Кошелёк пополняется только после подтверждения.
type PaymentRequest struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	OrderID       uuid.UUID       `db:"order_id" json:"orderId"`
	WalletID      uuid.UUID       `db:"wallet_id" json:"walletId"`
	Type          TransactionType `db:"type" json:"type"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	PayerPhone    string          `db:"payer_phone" json:"payerPhone"`
	CorrelationID *string         `db:"correlation_id" json:"correlationId,omitempty"`
	Status        string          `db:"status" json:"status"`
	FailureReason *string         `db:"failure_reason" json:"failureReason,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
	ResolvedAt    *time.Time      `db:"resolved_at" json:"resolvedAt,omitempty"`
}

// ProviderCallback асинхронное уведомление провайдера о результате операции.
type ProviderCallback struct {
	CorrelationID string          `json:"correlationId"`
	Reference     string          `json:"reference"`
	Success       bool            `json:"success"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason"`
}

// Результаты обработки колбэка
const (
	CallbackOutcomeApplied   = "applied"
	CallbackOutcomeDuplicate = "duplicate"
)

// CallbackResult описывает, что сделала обработка колбэка.
type CallbackResult struct {
	Outcome string    `json:"outcome"`
	Kind    string    `json:"kind"`
	ID      uuid.UUID `json:"id"`
	Status  string    `json:"status"`
}
