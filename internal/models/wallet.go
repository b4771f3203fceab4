package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType тип записи в журнале кошелька.
type TransactionType string

// Типы транзакций
const (
	TransactionTypeTip            TransactionType = "tip"
	TransactionTypeDeliveryPay    TransactionType = "delivery_pay"
	TransactionTypeCashSettlement TransactionType = "cash_settlement"
	TransactionTypeWithdrawal     TransactionType = "withdrawal"
)

// IsValid проверяет, что тип транзакции известен.
func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionTypeTip, TransactionTypeDeliveryPay, TransactionTypeCashSettlement, TransactionTypeWithdrawal:
		return true
	}
	return false
}

// IsCredit сообщает, увеличивает ли транзакция этого типа баланс.
func (t TransactionType) IsCredit() bool {
	return t == TransactionTypeTip || t == TransactionTypeDeliveryPay
}

// Sign возвращает знак, с которым сумма транзакции входит в баланс.
func (t TransactionType) Sign() int64 {
	if t.IsCredit() {
		return 1
	}
	return -1
}

// Статусы транзакций
const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
)

// Wallet кошелёк курьера. Баланс меняется только транзакциями журнала.
type Wallet struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	CourierID uuid.UUID       `db:"courier_id" json:"courierId"`
	Balance   decimal.Decimal `db:"balance" json:"balance"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time       `db:"updated_at" json:"updatedAt"`
}

// WalletTransaction неизменяемая запись журнала. Amount всегда положителен,
// направление определяется типом.
type WalletTransaction struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	WalletID         uuid.UUID       `db:"wallet_id" json:"walletId"`
	OrderID          *uuid.UUID      `db:"order_id" json:"orderId,omitempty"`
	Type             TransactionType `db:"type" json:"type"`
	Amount           decimal.Decimal `db:"amount" json:"amount"`
	Status           string          `db:"status" json:"status"`
	CorrelationID    *string         `db:"correlation_id" json:"correlationId,omitempty"`
	DestinationPhone *string         `db:"destination_phone" json:"destinationPhone,omitempty"`
	Note             string          `db:"note" json:"note"`
	CreatedAt        time.Time       `db:"created_at" json:"createdAt"`
	CompletedAt      *time.Time      `db:"completed_at" json:"completedAt,omitempty"`
}

// SignedAmount возвращает сумму со знаком, с которым она вошла в баланс.
func (t *WalletTransaction) SignedAmount() decimal.Decimal {
	return t.Amount.Mul(decimal.NewFromInt(t.Type.Sign()))
}

// IsFinal сообщает, что статус транзакции больше не изменится.
func (t *WalletTransaction) IsFinal() bool {
	return t.Status == TransactionStatusCompleted || t.Status == TransactionStatusFailed
}

// WalletSummary сводка по кошельку, собранная из одного снимка.
type WalletSummary struct {
	WalletID           uuid.UUID           `json:"walletId"`
	CourierID          uuid.UUID           `json:"courierId"`
	Balance            decimal.Decimal     `json:"balance"`
	AvailableBalance   decimal.Decimal     `json:"availableBalance"`
	AmountOnHold       decimal.Decimal     `json:"amountOnHold"`
	RecentTransactions []WalletTransaction `json:"recentTransactions"`
	PendingPayouts     []WalletTransaction `json:"pendingPayouts"`
}

// AvailableBalance единственное место, где считается доступный к выводу остаток.
func AvailableBalance(balance, onHold decimal.Decimal) decimal.Decimal {
	available := balance.Sub(onHold)
	if available.IsNegative() {
		return decimal.Zero
	}
	return available
}

// NewWalletSummary собирает сводку из баланса и суммы удержания, прочитанных вместе.
func NewWalletSummary(wallet *Wallet, onHold decimal.Decimal, recent, pending []WalletTransaction) *WalletSummary {
	if recent == nil {
		recent = []WalletTransaction{}
	}
	if pending == nil {
		pending = []WalletTransaction{}
	}
	return &WalletSummary{
		WalletID:           wallet.ID,
		CourierID:          wallet.CourierID,
		Balance:            wallet.Balance,
		AvailableBalance:   AvailableBalance(wallet.Balance, onHold),
		AmountOnHold:       onHold,
		RecentTransactions: recent,
		PendingPayouts:     pending,
	}
}

// WalletAudit результат сверки сохранённого баланса с журналом.
type WalletAudit struct {
	WalletID             uuid.UUID       `json:"walletId"`
	StoredBalance        decimal.Decimal `json:"storedBalance"`
	ReconstructedBalance decimal.Decimal `json:"reconstructedBalance"`
	Consistent           bool            `json:"consistent"`
	AppliedTransactions  int             `json:"appliedTransactions"`
}
