package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/courier-backend/internal/models"
	"github.com/ignatzorin/courier-backend/internal/repository/common"
)

var ErrPaymentRequestNotFound = fmt.Errorf("payment request: %w", common.ErrNotFound)

const paymentRequestColumns = `id, order_id, wallet_id, type, amount, payer_phone, correlation_id, status, failure_reason, created_at, resolved_at`

// CreatePaymentInput данные нового запроса на push-оплату.
type CreatePaymentInput struct {
	OrderID    uuid.UUID
	WalletID   uuid.UUID
	Type       models.TransactionType
	Amount     decimal.Decimal
	PayerPhone string
}

// PaymentConfirmation результат подтверждения push-оплаты.
type PaymentConfirmation struct {
	Request     *models.PaymentRequest
	Transaction *models.WalletTransaction
	Order       *models.Order
	Applied     bool
}

// PaymentRepository хранит запросы на оплату заказов через провайдера.
type PaymentRepository struct {
	db *sqlx.DB
}

func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create создаёт pending-запрос и переводит заказ в payment_status=pending.
func (r *PaymentRepository) Create(ctx context.Context, in CreatePaymentInput) (*models.PaymentRequest, error) {
	var req models.PaymentRequest
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &req, `
			INSERT INTO payment_requests (order_id, wallet_id, type, amount, payer_phone)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+paymentRequestColumns,
			in.OrderID, in.WalletID, in.Type, in.Amount, in.PayerPhone)
		if err != nil {
			return fmt.Errorf("payment repository: create %w", err)
		}

		_, err = tx.ExecContext(ctx, `UPDATE orders SET payment_status = 'pending', updated_at = NOW() WHERE id = $1 AND payment_status <> 'paid'`, in.OrderID)
		if err != nil {
			return fmt.Errorf("payment repository: create mark order %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// GetByID возвращает запрос на оплату по идентификатору.
func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentRequest, error) {
	var req models.PaymentRequest
	err := r.db.GetContext(ctx, &req, `SELECT `+paymentRequestColumns+` FROM payment_requests WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentRequestNotFound
		}
		return nil, fmt.Errorf("payment repository: get by id %w", err)
	}
	return &req, nil
}

// SetCorrelationID сохраняет идентификатор операции у провайдера.
func (r *PaymentRepository) SetCorrelationID(ctx context.Context, id uuid.UUID, correlationID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE payment_requests SET correlation_id = $2 WHERE id = $1`, id, correlationID)
	if err != nil {
		return fmt.Errorf("payment repository: set correlation %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPaymentRequestNotFound
	}
	return nil
}

// FindByCorrelationID ищет запрос по идентификатору провайдера.
func (r *PaymentRepository) FindByCorrelationID(ctx context.Context, correlationID string) (*models.PaymentRequest, error) {
	var req models.PaymentRequest
	err := r.db.GetContext(ctx, &req, `SELECT `+paymentRequestColumns+` FROM payment_requests WHERE correlation_id = $1`, correlationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentRequestNotFound
		}
		return nil, fmt.Errorf("payment repository: find by correlation %w", err)
	}
	return &req, nil
}

// Confirm отмечает запрос выполненным, зачисляет сумму в кошелёк курьера и
// переводит заказ в paid. Повторное подтверждение возвращает Applied=false.
func (r *PaymentRepository) Confirm(ctx context.Context, id uuid.UUID) (*PaymentConfirmation, error) {
	result := &PaymentConfirmation{}
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		req, err := lockPaymentRequest(ctx, tx, id)
		if err != nil {
			return err
		}
		result.Request = req
		if req.Status != models.PaymentRequestStatusPending {
			return nil
		}

		if _, err := lockWallet(ctx, tx, req.WalletID); err != nil {
			return err
		}
		orderID := req.OrderID
		// correlation id хранится только у запроса на оплату: по проводкам
		// кошелька колбэки ищут выплаты.
		result.Transaction, err = applyEntry(ctx, tx, LedgerEntry{
			WalletID: req.WalletID,
			OrderID:  &orderID,
			Type:     req.Type,
			Amount:   req.Amount,
			Status:   models.TransactionStatusCompleted,
			Note:     "push-оплата " + req.PayerPhone,
		})
		if err != nil {
			return err
		}

		updated, err := resolvePaymentRequest(ctx, tx, id, models.PaymentRequestStatusCompleted, nil)
		if err != nil {
			return err
		}
		result.Request = updated

		var order models.Order
		err = tx.GetContext(ctx, &order, `
			UPDATE orders SET payment_status = 'paid', updated_at = NOW()
			WHERE id = $1
			RETURNING `+orderColumns, req.OrderID)
		if err != nil {
			return fmt.Errorf("payment repository: confirm order %w", err)
		}
		result.Order = &order
		result.Applied = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Fail отмечает запрос неуспешным и возвращает заказ в unpaid, если других
// оплат по нему не было.
func (r *PaymentRepository) Fail(ctx context.Context, id uuid.UUID, reason string) (*PaymentConfirmation, error) {
	result := &PaymentConfirmation{}
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		req, err := lockPaymentRequest(ctx, tx, id)
		if err != nil {
			return err
		}
		result.Request = req
		if req.Status != models.PaymentRequestStatusPending {
			return nil
		}

		updated, err := resolvePaymentRequest(ctx, tx, id, models.PaymentRequestStatusFailed, &reason)
		if err != nil {
			return err
		}
		result.Request = updated

		var order models.Order
		err = tx.GetContext(ctx, &order, `
			UPDATE orders SET payment_status = CASE WHEN payment_status = 'paid' THEN 'paid' ELSE 'unpaid' END,
			       updated_at = NOW()
			WHERE id = $1
			RETURNING `+orderColumns, req.OrderID)
		if err != nil {
			return fmt.Errorf("payment repository: fail order %w", err)
		}
		result.Order = &order
		result.Applied = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListByOrder возвращает запросы на оплату заказа.
func (r *PaymentRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.PaymentRequest, error) {
	requests := []models.PaymentRequest{}
	err := r.db.SelectContext(ctx, &requests, `
		SELECT `+paymentRequestColumns+` FROM payment_requests WHERE order_id = $1 ORDER BY created_at DESC
	`, orderID)
	return requests, err
}

func lockPaymentRequest(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*models.PaymentRequest, error) {
	var req models.PaymentRequest
	err := tx.GetContext(ctx, &req, `SELECT `+paymentRequestColumns+` FROM payment_requests WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentRequestNotFound
		}
		return nil, fmt.Errorf("payment repository: lock %w", err)
	}
	return &req, nil
}

func resolvePaymentRequest(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status string, reason *string) (*models.PaymentRequest, error) {
	var req models.PaymentRequest
	err := tx.GetContext(ctx, &req, `
		UPDATE payment_requests SET status = $2, failure_reason = $3, resolved_at = NOW()
		WHERE id = $1
		RETURNING `+paymentRequestColumns, id, status, reason)
	if err != nil {
		return nil, fmt.Errorf("payment repository: resolve %w", err)
	}
	return &req, nil
}
