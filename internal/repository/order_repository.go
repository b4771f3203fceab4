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

var (
	ErrOrderNotFound        = fmt.Errorf("order: %w", common.ErrNotFound)
	ErrOrderAlreadyResolved = fmt.Errorf("order already resolved: %w", common.ErrConflict)
	ErrOrderNotAssigned     = errors.New("order is not assigned to courier")
	ErrOrderClosed          = fmt.Errorf("order is closed: %w", common.ErrConflict)
)

const orderColumns = `id, status, driver_accepted, payment_status, courier_id, total_amount, created_at, updated_at`

// AssignInput параметры назначения заказа курьеру от диспетчера.
type AssignInput struct {
	OrderID     uuid.UUID
	CourierID   uuid.UUID
	TotalAmount decimal.Decimal
}

type OrderRepository struct {
	db *sqlx.DB
}

func NewOrderRepository(db *sqlx.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// GetByID возвращает заказ по идентификатору.
func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return common.GetByID[models.Order](ctx, r.db, "orders", id, ErrOrderNotFound)
}

// Respond фиксирует ответ курьера. Решение принимается один раз: повторный
// вызов после любого ответа возвращает ErrOrderAlreadyResolved.
func (r *OrderRepository) Respond(ctx context.Context, orderID, courierID uuid.UUID, accepted bool) (*models.Order, error) {
	var order models.Order
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		locked, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if locked.DriverAccepted != nil {
			return ErrOrderAlreadyResolved
		}
		if locked.CourierID == nil || *locked.CourierID != courierID {
			return ErrOrderNotAssigned
		}

		// При отказе заказ возвращается диспетчеру и уходит из списка курьера
		query := `
			UPDATE orders SET driver_accepted = TRUE, updated_at = NOW()
			WHERE id = $1
			RETURNING ` + orderColumns
		response := models.AssignmentResponseAccepted
		if !accepted {
			query = `
				UPDATE orders SET driver_accepted = FALSE, courier_id = NULL, updated_at = NOW()
				WHERE id = $1
				RETURNING ` + orderColumns
			response = models.AssignmentResponseRejected
		}
		if err := tx.GetContext(ctx, &order, query, orderID); err != nil {
			return fmt.Errorf("order repository: respond %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE order_assignments SET responded_at = NOW(), response = $3
			WHERE id = (
				SELECT id FROM order_assignments
				WHERE order_id = $1 AND courier_id = $2 AND responded_at IS NULL
				ORDER BY assigned_at DESC LIMIT 1
			)
		`, orderID, courierID, response)
		if err != nil {
			return fmt.Errorf("order repository: respond history %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// Assign назначает заказ курьеру. Явное назначение сбрасывает прежний ответ,
// только так отклонённый заказ может снова попасть к курьеру.
func (r *OrderRepository) Assign(ctx context.Context, in AssignInput) (*models.Order, error) {
	var order models.Order
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		locked, err := lockOrder(ctx, tx, in.OrderID)
		switch {
		case errors.Is(err, ErrOrderNotFound):
			err = tx.GetContext(ctx, &order, `
				INSERT INTO orders (id, status, payment_status, courier_id, total_amount)
				VALUES ($1, 'confirmed', 'unpaid', $2, $3)
				RETURNING `+orderColumns, in.OrderID, in.CourierID, in.TotalAmount)
			if err != nil {
				return fmt.Errorf("order repository: assign insert %w", err)
			}
		case err != nil:
			return err
		default:
			if locked.IsTerminal() {
				return ErrOrderClosed
			}
			err = tx.GetContext(ctx, &order, `
				UPDATE orders SET courier_id = $2, driver_accepted = NULL, updated_at = NOW()
				WHERE id = $1
				RETURNING `+orderColumns, in.OrderID, in.CourierID)
			if err != nil {
				return fmt.Errorf("order repository: assign update %w", err)
			}
		}

		_, err = tx.ExecContext(ctx, `INSERT INTO order_assignments (order_id, courier_id) VALUES ($1, $2)`, in.OrderID, in.CourierID)
		if err != nil {
			return fmt.Errorf("order repository: assign history %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateStatus меняет статус заказа. Повторная установка того же статуса ничего
// не меняет и возвращает changed=false.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID uuid.UUID, status string) (*models.Order, bool, error) {
	var order models.Order
	err := r.db.GetContext(ctx, &order, `
		UPDATE orders SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status <> $2
		RETURNING `+orderColumns, orderID, status)
	if err == nil {
		return &order, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("order repository: update status %w", err)
	}

	current, err := r.GetByID(ctx, orderID)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

// ListActiveByCourier возвращает незавершённые заказы курьера, которые он не отклонил.
func (r *OrderRepository) ListActiveByCourier(ctx context.Context, courierID uuid.UUID) ([]models.Order, error) {
	orders := []models.Order{}
	err := r.db.SelectContext(ctx, &orders, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE courier_id = $1
		  AND status NOT IN ('delivered', 'completed', 'cancelled')
		  AND driver_accepted IS DISTINCT FROM FALSE
		ORDER BY created_at DESC
	`, courierID)
	if err != nil {
		return nil, fmt.Errorf("order repository: list active %w", err)
	}
	return orders, nil
}

// ListAssignments возвращает историю назначений заказа.
func (r *OrderRepository) ListAssignments(ctx context.Context, orderID uuid.UUID) ([]models.OrderAssignment, error) {
	assignments := []models.OrderAssignment{}
	err := r.db.SelectContext(ctx, &assignments, `
		SELECT id, order_id, courier_id, assigned_at, responded_at, response
		FROM order_assignments WHERE order_id = $1 ORDER BY assigned_at DESC
	`, orderID)
	return assignments, err
}

// lockOrder читает заказ под блокировкой строки в рамках транзакции.
func lockOrder(ctx context.Context, tx *sqlx.Tx, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := tx.GetContext(ctx, &order, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("order repository: lock order %w", err)
	}
	return &order, nil
}
