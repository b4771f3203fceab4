package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/courier-backend/internal/db"
	"github.com/ignatzorin/courier-backend/internal/models"
	"github.com/ignatzorin/courier-backend/internal/repository/common"
)

var (
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrWalletNotFound      = fmt.Errorf("wallet: %w", common.ErrNotFound)
	ErrTransactionNotFound = fmt.Errorf("wallet transaction: %w", common.ErrNotFound)
)

const walletColumns = `id, courier_id, balance, created_at, updated_at`

const transactionColumns = `id, wallet_id, order_id, type, amount, status, correlation_id, destination_phone, note, created_at, completed_at`

// holdQuery сумма чаевых по заказам, которые ещё не завершены. Значение нигде
// не хранится и всегда считается при чтении.
const holdQuery = `
	SELECT COALESCE(SUM(t.amount), 0)
	FROM wallet_transactions t
	JOIN orders o ON o.id = t.order_id
	WHERE t.wallet_id = $1
	  AND t.type = 'tip'
	  AND t.status = 'completed'
	  AND o.status <> 'completed'
`

// LedgerEntry описывает одну запись журнала вместе с изменением баланса.
type LedgerEntry struct {
	WalletID         uuid.UUID
	OrderID          *uuid.UUID
	Type             models.TransactionType
	Amount           decimal.Decimal
	Status           string
	Note             string
	CorrelationID    *string
	DestinationPhone *string
}

// LedgerSnapshot баланс, удержание и последние транзакции, прочитанные одним снимком.
type LedgerSnapshot struct {
	Wallet         *models.Wallet
	OnHold         decimal.Decimal
	Recent         []models.WalletTransaction
	PendingPayouts []models.WalletTransaction
}

type WalletRepository struct {
	db *sqlx.DB
}

func NewWalletRepository(db *sqlx.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// GetByCourier возвращает кошелёк курьера без создания.
func (r *WalletRepository) GetByCourier(ctx context.Context, courierID uuid.UUID) (*models.Wallet, error) {
	return common.GetByField[models.Wallet](ctx, r.db, "wallets", "courier_id", courierID, ErrWalletNotFound)
}

// GetOrCreateByCourier возвращает кошелёк курьера, создаёт если не существует.
func (r *WalletRepository) GetOrCreateByCourier(ctx context.Context, courierID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	query := `
		INSERT INTO wallets (courier_id, balance)
		VALUES ($1, 0)
		ON CONFLICT (courier_id) DO UPDATE SET courier_id = EXCLUDED.courier_id
		RETURNING ` + walletColumns
	if err := r.db.GetContext(ctx, &wallet, query, courierID); err != nil {
		return nil, fmt.Errorf("wallet repository: get or create %w", err)
	}
	return &wallet, nil
}

// GetByID возвращает кошелёк по идентификатору.
func (r *WalletRepository) GetByID(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error) {
	return common.GetByID[models.Wallet](ctx, r.db, "wallets", walletID, ErrWalletNotFound)
}

// Apply добавляет запись в журнал и меняет баланс в одной транзакции.
func (r *WalletRepository) Apply(ctx context.Context, entry LedgerEntry) (*models.WalletTransaction, error) {
	var created *models.WalletTransaction
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := lockWallet(ctx, tx, entry.WalletID); err != nil {
			return err
		}
		var err error
		created, err = applyEntry(ctx, tx, entry)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ReservePayout проверяет доступный остаток и резервирует сумму выплаты:
// создаёт pending-транзакцию withdrawal и сразу уменьшает баланс.
func (r *WalletRepository) ReservePayout(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, phone, note string) (*models.WalletTransaction, error) {
	var created *models.WalletTransaction
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		wallet, err := lockWallet(ctx, tx, walletID)
		if err != nil {
			return err
		}

		var onHold decimal.Decimal
		if err := tx.GetContext(ctx, &onHold, holdQuery, walletID); err != nil {
			return fmt.Errorf("wallet repository: reserve hold %w", err)
		}
		if models.AvailableBalance(wallet.Balance, onHold).LessThan(amount) {
			return ErrInsufficientFunds
		}

		created, err = applyEntry(ctx, tx, LedgerEntry{
			WalletID:         walletID,
			Type:             models.TransactionTypeWithdrawal,
			Amount:           amount,
			Status:           models.TransactionStatusPending,
			Note:             note,
			DestinationPhone: &phone,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// SetCorrelationID сохраняет идентификатор операции у провайдера.
func (r *WalletRepository) SetCorrelationID(ctx context.Context, txID uuid.UUID, correlationID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE wallet_transactions SET correlation_id = $2 WHERE id = $1`, txID, correlationID)
	if err != nil {
		return fmt.Errorf("wallet repository: set correlation %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// SettleWithdrawal переводит pending-выплату в completed. Баланс не меняется:
// списание произошло при резервировании. applied=false, если статус уже финальный.
func (r *WalletRepository) SettleWithdrawal(ctx context.Context, txID uuid.UUID) (*models.WalletTransaction, bool, error) {
	var txn models.WalletTransaction
	err := r.db.GetContext(ctx, &txn, `
		UPDATE wallet_transactions SET status = 'completed', completed_at = NOW()
		WHERE id = $1 AND type = 'withdrawal' AND status = 'pending'
		RETURNING `+transactionColumns, txID)
	if err == nil {
		return &txn, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("wallet repository: settle withdrawal %w", err)
	}

	current, err := r.GetTransaction(ctx, txID)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

// RollbackWithdrawal возвращает зарезервированную сумму на баланс и помечает
// выплату failed. Повторный вызов для финальной транзакции ничего не делает.
func (r *WalletRepository) RollbackWithdrawal(ctx context.Context, txID uuid.UUID, reason string) (*models.WalletTransaction, bool, error) {
	var (
		txn     models.WalletTransaction
		applied bool
	)
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &txn, `SELECT `+transactionColumns+` FROM wallet_transactions WHERE id = $1 FOR UPDATE`, txID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrTransactionNotFound
			}
			return fmt.Errorf("wallet repository: rollback lock tx %w", err)
		}
		if txn.Type != models.TransactionTypeWithdrawal || txn.Status != models.TransactionStatusPending {
			return nil
		}

		if _, err := lockWallet(ctx, tx, txn.WalletID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE wallets SET balance = balance + $2, updated_at = NOW() WHERE id = $1`, txn.WalletID, txn.Amount)
		if err != nil {
			return fmt.Errorf("wallet repository: rollback credit %w", err)
		}

		err = tx.GetContext(ctx, &txn, `
			UPDATE wallet_transactions
			SET status = 'failed', completed_at = NOW(),
			    note = CASE WHEN $2 = '' THEN note ELSE note || ' | ' || $2 END
			WHERE id = $1
			RETURNING `+transactionColumns, txID, reason)
		if err != nil {
			return fmt.Errorf("wallet repository: rollback mark failed %w", err)
		}
		applied = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &txn, applied, nil
}

// GetTransaction возвращает транзакцию по идентификатору.
func (r *WalletRepository) GetTransaction(ctx context.Context, txID uuid.UUID) (*models.WalletTransaction, error) {
	var txn models.WalletTransaction
	err := r.db.GetContext(ctx, &txn, `SELECT `+transactionColumns+` FROM wallet_transactions WHERE id = $1`, txID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("wallet repository: get transaction %w", err)
	}
	return &txn, nil
}

// FindByCorrelationID ищет транзакцию по идентификатору провайдера.
func (r *WalletRepository) FindByCorrelationID(ctx context.Context, correlationID string) (*models.WalletTransaction, error) {
	var txn models.WalletTransaction
	err := r.db.GetContext(ctx, &txn, `SELECT `+transactionColumns+` FROM wallet_transactions WHERE correlation_id = $1`, correlationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("wallet repository: find by correlation %w", err)
	}
	return &txn, nil
}

// ComputeHold считает сумму удержания на момент чтения.
func (r *WalletRepository) ComputeHold(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error) {
	var onHold decimal.Decimal
	if err := r.db.GetContext(ctx, &onHold, holdQuery, walletID); err != nil {
		return decimal.Zero, fmt.Errorf("wallet repository: compute hold %w", err)
	}
	return onHold, nil
}

// Snapshot читает баланс, удержание и историю в одной read-only транзакции
// REPEATABLE READ, поэтому все значения относятся к одному моменту.
func (r *WalletRepository) Snapshot(ctx context.Context, walletID uuid.UUID, recentLimit int) (*LedgerSnapshot, error) {
	snap := &LedgerSnapshot{
		Recent:         []models.WalletTransaction{},
		PendingPayouts: []models.WalletTransaction{},
	}
	err := common.WithTxOptions(ctx, r.db, db.SnapshotTxOptions, func(tx *sqlx.Tx) error {
		var wallet models.Wallet
		if err := tx.GetContext(ctx, &wallet, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, walletID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrWalletNotFound
			}
			return fmt.Errorf("wallet repository: snapshot wallet %w", err)
		}
		snap.Wallet = &wallet

		if err := tx.GetContext(ctx, &snap.OnHold, holdQuery, walletID); err != nil {
			return fmt.Errorf("wallet repository: snapshot hold %w", err)
		}

		err := tx.SelectContext(ctx, &snap.Recent, `
			SELECT `+transactionColumns+` FROM wallet_transactions
			WHERE wallet_id = $1 ORDER BY created_at DESC LIMIT $2
		`, walletID, recentLimit)
		if err != nil {
			return fmt.Errorf("wallet repository: snapshot recent %w", err)
		}

		err = tx.SelectContext(ctx, &snap.PendingPayouts, `
			SELECT `+transactionColumns+` FROM wallet_transactions
			WHERE wallet_id = $1 AND type = 'withdrawal' AND status = 'pending'
			ORDER BY created_at DESC
		`, walletID)
		if err != nil {
			return fmt.Errorf("wallet repository: snapshot pending %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// ListTransactions возвращает историю транзакций кошелька.
func (r *WalletRepository) ListTransactions(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]models.WalletTransaction, error) {
	transactions := []models.WalletTransaction{}
	err := r.db.SelectContext(ctx, &transactions, `
		SELECT `+transactionColumns+`
		FROM wallet_transactions WHERE wallet_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, walletID, limit, offset)
	return transactions, err
}

// Reconstruct пересчитывает баланс по журналу: учитываются completed записи и
// pending выплаты, списанные при резервировании.
func (r *WalletRepository) Reconstruct(ctx context.Context, walletID uuid.UUID) (*models.WalletAudit, error) {
	audit := &models.WalletAudit{WalletID: walletID}
	err := common.WithTxOptions(ctx, r.db, db.SnapshotTxOptions, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &audit.StoredBalance, `SELECT balance FROM wallets WHERE id = $1`, walletID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrWalletNotFound
			}
			return fmt.Errorf("wallet repository: reconstruct wallet %w", err)
		}

		var row struct {
			Total decimal.Decimal `db:"total"`
			Count int             `db:"count"`
		}
		err := tx.GetContext(ctx, &row, `
			SELECT
				COALESCE(SUM(CASE WHEN type IN ('tip', 'delivery_pay') THEN amount ELSE -amount END), 0) AS total,
				COUNT(*) AS count
			FROM wallet_transactions
			WHERE wallet_id = $1
			  AND (status = 'completed' OR (type = 'withdrawal' AND status = 'pending'))
		`, walletID)
		if err != nil {
			return fmt.Errorf("wallet repository: reconstruct sum %w", err)
		}

		audit.ReconstructedBalance = row.Total
		audit.AppliedTransactions = row.Count
		audit.Consistent = audit.StoredBalance.Equal(row.Total)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return audit, nil
}

// lockWallet блокирует строку кошелька до конца транзакции.
func lockWallet(ctx context.Context, tx *sqlx.Tx, walletID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	err := tx.GetContext(ctx, &wallet, `SELECT `+walletColumns+` FROM wallets WHERE id = $1 FOR UPDATE`, walletID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("wallet repository: lock wallet %w", err)
	}
	return &wallet, nil
}

// applyEntry вставляет запись журнала и меняет баланс на сумму со знаком типа.
// Кошелёк должен быть заблокирован вызывающим.
func applyEntry(ctx context.Context, tx *sqlx.Tx, entry LedgerEntry) (*models.WalletTransaction, error) {
	delta := entry.Amount.Mul(decimal.NewFromInt(entry.Type.Sign()))
	_, err := tx.ExecContext(ctx, `UPDATE wallets SET balance = balance + $2, updated_at = NOW() WHERE id = $1`, entry.WalletID, delta)
	if err != nil {
		return nil, fmt.Errorf("wallet repository: apply balance %w", err)
	}

	var txn models.WalletTransaction
	err = tx.GetContext(ctx, &txn, `
		INSERT INTO wallet_transactions (wallet_id, order_id, type, amount, status, correlation_id, destination_phone, note, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, CASE WHEN $5 = 'completed' THEN NOW() END)
		RETURNING `+transactionColumns,
		entry.WalletID, entry.OrderID, entry.Type, entry.Amount, entry.Status, entry.CorrelationID, entry.DestinationPhone, entry.Note)
	if err != nil {
		return nil, fmt.Errorf("wallet repository: apply insert %w", err)
	}
	return &txn, nil
}
