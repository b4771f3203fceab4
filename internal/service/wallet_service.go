package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/courier-backend/internal/logger"
	"github.com/ignatzorin/courier-backend/internal/models"
	"github.com/ignatzorin/courier-backend/internal/pkg/apperror"
	"github.com/ignatzorin/courier-backend/internal/repository"
	"github.com/ignatzorin/courier-backend/internal/validation"
)

// RecentTransactionsLimit сколько последних транзакций попадает в сводку.
const RecentTransactionsLimit = 20

type WalletRepository interface {
	GetOrCreateByCourier(ctx context.Context, courierID uuid.UUID) (*models.Wallet, error)
	GetByCourier(ctx context.Context, courierID uuid.UUID) (*models.Wallet, error)
	GetByID(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error)
	Apply(ctx context.Context, entry repository.LedgerEntry) (*models.WalletTransaction, error)
	ComputeHold(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error)
	Snapshot(ctx context.Context, walletID uuid.UUID, recentLimit int) (*repository.LedgerSnapshot, error)
	ListTransactions(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]models.WalletTransaction, error)
	Reconstruct(ctx context.Context, walletID uuid.UUID) (*models.WalletAudit, error)
}

// WalletService ведёт журнал кошелька курьера.
type WalletService struct {
	repo   WalletRepository
	locks  *WalletLocks
	events EventPublisher
	log    *logrus.Entry
}

func NewWalletService(repo WalletRepository, locks *WalletLocks, events EventPublisher) *WalletService {
	return &WalletService{
		repo:   repo,
		locks:  locks,
		events: publisherOrNoop(events),
		log:    logger.Component("wallet"),
	}
}

// GetWalletByCourier возвращает кошелёк курьера, создавая его при первом обращении.
func (s *WalletService) GetWalletByCourier(ctx context.Context, courierID uuid.UUID) (*models.Wallet, error) {
	wallet, err := s.repo.GetOrCreateByCourier(ctx, courierID)
	return wallet, mapRepoError(err)
}

// Authorize проверяет, что кошелёк принадлежит курьеру.
func (s *WalletService) Authorize(ctx context.Context, walletID, courierID uuid.UUID) (*models.Wallet, error) {
	wallet, err := s.repo.GetByID(ctx, walletID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if wallet.CourierID != courierID {
		return nil, apperror.ErrForbidden
	}
	return wallet, nil
}

// Credit зачисляет чаевые или оплату доставки.
func (s *WalletService) Credit(ctx context.Context, walletID uuid.UUID, orderID *uuid.UUID, txType models.TransactionType, amount decimal.Decimal, note string) (*models.WalletTransaction, error) {
	if !txType.IsCredit() {
		return nil, apperror.New(apperror.ErrCodeValidation, fmt.Sprintf("тип %s не является зачислением", txType))
	}
	return s.apply(ctx, walletID, orderID, txType, amount, note)
}

// Debit списывает средства. Выплаты идут только через PayoutService, потому
// что им нужна проверка доступного остатка и провайдер.
func (s *WalletService) Debit(ctx context.Context, walletID uuid.UUID, orderID *uuid.UUID, txType models.TransactionType, amount decimal.Decimal, note string) (*models.WalletTransaction, error) {
	if txType != models.TransactionTypeCashSettlement {
		return nil, apperror.New(apperror.ErrCodeValidation, fmt.Sprintf("тип %s нельзя списать напрямую", txType))
	}
	return s.apply(ctx, walletID, orderID, txType, amount, note)
}

// RecordCashSettlement фиксирует сдачу курьером наличных, собранных за заказ.
func (s *WalletService) RecordCashSettlement(ctx context.Context, walletID uuid.UUID, orderID *uuid.UUID, amount decimal.Decimal, note string) (*models.WalletTransaction, error) {
	if note == "" {
		note = "сдача наличных"
	}
	return s.Debit(ctx, walletID, orderID, models.TransactionTypeCashSettlement, amount, note)
}

func (s *WalletService) apply(ctx context.Context, walletID uuid.UUID, orderID *uuid.UUID, txType models.TransactionType, amount decimal.Decimal, note string) (*models.WalletTransaction, error) {
	if err := validation.ValidateAmount(amount, decimal.Zero); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateNote(note); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	unlock := s.locks.Lock(walletID)
	txn, err := s.repo.Apply(ctx, repository.LedgerEntry{
		WalletID: walletID,
		OrderID:  orderID,
		Type:     txType,
		Amount:   amount,
		Status:   models.TransactionStatusCompleted,
		Note:     note,
	})
	unlock()
	if err != nil {
		return nil, mapRepoError(err)
	}

	s.log.WithFields(logrus.Fields{
		"wallet_id": walletID,
		"type":      txType,
		"amount":    amount.String(),
	}).Info("транзакция проведена")

	s.NotifyWallet(ctx, walletID)
	return txn, nil
}

// ComputeHold возвращает сумму чаевых по незавершённым заказам.
func (s *WalletService) ComputeHold(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error) {
	onHold, err := s.repo.ComputeHold(ctx, walletID)
	return onHold, mapRepoError(err)
}

// GetSummary собирает сводку кошелька из одного снимка БД.
func (s *WalletService) GetSummary(ctx context.Context, walletID uuid.UUID) (*models.WalletSummary, error) {
	snap, err := s.repo.Snapshot(ctx, walletID, RecentTransactionsLimit)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return models.NewWalletSummary(snap.Wallet, snap.OnHold, snap.Recent, snap.PendingPayouts), nil
}

// GetSummaryByCourier возвращает сводку кошелька курьера.
func (s *WalletService) GetSummaryByCourier(ctx context.Context, courierID uuid.UUID) (*models.WalletSummary, error) {
	wallet, err := s.GetWalletByCourier(ctx, courierID)
	if err != nil {
		return nil, err
	}
	return s.GetSummary(ctx, wallet.ID)
}

// Audit сверяет сохранённый баланс с журналом.
func (s *WalletService) Audit(ctx context.Context, walletID uuid.UUID) (*models.WalletAudit, error) {
	audit, err := s.repo.Reconstruct(ctx, walletID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if !audit.Consistent {
		s.log.WithFields(logrus.Fields{
			"wallet_id":     walletID,
			"stored":        audit.StoredBalance.String(),
			"reconstructed": audit.ReconstructedBalance.String(),
		}).Error("баланс расходится с журналом")
	}
	return audit, nil
}

// ListTransactions возвращает историю транзакций.
func (s *WalletService) ListTransactions(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]models.WalletTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListTransactions(ctx, walletID, limit, offset)
}

// NotifyWallet отправляет курьеру свежую сводку кошелька.
func (s *WalletService) NotifyWallet(ctx context.Context, walletID uuid.UUID) {
	summary, err := s.GetSummary(ctx, walletID)
	if err != nil {
		s.log.WithError(err).WithField("wallet_id", walletID).Warn("не удалось собрать сводку для события")
		return
	}
	if err := s.events.Publish(ctx, models.CourierTopic(summary.CourierID), models.EventWalletUpdated, summary); err != nil {
		s.log.WithError(err).WithField("wallet_id", walletID).Warn("не удалось отправить wallet-updated")
	}
}

// NotifyCourier отправляет сводку кошелька курьера, если он уже существует.
func (s *WalletService) NotifyCourier(ctx context.Context, courierID uuid.UUID) {
	wallet, err := s.repo.GetByCourier(ctx, courierID)
	if err != nil {
		return
	}
	s.NotifyWallet(ctx, wallet.ID)
}
