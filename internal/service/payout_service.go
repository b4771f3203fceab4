package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/courier-backend/internal/logger"
	"github.com/ignatzorin/courier-backend/internal/models"
	"github.com/ignatzorin/courier-backend/internal/pkg/apperror"
	"github.com/ignatzorin/courier-backend/internal/provider"
	"github.com/ignatzorin/courier-backend/internal/validation"
)

const (
	defaultRollbackAttempts = 5
	defaultRollbackBackoff  = 200 * time.Millisecond
)

type PayoutRepository interface {
	ReservePayout(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, phone, note string) (*models.WalletTransaction, error)
	SetCorrelationID(ctx context.Context, txID uuid.UUID, correlationID string) error
	SettleWithdrawal(ctx context.Context, txID uuid.UUID) (*models.WalletTransaction, bool, error)
	RollbackWithdrawal(ctx context.Context, txID uuid.UUID, reason string) (*models.WalletTransaction, bool, error)
}

// WalletNotifier отправляет курьеру обновлённую сводку кошелька.
type WalletNotifier interface {
	NotifyWallet(ctx context.Context, walletID uuid.UUID)
}

// PayoutInput запрос курьера на выплату.
type PayoutInput struct {
	WalletID         uuid.UUID
	Amount           decimal.Decimal
	DestinationPhone string
}

// PayoutService проводит выплату: резерв, вызов провайдера, откат при отказе
// и завершение по колбэку.
type PayoutService struct {
	repo             PayoutRepository
	provider         provider.Provider
	locks            *WalletLocks
	notifier         WalletNotifier
	minAmount        decimal.Decimal
	rollbackAttempts int
	rollbackBackoff  time.Duration
	log              *logrus.Entry
}

func NewPayoutService(repo PayoutRepository, p provider.Provider, locks *WalletLocks, notifier WalletNotifier, minAmount decimal.Decimal) *PayoutService {
	return &PayoutService{
		repo:             repo,
		provider:         p,
		locks:            locks,
		notifier:         notifier,
		minAmount:        minAmount,
		rollbackAttempts: defaultRollbackAttempts,
		rollbackBackoff:  defaultRollbackBackoff,
		log:              logger.Component("payout"),
	}
}

// RequestPayout резервирует сумму и отправляет выплату провайдеру. Проверка
// остатка, резерв и вызов провайдера выполняются под блокировкой кошелька.
func (s *PayoutService) RequestPayout(ctx context.Context, in PayoutInput) (*models.WalletTransaction, error) {
	if err := validation.ValidateAmount(in.Amount, s.minAmount); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidatePhone("номер получателя", in.DestinationPhone); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	phone := validation.NormalizePhone(in.DestinationPhone)

	log := s.log.WithFields(logrus.Fields{
		"wallet_id": in.WalletID,
		"amount":    in.Amount.String(),
	})

	unlock := s.locks.Lock(in.WalletID)
	defer unlock()

	txn, err := s.repo.ReservePayout(ctx, in.WalletID, in.Amount, phone, "выплата на "+phone)
	if err != nil {
		err = mapRepoError(err)
		if apperror.IsInsufficientFunds(err) {
			log.Info("выплата отклонена: недостаточно доступных средств")
		}
		return nil, err
	}
	log = log.WithField("transaction_id", txn.ID)

	initiation, err := s.provider.InitiatePayout(ctx, provider.PayoutRequest{
		Reference:        txn.ID.String(),
		Amount:           in.Amount,
		DestinationPhone: phone,
	})
	if err != nil {
		log.WithError(err).Warn("провайдер не принял выплату, откатываем резерв")
		s.rollback(ctx, txn.ID, err.Error())
		s.notifier.NotifyWallet(context.WithoutCancel(ctx), in.WalletID)
		return nil, mapProviderError(err)
	}

	// Провайдер уже принял выплату: сохраняем correlation id даже если клиент ушёл.
	persistCtx := context.WithoutCancel(ctx)
	if err := s.repo.SetCorrelationID(persistCtx, txn.ID, initiation.CorrelationID); err != nil {
		log.WithError(err).Error("не удалось сохранить correlation id, колбэк будет сопоставлен по reference")
	}
	txn.CorrelationID = &initiation.CorrelationID

	log.WithField("correlation_id", initiation.CorrelationID).Info("выплата передана провайдеру")
	s.notifier.NotifyWallet(persistCtx, in.WalletID)
	return txn, nil
}

// rollback возвращает резерв. Выполняется вне отмены запроса и повторяется,
// пока не получится или не кончатся попытки.
func (s *PayoutService) rollback(ctx context.Context, txID uuid.UUID, reason string) {
	ctx = context.WithoutCancel(ctx)
	var err error
	for attempt := 1; attempt <= s.rollbackAttempts; attempt++ {
		if _, _, err = s.repo.RollbackWithdrawal(ctx, txID, reason); err == nil {
			return
		}
		s.log.WithError(err).WithFields(logrus.Fields{
			"transaction_id": txID,
			"attempt":        attempt,
		}).Warn("откат выплаты не удался")
		time.Sleep(s.rollbackBackoff * time.Duration(attempt))
	}
	s.log.WithError(err).WithField("transaction_id", txID).Error("откат выплаты не выполнен, средства остаются в резерве")
}

// HandleCallback применяет асинхронный результат выплаты. Колбэк по уже
// завершённой транзакции ничего не меняет.
func (s *PayoutService) HandleCallback(ctx context.Context, txn *models.WalletTransaction, cb models.ProviderCallback) (*models.CallbackResult, error) {
	if txn.Type != models.TransactionTypeWithdrawal {
		return nil, apperror.New(apperror.ErrCodeBadRequest, "транзакция не является выплатой")
	}

	log := s.log.WithFields(logrus.Fields{
		"wallet_id":      txn.WalletID,
		"transaction_id": txn.ID,
		"correlation_id": cb.CorrelationID,
	})

	unlock := s.locks.Lock(txn.WalletID)
	var (
		updated *models.WalletTransaction
		applied bool
		err     error
	)
	if cb.Success {
		updated, applied, err = s.repo.SettleWithdrawal(ctx, txn.ID)
	} else {
		updated, applied, err = s.repo.RollbackWithdrawal(ctx, txn.ID, cb.Reason)
	}
	unlock()
	if err != nil {
		return nil, mapRepoError(err)
	}

	result := &models.CallbackResult{
		Outcome: models.CallbackOutcomeApplied,
		Kind:    "payout",
		ID:      updated.ID,
		Status:  updated.Status,
	}

	if !applied {
		result.Outcome = models.CallbackOutcomeDuplicate
		log.WithField("status", updated.Status).Info("callback duplicate: выплата уже в финальном статусе")
		return result, nil
	}

	if cb.Success {
		if !cb.Amount.IsZero() && !cb.Amount.Equal(updated.Amount) {
			log.WithFields(logrus.Fields{
				"reserved": updated.Amount.String(),
				"settled":  cb.Amount.String(),
			}).Warn("сумма выплаты у провайдера не совпадает с резервом")
		}
		log.Info("выплата подтверждена")
	} else {
		log.WithField("reason", cb.Reason).Info("выплата отклонена провайдером, резерв возвращён")
	}

	s.notifier.NotifyWallet(ctx, updated.WalletID)
	return result, nil
}
