package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/courier-backend/internal/models"
	"github.com/ignatzorin/courier-backend/internal/repository"
)

// fakeLedger хранит кошельки и журнал в памяти. ReservePayout специально
// отпускает мьютекс между проверкой и списанием, чтобы без блокировки
// кошелька в сервисе гонка была воспроизводима.
type fakeLedger struct {
	mu           sync.Mutex
	wallets      map[uuid.UUID]*models.Wallet
	txns         []*models.WalletTransaction
	orderStatus  map[uuid.UUID]string
	reserveDelay time.Duration
	failRollback int
	rollbacks    int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		wallets:     make(map[uuid.UUID]*models.Wallet),
		orderStatus: make(map[uuid.UUID]string),
	}
}

func (f *fakeLedger) addWallet(courierID uuid.UUID) *models.Wallet {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := &models.Wallet{ID: uuid.New(), CourierID: courierID, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	f.wallets[w.ID] = w
	return w
}

func (f *fakeLedger) setOrderStatus(orderID uuid.UUID, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orderStatus[orderID] = status
}

func (f *fakeLedger) balance(walletID uuid.UUID) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.wallets[walletID].Balance
}

func (f *fakeLedger) GetOrCreateByCourier(ctx context.Context, courierID uuid.UUID) (*models.Wallet, error) {
	if w, err := f.GetByCourier(ctx, courierID); err == nil {
		return w, nil
	}
	w := f.addWallet(courierID)
	copied := *w
	return &copied, nil
}

func (f *fakeLedger) GetByCourier(ctx context.Context, courierID uuid.UUID) (*models.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.wallets {
		if w.CourierID == courierID {
			copied := *w
			return &copied, nil
		}
	}
	return nil, repository.ErrWalletNotFound
}

func (f *fakeLedger) GetByID(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.wallets[walletID]
	if !ok {
		return nil, repository.ErrWalletNotFound
	}
	copied := *w
	return &copied, nil
}

func (f *fakeLedger) Apply(ctx context.Context, entry repository.LedgerEntry) (*models.WalletTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.applyLocked(entry)
}

func (f *fakeLedger) applyLocked(entry repository.LedgerEntry) (*models.WalletTransaction, error) {
	w, ok := f.wallets[entry.WalletID]
	if !ok {
		return nil, repository.ErrWalletNotFound
	}
	w.Balance = w.Balance.Add(entry.Amount.Mul(decimal.NewFromInt(entry.Type.Sign())))

	txn := &models.WalletTransaction{
		ID:               uuid.New(),
		WalletID:         entry.WalletID,
		OrderID:          entry.OrderID,
		Type:             entry.Type,
		Amount:           entry.Amount,
		Status:           entry.Status,
		CorrelationID:    entry.CorrelationID,
		DestinationPhone: entry.DestinationPhone,
		Note:             entry.Note,
		CreatedAt:        time.Now(),
	}
	f.txns = append(f.txns, txn)
	copied := *txn
	return &copied, nil
}

func (f *fakeLedger) holdLocked(walletID uuid.UUID) decimal.Decimal {
	onHold := decimal.Zero
	for _, t := range f.txns {
		if t.WalletID != walletID || t.Type != models.TransactionTypeTip || t.Status != models.TransactionStatusCompleted || t.OrderID == nil {
			continue
		}
		if f.orderStatus[*t.OrderID] != models.OrderStatusCompleted {
			onHold = onHold.Add(t.Amount)
		}
	}
	return onHold
}

func (f *fakeLedger) ComputeHold(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.holdLocked(walletID), nil
}

func (f *fakeLedger) Snapshot(ctx context.Context, walletID uuid.UUID, recentLimit int) (*repository.LedgerSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.wallets[walletID]
	if !ok {
		return nil, repository.ErrWalletNotFound
	}
	copied := *w
	snap := &repository.LedgerSnapshot{Wallet: &copied, OnHold: f.holdLocked(walletID)}
	for i := len(f.txns) - 1; i >= 0; i-- {
		t := f.txns[i]
		if t.WalletID != walletID {
			continue
		}
		if len(snap.Recent) < recentLimit {
			snap.Recent = append(snap.Recent, *t)
		}
		if t.Type == models.TransactionTypeWithdrawal && t.Status == models.TransactionStatusPending {
			snap.PendingPayouts = append(snap.PendingPayouts, *t)
		}
	}
	return snap, nil
}

func (f *fakeLedger) ListTransactions(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]models.WalletTransaction, error) {
	snap, err := f.Snapshot(ctx, walletID, limit+offset)
	if err != nil {
		return nil, err
	}
	if offset >= len(snap.Recent) {
		return []models.WalletTransaction{}, nil
	}
	return snap.Recent[offset:], nil
}

func (f *fakeLedger) Reconstruct(ctx context.Context, walletID uuid.UUID) (*models.WalletAudit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.wallets[walletID]
	if !ok {
		return nil, repository.ErrWalletNotFound
	}
	audit := &models.WalletAudit{WalletID: walletID, StoredBalance: w.Balance}
	for _, t := range f.txns {
		if t.WalletID != walletID {
			continue
		}
		if t.Status == models.TransactionStatusCompleted || (t.Type == models.TransactionTypeWithdrawal && t.Status == models.TransactionStatusPending) {
			audit.ReconstructedBalance = audit.ReconstructedBalance.Add(t.SignedAmount())
			audit.AppliedTransactions++
		}
	}
	audit.Consistent = audit.StoredBalance.Equal(audit.ReconstructedBalance)
	return audit, nil
}

func (f *fakeLedger) ReservePayout(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, phone, note string) (*models.WalletTransaction, error) {
	f.mu.Lock()
	w, ok := f.wallets[walletID]
	if !ok {
		f.mu.Unlock()
		return nil, repository.ErrWalletNotFound
	}
	available := models.AvailableBalance(w.Balance, f.holdLocked(walletID))
	f.mu.Unlock()

	if available.LessThan(amount) {
		return nil, repository.ErrInsufficientFunds
	}
	time.Sleep(f.reserveDelay)

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.applyLocked(repository.LedgerEntry{
		WalletID:         walletID,
		Type:             models.TransactionTypeWithdrawal,
		Amount:           amount,
		Status:           models.TransactionStatusPending,
		Note:             note,
		DestinationPhone: &phone,
	})
}

func (f *fakeLedger) findLocked(txID uuid.UUID) *models.WalletTransaction {
	for _, t := range f.txns {
		if t.ID == txID {
			return t
		}
	}
	return nil
}

func (f *fakeLedger) SetCorrelationID(ctx context.Context, txID uuid.UUID, correlationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.findLocked(txID)
	if t == nil {
		return repository.ErrTransactionNotFound
	}
	t.CorrelationID = &correlationID
	return nil
}

func (f *fakeLedger) SettleWithdrawal(ctx context.Context, txID uuid.UUID) (*models.WalletTransaction, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.findLocked(txID)
	if t == nil {
		return nil, false, repository.ErrTransactionNotFound
	}
	if t.Status != models.TransactionStatusPending {
		copied := *t
		return &copied, false, nil
	}
	now := time.Now()
	t.Status = models.TransactionStatusCompleted
	t.CompletedAt = &now
	copied := *t
	return &copied, true, nil
}

func (f *fakeLedger) RollbackWithdrawal(ctx context.Context, txID uuid.UUID, reason string) (*models.WalletTransaction, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rollbacks++
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if f.failRollback > 0 {
		f.failRollback--
		return nil, false, errors.New("db unavailable")
	}
	t := f.findLocked(txID)
	if t == nil {
		return nil, false, repository.ErrTransactionNotFound
	}
	if t.Status != models.TransactionStatusPending {
		copied := *t
		return &copied, false, nil
	}
	w := f.wallets[t.WalletID]
	w.Balance = w.Balance.Add(t.Amount)
	now := time.Now()
	t.Status = models.TransactionStatusFailed
	t.CompletedAt = &now
	copied := *t
	return &copied, true, nil
}

func (f *fakeLedger) transactionsByStatus(walletID uuid.UUID, status string) []models.WalletTransaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.WalletTransaction
	for _, t := range f.txns {
		if t.WalletID == walletID && t.Status == status {
			out = append(out, *t)
		}
	}
	return out
}

// recordingPublisher запоминает опубликованные события.
type recordingPublisher struct {
	mu     sync.Mutex
	events []models.RealtimeEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, topic, eventType string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, models.RealtimeEvent{ID: uuid.New(), Topic: topic, Type: eventType, Data: raw, CreatedAt: time.Now()})
	return nil
}

func (p *recordingPublisher) byType(eventType string) []models.RealtimeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.RealtimeEvent
	for _, e := range p.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (p *recordingPublisher) topics(eventType string) []string {
	var topics []string
	for _, e := range p.byType(eventType) {
		topics = append(topics, e.Topic)
	}
	sort.Strings(topics)
	return topics
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}
