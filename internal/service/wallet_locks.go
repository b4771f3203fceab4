package service

import (
	"sync"

	"github.com/google/uuid"
)

// WalletLocks сериализует операции над одним кошельком внутри процесса.
// Между инстансами порядок обеспечивает SELECT ... FOR UPDATE в репозитории.
type WalletLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*walletLock
}

type walletLock struct {
	mu   sync.Mutex
	refs int
}

func NewWalletLocks() *WalletLocks {
	return &WalletLocks{locks: make(map[uuid.UUID]*walletLock)}
}

// Lock захватывает блокировку кошелька и возвращает функцию освобождения.
func (l *WalletLocks) Lock(walletID uuid.UUID) func() {
	l.mu.Lock()
	entry, ok := l.locks[walletID]
	if !ok {
		entry = &walletLock{}
		l.locks[walletID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			entry.mu.Unlock()

			l.mu.Lock()
			entry.refs--
			if entry.refs == 0 {
				delete(l.locks, walletID)
			}
			l.mu.Unlock()
		})
	}
}

// size количество кошельков с активными блокировками.
func (l *WalletLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
