package service

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestWalletLocks_SerializesSameWallet(t *testing.T) {
	locks := NewWalletLocks()
	walletID := uuid.New()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock(walletID)
			defer unlock()

			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, locks.size())
}

func TestWalletLocks_UnlockIsIdempotent(t *testing.T) {
	locks := NewWalletLocks()
	walletID := uuid.New()

	unlock := locks.Lock(walletID)
	unlock()
	unlock()

	again := locks.Lock(walletID)
	again()
	assert.Equal(t, 0, locks.size())
}
