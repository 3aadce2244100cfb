package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderLocksSerializeSameOrder(t *testing.T) {
	locks := newOrderLocks()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock(42)
			defer unlock()
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()
			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Empty(t, locks.locks, "idle locks are released")
}

func TestOrderLocksIndependentOrders(t *testing.T) {
	locks := newOrderLocks()
	unlockA := locks.Lock(1)
	done := make(chan struct{})
	go func() {
		unlock := locks.Lock(2)
		unlock()
		close(done)
	}()
	<-done
	unlockA()
}
