package service

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

// orderLocks serializes writers to the same order within one process so they
// queue here instead of on the database row lock.
type orderLocks struct {
	mu    sync.Mutex
	locks map[snowflake.ID]*orderLock
}

type orderLock struct {
	mu      sync.Mutex
	waiters int
}

func newOrderLocks() *orderLocks {
	return &orderLocks{locks: make(map[snowflake.ID]*orderLock)}
}

func (l *orderLocks) Lock(id snowflake.ID) func() {
	l.mu.Lock()
	lock := l.locks[id]
	if lock == nil {
		lock = &orderLock{}
		l.locks[id] = lock
	}
	lock.waiters++
	l.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		l.mu.Lock()
		lock.waiters--
		if lock.waiters == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
