package waitlist

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Locker serializes the hold/resolve/cascade critical section per slot. The
// repository's check-and-set operations are what make the state machine
// correct; the lock only keeps racing callers from doing wasted work (and
// wasted cascades) against the same slot.
type Locker interface {
	WithSlotLock(ctx context.Context, slotID uuid.UUID, fn func(ctx context.Context) error) error
}

// LocalLocker is an in-process Locker backed by one mutex per slot. Suitable
// for single-instance deployments and tests; multi-instance deployments use
// the Redis locker instead.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*sync.Mutex
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[uuid.UUID]*sync.Mutex)}
}

func (l *LocalLocker) WithSlotLock(ctx context.Context, slotID uuid.UUID, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	m, ok := l.slots[slotID]
	if !ok {
		m = &sync.Mutex{}
		l.slots[slotID] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()

	return fn(ctx)
}
