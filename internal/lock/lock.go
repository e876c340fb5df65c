// Package lock provides the keyed critical sections used around slot
// reservation.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hackgods/provider-slot-booking/internal/apperr"
)

var ErrLockBusy = apperr.New(apperr.ErrConflict, "slot is currently being booked, please retry")

// Locker runs fn while holding an exclusive lock on key.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// SlotKey names the critical section for one provider day.
func SlotKey(providerID int64, date time.Time) string {
	return fmt.Sprintf("provider:%d:date:%s", providerID, date.Format("2006-01-02"))
}

// Local is an in-process Locker for single instance deployments. Waiters
// block until the holder releases or ctx ends.
type Local struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	ch   chan struct{}
	refs int
}

func NewLocal() *Local {
	return &Local{locks: make(map[string]*entry)}
}

func (l *Local) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	e := l.acquire(key)
	defer l.release(key, e)

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrLockBusy, ctx.Err())
	}
	defer func() { <-e.ch }()

	return fn(ctx)
}

func (l *Local) acquire(key string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	return e
}

func (l *Local) release(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}
