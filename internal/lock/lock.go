package lock

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrNotAcquired = errors.New("lock not acquired")
	// ErrBackend marks failures of the lock store itself, as opposed to contention.
	ErrBackend = errors.New("lock backend unavailable")
)

// Locker serialises critical sections per key. The scheduling service keys it by
// practitioner so that a conflict check and the write that follows cannot interleave
// with another booking for the same calendar.
type Locker interface {
	WithKey(ctx context.Context, key uuid.UUID, fn func(ctx context.Context) error) error
}

// Local is an in-process Locker. It is enough when a single api-server owns the
// calendar; multi-instance deployments use the Redis locker.
type Local struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*entry
}

type entry struct {
	sem  chan struct{}
	refs int
}

func NewLocal() *Local {
	return &Local{slots: make(map[uuid.UUID]*entry)}
}

func (l *Local) WithKey(ctx context.Context, key uuid.UUID, fn func(ctx context.Context) error) error {
	e := l.acquireEntry(key)
	defer l.releaseEntry(key, e)

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return errors.Join(ErrNotAcquired, ctx.Err())
	}
	defer func() { <-e.sem }()

	return fn(ctx)
}

func (l *Local) acquireEntry(key uuid.UUID) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.slots[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		l.slots[key] = e
	}
	e.refs++
	return e
}

func (l *Local) releaseEntry(key uuid.UUID, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.slots, key)
	}
}
