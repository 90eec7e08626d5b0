// Package lock provides short-lived per-key mutual exclusion.
package lock

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
)

// ErrNotAcquired is returned when the lock stays held by someone else until
// ctx is done.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker serializes work on a key. Acquire blocks until the lock is held or
// ctx is done; the returned func releases it.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Local is an in-process Locker. Keys nobody waits on are dropped.
type Local struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	ch   chan struct{}
	refs int
}

var _ Locker = (*Local)(nil)

// NewLocal returns an empty in-process Locker.
func NewLocal() *Local {
	return &Local{locks: make(map[string]*entry)}
}

func (l *Local) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, e)
		return nil, errors.Wrapf(ErrNotAcquired, "%s: %v", key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.unref(key, e)
		})
	}, nil
}

func (l *Local) unref(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

// size reports the number of tracked keys.
func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
