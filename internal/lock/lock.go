// Package lock serializes work on a single trip. Every mutation of a trip
// (ingest, resolve, rename, item state change) runs while holding the trip's lock.
package lock

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
)

// ErrNotAcquired is returned when the lock could not be taken before the wait expired.
var ErrNotAcquired = eris.New("lock: not acquired")

// Locker grants exclusive access to a key. The returned unlock function must be
// called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// LocalLocker is an in-process Locker. Waiters queue on a per-key channel and
// give up when their context is done.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocal creates an in-process Locker.
func NewLocal() *LocalLocker {
	return &LocalLocker{slots: make(map[string]*slot)}
}

// Lock blocks until key is free or ctx is done.
func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, s)
		return nil, eris.Wrapf(ctx.Err(), "lock: wait for %s", key)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.release(key, s)
		})
	}, nil
}

func (l *LocalLocker) release(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}
