package keylock

import (
	"context"
	"errors"
)

// ErrLockTimeout is returned when a lock could not be acquired before the context ended.
var ErrLockTimeout = errors.New("keylock: timed out waiting for lock")

// Locker serializes work per key. Unlock must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type chain []Locker

// Chain acquires every locker in order and releases them in reverse.
func Chain(lockers ...Locker) Locker {
	out := make(chain, 0, len(lockers))
	for _, l := range lockers {
		if l != nil {
			out = append(out, l)
		}
	}
	return out
}

func (c chain) Lock(ctx context.Context, key string) (func(), error) {
	unlocks := make([]func(), 0, len(c))
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	for _, l := range c {
		u, err := l.Lock(ctx, key)
		if err != nil {
			release()
			return nil, err
		}
		unlocks = append(unlocks, u)
	}
	return release, nil
}
