package keylock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLocalSerializesSameKey(t *testing.T) {
	l := NewLocal()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "learner:plan")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("max concurrent holders: want=1 got=%d", maxSeen)
	}
	if l.Len() != 0 {
		t.Fatalf("entries should be evicted, got=%d", l.Len())
	}
}

func TestLocalDifferentKeysDoNotBlock(t *testing.T) {
	l := NewLocal()
	unlockA, err := l.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("lock a: %v", err)
	}
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	unlockB, err := l.Lock(ctx, "b")
	if err != nil {
		t.Fatalf("lock b should not wait on a: %v", err)
	}
	unlockB()
}

func TestLocalLockHonorsContext(t *testing.T) {
	l := NewLocal()
	unlock, _ := l.Lock(context.Background(), "k")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "k"); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("want ErrLockTimeout, got=%v", err)
	}
	unlock()
	unlock() // idempotent
	if l.Len() != 0 {
		t.Fatalf("entries should be evicted, got=%d", l.Len())
	}
}

func TestChainReleasesOnFailure(t *testing.T) {
	first := NewLocal()
	second := NewLocal()
	hold, _ := second.Lock(context.Background(), "k")
	defer hold()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := Chain(first, second).Lock(ctx, "k"); err == nil {
		t.Fatalf("expected chain lock to fail")
	}
	if first.Len() != 0 {
		t.Fatalf("first lock should have been released")
	}
}
