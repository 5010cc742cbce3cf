package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/yungbote/progression-engine/internal/realtime"
)

// MemoryBus delivers synchronously inside one process. Used when Redis is not
// configured and in tests.
type MemoryBus struct {
	mu         sync.Mutex
	forwarders []func(realtime.Message)
	published  []realtime.Message
	// FailWith makes Publish return this error, for exercising retry paths.
	FailWith error
}

func NewMemoryBus() *MemoryBus { return &MemoryBus{} }

func (b *MemoryBus) Publish(ctx context.Context, msg realtime.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	if b.FailWith != nil {
		err := b.FailWith
		b.mu.Unlock()
		return err
	}
	b.published = append(b.published, msg)
	fwd := append([]func(realtime.Message){}, b.forwarders...)
	b.mu.Unlock()
	for _, f := range fwd {
		f(msg)
	}
	return nil
}

func (b *MemoryBus) StartForwarder(_ context.Context, onMsg func(m realtime.Message)) error {
	if onMsg == nil {
		return fmt.Errorf("onMsg callback required")
	}
	b.mu.Lock()
	b.forwarders = append(b.forwarders, onMsg)
	b.mu.Unlock()
	return nil
}

func (b *MemoryBus) Close() error { return nil }

func (b *MemoryBus) SetFailure(err error) {
	b.mu.Lock()
	b.FailWith = err
	b.mu.Unlock()
}

// Published returns a copy of every message accepted so far.
func (b *MemoryBus) Published() []realtime.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]realtime.Message(nil), b.published...)
}
