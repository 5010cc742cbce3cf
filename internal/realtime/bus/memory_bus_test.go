package bus

import (
	"context"
	"errors"
	"testing"

	"github.com/yungbote/progression-engine/internal/realtime"
)

func TestMemoryBusForwardsToEverySubscriber(t *testing.T) {
	b := NewMemoryBus()
	var first, second []realtime.Event
	if err := b.StartForwarder(context.Background(), func(m realtime.Message) { first = append(first, m.Event) }); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}
	_ = b.StartForwarder(context.Background(), func(m realtime.Message) { second = append(second, m.Event) })

	for _, ev := range []realtime.Event{realtime.EventDayCompleted, realtime.EventMonthCompleted} {
		if err := b.Publish(context.Background(), realtime.Message{Channel: "c", Event: ev}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	if len(first) != 2 || len(second) != 2 || first[1] != realtime.EventMonthCompleted {
		t.Fatalf("unexpected deliveries: first=%v second=%v", first, second)
	}
	if len(b.Published()) != 2 {
		t.Fatalf("published: want=2 got=%d", len(b.Published()))
	}
}

func TestMemoryBusFailure(t *testing.T) {
	b := NewMemoryBus()
	boom := errors.New("down")
	b.SetFailure(boom)
	if err := b.Publish(context.Background(), realtime.Message{Channel: "c"}); !errors.Is(err, boom) {
		t.Fatalf("want injected error, got=%v", err)
	}
	if len(b.Published()) != 0 {
		t.Fatalf("failed publish must not be recorded")
	}
	if err := b.StartForwarder(context.Background(), nil); err == nil {
		t.Fatalf("nil callback should be rejected")
	}
}
