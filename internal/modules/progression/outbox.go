package progression

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/progression-engine/internal/data/repos"
	types "github.com/yungbote/progression-engine/internal/domain/learning/progression"
	"github.com/yungbote/progression-engine/internal/observability"
	"github.com/yungbote/progression-engine/internal/pkg/dbctx"
	"github.com/yungbote/progression-engine/internal/platform/logger"
	"github.com/yungbote/progression-engine/internal/realtime"
	"github.com/yungbote/progression-engine/internal/realtime/bus"
)

// Publisher moves committed outbox rows onto the event bus. Events are published
// in (occurred_at, sequence) order; a failed publish leaves the row for the relay.
type Publisher struct {
	log    *logger.Logger
	bus    bus.Bus
	events repos.EventRepo
	now    func() time.Time
}

func NewPublisher(log *logger.Logger, b bus.Bus, events repos.EventRepo) *Publisher {
	if log == nil {
		log = logger.Nop()
	}
	return &Publisher{
		log:    log.With("service", "ProgressionPublisher"),
		bus:    b,
		events: events,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Publish sends events and marks the delivered ones. It stops at the first
// failure so later events of the same plan are not delivered ahead of it.
func (p *Publisher) Publish(ctx context.Context, events []types.ProgressionEvent) int {
	if p == nil || p.bus == nil || len(events) == 0 {
		return 0
	}
	m := observability.Current()
	sent := make([]uuid.UUID, 0, len(events))
	for _, ev := range events {
		if err := p.bus.Publish(ctx, realtime.FromEvent(ev)); err != nil {
			p.log.Warn("event publish failed; relay will retry",
				"event_id", ev.ID, "type", ev.Type, "plan_id", ev.PlanID, "error", err)
			m.IncEventPublish("failed")
			break
		}
		m.IncEventPublish("published")
		m.IncTransition(string(ev.Type))
		sent = append(sent, ev.ID)
	}
	if len(sent) > 0 && p.events != nil {
		if err := p.events.MarkPublished(dbctx.Background(ctx), sent, p.now()); err != nil {
			p.log.Warn("mark events published failed", "count", len(sent), "error", err)
		}
	}
	return len(sent)
}

// RelayPending republishes rows older than grace that were never published,
// e.g. after a crash between commit and publish.
func (p *Publisher) RelayPending(ctx context.Context, grace time.Duration, limit int) (int, error) {
	if p == nil || p.events == nil {
		return 0, nil
	}
	rows, err := p.events.ListUnpublished(dbctx.Background(ctx), p.now().Add(-grace), limit)
	if err != nil {
		return 0, err
	}
	observability.Current().SetOutboxBacklog(len(rows))
	if len(rows) == 0 {
		return 0, nil
	}
	events := make([]types.ProgressionEvent, 0, len(rows))
	for _, r := range rows {
		events = append(events, *r)
	}
	n := p.Publish(ctx, events)
	if n > 0 {
		p.log.Info("relayed unpublished progression events", "count", n)
	}
	return n, nil
}
