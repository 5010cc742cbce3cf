package bus

import (
	"context"

	"github.com/yungbote/progression-engine/internal/realtime"
)

// Bus carries progression events between replicas. Publish is called after the
// transition committed; StartForwarder delivers every message published by any replica.
type Bus interface {
	Publish(ctx context.Context, msg realtime.Message) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.Message)) error
	Close() error
}
