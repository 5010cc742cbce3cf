package jobs

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/progression-engine/internal/data/repos"
	"github.com/yungbote/progression-engine/internal/modules/progression"
	"github.com/yungbote/progression-engine/internal/observability"
	"github.com/yungbote/progression-engine/internal/pkg/dbctx"
)

const (
	OutboxRelayJobName  = "outbox_relay"
	GaugeRefreshJobName = "gauge_refresh"
)

// OutboxRelayJob republishes progression events that were committed but never
// reached the bus.
func OutboxRelayJob(pub *progression.Publisher, every, grace time.Duration, batch int) Job {
	return Job{
		Name:    OutboxRelayJobName,
		Every:   every,
		Timeout: every,
		Run: func(ctx context.Context) error {
			_, err := pub.RelayPending(ctx, grace, batch)
			return err
		},
	}
}

// GaugeRefreshJob refreshes plan counts, connection pool stats and Redis health.
// rdb may be nil.
func GaugeRefreshJob(db *gorm.DB, plans repos.PlanRepo, rdb *goredis.Client, every time.Duration) Job {
	return Job{
		Name:    GaugeRefreshJobName,
		Every:   every,
		Timeout: every,
		Run: func(ctx context.Context) error {
			m := observability.Current()
			counts, err := plans.CountByStatus(dbctx.Background(ctx))
			if err != nil {
				return err
			}
			for status, n := range counts {
				m.SetPlans(string(status), n)
			}
			if sqlDB, err := db.DB(); err == nil {
				m.ObserveDBStats(sqlDB.Stats())
			}
			if rdb != nil {
				start := time.Now()
				perr := rdb.Ping(ctx).Err()
				m.ObserveRedisPing(perr == nil, time.Since(start))
			}
			return nil
		},
	}
}
