package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/attentra/attentra/internal/rollup"
	"github.com/attentra/attentra/internal/store"
)

// Scheduler drives periodic rollups. Because rollup is a full recompute,
// overlapping runs from multiple instances converge; the redis lock only
// trims duplicate work, it is not needed for correctness.
type Scheduler struct {
	Store    *store.Store
	Engine   *rollup.Engine
	Rdb      *redis.Client
	Cron     string
	LockTTL  time.Duration
	Lookback time.Duration
	Stop     chan struct{}

	lastRun time.Time
}

func (s *Scheduler) Start() {
	ticker := time.NewTicker(time.Minute)
	go func() {
		for {
			select {
			case <-s.Stop:
				ticker.Stop()
				return
			case <-ticker.C:
				if s.due(time.Now()) {
					s.tick()
				}
			}
		}
	}()
}

// due reports whether the configured cron schedule has fired since the
// last sweep. Supports "@hourly", "@daily" and 5-field cron expressions;
// an invalid expression falls back to hourly.
func (s *Scheduler) due(now time.Time) bool {
	if s.lastRun.IsZero() {
		return true
	}
	switch s.Cron {
	case "@daily":
		return now.Sub(s.lastRun) >= 24*time.Hour
	case "", "@hourly":
		return now.Sub(s.lastRun) >= time.Hour
	default:
		expr, err := cronexpr.Parse(s.Cron)
		if err != nil {
			return now.Sub(s.lastRun) >= time.Hour
		}
		return !expr.Next(s.lastRun).After(now)
	}
}

func (s *Scheduler) tick() {
	ctx := context.Background()
	s.lastRun = time.Now()

	lookback := s.Lookback
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	pairs, err := s.Store.ListActiveOrgDocs(ctx, time.Now().Add(-lookback))
	if err != nil {
		log.Printf("[SCHED] list active docs: %v", err)
		return
	}

	seen := map[string]bool{}
	for _, od := range pairs {
		if seen[od.OrgID] {
			continue
		}
		seen[od.OrgID] = true

		if s.Rdb != nil {
			lockKey := "rollup:lock:" + od.OrgID
			ttl := s.LockTTL
			if ttl <= 0 {
				ttl = 2 * time.Minute
			}
			ok, _ := s.Rdb.SetNX(ctx, lockKey, "1", ttl).Result()
			if !ok {
				continue
			}
			defer s.Rdb.Del(ctx, lockKey)
		}

		if n, err := s.Engine.Run(ctx, od.OrgID, ""); err != nil {
			log.Printf("[SCHED] rollup org=%s: %v", od.OrgID, err)
		} else if n > 0 {
			log.Printf("[SCHED] rollup org=%s upserts=%d", od.OrgID, n)
		}
	}
}
